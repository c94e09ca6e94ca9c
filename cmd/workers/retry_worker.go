package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"freeflow/status-engine/status-engine-backend/internal/config"
	"freeflow/status-engine/status-engine-backend/internal/notifications"
	"freeflow/status-engine/status-engine-backend/internal/notifications/websocket"
)

// Re-attempts failed notification deliveries on a fixed schedule. A delivery
// that keeps failing stops being retried once it reaches the attempt cap.
func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.GetDatabaseURL()), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to DB:", err)
	}

	wsManager := websocket.NewManager()
	defer wsManager.Close()

	service := notifications.NewService(
		notifications.NewRepository(db),
		notifications.LogEmailSender{},
		wsManager,
		cfg.Notifications.MaxAttempts,
	)

	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Notifications.RetrySchedule, func() {
		retried, err := service.RetryFailedDeliveries(context.Background())
		if err != nil {
			log.Printf("retry pass failed: %v", err)
			return
		}
		if retried > 0 {
			log.Printf("redelivered %d notification(s)", retried)
		}
	})
	if err != nil {
		log.Fatal("Invalid retry schedule:", err)
	}

	scheduler.Start()
	log.Println("Retry worker running, schedule:", cfg.Notifications.RetrySchedule)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx := scheduler.Stop()
	<-ctx.Done()
}
