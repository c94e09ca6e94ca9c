package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"freeflow/status-engine/status-engine-backend/internal/config"
	"freeflow/status-engine/status-engine-backend/internal/engine"
	"freeflow/status-engine/status-engine-backend/internal/history"
	"freeflow/status-engine/status-engine-backend/internal/notifications"
	"freeflow/status-engine/status-engine-backend/internal/notifications/websocket"
	"freeflow/status-engine/status-engine-backend/internal/statuses"
	"freeflow/status-engine/status-engine-backend/internal/transitions"
	"freeflow/status-engine/status-engine-backend/pkg/predicate"
)

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

	if err := db.AutoMigrate(
		&statuses.Status{},
		&statuses.StatusGroup{},
		&transitions.Transition{},
		&history.Entry{},
		&notifications.StatusNotificationRule{},
		&notifications.DeliveryLog{},
	); err != nil {
		log.Fatal("Failed to migrate schema:", err)
	}

	// ---------------- CATALOG ----------------
	statusRepo := statuses.NewRepository(db)
	statusService := statuses.NewService(statusRepo)
	statusHandler := statuses.NewHandler(statusService)

	// ---------------- TRANSITION TABLE ----------------
	transitionRepo := transitions.NewRepository(db)
	transitionService := transitions.NewService(transitionRepo, statusRepo)
	transitionHandler := transitions.NewHandler(transitionService)

	// ---------------- NOTIFICATIONS ----------------
	wsManager := websocket.NewManager()
	defer wsManager.Close()

	notificationRepo := notifications.NewRepository(db)
	notificationService := notifications.NewService(
		notificationRepo,
		notifications.LogEmailSender{},
		wsManager,
		cfg.Notifications.MaxAttempts,
	)
	notificationHandler := notifications.NewHandler(notificationService, wsManager)

	// ---------------- ENGINE ----------------
	historyRepo := history.NewRepository(db)
	engineService := engine.NewService(
		statusRepo,
		transitionService,
		historyRepo,
		predicate.NewRuleEvaluator(),
		notificationService,
	)
	engineHandler := engine.NewHandler(engineService)

	r := gin.Default()
	v1 := r.Group("/api/v1")

	statusHandler.RegisterRoutes(v1)
	transitionHandler.RegisterRoutes(v1)
	engineHandler.RegisterRoutes(v1)
	notificationHandler.RegisterRoutes(v1)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "API alive!"})
	})

	log.Println("Server running on", cfg.Server.GetServerAddr())
	if err := r.Run(cfg.Server.GetServerAddr()); err != nil {
		log.Fatal(err)
	}
}
