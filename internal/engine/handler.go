package engine

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"freeflow/status-engine/status-engine-backend/internal/history"
	"freeflow/status-engine/status-engine-backend/pkg/apperrors"
)

const (
	changeStatusRetries = 3
	retryBackoff        = 50 * time.Millisecond
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	entities := rg.Group("/entities/:entityType/:entityId")
	{
		entities.POST("/status", h.ChangeStatus)
		entities.GET("/status", h.GetCurrentStatus)
		entities.GET("/transitions", h.GetAvailableTransitions)
		entities.GET("/history", h.GetHistory)
	}
}

type changeStatusPayload struct {
	TargetStatusID uuid.UUID              `json:"target_status_id" binding:"required"`
	Actor          string                 `json:"actor" binding:"required"`
	Comment        string                 `json:"comment"`
	Metadata       datatypes.JSON         `json:"metadata"`
	EntitySnapshot map[string]interface{} `json:"entity_snapshot"`
}

func (h *Handler) ChangeStatus(c *gin.Context) {
	entityType := c.Param("entityType")
	entityID := c.Param("entityId")

	var payload changeStatusPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := ChangeOptions{
		Comment:        payload.Comment,
		Metadata:       payload.Metadata,
		EntitySnapshot: payload.EntitySnapshot,
	}

	// ConcurrentModificationError is the one retryable kind: re-running
	// re-reads the now-current status. Everything else surfaces as-is.
	var entry *history.Entry
	var err error
	for attempt := 0; attempt < changeStatusRetries; attempt++ {
		entry, err = h.service.ChangeStatus(c.Request.Context(), entityType, entityID, payload.TargetStatusID, payload.Actor, opts)
		if err == nil || !apperrors.IsKind(err, apperrors.KindConcurrentModification) {
			break
		}
		time.Sleep(retryBackoff * time.Duration(attempt+1))
	}
	if err != nil {
		c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, entry)
}

func (h *Handler) GetCurrentStatus(c *gin.Context) {
	status, err := h.service.GetCurrentStatus(c.Request.Context(), c.Param("entityType"), c.Param("entityId"))
	if err != nil {
		c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	if status == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "entity has no status assigned"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) GetAvailableTransitions(c *gin.Context) {
	available, err := h.service.GetAvailableTransitions(c.Request.Context(), c.Param("entityType"), c.Param("entityId"))
	if err != nil {
		c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, available)
}

func (h *Handler) GetHistory(c *gin.Context) {
	opts := history.QueryOptions{}
	if fromStr := c.Query("from"); fromStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
			return
		}
		opts.FromDate = &from
	}
	if toStr := c.Query("to"); toStr != "" {
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
			return
		}
		opts.ToDate = &to
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		opts.Limit = limit
	}

	entries, err := h.service.GetHistory(c.Request.Context(), c.Param("entityType"), c.Param("entityId"), opts)
	if err != nil {
		c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}
