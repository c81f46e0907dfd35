package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/promptarchitect/server/internal/models"
	"gorm.io/gorm"
)

// WebhookEventHandler lists the payment webhook ledger.
type WebhookEventHandler struct {
	db *gorm.DB
}

// NewWebhookEventHandler constructs a WebhookEventHandler.
func NewWebhookEventHandler(db *gorm.DB) *WebhookEventHandler {
	return &WebhookEventHandler{db: db}
}

// List returns a page of ledger rows, newest first. failed=true keeps rows with an error.
func (h *WebhookEventHandler) List(c *gin.Context) {
	var query listQuery
	if errBind := c.ShouldBindQuery(&query); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	query.normalize()

	q := h.db.WithContext(c.Request.Context()).Model(&models.BillingWebhookEvent{})
	if eventType := strings.TrimSpace(c.Query("event_type")); eventType != "" {
		q = q.Where("event_type = ?", eventType)
	}
	if query.Search != "" {
		q = q.Where("event_id = ?", query.Search)
	}
	switch strings.TrimSpace(c.Query("failed")) {
	case "true", "1":
		q = q.Where("processing_error <> ''")
	case "false", "0":
		q = q.Where("processing_error = '' OR processing_error IS NULL")
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count webhook events failed"})
		return
	}
	var rows []models.BillingWebhookEvent
	if errFind := q.Order("created_at DESC, id DESC").
		Offset(query.offset()).
		Limit(query.Limit).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list webhook events failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":               row.ID,
			"provider":         row.Provider,
			"event_id":         row.EventID,
			"event_type":       row.EventType,
			"payload_hash":     row.PayloadHash,
			"processed_at":     row.ProcessedAt,
			"processing_error": row.ProcessingError,
			"created_at":       row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"events": out,
		"total":  total,
		"page":   query.Page,
		"limit":  query.Limit,
	})
}
