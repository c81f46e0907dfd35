package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/promptarchitect/server/internal/billing"
	"github.com/promptarchitect/server/internal/models"
	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v79/webhook"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaxWebhookBodyBytes bounds an inbound webhook payload.
const MaxWebhookBodyBytes = 64 << 10

// EventApplier applies a parsed billing event.
type EventApplier interface {
	Apply(ctx context.Context, ev billing.Event) error
}

// WebhookHandler verifies and dispatches Stripe deliveries.
type WebhookHandler struct {
	db      *gorm.DB
	applier EventApplier
	secret  string
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(db *gorm.DB, applier EventApplier, secret string) *WebhookHandler {
	return &WebhookHandler{db: db, applier: applier, secret: secret}
}

// Stripe handles POST /v1/webhooks/stripe. Any delivery with a valid signature is acknowledged.
func (h *WebhookHandler) Stripe(c *gin.Context) {
	body, errRead := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxWebhookBodyBytes))
	if errRead != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
		return
	}
	if h.secret == "" {
		log.Error("webhook: stripe webhook secret not configured")
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed", "code": "SignatureVerificationFailed"})
		return
	}

	event, errVerify := webhook.ConstructEventWithOptions(body, c.GetHeader("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if errVerify != nil {
		log.WithError(errVerify).Warn("webhook: signature verification failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed", "code": "SignatureVerificationFailed"})
		return
	}

	ctx := c.Request.Context()
	fields := log.Fields{"event_id": event.ID, "event_type": string(event.Type)}

	duplicate, errLedger := h.record(ctx, event.ID, string(event.Type), body)
	if errLedger != nil {
		log.WithError(errLedger).WithFields(fields).Warn("webhook: record event failed")
	}
	if duplicate {
		log.WithFields(fields).Info("webhook: duplicate delivery ignored")
		c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": true})
		return
	}

	processingError := ""
	settled := true
	parsed, errParse := billing.ParseEvent(event)
	switch {
	case errParse != nil:
		log.WithError(errParse).WithFields(fields).Warn("webhook: malformed event")
		processingError = errParse.Error()
	case parsed == nil:
		log.WithFields(fields).Debug("webhook: event type ignored")
	case h.applier == nil:
		processingError = "no reconciler configured"
		settled = false
	default:
		fields["variant"] = billing.Name(parsed)
		if errApply := h.applier.Apply(ctx, parsed); errApply != nil {
			processingError = errApply.Error()
			if errors.Is(errApply, billing.ErrLookupMiss) {
				log.WithError(errApply).WithFields(fields).Warn("webhook: lookup miss, event skipped")
			} else {
				// Left unsettled so a redelivery is applied again.
				settled = false
				log.WithError(errApply).WithFields(fields).Error("webhook: apply event failed")
			}
		} else {
			log.WithFields(fields).Info("webhook: event applied")
		}
	}

	h.markProcessed(ctx, event.ID, processingError, settled)
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// record inserts the event into the ledger and reports whether it was already processed.
func (h *WebhookHandler) record(ctx context.Context, eventID, eventType string, body []byte) (bool, error) {
	if h.db == nil || eventID == "" {
		return false, nil
	}
	sum := sha256.Sum256(body)
	row := models.BillingWebhookEvent{
		Provider:    "stripe",
		EventID:     eventID,
		EventType:   eventType,
		PayloadHash: hex.EncodeToString(sum[:]),
	}
	res := h.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return false, nil
	}

	var existing models.BillingWebhookEvent
	if errFind := h.db.WithContext(ctx).Where("event_id = ?", eventID).Take(&existing).Error; errFind != nil {
		return false, errFind
	}
	return existing.ProcessedAt != nil, nil
}

// markProcessed stores the outcome. Unsettled events keep a nil processed_at.
func (h *WebhookHandler) markProcessed(ctx context.Context, eventID, processingError string, settled bool) {
	if h.db == nil || eventID == "" {
		return
	}
	updates := map[string]any{"processing_error": processingError}
	if settled {
		updates["processed_at"] = time.Now().UTC()
	}
	if errUpdate := h.db.WithContext(context.WithoutCancel(ctx)).
		Model(&models.BillingWebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(updates).Error; errUpdate != nil {
		log.WithError(errUpdate).WithField("event_id", eventID).Warn("webhook: mark event processed failed")
	}
}
