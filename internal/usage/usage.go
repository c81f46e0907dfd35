// Package usage persists the side effects of a successful generation.
package usage

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/promptarchitect/server/internal/models"
	"github.com/promptarchitect/server/internal/store"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CustomTemplateType labels history rows generated from an ad-hoc template.
const CustomTemplateType = "custom"

// Record describes one successful generation.
type Record struct {
	UserID      string
	TemplateID  string
	ModelID     string
	Input       string
	Output      string
	PlatformKey bool
	Quota       int // Quota limit checked by the conditional increment.
}

// Outcome reports what was written.
type Outcome struct {
	Incremented bool
	PromptID    string
}

// Recorder writes usage increments and history rows.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder constructs a Recorder backed by GORM.
func NewRecorder(db *gorm.DB) *Recorder { return &Recorder{db: db} }

// Record increments platform usage and stores the history row in one transaction.
// The write is detached from ctx cancellation.
func (r *Recorder) Record(ctx context.Context, rec Record) (Outcome, error) {
	var outcome Outcome
	if r == nil || r.db == nil {
		return outcome, nil
	}

	dbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	templateType := strings.TrimSpace(rec.TemplateID)
	if templateType == "" {
		templateType = CustomTemplateType
	}
	row := models.UserPrompt{
		ID:           uuid.NewString(),
		UserID:       rec.UserID,
		TemplateType: templateType,
		ModelID:      rec.ModelID,
		InputPrompt:  rec.Input,
		OutputText:   rec.Output,
		PlatformKey:  rec.PlatformKey,
		CreatedAt:    time.Now().UTC(),
	}

	errTx := r.db.WithContext(dbCtx).Transaction(func(tx *gorm.DB) error {
		if rec.PlatformKey {
			incremented, errIncrement := store.IncrementUsage(dbCtx, tx, rec.UserID, rec.Quota)
			if errIncrement != nil {
				return errIncrement
			}
			if !incremented {
				log.WithFields(log.Fields{
					"user_id": rec.UserID,
					"quota":   rec.Quota,
				}).Warn("usage recorder: quota reached before increment")
			}
			outcome.Incremented = incremented
		}
		if errCreate := tx.Create(&row).Error; errCreate != nil {
			return errCreate
		}
		return nil
	})
	if errTx != nil {
		log.WithError(errTx).Warn("usage recorder: failed to persist usage or history")
		return Outcome{}, errTx
	}
	outcome.PromptID = row.ID
	return outcome, nil
}
