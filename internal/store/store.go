// Package store loads and persists the rows the generation and billing flows work on.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/promptarchitect/server/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound reports a missing or inactive row.
var ErrNotFound = errors.New("store: not found")

// Store is the gorm-backed repository.
type Store struct {
	db *gorm.DB
}

// New constructs a Store.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle.
func (s *Store) DB() *gorm.DB {
	if s == nil {
		return nil
	}
	return s.db
}

func (s *Store) ready() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store: not initialized")
	}
	return nil
}

// ActiveModel loads an active catalog model by its upstream model id.
func (s *Store) ActiveModel(ctx context.Context, modelID string) (*models.SupportedModel, error) {
	if errReady := s.ready(); errReady != nil {
		return nil, errReady
	}
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return nil, ErrNotFound
	}
	var row models.SupportedModel
	errFind := s.db.WithContext(ctx).
		Where("model_id = ? AND is_active = ?", modelID, true).
		Take(&row).Error
	if errFind != nil {
		return nil, notFound(errFind, "load model")
	}
	return &row, nil
}

// ActiveTemplate loads an active template by id.
func (s *Store) ActiveTemplate(ctx context.Context, id string) (*models.SupportedTemplate, error) {
	if errReady := s.ready(); errReady != nil {
		return nil, errReady
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	var row models.SupportedTemplate
	errFind := s.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", id, true).
		Take(&row).Error
	if errFind != nil {
		return nil, notFound(errFind, "load template")
	}
	return &row, nil
}

// Tier loads a tier by id regardless of its active flag.
func (s *Store) Tier(ctx context.Context, id string) (*models.SubscriptionTier, error) {
	if errReady := s.ready(); errReady != nil {
		return nil, errReady
	}
	var row models.SubscriptionTier
	if errFind := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; errFind != nil {
		return nil, notFound(errFind, "load tier")
	}
	return &row, nil
}

// TierByStripePrice loads the active tier sold under priceID.
func (s *Store) TierByStripePrice(ctx context.Context, priceID string) (*models.SubscriptionTier, error) {
	if errReady := s.ready(); errReady != nil {
		return nil, errReady
	}
	var row models.SubscriptionTier
	if errFind := s.db.WithContext(ctx).
		Where("stripe_price_id = ? AND is_active = ?", priceID, true).
		Take(&row).Error; errFind != nil {
		return nil, notFound(errFind, "load tier by price")
	}
	return &row, nil
}

// ListActiveModels returns the public model catalog.
func (s *Store) ListActiveModels(ctx context.Context) ([]models.SupportedModel, error) {
	if errReady := s.ready(); errReady != nil {
		return nil, errReady
	}
	var rows []models.SupportedModel
	if errFind := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_order ASC, name ASC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: list models: %w", errFind)
	}
	return rows, nil
}

// ListActiveTiers returns the public tier catalog.
func (s *Store) ListActiveTiers(ctx context.Context) ([]models.SubscriptionTier, error) {
	if errReady := s.ready(); errReady != nil {
		return nil, errReady
	}
	var rows []models.SubscriptionTier
	if errFind := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_order ASC, price_in_cents ASC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: list tiers: %w", errFind)
	}
	return rows, nil
}

// ListActiveTemplates returns the public template catalog.
func (s *Store) ListActiveTemplates(ctx context.Context) ([]models.SupportedTemplate, error) {
	if errReady := s.ready(); errReady != nil {
		return nil, errReady
	}
	var rows []models.SupportedTemplate
	if errFind := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_order ASC, name ASC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: list templates: %w", errFind)
	}
	return rows, nil
}

func notFound(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("store: %s: %w", op, err)
}
