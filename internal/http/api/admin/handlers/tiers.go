package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/promptarchitect/server/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TierHandler manages subscription tiers.
type TierHandler struct {
	db *gorm.DB // Database handle for tier records.
}

// NewTierHandler constructs a tier handler.
func NewTierHandler(db *gorm.DB) *TierHandler {
	return &TierHandler{db: db}
}

// createTierRequest captures the payload for creating a tier.
type createTierRequest struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	Description     string               `json:"description"`
	PriceInCents    int64                `json:"price_in_cents"`
	Currency        string               `json:"currency"`
	SortOrder       int                  `json:"sort_order"`
	IsActive        *bool                `json:"is_active"`
	StripePriceID   string               `json:"stripe_price_id"`
	StripeProductID string               `json:"stripe_product_id"`
	Features        *models.TierFeatures `json:"features"`
}

// Create validates input and inserts a tier.
func (h *TierHandler) Create(c *gin.Context) {
	var body createTierRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	id := strings.ToLower(strings.TrimSpace(body.ID))
	if !templateIDPattern.MatchString(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tier id"})
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	if body.PriceInCents < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price_in_cents must be >= 0"})
		return
	}
	features := models.TierFeatures{}
	if body.Features != nil {
		features = *body.Features
	}
	if features.PromptsIncluded != nil && *features.PromptsIncluded < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompts_included must be >= 0"})
		return
	}
	rawFeatures, errMarshal := json.Marshal(features)
	if errMarshal != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid features"})
		return
	}
	currency := strings.ToLower(strings.TrimSpace(body.Currency))
	if currency == "" {
		currency = "usd"
	}

	ctx := c.Request.Context()
	var count int64
	if errCount := h.db.WithContext(ctx).Model(&models.SubscriptionTier{}).Where("id = ?", id).Count(&count).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "tier already exists"})
		return
	}

	now := time.Now().UTC()
	tier := models.SubscriptionTier{
		ID:              id,
		Name:            strings.TrimSpace(body.Name),
		Description:     strings.TrimSpace(body.Description),
		PriceInCents:    body.PriceInCents,
		Currency:        currency,
		SortOrder:       body.SortOrder,
		IsActive:        true,
		StripePriceID:   optionalString(body.StripePriceID),
		StripeProductID: optionalString(body.StripeProductID),
		Features:        datatypes.JSON(rawFeatures),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if features.PromptsIncluded != nil {
		tier.MonthlyQuota = *features.PromptsIncluded
	}
	if errCreate := h.db.WithContext(ctx).Create(&tier).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create tier failed"})
		return
	}
	if body.IsActive != nil && !*body.IsActive {
		if errUpdate := h.db.WithContext(ctx).Model(&models.SubscriptionTier{}).
			Where("id = ?", id).
			Update("is_active", false).Error; errUpdate != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create tier failed"})
			return
		}
		tier.IsActive = false
	}
	c.JSON(http.StatusCreated, formatTier(&tier))
}

// List returns all tiers.
func (h *TierHandler) List(c *gin.Context) {
	var rows []models.SubscriptionTier
	if errFind := h.db.WithContext(c.Request.Context()).
		Order("sort_order ASC, price_in_cents ASC").
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list tiers failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatTier(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"tiers": out})
}

// updateTierRequest captures optional fields for tier updates.
type updateTierRequest struct {
	Name            *string              `json:"name"`
	Description     *string              `json:"description"`
	PriceInCents    *int64               `json:"price_in_cents"`
	Currency        *string              `json:"currency"`
	SortOrder       *int                 `json:"sort_order"`
	IsActive        *bool                `json:"is_active"`
	StripePriceID   *string              `json:"stripe_price_id"`
	StripeProductID *string              `json:"stripe_product_id"`
	Features        *models.TierFeatures `json:"features"`
}

// Update applies partial tier updates. Bound subscriptions keep their stored quota.
func (h *TierHandler) Update(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body updateTierRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	updates := map[string]any{
		"updated_at": time.Now().UTC(),
	}
	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name cannot be empty"})
			return
		}
		updates["name"] = name
	}
	if body.Description != nil {
		updates["description"] = strings.TrimSpace(*body.Description)
	}
	if body.PriceInCents != nil {
		if *body.PriceInCents < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "price_in_cents must be >= 0"})
			return
		}
		updates["price_in_cents"] = *body.PriceInCents
	}
	if body.Currency != nil {
		updates["currency"] = strings.ToLower(strings.TrimSpace(*body.Currency))
	}
	if body.SortOrder != nil {
		updates["sort_order"] = *body.SortOrder
	}
	if body.IsActive != nil {
		if !*body.IsActive && id == models.FreeTierID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "free tier cannot be disabled"})
			return
		}
		updates["is_active"] = *body.IsActive
	}
	if body.StripePriceID != nil {
		updates["stripe_price_id"] = optionalString(*body.StripePriceID)
	}
	if body.StripeProductID != nil {
		updates["stripe_product_id"] = optionalString(*body.StripeProductID)
	}
	if body.Features != nil {
		if body.Features.PromptsIncluded != nil && *body.Features.PromptsIncluded < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "prompts_included must be >= 0"})
			return
		}
		rawFeatures, errMarshal := json.Marshal(body.Features)
		if errMarshal != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid features"})
			return
		}
		updates["features"] = datatypes.JSON(rawFeatures)
		if body.Features.PromptsIncluded != nil {
			updates["monthly_quota"] = *body.Features.PromptsIncluded
		}
	}

	ctx := c.Request.Context()
	res := h.db.WithContext(ctx).Model(&models.SubscriptionTier{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update tier failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	var tier models.SubscriptionTier
	if errFind := h.db.WithContext(ctx).Where("id = ?", id).First(&tier).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, formatTier(&tier))
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func formatTier(t *models.SubscriptionTier) gin.H {
	return gin.H{
		"id":                t.ID,
		"name":              t.Name,
		"description":       t.Description,
		"monthly_quota":     t.PromptsIncluded(),
		"price_in_cents":    t.PriceInCents,
		"currency":          t.Currency,
		"sort_order":        t.SortOrder,
		"is_active":         t.IsActive,
		"stripe_price_id":   t.StripePriceID,
		"stripe_product_id": t.StripeProductID,
		"features":          t.DecodeFeatures(),
		"created_at":        t.CreatedAt,
		"updated_at":        t.UpdatedAt,
	}
}
