package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/promptarchitect/server/internal/auth"
	"github.com/promptarchitect/server/internal/store"
	log "github.com/sirupsen/logrus"
)

// CatalogHandler serves the public tier, model and template catalog plus prompt history.
type CatalogHandler struct {
	store *store.Store
}

// NewCatalogHandler constructs a CatalogHandler.
func NewCatalogHandler(s *store.Store) *CatalogHandler {
	return &CatalogHandler{store: s}
}

// Tiers returns the active tiers.
func (h *CatalogHandler) Tiers(c *gin.Context) {
	tiers, errList := h.store.ListActiveTiers(c.Request.Context())
	if errList != nil {
		log.WithError(errList).Warn("front: list tiers failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list tiers failed"})
		return
	}

	out := make([]gin.H, 0, len(tiers))
	for i := range tiers {
		tier := &tiers[i]
		out = append(out, gin.H{
			"id":               tier.ID,
			"name":             tier.Name,
			"description":      tier.Description,
			"price_in_cents":   tier.PriceInCents,
			"currency":         tier.Currency,
			"stripe_price_id":  tier.StripePriceID,
			"prompts_included": tier.PromptsIncluded(),
			"features":         tier.DecodeFeatures(),
			"sort_order":       tier.SortOrder,
		})
	}
	c.JSON(http.StatusOK, gin.H{"tiers": out})
}

// Models returns the active models without their platform credential names.
func (h *CatalogHandler) Models(c *gin.Context) {
	rows, errList := h.store.ListActiveModels(c.Request.Context())
	if errList != nil {
		log.WithError(errList).Warn("front: list models failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list models failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"model_id":    row.ModelID,
			"name":        row.Name,
			"provider":    row.Provider,
			"description": row.Description,
			"sort_order":  row.SortOrder,
		})
	}
	c.JSON(http.StatusOK, gin.H{"models": out})
}

// Templates returns the active templates.
func (h *CatalogHandler) Templates(c *gin.Context) {
	rows, errList := h.store.ListActiveTemplates(c.Request.Context())
	if errList != nil {
		log.WithError(errList).Warn("front: list templates failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list templates failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		var defaults map[string]any
		if len(row.DefaultParams) > 0 {
			_ = json.Unmarshal(row.DefaultParams, &defaults)
		}
		out = append(out, gin.H{
			"id":             row.ID,
			"name":           row.Name,
			"description":    row.Description,
			"structure":      row.Structure,
			"default_params": defaults,
			"tier_access":    row.TierAccess,
		})
	}
	c.JSON(http.StatusOK, gin.H{"templates": out})
}

// Prompts returns the caller's generation history, newest first.
func (h *CatalogHandler) Prompts(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, errParse := strconv.Atoi(raw)
		if errParse != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	rows, errList := h.store.ListPrompts(c.Request.Context(), auth.UserID(c), limit)
	if errList != nil {
		log.WithError(errList).Warn("front: list prompts failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list prompts failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":            row.ID,
			"template_type": row.TemplateType,
			"model_id":      row.ModelID,
			"input_prompt":  row.InputPrompt,
			"output_text":   row.OutputText,
			"platform_key":  row.PlatformKey,
			"created_at":    row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"prompts": out})
}
