package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/promptarchitect/server/internal/models"
	"github.com/promptarchitect/server/internal/provider"
	"gorm.io/gorm"
)

// ModelHandler manages the model catalog.
type ModelHandler struct {
	db *gorm.DB // Database handle for catalog rows.
}

// NewModelHandler constructs a model handler.
func NewModelHandler(db *gorm.DB) *ModelHandler {
	return &ModelHandler{db: db}
}

// createModelRequest captures the payload for creating a catalog model.
type createModelRequest struct {
	ModelID     string `json:"model_id"`    // Upstream model identifier.
	Name        string `json:"name"`        // Display name.
	Provider    string `json:"provider"`    // Provider tag or alias.
	Description string `json:"description"` // Catalog description.
	Endpoint    string `json:"endpoint"`    // Optional endpoint override.
	EnvKey      string `json:"env_key"`     // Env name of the platform credential.
	SortOrder   int    `json:"sort_order"`  // Display ordering weight.
	IsActive    *bool  `json:"is_active"`   // Optional active flag.
}

// Create validates input and inserts a catalog model.
func (h *ModelHandler) Create(c *gin.Context) {
	var body createModelRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	modelID := strings.TrimSpace(body.ModelID)
	if modelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model_id is required"})
		return
	}
	if !provider.IsSupported(body.Provider) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported provider"})
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		name = modelID
	}
	isActive := true
	if body.IsActive != nil {
		isActive = *body.IsActive
	}

	ctx := c.Request.Context()
	now := time.Now().UTC()
	row := models.SupportedModel{
		ModelID:     modelID,
		Name:        name,
		Provider:    provider.NormalizeTag(body.Provider),
		Description: strings.TrimSpace(body.Description),
		Endpoint:    strings.TrimSpace(body.Endpoint),
		EnvKey:      strings.TrimSpace(body.EnvKey),
		SortOrder:   body.SortOrder,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if errCreate := h.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create model failed"})
		return
	}
	// A false default-tagged bool is skipped on insert.
	if !isActive {
		if errUpdate := h.db.WithContext(ctx).Model(&models.SupportedModel{}).
			Where("id = ?", row.ID).
			Update("is_active", false).Error; errUpdate != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create model failed"})
			return
		}
		row.IsActive = false
	}
	c.JSON(http.StatusCreated, formatModel(&row))
}

// List returns catalog models filtered by query parameters.
func (h *ModelHandler) List(c *gin.Context) {
	var (
		providerQ = strings.TrimSpace(c.Query("provider"))
		activeQ   = strings.TrimSpace(c.Query("is_active"))
	)

	q := h.db.WithContext(c.Request.Context()).Model(&models.SupportedModel{})
	if providerQ != "" {
		q = q.Where("provider = ?", provider.NormalizeTag(providerQ))
	}
	if activeQ != "" {
		if activeQ == "true" || activeQ == "1" {
			q = q.Where("is_active = ?", true)
		} else if activeQ == "false" || activeQ == "0" {
			q = q.Where("is_active = ?", false)
		}
	}

	var rows []models.SupportedModel
	if errFind := q.Order("sort_order ASC, id ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list models failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatModel(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"models": out})
}

// updateModelRequest captures optional fields for model updates.
type updateModelRequest struct {
	Name        *string `json:"name"`
	Provider    *string `json:"provider"`
	Description *string `json:"description"`
	Endpoint    *string `json:"endpoint"`
	EnvKey      *string `json:"env_key"`
	SortOrder   *int    `json:"sort_order"`
	IsActive    *bool   `json:"is_active"`
}

// Update validates and applies model field updates.
func (h *ModelHandler) Update(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body updateModelRequest
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
	if body.Provider != nil {
		if !provider.IsSupported(*body.Provider) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported provider"})
			return
		}
		updates["provider"] = provider.NormalizeTag(*body.Provider)
	}
	if body.Description != nil {
		updates["description"] = strings.TrimSpace(*body.Description)
	}
	if body.Endpoint != nil {
		updates["endpoint"] = strings.TrimSpace(*body.Endpoint)
	}
	if body.EnvKey != nil {
		updates["env_key"] = strings.TrimSpace(*body.EnvKey)
	}
	if body.SortOrder != nil {
		updates["sort_order"] = *body.SortOrder
	}
	if body.IsActive != nil {
		updates["is_active"] = *body.IsActive
	}

	ctx := c.Request.Context()
	res := h.db.WithContext(ctx).Model(&models.SupportedModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update model failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	var row models.SupportedModel
	if errFind := h.db.WithContext(ctx).First(&row, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, formatModel(&row))
}

// Enable activates a catalog model.
func (h *ModelHandler) Enable(c *gin.Context) {
	h.setActive(c, true)
}

// Disable deactivates a catalog model.
func (h *ModelHandler) Disable(c *gin.Context) {
	h.setActive(c, false)
}

func (h *ModelHandler) setActive(c *gin.Context, active bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).Model(&models.SupportedModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_active": active, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update model failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func formatModel(row *models.SupportedModel) gin.H {
	if row == nil {
		return gin.H{}
	}
	return gin.H{
		"id":          row.ID,
		"model_id":    row.ModelID,
		"name":        row.Name,
		"provider":    row.Provider,
		"description": row.Description,
		"endpoint":    row.Endpoint,
		"env_key":     row.EnvKey,
		"sort_order":  row.SortOrder,
		"is_active":   row.IsActive,
		"created_at":  row.CreatedAt,
		"updated_at":  row.UpdatedAt,
	}
}
