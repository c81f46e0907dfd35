package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/promptarchitect/server/internal/models"
	"github.com/tidwall/gjson"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var templateIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// TemplateHandler manages prompt templates.
type TemplateHandler struct {
	db *gorm.DB
}

// NewTemplateHandler constructs a TemplateHandler.
func NewTemplateHandler(db *gorm.DB) *TemplateHandler {
	return &TemplateHandler{db: db}
}

type createTemplateRequest struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Structure     string          `json:"structure"`
	DefaultParams json.RawMessage `json:"default_params"`
	TierAccess    string          `json:"tier_access"`
	SortOrder     int             `json:"sort_order"`
	IsActive      *bool           `json:"is_active"`
}

// Create inserts a template.
func (h *TemplateHandler) Create(c *gin.Context) {
	var body createTemplateRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	id := strings.ToLower(strings.TrimSpace(body.ID))
	if !templateIDPattern.MatchString(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid template id"})
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	if strings.TrimSpace(body.Structure) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "structure is required"})
		return
	}
	params, okParams := normalizeDefaultParams(body.DefaultParams)
	if !okParams {
		c.JSON(http.StatusBadRequest, gin.H{"error": "default_params must be a JSON object"})
		return
	}

	ctx := c.Request.Context()
	var count int64
	if errCount := h.db.WithContext(ctx).Model(&models.SupportedTemplate{}).Where("id = ?", id).Count(&count).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "template already exists"})
		return
	}

	now := time.Now().UTC()
	row := models.SupportedTemplate{
		ID:            id,
		Name:          strings.TrimSpace(body.Name),
		Description:   strings.TrimSpace(body.Description),
		Structure:     body.Structure,
		DefaultParams: params,
		TierAccess:    strings.TrimSpace(body.TierAccess),
		SortOrder:     body.SortOrder,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if errCreate := h.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create template failed"})
		return
	}
	if body.IsActive != nil && !*body.IsActive {
		if errUpdate := h.db.WithContext(ctx).Model(&models.SupportedTemplate{}).
			Where("id = ?", id).
			Update("is_active", false).Error; errUpdate != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create template failed"})
			return
		}
		row.IsActive = false
	}
	c.JSON(http.StatusCreated, formatTemplate(&row))
}

// List returns every template, active or not.
func (h *TemplateHandler) List(c *gin.Context) {
	var rows []models.SupportedTemplate
	if errFind := h.db.WithContext(c.Request.Context()).
		Order("sort_order ASC, id ASC").
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list templates failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatTemplate(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"templates": out})
}

type updateTemplateRequest struct {
	Name          *string         `json:"name"`
	Description   *string         `json:"description"`
	Structure     *string         `json:"structure"`
	DefaultParams json.RawMessage `json:"default_params"`
	TierAccess    *string         `json:"tier_access"`
	SortOrder     *int            `json:"sort_order"`
	IsActive      *bool           `json:"is_active"`
}

// Update applies partial template updates.
func (h *TemplateHandler) Update(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body updateTemplateRequest
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
	if body.Structure != nil {
		if strings.TrimSpace(*body.Structure) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "structure cannot be empty"})
			return
		}
		updates["structure"] = *body.Structure
	}
	if len(body.DefaultParams) > 0 {
		params, okParams := normalizeDefaultParams(body.DefaultParams)
		if !okParams {
			c.JSON(http.StatusBadRequest, gin.H{"error": "default_params must be a JSON object"})
			return
		}
		updates["default_params"] = params
	}
	if body.TierAccess != nil {
		updates["tier_access"] = strings.TrimSpace(*body.TierAccess)
	}
	if body.SortOrder != nil {
		updates["sort_order"] = *body.SortOrder
	}
	if body.IsActive != nil {
		updates["is_active"] = *body.IsActive
	}

	ctx := c.Request.Context()
	res := h.db.WithContext(ctx).Model(&models.SupportedTemplate{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update template failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	var row models.SupportedTemplate
	if errFind := h.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, formatTemplate(&row))
}

// Delete removes a template. History rows keep the template id as text.
func (h *TemplateHandler) Delete(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).Where("id = ?", id).Delete(&models.SupportedTemplate{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete template failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// normalizeDefaultParams accepts an empty value or a JSON object.
func normalizeDefaultParams(raw json.RawMessage) (datatypes.JSON, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return datatypes.JSON([]byte(`{}`)), true
	}
	if !gjson.Valid(trimmed) || !gjson.Parse(trimmed).IsObject() {
		return nil, false
	}
	return datatypes.JSON([]byte(trimmed)), true
}

func formatTemplate(row *models.SupportedTemplate) gin.H {
	params := map[string]any{}
	if len(row.DefaultParams) > 0 {
		_ = json.Unmarshal(row.DefaultParams, &params)
	}
	return gin.H{
		"id":             row.ID,
		"name":           row.Name,
		"description":    row.Description,
		"structure":      row.Structure,
		"default_params": params,
		"tier_access":    row.TierAccess,
		"sort_order":     row.SortOrder,
		"is_active":      row.IsActive,
		"created_at":     row.CreatedAt,
		"updated_at":     row.UpdatedAt,
	}
}
