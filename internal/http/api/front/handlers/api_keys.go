package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/promptarchitect/server/internal/apikeys"
	"github.com/promptarchitect/server/internal/auth"
	log "github.com/sirupsen/logrus"
)

// APIKeyHandler manages the caller's personal provider keys.
type APIKeyHandler struct {
	keys *apikeys.Service
}

// NewAPIKeyHandler constructs an APIKeyHandler.
func NewAPIKeyHandler(keys *apikeys.Service) *APIKeyHandler {
	return &APIKeyHandler{keys: keys}
}

type saveAPIKeyRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}

// List returns which providers have a stored key, plus the key hints.
func (h *APIKeyHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	userID := auth.UserID(c)

	status, errStatus := h.keys.Status(ctx, userID)
	if errStatus != nil {
		log.WithError(errStatus).Warn("front: load api key status failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list api keys failed"})
		return
	}
	infos, errList := h.keys.List(ctx, userID)
	if errList != nil {
		log.WithError(errList).Warn("front: list api keys failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list api keys failed"})
		return
	}

	keys := make([]gin.H, 0, len(infos))
	for _, info := range infos {
		keys = append(keys, gin.H{
			"provider":   info.Provider,
			"hint":       info.Hint,
			"updated_at": info.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "keys": keys})
}

// Save stores or replaces the key for :provider.
func (h *APIKeyHandler) Save(c *gin.Context) {
	var body saveAPIKeyRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api_key is required"})
		return
	}

	providerTag := strings.TrimSpace(c.Param("provider"))
	errSave := h.keys.Save(c.Request.Context(), auth.UserID(c), providerTag, body.APIKey)
	switch {
	case errors.Is(errSave, apikeys.ErrInvalidKey), errors.Is(errSave, apikeys.ErrUnknownProvider):
		c.JSON(http.StatusBadRequest, gin.H{"error": errSave.Error()})
		return
	case errSave != nil:
		log.WithError(errSave).WithField("provider", providerTag).Warn("front: save api key failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save api key failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes the key for :provider. Deleting a missing key succeeds.
func (h *APIKeyHandler) Delete(c *gin.Context) {
	providerTag := strings.TrimSpace(c.Param("provider"))
	errDelete := h.keys.Delete(c.Request.Context(), auth.UserID(c), providerTag)
	switch {
	case errors.Is(errDelete, apikeys.ErrUnknownProvider):
		c.JSON(http.StatusBadRequest, gin.H{"error": errDelete.Error()})
		return
	case errDelete != nil:
		log.WithError(errDelete).WithField("provider", providerTag).Warn("front: delete api key failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete api key failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
