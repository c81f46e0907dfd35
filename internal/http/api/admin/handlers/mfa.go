package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/promptarchitect/server/internal/models"
	"github.com/promptarchitect/server/internal/security"
	"gorm.io/gorm"
)

// MFAHandler manages TOTP enrollment of the signed-in admin.
type MFAHandler struct {
	db  *gorm.DB
	now func() time.Time
}

// NewMFAHandler constructs an MFAHandler.
func NewMFAHandler(db *gorm.DB) *MFAHandler {
	return &MFAHandler{db: db, now: time.Now}
}

// currentAdmin loads the admin set by the auth middleware.
func (h *MFAHandler) currentAdmin(c *gin.Context) (*models.Admin, bool) {
	raw, ok := c.Get("adminID")
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	adminID, ok := raw.(uint64)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	var admin models.Admin
	if errFind := h.db.WithContext(c.Request.Context()).First(&admin, adminID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return nil, false
	}
	return &admin, true
}

// Status reports whether TOTP is enabled or pending.
func (h *MFAHandler) Status(c *gin.Context) {
	admin, ok := h.currentAdmin(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"totp_enabled": strings.TrimSpace(admin.TOTPSecret) != "",
		"totp_pending": strings.TrimSpace(admin.PendingTOTPSecret) != "",
	})
}

// PrepareTOTP generates a pending secret and returns its provisioning URL.
func (h *MFAHandler) PrepareTOTP(c *gin.Context) {
	admin, ok := h.currentAdmin(c)
	if !ok {
		return
	}
	enrollment, errGen := security.GenerateTOTP(admin.Username)
	if errGen != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate totp failed"})
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.Admin{}).
		Where("id = ?", admin.ID).
		Updates(map[string]any{"pending_totp_secret": enrollment.Secret, "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save totp failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"secret": enrollment.Secret, "url": enrollment.URL})
}

type totpCodeRequest struct {
	Code string `json:"code"`
}

// ConfirmTOTP promotes the pending secret after a valid code.
func (h *MFAHandler) ConfirmTOTP(c *gin.Context) {
	var body totpCodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	admin, ok := h.currentAdmin(c)
	if !ok {
		return
	}
	pending := strings.TrimSpace(admin.PendingTOTPSecret)
	if pending == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no pending totp enrollment"})
		return
	}
	if !security.ValidateTOTP(pending, body.Code, h.now()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid totp code"})
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.Admin{}).
		Where("id = ?", admin.ID).
		Updates(map[string]any{
			"totp_secret":         pending,
			"pending_totp_secret": "",
			"updated_at":          time.Now().UTC(),
		}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save totp failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DisableTOTP clears the secret after a valid code from the current one.
func (h *MFAHandler) DisableTOTP(c *gin.Context) {
	var body totpCodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	admin, ok := h.currentAdmin(c)
	if !ok {
		return
	}
	if strings.TrimSpace(admin.TOTPSecret) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "totp not enabled"})
		return
	}
	if !security.ValidateTOTP(admin.TOTPSecret, body.Code, h.now()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid totp code"})
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.Admin{}).
		Where("id = ?", admin.ID).
		Updates(map[string]any{
			"totp_secret":         "",
			"pending_totp_secret": "",
			"updated_at":          time.Now().UTC(),
		}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "disable totp failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
