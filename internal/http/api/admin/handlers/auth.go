package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/promptarchitect/server/internal/config"
	"github.com/promptarchitect/server/internal/models"
	"github.com/promptarchitect/server/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AuthHandler issues admin tokens.
type AuthHandler struct {
	db     *gorm.DB
	jwtCfg config.JWTConfig
	now    func() time.Time
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig) *AuthHandler {
	return &AuthHandler{db: db, jwtCfg: jwtCfg, now: time.Now}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code"`
}

// Login verifies credentials plus the TOTP code when enrolled and returns a signed token.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	if username == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing credentials"})
		return
	}

	ctx := c.Request.Context()
	var admin models.Admin
	if errFind := h.db.WithContext(ctx).Where("username = ?", username).First(&admin).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if !security.CheckPassword(admin.Password, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !admin.Active {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin disabled"})
		return
	}

	now := h.now().UTC()
	if strings.TrimSpace(admin.TOTPSecret) != "" {
		code := strings.TrimSpace(body.TOTPCode)
		if code == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "totp required", "mfa_required": true})
			return
		}
		if !security.ValidateTOTP(admin.TOTPSecret, code, now) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid totp code"})
			return
		}
	}

	token, expiresAt, errIssue := security.IssueAdminToken(h.jwtCfg.Secret, admin.ID, admin.Username, h.jwtCfg.Expiry)
	if errIssue != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	if errUpdate := h.db.WithContext(ctx).Model(&models.Admin{}).
		Where("id = ?", admin.ID).
		Update("last_login_at", now).Error; errUpdate != nil {
		log.WithError(errUpdate).Warn("admin login: update last_login_at failed")
	}

	c.JSON(http.StatusOK, gin.H{
		"token":          token,
		"expires_at":     expiresAt,
		"admin_id":       admin.ID,
		"username":       admin.Username,
		"is_super_admin": admin.IsSuperAdmin,
	})
}
