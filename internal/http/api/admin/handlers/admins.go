package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	dbutil "github.com/promptarchitect/server/internal/db"
	"github.com/promptarchitect/server/internal/http/api/admin/permissions"
	"github.com/promptarchitect/server/internal/models"
	"github.com/promptarchitect/server/internal/security"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AdminHandler manages operator accounts.
type AdminHandler struct {
	db *gorm.DB
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(db *gorm.DB) *AdminHandler {
	return &AdminHandler{db: db}
}

// createAdminRequest defines the request body for admin creation.
type createAdminRequest struct {
	Username    string   `json:"username"`
	Password    string   `json:"password"`
	Permissions []string `json:"permissions"`
}

// Create adds a non-super admin with the given permissions.
func (h *AdminHandler) Create(c *gin.Context) {
	var body createAdminRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username"})
		return
	}
	password := strings.TrimSpace(body.Password)
	if password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing password"})
		return
	}
	rawPerms, errPerms := encodePermissions(body.Permissions)
	if errPerms != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errPerms.Error()})
		return
	}

	ctx := c.Request.Context()
	var count int64
	if errCount := h.db.WithContext(ctx).Model(&models.Admin{}).Where("username = ?", username).Count(&count).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
		return
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}
	now := time.Now().UTC()
	admin := models.Admin{
		Username:    username,
		Password:    hash,
		Active:      true,
		Permissions: rawPerms,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if errCreate := h.db.WithContext(ctx).Create(&admin).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create admin failed"})
		return
	}
	c.JSON(http.StatusCreated, formatAdmin(&admin))
}

// List returns admins with an optional username search.
func (h *AdminHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&models.Admin{})
	if searchQ := strings.TrimSpace(c.Query("search")); searchQ != "" {
		pattern := dbutil.NormalizeLikePattern(h.db, "%"+searchQ+"%")
		q = q.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "username"), pattern)
	}
	var rows []models.Admin
	if errFind := q.Order("id ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list admins failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatAdmin(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"admins": out})
}

// Disable deactivates an admin. Super admins and the caller cannot be disabled.
func (h *AdminHandler) Disable(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if current, ok := c.Get("adminID"); ok {
		if currentID, okID := current.(uint64); okID && currentID == id {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot disable yourself"})
			return
		}
	}
	res := h.db.WithContext(c.Request.Context()).Model(&models.Admin{}).
		Where("id = ? AND is_super_admin = ?", id, false).
		Updates(map[string]any{"active": false, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "disable failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Enable reactivates an admin.
func (h *AdminHandler) Enable(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).Model(&models.Admin{}).
		Where("id = ?", id).
		Updates(map[string]any{"active": true, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enable failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// changePasswordRequest defines the request body for password changes.
type changePasswordRequest struct {
	Password string `json:"password"`
}

// ChangePassword updates an admin's password.
func (h *AdminHandler) ChangePassword(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body changePasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	password := strings.TrimSpace(body.Password)
	if password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing password"})
		return
	}
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).Model(&models.Admin{}).
		Where("id = ?", id).
		Updates(map[string]any{"password": hash, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update password failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type updatePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

// UpdatePermissions replaces the permission list of an admin.
func (h *AdminHandler) UpdatePermissions(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body updatePermissionsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	rawPerms, errPerms := encodePermissions(body.Permissions)
	if errPerms != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errPerms.Error()})
		return
	}
	res := h.db.WithContext(c.Request.Context()).Model(&models.Admin{}).
		Where("id = ?", id).
		Updates(map[string]any{"permissions": rawPerms, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update permissions failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"permissions": permissions.ParsePermissions(rawPerms)})
}

func encodePermissions(perms []string) (datatypes.JSON, error) {
	if errValidate := permissions.ValidatePermissions(perms); errValidate != nil {
		return nil, errValidate
	}
	raw, errMarshal := permissions.MarshalPermissions(perms)
	if errMarshal != nil {
		return nil, errMarshal
	}
	return datatypes.JSON(raw), nil
}

func formatAdmin(a *models.Admin) gin.H {
	return gin.H{
		"id":             a.ID,
		"username":       a.Username,
		"active":         a.Active,
		"is_super_admin": a.IsSuperAdmin,
		"totp_enabled":   strings.TrimSpace(a.TOTPSecret) != "",
		"permissions":    permissions.ParsePermissions(a.Permissions),
		"last_login_at":  a.LastLoginAt,
		"created_at":     a.CreatedAt,
		"updated_at":     a.UpdatedAt,
	}
}
