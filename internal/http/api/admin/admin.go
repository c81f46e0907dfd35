package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/promptarchitect/server/internal/config"
	handlers "github.com/promptarchitect/server/internal/http/api/admin/handlers"
	"github.com/promptarchitect/server/internal/http/api/admin/permissions"
	"github.com/promptarchitect/server/internal/models"
	"github.com/promptarchitect/server/internal/security"
	"gorm.io/gorm"
)

// RegisterAdminRoutes registers admin routes, middleware, and handlers.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig) {
	if r == nil || db == nil {
		return
	}

	adminGroup := r.Group("/v0/admin")

	authHandler := handlers.NewAuthHandler(db, jwtCfg)
	adminGroup.POST("/login", authHandler.Login)

	selfAuthed := adminGroup.Group("")
	selfAuthed.Use(adminAuthMiddleware(db, jwtCfg))

	mfaHandler := handlers.NewMFAHandler(db)
	selfAuthed.GET("/mfa/status", mfaHandler.Status)
	selfAuthed.POST("/mfa/totp/prepare", mfaHandler.PrepareTOTP)
	selfAuthed.POST("/mfa/totp/confirm", mfaHandler.ConfirmTOTP)
	selfAuthed.POST("/mfa/totp/disable", mfaHandler.DisableTOTP)

	authed := adminGroup.Group("")
	authed.Use(adminAuthMiddleware(db, jwtCfg))
	authed.Use(adminPermissionMiddleware())

	modelHandler := handlers.NewModelHandler(db)
	authed.GET("/models", modelHandler.List)
	authed.POST("/models", modelHandler.Create)
	authed.PUT("/models/:id", modelHandler.Update)
	authed.POST("/models/:id/enable", modelHandler.Enable)
	authed.POST("/models/:id/disable", modelHandler.Disable)

	templateHandler := handlers.NewTemplateHandler(db)
	authed.GET("/templates", templateHandler.List)
	authed.POST("/templates", templateHandler.Create)
	authed.PUT("/templates/:id", templateHandler.Update)
	authed.DELETE("/templates/:id", templateHandler.Delete)

	tierHandler := handlers.NewTierHandler(db)
	authed.GET("/tiers", tierHandler.List)
	authed.POST("/tiers", tierHandler.Create)
	authed.PUT("/tiers/:id", tierHandler.Update)

	subscriptionHandler := handlers.NewSubscriptionHandler(db)
	authed.GET("/subscriptions", subscriptionHandler.List)
	authed.POST("/subscriptions/:user_id/reset-usage", subscriptionHandler.ResetUsage)

	webhookEventHandler := handlers.NewWebhookEventHandler(db)
	authed.GET("/webhook-events", webhookEventHandler.List)

	adminHandler := handlers.NewAdminHandler(db)
	authed.GET("/admins", adminHandler.List)
	authed.POST("/admins", adminHandler.Create)
	authed.POST("/admins/:id/disable", adminHandler.Disable)
	authed.POST("/admins/:id/enable", adminHandler.Enable)
	authed.PUT("/admins/:id/password", adminHandler.ChangePassword)
	authed.PUT("/admins/:id/permissions", adminHandler.UpdatePermissions)

	permissionHandler := handlers.NewPermissionHandler()
	authed.GET("/permissions", permissionHandler.List)
}

// adminAuthMiddleware validates admin JWTs and loads admin context.
func adminAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseAdminToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var admin models.Admin
		if errFind := db.WithContext(c.Request.Context()).First(&admin, claims.AdminID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return
		}
		if !admin.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin disabled"})
			return
		}

		adminPermissions := permissions.ParsePermissions(admin.Permissions)
		c.Set("adminID", admin.ID)
		c.Set("adminUsername", admin.Username)
		c.Set("adminPermissions", adminPermissions)
		c.Set("adminIsSuperAdmin", admin.IsSuperAdmin)
		c.Next()
	}
}

// adminPermissionMiddleware enforces the route permission of non-super admins.
func adminPermissionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool("adminIsSuperAdmin") {
			c.Next()
			return
		}
		key := permissions.Key(c.Request.Method, c.FullPath())
		if !permissions.IsDefined(key) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		var granted []string
		if raw, ok := c.Get("adminPermissions"); ok {
			granted, _ = raw.([]string)
		}
		if !permissions.HasPermission(granted, key) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
