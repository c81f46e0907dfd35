// Package front registers the user-facing HTTP API.
package front

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/promptarchitect/server/internal/apikeys"
	"github.com/promptarchitect/server/internal/auth"
	"github.com/promptarchitect/server/internal/http/api/front/handlers"
	"github.com/promptarchitect/server/internal/ratelimit"
	"github.com/promptarchitect/server/internal/store"
	"gorm.io/gorm"
)

// Dependencies carries the services the front routes use.
type Dependencies struct {
	DB         *gorm.DB
	Store      *store.Store
	Generator  handlers.Generator
	Keys       *apikeys.Service
	Payments   handlers.CheckoutProvider // Nil disables checkout and portal.
	Reconciler handlers.EventApplier
	Verifier   auth.TokenVerifier

	RateLimiter *ratelimit.Manager
	RateLimits  ratelimit.LimitFunc

	WebhookSecret string
	AppURL        string
	FreeTierID    string
}

// RegisterFrontRoutes registers /healthz and the /v1 API.
func RegisterFrontRoutes(r *gin.Engine, deps Dependencies) {
	if r == nil || deps.DB == nil || deps.Store == nil {
		return
	}

	r.GET("/healthz", healthz(deps.DB))

	v1 := r.Group("/v1")

	catalogHandler := handlers.NewCatalogHandler(deps.Store)
	v1.GET("/tiers", catalogHandler.Tiers)
	v1.GET("/models", catalogHandler.Models)
	v1.GET("/templates", catalogHandler.Templates)

	webhookHandler := handlers.NewWebhookHandler(deps.DB, deps.Reconciler, deps.WebhookSecret)
	v1.POST("/webhooks/stripe", webhookHandler.Stripe)

	authed := v1.Group("")
	authed.Use(auth.Middleware(deps.Verifier))

	generateHandler := handlers.NewGenerateHandler(deps.Generator)
	authed.POST("/generate",
		ratelimit.Middleware(deps.RateLimiter, "generate", deps.RateLimits, auth.UserID),
		generateHandler.Generate,
	)

	apiKeyHandler := handlers.NewAPIKeyHandler(deps.Keys)
	authed.GET("/api-keys", apiKeyHandler.List)
	authed.PUT("/api-keys/:provider", apiKeyHandler.Save)
	authed.DELETE("/api-keys/:provider", apiKeyHandler.Delete)

	subscriptionHandler := handlers.NewSubscriptionHandler(deps.Store, deps.Keys, deps.FreeTierID)
	authed.GET("/subscription", subscriptionHandler.Get)
	authed.PUT("/settings/byok", subscriptionHandler.UpdateBYOK)

	billingHandler := handlers.NewBillingHandler(deps.Store, deps.Payments, deps.AppURL, deps.FreeTierID)
	authed.POST("/billing/checkout", billingHandler.Checkout)
	authed.POST("/billing/portal", billingHandler.Portal)

	authed.GET("/prompts", catalogHandler.Prompts)
}

func healthz(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, errDB := db.DB()
		if errDB != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		if errPing := sqlDB.PingContext(c.Request.Context()); errPing != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
