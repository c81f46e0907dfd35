package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/promptarchitect/server/internal/apikeys"
	"github.com/promptarchitect/server/internal/auth"
	"github.com/promptarchitect/server/internal/billing"
	"github.com/promptarchitect/server/internal/config"
	"github.com/promptarchitect/server/internal/db"
	"github.com/promptarchitect/server/internal/entitlement"
	"github.com/promptarchitect/server/internal/gateway"
	adminapi "github.com/promptarchitect/server/internal/http/api/admin"
	"github.com/promptarchitect/server/internal/http/api/front"
	fronthandlers "github.com/promptarchitect/server/internal/http/api/front/handlers"
	"github.com/promptarchitect/server/internal/logging"
	"github.com/promptarchitect/server/internal/provider"
	"github.com/promptarchitect/server/internal/ratelimit"
	"github.com/promptarchitect/server/internal/security"
	"github.com/promptarchitect/server/internal/store"
	"github.com/promptarchitect/server/internal/usage"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ServerOptions carries command-line overrides for RunServer.
type ServerOptions struct {
	Port          int
	AdminUsername string // Bootstraps a super admin when no admin with this name exists.
	AdminPassword string
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(conn) }()
	return db.Migrate(conn.WithContext(ctx))
}

// RunServer boots the HTTP API with database-backed components and blocks until ctx is done.
func RunServer(ctx context.Context, cfg config.AppConfig, opts ServerOptions) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	serverCfg, err := config.LoadServerConfig(configPath, opts.Port)
	if err != nil {
		return err
	}
	logCloser, err := logging.Setup(logging.Options{
		Level:  serverCfg.LogLevel,
		File:   serverCfg.LogFile,
		Stderr: true,
	})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer func() { _ = logCloser.Close() }()

	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	defer func() {
		if errClose := db.Close(conn); errClose != nil {
			log.WithError(errClose).Warn("close database")
		}
	}()
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	if strings.TrimSpace(opts.AdminUsername) != "" {
		created, errAdmin := EnsureAdminUser(conn, opts.AdminUsername, opts.AdminPassword)
		if errAdmin != nil {
			return errAdmin
		}
		if created {
			log.WithField("username", strings.TrimSpace(opts.AdminUsername)).Info("created super admin")
		}
	}

	deps, limiter, err := buildFrontDependencies(ctx, configPath, conn, serverCfg)
	if err != nil {
		return err
	}
	defer func() { _ = limiter.Close() }()

	jwtConfig, err := config.LoadJWTConfig(configPath)
	if err != nil {
		return err
	}
	initialized, errInit := HasAdminInitialized(conn)
	if errInit != nil {
		return errInit
	}
	var initState atomic.Bool
	initState.Store(initialized)
	if !initialized {
		log.Warn("no admin account yet, POST /v0/init/setup or pass -admin-username to create one")
	}

	if !serverCfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := newEngine(serverCfg, deps, jwtConfig, &initState, dsn)

	addr := fmt.Sprintf("%s:%d", strings.TrimSpace(serverCfg.Host), serverCfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("starting server on %s (config=%s)", addr, configPath)
		if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
			serveErr <- errListen
			return
		}
		serveErr <- nil
	}()

	select {
	case errServe := <-serveErr:
		return errServe
	case <-ctx.Done():
	}

	// Drain in-flight generations.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.GenerationTimeout+5*time.Second)
	defer cancel()
	if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
		log.WithError(errShutdown).Error("server shutdown")
		return errShutdown
	}
	return <-serveErr
}

// buildFrontDependencies wires the generation pipeline, billing and auth for the front API.
func buildFrontDependencies(ctx context.Context, configPath string, conn *gorm.DB, serverCfg config.ServerConfig) (front.Dependencies, *ratelimit.Manager, error) {
	authCfg, err := config.LoadAuthConfig(configPath)
	if err != nil {
		return front.Dependencies{}, nil, err
	}
	verifier, err := auth.NewVerifier(ctx, authCfg)
	if err != nil {
		return front.Dependencies{}, nil, fmt.Errorf("init token verifier: %w", err)
	}

	encryptionKey, err := config.LoadEncryptionKey(configPath)
	if err != nil {
		return front.Dependencies{}, nil, err
	}
	cipher, err := security.NewKeyCipher(encryptionKey)
	if err != nil {
		return front.Dependencies{}, nil, err
	}

	secrets, err := config.LoadProviderSecrets(configPath)
	if err != nil {
		return front.Dependencies{}, nil, err
	}
	for _, tag := range provider.Tags() {
		if _, ok := secrets[tag]; !ok {
			log.WithField("provider", tag).Debug("no platform credential configured")
		}
	}

	stripeCfg, err := config.LoadStripeConfig(configPath)
	if err != nil {
		return front.Dependencies{}, nil, err
	}
	rateCfg, err := config.LoadRateLimitConfig(configPath)
	if err != nil {
		return front.Dependencies{}, nil, err
	}

	st := store.New(conn)
	keys := apikeys.NewService(conn, cipher)
	generator := gateway.NewService(
		st,
		entitlement.NewResolver(secrets),
		keys,
		provider.NewDispatcher(&http.Client{Timeout: serverCfg.GenerationTimeout}),
		usage.NewRecorder(conn),
		gateway.Options{
			FreeTierID: stripeCfg.FreeTierID,
			Moderation: serverCfg.ModerationEnabled(),
			Timeout:    serverCfg.GenerationTimeout,
		},
	)

	// Left nil without a Stripe key; the billing handlers then answer 503.
	var (
		payments fronthandlers.CheckoutProvider
		source   billing.SubscriptionSource
	)
	if strings.TrimSpace(stripeCfg.SecretKey) != "" {
		stripeClient, errStripe := billing.NewStripeClient(stripeCfg.SecretKey, nil)
		if errStripe != nil {
			return front.Dependencies{}, nil, errStripe
		}
		payments = stripeClient
		source = stripeClient
	} else {
		log.Warn("stripe secret key not configured, checkout and portal are disabled")
	}
	if strings.TrimSpace(stripeCfg.WebhookSecret) == "" {
		log.Warn("stripe webhook secret not configured, webhooks will be rejected")
	}

	limiter := ratelimit.NewManager(ratelimit.StaticSettings(ratelimit.SettingsFromConfig(rateCfg)), nil, nil)
	limits := ratelimit.NewLimitResolver(conn, rateCfg.Limit)

	return front.Dependencies{
		DB:            conn,
		Store:         st,
		Generator:     generator,
		Keys:          keys,
		Payments:      payments,
		Reconciler:    billing.NewReconciler(conn, source, stripeCfg.FreeTierID),
		Verifier:      verifier,
		RateLimiter:   limiter,
		RateLimits:    limits.ResolveLimit,
		WebhookSecret: stripeCfg.WebhookSecret,
		AppURL:        stripeCfg.AppURL,
		FreeTierID:    stripeCfg.FreeTierID,
	}, limiter, nil
}

// newEngine builds the gin engine with the front, admin and init routes.
func newEngine(serverCfg config.ServerConfig, deps front.Dependencies, jwtConfig config.JWTConfig, initState *atomic.Bool, dsn string) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logging.GinLogger())
	engine.Use(corsMiddleware(serverCfg.CORSOrigins))

	front.RegisterFrontRoutes(engine, deps)
	adminapi.RegisterAdminRoutes(engine, deps.DB, jwtConfig)
	registerInitRoutes(engine, deps.DB, initState, dsn)

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return engine
}

// corsMiddleware allows the configured dashboard origins, or any origin when none is set.
func corsMiddleware(origins []string) gin.HandlerFunc {
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:        24 * time.Hour,
	}
	allowAll := true
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch {
		case origin == "" || origin == "*":
			continue
		case strings.HasPrefix(origin, "http://"), strings.HasPrefix(origin, "https://"):
			corsCfg.AllowOrigins = append(corsCfg.AllowOrigins, origin)
			allowAll = false
		default:
			log.WithField("origin", origin).Warn("ignoring invalid cors origin")
		}
	}
	for _, origin := range origins {
		if strings.TrimSpace(origin) == "*" {
			allowAll = true
		}
	}
	if allowAll {
		corsCfg.AllowOrigins = nil
		corsCfg.AllowAllOrigins = true
	}
	return cors.New(corsCfg)
}

// nowUTC returns the current UTC time.
func nowUTC() time.Time { return time.Now().UTC() }
