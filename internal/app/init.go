package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/promptarchitect/server/internal/config"
	"github.com/promptarchitect/server/internal/db"
	"github.com/promptarchitect/server/internal/models"
	"github.com/promptarchitect/server/internal/security"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// minAdminPasswordLength bounds the first admin password.
const minAdminPasswordLength = 8

// InitRequest contains parameters for initial system setup.
type InitRequest struct {
	DatabaseType     string `json:"database_type"`
	DatabaseHost     string `json:"database_host"`
	DatabasePort     int    `json:"database_port"`
	DatabaseUser     string `json:"database_user"`
	DatabasePassword string `json:"database_password"`
	DatabaseName     string `json:"database_name"`
	DatabasePath     string `json:"database_path"`
	DatabaseSSLMode  string `json:"database_ssl_mode"`
	AuthJWTSecret    string `json:"auth_jwt_secret"`
	AuthJWKSURL      string `json:"auth_jwks_url"`
	AdminUsername    string `json:"admin_username" binding:"required"`
	AdminPassword    string `json:"admin_password" binding:"required"`
}

// InitStatusResponse reports whether initialization is complete.
type InitStatusResponse struct {
	Initialized bool `json:"initialized"`
}

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return false
	}
	return true
}

// BuildDSN builds a database DSN from the init request.
func BuildDSN(req InitRequest) (string, error) {
	switch strings.ToLower(strings.TrimSpace(req.DatabaseType)) {
	case "", "postgres":
		sslMode := req.DatabaseSSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			req.DatabaseUser,
			req.DatabasePassword,
			req.DatabaseHost,
			req.DatabasePort,
			req.DatabaseName,
			sslMode,
		), nil
	case "sqlite":
		return db.BuildSQLiteDSN(req.DatabasePath), nil
	default:
		return "", fmt.Errorf("unsupported database type")
	}
}

// TestDatabaseConnection validates that the DSN can connect and ping.
func TestDatabaseConnection(dsn string) error {
	conn, err := db.Open(dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql db: %w", err)
	}
	defer func() {
		if errClose := sqlDB.Close(); errClose != nil {
			log.Errorf("sql db close error: %v", errClose)
		}
	}()
	return sqlDB.Ping()
}

// validateInitRequest normalizes and validates init input data.
func validateInitRequest(req *InitRequest) error {
	dbType := strings.ToLower(strings.TrimSpace(req.DatabaseType))
	if dbType == "" {
		dbType = "postgres"
	}
	req.DatabaseType = dbType

	switch dbType {
	case "postgres":
		if strings.TrimSpace(req.DatabaseHost) == "" {
			return fmt.Errorf("Database host is required")
		}
		if req.DatabasePort <= 0 {
			return fmt.Errorf("Invalid database port")
		}
		if strings.TrimSpace(req.DatabaseUser) == "" {
			return fmt.Errorf("Database username is required")
		}
		if strings.TrimSpace(req.DatabaseName) == "" {
			return fmt.Errorf("Database name is required")
		}
		if strings.TrimSpace(req.DatabasePassword) == "" {
			return fmt.Errorf("Database password is required")
		}
	case "sqlite":
		if strings.TrimSpace(req.DatabasePath) == "" {
			req.DatabasePath = db.DefaultSQLitePath
		}
	default:
		return fmt.Errorf("Unsupported database type")
	}

	req.AuthJWTSecret = strings.TrimSpace(req.AuthJWTSecret)
	req.AuthJWKSURL = strings.TrimSpace(req.AuthJWKSURL)
	if req.AuthJWTSecret == "" && req.AuthJWKSURL == "" {
		return fmt.Errorf("User auth JWT secret or JWKS URL is required")
	}
	return validateAdminCredentials(req.AdminUsername, req.AdminPassword)
}

// validateAdminCredentials checks the first admin's username and password.
func validateAdminCredentials(username, password string) error {
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("Admin username is required")
	}
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("Admin password is required")
	}
	if len(password) < minAdminPasswordLength {
		return fmt.Errorf("Password must be at least %d characters", minAdminPasswordLength)
	}
	return nil
}

// configFile maps YAML fields for the generated config file.
type configFile struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	DatabaseDSN      string        `yaml:"database-dsn"`
	Debug            bool          `yaml:"debug"`
	LoggingToFile    bool          `yaml:"logging-to-file"`
	KeyEncryptionKey string        `yaml:"key-encryption-key"`
	JWT              jwtCfg        `yaml:"jwt"`
	Auth             authCfg       `yaml:"auth"`
	RateLimit        rateLimitCfg  `yaml:"rate-limit"`
	Stripe           stripeCfgFile `yaml:"stripe"`
}

// jwtCfg holds admin JWT settings for the generated config file.
type jwtCfg struct {
	Secret string `yaml:"secret"`
	Expiry string `yaml:"expiry"`
}

// authCfg holds user token settings for the generated config file.
type authCfg struct {
	JWTSecret string `yaml:"jwt-secret,omitempty"`
	JWKSURL   string `yaml:"jwks-url,omitempty"`
}

type rateLimitCfg struct {
	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"`
}

// stripeCfgFile leaves Stripe credentials for the operator to fill in.
type stripeCfgFile struct {
	SecretKey     string `yaml:"secret-key"`
	WebhookSecret string `yaml:"webhook-secret"`
	AppURL        string `yaml:"app-url"`
	FreeTierID    string `yaml:"free-tier-id"`
}

// generateJWTSecret creates a random JWT secret string.
func generateJWTSecret() string {
	secret, err := security.GenerateRandomString(32)
	if err != nil {
		return "change-me-to-a-secure-random-string"
	}
	return secret
}

// WriteConfigFile writes the initial config file to disk.
func WriteConfigFile(configPath string, dsn string, port int, auth InitRequest) error {
	encryptionKey, errKey := security.GenerateEncryptionKey()
	if errKey != nil {
		return fmt.Errorf("generate key encryption key: %w", errKey)
	}
	cfg := configFile{
		Port:             port,
		DatabaseDSN:      dsn,
		KeyEncryptionKey: encryptionKey,
		JWT: jwtCfg{
			Secret: generateJWTSecret(),
			Expiry: "720h",
		},
		Auth: authCfg{
			JWTSecret: auth.AuthJWTSecret,
			JWKSURL:   auth.AuthJWKSURL,
		},
		RateLimit: rateLimitCfg{
			Limit:  20,
			Window: "1m",
		},
		Stripe: stripeCfgFile{
			AppURL:     "http://localhost:3000",
			FreeTierID: models.FreeTierID,
		},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if errMkdir := os.MkdirAll(dir, 0755); errMkdir != nil {
		return fmt.Errorf("create config dir: %w", errMkdir)
	}

	if errWrite := os.WriteFile(configPath, data, 0600); errWrite != nil {
		return fmt.Errorf("write config file: %w", errWrite)
	}

	return nil
}

// CreateAdminUser opens the database, migrates it, and creates the first admin.
func CreateAdminUser(dsn string, username, password string) error {
	conn, err := db.Open(dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close(conn) }()

	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return fmt.Errorf("migrate database: %w", errMigrate)
	}
	return CreateAdminUserWithConn(conn, username, password)
}

// CreateAdminUserWithConn creates a super admin.
func CreateAdminUserWithConn(conn *gorm.DB, username, password string) error {
	if conn == nil {
		return fmt.Errorf("open database: nil connection")
	}

	hashedPassword, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("hash password: %w", errHash)
	}

	now := nowUTC()
	admin := models.Admin{
		Username:     strings.TrimSpace(username),
		Password:     hashedPassword,
		Active:       true,
		IsSuperAdmin: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if errCreate := conn.Create(&admin).Error; errCreate != nil {
		return fmt.Errorf("create admin: %w", errCreate)
	}
	return nil
}

// HasAdminInitialized reports whether an admin account exists. A missing table counts as none.
func HasAdminInitialized(conn *gorm.DB) (bool, error) {
	if conn == nil {
		return false, fmt.Errorf("open database: nil connection")
	}
	if !conn.Migrator().HasTable(&models.Admin{}) {
		return false, nil
	}
	var count int64
	if errCount := conn.Model(&models.Admin{}).Count(&count).Error; errCount != nil {
		return false, fmt.Errorf("count admins: %w", errCount)
	}
	return count > 0, nil
}

// EnsureAdminUser creates a super admin unless one with the username exists.
func EnsureAdminUser(conn *gorm.DB, username, password string) (bool, error) {
	if conn == nil {
		return false, fmt.Errorf("open database: nil connection")
	}
	username = strings.TrimSpace(username)
	var existing models.Admin
	errFind := conn.Where("username = ?", username).First(&existing).Error
	if errFind == nil {
		return false, nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("query admin: %w", errFind)
	}
	if errValidate := validateAdminCredentials(username, password); errValidate != nil {
		return false, errValidate
	}
	if errCreate := CreateAdminUserWithConn(conn, username, password); errCreate != nil {
		return false, errCreate
	}
	return true, nil
}

// ErrInitCompleted signals that initialization finished and the server should restart.
var ErrInitCompleted = fmt.Errorf("init completed")

// registerInitRoutes exposes init status and first-admin setup on the main server.
func registerInitRoutes(engine *gin.Engine, conn *gorm.DB, initState *atomic.Bool, dsn string) {
	engine.GET("/v0/init/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, InitStatusResponse{Initialized: initState.Load()})
	})
	engine.GET("/v0/init/prefill", func(c *gin.Context) {
		prefill, errPrefill := initPrefillFromDSN(dsn)
		if errPrefill != nil {
			c.JSON(http.StatusOK, gin.H{"locked": true})
			return
		}
		c.JSON(http.StatusOK, struct {
			Locked bool `json:"locked"`
			initPrefill
		}{Locked: true, initPrefill: prefill})
	})
	engine.POST("/v0/init/setup", func(c *gin.Context) {
		if ok, errInit := HasAdminInitialized(conn); errInit != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "check admin status failed"})
			return
		} else if ok {
			initState.Store(true)
			c.JSON(http.StatusBadRequest, gin.H{"error": "System already initialized"})
			return
		}

		var req InitRequest
		if errBind := c.ShouldBindJSON(&req); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errBind.Error()})
			return
		}
		if errValidate := validateAdminCredentials(req.AdminUsername, req.AdminPassword); errValidate != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
			return
		}

		if errAdmin := CreateAdminUserWithConn(conn, req.AdminUsername, req.AdminPassword); errAdmin != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create admin: %v", errAdmin)})
			return
		}
		initState.Store(true)
		c.JSON(http.StatusOK, gin.H{"message": "Initialization successful"})
	})
}

// RunInitServer starts the headless initialization server when config is missing.
func RunInitServer(ctx context.Context, cfg config.AppConfig, port int) error {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware(nil))

	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	initDone := make(chan struct{})
	registerInitServerRoutes(engine, configPath, port, initDone)

	addr := fmt.Sprintf(":%d", port)
	log.Infof("starting init server on %s (config not found at %s)", addr, configPath)

	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-initDone:
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("init server shutdown error: %v", errShutdown)
		}
	}()

	if errListen := srv.ListenAndServe(); errListen != nil && errListen != http.ErrServerClosed {
		return errListen
	}

	select {
	case <-initDone:
		return ErrInitCompleted
	default:
		return nil
	}
}

// registerInitServerRoutes wires the setup endpoints that write the config file.
func registerInitServerRoutes(engine *gin.Engine, configPath string, port int, initDone chan struct{}) {
	engine.GET("/v0/init/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, InitStatusResponse{Initialized: ConfigExists(configPath)})
	})

	engine.POST("/v0/init/setup", func(c *gin.Context) {
		if ConfigExists(configPath) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "System already initialized"})
			return
		}

		var req InitRequest
		if errBind := c.ShouldBindJSON(&req); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errBind.Error()})
			return
		}
		if errValidate := validateInitRequest(&req); errValidate != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
			return
		}

		dsn, errBuild := BuildDSN(req)
		if errBuild != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errBuild.Error()})
			return
		}
		if errTest := TestDatabaseConnection(dsn); errTest != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Database connection failed: %v", errTest)})
			return
		}
		if errWrite := WriteConfigFile(configPath, dsn, port, req); errWrite != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to write config: %v", errWrite)})
			return
		}
		if errAdmin := CreateAdminUser(dsn, req.AdminUsername, req.AdminPassword); errAdmin != nil {
			if errRemove := os.Remove(configPath); errRemove != nil {
				log.Errorf("remove config file error: %v", errRemove)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create admin: %v", errAdmin)})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Initialization successful"})

		go func() {
			time.Sleep(500 * time.Millisecond)
			close(initDone)
		}()
	})

	engine.NoRoute(func(c *gin.Context) {
		if ConfigExists(configPath) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "System initializing, please restart the server"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "System not initialized, POST /v0/init/setup"})
	})
}
