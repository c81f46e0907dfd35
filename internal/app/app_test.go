package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/promptarchitect/server/internal/config"
	"github.com/promptarchitect/server/internal/db"
)

func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	configPath := filepath.Join(dir, "config.yaml")
	dsn := db.BuildSQLiteDSN(filepath.Join(dir, "app.db"))
	if errWrite := WriteConfigFile(configPath, dsn, 8080, InitRequest{AuthJWTSecret: "user-token-secret"}); errWrite != nil {
		t.Fatalf("WriteConfigFile: %v", errWrite)
	}
	return configPath
}

func TestWriteConfigFile_LoadsBack(t *testing.T) {
	t.Setenv(config.EnvKeyEncryptionKey, "")
	t.Setenv(config.EnvAuthJWTSecret, "")
	t.Setenv(config.EnvDBConnection, "")
	configPath := writeTestConfig(t, t.TempDir())

	info, errStat := os.Stat(configPath)
	if errStat != nil {
		t.Fatalf("stat config: %v", errStat)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}

	key, errKey := config.LoadEncryptionKey(configPath)
	if errKey != nil {
		t.Fatalf("LoadEncryptionKey: %v", errKey)
	}
	if len(key) != 32 {
		t.Fatalf("expected 32-byte key, got %d", len(key))
	}
	authCfg, errAuth := config.LoadAuthConfig(configPath)
	if errAuth != nil {
		t.Fatalf("LoadAuthConfig: %v", errAuth)
	}
	if authCfg.JWTSecret != "user-token-secret" {
		t.Fatalf("unexpected auth secret %q", authCfg.JWTSecret)
	}
	jwtCfg, errJWT := config.LoadJWTConfig(configPath)
	if errJWT != nil {
		t.Fatalf("LoadJWTConfig: %v", errJWT)
	}
	if jwtCfg.Secret == "" {
		t.Fatalf("expected generated admin jwt secret")
	}
	if _, errDSN := config.LoadDatabaseDSN(configPath); errDSN != nil {
		t.Fatalf("LoadDatabaseDSN: %v", errDSN)
	}
}

func TestValidateInitRequest(t *testing.T) {
	req := InitRequest{
		DatabaseType:  "sqlite",
		AdminUsername: "admin",
		AdminPassword: "long-enough",
	}
	if errValidate := validateInitRequest(&req); errValidate == nil {
		t.Fatalf("expected missing user auth config to fail")
	}

	req.AuthJWKSURL = "https://example.supabase.co/auth/v1/.well-known/jwks.json"
	if errValidate := validateInitRequest(&req); errValidate != nil {
		t.Fatalf("validateInitRequest: %v", errValidate)
	}
	if req.DatabasePath != db.DefaultSQLitePath {
		t.Fatalf("expected default sqlite path, got %q", req.DatabasePath)
	}

	req.DatabaseType = "mysql"
	if errValidate := validateInitRequest(&req); errValidate == nil {
		t.Fatalf("expected unsupported database type to fail")
	}
}

func TestBuildFrontDependenciesAndEngine(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv(config.EnvStripeSecretKey, "")
	t.Setenv(config.EnvDBConnection, "")
	dir := t.TempDir()
	configPath := writeTestConfig(t, dir)

	serverCfg, err := config.LoadServerConfig(configPath, 8080)
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		t.Fatalf("LoadDatabaseDSN: %v", err)
	}
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(conn) })
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	deps, limiter, err := buildFrontDependencies(context.Background(), configPath, conn, serverCfg)
	if err != nil {
		t.Fatalf("buildFrontDependencies: %v", err)
	}
	t.Cleanup(func() { _ = limiter.Close() })
	if deps.Payments != nil {
		t.Fatalf("expected payments to be nil without a stripe key")
	}

	jwtCfg, err := config.LoadJWTConfig(configPath)
	if err != nil {
		t.Fatalf("LoadJWTConfig: %v", err)
	}
	var initState atomic.Bool
	engine := newEngine(serverCfg, deps, jwtCfg, &initState, dsn)

	cases := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/v1/tiers", "", http.StatusOK},
		{http.MethodPost, "/v1/generate", `{"topic":"x","modelId":"gpt-4o-mini"}`, http.StatusUnauthorized},
		{http.MethodGet, "/v0/admin/models", "", http.StatusUnauthorized},
		{http.MethodGet, "/v0/init/status", "", http.StatusOK},
		{http.MethodGet, "/nope", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, bytes.NewReader([]byte(tc.body)))
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d (%s)", tc.method, tc.path, tc.want, rec.Code, rec.Body.String())
		}
	}

	setup := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v0/init/setup", bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		return rec
	}
	if rec := setup(`{"admin_username":"root","admin_password":"short"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected short password to fail, got %d", rec.Code)
	}
	if rec := setup(`{"admin_username":"root","admin_password":"long-enough-password"}`); rec.Code != http.StatusOK {
		t.Fatalf("expected setup to succeed, got %d (%s)", rec.Code, rec.Body.String())
	}
	if !initState.Load() {
		t.Fatalf("expected init state to flip")
	}
	if rec := setup(`{"admin_username":"root2","admin_password":"long-enough-password"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected second setup to fail, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v0/admin/login", bytes.NewReader([]byte(`{"username":"root","password":"long-enough-password"}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected admin login to succeed, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(corsMiddleware([]string{"https://app.example.com/", "not-an-origin"}))
	engine.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("expected allowed origin header, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected foreign origin to be rejected, got %d", rec.Code)
	}
}
