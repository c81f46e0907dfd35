package logging

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func TestSetup_WritesToRotatedFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "server.log")
	closer, err := Setup(Options{Level: "debug", File: file})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	t.Cleanup(func() {
		_ = closer.Close()
		log.SetOutput(os.Stderr)
	})

	if log.GetLevel() != log.DebugLevel {
		t.Fatalf("expected debug level, got %s", log.GetLevel())
	}
	log.Info("hello from test")

	data, errRead := os.ReadFile(file)
	if errRead != nil {
		t.Fatalf("read log file: %v", errRead)
	}
	if len(data) == 0 {
		t.Fatalf("expected log output in %s", file)
	}
}

func TestSetup_InvalidLevelFallsBackToInfo(t *testing.T) {
	closer, err := Setup(Options{Level: "loud"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	_ = closer.Close()
	if log.GetLevel() != log.InfoLevel {
		t.Fatalf("expected info level, got %s", log.GetLevel())
	}
}

func TestGinLogger_PassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(GinLogger())
	engine.GET("/ping", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rec.Code)
	}
}
