package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls the global logrus setup.
type Options struct {
	Level  string
	File   string // Rotated log file; empty logs to stderr only.
	Stderr bool   // Also write to stderr when File is set.
}

// Setup configures the global logrus logger and returns a closer for the file sink.
func Setup(opts Options) (io.Closer, error) {
	level, errLevel := log.ParseLevel(strings.TrimSpace(opts.Level))
	if errLevel != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	file := strings.TrimSpace(opts.File)
	if file == "" {
		log.SetOutput(os.Stderr)
		return io.NopCloser(nil), nil
	}
	if errMkdir := os.MkdirAll(filepath.Dir(file), 0o755); errMkdir != nil {
		return nil, errMkdir
	}

	rotator := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	}
	if opts.Stderr {
		log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	} else {
		log.SetOutput(rotator)
	}
	return rotator, nil
}

// GinLogger logs one line per request through logrus.
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := log.WithFields(log.Fields{
			"status":  status,
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"latency": time.Since(start).Round(time.Millisecond).String(),
			"ip":      c.ClientIP(),
		})
		if userID := c.GetString("userID"); userID != "" {
			entry = entry.WithField("user_id", userID)
		}
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}
		switch {
		case status >= 500:
			entry.Error("http request")
		case status >= 400:
			entry.Warn("http request")
		default:
			entry.Debug("http request")
		}
	}
}
