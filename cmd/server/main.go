package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/promptarchitect/server/internal/app"
	"github.com/promptarchitect/server/internal/config"

	log "github.com/sirupsen/logrus"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if errRun := run(ctx, os.Args[1:]); errRun != nil {
		log.WithError(errRun).Error("command failed")
		os.Exit(1)
	}
}

// run parses flags, loads config, and starts the init or main server.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	port := fs.Int("port", 8080, "server port (used when the config omits one)")
	adminUsername := fs.String("admin-username", "", "create a super admin with this username if missing")
	adminPassword := fs.String("admin-password", "", "password for -admin-username")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}

	if errValidate := validatePort(*port); errValidate != nil {
		return errValidate
	}
	if strings.TrimSpace(*adminUsername) != "" && *adminPassword == "" {
		return fmt.Errorf("-admin-password is required with -admin-username")
	}

	appCfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*cfgPath) != "" {
		appCfg.ConfigPath = config.ResolveConfigPath(*cfgPath)
	}

	opts := app.ServerOptions{
		Port:          *port,
		AdminUsername: *adminUsername,
		AdminPassword: *adminPassword,
	}

	configPath := config.ResolveConfigPath(appCfg.ConfigPath)
	if !app.ConfigExists(configPath) && strings.TrimSpace(os.Getenv(config.EnvDBConnection)) == "" {
		log.Info("config.yaml not found, starting init server...")
		errInit := app.RunInitServer(ctx, appCfg, *port)
		if errors.Is(errInit, app.ErrInitCompleted) {
			log.Info("initialization completed, starting main server...")
			return app.RunServer(ctx, appCfg, opts)
		}
		return errInit
	}

	return app.RunServer(ctx, appCfg, opts)
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
