// Command stamp-gateway serves the stamp picker frontend and its traQ-backed API.
//
// Usage:
//
//	stamp-gateway [-config path] [-port n] [-debug]
//
// Environment is read from .env and .env.local when present. Real
// environment variables take precedence over both.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/stamppicker/stamp-gateway/internal/config"
	"github.com/stamppicker/stamp-gateway/internal/gateway"
	"github.com/stamppicker/stamp-gateway/internal/monitoring"
)

// envFiles are loaded in order; earlier files win, and neither overrides
// variables already set in the process environment.
var envFiles = []string{".env.local", ".env"}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fset := flag.NewFlagSet("stamp-gateway", flag.ContinueOnError)
	configPath := fset.String("config", "", "path to YAML config (default $"+config.EnvConfigPath+")")
	port := fset.Int("port", 0, "listen port (overrides config and $PORT)")
	debug := fset.Bool("debug", false, "enable debug logging")
	if err := fset.Parse(args); err != nil {
		return err
	}

	if err := loadEnvFiles(envFiles...); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Server.Port = *port
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if *debug {
		cfg.Monitoring.LogLevel = "debug"
	}

	monitoring.SetupLogging(monitoring.LoggingConfig{
		Level:  cfg.Monitoring.LogLevel,
		Format: cfg.Monitoring.LogFormat,
		Output: cfg.Monitoring.LogOutput,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw := gateway.New(cfg)
	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := gw.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown did not complete cleanly")
		return err
	}
	return <-errCh
}

// loadEnvFiles loads each file that exists. Missing files are skipped.
func loadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}
