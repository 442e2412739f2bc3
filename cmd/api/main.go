package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mcclellann/laureateLoan/pkg/config"
	"github.com/mcclellann/laureateLoan/pkg/ledger"
	"github.com/mcclellann/laureateLoan/pkg/store"
	"github.com/mcclellann/laureateLoan/pkg/tracing"
	log "github.com/sirupsen/logrus"
)

// openStorage connects to the configured database with its schema migrated.
func openStorage(ctx context.Context, cfg *config.Config) (store.Storage, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		if err := store.MigrateUp(store.DriverPostgres, cfg.DatabaseURL); err != nil {
			return nil, err
		}
		return store.NewPostgresStore(ctx, cfg.DatabaseURL)
	default:
		return store.NewSQLiteStore(cfg.DatabaseURL)
	}
}

func ledgerOptions(cfg *config.Config) ledger.Options {
	opts := ledger.DefaultOptions()
	opts.AllowOverpayment = cfg.AllowOverpayment
	opts.MaxPrincipal = cfg.MaxPrincipal
	opts.MaxRate = cfg.MaxRate
	opts.MaxTermMonths = cfg.MaxTermMonths
	return opts
}

// runMigrate handles `api migrate up|down [steps]|status`.
func runMigrate(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s migrate up|down [steps]|status", os.Args[0])
	}
	switch args[0] {
	case "up":
		return store.MigrateUp(cfg.DatabaseDriver, cfg.DatabaseURL)
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid step count %q: %w", args[1], err)
			}
			steps = n
		}
		if err := store.MigrateDown(cfg.DatabaseDriver, cfg.DatabaseURL, steps); err != nil {
			return err
		}
		log.WithField("steps", steps).Info("Migrations rolled back")
		return nil
	case "status":
		version, dirty, err := store.MigrationStatus(cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{"version": version, "dirty": dirty}).Info("Migration status")
		return nil
	default:
		return fmt.Errorf("unknown migrate command %q", args[0])
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger := cfg.NewLogger()
	log.SetLevel(logger.GetLevel())
	log.SetFormatter(logger.Formatter)

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg, os.Args[2:]); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.InitTracing(ctx, cfg.OTELServiceName, cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	storage, err := openStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize %s store: %v", cfg.DatabaseDriver, err)
	}
	defer storage.Close()

	server := NewServer(ledger.NewLedger(storage, logger, ledgerOptions(cfg)), logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("Server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Tracer shutdown failed")
	}
}
