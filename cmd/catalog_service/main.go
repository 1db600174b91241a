// Package main runs the product catalog microservice.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "net/http/pprof"

	"github.com/mkraev/gocatalog/internal/app"
	"github.com/mkraev/gocatalog/internal/config"
	"github.com/mkraev/gocatalog/migrations"
	"github.com/mkraev/gocatalog/pkg/bootstrap"
	"github.com/mkraev/gocatalog/pkg/config/configloader"
	pnats "github.com/mkraev/gocatalog/pkg/nats"

	natsgo "github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

const serviceName = "catalog"

func main() {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("application run failed: %v", err)
		os.Exit(1)
	}
	log.Println("application stopped gracefully")
}

// run initializes the application and starts the NATS RPC surface plus the
// health and pprof HTTP servers.
func run(ctx context.Context) error {
	cfg, cfgErr := configloader.Load[*config.Config](serviceName)
	if cfgErr != nil {
		return fmt.Errorf("failed to load configuration: %w", cfgErr)
	}
	log.Printf("Configuration loaded: %v", cfg)

	logger := bootstrap.NewLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	if err := bootstrap.RunMigrations(cfg.Database.URL, migrations.FS); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("Database schema is up to date")

	dbPool, err := bootstrap.NewDbPool(ctx, cfg.Database.URL, cfg.Database.Timeout)
	if err != nil {
		return fmt.Errorf("failed to create database connection pool: %w", err)
	}
	defer dbPool.Close()
	logger.Info("Successfully connected to the database!")

	nc, err := pnats.NewClient(cfg.NATS.Url, cfg.NATS.Timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()
	logger.Info("Successfully connected to NATS!")

	deps := app.SetupDependencies(dbPool, logger)
	rpcServer := app.SetupRPCServer(deps, cfg)
	httpServer := app.SetupHTTPServer(deps, dbPool, cfg)
	pprofServer := &http.Server{Addr: cfg.PProf.Addr}

	if err := rpcServer.Subscribe(nc); err != nil {
		return fmt.Errorf("failed to subscribe to RPC subjects: %w", err)
	}
	logger.Info("RPC surface subscribed", slog.String("queue_group", "catalog"))

	g, gCtx := errgroup.WithContext(ctx)

	// Start the HTTP server
	g.Go(func() error {
		logger.Info("HTTP server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	// gracefully shutdown HTTP server on context cancellation
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	// Drain the NATS connection on context cancellation so in-flight
	// requests get their replies before the process exits.
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Draining NATS connection...")
		drained := make(chan struct{})
		nc.SetClosedHandler(func(*natsgo.Conn) {
			close(drained)
		})
		if err := nc.Drain(); err != nil {
			return fmt.Errorf("failed to drain NATS connection: %w", err)
		}
		select {
		case <-drained:
			logger.Info("NATS connection drained.")
			return nil
		case <-time.After(cfg.Shutdown.Timeout):
			logger.Warn("NATS drain timed out. Forcing close.")
			nc.Close()
			return fmt.Errorf("nats drain timed out")
		}
	})

	// Start the pprof server if enabled
	if cfg.PProf.Enabled {
		g.Go(func() error {
			logger.Info("Pprof server listening", slog.String("addr", pprofServer.Addr))
			if err := pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("pprof server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("Shutting down pprof server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
			defer cancel()
			return pprofServer.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("errgroup encountered an error: %w", err)
	}
	return nil
}
