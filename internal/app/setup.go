// Package app contains the application setup for the catalog service.
package app

import (
	"log/slog"
	"net/http"

	"github.com/mkraev/gocatalog/internal/config"
	"github.com/mkraev/gocatalog/internal/service"
	"github.com/mkraev/gocatalog/internal/store"
	natsTransport "github.com/mkraev/gocatalog/internal/transport/nats"
	"github.com/mkraev/gocatalog/internal/transport/rest"
	"github.com/mkraev/gocatalog/pkg/server"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Dependencies holds the wired application components.
type Dependencies struct {
	ProductService service.ProductService
	Logger         *slog.Logger
}

// SetupDependencies wires the store and the service.
func SetupDependencies(dbPool *pgxpool.Pool, logger *slog.Logger) *Dependencies {
	pService := service.NewService(store.NewPgStore(dbPool))

	return &Dependencies{
		ProductService: pService,
		Logger:         logger,
	}
}

// SetupRPCServer creates the NATS RPC server for the catalog operations.
func SetupRPCServer(deps *Dependencies, cfg *config.Config) *natsTransport.Server {
	return natsTransport.NewServer(deps.ProductService, deps.Logger, cfg.NATS.Request.Timeout)
}

// SetupHTTPServer creates the HTTP server serving the health endpoints.
func SetupHTTPServer(deps *Dependencies, dbPool *pgxpool.Pool, cfg *config.Config) *http.Server {
	mux := server.NewChiRouter(deps.Logger)
	rest.NewHealthHandler(dbPool, deps.Logger).RegisterRoutes(mux)

	httpCfg := server.HTTPConfig{
		Port:           cfg.HTTPServer.Port,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		ReadTimeout:    cfg.HTTPServer.Timeout.Read,
		WriteTimeout:   cfg.HTTPServer.Timeout.Write,
		IdleTimeout:    cfg.HTTPServer.Timeout.Idle,
		ReadHeader:     cfg.HTTPServer.Timeout.ReadHeader,
	}

	return server.NewHTTPServer(httpCfg, mux)
}
