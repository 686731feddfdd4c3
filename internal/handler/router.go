package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/scarface-loin/Wavy/internal/handler/lobby"
	"github.com/scarface-loin/Wavy/internal/handler/relay"
	"github.com/scarface-loin/Wavy/internal/handler/status"
	"github.com/scarface-loin/Wavy/internal/metrics"
	middlewarePkg "github.com/scarface-loin/Wavy/internal/middleware"
	roomService "github.com/scarface-loin/Wavy/internal/service/room"
)

// Deps carries what the router needs to build its handlers.
type Deps struct {
	Registry      *roomService.Registry
	Relay         *relay.Server
	Codes         lobby.CodeSource
	Metrics       *metrics.Metrics
	CORSAllow     []string
	StatsInterval time.Duration
	Logger        *slog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(d.CORSAllow))

	statusHandler := status.New(d.Registry, d.StatsInterval, d.Logger)

	r.Route("/api", func(api chi.Router) {
		statusHandler.RegisterRoutes(api)
		if d.Codes != nil {
			lobby.New(d.Registry, d.Codes, d.Logger).RegisterRoutes(api)
		}
	})

	r.Get("/health", statusHandler.Health)
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	// WebSocket endpoints
	d.Relay.RegisterRoutes(r)

	return r
}
