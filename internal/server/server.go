// internal/server/server.go

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"safewatch/internal/adapter/kv"
	"safewatch/internal/config"
	"safewatch/internal/domain/zone"
	"safewatch/internal/server/handlers"
	"safewatch/internal/service/offline"
	"safewatch/internal/service/router"
	"safewatch/internal/service/travel"
)

// Server represents the HTTP server
type Server struct {
	server *http.Server
	router *chi.Mux
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.ServerConfig,
	zoneManager zone.Manager,
	tracker zone.Tracker,
	analyzer *travel.Analyzer,
	reconciler *offline.Reconciler,
	eventRouter *router.Router,
	kvStore kv.Store,
	logger *zap.Logger,
) *Server {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Create handler dependencies
	zoneHandler := handlers.NewZoneHandler(zoneManager)
	geofenceHandler := handlers.NewGeofenceHandler(zoneManager)
	travelHandler := handlers.NewTravelHandler(analyzer)
	syncHandler := handlers.NewSyncHandler(reconciler)

	// Routes
	r.Route("/api", func(r chi.Router) {
		// Health check
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		r.Route("/v1", func(r chi.Router) {
			// Zones API
			r.Route("/zones", func(r chi.Router) {
				r.Get("/", zoneHandler.ListZones)
				r.Post("/", zoneHandler.CreateZone)
				r.Get("/{id}", zoneHandler.GetZone)
				r.Put("/{id}", zoneHandler.UpdateZone)
				r.Delete("/{id}", zoneHandler.DissolveZone)
				r.Get("/{id}/stats", zoneHandler.ZoneStats)
			})

			// Geofence API
			r.Route("/geofence", func(r chi.Router) {
				r.Post("/check-location", geofenceHandler.CheckLocation)
			})

			// Travel API
			r.Route("/travel", func(r chi.Router) {
				r.Post("/analyze-route", travelHandler.AnalyzeRoute)
				r.Post("/alternative-routes", travelHandler.AlternativeRoutes)
			})

			// Offline sync API
			r.Route("/sync", func(r chi.Router) {
				r.Post("/reports", syncHandler.SyncReports)
			})
		})
	})

	// WebSocket endpoint for the real-time location channel
	r.Get("/ws/location", handlers.LocationWebSocketHandler(eventRouter, tracker, kvStore, logger))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{
		server: httpServer,
		router: r,
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
