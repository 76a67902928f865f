// cmd/api/main.go

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"safewatch/internal/adapter/kv"
	"safewatch/internal/adapter/storage"
	"safewatch/internal/config"
	"safewatch/internal/domain/incident"
	"safewatch/internal/logger"
	"safewatch/internal/server"
	"safewatch/internal/service/offline"
	"safewatch/internal/service/router"
	"safewatch/internal/service/travel"
	zoneService "safewatch/internal/service/zone"
	"safewatch/internal/worker"
)

func main() {
	// Load .env if present; environment variables take precedence
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog := logger.New(cfg.Environment)
	defer zlog.Sync()

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Initialize dependencies
	db, err := initDatabase(ctx, cfg.Database)
	if err != nil {
		zlog.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	natsConn, err := initNATS(cfg.NATS, zlog)
	if err != nil {
		zlog.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer natsConn.Close()

	kvStore, err := initKV(cfg.Redis)
	if err != nil {
		zlog.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer kvStore.Close()

	// Initialize storage adapters
	zoneStore := storage.NewZoneStore(db)
	membershipStore := storage.NewMembershipStore(db)
	incidentStore := storage.NewIncidentStore(db)
	idempotencyStore := storage.NewIdempotencyStore(db)

	// Initialize event routing
	bus := router.NewNATSBus(natsConn)
	eventRouter := router.New(bus, zlog)

	// Initialize zone manager
	zoneManager := zoneService.NewManager(
		zoneStore,
		membershipStore,
		bus,
		zlog,
		zoneService.ManagerConfig{
			OverlapSearchPadMeters: cfg.Zone.OverlapSearchPadMeters,
			MaxOverlapPercent:      cfg.Zone.MaxOverlapPercent,
			RiskThresholds:         cfg.Zone.RiskThresholds,
			EventsTopic:            cfg.Zone.EventsTopic,
		},
	)

	// Initialize membership tracker
	tracker := zoneService.NewTracker(
		zoneStore,
		membershipStore,
		eventRouter,
		kvStore,
		zlog,
		zoneService.TrackerConfig{
			ApproachThresholdMeters: cfg.Geofence.ApproachThresholdMeters,
			SuppressionTTL:          cfg.Geofence.SuppressionTTL,
		},
	)

	// Initialize route analyzer
	travelConfig := travel.DefaultConfig()
	travelConfig.SegmentCount = cfg.Travel.SegmentCount
	travelConfig.DefaultBufferMeters = cfg.Travel.DefaultBufferMeters
	analyzer := travel.NewAnalyzer(incidentStore, zoneStore, zlog, travelConfig)

	// Initialize offline sync reconciler. Synced incidents feed zone
	// statistics and the cell broadcast.
	reconciler := offline.NewReconciler(idempotencyStore, zlog)
	reconciler.RegisterCreatedHandler(zoneManager.OnIncidentCreated)
	reconciler.RegisterCreatedHandler(func(ctx context.Context, inc incident.Incident) error {
		return eventRouter.PublishIncident(inc)
	})

	// Start background jobs
	jobs := worker.New(
		membershipStore,
		zoneStore,
		incidentStore,
		zoneManager,
		zlog,
		worker.Config{
			SweepInterval:        cfg.Worker.SweepInterval,
			MembershipStaleAfter: cfg.Worker.MembershipStaleAfter,
			ZoneRetention:        cfg.Worker.ZoneRetention,
			DetectionInterval:    cfg.Worker.DetectionInterval,
			DetectionWindow:      cfg.Worker.DetectionWindow,
			ClusterRadiusMeters:  cfg.Worker.ClusterRadiusMeters,
			ClusterMinIncidents:  cfg.Worker.ClusterMinIncidents,
			NewZoneRadiusMeters:  cfg.Worker.NewZoneRadiusMeters,
		},
	)
	jobs.Start(ctx)

	// Initialize HTTP server
	httpServer := server.NewServer(
		cfg.Server,
		zoneManager,
		tracker,
		analyzer,
		reconciler,
		eventRouter,
		kvStore,
		zlog,
	)

	// Start HTTP server
	go func() {
		zlog.Info("Starting HTTP server",
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	<-shutdown
	zlog.Info("Shutdown signal received")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Graceful shutdown
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("HTTP server shutdown error", zap.Error(err))
	}

	// Stop background jobs
	cancel()

	zlog.Info("Shutdown complete")
}

// Initialize database connection
func initDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.MaxLifetime

	db, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	// Test connection
	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return db, nil
}

// Initialize NATS connection
func initNATS(cfg config.NATSConfig, zlog *zap.Logger) (*nats.Conn, error) {
	options := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.CustomReconnectDelay(func(attempts int) time.Duration {
			// Walk the configured backoff ladder and hold at its last rung
			if len(cfg.ReconnectBackoff) == 0 {
				return 2 * time.Second
			}
			if attempts < 1 {
				attempts = 1
			}
			if attempts > len(cfg.ReconnectBackoff) {
				attempts = len(cfg.ReconnectBackoff)
			}
			return cfg.ReconnectBackoff[attempts-1]
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			zlog.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			zlog.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			zlog.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to NATS: %w", err)
	}

	return nc, nil
}

// Initialize the key-value store used for rate limits and approach
// suppression; without a redis address the process-local store is used
func initKV(cfg config.RedisConfig) (kv.Store, error) {
	if cfg.Addr == "" {
		return kv.NewMemoryStore(), nil
	}
	return kv.NewRedisStore(cfg.Addr, cfg.Password, cfg.DB)
}
