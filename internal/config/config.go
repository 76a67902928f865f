// internal/config/config.go

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"safewatch/internal/domain/zone"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	NATS        NATSConfig
	Redis       RedisConfig
	Zone        ZoneConfig
	Geofence    GeofenceConfig
	Travel      TravelConfig
	Worker      WorkerConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CorsOrigins     []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	SSLMode      string
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL            string
	MaxReconnects  int
	ConnectTimeout time.Duration

	// ReconnectBackoff is the capped backoff ladder applied between
	// reconnection attempts
	ReconnectBackoff []time.Duration
}

// RedisConfig holds redis configuration; an empty Addr selects the
// in-memory key-value store
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ZoneConfig holds zone-management configuration
type ZoneConfig struct {
	OverlapSearchPadMeters float64
	MaxOverlapPercent      float64
	RiskThresholds         zone.RiskThresholds
	EventsTopic            string
}

// GeofenceConfig holds membership-tracking configuration
type GeofenceConfig struct {
	ApproachThresholdMeters float64
	SuppressionTTL          time.Duration
}

// TravelConfig holds route-scoring configuration
type TravelConfig struct {
	DefaultBufferMeters float64
	SegmentCount        int
}

// WorkerConfig holds background-job configuration
type WorkerConfig struct {
	SweepInterval        time.Duration
	MembershipStaleAfter time.Duration
	ZoneRetention        time.Duration
	DetectionInterval    time.Duration
	DetectionWindow      time.Duration
	ClusterRadiusMeters  float64
	ClusterMinIncidents  int
	NewZoneRadiusMeters  int
}

// Load loads configuration from environment variables
func Load() (Config, error) {
	config := Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CorsOrigins:     getEnvAsSlice("SERVER_CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Database:     getEnv("DB_NAME", "safewatch"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 5*time.Minute),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
		},
		NATS: NATSConfig{
			URL:            getEnv("NATS_URL", "nats://localhost:4222"),
			MaxReconnects:  getEnvAsInt("NATS_MAX_RECONNECTS", 60),
			ConnectTimeout: getEnvAsDuration("NATS_CONNECT_TIMEOUT", 2*time.Second),
			ReconnectBackoff: []time.Duration{
				1 * time.Second,
				2 * time.Second,
				5 * time.Second,
				10 * time.Second,
			},
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Zone: ZoneConfig{
			OverlapSearchPadMeters: getEnvAsFloat("ZONE_OVERLAP_SEARCH_PAD_METERS", 1000),
			MaxOverlapPercent:      getEnvAsFloat("ZONE_MAX_OVERLAP_PERCENT", 50),
			RiskThresholds: zone.RiskThresholds{
				Medium:   getEnvAsInt("ZONE_RISK_MEDIUM_COUNT", 5),
				High:     getEnvAsInt("ZONE_RISK_HIGH_COUNT", 15),
				Critical: getEnvAsInt("ZONE_RISK_CRITICAL_COUNT", 25),
			},
			EventsTopic: getEnv("ZONE_EVENTS_TOPIC", "zones.events"),
		},
		Geofence: GeofenceConfig{
			ApproachThresholdMeters: getEnvAsFloat("GEOFENCE_APPROACH_THRESHOLD_METERS", 2000),
			SuppressionTTL:          getEnvAsDuration("GEOFENCE_SUPPRESSION_TTL", 15*time.Minute),
		},
		Travel: TravelConfig{
			DefaultBufferMeters: getEnvAsFloat("TRAVEL_DEFAULT_BUFFER_METERS", 1000),
			SegmentCount:        getEnvAsInt("TRAVEL_SEGMENT_COUNT", 5),
		},
		Worker: WorkerConfig{
			SweepInterval:        getEnvAsDuration("WORKER_SWEEP_INTERVAL", 5*time.Minute),
			MembershipStaleAfter: getEnvAsDuration("WORKER_MEMBERSHIP_STALE_AFTER", 12*time.Hour),
			ZoneRetention:        getEnvAsDuration("WORKER_ZONE_RETENTION", 30*24*time.Hour),
			DetectionInterval:    getEnvAsDuration("WORKER_DETECTION_INTERVAL", 10*time.Minute),
			DetectionWindow:      getEnvAsDuration("WORKER_DETECTION_WINDOW", 24*time.Hour),
			ClusterRadiusMeters:  getEnvAsFloat("WORKER_CLUSTER_RADIUS_METERS", 500),
			ClusterMinIncidents:  getEnvAsInt("WORKER_CLUSTER_MIN_INCIDENTS", 5),
			NewZoneRadiusMeters:  getEnvAsInt("WORKER_NEW_ZONE_RADIUS_METERS", 1000),
		},
	}

	return config, validate(config)
}

// validate checks if config is valid
func validate(config Config) error {
	if !config.Zone.RiskThresholds.Valid() {
		return fmt.Errorf("zone risk thresholds must be strictly increasing")
	}
	if config.Travel.SegmentCount <= 0 {
		return fmt.Errorf("travel segment count must be positive")
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	return strings.Split(valueStr, ",")
}
