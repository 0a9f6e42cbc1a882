package config

import (
	"context"
	"time"
)

// ListenerConfig holds the network/TLS settings for a single listener (main or management).
type ListenerConfig struct {
	Port              int
	EnablePlainText   bool
	EnableTLS         bool
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// Config holds all configuration for the sync service.
type Config struct {
	// Database
	DBURL  string
	DBName string

	// Datastore backend type ("mongo" or "memory")
	DatastoreType string

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	DBMaxOpenConns int
	DBMaxIdleConns int

	// Cache backend for quickfind bucket summaries ("none", "local", "redis")
	CacheType string

	// Redis
	RedisURL string

	// SummaryTTL bounds the staleness of cached quickfind summaries.
	SummaryTTL time.Duration

	// Listeners
	Listener                  ListenerConfig
	ManagementListener        ListenerConfig
	ManagementListenerEnabled bool
	ManagementAccessLog       bool

	// HTTP
	MaxBodySize int64
	CORSEnabled bool
	CORSOrigins string

	// Metrics
	MetricsLabels string

	// DrainTimeout is the graceful shutdown timeout in seconds.
	DrainTimeout int
}

// DefaultConfig returns the configuration defaults applied before flags and
// environment variables.
func DefaultConfig() Config {
	return Config{
		DBName:                  "sync_service",
		DatastoreType:           "mongo",
		DatastoreMigrateAtStart: true,
		DBMaxOpenConns:          25,
		DBMaxIdleConns:          5,
		CacheType:               "none",
		SummaryTTL:              5 * time.Minute,
		Listener: ListenerConfig{
			Port:              8080,
			EnablePlainText:   true,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ManagementListener: ListenerConfig{
			EnablePlainText: true,
		},
		MaxBodySize:  8 * 1024 * 1024,
		DrainTimeout: 30,
	}
}
