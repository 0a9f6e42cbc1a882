package serve

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/convsync/sync-service/internal/config"
	"github.com/convsync/sync-service/internal/plugin/route/collections"
	"github.com/convsync/sync-service/internal/plugin/route/quickfind"
	routesystem "github.com/convsync/sync-service/internal/plugin/route/system"
	storemetrics "github.com/convsync/sync-service/internal/plugin/store/metrics"
	registrycache "github.com/convsync/sync-service/internal/registry/cache"
	registrymigrate "github.com/convsync/sync-service/internal/registry/migrate"
	registryroute "github.com/convsync/sync-service/internal/registry/route"
	registrystore "github.com/convsync/sync-service/internal/registry/store"
	syncengine "github.com/convsync/sync-service/internal/sync"
	"github.com/convsync/sync-service/internal/telemetry"
	"github.com/gin-gonic/gin"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config          *config.Config
	Store           registrystore.DocumentStore
	Engine          *syncengine.Engine
	Router          *gin.Engine
	Running         *RunningServers
	closeManagement func(context.Context) error
}

// Shutdown gracefully shuts down the server and closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.closeManagement != nil {
		_ = s.closeManagement(ctx)
	}
	err := s.Running.Close(ctx)
	if cerr := s.Store.Close(ctx); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// StartServer initializes all subsystems and starts the HTTP listener.
// Use cfg.Listener.Port=0 for a random port. Actual port: Server.Running.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting sync service",
		"httpPort", cfg.Listener.Port,
		"db", cfg.DatastoreType,
		"cache", cfg.CacheType,
	)

	// Initialize Prometheus metrics with configured constant labels.
	metricsLabels, err := telemetry.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	telemetry.InitMetrics(metricsLabels)

	// Run migrations
	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	// Initialize the bucket summary cache. A broken cache only costs
	// quickfind rescans, so failures degrade to uncached instead of
	// refusing to start.
	var summaryCache registrycache.SummaryCache
	if cacheLoader, err := registrycache.Select(cfg.CacheType); err != nil {
		log.Warn("Cache not available", "cache", cfg.CacheType, "err", err)
	} else if c, err := cacheLoader(ctx); err != nil {
		log.Warn("Failed to initialize cache", "cache", cfg.CacheType, "err", err)
	} else {
		summaryCache = c
	}

	// Initialize store
	storeLoader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	store = storemetrics.Wrap(store)

	engine := syncengine.New(store, summaryCache, cfg.SummaryTTL)

	// Set up gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(telemetry.AccessLogMiddleware())
	} else {
		router.Use(telemetry.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(telemetry.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	// Mount main route plugins on the main router.
	for _, loader := range registryroute.MainRouteLoaders() {
		if err := loader(router); err != nil {
			return nil, fmt.Errorf("failed to load routes: %w", err)
		}
	}

	// Mount the sync API routes.
	collections.MountRoutes(router, engine)
	quickfind.MountRoutes(router, engine)

	// Mount management route plugins. If a dedicated management port is
	// configured, run them on a bare gin engine served by a second listener.
	// Otherwise, mount them on the main router.
	var closeManagement func(context.Context) error
	if cfg.ManagementListenerEnabled {
		mgmtRouter := gin.New()
		mgmtRouter.Use(gin.Recovery())
		if cfg.ManagementAccessLog {
			mgmtRouter.Use(telemetry.AccessLogMiddleware())
		}
		for _, loader := range registryroute.ManagementRouteLoaders() {
			if err := loader(mgmtRouter); err != nil {
				return nil, fmt.Errorf("failed to load management routes: %w", err)
			}
		}
		// Management listener shares TLS cert/key with the main listener.
		mgmtCfg := cfg.ManagementListener
		mgmtCfg.TLSCertFile = cfg.Listener.TLSCertFile
		mgmtCfg.TLSKeyFile = cfg.Listener.TLSKeyFile
		mgmtRunning, err := StartHTTPListener(mgmtCfg, mgmtRouter)
		if err != nil {
			return nil, fmt.Errorf("failed to start management server: %w", err)
		}
		log.Info("Management server listening", "addr", mgmtRunning.Addr)
		closeManagement = mgmtRunning.Close
	} else {
		for _, loader := range registryroute.ManagementRouteLoaders() {
			if err := loader(router); err != nil {
				return nil, fmt.Errorf("failed to load management routes: %w", err)
			}
		}
	}

	running, err := StartHTTPListener(cfg.Listener, router)
	if err != nil {
		return nil, err
	}

	log.Info("Server listening",
		"port", running.Port,
		"plaintext", cfg.Listener.EnablePlainText,
		"tls", cfg.Listener.EnableTLS,
	)

	routesystem.MarkReady()
	return &Server{
		Config:          cfg,
		Store:           store,
		Engine:          engine,
		Router:          router,
		Running:         running,
		closeManagement: closeManagement,
	}, nil
}
