package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/MixOS/backend/internal/api/http"
	"github.com/GriffinCanCode/MixOS/backend/internal/api/middleware"
	"github.com/GriffinCanCode/MixOS/backend/internal/api/ws"
	"github.com/GriffinCanCode/MixOS/backend/internal/domain/component"
	"github.com/GriffinCanCode/MixOS/backend/internal/domain/environment"
	"github.com/GriffinCanCode/MixOS/backend/internal/domain/events"
	"github.com/GriffinCanCode/MixOS/backend/internal/domain/lifecycle"
	"github.com/GriffinCanCode/MixOS/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/MixOS/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/MixOS/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/MixOS/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/MixOS/backend/internal/providers/fetch"
	"github.com/GriffinCanCode/MixOS/backend/internal/providers/stage"
)

// probeTimeout bounds one remote HEAD probe.
const probeTimeout = 15 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router      *gin.Engine
	http        *http.Server
	store       *environment.Store
	manager     *lifecycle.Manager
	pipeline    *component.Pipeline
	broadcaster *events.Broadcaster
	logger      *logging.Logger
	config      *config.Config
	metrics     *monitoring.Metrics
}

// Options injects collaborators, mostly for tests. Zero values select
// the configured defaults.
type Options struct {
	Logger    *logging.Logger
	Launchers map[environment.Kind]lifecycle.Launcher
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.FromLevel(cfg.Logging.Level, cfg.Logging.Development)
	}

	logger.Info("Initializing MixOS Server",
		zap.String("port", cfg.Server.Port),
		zap.String("downloads", cfg.Storage.DownloadsDir),
		zap.String("data", cfg.Storage.DataDir),
		zap.String("stage_mode", cfg.Stage.Mode),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()

	catalog, err := component.LoadCatalog(cfg.Storage.DownloadsDir, cfg.Storage.Manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to load component catalog: %w", err)
	}
	logger.Info("Component catalog loaded", zap.Int("components", catalog.Len()))

	broadcaster := events.NewBroadcaster(cfg.Events.SendTimeout, logger.Named("events").Logger, metrics)

	fetcher := fetch.New(FetchConfig(cfg), logger.Named("fetch").Logger, metrics)
	stager := stage.New(stage.Config{
		Mode:    cfg.Stage.Mode,
		Timeout: cfg.Stage.Timeout,
		TarBin:  cfg.Stage.TarBin,
	}, logger.Named("stage").Logger, metrics)
	pipeline := component.NewPipeline(catalog, fetcher, stager, broadcaster, logger.Named("pipeline").Logger, metrics)
	prober := component.NewProber(catalog, probeTimeout, logger.Named("probe").Logger)

	launchers := opts.Launchers
	if launchers == nil {
		launchers = DefaultLaunchers(cfg, catalog)
	}
	store := environment.NewStore()
	manager := lifecycle.NewManager(store, launchers, broadcaster,
		lifecycle.Config{StopGrace: cfg.Lifecycle.StopGrace}, logger.Named("lifecycle").Logger, metrics)

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(middleware.Recovery(logger.Logger))
	router.Use(tracing.HTTPMiddleware(logger.Named("http").Logger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	handlers := apihttp.NewHandlers(apihttp.Deps{
		Store:       store,
		Manager:     manager,
		Pipeline:    pipeline,
		Prober:      prober,
		Broadcaster: broadcaster,
		Metrics:     metrics,
		Logger:      logger.Named("api").Logger,
		EventBuffer: cfg.Events.Buffer,
	})
	wsHandler := ws.NewHandler(broadcaster, ws.Config{Buffer: cfg.Events.Buffer}, logger.Named("ws").Logger)

	registerRoutes(router, handlers, wsHandler, metrics)

	logger.Info("Server initialized successfully")

	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Streams never go idle; end them so Shutdown can drain.
	httpServer.RegisterOnShutdown(broadcaster.Close)

	return &Server{
		router:      router,
		http:        httpServer,
		store:       store,
		manager:     manager,
		pipeline:    pipeline,
		broadcaster: broadcaster,
		logger:      logger,
		config:      cfg,
		metrics:     metrics,
	}, nil
}

func registerRoutes(router *gin.Engine, h *apihttp.Handlers, wsHandler *ws.Handler, metrics *monitoring.Metrics) {
	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")

	// Environments
	api.GET("/environments", h.ListEnvironments)
	api.POST("/environments", h.CreateEnvironment)
	api.GET("/environments/:id", h.GetEnvironment)
	api.PUT("/environments/:id", h.UpdateEnvironment)
	api.PATCH("/environments/:id", h.UpdateEnvironment)
	api.DELETE("/environments/:id", h.DeleteEnvironment)
	api.POST("/environments/:id/start", h.StartEnvironment)
	api.POST("/environments/:id/stop", h.StopEnvironment)
	api.GET("/environments/:id/resources", h.EnvironmentResources)

	// Components
	api.GET("/downloads", h.ListDownloads)
	api.GET("/downloads/status", h.DownloadStatuses)
	api.GET("/downloads/:id/status", h.DownloadStatus)
	api.GET("/downloads/:id/probe", h.ProbeDownload)
	api.POST("/download/:id", h.TriggerDownload)
	api.POST("/pipeline/run", h.RunPipeline)

	// Event streams
	api.GET("/events", h.Events)
	router.GET("/stream", wsHandler.HandleConnection)
}

// FetchConfig converts the fetch section of cfg.
func FetchConfig(cfg *config.Config) fetch.Config {
	fc := fetch.DefaultConfig()
	fc.MaxAttempts = cfg.Fetch.MaxAttempts
	fc.ConnectTimeout = cfg.Fetch.ConnectTimeout
	fc.ReadTimeout = cfg.Fetch.ReadTimeout
	fc.TransferTimeout = cfg.Fetch.TransferTimeout
	fc.BackoffBase = cfg.Fetch.BackoffBase
	fc.BackoffMax = cfg.Fetch.BackoffMax
	fc.MaxRedirects = cfg.Fetch.MaxRedirects
	return fc
}

// DefaultLaunchers returns the qemu, shell and code-server launchers.
// Other kinds have no backing process.
func DefaultLaunchers(cfg *config.Config, catalog *component.Catalog) map[environment.Kind]lifecycle.Launcher {
	return map[environment.Kind]lifecycle.Launcher{
		environment.KindQEMU: &lifecycle.QEMULauncher{
			Bin:          cfg.Lifecycle.QEMUBin,
			DownloadsDir: cfg.Storage.DownloadsDir,
			DataDir:      cfg.Storage.DataDir,
			Components:   catalog,
		},
		environment.KindShell: &lifecycle.ShellLauncher{
			Bin:     cfg.Lifecycle.ShellBin,
			DataDir: cfg.Storage.DataDir,
		},
		environment.KindCodeServer: &lifecycle.CodeServerLauncher{
			Bin:        cfg.Lifecycle.CodeServerBin,
			Host:       cfg.Lifecycle.CodeServerHost,
			Port:       cfg.Lifecycle.CodeServerPort,
			DataDir:    cfg.Storage.DataDir,
			Components: catalog,
		},
	}
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Pipeline returns the acquisition pipeline.
func (s *Server) Pipeline() *component.Pipeline {
	return s.pipeline
}

// Run starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then stops background acquisitions,
// running environments and observers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	s.pipeline.Close()
	if err := s.manager.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop environments: %w", err))
	}
	s.broadcaster.Close()
	s.logger.Info("Server stopped")

	// Sync logger before exit
	_ = s.logger.Sync()

	return errors.Join(errs...)
}
