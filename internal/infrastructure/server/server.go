// Package server wires the registry's components together and owns the
// HTTP lifecycle and the mirror scheduler.
package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/jamestagal/leaplearn/registry/internal/api/http"
	"github.com/jamestagal/leaplearn/registry/internal/api/middleware"
	"github.com/jamestagal/leaplearn/registry/internal/domain/catalog"
	"github.com/jamestagal/leaplearn/registry/internal/domain/graph"
	"github.com/jamestagal/leaplearn/registry/internal/domain/installer"
	"github.com/jamestagal/leaplearn/registry/internal/domain/mirror"
	"github.com/jamestagal/leaplearn/registry/internal/domain/store"
	"github.com/jamestagal/leaplearn/registry/internal/infrastructure/blob"
	"github.com/jamestagal/leaplearn/registry/internal/infrastructure/config"
	"github.com/jamestagal/leaplearn/registry/internal/infrastructure/logging"
	"github.com/jamestagal/leaplearn/registry/internal/infrastructure/monitoring"
	"github.com/jamestagal/leaplearn/registry/internal/infrastructure/sqlite"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg     *config.Config
	log     *logging.Logger
	router  *gin.Engine
	httpSrv *http.Server
	db      *sql.DB
	syncer  *mirror.Syncer

	schedulerStop context.CancelFunc
}

// New builds a fully wired server from configuration.
func New(cfg *config.Config, log *logging.Logger) (*Server, error) {
	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	blobs, err := blob.NewFS(cfg.Blob.Root)
	if err != nil {
		db.Close()
		return nil, err
	}

	st := store.New(db)
	resolver := graph.New(st)
	inst := installer.New(st, blobs, log, cfg.Installer)
	hubClient := mirror.NewClient(cfg.Mirror.UpstreamURL)
	syncer := mirror.NewSyncer(hubClient, inst, st, log, cfg.Mirror.Source, cfg.Mirror.EntryTimeout)
	metrics := monitoring.NewMetrics()
	cat := catalog.NewService(st, cfg.Catalog, metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(middleware.RateLimit(cfg.RateLimit))
	router.Use(monitoring.Middleware(metrics))

	handlers := apihttp.NewHandlers(st, resolver, inst, syncer, cat, blobs, metrics, log, cfg.Mirror.Source)
	registerRoutes(router, handlers)

	return &Server{
		cfg:    cfg,
		log:    log,
		router: router,
		httpSrv: &http.Server{
			Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		db:     db,
		syncer: syncer,
	}, nil
}

func registerRoutes(router *gin.Engine, handlers *apihttp.Handlers) {
	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", handlers.Metrics)
	router.GET("/metrics/json", handlers.MetricsJSON)

	router.GET("/catalog", handlers.Catalog)
	router.GET("/resolve", handlers.Resolve)
	router.POST("/install", handlers.Install)

	router.GET("/packages", handlers.ListPackages)
	router.GET("/packages/:id", handlers.GetPackage)
	router.DELETE("/packages/:id", handlers.DeletePackage)

	router.PUT("/tenants/:tenant/overlay/:id", handlers.SetOverlay)
	router.POST("/sync", handlers.TriggerSync)

	router.POST("/hub/register", handlers.HubRegister)
	router.GET("/hub/listing", handlers.HubListing)
	router.POST("/hub/content-types", handlers.HubContentTypes)
	router.GET("/hub/packages/:machine_name/:version", handlers.HubPackage)
}

// Run starts the mirror scheduler and serves HTTP until Shutdown.
func (s *Server) Run() error {
	if s.cfg.Mirror.Enabled {
		ctx, cancel := context.WithCancel(context.Background())
		s.schedulerStop = cancel
		go s.syncer.RunPeriodic(ctx, s.cfg.Mirror.Interval)
		s.log.Info("mirror scheduler started",
			zap.String("upstream", s.cfg.Mirror.UpstreamURL),
			zap.Duration("interval", s.cfg.Mirror.Interval))
	}

	s.log.Info("registry listening", zap.String("addr", s.httpSrv.Addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the scheduler, drains HTTP, and closes the database.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.schedulerStop != nil {
		s.schedulerStop()
	}

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
