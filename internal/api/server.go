package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"scriptlab/internal/config"
	"scriptlab/internal/logging"
	"scriptlab/internal/media"
	"scriptlab/internal/workflow"
)

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server routes HTTP requests to workflow sessions.
type Server struct {
	cfg      *config.Config
	manager  *workflow.Manager
	media    *media.Store
	db       Pinger
	logs     *logging.StreamHub
	logger   *slog.Logger
	maxBytes int64
	engine   *gin.Engine
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLogStream exposes buffered daemon logs at /api/logs.
func WithLogStream(hub *logging.StreamHub) Option {
	return func(s *Server) {
		s.logs = hub
	}
}

// WithHealthCheck reports db in /api/health.
func WithHealthCheck(db Pinger) Option {
	return func(s *Server) {
		s.db = db
	}
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// New builds the HTTP surface.
func New(cfg *config.Config, manager *workflow.Manager, store *media.Store, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		manager: manager,
		media:   store,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "api")
	s.maxBytes = int64(cfg.API.MaxUploadMiB) << 20
	if s.maxBytes <= 0 {
		s.maxBytes = 32 << 20
	}
	s.engine = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestContext(), s.accessLog())

	if s.media != nil {
		r.Static(strings.TrimSuffix(config.MediaRoute(), "/"), s.media.Dir())
	}

	api := r.Group("/api", s.authenticate())
	api.GET("/health", s.handleHealth)
	api.GET("/logs", s.handleLogs)

	scoped := api.Group("", s.requireAccount())
	scoped.GET("/account/creator", s.handleGetCreator)
	scoped.PUT("/account/creator", s.handlePutCreator)

	scoped.POST("/workflows", s.handleCreateWorkflow)
	scoped.GET("/workflows", s.handleListWorkflows)

	wf := scoped.Group("/workflows/:id")
	wf.GET("", s.handleGetWorkflow)
	wf.DELETE("", s.handleDeleteWorkflow)
	wf.POST("/plan", s.handleGeneratePlan)
	wf.POST("/updates", s.handleApplyUpdate)
	wf.PUT("/defaults", s.handleSetDefaults)
	wf.POST("/generate", s.handleGenerateAll)
	wf.POST("/scenes/:index/generate", s.handleGenerateScene)
	wf.POST("/chat", s.handleChat)
	wf.GET("/live", s.handleLive)

	slot := wf.Group("/slots/:slot")
	slot.GET("", s.handleGetSlot)
	slot.DELETE("", s.handleClearSlot)
	slot.POST("/generate", s.handleGenerateSlot)
	slot.POST("/references", s.handleAttachReference)
	slot.DELETE("/references/:ref", s.handleRemoveReference)
	slot.POST("/upload", s.handleUploadResult)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "route not found", Kind: "not_found"})
	})
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := HealthResponse{Status: "ok", Database: "unknown"}
	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Database = "unavailable"
			resp.Detail = err.Error()
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
		resp.Database = "ok"
	}
	c.JSON(http.StatusOK, resp)
}
