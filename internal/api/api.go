package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"BandWatch/internal/config"
	"BandWatch/internal/scheduler"
	"BandWatch/internal/store"
)

const (
	ServiceName         = "bandwatch"
	ServiceVersion      = "1.0.0"
	RequestIDContextKey = "request_id"
	RequestIDHeaderKey  = "X-Request-ID"
)

// Server exposes the symbol store over the polling read API.
type Server struct {
	store     *store.Store
	lifecycle *scheduler.Lifecycle
	sess      config.Session
	suffix    string
	logger    *slog.Logger
	now       func() time.Time
}

// NewServer creates the API server. now is injectable for tests; nil means
// wall clock.
func NewServer(st *store.Store, lc *scheduler.Lifecycle, sess config.Session,
	suffix string, logger *slog.Logger, now func() time.Time) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Server{
		store:     st,
		lifecycle: lc,
		sess:      sess,
		suffix:    suffix,
		logger:    logger,
		now:       now,
	}
}

// Router configures all API routes.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(requestIDMiddleware())
	router.Use(s.loggerMiddleware())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/status", s.GetStatus)
	router.GET("/status/:symbol", s.GetSymbol)
	router.POST("/add", s.AddSymbol)
	router.POST("/force_capture/:symbol", s.ForceCapture)
	router.GET("/health", s.HealthCheck)

	return router
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
