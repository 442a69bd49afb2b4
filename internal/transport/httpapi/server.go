// Package httpapi exposes the processing pipeline, feedback import and the
// per-user event stream over HTTP.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"FeedbackFlow/internal/infrastructure/stream"
	"FeedbackFlow/internal/ports"
	"FeedbackFlow/internal/usecase"
)

const (
	userHeader          = "X-User-ID"
	defaultWriteTimeout = 10 * time.Second
)

// Processor runs a processing pass for one owner.
type Processor interface {
	ProcessPending(ctx context.Context, ownerID string) (usecase.RunResult, error)
}

// Subscriber registers live event streams.
type Subscriber interface {
	Subscribe(id string, sink stream.Sink) *stream.Subscription
}

// Deps wires the server to the application services.
type Deps struct {
	Processor  Processor
	Hub        Subscriber
	Importer   ports.FeedbackImporter
	Tasks      ports.TaskStore
	Logger     *slog.Logger
	OnShutdown []func()
	// WriteTimeout bounds every event-stream write; a client that stops
	// reading for longer is disconnected.
	WriteTimeout time.Duration
}

// Server is the FeedbackFlow HTTP API.
type Server struct {
	processor  Processor
	hub        Subscriber
	importer   ports.FeedbackImporter
	tasks      ports.TaskStore
	logger     *slog.Logger
	onShutdown   []func()
	writeTimeout time.Duration
	now          func() time.Time
	router       *gin.Engine
}

type rawWriterKey struct{}

// NewServer creates the router and registers all routes.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	writeTimeout := deps.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	s := &Server{
		processor:    deps.Processor,
		hub:          deps.Hub,
		importer:     deps.Importer,
		tasks:        deps.Tasks,
		logger:       logger,
		onShutdown:   deps.OnShutdown,
		writeTimeout: writeTimeout,
		now:          time.Now,
		router:       router,
	}

	router.GET("/health", s.handleHealth)

	api := router.Group("/api")
	{
		api.GET("/events", s.handleEvents)
		api.POST("/feedback", s.handleImport)
		api.POST("/feedback/process", s.handleProcess)
		api.GET("/tasks", s.handleTasks)
	}

	return s
}

// Handler exposes the server as an http.Handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s
}

// ServeHTTP keeps the connection's own writer in the request context so the
// event stream can put write deadlines on it.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), rawWriterKey{}, w)))
}

func responseController(c *gin.Context) *http.ResponseController {
	if raw, ok := c.Request.Context().Value(rawWriterKey{}).(http.ResponseWriter); ok {
		return http.NewResponseController(raw)
	}
	return http.NewResponseController(c.Writer)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
// Open event streams are closed by the shutdown hooks.
func (s *Server) Run(ctx context.Context, addr string, readTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: readTimeout,
	}
	for _, hook := range s.onShutdown {
		srv.RegisterOnShutdown(hook)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// ownerFrom resolves the caller identity from the header or the userId query.
func ownerFrom(c *gin.Context) string {
	if id := c.GetHeader(userHeader); id != "" {
		return id
	}
	return c.Query("userId")
}
