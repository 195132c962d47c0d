// Package healthserver exposes a minimal internal /healthz and /status
// endpoint for process liveness checks. This is ambient ops surface,
// not the pricing aggregator's own API — the scheduler never serves
// pricing data over HTTP.
package healthserver

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Status is the process's current liveness snapshot, updated by the
// scheduler after every tick.
type Status struct {
	LastTickAt      time.Time `json:"last_tick_at,omitempty"`
	LastTickOK      bool      `json:"last_tick_ok"`
	LastTickError   string    `json:"last_tick_error,omitempty"`
	TicksCompleted  int       `json:"ticks_completed"`
}

// Server wraps a gin engine serving only /healthz and /status.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger

	mu     sync.RWMutex
	status Status
}

// New builds the health server bound to port. The server does not
// start listening until Start is called.
func New(port int, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{logger: logger}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())
	router.GET("/healthz", s.handleHealthz)
	router.GET("/status", s.handleStatus)

	if port <= 0 {
		port = 8080
	}

	s.httpServer = &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// requestLogger generates a request_id and logs each completed request
// at debug level with it; the logger is not passed on to handlers.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.New().String()
		logger := s.logger.With("request_id", requestID, "path", c.Request.URL.Path)

		c.Next()

		logger.Debug("health request completed",
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()
	c.JSON(http.StatusOK, status)
}

// RecordTick updates the status snapshot surfaced at /status.
func (s *Server) RecordTick(tickErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.LastTickAt = time.Now()
	s.status.TicksCompleted++
	if tickErr != nil {
		s.status.LastTickOK = false
		s.status.LastTickError = tickErr.Error()
		return
	}
	s.status.LastTickOK = true
	s.status.LastTickError = ""
}

// Start runs the HTTP server until the context is cancelled, then
// shuts it down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("health server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
