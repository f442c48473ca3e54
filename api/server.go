// Package api exposes workflow definitions, executions and optimization
// proposals over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/sicko7947/smartflow"
	"github.com/sicko7947/smartflow/engine"
)

// HistoryReader exposes the in-memory execution window
type HistoryReader interface {
	Executions(workflowID string) []*smartflow.WorkflowExecution
}

// Server serves the HTTP API. It keeps one live definition per workflow so
// that executions and auto-applied optimizations share the same instance.
type Server struct {
	app      *fiber.App
	engine   *engine.Engine
	store    smartflow.ExecutionStore
	history  HistoryReader
	gatherer prometheus.Gatherer
	logger   zerolog.Logger

	mu        sync.RWMutex
	workflows map[string]*smartflow.Workflow
}

// Option configures the server
type Option func(*Server)

// WithLogger sets the request and error logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHistory enables GET /api/v1/workflows/:id/executions
func WithHistory(h HistoryReader) Option {
	return func(s *Server) {
		s.history = h
	}
}

// WithGatherer serves the gatherer's metrics on /metrics instead of the
// default prometheus registry
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// New creates the server and registers all routes
func New(eng *engine.Engine, store smartflow.ExecutionStore, opts ...Option) *Server {
	s := &Server{
		engine:    eng,
		store:     store,
		gatherer:  prometheus.DefaultGatherer,
		logger:    zerolog.Nop(),
		workflows: make(map[string]*smartflow.Workflow),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.app = fiber.New(fiber.Config{
		AppName:      "smartflow",
		ErrorHandler: s.handleError,
	})
	s.registerRoutes()
	return s
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown is called
func (s *Server) Listen(addr string) error {
	s.logger.Info().Str("address", addr).Msg("Starting HTTP server")
	return s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops accepting requests and waits up to timeout for in-flight ones
func (s *Server) Shutdown(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}

// Register makes wf the live definition for its id and stores it. A stored
// definition at the same or a higher version wins, so definitions loaded at
// startup never roll back edits or applied optimizations. The live
// definition is returned.
func (s *Server) Register(ctx context.Context, wf *smartflow.Workflow) (*smartflow.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.store.GetWorkflow(ctx, wf.ID)
	switch {
	case err == nil && stored.Version >= wf.Version:
		s.logger.Info().
			Str("workflowId", wf.ID).
			Int("version", wf.Version).
			Int("stored_version", stored.Version).
			Msg("Keeping stored workflow definition")
		s.workflows[wf.ID] = stored
		return stored, nil
	case err != nil && !errors.Is(err, smartflow.ErrWorkflowNotFound):
		return nil, fmt.Errorf("failed to load workflow %s: %w", wf.ID, err)
	}

	if err := s.store.UpsertWorkflow(ctx, wf); err != nil {
		return nil, fmt.Errorf("failed to store workflow %s: %w", wf.ID, err)
	}
	s.workflows[wf.ID] = wf
	return wf, nil
}

func (s *Server) registerRoutes() {
	s.app.Use(s.logRequests)

	s.app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "smartflow",
		})
	})
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := s.app.Group("/api/v1")
	workflows := v1.Group("/workflows")

	workflows.Put("/:id", s.handlePutWorkflow)
	workflows.Get("/:id", s.handleGetWorkflow)
	workflows.Post("/:id/executions", s.handleExecute)
	workflows.Get("/:id/executions", s.handleListExecutions)
	workflows.Get("/:id/optimizations", s.handleGetOptimizations)
	workflows.Post("/:id/optimizations/apply", s.handleApplyOptimizations)
	workflows.Post("/:id/trigger/:type", s.handleTrigger)
}

// lookup returns the live definition, loading it from the store on first use
func (s *Server) lookup(ctx context.Context, id string) (*smartflow.Workflow, error) {
	s.mu.RLock()
	wf, ok := s.workflows[id]
	s.mu.RUnlock()
	if ok {
		return wf, nil
	}

	stored, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if wf, ok := s.workflows[id]; ok {
		return wf, nil
	}
	s.workflows[id] = stored
	return stored, nil
}

func (s *Server) logRequests(c fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}

	s.logger.Debug().
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", status).
		Dur("latency", time.Since(start)).
		Msg("HTTP request")
	return err
}

// handleError maps errors returned by handlers to JSON responses
func (s *Server) handleError(c fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	code := smartflow.ErrCodeInternalError

	var (
		fe *fiber.Error
		we *smartflow.WorkflowError
	)
	switch {
	case errors.As(err, &fe):
		status = fe.Code
		code = ""
	case errors.Is(err, smartflow.ErrWorkflowNotFound):
		status = fiber.StatusNotFound
		code = smartflow.ErrCodeNotFound
	case errors.As(err, &we):
		code = we.Code
		switch we.Code {
		case smartflow.ErrCodeValidation:
			status = fiber.StatusBadRequest
		case smartflow.ErrCodeNotFound:
			status = fiber.StatusNotFound
		}
	}

	if status >= fiber.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
	}

	body := fiber.Map{"error": err.Error()}
	if code != "" {
		body["code"] = code
	}
	return c.Status(status).JSON(body)
}
