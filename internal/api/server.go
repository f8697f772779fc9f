// Package api exposes the medication store and adherence engine over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gmsas95/medtrack/internal/adherence"
	"github.com/gmsas95/medtrack/internal/config"
	apperrors "github.com/gmsas95/medtrack/internal/errors"
	"github.com/gmsas95/medtrack/internal/medication"
	"github.com/gmsas95/medtrack/internal/metrics"
	"github.com/gmsas95/medtrack/internal/report"
	"github.com/gmsas95/medtrack/internal/security"
)

// Server handles the HTTP API
type Server struct {
	app     *fiber.App
	config  config.ServerConfig
	meds    *medication.Store
	engine  *adherence.Engine
	reports *report.Renderer
	metrics *metrics.Metrics
	limiter *userLimiter
	inputs  *security.InputValidator
	logger  *zap.Logger
	window  atomic.Int64
	started time.Time
	backend string
	version string
}

// Deps groups the components the server calls into
type Deps struct {
	Medications *medication.Store
	Engine      *adherence.Engine
	Reports     *report.Renderer
	Metrics     *metrics.Metrics
	Backend     string
	Version     string
}

// New creates a new API server
func New(cfg *config.Config, deps Deps, logger *zap.Logger) *Server {
	s := &Server{
		config:  cfg.Server,
		meds:    deps.Medications,
		engine:  deps.Engine,
		reports: deps.Reports,
		metrics: deps.Metrics,
		limiter: newUserLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst),
		inputs:  security.NewInputValidator(),
		logger:  logger,
		started: time.Now(),
		backend: deps.Backend,
		version: deps.Version,
	}
	if s.metrics == nil {
		s.metrics = metrics.Default()
	}
	s.window.Store(int64(cfg.Adherence.DefaultWindowHours))

	s.app = fiber.New(fiber.Config{
		AppName:               "medtrack",
		Immutable:             true, // params are kept as map keys by the store
		ReadTimeout:           time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})

	s.setupRoutes()
	return s
}

// SetDefaultWindow changes the due-window used when a request omits ?hours
func (s *Server) SetDefaultWindow(hours int) {
	s.window.Store(int64(hours))
}

// Start starts the server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Address, s.config.Port)
	s.logger.Info("HTTP server listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrMedicationNotFound),
		errors.Is(err, apperrors.ErrNoReportData),
		errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrMalformedInput),
		errors.Is(err, apperrors.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, apperrors.ErrPersistence),
		errors.Is(err, apperrors.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// fail writes err as {"error", "code"} with the status its code maps to
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)

	code, msg := "UNKNOWN", "internal error"
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		code, msg = appErr.Code, appErr.Message
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return c.Status(status).JSON(fiber.Map{"error": msg, "code": code})
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	return s.fail(c, err)
}
