// Package http exposes the coachd services over a JSON HTTP API.
//
// The caller identity comes from the X-User-ID header set by the
// authentication gate in front of the service; it is trusted as is.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/coachd/internal/coaching"
	"github.com/fyrsmithlabs/coachd/internal/logging"
	"github.com/fyrsmithlabs/coachd/internal/services"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HeaderUserID carries the authenticated caller.
const HeaderUserID = "X-User-ID"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = "1M"

// Server provides HTTP endpoints for coachd.
type Server struct {
	echo     *echo.Echo
	services services.Registry
	logger   *zap.Logger
	config   *Config
	now      func() time.Time
}

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string
}

// NewServer creates a new HTTP server over reg.
func NewServer(reg services.Registry, logger *zap.Logger, cfg *Config) (*Server, error) {
	if reg == nil {
		return nil, fmt.Errorf("service registry cannot be nil")
	}
	if reg.Records() == nil || reg.Engine() == nil || reg.Insights() == nil || reg.Monitor() == nil {
		return nil, fmt.Errorf("service registry is incomplete")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	metrics := NewHTTPMetrics(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(maxBodyBytes))
	e.Use(requestLogger(logger))
	e.Use(metrics.MetricsMiddleware())

	s := &Server{
		echo:     e,
		services: reg,
		logger:   logger,
		config:   cfg,
		now:      time.Now,
	}
	s.registerRoutes()
	metrics.TrackRoutes(e.Routes())

	return s, nil
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	log := logging.Wrap(logger)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))

			if err := next(c); err != nil {
				c.Error(err)
			}

			// The identity middleware runs inside this one, so the user id
			// is only in the request context once next returns.
			log.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	}
}

// requireUser rejects requests without a caller identity and tags the
// request context with it.
func requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := c.Request().Header.Get(HeaderUserID)
		if userID == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, HeaderUserID+" header is required")
		}
		if err := coaching.ValidateUserIDField(HeaderUserID, userID); err != nil {
			return err
		}
		ctx := logging.WithUserID(c.Request().Context(), userID)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

func userID(c echo.Context) string {
	return c.Request().Header.Get(HeaderUserID)
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1", requireUser)

	v1.GET("/profile", s.handleGetProfile)
	v1.PUT("/profile", s.handlePutProfile)
	v1.POST("/meals", s.handleAddMeal)
	v1.POST("/sleep", s.handleAddSleep)
	v1.POST("/energy", s.handleAddEnergy)
	v1.POST("/activities", s.handleAddActivity)

	v1.POST("/insights/generate", s.handleGenerate)
	v1.GET("/insights", s.handleListInsights)
	v1.POST("/insights/:id/feedback", s.handleInsightFeedback)

	v1.POST("/interactions", s.handleTrackInteraction)
	v1.POST("/interactions/:id/feedback", s.handleInteractionFeedback)
	v1.GET("/clarifications/performance", s.handleClarificationPerformance)
	v1.GET("/reports/:period", s.handleReport)
	v1.GET("/export", s.handleExport)
	v1.GET("/metrics/realtime", s.handleRealtime)
	v1.POST("/abtests", s.handleRegisterABTest)
	v1.GET("/abtests", s.handleListABTests)
	v1.GET("/abtests/:name", s.handleGetABTest)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: s.config.Version})
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
