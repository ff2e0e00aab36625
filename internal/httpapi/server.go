package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/MrEthical07/credcore"
	"github.com/MrEthical07/credcore/config"
	"github.com/MrEthical07/credcore/internal/logging"
	"github.com/MrEthical07/credcore/middleware"
)

const (
	headerRequestID = "X-Request-Id"
	requestIDKey    = "request_id"
)

type Params struct {
	Service Service
	Logger  *slog.Logger
	Config  config.HTTPConfig
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
}

type Server struct {
	echo   *echo.Echo
	cfg    config.HTTPConfig
	logger *slog.Logger
}

func New(params Params) (*Server, error) {
	if params.Service == nil {
		return nil, errors.New("httpapi: service is required")
	}
	logger := params.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()
	e.HTTPErrorHandler = NewErrorHandler(logger).Handle

	e.Use(echomw.Recover())
	e.Use(requestContext)
	e.Use(accessLog(logger))
	if len(params.Config.CORSOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: params.Config.CORSOrigins}))
	} else {
		e.Use(echomw.CORS())
	}
	if params.Config.MaxBodyBytes != "" {
		e.Use(echomw.BodyLimit(params.Config.MaxBodyBytes))
	}

	h := &handler{svc: params.Service}
	limiter := newIPLimiter(params.Config.RateLimit.RPS, params.Config.RateLimit.Burst, 0)

	e.GET("/healthz", healthz)
	if params.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(params.Metrics))
	}

	users := e.Group("/users", limiter.middleware)
	users.POST("/register", h.register(credcore.SchemeHashed))
	users.POST("/register-legacy", h.register(credcore.SchemeEncrypted))
	users.POST("/check", h.check)
	users.POST("/login", h.login)
	users.POST("/reset-link", h.resetLink)
	users.GET("/me", h.me, echo.WrapMiddleware(middleware.Guard(params.Service)))

	e.GET("/changepassword/:token", h.confirmReset, limiter.middleware)

	return &Server{echo: e, cfg: params.Config, logger: logger}, nil
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.logger.Info("starting HTTP server", slog.String("addr", s.cfg.Addr))
	if err := s.echo.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "failed to serve http")
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return errors.WithStack(s.echo.Shutdown(ctx))
}

// requestContext tags the request with an id and hands the client IP to the
// engine for throttling and audit.
func requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := c.Request().Header.Get(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Response().Header().Set(headerRequestID, requestID)

		ctx := credcore.WithClientIP(c.Request().Context(), c.RealIP())
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

func accessLog(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			status := c.Response().Status
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			} else if status >= http.StatusBadRequest {
				level = slog.LevelWarn
			}

			requestID, _ := c.Get(requestIDKey).(string)
			logger.LogAttrs(req.Context(), level, "http request",
				slog.String("request_id", requestID),
				slog.String("method", req.Method),
				slog.String("path", c.Path()),
				slog.Int("status", status),
				slog.Duration("latency", time.Since(start)),
				slog.String("remote_ip", c.RealIP()),
			)
			return nil
		}
	}
}
