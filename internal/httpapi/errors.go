package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/MrEthical07/credcore"
)

var (
	errInvalidBody        = errors.New("invalid request body")
	errRequestRateLimited = errors.New("too many requests")
)

// statusError pins the response status of err for one route.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func withStatus(status int, err error) error {
	return &statusError{status: status, err: err}
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{target: errInvalidBody, status: http.StatusBadRequest, code: "INVALID_INPUT"},
	{target: errRequestRateLimited, status: http.StatusTooManyRequests, code: "RATE_LIMITED"},
	{target: credcore.ErrInvalidInput, status: http.StatusBadRequest, code: "INVALID_INPUT"},
	{target: credcore.ErrUnsupportedScheme, status: http.StatusBadRequest, code: "UNSUPPORTED_SCHEME"},
	{target: credcore.ErrDuplicateIdentity, status: http.StatusConflict, code: "DUPLICATE_IDENTITY"},
	{target: credcore.ErrLegacySchemeDisabled, status: http.StatusForbidden, code: "LEGACY_SCHEME_DISABLED"},
	{target: credcore.ErrInvalidCredentials, status: http.StatusUnauthorized, code: "INVALID_CREDENTIALS"},
	{target: credcore.ErrNotFound, status: http.StatusNotFound, code: "NOT_FOUND"},
	{target: credcore.ErrResetRateLimited, status: http.StatusTooManyRequests, code: "RATE_LIMITED"},
	{target: credcore.ErrLoginRateLimited, status: http.StatusTooManyRequests, code: "RATE_LIMITED"},
	{target: credcore.ErrExpired, status: http.StatusUnauthorized, code: "TOKEN_EXPIRED"},
	{target: credcore.ErrBadSignature, status: http.StatusUnauthorized, code: "INVALID_TOKEN"},
	{target: credcore.ErrMalformedToken, status: http.StatusUnauthorized, code: "INVALID_TOKEN"},
	{target: credcore.ErrStoreUnavailable, status: http.StatusServiceUnavailable, code: "UNAVAILABLE"},
	{target: context.DeadlineExceeded, status: http.StatusServiceUnavailable, code: "UNAVAILABLE"},
}

// ErrorHandler writes the Response envelope for err. Errors outside the
// credential taxonomy are logged with the request path and client IP and
// reported as 500 without detail.
type ErrorHandler struct {
	logger *slog.Logger
}

func NewErrorHandler(logger *slog.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

func (h *ErrorHandler) Handle(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, code := h.classify(err)

	var pinned *statusError
	if errors.As(err, &pinned) {
		status = pinned.status
	}

	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request().Context(), "request failed",
			slog.String("error", err.Error()),
			slog.String("method", c.Request().Method),
			slog.String("path", c.Request().URL.Path),
			slog.String("client_ip", c.RealIP()),
			slog.Int("status", status),
		)
	}

	message := http.StatusText(status)
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		if m, ok := httpErr.Message.(string); ok {
			message = m
		}
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = failure(c, status, code, message)
}

func (h *ErrorHandler) classify(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code, "HTTP_ERROR"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}
