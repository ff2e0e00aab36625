package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/MrEthical07/credcore"
	"github.com/MrEthical07/credcore/jwt"
	"github.com/MrEthical07/credcore/middleware"
)

// Service is the credential surface the handlers drive. *credcore.Engine
// implements it.
type Service interface {
	Register(ctx context.Context, identity, password string, scheme credcore.Scheme) error
	Verify(ctx context.Context, identity, password string) error
	Login(ctx context.Context, identity, password string) (*credcore.LoginResult, error)
	RequestReset(ctx context.Context, identity string) (string, error)
	ConfirmReset(ctx context.Context, token string) (string, error)
	ValidateToken(ctx context.Context, token string) (*jwt.Claims, error)
}

type credentialsRequest struct {
	Email    string `json:"email" validate:"required,email,max=320"`
	Password string `json:"password" validate:"required,max=1024"`
}

type resetLinkRequest struct {
	Email string `json:"email" validate:"required,email,max=320"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type resetLinkResponse struct {
	URL string `json:"url"`
}

type meResponse struct {
	Email     string            `json:"email"`
	IssuedAt  time.Time         `json:"issuedAt"`
	ExpiresAt time.Time         `json:"expiresAt"`
	Claims    map[string]string `json:"claims,omitempty"`
}

const (
	resetLinkAccepted = "reset link accepted"
	resetLinkRejected = "invalid or expired reset link"
)

type handler struct {
	svc Service
}

func bindAndValidate(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return errors.Wrap(errInvalidBody, err.Error())
	}
	return c.Validate(dst)
}

func (h *handler) register(scheme credcore.Scheme) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req credentialsRequest
		if err := bindAndValidate(c, &req); err != nil {
			return err
		}

		if err := h.svc.Register(c.Request().Context(), req.Email, req.Password, scheme); err != nil {
			return errors.WithStack(err)
		}
		return success(c, http.StatusCreated, map[string]string{"email": credcore.NormalizeIdentity(req.Email)}, "registered")
	}
}

// check verifies a credential without issuing a token. Every failure to
// authenticate is a 401.
func (h *handler) check(c echo.Context) error {
	var req credentialsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return withStatus(http.StatusUnauthorized, err)
	}

	err := h.svc.Verify(c.Request().Context(), req.Email, req.Password)
	switch {
	case err == nil:
		return success(c, http.StatusOK, nil, "credentials valid")
	case errors.Is(err, credcore.ErrInvalidInput):
		return withStatus(http.StatusUnauthorized, err)
	default:
		return errors.WithStack(err)
	}
}

// login rejects bad credentials with 400.
func (h *handler) login(c echo.Context) error {
	var req credentialsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, credcore.ErrInvalidCredentials) {
			return withStatus(http.StatusBadRequest, err)
		}
		return errors.WithStack(err)
	}

	return success(c, http.StatusOK, loginResponse{
		Token:     res.Token,
		Email:     res.Identity,
		ExpiresAt: res.ExpiresAt,
	}, "login successful")
}

// resetLink answers an unknown identity with 401.
func (h *handler) resetLink(c echo.Context) error {
	var req resetLinkRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	url, err := h.svc.RequestReset(c.Request().Context(), req.Email)
	if err != nil {
		if errors.Is(err, credcore.ErrNotFound) {
			return withStatus(http.StatusUnauthorized, err)
		}
		return errors.WithStack(err)
	}
	return success(c, http.StatusOK, resetLinkResponse{URL: url}, "")
}

// confirmReset is the target of the emailed link and answers in plain text.
func (h *handler) confirmReset(c echo.Context) error {
	_, err := h.svc.ConfirmReset(c.Request().Context(), c.Param("token"))
	switch {
	case err == nil:
		return c.String(http.StatusOK, resetLinkAccepted)
	case errors.Is(err, credcore.ErrNotFound), errors.Is(err, credcore.ErrInvalidInput):
		return c.String(http.StatusBadRequest, resetLinkRejected)
	default:
		return errors.WithStack(err)
	}
}

func (h *handler) me(c echo.Context) error {
	claims, ok := middleware.ClaimsFromContext(c.Request().Context())
	if !ok {
		return withStatus(http.StatusUnauthorized, credcore.ErrMalformedToken)
	}

	resp := meResponse{
		Email:  claims.Identity,
		Claims: claims.Extra,
	}
	if claims.IssuedAt != nil {
		resp.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return success(c, http.StatusOK, resp, "")
}

func healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
