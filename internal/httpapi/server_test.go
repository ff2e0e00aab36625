package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/credcore"
	"github.com/MrEthical07/credcore/config"
	promexport "github.com/MrEthical07/credcore/metrics/export/prometheus"
)

const testPassword = "correct-horse-battery"

type testServer struct {
	engine  *credcore.Engine
	handler http.Handler
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.Default()
	cfg.JWT.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.HTTP.RateLimit = config.RateLimit{}
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := credcore.New().WithConfig(cfg.Config).WithRedis(rdb).Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := New(Params{
		Service: engine,
		Logger:  logger,
		Config:  cfg.HTTP,
		Metrics: promexport.NewCollector(engine).Handler(),
	})
	require.NoError(t, err)

	return &testServer{engine: engine, handler: srv.Handler()}
}

func (s *testServer) do(t *testing.T, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func credentials(email, password string) string {
	b, _ := json.Marshal(map[string]string{"email": email, "password": password})
	return string(b)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestRegisterRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/users/register", credentials("Alice@Example.com", testPassword), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode(t, rec)
	assert.True(t, resp.Success)

	rec = s.do(t, http.MethodPost, "/users/register", credentials("alice@example.com", testPassword), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_IDENTITY", decode(t, rec).Error.Code)

	rec = s.do(t, http.MethodPost, "/users/register", credentials("not-an-email", testPassword), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/users/register", `{"email":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterLegacyDisabled(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/users/register-legacy", credentials("bob@example.com", testPassword), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "LEGACY_SCHEME_DISABLED", decode(t, rec).Error.Code)
}

func TestRegisterLegacyThenCheck(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Cipher.Secret = "legacy-cipher-secret"
		c.Cipher.AllowLegacyRegistration = true
	})

	rec := s.do(t, http.MethodPost, "/users/register-legacy", credentials("bob@example.com", testPassword), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/users/check", credentials("bob@example.com", testPassword), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/users/check", credentials("bob@example.com", "wrong-password"), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckFailuresAreUnauthorized(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/users/check", credentials("ghost@example.com", testPassword), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decode(t, rec).Error.Code)

	rec = s.do(t, http.MethodPost, "/users/check", `{"email":"ghost@example.com"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginAndMe(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.JWT.FixedClaims = map[string]string{"app": "almacen"}
	})

	rec := s.do(t, http.MethodPost, "/users/register", credentials("carol@example.com", testPassword), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/users/login", credentials("carol@example.com", "wrong-password"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/users/login", credentials("carol@example.com", testPassword), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var login struct {
		Data loginResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	assert.Equal(t, "carol@example.com", login.Data.Email)
	require.NotEmpty(t, login.Data.Token)
	assert.False(t, login.Data.ExpiresAt.IsZero())

	rec = s.do(t, http.MethodGet, "/users/me", "", http.Header{"Authorization": {"Bearer " + login.Data.Token}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var me struct {
		Data meResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "carol@example.com", me.Data.Email)
	assert.Equal(t, "almacen", me.Data.Claims["app"])
	assert.True(t, me.Data.ExpiresAt.Equal(login.Data.ExpiresAt))

	rec = s.do(t, http.MethodGet, "/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/users/me", "", http.Header{"Authorization": {"Bearer " + login.Data.Token + "x"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestResetLinkFlow(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/users/reset-link", `{"email":"dave@example.com"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/users/register", credentials("dave@example.com", testPassword), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/users/reset-link", `{"email":"dave@example.com"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var link struct {
		Data resetLinkResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &link))
	const prefix = "https://localhost:7127/changepassword/"
	require.True(t, strings.HasPrefix(link.Data.URL, prefix), link.Data.URL)
	token := strings.TrimPrefix(link.Data.URL, prefix)

	rec = s.do(t, http.MethodGet, "/changepassword/"+token, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, resetLinkAccepted, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/changepassword/not-a-token", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, resetLinkRejected, rec.Body.String())
}

func TestResetLinkRateLimited(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.PasswordReset.RequestLimit = 1
	})

	rec := s.do(t, http.MethodPost, "/users/register", credentials("erin@example.com", testPassword), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/users/reset-link", `{"email":"erin@example.com"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/users/reset-link", `{"email":"erin@example.com"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestPerIPRateLimit(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.HTTP.RateLimit = config.RateLimit{RPS: 0.001, Burst: 1}
	})

	rec := s.do(t, http.MethodPost, "/users/check", credentials("ghost@example.com", testPassword), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/users/check", credentials("ghost@example.com", testPassword), nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Health and metrics sit outside the limited group.
	rec = s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/users/register", credentials("frank@example.com", testPassword), http.Header{"X-Request-Id": {"req-1"}})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-Id"))

	rec = s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "credcore_register_success_total 1")
}

func TestNewRequiresService(t *testing.T) {
	_, err := New(Params{})
	require.Error(t, err)
}
