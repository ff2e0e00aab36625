package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/credcore/jwt"
)

type fakeValidator struct {
	valid string
	calls int
}

func (f *fakeValidator) ValidateToken(_ context.Context, token string) (*jwt.Claims, error) {
	f.calls++
	if token != f.valid {
		return nil, jwt.ErrBadSignature
	}
	return &jwt.Claims{Identity: "a@x.com"}, nil
}

func serve(t *testing.T, v TokenValidator, header string) (*httptest.ResponseRecorder, *jwt.Claims) {
	t.Helper()

	var seen *jwt.Claims
	h := Guard(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr, seen
}

func TestGuardAcceptsValidBearer(t *testing.T) {
	v := &fakeValidator{valid: "good"}

	rr, claims := serve(t, v, "Bearer good")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if claims == nil || claims.Identity != "a@x.com" {
		t.Fatalf("claims not propagated: %+v", claims)
	}

	if rr, _ := serve(t, v, "bearer good"); rr.Code != http.StatusNoContent {
		t.Fatalf("expected case-insensitive scheme, got %d", rr.Code)
	}
}

func TestGuardRejects(t *testing.T) {
	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic Zm9vOmJhcg==",
		"empty token":    "Bearer   ",
		"invalid token":  "Bearer forged",
	}

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			rr, claims := serve(t, &fakeValidator{valid: "good"}, header)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
			if rr.Header().Get("WWW-Authenticate") == "" {
				t.Fatal("missing WWW-Authenticate header")
			}
			if claims != nil {
				t.Fatal("handler ran for rejected request")
			}
		})
	}
}

func TestGuardNilValidator(t *testing.T) {
	if rr, _ := serve(t, nil, "Bearer good"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
