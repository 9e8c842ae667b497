package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/agentdesk/agentdesk/internal/api/middleware"
	"github.com/agentdesk/agentdesk/internal/auth"
	"github.com/agentdesk/agentdesk/internal/store"
	pkgmw "github.com/agentdesk/agentdesk/pkg/middleware"
	"github.com/agentdesk/agentdesk/pkg/models"
)

func newTestChain(t *testing.T) (*auth.ProviderChain, *auth.TokenService, store.Store) {
	t.Helper()
	dir := t.TempDir()
	os.Setenv("AGENTDESK_DATA_DIR", dir)
	defer os.Unsetenv("AGENTDESK_DATA_DIR")
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })

	tokens := auth.NewTokenService("test-secret", time.Hour)
	chain := auth.NewProviderChain()
	chain.RegisterProvider(auth.NewJWTProvider(tokens, s))
	chain.RegisterProvider(auth.NewAPIKeyProvider(s))
	return chain, tokens, s
}

func seedUser(t *testing.T, s store.Store) *models.User {
	t.Helper()
	u := &models.User{ID: "u1", Email: "a@b.co", Username: "alice", Role: models.RoleUser, IsActive: true}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return u
}

func echoUserHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pkgmw.GetUserID(r.Context())))
	})
}

func TestAuthMiddlewareRejectsAnonymous(t *testing.T) {
	chain, _, _ := newTestChain(t)
	h := middleware.NewAuthMiddleware(chain).Handler(echoUserHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/api/workflows", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := rec.Header().Get("WWW-Authenticate"); !strings.Contains(got, "agentdesk") {
		t.Errorf("WWW-Authenticate = %q", got)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["error"] != "authentication_required" {
		t.Errorf("error = %q, want authentication_required", body["error"])
	}
}

func TestAuthMiddlewarePublicPathsSkipAuth(t *testing.T) {
	chain, _, _ := newTestChain(t)
	h := middleware.NewAuthMiddleware(chain).Handler(echoUserHandler(t))

	for _, path := range []string{"/health", "/version", "/api/auth/register", "/api/auth/login"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
	}
}

func TestAuthMiddlewareAcceptsJWT(t *testing.T) {
	chain, tokens, s := newTestChain(t)
	u := seedUser(t, s)
	token, err := tokens.Generate(u)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	h := middleware.NewAuthMiddleware(chain).Handler(echoUserHandler(t))
	req := httptest.NewRequest(http.MethodGet, "/api/workflows", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != u.ID {
		t.Errorf("user in context = %q, want %q", rec.Body.String(), u.ID)
	}
}

func TestAuthMiddlewareAcceptsAPIKey(t *testing.T) {
	chain, _, s := newTestChain(t)
	u := seedUser(t, s)

	gen, err := auth.GenerateKey(u.ID, "ci", nil)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	if err := s.CreateAPIKey(context.Background(), gen.Key); err != nil {
		t.Fatalf("CreateAPIKey() error = %v", err)
	}

	h := middleware.NewAuthMiddleware(chain).Handler(echoUserHandler(t))
	req := httptest.NewRequest(http.MethodGet, "/api/workflows", nil)
	req.Header.Set("X-API-Key", gen.Secret)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != u.ID {
		t.Errorf("user in context = %q, want %q", rec.Body.String(), u.ID)
	}
}

func TestAuthMiddlewareRejectsBadToken(t *testing.T) {
	chain, _, _ := newTestChain(t)
	h := middleware.NewAuthMiddleware(chain).Handler(echoUserHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/api/workflows", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
