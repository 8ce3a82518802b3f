package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"slidecast/internal/api"
	"slidecast/internal/auth"
	"slidecast/internal/storage"
)

func newTestHandler(t *testing.T) (*api.Handler, *storage.Storage) {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("NewStorage error: %v", err)
	}
	tokens, err := auth.NewTokenIssuer([]byte("server-test-secret"))
	if err != nil {
		t.Fatalf("NewTokenIssuer error: %v", err)
	}
	return api.NewHandler(store, tokens, nil, slog.Default()), store
}

func issueTestToken(t *testing.T, handler *api.Handler, store *storage.Storage) (string, string) {
	t.Helper()
	user, err := store.CreateUser(storage.CreateUserParams{
		Username: "presenter",
		Email:    "presenter@example.com",
		Password: "super-secret",
	})
	if err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	token, err := handler.Tokens.Issue(user.ID, user.Email)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	return token, user.ID
}

func TestNewReturnsErrorWhenHandlerNil(t *testing.T) {
	t.Parallel()

	srv, err := New(nil, Config{})
	if err == nil {
		t.Fatalf("expected error when handler is nil, got server: %#v", srv)
	}
}

func TestAuthMiddlewareAcceptsBearerToken(t *testing.T) {
	handler, store := newTestHandler(t)
	token, userID := issueTestToken(t, handler, store)

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		identity, ok := api.IdentityFromContext(r.Context())
		if !ok {
			t.Fatal("expected identity in context")
		}
		if identity.UserID != userID {
			t.Fatalf("expected user %s, got %s", userID, identity.UserID)
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	authMiddleware(handler, next).ServeHTTP(rec, req)

	if !nextCalled {
		t.Fatal("expected middleware to call next handler")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestAuthMiddlewareAcceptsCookie(t *testing.T) {
	handler, store := newTestHandler(t)
	token, _ := issueTestToken(t, handler, store)

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.AddCookie(&http.Cookie{Name: api.AuthCookieName, Value: token})
	rec := httptest.NewRecorder()

	authMiddleware(handler, next).ServeHTTP(rec, req)

	if !nextCalled {
		t.Fatal("expected middleware to call next handler")
	}
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	handler, _ := newTestHandler(t)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unexpected call to next handler")
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session", nil)
	rec := httptest.NewRecorder()

	authMiddleware(handler, next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["error"] == "" {
		t.Fatal("expected error message in response")
	}
}

func TestAuthMiddlewareRejectsTamperedToken(t *testing.T) {
	handler, store := newTestHandler(t)
	token, _ := issueTestToken(t, handler, store)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unexpected call to next handler")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token+"x")
	rec := httptest.NewRecorder()

	authMiddleware(handler, next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestAuthMiddlewareSkipsPublicPaths(t *testing.T) {
	handler, _ := newTestHandler(t)

	paths := []string{"/healthz", "/metrics", "/api/v1/ping", "/api/v1/signup", "/api/v1/signin", "/favicon.ico"}
	for _, path := range paths {
		nextCalled := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			nextCalled = true
		})

		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		authMiddleware(handler, next).ServeHTTP(rec, req)

		if !nextCalled {
			t.Fatalf("expected %s to bypass auth", path)
		}
	}
}

func TestRateLimitMiddlewareThrottlesSignin(t *testing.T) {
	rl, err := newRateLimiter(RateLimitConfig{SigninLimit: 2, SigninWindow: time.Minute})
	if err != nil {
		t.Fatalf("newRateLimiter error: %v", err)
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	chain := rateLimitMiddleware(rl, slog.Default(), next)

	for attempt := 1; attempt <= 2; attempt++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/signin", nil)
		req.RemoteAddr = "198.51.100.7:4444"
		rec := httptest.NewRecorder()
		chain.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", attempt, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/signin", nil)
	req.RemoteAddr = "198.51.100.7:4444"
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on throttled signin")
	}

	// other endpoints stay unthrottled
	other := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	other.RemoteAddr = "198.51.100.7:4444"
	rec = httptest.NewRecorder()
	chain.ServeHTTP(rec, other)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for non-signin path, got %d", rec.Code)
	}
}

func TestRateLimitMiddlewareSeparatesClients(t *testing.T) {
	rl, err := newRateLimiter(RateLimitConfig{SigninLimit: 1, SigninWindow: time.Minute})
	if err != nil {
		t.Fatalf("newRateLimiter error: %v", err)
	}
	chain := rateLimitMiddleware(rl, slog.Default(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRequest(http.MethodPost, "/api/v1/signin", nil)
	first.Header.Set("X-Forwarded-For", "203.0.113.10, 10.0.0.1")
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, first)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected first client to pass, got %d", rec.Code)
	}

	blocked := httptest.NewRequest(http.MethodPost, "/api/v1/signin", nil)
	blocked.Header.Set("X-Forwarded-For", "203.0.113.10")
	rec = httptest.NewRecorder()
	chain.ServeHTTP(rec, blocked)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected repeat client to be throttled, got %d", rec.Code)
	}

	other := httptest.NewRequest(http.MethodPost, "/api/v1/signin", nil)
	other.Header.Set("X-Forwarded-For", "203.0.113.99")
	rec = httptest.NewRecorder()
	chain.ServeHTTP(rec, other)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected distinct client to pass, got %d", rec.Code)
	}
}

func TestServerRoutesEndToEnd(t *testing.T) {
	handler, store := newTestHandler(t)
	token, _ := issueTestToken(t, handler, store)

	srv, err := New(handler, Config{Addr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})

	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/api/v1/ping")
	if err != nil {
		t.Fatalf("ping request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ping 200, got %d", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/sessions", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("sessions request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authorized sessions request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatal("expected X-Request-Id header from middleware chain")
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("expected security headers from middleware chain")
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", resp.StatusCode)
	}
}
