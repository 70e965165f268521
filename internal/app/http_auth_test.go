package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"investiflow/api/internal/store"
)

func TestRegisterReturnsSessionAndUser(t *testing.T) {
	var inserted store.User
	fs := &fakeStore{
		insertUserFn: func(_ context.Context, user store.User) (store.User, error) {
			inserted = user
			return user, nil
		},
	}
	svc, _ := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	body := `{"email":"Maria@Example.com","password":"secret-password","fullName":"Maria Lopez"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["token"] == "" || payload["refreshToken"] == "" {
		t.Fatalf("expected token and refreshToken, got %v", payload)
	}
	if inserted.Email != "maria@example.com" {
		t.Fatalf("expected lowercased email, got %q", inserted.Email)
	}
	if inserted.PasswordHash == "secret-password" || inserted.PasswordHash == "" {
		t.Fatalf("password must be stored hashed")
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	fs := &fakeStore{
		emailTakenFn: func(context.Context, string) (bool, error) { return true, nil },
	}
	svc, _ := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	body := `{"email":"maria@example.com","password":"secret-password","fullName":"Maria Lopez"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestLoginWrongPasswordIsUnauthorized(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("right-password"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	fs := &fakeStore{
		getUserByEmailFn: func(context.Context, string) (store.User, error) {
			return store.User{ID: "user-1", Email: "maria@example.com", PasswordHash: string(hash), IsActive: true}, nil
		},
	}
	svc, _ := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	body := `{"email":"maria@example.com","password":"wrong-password"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["code"] != "INVALID_CREDENTIALS" {
		t.Fatalf("expected code INVALID_CREDENTIALS, got %v", payload["code"])
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("right-password"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	fs := &fakeStore{
		getUserByEmailFn: func(context.Context, string) (store.User, error) {
			return store.User{ID: "user-1", Email: "maria@example.com", PasswordHash: string(hash), IsActive: true}, nil
		},
	}
	svc, deps := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	loginBody := `{"email":"maria@example.com","password":"right-password"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(loginBody))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("login failed: %d body=%s", rr.Code, rr.Body.String())
	}
	var loginPayload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &loginPayload); err != nil {
		t.Fatalf("parse login: %v", err)
	}
	refreshToken, _ := loginPayload["refreshToken"].(string)
	if refreshToken == "" {
		t.Fatalf("expected refresh token")
	}
	if len(deps.sessions.tokens) != 1 {
		t.Fatalf("expected one stored refresh session, got %d", len(deps.sessions.tokens))
	}

	refreshBody := fmt.Sprintf(`{"refreshToken":%q}`, refreshToken)
	req = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", bytes.NewBufferString(refreshBody))
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh failed: %d body=%s", rr.Code, rr.Body.String())
	}

	// Old token is single use.
	req = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", bytes.NewBufferString(refreshBody))
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected reused refresh token to fail with 401, got %d", rr.Code)
	}
}

func TestProtectedRouteWithoutBearerIsUnauthorized(t *testing.T) {
	svc, _ := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestProtectedRouteWithGarbageBearerIsUnauthorized(t *testing.T) {
	svc, _ := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	svc, _ := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
}
