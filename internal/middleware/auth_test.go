package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/launchpad/internal/identity"
)

// mockVerifier はテスト用のTokenVerifierモック。
type mockVerifier struct {
	verifyFunc func(tokenString string) (*identity.TokenClaims, error)
}

func (m *mockVerifier) Verify(tokenString string) (*identity.TokenClaims, error) {
	return m.verifyFunc(tokenString)
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	verifier := &mockVerifier{
		verifyFunc: func(tokenString string) (*identity.TokenClaims, error) {
			if tokenString != "valid-token" {
				t.Errorf("expected token valid-token, got %s", tokenString)
			}
			return &identity.TokenClaims{UserID: "user-1"}, nil
		},
	}

	var gotUserID string
	handler := NewAuthMiddleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Result().StatusCode)
	}
	if gotUserID != "user-1" {
		t.Errorf("user ID in context = %q, want user-1", gotUserID)
	}
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	verifier := &mockVerifier{
		verifyFunc: func(tokenString string) (*identity.TokenClaims, error) {
			t.Error("verifier should not be called without a bearer token")
			return nil, nil
		},
	}
	handler := NewAuthMiddleware(verifier)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Result().StatusCode)
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	verifier := &mockVerifier{
		verifyFunc: func(tokenString string) (*identity.TokenClaims, error) {
			return nil, fmt.Errorf("signature invalid")
		},
	}
	handler := NewAuthMiddleware(verifier)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer tampered")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Result().StatusCode)
	}
}

func TestAuthMiddleware_NonBearerScheme(t *testing.T) {
	verifier := &mockVerifier{
		verifyFunc: func(tokenString string) (*identity.TokenClaims, error) {
			t.Error("verifier should not be called for non-bearer auth")
			return nil, nil
		},
	}
	handler := NewAuthMiddleware(verifier)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Result().StatusCode)
	}
}

func TestUserIDFromContext_Missing(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("expected error when user ID is absent")
	}
}

func TestContextWithUserID_RoundTrip(t *testing.T) {
	ctx := ContextWithUserID(context.Background(), "user-9")
	userID, err := UserIDFromContext(ctx)
	if err != nil {
		t.Fatalf("UserIDFromContext failed: %v", err)
	}
	if userID != "user-9" {
		t.Errorf("user ID = %q, want user-9", userID)
	}
}
