package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/launchpad/internal/model"
	"github.com/hitoshi/launchpad/internal/security"
)

// mockProviderClient はテスト用のProviderClientモック。
type mockProviderClient struct {
	signInFunc       func(ctx context.Context, email, password string) (*RemoteSession, error)
	signUpFunc       func(ctx context.Context, email, password string) (*RemoteSession, error)
	refreshFunc      func(ctx context.Context, refreshToken string) (*RemoteSession, error)
	signOutFunc      func(ctx context.Context, accessToken string) error
	updateUserFunc   func(ctx context.Context, accessToken string, update UserUpdate) error
	sendRecoveryFunc func(ctx context.Context, email, redirectTo string) error
}

func (m *mockProviderClient) SignInWithPassword(ctx context.Context, email, password string) (*RemoteSession, error) {
	return m.signInFunc(ctx, email, password)
}

func (m *mockProviderClient) SignUp(ctx context.Context, email, password string) (*RemoteSession, error) {
	return m.signUpFunc(ctx, email, password)
}

func (m *mockProviderClient) RefreshSession(ctx context.Context, refreshToken string) (*RemoteSession, error) {
	return m.refreshFunc(ctx, refreshToken)
}

func (m *mockProviderClient) SignOut(ctx context.Context, accessToken string) error {
	return m.signOutFunc(ctx, accessToken)
}

func (m *mockProviderClient) UpdateUser(ctx context.Context, accessToken string, update UserUpdate) error {
	return m.updateUserFunc(ctx, accessToken, update)
}

func (m *mockProviderClient) SendPasswordRecovery(ctx context.Context, email, redirectTo string) error {
	return m.sendRecoveryFunc(ctx, email, redirectTo)
}

// mockUserRepository はテスト用のUserRepositoryモック。
type mockUserRepository struct {
	findByIDFunc   func(ctx context.Context, id string) (*model.User, error)
	upsertFunc     func(ctx context.Context, user *model.User) error
	softDeleteFunc func(ctx context.Context, id string, deletedAt time.Time) error
	reactivateFunc func(ctx context.Context, id string, reactivatedAt time.Time) error
}

func (m *mockUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	return m.findByIDFunc(ctx, id)
}

func (m *mockUserRepository) Upsert(ctx context.Context, user *model.User) error {
	return m.upsertFunc(ctx, user)
}

func (m *mockUserRepository) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	return m.softDeleteFunc(ctx, id, deletedAt)
}

func (m *mockUserRepository) Reactivate(ctx context.Context, id string, reactivatedAt time.Time) error {
	return m.reactivateFunc(ctx, id, reactivatedAt)
}

func activeSession() *RemoteSession {
	return &RemoteSession{
		AccessToken:  "access-123",
		RefreshToken: "refresh-456",
		ExpiresIn:    3600,
		User: RemoteUser{
			ID:    "user-1",
			Email: "user@example.com",
			UserMetadata: map[string]any{
				"display_name": "Taro",
			},
		},
	}
}

func newTestService(client ProviderClient, userRepo *mockUserRepository) *Service {
	return NewService(client, userRepo, security.NewProfileSanitizer(), ServiceConfig{
		AppURL: "https://app.example.com",
	})
}

func TestService_SignIn(t *testing.T) {
	upserted := false
	client := &mockProviderClient{
		signInFunc: func(ctx context.Context, email, password string) (*RemoteSession, error) {
			return activeSession(), nil
		},
	}
	userRepo := &mockUserRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, IsDeleted: false}, nil
		},
		upsertFunc: func(ctx context.Context, user *model.User) error {
			upserted = true
			if user.ID != "user-1" {
				t.Errorf("expected mirror upsert for user-1, got %s", user.ID)
			}
			if user.DisplayName != "Taro" {
				t.Errorf("expected display name Taro, got %s", user.DisplayName)
			}
			return nil
		},
		reactivateFunc: func(ctx context.Context, id string, reactivatedAt time.Time) error {
			t.Error("Reactivate should not be called for an active profile")
			return nil
		},
	}

	service := newTestService(client, userRepo)
	session, err := service.SignIn(context.Background(), "user@example.com", "secret")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if !upserted {
		t.Error("mirror profile should be upserted on sign-in")
	}
	if session.AccessToken != "access-123" {
		t.Errorf("expected access token access-123, got %s", session.AccessToken)
	}
	if session.User.Email != "user@example.com" {
		t.Errorf("expected email user@example.com, got %s", session.User.Email)
	}
	if time.Until(session.ExpiresAt) <= 0 {
		t.Error("session expiry should be in the future")
	}
}

func TestService_SignIn_ReactivatesSoftDeletedProfile(t *testing.T) {
	reactivated := false
	client := &mockProviderClient{
		signInFunc: func(ctx context.Context, email, password string) (*RemoteSession, error) {
			return activeSession(), nil
		},
	}
	userRepo := &mockUserRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			deletedAt := time.Now().Add(-24 * time.Hour)
			return &model.User{ID: id, IsDeleted: true, DeletedAt: &deletedAt}, nil
		},
		upsertFunc: func(ctx context.Context, user *model.User) error { return nil },
		reactivateFunc: func(ctx context.Context, id string, reactivatedAt time.Time) error {
			reactivated = true
			if id != "user-1" {
				t.Errorf("expected reactivation of user-1, got %s", id)
			}
			return nil
		},
	}

	service := newTestService(client, userRepo)
	if _, err := service.SignIn(context.Background(), "user@example.com", "secret"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if !reactivated {
		t.Error("soft-deleted profile should be reactivated on sign-in")
	}
}

func TestService_SignIn_MirrorFailureDoesNotFailSignIn(t *testing.T) {
	client := &mockProviderClient{
		signInFunc: func(ctx context.Context, email, password string) (*RemoteSession, error) {
			return activeSession(), nil
		},
	}
	userRepo := &mockUserRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return nil, errors.New("db down")
		},
		upsertFunc: func(ctx context.Context, user *model.User) error {
			return errors.New("db down")
		},
	}

	service := newTestService(client, userRepo)
	session, err := service.SignIn(context.Background(), "user@example.com", "secret")
	if err != nil {
		t.Fatalf("mirror failures must not fail sign-in: %v", err)
	}
	if session == nil {
		t.Fatal("expected session despite mirror failure")
	}
}

func TestService_SignIn_ReactivationFailureDoesNotFailSignIn(t *testing.T) {
	client := &mockProviderClient{
		signInFunc: func(ctx context.Context, email, password string) (*RemoteSession, error) {
			return activeSession(), nil
		},
	}
	userRepo := &mockUserRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, IsDeleted: true}, nil
		},
		upsertFunc: func(ctx context.Context, user *model.User) error { return nil },
		reactivateFunc: func(ctx context.Context, id string, reactivatedAt time.Time) error {
			return errors.New("db down")
		},
	}

	service := newTestService(client, userRepo)
	if _, err := service.SignIn(context.Background(), "user@example.com", "secret"); err != nil {
		t.Fatalf("reactivation failure must not fail sign-in: %v", err)
	}
}

func TestService_SignIn_ProviderError(t *testing.T) {
	client := &mockProviderClient{
		signInFunc: func(ctx context.Context, email, password string) (*RemoteSession, error) {
			return nil, errors.New("invalid credentials")
		},
	}
	userRepo := &mockUserRepository{}

	service := newTestService(client, userRepo)
	if _, err := service.SignIn(context.Background(), "user@example.com", "wrong"); err == nil {
		t.Error("expected error when provider rejects credentials")
	}
}

func TestService_SignIn_SanitizesDisplayName(t *testing.T) {
	client := &mockProviderClient{
		signInFunc: func(ctx context.Context, email, password string) (*RemoteSession, error) {
			session := activeSession()
			session.User.UserMetadata["display_name"] = "<script>alert(1)</script>Taro"
			return session, nil
		},
	}
	var mirrored *model.User
	userRepo := &mockUserRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
		upsertFunc: func(ctx context.Context, user *model.User) error {
			mirrored = user
			return nil
		},
	}

	service := newTestService(client, userRepo)
	if _, err := service.SignIn(context.Background(), "user@example.com", "secret"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if mirrored == nil {
		t.Fatal("expected mirror upsert")
	}
	if mirrored.DisplayName != "Taro" {
		t.Errorf("display name should be sanitized, got %q", mirrored.DisplayName)
	}
}

func TestService_SignUp(t *testing.T) {
	upserted := false
	client := &mockProviderClient{
		signUpFunc: func(ctx context.Context, email, password string) (*RemoteSession, error) {
			return activeSession(), nil
		},
	}
	userRepo := &mockUserRepository{
		upsertFunc: func(ctx context.Context, user *model.User) error {
			upserted = true
			return nil
		},
	}

	service := newTestService(client, userRepo)
	session, err := service.SignUp(context.Background(), "user@example.com", "secret")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if !upserted {
		t.Error("mirror profile should be upserted on sign-up")
	}
	if session.User.ID != "user-1" {
		t.Errorf("expected user ID user-1, got %s", session.User.ID)
	}
}

func TestService_RestoreSession(t *testing.T) {
	client := &mockProviderClient{
		refreshFunc: func(ctx context.Context, refreshToken string) (*RemoteSession, error) {
			if refreshToken != "refresh-456" {
				t.Errorf("expected refresh token refresh-456, got %s", refreshToken)
			}
			return activeSession(), nil
		},
	}

	service := newTestService(client, &mockUserRepository{})
	session, err := service.RestoreSession(context.Background(), "refresh-456")
	if err != nil {
		t.Fatalf("RestoreSession failed: %v", err)
	}
	if session.User.ID != "user-1" {
		t.Errorf("expected user ID user-1, got %s", session.User.ID)
	}
}

func TestService_SignOut(t *testing.T) {
	called := false
	client := &mockProviderClient{
		signOutFunc: func(ctx context.Context, accessToken string) error {
			called = true
			if accessToken != "access-123" {
				t.Errorf("expected access token access-123, got %s", accessToken)
			}
			return nil
		},
	}

	service := newTestService(client, &mockUserRepository{})
	if err := service.SignOut(context.Background(), "access-123"); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if !called {
		t.Error("provider SignOut should be called")
	}
}

func TestService_SignOut_EmptyToken(t *testing.T) {
	service := newTestService(&mockProviderClient{}, &mockUserRepository{})
	if err := service.SignOut(context.Background(), ""); err == nil {
		t.Error("expected error for empty access token")
	}
}

func TestService_UpdatePassword(t *testing.T) {
	client := &mockProviderClient{
		updateUserFunc: func(ctx context.Context, accessToken string, update UserUpdate) error {
			if update.Password != "new-secret" {
				t.Errorf("expected password update, got %+v", update)
			}
			if update.Email != "" {
				t.Error("email should not be set for password update")
			}
			return nil
		},
	}

	service := newTestService(client, &mockUserRepository{})
	if err := service.UpdatePassword(context.Background(), "access-123", "new-secret"); err != nil {
		t.Fatalf("UpdatePassword failed: %v", err)
	}
}

func TestService_UpdateEmail(t *testing.T) {
	client := &mockProviderClient{
		updateUserFunc: func(ctx context.Context, accessToken string, update UserUpdate) error {
			if update.Email != "new@example.com" {
				t.Errorf("expected email update, got %+v", update)
			}
			return nil
		},
	}

	service := newTestService(client, &mockUserRepository{})
	if err := service.UpdateEmail(context.Background(), "access-123", "new@example.com"); err != nil {
		t.Fatalf("UpdateEmail failed: %v", err)
	}
}

func TestService_ResetPassword(t *testing.T) {
	client := &mockProviderClient{
		sendRecoveryFunc: func(ctx context.Context, email, redirectTo string) error {
			if email != "user@example.com" {
				t.Errorf("expected email user@example.com, got %s", email)
			}
			if redirectTo != "https://app.example.com/update-password" {
				t.Errorf("expected update-password redirect, got %s", redirectTo)
			}
			return nil
		},
	}

	service := newTestService(client, &mockUserRepository{})
	if err := service.ResetPassword(context.Background(), "user@example.com"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}
}
