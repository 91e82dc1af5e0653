package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/launchpad/internal/model"
	"github.com/hitoshi/launchpad/internal/repository"
	"github.com/hitoshi/launchpad/internal/security"
)

// ServiceConfig は認証サービスアダプタの設定。
type ServiceConfig struct {
	// AppURL はパスワードリセットメールのリダイレクト先ベースURL。
	AppURL string
}

// Service は認証サービスへの委譲とユーザーミラーの整合を担うサービス層。
// セッションのライフサイクルは認証サービス側が所有し、本サービスは
// サインイン時のミラーUPSERTと暗黙の再有効化のみを追加する。
type Service struct {
	client    ProviderClient
	userRepo  repository.UserRepository
	sanitizer security.ProfileSanitizerService
	config    ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	client ProviderClient,
	userRepo repository.UserRepository,
	sanitizer security.ProfileSanitizerService,
	config ServiceConfig,
) *Service {
	return &Service{
		client:    client,
		userRepo:  userRepo,
		sanitizer: sanitizer,
		config:    config,
	}
}

// SignIn はメールアドレスとパスワードでサインインする。
// サインイン成功後、ミラープロファイルをUPSERTし、ソフト削除済みの場合は
// 確認ステップなしで再有効化する（暗黙の再有効化）。
// ミラー操作の失敗はログに記録するがサインイン自体は成功として扱う。
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	remote, err := s.client.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}

	session := s.toSession(remote)

	s.mirrorProfile(ctx, session.User)

	// ソフト削除済みプロファイルの暗黙の再有効化
	mirror, err := s.userRepo.FindByID(ctx, session.User.ID)
	if err != nil {
		slog.Error("failed to check mirror profile",
			slog.String("user_id", session.User.ID),
			slog.String("error", err.Error()),
		)
	} else if mirror != nil && mirror.IsDeleted {
		if err := s.userRepo.Reactivate(ctx, session.User.ID, time.Now()); err != nil {
			slog.Error("failed to reactivate soft-deleted profile",
				slog.String("user_id", session.User.ID),
				slog.String("error", err.Error()),
			)
		} else {
			slog.Info("soft-deleted profile reactivated",
				slog.String("user_id", session.User.ID),
			)
		}
	}

	slog.Info("user signed in", slog.String("user_id", session.User.ID))
	return session, nil
}

// SignUp は新規ユーザーを登録し、セッションを返す。
// 登録成功後、ミラープロファイルをUPSERTする。
func (s *Service) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	remote, err := s.client.SignUp(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("failed to sign up: %w", err)
	}

	session := s.toSession(remote)
	s.mirrorProfile(ctx, session.User)

	slog.Info("new user signed up", slog.String("user_id", session.User.ID))
	return session, nil
}

// RestoreSession はリフレッシュトークンから永続化済みセッションを復元する。
// Auth Context の初期化時に使用する。
func (s *Service) RestoreSession(ctx context.Context, refreshToken string) (*model.Session, error) {
	remote, err := s.client.RefreshSession(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	return s.toSession(remote), nil
}

// SignOut はアクセストークンに紐づくセッションを破棄する。
func (s *Service) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return fmt.Errorf("access token is required")
	}
	if err := s.client.SignOut(ctx, accessToken); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	slog.Info("user signed out")
	return nil
}

// UpdatePassword はユーザーのパスワードを更新する。
func (s *Service) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	if err := s.client.UpdateUser(ctx, accessToken, UserUpdate{Password: newPassword}); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// UpdateEmail はユーザーのメールアドレスを更新する。
func (s *Service) UpdateEmail(ctx context.Context, accessToken, newEmail string) error {
	if err := s.client.UpdateUser(ctx, accessToken, UserUpdate{Email: newEmail}); err != nil {
		return fmt.Errorf("failed to update email: %w", err)
	}
	return nil
}

// ResetPassword はパスワードリセットメールの送信を要求する。
// リセット後の遷移先はアプリのパスワード更新ページ。
func (s *Service) ResetPassword(ctx context.Context, email string) error {
	redirectTo := s.config.AppURL + "/update-password"
	if err := s.client.SendPasswordRecovery(ctx, email, redirectTo); err != nil {
		return fmt.Errorf("failed to request password reset: %w", err)
	}
	return nil
}

// mirrorProfile はユーザーミラー行をUPSERTする。失敗はログのみ。
func (s *Service) mirrorProfile(ctx context.Context, user *model.User) {
	if err := s.userRepo.Upsert(ctx, user); err != nil {
		slog.Error("failed to upsert mirror profile",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
}

// toSession はRemoteSessionをドメインモデルに変換する。
// プロバイダー由来の表示名はサニタイズしてから保持する。
func (s *Service) toSession(remote *RemoteSession) *model.Session {
	now := time.Now()

	displayName := ""
	if v, ok := remote.User.UserMetadata["display_name"].(string); ok {
		displayName = s.sanitizer.Sanitize(v)
	}

	user := &model.User{
		ID:          remote.User.ID,
		Email:       remote.User.Email,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	return &model.Session{
		AccessToken:  remote.AccessToken,
		RefreshToken: remote.RefreshToken,
		ExpiresAt:    now.Add(time.Duration(remote.ExpiresIn) * time.Second),
		User:         user,
	}
}
