// Package account はアカウントのソフト削除を提供する。
// プロフィール行は物理削除せず、削除マーカーの設定とサブスクリプションの
// キャンセルで構成される。
package account

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/launchpad/internal/model"
	"github.com/hitoshi/launchpad/internal/payment"
	"github.com/hitoshi/launchpad/internal/repository"
)

// DeletionResult はアカウント削除の結果。
type DeletionResult struct {
	UserID                string
	CanceledSubscriptions int // プロバイダー側でキャンセルに成功した件数
}

// Service はアカウント削除フローを実行するサービス。
// 削除は3段階で進む: プロバイダー側サブスクリプションのキャンセル（ベストエフォート）、
// ユーザー行のソフト削除（失敗時は全体が失敗）、ミラー行のキャンセルマーク（ログのみ）。
type Service struct {
	provider         payment.Provider
	userRepo         repository.UserRepository
	subscriptionRepo repository.SubscriptionRepository
	logger           *slog.Logger
	now              func() time.Time // テスト用に差し替え可能
}

// NewService はService の新しいインスタンスを生成する。
func NewService(
	provider payment.Provider,
	userRepo repository.UserRepository,
	subscriptionRepo repository.SubscriptionRepository,
	logger *slog.Logger,
) *Service {
	return &Service{
		provider:         provider,
		userRepo:         userRepo,
		subscriptionRepo: subscriptionRepo,
		logger:           logger,
		now:              time.Now,
	}
}

// DeleteAccount はアカウントをソフト削除する。
// プロバイダー側のキャンセル失敗は削除を止めない。ユーザー行の
// ソフト削除失敗のみが全体の失敗となる。
func (s *Service) DeleteAccount(ctx context.Context, userID string) (*DeletionResult, error) {
	if userID == "" {
		return nil, model.NewUserIDRequiredError()
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	canceled := s.cancelProviderSubscriptions(ctx, userID)

	now := s.now()
	if err := s.userRepo.SoftDelete(ctx, userID, now); err != nil {
		return nil, fmt.Errorf("failed to soft-delete user: %w", err)
	}

	// ミラー行のキャンセルマーク失敗は削除結果に影響しない
	if err := s.subscriptionRepo.MarkCanceledByUserID(ctx, userID, now); err != nil {
		s.logger.Error("failed to mark mirror subscriptions canceled",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("account soft-deleted",
		slog.String("user_id", userID),
		slog.Int("canceled_subscriptions", canceled),
	)

	return &DeletionResult{
		UserID:                userID,
		CanceledSubscriptions: canceled,
	}, nil
}

// cancelProviderSubscriptions はユーザーの有効なサブスクリプションを
// プロバイダー側でキャンセルする。個々の失敗はログに記録して続行する。
func (s *Service) cancelProviderSubscriptions(ctx context.Context, userID string) int {
	subs, err := s.subscriptionRepo.ListByUserID(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list subscriptions for cancellation",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return 0
	}

	canceled := 0
	for _, sub := range subs {
		if sub.StripeSubscriptionID == "" {
			continue
		}
		// キャンセル対象はactive/trialingのみ（past_due等はプロバイダーに任せる）
		if sub.Status != model.SubscriptionStatusActive && sub.Status != model.SubscriptionStatusTrialing {
			continue
		}
		if err := s.provider.CancelSubscription(ctx, sub.StripeSubscriptionID); err != nil {
			s.logger.Error("failed to cancel provider subscription",
				slog.String("user_id", userID),
				slog.String("stripe_subscription_id", sub.StripeSubscriptionID),
				slog.String("error", err.Error()),
			)
			continue
		}
		canceled++
	}
	return canceled
}
