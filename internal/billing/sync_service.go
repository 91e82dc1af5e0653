// Package billing はStripeとミラーDB間のサブスクリプション同期を提供する。
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/launchpad/internal/model"
	"github.com/hitoshi/launchpad/internal/payment"
	"github.com/hitoshi/launchpad/internal/repository"
)

// SyncResult は同期処理の結果。
type SyncResult struct {
	StripeSubscriptionID string
	UserID               string
	Status               model.SubscriptionStatus
	CurrentPeriodEnd     time.Time
	Created              bool // 新規ミラー行が作成された場合true
}

// SyncService はStripeを信頼元としてミラー行をUPSERTするサービス。
// キーはstripe_subscription_id。既存行は可変フィールドのみ更新し、
// 識別子フィールドは変更しない。
type SyncService struct {
	provider         payment.Provider
	subscriptionRepo repository.SubscriptionRepository
	logger           *slog.Logger
	now              func() time.Time // テスト用に差し替え可能
}

// NewSyncService はSyncService の新しいインスタンスを生成する。
func NewSyncService(provider payment.Provider, subscriptionRepo repository.SubscriptionRepository, logger *slog.Logger) *SyncService {
	return &SyncService{
		provider:         provider,
		subscriptionRepo: subscriptionRepo,
		logger:           logger,
		now:              time.Now,
	}
}

// SyncSubscription はStripeから最新のサブスクリプション状態を取得し、
// ミラー行に反映する。既存のミラー行がある場合は可変フィールドのみ更新し、
// 顧客情報には触れない。新規作成時のみ顧客メタデータからuser_idを解決し、
// 顧客が削除済み、またはuser_idのない孤立した顧客の場合はエラーを返す。
func (s *SyncService) SyncSubscription(ctx context.Context, stripeSubscriptionID string) (*SyncResult, error) {
	if stripeSubscriptionID == "" {
		return nil, model.NewSubscriptionIDRequiredError()
	}

	sub, err := s.provider.RetrieveSubscription(ctx, stripeSubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve subscription from provider: %w", err)
	}

	status := model.SubscriptionStatus(sub.Status)
	periodEnd := sub.PeriodEnd()

	existing, err := s.subscriptionRepo.FindByStripeSubscriptionID(ctx, stripeSubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up mirror row: %w", err)
	}

	var userID string
	created := false
	if existing != nil {
		// 更新パスでは所有者は確定済みのため顧客を参照しない
		userID = existing.UserID
		if err := s.subscriptionRepo.UpdateSyncFields(ctx, stripeSubscriptionID, status, sub.CancelAtPeriodEnd, periodEnd); err != nil {
			return nil, fmt.Errorf("failed to update mirror row: %w", err)
		}
	} else {
		customer, err := s.provider.RetrieveCustomer(ctx, sub.Customer)
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve customer from provider: %w", err)
		}
		if customer.Deleted {
			return nil, model.NewCustomerDeletedError(customer.ID)
		}

		userID = customer.UserID()
		if userID == "" {
			// user_idメタデータのない顧客はどのユーザーにも紐づけられない
			return nil, model.NewOrphanedSubscriptionError(customer.ID)
		}

		now := s.now()
		mirror := &model.Subscription{
			ID:                   uuid.New().String(),
			UserID:               userID,
			StripeCustomerID:     customer.ID,
			StripeSubscriptionID: stripeSubscriptionID,
			Status:               status,
			PriceID:              sub.PriceID(),
			CurrentPeriodEnd:     periodEnd,
			CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := s.subscriptionRepo.Create(ctx, mirror); err != nil {
			return nil, fmt.Errorf("failed to create mirror row: %w", err)
		}
		created = true
	}

	s.logger.Info("subscription synced",
		slog.String("stripe_subscription_id", stripeSubscriptionID),
		slog.String("user_id", userID),
		slog.String("status", string(status)),
		slog.Bool("created", created),
	)

	return &SyncResult{
		StripeSubscriptionID: stripeSubscriptionID,
		UserID:               userID,
		Status:               status,
		CurrentPeriodEnd:     periodEnd,
		Created:              created,
	}, nil
}

// TestConnection はStripe APIへの疎通を確認する。残高取得で認証と到達性を検証する。
func (s *SyncService) TestConnection(ctx context.Context) error {
	if _, err := s.provider.RetrieveBalance(ctx); err != nil {
		return fmt.Errorf("failed to reach payment provider: %w", err)
	}
	return nil
}
