// Package entitlement はサブスクリプション加入状態の判定を提供する。
package entitlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/launchpad/internal/repository"
)

// Checker は加入状態判定のインターフェース。
type Checker interface {
	// IsSubscriber はユーザーが有効な加入者かどうかを返す。
	// 判定に失敗した場合はfalseを返す（フェイルクローズ）。
	IsSubscriber(ctx context.Context, userID string) bool
}

// SubscriptionChecker はミラーDBのサブスクリプション行から加入状態を判定するCheckerの実装。
// 加入者と判定されるのはステータスがactiveまたはtrialingで、
// 課金期間終了日時が現在より厳密に未来の場合のみ。
type SubscriptionChecker struct {
	subscriptionRepo repository.SubscriptionRepository
	logger           *slog.Logger
	now              func() time.Time // テスト用に差し替え可能
}

// NewSubscriptionChecker はSubscriptionChecker の新しいインスタンスを生成する。
func NewSubscriptionChecker(subscriptionRepo repository.SubscriptionRepository, logger *slog.Logger) *SubscriptionChecker {
	return &SubscriptionChecker{
		subscriptionRepo: subscriptionRepo,
		logger:           logger,
		now:              time.Now,
	}
}

// IsSubscriber はユーザーが有効な加入者かどうかを返す。
// 参照エラーは加入者でない扱いに縮退し、エラーは伝播しない。
func (c *SubscriptionChecker) IsSubscriber(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}

	sub, err := c.subscriptionRepo.FindLatestEntitledByUserID(ctx, userID)
	if err != nil {
		// フェイルクローズ: 判定不能時は非加入者として扱う
		c.logger.Error("failed to look up subscription for entitlement check",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return false
	}
	if sub == nil {
		return false
	}

	return sub.IsEntitled(c.now())
}

// compile-time interface check
var _ Checker = (*SubscriptionChecker)(nil)
