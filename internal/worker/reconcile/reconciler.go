// Package reconcile はサブスクリプションミラーの定期再同期を提供する。
// 期間終了を過ぎてもactive/trialingのまま残っている行をStripeと突き合わせ、
// ミラーのドリフトを解消する。
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/launchpad/internal/billing"
	"github.com/hitoshi/launchpad/internal/repository"
)

// defaultBatchSize は1サイクルで再同期する最大行数。
const defaultBatchSize = 100

// SyncServiceInterface はリコンサイラが必要とする同期サービスのインターフェース。
type SyncServiceInterface interface {
	// SyncSubscription はStripeを信頼元としてミラー行を同期する。
	SyncSubscription(ctx context.Context, stripeSubscriptionID string) (*billing.SyncResult, error)
}

// Reconciler は期限切れのまま残ったミラー行の再同期を行う。
// 定期ティッカーで対象行を取得し、semaphoreパターンで最大並列数を
// 制御しながら同期を実行する。
type Reconciler struct {
	subscriptionRepo repository.SubscriptionRepository
	syncService      SyncServiceInterface
	logger           *slog.Logger
	maxConcurrency   int
	batchSize        int
	now              func() time.Time // テスト用に差し替え可能
}

// NewReconciler はReconcilerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値5を使用する。
func NewReconciler(
	subscriptionRepo repository.SubscriptionRepository,
	syncService SyncServiceInterface,
	logger *slog.Logger,
	maxConcurrency int,
) *Reconciler {
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	return &Reconciler{
		subscriptionRepo: subscriptionRepo,
		syncService:      syncService,
		logger:           logger,
		maxConcurrency:   maxConcurrency,
		batchSize:        defaultBatchSize,
		now:              time.Now,
	}
}

// Start は指定間隔のティッカーでリコンサイラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("リコンサイラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", r.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := r.RunOnce(ctx); err != nil {
		r.logger.Error("再同期サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("リコンサイラを停止しました")
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error("再同期サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は再同期対象の行を1回取得し、並列で同期を実行する。
// 個々の行の同期失敗はログに記録して続行する。
func (r *Reconciler) RunOnce(ctx context.Context) error {
	start := time.Now()

	subs, err := r.subscriptionRepo.ListExpiredEntitled(ctx, r.now(), r.batchSize)
	if err != nil {
		return err
	}

	if len(subs) == 0 {
		r.logger.Info("再同期対象のサブスクリプションはありません")
		return nil
	}

	r.logger.Info("再同期サイクルを開始します",
		slog.Int("subscription_count", len(subs)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, r.maxConcurrency)
	var wg sync.WaitGroup

	for _, sub := range subs {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(stripeSubscriptionID string) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if _, err := r.syncService.SyncSubscription(ctx, stripeSubscriptionID); err != nil {
				r.logger.Error("サブスクリプションの再同期に失敗しました",
					slog.String("stripe_subscription_id", stripeSubscriptionID),
					slog.String("error", err.Error()),
				)
			}
		}(sub.StripeSubscriptionID)
	}

	wg.Wait()

	r.logger.Info("再同期サイクルが完了しました",
		slog.Int("subscription_count", len(subs)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}
