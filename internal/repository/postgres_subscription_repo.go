package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/launchpad/internal/model"
)

// subscriptionColumns はSELECT句で使用するカラムリスト。
const subscriptionColumns = `id, user_id, stripe_customer_id, stripe_subscription_id,
	status, price_id, current_period_end, cancel_at_period_end, deleted_at, created_at, updated_at`

// PostgresSubscriptionRepo はPostgreSQLを使用したサブスクリプションミラーリポジトリ。
type PostgresSubscriptionRepo struct {
	db *sql.DB
}

// NewPostgresSubscriptionRepo はPostgresSubscriptionRepoを生成する。
func NewPostgresSubscriptionRepo(db *sql.DB) *PostgresSubscriptionRepo {
	return &PostgresSubscriptionRepo{db: db}
}

// scanSubscription は1行をSubscriptionにスキャンする。
func scanSubscription(row interface{ Scan(dest ...any) error }) (*model.Subscription, error) {
	sub := &model.Subscription{}
	err := row.Scan(&sub.ID, &sub.UserID, &sub.StripeCustomerID, &sub.StripeSubscriptionID,
		&sub.Status, &sub.PriceID, &sub.CurrentPeriodEnd, &sub.CancelAtPeriodEnd,
		&sub.DeletedAt, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// FindByStripeSubscriptionID はプロバイダーのサブスクリプションIDでミラー行を検索する。
// 見つからない場合はnilを返す。
func (r *PostgresSubscriptionRepo) FindByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*model.Subscription, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE stripe_subscription_id = $1`,
		stripeSubscriptionID,
	)

	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("サブスクリプションの取得に失敗しました: %w", err)
	}

	return sub, nil
}

// FindLatestEntitledByUserID はユーザーのactive/trialing行のうち
// created_atが最新の1行を返す。該当行がない場合はnilを返す。
// 複数の同時有効行が存在する場合のタイブレークはcreated_at降順のみ
// （データ異常の可能性があるが、推測で防御せず元の挙動を維持する）。
func (r *PostgresSubscriptionRepo) FindLatestEntitledByUserID(ctx context.Context, userID string) (*model.Subscription, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE user_id = $1 AND status IN ('active', 'trialing')
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID,
	)

	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("有効サブスクリプションの検索に失敗しました: %w", err)
	}

	return sub, nil
}

// ListByUserID はユーザーの全サブスクリプション行を返す。
func (r *PostgresSubscriptionRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Subscription, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("サブスクリプション一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var subs []*model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("サブスクリプション行の読み取りに失敗しました: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("サブスクリプション一覧の走査に失敗しました: %w", err)
	}
	return subs, nil
}

// Create はミラー行を作成する。
func (r *PostgresSubscriptionRepo) Create(ctx context.Context, sub *model.Subscription) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subscriptions
		 (id, user_id, stripe_customer_id, stripe_subscription_id, status, price_id,
		  current_period_end, cancel_at_period_end, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sub.ID, sub.UserID, sub.StripeCustomerID, sub.StripeSubscriptionID,
		sub.Status, sub.PriceID, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd,
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("サブスクリプションミラーの作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateSyncFields は同期対象の可変フィールドのみを更新する。識別子は変更しない。
func (r *PostgresSubscriptionRepo) UpdateSyncFields(ctx context.Context, stripeSubscriptionID string, status model.SubscriptionStatus, cancelAtPeriodEnd bool, currentPeriodEnd time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE subscriptions
		 SET status = $2, cancel_at_period_end = $3, current_period_end = $4, updated_at = NOW()
		 WHERE stripe_subscription_id = $1`,
		stripeSubscriptionID, status, cancelAtPeriodEnd, currentPeriodEnd,
	)
	if err != nil {
		return fmt.Errorf("サブスクリプションの同期更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("サブスクリプションが見つかりません: %s", stripeSubscriptionID)
	}
	return nil
}

// MarkCanceledByUserID はユーザーの全ミラー行をcanceledにし、deleted_atを設定する。
func (r *PostgresSubscriptionRepo) MarkCanceledByUserID(ctx context.Context, userID string, deletedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE subscriptions
		 SET status = 'canceled', deleted_at = $2, updated_at = NOW()
		 WHERE user_id = $1`,
		userID, deletedAt,
	)
	if err != nil {
		return fmt.Errorf("サブスクリプションのキャンセルマークに失敗しました: %w", err)
	}
	return nil
}

// ListExpiredEntitled はステータスがactive/trialingのまま期間終了が過ぎた行を最大limit件返す。
func (r *PostgresSubscriptionRepo) ListExpiredEntitled(ctx context.Context, now time.Time, limit int) ([]*model.Subscription, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE status IN ('active', 'trialing') AND current_period_end <= $1
		 ORDER BY current_period_end ASC
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("期限切れサブスクリプションの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var subs []*model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("サブスクリプション行の読み取りに失敗しました: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("期限切れサブスクリプションの走査に失敗しました: %w", err)
	}
	return subs, nil
}

// compile-time interface check
var _ SubscriptionRepository = (*PostgresSubscriptionRepo)(nil)
