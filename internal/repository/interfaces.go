// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/launchpad/internal/model"
)

// UserRepository はミラーユーザープロファイルの永続化インターフェース。
// 行の作成元はホスト型認証サービスであり、本サービスはミラーの
// UPSERTとソフト削除マーカーの更新のみを行う。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// Upsert はユーザーのミラー行を冪等に作成・更新する。
	// id をキーとし、email / display_name / updated_at を上書きする。
	// ソフト削除マーカーは変更しない。
	Upsert(ctx context.Context, user *model.User) error

	// SoftDelete はユーザーをソフト削除する（is_deleted=true, deleted_at設定）。
	// 対象が存在しない場合はエラーを返す。
	SoftDelete(ctx context.Context, id string, deletedAt time.Time) error

	// Reactivate はソフト削除済みユーザーを再有効化する
	// （is_deleted=false, deleted_at=NULL, reactivated_at設定）。
	Reactivate(ctx context.Context, id string, reactivatedAt time.Time) error
}

// SubscriptionRepository はサブスクリプションミラー行の永続化インターフェース。
type SubscriptionRepository interface {
	// FindByStripeSubscriptionID はプロバイダーのサブスクリプションIDでミラー行を検索する。
	// 見つからない場合はnilを返す。
	FindByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*model.Subscription, error)

	// FindLatestEntitledByUserID はユーザーのactive/trialing行のうち
	// created_atが最新の1行を返す。該当行がない場合はnilを返す。
	FindLatestEntitledByUserID(ctx context.Context, userID string) (*model.Subscription, error)

	// ListByUserID はユーザーの全サブスクリプション行を返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Subscription, error)

	// Create はミラー行を作成する。
	Create(ctx context.Context, sub *model.Subscription) error

	// UpdateSyncFields は同期対象の可変フィールドのみを更新する。
	// 更新するのは status / cancel_at_period_end / current_period_end / updated_at。
	// 識別子フィールドは変更しない。対象が存在しない場合はエラーを返す。
	UpdateSyncFields(ctx context.Context, stripeSubscriptionID string, status model.SubscriptionStatus, cancelAtPeriodEnd bool, currentPeriodEnd time.Time) error

	// MarkCanceledByUserID はユーザーの全ミラー行をcanceledにし、deleted_atを設定する。
	MarkCanceledByUserID(ctx context.Context, userID string, deletedAt time.Time) error

	// ListExpiredEntitled はステータスがactive/trialingのまま期間終了が過ぎた行を
	// 最大limit件返す。リコンサイルワーカーの再同期対象を決定する。
	ListExpiredEntitled(ctx context.Context, now time.Time, limit int) ([]*model.Subscription, error)
}
