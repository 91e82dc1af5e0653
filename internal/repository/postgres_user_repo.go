package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/launchpad/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーミラーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, is_deleted, deleted_at, reactivated_at, created_at, updated_at
		 FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Email, &user.DisplayName, &user.IsDeleted,
		&user.DeletedAt, &user.ReactivatedAt, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}

	return user, nil
}

// Upsert はユーザーのミラー行を冪等に作成・更新する。
// ソフト削除マーカーは既存の値を維持する。
func (r *PostgresUserRepo) Upsert(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET email = EXCLUDED.email,
		     display_name = EXCLUDED.display_name,
		     updated_at = EXCLUDED.updated_at`,
		user.ID, user.Email, user.DisplayName, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ユーザーミラーのUPSERTに失敗しました: %w", err)
	}
	return nil
}

// SoftDelete はユーザーをソフト削除する。対象が存在しない場合はエラーを返す。
func (r *PostgresUserRepo) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_deleted = TRUE, deleted_at = $2, updated_at = NOW() WHERE id = $1`,
		id, deletedAt,
	)
	if err != nil {
		return fmt.Errorf("ユーザーのソフト削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("ユーザーが見つかりません: %s", id)
	}
	return nil
}

// Reactivate はソフト削除済みユーザーを再有効化する。
func (r *PostgresUserRepo) Reactivate(ctx context.Context, id string, reactivatedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET is_deleted = FALSE, deleted_at = NULL, reactivated_at = $2, updated_at = NOW()
		 WHERE id = $1`,
		id, reactivatedAt,
	)
	if err != nil {
		return fmt.Errorf("ユーザーの再有効化に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("ユーザーが見つかりません: %s", id)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
