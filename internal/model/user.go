// Package model はドメインモデルを定義する。
package model

import "time"

// User はホスト型認証サービスのユーザープロファイルのミラーを表す。
// レコード自体の作成は認証サービス側が行い、本サービスは
// ソフト削除・再有効化のマーカーのみを書き込む。物理削除は行わない。
type User struct {
	ID            string
	Email         string
	DisplayName   string
	IsDeleted     bool
	DeletedAt     *time.Time
	ReactivatedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Session はホスト型認証サービスが発行するセッションを表す。
// ライフサイクルは認証サービス側が完全に所有し、本サービスは
// 変更通知を観測して最新値をメモリ上に保持するのみ。
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         *User
}
