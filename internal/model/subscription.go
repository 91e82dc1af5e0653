// Package model はドメインモデルを定義する。
package model

import "time"

// SubscriptionStatus は決済プロバイダーのサブスクリプションステータス。
// active / trialing / canceled 以外の値もプロバイダーからそのまま透過する。
type SubscriptionStatus string

const (
	// SubscriptionStatusActive は有効なサブスクリプションを示す。
	SubscriptionStatusActive SubscriptionStatus = "active"
	// SubscriptionStatusTrialing はトライアル期間中のサブスクリプションを示す。
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	// SubscriptionStatusCanceled は解約済みのサブスクリプションを示す。
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Subscription は決済プロバイダー上のサブスクリプションのミラー行を表す。
// StripeSubscriptionID が自然なUPSERTキーとして機能する。
type Subscription struct {
	ID                   string
	UserID               string
	StripeCustomerID     string
	StripeSubscriptionID string
	Status               SubscriptionStatus
	PriceID              string
	CurrentPeriodEnd     time.Time
	CancelAtPeriodEnd    bool
	DeletedAt            *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IsEntitled はこの行がサブスクライバー資格を与えるかを返す。
// ステータスが active または trialing で、かつ期間終了が厳密に未来の場合のみtrue。
func (s *Subscription) IsEntitled(now time.Time) bool {
	if s.Status != SubscriptionStatusActive && s.Status != SubscriptionStatusTrialing {
		return false
	}
	return s.CurrentPeriodEnd.After(now)
}
