// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, billing, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeSubscriptionIDRequired = "SUBSCRIPTION_ID_REQUIRED"
	ErrCodeUserIDRequired         = "USER_ID_REQUIRED"
	ErrCodeUserNotFound           = "USER_NOT_FOUND"
	ErrCodeOrphanedSubscription   = "ORPHANED_SUBSCRIPTION"
	ErrCodeCustomerDeleted        = "CUSTOMER_DELETED"
	ErrCodeUnauthorized           = "UNAUTHORIZED"
	ErrCodeInvalidCredentials     = "INVALID_CREDENTIALS"
)

// NewSubscriptionIDRequiredError はサブスクリプションID未指定エラーを生成する。
func NewSubscriptionIDRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSubscriptionIDRequired,
		Message:  "サブスクリプションIDが指定されていません。",
		Category: "validation",
		Action:   "subscriptionIdをリクエストボディに含めてください。",
	}
}

// NewUserIDRequiredError はユーザーID未指定エラーを生成する。
func NewUserIDRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeUserIDRequired,
		Message:  "ユーザーIDが指定されていません。",
		Category: "validation",
		Action:   "userIdクエリパラメータを指定してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewOrphanedSubscriptionError は所有ユーザーを特定できないサブスクリプションのエラーを生成する。
// 決済プロバイダー側の顧客メタデータにuser_idが存在しない場合に発生する。
func NewOrphanedSubscriptionError(customerID string) *APIError {
	return &APIError{
		Code:     ErrCodeOrphanedSubscription,
		Message:  fmt.Sprintf("顧客メタデータにuser_idが存在しません: %s", customerID),
		Category: "billing",
		Action:   "決済プロバイダー側の顧客レコードを確認してください。",
	}
}

// NewCustomerDeletedError は削除済み顧客を参照した場合のエラーを生成する。
func NewCustomerDeletedError(customerID string) *APIError {
	return &APIError{
		Code:     ErrCodeCustomerDeleted,
		Message:  fmt.Sprintf("顧客は削除されています: %s", customerID),
		Category: "billing",
		Action:   "決済プロバイダー側の顧客レコードを確認してください。",
	}
}

// NewUnauthorizedError は認証が必要な場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidCredentialsError は認証情報が不正な場合のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}
