// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ProfileSanitizerService は認証プロバイダー経由で渡されるプロファイル文字列
// （表示名など）をサニタイズし、ミラーテーブル保存前にHTMLタグを除去する。
// bluemondayのStrictPolicyを使用し、タグを一切許可しない。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ProfileSanitizerService はプロファイル文字列のサニタイズ機能のインターフェースを定義する。
// ユーザーミラー行のUPSERT前に使用される。
type ProfileSanitizerService interface {
	// Sanitize は入力からすべてのHTMLタグを除去したプレーンテキストを返す。
	// 前後の空白は除去される。空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// profileSanitizer はProfileSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type profileSanitizer struct {
	policy *bluemonday.Policy
}

// NewProfileSanitizer はProfileSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicy（全タグ除去）を使用する。表示名にマークアップは不要。
func NewProfileSanitizer() *profileSanitizer {
	return &profileSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からすべてのHTMLタグを除去したプレーンテキストを返す。
func (s *profileSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(s.policy.Sanitize(raw))
}

// compile-time interface check
var _ ProfileSanitizerService = (*profileSanitizer)(nil)
