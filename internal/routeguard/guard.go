// Package routeguard は画面遷移の認可判定を提供する。
// 許可リスト方式で公開ルートを定義し、未認証アクセスはログイン画面への
// リダイレクト指示に変換する。
package routeguard

import (
	"net/url"
	"strings"
	"time"
)

// DebounceInterval は連続した遷移判定の抑制間隔。
// 認証状態の揺れによるリダイレクトの往復を防ぐ。
const DebounceInterval = 300 * time.Millisecond

// publicRoutes は未認証でもアクセス可能なルートの完全一致リスト。
var publicRoutes = map[string]struct{}{
	"/":                {},
	"/login":           {},
	"/signup":          {},
	"/verify-email":    {},
	"/reset-password":  {},
	"/update-password": {},
	"/test":            {},
}

// publicPrefixes は未認証でもアクセス可能なルートのプレフィックスリスト。
var publicPrefixes = []string{
	"/preview/",
}

// Decision は遷移判定の結果。
type Decision struct {
	// Allow はそのまま遷移を許可するかどうか。
	Allow bool
	// RedirectTo はAllow=falseの場合の遷移先。
	RedirectTo string
}

// IsPublic はパスが公開ルートかどうかを返す。
// 判定は完全一致またはプレフィックス一致で、それ以外はすべて保護ルート。
func IsPublic(pathname string) bool {
	if _, ok := publicRoutes[pathname]; ok {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(pathname, prefix) {
			return true
		}
	}
	return false
}

// Decide はパスと認証状態から遷移の可否を判定する。
// 保護ルートへの未認証アクセスは、元のパスをredirectパラメータに
// 載せたログイン画面へのリダイレクトになる。
func Decide(pathname string, authenticated bool) Decision {
	if authenticated || IsPublic(pathname) {
		return Decision{Allow: true}
	}
	return Decision{
		Allow:      false,
		RedirectTo: "/login?redirect=" + url.QueryEscape(pathname),
	}
}
