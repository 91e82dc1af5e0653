package authctx

import "github.com/hitoshi/launchpad/internal/config"

// ConfigFrom はアプリケーション設定からStoreの設定を構築する。
// Storeを組み込むフロントエンド層はここを経由して環境変数の
// SESSION_INIT_TIMEOUT / PRE_LOGOUT_WAIT を反映する。
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		InitTimeout:   cfg.SessionInitTimeout,
		PreLogoutWait: cfg.PreLogoutWait,
	}
}
