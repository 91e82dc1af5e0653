// Package features は環境変数由来の起動時固定フィーチャーフラグを提供する。
package features

import "github.com/hitoshi/launchpad/internal/config"

// Flags は起動時に確定するフィーチャーフラグの集合。
// 実行中に変化しない。
type Flags struct {
	// Billing は課金関連機能の有効状態。
	Billing bool
	// Trials はトライアル提供の有効状態。
	Trials bool
	// Onboarding はオンボーディングフローの有効状態。
	Onboarding bool
	// DevBanner は開発環境バナーの表示状態。
	DevBanner bool
}

// FromConfig は設定からフラグを構築する。
func FromConfig(cfg *config.Config) Flags {
	return Flags{
		Billing:    cfg.EnableBilling,
		Trials:     cfg.EnableTrials,
		Onboarding: cfg.EnableOnboarding,
		DevBanner:  cfg.ShowDevBanner,
	}
}

// Map はフラグをAPIレスポンス用のマップに変換する。
func (f Flags) Map() map[string]bool {
	return map[string]bool{
		"billing":    f.Billing,
		"trials":     f.Trials,
		"onboarding": f.Onboarding,
		"dev_banner": f.DevBanner,
	}
}

// IsEnabled は指定名のフラグが有効かを返す。未知の名前はfalseを返す。
func (f Flags) IsEnabled(name string) bool {
	return f.Map()[name]
}

// Enabled は有効なフラグ名の一覧を返す。順序は固定。
func (f Flags) Enabled() []string {
	names := []string{"billing", "trials", "onboarding", "dev_banner"}
	m := f.Map()
	enabled := make([]string, 0, len(names))
	for _, n := range names {
		if m[n] {
			enabled = append(enabled, n)
		}
	}
	return enabled
}

// IsFullSaaSMode は課金・トライアル・オンボーディングがすべて有効かを返す。
func (f Flags) IsFullSaaSMode() bool {
	return f.Billing && f.Trials && f.Onboarding
}
