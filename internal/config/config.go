// Package config は環境変数からのアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Identity（ホスト型認証サービス）
	IdentityURL        string
	IdentityServiceKey string
	IdentityJWTSecret  string

	// Stripe
	StripeSecretKey string

	// Server
	ServerPort string
	AppURL     string

	// CORS
	CORSAllowedOrigins []string

	// Feature Flags
	EnableBilling    bool
	EnableTrials     bool
	EnableOnboarding bool
	ShowDevBanner    bool

	// Auth Context
	SessionInitTimeout time.Duration
	PreLogoutWait      time.Duration

	// Worker
	SyncInterval time.Duration

	// Rate Limit
	RateLimitGeneral int
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（存在しなくてもエラーにしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.IdentityURL = os.Getenv("IDENTITY_URL")
	if cfg.IdentityURL == "" {
		missing = append(missing, "IDENTITY_URL")
	}

	cfg.IdentityJWTSecret = os.Getenv("IDENTITY_JWT_SECRET")
	if cfg.IdentityJWTSecret == "" {
		missing = append(missing, "IDENTITY_JWT_SECRET")
	}

	cfg.StripeSecretKey = os.Getenv("STRIPE_SECRET_KEY")
	if cfg.StripeSecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}

	cfg.AppURL = os.Getenv("APP_URL")
	if cfg.AppURL == "" {
		missing = append(missing, "APP_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.IdentityServiceKey = getEnvString("IDENTITY_SERVICE_KEY", "")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigins = parseOrigins(os.Getenv("CORS_ALLOWED_ORIGINS"), cfg.AppURL)
	cfg.EnableBilling = getEnvBool("ENABLE_BILLING", true)
	cfg.EnableTrials = getEnvBool("ENABLE_TRIALS", true)
	cfg.EnableOnboarding = getEnvBool("ENABLE_ONBOARDING", true)
	cfg.ShowDevBanner = getEnvBool("SHOW_DEV_BANNER", false)
	cfg.SessionInitTimeout = getEnvDuration("SESSION_INIT_TIMEOUT", 5*time.Second)
	cfg.PreLogoutWait = getEnvDuration("PRE_LOGOUT_WAIT", 100*time.Millisecond)
	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", 1*time.Hour)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)

	return cfg, nil
}

// parseOrigins はカンマ区切りの許可オリジンリストをパースする。
// 未設定の場合はアプリURLとホスティング先ドメインの組み込みペアを返す。
func parseOrigins(raw, appURL string) []string {
	if raw == "" {
		return []string{appURL, "https://launchpad.vercel.app"}
	}

	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		return []string{appURL, "https://launchpad.vercel.app"}
	}
	return origins
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
