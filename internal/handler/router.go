package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/launchpad/internal/entitlement"
	"github.com/hitoshi/launchpad/internal/features"
	"github.com/hitoshi/launchpad/internal/identity"
	"github.com/hitoshi/launchpad/internal/metrics"
	"github.com/hitoshi/launchpad/internal/middleware"
	"github.com/hitoshi/launchpad/internal/repository"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier      identity.TokenVerifier
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter
	Logger             *slog.Logger

	// 認証
	AuthService AuthServiceInterface
	UserRepo    repository.UserRepository
	Checker     entitlement.Checker

	// 課金
	SyncService    SyncServiceInterface
	AccountService AccountServiceInterface

	// フィーチャーフラグ
	Features features.Flags

	// メトリクス
	Collector metrics.MetricsCollector
	Gatherer  prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORSMiddleware → SecurityHeaders → Logging → Recovery → (認証グループ: Auth → RateLimit)
//
// 認証ルート（/auth/*）と公開ルートは認証ミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// CORS ミドルウェアを最上位に適用（プリフライトを全ルートで処理する）
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware())

	authHandler := NewAuthHandler(deps.AuthService, deps.UserRepo, deps.Checker, deps.Collector)
	stripeHandler := NewStripeHandler(deps.SyncService, deps.Collector)
	accountHandler := NewAccountHandler(deps.AccountService, deps.Collector)

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// フィーチャーフラグは起動時に確定するため認証不要で公開する
	r.Get("/api/features", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Features.Map())
	})

	// 認証ルート
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signin", authHandler.SignIn)
		r.Post("/signup", authHandler.SignUp)
		r.Post("/signout", authHandler.SignOut)
		r.Put("/password", authHandler.UpdatePassword)
		r.Put("/email", authHandler.UpdateEmail)
		r.Post("/recover", authHandler.Recover)
	})

	// Prometheusスクレイプ
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/me", authHandler.Me)

		// Stripe同期（同期専用レート制限を追加）
		r.With(deps.RateLimiter.SyncMiddleware()).Post("/api/stripe/sync", stripeHandler.Sync)
		r.Get("/api/stripe/test", stripeHandler.Test)

		// アカウント削除
		r.Delete("/api/user/delete", accountHandler.Delete)
	})

	return r
}
