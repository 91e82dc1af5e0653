package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/launchpad/internal/entitlement"
	"github.com/hitoshi/launchpad/internal/metrics"
	"github.com/hitoshi/launchpad/internal/middleware"
	"github.com/hitoshi/launchpad/internal/model"
	"github.com/hitoshi/launchpad/internal/repository"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// SignIn はメールアドレスとパスワードでサインインする。
	SignIn(ctx context.Context, email, password string) (*model.Session, error)
	// SignUp は新規ユーザーを登録する。
	SignUp(ctx context.Context, email, password string) (*model.Session, error)
	// SignOut はセッションを破棄する。
	SignOut(ctx context.Context, accessToken string) error
	// UpdatePassword はパスワードを更新する。
	UpdatePassword(ctx context.Context, accessToken, newPassword string) error
	// UpdateEmail はメールアドレスを更新する。
	UpdateEmail(ctx context.Context, accessToken, newEmail string) error
	// ResetPassword はパスワードリセットメールの送信を要求する。
	ResetPassword(ctx context.Context, email string) error
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service   AuthServiceInterface
	userRepo  repository.UserRepository
	checker   entitlement.Checker
	collector metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。collectorはnil可。
func NewAuthHandler(
	service AuthServiceInterface,
	userRepo repository.UserRepository,
	checker entitlement.Checker,
	collector metrics.MetricsCollector,
) *AuthHandler {
	return &AuthHandler{
		service:   service,
		userRepo:  userRepo,
		checker:   checker,
		collector: collector,
	}
}

// credentialsRequest はメールアドレスとパスワードのリクエストボディ。
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// sessionResponse はセッションのAPIレスポンス。
type sessionResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresAt    time.Time    `json:"expiresAt"`
	User         userResponse `json:"user"`
}

// userResponse はユーザーのAPIレスポンス。
type userResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

// SignIn はメールアドレスとパスワードでサインインする。
// POST /auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	session, err := h.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		// 資格情報の誤りとプロバイダー障害を区別せず401を返す
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
		return
	}

	if h.collector != nil {
		h.collector.RecordSignIn()
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// SignUp は新規ユーザーを登録する。
// POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	session, err := h.service.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

// SignOut はセッションを破棄する。
// POST /auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	token := bearerTokenFromRequest(r)
	if token == "" {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.service.SignOut(r.Context(), token); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdatePassword はパスワードを更新する。
// PUT /auth/password
func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	token := bearerTokenFromRequest(r)
	if token == "" {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "PASSWORD_REQUIRED",
			Message:  "パスワードが指定されていません。",
			Category: "validation",
		})
		return
	}

	if err := h.service.UpdatePassword(r.Context(), token, req.Password); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateEmail はメールアドレスを更新する。
// PUT /auth/email
func (h *AuthHandler) UpdateEmail(w http.ResponseWriter, r *http.Request) {
	token := bearerTokenFromRequest(r)
	if token == "" {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "EMAIL_REQUIRED",
			Message:  "メールアドレスが指定されていません。",
			Category: "validation",
		})
		return
	}

	if err := h.service.UpdateEmail(r.Context(), token, req.Email); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Recover はパスワードリセットメールの送信を要求する。
// POST /auth/recover
// アカウントの存在有無を漏らさないため、常に202を返す。
func (h *AuthHandler) Recover(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "EMAIL_REQUIRED",
			Message:  "メールアドレスが指定されていません。",
			Category: "validation",
		})
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Email); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Me は認証済みユーザーのプロファイルと加入状態を返す。
// GET /api/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	user, err := h.userRepo.FindByID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if user == nil || user.IsDeleted {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user": userResponse{
			ID:          user.ID,
			Email:       user.Email,
			DisplayName: user.DisplayName,
		},
		"isSubscriber": h.checker.IsSubscriber(r.Context(), userID),
	})
}

// decodeCredentials は資格情報リクエストをデコードし、不備があれば400を書き込む。
func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "CREDENTIALS_REQUIRED",
			Message:  "メールアドレスとパスワードが必要です。",
			Category: "validation",
		})
		return credentialsRequest{}, false
	}
	return req, true
}

// bearerTokenFromRequest はAuthorizationヘッダーからBearerトークンを取り出す。
func bearerTokenFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// toSessionResponse はmodel.SessionからAPIレスポンスに変換する。
func toSessionResponse(session *model.Session) sessionResponse {
	resp := sessionResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		ExpiresAt:    session.ExpiresAt,
	}
	if session.User != nil {
		resp.User = userResponse{
			ID:          session.User.ID,
			Email:       session.User.Email,
			DisplayName: session.User.DisplayName,
		}
	}
	return resp
}
