package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/hitoshi/launchpad/internal/account"
	"github.com/hitoshi/launchpad/internal/metrics"
	"github.com/hitoshi/launchpad/internal/middleware"
	"github.com/hitoshi/launchpad/internal/model"
)

// AccountServiceInterface はアカウントハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	// DeleteAccount はアカウントをソフト削除する。
	DeleteAccount(ctx context.Context, userID string) (*account.DeletionResult, error)
}

// AccountHandler はアカウント管理のHTTPハンドラー。
type AccountHandler struct {
	service   AccountServiceInterface
	collector metrics.MetricsCollector
}

// NewAccountHandler はAccountHandlerを生成する。collectorはnil可。
func NewAccountHandler(service AccountServiceInterface, collector metrics.MetricsCollector) *AccountHandler {
	return &AccountHandler{
		service:   service,
		collector: collector,
	}
}

// accountErrorResponse はアカウント削除エンドポイントのエラーレスポンス。
type accountErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Delete はアカウントをソフト削除する。
// DELETE /api/user/delete?userId={id}
// userIdクエリパラメータは認証済みユーザー自身のIDと一致する必要がある。
// レスポンスは {success:true} | {error, details} 形式。
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	authUserID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, accountErrorResponse{
			Error: "Unauthorized",
		})
		return
	}

	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, accountErrorResponse{
			Error: "User ID is required",
		})
		return
	}

	// 本人以外のアカウントは削除できない
	if userID != authUserID {
		writeJSON(w, http.StatusForbidden, accountErrorResponse{
			Error: "Cannot delete another user's account",
		})
		return
	}

	if _, err := h.service.DeleteAccount(r.Context(), userID); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			writeJSON(w, mapAccountErrorToHTTPStatus(apiErr), accountErrorResponse{
				Error:   "Failed to delete account",
				Details: apiErr.Message,
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, accountErrorResponse{
			Error:   "Failed to delete account",
			Details: err.Error(),
		})
		return
	}

	if h.collector != nil {
		h.collector.RecordAccountDeletion()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// mapAccountErrorToHTTPStatus はアカウント削除のAPIErrorをHTTPステータスに対応づける。
// 入力検証のみ400、ユーザー不在は404、それ以外は500を返す。
func mapAccountErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUserIDRequired:
		return http.StatusBadRequest
	case model.ErrCodeUserNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
