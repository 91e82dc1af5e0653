package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hitoshi/launchpad/internal/billing"
	"github.com/hitoshi/launchpad/internal/metrics"
	"github.com/hitoshi/launchpad/internal/model"
)

// SyncServiceInterface はStripeハンドラーが必要とするサービスインターフェース。
type SyncServiceInterface interface {
	// SyncSubscription はStripeを信頼元としてミラー行を同期する。
	SyncSubscription(ctx context.Context, stripeSubscriptionID string) (*billing.SyncResult, error)
	// TestConnection はStripe APIへの疎通を確認する。
	TestConnection(ctx context.Context) error
}

// StripeHandler はStripe同期・疎通確認のHTTPハンドラー。
// このハンドラーのレスポンスは他のAPIと異なり、成功時は{"status":"success"}、
// 失敗時は{error, details}形式を使用する。
type StripeHandler struct {
	service   SyncServiceInterface
	collector metrics.MetricsCollector
}

// NewStripeHandler はStripeHandlerを生成する。collectorはnil可。
func NewStripeHandler(service SyncServiceInterface, collector metrics.MetricsCollector) *StripeHandler {
	return &StripeHandler{
		service:   service,
		collector: collector,
	}
}

// syncRequest はサブスクリプション同期のリクエストボディ。
type syncRequest struct {
	SubscriptionID string `json:"subscriptionId"`
}

// stripeErrorResponse はStripeエンドポイントのエラーレスポンス。
type stripeErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Sync はStripeのサブスクリプション状態をミラーDBに同期する。
// POST /api/stripe/sync
func (h *StripeHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.recordFailure("invalid_request")
		writeJSON(w, http.StatusBadRequest, stripeErrorResponse{
			Error: "Invalid request body",
		})
		return
	}

	if req.SubscriptionID == "" {
		h.recordFailure("missing_subscription_id")
		writeJSON(w, http.StatusBadRequest, stripeErrorResponse{
			Error: "Subscription ID is required",
		})
		return
	}

	start := time.Now()
	result, err := h.service.SyncSubscription(r.Context(), req.SubscriptionID)
	h.recordLatency(time.Since(start))
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			h.recordFailure(apiErr.Code)
			writeJSON(w, mapStripeErrorToHTTPStatus(apiErr), stripeErrorResponse{
				Error:   "Failed to sync subscription",
				Details: apiErr.Message,
			})
			return
		}
		h.recordFailure("provider_error")
		writeJSON(w, http.StatusInternalServerError, stripeErrorResponse{
			Error:   "Failed to sync subscription",
			Details: err.Error(),
		})
		return
	}

	if h.collector != nil {
		h.collector.RecordSyncSuccess()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "success",
		"subscriptionId":     result.StripeSubscriptionID,
		"userId":             result.UserID,
		"subscriptionStatus": string(result.Status),
		"created":            result.Created,
	})
}

// Test はStripe APIへの疎通を確認する。
// GET /api/stripe/test
func (h *StripeHandler) Test(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	err := h.service.TestConnection(r.Context())
	h.recordLatency(time.Since(start))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, stripeErrorResponse{
			Error:   "Stripe connection failed",
			Details: err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// mapStripeErrorToHTTPStatus はAPIErrorをStripeエンドポイント用のステータスに変換する。
// 入力不備は400、それ以外（孤立顧客・削除済み顧客を含む）は500。
func mapStripeErrorToHTTPStatus(apiErr *model.APIError) int {
	if apiErr.Code == model.ErrCodeSubscriptionIDRequired {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *StripeHandler) recordFailure(reason string) {
	if h.collector != nil {
		h.collector.RecordSyncFailure(reason)
	}
}

func (h *StripeHandler) recordLatency(d time.Duration) {
	if h.collector != nil {
		h.collector.RecordProviderLatency(d)
	}
}
