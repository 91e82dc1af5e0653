// Package payment はStripe決済APIとの連携を提供する。
// サブスクリプション・顧客の取得とキャンセル、および疎通確認用の残高取得を含む。
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// defaultAPIBase はStripe APIのベースURL。
	defaultAPIBase = "https://api.stripe.com"
)

// Subscription はStripeのサブスクリプションオブジェクト（必要フィールドのみ）。
type Subscription struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Status            string            `json:"status"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64             `json:"current_period_end"`
	Items             SubscriptionItems `json:"items"`
}

// SubscriptionItems はサブスクリプションの明細リスト。
type SubscriptionItems struct {
	Data []SubscriptionItem `json:"data"`
}

// SubscriptionItem はサブスクリプションの明細行。
type SubscriptionItem struct {
	Price Price `json:"price"`
}

// Price はStripeの価格オブジェクト。
type Price struct {
	ID string `json:"id"`
}

// PriceID は先頭明細の価格IDを返す。明細がない場合は空文字。
func (s *Subscription) PriceID() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return s.Items.Data[0].Price.ID
}

// PeriodEnd は課金期間終了日時をtime.Timeで返す。
func (s *Subscription) PeriodEnd() time.Time {
	return time.Unix(s.CurrentPeriodEnd, 0).UTC()
}

// Customer はStripeの顧客オブジェクト（必要フィールドのみ）。
// 削除済み顧客はDeleted=trueのスタブとして返される。
type Customer struct {
	ID       string            `json:"id"`
	Deleted  bool              `json:"deleted"`
	Metadata map[string]string `json:"metadata"`
}

// UserID はメタデータに埋め込まれたアプリ側ユーザーIDを返す。
// 未設定の場合は空文字（孤立した顧客）。
func (c *Customer) UserID() string {
	return c.Metadata["user_id"]
}

// Balance はStripeの残高オブジェクト。疎通確認にのみ使用する。
type Balance struct {
	Available []BalanceAmount `json:"available"`
	Pending   []BalanceAmount `json:"pending"`
}

// BalanceAmount は通貨ごとの残高。
type BalanceAmount struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// apiErrorResponse はStripe APIのエラーレスポンス。
type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Provider は決済プロバイダーAPIのインターフェース。
// テストではhttptestサーバーまたはモックで差し替える。
type Provider interface {
	// RetrieveSubscription はサブスクリプションをIDで取得する。
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	// RetrieveCustomer は顧客をIDで取得する。削除済み顧客もエラーにはならない。
	RetrieveCustomer(ctx context.Context, customerID string) (*Customer, error)
	// CancelSubscription はサブスクリプションを即時キャンセルする。
	CancelSubscription(ctx context.Context, subscriptionID string) error
	// RetrieveBalance はアカウント残高を取得する。API疎通確認に使用する。
	RetrieveBalance(ctx context.Context) (*Balance, error)
}

// Client はHTTP経由でStripe APIを呼び出すProviderの実装。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	secretKey  string
	apiBase    string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClient の新しいインスタンスを生成する。
// httpClientがnilの場合は10秒タイムアウトのデフォルトクライアントを使用する。
func NewClient(httpClient *http.Client, logger *slog.Logger, secretKey string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		secretKey:  secretKey,
		apiBase:    defaultAPIBase,
	}
}

// RetrieveSubscription はサブスクリプションをIDで取得する。
func (c *Client) RetrieveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	sub := &Subscription{}
	path := "/v1/subscriptions/" + url.PathEscape(subscriptionID)
	if err := c.do(ctx, http.MethodGet, path, nil, sub); err != nil {
		return nil, fmt.Errorf("サブスクリプションの取得に失敗しました: %w", err)
	}
	return sub, nil
}

// RetrieveCustomer は顧客をIDで取得する。
// 削除済み顧客はDeleted=trueのオブジェクトとして正常に返る。
func (c *Client) RetrieveCustomer(ctx context.Context, customerID string) (*Customer, error) {
	customer := &Customer{}
	path := "/v1/customers/" + url.PathEscape(customerID)
	if err := c.do(ctx, http.MethodGet, path, nil, customer); err != nil {
		return nil, fmt.Errorf("顧客の取得に失敗しました: %w", err)
	}
	return customer, nil
}

// CancelSubscription はサブスクリプションを即時キャンセルする。
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) error {
	path := "/v1/subscriptions/" + url.PathEscape(subscriptionID)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("サブスクリプションのキャンセルに失敗しました: %w", err)
	}
	return nil
}

// RetrieveBalance はアカウント残高を取得する。
func (c *Client) RetrieveBalance(ctx context.Context) (*Balance, error) {
	balance := &Balance{}
	if err := c.do(ctx, http.MethodGet, "/v1/balance", nil, balance); err != nil {
		return nil, fmt.Errorf("残高の取得に失敗しました: %w", err)
	}
	return balance, nil
}

// do はStripe APIへのHTTPリクエストを実行する。
// formがnil以外の場合はフォームエンコードして送信し、outがnil以外の場合はレスポンスをデコードする。
func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var bodyReader io.Reader
	if form != nil {
		bodyReader = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, bodyReader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Stripe APIの呼び出しに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae apiErrorResponse
		if json.Unmarshal(body, &ae) == nil && ae.Error.Message != "" {
			c.logger.Error("Stripe APIがエラーを返しました",
				slog.String("path", path),
				slog.Int("http_status", resp.StatusCode),
				slog.String("error_code", ae.Error.Code),
			)
			return fmt.Errorf("Stripe APIがエラーを返しました（ステータス %d）: %s", resp.StatusCode, ae.Error.Message)
		}
		return fmt.Errorf("Stripe APIがステータス %d を返しました", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
		}
	}

	return nil
}

// compile-time interface check
var _ Provider = (*Client)(nil)
