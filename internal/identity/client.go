// Package identity はホスト型認証サービスとの連携を提供する。
// セッションの発行・破棄・更新はすべて認証サービス側が所有し、
// 本パッケージはリクエスト/レスポンス型のAPI呼び出しとして委譲する。
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RemoteUser は認証サービスが返すユーザー情報。
type RemoteUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// RemoteSession は認証サービスが発行するセッション（トークンペア）。
type RemoteSession struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresIn    int        `json:"expires_in"`
	User         RemoteUser `json:"user"`
}

// UserUpdate はユーザー属性更新のリクエスト。
// 空フィールドは変更しない。
type UserUpdate struct {
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

// ProviderClient は認証サービスAPIのインターフェース。
// テストではhttptestサーバーまたはモックで差し替える。
type ProviderClient interface {
	// SignInWithPassword はメールアドレスとパスワードでサインインする。
	SignInWithPassword(ctx context.Context, email, password string) (*RemoteSession, error)
	// SignUp は新規ユーザーを登録し、セッションを返す。
	SignUp(ctx context.Context, email, password string) (*RemoteSession, error)
	// RefreshSession はリフレッシュトークンから永続化済みセッションを復元する。
	RefreshSession(ctx context.Context, refreshToken string) (*RemoteSession, error)
	// SignOut はアクセストークンに紐づくセッションを破棄する。
	SignOut(ctx context.Context, accessToken string) error
	// UpdateUser はユーザー属性（メールアドレス・パスワード）を更新する。
	UpdateUser(ctx context.Context, accessToken string, update UserUpdate) error
	// SendPasswordRecovery はパスワードリセットメールの送信を要求する。
	SendPasswordRecovery(ctx context.Context, email, redirectTo string) error
}

// apiError は認証サービスのエラーレスポンス。
type apiError struct {
	Message          string `json:"msg"`
	ErrorDescription string `json:"error_description"`
}

// HTTPClient はHTTP経由で認証サービスAPIを呼び出すProviderClientの実装。
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewHTTPClient はHTTPClientの新しいインスタンスを生成する。
// httpClientがnilの場合は10秒タイムアウトのデフォルトクライアントを使用する。
func NewHTTPClient(httpClient *http.Client, baseURL, apiKey string) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

// SignInWithPassword はメールアドレスとパスワードでサインインする。
func (c *HTTPClient) SignInWithPassword(ctx context.Context, email, password string) (*RemoteSession, error) {
	body := map[string]string{"email": email, "password": password}
	session := &RemoteSession{}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", body, session); err != nil {
		return nil, fmt.Errorf("サインインに失敗しました: %w", err)
	}
	return session, nil
}

// SignUp は新規ユーザーを登録し、セッションを返す。
func (c *HTTPClient) SignUp(ctx context.Context, email, password string) (*RemoteSession, error) {
	body := map[string]string{"email": email, "password": password}
	session := &RemoteSession{}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/signup", "", body, session); err != nil {
		return nil, fmt.Errorf("サインアップに失敗しました: %w", err)
	}
	return session, nil
}

// RefreshSession はリフレッシュトークンから永続化済みセッションを復元する。
func (c *HTTPClient) RefreshSession(ctx context.Context, refreshToken string) (*RemoteSession, error) {
	body := map[string]string{"refresh_token": refreshToken}
	session := &RemoteSession{}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", body, session); err != nil {
		return nil, fmt.Errorf("セッションの復元に失敗しました: %w", err)
	}
	return session, nil
}

// SignOut はアクセストークンに紐づくセッションを破棄する。
func (c *HTTPClient) SignOut(ctx context.Context, accessToken string) error {
	if err := c.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil); err != nil {
		return fmt.Errorf("サインアウトに失敗しました: %w", err)
	}
	return nil
}

// UpdateUser はユーザー属性（メールアドレス・パスワード）を更新する。
func (c *HTTPClient) UpdateUser(ctx context.Context, accessToken string, update UserUpdate) error {
	if err := c.do(ctx, http.MethodPut, "/auth/v1/user", accessToken, update, nil); err != nil {
		return fmt.Errorf("ユーザー属性の更新に失敗しました: %w", err)
	}
	return nil
}

// SendPasswordRecovery はパスワードリセットメールの送信を要求する。
func (c *HTTPClient) SendPasswordRecovery(ctx context.Context, email, redirectTo string) error {
	body := map[string]string{"email": email, "redirect_to": redirectTo}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/recover", accessTokenNone, body, nil); err != nil {
		return fmt.Errorf("パスワードリセットの要求に失敗しました: %w", err)
	}
	return nil
}

// accessTokenNone はユーザートークン不要のエンドポイント用の空トークン。
const accessTokenNone = ""

// do は認証サービスAPIへのHTTPリクエストを実行する。
// reqBodyがnil以外の場合はJSONとして送信し、outがnil以外の場合はレスポンスをデコードする。
func (c *HTTPClient) do(ctx context.Context, method, path, accessToken string, reqBody, out any) error {
	var bodyReader io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	} else if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil {
			if ae.Message != "" {
				return fmt.Errorf("認証サービスがエラーを返しました（ステータス %d）: %s", resp.StatusCode, ae.Message)
			}
			if ae.ErrorDescription != "" {
				return fmt.Errorf("認証サービスがエラーを返しました（ステータス %d）: %s", resp.StatusCode, ae.ErrorDescription)
			}
		}
		return fmt.Errorf("認証サービスがステータス %d を返しました", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("レスポンスのデコードに失敗しました: %w", err)
		}
	}

	return nil
}

// compile-time interface check
var _ ProviderClient = (*HTTPClient)(nil)
