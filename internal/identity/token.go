package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims はアクセストークンから抽出した本人性情報。
type TokenClaims struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// TokenVerifier はアクセストークンの検証インターフェース。
type TokenVerifier interface {
	// Verify はアクセストークンを検証し、クレームを返す。
	// 署名不正・期限切れ・subクレーム欠落はエラー。
	Verify(tokenString string) (*TokenClaims, error)
}

// accessTokenClaims はJWTのクレーム構造。subにユーザーIDが入る。
type accessTokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// HS256Verifier は共有シークレットによるHS256署名検証を行うTokenVerifierの実装。
// 認証サービスへの問い合わせなしにローカルでトークンを検証できる。
type HS256Verifier struct {
	secret []byte
}

// NewHS256Verifier はHS256Verifierを生成する。
func NewHS256Verifier(secret string) *HS256Verifier {
	return &HS256Verifier{secret: []byte(secret)}
}

// Verify はアクセストークンを検証し、クレームを返す。
func (v *HS256Verifier) Verify(tokenString string) (*TokenClaims, error) {
	claims := &accessTokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("アクセストークンの検証に失敗しました: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("アクセストークンが無効です")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("アクセストークンにsubクレームがありません")
	}

	tc := &TokenClaims{
		UserID: claims.Subject,
		Email:  claims.Email,
	}
	if claims.ExpiresAt != nil {
		tc.ExpiresAt = claims.ExpiresAt.Time
	}

	return tc, nil
}

// compile-time interface check
var _ TokenVerifier = (*HS256Verifier)(nil)
