package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL はBearerトークンの有効期間。
const DefaultTokenTTL = 24 * time.Hour

var (
	// ErrTokenMalformed はトークンの解析・署名検証に失敗したことを表す。
	ErrTokenMalformed = errors.New("token is malformed")

	// ErrTokenExpired は署名は正しいが有効期限を過ぎたトークンであることを表す。
	ErrTokenExpired = errors.New("token is expired")

	// ErrMissingSecret は署名鍵が未設定であることを表す。
	ErrMissingSecret = errors.New("token signing secret is required")
)

// Claims はBearerトークンに埋め込むクレーム。
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
}

// TokenService はHS256署名のBearerトークンを発行・検証する。
// 署名鍵は起動後に変更されない。
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewTokenService はTokenServiceを生成する。
// secretが空の場合はErrMissingSecretを返す。ttlが0以下の場合はDefaultTokenTTLを使う。
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	s := &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s, nil
}

// Issue はuserIDを埋め込んだトークンを発行する。有効期限は発行時刻からttl後。
func (s *TokenService) Issue(userID string) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		UserID: userID,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Verify はトークンを検証し、埋め込まれたuserIDを返す。
// 署名が正しく期限切れの場合はErrTokenExpired、それ以外の失敗はErrTokenMalformedを返す。
func (s *TokenService) Verify(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := s.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if !token.Valid || claims.UserID == "" {
		return "", ErrTokenMalformed
	}
	return claims.UserID, nil
}
