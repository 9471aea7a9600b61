// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/tweeper/internal/auth"
	"github.com/hitoshi/tweeper/internal/metrics"
	"github.com/hitoshi/tweeper/internal/model"
)

const bearerPrefix = "Bearer "

// 認証失敗理由（メトリクスのラベル値）
const (
	authFailureMissingToken = "missing_token"
	authFailureTokenExpired = "token_expired"
	authFailureTokenInvalid = "token_invalid"
	authFailureUserNotFound = "user_not_found"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
var userContextKey = contextKey("user")

// TokenVerifier はBearerトークンの検証に必要なインターフェース。
// auth.TokenServiceが実装する。
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// UserFinder はユーザーの検索に必要なインターフェース。
// repository.UserRepositoryの部分集合として定義する。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// 対応するユーザーをリクエストコンテキストに注入するミドルウェアを返す。
//
// トークンとユーザーはリクエストごとに検証・再取得し、キャッシュしない。
// 失敗時のレスポンス:
//   - ヘッダーなし、Bearer以外、空トークン: 401 UNAUTHORIZED
//   - 期限切れ: 401 TOKEN_EXPIRED
//   - 改ざん・破損: 403 TOKEN_INVALID
//   - ユーザー不在: 401 UNAUTHORIZED
//   - ユーザー検索の失敗: 500
func NewAuthMiddleware(verifier TokenVerifier, users UserFinder, mc metrics.MetricsCollector) func(next http.Handler) http.Handler {
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				mc.RecordAuthFailure(authFailureMissingToken)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			userID, err := verifier.Verify(token)
			if err != nil {
				if errors.Is(err, auth.ErrTokenExpired) {
					mc.RecordAuthFailure(authFailureTokenExpired)
					WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenExpiredError())
					return
				}
				mc.RecordAuthFailure(authFailureTokenInvalid)
				WriteErrorResponse(w, http.StatusForbidden, model.NewTokenInvalidError())
				return
			}

			user, err := users.FindByID(r.Context(), userID)
			if err != nil {
				slog.Error("failed to find authenticated user",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if user == nil {
				mc.RecordAuthFailure(authFailureUserNotFound)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			setLogUserID(r.Context(), user.ID)
			ctx := ContextWithUser(r.Context(), user.Public())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken はAuthorizationヘッダーからトークン部分を取り出す。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

// ContextWithUser はコンテキストに認証済みユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserFromContext(ctx context.Context) (*model.User, error) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	if !ok || user == nil {
		return nil, fmt.Errorf("user not found in context")
	}
	return user, nil
}

// UserIDFromContext はリクエストコンテキストから認証済みユーザーのIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	user, err := UserFromContext(ctx)
	if err != nil {
		return "", err
	}
	if user.ID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return user.ID, nil
}
