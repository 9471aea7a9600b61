package middleware

import "net/http"

// defaultSecurityHeaders は全レスポンスに付与するヘッダー。
// マイクはブラウザでの録音に使うため自オリジンのみ許可する。
// トークンやプロフィールを含むAPIレスポンスはキャッシュさせない。音声配信のように
// キャッシュさせたいハンドラーはCache-Controlを上書きする。
var defaultSecurityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Permissions-Policy", "camera=(), microphone=(self), geolocation=()"},
	{"Cache-Control", "no-store"},
}

// NewSecurityHeadersMiddleware はdefaultSecurityHeadersをレスポンスに付与するミドルウェアを返す。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range defaultSecurityHeaders {
				h.Set(kv[0], kv[1])
			}
			next.ServeHTTP(w, r)
		})
	}
}
