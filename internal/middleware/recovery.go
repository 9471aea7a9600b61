package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/hitoshi/tweeper/internal/metrics"
)

// NewRecoveryMiddleware はハンドラーのpanicを捕捉してJSONの500を返す。
// panicで中断したリクエストは内側のメトリクスミドルウェアに記録されないため、ここで500として数える。
// クライアント切断を表すhttp.ErrAbortHandlerは捕捉せずにnet/httpへ戻す。
func NewRecoveryMiddleware(mc metrics.MetricsCollector) func(next http.Handler) http.Handler {
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				slog.Error("handler panicked",
					slog.String("panic", fmt.Sprint(rec)),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)
				mc.RecordHTTPStatus(http.StatusInternalServerError)
				WriteInternalServerError(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
