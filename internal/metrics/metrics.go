// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン結果のラベル値。
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
)

// ユーザー名変更結果のラベル値。
const (
	RenameSuccess  = "success"
	RenameRejected = "rejected"
	RenameFailed   = "failed"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェア、サービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordRegistration()
	RecordLogin(result string)
	RecordAuthFailure(reason string)
	RecordUsernameChange(outcome string)
	RecordTweepsReassigned(count int64)
	RecordTweepCreated()
	RecordTweepDeleted()
	RecordReconciledTweeps(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus      *prometheus.CounterVec
	requestLatency  prometheus.Histogram
	registrations   prometheus.Counter
	logins          *prometheus.CounterVec
	authFailures    *prometheus.CounterVec
	usernameChanges *prometheus.CounterVec
	tweepsReassign  prometheus.Counter
	tweepsCreated   prometheus.Counter
	tweepsDeleted   prometheus.Counter
	reconciled      prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tweeper_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tweeper_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tweeper_registrations_total",
			Help: "ユーザー登録の合計数",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tweeper_logins_total",
			Help: "結果別のログイン試行数",
		}, []string{"result"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tweeper_auth_failures_total",
			Help: "理由別のBearer認証失敗数",
		}, []string{"reason"}),
		usernameChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tweeper_username_changes_total",
			Help: "結果別のユーザー名変更数",
		}, []string{"outcome"}),
		tweepsReassign: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tweeper_tweeps_reassigned_total",
			Help: "ユーザー名変更に伴い付け替えられたtweepの合計数",
		}),
		tweepsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tweeper_tweeps_created_total",
			Help: "作成されたtweepの合計数",
		}),
		tweepsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tweeper_tweeps_deleted_total",
			Help: "削除されたtweepの合計数",
		}),
		reconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tweeper_reconciled_tweeps_total",
			Help: "整合ジョブで修復されたtweepの合計数",
		}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.requestLatency,
		c.registrations,
		c.logins,
		c.authFailures,
		c.usernameChanges,
		c.tweepsReassign,
		c.tweepsCreated,
		c.tweepsDeleted,
		c.reconciled,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordRegistration はユーザー登録を記録する。
func (c *Collector) RecordRegistration() {
	c.registrations.Inc()
}

// RecordLogin はログイン試行を結果別に記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// RecordAuthFailure はBearer認証の失敗を理由別に記録する。
func (c *Collector) RecordAuthFailure(reason string) {
	c.authFailures.WithLabelValues(reason).Inc()
}

// RecordUsernameChange はユーザー名変更を結果別に記録する。
func (c *Collector) RecordUsernameChange(outcome string) {
	c.usernameChanges.WithLabelValues(outcome).Inc()
}

// RecordTweepsReassigned は付け替えたtweep数を記録する。
func (c *Collector) RecordTweepsReassigned(count int64) {
	c.tweepsReassign.Add(float64(count))
}

// RecordTweepCreated はtweep作成を記録する。
func (c *Collector) RecordTweepCreated() {
	c.tweepsCreated.Inc()
}

// RecordTweepDeleted はtweep削除を記録する。
func (c *Collector) RecordTweepDeleted() {
	c.tweepsDeleted.Inc()
}

// RecordReconciledTweeps は整合ジョブで修復したtweep数を記録する。
func (c *Collector) RecordReconciledTweeps(count int64) {
	c.reconciled.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type NopCollector struct{}

func (NopCollector) RecordHTTPStatus(int) {}
func (NopCollector) RecordRequestLatency(time.Duration) {}
func (NopCollector) RecordRegistration() {}
func (NopCollector) RecordLogin(string) {}
func (NopCollector) RecordAuthFailure(string) {}
func (NopCollector) RecordUsernameChange(string) {}
func (NopCollector) RecordTweepsReassigned(int64) {}
func (NopCollector) RecordTweepCreated() {}
func (NopCollector) RecordTweepDeleted() {}
func (NopCollector) RecordReconciledTweeps(int64) {}

// compile-time interface checks
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
