// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector は同期処理のPrometheusメトリクスを収集する。
type Collector struct {
	cycleSuccess  prometheus.Counter
	cycleFail     *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	usersFetched  prometheus.Gauge
	membersSynced prometheus.Gauge
	hubHTTPStatus *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cycleSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "groupsync_cycle_success_total",
			Help: "同期サイクル成功の合計数",
		}),
		cycleFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupsync_cycle_fail_total",
			Help: "エラーコード別の同期サイクル失敗数",
		}, []string{"code"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "groupsync_cycle_duration_seconds",
			Help:    "同期サイクルの所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		usersFetched: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "groupsync_users_fetched",
			Help: "直近のサイクルでハブから取得したユーザー数",
		}),
		membersSynced: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "groupsync_members_synced",
			Help: "直近のサイクルでディレクトリに送信したメンバー数",
		}),
		hubHTTPStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupsync_hub_http_status_total",
			Help: "ハブAPIのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.cycleSuccess,
		c.cycleFail,
		c.cycleDuration,
		c.usersFetched,
		c.membersSynced,
		c.hubHTTPStatus,
	)

	return c
}

// RecordCycleSuccess はサイクル成功を記録する。
func (c *Collector) RecordCycleSuccess() {
	c.cycleSuccess.Inc()
}

// RecordCycleFailure はサイクル失敗をエラーコード別に記録する。
func (c *Collector) RecordCycleFailure(code string) {
	c.cycleFail.WithLabelValues(code).Inc()
}

// RecordCycleDuration はサイクルの所要時間を記録する。
func (c *Collector) RecordCycleDuration(d time.Duration) {
	c.cycleDuration.Observe(d.Seconds())
}

// RecordUsersFetched は直近サイクルの取得ユーザー数を記録する。
func (c *Collector) RecordUsersFetched(n int) {
	c.usersFetched.Set(float64(n))
}

// RecordMembersSynced は直近サイクルの送信メンバー数を記録する。
func (c *Collector) RecordMembersSynced(n int) {
	c.membersSynced.Set(float64(n))
}

// RecordHubHTTPStatus はハブAPIのHTTPステータスコードを記録する。
func (c *Collector) RecordHubHTTPStatus(statusCode int) {
	c.hubHTTPStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
