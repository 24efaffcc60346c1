// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// セッションストア、ルートガード、アンケート送信から利用する。
type MetricsCollector interface {
	// RecordAuthEvent は認証イベント（SIGNED_IN, SIGNED_OUT など）を記録する。
	RecordAuthEvent(event string)
	// RecordGuardDecision はルートガードの判定結果を記録する。
	RecordGuardDecision(route, decision string)
	// RecordSurveySubmitted はアンケート送信の結果と所要時間を記録する。
	RecordSurveySubmitted(success bool, duration time.Duration)
	// SetActiveClients はメモリ上に保持しているブラウザごとのセッションストア数を設定する。
	SetActiveClients(n int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authEvents       *prometheus.CounterVec
	guardDecisions   *prometheus.CounterVec
	surveySubmits    *prometheus.CounterVec
	surveySubmitTime prometheus.Histogram
	activeClients    prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mindme_auth_events_total",
			Help: "認証イベント種別ごとの発生数",
		}, []string{"event"}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mindme_guard_decisions_total",
			Help: "ルートガードの判定結果ごとの件数",
		}, []string{"route", "decision"}),
		surveySubmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mindme_survey_submissions_total",
			Help: "アンケート送信の結果ごとの件数",
		}, []string{"result"}),
		surveySubmitTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mindme_survey_submit_duration_seconds",
			Help:    "アンケート保存にかかった時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		activeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mindme_active_clients",
			Help: "メモリ上のセッションストア数",
		}),
	}

	reg.MustRegister(
		c.authEvents,
		c.guardDecisions,
		c.surveySubmits,
		c.surveySubmitTime,
		c.activeClients,
	)

	return c
}

// RecordAuthEvent は認証イベントを記録する。
func (c *Collector) RecordAuthEvent(event string) {
	c.authEvents.WithLabelValues(event).Inc()
}

// RecordGuardDecision はルートガードの判定結果を記録する。
func (c *Collector) RecordGuardDecision(route, decision string) {
	c.guardDecisions.WithLabelValues(route, decision).Inc()
}

// RecordSurveySubmitted はアンケート送信の結果と所要時間を記録する。
func (c *Collector) RecordSurveySubmitted(success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.surveySubmits.WithLabelValues(result).Inc()
	c.surveySubmitTime.Observe(duration.Seconds())
}

// SetActiveClients はセッションストア数を設定する。
func (c *Collector) SetActiveClients(n int) {
	c.activeClients.Set(float64(n))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordAuthEvent(string)                    {}
func (Nop) RecordGuardDecision(string, string)        {}
func (Nop) RecordSurveySubmitted(bool, time.Duration) {}
func (Nop) SetActiveClients(int)                      {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
