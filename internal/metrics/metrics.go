// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordScrapeSuccess()
	RecordScrapeFailure(kind string)
	RecordSampleAppended()
	RecordAlertFired()
	RecordNotificationSent()
	RecordNotificationFailed()
	RecordSweep()
	RecordSweepSkipped()
	RecordSweepDuration(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	scrapeSuccess     prometheus.Counter
	scrapeFail        *prometheus.CounterVec
	samplesAppended   prometheus.Counter
	alertsFired       prometheus.Counter
	notificationsSent prometheus.Counter
	notificationsFail prometheus.Counter
	sweeps            prometheus.Counter
	sweepsSkipped     prometheus.Counter
	sweepDuration     prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		scrapeSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricepulse_scrape_success_total",
			Help: "価格抽出成功の合計数",
		}),
		scrapeFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricepulse_scrape_fail_total",
			Help: "価格抽出失敗の分類別合計数",
		}, []string{"kind"}),
		samplesAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricepulse_samples_appended_total",
			Help: "追記された価格サンプルの合計数",
		}),
		alertsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricepulse_alerts_fired_total",
			Help: "発火したアラートの合計数",
		}),
		notificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricepulse_notifications_sent_total",
			Help: "送信に成功した通知メールの合計数",
		}),
		notificationsFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricepulse_notifications_fail_total",
			Help: "送信に失敗した通知メールの合計数",
		}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricepulse_sweeps_total",
			Help: "実行されたスイープの合計数",
		}),
		sweepsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricepulse_sweeps_skipped_total",
			Help: "実行中のため省略されたスイープの合計数",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pricepulse_sweep_duration_seconds",
			Help:    "スイープ全体の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.scrapeSuccess,
		c.scrapeFail,
		c.samplesAppended,
		c.alertsFired,
		c.notificationsSent,
		c.notificationsFail,
		c.sweeps,
		c.sweepsSkipped,
		c.sweepDuration,
	)

	return c
}

// RecordScrapeSuccess は価格抽出成功を記録する。
func (c *Collector) RecordScrapeSuccess() {
	c.scrapeSuccess.Inc()
}

// RecordScrapeFailure は価格抽出失敗を分類付きで記録する。
func (c *Collector) RecordScrapeFailure(kind string) {
	c.scrapeFail.WithLabelValues(kind).Inc()
}

// RecordSampleAppended は価格サンプルの追記を記録する。
func (c *Collector) RecordSampleAppended() {
	c.samplesAppended.Inc()
}

// RecordAlertFired はアラート発火を記録する。
func (c *Collector) RecordAlertFired() {
	c.alertsFired.Inc()
}

// RecordNotificationSent は通知メールの送信成功を記録する。
func (c *Collector) RecordNotificationSent() {
	c.notificationsSent.Inc()
}

// RecordNotificationFailed は通知メールの送信失敗を記録する。
func (c *Collector) RecordNotificationFailed() {
	c.notificationsFail.Inc()
}

// RecordSweep はスイープの実行を記録する。
func (c *Collector) RecordSweep() {
	c.sweeps.Inc()
}

// RecordSweepSkipped は実行中のため省略されたスイープを記録する。
func (c *Collector) RecordSweepSkipped() {
	c.sweepsSkipped.Inc()
}

// RecordSweepDuration はスイープの所要時間を記録する。
func (c *Collector) RecordSweepDuration(duration time.Duration) {
	c.sweepDuration.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
