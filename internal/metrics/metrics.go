// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/wikirc/internal/model"
)

// Collector はパイプラインのPrometheusメトリクスを収集する実装。
// pipeline.MetricsCollectorインターフェースを満たす。
type Collector struct {
	lines    prometheus.Counter
	matches  *prometheus.CounterVec
	skips    *prometheus.CounterVec
	failures *prometheus.CounterVec
	records  *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		lines: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wikirc_lines_total",
			Help: "受信した生の行の合計数",
		}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wikirc_matches_total",
			Help: "パターン種別ごとのマッチ数",
		}, []string{"kind"}),
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wikirc_skips_total",
			Help: "不適格理由ごとのスキップ数",
		}, []string{"reason"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wikirc_failures_total",
			Help: "段階（lookup/enrich/persist）ごとの失敗数",
		}, []string{"stage"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wikirc_records_total",
			Help: "イベント種別ごとの記録済みイベント数",
		}, []string{"type"}),
	}

	reg.MustRegister(
		c.lines,
		c.matches,
		c.skips,
		c.failures,
		c.records,
	)

	return c
}

// RecordLine は受信行を記録する。
func (c *Collector) RecordLine() {
	c.lines.Inc()
}

// RecordMatch はパターンマッチを記録する。kindは"edit"または"move"。
func (c *Collector) RecordMatch(kind string) {
	c.matches.WithLabelValues(kind).Inc()
}

// RecordSkip は不適格イベントのスキップを記録する。
func (c *Collector) RecordSkip(reason string) {
	c.skips.WithLabelValues(reason).Inc()
}

// RecordFailure は段階（lookup/enrich/persist）ごとの失敗を記録する。
func (c *Collector) RecordFailure(stage string) {
	c.failures.WithLabelValues(stage).Inc()
}

// RecordPersisted は記録済みイベントを記録する。
func (c *Collector) RecordPersisted(eventType model.EventType) {
	c.records.WithLabelValues(string(eventType)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
