// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 生成オーケストレーター、解析クライアント、解析バックエンドから利用する。
type MetricsCollector interface {
	// RecordGeneration は生成ワークフローの終端結果（succeeded, paywall, failed）を記録する。
	RecordGeneration(result string)
	RecordAnalysisLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
	// RecordUsageDecision は利用量ゲートの判定（allowed, limit_reached, persona_locked）を記録する。
	RecordUsageDecision(decision string)
	RecordGitHubFetchFailure(resource string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	generations     *prometheus.CounterVec
	analysisLatency prometheus.Histogram
	httpStatus      *prometheus.CounterVec
	usageDecisions  *prometheus.CounterVec
	githubFail      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repo2viral_generation_total",
			Help: "生成ワークフローの終端結果別の件数",
		}, []string{"result"}),
		analysisLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "repo2viral_analysis_latency_seconds",
			Help: "解析リクエストのレイテンシ（秒）",
			// LLM呼び出しを含むため長めのバケットを用意する
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repo2viral_http_status_total",
			Help: "解析APIのHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		usageDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repo2viral_usage_decision_total",
			Help: "利用量ゲートの判定別の件数",
		}, []string{"decision"}),
		githubFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repo2viral_github_fetch_fail_total",
			Help: "GitHubからの取得失敗数",
		}, []string{"resource"}),
	}

	reg.MustRegister(
		c.generations,
		c.analysisLatency,
		c.httpStatus,
		c.usageDecisions,
		c.githubFail,
	)

	return c
}

// RecordGeneration は生成ワークフローの結果を記録する。
func (c *Collector) RecordGeneration(result string) {
	c.generations.WithLabelValues(result).Inc()
}

// RecordAnalysisLatency は解析リクエストのレイテンシを記録する。
func (c *Collector) RecordAnalysisLatency(duration time.Duration) {
	c.analysisLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordUsageDecision は利用量ゲートの判定を記録する。
func (c *Collector) RecordUsageDecision(decision string) {
	c.usageDecisions.WithLabelValues(decision).Inc()
}

// RecordGitHubFetchFailure はGitHub取得失敗を記録する。resourceはreadme, tree, releases等。
func (c *Collector) RecordGitHubFetchFailure(resource string) {
	c.githubFail.WithLabelValues(resource).Inc()
}

// Nop は何も記録しないMetricsCollector。CLIやテストで使用する。
type Nop struct{}

func (Nop) RecordGeneration(string)             {}
func (Nop) RecordAnalysisLatency(time.Duration) {}
func (Nop) RecordHTTPStatus(int)                {}
func (Nop) RecordUsageDecision(string)          {}
func (Nop) RecordGitHubFetchFailure(string)     {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
