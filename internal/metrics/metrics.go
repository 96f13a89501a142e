// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// identity解決の結果ラベル
const (
	ResolutionLinked   = "linked"   // (provider, provider_user_id) で既存identityに一致
	ResolutionMerged   = "merged"   // メールアドレスで既存アカウントに統合
	ResolutionCreated  = "created"  // 新規アカウント作成
	ResolutionRejected = "rejected" // 未検証メール・紐付け衝突
	ResolutionFailed   = "failed"   // 永続化エラー
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordIdentityResolution(provider, outcome string)
	RecordPublishTransition(published bool)
	RecordSubdomainConflict()
	RecordPublicLookup(found bool)
	RecordHTTPStatus(statusCode int)
	RecordBlobSweep(deleted, failed int, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	identityResolutions *prometheus.CounterVec
	publishTransitions  *prometheus.CounterVec
	subdomainConflicts  prometheus.Counter
	publicLookups       *prometheus.CounterVec
	httpStatus          *prometheus.CounterVec
	blobsDeleted        prometheus.Counter
	blobsFailed         prometheus.Counter
	blobSweepLatency    prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		identityResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolium_identity_resolutions_total",
			Help: "OAuthログイン時のidentity解決結果別の件数",
		}, []string{"provider", "outcome"}),
		publishTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolium_publish_transitions_total",
			Help: "公開・非公開への遷移数",
		}, []string{"state"}),
		subdomainConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portfolium_subdomain_conflicts_total",
			Help: "サブドメイン予約の競合数",
		}),
		publicLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolium_public_lookups_total",
			Help: "公開ポートフォリオ参照の結果別件数",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolium_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		blobsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portfolium_blob_sweep_deleted_total",
			Help: "削除待ちキューから削除されたオブジェクト数",
		}),
		blobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portfolium_blob_sweep_failed_total",
			Help: "削除に失敗したオブジェクト数",
		}),
		blobSweepLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "portfolium_blob_sweep_duration_seconds",
			Help:    "削除待ちキュー1回分の処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.identityResolutions,
		c.publishTransitions,
		c.subdomainConflicts,
		c.publicLookups,
		c.httpStatus,
		c.blobsDeleted,
		c.blobsFailed,
		c.blobSweepLatency,
	)

	return c
}

// RecordIdentityResolution はidentity解決の結果を記録する。
func (c *Collector) RecordIdentityResolution(provider, outcome string) {
	c.identityResolutions.WithLabelValues(provider, outcome).Inc()
}

// RecordPublishTransition は公開状態の遷移を記録する。
func (c *Collector) RecordPublishTransition(published bool) {
	state := "unpublished"
	if published {
		state = "published"
	}
	c.publishTransitions.WithLabelValues(state).Inc()
}

// RecordSubdomainConflict はサブドメイン競合を記録する。
func (c *Collector) RecordSubdomainConflict() {
	c.subdomainConflicts.Inc()
}

// RecordPublicLookup は公開ポートフォリオ参照の結果を記録する。
func (c *Collector) RecordPublicLookup(found bool) {
	result := "not_found"
	if found {
		result = "found"
	}
	c.publicLookups.WithLabelValues(result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordBlobSweep は削除待ちキュー処理の結果を記録する。
func (c *Collector) RecordBlobSweep(deleted, failed int, duration time.Duration) {
	c.blobsDeleted.Add(float64(deleted))
	c.blobsFailed.Add(float64(failed))
	c.blobSweepLatency.Observe(duration.Seconds())
}

// NopCollector は何も記録しないMetricsCollector。
type NopCollector struct{}

func (NopCollector) RecordIdentityResolution(string, string) {}
func (NopCollector) RecordPublishTransition(bool) {}
func (NopCollector) RecordSubdomainConflict() {}
func (NopCollector) RecordPublicLookup(bool) {}
func (NopCollector) RecordHTTPStatus(int) {}
func (NopCollector) RecordBlobSweep(int, int, time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
