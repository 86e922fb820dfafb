package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "onboarding"

// Recorder は Prometheus に記録するオンボーディング用メトリクス一式です。
type Recorder struct {
	registry *prometheus.Registry

	casesCreated      prometheus.Counter
	casesCompleted    prometheus.Counter
	conflictRetries   *prometheus.CounterVec
	conflictExhausted prometheus.Counter
	publishFailures   *prometheus.CounterVec
	rpcRequests       *prometheus.CounterVec
	rpcDuration       *prometheus.HistogramVec
	poolAcquired      prometheus.Gauge
	poolIdle          prometheus.Gauge
	poolMax           prometheus.Gauge
}

// New は専用レジストリに登録済みの Recorder を生成します。
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		casesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cases_created_total",
			Help:      "Total number of onboarding cases created",
		}),
		casesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cases_completed_total",
			Help:      "Total number of onboarding cases that transitioned to completed",
		}),
		conflictRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "version_conflict_retries_total",
			Help:      "Total number of read-modify-write retries caused by version conflicts",
		}, []string{"attempt"}),
		conflictExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "version_conflict_exhausted_total",
			Help:      "Total number of writes that gave up after exhausting retries",
		}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Total number of events that could not be published",
		}, []string{"topic"}),
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total number of gRPC requests",
		}, []string{"method", "code"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_request_duration_seconds",
			Help:      "gRPC request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		poolAcquired: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "database_connections_active",
			Help:      "Number of acquired database connections",
		}),
		poolIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "database_connections_idle",
			Help:      "Number of idle database connections",
		}),
		poolMax: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "database_connections_max",
			Help:      "Maximum number of database connections",
		}),
	}

	r.registry.MustRegister(
		r.casesCreated,
		r.casesCompleted,
		r.conflictRetries,
		r.conflictExhausted,
		r.publishFailures,
		r.rpcRequests,
		r.rpcDuration,
		r.poolAcquired,
		r.poolIdle,
		r.poolMax,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry は登録先のレジストリを返します。
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler は Prometheus のスクレイプ用ハンドラーを返します。
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) CaseCreated() {
	r.casesCreated.Inc()
}

func (r *Recorder) CaseCompleted() {
	r.casesCompleted.Inc()
}

func (r *Recorder) ConflictRetried(attempt int) {
	r.conflictRetries.WithLabelValues(strconv.Itoa(attempt)).Inc()
}

func (r *Recorder) ConflictExhausted() {
	r.conflictExhausted.Inc()
}

func (r *Recorder) PublishFailed(topic string) {
	r.publishFailures.WithLabelValues(topic).Inc()
}

// RecordRPC は gRPC 呼び出し 1 件の結果と所要時間を記録します。
func (r *Recorder) RecordRPC(method, code string, elapsed time.Duration) {
	r.rpcRequests.WithLabelValues(method, code).Inc()
	r.rpcDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// PoolStats はコネクションプールの統計値です。
type PoolStats struct {
	Acquired int32
	Idle     int32
	Max      int32
}

// UpdatePoolStats はコネクションプールのゲージを更新します。
func (r *Recorder) UpdatePoolStats(s PoolStats) {
	r.poolAcquired.Set(float64(s.Acquired))
	r.poolIdle.Set(float64(s.Idle))
	r.poolMax.Set(float64(s.Max))
}
