package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 请求结果
const (
	outcomeOK    = "ok"
	outcomeEmpty = "empty"
	outcomeError = "error"
)

// Metrics 是推荐服务的 Prometheus 指标。方法对 nil 接收者安全，未配置时不记录。
type Metrics struct {
	requestsTotal  *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	cacheTotal     *prometheus.CounterVec
	fitsTotal      prometheus.Counter
	fitDuration    prometheus.Histogram
	clusters       prometheus.Gauge
	fitInertia     prometheus.Gauge
}

// NewMetrics 创建指标并注册到 reg。测试中传入 prometheus.NewRegistry() 避免全局冲突。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "movierec_requests_total",
			Help: "Total number of recommendation requests by strategy and outcome",
		}, []string{"strategy", "outcome"}),

		requestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "movierec_request_duration_seconds",
			Help:    "Recommendation latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"strategy"}),

		cacheTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "movierec_cache_total",
			Help: "Result cache lookups by strategy and result",
		}, []string{"strategy", "result"}),

		fitsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "movierec_fits_total",
			Help: "Total number of completed k-means fits",
		}),

		fitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "movierec_fit_duration_seconds",
			Help:    "k-means fit duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),

		clusters: f.NewGauge(prometheus.GaugeOpts{
			Name: "movierec_clusters",
			Help: "Number of clusters in the published assignment",
		}),

		fitInertia: f.NewGauge(prometheus.GaugeOpts{
			Name: "movierec_fit_inertia",
			Help: "Within-cluster sum of squares of the published assignment",
		}),
	}
}

func (m *Metrics) observeRequest(strategy Strategy, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(string(strategy), outcome).Inc()
	m.requestLatency.WithLabelValues(string(strategy)).Observe(took.Seconds())
}

func (m *Metrics) observeCache(strategy Strategy, result string) {
	if m == nil {
		return
	}
	m.cacheTotal.WithLabelValues(string(strategy), result).Inc()
}

func (m *Metrics) observeFit(k int, inertia float64, took time.Duration) {
	if m == nil {
		return
	}
	m.fitsTotal.Inc()
	m.fitDuration.Observe(took.Seconds())
	m.clusters.Set(float64(k))
	m.fitInertia.Set(inertia)
}
