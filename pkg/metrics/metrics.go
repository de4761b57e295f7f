package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 签到协议的 Prometheus 指标
// 零值指针可安全调用，未启用指标时传 nil 即可
type Metrics struct {
	registry        *prometheus.Registry
	checkIns        *prometheus.CounterVec
	checkInDuration prometheus.Histogram
	qrIssued        prometheus.Counter
}

// New 创建独立注册表并注册全部指标
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		checkIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qra",
			Name:      "checkin_total",
			Help:      "签到请求结果计数（result 为成功或错误类别）",
		}, []string{"result"}),
		checkInDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "qra",
			Name:      "checkin_duration_seconds",
			Help:      "签到处理耗时",
			Buckets:   prometheus.DefBuckets,
		}),
		qrIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qra",
			Name:      "qr_issued_total",
			Help:      "已签发的二维码令牌数",
		}),
	}
	reg.MustRegister(m.checkIns, m.checkInDuration, m.qrIssued)
	return m
}

// ObserveCheckIn 记录一次签到结果与耗时
func (m *Metrics) ObserveCheckIn(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.checkIns.WithLabelValues(result).Inc()
	m.checkInDuration.Observe(elapsed.Seconds())
}

// IncQRIssued 二维码签发计数 +1
func (m *Metrics) IncQRIssued() {
	if m == nil {
		return
	}
	m.qrIssued.Inc()
}

// Handler 返回 /metrics 的 HTTP 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
