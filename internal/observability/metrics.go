package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywall_evaluations_total",
			Help: "Trigger evaluations by result kind",
		}, []string{"result"},
	)
	OutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywall_presentation_outcomes_total",
			Help: "Terminal presentation states by outcome",
		}, []string{"outcome"},
	)
	PipelinesInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "paywall_pipelines_in_flight",
		Help: "Presentation pipelines currently running",
	})
	EvalLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "paywall_evaluation_duration_seconds",
		Help:    "Trigger evaluation latency seconds",
		Buckets: prometheus.DefBuckets,
	})

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywall_http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"code"},
	)
	Latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "paywall_http_request_duration_seconds",
		Help:    "HTTP request latency seconds",
		Buckets: prometheus.DefBuckets,
	})
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "paywall_http_in_flight",
		Help: "In-flight HTTP requests",
	})
)

func init() {
	prometheus.MustRegister(
		EvaluationsTotal, OutcomesTotal, PipelinesInFlight, EvalLatency,
		RequestsTotal, Latency, InFlight,
	)
}

func MetricsHandler() http.Handler { return promhttp.Handler() }

type rec struct {
	http.ResponseWriter
	code int
}

func (r *rec) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func Measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		InFlight.Inc()
		defer InFlight.Dec()

		rr := &rec{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rr, r)

		Latency.Observe(time.Since(start).Seconds())
		RequestsTotal.WithLabelValues(strconv.Itoa(rr.code)).Inc()
	})
}
