package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedRoute labels requests no route matched so path probes cannot inflate cardinality.
const unmatchedRoute = "unmatched"

var requestLabels = []string{"method", "route", "status"}

// HTTPMetricsOptions configures the HTTP metrics middleware. Zero values fall back to defaults.
type HTTPMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
	Buckets    []float64
}

// HTTPMetrics instruments every request and separately counts the ones the
// auth surface turned away.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	InFlight prometheus.Gauge
	Denied   *prometheus.CounterVec
}

func NewHTTPMetrics(opts HTTPMetricsOptions) (*HTTPMetrics, error) {
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ns := opts.Namespace
	if ns == "" {
		ns = "auth"
	}
	buckets := opts.Buckets
	if len(buckets) == 0 {
		// Login and registration hash passwords, so the tail runs longer than DefBuckets expects.
		buckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}
	}

	var (
		m   HTTPMetrics
		err error
	)
	if m.Requests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "http", Name: "requests_total",
		Help: "HTTP requests by method, route and status code.",
	}, requestLabels)); err != nil {
		return nil, err
	}
	if m.Duration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "http", Name: "request_duration_seconds",
		Help: "HTTP request latency by method, route and status code.", Buckets: buckets,
	}, requestLabels)); err != nil {
		return nil, err
	}
	if m.InFlight, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: "http", Name: "in_flight_requests",
		Help: "HTTP requests currently being served.",
	})); err != nil {
		return nil, err
	}
	if m.Denied, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "http", Name: "denied_total",
		Help: "Requests refused as unauthorized, rate limited or blocked by an unavailable store.",
	}, []string{"route", "reason"})); err != nil {
		return nil, err
	}
	return &m, nil
}

// register adds collector to reg, returning the already registered instance on conflict.
func register[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var already prometheus.AlreadyRegisteredError
	if !errors.As(err, &already) {
		return collector, fmt.Errorf("register collector: %w", err)
	}
	existing, ok := already.ExistingCollector.(T)
	if !ok {
		return collector, fmt.Errorf("register collector: existing collector is %T", already.ExistingCollector)
	}
	return existing, nil
}

func denialReason(status int) (string, bool) {
	switch status {
	case http.StatusUnauthorized:
		return "unauthorized", true
	case http.StatusTooManyRequests:
		return "rate_limited", true
	case http.StatusServiceUnavailable:
		return "store_unavailable", true
	}
	return "", false
}

func (m *HTTPMetrics) Handler() gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		m.InFlight.Inc()
		defer m.InFlight.Dec()

		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		status := c.Writer.Status()
		code := strconv.Itoa(status)

		m.Requests.WithLabelValues(c.Request.Method, route, code).Inc()
		m.Duration.WithLabelValues(c.Request.Method, route, code).Observe(elapsed.Seconds())
		if reason, ok := denialReason(status); ok {
			m.Denied.WithLabelValues(route, reason).Inc()
		}
	}
}
