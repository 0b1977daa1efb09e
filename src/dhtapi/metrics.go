package dhtapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	logs "github.com/danmuck/smplog"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsPath     = "/metrics"
	RequestIDHeader = "X-Request-ID"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dht_http_requests_total",
			Help: "DHT API requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dht_http_request_duration_seconds",
			Help:    "DHT API request duration",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"method", "route"},
	)

	putsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dht_puts_rejected_total",
			Help: "Puts refused because the key was already written",
		},
	)

	getManyItems = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dht_getmany_items",
			Help:    "Items returned per getMany",
			Buckets: []float64{0, 1, 2, 5, 10, 50, 100, 1000},
		},
	)
)

// route keeps the metric label set fixed whatever paths clients probe.
func route(path string) string {
	switch strings.TrimSuffix(path, "/") + "/" {
	case PutPath:
		return PutPath
	case GetManyPath:
		return GetManyPath
	case MetricsPath + "/":
		return MetricsPath
	}
	return "other"
}

// method bounds the method label the same way route bounds paths.
func method(m string) string {
	switch m {
	case http.MethodGet, http.MethodPost, http.MethodPut:
		return m
	}
	return "other"
}

// statusRecorder remembers the status code written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// instrument tags each request with an id, logs it and records metrics.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		rt, m := route(r.URL.Path), method(r.Method)
		requestsTotal.WithLabelValues(m, rt, strconv.Itoa(rec.status)).Inc()
		requestDuration.WithLabelValues(m, rt).Observe(elapsed.Seconds())
		logs.Debugf("[%s] %s %s -> %d (%s)", id, r.Method, r.URL.RequestURI(), rec.status, elapsed)
	})
}
