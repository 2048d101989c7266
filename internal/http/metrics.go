package httpx

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

func (r *Router) initMetrics() {
	r.metricsOnce.Do(func() {
		r.requestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "softtouch",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"})

		r.requestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "softtouch",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"})

		r.rateLimitHits = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "softtouch",
			Subsystem: "api",
			Name:      "rate_limit_hits_total",
			Help:      "Number of rate-limited responses",
		}, []string{"route", "key"})

		collectors := []prometheus.Collector{r.requestTotal, r.requestLatency, r.rateLimitHits}
		for _, collector := range collectors {
			if err := prometheus.Register(collector); err != nil {
				if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
					switch v := are.ExistingCollector.(type) {
					case *prometheus.CounterVec:
						if collector == r.requestTotal {
							r.requestTotal = v
						} else if collector == r.rateLimitHits {
							r.rateLimitHits = v
						}
					case *prometheus.HistogramVec:
						r.requestLatency = v
					}
				}
			}
		}

		if r.telemetry != nil {
			queueDepth := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "softtouch",
				Subsystem: "api",
				Name:      "telemetry_queue_depth",
				Help:      "Records buffered in the telemetry queue",
			}, func() float64 { return float64(r.telemetry.QueueDepth()) })
			dropped := prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: "softtouch",
				Subsystem: "api",
				Name:      "telemetry_dropped_records_total",
				Help:      "Records dropped on telemetry queue overflow",
			}, func() float64 { return float64(r.telemetry.Dropped()) })
			for _, collector := range []prometheus.Collector{queueDepth, dropped} {
				if err := prometheus.Register(collector); err != nil {
					var are prometheus.AlreadyRegisteredError
					if errors.As(err, &are) {
						// Gauge funcs cannot be swapped like the vectors
						// above; the first router's closures keep reporting.
						r.logger.Warn("telemetry collector already registered", "error", err)
						continue
					}
					r.logger.Error("telemetry collector registration failed", "error", err)
				}
			}
		}
		r.metricsInitialized = true
	})
}

func (r *Router) recordRequestMetrics(method, route string, status int, duration time.Duration) {
	if !r.metricsInitialized {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	r.requestTotal.With(labels).Inc()
	r.requestLatency.With(labels).Observe(duration.Seconds())
}

func (r *Router) recordRateLimitHit(route, key string) {
	if !r.metricsInitialized {
		return
	}
	r.rateLimitHits.With(prometheus.Labels{"route": route, "key": key}).Inc()
}
