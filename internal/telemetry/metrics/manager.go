package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Manager struct {
	// counters
	CounterOutgoingRequests    *prometheus.CounterVec
	CounterLoginAttempts       *prometheus.CounterVec
	CounterSessionExpirations  *prometheus.CounterVec
	CounterRequests            *prometheus.CounterVec
	CounterHandleRequestPanic  prometheus.Counter
	CounterRateLimitedRequests prometheus.Counter

	// gauges
	GaugeAuthenticated prometheus.Gauge
	GaugeRequests      prometheus.Gauge

	// histograms
	HistogramOutgoingRequestDuration *prometheus.HistogramVec
	HistogramRequestDuration         *prometheus.HistogramVec
}

func NewTestManager() *Manager {
	return NewManager("cutroom", "test", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("cutroom", "test", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	counterOutgoingRequests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "outgoing_request",
		Help:      "The total number of requests sent to the admin api",
	}, []string{"method", "status"})
	counterLoginAttempts := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "login_attempts",
		Help:      "The total number of admin login attempts, by result",
	}, []string{"result"})
	counterSessionExpirations := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "session_expirations",
		Help:      "The total number of sessions torn down by an authorization rejection",
	}, []string{"reason"})
	counterRequests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request",
		Help:      "The total number of incoming requests",
	}, []string{"method", "status"})
	counterHandleRequestPanic := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "handle_request_panic",
		Help:      "The total number of serve request panics",
	})
	counterRateLimitedRequests := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "rate_limited_requests",
		Help:      "The total number of rate limited requests",
	})

	gaugeAuthenticated := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "authenticated",
		Help:      "1 while an admin session is authenticated, 0 otherwise",
	})
	gaugeRequests := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "current_requests",
		Help:      "Current number of requests served",
	})

	histogramOutgoingRequestDuration := factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "outgoing_request_duration_seconds",
		Help:      "Histogram of admin api response time in seconds",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
	}, []string{"method", "status_code"})
	histogramRequestDuration := factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_duration_seconds",
		Help:      "Histogram of response time for requests in seconds",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"route", "method", "status_code"})

	return &Manager{
		CounterOutgoingRequests:          counterOutgoingRequests,
		CounterLoginAttempts:             counterLoginAttempts,
		CounterSessionExpirations:        counterSessionExpirations,
		CounterRequests:                  counterRequests,
		CounterHandleRequestPanic:        counterHandleRequestPanic,
		CounterRateLimitedRequests:       counterRateLimitedRequests,
		GaugeAuthenticated:               gaugeAuthenticated,
		GaugeRequests:                    gaugeRequests,
		HistogramOutgoingRequestDuration: histogramOutgoingRequestDuration,
		HistogramRequestDuration:         histogramRequestDuration,
	}
}
