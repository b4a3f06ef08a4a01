package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	inFlight    prometheus.Gauge
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	requestSize *prometheus.HistogramVec

	predictions      *prometheus.CounterVec
	preprocessErrors *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "digit_in_flight_requests",
			Help: "Number of requests currently being served.",
		}),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digit_api_requests_total",
				Help: "A counter for requests to the wrapped handlers.",
			},
			[]string{"handler", "code", "method"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "digit_request_duration_seconds",
				Help:    "A histogram of latencies for requests.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"handler", "method"},
		),
		requestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "digit_request_size_bytes",
				Help:    "A histogram of request sizes.",
				Buckets: []float64{100, 1500, 50000, 500000, 2000000, 10000000},
			},
			[]string{"handler"},
		),
		predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digit_predictions_total",
				Help: "Predicted digits by input surface.",
			},
			[]string{"source", "digit"},
		),
		preprocessErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digit_preprocess_errors_total",
				Help: "Inputs rejected before classification.",
			},
			[]string{"kind"},
		),
	}

	m.registry.MustRegister(m.inFlight, m.requests, m.duration, m.requestSize,
		m.predictions, m.preprocessErrors)
	return m
}

// Instrument wraps h with the in-flight, duration, counter and size collectors.
func (m *Metrics) Instrument(name string, h http.Handler) http.Handler {
	labels := prometheus.Labels{"handler": name}
	return promhttp.InstrumentHandlerInFlight(m.inFlight,
		promhttp.InstrumentHandlerDuration(m.duration.MustCurryWith(labels),
			promhttp.InstrumentHandlerCounter(m.requests.MustCurryWith(labels),
				promhttp.InstrumentHandlerRequestSize(m.requestSize.MustCurryWith(labels), h),
			),
		),
	)
}

func (m *Metrics) ObservePrediction(source string, digit int) {
	m.predictions.WithLabelValues(source, strconv.Itoa(digit)).Inc()
}

func (m *Metrics) ObservePreprocessError(kind string) {
	m.preprocessErrors.WithLabelValues(kind).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
