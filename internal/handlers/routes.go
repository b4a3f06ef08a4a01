package handlers

import (
	"net/http"

	"github.com/Brownie44l1/digit-api/internal/metrics"
	"github.com/Brownie44l1/digit-api/internal/web"
)

// Routes registers every endpoint, each input surface on its own path.
func (h *Handler) Routes(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/", m.Instrument("index", http.HandlerFunc(web.Index)))
	mux.Handle("/health", m.Instrument("health", http.HandlerFunc(h.Health)))
	mux.Handle("/predict", m.Instrument("tensor", http.HandlerFunc(h.Predict)))
	mux.Handle("/predict/canvas", m.Instrument("canvas", http.HandlerFunc(h.PredictFromCanvas)))
	mux.Handle("/predict/image", m.Instrument("upload", http.HandlerFunc(h.PredictFromImage)))
	mux.Handle("/metrics", m.Handler())

	return RequestLogger(EnableCORS(mux))
}
