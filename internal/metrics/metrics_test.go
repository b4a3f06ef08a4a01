package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentCountsRequests(t *testing.T) {
	m := New()
	h := m.Instrument("canvas", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	for i := 0; i < 3; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/predict/canvas", strings.NewReader("{}")))
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.requests.WithLabelValues("canvas", "418", "post")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))
}

func TestObservePrediction(t *testing.T) {
	m := New()
	m.ObservePrediction("upload", 7)
	m.ObservePrediction("upload", 7)
	m.ObservePreprocessError("decode")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.predictions.WithLabelValues("upload", "7")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.preprocessErrors.WithLabelValues("decode")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `digit_predictions_total{digit="7",source="upload"} 2`)
}
