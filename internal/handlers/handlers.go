package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Brownie44l1/digit-api/internal/digits"
	"github.com/Brownie44l1/digit-api/internal/metrics"
	"github.com/Brownie44l1/digit-api/internal/model"
	"github.com/rs/zerolog"
)

const (
	sourceTensor = "tensor"
	sourceCanvas = "canvas"
	sourceUpload = "upload"
)

type Handler struct {
	classifier digits.Classifier
	metadata   model.Metadata
	metrics    *metrics.Metrics
	maxUpload  int64
}

func NewHandler(classifier digits.Classifier, metadata model.Metadata, m *metrics.Metrics, maxUpload int64) *Handler {
	return &Handler{
		classifier: classifier,
		metadata:   metadata,
		metrics:    m,
		maxUpload:  maxUpload,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]string{"status": "healthy"})
}

// Predict classifies an already normalized 28x28 tensor sent as a flat JSON array.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.PredictionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxUpload)).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	for _, v := range req.Image {
		if v < 0 || v > 1 {
			http.Error(w, "Values must be normalized to [0, 1]", http.StatusBadRequest)
			return
		}
	}

	tensor, err := digits.NewTensor(req.Image)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	prediction, err := digits.Classify(h.classifier, tensor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, sourceTensor, prediction)
}

// PredictFromCanvas classifies a drawing surface snapshot. A blank canvas yields
// 204 No Content: there is nothing to predict yet.
func (h *Handler) PredictFromCanvas(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.CanvasRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxUpload)).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	raw, err := digits.NewCanvasImage(req.Width, req.Height, req.Channels, req.Pixels)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if raw.Blank() {
		zerolog.Ctx(r.Context()).Debug().Msg("blank canvas, nothing to predict")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	prediction, err := digits.Predict(h.classifier, raw)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, sourceCanvas, prediction)
}

func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	logger := zerolog.Ctx(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "No image file provided. Use 'image' as the form field name", http.StatusBadRequest)
		return
	}
	defer file.Close()

	logger.Info().Str("filename", header.Filename).Int64("size", header.Size).Msg("received file")

	raw, format, err := digits.DecodeImage(file)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	logger.Debug().Str("format", format).Int("width", raw.Width).Int("height", raw.Height).Msg("decoded upload")

	prediction, err := digits.Predict(h.classifier, raw)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, sourceUpload, prediction)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, source string, p *digits.Prediction) {
	h.metrics.ObservePrediction(source, p.Digit)
	zerolog.Ctx(r.Context()).Info().
		Str("source", source).
		Int("digit", p.Digit).
		Float32("confidence", p.Confidence).
		Msg("prediction")

	writeJSON(w, r, model.PredictionResponse{
		Digit:         p.Digit,
		Class:         h.metadata.Label(p.Digit),
		Confidence:    p.Confidence,
		Probabilities: p.Probabilities,
	})
}

// fail maps the error taxonomy onto HTTP status codes.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	logger := zerolog.Ctx(r.Context())

	switch {
	case errors.Is(err, digits.ErrDecode):
		h.metrics.ObservePreprocessError("decode")
		logger.Warn().Err(err).Msg("input is not a decodable image")
		http.Error(w, fmt.Sprintf("Invalid image: %v", err), http.StatusBadRequest)
	case errors.Is(err, digits.ErrShape):
		h.metrics.ObservePreprocessError("shape")
		logger.Warn().Err(err).Msg("input has degenerate dimensions")
		http.Error(w, fmt.Sprintf("Invalid image dimensions: %v", err), http.StatusUnprocessableEntity)
	default:
		logger.Error().Err(err).Msg("prediction error")
		http.Error(w, "Prediction failed", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("http write() failed")
	}
}
