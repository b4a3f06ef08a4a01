package model

import (
	"encoding/json"
	"os"
	"strconv"
	"sync"

	"github.com/Brownie44l1/digit-api/internal/digits"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
)

// ErrModelUnavailable is returned when the classifier cannot be loaded. Nothing can be
// predicted without it.
var ErrModelUnavailable = errors.New("model unavailable")

type Config struct {
	ModelPath         string
	MetadataPath      string
	SharedLibraryPath string
}

// Server owns an ONNX Runtime session and its reusable input and output tensors.
// It is created once at startup and shared by all requests.
type Server struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

func NewServer(cfg Config) (*Server, error) {
	metadata, err := LoadMetadata(cfg.MetadataPath)
	if err != nil {
		return nil, errors.Wrap(ErrModelUnavailable, err.Error())
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, errors.Wrapf(ErrModelUnavailable, "model file: %v", err)
	}

	if cfg.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, errors.Wrapf(ErrModelUnavailable, "failed to initialize ONNX environment: %v", err)
	}

	s := &Server{Metadata: metadata}
	if err := s.open(cfg.ModelPath); err != nil {
		s.Close()
		return nil, errors.Wrap(ErrModelUnavailable, err.Error())
	}

	log.Info().Str("component", "MODEL").
		Str("model", cfg.ModelPath).
		Interface("input_shape", metadata.InputShape).
		Interface("output_shape", metadata.OutputShape).
		Msg("model loaded")

	return s, nil
}

func (s *Server) open(modelPath string) error {
	var err error
	s.inputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(s.Metadata.InputShape...))
	if err != nil {
		return errors.Wrap(err, "failed to create input tensor")
	}

	s.outputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(s.Metadata.OutputShape...))
	if err != nil {
		return errors.Wrap(err, "failed to create output tensor")
	}

	s.session, err = ort.NewAdvancedSession(modelPath,
		[]string{s.Metadata.InputName}, []string{s.Metadata.OutputName},
		[]ort.ArbitraryTensor{s.inputTensor}, []ort.ArbitraryTensor{s.outputTensor},
		nil)
	if err != nil {
		return errors.Wrap(err, "failed to create ONNX session")
	}
	return nil
}

// Classify runs the model on t and returns a copy of the output scores.
func (s *Server) Classify(t *digits.Tensor) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	input := s.inputTensor.GetData()
	if len(t.Data) != len(input) {
		return nil, errors.Errorf("tensor holds %d values, model expects %d", len(t.Data), len(input))
	}
	copy(input, t.Data)

	if err := s.session.Run(); err != nil {
		return nil, errors.Wrap(err, "session run failed")
	}

	output := s.outputTensor.GetData()
	probs := make([]float32, len(output))
	copy(probs, output)
	return probs, nil
}

func (s *Server) Close() {
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}

// LoadMetadata reads the model description and checks it matches the digit tensor
// layout: 784 input values and 10 output scores.
func LoadMetadata(path string) (Metadata, error) {
	var metadata Metadata

	metaFile, err := os.ReadFile(path)
	if err != nil {
		return metadata, errors.Wrap(err, "failed to read metadata")
	}
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return metadata, errors.Wrap(err, "failed to parse metadata")
	}

	if metadata.InputName == "" {
		metadata.InputName = "input"
	}
	if metadata.OutputName == "" {
		metadata.OutputName = "output"
	}
	if len(metadata.InputShape) == 0 {
		metadata.InputShape = append([]int64(nil), digits.TensorShape[:]...)
	}
	if len(metadata.OutputShape) == 0 {
		metadata.OutputShape = []int64{1, digits.Classes}
	}
	if len(metadata.Classes) == 0 {
		for i := 0; i < digits.Classes; i++ {
			metadata.Classes = append(metadata.Classes, strconv.Itoa(i))
		}
	}
	if metadata.ImageSize == 0 {
		metadata.ImageSize = digits.ImageSize
	}

	switch {
	case metadata.ImageSize != digits.ImageSize:
		return metadata, errors.Errorf("image size %d, expected %d", metadata.ImageSize, digits.ImageSize)
	case elements(metadata.InputShape) != digits.ImageSize*digits.ImageSize:
		return metadata, errors.Errorf("input shape %v does not hold a single %dx%d sample",
			metadata.InputShape, digits.ImageSize, digits.ImageSize)
	case elements(metadata.OutputShape) != digits.Classes:
		return metadata, errors.Errorf("output shape %v does not hold %d scores", metadata.OutputShape, digits.Classes)
	case len(metadata.Classes) != digits.Classes:
		return metadata, errors.Errorf("got %d class labels, expected %d", len(metadata.Classes), digits.Classes)
	}

	return metadata, nil
}

func elements(shape []int64) int64 {
	n := int64(1)
	for _, dim := range shape {
		if dim <= 0 {
			return -1
		}
		n *= dim
	}
	return n
}
