package model

import (
	"fmt"

	"github.com/Brownie44l1/digit-api/internal/digits"
	"github.com/pkg/errors"
)

// Mock is a deterministic classifier that always answers with the same digit.
// It lets the service run without ONNX Runtime installed.
type Mock struct {
	Digit    int
	Metadata Metadata
}

func NewMock(digit int) (*Mock, error) {
	if digit < 0 || digit >= digits.Classes {
		return nil, errors.Errorf("mock digit %d is not in 0-9", digit)
	}
	m := &Mock{Digit: digit}
	for i := 0; i < digits.Classes; i++ {
		m.Metadata.Classes = append(m.Metadata.Classes, fmt.Sprint(i))
	}
	m.Metadata.InputShape = append([]int64(nil), digits.TensorShape[:]...)
	m.Metadata.OutputShape = []int64{1, digits.Classes}
	m.Metadata.ImageSize = digits.ImageSize
	return m, nil
}

func (m *Mock) Classify(t *digits.Tensor) ([]float32, error) {
	probs := make([]float32, digits.Classes)
	probs[m.Digit] = 1
	return probs, nil
}

func (m *Mock) Close() {}
