package digits

import "github.com/pkg/errors"

// Classifier scores a preprocessed tensor, returning one likelihood per digit 0-9.
type Classifier interface {
	Classify(t *Tensor) ([]float32, error)
}

// Prediction is the outcome for a single input image.
type Prediction struct {
	Digit         int
	Confidence    float32
	Probabilities []float32
}

// Argmax returns the index of the largest value. The first occurrence wins on ties.
// It returns -1 for an empty slice.
func Argmax(values []float32) int {
	if len(values) == 0 {
		return -1
	}
	best := 0
	for i, v := range values[1:] {
		if v > values[best] {
			best = i + 1
		}
	}
	return best
}

// Classify runs an already built tensor through c and reduces the scores to a digit.
func Classify(c Classifier, t *Tensor) (*Prediction, error) {
	probs, err := c.Classify(t)
	if err != nil {
		return nil, errors.Wrap(err, "inference failed")
	}
	if len(probs) != Classes {
		return nil, errors.Wrapf(ErrInvalidOutput, "got %d scores, expected %d", len(probs), Classes)
	}

	digit := Argmax(probs)
	return &Prediction{
		Digit:         digit,
		Confidence:    probs[digit],
		Probabilities: probs,
	}, nil
}

// Predict preprocesses raw and classifies it.
func Predict(c Classifier, raw *RawImage) (*Prediction, error) {
	t, err := Preprocess(raw)
	if err != nil {
		return nil, err
	}
	return Classify(c, t)
}
