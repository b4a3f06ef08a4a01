package model

import "strconv"

type Metadata struct {
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
}

// Label returns the class label for a digit, falling back to the digit itself.
func (m Metadata) Label(digit int) string {
	if digit >= 0 && digit < len(m.Classes) {
		return m.Classes[digit]
	}
	return strconv.Itoa(digit)
}

type PredictionRequest struct {
	Image []float32 `json:"image"`
}

// CanvasRequest carries a drawing surface snapshot. Pixels are base64 encoded in JSON.
type CanvasRequest struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Channels int    `json:"channels"`
	Pixels   []byte `json:"pixels"`
}

type PredictionResponse struct {
	Digit         int       `json:"digit"`
	Class         string    `json:"class"`
	Confidence    float32   `json:"confidence"`
	Probabilities []float32 `json:"probabilities"`
}
