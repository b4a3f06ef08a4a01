package digits

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

const (
	// ImageSize is the side length of the square input the classifier expects.
	ImageSize = 28
	// Classes is the number of digit classes.
	Classes = 10
)

// TensorShape is the batch-of-one, single channel NHWC layout fed to the classifier.
var TensorShape = [4]int64{1, ImageSize, ImageSize, 1}

// Tensor is a normalized (1, 28, 28, 1) input tensor, row-major, values in [0, 1].
type Tensor struct {
	Shape [4]int64
	Data  []float32
}

// NewTensor wraps already normalized data. It fails with ErrShape unless data holds
// exactly one 28x28 single channel sample.
func NewTensor(data []float32) (*Tensor, error) {
	if len(data) != ImageSize*ImageSize {
		return nil, errors.Wrapf(ErrShape, "expected %d values, got %d", ImageSize*ImageSize, len(data))
	}
	return &Tensor{Shape: TensorShape, Data: data}, nil
}

// At returns the value at row y, column x.
func (t *Tensor) At(x, y int) float32 {
	return t.Data[y*ImageSize+x]
}

// Preprocess converts a raw image into the classifier's input tensor: grayscale,
// stretched to 28x28 with bilinear interpolation and scaled to [0, 1].
// Aspect ratio is not preserved and the digit is not re-centered.
func Preprocess(raw *RawImage) (*Tensor, error) {
	if raw == nil {
		return nil, errors.Wrap(ErrShape, "image has no pixels")
	}
	if err := checkBounds(raw.Width, raw.Height); err != nil {
		return nil, err
	}
	switch raw.Channels {
	case 1, 3, 4:
	default:
		return nil, errors.Wrapf(ErrDecode, "unsupported channel count %d", raw.Channels)
	}
	if len(raw.Pix) != raw.Width*raw.Height*raw.Channels {
		return nil, errors.Wrapf(ErrDecode, "pixel buffer holds %d bytes, expected %d",
			len(raw.Pix), raw.Width*raw.Height*raw.Channels)
	}

	var resized image.Image = raw.Gray()
	resized = resize.Resize(ImageSize, ImageSize, resized, resize.Bilinear)

	gray, ok := resized.(*image.Gray)
	if !ok {
		return nil, errors.Errorf("resize returned %T, expected *image.Gray", resized)
	}

	data := make([]float32, ImageSize*ImageSize)
	b := gray.Bounds()
	for y := 0; y < ImageSize; y++ {
		off := gray.PixOffset(b.Min.X, b.Min.Y+y)
		for x, v := range gray.Pix[off : off+ImageSize] {
			data[y*ImageSize+x] = float32(v) / 255.0
		}
	}

	return &Tensor{Shape: TensorShape, Data: data}, nil
}
