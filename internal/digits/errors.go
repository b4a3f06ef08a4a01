package digits

import "github.com/pkg/errors"

var (
	// ErrDecode is returned when input bytes or pixel buffers cannot be read as an image.
	ErrDecode = errors.New("image could not be decoded")
	// ErrShape is returned for images with a zero width or height, or larger than MaxSide.
	ErrShape = errors.New("image has degenerate dimensions")
	// ErrInvalidOutput is returned when a classifier does not produce one score per digit.
	ErrInvalidOutput = errors.New("classifier returned an invalid probability vector")
)
