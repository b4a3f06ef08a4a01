package digits

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// RawImage is a decoded raster as it arrives from a drawing surface or an upload.
// Pixels are interleaved and row-major, one byte per channel.
type RawImage struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// MaxSide bounds both image dimensions.
const MaxSide = 4096

// checkBounds rejects empty and oversized rasters before any size arithmetic.
func checkBounds(width, height int) error {
	if width <= 0 || height <= 0 {
		return errors.Wrapf(ErrShape, "image is %dx%d", width, height)
	}
	if width > MaxSide || height > MaxSide {
		return errors.Wrapf(ErrShape, "image is %dx%d, at most %dx%d is accepted", width, height, MaxSide, MaxSide)
	}
	return nil
}

// NewCanvasImage wraps a canvas pixel buffer. Canvas snapshots are RGBA (4 channels),
// RGB buffers and single-channel buffers are accepted as well.
func NewCanvasImage(width, height, channels int, pix []uint8) (*RawImage, error) {
	if err := checkBounds(width, height); err != nil {
		return nil, err
	}
	switch channels {
	case 1, 3, 4:
	default:
		return nil, errors.Wrapf(ErrDecode, "unsupported channel count %d", channels)
	}
	if want := width * height * channels; len(pix) != want {
		return nil, errors.Wrapf(ErrDecode, "expected %d bytes for %dx%dx%d, got %d",
			want, width, height, channels, len(pix))
	}

	return &RawImage{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      pix,
	}, nil
}

// DecodeImage reads a PNG or JPEG upload and reduces it to a single channel.
// It returns the format name reported by the decoder.
func DecodeImage(r io.Reader) (*RawImage, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to read image")
	}
	if len(data) == 0 {
		return nil, "", errors.Wrap(ErrDecode, "empty image data")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.Wrap(ErrDecode, err.Error())
	}
	if format != "png" && format != "jpeg" {
		return nil, format, errors.Wrapf(ErrDecode, "unsupported format %q", format)
	}
	// The header is checked before decoding: a small compressed file can declare
	// a huge raster.
	if err := checkBounds(cfg.Width, cfg.Height); err != nil {
		return nil, format, err
	}

	// JPEGs from phones carry their rotation in EXIF.
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, format, errors.Wrap(ErrDecode, err.Error())
	}

	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(gray, gray.Bounds(), img, bounds.Min, draw.Src)

	return &RawImage{
		Width:    gray.Rect.Dx(),
		Height:   gray.Rect.Dy(),
		Channels: 1,
		Pix:      gray.Pix,
	}, format, nil
}

// Gray collapses the image to one channel using luma weights. Four channel pixels are
// treated as non-premultiplied RGBA and composited over black, the canvas background.
func (m *RawImage) Gray() *image.Gray {
	gray := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	if m.Channels == 1 {
		copy(gray.Pix, m.Pix)
		return gray
	}

	for i, o := 0, 0; o < len(gray.Pix); i, o = i+m.Channels, o+1 {
		c := color.NRGBA{R: m.Pix[i], G: m.Pix[i+1], B: m.Pix[i+2], A: 0xff}
		if m.Channels == 4 {
			c.A = m.Pix[i+3]
		}
		gray.Pix[o] = color.GrayModel.Convert(c).(color.Gray).Y
	}
	return gray
}

// Blank reports whether nothing has been drawn, i.e. every pixel is black.
func (m *RawImage) Blank() bool {
	for _, v := range m.Gray().Pix {
		if v != 0 {
			return false
		}
	}
	return true
}
