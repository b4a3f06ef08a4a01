package digits

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniformCanvas(w, h, channels int, v uint8) []uint8 {
	pix := make([]uint8, w*h*channels)
	for i := range pix {
		pix[i] = v
		if channels == 4 && i%4 == 3 {
			pix[i] = 0xff
		}
	}
	return pix
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func assertTensorShape(t *testing.T, tensor *Tensor) {
	t.Helper()
	assert.Equal(t, [4]int64{1, 28, 28, 1}, tensor.Shape)
	require.Len(t, tensor.Data, 28*28)
	for i, v := range tensor.Data {
		if v < 0 || v > 1 {
			t.Fatalf("value %f at %d is outside [0, 1]", v, i)
		}
	}
}

func TestPreprocessAlwaysYieldsFixedShape(t *testing.T) {
	sizes := []struct {
		w, h, channels int
	}{
		{1, 1, 1},
		{28, 28, 1},
		{3, 500, 3},
		{280, 280, 4},
		{1000, 7, 4},
		{64, 48, 1},
	}

	rng := rand.New(rand.NewSource(42))
	for _, s := range sizes {
		pix := make([]uint8, s.w*s.h*s.channels)
		rng.Read(pix)

		raw, err := NewCanvasImage(s.w, s.h, s.channels, pix)
		require.NoError(t, err)

		tensor, err := Preprocess(raw)
		require.NoError(t, err, "%dx%dx%d", s.w, s.h, s.channels)
		assertTensorShape(t, tensor)
	}
}

func TestPreprocessAllBlack(t *testing.T) {
	for _, channels := range []int{1, 3, 4} {
		raw, err := NewCanvasImage(280, 280, channels, uniformCanvas(280, 280, channels, 0))
		require.NoError(t, err)

		tensor, err := Preprocess(raw)
		require.NoError(t, err)
		for _, v := range tensor.Data {
			require.Equal(t, float32(0), v)
		}
	}
}

func TestPreprocessAllWhite(t *testing.T) {
	for _, channels := range []int{1, 3, 4} {
		raw, err := NewCanvasImage(97, 311, channels, uniformCanvas(97, 311, channels, 255))
		require.NoError(t, err)

		tensor, err := Preprocess(raw)
		require.NoError(t, err)
		for _, v := range tensor.Data {
			require.Equal(t, float32(1), v)
		}
	}
}

func TestPreprocessIsIdempotentAtTargetSize(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pix := make([]uint8, 28*28)
	rng.Read(pix)

	raw, err := NewCanvasImage(28, 28, 1, pix)
	require.NoError(t, err)
	first, err := Preprocess(raw)
	require.NoError(t, err)

	// Feed the normalized output back in as an image.
	again := make([]uint8, len(first.Data))
	for i, v := range first.Data {
		again[i] = uint8(v*255 + 0.5)
	}
	raw, err = NewCanvasImage(28, 28, 1, again)
	require.NoError(t, err)
	second, err := Preprocess(raw)
	require.NoError(t, err)

	assert.InDeltaSlice(t, first.Data, second.Data, 1.0/255)
	for i, v := range pix {
		assert.InDelta(t, float32(v)/255, first.Data[i], 1.0/255)
	}
}

func TestPreprocessStretchesWithoutCentering(t *testing.T) {
	// Left half white, right half black on a wide image: the split must stay in the middle.
	w, h := 560, 140
	pix := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w/2; x++ {
			pix[y*w+x] = 255
		}
	}
	raw, err := NewCanvasImage(w, h, 1, pix)
	require.NoError(t, err)

	tensor, err := Preprocess(raw)
	require.NoError(t, err)
	for y := 0; y < 28; y++ {
		assert.Equal(t, float32(1), tensor.At(0, y))
		assert.Equal(t, float32(1), tensor.At(12, y))
		assert.Equal(t, float32(0), tensor.At(15, y))
		assert.Equal(t, float32(0), tensor.At(27, y))
	}
}

func TestPreprocessRejectsDegenerateImages(t *testing.T) {
	_, err := Preprocess(nil)
	assert.ErrorIs(t, err, ErrShape)

	_, err = Preprocess(&RawImage{Width: 0, Height: 10, Channels: 1})
	assert.ErrorIs(t, err, ErrShape)

	_, err = Preprocess(&RawImage{Width: 2, Height: 2, Channels: 1, Pix: []uint8{1, 2, 3}})
	assert.ErrorIs(t, err, ErrDecode)
}

func TestNewCanvasImageValidation(t *testing.T) {
	_, err := NewCanvasImage(0, 280, 4, nil)
	assert.ErrorIs(t, err, ErrShape)

	_, err = NewCanvasImage(280, 0, 4, nil)
	assert.ErrorIs(t, err, ErrShape)

	_, err = NewCanvasImage(2, 2, 2, make([]uint8, 8))
	assert.ErrorIs(t, err, ErrDecode)

	_, err = NewCanvasImage(2, 2, 4, make([]uint8, 15))
	assert.ErrorIs(t, err, ErrDecode)

	raw, err := NewCanvasImage(2, 2, 4, make([]uint8, 16))
	require.NoError(t, err)
	assert.Equal(t, 4, raw.Channels)
}

func TestGrayCompositesAlphaOverBlack(t *testing.T) {
	raw, err := NewCanvasImage(3, 1, 4, []uint8{
		255, 255, 255, 255,
		255, 255, 255, 0,
		255, 255, 255, 128,
	})
	require.NoError(t, err)

	gray := raw.Gray()
	assert.Equal(t, uint8(255), gray.Pix[0])
	assert.Equal(t, uint8(0), gray.Pix[1])
	assert.InDelta(t, 128, int(gray.Pix[2]), 1)
}

func TestGrayUsesLumaWeights(t *testing.T) {
	raw, err := NewCanvasImage(3, 1, 3, []uint8{
		255, 0, 0,
		0, 255, 0,
		0, 0, 255,
	})
	require.NoError(t, err)

	gray := raw.Gray()
	assert.InDelta(t, 76, int(gray.Pix[0]), 1)
	assert.InDelta(t, 149, int(gray.Pix[1]), 1)
	assert.InDelta(t, 29, int(gray.Pix[2]), 1)
}

func TestBlank(t *testing.T) {
	raw, err := NewCanvasImage(280, 280, 4, uniformCanvas(280, 280, 4, 0))
	require.NoError(t, err)
	assert.True(t, raw.Blank())

	raw.Pix[4*(140*280+140)] = 255
	assert.False(t, raw.Blank())
}

func TestDecodeImagePNG(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			src.Set(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}

	raw, format, err := DecodeImage(bytes.NewReader(encodePNG(t, src)))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 40, raw.Width)
	assert.Equal(t, 20, raw.Height)
	assert.Equal(t, 1, raw.Channels)

	tensor, err := Preprocess(raw)
	require.NoError(t, err)
	for _, v := range tensor.Data {
		require.Equal(t, float32(1), v)
	}
}

func TestDecodeImageJPEG(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range src.Pix {
		src.Pix[i] = 200
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, &jpeg.Options{Quality: 95}))

	raw, format, err := DecodeImage(&buf)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)

	tensor, err := Preprocess(raw)
	require.NoError(t, err)
	assertTensorShape(t, tensor)
	for _, v := range tensor.Data {
		require.InDelta(t, 200.0/255, v, 0.02)
	}
}

func TestDecodeImageErrors(t *testing.T) {
	_, _, err := DecodeImage(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrDecode)

	_, _, err = DecodeImage(bytes.NewReader([]byte("definitely not an image")))
	assert.ErrorIs(t, err, ErrDecode)

	var buf bytes.Buffer
	pal := image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{color.Black, color.White})
	require.NoError(t, gif.Encode(&buf, pal, nil))
	_, format, err := DecodeImage(&buf)
	assert.ErrorIs(t, err, ErrDecode)
	assert.Equal(t, "gif", format)
}

// pngHeader builds a PNG stream holding only a signature and an IHDR chunk, enough
// for the decoders to report dimensions.
func pngHeader(width, height uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], width)
	binary.BigEndian.PutUint32(ihdr[4:8], height)
	ihdr[8] = 8 // bit depth, grayscale color type 0

	chunk := append([]byte("IHDR"), ihdr...)
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

// withOrientation inserts an EXIF APP1 segment carrying the given orientation tag
// right after the JPEG SOI marker.
func withOrientation(jpg []byte, orientation uint16) []byte {
	var exif bytes.Buffer
	exif.WriteString("Exif\x00\x00")
	exif.WriteString("MM\x00\x2a\x00\x00\x00\x08")
	_ = binary.Write(&exif, binary.BigEndian, uint16(1))
	_ = binary.Write(&exif, binary.BigEndian, []uint16{0x0112, 3})
	_ = binary.Write(&exif, binary.BigEndian, uint32(1))
	_ = binary.Write(&exif, binary.BigEndian, []uint16{orientation, 0})
	_ = binary.Write(&exif, binary.BigEndian, uint32(0))

	var out bytes.Buffer
	out.Write(jpg[:2])
	out.Write([]byte{0xff, 0xe1})
	_ = binary.Write(&out, binary.BigEndian, uint16(exif.Len()+2))
	out.Write(exif.Bytes())
	out.Write(jpg[2:])
	return out.Bytes()
}

func TestNewCanvasImageRejectsOversizedDimensions(t *testing.T) {
	// 2^32 x 2^32 x 1 wraps to zero bytes on 64-bit ints.
	_, err := NewCanvasImage(1<<32, 1<<32, 1, nil)
	assert.ErrorIs(t, err, ErrShape)

	_, err = NewCanvasImage(MaxSide+1, 1, 1, make([]uint8, MaxSide+1))
	assert.ErrorIs(t, err, ErrShape)

	_, err = NewCanvasImage(1, MaxSide+1, 4, make([]uint8, 4*(MaxSide+1)))
	assert.ErrorIs(t, err, ErrShape)

	raw, err := NewCanvasImage(MaxSide, 1, 1, make([]uint8, MaxSide))
	require.NoError(t, err)
	assert.True(t, raw.Blank())
}

func TestPreprocessRejectsOversizedDimensions(t *testing.T) {
	_, err := Preprocess(&RawImage{Width: 1 << 32, Height: 1 << 32, Channels: 1})
	assert.ErrorIs(t, err, ErrShape)

	_, err = Preprocess(&RawImage{Width: MaxSide + 1, Height: 1, Channels: 1, Pix: make([]uint8, MaxSide+1)})
	assert.ErrorIs(t, err, ErrShape)
}

func TestDecodeImageChecksDeclaredDimensions(t *testing.T) {
	_, format, err := DecodeImage(bytes.NewReader(pngHeader(30000, 30000)))
	assert.ErrorIs(t, err, ErrShape)
	assert.Equal(t, "png", format)

	_, _, err = DecodeImage(bytes.NewReader(pngHeader(MaxSide+1, 10)))
	assert.ErrorIs(t, err, ErrShape)

	// The PNG decoder itself refuses non-positive dimensions.
	_, _, err = DecodeImage(bytes.NewReader(pngHeader(0, 10)))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeImageAppliesEXIFOrientation(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 10; x++ {
			src.Pix[y*src.Stride+x] = 255
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, &jpeg.Options{Quality: 100}))

	raw, format, err := DecodeImage(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 40, raw.Width)
	assert.Equal(t, 20, raw.Height)

	// Orientation 6: the stored image must be turned 90 degrees clockwise.
	raw, format, err = DecodeImage(bytes.NewReader(withOrientation(buf.Bytes(), 6)))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 20, raw.Width)
	assert.Equal(t, 40, raw.Height)

	// The white left band ends up along the top.
	gray := raw.Gray()
	assert.Greater(t, gray.GrayAt(10, 2).Y, uint8(200))
	assert.Less(t, gray.GrayAt(10, 37).Y, uint8(50))
}
