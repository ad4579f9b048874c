package media

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestProcessShrinksLargePNG(t *testing.T) {
	p := NewProcessor(DefaultMaxBytes)

	out, err := p.Process(encodePNG(t, solid(1000, 400)))
	require.NoError(t, err)

	assert.Equal(t, "image/png", out.ContentType)
	assert.Equal(t, ".png", out.Extension)
	assert.Equal(t, 500, out.Width)
	assert.Equal(t, 200, out.Height)

	decoded, format, err := image.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 500, decoded.Bounds().Dx())
}

func TestProcessKeepsSmallJPEGSize(t *testing.T) {
	p := NewProcessor(DefaultMaxBytes)

	out, err := p.Process(encodeJPEG(t, solid(120, 80)))
	require.NoError(t, err)

	assert.Equal(t, "image/jpeg", out.ContentType)
	assert.Equal(t, ".jpg", out.Extension)
	assert.Equal(t, 120, out.Width)
	assert.Equal(t, 80, out.Height)
}

func TestProcessRejectsOversizedPayload(t *testing.T) {
	p := NewProcessor(1024)

	_, err := p.Process(bytes.Repeat([]byte{0xff}, 1025))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestProcessRejectsOtherFormats(t *testing.T) {
	p := NewProcessor(DefaultMaxBytes)

	var gifBuf bytes.Buffer
	require.NoError(t, gif.Encode(&gifBuf, solid(10, 10), nil))

	for name, data := range map[string][]byte{
		"gif":   gifBuf.Bytes(),
		"text":  []byte("definitely not an image"),
		"empty": nil,
	} {
		_, err := p.Process(data)
		assert.ErrorIs(t, err, ErrUnsupportedMediaType, name)
	}
}

func TestProcessRejectsCorruptImage(t *testing.T) {
	p := NewProcessor(DefaultMaxBytes)

	data := encodePNG(t, solid(50, 50))
	_, err := p.Process(data[:len(data)/2])
	assert.ErrorIs(t, err, ErrUnsupportedMediaType)
}

// pngHeader returns a PNG that declares width x height but carries no pixel data
func pngHeader(width, height uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	writeChunk := func(kind string, data []byte) {
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(data)))
		buf.WriteString(kind)
		buf.Write(data)
		_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(append([]byte(kind), data...)))
	}

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], width)
	binary.BigEndian.PutUint32(ihdr[4:8], height)
	ihdr[8] = 8 // bit depth, grayscale, no interlace
	writeChunk("IHDR", ihdr)
	writeChunk("IEND", nil)

	return buf.Bytes()
}

func TestProcessRejectsHugeDimensionsBeforeDecoding(t *testing.T) {
	p := NewProcessor(DefaultMaxBytes)

	data := pngHeader(16000, 16000)
	require.Less(t, len(data), 100)

	_, err := p.Process(data)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	_, err = p.Process(pngHeader(5001, 5000))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}
