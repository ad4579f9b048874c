// Package media validates and normalizes uploaded profile photos.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	ErrPayloadTooLarge      = errors.New("image exceeds the maximum size")
	ErrUnsupportedMediaType = errors.New("image must be JPEG, PNG or WebP")
)

const (
	DefaultMaxBytes = 2 * 1024 * 1024
	MaxDimension    = 500
	jpegQuality     = 85
)

// MaxPixels caps width x height, checked from the header before decoding
const MaxPixels = 25_000_000

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Image is a processed photo ready for storage
type Image struct {
	Data        []byte
	ContentType string
	Extension   string
	Width       int
	Height      int
}

type Processor struct {
	maxBytes int64
}

func NewProcessor(maxBytes int64) *Processor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Processor{maxBytes: maxBytes}
}

func (p *Processor) MaxBytes() int64 { return p.maxBytes }

// Process checks size and format by content, shrinks the image to fit
// MaxDimension x MaxDimension and re-encodes it. PNG stays PNG, everything
// else becomes JPEG.
func (p *Processor) Process(data []byte) (*Image, error) {
	if int64(len(data)) > p.maxBytes {
		return nil, ErrPayloadTooLarge
	}
	if len(data) == 0 {
		return nil, ErrUnsupportedMediaType
	}

	detected := mimetype.Detect(data)
	if !allowedTypes[detected.String()] {
		return nil, ErrUnsupportedMediaType
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedMediaType, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, ErrUnsupportedMediaType
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, ErrPayloadTooLarge
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedMediaType, err)
	}

	resized := fit(img, MaxDimension, MaxDimension)

	var buf bytes.Buffer
	out := &Image{Width: resized.Bounds().Dx(), Height: resized.Bounds().Dy()}

	if detected.Is("image/png") {
		if err := png.Encode(&buf, resized); err != nil {
			return nil, fmt.Errorf("failed to encode PNG: %w", err)
		}
		out.ContentType, out.Extension = "image/png", ".png"
	} else {
		if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, fmt.Errorf("failed to encode JPEG: %w", err)
		}
		out.ContentType, out.Extension = "image/jpeg", ".jpg"
	}

	out.Data = buf.Bytes()
	return out, nil
}

// fit scales img down to fit within maxWidth x maxHeight keeping the aspect ratio
func fit(img image.Image, maxWidth, maxHeight int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if width <= maxWidth && height <= maxHeight {
		return img
	}

	ratio := min(float64(maxWidth)/float64(width), float64(maxHeight)/float64(height))
	newWidth := max(1, int(float64(width)*ratio))
	newHeight := max(1, int(float64(height)*ratio))

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	return dst
}
