// Package uiscan extracts UI elements from interface screenshots. It decodes
// the uploaded image, runs OCR over it, and turns recognized text lines into
// labeled elements with pixel bounding boxes.
package uiscan

import (
	"bytes"
	"context"
	"image"
	"image/png"

	"github.com/specsmith/specsmith/pkg/ocr"

	// Register decoders for the screenshot formats browsers upload.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultConfidenceThreshold filters out low-quality detections. Elements at
// or below this confidence are dropped.
const DefaultConfidenceThreshold = 0.5

// Element is a detected UI component: its recognized label and the four
// corners of its bounding box, clockwise from the top-left, in pixel
// coordinates.
type Element struct {
	Component   string        `json:"component"`
	BoundingBox [4][2]float64 `json:"bounding_box"`
}

// Scanner runs OCR over screenshots and produces UI elements.
type Scanner struct {
	engine    ocr.Engine
	languages []string
	threshold float64
	psm       int
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLanguages sets the OCR language hints (default "eng").
func WithLanguages(langs ...string) Option {
	return func(s *Scanner) { s.languages = append([]string(nil), langs...) }
}

// WithConfidenceThreshold overrides the minimum element confidence.
func WithConfidenceThreshold(threshold float64) Option {
	return func(s *Scanner) { s.threshold = threshold }
}

// WithPSM sets the Tesseract page segmentation mode. Zero leaves the engine
// default in place. Sparse-text modes work best on application screenshots.
func WithPSM(mode int) Option {
	return func(s *Scanner) { s.psm = mode }
}

// New creates a Scanner backed by the given OCR engine. A nil engine falls
// back to the package default engine.
func New(engine ocr.Engine, opts ...Option) *Scanner {
	if engine == nil {
		engine = ocr.DefaultEngine()
	}
	s := &Scanner{
		engine:    engine,
		languages: []string{"eng"},
		threshold: DefaultConfidenceThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExtractElements detects UI elements in an encoded screenshot. Empty or
// undecodable input yields an empty result rather than an error, so callers
// can treat the screenshot as optional.
func (s *Scanner) ExtractElements(ctx context.Context, screenshot []byte) ([]Element, error) {
	if len(screenshot) == 0 {
		return []Element{}, nil
	}

	normalized, ok := normalizePNG(screenshot)
	if !ok {
		return []Element{}, nil
	}

	opts := []ocr.InputOption{ocr.WithLanguages(s.languages...)}
	if s.psm > 0 {
		opts = append(opts, ocr.WithTesseractPSM(s.psm))
	}

	in := ocr.NewInput("screenshot", normalized, ocr.ImageFormatPNG, opts...)

	res, err := s.engine.Recognize(ctx, in)
	if err != nil {
		return nil, err
	}

	elements := []Element{}
	for _, block := range res.Blocks {
		for _, line := range block.Lines {
			if line.Text == "" || line.Confidence <= s.threshold {
				continue
			}
			elements = append(elements, Element{
				Component:   line.Text,
				BoundingBox: corners(line.Bounds),
			})
		}
	}

	return elements, nil
}

// corners expands a region into its four corner points, clockwise from the
// top-left.
func corners(r ocr.Region) [4][2]float64 {
	return [4][2]float64{
		{r.X, r.Y},
		{r.X + r.Width, r.Y},
		{r.X + r.Width, r.Y + r.Height},
		{r.X, r.Y + r.Height},
	}
}

// normalizePNG decodes any supported screenshot format and re-encodes it as
// PNG for the OCR engine. The bool is false when the data is not a decodable
// image.
func normalizePNG(data []byte) ([]byte, bool) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}
	if format == "png" {
		return data, true
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}
