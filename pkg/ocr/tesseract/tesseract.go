// Package tesseract implements the ocr.Engine contract on top of the
// gosseract client. Importing it makes Tesseract the default OCR engine.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"sort"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/specsmith/specsmith/pkg/ocr"
)

func init() {
	ocr.SetDefaultEngine(NewEngine())
}

// Engine implements ocr.Engine and ocr.BatchEngine using the gosseract client.
type Engine struct {
	clientFactory  func() *gosseract.Client
	tessdataPrefix string
}

// Option configures an Engine.
type Option func(*Engine)

// WithTessdataPrefix points the engine at a directory of traineddata files,
// typically the model storage directory populated by the model store.
func WithTessdataPrefix(dir string) Option {
	return func(e *Engine) { e.tessdataPrefix = dir }
}

// NewEngine constructs a Tesseract-backed OCR engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{clientFactory: gosseract.NewClient}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize performs OCR on a single image input.
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	select {
	case <-ctx.Done():
		return ocr.Result{}, ctx.Err()
	default:
	}
	c := e.clientFactory()
	defer c.Close()
	return e.recognizeWithClient(c, in)
}

// RecognizeBatch processes multiple inputs sequentially.
func (e *Engine) RecognizeBatch(ctx context.Context, inputs []ocr.Input) ([]ocr.Result, error) {
	results := make([]ocr.Result, 0, len(inputs))
	for _, in := range inputs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		c := e.clientFactory()
		res, err := e.recognizeWithClient(c, in)
		c.Close()
		if err != nil {
			return nil, fmt.Errorf("recognize %s: %w", in.ID, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Engine) recognizeWithClient(c *gosseract.Client, in ocr.Input) (ocr.Result, error) {
	imgData, err := cropImage(in.Image, in.Region)
	if err != nil {
		return ocr.Result{}, err
	}
	if e.tessdataPrefix != "" {
		if err := c.SetTessdataPrefix(e.tessdataPrefix); err != nil {
			return ocr.Result{}, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := c.SetImageFromBytes(imgData); err != nil {
		return ocr.Result{}, fmt.Errorf("set image: %w", err)
	}
	if len(in.Languages) > 0 {
		if err := c.SetLanguage(in.Languages...); err != nil {
			return ocr.Result{}, fmt.Errorf("set languages: %w", err)
		}
	}
	if in.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(in.DPI)); err != nil {
			return ocr.Result{}, fmt.Errorf("set dpi: %w", err)
		}
	}
	for k, v := range in.Metadata {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return ocr.Result{}, fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize text: %w", err)
	}
	plain := strings.TrimSpace(text)

	words := extractWords(c)
	lines := GroupLines(words)
	block := ocr.TextBlock{
		Text:       plain,
		Bounds:     mergeBounds(words),
		Lines:      lines,
		Confidence: averageConfidence(words),
	}

	return ocr.Result{
		InputID:   in.ID,
		PlainText: plain,
		Blocks:    []ocr.TextBlock{block},
		Language:  firstLanguage(in.Languages),
	}, nil
}

func extractWords(c *gosseract.Client) []ocr.TextWord {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return nil
	}
	words := make([]ocr.TextWord, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, ocr.TextWord{
			Text:       b.Word,
			Bounds:     ocr.Region{X: float64(b.Box.Min.X), Y: float64(b.Box.Min.Y), Width: float64(b.Box.Dx()), Height: float64(b.Box.Dy())},
			Confidence: b.Confidence / 100.0,
		})
	}
	return words
}

// GroupLines clusters words into text lines by vertical overlap: a word joins
// the current line when at least half of its height overlaps the line's
// vertical extent. Words within a line are ordered left to right.
func GroupLines(words []ocr.TextWord) []ocr.TextLine {
	if len(words) == 0 {
		return nil
	}

	sorted := append([]ocr.TextWord(nil), words...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Bounds.Y != sorted[j].Bounds.Y {
			return sorted[i].Bounds.Y < sorted[j].Bounds.Y
		}
		return sorted[i].Bounds.X < sorted[j].Bounds.X
	})

	var lines []ocr.TextLine
	var current []ocr.TextWord

	for _, w := range sorted {
		if len(current) == 0 || overlapsVertically(mergeBounds(current), w.Bounds) {
			current = append(current, w)
			continue
		}
		lines = append(lines, buildLine(current))
		current = []ocr.TextWord{w}
	}
	lines = append(lines, buildLine(current))

	return lines
}

// overlapsVertically reports whether at least half of the word's height falls
// within the line's vertical extent.
func overlapsVertically(line, word ocr.Region) bool {
	top := math.Max(line.Y, word.Y)
	bottom := math.Min(line.Y+line.Height, word.Y+word.Height)
	if bottom <= top {
		return false
	}
	return (bottom-top) >= word.Height/2
}

func buildLine(words []ocr.TextWord) ocr.TextLine {
	sort.SliceStable(words, func(i, j int) bool { return words[i].Bounds.X < words[j].Bounds.X })

	texts := make([]string, len(words))
	for i, w := range words {
		texts[i] = w.Text
	}

	return ocr.TextLine{
		Text:       strings.Join(texts, " "),
		Bounds:     mergeBounds(words),
		Words:      words,
		Confidence: averageConfidence(words),
	}
}

func mergeBounds(words []ocr.TextWord) ocr.Region {
	if len(words) == 0 {
		return ocr.Region{}
	}
	minX, minY := math.MaxFloat64, math.MaxFloat64
	var maxX, maxY float64
	for _, w := range words {
		minX = math.Min(minX, w.Bounds.X)
		minY = math.Min(minY, w.Bounds.Y)
		maxX = math.Max(maxX, w.Bounds.X+w.Bounds.Width)
		maxY = math.Max(maxY, w.Bounds.Y+w.Bounds.Height)
	}
	return ocr.Region{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

func averageConfidence(words []ocr.TextWord) float64 {
	if len(words) == 0 {
		return 0
	}
	var sum float64
	for _, w := range words {
		sum += w.Confidence
	}
	return sum / float64(len(words))
}

func firstLanguage(langs []string) string {
	if len(langs) == 0 {
		return ""
	}
	return langs[0]
}

func cropImage(data []byte, region *ocr.Region) ([]byte, error) {
	if region == nil || region.IsEmpty() {
		return data, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode for region: %w", err)
	}
	rect := image.Rect(
		int(math.Round(region.X)),
		int(math.Round(region.Y)),
		int(math.Round(region.X+region.Width)),
		int(math.Round(region.Y+region.Height)),
	).Intersect(img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("region outside image bounds")
	}
	subImg, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if !ok {
		return nil, fmt.Errorf("image does not support sub-image")
	}
	cropped := subImg.SubImage(rect)
	var buf bytes.Buffer
	if err := png.Encode(&buf, cropped); err != nil {
		return nil, fmt.Errorf("encode cropped image: %w", err)
	}
	return buf.Bytes(), nil
}
