package tesseract

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os/exec"
	"strings"
	"testing"

	"github.com/specsmith/specsmith/pkg/ocr"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ensureTesseractAvailable checks that the tesseract binary is reachable.
func ensureTesseractAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
}

func renderTextPNG(t *testing.T, text string) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 240, 80))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(10, 50),
	}
	d.DrawString(text)

	var buf bytes.Buffer
	if err := (&png.Encoder{}).Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestEngineRecognize(t *testing.T) {
	ensureTesseractAvailable(t)

	in := ocr.NewInput("shot-1", renderTextPNG(t, "Submit Order"), ocr.ImageFormatPNG,
		ocr.WithLanguages("eng"), ocr.WithDPI(300))

	res, err := NewEngine().Recognize(context.Background(), in)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}

	got := strings.ToLower(res.PlainText)
	if !strings.Contains(got, "submit") || !strings.Contains(got, "order") {
		t.Fatalf("unexpected OCR output: %q", res.PlainText)
	}
	if res.InputID != "shot-1" {
		t.Fatalf("unexpected input id: %s", res.InputID)
	}
	if len(res.Blocks) == 0 || len(res.Blocks[0].Lines) == 0 {
		t.Fatal("expected structured lines")
	}
	if res.Language != "eng" {
		t.Fatalf("unexpected language: %s", res.Language)
	}
}

func TestGroupLines(t *testing.T) {
	words := []ocr.TextWord{
		{Text: "Cancel", Bounds: ocr.Region{X: 10, Y: 100, Width: 60, Height: 20}, Confidence: 0.9},
		{Text: "Sign", Bounds: ocr.Region{X: 10, Y: 10, Width: 40, Height: 20}, Confidence: 0.8},
		{Text: "in", Bounds: ocr.Region{X: 58, Y: 12, Width: 18, Height: 18}, Confidence: 0.6},
	}

	lines := GroupLines(words)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %+v", len(lines), lines)
	}

	if lines[0].Text != "Sign in" {
		t.Fatalf("unexpected first line: %q", lines[0].Text)
	}
	if lines[0].Confidence < 0.69 || lines[0].Confidence > 0.71 {
		t.Fatalf("unexpected line confidence: %f", lines[0].Confidence)
	}
	if lines[1].Text != "Cancel" {
		t.Fatalf("unexpected second line: %q", lines[1].Text)
	}

	b := lines[0].Bounds
	if b.X != 10 || b.Y != 10 || b.Width != 66 || b.Height != 20 {
		t.Fatalf("unexpected line bounds: %+v", b)
	}
}

func TestGroupLines_Empty(t *testing.T) {
	if lines := GroupLines(nil); lines != nil {
		t.Fatalf("expected nil, got %+v", lines)
	}
}

func TestGroupLines_SingleWord(t *testing.T) {
	lines := GroupLines([]ocr.TextWord{
		{Text: "OK", Bounds: ocr.Region{X: 5, Y: 5, Width: 20, Height: 10}, Confidence: 1},
	})
	if len(lines) != 1 || lines[0].Text != "OK" {
		t.Fatalf("unexpected lines: %+v", lines)
	}
}

func TestCropImage_NilRegionPassesThrough(t *testing.T) {
	data := []byte{1, 2, 3}
	out, err := cropImage(data, nil)
	if err != nil {
		t.Fatalf("cropImage() error = %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatal("expected pass-through for nil region")
	}
}

func TestCropImage_Crops(t *testing.T) {
	src := renderTextPNG(t, "x")

	out, err := cropImage(src, &ocr.Region{X: 0, Y: 0, Width: 50, Height: 40})
	if err != nil {
		t.Fatalf("cropImage() error = %v", err)
	}

	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode cropped: %v", err)
	}
	if img.Bounds().Dx() != 50 || img.Bounds().Dy() != 40 {
		t.Fatalf("unexpected crop size: %v", img.Bounds())
	}
}

func TestCropImage_RegionOutsideBounds(t *testing.T) {
	src := renderTextPNG(t, "x")

	if _, err := cropImage(src, &ocr.Region{X: 1000, Y: 1000, Width: 10, Height: 10}); err == nil {
		t.Fatal("expected error for region outside bounds")
	}
}
