package recall

import (
	"context"
	"os/exec"
	"strings"
)

// OCR extracts text from a saved screenshot. An empty result means no text.
type OCR interface {
	ExtractText(ctx context.Context, imagePath string) (string, error)
}

// NoOCR never finds text.
type NoOCR struct{}

func (NoOCR) ExtractText(context.Context, string) (string, error) { return "", nil }

// TesseractOCR shells out to the tesseract CLI.
type TesseractOCR struct {
	Binary string
	run    func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewTesseractOCR() *TesseractOCR {
	return &TesseractOCR{
		Binary: "tesseract",
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

func (t *TesseractOCR) ExtractText(ctx context.Context, imagePath string) (string, error) {
	out, err := t.run(ctx, t.Binary, imagePath, "stdout", "--psm", "3")
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(string(out)), " "), nil
}

// NewOCR returns the extractor named by the recall.ocr config value. An
// unavailable tesseract binary falls back to NoOCR.
func NewOCR(kind string) OCR {
	if kind == "tesseract" {
		if _, err := exec.LookPath("tesseract"); err == nil {
			return NewTesseractOCR()
		}
	}
	return NoOCR{}
}
