package recall

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTesseractOCRNormalizesWhitespace(t *testing.T) {
	var gotArgs []string
	o := &TesseractOCR{Binary: "tesseract", run: func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		return []byte("  Hello\n\nworld \f"), nil
	}}

	text, err := o.ExtractText(context.Background(), "/tmp/a.png")
	require.NoError(t, err)
	assert.Equal(t, "Hello world", text)
	assert.Equal(t, []string{"tesseract", "/tmp/a.png", "stdout", "--psm", "3"}, gotArgs)
}

func TestNewOCRDefaultsToNoop(t *testing.T) {
	assert.IsType(t, NoOCR{}, NewOCR("none"))
	text, err := NoOCR{}.ExtractText(context.Background(), "x")
	assert.NoError(t, err)
	assert.Empty(t, text)
}
