// Package capture provides the platform-neutral screenshot and active-window
// façade used by the recall pipeline, and the change-detection fingerprint.
package capture

import (
	"context"
	"errors"
	"image"

	"github.com/BGMLAI/exoskull/internal/apperr"
)

// RawImage is an RGBA pixel buffer of the primary monitor.
type RawImage struct {
	Width  int
	Height int
	Pix    []byte // 4 bytes per pixel, row-major, no padding
}

// FromRGBA copies img into a tightly packed RawImage.
func FromRGBA(img *image.RGBA) *RawImage {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]byte, 0, w*h*4)
	for y := 0; y < h; y++ {
		start := y * img.Stride
		pix = append(pix, img.Pix[start:start+w*4]...)
	}
	return &RawImage{Width: w, Height: h, Pix: pix}
}

// RGBA wraps the buffer as an image without copying.
func (r *RawImage) RGBA() *image.RGBA {
	return &image.RGBA{
		Pix:    r.Pix,
		Stride: r.Width * 4,
		Rect:   image.Rect(0, 0, r.Width, r.Height),
	}
}

// Screenshotter grabs the primary monitor.
type Screenshotter interface {
	Screenshot(ctx context.Context) (*RawImage, error)
}

// WindowProbe reports the focused application and window title. Either
// value may be empty.
type WindowProbe interface {
	ActiveWindow(ctx context.Context) (app, title string)
}

// Source combines a screenshotter with a window probe.
type Source struct {
	shooter Screenshotter
	probe   WindowProbe
}

// NewSource builds a Source. A nil probe behaves like NoProbe.
func NewSource(shooter Screenshotter, probe WindowProbe) *Source {
	if probe == nil {
		probe = NoProbe{}
	}
	return &Source{shooter: shooter, probe: probe}
}

// ErrNoDisplay is returned when no monitor is attached.
var ErrNoDisplay = errors.New("no active display")

// Screenshot returns the primary monitor's pixels. All failures are
// DeviceErrors.
func (s *Source) Screenshot(ctx context.Context) (*RawImage, error) {
	if s.shooter == nil {
		return nil, apperr.Device("screen capture unavailable", ErrNoDisplay)
	}
	img, err := s.shooter.Screenshot(ctx)
	if err != nil {
		return nil, apperr.Device("screenshot failed", err)
	}
	if img == nil || img.Width == 0 || img.Height == 0 || len(img.Pix) < img.Width*img.Height*4 {
		return nil, apperr.Device("screenshot failed", errors.New("empty frame"))
	}
	return img, nil
}

// ActiveWindow never fails; an unknown window yields empty strings.
func (s *Source) ActiveWindow(ctx context.Context) (string, string) {
	return s.probe.ActiveWindow(ctx)
}

// NoProbe reports no window information.
type NoProbe struct{}

func (NoProbe) ActiveWindow(context.Context) (string, string) { return "", "" }
