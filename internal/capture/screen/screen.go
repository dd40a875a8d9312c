// Package screen captures the primary monitor.
package screen

import (
	"context"

	"github.com/BGMLAI/exoskull/internal/capture"
	"github.com/kbinani/screenshot"
)

// Primary implements capture.Screenshotter for display 0.
type Primary struct{}

func (Primary) Screenshot(ctx context.Context) (*capture.RawImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if screenshot.NumActiveDisplays() < 1 {
		return nil, capture.ErrNoDisplay
	}
	img, err := screenshot.CaptureRect(screenshot.GetDisplayBounds(0))
	if err != nil {
		return nil, err
	}
	return capture.FromRGBA(img), nil
}
