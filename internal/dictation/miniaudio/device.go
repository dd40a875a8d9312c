// Package miniaudio captures from the default input device through malgo.
package miniaudio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/BGMLAI/exoskull/internal/dictation"
	"github.com/BGMLAI/exoskull/internal/logging"
	"github.com/gen2brain/malgo"
)

// Device is the default capture device.
type Device struct {
	logger *logging.Logger
}

func New(logger *logging.Logger) *Device {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Device{logger: logger}
}

type stream struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

// Open initialises a mono float32 capture stream at rate.
func (d *Device) Open(rate int, onSamples func([]float32)) (dictation.Stream, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		d.logger.Debug("miniaudio: %s", msg)
	})
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(rate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frames uint32) {
			onSamples(decodeF32(input, int(frames)))
		},
	}

	dev, err := malgo.InitDevice(ctx.Context, cfg, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("no default input device: %w", err)
	}
	return &stream{ctx: ctx, device: dev}, nil
}

func (s *stream) Start() error {
	return s.device.Start()
}

func (s *stream) Close() {
	s.device.Uninit()
	s.ctx.Uninit()
	s.ctx.Free()
}

// decodeF32 reads little-endian float32 frames from a mono buffer.
func decodeF32(b []byte, frames int) []float32 {
	if n := len(b) / 4; frames > n {
		frames = n
	}
	out := make([]float32, frames)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
