package dictation

import (
	"bytes"
	"encoding/binary"
)

const (
	wavChannels      = 1
	wavBitsPerSample = 16
)

// EncodeWAV writes samples as a mono 16-bit PCM RIFF/WAVE file. Samples
// outside [-1, 1] are clamped.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	dataLen := len(samples) * wavBitsPerSample / 8
	blockAlign := wavChannels * wavBitsPerSample / 8

	buf := bytes.NewBuffer(make([]byte, 0, 44+dataLen))
	le := binary.LittleEndian

	buf.WriteString("RIFF")
	binary.Write(buf, le, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, le, uint32(16))
	binary.Write(buf, le, uint16(1)) // PCM
	binary.Write(buf, le, uint16(wavChannels))
	binary.Write(buf, le, uint32(sampleRate))
	binary.Write(buf, le, uint32(sampleRate*blockAlign))
	binary.Write(buf, le, uint16(blockAlign))
	binary.Write(buf, le, uint16(wavBitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, le, uint32(dataLen))
	pcm := make([]byte, 2)
	for _, s := range samples {
		le.PutUint16(pcm, uint16(toPCM16(s)))
		buf.Write(pcm)
	}
	return buf.Bytes()
}

func toPCM16(s float32) int16 {
	switch {
	case s > 1:
		s = 1
	case s < -1:
		s = -1
	}
	return int16(s * 32767)
}

// WAVFormat is the fmt chunk of a canonical 44-byte header.
type WAVFormat struct {
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
	DataLen       uint32
}

// ParseWAVHeader reads back the header EncodeWAV produces.
func ParseWAVHeader(b []byte) (WAVFormat, bool) {
	if len(b) < 44 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" ||
		string(b[12:16]) != "fmt " || string(b[36:40]) != "data" {
		return WAVFormat{}, false
	}
	le := binary.LittleEndian
	if le.Uint16(b[20:22]) != 1 {
		return WAVFormat{}, false
	}
	return WAVFormat{
		Channels:      le.Uint16(b[22:24]),
		SampleRate:    le.Uint32(b[24:28]),
		BitsPerSample: le.Uint16(b[34:36]),
		DataLen:       le.Uint32(b[40:44]),
	}, true
}
