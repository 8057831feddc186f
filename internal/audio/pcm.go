// Package audio decodes narration audio and tracks its playback.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"
)

// ErrNoAudio means a payload carried nothing playable. Callers treat it as
// "no audio available" and skip playback.
var ErrNoAudio = errors.New("no audio available")

const (
	// SampleRate of the narration stream in Hz.
	SampleRate = 24000
	// Channels of the narration stream.
	Channels = 1
)

// Buffer is decoded audio with samples normalized to [-1, 1).
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames is the number of samples per channel.
func (b Buffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration is the playing time of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// DecodeBase64PCM decodes base64 text holding 16-bit little-endian mono
// PCM at 24 kHz.
func DecodeBase64PCM(s string) (Buffer, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Buffer{}, ErrNoAudio
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: %v", ErrNoAudio, err)
	}
	return DecodePCM16LE(raw, SampleRate, Channels)
}

// DecodePCM16LE converts signed 16-bit little-endian samples to floats by
// dividing by 32768.
func DecodePCM16LE(raw []byte, sampleRate, channels int) (Buffer, error) {
	if len(raw) == 0 {
		return Buffer{}, ErrNoAudio
	}
	if len(raw)%2 != 0 {
		return Buffer{}, fmt.Errorf("%w: odd payload length %d", ErrNoAudio, len(raw))
	}
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(raw[2*i:]))
		samples[i] = float32(v) / 32768
	}
	return Buffer{Samples: samples, SampleRate: sampleRate, Channels: channels}, nil
}

// PCM16 encodes the buffer back to 16-bit little-endian samples.
func (b Buffer) PCM16() []byte {
	out := make([]byte, 2*len(b.Samples))
	for i, s := range b.Samples {
		v := math.Round(float64(s) * 32768)
		v = math.Max(math.MinInt16, math.Min(math.MaxInt16, v))
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(v)))
	}
	return out
}

// WriteWAV writes the buffer as a RIFF/WAVE PCM16 file.
func (b Buffer) WriteWAV(w io.Writer) error {
	data := b.PCM16()
	channels := max(b.Channels, 1)
	blockAlign := channels * 2
	header := struct {
		RIFF          [4]byte
		Size          uint32
		WAVE          [4]byte
		Fmt           [4]byte
		FmtSize       uint32
		Format        uint16
		Channels      uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
		Data          [4]byte
		DataSize      uint32
	}{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		Size:          uint32(36 + len(data)),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		Format:        1,
		Channels:      uint16(channels),
		SampleRate:    uint32(b.SampleRate),
		ByteRate:      uint32(b.SampleRate * blockAlign),
		BlockAlign:    uint16(blockAlign),
		BitsPerSample: 16,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(len(data)),
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}
