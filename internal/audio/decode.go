package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// PCM is decoded audio before any resampling or down-mixing
type PCM struct {
	Samples    []float64 // interleaved, range [-1, 1]
	Channels   int
	SampleRate int
}

// Frames returns the number of per-channel sample frames
func (p *PCM) Frames() int {
	if p.Channels == 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

// Duration returns the length in seconds
func (p *PCM) Duration() float64 {
	if p.SampleRate == 0 {
		return 0
	}
	return float64(p.Frames()) / float64(p.SampleRate)
}

// Container identifies the payload format
type Container string

const (
	ContainerWAV     Container = "wav"
	ContainerMP3     Container = "mp3"
	ContainerUnknown Container = "unknown"
)

// Sniff inspects the leading bytes of a payload
func Sniff(data []byte) Container {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return ContainerWAV
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return ContainerMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return ContainerMP3
	default:
		return ContainerUnknown
	}
}

// Decode converts an audio payload of any supported container into PCM
func Decode(data []byte) (*PCM, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty audio payload")
	}

	switch Sniff(data) {
	case ContainerWAV:
		return DecodeWAV(data)
	case ContainerMP3:
		return DecodeMP3(data)
	default:
		return nil, fmt.Errorf("unrecognized audio container")
	}
}

// DecodeMP3 decodes MPEG audio. The decoder always produces 16-bit
// little-endian stereo frames.
func DecodeMP3(data []byte) (*PCM, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 stream: %w", err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3 stream: %w", err)
	}

	n := len(raw) / 2
	if n < 2 {
		return nil, fmt.Errorf("no audio data found")
	}
	n -= n % 2

	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768
	}

	return &PCM{
		Samples:    samples,
		Channels:   2,
		SampleRate: dec.SampleRate(),
	}, nil
}
