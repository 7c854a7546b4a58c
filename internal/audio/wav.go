package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// WAV format tags found in the fmt chunk
const (
	wavFormatPCM        = 1
	wavFormatIEEEFloat  = 3
	wavFormatExtensible = 0xFFFE
)

// WAVHeader represents the canonical 44-byte header written by EncodeWAV
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// WAVInfo describes the stream found in a WAV container
type WAVInfo struct {
	AudioFormat   uint16  `json:"audio_format"`
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumFrames     uint32  `json:"num_frames"`
}

// EncodeWAV encodes mono PCM-16 samples into WAV format
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	numChannels := uint16(1)
	bitsPerSample := uint16(16)
	dataSize := uint32(len(samples) * 2)
	fileSize := 36 + dataSize

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     fileSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   wavFormatPCM,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(samples)*2))

	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}

// EncodeFloatWAV quantizes samples in [-1, 1] to PCM-16 and encodes them
func EncodeFloatWAV(samples []float64, sampleRate int) ([]byte, error) {
	pcm := make([]int16, len(samples))
	for i, s := range samples {
		pcm[i] = floatToInt16(s)
	}
	return EncodeWAV(pcm, sampleRate)
}

func floatToInt16(s float64) int16 {
	v := math.Round(s * 32767)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

type wavChunks struct {
	info WAVInfo
	data []byte
}

// walkWAV iterates RIFF chunks until both fmt and data are found.
// Unknown chunks (LIST, fact, cue) are skipped and a data chunk whose
// declared size runs past the payload is truncated to what is present.
func walkWAV(data []byte) (*wavChunks, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("WAV data too short: need at least 12 bytes, got %d", len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return nil, fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	var (
		chunks  wavChunks
		haveFmt bool
		haveDat bool
	)

	for off := 12; off+8 <= len(data) && !(haveFmt && haveDat); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		end := body + size
		if end > len(data) || end < body {
			if id != "data" {
				return nil, fmt.Errorf("invalid WAV file: chunk %q overruns payload", id)
			}
			end = len(data)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return nil, fmt.Errorf("invalid WAV file: fmt chunk too short (%d bytes)", end-body)
			}
			f := data[body:end]
			chunks.info.AudioFormat = binary.LittleEndian.Uint16(f[0:2])
			chunks.info.Channels = binary.LittleEndian.Uint16(f[2:4])
			chunks.info.SampleRate = binary.LittleEndian.Uint32(f[4:8])
			chunks.info.BitsPerSample = binary.LittleEndian.Uint16(f[14:16])
			if chunks.info.AudioFormat == wavFormatExtensible && len(f) >= 26 {
				// First two bytes of the sub-format GUID carry the real tag.
				chunks.info.AudioFormat = binary.LittleEndian.Uint16(f[24:26])
			}
			haveFmt = true
		case "data":
			chunks.data = data[body:end]
			haveDat = true
		}

		off = end
		if size%2 == 1 {
			off++
		}
	}

	if !haveFmt {
		return nil, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if !haveDat {
		return nil, fmt.Errorf("invalid WAV file: missing data chunk")
	}

	info := &chunks.info
	if info.Channels == 0 {
		return nil, fmt.Errorf("invalid WAV file: zero channels")
	}

	if info.SampleRate == 0 {
		return nil, fmt.Errorf("invalid sample rate: 0")
	}

	frameBytes := int(info.Channels) * int(info.BitsPerSample) / 8
	if frameBytes == 0 {
		return nil, fmt.Errorf("unsupported bit depth: %d", info.BitsPerSample)
	}

	info.DataSize = uint32(len(chunks.data))
	info.NumFrames = uint32(len(chunks.data) / frameBytes)
	info.Duration = float64(info.NumFrames) / float64(info.SampleRate)

	return &chunks, nil
}

// GetWAVInfo extracts stream metadata without converting samples
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	chunks, err := walkWAV(data)
	if err != nil {
		return nil, err
	}
	info := chunks.info
	return &info, nil
}

// DecodeWAV decodes PCM (8/16/24/32-bit) or IEEE float (32/64-bit) WAV
// data into interleaved float samples in [-1, 1]
func DecodeWAV(data []byte) (*PCM, error) {
	chunks, err := walkWAV(data)
	if err != nil {
		return nil, err
	}

	info := chunks.info
	bytesPerSample := int(info.BitsPerSample) / 8
	convert, err := sampleConverter(info.AudioFormat, info.BitsPerSample)
	if err != nil {
		return nil, err
	}

	total := int(info.NumFrames) * int(info.Channels)
	if total == 0 {
		return nil, fmt.Errorf("no audio data found")
	}

	samples := make([]float64, total)
	for i := 0; i < total; i++ {
		off := i * bytesPerSample
		samples[i] = convert(chunks.data[off : off+bytesPerSample])
	}

	return &PCM{
		Samples:    samples,
		Channels:   int(info.Channels),
		SampleRate: int(info.SampleRate),
	}, nil
}

func sampleConverter(format, bits uint16) (func([]byte) float64, error) {
	switch format {
	case wavFormatPCM:
		switch bits {
		case 8:
			return func(b []byte) float64 { return (float64(b[0]) - 128) / 128 }, nil
		case 16:
			return func(b []byte) float64 {
				return float64(int16(binary.LittleEndian.Uint16(b))) / 32768
			}, nil
		case 24:
			return func(b []byte) float64 {
				v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
				if v&0x800000 != 0 {
					v |= ^0xFFFFFF
				}
				return float64(v) / 8388608
			}, nil
		case 32:
			return func(b []byte) float64 {
				return float64(int32(binary.LittleEndian.Uint32(b))) / 2147483648
			}, nil
		}
	case wavFormatIEEEFloat:
		switch bits {
		case 32:
			return func(b []byte) float64 {
				return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
			}, nil
		case 64:
			return func(b []byte) float64 {
				return math.Float64frombits(binary.LittleEndian.Uint64(b))
			}, nil
		}
	default:
		return nil, fmt.Errorf("unsupported audio format: %d (only PCM and IEEE float are supported)", format)
	}
	return nil, fmt.Errorf("unsupported bit depth: %d for format %d", bits, format)
}
