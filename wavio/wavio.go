package wavio

// PCM WAV Codec
//
// The voice pipeline only ever exchanges 16-bit PCM WAV: browsers record it,
// the encoder sidecar consumes it, and the blob store archives it. This
// package decodes RIFF/WAVE byte buffers into float64 samples in [-1, 1]
// and encodes conditioned signals back into WAV buffers, without shelling
// out to an external transcoder.

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	headerSize    = 44
	formatPCM     = 1
	bitsPerSample = 16
)

var (
	// ErrNotWav indicates the buffer is not a RIFF/WAVE container.
	ErrNotWav = errors.New("not a RIFF/WAVE container")
	// ErrUnsupported indicates a WAV variant outside 16-bit PCM.
	ErrUnsupported = errors.New("unsupported wav encoding")
)

// Clip is a decoded audio buffer. Samples are interleaved across channels
// and scaled to [-1, 1].
type Clip struct {
	Samples    []float64
	SampleRate int
	Channels   int
}

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float64 {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate*c.Channels)
}

// Decode parses a 16-bit PCM WAV buffer.
func Decode(data []byte) (*Clip, error) {
	if len(data) < headerSize {
		return nil, ErrNotWav
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, ErrNotWav
	}

	var (
		channels   int
		sampleRate int
		bits       int
		format     int
		pcm        []byte
	)

	// Walk chunks; fmt and data may be separated by auxiliary chunks
	// (LIST, fact) that some recorders emit.
	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkSize > len(data) {
			chunkSize = len(data) - body
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, fmt.Errorf("%w: truncated fmt chunk", ErrNotWav)
			}
			format = int(binary.LittleEndian.Uint16(data[body : body+2]))
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body : body+chunkSize]
		}

		// Chunks are word aligned.
		offset = body + chunkSize
		if chunkSize%2 == 1 {
			offset++
		}
	}

	if pcm == nil || channels == 0 || sampleRate == 0 {
		return nil, fmt.Errorf("%w: missing fmt or data chunk", ErrNotWav)
	}
	if format != formatPCM || bits != bitsPerSample {
		return nil, fmt.Errorf("%w: format=%d bits=%d", ErrUnsupported, format, bits)
	}

	sampleCount := len(pcm) / 2
	samples := make([]float64, sampleCount)
	for i := 0; i < sampleCount; i++ {
		raw := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float64(raw) / 32768.0
	}

	return &Clip{Samples: samples, SampleRate: sampleRate, Channels: channels}, nil
}

// Encode writes mono float64 samples as a 16-bit PCM WAV buffer.
func Encode(samples []float64, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	dataSize := len(samples) * 2
	buf := bytes.NewBuffer(make([]byte, 0, headerSize+dataSize))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(formatPCM))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2)) // byte rate
	binary.Write(buf, binary.LittleEndian, uint16(2))            // block align
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))

	for _, s := range samples {
		clamped := math.Max(-1.0, math.Min(1.0, s))
		binary.Write(buf, binary.LittleEndian, int16(math.Round(clamped*32767.0)))
	}

	return buf.Bytes(), nil
}
