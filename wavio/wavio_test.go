package wavio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	samples := make([]float64, 1600)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2.0*math.Pi*440.0*float64(i)/16000.0)
	}

	data, err := Encode(samples, 16000)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	clip, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if clip.SampleRate != 16000 || clip.Channels != 1 {
		t.Fatalf("header rate=%d channels=%d", clip.SampleRate, clip.Channels)
	}
	if len(clip.Samples) != len(samples) {
		t.Fatalf("sample count %d, expected %d", len(clip.Samples), len(samples))
	}

	// 16-bit quantization bounds the round-trip error.
	for i := range samples {
		if math.Abs(clip.Samples[i]-samples[i]) > 1.0/32768.0+1e-9 {
			t.Fatalf("sample %d drifted: %v -> %v", i, samples[i], clip.Samples[i])
		}
	}
}

func TestEncodeClampsOutOfRangeSamples(t *testing.T) {
	t.Parallel()

	data, err := Encode([]float64{2.0, -3.0}, 16000)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	clip, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if clip.Samples[0] < 0.99 || clip.Samples[1] > -0.99 {
		t.Fatalf("samples not clamped: %v", clip.Samples)
	}
}

func TestDecodeSkipsAuxiliaryChunks(t *testing.T) {
	t.Parallel()

	base, err := Encode([]float64{0.1, 0.2, 0.3, 0.4}, 16000)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// Rebuild the container with a LIST chunk between fmt and data, the way
	// some recorders emit metadata.
	var buf bytes.Buffer
	buf.Write(base[:36]) // RIFF header + fmt chunk
	buf.WriteString("LIST")
	binary.Write(&buf, binary.LittleEndian, uint32(4))
	buf.WriteString("INFO")
	buf.Write(base[36:]) // data chunk

	data := buf.Bytes()
	binary.LittleEndian.PutUint32(data[4:8], uint32(len(data)-8))

	clip, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed on LIST chunk: %v", err)
	}
	if len(clip.Samples) != 4 {
		t.Fatalf("sample count %d, expected 4", len(clip.Samples))
	}
}

func TestDecodeRejectsNonWav(t *testing.T) {
	t.Parallel()

	cases := [][]byte{
		nil,
		[]byte("too short"),
		bytes.Repeat([]byte{0xff}, 64),
		[]byte("RIFFxxxxJUNK" + string(bytes.Repeat([]byte{0}, 64))),
	}
	for _, data := range cases {
		if _, err := Decode(data); !errors.Is(err, ErrNotWav) {
			t.Fatalf("Decode(%d bytes) = %v, expected ErrNotWav", len(data), err)
		}
	}
}

func TestDecodeRejectsUnsupportedEncoding(t *testing.T) {
	t.Parallel()

	data, err := Encode([]float64{0.1, 0.2}, 16000)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// Flip the format tag to IEEE float.
	binary.LittleEndian.PutUint16(data[20:22], 3)

	if _, err := Decode(data); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Decode = %v, expected ErrUnsupported", err)
	}
}

func TestEncodeRejectsInvalidRate(t *testing.T) {
	t.Parallel()

	if _, err := Encode([]float64{0.1}, 0); err == nil {
		t.Fatal("zero sample rate accepted")
	}
}

func TestClipDuration(t *testing.T) {
	t.Parallel()

	clip := &Clip{Samples: make([]float64, 32000), SampleRate: 16000, Channels: 2}
	if d := clip.Duration(); math.Abs(d-1.0) > 1e-9 {
		t.Fatalf("duration = %f, expected 1.0", d)
	}

	degenerate := &Clip{Samples: []float64{0.1}}
	if d := degenerate.Duration(); d != 0 {
		t.Fatalf("degenerate duration = %f, expected 0", d)
	}
}
