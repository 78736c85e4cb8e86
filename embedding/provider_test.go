package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"voice-auth/voice"
)

// encoderStub is a minimal in-process encoder sidecar.
type encoderStub struct {
	mu       sync.Mutex
	requests int
	vector   []float64
	status   int
}

func (s *encoderStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests++
		status := s.status
		vector := s.vector
		s.mu.Unlock()

		if status != 0 && status != http.StatusOK {
			http.Error(w, "encoder failure", status)
			return
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, "bad multipart", http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("audio"); err != nil {
			http.Error(w, "missing audio field", http.StatusBadRequest)
			return
		}

		json.NewEncoder(w).Encode(EmbeddingResponse{Embedding: vector, Dimension: len(vector)})
	}
}

func (s *encoderStub) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func testSignal(seconds float64) voice.ConditionedSignal {
	n := int(seconds * float64(voice.CanonicalSampleRate))
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.3 * math.Sin(2.0*math.Pi*150.0*float64(i)/float64(voice.CanonicalSampleRate))
	}
	return voice.ConditionedSignal{Samples: samples, SampleRate: voice.CanonicalSampleRate}
}

func TestProviderProbeSucceeds(t *testing.T) {
	t.Parallel()

	stub := &encoderStub{vector: []float64{0.1, 0.2, 0.3}}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	provider := NewProvider(NewEncoderClient(server.URL))
	if provider.Available() {
		t.Fatal("provider available before any probe")
	}

	if err := provider.Probe(context.Background()); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if !provider.Available() {
		t.Fatal("provider not available after successful probe")
	}
}

func TestProviderProbeRunsOnce(t *testing.T) {
	t.Parallel()

	stub := &encoderStub{vector: []float64{0.1, 0.2, 0.3}}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	provider := NewProvider(NewEncoderClient(server.URL))
	for i := 0; i < 3; i++ {
		if err := provider.Probe(context.Background()); err != nil {
			t.Fatalf("Probe %d failed: %v", i, err)
		}
	}

	if got := stub.requestCount(); got != 1 {
		t.Fatalf("probe hit the encoder %d times, expected 1", got)
	}
}

func TestProviderUnavailableEncoder(t *testing.T) {
	t.Parallel()

	stub := &encoderStub{status: http.StatusInternalServerError}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	provider := NewProvider(NewEncoderClient(server.URL))

	_, err := provider.Embed(context.Background(), testSignal(1.0))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Embed = %v, expected ErrUnavailable", err)
	}
	if provider.Available() {
		t.Fatal("provider reports available after failed probe")
	}

	// The failed probe is sticky: later calls fail fast without retrying.
	before := stub.requestCount()
	if _, err := provider.Embed(context.Background(), testSignal(1.0)); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("second Embed = %v, expected ErrUnavailable", err)
	}
	if stub.requestCount() != before {
		t.Fatal("unavailable provider retried the encoder")
	}
}

func TestProviderRejectsDegenerateProbeVector(t *testing.T) {
	t.Parallel()

	stub := &encoderStub{vector: []float64{0, 0, 0}}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	provider := NewProvider(NewEncoderClient(server.URL))
	if err := provider.Probe(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Probe = %v, expected ErrUnavailable for all-zero vector", err)
	}
}

func TestProviderEmbedsShortSignalWhole(t *testing.T) {
	t.Parallel()

	stub := &encoderStub{vector: []float64{0.4, 0.6}}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	provider := NewProvider(NewEncoderClient(server.URL))

	vector, err := provider.Embed(context.Background(), testSignal(1.0))
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vector) != 2 {
		t.Fatalf("vector dimension %d, expected 2", len(vector))
	}

	// One probe call plus one whole-signal embed.
	if got := stub.requestCount(); got != 2 {
		t.Fatalf("%d encoder requests, expected 2", got)
	}
}

func TestProviderAveragesSegments(t *testing.T) {
	t.Parallel()

	stub := &encoderStub{vector: []float64{0.5, 0.25}}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	provider := NewProvider(NewEncoderClient(server.URL))

	// 3.2s at the canonical rate: 1.6s windows with 0.8s hop tile the
	// signal into three full segments.
	vector, err := provider.Embed(context.Background(), testSignal(3.2))
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	// Identical per-segment vectors average to themselves.
	if math.Abs(vector[0]-0.5) > 1e-12 || math.Abs(vector[1]-0.25) > 1e-12 {
		t.Fatalf("averaged vector = %v", vector)
	}
	if got := stub.requestCount(); got != 4 {
		t.Fatalf("%d encoder requests, expected probe + 3 segments", got)
	}
}

func TestSplitSegmentsGeometry(t *testing.T) {
	t.Parallel()

	short := splitSegments(testSignal(1.0))
	if len(short) != 1 {
		t.Fatalf("short signal split into %d segments", len(short))
	}

	long := splitSegments(testSignal(3.2))
	if len(long) != 3 {
		t.Fatalf("3.2s signal split into %d segments, expected 3", len(long))
	}
	window := int(segmentWindowSeconds * float64(voice.CanonicalSampleRate))
	for i, seg := range long {
		if len(seg.Samples) != window {
			t.Fatalf("segment %d has %d samples, expected %d", i, len(seg.Samples), window)
		}
	}

	// A trailing partial below half a window is dropped, above it is kept.
	tail := splitSegments(testSignal(3.6))
	if len(tail) != 4 {
		t.Fatalf("3.6s signal split into %d segments, expected 4", len(tail))
	}
	if last := tail[len(tail)-1]; len(last.Samples) >= window || len(last.Samples) < window/2 {
		t.Fatalf("trailing segment has %d samples", len(last.Samples))
	}
}
