package embedding

// Probed Embedding Provider
//
// The encoder is a shared, effectively stateless capability that every
// enrollment and verification request calls into. The provider wraps the
// HTTP client with:
//
//   - a one-time probe on a synthetic silent signal; a failed or degenerate
//     probe marks the whole capability unavailable so callers fail fast with
//     a retryable error instead of a confusing downstream one
//   - lazy, thread-safe initialization (the probe runs at most once per
//     process, on first use or eagerly from a background goroutine)
//   - optional segmentation: long signals are embedded as overlapping
//     sub-segments whose vectors are averaged, which is more robust than a
//     single pass over a long utterance
//
// Both the segmented and whole-signal paths converge to one fixed-length
// vector validated before it is returned.

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"voice-auth/voice"
	"voice-auth/wavio"
)

// ErrUnavailable signals that the encoder capability is down. Callers must
// fail fast and surface a retryable service-unavailable outcome.
var ErrUnavailable = errors.New("voice encoder unavailable")

const (
	probeSignalSeconds = 1.0

	// Segmentation geometry; signals shorter than segmentWindowSeconds
	// are embedded whole.
	segmentWindowSeconds  = 1.6
	segmentOverlapSeconds = 0.8
)

// Provider is the process-wide embedding capability. Safe for concurrent
// use; the underlying HTTP client serializes nothing, but the probe state
// is guarded.
type Provider struct {
	client *EncoderClient

	mu        sync.Mutex
	probed    bool
	available bool
	probeErr  error
}

// NewProvider wraps an encoder client. No network traffic happens until
// Probe or the first Embed call.
func NewProvider(client *EncoderClient) *Provider {
	return &Provider{client: client}
}

// Probe validates the encoder by embedding a synthetic silent signal. It is
// idempotent: the first call decides availability for the process lifetime,
// later calls return the recorded result.
func (p *Provider) Probe(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probeLocked(ctx)
}

func (p *Provider) probeLocked(ctx context.Context) error {
	if p.probed {
		return p.probeErr
	}
	p.probed = true

	silent := make([]float64, int(probeSignalSeconds*float64(voice.CanonicalSampleRate)))
	wavBytes, err := wavio.Encode(silent, voice.CanonicalSampleRate)
	if err != nil {
		p.probeErr = fmt.Errorf("%w: probe signal encode failed: %v", ErrUnavailable, err)
		return p.probeErr
	}

	vector, err := p.client.EmbedBytes(ctx, wavBytes, "probe.wav")
	if err != nil {
		p.probeErr = fmt.Errorf("%w: probe failed: %v", ErrUnavailable, err)
		return p.probeErr
	}
	if err := voice.ValidateEmbedding(vector); err != nil {
		p.probeErr = fmt.Errorf("%w: probe returned degenerate vector: %v", ErrUnavailable, err)
		return p.probeErr
	}

	p.available = true
	return nil
}

// Available reports the probe outcome without triggering a probe.
func (p *Provider) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probed && p.available
}

// Embed produces one fixed-length vector for a conditioned signal. Long
// signals are split into overlapping segments whose embeddings are averaged.
func (p *Provider) Embed(ctx context.Context, signal voice.ConditionedSignal) ([]float64, error) {
	p.mu.Lock()
	err := p.probeLocked(ctx)
	available := p.available
	p.mu.Unlock()

	if err != nil || !available {
		if err == nil {
			err = ErrUnavailable
		}
		return nil, err
	}

	segments := splitSegments(signal)

	if len(segments) <= 1 {
		vector, err := p.embedSignal(ctx, signal)
		if err != nil {
			return nil, err
		}
		return vector, voice.ValidateEmbedding(vector)
	}

	var sum []float64
	embedded := 0
	for _, segment := range segments {
		vector, err := p.embedSignal(ctx, segment)
		if err != nil {
			return nil, err
		}
		if sum == nil {
			sum = make([]float64, len(vector))
		}
		if len(vector) != len(sum) {
			return nil, fmt.Errorf("encoder returned inconsistent dimensions: %d vs %d", len(vector), len(sum))
		}
		for i, v := range vector {
			sum[i] += v
		}
		embedded++
	}

	for i := range sum {
		sum[i] /= float64(embedded)
	}

	return sum, voice.ValidateEmbedding(sum)
}

func (p *Provider) embedSignal(ctx context.Context, signal voice.ConditionedSignal) ([]float64, error) {
	wavBytes, err := wavio.Encode(signal.Samples, signal.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode signal: %w", err)
	}
	return p.client.EmbedBytes(ctx, wavBytes, "signal.wav")
}

// splitSegments cuts a signal into overlapping windows. Signals at or below
// one window are returned as a single segment.
func splitSegments(signal voice.ConditionedSignal) []voice.ConditionedSignal {
	window := int(segmentWindowSeconds * float64(signal.SampleRate))
	hop := window - int(segmentOverlapSeconds*float64(signal.SampleRate))
	if hop <= 0 {
		hop = window
	}

	if window <= 0 || len(signal.Samples) <= window {
		return []voice.ConditionedSignal{signal}
	}

	var segments []voice.ConditionedSignal
	for start := 0; start < len(signal.Samples); start += hop {
		end := start + window
		if end > len(signal.Samples) {
			end = len(signal.Samples)
		}
		if end-start < window/2 {
			break
		}
		segments = append(segments, voice.ConditionedSignal{
			Samples:    signal.Samples[start:end],
			SampleRate: signal.SampleRate,
		})
		if end == len(signal.Samples) {
			break
		}
	}

	if len(segments) == 0 {
		return []voice.ConditionedSignal{signal}
	}
	return segments
}
