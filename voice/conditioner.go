package voice

// Signal Conditioning Pipeline
//
// Conditioning turns an arbitrary decoded clip into the canonical form the
// voice encoder expects: mono, 16 kHz, denoised, peak-normalized, with
// leading/trailing silence trimmed. The steps run in a fixed order and each
// one is a no-op when its precondition does not apply:
//
// 1. Down-mix to mono (average channels)
// 2. Resample to the canonical rate
// 3. Spectral noise reduction (noise profile estimated from the signal itself)
// 4. Peak normalization to [-1, 1]
// 5. Silence trimming with a guard margin and a fallback that skips the trim
//    when it would leave less than a viable amount of audio
//
// The pipeline is deterministic: identical input bytes and configuration
// produce identical output samples.

import (
	"fmt"
	"math"

	"voice-auth/wavio"

	resampling "github.com/tphakala/go-audio-resampling"
)

// ConditionedSignal is a mono waveform at the canonical sample rate, owned
// exclusively by the pipeline invocation that produced it. Level is the mean
// absolute amplitude measured before peak normalization; the quality gate
// uses it so a genuinely quiet capture is still caught after the waveform
// has been scaled to full range.
type ConditionedSignal struct {
	Samples    []float64
	SampleRate int
	Level      float64
}

// Duration returns the signal length in seconds.
func (s ConditionedSignal) Duration() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(len(s.Samples)) / float64(s.SampleRate)
}

// ConditionerConfig holds the tunable parameters of the conditioning chain.
type ConditionerConfig struct {
	TargetSampleRate    int
	EnableDenoise       bool
	DenoiseAlpha        float64 // spectral subtraction over-subtraction factor
	EnableTrim          bool
	TrimFrameSeconds    float64   // silence classification frame (~100 ms)
	TrimThresholdsDBFS  []float64 // sweep, first threshold keeping a viable result wins
	TrimGuardSeconds    float64   // margin kept around detected speech
	MinViableSeconds    float64   // below this the trim is skipped entirely
}

// DefaultConditionerConfig returns the parameters used in production.
func DefaultConditionerConfig() ConditionerConfig {
	return ConditionerConfig{
		TargetSampleRate:   16000,
		EnableDenoise:      true,
		DenoiseAlpha:       1.0,
		EnableTrim:         true,
		TrimFrameSeconds:   0.1,
		TrimThresholdsDBFS: []float64{-35, -45, -55},
		TrimGuardSeconds:   0.05,
		MinViableSeconds:   0.4,
	}
}

// Condition runs the full chain over a decoded clip.
func Condition(clip *wavio.Clip, cfg ConditionerConfig) (ConditionedSignal, error) {
	if clip == nil || len(clip.Samples) == 0 {
		return ConditionedSignal{}, &ConditioningError{Err: fmt.Errorf("empty waveform")}
	}
	if clip.SampleRate <= 0 || clip.Channels <= 0 {
		return ConditionedSignal{}, &ConditioningError{Err: fmt.Errorf("invalid clip header: rate=%d channels=%d", clip.SampleRate, clip.Channels)}
	}

	samples := DownmixMono(clip.Samples, clip.Channels)

	if clip.SampleRate != cfg.TargetSampleRate {
		resampled, err := Resample(samples, clip.SampleRate, cfg.TargetSampleRate)
		if err != nil {
			return ConditionedSignal{}, &ConditioningError{Err: err}
		}
		samples = resampled
	}

	if cfg.EnableDenoise {
		samples = SpectralDenoise(samples, cfg.TargetSampleRate, cfg.DenoiseAlpha)
	}

	level := meanAbsAmplitude(samples)

	samples = PeakNormalize(samples)

	if cfg.EnableTrim {
		samples = TrimSilence(samples, cfg.TargetSampleRate, cfg)
	}

	if len(samples) == 0 {
		return ConditionedSignal{}, &ConditioningError{Err: fmt.Errorf("conditioning produced empty signal")}
	}

	return ConditionedSignal{Samples: samples, SampleRate: cfg.TargetSampleRate, Level: level}, nil
}

// DownmixMono folds interleaved multi-channel samples into mono by
// averaging the channels. Mono input is returned unchanged.
func DownmixMono(samples []float64, channels int) []float64 {
	if channels <= 1 {
		return samples
	}

	frames := len(samples) / channels
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}

// Resample converts the sample rate using the streaming resampler. Source
// and target rates must be positive; equal rates short-circuit.
func Resample(samples []float64, srcRate, dstRate int) ([]float64, error) {
	if srcRate == dstRate {
		return samples, nil
	}
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates: %d -> %d", srcRate, dstRate)
	}

	config := &resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	}
	resampler, err := resampling.New(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	output, err := resampler.Process(samples)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}

	return output, nil
}

// PeakNormalize scales the waveform so the largest absolute sample sits at
// 1.0. Silent input is returned unchanged.
func PeakNormalize(samples []float64) []float64 {
	var peak float64
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return samples
	}

	out := make([]float64, len(samples))
	scale := 1.0 / peak
	for i, s := range samples {
		out[i] = s * scale
	}
	return out
}

// TrimSilence drops leading and trailing silent frames. Frames are classified
// against a dBFS threshold; the configured thresholds are swept in order and
// the first one that keeps at least MinViableSeconds of audio wins. When no
// threshold does, the untrimmed signal is returned - trimming must never
// destroy the only usable audio.
func TrimSilence(samples []float64, sampleRate int, cfg ConditionerConfig) []float64 {
	frameLen := int(cfg.TrimFrameSeconds * float64(sampleRate))
	if frameLen <= 0 || len(samples) < frameLen {
		return samples
	}

	minViable := int(cfg.MinViableSeconds * float64(sampleRate))
	guard := int(cfg.TrimGuardSeconds * float64(sampleRate))

	levels := frameLevelsDBFS(samples, frameLen)

	for _, threshold := range cfg.TrimThresholdsDBFS {
		first, last := activeFrameSpan(levels, threshold)
		if first < 0 {
			continue
		}

		start := first*frameLen - guard
		if start < 0 {
			start = 0
		}
		end := (last+1)*frameLen + guard
		if end > len(samples) {
			end = len(samples)
		}

		if end-start >= minViable {
			return samples[start:end]
		}
	}

	return samples
}

// frameLevelsDBFS computes the RMS level of each fixed-length frame in dBFS.
func frameLevelsDBFS(samples []float64, frameLen int) []float64 {
	frameCount := len(samples) / frameLen
	levels := make([]float64, frameCount)
	for i := 0; i < frameCount; i++ {
		var sum float64
		for _, s := range samples[i*frameLen : (i+1)*frameLen] {
			sum += s * s
		}
		rms := math.Sqrt(sum / float64(frameLen))
		if rms <= 0 {
			levels[i] = -120.0
			continue
		}
		levels[i] = 20.0 * math.Log10(rms)
	}
	return levels
}

// activeFrameSpan returns the first and last frame index at or above the
// threshold, or (-1, -1) when every frame is below it.
func activeFrameSpan(levels []float64, thresholdDBFS float64) (int, int) {
	first, last := -1, -1
	for i, level := range levels {
		if level >= thresholdDBFS {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	return first, last
}
