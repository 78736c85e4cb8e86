package voice

// Enrollment Variant Synthesis
//
// After an enrollment seeds the gallery, perturbed variants of the clip are
// derived to widen what the gallery recognizes:
//
//   - time-stretch by a small factor simulates speaking-rate variation
//   - pitch-shift by a semitone simulates recording/device variation
//
// TimeStretch uses windowed overlap-add: frames are read from analysis
// positions spaced hop*factor apart and written at synthesis positions
// spaced hop apart, so a factor above 1.0 compresses the timeline without
// moving the formants. PitchShift composes a stretch with a length-exact
// linear resample, which scales every frequency by the semitone ratio while
// keeping the duration unchanged.

import (
	"fmt"
	"math"
)

// VariantKind names an augmentation variant. Used to key background jobs so
// duplicate scheduling stays idempotent.
type VariantKind string

const (
	VariantTimeStretch VariantKind = "time_stretch"
	VariantPitchShift  VariantKind = "pitch_shift"
)

const (
	defaultStretchFactor      = 1.03
	defaultPitchShiftSemitone = -1.0

	stretchFrameSeconds = 0.1
)

// SynthesizeVariant derives the named perturbation of a conditioned signal.
func SynthesizeVariant(signal ConditionedSignal, kind VariantKind) (ConditionedSignal, error) {
	switch kind {
	case VariantTimeStretch:
		return ConditionedSignal{
			Samples:    TimeStretch(signal.Samples, signal.SampleRate, defaultStretchFactor),
			SampleRate: signal.SampleRate,
		}, nil
	case VariantPitchShift:
		return ConditionedSignal{
			Samples:    PitchShift(signal.Samples, signal.SampleRate, defaultPitchShiftSemitone),
			SampleRate: signal.SampleRate,
		}, nil
	default:
		return ConditionedSignal{}, fmt.Errorf("unknown variant kind %q", kind)
	}
}

// TimeStretch changes speaking rate by the given factor without shifting
// pitch. A factor of 1.03 yields output roughly 3% shorter. Signals shorter
// than one analysis frame are returned unchanged.
func TimeStretch(samples []float64, sampleRate int, factor float64) []float64 {
	if factor <= 0 || factor == 1.0 {
		return samples
	}

	frameLen := int(stretchFrameSeconds * float64(sampleRate))
	if frameLen < 2 || len(samples) < frameLen {
		return samples
	}
	hop := frameLen / 2

	outLen := int(float64(len(samples)) / factor)
	if outLen < frameLen {
		return samples
	}

	window := hannWindow(frameLen)
	out := make([]float64, outLen)
	norm := make([]float64, outLen)

	for outPos := 0; outPos+frameLen <= outLen; outPos += hop {
		inPos := int(float64(outPos) * factor)
		if inPos+frameLen > len(samples) {
			break
		}
		for i := 0; i < frameLen; i++ {
			out[outPos+i] += samples[inPos+i] * window[i]
			norm[outPos+i] += window[i]
		}
	}

	for i := range out {
		if norm[i] > 1e-9 {
			out[i] /= norm[i]
		}
	}

	return out
}

// PitchShift moves the signal by the given number of semitones while keeping
// its duration. Negative semitones shift down.
func PitchShift(samples []float64, sampleRate int, semitones float64) []float64 {
	if semitones == 0 || len(samples) == 0 {
		return samples
	}

	ratio := math.Pow(2.0, semitones/12.0)

	// Stretch to duration*ratio, then replay over the original length;
	// the replay scales every frequency by ratio.
	stretched := TimeStretch(samples, sampleRate, 1.0/ratio)
	return linearResampleToLength(stretched, len(samples))
}

// linearResampleToLength interpolates the signal to an exact sample count.
// The streaming resampler cannot guarantee output length, and pitch shifting
// needs the duration preserved bit-for-bit.
func linearResampleToLength(samples []float64, outLen int) []float64 {
	if outLen <= 0 || len(samples) == 0 {
		return nil
	}
	if len(samples) == outLen {
		return samples
	}

	out := make([]float64, outLen)
	scale := float64(len(samples)-1) / float64(outLen-1)
	if outLen == 1 {
		out[0] = samples[0]
		return out
	}

	for i := 0; i < outLen; i++ {
		pos := float64(i) * scale
		idx := int(pos)
		frac := pos - float64(idx)
		if idx+1 >= len(samples) {
			out[i] = samples[len(samples)-1]
			continue
		}
		out[i] = samples[idx]*(1.0-frac) + samples[idx+1]*frac
	}
	return out
}
