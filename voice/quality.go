package voice

// Quality Gate
//
// Classifies a conditioned signal before the (comparatively expensive)
// embedding call. The gate never mutates the signal; it only measures
// duration, energy and signal-to-noise ratio and renders a verdict.
// Duration and energy failures are hard rejections. A low SNR is advisory:
// the verdict carries it but callers decide whether to fail or proceed
// with a warning, because a noisy clip can still embed well enough.

import (
	"fmt"
	"math"
)

// Verdict is the outcome of a quality assessment.
type Verdict string

const (
	VerdictOK       Verdict = "OK"
	VerdictTooShort Verdict = "TOO_SHORT"
	VerdictTooQuiet Verdict = "TOO_QUIET"
	VerdictTooNoisy Verdict = "TOO_NOISY"
)

// QualityReport carries the measurements behind a verdict. Immutable once
// computed.
type QualityReport struct {
	SNRDb           float64 `json:"snrDb"`
	DurationSeconds float64 `json:"durationSeconds"`
	Energy          float64 `json:"energy"`
	Verdict         Verdict `json:"verdict"`
}

// QualityConfig exposes every threshold as a calibratable parameter rather
// than a magic number buried in the pipeline.
type QualityConfig struct {
	MinDurationSeconds float64 // hard floor, TOO_SHORT below it
	MinEnergy          float64 // mean absolute amplitude floor, TOO_QUIET below it
	MinSNRDb           float64 // advisory floor, TOO_NOISY below it
}

// DefaultQualityConfig returns the verification-path thresholds.
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		MinDurationSeconds: 1.0,
		MinEnergy:          0.005,
		MinSNRDb:           15.0,
	}
}

// EnrollmentQualityConfig tolerates shorter clips than verification; the
// caller logs a warning instead of rejecting between the two floors.
func EnrollmentQualityConfig() QualityConfig {
	cfg := DefaultQualityConfig()
	cfg.MinDurationSeconds = 0.5
	return cfg
}

// Assess measures the signal and renders a verdict. Checks run in order of
// severity: duration, energy, then SNR. Energy comes from the conditioner's
// pre-normalization level when available; after peak normalization every
// waveform looks loud.
func Assess(signal ConditionedSignal, cfg QualityConfig) QualityReport {
	energy := signal.Level
	if energy == 0 {
		energy = meanAbsAmplitude(signal.Samples)
	}

	report := QualityReport{
		DurationSeconds: signal.Duration(),
		Energy:          energy,
		SNRDb:           EstimateSNR(signal.Samples, signal.SampleRate),
		Verdict:         VerdictOK,
	}

	switch {
	case report.DurationSeconds < cfg.MinDurationSeconds:
		report.Verdict = VerdictTooShort
	case report.Energy < cfg.MinEnergy:
		report.Verdict = VerdictTooQuiet
	case report.SNRDb < cfg.MinSNRDb:
		report.Verdict = VerdictTooNoisy
	}

	return report
}

// Gate runs Assess and converts hard verdicts into a typed rejection.
// TOO_NOISY passes through with the report so the caller can warn.
func Gate(signal ConditionedSignal, cfg QualityConfig) (QualityReport, error) {
	report := Assess(signal, cfg)
	switch report.Verdict {
	case VerdictTooShort, VerdictTooQuiet:
		return report, &QualityRejectedError{Report: report}
	}
	return report, nil
}

func meanAbsAmplitude(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += math.Abs(s)
	}
	return sum / float64(len(samples))
}

// EstimateSNR estimates the signal-to-noise ratio in dB. Noise power comes
// from an early low-energy segment (the first 10% of the clip, at least
// 50 ms), signal power from the whole clip.
func EstimateSNR(samples []float64, sampleRate int) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	noiseLen := len(samples) / 10
	if minLen := sampleRate / 20; noiseLen < minLen {
		noiseLen = minLen
	}
	if noiseLen > len(samples) {
		noiseLen = len(samples)
	}

	noisePower := meanPower(samples[:noiseLen])
	signalPower := meanPower(samples)

	if noisePower == 0 {
		return 100.0 // no measurable noise
	}

	ratio := signalPower / noisePower
	if ratio <= 0 {
		return -100.0
	}

	return 10.0 * math.Log10(ratio)
}

func meanPower(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return sum / float64(len(samples))
}

func (v Verdict) String() string { return string(v) }

// Guidance returns the user-facing hint for a rejection verdict.
func (v Verdict) Guidance() string {
	switch v {
	case VerdictTooShort:
		return "recording too short, please speak for at least a second"
	case VerdictTooQuiet:
		return "recording too quiet, please speak closer to the microphone"
	case VerdictTooNoisy:
		return "too much background noise, please retry somewhere quieter"
	default:
		return fmt.Sprintf("verdict %s", string(v))
	}
}
