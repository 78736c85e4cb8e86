package voice

import (
	"math"
	"testing"
)

func stretchInput(seconds float64) ConditionedSignal {
	n := int(seconds * float64(CanonicalSampleRate))
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2.0*math.Pi*200.0*float64(i)/float64(CanonicalSampleRate))
	}
	return ConditionedSignal{Samples: samples, SampleRate: CanonicalSampleRate}
}

func TestTimeStretchChangesDuration(t *testing.T) {
	t.Parallel()

	in := stretchInput(2.0)
	out := TimeStretch(in.Samples, in.SampleRate, 1.03)

	want := int(float64(len(in.Samples)) / 1.03)
	if len(out) != want {
		t.Fatalf("stretched length = %d, expected %d", len(out), want)
	}
	if len(out) >= len(in.Samples) {
		t.Fatal("factor > 1 did not shorten the signal")
	}
}

func TestTimeStretchNoOpCases(t *testing.T) {
	t.Parallel()

	in := stretchInput(2.0)

	if out := TimeStretch(in.Samples, in.SampleRate, 1.0); &out[0] != &in.Samples[0] {
		t.Fatal("factor 1.0 copied the signal")
	}
	if out := TimeStretch(in.Samples, in.SampleRate, 0); &out[0] != &in.Samples[0] {
		t.Fatal("invalid factor was not a passthrough")
	}

	short := []float64{0.1, 0.2, 0.3}
	if out := TimeStretch(short, CanonicalSampleRate, 1.03); len(out) != len(short) {
		t.Fatal("sub-frame signal was stretched")
	}
}

func TestPitchShiftPreservesDuration(t *testing.T) {
	t.Parallel()

	in := stretchInput(1.5)
	out := PitchShift(in.Samples, in.SampleRate, -1.0)
	if len(out) != len(in.Samples) {
		t.Fatalf("pitch shift changed length: %d -> %d", len(in.Samples), len(out))
	}
}

func TestPitchShiftZeroSemitonesPassthrough(t *testing.T) {
	t.Parallel()

	in := stretchInput(1.0)
	if out := PitchShift(in.Samples, in.SampleRate, 0); &out[0] != &in.Samples[0] {
		t.Fatal("zero-semitone shift copied the signal")
	}
}

func TestSynthesizeVariant(t *testing.T) {
	t.Parallel()

	seed := stretchInput(2.0)

	stretch, err := SynthesizeVariant(seed, VariantTimeStretch)
	if err != nil {
		t.Fatalf("time-stretch variant failed: %v", err)
	}
	if len(stretch.Samples) >= len(seed.Samples) {
		t.Fatal("time-stretch variant is not shorter than the seed")
	}
	if stretch.SampleRate != seed.SampleRate {
		t.Fatalf("variant sample rate changed: %d", stretch.SampleRate)
	}

	pitch, err := SynthesizeVariant(seed, VariantPitchShift)
	if err != nil {
		t.Fatalf("pitch-shift variant failed: %v", err)
	}
	if len(pitch.Samples) != len(seed.Samples) {
		t.Fatal("pitch-shift variant changed duration")
	}

	if _, err := SynthesizeVariant(seed, VariantKind("reverb")); err == nil {
		t.Fatal("unknown variant kind accepted")
	}
}

func TestSynthesizeVariantIsDeterministic(t *testing.T) {
	t.Parallel()

	seed := stretchInput(1.2)
	for _, kind := range []VariantKind{VariantTimeStretch, VariantPitchShift} {
		first, err := SynthesizeVariant(seed, kind)
		if err != nil {
			t.Fatalf("variant %s failed: %v", kind, err)
		}
		second, err := SynthesizeVariant(seed, kind)
		if err != nil {
			t.Fatalf("variant %s failed: %v", kind, err)
		}
		if len(first.Samples) != len(second.Samples) {
			t.Fatalf("variant %s lengths differ across runs", kind)
		}
		for i := range first.Samples {
			if first.Samples[i] != second.Samples[i] {
				t.Fatalf("variant %s sample %d differs across runs", kind, i)
			}
		}
	}
}
