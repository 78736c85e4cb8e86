package voice

import (
	"errors"
	"math"
	"testing"
)

func TestCosineSimilaritySelfMatch(t *testing.T) {
	t.Parallel()

	vec := []float64{0.3, -0.2, 0.9, 0.1, -0.5}
	sim := CosineSimilarity(vec, vec)
	if math.Abs(sim-1.0) > 1e-9 {
		t.Fatalf("self-similarity = %f, expected 1.0", sim)
	}
}

func TestCosineSimilaritySymmetry(t *testing.T) {
	t.Parallel()

	a := []float64{0.1, 0.7, -0.3, 0.2}
	b := []float64{0.5, -0.1, 0.4, 0.9}

	ab := CosineSimilarity(a, b)
	ba := CosineSimilarity(b, a)
	if ab != ba {
		t.Fatalf("similarity is asymmetric: sim(a,b)=%f sim(b,a)=%f", ab, ba)
	}
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	t.Parallel()

	zero := make([]float64, 4)
	vec := []float64{0.5, 0.5, 0.5, 0.5}

	if sim := CosineSimilarity(zero, vec); sim != 0.0 {
		t.Fatalf("zero vector scored %f, expected 0.0", sim)
	}
	if sim := CosineSimilarity(zero, zero); sim != 0.0 {
		t.Fatalf("zero-vs-zero scored %f, expected 0.0", sim)
	}
}

func TestCosineSimilarityClampsToUnitInterval(t *testing.T) {
	t.Parallel()

	// Anti-correlated vectors would score -1; identity carries no meaning
	// for negative correlation so it clamps to 0.
	a := []float64{1.0, 1.0}
	b := []float64{-1.0, -1.0}
	if sim := CosineSimilarity(a, b); sim != 0.0 {
		t.Fatalf("anti-correlated vectors scored %f, expected clamp to 0.0", sim)
	}

	for _, sim := range []float64{
		CosineSimilarity([]float64{0.3, 0.4}, []float64{0.6, 0.8}),
		CosineSimilarity([]float64{1e-8, 1e-8}, []float64{1e8, 1e8}),
	} {
		if sim < 0.0 || sim > 1.0 {
			t.Fatalf("similarity %f escaped [0, 1]", sim)
		}
	}
}

// Vectors of different dimensions come from incompatible encoders and must
// never score as a match on a shared prefix.
func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	t.Parallel()

	long := []float64{0.6, 0.8, 0.0, 0.0}
	short := []float64{0.6, 0.8} // identical prefix

	if sim := CosineSimilarity(long, short); sim != 0.0 {
		t.Fatalf("mismatched dimensions scored %f, expected 0.0", sim)
	}
	if sim := CosineSimilarity(short, long); sim != 0.0 {
		t.Fatalf("mismatched dimensions scored %f, expected 0.0", sim)
	}
	if sim := CosineSimilarity(nil, nil); sim != 0.0 {
		t.Fatalf("empty vectors scored %f, expected 0.0", sim)
	}
}

// A stale gallery entry with the wrong dimensionality never accepts a probe;
// only same-dimension entries participate in the match.
func TestMatchGallerySkipsMismatchedEntries(t *testing.T) {
	t.Parallel()

	probe := []float64{0.6, 0.8, 0.0}
	gallery := [][]float64{{0.6, 0.8}} // prefix of the probe, older encoder

	result, err := MatchGallery(probe, gallery, 0.75)
	if err != nil {
		t.Fatalf("MatchGallery returned error: %v", err)
	}
	if result.Matched || result.Similarity != 0.0 {
		t.Fatalf("mismatched-dimension entry matched (similarity %f)", result.Similarity)
	}

	gallery = append(gallery, []float64{0.6, 0.8, 0.01})
	result, err = MatchGallery(probe, gallery, 0.75)
	if err != nil {
		t.Fatalf("MatchGallery returned error: %v", err)
	}
	if !result.Matched {
		t.Fatalf("same-dimension entry failed to match (similarity %f)", result.Similarity)
	}
}

func TestMatchGalleryEmptyGallery(t *testing.T) {
	t.Parallel()

	_, err := MatchGallery([]float64{0.5, 0.5}, nil, 0.75)
	if !errors.Is(err, ErrNoEnrollment) {
		t.Fatalf("empty gallery returned %v, expected ErrNoEnrollment", err)
	}
}

func TestMatchGalleryEmptyProbe(t *testing.T) {
	t.Parallel()

	_, err := MatchGallery(nil, [][]float64{{0.5, 0.5}}, 0.75)
	if err == nil {
		t.Fatal("empty probe did not fail")
	}
}

func TestMatchGalleryKeepsBestScore(t *testing.T) {
	t.Parallel()

	probe := []float64{1.0, 0.0, 0.0}
	gallery := [][]float64{
		{0.0, 1.0, 0.0},  // orthogonal
		{0.7, 0.7, 0.0},  // partial
		{0.99, 0.1, 0.0}, // near match
	}

	result, err := MatchGallery(probe, gallery, 0.9)
	if err != nil {
		t.Fatalf("MatchGallery returned error: %v", err)
	}

	best := CosineSimilarity(probe, gallery[2])
	if result.Similarity != best {
		t.Fatalf("similarity = %f, expected best-of %f", result.Similarity, best)
	}
	if !result.Matched {
		t.Fatalf("best score %f did not cross threshold %f", result.Similarity, result.Threshold)
	}
}

// Adding an embedding to the gallery can only raise or preserve the best
// similarity, never lower it.
func TestMatchGalleryMonotonicity(t *testing.T) {
	t.Parallel()

	probe := []float64{0.6, 0.8, 0.0}
	gallery := [][]float64{{0.0, 1.0, 0.0}}

	prev := 0.0
	additions := [][]float64{
		{1.0, 0.0, 0.0},
		{0.5, 0.5, 0.5},
		{0.6, 0.8, 0.01},
	}
	for _, extra := range additions {
		gallery = append(gallery, extra)
		result, err := MatchGallery(probe, gallery, 0.75)
		if err != nil {
			t.Fatalf("MatchGallery returned error: %v", err)
		}
		if result.Similarity < prev {
			t.Fatalf("similarity dropped from %f to %f after gallery grew", prev, result.Similarity)
		}
		prev = result.Similarity
	}
}

func TestValidateEmbedding(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		vec     []float64
		wantErr bool
	}{
		{"valid", []float64{0.1, -0.2, 0.3}, false},
		{"empty", nil, true},
		{"all zero", make([]float64, 8), true},
		{"nan", []float64{0.1, math.NaN()}, true},
		{"inf", []float64{math.Inf(1), 0.2}, true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateEmbedding(tc.vec)
			if tc.wantErr && err == nil {
				t.Fatalf("expected rejection, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected rejection: %v", err)
			}
		})
	}
}
