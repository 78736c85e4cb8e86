package voice

// Similarity Scoring and Gallery Matching
//
// Verification compares one probe embedding against every embedding enrolled
// for the claimed identity and keeps the single best cosine similarity. The
// gallery is never averaged: any one enrolled sample recognizing the speaker
// is sufficient, which is what lets augmented variants improve recall
// without dragging the score down.

import (
	"errors"
	"math"
)

// MatchResult is the outcome of matching a probe against a gallery. It is a
// derived value and never persisted.
type MatchResult struct {
	Similarity float64 `json:"similarity"`
	Matched    bool    `json:"matched"`
	Threshold  float64 `json:"threshold"`
}

// CosineSimilarity computes the cosine similarity of two embeddings,
// clamped to [0, 1]. Vectors of different dimensions are incomparable, most
// likely a gallery entry from an older encoder, and score 0.0 rather than
// being silently truncated to a common prefix. Degenerate vectors (zero
// norm) also score 0.0 instead of dividing by zero.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))

	// Floating-point error can push cosine slightly outside [-1, 1];
	// negative correlation carries no meaning for voice identity here.
	if similarity < 0 {
		return 0.0
	}
	if similarity > 1 {
		return 1.0
	}
	return similarity
}

// MatchGallery scores the probe against every stored embedding and reports
// whether the best similarity crosses the threshold. An empty gallery fails
// with ErrNoEnrollment rather than returning a false negative.
func MatchGallery(probe []float64, gallery [][]float64, threshold float64) (MatchResult, error) {
	if len(probe) == 0 {
		return MatchResult{}, errors.New("probe embedding is empty")
	}
	if len(gallery) == 0 {
		return MatchResult{}, ErrNoEnrollment
	}

	best := 0.0
	for _, stored := range gallery {
		if sim := CosineSimilarity(probe, stored); sim > best {
			best = sim
		}
	}

	return MatchResult{
		Similarity: best,
		Matched:    best >= threshold,
		Threshold:  threshold,
	}, nil
}

// ValidateEmbedding rejects degenerate vectors before they reach storage or
// comparison: empty, all-zero, or containing NaN/Inf components.
func ValidateEmbedding(embedding []float64) error {
	if len(embedding) == 0 {
		return errors.New("embedding is empty")
	}

	allZero := true
	for _, v := range embedding {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("embedding contains non-finite values")
		}
		if v != 0 {
			allZero = false
		}
	}
	if allZero {
		return errors.New("embedding is all-zero")
	}
	return nil
}
