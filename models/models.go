package models

import (
	"time"
)

// UserVoice is the subset of the user record this system reads and writes.
// No other schema is assumed about the surrounding user document.
type UserVoice struct {
	UserID          string      `bson:"user_id" json:"userId"`
	VoiceEmbeddings [][]float64 `bson:"voice_embeddings" json:"voiceEmbeddings"`
	VoiceURL        string      `bson:"voice_url,omitempty" json:"voiceUrl,omitempty"`
}

// EnrollmentResult is returned to the caller as soon as the seed embedding
// is stored; gallery augmentation continues in the background.
type EnrollmentResult struct {
	UserID      string      `json:"userId"`
	GallerySize int         `json:"gallerySize"`
	VoiceURL    string      `json:"voiceUrl,omitempty"`
	Quality     QualityInfo `json:"quality"`
}

// VerificationResult carries the match outcome. Matched=false is an
// expected business outcome, not an error.
type VerificationResult struct {
	UserID     string      `json:"userId"`
	Similarity float64     `json:"similarity"`
	Matched    bool        `json:"matched"`
	Threshold  float64     `json:"threshold"`
	Quality    QualityInfo `json:"quality"`
	LatencyMs  float64     `json:"latencyMs"`
}

// QualityInfo mirrors the quality gate's report on the wire.
type QualityInfo struct {
	SNRDb           float64 `json:"snrDb"`
	DurationSeconds float64 `json:"durationSeconds"`
	Energy          float64 `json:"energy"`
	Verdict         string  `json:"verdict"`
}

// VerificationAttempt is one journaled verification, kept for audit and
// threshold calibration.
type VerificationAttempt struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"userId"`
	Timestamp  time.Time `json:"timestamp"`
	Similarity float64   `json:"similarity"`
	Threshold  float64   `json:"threshold"`
	Matched    bool      `json:"matched"`
	SNRDb      float64   `json:"snrDb"`
}
