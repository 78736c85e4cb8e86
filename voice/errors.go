package voice

import (
	"errors"
	"fmt"
)

// ErrNoEnrollment is returned when verification is attempted against a user
// whose gallery is empty. It is distinct from a failed match.
var ErrNoEnrollment = errors.New("user has no voice enrollment")

// InvalidAudioError covers user-correctable upload problems: empty payloads,
// oversized payloads and undecodable containers. Detected before any DSP.
type InvalidAudioError struct {
	Reason string
}

func (e *InvalidAudioError) Error() string {
	return fmt.Sprintf("invalid audio: %s", e.Reason)
}

// ConditioningError indicates the waveform could not be loaded or processed.
// Callers treat it like InvalidAudioError.
type ConditioningError struct {
	Err error
}

func (e *ConditioningError) Error() string {
	return fmt.Sprintf("conditioning failed: %v", e.Err)
}

func (e *ConditioningError) Unwrap() error { return e.Err }

// QualityRejectedError is returned when the quality gate hard-rejects a
// signal. The report carries the measurements so callers can surface
// actionable guidance ("speak longer", "reduce background noise").
type QualityRejectedError struct {
	Report QualityReport
}

func (e *QualityRejectedError) Error() string {
	return fmt.Sprintf("audio quality rejected: %s", e.Report.Verdict)
}

// IsUserCorrectable reports whether the error maps to a 4xx-class outcome
// the caller can fix by re-recording.
func IsUserCorrectable(err error) bool {
	var invalid *InvalidAudioError
	var conditioning *ConditioningError
	var quality *QualityRejectedError
	return errors.As(err, &invalid) || errors.As(err, &conditioning) || errors.As(err, &quality)
}
