package voice

// Upload Validation
//
// Every enrollment or verification upload passes through ValidateUpload
// before any signal processing happens. Checks run cheapest first: byte
// count, container sniff, then a full WAV decode. Nothing here has side
// effects beyond reading the buffer, so a rejected upload costs almost
// nothing.

import (
	"fmt"

	"voice-auth/wavio"

	"github.com/h2non/filetype"
)

// DefaultMaxUploadBytes bounds verification/enrollment uploads (15 MB).
const DefaultMaxUploadBytes = 15 << 20

// ValidateUpload checks raw upload constraints and decodes the clip.
// It fails with *InvalidAudioError on any constraint violation.
func ValidateUpload(data []byte, maxBytes int64) (*wavio.Clip, error) {
	if len(data) == 0 {
		return nil, &InvalidAudioError{Reason: "empty upload"}
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, &InvalidAudioError{Reason: fmt.Sprintf("upload exceeds %d bytes", maxBytes)}
	}

	// Container sniff before committing to a decode. Only the magic bytes
	// are inspected, so this also catches images or text renamed to .wav.
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return nil, &InvalidAudioError{Reason: "undecodable"}
	}
	if kind.MIME.Type != "audio" {
		return nil, &InvalidAudioError{Reason: fmt.Sprintf("unsupported content type %s", kind.MIME.Value)}
	}

	clip, err := wavio.Decode(data)
	if err != nil {
		return nil, &InvalidAudioError{Reason: "undecodable"}
	}

	return clip, nil
}
