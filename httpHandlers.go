package main

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"voice-auth/db"
	"voice-auth/embedding"
	"voice-auth/utils"
	"voice-auth/voice"

	"github.com/mdobak/go-xerrors"
)

type apiError struct {
	Message  string `json:"message"`
	Guidance string `json:"guidance,omitempty"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Encoder string `json:"encoder"`
}

const maxMultipartMemory = 32 << 20

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Message: message})
}

// writePipelineError maps pipeline failures to transport status codes.
// User-correctable rejections come back as 400 with actionable guidance,
// encoder downtime as a retryable 503, everything else as an opaque 500.
func writePipelineError(w http.ResponseWriter, err error) {
	var rejected *voice.QualityRejectedError
	if errors.As(err, &rejected) {
		writeJSON(w, http.StatusBadRequest, apiError{
			Message:  rejected.Error(),
			Guidance: rejected.Report.Verdict.Guidance(),
		})
		return
	}
	if voice.IsUserCorrectable(err) {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errors.Is(err, voice.ErrNoEnrollment) {
		writeJSONError(w, http.StatusBadRequest, "no voice enrollment on record")
		return
	}
	if errors.Is(err, embedding.ErrUnavailable) {
		writeJSONError(w, http.StatusServiceUnavailable, "voice encoder unavailable, try again later")
		return
	}
	writeJSONError(w, http.StatusInternalServerError, "internal error while processing audio")
}

// readVoiceUpload extracts the user id and audio bytes from a multipart
// request. The audio arrives in the "audio" file field.
func readVoiceUpload(r *http.Request) (userID string, audio []byte, err error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return "", nil, errors.New("invalid upload payload")
	}

	userID = strings.TrimSpace(r.FormValue("user_id"))
	if userID == "" {
		return "", nil, errors.New("user_id is required")
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		return "", nil, errors.New("audio file is required")
	}
	defer file.Close()

	audio, err = io.ReadAll(file)
	if err != nil {
		return "", nil, errors.New("failed to read audio upload")
	}
	return userID, audio, nil
}

func newEnrollHandler(service *voice.Service) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		userID, audio, err := readVoiceUpload(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		result, err := service.Enroll(ctx, userID, audio)
		if err != nil {
			logger.ErrorContext(ctx, "enrollment failed",
				slog.String("userID", userID),
				slog.Any("error", xerrors.New(err)))
			writePipelineError(w, err)
			return
		}

		logger.InfoContext(ctx, "voice enrolled",
			slog.String("userID", userID),
			slog.Float64("snrDb", result.Quality.SNRDb))
		writeJSON(w, http.StatusOK, result)
	}
}

func newVerifyHandler(service *voice.Service) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		userID, audio, err := readVoiceUpload(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		result, err := service.Verify(ctx, userID, audio)
		if err != nil {
			logger.ErrorContext(ctx, "verification failed",
				slog.String("userID", userID),
				slog.Any("error", xerrors.New(err)))
			writePipelineError(w, err)
			return
		}

		logger.InfoContext(ctx, "verification complete",
			slog.String("userID", userID),
			slog.Bool("matched", result.Matched),
			slog.Float64("similarity", result.Similarity),
			slog.Float64("latencyMs", result.LatencyMs))

		// A rejected speaker is a complete, well-formed answer; 401 carries
		// the same body a match does so clients can show the score.
		status := http.StatusOK
		if !result.Matched {
			status = http.StatusUnauthorized
		}
		writeJSON(w, status, result)
	}
}

func newHealthHandler(provider *embedding.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")

		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		encoder := "unavailable"
		status := "degraded"
		if provider.Available() {
			encoder = "ok"
			status = "ok"
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: status, Encoder: encoder})
	}
}

func newAttemptsHandler(attempts *db.SQLiteClient) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		if userID == "" {
			writeJSONError(w, http.StatusBadRequest, "user_id is required")
			return
		}

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil {
				limit = parsed
			}
		}

		list, err := attempts.RecentAttempts(ctx, userID, limit)
		if err != nil {
			logger.ErrorContext(ctx, "failed to load verification attempts",
				slog.String("userID", userID),
				slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusInternalServerError, "failed to load attempts")
			return
		}

		writeJSON(w, http.StatusOK, list)
	}
}
