package voice

// Verification Pipeline Orchestration
//
// The service wires the pipeline stages together for the two operations the
// rest of the system calls:
//
//   Enrollment:   validate -> condition -> quality gate -> embed ->
//                 seed gallery (synchronous) -> background augmentation
//   Verification: validate -> condition -> quality gate -> gallery fetch ->
//                 embed -> best-of-gallery match
//
// Validation and quality failures short-circuit before the embedding call.
// Temporary artifacts live in a TempScope released on every exit path.
// "No match" is an expected business outcome and comes back as a result
// value, never as an error.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"voice-auth/models"
	"voice-auth/utils"

	"github.com/google/uuid"
	"github.com/mdobak/go-xerrors"
)

// CanonicalSampleRate is the rate every signal is conditioned to before it
// reaches the encoder.
const CanonicalSampleRate = 16000

// Embedder is the opaque embedding capability consumed by the pipeline.
type Embedder interface {
	Embed(ctx context.Context, signal ConditionedSignal) ([]float64, error)
}

// UserStore is the slice of the user record this core reads and writes:
// the embedding gallery and the archived recording URL. Gallery appends
// must be atomic against the backing store.
type UserStore interface {
	VoiceGallery(ctx context.Context, userID string) ([][]float64, error)
	SeedVoiceGallery(ctx context.Context, userID string, embedding []float64, voiceURL string) error
	AppendVoiceEmbedding(ctx context.Context, userID string, embedding []float64) error
}

// BlobStore archives original enrollment recordings for audit/replay,
// independent of the embedding gallery.
type BlobStore interface {
	Upload(ctx context.Context, data []byte, key string) (string, error)
}

// AttemptLog journals verification attempts.
type AttemptLog interface {
	RecordAttempt(ctx context.Context, attempt models.VerificationAttempt) error
}

// Config collects the pipeline's tunable surface. Thresholds live here, not
// hard-coded at call sites.
type Config struct {
	SimilarityThreshold float64
	MaxUploadBytes      int64
	MaxGallerySize      int
	TempDir             string
	Conditioner         ConditionerConfig
	VerifyQuality       QualityConfig
	EnrollQuality       QualityConfig
}

// ConfigFromEnv builds the production configuration from the environment.
func ConfigFromEnv() Config {
	return Config{
		SimilarityThreshold: utils.GetEnvFloat("VOICE_SIMILARITY_THRESHOLD", 0.75),
		MaxUploadBytes:      int64(utils.GetEnvInt("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes)),
		MaxGallerySize:      utils.GetEnvInt("MAX_GALLERY_SIZE", 10),
		TempDir:             utils.GetEnv("VOICE_TEMP_DIR", "tmp"),
		Conditioner:         DefaultConditionerConfig(),
		VerifyQuality:       DefaultQualityConfig(),
		EnrollQuality:       EnrollmentQualityConfig(),
	}
}

// Service runs the enrollment and verification pipelines.
type Service struct {
	cfg       Config
	embedder  Embedder
	users     UserStore
	blobs     BlobStore  // optional
	attempts  AttemptLog // optional
	augmenter *Augmenter // optional
}

// NewService assembles a pipeline service. Blob store, attempt log and
// augmenter may be nil; the corresponding side effects are skipped.
func NewService(cfg Config, embedder Embedder, users UserStore, blobs BlobStore, attempts AttemptLog) *Service {
	return &Service{
		cfg:      cfg,
		embedder: embedder,
		users:    users,
		blobs:    blobs,
		attempts: attempts,
	}
}

// SetAugmenter attaches the background enrollment augmenter.
func (s *Service) SetAugmenter(a *Augmenter) { s.augmenter = a }

// Enroll registers a voice sample as the seed of the user's gallery. The
// call returns as soon as the seed embedding is stored; gallery expansion
// happens out of band.
func (s *Service) Enroll(ctx context.Context, userID string, upload []byte) (*models.EnrollmentResult, error) {
	logger := utils.GetLogger()

	scope, err := utils.NewTempScope(s.cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp scope: %w", err)
	}
	defer func() {
		if err := scope.Release(); err != nil {
			logger.WarnContext(ctx, "temp cleanup failed", slog.Any("error", xerrors.New(err)))
		}
	}()

	clip, err := ValidateUpload(upload, s.cfg.MaxUploadBytes)
	if err != nil {
		return nil, err
	}

	// Scratch copy of the raw capture, removed with the scope. Mirrors
	// the recording flow so a failed enrollment can be inspected on disk
	// while the request is in flight.
	if _, err := scope.CreateFile("enroll", upload); err != nil {
		return nil, fmt.Errorf("failed to stage upload: %w", err)
	}

	signal, err := Condition(clip, s.cfg.Conditioner)
	if err != nil {
		return nil, err
	}

	report, err := Gate(signal, s.cfg.EnrollQuality)
	if err != nil {
		return nil, err
	}
	if report.DurationSeconds < s.cfg.VerifyQuality.MinDurationSeconds {
		logger.WarnContext(ctx, "short enrollment accepted",
			slog.String("userID", userID),
			slog.Float64("durationSeconds", report.DurationSeconds))
	}
	if report.Verdict == VerdictTooNoisy {
		logger.WarnContext(ctx, "noisy enrollment accepted",
			slog.String("userID", userID),
			slog.Float64("snrDb", report.SNRDb))
	}

	seed, err := s.embedder.Embed(ctx, signal)
	if err != nil {
		return nil, err
	}
	if err := ValidateEmbedding(seed); err != nil {
		return nil, fmt.Errorf("encoder returned invalid embedding: %w", err)
	}

	voiceURL := s.archiveRecording(ctx, userID, upload)

	if err := s.users.SeedVoiceGallery(ctx, userID, seed, voiceURL); err != nil {
		return nil, fmt.Errorf("failed to store voice gallery seed: %w", err)
	}

	if s.augmenter != nil {
		s.augmenter.Schedule(userID, signal)
	}

	return &models.EnrollmentResult{
		UserID:      userID,
		GallerySize: 1,
		VoiceURL:    voiceURL,
		Quality:     toQualityInfo(report),
	}, nil
}

// Verify compares a voice sample against the user's enrolled gallery. A
// below-threshold similarity is returned as Matched=false with a nil error;
// an empty gallery fails with ErrNoEnrollment before any embedding call.
func (s *Service) Verify(ctx context.Context, userID string, upload []byte) (*models.VerificationResult, error) {
	logger := utils.GetLogger()
	started := time.Now()

	scope, err := utils.NewTempScope(s.cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp scope: %w", err)
	}
	defer func() {
		if err := scope.Release(); err != nil {
			logger.WarnContext(ctx, "temp cleanup failed", slog.Any("error", xerrors.New(err)))
		}
	}()

	clip, err := ValidateUpload(upload, s.cfg.MaxUploadBytes)
	if err != nil {
		return nil, err
	}

	if _, err := scope.CreateFile("verify", upload); err != nil {
		return nil, fmt.Errorf("failed to stage upload: %w", err)
	}

	signal, err := Condition(clip, s.cfg.Conditioner)
	if err != nil {
		return nil, err
	}

	report, err := Gate(signal, s.cfg.VerifyQuality)
	if err != nil {
		return nil, err
	}
	if report.Verdict == VerdictTooNoisy {
		logger.WarnContext(ctx, "noisy verification sample",
			slog.String("userID", userID),
			slog.Float64("snrDb", report.SNRDb))
	}

	gallery, err := s.users.VoiceGallery(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load voice gallery: %w", err)
	}
	if len(gallery) == 0 {
		return nil, ErrNoEnrollment
	}

	probe, err := s.embedder.Embed(ctx, signal)
	if err != nil {
		return nil, err
	}
	if err := ValidateEmbedding(probe); err != nil {
		return nil, fmt.Errorf("encoder returned invalid embedding: %w", err)
	}

	match, err := MatchGallery(probe, gallery, s.cfg.SimilarityThreshold)
	if err != nil {
		return nil, err
	}

	result := &models.VerificationResult{
		UserID:     userID,
		Similarity: match.Similarity,
		Matched:    match.Matched,
		Threshold:  match.Threshold,
		Quality:    toQualityInfo(report),
		LatencyMs:  float64(time.Since(started).Microseconds()) / 1000.0,
	}

	s.recordAttempt(ctx, result)

	return result, nil
}

// archiveRecording uploads the raw enrollment clip to the blob store.
// Failure is logged, never propagated: the archive is an audit aid, not a
// precondition of enrollment.
func (s *Service) archiveRecording(ctx context.Context, userID string, upload []byte) string {
	if s.blobs == nil {
		return ""
	}

	key := fmt.Sprintf("voice/%s/%s.wav", userID, uuid.NewString())
	url, err := s.blobs.Upload(ctx, upload, key)
	if err != nil {
		utils.GetLogger().WarnContext(ctx, "failed to archive enrollment recording",
			slog.String("userID", userID),
			slog.Any("error", xerrors.New(err)))
		return ""
	}
	return url
}

func (s *Service) recordAttempt(ctx context.Context, result *models.VerificationResult) {
	if s.attempts == nil {
		return
	}

	attempt := models.VerificationAttempt{
		UserID:     result.UserID,
		Timestamp:  time.Now(),
		Similarity: result.Similarity,
		Threshold:  result.Threshold,
		Matched:    result.Matched,
		SNRDb:      result.Quality.SNRDb,
	}
	if err := s.attempts.RecordAttempt(ctx, attempt); err != nil {
		utils.GetLogger().WarnContext(ctx, "failed to record verification attempt",
			slog.String("userID", result.UserID),
			slog.Any("error", xerrors.New(err)))
	}
}

func toQualityInfo(report QualityReport) models.QualityInfo {
	return models.QualityInfo{
		SNRDb:           report.SNRDb,
		DurationSeconds: report.DurationSeconds,
		Energy:          report.Energy,
		Verdict:         string(report.Verdict),
	}
}
