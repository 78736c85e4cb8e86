package voice

// Background Enrollment Augmentation
//
// Enrollment responds as soon as the seed embedding is stored; the gallery
// is then widened out of band with the time-stretch and pitch-shift
// variants. Each variant is an independent, idempotent unit of work keyed
// by (user, variant kind): one variant failing never cancels the other, a
// duplicate schedule while a job is in flight is dropped, and every failure
// is swallowed after logging - the caller already got its answer.
//
// Concurrency is bounded by an errgroup limit so a burst of enrollments
// cannot pile unbounded embedding calls onto the encoder.

import (
	"context"
	"log/slog"
	"sync"

	"voice-auth/utils"
	"voice-auth/wavio"

	"github.com/mdobak/go-xerrors"
	"golang.org/x/sync/errgroup"
)

// AugmenterWorkers bounds concurrent augmentation jobs.
const AugmenterWorkers = 2

// Augmenter derives perturbed gallery entries in the background.
type Augmenter struct {
	cfg      Config
	embedder Embedder
	users    UserStore

	group *errgroup.Group

	mu       sync.Mutex
	inflight map[string]bool
}

// NewAugmenter builds the background augmenter sharing the pipeline's
// embedder and user store.
func NewAugmenter(cfg Config, embedder Embedder, users UserStore) *Augmenter {
	group := new(errgroup.Group)
	group.SetLimit(AugmenterWorkers)
	return &Augmenter{
		cfg:      cfg,
		embedder: embedder,
		users:    users,
		group:    group,
		inflight: make(map[string]bool),
	}
}

// Schedule queues both variants for a freshly enrolled signal. It never
// blocks: when every worker slot is busy the variant is dropped with a
// warning, since the enrollment response has already gone out and a thinner
// gallery beats a stalled request handler.
func (a *Augmenter) Schedule(userID string, seed ConditionedSignal) {
	// The seed belongs to the enrollment request's scope; copy it so the
	// background jobs own their input.
	samples := make([]float64, len(seed.Samples))
	copy(samples, seed.Samples)
	owned := ConditionedSignal{Samples: samples, SampleRate: seed.SampleRate, Level: seed.Level}

	for _, kind := range []VariantKind{VariantTimeStretch, VariantPitchShift} {
		kind := kind
		if !a.tryAcquire(userID, kind) {
			continue
		}
		started := a.group.TryGo(func() error {
			defer a.release(userID, kind)
			a.runVariant(context.Background(), userID, owned, kind)
			return nil
		})
		if !started {
			a.release(userID, kind)
			utils.GetLogger().Warn("augmentation workers saturated, dropping variant",
				slog.String("userID", userID),
				slog.String("variant", string(kind)))
		}
	}
}

// Wait drains in-flight jobs. Used at shutdown and by tests.
func (a *Augmenter) Wait() {
	_ = a.group.Wait()
}

func (a *Augmenter) tryAcquire(userID string, kind VariantKind) bool {
	key := userID + "|" + string(kind)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inflight[key] {
		return false
	}
	a.inflight[key] = true
	return true
}

func (a *Augmenter) release(userID string, kind VariantKind) {
	key := userID + "|" + string(kind)
	a.mu.Lock()
	delete(a.inflight, key)
	a.mu.Unlock()
}

// runVariant synthesizes one perturbation and pushes its embedding into the
// gallery. Every failure path logs and returns; augmentation is best-effort
// by contract.
func (a *Augmenter) runVariant(ctx context.Context, userID string, seed ConditionedSignal, kind VariantKind) {
	logger := utils.GetLogger()

	variant, err := SynthesizeVariant(seed, kind)
	if err != nil {
		logger.WarnContext(ctx, "variant synthesis failed",
			slog.String("userID", userID),
			slog.String("variant", string(kind)),
			slog.Any("error", xerrors.New(err)))
		return
	}

	// The perturbed audio goes through the same conditioning and quality
	// gate as a fresh upload so the gallery never accumulates entries the
	// live pipeline would have rejected.
	clip := &wavio.Clip{Samples: variant.Samples, SampleRate: variant.SampleRate, Channels: 1}
	signal, err := Condition(clip, a.cfg.Conditioner)
	if err != nil {
		logger.WarnContext(ctx, "variant conditioning failed",
			slog.String("userID", userID),
			slog.String("variant", string(kind)),
			slog.Any("error", xerrors.New(err)))
		return
	}

	if _, err := Gate(signal, a.cfg.EnrollQuality); err != nil {
		logger.WarnContext(ctx, "variant rejected by quality gate",
			slog.String("userID", userID),
			slog.String("variant", string(kind)),
			slog.Any("error", xerrors.New(err)))
		return
	}

	embeddingVec, err := a.embedder.Embed(ctx, signal)
	if err != nil {
		logger.WarnContext(ctx, "variant embedding failed",
			slog.String("userID", userID),
			slog.String("variant", string(kind)),
			slog.Any("error", xerrors.New(err)))
		return
	}
	if err := ValidateEmbedding(embeddingVec); err != nil {
		logger.WarnContext(ctx, "variant produced degenerate embedding",
			slog.String("userID", userID),
			slog.String("variant", string(kind)),
			slog.Any("error", xerrors.New(err)))
		return
	}

	if a.cfg.MaxGallerySize > 0 {
		gallery, err := a.users.VoiceGallery(ctx, userID)
		if err == nil && len(gallery) >= a.cfg.MaxGallerySize {
			logger.WarnContext(ctx, "gallery at capacity, skipping append",
				slog.String("userID", userID),
				slog.Int("gallerySize", len(gallery)))
			return
		}
	}

	if err := a.users.AppendVoiceEmbedding(ctx, userID, embeddingVec); err != nil {
		logger.WarnContext(ctx, "gallery append failed",
			slog.String("userID", userID),
			slog.String("variant", string(kind)),
			slog.Any("error", xerrors.New(err)))
		return
	}

	logger.InfoContext(ctx, "gallery augmented",
		slog.String("userID", userID),
		slog.String("variant", string(kind)))
}
