package challenges

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-challenges/internal/app/models"
	"github.com/FACorreiaa/loci-challenges/internal/app/observability/metrics"
	"github.com/FACorreiaa/loci-challenges/internal/pkg/cache"
	"github.com/FACorreiaa/loci-challenges/internal/pkg/geo"
)

// Pool sources reported by Refresh.
const (
	SourceCache     = "cache"
	SourceGenerated = "generated"
	SourceStore     = "store"
)

// PoolSource generates a full pool for a location.
type PoolSource interface {
	GeneratePool(ctx context.Context, userLocation models.Location, targetCount int) ([]models.Challenge, error)
}

// Replacer generates one replacement challenge.
type Replacer interface {
	GenerateReplacement(ctx context.Context, userLocation models.Location, occupied []models.Location) (*models.Challenge, error)
}

// PoolView is what a user sees after a refresh.
type PoolView struct {
	Challenges   []models.Challenge `json:"challenges"`
	Source       string             `json:"source"`
	Bucket       string             `json:"bucket"`
	Target       int                `json:"target"`
	Replacements int                `json:"replacements"`
	GeneratedAt  time.Time          `json:"generated_at"`
}

// Maintainer keeps each location bucket's cached pool topped up for every user looking at it.
type Maintainer struct {
	pools     cache.PoolStore
	store     Repository
	generator PoolSource
	replacer  Replacer
	viewers   *ViewerRegistry
	builder   *builder
	cfg       Config
	now       func() time.Time
	logger    *zap.Logger
}

func NewMaintainer(pools cache.PoolStore, store Repository, generator PoolSource, replacer Replacer,
	viewers *ViewerRegistry, cfg Config, logger *zap.Logger, opts ...Option,
) *Maintainer {
	o := applyOptions(opts)
	return &Maintainer{
		pools:     pools,
		store:     store,
		generator: generator,
		replacer:  replacer,
		viewers:   viewers,
		builder:   &builder{store: store, cfg: cfg, now: o.now, logger: logger},
		cfg:       cfg,
		now:       o.now,
		logger:    logger,
	}
}

// topUpState is the immutable accumulator of the replacement fold. Each replacement joins the
// occupied set before the next one is requested, so replacements are spaced from each other too.
type topUpState struct {
	occupied []models.Location
	accepted []models.Challenge
	misses   int
}

func (s topUpState) apply(replacement *models.Challenge) topUpState {
	if replacement == nil {
		return topUpState{occupied: s.occupied, accepted: s.accepted, misses: s.misses + 1}
	}
	return topUpState{
		occupied: append(slices.Clone(s.occupied), replacement.Location),
		accepted: append(slices.Clone(s.accepted), *replacement),
		misses:   s.misses,
	}
}

// Refresh returns the pool userID sees at loc. It reuses the bucket's cached pool while fresh,
// hides challenges the user completed recently and tops the view back up to the target with
// replacements, which are folded back into the cached pool.
//
// Cancelling ctx does not stop a refresh: generated challenges are still stored and cached.
// Only RefreshTimeout bounds it.
func (m *Maintainer) Refresh(ctx context.Context, userID string, loc models.Location) (PoolView, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.RefreshTimeout)
	defer cancel()

	ctx, span := otel.Tracer("PoolMaintainer").Start(ctx, "Refresh", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("user.location", loc.String()),
	))
	defer span.End()

	if !loc.Valid() {
		return PoolView{}, models.ErrMissingLocation
	}

	key := geo.BucketKey(loc)
	entry, source, err := m.loadPool(ctx, key, loc)
	if err != nil {
		return PoolView{}, err
	}
	dirty := false
	if source == SourceCache && m.cfg.ReconcileEphemeral {
		entry.Pool, dirty = m.reconcile(ctx, entry.Pool)
	}

	completed := m.completedIDs(ctx, userID)
	visible := make([]models.Challenge, 0, len(entry.Pool))
	for _, c := range entry.Pool {
		if _, done := completed[c.ID]; !done {
			visible = append(visible, c)
		}
	}

	// Hidden completed challenges stay in the cached pool, so they still occupy their spots.
	state := topUpState{occupied: models.Locations(entry.Pool)}
	for range m.cfg.TargetCount - len(visible) {
		if ctx.Err() != nil {
			break
		}
		replacement, err := m.replacer.GenerateReplacement(ctx, loc, state.occupied)
		if err != nil {
			m.logger.Warn("Replacement generation failed", zap.String("bucket", key), zap.Error(err))
			replacement = nil
		}
		state = state.apply(replacement)
	}
	visible = append(visible, state.accepted...)

	if source != SourceStore && (len(state.accepted) > 0 || dirty) {
		entry.Pool = append(slices.Clone(entry.Pool), state.accepted...)
		if err := m.pools.Set(ctx, key, entry); err != nil {
			m.logger.Warn("Failed to write back challenge pool", zap.String("bucket", key), zap.Error(err))
		}
	}

	m.viewers.Touch(userID, loc)

	slices.SortStableFunc(visible, func(a, b models.Challenge) int {
		return cmp.Compare(geo.Distance(loc, a.Location), geo.Distance(loc, b.Location))
	})
	if len(visible) > m.cfg.TargetCount {
		visible = visible[:m.cfg.TargetCount]
	}

	span.SetAttributes(
		attribute.String("pool.source", source),
		attribute.Int("pool.visible", len(visible)),
		attribute.Int("pool.replacements", len(state.accepted)),
	)
	if state.misses > 0 {
		m.logger.Info("Pool below target, replacements exhausted",
			zap.String("bucket", key),
			zap.Int("visible", len(visible)),
			zap.Int("target", m.cfg.TargetCount))
	}

	return PoolView{
		Challenges:   visible,
		Source:       source,
		Bucket:       key,
		Target:       m.cfg.TargetCount,
		Replacements: len(state.accepted),
		GeneratedAt:  entry.Timestamp,
	}, nil
}

// loadPool returns the fresh cached entry for key, or generates and caches a new one. When the
// generator fails the Challenge Store is read instead and nothing is cached.
func (m *Maintainer) loadPool(ctx context.Context, key string, loc models.Location) (models.PoolEntry, string, error) {
	entry, found, err := m.pools.Get(ctx, key)
	if err != nil {
		m.logger.Warn("Pool cache lookup failed", zap.String("bucket", key), zap.Error(err))
		found = false
	}
	now := m.now()
	if found && now.Sub(entry.Timestamp) < m.cfg.PoolTTL {
		m.recordLookup(ctx, "hit")
		return entry, SourceCache, nil
	}
	if found {
		m.recordLookup(ctx, "expired")
	} else {
		m.recordLookup(ctx, "miss")
	}

	// PoolGenerator degrades to synthetic pools instead of failing; it only errors on input
	// Refresh already rejects or once RefreshTimeout has passed. The store read covers other
	// PoolSource implementations.
	pool, err := m.generator.GeneratePool(ctx, loc, m.cfg.TargetCount)
	if err != nil {
		if ctx.Err() != nil {
			return models.PoolEntry{}, "", ctx.Err()
		}
		m.logger.Warn("Pool generation failed, reading stored challenges", zap.String("bucket", key), zap.Error(err))
		stored, serr := m.store.ListNearbyChallenges(ctx, loc, m.cfg.SearchRadiusMeters/1000)
		if serr != nil {
			return models.PoolEntry{}, "", serr
		}
		return models.PoolEntry{Pool: stored, Timestamp: now, Location: loc}, SourceStore, nil
	}

	entry = models.PoolEntry{Pool: pool, Timestamp: now, Location: loc}
	if err := m.pools.Set(ctx, key, entry); err != nil {
		m.logger.Warn("Failed to cache challenge pool", zap.String("bucket", key), zap.Error(err))
	}
	return entry, SourceGenerated, nil
}

// completedIDs returns the user's recently completed challenge ids. Anonymous users and store
// failures yield an empty set.
func (m *Maintainer) completedIDs(ctx context.Context, userID string) map[string]struct{} {
	if userID == "" {
		return nil
	}
	ids, err := m.store.GetUserCompletedChallengeIDs(ctx, userID, ChallengeTypePublic, m.now().Add(-m.cfg.CompletedWindow))
	if err != nil {
		m.logger.Warn("Failed to load completed challenges, showing the full pool",
			zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// reconcile makes one persist attempt for each ephemeral challenge in pool. Challenges that get
// stored are replaced by persisted copies; the rest stay ephemeral until the next refresh.
func (m *Maintainer) reconcile(ctx context.Context, pool []models.Challenge) ([]models.Challenge, bool) {
	var out []models.Challenge
	for i, c := range pool {
		if c.Durable() || !strings.HasPrefix(c.ID, models.EphemeralIDPrefix) {
			continue
		}
		stored := m.builder.persist(ctx, c)
		if !stored.Durable() {
			continue
		}
		if out == nil {
			out = slices.Clone(pool)
		}
		out[i] = stored
		m.logger.Info("Reconciled ephemeral challenge", zap.String("local_id", c.ID), zap.String("id", stored.ID))
	}
	if out == nil {
		return pool, false
	}
	return out, true
}

// HandleCompletion refreshes the pool of the user who completed a challenge, if that user has
// been seen recently. Events for unknown users are ignored.
func (m *Maintainer) HandleCompletion(ctx context.Context, evt models.ChallengeCompletedEvent) error {
	viewer, ok := m.viewers.Lookup(evt.UserID)
	if !ok {
		m.logger.Debug("Ignoring completion for unknown viewer", zap.String("user_id", evt.UserID))
		return nil
	}
	_, err := m.Refresh(ctx, evt.UserID, viewer.Location)
	return err
}

func (m *Maintainer) recordLookup(ctx context.Context, result string) {
	metrics.Get().PoolCacheLookupsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
