package challenges

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-challenges/internal/app/domain/poi"
	"github.com/FACorreiaa/loci-challenges/internal/app/models"
	"github.com/FACorreiaa/loci-challenges/internal/app/observability/metrics"
)

// ReplacementGenerator produces one challenge to take the place of a completed one.
type ReplacementGenerator struct {
	pois    poi.Service
	alloc   *Allocator
	builder *builder
	rnd     *lockedRand
	cfg     Config
	logger  *zap.Logger
}

func NewReplacementGenerator(pois poi.Service, synth *Synthesizer, store Repository, cfg Config, logger *zap.Logger, opts ...Option) *ReplacementGenerator {
	o := applyOptions(opts)
	return &ReplacementGenerator{
		pois:    pois,
		alloc:   NewAllocator(cfg),
		builder: &builder{synth: synth, store: store, cfg: cfg, now: o.now, logger: logger},
		rnd:     newLockedRand(o.rnd),
		cfg:     cfg,
		logger:  logger,
	}
}

// GenerateReplacement returns a challenge lying strictly farther than the replacement spacing
// from every occupied position, or nil when the POI Service fails or nothing qualifies. There is
// no synthetic fallback here.
func (r *ReplacementGenerator) GenerateReplacement(ctx context.Context, userLocation models.Location, occupied []models.Location) (*models.Challenge, error) {
	ctx, span := otel.Tracer("ReplacementGenerator").Start(ctx, "GenerateReplacement", trace.WithAttributes(
		attribute.String("user.location", userLocation.String()),
		attribute.Int("occupied.count", len(occupied)),
	))
	defer span.End()

	if !userLocation.Valid() {
		return nil, models.ErrMissingLocation
	}

	pois, err := r.pois.Nearby(ctx, userLocation, r.cfg.SearchRadiusMeters)
	if err != nil {
		r.logger.Warn("POI service unavailable, no replacement", zap.Error(err))
		r.record(ctx, "poi_unavailable")
		return nil, nil
	}

	p, ok := r.alloc.SelectOne(userLocation, r.rnd.shuffled(pois), occupied, r.cfg.ReplacementMinDistanceMeters)
	if !ok {
		r.logger.Debug("No POI qualifies as replacement",
			zap.String("location", userLocation.String()),
			zap.Int("candidates", len(pois)))
		r.record(ctx, "exhausted")
		return nil, nil
	}

	c := r.builder.build(ctx, p)
	r.record(ctx, "accepted")
	span.SetAttributes(attribute.String("challenge.id", c.ID))
	return &c, nil
}

func (r *ReplacementGenerator) record(ctx context.Context, outcome string) {
	metrics.Get().ReplacementAttemptsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
