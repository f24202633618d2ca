package challenges

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-challenges/internal/app/domain/poi"
	"github.com/FACorreiaa/loci-challenges/internal/app/models"
	"github.com/FACorreiaa/loci-challenges/internal/app/observability/metrics"
)

type tier string

const (
	tierLive   tier = "live"
	tierTopUp  tier = "live_topup"
	tierStatic tier = "static"
)

// PoolGenerator builds a full batch of challenges for a location.
type PoolGenerator struct {
	pois    poi.Service
	alloc   *Allocator
	builder *builder
	rnd     *lockedRand
	cfg     Config
	logger  *zap.Logger
}

func NewPoolGenerator(pois poi.Service, synth *Synthesizer, store Repository, cfg Config, logger *zap.Logger, opts ...Option) *PoolGenerator {
	o := applyOptions(opts)
	return &PoolGenerator{
		pois:    pois,
		alloc:   NewAllocator(cfg),
		builder: &builder{synth: synth, store: store, cfg: cfg, now: o.now, logger: logger},
		rnd:     newLockedRand(o.rnd),
		cfg:     cfg,
		logger:  logger,
	}
}

// GeneratePool returns exactly targetCount challenges sorted by distance from userLocation. It
// degrades from live POIs, to live POIs plus synthetic top-up, to a fully synthetic pool when
// the POI Service is unavailable. Only a missing location or a cancelled context is an error.
func (g *PoolGenerator) GeneratePool(ctx context.Context, userLocation models.Location, targetCount int) ([]models.Challenge, error) {
	ctx, span := otel.Tracer("PoolGenerator").Start(ctx, "GeneratePool", trace.WithAttributes(
		attribute.String("user.location", userLocation.String()),
		attribute.Int("target.count", targetCount),
	))
	defer span.End()

	if !userLocation.Valid() {
		span.SetStatus(codes.Error, "missing location")
		return nil, models.ErrMissingLocation
	}
	if targetCount <= 0 {
		return nil, fmt.Errorf("%w: target count must be positive", models.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var placements []placement
	current := tierLive
	pois, err := g.queryPOIs(ctx, userLocation)
	switch {
	case err != nil:
		g.logger.Warn("POI service unavailable, generating static pool",
			zap.String("location", userLocation.String()), zap.Error(err))
		current = tierStatic
	case len(pois) == 0:
		g.logger.Info("No POIs near location, generating static pool", zap.String("location", userLocation.String()))
		current = tierStatic
	default:
		placements = g.alloc.Select(userLocation, g.rnd.shuffled(pois), targetCount)
	}

	if missing := targetCount - len(placements); missing > 0 {
		band := g.cfg.StaticBand
		if current == tierLive {
			current = tierTopUp
			band = g.cfg.TopUpBand
		}
		placements = append(placements, g.alloc.Scatter(g.rnd, userLocation, locationsOf(placements), missing, band, g.cfg.SyntheticPlacementAttempts)...)
	}

	pool := g.builder.buildAll(ctx, placements)
	slices.SortStableFunc(pool, byDistance)
	if len(pool) > targetCount {
		pool = pool[:targetCount]
	}

	span.SetAttributes(attribute.String("pool.tier", string(current)), attribute.Int("pool.size", len(pool)))
	metrics.Get().PoolsGeneratedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", string(current))))
	g.logger.Info("Generated challenge pool",
		zap.String("location", userLocation.String()),
		zap.String("tier", string(current)),
		zap.Int("count", len(pool)))
	return pool, nil
}

func (g *PoolGenerator) queryPOIs(ctx context.Context, loc models.Location) ([]models.POI, error) {
	start := time.Now()
	pois, err := g.pois.Nearby(ctx, loc, g.cfg.SearchRadiusMeters)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.Get().POIQueryDurationSeconds.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)))
	return pois, err
}

func locationsOf(placements []placement) []models.Location {
	out := make([]models.Location, 0, len(placements))
	for _, p := range placements {
		out = append(out, p.location)
	}
	return out
}

func byDistance(a, b models.Challenge) int {
	return cmp.Compare(a.DistanceMeters, b.DistanceMeters)
}
