package challenges

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/FACorreiaa/loci-challenges/internal/app/models"
	"github.com/FACorreiaa/loci-challenges/internal/app/observability/metrics"
)

// builder turns placements into challenges: it synthesizes content and writes each challenge to
// the Challenge Store. A failed write leaves an ephemeral challenge behind instead of failing the
// batch.
type builder struct {
	synth  *Synthesizer
	store  Repository
	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

func (b *builder) params(c models.Challenge) models.CreateChallengeParams {
	return models.CreateChallengeParams{
		CreatorID:       b.cfg.CreatorID,
		Title:           c.Title,
		Description:     c.Description,
		Reward:          c.Reward,
		Location:        c.Location,
		Category:        c.Category,
		POIName:         c.POIName,
		MaxParticipants: c.MaxParticipants,
		IsPublic:        true,
	}
}

func (b *builder) build(ctx context.Context, p placement) models.Challenge {
	var draft models.Draft
	if p.synthetic {
		draft = FallbackDraft(p.category, p.poiName)
	} else {
		draft = b.synth.Synthesize(ctx, p.category, p.poiName, p.distance)
	}

	c := models.Challenge{
		Title:             draft.Title,
		Description:       draft.Description,
		Location:          p.location,
		Reward:            draft.Reward,
		Category:          p.category,
		DistanceMeters:    p.distance,
		POIName:           p.poiName,
		MaxParticipants:   b.cfg.MaxParticipants,
		RecentCompletions: []models.Completion{},
		Synthetic:         p.synthetic,
		CreatedAt:         b.now().UTC(),
	}
	return b.persist(ctx, c)
}

// persist writes c to the store. On failure the returned copy carries a local id and the
// ephemeral durability tag.
func (b *builder) persist(ctx context.Context, c models.Challenge) models.Challenge {
	origin := "poi"
	if c.Synthetic {
		origin = "synthetic"
	}

	id, err := b.store.CreateChallenge(ctx, b.params(c))
	if err != nil {
		b.logger.Warn("Failed to persist challenge, keeping it as ephemeral",
			zap.String("category", string(c.Category)),
			zap.String("poi", c.POIName),
			zap.Error(err))
		metrics.Get().PersistFailuresTotal.Add(ctx, 1)
		if c.ID == "" {
			c.ID = models.EphemeralIDPrefix + uuid.NewString()
		}
		c.Durability = models.DurabilityEphemeral
	} else {
		c.ID = id
		c.Durability = models.DurabilityPersisted
	}
	metrics.Get().ChallengesCreatedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("durability", string(c.Durability)),
		attribute.String("origin", origin),
	))
	return c
}

// buildAll enriches placements concurrently and keeps their order.
func (b *builder) buildAll(ctx context.Context, placements []placement) []models.Challenge {
	out := make([]models.Challenge, len(placements))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(b.cfg.EnrichConcurrency, 1))
	for i, p := range placements {
		g.Go(func() error {
			out[i] = b.build(gctx, p)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
