package challenges

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-challenges/internal/app/domain/descriptions"
	"github.com/FACorreiaa/loci-challenges/internal/app/models"
)

const (
	minReward = 65
	maxReward = 130
)

// Synthesizer produces the title, description and reward of a challenge. It never fails: any
// Description Service problem falls back to the category template.
type Synthesizer struct {
	describer descriptions.Describer
	timeout   time.Duration
	logger    *zap.Logger
}

func NewSynthesizer(describer descriptions.Describer, timeout time.Duration, logger *zap.Logger) *Synthesizer {
	if describer == nil {
		describer = descriptions.DisabledDescriber{}
	}
	return &Synthesizer{describer: describer, timeout: timeout, logger: logger}
}

func (s *Synthesizer) Synthesize(ctx context.Context, category models.Category, poiName string, distanceMeters float64) models.Draft {
	ctx, span := otel.Tracer("ChallengeSynthesizer").Start(ctx, "Synthesize", trace.WithAttributes(
		attribute.String("challenge.category", string(category)),
	))
	defer span.End()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.describer.Describe(ctx, descriptions.Request{
		Category:       category,
		POIName:        poiName,
		DistanceMeters: distanceMeters,
	})
	switch {
	case err != nil:
		level := s.logger.Warn
		if errors.Is(err, context.DeadlineExceeded) {
			level = s.logger.Info
		}
		level("Description service failed, using template",
			zap.String("category", string(category)),
			zap.String("poi", poiName),
			zap.Error(err))
	case resp.Fallback:
		s.logger.Debug("Description service requested fallback", zap.String("category", string(category)))
	case resp.Title != "" && resp.Description != "" && resp.Reward > 0:
		span.SetAttributes(attribute.Bool("description.generated", true))
		return models.Draft{
			Title:       resp.Title,
			Description: resp.Description,
			Reward:      clampReward(resp.Reward),
		}
	}
	span.SetAttributes(attribute.Bool("description.generated", false))
	return FallbackDraft(category, poiName)
}

func clampReward(r int) int {
	return min(max(r, minReward), maxReward)
}
