// Package challenges turns nearby points of interest into per-user pools of location
// challenges and keeps those pools topped up as challenges are completed.
package challenges

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/loci-challenges/internal/app/models"
)

// SystemCreatorID owns every generated challenge in the Challenge Store.
var SystemCreatorID = uuid.MustParse("00000000-0000-0000-0000-00000000c0de")

// ChallengeTypePublic scopes completion lookups to public challenges.
const ChallengeTypePublic = "public"

// DistanceBand is a [Min, Max] range of meters from the user.
type DistanceBand struct {
	MinMeters float64
	MaxMeters float64
}

// Config holds the engine parameters.
type Config struct {
	TargetCount                  int
	SearchRadiusMeters           float64
	// MinDistanceMeters separates challenges within one generated batch.
	MinDistanceMeters            float64
	// ReplacementMinDistanceMeters separates a replacement from the pool it tops up. Kept
	// separate from MinDistanceMeters on purpose.
	ReplacementMinDistanceMeters float64
	CategoryCaps                 map[models.Category]int
	DefaultCategoryCap           int
	TopUpBand                    DistanceBand
	StaticBand                   DistanceBand
	SyntheticPlacementAttempts   int
	PoolTTL                      time.Duration
	CompletedWindow              time.Duration
	MaxParticipants              int
	EnrichConcurrency            int
	DescriptionTimeout           time.Duration
	CreatorID                    uuid.UUID
	ReconcileEphemeral           bool
	// RefreshTimeout bounds one refresh. Refreshes outlive the request that started them.
	RefreshTimeout               time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		TargetCount:                  10,
		SearchRadiusMeters:           3000,
		MinDistanceMeters:            100,
		ReplacementMinDistanceMeters: 200,
		CategoryCaps:                 map[models.Category]int{models.CategoryRestaurant: 1},
		DefaultCategoryCap:           2,
		TopUpBand:                    DistanceBand{MinMeters: 200, MaxMeters: 1200},
		StaticBand:                   DistanceBand{MinMeters: 100, MaxMeters: 1600},
		SyntheticPlacementAttempts:   40,
		PoolTTL:                      time.Hour,
		CompletedWindow:              7 * 24 * time.Hour,
		MaxParticipants:              50,
		EnrichConcurrency:            4,
		DescriptionTimeout:           10 * time.Second,
		CreatorID:                    SystemCreatorID,
		ReconcileEphemeral:           true,
		RefreshTimeout:               90 * time.Second,
	}
}

// Validate rejects configurations the engine cannot honor.
func (c Config) Validate() error {
	switch {
	case c.TargetCount <= 0:
		return fmt.Errorf("%w: target count must be positive", models.ErrValidation)
	case c.SearchRadiusMeters <= 0:
		return fmt.Errorf("%w: search radius must be positive", models.ErrValidation)
	case c.MinDistanceMeters < 0 || c.ReplacementMinDistanceMeters < 0:
		return fmt.Errorf("%w: minimum distances cannot be negative", models.ErrValidation)
	case c.DefaultCategoryCap <= 0:
		return fmt.Errorf("%w: default category cap must be positive", models.ErrValidation)
	case c.TopUpBand.MinMeters <= 0 || c.TopUpBand.MaxMeters < c.TopUpBand.MinMeters:
		return fmt.Errorf("%w: invalid top-up band", models.ErrValidation)
	case c.StaticBand.MinMeters <= 0 || c.StaticBand.MaxMeters < c.StaticBand.MinMeters:
		return fmt.Errorf("%w: invalid static band", models.ErrValidation)
	case c.PoolTTL <= 0:
		return fmt.Errorf("%w: pool ttl must be positive", models.ErrValidation)
	case c.RefreshTimeout <= 0:
		return fmt.Errorf("%w: refresh timeout must be positive", models.ErrValidation)
	}
	return nil
}

// CapFor returns the per-batch quota of a category.
func (c Config) CapFor(category models.Category) int {
	if limit, ok := c.CategoryCaps[category]; ok {
		return limit
	}
	return c.DefaultCategoryCap
}

// Option customizes engine components.
type Option func(*engineOptions)

type engineOptions struct {
	rnd *rand.Rand
	now func() time.Time
}

// WithRand injects the random source used for shuffling and synthetic placement.
func WithRand(r *rand.Rand) Option {
	return func(o *engineOptions) { o.rnd = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *engineOptions) { o.now = now }
}

func applyOptions(opts []Option) engineOptions {
	o := engineOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rnd == nil {
		o.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return o
}
