package challenges

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/FACorreiaa/loci-challenges/internal/app/models"
)

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero target", mutate: func(c *Config) { c.TargetCount = 0 }},
		{name: "zero radius", mutate: func(c *Config) { c.SearchRadiusMeters = 0 }},
		{name: "negative spacing", mutate: func(c *Config) { c.MinDistanceMeters = -1 }},
		{name: "zero default cap", mutate: func(c *Config) { c.DefaultCategoryCap = 0 }},
		{name: "inverted band", mutate: func(c *Config) { c.TopUpBand = DistanceBand{MinMeters: 500, MaxMeters: 100} }},
		{name: "zero static band", mutate: func(c *Config) { c.StaticBand = DistanceBand{} }},
		{name: "zero ttl", mutate: func(c *Config) { c.PoolTTL = 0 }},
		{name: "zero refresh timeout", mutate: func(c *Config) { c.RefreshTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), models.ErrValidation)
		})
	}
}

func TestConfig_CapFor(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1, cfg.CapFor(models.CategoryRestaurant))
	assert.Equal(t, 2, cfg.CapFor(models.CategoryCafe))
	assert.Equal(t, 2, cfg.CapFor(models.CategoryStreet))
}

func TestViewerRegistry(t *testing.T) {
	clock := newFakeClock()
	v := NewViewerRegistry(time.Hour, clock.Now)

	v.Touch("", prague)
	assert.Zero(t, v.Len())

	v.Touch("user-1", prague)
	got, ok := v.Lookup("user-1")
	assert.True(t, ok)
	assert.Equal(t, prague, got.Location)

	_, ok = v.Lookup("user-2")
	assert.False(t, ok)

	clock.Advance(61 * time.Minute)
	_, ok = v.Lookup("user-1")
	assert.False(t, ok)
	assert.Zero(t, v.Len())
}
