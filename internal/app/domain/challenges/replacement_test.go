package challenges

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-challenges/internal/app/domain/descriptions"
	"github.com/FACorreiaa/loci-challenges/internal/app/models"
	"github.com/FACorreiaa/loci-challenges/internal/pkg/geo"
)

func newTestReplacer(pois *fakePOIs, store *fakeStore) *ReplacementGenerator {
	synth := NewSynthesizer(descriptions.DisabledDescriber{}, 0, zap.NewNop())
	return NewReplacementGenerator(pois, synth, store, DefaultConfig(), zap.NewNop(), seeded())
}

func TestGenerateReplacement_Accepts(t *testing.T) {
	store := newFakeStore()
	pois := &fakePOIs{pois: []models.POI{
		poiAt("near", prague, 0, 120, map[string]string{"amenity": "cafe"}),
		poiAt("far", prague, 180, 900, map[string]string{"leisure": "park", "name": "Letná"}),
	}}
	occupied := []models.Location{prague, geo.SyntheticOffset(prague, 0, 250)}

	c, err := newTestReplacer(pois, store).GenerateReplacement(context.Background(), prague, occupied)
	require.NoError(t, err)
	require.NotNil(t, c)

	assert.Equal(t, "Letná", c.POIName)
	assert.Equal(t, models.CategoryPark, c.Category)
	assert.Equal(t, models.DurabilityPersisted, c.Durability)
	assert.Greater(t, geo.MinDistance(c.Location, occupied), DefaultConfig().ReplacementMinDistanceMeters)
	assert.Equal(t, 1, store.createdCount())
}

func TestGenerateReplacement_IgnoresQuota(t *testing.T) {
	restaurant := map[string]string{"amenity": "restaurant"}
	pois := &fakePOIs{pois: []models.POI{poiAt("r", prague, 90, 700, restaurant)}}
	occupied := []models.Location{geo.SyntheticOffset(prague, 0, 300)}

	c, err := newTestReplacer(pois, newFakeStore()).GenerateReplacement(context.Background(), prague, occupied)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, models.CategoryRestaurant, c.Category)
}

func TestGenerateReplacement_Nil(t *testing.T) {
	tests := []struct {
		name string
		pois *fakePOIs
	}{
		{name: "poi service failure", pois: &fakePOIs{err: errors.New("504 gateway timeout")}},
		{name: "no pois", pois: &fakePOIs{}},
		{
			name: "every poi too close",
			pois: &fakePOIs{pois: []models.POI{
				poiAt("a", prague, 0, 100, nil),
				poiAt("b", prague, 90, 150, nil),
				poiAt("c", prague, 270, 190, nil),
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			c, err := newTestReplacer(tt.pois, store).GenerateReplacement(context.Background(), prague, []models.Location{prague})
			require.NoError(t, err)
			assert.Nil(t, c)
			assert.Zero(t, store.createdCount())
		})
	}
}

func TestGenerateReplacement_PersistenceFailure(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("unique violation")
	pois := &fakePOIs{pois: []models.POI{poiAt("far", prague, 45, 800, nil)}}

	c, err := newTestReplacer(pois, store).GenerateReplacement(context.Background(), prague, nil)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, models.DurabilityEphemeral, c.Durability)
	assert.False(t, c.Durable())
}

func TestGenerateReplacement_MissingLocation(t *testing.T) {
	pois := &fakePOIs{}
	_, err := newTestReplacer(pois, newFakeStore()).GenerateReplacement(context.Background(), models.Location{}, nil)
	assert.ErrorIs(t, err, models.ErrMissingLocation)
	assert.Zero(t, pois.calls)
}
