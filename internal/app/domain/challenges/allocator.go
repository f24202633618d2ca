package challenges

import (
	"math"

	"github.com/FACorreiaa/loci-challenges/internal/app/domain/poi"
	"github.com/FACorreiaa/loci-challenges/internal/app/models"
	"github.com/FACorreiaa/loci-challenges/internal/pkg/geo"
)

// placement is a chosen spot for a challenge that has not been written yet.
type placement struct {
	location  models.Location
	category  models.Category
	poiName   string
	distance  float64
	synthetic bool
}

// Allocator walks candidate POIs in order and accepts those that respect category quotas and
// the minimum spacing to every challenge already accepted in the batch.
type Allocator struct {
	minDistance float64
	capFor      func(models.Category) int
}

func NewAllocator(cfg Config) *Allocator {
	return &Allocator{minDistance: cfg.MinDistanceMeters, capFor: cfg.CapFor}
}

// Select accepts at most target placements from pois, which the caller has already shuffled.
func (a *Allocator) Select(origin models.Location, pois []models.POI, target int) []placement {
	accepted := make([]placement, 0, target)
	taken := make([]models.Location, 0, target)
	counts := make(map[models.Category]int)

	for _, p := range pois {
		if len(accepted) >= target {
			break
		}
		if !p.Location.Valid() {
			continue
		}
		category := poi.Classify(p.Tags)
		if counts[category] >= a.capFor(category) {
			continue
		}
		if geo.MinDistance(p.Location, taken) < a.minDistance {
			continue
		}
		counts[category]++
		taken = append(taken, p.Location)
		accepted = append(accepted, placement{
			location: p.Location,
			category: category,
			poiName:  p.Name(category),
			distance: geo.Distance(origin, p.Location),
		})
	}
	return accepted
}

// SelectOne returns the first POI lying strictly farther than separation from every occupied
// position. Category quotas do not apply.
func (a *Allocator) SelectOne(origin models.Location, pois []models.POI, occupied []models.Location, separation float64) (placement, bool) {
	for _, p := range pois {
		if !p.Location.Valid() {
			continue
		}
		if geo.MinDistance(p.Location, occupied) <= separation {
			continue
		}
		category := poi.Classify(p.Tags)
		return placement{
			location: p.Location,
			category: category,
			poiName:  p.Name(category),
			distance: geo.Distance(origin, p.Location),
		}, true
	}
	return placement{}, false
}

// Scatter places n synthetic challenges at random bearings inside band. Each one is kept at
// least minDistance away from taken and from the others; after the attempt budget runs out the
// best-separated candidate seen is used.
func (a *Allocator) Scatter(rnd *lockedRand, origin models.Location, taken []models.Location, n int, band DistanceBand, attempts int) []placement {
	if attempts <= 0 {
		attempts = 1
	}
	occupied := append([]models.Location(nil), taken...)
	out := make([]placement, 0, n)
	for range n {
		var best models.Location
		bestGap := -1.0
		for range attempts {
			candidate := geo.SyntheticOffset(origin, rnd.between(0, 2*math.Pi), rnd.between(band.MinMeters, band.MaxMeters))
			gap := geo.MinDistance(candidate, occupied)
			if gap > bestGap {
				best, bestGap = candidate, gap
			}
			if gap >= a.minDistance {
				break
			}
		}
		occupied = append(occupied, best)
		out = append(out, placement{
			location:  best,
			category:  models.CategoryRandom,
			poiName:   "Mystery Spot",
			distance:  geo.Distance(origin, best),
			synthetic: true,
		})
	}
	return out
}
