package challenges

import (
	"math/rand/v2"
	"sync"

	"github.com/FACorreiaa/loci-challenges/internal/app/models"
)

// lockedRand serializes access to a rand.Rand shared by concurrent requests.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand(r *rand.Rand) *lockedRand {
	return &lockedRand{r: r}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// between draws uniformly from [lo, hi).
func (l *lockedRand) between(lo, hi float64) float64 {
	return lo + l.Float64()*(hi-lo)
}

// shuffled returns a uniformly permuted copy of pois.
func (l *lockedRand) shuffled(pois []models.POI) []models.POI {
	out := append([]models.POI(nil), pois...)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
