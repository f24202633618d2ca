package challenges

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/FACorreiaa/loci-challenges/internal/app/models"
	"github.com/FACorreiaa/loci-challenges/internal/pkg/geo"
)

var prague = models.Location{Latitude: 50.0755, Longitude: 14.4378}

func seeded() Option {
	return WithRand(rand.New(rand.NewPCG(42, 7)))
}

func poiAt(id string, origin models.Location, bearingDeg, meters float64, tags map[string]string) models.POI {
	return models.POI{
		ID:       id,
		Location: geo.SyntheticOffset(origin, bearingDeg*math.Pi/180, meters),
		Tags:     tags,
	}
}

type fakePOIs struct {
	mu    sync.Mutex
	pois  []models.POI
	err   error
	calls int
}

func (f *fakePOIs) Nearby(_ context.Context, _ models.Location, _ float64) ([]models.POI, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.POI(nil), f.pois...), nil
}

type fakeStore struct {
	mu             sync.Mutex
	next           int
	createErr      error
	created        []models.CreateChallengeParams
	completed      map[string][]string
	completedErr   error
	completedCalls int
	nearby         []models.Challenge
	nearbyErr      error
	// honorCtx fails writes on a done context, like pgx does.
	honorCtx       bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{completed: map[string][]string{}}
}

func (f *fakeStore) CreateChallenge(ctx context.Context, params models.CreateChallengeParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.honorCtx && ctx.Err() != nil {
		return "", ctx.Err()
	}
	if f.createErr != nil {
		return "", f.createErr
	}
	f.next++
	f.created = append(f.created, params)
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", f.next), nil
}

func (f *fakeStore) GetUserCompletedChallengeIDs(_ context.Context, userID, _ string, _ time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completedCalls++
	if f.completedErr != nil {
		return nil, f.completedErr
	}
	return f.completed[userID], nil
}

func (f *fakeStore) ListNearbyChallenges(_ context.Context, _ models.Location, _ float64) ([]models.Challenge, error) {
	return f.nearby, f.nearbyErr
}

func (f *fakeStore) RecordCompletion(_ context.Context, userID, challengeID string) (models.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[userID] = append(f.completed[userID], challengeID)
	return models.Completion{UserID: userID, ChallengeID: challengeID, CompletedAt: time.Now()}, nil
}

func (f *fakeStore) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// pairwiseMin is the smallest distance between any two challenges.
func pairwiseMin(pool []models.Challenge) float64 {
	best := -1.0
	for i := range pool {
		for j := i + 1; j < len(pool); j++ {
			d := geo.Distance(pool[i].Location, pool[j].Location)
			if best < 0 || d < best {
				best = d
			}
		}
	}
	return best
}
