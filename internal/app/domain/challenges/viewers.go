package challenges

import (
	"sync"
	"time"

	"github.com/FACorreiaa/loci-challenges/internal/app/models"
)

// Viewer is the last location a user requested a pool for.
type Viewer struct {
	Location models.Location
	SeenAt   time.Time
}

// ViewerRegistry remembers where users are looking so a completion event can refresh the pool
// they currently see. Entries older than the TTL are ignored.
type ViewerRegistry struct {
	mu      sync.RWMutex
	viewers map[string]Viewer
	ttl     time.Duration
	now     func() time.Time
}

func NewViewerRegistry(ttl time.Duration, now func() time.Time) *ViewerRegistry {
	if now == nil {
		now = time.Now
	}
	return &ViewerRegistry{viewers: make(map[string]Viewer), ttl: ttl, now: now}
}

func (v *ViewerRegistry) Touch(userID string, loc models.Location) {
	if userID == "" {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.viewers[userID] = Viewer{Location: loc, SeenAt: v.now()}
}

func (v *ViewerRegistry) Lookup(userID string) (Viewer, bool) {
	v.mu.RLock()
	viewer, ok := v.viewers[userID]
	v.mu.RUnlock()
	if !ok {
		return Viewer{}, false
	}
	if v.ttl > 0 && v.now().Sub(viewer.SeenAt) > v.ttl {
		v.Forget(userID)
		return Viewer{}, false
	}
	return viewer, true
}

func (v *ViewerRegistry) Forget(userID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.viewers, userID)
}

func (v *ViewerRegistry) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.viewers)
}
