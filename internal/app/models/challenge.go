package models

import (
	"time"

	"github.com/google/uuid"
)

// Category is the closed set of challenge categories derived from POI tags.
type Category string

const (
	CategoryCafe       Category = "cafe"
	CategoryRestaurant Category = "restaurant"
	CategoryPark       Category = "park"
	CategoryArtwork    Category = "artwork"
	CategoryMonument   Category = "monument"
	CategoryFountain   Category = "fountain"
	CategoryViewpoint  Category = "viewpoint"
	CategoryLibrary    Category = "library"
	CategoryPlayground Category = "playground"
	CategoryBridge     Category = "bridge"
	CategoryMarket     Category = "market"
	CategoryStatue     Category = "statue"
	CategoryBench      Category = "bench"
	CategoryStreet     Category = "street"
	CategoryTramStop   Category = "tram_stop"
	CategoryRandom     Category = "random"
)

// AllCategories lists every category in declaration order.
var AllCategories = []Category{
	CategoryCafe, CategoryRestaurant, CategoryPark, CategoryArtwork, CategoryMonument,
	CategoryFountain, CategoryViewpoint, CategoryLibrary, CategoryPlayground, CategoryBridge,
	CategoryMarket, CategoryStatue, CategoryBench, CategoryStreet, CategoryTramStop, CategoryRandom,
}

// Durability tells whether a challenge made it into the Challenge Store.
type Durability string

const (
	// DurabilityPersisted challenges carry an id assigned by the Challenge Store.
	DurabilityPersisted Durability = "persisted"
	// DurabilityEphemeral challenges carry a locally minted id and exist only in cached pools.
	DurabilityEphemeral Durability = "ephemeral"
)

// EphemeralIDPrefix marks locally minted challenge ids.
const EphemeralIDPrefix = "local-"

// Challenge is immutable once created. The engine only creates challenges or drops references
// to them.
type Challenge struct {
	ID                string       `json:"id"`
	Title             string       `json:"title"`
	Description       string       `json:"description"`
	Location          Location     `json:"location"`
	Reward            int          `json:"reward"`
	Category          Category     `json:"category"`
	DistanceMeters    float64      `json:"distance_meters"`
	POIName           string       `json:"poi_name"`
	CompletionCount   int          `json:"completion_count"`
	ParticipantCount  int          `json:"participant_count"`
	MaxParticipants   int          `json:"max_participants"`
	RecentCompletions []Completion `json:"recent_completions"`
	Durability        Durability   `json:"durability"`
	Synthetic         bool         `json:"synthetic"`
	CreatedAt         time.Time    `json:"created_at"`
}

// Durable reports whether the challenge was persisted.
func (c Challenge) Durable() bool {
	return c.Durability == DurabilityPersisted
}

// Completion associates a user with a completed challenge.
type Completion struct {
	UserID      string    `json:"user_id"`
	ChallengeID string    `json:"challenge_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// Draft is the synthesized content of a challenge before it is placed and persisted.
type Draft struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Reward      int    `json:"reward"`
}

// CreateChallengeParams is the Challenge Store create request.
type CreateChallengeParams struct {
	CreatorID       uuid.UUID
	Title           string
	Description     string
	Reward          int
	Location        Location
	Category        Category
	POIName         string
	MaxParticipants int
	IsPublic        bool
}

// PoolEntry is the cached pool for one location bucket.
type PoolEntry struct {
	Pool      []Challenge `json:"pool"`
	Timestamp time.Time   `json:"timestamp"`
	Location  Location    `json:"location"`
}

// ChallengeCompletedEvent is published when a user completes a challenge.
type ChallengeCompletedEvent struct {
	UserID      string    `json:"user_id"`
	ChallengeID string    `json:"challenge_id"`
	CompletedAt time.Time `json:"completed_at"`
}
