package models

import "strings"

// POI is a tagged point of interest returned by the POI Service. It is read-only and never
// persisted by the engine.
type POI struct {
	ID       string            `json:"id"`
	Location Location          `json:"location"`
	Tags     map[string]string `json:"tags"`
}

// Name returns the POI's display name, falling back to a readable label built from the category
// when the POI is unnamed.
func (p POI) Name(category Category) string {
	if name := strings.TrimSpace(p.Tags["name"]); name != "" {
		return name
	}
	return "Unnamed " + strings.ReplaceAll(string(category), "_", " ")
}
