package poi

import "github.com/FACorreiaa/loci-challenges/internal/app/models"

type rule struct {
	category models.Category
	match    func(tags map[string]string) bool
}

func tagIs(key string, values ...string) func(map[string]string) bool {
	return func(tags map[string]string) bool {
		v, ok := tags[key]
		if !ok {
			return false
		}
		for _, want := range values {
			if v == want {
				return true
			}
		}
		return false
	}
}

func tagPresent(key string) func(map[string]string) bool {
	return func(tags map[string]string) bool {
		v, ok := tags[key]
		return ok && v != "" && v != "no"
	}
}

func anyOf(matchers ...func(map[string]string) bool) func(map[string]string) bool {
	return func(tags map[string]string) bool {
		for _, m := range matchers {
			if m(tags) {
				return true
			}
		}
		return false
	}
}

// rules is evaluated in order, first match wins.
var rules = []rule{
	{models.CategoryCafe, tagIs("amenity", "cafe")},
	{models.CategoryRestaurant, tagIs("amenity", "restaurant")},
	{models.CategoryPark, tagIs("leisure", "park", "garden")},
	{models.CategoryArtwork, tagIs("tourism", "artwork")},
	{models.CategoryMonument, tagIs("historic", "monument", "memorial")},
	{models.CategoryFountain, tagIs("amenity", "fountain")},
	{models.CategoryViewpoint, tagIs("tourism", "viewpoint")},
	{models.CategoryLibrary, tagIs("amenity", "library")},
	{models.CategoryPlayground, tagIs("leisure", "playground")},
	{models.CategoryBridge, anyOf(tagIs("man_made", "bridge"), tagPresent("bridge"))},
	{models.CategoryMarket, anyOf(tagIs("amenity", "marketplace"), tagPresent("shop"))},
	{models.CategoryStatue, anyOf(tagIs("historic", "statue"), tagIs("artwork_type", "statue"))},
	{models.CategoryBench, tagIs("amenity", "bench")},
	{models.CategoryTramStop, anyOf(tagIs("highway", "bus_stop"), tagIs("railway", "tram_stop"))},
}

// Classify maps POI tags to a challenge category. It is total: tags matching no rule, including
// nil tags, classify as street.
func Classify(tags map[string]string) models.Category {
	for _, r := range rules {
		if r.match(tags) {
			return r.category
		}
	}
	return models.CategoryStreet
}
