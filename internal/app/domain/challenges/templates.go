package challenges

import (
	"fmt"

	"github.com/FACorreiaa/loci-challenges/internal/app/models"
)

type template struct {
	title       string
	description string // formatted with the POI name
	reward      int
}

var explorerTemplate = template{
	title:       "Urban Explorer",
	description: "Make your way to %s and film a short clip showing what makes this spot worth the walk.",
	reward:      75,
}

var templates = map[models.Category]template{
	models.CategoryCafe: {
		title:       "Coffee Break Quest",
		description: "Head to %s and film yourself ordering something you have never tried before.",
		reward:      80,
	},
	models.CategoryRestaurant: {
		title:       "Taste Test",
		description: "Visit %s and record your honest one-sentence review of the house specialty.",
		reward:      95,
	},
	models.CategoryPark: {
		title:       "Green Escape",
		description: "Find the quietest corner of %s and record ten seconds of nothing but nature.",
		reward:      90,
	},
	models.CategoryArtwork: {
		title:       "Art Detective",
		description: "Track down %s and recreate the artwork's mood with a pose on camera.",
		reward:      110,
	},
	models.CategoryMonument: {
		title:       "History Hunter",
		description: "Reach %s and tell the camera one fact about it in under fifteen seconds.",
		reward:      120,
	},
	models.CategoryFountain: {
		title:       "Make a Splash",
		description: "Stand by %s and capture the water in slow motion.",
		reward:      85,
	},
	models.CategoryViewpoint: {
		title:       "Top of the World",
		description: "Climb to %s and pan across the whole view in one steady shot.",
		reward:      130,
	},
	models.CategoryLibrary: {
		title:       "Quiet Reader",
		description: "Step into %s and film the cover of the first book that catches your eye.",
		reward:      100,
	},
	models.CategoryPlayground: {
		title:       "Inner Child",
		description: "Go to %s and show off your best move on any piece of equipment.",
		reward:      70,
	},
	models.CategoryBridge: {
		title:       "Bridge Crossing",
		description: "Walk the full length of %s and film the view from its middle.",
		reward:      105,
	},
	models.CategoryMarket: {
		title:       "Market Hustle",
		description: "Explore %s and film the most colorful stall you can find.",
		reward:      90,
	},
	models.CategoryStatue: {
		title:       "Strike a Pose",
		description: "Find %s and mirror its pose side by side on camera.",
		reward:      95,
	},
	models.CategoryBench: {
		title:       "Take a Seat",
		description: "Sit on %s for a moment and describe what you see around you.",
		reward:      65,
	},
	models.CategoryTramStop: {
		title:       "Catch the Tram",
		description: "Wait at %s and film the next tram arriving.",
		reward:      70,
	},
}

func templateFor(category models.Category) template {
	if t, ok := templates[category]; ok {
		return t
	}
	return explorerTemplate
}

// FallbackDraft returns the canned challenge for a category. Categories without a dedicated
// template use the generic explorer one.
func FallbackDraft(category models.Category, poiName string) models.Draft {
	t := templateFor(category)
	return models.Draft{
		Title:       t.title,
		Description: fmt.Sprintf(t.description, poiName),
		Reward:      t.reward,
	}
}
