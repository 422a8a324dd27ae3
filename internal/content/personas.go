package content

import (
	"strings"
	"time"
)

// Persona is a writing voice.
type Persona struct {
	Key   string
	Name  string
	Voice string
}

var personas = map[string]Persona{
	"head_gardener": {
		Key:   "head_gardener",
		Name:  "Chris, Head Gardener",
		Voice: "a friendly, practical head gardener with twenty years of experience in Cornish gardens. Plain English, no jargon, short paragraphs, the occasional dry joke",
	},
	"eco": {
		Key:   "eco",
		Name:  "The Wildlife Gardener",
		Voice: "an enthusiastic wildlife-friendly gardener who favours peat-free, pollinator-friendly and water-wise methods",
	},
	"business": {
		Key:   "business",
		Name:  "GGM Team",
		Voice: "a professional, reassuring voice addressing homeowners and property managers about reliable scheduled maintenance",
	},
}

// DefaultPersona is used when none or an unknown one is requested.
const DefaultPersona = "head_gardener"

// LookupPersona returns the persona for key, falling back to DefaultPersona.
func LookupPersona(key string) Persona {
	if p, ok := personas[strings.ToLower(strings.TrimSpace(key))]; ok {
		return p
	}
	return personas[DefaultPersona]
}

var seasonalTopics = map[time.Month][]string{
	time.January:   {"Winter pruning of fruit trees", "Planning your garden for the year ahead"},
	time.February:  {"Preparing beds for spring", "Pruning roses and late-winter shrubs"},
	time.March:     {"First lawn cut of the season", "Spring lawn care: scarifying and feeding"},
	time.April:     {"Weed control before it gets away from you", "Sowing and planting in April"},
	time.May:       {"Hedge cutting and nesting birds", "Getting borders ready for summer"},
	time.June:      {"Watering wisely in dry spells", "Keeping lawns green through summer"},
	time.July:      {"Summer hedge trimming", "Deadheading for a longer flowering season"},
	time.August:    {"Caring for your lawn after a heatwave", "Holiday garden care"},
	time.September: {"Autumn lawn renovation", "Planting spring bulbs"},
	time.October:   {"Leaf clearance and leaf mould", "Putting the garden to bed for winter"},
	time.November:  {"Protecting plants from frost", "Winter tree and shrub care"},
	time.December:  {"Winter garden maintenance checklist", "Caring for the garden over the festive season"},
}

// SeasonalTopic picks a topic for the month of at, rotating by day so
// consecutive runs in one month vary.
func SeasonalTopic(at time.Time) string {
	topics := seasonalTopics[at.Month()]
	return topics[at.YearDay()%len(topics)]
}
