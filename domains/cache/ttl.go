package cache

import (
	"fmt"
	"time"
)

// ttlProfiles is the static freshness table. Live data turns over in seconds,
// reference data in hours; historical results effectively never change.
var ttlProfiles = map[Category]TTLProfile{
	CategoryLiveScores:  {Fresh: 15 * time.Second, Stale: 60 * time.Second},
	CategoryStandings:   {Fresh: 5 * time.Minute, Stale: 15 * time.Minute},
	CategorySchedule:    {Fresh: 1 * time.Hour, Stale: 2 * time.Hour},
	CategoryPlayerStats: {Fresh: 10 * time.Minute, Stale: 30 * time.Minute},
	CategoryTeams:       {Fresh: 12 * time.Hour, Stale: 24 * time.Hour},
	CategoryHistorical:  {Fresh: 24 * time.Hour, Stale: 7 * 24 * time.Hour},
}

// ProfileFor returns the TTL profile for category. An undeclared category is
// a programming error, not a runtime condition.
func ProfileFor(category Category) TTLProfile {
	profile, ok := ttlProfiles[category]
	if !ok {
		panic(fmt.Sprintf("cache: no TTL profile declared for category %q", category))
	}
	return profile
}

// Categories lists every declared category.
func Categories() []Category {
	return []Category{
		CategoryLiveScores,
		CategoryStandings,
		CategorySchedule,
		CategoryPlayerStats,
		CategoryTeams,
		CategoryHistorical,
	}
}
