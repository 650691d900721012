package types

import "time"

// SortOrder selects how search hits are ordered
type SortOrder string

const (
	SortDate      SortOrder = "DATE"
	SortDistance  SortOrder = "DISTANCE"
	SortRelevance SortOrder = "RELEVANCE"
)

// Hit is one ranked search result. Distance and Score carry the values
// used to order the hit so callers need not recompute them.
type Hit struct {
	EventID int64
	VenueID *int64
	StartAt time.Time
	Rank    int // Position in the full result set (1-based)

	// Distance in meters from the geo filter center, nil without a geo filter
	Distance *float64
	// Score is the weighted text relevance, nil without a text query
	Score *float64
}
