package storage

import (
	"context"
	"time"

	"github.com/cwysong85/whenr-database/internal/geoindex"
	"github.com/cwysong85/whenr-database/pkg/types"
)

// Storage defines the interface for persisting source rows and querying the
// derived search indexes
type Storage interface {
	// Event operations
	UpsertEvent(ctx context.Context, event *types.Event) error
	GetEvent(ctx context.Context, eventID int64) (*types.Event, error)
	DeleteEvent(ctx context.Context, eventID int64) error
	ListEventIDs(ctx context.Context) ([]int64, error)

	// Venue operations
	UpsertVenue(ctx context.Context, venue *types.Venue) error
	GetVenue(ctx context.Context, venueID int64) (*types.Venue, error)
	DeleteVenue(ctx context.Context, venueID int64) error
	ListVenueIDs(ctx context.Context) ([]int64, error)

	// Offer operations
	UpsertOffer(ctx context.Context, offer *types.Offer) error
	GetOffer(ctx context.Context, offerID int64) (*types.Offer, error)
	ListOffersByEvent(ctx context.Context, eventID int64) ([]*types.Offer, error)
	DeleteOffer(ctx context.Context, offerID int64) error

	// Derived index maintenance
	PutEventText(ctx context.Context, eventID int64, rep types.TextRepresentation) error
	GetEventText(ctx context.Context, eventID int64) (string, error)
	DeleteEventText(ctx context.Context, eventID int64) error
	PutVenueText(ctx context.Context, venueID int64, rep types.TextRepresentation) error
	GetVenueText(ctx context.Context, venueID int64) (string, error)
	DeleteVenueText(ctx context.Context, venueID int64) error
	// PutVenueGeo stores or, for a nil point, clears the derived GeoPoint
	PutVenueGeo(ctx context.Context, venueID int64, point *types.GeoPoint) error
	// DeleteVenueGeo removes the spatial index entry of a deleted venue
	DeleteVenueGeo(ctx context.Context, venueID int64) error

	// Query primitives used by the searcher
	EventsStartingBetween(ctx context.Context, from, to *time.Time) ([]int64, error)
	EventsAtVenues(ctx context.Context, venueIDs []int64) ([]int64, error)
	VenuesWithin(ctx context.Context, boxes []geoindex.Box) ([]VenuePoint, error)
	MatchEventText(ctx context.Context, terms []string, weights TextWeights) ([]TextMatch, error)
	MatchVenueText(ctx context.Context, terms []string, weights TextWeights) ([]TextMatch, error)
	EventsPricedBetween(ctx context.Context, price PriceRange, within []int64) ([]int64, error)
	EventRefs(ctx context.Context, eventIDs []int64) ([]EventRef, error)

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// TextWeights are the bm25 column weights for the two tiers
type TextWeights struct {
	Primary   float64
	Secondary float64
}

// TextMatch is one full-text hit. Score is positive; higher is better.
type TextMatch struct {
	ID    int64
	Score float64
}

// VenuePoint is a venue whose indexed box intersected a probe
type VenuePoint struct {
	ID    int64
	Point types.GeoPoint
}

// PriceRange bounds offer prices; nil bounds are open
type PriceRange struct {
	Min      *float64
	Max      *float64
	Currency string
}

// EventRef is the slice of an event row the searcher orders by, plus
// flags describing whether its derived rows are present
type EventRef struct {
	ID      int64
	VenueID *int64
	StartAt time.Time
	// TextIndexed is false when the event has no event_text row
	TextIndexed bool
	// GeoMissing is true when the event's venue has both coordinates but no GeoPoint
	GeoMissing bool
}

// Status contains statistics about the store and its derived indexes
type Status struct {
	SchemaVersion    string
	EventsCount      int
	VenuesCount      int
	OffersCount      int
	EventTextRows    int
	VenueTextRows    int
	GeoIndexedVenues int
	VenuesWithCoords int
	IndexSizeMB      float64
	Health           HealthStatus
}

// HealthStatus represents the health of the derived indexes
type HealthStatus struct {
	DatabaseAccessible bool
	TextIndexComplete  bool
	GeoIndexComplete   bool
}
