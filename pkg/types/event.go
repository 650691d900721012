package types

import (
	"errors"
	"strings"
	"time"
)

// EntityKind identifies which source table a write touched
type EntityKind string

const (
	KindEvent EntityKind = "EVENT"
	KindVenue EntityKind = "VENUE"
	// KindOffer rows carry no derived representation
	KindOffer EntityKind = "OFFER"
)

// EventSource records where an event was authored
type EventSource string

const (
	SourceManual       EventSource = "MANUAL"
	SourceTicketmaster EventSource = "TICKETMASTER"
	SourceEventbrite   EventSource = "EVENTBRITE"
	SourceSeatGeek     EventSource = "SEATGEEK"
)

// Valid reports whether the source is one of the known providers
func (s EventSource) Valid() bool {
	switch s {
	case SourceManual, SourceTicketmaster, SourceEventbrite, SourceSeatGeek:
		return true
	}
	return false
}

// ParseEventSource converts a case-insensitive name into an EventSource.
// An empty string maps to SourceManual.
func ParseEventSource(s string) (EventSource, error) {
	if s == "" {
		return SourceManual, nil
	}
	src := EventSource(strings.ToUpper(strings.TrimSpace(s)))
	if !src.Valid() {
		return "", ErrInvalidSource
	}
	return src, nil
}

// Field names reported in change sets. They match the column names.
const (
	FieldTitle        = "title"
	FieldDescription  = "description"
	FieldStartAt      = "start_at"
	FieldEndAt        = "end_at"
	FieldLocationText = "location_text"
	FieldVenueID      = "venue_id"
	FieldSource       = "source"
	FieldName         = "name"
	FieldLatitude     = "latitude"
	FieldLongitude    = "longitude"
	FieldAddress      = "address"
	FieldCity         = "city"
)

// Event is a scheduled happening, optionally held at a Venue
type Event struct {
	ID           int64
	Title        string
	Description  *string
	StartAt      time.Time
	EndAt        *time.Time
	LocationText *string
	VenueID      *int64
	Source       EventSource
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate checks the source fields of an event
func (e *Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return ErrEmptyTitle
	}
	if e.StartAt.IsZero() {
		return ErrMissingStart
	}
	if e.EndAt != nil && e.EndAt.Before(e.StartAt) {
		return ErrEndBeforeStart
	}
	if e.Source != "" && !e.Source.Valid() {
		return ErrInvalidSource
	}
	return nil
}

// Venue is a physical place events are held at
type Venue struct {
	ID        int64
	Name      string
	Latitude  *float64
	Longitude *float64
	Address   *string
	City      *string
	// Geo is derived from Latitude/Longitude and never set by callers
	Geo       *GeoPoint
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the source fields of a venue. Coordinate ranges are
// checked during derivation so the error carries the offending field.
func (v *Venue) Validate() error {
	if strings.TrimSpace(v.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

// Offer is price data attached to an event
type Offer struct {
	ID        int64
	EventID   int64
	Price     *float64
	Currency  *string
	URL       *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the source fields of an offer
func (o *Offer) Validate() error {
	if o.EventID <= 0 {
		return ErrMissingEvent
	}
	if o.Price != nil && *o.Price < 0 {
		return ErrNegativePrice
	}
	return nil
}

// Entity validation errors
var (
	ErrEmptyTitle     = errors.New("event title cannot be empty")
	ErrMissingStart   = errors.New("event start time is required")
	ErrEndBeforeStart = errors.New("event end time must not be before start time")
	ErrInvalidSource  = errors.New("unknown event source")
	ErrEmptyName      = errors.New("venue name cannot be empty")
	ErrMissingEvent   = errors.New("offer must reference an event")
	ErrNegativePrice  = errors.New("offer price cannot be negative")
)
