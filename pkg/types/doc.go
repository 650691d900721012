// Package types provides the shared domain types of the whenr search core.
//
// # Source entities
//
// Event, Venue and Offer mirror the rows of the host store. Events and venues
// own derived representations that are never written directly:
//
//	ev := &types.Event{
//	    Title:   "Concert Night",
//	    StartAt: time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC),
//	    VenueID: &venueID,
//	}
//
// # Derived representations
//
// TextRepresentation is a weighted lexeme multiset with two tiers: WeightA for
// titles and names, WeightB for descriptions. Its String form mirrors a
// PostgreSQL tsvector:
//
//	'concert':1A 'live':3B 'music':4B 'night':2A
//
// GeoPoint is a WGS84 (SRID 4326) point, longitude first. A venue has one iff
// both latitude and longitude are set.
//
// # Errors
//
// ErrInvalidCoordinate, ErrInvalidSortRequest, ErrEntityNotIndexed and
// ErrStoreUnavailable form the error taxonomy shared by the indexer, the
// searcher and the storage layer. Use errors.Is to match them; CoordinateError
// additionally names the offending field.
package types
