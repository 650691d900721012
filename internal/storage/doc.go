// Package storage provides SQLite-based persistence for events, venues and
// offers together with the derived search indexes built from them.
//
// # Database Schema
//
// Tables:
//   - events: source rows; start_at/end_at are unix milliseconds
//   - venues: source rows plus the materialized GeoPoint (geo_lon, geo_lat, geo_srid)
//   - offers: prices, joined only at query time
//   - event_text: FTS5 index over analyzed title (primary) and description (secondary) terms
//   - venue_text: FTS5 index over analyzed venue name terms
//   - venue_geo: R*Tree over venue GeoPoints
//
// Derived rows are keyed by the entity id (FTS5 rowid, R*Tree id) and are
// written only by the indexer package, inside the same transaction as the
// source write that caused them.
//
// # Transactions
//
//	tx, err := store.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = tx.Rollback() }()
//
//	if err := tx.UpsertVenue(ctx, venue); err != nil {
//	    return err
//	}
//	if err := tx.PutVenueGeo(ctx, venue.ID, point); err != nil {
//	    return err
//	}
//	return tx.Commit()
//
// The pool holds a single connection, so a transaction must not call back
// into the non-transactional store while it is open.
//
// # Query Primitives
//
// The searcher composes its plan from primitives that each return id sets:
// EventsStartingBetween (B-tree range), VenuesWithin (R*Tree probe),
// MatchEventText and MatchVenueText (FTS5 with weighted bm25) and
// EventsPricedBetween (offers index). EventRefs hydrates the final set.
//
// # Build Tags
//
// Pure Go (default): modernc.org/sqlite, no C compiler needed.
//
//	CGO_ENABLED=0 go build ./...
//
// CGO (sqlite_cgo tag): github.com/mattn/go-sqlite3.
//
//	CGO_ENABLED=1 go build -tags "sqlite_cgo,sqlite_fts5" ./...
package storage
