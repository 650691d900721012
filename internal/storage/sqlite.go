package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cwysong85/whenr-database/internal/geoindex"
	"github.com/cwysong85/whenr-database/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrNestedTx is returned when BeginTx is called on a transaction
	ErrNestedTx = errors.New("nested transactions not supported")
	// ErrInvalidWeights is returned when bm25 weights are not finite and positive
	ErrInvalidWeights = errors.New("text weights must be finite and positive")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// One connection: every write and every planned query is serialized,
	// and ":memory:" databases stay a single database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage opens the database at dbPath and applies pending migrations
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", types.ErrStoreUnavailable, err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// DB exposes the underlying handle for migration tooling
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction. A store that cannot start one is
// reported as types.ErrStoreUnavailable.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", types.ErrStoreUnavailable, err)
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// sqliteTx wraps a SQL transaction. Every method runs on the transaction;
// with a single pooled connection, touching storage.db here would block.
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Event operations

const eventColumns = `id, title, description, start_at, end_at, location_text, venue_id, source, created_at, updated_at`

func scanEvent(row rowScanner) (*types.Event, error) {
	var (
		event        types.Event
		description  sql.NullString
		startAt      int64
		endAt        sql.NullInt64
		locationText sql.NullString
		venueID      sql.NullInt64
		source       string
	)
	err := row.Scan(&event.ID, &event.Title, &description, &startAt, &endAt,
		&locationText, &venueID, &source, &event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		return nil, err
	}
	event.Description = stringPtr(description)
	event.StartAt = fromMillis(startAt)
	if endAt.Valid {
		end := fromMillis(endAt.Int64)
		event.EndAt = &end
	}
	event.LocationText = stringPtr(locationText)
	event.VenueID = int64Ptr(venueID)
	event.Source = types.EventSource(source)
	return &event, nil
}

// upsertEventWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertEventWithQuerier(ctx context.Context, q querier, event *types.Event) error {
	if event.Source == "" {
		event.Source = types.SourceManual
	}
	query := `
		INSERT INTO events (id, title, description, start_at, end_at, location_text, venue_id, source, created_at, updated_at)
		VALUES (NULLIF(?, 0), ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			location_text = excluded.location_text,
			venue_id = excluded.venue_id,
			source = excluded.source,
			updated_at = excluded.updated_at
	`
	now := time.Now().UTC()
	result, err := q.ExecContext(ctx, query,
		event.ID, event.Title, event.Description, toMillis(event.StartAt), nullMillis(event.EndAt),
		event.LocationText, event.VenueID, string(event.Source), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert event: %w", err)
	}

	if event.ID == 0 {
		id, err := result.LastInsertId()
		if err != nil {
			return err
		}
		event.ID = id
	}
	if err := q.QueryRowContext(ctx, "SELECT created_at FROM events WHERE id = ?", event.ID).Scan(&event.CreatedAt); err != nil {
		return fmt.Errorf("failed to read event timestamps: %w", err)
	}
	event.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertEvent(ctx context.Context, event *types.Event) error {
	return s.upsertEventWithQuerier(ctx, s.querier(), event)
}

// getEventWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getEventWithQuerier(ctx context.Context, q querier, eventID int64) (*types.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = ?`
	event, err := scanEvent(q.QueryRowContext(ctx, query, eventID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (s *SQLiteStorage) GetEvent(ctx context.Context, eventID int64) (*types.Event, error) {
	return s.getEventWithQuerier(ctx, s.querier(), eventID)
}

// deleteEventWithQuerier removes the event row; its offers cascade
func (s *SQLiteStorage) deleteEventWithQuerier(ctx context.Context, q querier, eventID int64) error {
	return execAffecting(ctx, q, "event", "DELETE FROM events WHERE id = ?", eventID)
}

func (s *SQLiteStorage) DeleteEvent(ctx context.Context, eventID int64) error {
	return s.deleteEventWithQuerier(ctx, s.querier(), eventID)
}

func (s *SQLiteStorage) ListEventIDs(ctx context.Context) ([]int64, error) {
	return queryIDs(ctx, s.querier(), "SELECT id FROM events ORDER BY id")
}

// Venue operations

const venueColumns = `id, name, latitude, longitude, address, city, geo_lon, geo_lat, geo_srid, created_at, updated_at`

func scanVenue(row rowScanner) (*types.Venue, error) {
	var (
		venue     types.Venue
		latitude  sql.NullFloat64
		longitude sql.NullFloat64
		address   sql.NullString
		city      sql.NullString
		geoLon    sql.NullFloat64
		geoLat    sql.NullFloat64
		geoSRID   sql.NullInt64
	)
	err := row.Scan(&venue.ID, &venue.Name, &latitude, &longitude, &address, &city,
		&geoLon, &geoLat, &geoSRID, &venue.CreatedAt, &venue.UpdatedAt)
	if err != nil {
		return nil, err
	}
	venue.Latitude = float64Ptr(latitude)
	venue.Longitude = float64Ptr(longitude)
	venue.Address = stringPtr(address)
	venue.City = stringPtr(city)
	if geoLon.Valid && geoLat.Valid {
		venue.Geo = &types.GeoPoint{Lon: geoLon.Float64, Lat: geoLat.Float64, SRID: int(geoSRID.Int64)}
	}
	return &venue, nil
}

// upsertVenueWithQuerier writes the source columns only; geo_* belong to PutVenueGeo
func (s *SQLiteStorage) upsertVenueWithQuerier(ctx context.Context, q querier, venue *types.Venue) error {
	query := `
		INSERT INTO venues (id, name, latitude, longitude, address, city, created_at, updated_at)
		VALUES (NULLIF(?, 0), ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			address = excluded.address,
			city = excluded.city,
			updated_at = excluded.updated_at
	`
	now := time.Now().UTC()
	result, err := q.ExecContext(ctx, query,
		venue.ID, venue.Name, venue.Latitude, venue.Longitude, venue.Address, venue.City, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert venue: %w", err)
	}

	if venue.ID == 0 {
		id, err := result.LastInsertId()
		if err != nil {
			return err
		}
		venue.ID = id
	}
	if err := q.QueryRowContext(ctx, "SELECT created_at FROM venues WHERE id = ?", venue.ID).Scan(&venue.CreatedAt); err != nil {
		return fmt.Errorf("failed to read venue timestamps: %w", err)
	}
	venue.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertVenue(ctx context.Context, venue *types.Venue) error {
	return s.upsertVenueWithQuerier(ctx, s.querier(), venue)
}

// getVenueWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getVenueWithQuerier(ctx context.Context, q querier, venueID int64) (*types.Venue, error) {
	query := `SELECT ` + venueColumns + ` FROM venues WHERE id = ?`
	venue, err := scanVenue(q.QueryRowContext(ctx, query, venueID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return venue, nil
}

func (s *SQLiteStorage) GetVenue(ctx context.Context, venueID int64) (*types.Venue, error) {
	return s.getVenueWithQuerier(ctx, s.querier(), venueID)
}

// deleteVenueWithQuerier removes the venue row; events keep existing with a NULL venue
func (s *SQLiteStorage) deleteVenueWithQuerier(ctx context.Context, q querier, venueID int64) error {
	return execAffecting(ctx, q, "venue", "DELETE FROM venues WHERE id = ?", venueID)
}

func (s *SQLiteStorage) DeleteVenue(ctx context.Context, venueID int64) error {
	return s.deleteVenueWithQuerier(ctx, s.querier(), venueID)
}

func (s *SQLiteStorage) ListVenueIDs(ctx context.Context) ([]int64, error) {
	return queryIDs(ctx, s.querier(), "SELECT id FROM venues ORDER BY id")
}

// Offer operations

const offerColumns = `id, event_id, price, currency, url, created_at, updated_at`

func scanOffer(row rowScanner) (*types.Offer, error) {
	var (
		offer    types.Offer
		price    sql.NullFloat64
		currency sql.NullString
		url      sql.NullString
	)
	err := row.Scan(&offer.ID, &offer.EventID, &price, &currency, &url, &offer.CreatedAt, &offer.UpdatedAt)
	if err != nil {
		return nil, err
	}
	offer.Price = float64Ptr(price)
	offer.Currency = stringPtr(currency)
	offer.URL = stringPtr(url)
	return &offer, nil
}

// upsertOfferWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertOfferWithQuerier(ctx context.Context, q querier, offer *types.Offer) error {
	query := `
		INSERT INTO offers (id, event_id, price, currency, url, created_at, updated_at)
		VALUES (NULLIF(?, 0), ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			event_id = excluded.event_id,
			price = excluded.price,
			currency = excluded.currency,
			url = excluded.url,
			updated_at = excluded.updated_at
	`
	now := time.Now().UTC()
	result, err := q.ExecContext(ctx, query,
		offer.ID, offer.EventID, offer.Price, offer.Currency, offer.URL, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert offer: %w", err)
	}

	if offer.ID == 0 {
		id, err := result.LastInsertId()
		if err != nil {
			return err
		}
		offer.ID = id
	}
	if err := q.QueryRowContext(ctx, "SELECT created_at FROM offers WHERE id = ?", offer.ID).Scan(&offer.CreatedAt); err != nil {
		return fmt.Errorf("failed to read offer timestamps: %w", err)
	}
	offer.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertOffer(ctx context.Context, offer *types.Offer) error {
	return s.upsertOfferWithQuerier(ctx, s.querier(), offer)
}

// getOfferWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getOfferWithQuerier(ctx context.Context, q querier, offerID int64) (*types.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = ?`
	offer, err := scanOffer(q.QueryRowContext(ctx, query, offerID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return offer, nil
}

func (s *SQLiteStorage) GetOffer(ctx context.Context, offerID int64) (*types.Offer, error) {
	return s.getOfferWithQuerier(ctx, s.querier(), offerID)
}

// listOffersByEventWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listOffersByEventWithQuerier(ctx context.Context, q querier, eventID int64) ([]*types.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE event_id = ? ORDER BY id`
	rows, err := q.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var offers []*types.Offer
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}
	return offers, rows.Err()
}

func (s *SQLiteStorage) ListOffersByEvent(ctx context.Context, eventID int64) ([]*types.Offer, error) {
	return s.listOffersByEventWithQuerier(ctx, s.querier(), eventID)
}

func (s *SQLiteStorage) deleteOfferWithQuerier(ctx context.Context, q querier, offerID int64) error {
	return execAffecting(ctx, q, "offer", "DELETE FROM offers WHERE id = ?", offerID)
}

func (s *SQLiteStorage) DeleteOffer(ctx context.Context, offerID int64) error {
	return s.deleteOfferWithQuerier(ctx, s.querier(), offerID)
}

// Derived index operations

// putEventTextWithQuerier replaces the event's FTS row. Terms are stored
// space-separated per tier so FTS5 term frequencies follow the lexeme positions.
func (s *SQLiteStorage) putEventTextWithQuerier(ctx context.Context, q querier, eventID int64, rep types.TextRepresentation) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM event_text WHERE rowid = ?", eventID); err != nil {
		return fmt.Errorf("failed to clear event text: %w", err)
	}
	_, err := q.ExecContext(ctx,
		"INSERT INTO event_text (rowid, primary_text, secondary_text, repr) VALUES (?, ?, ?, ?)",
		eventID, rep.Terms(types.WeightA), rep.Terms(types.WeightB), rep.String())
	if err != nil {
		return fmt.Errorf("failed to store event text: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) PutEventText(ctx context.Context, eventID int64, rep types.TextRepresentation) error {
	return s.putEventTextWithQuerier(ctx, s.querier(), eventID, rep)
}

func (s *SQLiteStorage) getTextWithQuerier(ctx context.Context, q querier, table string, id int64) (string, error) {
	var repr string
	err := q.QueryRowContext(ctx, "SELECT repr FROM "+table+" WHERE rowid = ?", id).Scan(&repr)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return repr, nil
}

func (s *SQLiteStorage) GetEventText(ctx context.Context, eventID int64) (string, error) {
	return s.getTextWithQuerier(ctx, s.querier(), "event_text", eventID)
}

func (s *SQLiteStorage) deleteTextWithQuerier(ctx context.Context, q querier, table string, id int64) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE rowid = ?", id); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteEventText(ctx context.Context, eventID int64) error {
	return s.deleteTextWithQuerier(ctx, s.querier(), "event_text", eventID)
}

// putVenueTextWithQuerier replaces the venue's FTS row; venue names are primary-tier only
func (s *SQLiteStorage) putVenueTextWithQuerier(ctx context.Context, q querier, venueID int64, rep types.TextRepresentation) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM venue_text WHERE rowid = ?", venueID); err != nil {
		return fmt.Errorf("failed to clear venue text: %w", err)
	}
	_, err := q.ExecContext(ctx,
		"INSERT INTO venue_text (rowid, name_text, repr) VALUES (?, ?, ?)",
		venueID, rep.Terms(types.WeightA), rep.String())
	if err != nil {
		return fmt.Errorf("failed to store venue text: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) PutVenueText(ctx context.Context, venueID int64, rep types.TextRepresentation) error {
	return s.putVenueTextWithQuerier(ctx, s.querier(), venueID, rep)
}

func (s *SQLiteStorage) GetVenueText(ctx context.Context, venueID int64) (string, error) {
	return s.getTextWithQuerier(ctx, s.querier(), "venue_text", venueID)
}

func (s *SQLiteStorage) DeleteVenueText(ctx context.Context, venueID int64) error {
	return s.deleteTextWithQuerier(ctx, s.querier(), "venue_text", venueID)
}

// putVenueGeoWithQuerier materializes the GeoPoint on the venue row and in
// the R*Tree, or clears both when point is nil.
func (s *SQLiteStorage) putVenueGeoWithQuerier(ctx context.Context, q querier, venueID int64, point *types.GeoPoint) error {
	var lon, lat, srid interface{}
	if point != nil {
		lon, lat, srid = point.Lon, point.Lat, point.SRID
	}
	err := execAffecting(ctx, q, "venue",
		"UPDATE venues SET geo_lon = ?, geo_lat = ?, geo_srid = ? WHERE id = ?",
		lon, lat, srid, venueID)
	if err != nil {
		return err
	}

	if err := s.deleteVenueGeoWithQuerier(ctx, q, venueID); err != nil {
		return err
	}
	if point == nil {
		return nil
	}
	_, err = q.ExecContext(ctx,
		"INSERT INTO venue_geo (id, min_lon, max_lon, min_lat, max_lat) VALUES (?, ?, ?, ?, ?)",
		venueID, point.Lon, point.Lon, point.Lat, point.Lat)
	if err != nil {
		return fmt.Errorf("failed to store venue geo: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) PutVenueGeo(ctx context.Context, venueID int64, point *types.GeoPoint) error {
	return s.putVenueGeoWithQuerier(ctx, s.querier(), venueID, point)
}

func (s *SQLiteStorage) deleteVenueGeoWithQuerier(ctx context.Context, q querier, venueID int64) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM venue_geo WHERE id = ?", venueID); err != nil {
		return fmt.Errorf("failed to delete venue geo: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteVenueGeo(ctx context.Context, venueID int64) error {
	return s.deleteVenueGeoWithQuerier(ctx, s.querier(), venueID)
}

// Query primitives

func (s *SQLiteStorage) EventsStartingBetween(ctx context.Context, from, to *time.Time) ([]int64, error) {
	return eventsStartingBetween(ctx, s.querier(), from, to)
}

func (s *SQLiteStorage) EventsAtVenues(ctx context.Context, venueIDs []int64) ([]int64, error) {
	return eventsAtVenues(ctx, s.querier(), venueIDs)
}

func (s *SQLiteStorage) VenuesWithin(ctx context.Context, boxes []geoindex.Box) ([]VenuePoint, error) {
	return venuesWithin(ctx, s.querier(), boxes)
}

func (s *SQLiteStorage) MatchEventText(ctx context.Context, terms []string, weights TextWeights) ([]TextMatch, error) {
	return matchEventText(ctx, s.querier(), terms, weights)
}

func (s *SQLiteStorage) MatchVenueText(ctx context.Context, terms []string, weights TextWeights) ([]TextMatch, error) {
	return matchVenueText(ctx, s.querier(), terms, weights)
}

func (s *SQLiteStorage) EventsPricedBetween(ctx context.Context, price PriceRange, within []int64) ([]int64, error) {
	return eventsPricedBetween(ctx, s.querier(), price, within)
}

func (s *SQLiteStorage) EventRefs(ctx context.Context, eventIDs []int64) ([]EventRef, error) {
	return eventRefs(ctx, s.querier(), eventIDs)
}

// Status operations

// getStatusWithQuerier gathers row counts and index completeness
func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier) (*Status, error) {
	version, err := currentSchemaVersion(ctx, q)
	if err != nil {
		return nil, err
	}
	status := &Status{SchemaVersion: version.String()}

	counts := []struct {
		dest  *int
		query string
	}{
		{&status.EventsCount, "SELECT COUNT(*) FROM events"},
		{&status.VenuesCount, "SELECT COUNT(*) FROM venues"},
		{&status.OffersCount, "SELECT COUNT(*) FROM offers"},
		{&status.EventTextRows, "SELECT COUNT(*) FROM event_text"},
		{&status.VenueTextRows, "SELECT COUNT(*) FROM venue_text"},
		{&status.GeoIndexedVenues, "SELECT COUNT(*) FROM venue_geo"},
		{&status.VenuesWithCoords, "SELECT COUNT(*) FROM venues WHERE latitude IS NOT NULL AND longitude IS NOT NULL"},
	}
	for _, c := range counts {
		if err := q.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to count (%s): %w", c.query, err)
		}
	}

	// Calculate database size
	var pageCount, pageSize int
	err = q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		err = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		if err == nil {
			status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
		}
	}

	status.Health = HealthStatus{
		DatabaseAccessible: true,
		TextIndexComplete:  status.EventTextRows == status.EventsCount && status.VenueTextRows == status.VenuesCount,
		GeoIndexComplete:   status.GeoIndexedVenues == status.VenuesWithCoords,
	}
	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	return s.getStatusWithQuerier(ctx, s.querier())
}

// Transaction methods

func (t *sqliteTx) UpsertEvent(ctx context.Context, event *types.Event) error {
	return t.storage.upsertEventWithQuerier(ctx, t.tx, event)
}

func (t *sqliteTx) GetEvent(ctx context.Context, eventID int64) (*types.Event, error) {
	return t.storage.getEventWithQuerier(ctx, t.tx, eventID)
}

func (t *sqliteTx) DeleteEvent(ctx context.Context, eventID int64) error {
	return t.storage.deleteEventWithQuerier(ctx, t.tx, eventID)
}

func (t *sqliteTx) ListEventIDs(ctx context.Context) ([]int64, error) {
	return queryIDs(ctx, t.tx, "SELECT id FROM events ORDER BY id")
}

func (t *sqliteTx) UpsertVenue(ctx context.Context, venue *types.Venue) error {
	return t.storage.upsertVenueWithQuerier(ctx, t.tx, venue)
}

func (t *sqliteTx) GetVenue(ctx context.Context, venueID int64) (*types.Venue, error) {
	return t.storage.getVenueWithQuerier(ctx, t.tx, venueID)
}

func (t *sqliteTx) DeleteVenue(ctx context.Context, venueID int64) error {
	return t.storage.deleteVenueWithQuerier(ctx, t.tx, venueID)
}

func (t *sqliteTx) ListVenueIDs(ctx context.Context) ([]int64, error) {
	return queryIDs(ctx, t.tx, "SELECT id FROM venues ORDER BY id")
}

func (t *sqliteTx) UpsertOffer(ctx context.Context, offer *types.Offer) error {
	return t.storage.upsertOfferWithQuerier(ctx, t.tx, offer)
}

func (t *sqliteTx) GetOffer(ctx context.Context, offerID int64) (*types.Offer, error) {
	return t.storage.getOfferWithQuerier(ctx, t.tx, offerID)
}

func (t *sqliteTx) ListOffersByEvent(ctx context.Context, eventID int64) ([]*types.Offer, error) {
	return t.storage.listOffersByEventWithQuerier(ctx, t.tx, eventID)
}

func (t *sqliteTx) DeleteOffer(ctx context.Context, offerID int64) error {
	return t.storage.deleteOfferWithQuerier(ctx, t.tx, offerID)
}

func (t *sqliteTx) PutEventText(ctx context.Context, eventID int64, rep types.TextRepresentation) error {
	return t.storage.putEventTextWithQuerier(ctx, t.tx, eventID, rep)
}

func (t *sqliteTx) GetEventText(ctx context.Context, eventID int64) (string, error) {
	return t.storage.getTextWithQuerier(ctx, t.tx, "event_text", eventID)
}

func (t *sqliteTx) DeleteEventText(ctx context.Context, eventID int64) error {
	return t.storage.deleteTextWithQuerier(ctx, t.tx, "event_text", eventID)
}

func (t *sqliteTx) PutVenueText(ctx context.Context, venueID int64, rep types.TextRepresentation) error {
	return t.storage.putVenueTextWithQuerier(ctx, t.tx, venueID, rep)
}

func (t *sqliteTx) GetVenueText(ctx context.Context, venueID int64) (string, error) {
	return t.storage.getTextWithQuerier(ctx, t.tx, "venue_text", venueID)
}

func (t *sqliteTx) DeleteVenueText(ctx context.Context, venueID int64) error {
	return t.storage.deleteTextWithQuerier(ctx, t.tx, "venue_text", venueID)
}

func (t *sqliteTx) PutVenueGeo(ctx context.Context, venueID int64, point *types.GeoPoint) error {
	return t.storage.putVenueGeoWithQuerier(ctx, t.tx, venueID, point)
}

func (t *sqliteTx) DeleteVenueGeo(ctx context.Context, venueID int64) error {
	return t.storage.deleteVenueGeoWithQuerier(ctx, t.tx, venueID)
}

func (t *sqliteTx) EventsStartingBetween(ctx context.Context, from, to *time.Time) ([]int64, error) {
	return eventsStartingBetween(ctx, t.tx, from, to)
}

func (t *sqliteTx) EventsAtVenues(ctx context.Context, venueIDs []int64) ([]int64, error) {
	return eventsAtVenues(ctx, t.tx, venueIDs)
}

func (t *sqliteTx) VenuesWithin(ctx context.Context, boxes []geoindex.Box) ([]VenuePoint, error) {
	return venuesWithin(ctx, t.tx, boxes)
}

func (t *sqliteTx) MatchEventText(ctx context.Context, terms []string, weights TextWeights) ([]TextMatch, error) {
	return matchEventText(ctx, t.tx, terms, weights)
}

func (t *sqliteTx) MatchVenueText(ctx context.Context, terms []string, weights TextWeights) ([]TextMatch, error) {
	return matchVenueText(ctx, t.tx, terms, weights)
}

func (t *sqliteTx) EventsPricedBetween(ctx context.Context, price PriceRange, within []int64) ([]int64, error) {
	return eventsPricedBetween(ctx, t.tx, price, within)
}

func (t *sqliteTx) EventRefs(ctx context.Context, eventIDs []int64) ([]EventRef, error) {
	return eventRefs(ctx, t.tx, eventIDs)
}

func (t *sqliteTx) GetStatus(ctx context.Context) (*Status, error) {
	return t.storage.getStatusWithQuerier(ctx, t.tx)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, ErrNestedTx
}

// Helpers

// execAffecting runs a statement and reports ErrNotFound when no row changed
func execAffecting(ctx context.Context, q querier, entity, query string, args ...interface{}) error {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", entity, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", entity, ErrNotFound)
	}
	return nil
}

func queryIDs(ctx context.Context, q querier, query string, args ...interface{}) ([]int64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func int64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

func float64Ptr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}
