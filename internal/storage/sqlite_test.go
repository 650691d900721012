package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwysong85/whenr-database/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func strPtr(s string) *string { return &s }

func f64Ptr(f float64) *float64 { return &f }

func i64Ptr(i int64) *int64 { return &i }

func timePtr(t time.Time) *time.Time { return &t }

func createVenue(t *testing.T, s Storage, name string, lat, lon *float64) *types.Venue {
	t.Helper()
	venue := &types.Venue{Name: name, Latitude: lat, Longitude: lon}
	require.NoError(t, s.UpsertVenue(context.Background(), venue))
	return venue
}

func createEvent(t *testing.T, s Storage, title string, start time.Time, venueID *int64) *types.Event {
	t.Helper()
	event := &types.Event{Title: title, StartAt: start, VenueID: venueID}
	require.NoError(t, s.UpsertEvent(context.Background(), event))
	return event
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)

	assert.NotNil(t, storage.db)
	version, err := SchemaVersion(context.Background(), storage.DB())
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestNewSQLiteStorage_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "whenr.db")

	storage, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	createVenue(t, storage, "Lucas Oil Stadium", nil, nil)
	require.NoError(t, storage.Close())

	// Reopening must not re-run applied migrations
	reopened, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	defer reopened.Close()

	ids, err := reopened.ListVenueIDs(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestNewSQLiteStorage_Unavailable(t *testing.T) {
	_, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "missing", "dir", "whenr.db"))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrStoreUnavailable)
}

func TestRollbackMigration(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, RollbackMigration(ctx, storage.DB()))
	version, err := SchemaVersion(ctx, storage.DB())
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", version)

	require.NoError(t, ApplyMigrations(ctx, storage.DB()))
	version, err = SchemaVersion(ctx, storage.DB())
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", version)
}

func TestUpsertEvent(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	venue := createVenue(t, storage, "Lucas Oil Stadium", f64Ptr(39.7684), f64Ptr(-86.1581))
	start := time.Date(2025, 6, 1, 19, 30, 0, 0, time.UTC)
	event := &types.Event{
		Title:        "Concert Night",
		Description:  strPtr("Live music under the stars"),
		StartAt:      start,
		EndAt:        timePtr(start.Add(3 * time.Hour)),
		LocationText: strPtr("Indianapolis"),
		VenueID:      &venue.ID,
	}
	require.NoError(t, storage.UpsertEvent(ctx, event))
	assert.Greater(t, event.ID, int64(0))
	assert.Equal(t, types.SourceManual, event.Source)
	assert.False(t, event.CreatedAt.IsZero())

	got, err := storage.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, "Concert Night", got.Title)
	require.NotNil(t, got.Description)
	assert.Equal(t, "Live music under the stars", *got.Description)
	assert.True(t, got.StartAt.Equal(start))
	require.NotNil(t, got.EndAt)
	assert.True(t, got.EndAt.Equal(start.Add(3*time.Hour)))
	require.NotNil(t, got.VenueID)
	assert.Equal(t, venue.ID, *got.VenueID)

	// Update in place keeps the id
	id := event.ID
	event.Title = "Concert Night II"
	event.Description = nil
	require.NoError(t, storage.UpsertEvent(ctx, event))
	assert.Equal(t, id, event.ID)

	got, err = storage.GetEvent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Concert Night II", got.Title)
	assert.Nil(t, got.Description)

	ids, err := storage.ListEventIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{id}, ids)
}

func TestUpsertEvent_UnknownVenue(t *testing.T) {
	storage := setupTestDB(t)

	event := &types.Event{Title: "Orphan", StartAt: time.Now(), VenueID: i64Ptr(999)}
	err := storage.UpsertEvent(context.Background(), event)
	assert.Error(t, err) // Foreign key violation
}

func TestGetEvent_NotFound(t *testing.T) {
	storage := setupTestDB(t)

	_, err := storage.GetEvent(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteEvent_CascadesOffers(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	event := createEvent(t, storage, "Concert Night", time.Now(), nil)
	offer := &types.Offer{EventID: event.ID, Price: f64Ptr(25), Currency: strPtr("USD")}
	require.NoError(t, storage.UpsertOffer(ctx, offer))

	require.NoError(t, storage.DeleteEvent(ctx, event.ID))

	_, err := storage.GetOffer(ctx, offer.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, storage.DeleteEvent(ctx, event.ID), ErrNotFound)
}

func TestDeleteVenue_DetachesEvents(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	venue := createVenue(t, storage, "Venue A", nil, nil)
	event := createEvent(t, storage, "Concert Night", time.Now(), &venue.ID)

	require.NoError(t, storage.DeleteVenue(ctx, venue.ID))

	got, err := storage.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Nil(t, got.VenueID)
}

func TestOffers(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	event := createEvent(t, storage, "Concert Night", time.Now(), nil)
	free := &types.Offer{EventID: event.ID}
	paid := &types.Offer{EventID: event.ID, Price: f64Ptr(49.5), Currency: strPtr("USD"), URL: strPtr("https://tickets.example/1")}
	require.NoError(t, storage.UpsertOffer(ctx, free))
	require.NoError(t, storage.UpsertOffer(ctx, paid))

	offers, err := storage.ListOffersByEvent(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, offers, 2)
	assert.Nil(t, offers[0].Price)
	require.NotNil(t, offers[1].Price)
	assert.Equal(t, 49.5, *offers[1].Price)

	require.NoError(t, storage.DeleteOffer(ctx, free.ID))
	offers, err = storage.ListOffersByEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Len(t, offers, 1)
}

func TestEventText(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	event := createEvent(t, storage, "Concert Night", time.Now(), nil)
	rep := types.TextRepresentation{Lexemes: []types.Lexeme{
		{Term: "concert", Weight: types.WeightA, Positions: []int{1}},
		{Term: "night", Weight: types.WeightA, Positions: []int{2}},
	}}

	require.NoError(t, storage.PutEventText(ctx, event.ID, rep))
	// Re-putting replaces rather than duplicates
	require.NoError(t, storage.PutEventText(ctx, event.ID, rep))

	repr, err := storage.GetEventText(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, "'concert':1A 'night':2A", repr)

	status, err := storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.EventTextRows)

	require.NoError(t, storage.DeleteEventText(ctx, event.ID))
	_, err = storage.GetEventText(ctx, event.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVenueText(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	venue := createVenue(t, storage, "Lucas Oil Stadium", nil, nil)
	rep := types.TextRepresentation{Lexemes: []types.Lexeme{
		{Term: "luca", Weight: types.WeightA, Positions: []int{1}},
		{Term: "oil", Weight: types.WeightA, Positions: []int{2}},
		{Term: "stadium", Weight: types.WeightA, Positions: []int{3}},
	}}
	require.NoError(t, storage.PutVenueText(ctx, venue.ID, rep))

	repr, err := storage.GetVenueText(ctx, venue.ID)
	require.NoError(t, err)
	assert.Equal(t, rep.String(), repr)

	require.NoError(t, storage.DeleteVenueText(ctx, venue.ID))
	_, err = storage.GetVenueText(ctx, venue.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutVenueGeo(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	venue := createVenue(t, storage, "Lucas Oil Stadium", f64Ptr(39.7684), f64Ptr(-86.1581))
	point := &types.GeoPoint{Lon: -86.1581, Lat: 39.7684, SRID: types.SRIDWGS84}

	require.NoError(t, storage.PutVenueGeo(ctx, venue.ID, point))
	got, err := storage.GetVenue(ctx, venue.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Geo)
	assert.Equal(t, *point, *got.Geo)

	// Clearing removes both the materialized point and the R*Tree entry
	require.NoError(t, storage.PutVenueGeo(ctx, venue.ID, nil))
	got, err = storage.GetVenue(ctx, venue.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Geo)

	status, err := storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.GeoIndexedVenues)
	assert.False(t, status.Health.GeoIndexComplete)

	err = storage.PutVenueGeo(ctx, 999, point)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransaction_Rollback(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)

	venue := &types.Venue{Name: "Venue A"}
	require.NoError(t, tx.UpsertVenue(ctx, venue))
	_, err = tx.GetVenue(ctx, venue.ID)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	_, err = storage.GetVenue(ctx, venue.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransaction_Commit(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)

	venue := &types.Venue{Name: "Venue A", Latitude: f64Ptr(10), Longitude: f64Ptr(20)}
	require.NoError(t, tx.UpsertVenue(ctx, venue))
	require.NoError(t, tx.PutVenueGeo(ctx, venue.ID, &types.GeoPoint{Lon: 20, Lat: 10, SRID: types.SRIDWGS84}))

	status, err := tx.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.GeoIndexedVenues)
	require.NoError(t, tx.Commit())

	got, err := storage.GetVenue(ctx, venue.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.Geo)
}

func TestTransaction_Nested(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	_, err = tx.BeginTx(ctx)
	assert.ErrorIs(t, err, ErrNestedTx)
}

func TestBeginTx_AfterClose(t *testing.T) {
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, storage.Close())

	_, err = storage.BeginTx(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrStoreUnavailable))
}

func TestBeginTx_Canceled(t *testing.T) {
	storage := setupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := storage.BeginTx(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetStatus(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	createVenue(t, storage, "Venue A", f64Ptr(39.7684), f64Ptr(-86.1581))
	createVenue(t, storage, "Venue B", f64Ptr(39.7684), nil)
	createEvent(t, storage, "Concert Night", time.Now(), nil)

	status, err := storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, status.SchemaVersion)
	assert.Equal(t, 1, status.EventsCount)
	assert.Equal(t, 2, status.VenuesCount)
	assert.Equal(t, 1, status.VenuesWithCoords)
	assert.Equal(t, 0, status.EventTextRows)
	assert.True(t, status.Health.DatabaseAccessible)
	assert.False(t, status.Health.TextIndexComplete)
	assert.False(t, status.Health.GeoIndexComplete)
	assert.Greater(t, status.IndexSizeMB, 0.0)
}
