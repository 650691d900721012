package searcher

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/cwysong85/whenr-database/internal/geoindex"
	"github.com/cwysong85/whenr-database/internal/indexer"
	"github.com/cwysong85/whenr-database/internal/metrics"
	"github.com/cwysong85/whenr-database/internal/storage"
	"github.com/cwysong85/whenr-database/internal/textindex"
	"github.com/cwysong85/whenr-database/pkg/types"
)

type fixture struct {
	store    *storage.SQLiteStorage
	writer   *indexer.Writer
	searcher *Searcher
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	text, err := textindex.New(textindex.DefaultProfile())
	require.NoError(t, err)

	s, err := NewSearcher(store, text, Config{}, nil)
	require.NoError(t, err)

	writer := indexer.NewWriter(store, indexer.NewMaintainer(text, nil))
	writer.OnCommit(s.Invalidate)

	return &fixture{store: store, writer: writer, searcher: s}
}

func ptr[T any](v T) *T { return &v }

func day(month time.Month, d int) time.Time {
	return time.Date(2025, month, d, 19, 0, 0, 0, time.UTC)
}

func (f *fixture) venue(t *testing.T, name string, lat, lon *float64) *types.Venue {
	t.Helper()
	v := &types.Venue{Name: name, Latitude: lat, Longitude: lon}
	require.NoError(t, f.writer.SaveVenue(context.Background(), v))
	return v
}

func (f *fixture) event(t *testing.T, title string, description *string, start time.Time, venue *types.Venue) *types.Event {
	t.Helper()
	e := &types.Event{Title: title, Description: description, StartAt: start}
	if venue != nil {
		e.VenueID = ptr(venue.ID)
	}
	require.NoError(t, f.writer.SaveEvent(context.Background(), e))
	return e
}

func (f *fixture) offer(t *testing.T, event *types.Event, price float64) {
	t.Helper()
	o := &types.Offer{EventID: event.ID, Price: ptr(price), Currency: ptr("USD")}
	require.NoError(t, f.writer.SaveOffer(context.Background(), o))
}

func (f *fixture) search(t *testing.T, req SearchRequest) *SearchResponse {
	t.Helper()
	resp, err := f.searcher.Search(context.Background(), req)
	require.NoError(t, err)
	return resp
}

func eventIDs(hits []types.Hit) []int64 {
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.EventID
	}
	return ids
}

// downtown Indianapolis, a few blocks from the stadium
func downtown(miles float64) *GeoFilter {
	return NewGeoFilter(39.77, -86.15, geoindex.MilesToMeters(miles))
}

func TestSearch_LucasOilStadium(t *testing.T) {
	f := setup(t)
	stadium := f.venue(t, "Lucas Oil Stadium", ptr(39.7684), ptr(-86.1581))
	concert := f.event(t, "Concert Night", nil, day(time.June, 1), stadium)

	resp := f.search(t, SearchRequest{
		Filters: Filters{Geo: downtown(5), Text: "concert"},
	})

	require.Len(t, resp.Hits, 1)
	hit := resp.Hits[0]
	assert.Equal(t, concert.ID, hit.EventID)
	require.NotNil(t, hit.VenueID)
	assert.Equal(t, stadium.ID, *hit.VenueID)
	assert.Equal(t, 1, hit.Rank)

	require.NotNil(t, hit.Distance)
	assert.InDelta(t, 715, *hit.Distance, 25)
	assert.Less(t, *hit.Distance, geoindex.MilesToMeters(5))

	require.NotNil(t, hit.Score)
	assert.Greater(t, *hit.Score, 0.0)
}

func TestSearch_LatitudeOnlyVenueNeverGeoMatched(t *testing.T) {
	f := setup(t)
	half := f.venue(t, "Half Mapped Hall", ptr(39.77), nil)
	f.event(t, "Concert Night", nil, day(time.June, 1), half)

	resp := f.search(t, SearchRequest{Filters: Filters{Geo: downtown(50)}})
	assert.Empty(t, resp.Hits)

	// Still found by text, without a distance
	resp = f.search(t, SearchRequest{Filters: Filters{Text: "concert"}})
	require.Len(t, resp.Hits, 1)
	assert.Nil(t, resp.Hits[0].Distance)
}

func TestSearch_DistanceSortRequiresGeo(t *testing.T) {
	f := setup(t)

	_, err := f.searcher.Search(context.Background(), SearchRequest{
		Filters: Filters{Text: "concert"},
		Sort:    types.SortDistance,
	})
	assert.ErrorIs(t, err, types.ErrInvalidSortRequest)
}

func TestSearch_RejectedSortUsesFixedMetricLabel(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	text, err := textindex.New(textindex.DefaultProfile())
	require.NoError(t, err)
	m := metrics.New()
	s, err := NewSearcher(store, text, Config{}, m)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Search(ctx, SearchRequest{Sort: types.SortOrder("bogus-1")})
	assert.ErrorIs(t, err, types.ErrInvalidSortRequest)
	_, err = s.Search(ctx, SearchRequest{Sort: types.SortOrder("bogus-2")})
	assert.ErrorIs(t, err, types.ErrInvalidSortRequest)
	_, err = s.Search(ctx, SearchRequest{Sort: types.SortDate})
	require.NoError(t, err)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	sorts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "whenr_queries_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "sort" {
					sorts[label.GetValue()] += metric.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, map[string]float64{"invalid": 2, "DATE": 1}, sorts)
}

func TestSearch_SortDate(t *testing.T) {
	f := setup(t)
	late := f.event(t, "Late Show", nil, day(time.July, 1), nil)
	early := f.event(t, "Early Show", nil, day(time.May, 1), nil)
	tiedA := f.event(t, "Tied Show", nil, day(time.June, 1), nil)
	tiedB := f.event(t, "Tied Show Again", nil, day(time.June, 1), nil)

	resp := f.search(t, SearchRequest{})
	assert.Equal(t, types.SortDate, resp.Sort)
	assert.Equal(t, []int64{early.ID, tiedA.ID, tiedB.ID, late.ID}, eventIDs(resp.Hits))
	for i, hit := range resp.Hits {
		assert.Equal(t, i+1, hit.Rank)
		assert.Nil(t, hit.Distance)
		assert.Nil(t, hit.Score)
	}
}

func TestSearch_SortDistance(t *testing.T) {
	f := setup(t)
	far := f.venue(t, "Far Field", ptr(39.85), ptr(-86.15))
	near := f.venue(t, "Lucas Oil Stadium", ptr(39.7684), ptr(-86.1581))
	mid := f.venue(t, "Mid Arena", ptr(39.80), ptr(-86.15))
	chicago := f.venue(t, "Soldier Field", ptr(41.8623), ptr(-87.6167))

	atFar := f.event(t, "Far Show", nil, day(time.June, 1), far)
	atNear := f.event(t, "Near Show", nil, day(time.June, 3), near)
	atMid := f.event(t, "Mid Show", nil, day(time.June, 2), mid)
	f.event(t, "Chicago Show", nil, day(time.June, 4), chicago)

	resp := f.search(t, SearchRequest{
		Filters: Filters{Geo: downtown(10)},
		Sort:    "distance",
	})

	assert.Equal(t, types.SortDistance, resp.Sort)
	assert.Equal(t, []int64{atNear.ID, atMid.ID, atFar.ID}, eventIDs(resp.Hits))
	for i := 1; i < len(resp.Hits); i++ {
		assert.LessOrEqual(t, *resp.Hits[i-1].Distance, *resp.Hits[i].Distance)
	}
}

func TestSearch_SortRelevance(t *testing.T) {
	f := setup(t)
	inDescription := f.event(t, "Open Mic", ptr("Jazz evening standards"), day(time.June, 1), nil)
	inTitle := f.event(t, "Jazz Evening", ptr("Open mic standards"), day(time.June, 2), nil)
	f.event(t, "Poetry Slam", ptr("Spoken word night"), day(time.June, 3), nil)

	resp := f.search(t, SearchRequest{
		Filters: Filters{Text: "jazz"},
		Sort:    types.SortRelevance,
	})

	require.Equal(t, []int64{inTitle.ID, inDescription.ID}, eventIDs(resp.Hits))
	assert.Greater(t, *resp.Hits[0].Score, *resp.Hits[1].Score)
}

func TestSearch_SortRelevanceWithoutText(t *testing.T) {
	f := setup(t)
	first := f.event(t, "First", nil, day(time.June, 1), nil)
	second := f.event(t, "Second", nil, day(time.June, 2), nil)

	resp := f.search(t, SearchRequest{Sort: types.SortRelevance})
	assert.Equal(t, []int64{second.ID, first.ID}, eventIDs(resp.Hits))
	assert.Nil(t, resp.Hits[0].Score)
}

func TestSearch_VenueNameMatches(t *testing.T) {
	f := setup(t)
	stadium := f.venue(t, "Lucas Oil Stadium", ptr(39.7684), ptr(-86.1581))
	hall := f.venue(t, "Old National Centre", ptr(39.7707), ptr(-86.1497))
	atStadium := f.event(t, "Colts vs Titans", nil, day(time.September, 7), stadium)
	f.event(t, "Comedy Hour", nil, day(time.September, 8), hall)

	resp := f.search(t, SearchRequest{Filters: Filters{Text: "stadium"}})
	require.Equal(t, []int64{atStadium.ID}, eventIDs(resp.Hits))
	assert.Greater(t, *resp.Hits[0].Score, 0.0)
}

func TestSearch_AllTermsMustMatch(t *testing.T) {
	f := setup(t)
	both := f.event(t, "Summer Jazz Festival", nil, day(time.June, 1), nil)
	f.event(t, "Summer Food Fair", nil, day(time.June, 2), nil)

	resp := f.search(t, SearchRequest{Filters: Filters{Text: "summer jazz"}})
	assert.Equal(t, []int64{both.ID}, eventIDs(resp.Hits))
}

func TestSearch_StopWordsOnlyMatchesNothing(t *testing.T) {
	f := setup(t)
	f.event(t, "The Show", nil, day(time.June, 1), nil)

	resp := f.search(t, SearchRequest{Filters: Filters{Text: "the and"}})
	assert.Empty(t, resp.Hits)
	assert.Equal(t, 0, resp.Total)
}

func TestSearch_DateRange(t *testing.T) {
	f := setup(t)
	f.event(t, "May", nil, day(time.May, 31), nil)
	onFrom := f.event(t, "June First", nil, day(time.June, 1), nil)
	onTo := f.event(t, "June Last", nil, day(time.June, 30), nil)
	f.event(t, "July", nil, day(time.July, 1), nil)

	resp := f.search(t, SearchRequest{Filters: Filters{
		DateRange: &DateRange{From: ptr(day(time.June, 1)), To: ptr(day(time.June, 30))},
	}})
	assert.Equal(t, []int64{onFrom.ID, onTo.ID}, eventIDs(resp.Hits))

	resp = f.search(t, SearchRequest{Filters: Filters{
		DateRange: &DateRange{From: ptr(day(time.June, 2))},
	}})
	assert.Equal(t, 2, resp.Total)
}

func TestSearch_PriceRange(t *testing.T) {
	f := setup(t)
	cheap := f.event(t, "Cheap", nil, day(time.June, 1), nil)
	pricey := f.event(t, "Pricey", nil, day(time.June, 2), nil)
	mixed := f.event(t, "Mixed", nil, day(time.June, 3), nil)
	f.event(t, "No Offers", nil, day(time.June, 4), nil)

	f.offer(t, cheap, 10)
	f.offer(t, pricey, 250)
	f.offer(t, mixed, 15)
	f.offer(t, mixed, 400)

	resp := f.search(t, SearchRequest{Filters: Filters{
		Price: &PriceRange{Min: ptr(5.0), Max: ptr(50.0), Currency: "usd"},
	}})
	assert.Equal(t, []int64{cheap.ID, mixed.ID}, eventIDs(resp.Hits))

	resp = f.search(t, SearchRequest{Filters: Filters{
		Price: &PriceRange{Min: ptr(5.0), Max: ptr(50.0), Currency: "EUR"},
	}})
	assert.Empty(t, resp.Hits)
}

func TestSearch_PriceCurrencyIgnoresCase(t *testing.T) {
	f := setup(t)
	e := f.event(t, "Lowercase Currency", nil, day(time.June, 1), nil)
	o := &types.Offer{EventID: e.ID, Price: ptr(30.0), Currency: ptr("usd")}
	require.NoError(t, f.writer.SaveOffer(context.Background(), o))

	for _, currency := range []string{"usd", "USD", "Usd"} {
		resp := f.search(t, SearchRequest{Filters: Filters{
			Price: &PriceRange{Min: ptr(10.0), Max: ptr(50.0), Currency: currency},
		}})
		assert.Equal(t, []int64{e.ID}, eventIDs(resp.Hits), currency)
	}
}

func TestSearch_Pagination(t *testing.T) {
	f := setup(t)
	var ids []int64
	for i := 1; i <= 5; i++ {
		ids = append(ids, f.event(t, "Show", nil, day(time.June, i), nil).ID)
	}

	resp := f.search(t, SearchRequest{Offset: 2, Limit: 2})
	assert.Equal(t, 5, resp.Total)
	assert.Equal(t, ids[2:4], eventIDs(resp.Hits))
	assert.Equal(t, 3, resp.Hits[0].Rank)
	assert.Equal(t, 4, resp.Hits[1].Rank)

	resp = f.search(t, SearchRequest{Offset: 10})
	assert.Empty(t, resp.Hits)
	assert.Equal(t, 5, resp.Total)

	resp = f.search(t, SearchRequest{})
	assert.Equal(t, DefaultLimit, resp.Limit)

	resp = f.search(t, SearchRequest{Limit: 1000})
	assert.Equal(t, MaxLimit, resp.Limit)

	_, err := f.searcher.Search(context.Background(), SearchRequest{Offset: -1})
	assert.ErrorIs(t, err, types.ErrInvalidRequest)
}

func TestSearch_NoStaleResults(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	stadium := f.venue(t, "Lucas Oil Stadium", ptr(39.7684), ptr(-86.1581))
	event := f.event(t, "Concert Night", nil, day(time.June, 1), stadium)

	query := SearchRequest{Filters: Filters{Geo: downtown(5), Text: "concert"}}
	require.Len(t, f.search(t, query).Hits, 1)

	event.Title = "Comedy Night"
	require.NoError(t, f.writer.SaveEvent(ctx, event))
	assert.Empty(t, f.search(t, query).Hits)

	event.Title = "Concert Night"
	require.NoError(t, f.writer.SaveEvent(ctx, event))
	require.Len(t, f.search(t, query).Hits, 1)

	// Move the venue to Chicago
	stadium.Latitude, stadium.Longitude = ptr(41.8623), ptr(-87.6167)
	require.NoError(t, f.writer.SaveVenue(ctx, stadium))
	assert.Empty(t, f.search(t, query).Hits)
}

// TestSearch_ConcurrentWritersAndSearchers is meant to run under go test -race.
// Searches that overlap writes must never see a half-indexed entity.
func TestSearch_ConcurrentWritersAndSearchers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	const writers = 8
	query := SearchRequest{Filters: Filters{Geo: downtown(5), Text: "concert"}}

	var g errgroup.Group
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			v := &types.Venue{Name: fmt.Sprintf("Hall %d", i), Latitude: ptr(39.7684), Longitude: ptr(-86.1581)}
			if err := f.writer.SaveVenue(ctx, v); err != nil {
				return err
			}
			e := &types.Event{Title: "Concert Night", StartAt: day(time.June, i+1), VenueID: ptr(v.ID)}
			if err := f.writer.SaveEvent(ctx, e); err != nil {
				return err
			}
			_, err := f.searcher.Search(ctx, query)
			return err
		})
		g.Go(func() error {
			for j := 0; j < 5; j++ {
				if _, err := f.searcher.Search(ctx, query); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	resp := f.search(t, query)
	assert.Equal(t, writers, resp.Total)
	for _, hit := range resp.Hits {
		require.NotNil(t, hit.Distance)
		assert.Less(t, *hit.Distance, geoindex.MilesToMeters(5))
	}
}

func TestSearch_EntityNotIndexed(t *testing.T) {
	f := setup(t)
	f.event(t, "Indexed Show", nil, day(time.June, 1), nil)

	// Written around the maintainer, so no text row exists
	orphan := &types.Event{Title: "Orphan", StartAt: day(time.June, 2)}
	require.NoError(t, f.store.UpsertEvent(context.Background(), orphan))
	f.searcher.Invalidate()

	_, err := f.searcher.Search(context.Background(), SearchRequest{})
	assert.ErrorIs(t, err, types.ErrEntityNotIndexed)
}

func TestSearch_StoreUnavailable(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.store.Close())

	_, err := f.searcher.Search(context.Background(), SearchRequest{})
	assert.ErrorIs(t, err, types.ErrStoreUnavailable)
}

func TestSearch_CacheInvalidatedByWrites(t *testing.T) {
	f := setup(t)
	f.event(t, "Concert Night", nil, day(time.June, 1), nil)
	query := SearchRequest{Filters: Filters{Text: "concert"}}

	first := f.search(t, query)
	assert.False(t, first.CacheHit)

	second := f.search(t, query)
	assert.True(t, second.CacheHit)
	assert.Equal(t, eventIDs(first.Hits), eventIDs(second.Hits))

	// Mutating a cached copy does not leak into the cache
	*second.Hits[0].Score = -1
	third := f.search(t, query)
	assert.Greater(t, *third.Hits[0].Score, 0.0)

	gen := f.searcher.Generation()
	f.event(t, "Concert Encore", nil, day(time.June, 2), nil)
	assert.Greater(t, f.searcher.Generation(), gen)

	fourth := f.search(t, query)
	assert.False(t, fourth.CacheHit)
	assert.Len(t, fourth.Hits, 2)
}

func TestSearch_CacheDisabled(t *testing.T) {
	f := setup(t)
	text, err := textindex.New(textindex.DefaultProfile())
	require.NoError(t, err)
	s, err := NewSearcher(f.store, text, Config{CacheSize: -1}, nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		resp, err := s.Search(context.Background(), SearchRequest{})
		require.NoError(t, err)
		assert.False(t, resp.CacheHit)
	}
}

func TestExecute_StepOrderIndependent(t *testing.T) {
	f := setup(t)
	stadium := f.venue(t, "Lucas Oil Stadium", ptr(39.7684), ptr(-86.1581))
	hall := f.venue(t, "Concert Hall", ptr(39.7707), ptr(-86.1497))
	chicago := f.venue(t, "Soldier Field", ptr(41.8623), ptr(-87.6167))
	half := f.venue(t, "Half Mapped", ptr(39.77), nil)

	match := f.event(t, "Concert Night", nil, day(time.June, 1), stadium)
	byVenue := f.event(t, "Orchestra", nil, day(time.June, 5), hall)
	wrongDate := f.event(t, "Concert Night", nil, day(time.August, 1), stadium)
	wrongPlace := f.event(t, "Concert Night", nil, day(time.June, 2), chicago)
	noGeo := f.event(t, "Concert Night", nil, day(time.June, 3), half)
	wrongText := f.event(t, "Comedy Night", nil, day(time.June, 4), stadium)
	wrongPrice := f.event(t, "Concert Night", nil, day(time.June, 6), hall)
	for _, e := range []*types.Event{match, byVenue, wrongDate, wrongPlace, noGeo, wrongText} {
		f.offer(t, e, 40)
	}
	f.offer(t, wrongPrice, 500)

	plan, err := f.searcher.Plan(Filters{
		DateRange: &DateRange{From: ptr(day(time.June, 1)), To: ptr(day(time.June, 30))},
		Geo:       downtown(5),
		Text:      "concert",
		Price:     &PriceRange{Max: ptr(100.0)},
	}, types.SortRelevance)
	require.NoError(t, err)
	require.Equal(t, []StepKind{StepDate, StepGeo, StepText, StepPrice}, plan.Steps)

	want, err := f.searcher.execute(context.Background(), plan, plan.Steps)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{match.ID, byVenue.ID}, eventIDs(want))

	for _, order := range permutations(plan.Steps) {
		got, err := f.searcher.execute(context.Background(), plan, order)
		require.NoError(t, err)
		assert.Equal(t, want, got, "order %v", order)
	}
}

func permutations(steps []StepKind) [][]StepKind {
	if len(steps) <= 1 {
		return [][]StepKind{append([]StepKind(nil), steps...)}
	}
	var out [][]StepKind
	for i := range steps {
		rest := make([]StepKind, 0, len(steps)-1)
		rest = append(rest, steps[:i]...)
		rest = append(rest, steps[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]StepKind{steps[i]}, p...))
		}
	}
	return out
}
