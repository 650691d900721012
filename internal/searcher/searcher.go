package searcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cwysong85/whenr-database/internal/geoindex"
	"github.com/cwysong85/whenr-database/internal/metrics"
	"github.com/cwysong85/whenr-database/internal/storage"
	"github.com/cwysong85/whenr-database/internal/textindex"
	"github.com/cwysong85/whenr-database/pkg/types"
)

const (
	// DefaultLimit is the page size when a request leaves it unset
	DefaultLimit = 20
	// MaxLimit caps the page size
	MaxLimit = 100
	// DefaultCacheSize is the number of cached responses
	DefaultCacheSize = 1000
	// DefaultCacheTTL bounds how long a cached response is served
	DefaultCacheTTL = 5 * time.Minute

	// invalidSortLabel is the query metric label for requests rejected before planning finishes
	invalidSortLabel = "invalid"
)

// Config contains configuration for the searcher
type Config struct {
	DefaultLimit int
	MaxLimit     int
	CacheSize    int           // 0 uses DefaultCacheSize, negative disables caching
	CacheTTL     time.Duration // 0 uses DefaultCacheTTL
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Filters Filters
	Sort    types.SortOrder
	Offset  int
	Limit   int
}

// SearchResponse contains one page of hits and metadata
type SearchResponse struct {
	Hits     []types.Hit
	Total    int // Size of the full result set before pagination
	Sort     types.SortOrder
	Offset   int
	Limit    int
	Duration time.Duration
	CacheHit bool
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher plans and executes compound searches over the derived indexes
type Searcher struct {
	storage storage.Storage
	text    *textindex.Indexer
	weights storage.TextWeights
	config  Config
	metrics *metrics.Metrics

	cache      *lru.Cache[[32]byte, *cacheEntry]
	cacheMu    sync.RWMutex
	generation atomic.Uint64
}

// NewSearcher creates a new Searcher. The text indexer must be the one
// writes are derived with so query terms are analyzed identically. m may be nil.
func NewSearcher(store storage.Storage, text *textindex.Indexer, config Config, m *metrics.Metrics) (*Searcher, error) {
	if config.MaxLimit <= 0 {
		config.MaxLimit = MaxLimit
	}
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = DefaultLimit
	}
	if config.DefaultLimit > config.MaxLimit {
		config.DefaultLimit = config.MaxLimit
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultCacheTTL
	}

	profile := text.Profile()
	s := &Searcher{
		storage: store,
		text:    text,
		weights: storage.TextWeights{Primary: profile.PrimaryWeight, Secondary: profile.SecondaryWeight},
		config:  config,
		metrics: m,
	}

	if config.CacheSize >= 0 {
		size := config.CacheSize
		if size == 0 {
			size = DefaultCacheSize
		}
		cache, err := lru.New[[32]byte, *cacheEntry](size)
		if err != nil {
			return nil, fmt.Errorf("failed to create LRU cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Search plans the request, runs it in one read transaction and returns the
// requested page.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (resp *SearchResponse, err error) {
	startTime := time.Now()
	sortLabel := invalidSortLabel
	defer func() {
		s.metrics.RecordQuery(sortLabel, time.Since(startTime), err)
	}()

	offset, limit, err := s.page(req)
	if err != nil {
		return nil, err
	}

	plan, err := s.Plan(req.Filters, req.Sort)
	if err != nil {
		return nil, err
	}
	req.Sort = plan.Sort
	sortLabel = string(plan.Sort)

	key := s.cacheKey(plan, offset, limit)
	if cached := s.checkCache(key); cached != nil {
		cached.CacheHit = true
		cached.Duration = time.Since(startTime)
		return cached, nil
	}

	hits, err := s.execute(ctx, plan, plan.Steps)
	if err != nil {
		return nil, err
	}

	response := &SearchResponse{
		Hits:   paginate(hits, offset, limit),
		Total:  len(hits),
		Sort:   plan.Sort,
		Offset: offset,
		Limit:  limit,
	}
	response.Duration = time.Since(startTime)
	s.storeInCache(key, response)
	return response, nil
}

// page applies pagination defaults and bounds
func (s *Searcher) page(req SearchRequest) (offset, limit int, err error) {
	if req.Offset < 0 {
		return 0, 0, fmt.Errorf("%w: offset cannot be negative", types.ErrInvalidRequest)
	}
	limit = req.Limit
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}
	if limit > s.config.MaxLimit {
		limit = s.config.MaxLimit
	}
	return req.Offset, limit, nil
}

// evaluation accumulates the outcome of plan steps
type evaluation struct {
	candidates    map[int64]struct{} // nil means every event
	venueDistance map[int64]float64
	eventScore    map[int64]float64
	venueScore    map[int64]float64
}

// execute runs the steps in the given order inside one read transaction and
// returns every hit, sorted. The hit set does not depend on the order.
func (s *Searcher) execute(ctx context.Context, plan *Plan, steps []StepKind) ([]types.Hit, error) {
	tx, err := s.storage.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ev := &evaluation{}
	for _, step := range steps {
		if ev.candidates != nil && len(ev.candidates) == 0 {
			break
		}
		var matched []int64
		switch step {
		case StepDate:
			dr := plan.Filters.DateRange
			matched, err = tx.EventsStartingBetween(ctx, dr.From, dr.To)
		case StepGeo:
			matched, err = s.geoStep(ctx, tx, plan, ev)
		case StepText:
			matched, err = s.textStep(ctx, tx, plan, ev)
		case StepPrice:
			matched, err = tx.EventsPricedBetween(ctx, plan.Filters.Price.storagePrice(), ev.ids())
		default:
			err = fmt.Errorf("unknown plan step %q", step)
		}
		if err != nil {
			return nil, fmt.Errorf("%s step: %w", step, err)
		}
		ev.intersect(matched)
		s.metrics.RecordStep(string(step), len(ev.candidates))
	}

	ids := ev.ids()
	if ids == nil {
		if ids, err = tx.EventsStartingBetween(ctx, nil, nil); err != nil {
			return nil, err
		}
	}

	refs, err := tx.EventRefs(ctx, ids)
	if err != nil {
		return nil, err
	}

	hits := make([]types.Hit, 0, len(refs))
	for _, ref := range refs {
		if !ref.TextIndexed || ref.GeoMissing {
			return nil, fmt.Errorf("event %d: %w", ref.ID, types.ErrEntityNotIndexed)
		}
		hit := types.Hit{EventID: ref.ID, VenueID: ref.VenueID, StartAt: ref.StartAt}
		if plan.Filters.Geo != nil && ref.VenueID != nil {
			if d, ok := ev.venueDistance[*ref.VenueID]; ok {
				hit.Distance = &d
			}
		}
		if plan.HasText() {
			score := ev.eventScore[ref.ID]
			if ref.VenueID != nil {
				score += ev.venueScore[*ref.VenueID]
			}
			hit.Score = &score
		}
		hits = append(hits, hit)
	}

	sortHits(hits, plan)
	for i := range hits {
		hits[i].Rank = i + 1
	}
	return hits, nil
}

// geoStep probes the spatial index, refines by exact distance and returns
// the events held at venues inside the radius
func (s *Searcher) geoStep(ctx context.Context, tx storage.Tx, plan *Plan, ev *evaluation) ([]int64, error) {
	geo := plan.Filters.Geo
	points, err := tx.VenuesWithin(ctx, plan.boxes)
	if err != nil {
		return nil, err
	}

	ev.venueDistance = make(map[int64]float64, len(points))
	venueIDs := make([]int64, 0, len(points))
	for _, vp := range points {
		d := geoindex.Distance(geo.Center, vp.Point)
		if d > geo.RadiusMeters {
			continue
		}
		ev.venueDistance[vp.ID] = d
		venueIDs = append(venueIDs, vp.ID)
	}
	return tx.EventsAtVenues(ctx, venueIDs)
}

// textStep matches the query terms against event and venue text. An event
// is kept if either its own text or its venue's name matches.
func (s *Searcher) textStep(ctx context.Context, tx storage.Tx, plan *Plan, ev *evaluation) ([]int64, error) {
	ev.eventScore = make(map[int64]float64)
	ev.venueScore = make(map[int64]float64)
	if len(plan.terms) == 0 {
		return []int64{}, nil
	}

	eventMatches, err := tx.MatchEventText(ctx, plan.terms, s.weights)
	if err != nil {
		return nil, err
	}
	venueMatches, err := tx.MatchVenueText(ctx, plan.terms, s.weights)
	if err != nil {
		return nil, err
	}

	matched := make([]int64, 0, len(eventMatches))
	for _, m := range eventMatches {
		ev.eventScore[m.ID] = m.Score
		matched = append(matched, m.ID)
	}

	venueIDs := make([]int64, 0, len(venueMatches))
	for _, m := range venueMatches {
		ev.venueScore[m.ID] = m.Score
		venueIDs = append(venueIDs, m.ID)
	}
	atVenues, err := tx.EventsAtVenues(ctx, venueIDs)
	if err != nil {
		return nil, err
	}
	return append(matched, atVenues...), nil
}

// intersect narrows the candidates to matched; the first step seeds them
func (ev *evaluation) intersect(matched []int64) {
	next := make(map[int64]struct{}, len(matched))
	for _, id := range matched {
		if ev.candidates == nil {
			next[id] = struct{}{}
			continue
		}
		if _, ok := ev.candidates[id]; ok {
			next[id] = struct{}{}
		}
	}
	ev.candidates = next
}

// ids returns the candidates sorted, or nil when unrestricted
func (ev *evaluation) ids() []int64 {
	if ev.candidates == nil {
		return nil
	}
	ids := make([]int64, 0, len(ev.candidates))
	for id := range ev.candidates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// sortHits orders hits by the plan's sort. Every order ends on event id so
// equal keys still produce a stable page boundary.
func sortHits(hits []types.Hit, plan *Plan) {
	byStartAsc := func(a, b types.Hit) bool {
		if !a.StartAt.Equal(b.StartAt) {
			return a.StartAt.Before(b.StartAt)
		}
		return a.EventID < b.EventID
	}
	byStartDesc := func(a, b types.Hit) bool {
		if !a.StartAt.Equal(b.StartAt) {
			return a.StartAt.After(b.StartAt)
		}
		return a.EventID < b.EventID
	}

	var less func(a, b types.Hit) bool
	switch plan.Sort {
	case types.SortDistance:
		less = func(a, b types.Hit) bool {
			da, db := derefOr(a.Distance, 0), derefOr(b.Distance, 0)
			if da != db {
				return da < db
			}
			return byStartAsc(a, b)
		}
	case types.SortRelevance:
		if !plan.HasText() {
			less = byStartDesc
			break
		}
		less = func(a, b types.Hit) bool {
			sa, sb := derefOr(a.Score, 0), derefOr(b.Score, 0)
			if sa != sb {
				return sa > sb
			}
			return byStartDesc(a, b)
		}
	default:
		less = byStartAsc
	}

	sort.Slice(hits, func(i, j int) bool { return less(hits[i], hits[j]) })
}

func derefOr(f *float64, fallback float64) float64 {
	if f == nil {
		return fallback
	}
	return *f
}

func paginate(hits []types.Hit, offset, limit int) []types.Hit {
	if offset >= len(hits) {
		return []types.Hit{}
	}
	end := offset + limit
	if end > len(hits) {
		end = len(hits)
	}
	return append([]types.Hit(nil), hits[offset:end]...)
}

// Invalidate drops every cached response. Writers call it after each commit.
func (s *Searcher) Invalidate() {
	gen := s.generation.Add(1)
	s.metrics.SetGeneration(gen)
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// Generation returns the number of invalidations so far
func (s *Searcher) Generation() uint64 {
	return s.generation.Load()
}

// cacheKey hashes the plan together with the index generation, so an entry
// stored before a write can never be served after it
func (s *Searcher) cacheKey(plan *Plan, offset, limit int) [32]byte {
	data := fmt.Sprintf("gen=%d|%s", s.generation.Load(), plan.cacheKey(offset, limit))
	return sha256.Sum256([]byte(data))
}

// checkCache looks up a cached response, returning a copy or nil
func (s *Searcher) checkCache(key [32]byte) *SearchResponse {
	if s.cache == nil {
		return nil
	}
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(key)
	if !found {
		s.cacheMu.RUnlock()
		s.metrics.RecordCache(false)
		return nil
	}

	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		s.cacheMu.Lock()
		s.cache.Remove(key)
		s.cacheMu.Unlock()
		s.metrics.RecordCache(false)
		return nil
	}

	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()
	s.metrics.RecordCache(true)
	return response
}

// storeInCache saves a copy of the response
func (s *Searcher) storeInCache(key [32]byte, response *SearchResponse) {
	if s.cache == nil {
		return
	}
	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(s.config.CacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(key, entry)
	s.cacheMu.Unlock()
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Hits = make([]types.Hit, len(src.Hits))
	for i, hit := range src.Hits {
		dst.Hits[i] = hit
		if hit.VenueID != nil {
			v := *hit.VenueID
			dst.Hits[i].VenueID = &v
		}
		if hit.Distance != nil {
			d := *hit.Distance
			dst.Hits[i].Distance = &d
		}
		if hit.Score != nil {
			sc := *hit.Score
			dst.Hits[i].Score = &sc
		}
	}
	return &dst
}
