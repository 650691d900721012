// Package searcher plans and executes compound event searches over the
// derived text and spatial indexes.
//
// A request combines up to four filters. Each present filter becomes a plan
// step, and steps always run in the order date, geo, text, price. Every step
// intersects its matches with the candidates left by the steps before it, so
// the hit set is the same whatever order the steps run in.
//
// # Basic Usage
//
//	s, err := searcher.NewSearcher(store, textIndexer, searcher.Config{}, nil)
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Filters: searcher.Filters{
//	        Geo:  searcher.NewGeoFilter(39.7601, -86.1639, geoindex.MilesToMeters(5)),
//	        Text: "colts",
//	    },
//	    Sort: types.SortDistance,
//	})
//
//	for _, hit := range resp.Hits {
//	    fmt.Printf("[%d] event %d at %.0fm\n", hit.Rank, hit.EventID, *hit.Distance)
//	}
//
// # Sort Orders
//
//   - DATE: start time ascending (the default)
//   - DISTANCE: meters from the geo filter center ascending; requires a geo filter
//   - RELEVANCE: text score descending, then start time descending. Without a
//     text query every score ties and the order falls back to start time.
//
// Every order breaks remaining ties on event id.
//
// # Text Matching
//
// Query text is analyzed by the same textindex.Indexer that derived the
// stored representations. All terms must match. An event matches on its own
// title and description or on its venue's name, and its score is the sum of
// both. Title terms weigh more than description terms.
//
// # Caching
//
// Responses are cached in an LRU keyed by the plan, the page and the index
// generation. Invalidate bumps the generation and purges the cache; wire it
// to the writer's commit hook so no response outlives the write that changed
// it.
//
// # Consistency
//
// A search runs inside one read transaction. If a hydrated event lacks its
// text row, or sits at a venue with coordinates but no spatial entry, the
// search fails with types.ErrEntityNotIndexed rather than returning a
// partial answer.
package searcher
