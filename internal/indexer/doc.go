// Package indexer keeps the derived search representations of events and
// venues consistent with their source rows.
//
// # Basic Usage
//
//	text, _ := textindex.New(textindex.DefaultProfile())
//	maintainer := indexer.NewMaintainer(text, nil)
//	writer := indexer.NewWriter(store, maintainer)
//
//	venue := &types.Venue{Name: "Lucas Oil Stadium", Latitude: &lat, Longitude: &lon}
//	if err := writer.SaveVenue(ctx, venue); err != nil {
//	    // errors.Is(err, types.ErrInvalidCoordinate) when lat/lon are out of range
//	    return err
//	}
//
// # Synchronous Maintenance
//
// Every write runs in one transaction:
//
//  1. Diff the incoming entity against its stored row
//  2. Upsert the source row
//  3. Maintainer.OnWrite re-derives the representations the changed fields feed
//  4. Commit, then run commit hooks (search cache invalidation)
//
// If derivation fails the transaction is rolled back, so a reader never sees
// a source row whose text or spatial representation is out of date.
//
// Only contributing fields trigger recomputation:
//
//	event title, description   -> event text (weights A, B)
//	venue name                 -> venue text (weight A)
//	venue latitude, longitude  -> venue GeoPoint (present only if both are set)
//
// # Backfill
//
// Reindex rebuilds every representation with a bounded worker pool, one
// transaction per entity:
//
//	stats, err := writer.Reindex(ctx, &indexer.ReindexConfig{Workers: 4})
//	fmt.Printf("events=%d venues=%d failed=%d\n",
//	    stats.EventsIndexed, stats.VenuesIndexed, stats.Failed)
//
// Only one Reindex may run at a time; a concurrent call gets ErrReindexInProgress.
package indexer
