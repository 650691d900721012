package storage

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cwysong85/whenr-database/internal/geoindex"
)

// maxInParams bounds the number of ids bound into one IN (...) list
const maxInParams = 500

// eventsStartingBetween returns events whose start lies in [from, to]; nil bounds are open
func eventsStartingBetween(ctx context.Context, q querier, from, to *time.Time) ([]int64, error) {
	query := "SELECT id FROM events WHERE 1=1"
	var args []interface{}
	if from != nil {
		query += " AND start_at >= ?"
		args = append(args, toMillis(*from))
	}
	if to != nil {
		query += " AND start_at <= ?"
		args = append(args, toMillis(*to))
	}
	query += " ORDER BY id"

	ids, err := queryIDs(ctx, q, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan date range: %w", err)
	}
	return ids, nil
}

// eventsAtVenues returns the events hosted by any of the venues
func eventsAtVenues(ctx context.Context, q querier, venueIDs []int64) ([]int64, error) {
	ids := []int64{}
	for _, chunk := range chunkIDs(venueIDs) {
		query := "SELECT id FROM events WHERE venue_id IN (" + placeholders(len(chunk)) + ")"
		found, err := queryIDs(ctx, q, query, idArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("failed to load events at venues: %w", err)
		}
		ids = append(ids, found...)
	}
	return ids, nil
}

// venuesWithin probes the R*Tree with each box and returns the venues found,
// with their exact materialized GeoPoints for refinement by the caller.
func venuesWithin(ctx context.Context, q querier, boxes []geoindex.Box) ([]VenuePoint, error) {
	query := `
		SELECT v.id, v.geo_lon, v.geo_lat, v.geo_srid
		FROM venue_geo g
		INNER JOIN venues v ON v.id = g.id
		WHERE g.max_lon >= ? AND g.min_lon <= ?
		AND g.max_lat >= ? AND g.min_lat <= ?
		AND v.geo_lon IS NOT NULL AND v.geo_lat IS NOT NULL
	`
	seen := make(map[int64]bool)
	points := []VenuePoint{}
	for _, box := range boxes {
		rows, err := q.QueryContext(ctx, query, box.MinLon, box.MaxLon, box.MinLat, box.MaxLat)
		if err != nil {
			return nil, fmt.Errorf("failed to probe spatial index: %w", err)
		}
		for rows.Next() {
			var vp VenuePoint
			if err := rows.Scan(&vp.ID, &vp.Point.Lon, &vp.Point.Lat, &vp.Point.SRID); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("failed to scan venue point: %w", err)
			}
			if seen[vp.ID] {
				continue
			}
			seen[vp.ID] = true
			points = append(points, vp)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return points, nil
}

// matchEventText returns events whose text contains every term. Scores are
// bm25 with the primary/secondary column weights, negated so higher is better.
func matchEventText(ctx context.Context, q querier, terms []string, weights TextWeights) ([]TextMatch, error) {
	expr := buildMatchExpr(terms)
	if expr == "" {
		return []TextMatch{}, nil
	}
	// bm25 weights must be SQL literals
	if err := checkWeights(weights.Primary, weights.Secondary); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT rowid, -bm25(event_text, %g, %g, 0.0) AS score
		FROM event_text
		WHERE event_text MATCH ?
	`, weights.Primary, weights.Secondary)
	return collectTextMatches(ctx, q, query, expr)
}

// matchVenueText returns venues whose name contains every term
func matchVenueText(ctx context.Context, q querier, terms []string, weights TextWeights) ([]TextMatch, error) {
	expr := buildMatchExpr(terms)
	if expr == "" {
		return []TextMatch{}, nil
	}
	if err := checkWeights(weights.Primary); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT rowid, -bm25(venue_text, %g, 0.0) AS score
		FROM venue_text
		WHERE venue_text MATCH ?
	`, weights.Primary)
	return collectTextMatches(ctx, q, query, expr)
}

func checkWeights(weights ...float64) error {
	for _, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w <= 0 {
			return fmt.Errorf("%w: %v", ErrInvalidWeights, w)
		}
	}
	return nil
}

func collectTextMatches(ctx context.Context, q querier, query, expr string) ([]TextMatch, error) {
	rows, err := q.QueryContext(ctx, query, expr)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	matches := []TextMatch{}
	for rows.Next() {
		var m TextMatch
		if err := rows.Scan(&m.ID, &m.Score); err != nil {
			return nil, fmt.Errorf("failed to scan text match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// buildMatchExpr turns analyzed terms into an FTS5 expression requiring all
// of them. Each term is a quoted string so FTS5 operators are never parsed.
func buildMatchExpr(terms []string) string {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " AND ")
}

// eventsPricedBetween returns events with at least one priced offer in range.
// A nil within means all events; an empty one matches nothing.
func eventsPricedBetween(ctx context.Context, q querier, price PriceRange, within []int64) ([]int64, error) {
	base := "SELECT DISTINCT event_id FROM offers WHERE price IS NOT NULL"
	var args []interface{}
	if price.Min != nil {
		base += " AND price >= ?"
		args = append(args, *price.Min)
	}
	if price.Max != nil {
		base += " AND price <= ?"
		args = append(args, *price.Max)
	}
	if price.Currency != "" {
		base += " AND UPPER(currency) = ?"
		args = append(args, strings.ToUpper(price.Currency))
	}

	if within == nil {
		ids, err := queryIDs(ctx, q, base+" ORDER BY event_id", args...)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price range: %w", err)
		}
		return ids, nil
	}

	ids := []int64{}
	for _, chunk := range chunkIDs(within) {
		query := base + " AND event_id IN (" + placeholders(len(chunk)) + ")"
		chunkArgs := append(append([]interface{}{}, args...), idArgs(chunk)...)
		found, err := queryIDs(ctx, q, query, chunkArgs...)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price range: %w", err)
		}
		ids = append(ids, found...)
	}
	return ids, nil
}

// eventRefs loads the ordering columns and derived-row flags for the events.
// Ids with no row are omitted.
func eventRefs(ctx context.Context, q querier, eventIDs []int64) ([]EventRef, error) {
	refs := make([]EventRef, 0, len(eventIDs))
	for _, chunk := range chunkIDs(eventIDs) {
		query := `
			SELECT e.id, e.venue_id, e.start_at,
			       t.rowid IS NOT NULL AS text_indexed,
			       (v.latitude IS NOT NULL AND v.longitude IS NOT NULL AND v.geo_lon IS NULL) AS geo_missing
			FROM events e
			LEFT JOIN event_text t ON t.rowid = e.id
			LEFT JOIN venues v ON v.id = e.venue_id
			WHERE e.id IN (` + placeholders(len(chunk)) + `)
		`
		rows, err := q.QueryContext(ctx, query, idArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("failed to load event refs: %w", err)
		}
		for rows.Next() {
			var (
				ref     EventRef
				startAt int64
			)
			if err := rows.Scan(&ref.ID, &ref.VenueID, &startAt, &ref.TextIndexed, &ref.GeoMissing); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("failed to scan event ref: %w", err)
			}
			ref.StartAt = fromMillis(startAt)
			refs = append(refs, ref)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return refs, nil
}

// chunkIDs splits ids into groups of at most maxInParams
func chunkIDs(ids []int64) [][]int64 {
	var chunks [][]int64
	for start := 0; start < len(ids); start += maxInParams {
		end := start + maxInParams
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
