package searcher

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cwysong85/whenr-database/internal/geoindex"
	"github.com/cwysong85/whenr-database/internal/storage"
	"github.com/cwysong85/whenr-database/pkg/types"
)

// StepKind names one filter step of a plan
type StepKind string

const (
	StepDate  StepKind = "date"
	StepGeo   StepKind = "geo"
	StepText  StepKind = "text"
	StepPrice StepKind = "price"
)

// stepOrder is the fixed execution order, most selective first
var stepOrder = []StepKind{StepDate, StepGeo, StepText, StepPrice}

// DateRange bounds event start times, inclusive. Either bound may be nil.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// GeoFilter keeps events whose venue lies within RadiusMeters of Center
type GeoFilter struct {
	Center       types.GeoPoint
	RadiusMeters float64
}

// NewGeoFilter builds a filter from latitude/longitude order, the order
// callers usually speak in
func NewGeoFilter(lat, lon, radiusMeters float64) *GeoFilter {
	return &GeoFilter{
		Center:       types.GeoPoint{Lon: lon, Lat: lat, SRID: types.SRIDWGS84},
		RadiusMeters: radiusMeters,
	}
}

// PriceRange keeps events with at least one priced offer in [Min, Max]
type PriceRange struct {
	Min      *float64
	Max      *float64
	Currency string
}

// Filters is the compound predicate. Nil or empty members are absent.
type Filters struct {
	DateRange *DateRange
	Geo       *GeoFilter
	Text      string
	Price     *PriceRange
}

// Plan is a validated, ordered query ready for execution
type Plan struct {
	Filters Filters
	Sort    types.SortOrder
	Steps   []StepKind

	terms []string
	boxes []geoindex.Box
}

// HasText reports whether the plan carries a text query
func (p *Plan) HasText() bool {
	return p.Filters.Text != ""
}

// Terms returns the analyzed query terms
func (p *Plan) Terms() []string {
	return append([]string(nil), p.terms...)
}

// Plan validates filters and sort and orders the steps date, geo, text, price.
// An empty sort means DATE.
func (s *Searcher) Plan(filters Filters, sort types.SortOrder) (*Plan, error) {
	if sort == "" {
		sort = types.SortDate
	}
	sort = types.SortOrder(strings.ToUpper(string(sort)))

	switch sort {
	case types.SortDate, types.SortRelevance:
	case types.SortDistance:
		if filters.Geo == nil {
			return nil, fmt.Errorf("%w: DISTANCE sort requires a geo filter", types.ErrInvalidSortRequest)
		}
	default:
		return nil, fmt.Errorf("%w: unknown sort %q", types.ErrInvalidSortRequest, sort)
	}

	plan := &Plan{Filters: filters, Sort: sort}
	plan.Filters.Text = strings.TrimSpace(filters.Text)

	if dr := filters.DateRange; dr != nil {
		if dr.From != nil && dr.To != nil && dr.To.Before(*dr.From) {
			return nil, fmt.Errorf("%w: date range ends before it starts", types.ErrInvalidRequest)
		}
		if dr.From != nil || dr.To != nil {
			plan.Steps = append(plan.Steps, StepDate)
		} else {
			plan.Filters.DateRange = nil
		}
	}

	if geo := filters.Geo; geo != nil {
		if err := geoindex.ValidateLatitude(geo.Center.Lat); err != nil {
			return nil, err
		}
		if err := geoindex.ValidateLongitude(geo.Center.Lon); err != nil {
			return nil, err
		}
		if math.IsNaN(geo.RadiusMeters) || math.IsInf(geo.RadiusMeters, 0) || geo.RadiusMeters <= 0 {
			return nil, fmt.Errorf("%w: radius must be a positive number of meters", types.ErrInvalidRequest)
		}
		center := geo.Center
		center.SRID = types.SRIDWGS84
		plan.Filters.Geo = &GeoFilter{Center: center, RadiusMeters: geo.RadiusMeters}
		plan.boxes = geoindex.RadiusBoxes(center, geo.RadiusMeters)
		plan.Steps = append(plan.Steps, StepGeo)
	}

	if plan.HasText() {
		// A query of only stop words keeps the step and matches nothing
		plan.terms = s.text.QueryTerms(plan.Filters.Text)
		plan.Steps = append(plan.Steps, StepText)
	}

	if pr := filters.Price; pr != nil {
		if (pr.Min != nil && *pr.Min < 0) || (pr.Max != nil && *pr.Max < 0) {
			return nil, fmt.Errorf("%w: price bounds cannot be negative", types.ErrInvalidRequest)
		}
		if pr.Min != nil && pr.Max != nil && *pr.Max < *pr.Min {
			return nil, fmt.Errorf("%w: price range max is below min", types.ErrInvalidRequest)
		}
		plan.Steps = append(plan.Steps, StepPrice)
	}

	return plan, nil
}

// storagePrice converts the filter to the storage primitive's shape
func (p *PriceRange) storagePrice() storage.PriceRange {
	return storage.PriceRange{Min: p.Min, Max: p.Max, Currency: p.Currency}
}

// cacheKey is a stable serialization of the plan and page
func (p *Plan) cacheKey(offset, limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "sort=%s|offset=%d|limit=%d", p.Sort, offset, limit)
	if dr := p.Filters.DateRange; dr != nil {
		fmt.Fprintf(&b, "|date=%s..%s", formatTime(dr.From), formatTime(dr.To))
	}
	if geo := p.Filters.Geo; geo != nil {
		fmt.Fprintf(&b, "|geo=%g,%g,%g", geo.Center.Lon, geo.Center.Lat, geo.RadiusMeters)
	}
	if p.HasText() {
		fmt.Fprintf(&b, "|text=%s", strings.Join(p.terms, " "))
	}
	if pr := p.Filters.Price; pr != nil {
		fmt.Fprintf(&b, "|price=%s..%s %s", formatFloat(pr.Min), formatFloat(pr.Max), strings.ToUpper(pr.Currency))
	}
	return b.String()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "*"
	}
	return fmt.Sprintf("%d", t.UnixMilli())
}

func formatFloat(f *float64) string {
	if f == nil {
		return "*"
	}
	return fmt.Sprintf("%g", *f)
}
