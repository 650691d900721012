package geoindex

import (
	"math"

	"github.com/cwysong85/whenr-database/pkg/types"
)

// Box is a longitude/latitude rectangle in degrees, as stored by the R*Tree
type Box struct {
	MinLon, MaxLon float64
	MinLat, MaxLat float64
}

// Contains reports whether p lies inside the box, edges included
func (b Box) Contains(p types.GeoPoint) bool {
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon && p.Lat >= b.MinLat && p.Lat <= b.MaxLat
}

// RadiusBoxes returns the boxes that together cover every point within
// meters of center. A circle crossing the antimeridian is split in two; a
// circle reaching a pole widens to the full longitude range. Boxes are a
// superset filter: callers refine with Distance.
func RadiusBoxes(center types.GeoPoint, meters float64) []Box {
	angular := meters / EarthRadiusMeters
	dLat := toDegrees(angular)

	minLat := center.Lat - dLat
	maxLat := center.Lat + dLat
	if minLat <= -90 || maxLat >= 90 {
		return []Box{{
			MinLon: -180, MaxLon: 180,
			MinLat: math.Max(minLat, -90), MaxLat: math.Min(maxLat, 90),
		}}
	}

	// Longitude half-width at the latitude of maximum spread (Chamberlain's formula)
	ratio := math.Sin(angular) / math.Cos(toRadians(center.Lat))
	if ratio >= 1 {
		return []Box{{MinLon: -180, MaxLon: 180, MinLat: minLat, MaxLat: maxLat}}
	}
	dLon := toDegrees(math.Asin(ratio))

	minLon := center.Lon - dLon
	maxLon := center.Lon + dLon
	switch {
	case minLon < -180:
		return []Box{
			{MinLon: minLon + 360, MaxLon: 180, MinLat: minLat, MaxLat: maxLat},
			{MinLon: -180, MaxLon: maxLon, MinLat: minLat, MaxLat: maxLat},
		}
	case maxLon > 180:
		return []Box{
			{MinLon: minLon, MaxLon: 180, MinLat: minLat, MaxLat: maxLat},
			{MinLon: -180, MaxLon: maxLon - 360, MinLat: minLat, MaxLat: maxLat},
		}
	}
	return []Box{{MinLon: minLon, MaxLon: maxLon, MinLat: minLat, MaxLat: maxLat}}
}
