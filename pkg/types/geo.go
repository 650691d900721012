package types

import "fmt"

// SRIDWGS84 is the spatial reference identifier every GeoPoint carries
const SRIDWGS84 = 4326

// GeoPoint is a validated coordinate pair tagged with its reference system.
// Order follows the WKT convention: longitude first.
type GeoPoint struct {
	Lon  float64
	Lat  float64
	SRID int
}

// String renders the point as EWKT
func (p GeoPoint) String() string {
	return fmt.Sprintf("SRID=%d;POINT(%g %g)", p.SRID, p.Lon, p.Lat)
}
