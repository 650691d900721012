// Package geoindex derives validated WGS84 points from venue coordinates and
// provides the distance math the searcher uses against the spatial index.
package geoindex

import (
	"math"

	"github.com/cwysong85/whenr-database/pkg/types"
)

const (
	// EarthRadiusMeters is the IUGG mean Earth radius
	EarthRadiusMeters = 6371008.8
	// MetersPerMile converts radii supplied in miles at the API boundary
	MetersPerMile = 1609.34
)

// Derive returns the GeoPoint for a coordinate pair. Either side being nil
// yields nil with no error; out-of-range or non-finite values yield a
// *types.CoordinateError.
func Derive(lat, lon *float64) (*types.GeoPoint, error) {
	if lat == nil || lon == nil {
		return nil, nil
	}
	if err := ValidateLatitude(*lat); err != nil {
		return nil, err
	}
	if err := ValidateLongitude(*lon); err != nil {
		return nil, err
	}
	return &types.GeoPoint{Lon: *lon, Lat: *lat, SRID: types.SRIDWGS84}, nil
}

// ValidateLatitude checks lat is finite and within [-90, 90]
func ValidateLatitude(lat float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return &types.CoordinateError{Field: types.FieldLatitude, Value: lat}
	}
	return nil
}

// ValidateLongitude checks lon is finite and within [-180, 180]
func ValidateLongitude(lon float64) error {
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return &types.CoordinateError{Field: types.FieldLongitude, Value: lon}
	}
	return nil
}

// Distance returns the great-circle distance in meters (haversine)
func Distance(a, b types.GeoPoint) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := lat2 - lat1
	dLon := toRadians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// guard against rounding pushing h past 1
	h = math.Min(1, h)
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// MilesToMeters converts a radius in miles to meters
func MilesToMeters(miles float64) float64 {
	return miles * MetersPerMile
}

// MetersToMiles converts meters to miles
func MetersToMiles(meters float64) float64 {
	return meters / MetersPerMile
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
