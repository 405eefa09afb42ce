// Package geo provides the geographic value types and conversions used by
// the projection and viewport packages. Geographic points are carried as
// WGS84 (EPSG:4326) latitude/longitude and converted to spherical Mercator
// (EPSG:3857) where metric distances are needed.
package geo

import (
	"errors"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// ErrInvalidCoordinates is returned when a coordinate string cannot be parsed.
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// LatLng is a geographic position in EPSG:4326.
type LatLng struct {
	Lat float64
	Lng float64
}

// Valid reports whether the position is within the WGS84 domain.
func (ll LatLng) Valid() bool {
	return ll.Lat >= -90 && ll.Lat <= 90 && ll.Lng >= -180 && ll.Lng <= 180
}

// LatLngFromString parses a "lat,lng" string into a LatLng.
func LatLngFromString(coords string) (LatLng, error) {
	parts := strings.Split(coords, ",")
	if len(parts) < 2 {
		return LatLng{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return LatLng{}, ErrInvalidCoordinates
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return LatLng{}, ErrInvalidCoordinates
	}
	ll := LatLng{Lat: lat, Lng: lng}
	if !ll.Valid() {
		return LatLng{}, ErrInvalidCoordinates
	}
	return ll, nil
}

// Point3857 converts the position to a spherical Mercator point. The error
// mirrors geom.NewPoint's coordinate validation; it cannot fire for a
// position that passed Valid.
func Point3857(ll LatLng) (geom.Point, error) {
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ := f(ll.Lng, ll.Lat, 0)
	return geom.NewPoint(
		geom.Coordinates{
			XY: geom.XY{X: x, Y: y},
		},
	)
}

// MercatorHalfWidth is the easting of the 3857 projection boundary in
// meters, i.e. half the projected width of the world.
func MercatorHalfWidth() float64 {
	pt, err := Point3857(LatLng{Lat: 0, Lng: 180})
	if err != nil {
		return 0
	}
	c, ok := pt.Coordinates()
	if !ok {
		return 0
	}
	return c.X
}
