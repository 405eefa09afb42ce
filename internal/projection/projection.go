// Package projection implements the Web Mercator math used to place labels:
// geographic coordinate to world pixel at a zoom level, the pixel offset
// between two positions, and the conversion from a "meters visible" URL
// encoding to an equivalent zoom level.
package projection

import (
	"math"

	"github.com/tilelabel/overlay/internal/geo"
	"github.com/tilelabel/overlay/internal/geometry"
)

// TileSize is the host's base tile unit in pixels.
const TileSize = 256

// MaxZoom is the highest zoom level produced by the meters conversion.
const MaxZoom = 22

// worldSize returns the width of the world in pixels at the given zoom.
func worldSize(zoom float64) float64 {
	return TileSize * math.Pow(2, zoom)
}

// WorldPixel projects a geographic position to world pixel coordinates at
// the given zoom. At zoom 0 the whole world spans one tile unit.
func WorldPixel(ll geo.LatLng, zoom float64) geometry.Point {
	size := worldSize(zoom)
	latRad := ll.Lat * math.Pi / 180
	x := (ll.Lng + 180) / 360 * size
	y := (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * size
	return geometry.Point{X: x, Y: y}
}

// Unproject converts world pixel coordinates back to a geographic position.
func Unproject(p geometry.Point, zoom float64) geo.LatLng {
	size := worldSize(zoom)
	lng := p.X/size*360 - 180
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*p.Y/size)))
	return geo.LatLng{Lat: latRad * 180 / math.Pi, Lng: lng}
}

// PixelOffset returns the pixel delta from one position to another at the
// given zoom.
func PixelOffset(from, to geo.LatLng, zoom float64) geometry.Point {
	a := WorldPixel(from, zoom)
	b := WorldPixel(to, zoom)
	return b.Sub(a)
}

// baseResolution is the ground resolution in meters per pixel at zoom 0 on
// the equator, derived from the EPSG:3857 projection extent.
func baseResolution() float64 {
	return 2 * geo.MercatorHalfWidth() / TileSize
}

// ZoomFromMetersVisible converts a "meters visible across the viewport"
// encoding into the equivalent integer zoom level. The Mercator scale factor
// shrinks ground resolution by cos(lat) away from the equator. The result is
// clamped to [0, MaxZoom].
func ZoomFromMetersVisible(meters, lat, viewportHeightPx float64) float64 {
	if meters <= 0 || viewportHeightPx <= 0 {
		return 0
	}
	latRad := lat * math.Pi / 180
	cosLat := math.Cos(latRad)
	if cosLat <= 0 {
		return 0
	}
	zoom := math.Log2(baseResolution() * cosLat * viewportHeightPx / meters)
	zoom = math.Round(zoom)
	if zoom < 0 {
		return 0
	}
	if zoom > MaxZoom {
		return MaxZoom
	}
	return zoom
}
