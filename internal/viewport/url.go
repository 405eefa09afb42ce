package viewport

import (
	"regexp"
	"strconv"

	"github.com/tilelabel/overlay/internal/geo"
	"github.com/tilelabel/overlay/internal/projection"
)

// GroundTruth is the position and zoom decoded from the document URL.
type GroundTruth struct {
	Center geo.LatLng
	Zoom   float64
	// Meters is true when the URL used the meters-visible encoding.
	Meters bool
}

// urlPattern matches the two mutually exclusive URL encodings:
// "@lat,lng,<zoom>z" and "@lat,lng,<meters>m".
var urlPattern = regexp.MustCompile(`@(-?\d+(?:\.\d+)?),(-?\d+(?:\.\d+)?),(\d+(?:\.\d+)?)(z|m)`)

// ParseURL extracts the ground truth from a URL. viewportHeightPx is needed
// for the meters-visible encoding; when that encoding appears with an
// unreadable viewport, parsing fails rather than guessing a zoom.
func ParseURL(url string, viewportHeightPx float64) (GroundTruth, bool) {
	m := urlPattern.FindStringSubmatch(url)
	if m == nil {
		return GroundTruth{}, false
	}
	ll, err := geo.LatLngFromString(m[1] + "," + m[2])
	if err != nil {
		return GroundTruth{}, false
	}
	value, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return GroundTruth{}, false
	}

	gt := GroundTruth{Center: ll}
	if m[4] == "m" {
		if viewportHeightPx <= 0 {
			return GroundTruth{}, false
		}
		gt.Zoom = projection.ZoomFromMetersVisible(value, ll.Lat, viewportHeightPx)
		gt.Meters = true
	} else {
		gt.Zoom = value
	}
	return gt, true
}
