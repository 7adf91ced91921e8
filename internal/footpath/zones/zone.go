// Package zones implements polygon zone tests and per-zone dwell accounting.
package zones

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/footpath.report/internal/footpath/geom"
)

// ErrInvalidZone is returned for malformed zone configuration.
var ErrInvalidZone = errors.New("invalid zone")

// edgeEpsilon is the collinearity tolerance, in squared pixels, used when
// testing whether a point lies on a polygon edge.
const edgeEpsilon = 1e-9

// Zone is a named polygonal region in frame coordinates. Zones are loaded at
// session start and never mutated.
type Zone struct {
	ID      string
	Name    string
	Polygon []geom.Point
}

// Validate checks that the zone can be used for point tests.
func (z Zone) Validate() error {
	if z.ID == "" {
		return fmt.Errorf("%w: empty zone id", ErrInvalidZone)
	}
	if len(z.Polygon) < 3 {
		return fmt.Errorf("%w: zone %q has %d vertices, need at least 3", ErrInvalidZone, z.ID, len(z.Polygon))
	}
	for i, v := range z.Polygon {
		if !v.Finite() {
			return fmt.Errorf("%w: zone %q vertex %d is not finite", ErrInvalidZone, z.ID, i)
		}
	}
	if math.Abs(z.Area()) < edgeEpsilon {
		return fmt.Errorf("%w: zone %q has zero area", ErrInvalidZone, z.ID)
	}
	return nil
}

// Area returns the signed shoelace area of the polygon.
func (z Zone) Area() float64 {
	var sum float64
	n := len(z.Polygon)
	for i := 0; i < n; i++ {
		a, b := z.Polygon[i], z.Polygon[(i+1)%n]
		sum += a.X*b.Y - b.X*a.Y
	}
	return sum / 2
}

// PointInZone reports whether p lies inside the zone polygon or on its
// boundary. It runs in O(vertices).
func PointInZone(p geom.Point, z Zone) bool {
	n := len(z.Polygon)
	if n < 3 || !p.Finite() {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := z.Polygon[i], z.Polygon[j]
		if onSegment(p, a, b) {
			return true
		}
		if (a.Y > p.Y) != (b.Y > p.Y) {
			xCross := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

func onSegment(p, a, b geom.Point) bool {
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	if math.Abs(cross) > edgeEpsilon {
		return false
	}
	return p.X >= math.Min(a.X, b.X) && p.X <= math.Max(a.X, b.X) &&
		p.Y >= math.Min(a.Y, b.Y) && p.Y <= math.Max(a.Y, b.Y)
}
