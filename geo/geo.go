// Package geo parses GeoJSON geometries and evaluates the spatial predicates
// used by the in-process and relational search backends.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// ParseGeometry decodes a GeoJSON geometry object.
func ParseGeometry(raw json.RawMessage) (orb.Geometry, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, errors.New("geometry is required")
	}
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid geometry: %w", err)
	}
	if g.Geometry() == nil {
		return nil, errors.New("invalid geometry: empty")
	}
	return g.Geometry(), nil
}

// MarshalGeometry encodes a geometry as GeoJSON.
func MarshalGeometry(g orb.Geometry) (json.RawMessage, error) {
	return json.Marshal(geojson.NewGeometry(g))
}

// BoundFromBBox converts a 2D [w, s, e, n] or 3D [w, s, zmin, e, n, zmax]
// bbox. Elevation is dropped.
func BoundFromBBox(bbox []float64) (orb.Bound, error) {
	var b orb.Bound
	switch len(bbox) {
	case 4:
		b = orb.Bound{Min: orb.Point{bbox[0], bbox[1]}, Max: orb.Point{bbox[2], bbox[3]}}
	case 6:
		b = orb.Bound{Min: orb.Point{bbox[0], bbox[1]}, Max: orb.Point{bbox[3], bbox[4]}}
	default:
		return b, fmt.Errorf("bbox must have 4 or 6 numbers, got %d", len(bbox))
	}
	if b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] {
		return b, fmt.Errorf("bbox minimum exceeds maximum")
	}
	return b, nil
}

// BBox returns the 2D bbox of a geometry.
func BBox(g orb.Geometry) []float64 {
	b := g.Bound()
	return []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
}

// Intersects reports whether two geometries share at least one point.
// Polygons are treated as filled areas.
func Intersects(a, b orb.Geometry) bool {
	if a == nil || b == nil {
		return false
	}
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}
	pa, sa, polysA := decompose(a)
	pb, sb, polysB := decompose(b)

	for _, p := range pa {
		if containedIn(p, polysB) || onAny(p, sb) || containsPoint(pb, p) {
			return true
		}
	}
	for _, p := range pb {
		if containedIn(p, polysA) || onAny(p, sa) {
			return true
		}
	}
	for _, s1 := range sa {
		for _, s2 := range sb {
			if segmentsIntersect(s1[0], s1[1], s2[0], s2[1]) {
				return true
			}
		}
	}
	return false
}

type segment [2]orb.Point

// decompose flattens a geometry into its vertices, its edges and its
// polygons.
func decompose(g orb.Geometry) ([]orb.Point, []segment, []orb.Polygon) {
	var (
		points []orb.Point
		segs   []segment
		polys  []orb.Polygon
	)
	addLine := func(ls []orb.Point) {
		points = append(points, ls...)
		for i := 1; i < len(ls); i++ {
			segs = append(segs, segment{ls[i-1], ls[i]})
		}
	}
	var walk func(orb.Geometry)
	walk = func(g orb.Geometry) {
		switch t := g.(type) {
		case orb.Point:
			points = append(points, t)
		case orb.MultiPoint:
			points = append(points, t...)
		case orb.LineString:
			addLine(t)
		case orb.MultiLineString:
			for _, ls := range t {
				addLine(ls)
			}
		case orb.Ring:
			addLine(t)
			polys = append(polys, orb.Polygon{t})
		case orb.Polygon:
			for _, r := range t {
				addLine(r)
			}
			polys = append(polys, t)
		case orb.MultiPolygon:
			for _, p := range t {
				walk(p)
			}
		case orb.Collection:
			for _, c := range t {
				walk(c)
			}
		case orb.Bound:
			walk(t.ToPolygon())
		}
	}
	walk(g)
	return points, segs, polys
}

func containedIn(p orb.Point, polys []orb.Polygon) bool {
	for _, poly := range polys {
		if planar.PolygonContains(poly, p) {
			return true
		}
	}
	return false
}

func containsPoint(points []orb.Point, p orb.Point) bool {
	for _, q := range points {
		if q.Equal(p) {
			return true
		}
	}
	return false
}

func onAny(p orb.Point, segs []segment) bool {
	for _, s := range segs {
		if orientation(s[0], s[1], p) == 0 && onSegment(s[0], p, s[1]) {
			return true
		}
	}
	return false
}

func segmentsIntersect(p1, q1, p2, q2 orb.Point) bool {
	o1 := orientation(p1, q1, p2)
	o2 := orientation(p1, q1, q2)
	o3 := orientation(p2, q2, p1)
	o4 := orientation(p2, q2, q1)

	if o1 != o2 && o3 != o4 {
		return true
	}
	switch {
	case o1 == 0 && onSegment(p1, p2, q1):
		return true
	case o2 == 0 && onSegment(p1, q2, q1):
		return true
	case o3 == 0 && onSegment(p2, p1, q2):
		return true
	case o4 == 0 && onSegment(p2, q1, q2):
		return true
	}
	return false
}

// orientation returns 0 for collinear points, 1 for clockwise and 2 for
// counter-clockwise turns.
func orientation(p, q, r orb.Point) int {
	v := (q[1]-p[1])*(r[0]-q[0]) - (q[0]-p[0])*(r[1]-q[1])
	switch {
	case v == 0:
		return 0
	case v > 0:
		return 1
	}
	return 2
}

// onSegment reports whether q lies within the box spanned by p and r.
func onSegment(p, q, r orb.Point) bool {
	return q[0] <= max(p[0], r[0]) && q[0] >= min(p[0], r[0]) &&
		q[1] <= max(p[1], r[1]) && q[1] >= min(p[1], r[1])
}
