package geo_test

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/stac-server/geo"
)

func mustParse(t *testing.T, s string) orb.Geometry {
	t.Helper()
	g, err := geo.ParseGeometry(json.RawMessage(s))
	require.NoError(t, err)
	return g
}

func TestParseGeometry(t *testing.T) {
	for _, s := range []string{
		`{"type":"Point","coordinates":[1,2]}`,
		`{"type":"MultiPoint","coordinates":[[1,2],[3,4]]}`,
		`{"type":"LineString","coordinates":[[1,2],[3,4]]}`,
		`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`,
		`{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,0]]]]}`,
		`{"type":"GeometryCollection","geometries":[{"type":"Point","coordinates":[1,2]}]}`,
	} {
		_, err := geo.ParseGeometry(json.RawMessage(s))
		assert.NoError(t, err, s)
	}

	for _, s := range []string{``, `null`, `{"type":"Blob","coordinates":[]}`, `[1,2]`} {
		_, err := geo.ParseGeometry(json.RawMessage(s))
		assert.Error(t, err, s)
	}
}

func TestMarshalGeometry(t *testing.T) {
	raw, err := geo.MarshalGeometry(orb.Point{1, 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Point","coordinates":[1,2]}`, string(raw))
}

func TestBoundFromBBox(t *testing.T) {
	b, err := geo.BoundFromBBox([]float64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, orb.Bound{Min: orb.Point{1, 2}, Max: orb.Point{3, 4}}, b)

	b, err = geo.BoundFromBBox([]float64{1, 2, 0, 3, 4, 100})
	require.NoError(t, err)
	assert.Equal(t, orb.Bound{Min: orb.Point{1, 2}, Max: orb.Point{3, 4}}, b)

	_, err = geo.BoundFromBBox([]float64{1, 2, 3})
	assert.Error(t, err)
	_, err = geo.BoundFromBBox([]float64{3, 2, 1, 4})
	assert.Error(t, err)
}

func TestBBox(t *testing.T) {
	g := mustParse(t, `{"type":"LineString","coordinates":[[-1,5],[3,-2]]}`)
	assert.Equal(t, []float64{-1, -2, 3, 5}, geo.BBox(g))
}

func TestIntersects(t *testing.T) {
	square := mustParse(t, `{"type":"Polygon","coordinates":[[[0,0],[10,0],[10,10],[0,10],[0,0]]]}`)
	triangle := mustParse(t, `{"type":"Polygon","coordinates":[[[0,0],[10,0],[0,10],[0,0]]]}`)

	tests := []struct {
		name string
		a, b orb.Geometry
		want bool
	}{
		{"point inside", square, orb.Point{5, 5}, true},
		{"point on edge", square, orb.Point{10, 5}, true},
		{"point outside", square, orb.Point{11, 5}, false},
		{"point in bound but outside triangle", triangle, orb.Point{8, 8}, false},
		{"point inside triangle", triangle, orb.Point{2, 2}, true},
		{"line crossing square", square, orb.LineString{{-5, 5}, {15, 5}}, true},
		{"line outside triangle", triangle, orb.LineString{{6, 9}, {9, 6}}, false},
		{"polygon containing polygon", square, orb.Polygon{{{2, 2}, {3, 2}, {3, 3}, {2, 2}}}, true},
		{"contained polygon reversed", orb.Polygon{{{2, 2}, {3, 2}, {3, 3}, {2, 2}}}, square, true},
		{"bound as polygon", orb.Bound{Min: orb.Point{9, 9}, Max: orb.Point{20, 20}}.ToPolygon(), square, true},
		{"same point", orb.Point{1, 1}, orb.Point{1, 1}, true},
		{"multipolygon", orb.MultiPolygon{
			{{{20, 20}, {30, 20}, {30, 30}, {20, 20}}},
			{{{4, 4}, {6, 4}, {6, 6}, {4, 4}}},
		}, square, true},
		{"nil", nil, square, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, geo.Intersects(tc.a, tc.b))
		})
	}
}
