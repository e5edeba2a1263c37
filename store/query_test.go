package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/stac-server/stac"
)

func mustSearch(t *testing.T, req stac.SearchRequest) *stac.Search {
	t.Helper()
	s, err := stac.ParseSearch(req, stac.Options{
		Queryables: stac.Queryables{
			"gsd":      {Type: stac.TypeNumber},
			"platform": {Type: stac.TypeString},
			"cloudy":   {Type: stac.TypeBoolean},
		},
		Query: true,
		Sort:  true,
	})
	require.NoError(t, err)
	return s
}

func TestSqlWhere(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		where, args := sqlWhere(mustSearch(t, stac.SearchRequest{}))
		assert.Empty(t, where)
		assert.Empty(t, args)
	})

	t.Run("all filters", func(t *testing.T) {
		s := mustSearch(t, stac.SearchRequest{
			Collections: []string{"a", "b"},
			BBox:        []float64{1, 2, 3, 4},
			Datetime:    "2020-01-01T00:00:00Z/2020-02-01T00:00:00Z",
			Query: map[string]map[string]any{
				"gsd":      {"lt": 10.0},
				"platform": {"eq": "sentinel-2a"},
				"cloudy":   {"eq": true},
			},
		})
		where, args := sqlWhere(s)
		assert.Equal(t, " WHERE collection IN (?, ?)"+
			" AND datetime <= ? AND end_datetime >= ?"+
			" AND maxx >= ? AND minx <= ? AND maxy >= ? AND miny <= ?"+
			" AND json_extract(data, ?) = ?"+
			" AND CAST(json_extract(data, ?) AS REAL) < ?"+
			" AND json_extract(data, ?) = ?", where)
		assert.Equal(t, []any{
			"a", "b",
			"2020-02-01T00:00:00.000000000Z", "2020-01-01T00:00:00.000000000Z",
			1.0, 3.0, 2.0, 4.0,
			`$.properties."cloudy"`, 1,
			`$.properties."gsd"`, 10.0,
			`$.properties."platform"`, "sentinel-2a",
		}, args)
	})

	t.Run("ids", func(t *testing.T) {
		where, args := sqlWhere(mustSearch(t, stac.SearchRequest{IDs: []string{"x"}, BBox: []float64{0, 0, 1, 1}}))
		assert.Equal(t, " WHERE id IN (?)", where)
		assert.Equal(t, []any{"x"}, args)
	})
}

func TestSqlOrder(t *testing.T) {
	order, args := sqlOrder(nil)
	assert.Equal(t, " ORDER BY datetime DESC, id ASC", order)
	assert.Empty(t, args)

	order, args = sqlOrder([]stac.SortKey{
		{Field: "properties.eo:cloud_cover", Direction: stac.Desc},
		{Field: "collection", Direction: stac.Asc},
	})
	assert.Equal(t, " ORDER BY json_extract(data, ?) DESC NULLS LAST, collection ASC", order)
	assert.Equal(t, []any{`$.properties."eo:cloud_cover"`}, args)
}

func TestSqlTimeLayoutOrdersAsText(t *testing.T) {
	a := time.Date(2020, 1, 1, 0, 0, 0, 5, time.UTC).Format(sqlTimeLayout)
	b := time.Date(2020, 1, 1, 0, 0, 1, 0, time.UTC).Format(sqlTimeLayout)
	assert.Less(t, a, b)
	assert.Len(t, a, len(b))
}

func TestBuildQuery(t *testing.T) {
	t.Run("match all", func(t *testing.T) {
		body, err := BuildQuery(mustSearch(t, stac.SearchRequest{}))
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"match_all": map[string]any{}}, body["query"])
		assert.Equal(t, 0, body["from"])
		assert.Equal(t, 10, body["size"])
		assert.Equal(t, true, body["track_total_hits"])
		assert.Equal(t, []any{
			map[string]any{esStartField: map[string]any{"order": "desc", "missing": "_last", "unmapped_type": "keyword"}},
			map[string]any{"id": map[string]any{"order": "asc", "missing": "_last", "unmapped_type": "keyword"}},
		}, body["sort"])
	})

	t.Run("filters", func(t *testing.T) {
		limit := 5
		body, err := BuildQuery(mustSearch(t, stac.SearchRequest{
			Collections: []string{"a"},
			BBox:        []float64{1, 2, 3, 4},
			Datetime:    "2020-01-01T00:00:00Z/..",
			Query: map[string]map[string]any{
				"gsd":      {"ge": 10.0},
				"platform": {"ne": "landsat"},
			},
			Limit: &limit,
			Token: stac.EncodeToken(15),
		}))
		require.NoError(t, err)
		assert.Equal(t, 15, body["from"])
		assert.Equal(t, 5, body["size"])

		q := body["query"].(map[string]any)["bool"].(map[string]any)
		filter := q["filter"].([]any)
		require.Len(t, filter, 5)
		assert.Equal(t, map[string]any{"terms": map[string]any{"collection": []string{"a"}}}, filter[0])
		assert.Equal(t, map[string]any{"range": map[string]any{
			esEndField: map[string]any{"gte": "2020-01-01T00:00:00Z"},
		}}, filter[1])
		assert.Contains(t, filter[2], "geo_shape")
		assert.Equal(t, map[string]any{"range": map[string]any{
			"properties.gsd": map[string]any{"gte": 10.0},
		}}, filter[3])
		assert.Equal(t, map[string]any{"exists": map[string]any{"field": "properties.platform"}}, filter[4])
		assert.Equal(t, []any{
			map[string]any{"term": map[string]any{"properties.platform": "landsat"}},
		}, q["must_not"])
	})

	t.Run("string queryable and property sort", func(t *testing.T) {
		body, err := BuildQuery(mustSearch(t, stac.SearchRequest{
			Query:  map[string]map[string]any{"platform": {"eq": "Sentinel-2A"}},
			SortBy: []stac.SortKey{{Field: "platform", Direction: stac.Asc}},
		}))
		require.NoError(t, err)
		filter := body["query"].(map[string]any)["bool"].(map[string]any)["filter"].([]any)
		assert.Equal(t, []any{
			map[string]any{"term": map[string]any{"properties.platform": "Sentinel-2A"}},
		}, filter)
		assert.Equal(t, []any{
			map[string]any{"properties.platform": map[string]any{"order": "asc", "missing": "_last", "unmapped_type": "keyword"}},
			map[string]any{"id": map[string]any{"order": "asc", "missing": "_last", "unmapped_type": "keyword"}},
		}, body["sort"])
	})

	t.Run("result window", func(t *testing.T) {
		s := mustSearch(t, stac.SearchRequest{})
		s.Offset, s.Limit = 9990, 100
		body, err := BuildQuery(s)
		require.NoError(t, err)
		assert.Equal(t, 9990, body["from"])
		assert.Equal(t, 10, body["size"])

		s.Offset = esMaxResultWindow
		_, err = BuildQuery(s)
		var pe *stac.ParamError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "token", pe.Param)
	})
}

// Item property strings must be keyword so term filters and sorts on
// string queryables behave like the other backends.
func TestItemMappingKeywordProperties(t *testing.T) {
	mappings := esItemMapping["mappings"].(map[string]any)
	assert.Equal(t, false, mappings["date_detection"])

	templates := map[string]map[string]any{}
	for _, tpl := range mappings["dynamic_templates"].([]any) {
		for name, def := range tpl.(map[string]any) {
			templates[name] = def.(map[string]any)
		}
	}
	require.Contains(t, templates, "property_strings")
	strs := templates["property_strings"]
	assert.Equal(t, "properties.*", strs["path_match"])
	assert.Equal(t, "string", strs["match_mapping_type"])
	assert.Equal(t, map[string]any{"type": "keyword"}, strs["mapping"])
}
