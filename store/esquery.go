package store

import (
	"fmt"

	"github.com/stevemurr/stac-server/geo"
	"github.com/stevemurr/stac-server/stac"
)

// Fields added to indexed item documents so that temporal filters and the
// datetime sort work for items with a null datetime. They are dropped when
// a hit is decoded back into a stac.Item.
const (
	esStartField = "search_start"
	esEndField   = "search_end"
)

// esMaxResultWindow is the default index.max_result_window: from+size may
// not exceed it.
const esMaxResultWindow = 10000

// BuildQuery translates a search into an Elasticsearch search body.
func BuildQuery(s *stac.Search) (map[string]any, error) {
	if s.Offset >= esMaxResultWindow {
		return nil, &stac.ParamError{
			Param: "token",
			Msg:   fmt.Sprintf("cannot page past the first %d results; narrow the search instead", esMaxResultWindow),
		}
	}
	size := min(s.Limit, esMaxResultWindow-s.Offset)

	var filter, mustNot []any

	if len(s.Collections) > 0 {
		filter = append(filter, map[string]any{"terms": map[string]any{"collection": s.Collections}})
	}
	if len(s.IDs) > 0 {
		filter = append(filter, map[string]any{"terms": map[string]any{"id": s.IDs}})
	}
	if s.Start != nil {
		filter = append(filter, map[string]any{"range": map[string]any{
			esEndField: map[string]any{"gte": stac.FormatTime(*s.Start)},
		}})
	}
	if s.End != nil {
		filter = append(filter, map[string]any{"range": map[string]any{
			esStartField: map[string]any{"lte": stac.FormatTime(*s.End)},
		}})
	}
	if s.Geometry != nil {
		shape, err := geo.MarshalGeometry(s.Geometry)
		if err != nil {
			return nil, err
		}
		filter = append(filter, map[string]any{"geo_shape": map[string]any{
			"geometry": map[string]any{"shape": shape, "relation": "intersects"},
		}})
	}
	for _, f := range s.Filters {
		switch f.Op {
		case stac.OpEq:
			filter = append(filter, map[string]any{"term": map[string]any{f.Field: f.Value}})
		case stac.OpNe:
			mustNot = append(mustNot, map[string]any{"term": map[string]any{f.Field: f.Value}})
			// ne never matches a missing value.
			filter = append(filter, map[string]any{"exists": map[string]any{"field": f.Field}})
		default:
			filter = append(filter, map[string]any{"range": map[string]any{
				f.Field: map[string]any{esRangeOp(f.Op): f.Value},
			}})
		}
	}

	boolQuery := map[string]any{}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}
	if len(mustNot) > 0 {
		boolQuery["must_not"] = mustNot
	}
	query := map[string]any{"match_all": map[string]any{}}
	if len(boolQuery) > 0 {
		query = map[string]any{"bool": boolQuery}
	}

	return map[string]any{
		"query":            query,
		"sort":             esSort(s.Sort),
		"from":             s.Offset,
		"size":             size,
		"track_total_hits": true,
	}, nil
}

func esRangeOp(op stac.Operator) string {
	switch op {
	case stac.OpLt:
		return "lt"
	case stac.OpLe:
		return "lte"
	case stac.OpGt:
		return "gt"
	default:
		return "gte"
	}
}

func esSort(keys []stac.SortKey) []any {
	if len(keys) == 0 {
		keys = stac.DefaultSort
	}
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		field := k.Field
		if field == "properties.datetime" {
			field = esStartField
		}
		out = append(out, map[string]any{
			field: map[string]any{"order": k.Direction, "missing": "_last", "unmapped_type": "keyword"},
		})
	}
	return out
}

// esItemMapping is the index definition for items. Item properties are
// mapped dynamically: strings as keyword so term filters and sorts match
// exactly, numbers as double so range filters do not truncate.
var esItemMapping = map[string]any{
	"mappings": map[string]any{
		"date_detection": false,
		"dynamic_templates": []any{
			map[string]any{"property_strings": map[string]any{
				"path_match":         "properties.*",
				"match_mapping_type": "string",
				"mapping":            map[string]any{"type": "keyword"},
			}},
			map[string]any{"property_numbers": map[string]any{
				"path_match":         "properties.*",
				"match_mapping_type": "long",
				"mapping":            map[string]any{"type": "double"},
			}},
		},
		"properties": map[string]any{
			"id":           map[string]any{"type": "keyword"},
			"collection":   map[string]any{"type": "keyword"},
			"type":         map[string]any{"type": "keyword"},
			"stac_version": map[string]any{"type": "keyword"},
			"geometry":     map[string]any{"type": "geo_shape"},
			"bbox":         map[string]any{"type": "double"},
			esStartField:   map[string]any{"type": "date"},
			esEndField:     map[string]any{"type": "date"},
			"properties": map[string]any{
				"properties": map[string]any{
					"datetime":       map[string]any{"type": "date"},
					"start_datetime": map[string]any{"type": "date"},
					"end_datetime":   map[string]any{"type": "date"},
				},
			},
			"links":  map[string]any{"type": "object", "enabled": false},
			"assets": map[string]any{"type": "object", "enabled": false},
		},
	},
}

// esCollectionMapping is the index definition for collections.
var esCollectionMapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"id":        map[string]any{"type": "keyword"},
			"extent":    map[string]any{"type": "object", "enabled": false},
			"links":     map[string]any{"type": "object", "enabled": false},
			"assets":    map[string]any{"type": "object", "enabled": false},
			"summaries": map[string]any{"type": "object", "enabled": false},
			"providers": map[string]any{"type": "object", "enabled": false},
		},
	},
}
