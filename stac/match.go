package stac

import (
	"slices"
	"sort"
	"strings"

	"github.com/stevemurr/stac-server/geo"
)

// Match evaluates the search against a single item in process. Backends
// without a query language of their own use it.
func (s *Search) Match(it *Item) bool {
	if len(s.Collections) > 0 && !slices.Contains(s.Collections, it.Collection) {
		return false
	}
	if len(s.IDs) > 0 && !slices.Contains(s.IDs, it.ID) {
		return false
	}
	if s.Start != nil || s.End != nil {
		start, err := it.Datetime()
		if err != nil {
			return false
		}
		end, err := it.EndDatetime()
		if err != nil {
			return false
		}
		if s.End != nil && start.After(*s.End) {
			return false
		}
		if s.Start != nil && end.Before(*s.Start) {
			return false
		}
	}
	if s.Geometry != nil {
		g, err := geo.ParseGeometry(it.Geometry)
		if err != nil || !geo.Intersects(s.Geometry, g) {
			return false
		}
	}
	if len(s.Filters) > 0 {
		doc := it.Map()
		for _, f := range s.Filters {
			if !f.Match(Lookup(doc, f.Field)) {
				return false
			}
		}
	}
	return true
}

// Lookup resolves a dotted path in a JSON object. Property names may
// contain dots only as the final segment under "properties".
func Lookup(doc map[string]any, path string) any {
	if strings.HasPrefix(path, "properties.") {
		props, _ := doc["properties"].(map[string]any)
		if props == nil {
			return nil
		}
		name := strings.TrimPrefix(path, "properties.")
		if v, ok := props[name]; ok {
			return v
		}
		return Lookup(props, name)
	}
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

// SortItems orders items by the sort keys. Missing values sort last in
// either direction.
func SortItems(items []*Item, keys []SortKey) {
	if len(keys) == 0 {
		keys = DefaultSort
	}
	docs := make(map[*Item]map[string]any, len(items))
	for _, it := range items {
		docs[it] = it.Map()
	}
	sort.SliceStable(items, func(i, j int) bool {
		for _, k := range keys {
			va, vb := sortValue(items[i], docs[items[i]], k.Field), sortValue(items[j], docs[items[j]], k.Field)
			if va == nil && vb == nil {
				continue
			}
			if va == nil {
				return false
			}
			if vb == nil {
				return true
			}
			c, ok := compareField(k.Field, va, vb)
			if !ok || c == 0 {
				continue
			}
			if k.Direction == Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// Page slices a sorted result set by offset and limit.
func Page[T any](all []T, offset, limit int) []T {
	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

// sortValue is the value an item sorts by. An item with a null datetime
// sorts by its start_datetime.
func sortValue(it *Item, doc map[string]any, field string) any {
	if field == "properties.datetime" {
		t, err := it.Datetime()
		if err != nil {
			return nil
		}
		return FormatTime(t)
	}
	return Lookup(doc, field)
}

// compareField compares two values of a field, ordering timestamps by time
// rather than by their textual form.
func compareField(field string, a, b any) (int, bool) {
	if strings.HasSuffix(field, "datetime") {
		sa, okA := a.(string)
		sb, okB := b.(string)
		if okA && okB {
			ta, errA := ParseTime(sa)
			tb, errB := ParseTime(sb)
			if errA == nil && errB == nil {
				return ta.Compare(tb), true
			}
		}
	}
	return compare(a, b)
}
