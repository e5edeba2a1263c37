package stac

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/stevemurr/stac-server/geo"
)

// SearchRequest is the item-search request body. GET parameters are parsed
// into the same shape by SearchRequestFromQuery.
type SearchRequest struct {
	Collections []string                  `json:"collections,omitempty"`
	IDs         []string                  `json:"ids,omitempty"`
	BBox        []float64                 `json:"bbox,omitempty"`
	Intersects  json.RawMessage           `json:"intersects,omitempty"`
	Datetime    string                    `json:"datetime,omitempty"`
	Query       map[string]map[string]any `json:"query,omitempty"`
	SortBy      []SortKey                 `json:"sortby,omitempty"`
	Fields      *FieldsParam              `json:"fields,omitempty"`
	Limit       *int                      `json:"limit,omitempty"`
	Token       string                    `json:"token,omitempty"`
}

// Sort directions.
const (
	Asc  = "asc"
	Desc = "desc"
)

// SortKey orders search results by a record path.
type SortKey struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// DefaultSort orders newest first with id as tiebreaker.
var DefaultSort = []SortKey{
	{Field: "properties.datetime", Direction: Desc},
	{Field: "id", Direction: Asc},
}

// Options carries the server settings that shape search parsing.
type Options struct {
	DefaultLimit    int
	MaxLimit        int
	Queryables      Queryables
	DefaultIncludes []string
	Fields          bool
	Query           bool
	Sort            bool
}

// Search is a validated, backend-agnostic search. Backends translate it
// into their own query language.
type Search struct {
	Collections []string
	IDs         []string

	// Bounds is the envelope of the spatial filter; Geometry is the exact
	// filter shape (the bbox polygon when a bbox was given).
	Bounds   *orb.Bound
	Geometry orb.Geometry

	Start *time.Time
	End   *time.Time

	Filters []Filter
	Sort    []SortKey
	Limit   int
	Offset  int

	// Project is set when the fields extension applies to the response.
	Project bool
	Include []string
	Exclude []string
}

// HasSpatial reports whether the search carries a spatial filter.
func (s *Search) HasSpatial() bool {
	return s.Geometry != nil
}

// ParseSearch validates a request and normalizes it into a Search.
func ParseSearch(req SearchRequest, opts Options) (*Search, error) {
	s := &Search{
		Collections: compact(req.Collections),
		IDs:         compact(req.IDs),
	}

	if len(req.BBox) > 0 && len(req.Intersects) > 0 && string(req.Intersects) != "null" {
		return nil, paramErrorf("bbox", "bbox and intersects are mutually exclusive")
	}
	if len(req.BBox) > 0 {
		b, err := geo.BoundFromBBox(req.BBox)
		if err != nil {
			return nil, paramErrorf("bbox", "%v", err)
		}
		s.Bounds = &b
		s.Geometry = b.ToPolygon()
	}
	if len(req.Intersects) > 0 && string(req.Intersects) != "null" {
		g, err := geo.ParseGeometry(req.Intersects)
		if err != nil {
			return nil, paramErrorf("intersects", "%v", err)
		}
		b := g.Bound()
		s.Bounds = &b
		s.Geometry = g
	}

	start, end, err := ParseDatetime(req.Datetime)
	if err != nil {
		return nil, err
	}
	s.Start, s.End = start, end

	if len(req.Query) > 0 {
		if !opts.Query {
			return nil, paramErrorf("query", "query extension is not enabled")
		}
		s.Filters, err = ParseQuery(req.Query, opts.Queryables)
		if err != nil {
			return nil, err
		}
	}

	if len(req.SortBy) > 0 && opts.Sort {
		for _, k := range req.SortBy {
			dir := strings.ToLower(strings.TrimSpace(k.Direction))
			if dir == "" {
				dir = Asc
			}
			if dir != Asc && dir != Desc {
				return nil, paramErrorf("sortby", "direction must be asc or desc, got %q", k.Direction)
			}
			if strings.TrimSpace(k.Field) == "" {
				return nil, paramErrorf("sortby", "field is required")
			}
			s.Sort = append(s.Sort, SortKey{Field: CanonicalField(k.Field), Direction: dir})
		}
		if s.Sort[len(s.Sort)-1].Field != "id" {
			s.Sort = append(s.Sort, SortKey{Field: "id", Direction: Asc})
		}
	} else {
		s.Sort = append([]SortKey(nil), DefaultSort...)
	}

	s.Limit = opts.DefaultLimit
	if s.Limit <= 0 {
		s.Limit = 10
	}
	if req.Limit != nil {
		s.Limit = *req.Limit
	}
	maxLimit := opts.MaxLimit
	if maxLimit <= 0 {
		maxLimit = 10000
	}
	if s.Limit < 1 || s.Limit > maxLimit {
		return nil, paramErrorf("limit", "must be between 1 and %d", maxLimit)
	}

	if req.Token != "" {
		s.Offset, err = DecodeToken(req.Token)
		if err != nil {
			return nil, err
		}
	}

	if opts.Fields {
		s.Project = true
		fp := FieldsParam{}
		if req.Fields != nil {
			fp = *req.Fields
		}
		for _, f := range s.Filters {
			fp.Include = append(fp.Include, f.Field)
		}
		defaults := opts.DefaultIncludes
		if defaults == nil {
			defaults = DefaultIncludes
		}
		s.Include, s.Exclude = fp.Resolve(defaults)
	}

	// An id lookup ignores every other filter except collections.
	if len(s.IDs) > 0 {
		s.Bounds, s.Geometry = nil, nil
		s.Start, s.End = nil, nil
		s.Filters = nil
	}
	return s, nil
}

// CanonicalField maps a sort or filter field name to its record path.
func CanonicalField(name string) string {
	name = strings.TrimSpace(name)
	switch {
	case name == "id", name == "collection", name == "type", name == "bbox", name == "geometry":
		return name
	case strings.HasPrefix(name, "properties."):
		return name
	}
	return "properties." + name
}

// ParseSortBy parses the GET form "+a,-b,c". No prefix sorts ascending.
func ParseSortBy(s string) []SortKey {
	var keys []SortKey
	for _, p := range SplitList(s) {
		switch p[0] {
		case '-':
			keys = append(keys, SortKey{Field: p[1:], Direction: Desc})
		case '+':
			keys = append(keys, SortKey{Field: p[1:], Direction: Asc})
		default:
			keys = append(keys, SortKey{Field: p, Direction: Asc})
		}
	}
	return keys
}

// ParseBBox parses a comma-separated bbox parameter.
func ParseBBox(s string) ([]float64, error) {
	parts := SplitList(s)
	if len(parts) == 0 {
		return nil, nil
	}
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, paramErrorf("bbox", "%q is not a number", p)
		}
		out = append(out, f)
	}
	return out, nil
}

// SplitList splits a comma-separated parameter, dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SearchRequestFromQuery parses GET search parameters. The query and
// intersects parameters are JSON encoded.
func SearchRequestFromQuery(v url.Values) (SearchRequest, error) {
	req := SearchRequest{
		Collections: SplitList(v.Get("collections")),
		IDs:         SplitList(v.Get("ids")),
		Datetime:    v.Get("datetime"),
		SortBy:      ParseSortBy(v.Get("sortby")),
		Fields:      ParseFieldsParam(v.Get("fields")),
		Token:       v.Get("token"),
	}
	var err error
	if req.BBox, err = ParseBBox(v.Get("bbox")); err != nil {
		return req, err
	}
	if s := v.Get("intersects"); s != "" {
		req.Intersects = json.RawMessage(s)
	}
	if s := v.Get("query"); s != "" {
		if err := json.Unmarshal([]byte(s), &req.Query); err != nil {
			return req, paramErrorf("query", "not a JSON object: %v", err)
		}
	}
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return req, paramErrorf("limit", "%q is not an integer", s)
		}
		req.Limit = &n
	}
	return req, nil
}

const tokenPrefix = "offset:"

// EncodeToken builds an opaque page token.
func EncodeToken(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(tokenPrefix + strconv.Itoa(offset)))
}

// DecodeToken returns the offset held by a page token.
func DecodeToken(token string) (int, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || !strings.HasPrefix(string(b), tokenPrefix) {
		return 0, paramErrorf("token", "malformed page token")
	}
	n, err := strconv.Atoi(strings.TrimPrefix(string(b), tokenPrefix))
	if err != nil || n < 0 {
		return 0, paramErrorf("token", "malformed page token")
	}
	return n, nil
}

func compact(in []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// String renders the search for logs.
func (s *Search) String() string {
	return fmt.Sprintf("collections=%v ids=%v spatial=%t start=%v end=%v filters=%d limit=%d offset=%d",
		s.Collections, s.IDs, s.HasSpatial(), s.Start, s.End, len(s.Filters), s.Limit, s.Offset)
}
