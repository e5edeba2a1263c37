// Package stac defines the catalog records served by the API (Items and
// Collections), the search request model and the helpers that turn a search
// request into a backend-agnostic Search.
package stac

import (
	"encoding/json"
	"fmt"
	"time"
)

// Version is the STAC version stamped on generated documents.
const Version = "1.0.0"

// MIME types used in generated links.
const (
	MediaJSON    = "application/json"
	MediaGeoJSON = "application/geo+json"
)

// Link is a STAC/OGC link object. Method, Body and Merge are only set on
// paging links of POST searches.
type Link struct {
	Href   string         `json:"href"`
	Rel    string         `json:"rel"`
	Type   string         `json:"type,omitempty"`
	Title  string         `json:"title,omitempty"`
	Method string         `json:"method,omitempty"`
	Body   map[string]any `json:"body,omitempty"`
	Merge  bool           `json:"merge,omitempty"`
}

// Item is a STAC Item (a GeoJSON Feature).
type Item struct {
	Type           string          `json:"type"`
	StacVersion    string          `json:"stac_version"`
	StacExtensions []string        `json:"stac_extensions,omitempty"`
	ID             string          `json:"id"`
	Collection     string          `json:"collection,omitempty"`
	Geometry       json.RawMessage `json:"geometry"`
	BBox           []float64       `json:"bbox,omitempty"`
	Properties     map[string]any  `json:"properties"`
	Links          []Link          `json:"links,omitempty"`
	Assets         map[string]any  `json:"assets"`
}

// Datetime returns the item's nominal time. Items with a null datetime use
// start_datetime.
func (it *Item) Datetime() (time.Time, error) {
	if s, ok := it.Properties["datetime"].(string); ok {
		return ParseTime(s)
	}
	if s, ok := it.Properties["start_datetime"].(string); ok {
		return ParseTime(s)
	}
	return time.Time{}, fmt.Errorf("item %q has no datetime", it.ID)
}

// EndDatetime returns end_datetime when present, else the nominal time.
func (it *Item) EndDatetime() (time.Time, error) {
	if s, ok := it.Properties["end_datetime"].(string); ok {
		return ParseTime(s)
	}
	return it.Datetime()
}

// Clone returns a deep copy of the item.
func (it *Item) Clone() *Item {
	var out Item
	b, _ := json.Marshal(it)
	_ = json.Unmarshal(b, &out)
	return &out
}

// Map returns the item as a generic JSON object.
func (it *Item) Map() map[string]any {
	b, _ := json.Marshal(it)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}

// Provider describes an organization that captured or processed the data.
type Provider struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	URL         string   `json:"url,omitempty"`
}

// Extent is the spatial and temporal extent of a Collection.
type Extent struct {
	Spatial  SpatialExtent  `json:"spatial"`
	Temporal TemporalExtent `json:"temporal"`
}

type SpatialExtent struct {
	BBox [][]float64 `json:"bbox"`
}

type TemporalExtent struct {
	Interval [][]*string `json:"interval"`
}

// Collection is a STAC Collection.
type Collection struct {
	Type           string         `json:"type,omitempty"`
	StacVersion    string         `json:"stac_version"`
	StacExtensions []string       `json:"stac_extensions,omitempty"`
	ID             string         `json:"id"`
	Title          string         `json:"title,omitempty"`
	Description    string         `json:"description"`
	Keywords       []string       `json:"keywords,omitempty"`
	License        string         `json:"license"`
	Providers      []Provider     `json:"providers,omitempty"`
	Extent         Extent         `json:"extent"`
	Summaries      map[string]any `json:"summaries,omitempty"`
	Links          []Link         `json:"links,omitempty"`
	Assets         map[string]any `json:"assets,omitempty"`
}

// Clone returns a deep copy of the collection.
func (c *Collection) Clone() *Collection {
	var out Collection
	b, _ := json.Marshal(c)
	_ = json.Unmarshal(b, &out)
	return &out
}

// Context is the context-extension summary attached to search responses.
type Context struct {
	Returned int `json:"returned"`
	Limit    int `json:"limit"`
	Matched  int `json:"matched"`
}

// ItemCollection is a page of search results. Features are generic maps so
// that field projection can drop any part of an item.
type ItemCollection struct {
	Type     string           `json:"type"`
	Features []map[string]any `json:"features"`
	Links    []Link           `json:"links"`
	Context  *Context         `json:"context,omitempty"`
	BBox     []float64        `json:"bbox,omitempty"`
}

// LandingPage is the root catalog document.
type LandingPage struct {
	Type        string   `json:"type"`
	ID          string   `json:"id"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description"`
	StacVersion string   `json:"stac_version"`
	ConformsTo  []string `json:"conformsTo"`
	Links       []Link   `json:"links"`
}

// Conformance lists the conformance classes implemented by the server.
type Conformance struct {
	ConformsTo []string `json:"conformsTo"`
}

// ConformanceClasses are advertised on the landing page and /conformance.
var ConformanceClasses = []string{
	"https://api.stacspec.org/v1.0.0/core",
	"https://api.stacspec.org/v1.0.0/collections",
	"https://api.stacspec.org/v1.0.0/ogcapi-features",
	"https://api.stacspec.org/v1.0.0/item-search",
	"http://www.opengis.net/spec/ogcapi-features-1/1.0/conf/core",
	"http://www.opengis.net/spec/ogcapi-features-1/1.0/conf/geojson",
}

// ExtensionConformance maps an API extension name to its conformance class.
var ExtensionConformance = map[string]string{
	ExtContext:     "https://api.stacspec.org/v1.0.0-rc.2/item-search#context",
	ExtFields:      "https://api.stacspec.org/v1.0.0/item-search#fields",
	ExtQuery:       "https://api.stacspec.org/v1.0.0/item-search#query",
	ExtSort:        "https://api.stacspec.org/v1.0.0/item-search#sort",
	ExtTransaction: "https://api.stacspec.org/v1.0.0/ogcapi-features/extensions/transaction",
}

// API extension names.
const (
	ExtContext     = "context"
	ExtFields      = "fields"
	ExtQuery       = "query"
	ExtSort        = "sort"
	ExtTransaction = "transaction"
)
