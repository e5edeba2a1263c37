package stac

import (
	"fmt"

	"github.com/stevemurr/stac-server/geo"
)

// NormalizeItem fills defaults and checks the invariants an item must hold
// before it is stored: a parseable geometry and datetime, and membership in
// the collection it is posted to.
func NormalizeItem(it *Item, collection string) error {
	if it.ID == "" {
		return &ParamError{Param: "item", Msg: "id is required"}
	}
	if it.Type == "" {
		it.Type = "Feature"
	}
	if it.StacVersion == "" {
		it.StacVersion = Version
	}
	switch {
	case it.Collection == "":
		it.Collection = collection
	case collection != "" && it.Collection != collection:
		return &ParamError{Param: "item", Msg: fmt.Sprintf("collection %q does not match path collection %q", it.Collection, collection)}
	}
	g, err := geo.ParseGeometry(it.Geometry)
	if err != nil {
		return &ParamError{Param: "item", Msg: err.Error()}
	}
	if len(it.BBox) == 0 {
		it.BBox = geo.BBox(g)
	} else if _, err := geo.BoundFromBBox(it.BBox); err != nil {
		return &ParamError{Param: "item", Msg: err.Error()}
	}
	if it.Properties == nil {
		return &ParamError{Param: "item", Msg: "properties are required"}
	}
	if _, err := it.Datetime(); err != nil {
		return &ParamError{Param: "item", Msg: err.Error()}
	}
	if _, err := it.EndDatetime(); err != nil {
		return &ParamError{Param: "item", Msg: err.Error()}
	}
	if it.Assets == nil {
		it.Assets = map[string]any{}
	}
	return nil
}

// NormalizeCollection fills defaults on a collection.
func NormalizeCollection(c *Collection, id string) error {
	switch {
	case c.ID == "":
		c.ID = id
	case id != "" && c.ID != id:
		return &ParamError{Param: "collection", Msg: fmt.Sprintf("id %q does not match path id %q", c.ID, id)}
	}
	if c.ID == "" {
		return &ParamError{Param: "collection", Msg: "id is required"}
	}
	if c.Type == "" {
		c.Type = "Collection"
	}
	if c.StacVersion == "" {
		c.StacVersion = Version
	}
	if c.License == "" {
		c.License = "proprietary"
	}
	return nil
}
