package handler

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/stevemurr/stac-server/schema"
	"github.com/stevemurr/stac-server/stac"
)

// ---------- collections ----------

// readCollection decodes, validates and normalizes a collection body. id is
// the collection id from the path, if any.
func readCollection(r *http.Request, id string) (*stac.Collection, error) {
	doc, err := readDocument(r)
	if err != nil {
		return nil, err
	}
	if id != "" {
		if _, ok := doc["id"]; !ok {
			doc["id"] = id
		}
	}
	if err := schema.ValidateCollection(doc); err != nil {
		return nil, err
	}
	var c stac.Collection
	if err := convert(doc, &c); err != nil {
		return nil, err
	}
	if err := stac.NormalizeCollection(&c, id); err != nil {
		return nil, err
	}
	return &c, nil
}

func (h *Handler) createCollection(w http.ResponseWriter, r *http.Request) {
	c, err := readCollection(r, "")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if err := h.store.CreateCollection(r.Context(), c); err != nil {
		writeErr(w, r, err)
		return
	}
	c.Links = stac.CollectionLinks(baseURL(r), c)
	writeJSON(w, http.StatusCreated, c)
}

// updateCollection serves both PUT /collections and
// PUT /collections/{collectionId}. It creates the collection if needed.
func (h *Handler) updateCollection(w http.ResponseWriter, r *http.Request) {
	c, err := readCollection(r, r.PathValue("collectionId"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if err := h.store.UpdateCollection(r.Context(), c); err != nil {
		writeErr(w, r, err)
		return
	}
	c.Links = stac.CollectionLinks(baseURL(r), c)
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) deleteCollection(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.DeleteCollection(r.Context(), r.PathValue("collectionId"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	c.Links = stac.CollectionLinks(baseURL(r), c)
	writeJSON(w, http.StatusOK, c)
}

// ---------- items ----------

// createItems accepts a single Item or a FeatureCollection of items. A bulk
// insert stops at the first invalid or conflicting item; items before it
// stay created.
func (h *Handler) createItems(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collectionId")
	doc, err := readDocument(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	base := baseURL(r)

	if doc["type"] != "FeatureCollection" {
		it, err := h.checkItem(doc, collection)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		if err := h.store.CreateItem(r.Context(), it); err != nil {
			writeErr(w, r, err)
			return
		}
		it.Links = stac.ItemLinks(base, it)
		writeGeoJSON(w, http.StatusCreated, it)
		return
	}

	features, ok := doc["features"].([]any)
	if !ok {
		writeErr(w, r, &stac.ParamError{Param: "features", Msg: "a FeatureCollection needs a features array"})
		return
	}
	items := make([]*stac.Item, 0, len(features))
	for i, f := range features {
		fdoc, ok := f.(map[string]any)
		if !ok {
			writeErr(w, r, &stac.ParamError{Param: "features", Msg: "feature " + strconv.Itoa(i) + " is not an object"})
			return
		}
		it, err := h.checkItem(fdoc, collection)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		items = append(items, it)
	}
	out := &stac.ItemCollection{Type: "FeatureCollection", Features: make([]map[string]any, 0, len(items))}
	for _, it := range items {
		if err := h.store.CreateItem(r.Context(), it); err != nil {
			writeErr(w, r, err)
			return
		}
		it.Links = stac.ItemLinks(base, it)
		out.Features = append(out.Features, it.Map())
	}
	out.Links = []stac.Link{{Rel: stac.RelCollection, Type: stac.MediaJSON, Href: base + "/collections/" + url.PathEscape(collection)}}
	writeGeoJSON(w, http.StatusCreated, out)
}

// updateItem serves PUT on the item and the items path. It creates the
// item if needed.
func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collectionId")
	doc, err := readDocument(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if id := r.PathValue("itemId"); id != "" {
		switch doc["id"] {
		case nil:
			doc["id"] = id
		case id:
		default:
			writeErr(w, r, &stac.ParamError{Param: "item", Msg: "id does not match path id " + id})
			return
		}
	}
	it, err := h.checkItem(doc, collection)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if err := h.store.UpdateItem(r.Context(), it); err != nil {
		writeErr(w, r, err)
		return
	}
	it.Links = stac.ItemLinks(baseURL(r), it)
	writeGeoJSON(w, http.StatusOK, it)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	it, err := h.store.DeleteItem(r.Context(), r.PathValue("collectionId"), r.PathValue("itemId"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	it.Links = stac.ItemLinks(baseURL(r), it)
	writeGeoJSON(w, http.StatusOK, it)
}
