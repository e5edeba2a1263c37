package handler

import (
	"net/http"
	"net/url"

	"github.com/stevemurr/stac-server/geo"
	"github.com/stevemurr/stac-server/schema"
	"github.com/stevemurr/stac-server/stac"
	"github.com/stevemurr/stac-server/store"
)

// ---------- status endpoints ----------

func (h *Handler) landingPage(w http.ResponseWriter, r *http.Request) {
	base := baseURL(r)
	links := []stac.Link{
		{Rel: stac.RelSelf, Type: stac.MediaJSON, Href: base + "/"},
		{Rel: stac.RelRoot, Type: stac.MediaJSON, Href: base + "/"},
		{Rel: stac.RelConform, Type: stac.MediaJSON, Href: base + "/conformance"},
		{Rel: stac.RelData, Type: stac.MediaJSON, Href: base + "/collections"},
		{Rel: stac.RelSearch, Type: stac.MediaGeoJSON, Href: base + "/search", Method: http.MethodGet},
		{Rel: stac.RelSearch, Type: stac.MediaGeoJSON, Href: base + "/search", Method: http.MethodPost},
		{Rel: stac.RelQueryables, Type: "application/schema+json", Href: base + "/queryables"},
	}
	collections, err := h.store.ListCollections(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	for _, c := range collections {
		links = append(links, stac.Link{
			Rel:   stac.RelChild,
			Type:  stac.MediaJSON,
			Title: c.Title,
			Href:  base + "/collections/" + url.PathEscape(c.ID),
		})
	}
	writeJSON(w, http.StatusOK, stac.LandingPage{
		Type:        "Catalog",
		ID:          "stac-server",
		Title:       h.opts.Title,
		Description: h.opts.Description,
		StacVersion: stac.Version,
		ConformsTo:  h.conformsTo(),
		Links:       links,
	})
}

func (h *Handler) conformsTo() []string {
	out := append([]string(nil), stac.ConformanceClasses...)
	for _, ext := range h.opts.Extensions {
		if c, ok := stac.ExtensionConformance[ext]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (h *Handler) conformance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, stac.Conformance{ConformsTo: h.conformsTo()})
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "PONG"})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ---------- collections ----------

func (h *Handler) listCollections(w http.ResponseWriter, r *http.Request) {
	collections, err := h.store.ListCollections(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	base := baseURL(r)
	out := make([]*stac.Collection, 0, len(collections))
	for _, c := range collections {
		c.Links = stac.CollectionLinks(base, c)
		out = append(out, c)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"collections": out,
		"links": []stac.Link{
			{Rel: stac.RelSelf, Type: stac.MediaJSON, Href: base + "/collections"},
			{Rel: stac.RelRoot, Type: stac.MediaJSON, Href: base + "/"},
			{Rel: stac.RelParent, Type: stac.MediaJSON, Href: base + "/"},
		},
	})
}

func (h *Handler) getCollection(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.GetCollection(r.Context(), r.PathValue("collectionId"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	c.Links = stac.CollectionLinks(baseURL(r), c)
	writeJSON(w, http.StatusOK, c)
}

// ---------- items ----------

// listItems pages through one collection. Only limit, token, bbox and
// datetime are honored; the rest of the search surface lives on /search.
func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collectionId")
	if _, err := h.store.GetCollection(r.Context(), collection); err != nil {
		writeErr(w, r, err)
		return
	}
	params := r.URL.Query()
	full, err := stac.SearchRequestFromQuery(params)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	req := stac.SearchRequest{
		Collections: []string{collection},
		BBox:        full.BBox,
		Datetime:    full.Datetime,
		Limit:       full.Limit,
		Token:       full.Token,
	}
	opts := h.searchOptions()
	opts.Fields = false
	s, err := stac.ParseSearch(req, opts)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	res, err := h.store.Search(r.Context(), s)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	base := baseURL(r)
	self := base + "/collections/" + url.PathEscape(collection) + "/items"
	ic := h.itemCollection(base, s, res)
	ic.Links = append([]stac.Link{
		{Rel: stac.RelSelf, Type: stac.MediaGeoJSON, Href: self},
		{Rel: stac.RelParent, Type: stac.MediaJSON, Href: base + "/collections/" + url.PathEscape(collection)},
		{Rel: stac.RelRoot, Type: stac.MediaJSON, Href: base + "/"},
	}, stac.GetPageLinks(self, params, s.Offset, s.Limit, len(res.Items), res.Matched)...)
	writeGeoJSON(w, http.StatusOK, ic)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	it, err := h.store.GetItem(r.Context(), r.PathValue("collectionId"), r.PathValue("itemId"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	it.Links = stac.ItemLinks(baseURL(r), it)
	writeGeoJSON(w, http.StatusOK, it)
}

// ---------- search ----------

func (h *Handler) searchOptions() stac.Options {
	return stac.Options{
		DefaultLimit:    h.opts.DefaultLimit,
		MaxLimit:        h.opts.MaxLimit,
		Queryables:      h.opts.Queryables,
		DefaultIncludes: h.opts.DefaultIncludes,
		Fields:          h.enabled(stac.ExtFields),
		Query:           h.enabled(stac.ExtQuery),
		Sort:            h.enabled(stac.ExtSort),
	}
}

func (h *Handler) searchGet(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	req, err := stac.SearchRequestFromQuery(params)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	href := baseURL(r) + "/search"
	h.search(w, r, req, func(s *stac.Search, returned, matched int) []stac.Link {
		return stac.GetPageLinks(href, params, s.Offset, s.Limit, returned, matched)
	})
}

func (h *Handler) searchPost(w http.ResponseWriter, r *http.Request) {
	var req stac.SearchRequest
	if err := readJSON(r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	href := baseURL(r) + "/search"
	h.search(w, r, req, func(s *stac.Search, returned, matched int) []stac.Link {
		return stac.PostPageLinks(href, s.Offset, s.Limit, returned, matched)
	})
}

type pageLinker func(s *stac.Search, returned, matched int) []stac.Link

func (h *Handler) search(w http.ResponseWriter, r *http.Request, req stac.SearchRequest, paging pageLinker) {
	s, err := stac.ParseSearch(req, h.searchOptions())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	res, err := h.store.Search(r.Context(), s)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	base := baseURL(r)
	ic := h.itemCollection(base, s, res)
	ic.Links = append([]stac.Link{
		{Rel: stac.RelSelf, Type: stac.MediaGeoJSON, Href: base + "/search"},
		{Rel: stac.RelRoot, Type: stac.MediaJSON, Href: base + "/"},
	}, paging(s, len(res.Items), res.Matched)...)
	writeGeoJSON(w, http.StatusOK, ic)
}

// itemCollection renders a result page: generated links on every item,
// field projection when requested, and the context summary.
func (h *Handler) itemCollection(base string, s *stac.Search, res *store.Result) *stac.ItemCollection {
	ic := &stac.ItemCollection{
		Type:     "FeatureCollection",
		Features: make([]map[string]any, 0, len(res.Items)),
	}
	var bbox []float64
	for _, it := range res.Items {
		it.Links = stac.ItemLinks(base, it)
		bbox = unionBBox(bbox, it.BBox)
		doc := it.Map()
		if s.Project {
			doc = stac.Project(doc, s.Include, s.Exclude)
		}
		ic.Features = append(ic.Features, doc)
	}
	ic.BBox = bbox
	if h.enabled(stac.ExtContext) {
		ic.Context = &stac.Context{Returned: len(res.Items), Limit: s.Limit, Matched: res.Matched}
	}
	return ic
}

func unionBBox(acc, bbox []float64) []float64 {
	b, err := geo.BoundFromBBox(bbox)
	if err != nil {
		return acc
	}
	if acc == nil {
		return []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
	}
	return []float64{
		min(acc[0], b.Min[0]), min(acc[1], b.Min[1]),
		max(acc[2], b.Max[0]), max(acc[3], b.Max[1]),
	}
}

// ---------- queryables ----------

func (h *Handler) queryables(w http.ResponseWriter, r *http.Request) {
	props := make(map[string]any, len(h.opts.Queryables))
	for _, name := range h.opts.Queryables.Names() {
		q := h.opts.Queryables[name]
		p := map[string]any{"type": q.Type}
		if q.Title != "" {
			p["title"] = q.Title
		}
		props[name] = p
	}
	writeTyped(w, http.StatusOK, "application/schema+json", map[string]any{
		"$schema":              "https://json-schema.org/draft/2019-09/schema",
		"$id":                  baseURL(r) + "/queryables",
		"type":                 "object",
		"title":                "Queryables for " + h.opts.Title,
		"properties":           props,
		"additionalProperties": false,
	})
}

// ---------- validation ----------

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	doc, err := readDocument(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if _, err := h.checkItem(doc, ""); err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

// checkItem validates a decoded item document and returns the normalized
// item. Schema failures are 422, structural ones 400.
func (h *Handler) checkItem(doc map[string]any, collection string) (*stac.Item, error) {
	if err := schema.ValidateItem(doc); err != nil {
		return nil, err
	}
	if err := h.opts.ItemSchema.Validate(doc); err != nil {
		return nil, err
	}
	var it stac.Item
	if err := convert(doc, &it); err != nil {
		return nil, err
	}
	if err := stac.NormalizeItem(&it, collection); err != nil {
		return nil, err
	}
	return &it, nil
}
