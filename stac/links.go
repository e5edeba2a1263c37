package stac

import (
	"net/url"
	"strings"
)

// Link relations generated by the server.
const (
	RelSelf       = "self"
	RelRoot       = "root"
	RelParent     = "parent"
	RelChild      = "child"
	RelCollection = "collection"
	RelItems      = "items"
	RelNext       = "next"
	RelPrev       = "previous"
	RelData       = "data"
	RelConform    = "conformance"
	RelSearch     = "search"
	RelQueryables = "http://www.opengis.net/def/rel/ogc/1.0/queryables"
)

// ItemLinks returns the item's stored links with server-generated ones
// replacing any stored link of the same relation.
func ItemLinks(base string, it *Item) []Link {
	base = strings.TrimRight(base, "/")
	coll := base + "/collections/" + url.PathEscape(it.Collection)
	return mergeLinks(it.Links, []Link{
		{Rel: RelSelf, Type: MediaGeoJSON, Href: coll + "/items/" + url.PathEscape(it.ID)},
		{Rel: RelParent, Type: MediaJSON, Href: coll},
		{Rel: RelCollection, Type: MediaJSON, Href: coll},
		{Rel: RelRoot, Type: MediaJSON, Href: base + "/"},
	})
}

// CollectionLinks is ItemLinks for collections.
func CollectionLinks(base string, c *Collection) []Link {
	base = strings.TrimRight(base, "/")
	self := base + "/collections/" + url.PathEscape(c.ID)
	return mergeLinks(c.Links, []Link{
		{Rel: RelSelf, Type: MediaJSON, Href: self},
		{Rel: RelParent, Type: MediaJSON, Href: base + "/"},
		{Rel: RelItems, Type: MediaGeoJSON, Href: self + "/items"},
		{Rel: RelRoot, Type: MediaJSON, Href: base + "/"},
	})
}

func mergeLinks(stored, generated []Link) []Link {
	replace := make(map[string]bool, len(generated))
	for _, l := range generated {
		replace[l.Rel] = true
	}
	out := make([]Link, 0, len(stored)+len(generated))
	for _, l := range stored {
		if !replace[l.Rel] {
			out = append(out, l)
		}
	}
	return append(out, generated...)
}

// PostPageLinks builds next/previous links for a POST search. The body is
// merged by the client into the original request.
func PostPageLinks(href string, offset, limit, returned, matched int) []Link {
	var links []Link
	if offset+returned < matched {
		links = append(links, Link{
			Rel: RelNext, Type: MediaGeoJSON, Href: href, Method: "POST",
			Body:  map[string]any{"token": EncodeToken(offset + limit)},
			Merge: true,
		})
	}
	if offset > 0 {
		links = append(links, Link{
			Rel: RelPrev, Type: MediaGeoJSON, Href: href, Method: "POST",
			Body:  map[string]any{"token": EncodeToken(max(offset-limit, 0))},
			Merge: true,
		})
	}
	return links
}

// GetPageLinks builds next/previous links for a GET request, carrying the
// original query parameters with the page token replaced.
func GetPageLinks(href string, params url.Values, offset, limit, returned, matched int) []Link {
	withToken := func(offset int) string {
		q := url.Values{}
		for k, v := range params {
			q[k] = append([]string(nil), v...)
		}
		q.Set("token", EncodeToken(offset))
		return href + "?" + q.Encode()
	}
	var links []Link
	if offset+returned < matched {
		links = append(links, Link{Rel: RelNext, Type: MediaGeoJSON, Href: withToken(offset + limit), Method: "GET"})
	}
	if offset > 0 {
		links = append(links, Link{Rel: RelPrev, Type: MediaGeoJSON, Href: withToken(max(offset-limit, 0)), Method: "GET"})
	}
	return links
}
