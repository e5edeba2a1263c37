package stac

import (
	"sort"
	"strings"
)

// DefaultIncludes are always part of a projected item unless configured
// otherwise. Removing them would produce documents that are no longer
// valid Items.
var DefaultIncludes = []string{
	"id",
	"type",
	"stac_version",
	"stac_extensions",
	"collection",
	"geometry",
	"bbox",
	"links",
	"assets",
	"properties.datetime",
}

// FieldsParam is the fields-extension request: dotted paths to include in
// or exclude from each returned item.
type FieldsParam struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// Resolve combines the requested paths with the default include set.
//
// With only includes, the result is defaults ∪ include. With both, it is
// (defaults ∪ include) − (exclude − defaults), so a default field is never
// dropped from the include set. The exclude set is returned as given.
func (f FieldsParam) Resolve(defaults []string) (include, exclude []string) {
	inc := toSet(defaults)
	exc := toSet(f.Exclude)
	req := toSet(f.Include)

	if len(req) > 0 {
		for p := range req {
			inc[p] = struct{}{}
		}
		if len(exc) > 0 {
			def := toSet(defaults)
			for p := range exc {
				if _, isDefault := def[p]; !isDefault {
					delete(inc, p)
				}
			}
		}
	}
	return sortedKeys(inc), sortedKeys(exc)
}

// ParseFieldsParam parses the GET form "a,+b,-c": a leading "-" excludes,
// a leading "+" or no prefix includes.
func ParseFieldsParam(s string) *FieldsParam {
	parts := SplitList(s)
	if len(parts) == 0 {
		return nil
	}
	f := &FieldsParam{}
	for _, p := range parts {
		switch {
		case strings.HasPrefix(p, "-"):
			f.Exclude = append(f.Exclude, p[1:])
		case strings.HasPrefix(p, "+"):
			f.Include = append(f.Include, p[1:])
		default:
			f.Include = append(f.Include, p)
		}
	}
	return f
}

// fieldTree is a trie of dotted paths. A node marked all selects the whole
// subtree below it.
type fieldTree struct {
	all      bool
	children map[string]*fieldTree
}

func newFieldTree(paths []string) *fieldTree {
	root := &fieldTree{children: map[string]*fieldTree{}}
	for _, p := range paths {
		if p == "" {
			continue
		}
		node := root
		for _, part := range strings.Split(p, ".") {
			if node.all {
				break
			}
			child, ok := node.children[part]
			if !ok {
				child = &fieldTree{children: map[string]*fieldTree{}}
				node.children[part] = child
			}
			node = child
		}
		if !node.all {
			node.all = true
			node.children = nil
		}
	}
	return root
}

// Project applies resolved include and exclude sets to a JSON object and
// returns a new object. An empty include set keeps everything. Exclusion is
// applied after inclusion.
func Project(doc map[string]any, include, exclude []string) map[string]any {
	var out map[string]any
	if len(include) == 0 {
		out, _ = copyValue(doc).(map[string]any)
	} else {
		out = pick(doc, newFieldTree(include))
	}
	for _, p := range exclude {
		removePath(out, strings.Split(p, "."))
	}
	return out
}

func pick(doc map[string]any, tree *fieldTree) map[string]any {
	out := make(map[string]any, len(tree.children))
	for key, child := range tree.children {
		v, ok := doc[key]
		if !ok {
			continue
		}
		if child.all {
			out[key] = copyValue(v)
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			out[key] = pick(sub, child)
		}
	}
	return out
}

func removePath(doc map[string]any, parts []string) {
	if doc == nil || len(parts) == 0 {
		return
	}
	if len(parts) == 1 {
		delete(doc, parts[0])
		return
	}
	if sub, ok := doc[parts[0]].(map[string]any); ok {
		removePath(sub, parts[1:])
	}
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = copyValue(vv)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = copyValue(vv)
		}
		return s
	default:
		return v
	}
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
