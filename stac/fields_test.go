package stac_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stevemurr/stac-server/stac"
)

func TestFieldsResolve(t *testing.T) {
	defaults := []string{"id", "properties.datetime"}

	tests := []struct {
		name    string
		fields  stac.FieldsParam
		include []string
		exclude []string
	}{
		{
			name:    "empty keeps defaults",
			include: []string{"id", "properties.datetime"},
			exclude: []string{},
		},
		{
			name:    "include adds to defaults",
			fields:  stac.FieldsParam{Include: []string{"properties.gsd"}},
			include: []string{"id", "properties.datetime", "properties.gsd"},
			exclude: []string{},
		},
		{
			name:    "exclude never removes a default",
			fields:  stac.FieldsParam{Include: []string{"properties.gsd", "assets"}, Exclude: []string{"id", "assets"}},
			include: []string{"id", "properties.datetime", "properties.gsd"},
			exclude: []string{"assets", "id"},
		},
		{
			name:    "exclude only",
			fields:  stac.FieldsParam{Exclude: []string{"links"}},
			include: []string{"id", "properties.datetime"},
			exclude: []string{"links"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			include, exclude := tc.fields.Resolve(defaults)
			assert.Equal(t, tc.include, include)
			assert.Equal(t, tc.exclude, exclude)
		})
	}
}

func TestParseFieldsParam(t *testing.T) {
	assert.Nil(t, stac.ParseFieldsParam(""))
	assert.Equal(t, &stac.FieldsParam{
		Include: []string{"id", "properties.gsd"},
		Exclude: []string{"links"},
	}, stac.ParseFieldsParam("id,+properties.gsd,-links"))
}

func TestProject(t *testing.T) {
	doc := map[string]any{
		"id":   "x",
		"type": "Feature",
		"properties": map[string]any{
			"datetime": "2020-01-01T00:00:00Z",
			"gsd":      10.0,
			"eo:bands": []any{map[string]any{"name": "B1"}},
		},
		"assets": map[string]any{"thumbnail": map[string]any{"href": "t.png"}},
	}

	t.Run("include nested", func(t *testing.T) {
		got := stac.Project(doc, []string{"id", "properties.gsd"}, nil)
		assert.Equal(t, map[string]any{
			"id":         "x",
			"properties": map[string]any{"gsd": 10.0},
		}, got)
	})

	t.Run("empty include keeps everything", func(t *testing.T) {
		got := stac.Project(doc, nil, []string{"assets", "properties.eo:bands"})
		assert.Equal(t, map[string]any{
			"id":   "x",
			"type": "Feature",
			"properties": map[string]any{
				"datetime": "2020-01-01T00:00:00Z",
				"gsd":      10.0,
			},
		}, got)
		// The source document is untouched.
		assert.Contains(t, doc, "assets")
		assert.Contains(t, doc["properties"], "eo:bands")
	})

	t.Run("exclude applies after include", func(t *testing.T) {
		got := stac.Project(doc, []string{"properties"}, []string{"properties.gsd"})
		props := got["properties"].(map[string]any)
		assert.NotContains(t, props, "gsd")
		assert.Contains(t, props, "datetime")
	})

	t.Run("parent path wins over child", func(t *testing.T) {
		got := stac.Project(doc, []string{"properties.gsd", "properties"}, nil)
		assert.Len(t, got["properties"], 3)
	})

	t.Run("missing paths are skipped", func(t *testing.T) {
		got := stac.Project(doc, []string{"nope", "properties.nope.deeper"}, nil)
		assert.Equal(t, map[string]any{"properties": map[string]any{}}, got)
	})
}
