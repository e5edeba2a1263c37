package schema_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/stac-server/schema"
)

func validItem() map[string]any {
	return map[string]any{
		"type":         "Feature",
		"stac_version": "1.0.0",
		"id":           "scene-1",
		"collection":   "joplin",
		"geometry": map[string]any{
			"type": "Polygon",
			"coordinates": []any{[]any{
				[]any{-94.6, 37.0}, []any{-94.5, 37.0}, []any{-94.5, 37.1},
				[]any{-94.6, 37.1}, []any{-94.6, 37.0},
			}},
		},
		"bbox": []any{-94.6, 37.0, -94.5, 37.1},
		"properties": map[string]any{
			"datetime": "2000-02-02T00:00:00Z",
			"gsd":      float64(0.5),
		},
		"links": []any{map[string]any{"href": "http://example.com", "rel": "via"}},
		"assets": map[string]any{
			"image": map[string]any{"href": "http://example.com/image.tif"},
		},
	}
}

func validCollection() map[string]any {
	return map[string]any{
		"type":        "Collection",
		"id":          "joplin",
		"description": "Joplin tornado imagery",
		"license":     "public-domain",
		"extent": map[string]any{
			"spatial":  map[string]any{"bbox": []any{[]any{-94.7, 37.0, -94.4, 37.2}}},
			"temporal": map[string]any{"interval": []any{[]any{"2000-02-01T00:00:00Z", nil}}},
		},
	}
}

func TestValidateItem(t *testing.T) {
	require.NoError(t, schema.ValidateItem(validItem()))
}

func TestValidateItemFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(doc map[string]any)
	}{
		{"missing id", func(d map[string]any) { delete(d, "id") }},
		{"empty id", func(d map[string]any) { d["id"] = "" }},
		{"missing geometry", func(d map[string]any) { delete(d, "geometry") }},
		{"unknown geometry type", func(d map[string]any) { d["geometry"] = map[string]any{"type": "Circle"} }},
		{"wrong feature type", func(d map[string]any) { d["type"] = "Collection" }},
		{"short bbox", func(d map[string]any) { d["bbox"] = []any{1.0, 2.0} }},
		{"missing datetime", func(d map[string]any) { d["properties"] = map[string]any{"gsd": 1.0} }},
		{"negative gsd", func(d map[string]any) { d["properties"].(map[string]any)["gsd"] = -1.0 }},
		{"fractional epsg", func(d map[string]any) { d["properties"].(map[string]any)["proj:epsg"] = 4326.5 }},
		{"link without rel", func(d map[string]any) { d["links"] = []any{map[string]any{"href": "x"}} }},
		{"asset without href", func(d map[string]any) { d["assets"] = map[string]any{"a": map[string]any{"title": "x"}} }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc := validItem()
			tc.mutate(doc)
			err := schema.ValidateItem(doc)
			require.Error(t, err)

			var verr *schema.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, schema.KindItem, verr.Kind)
		})
	}
}

func TestValidateItemNullDatetime(t *testing.T) {
	doc := validItem()
	doc["properties"] = map[string]any{
		"datetime":       nil,
		"start_datetime": "2000-01-01T00:00:00Z",
		"end_datetime":   "2000-01-02T00:00:00Z",
	}
	require.NoError(t, schema.ValidateItem(doc))
}

func TestValidateCollection(t *testing.T) {
	require.NoError(t, schema.ValidateCollection(validCollection()))
}

func TestValidateCollectionFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(doc map[string]any)
	}{
		{"missing id", func(d map[string]any) { delete(d, "id") }},
		{"missing description", func(d map[string]any) { delete(d, "description") }},
		{"missing extent", func(d map[string]any) { delete(d, "extent") }},
		{"empty spatial", func(d map[string]any) {
			d["extent"].(map[string]any)["spatial"] = map[string]any{"bbox": []any{}}
		}},
		{"interval of one", func(d map[string]any) {
			d["extent"].(map[string]any)["temporal"] = map[string]any{"interval": []any{[]any{"2000-01-01T00:00:00Z"}}}
		}},
		{"wrong type", func(d map[string]any) { d["type"] = "Feature" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc := validCollection()
			tc.mutate(doc)
			err := schema.ValidateCollection(doc)
			require.Error(t, err)

			var verr *schema.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, schema.KindCollection, verr.Kind)
		})
	}
}

func TestCompile(t *testing.T) {
	s, err := schema.Compile(nil)
	require.NoError(t, err)
	require.NoError(t, s.Validate(map[string]any{"anything": "goes"}))

	s, err = schema.Compile(map[string]any{"type": "object", "required": []any{"id"}})
	require.NoError(t, err)
	for range 3 {
		require.NoError(t, s.Validate(map[string]any{"id": "a"}))
		err = s.Validate(map[string]any{})
		var verr *schema.ValidationError
		require.True(t, errors.As(err, &verr))
	}

	_, err = schema.Compile(map[string]any{"properties": 5})
	require.ErrorContains(t, err, "invalid schema")
}

func TestValidateNilSchema(t *testing.T) {
	require.NoError(t, schema.Validate(nil, map[string]any{"anything": "goes"}))
}

func TestValidateRequired(t *testing.T) {
	s := map[string]any{
		"type":     "object",
		"required": []any{"name", "age"},
	}
	require.Error(t, schema.Validate(s, map[string]any{"name": "Alice"}))
	require.NoError(t, schema.Validate(s, map[string]any{"name": "Alice", "age": float64(30)}))
}

func TestValidateAdditionalProperties(t *testing.T) {
	s := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
		},
		"additionalProperties": false,
	}
	require.Error(t, schema.Validate(s, map[string]any{"name": "ok", "extra": "bad"}))
	require.NoError(t, schema.Validate(s, map[string]any{"name": "ok"}))
}

func TestValidateIntegerType(t *testing.T) {
	s := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"count": map[string]any{"type": "integer"},
		},
	}
	// float64 that is a whole number should pass as integer
	require.NoError(t, schema.Validate(s, map[string]any{"count": float64(5)}))
	require.Error(t, schema.Validate(s, map[string]any{"count": float64(5.5)}))
}
