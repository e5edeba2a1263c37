package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/stac-server/config"
	"github.com/stevemurr/stac-server/stac"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, "sqlite", cfg.Backend)
	assert.Equal(t, []string{"context", "fields", "query", "sort", "transaction"}, cfg.Extensions)
	assert.Equal(t, 10, cfg.DefaultLimit)
	assert.Equal(t, 10000, cfg.MaxLimit)
	assert.Equal(t, []string{"http://localhost:9200"}, cfg.ESURL)

	opts := cfg.StoreOptions()
	assert.Equal(t, "sqlite", opts.Backend)
	assert.Equal(t, "stac_", opts.Elasticsearch.IndexPrefix)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STAC_PORT", "9000")
	t.Setenv("STAC_BACKEND", "elasticsearch")
	t.Setenv("ES_URL", "http://es1:9200,http://es2:9200")
	t.Setenv("STAC_API_EXTENSIONS", " Fields , query,")
	t.Setenv("STAC_DEFAULT_LIMIT", "25")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr())
	assert.Equal(t, []string{"fields", "query"}, cfg.Extensions)
	assert.Equal(t, 25, cfg.DefaultLimit)
	assert.Equal(t, []string{"http://es1:9200", "http://es2:9200"}, cfg.StoreOptions().Elasticsearch.Addresses)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"unknown extension", "STAC_API_EXTENSIONS", "fields,filter"},
		{"bad limit", "STAC_DEFAULT_LIMIT", "0"},
		{"limit not a number", "STAC_DEFAULT_LIMIT", "ten"},
		{"max below default", "STAC_MAX_LIMIT", "5"},
		{"bad refresh", "STAC_ES_REFRESH", "sometimes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadQueryables(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		q, err := (&config.Config{}).LoadQueryables()
		require.NoError(t, err)
		assert.Equal(t, stac.DefaultQueryables(), q)
	})

	t.Run("yaml", func(t *testing.T) {
		path := writeFile(t, "queryables.yaml", `
queryables:
  gsd:
    type: number
    title: Ground Sample Distance
  proj:epsg:
    type: integer
  platform:
    type: string
`)
		q, err := (&config.Config{QueryablesFile: path}).LoadQueryables()
		require.NoError(t, err)
		assert.Equal(t, []string{"gsd", "platform", "proj:epsg"}, q.Names())
		assert.Equal(t, stac.Queryable{Type: stac.TypeNumber, Title: "Ground Sample Distance"}, q["gsd"])
		assert.Equal(t, stac.TypeInteger, q["proj:epsg"].Type)
	})

	t.Run("json", func(t *testing.T) {
		path := writeFile(t, "queryables.json", `{"queryables": {"cloud_cover": {"type": "number"}}}`)
		q, err := (&config.Config{QueryablesFile: path}).LoadQueryables()
		require.NoError(t, err)
		assert.Equal(t, stac.TypeNumber, q["cloud_cover"].Type)
	})

	t.Run("bad type", func(t *testing.T) {
		path := writeFile(t, "queryables.yaml", "queryables:\n  gsd:\n    type: float\n")
		_, err := (&config.Config{QueryablesFile: path}).LoadQueryables()
		assert.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		path := writeFile(t, "queryables.yaml", "other: 1\n")
		_, err := (&config.Config{QueryablesFile: path}).LoadQueryables()
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := (&config.Config{QueryablesFile: filepath.Join(t.TempDir(), "nope.yaml")}).LoadQueryables()
		assert.Error(t, err)
	})
}

func TestLoadItemSchema(t *testing.T) {
	s, err := (&config.Config{}).LoadItemSchema()
	require.NoError(t, err)
	assert.Nil(t, s)

	path := writeFile(t, "item.json", `{"type": "object", "required": ["properties"]}`)
	s, err = (&config.Config{ItemSchemaFile: path}).LoadItemSchema()
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Error(t, s.Validate(map[string]any{"id": "x"}))
	assert.NoError(t, s.Validate(map[string]any{"id": "x", "properties": map[string]any{}}))

	path = writeFile(t, "bad.json", `{`)
	_, err = (&config.Config{ItemSchemaFile: path}).LoadItemSchema()
	assert.Error(t, err)

	// A broken schema fails at load time, not on the first write.
	path = writeFile(t, "broken.json", `{"properties": 5}`)
	_, err = (&config.Config{ItemSchemaFile: path}).LoadItemSchema()
	assert.ErrorContains(t, err, "invalid schema")
}
