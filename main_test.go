package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/stac-server/config"
	"github.com/stevemurr/stac-server/handler"
	"github.com/stevemurr/stac-server/store"
)

const collectionJSON = `{
  "type": "Collection",
  "stac_version": "1.0.0",
  "id": "landsat",
  "description": "Landsat scenes",
  "license": "proprietary",
  "extent": {
    "spatial": {"bbox": [[-180, -90, 180, 90]]},
    "temporal": {"interval": [["2020-01-01T00:00:00Z", null]]}
  },
  "links": []
}`

func itemJSON(id string, day int) string {
	return fmt.Sprintf(`{"type":"Feature","stac_version":"1.0.0","id":%q,`+
		`"geometry":{"type":"Point","coordinates":[%d,1]},`+
		`"properties":{"datetime":"2020-01-%02dT00:00:00Z"},"assets":{},"links":[]}`, id, day, day)
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newServer(t *testing.T, secret string) (*httptest.Server, store.Store) {
	t.Helper()
	s := store.NewMemoryStore()
	ts := httptest.NewServer(handler.New(s, handler.Options{
		Extensions: []string{"context", "transaction"},
		JWTSecret:  secret,
	}))
	t.Cleanup(ts.Close)
	return ts, s
}

func TestIngest(t *testing.T) {
	ts, s := newServer(t, "")
	var lines []string
	for i := range 5 {
		lines = append(lines, itemJSON(fmt.Sprintf("scene-%d", i), i+1))
	}
	collFile := writeTemp(t, "collection.json", collectionJSON)
	itemsFile := writeTemp(t, "items.ndjson", strings.Join(lines, "\n")+"\n")

	in := &ingester{api: ts.URL, concurrency: 3, client: ts.Client()}
	n, err := in.run(context.Background(), collFile, itemsFile)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	it, err := s.GetItem(context.Background(), "landsat", "scene-3")
	require.NoError(t, err)
	assert.Equal(t, "landsat", it.Collection)

	// The collection exists now; posting items again conflicts.
	n, err = in.run(context.Background(), collFile, itemsFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Less(t, n, 5)

	// Upsert replaces instead.
	in.upsert = true
	n, err = in.run(context.Background(), collFile, itemsFile)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestIngestFeatureCollection(t *testing.T) {
	ts, s := newServer(t, "")
	fc := `{"type":"FeatureCollection","features":[` + itemJSON("a", 1) + "," + itemJSON("b", 2) + `]}`

	in := &ingester{api: ts.URL, concurrency: 1, client: ts.Client()}
	n, err := in.run(context.Background(), writeTemp(t, "c.json", collectionJSON), writeTemp(t, "fc.json", fc))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.GetItem(context.Background(), "landsat", "b")
	require.NoError(t, err)
}

func TestIngestAuth(t *testing.T) {
	ts, _ := newServer(t, "secret")
	collFile := writeTemp(t, "collection.json", collectionJSON)

	in := &ingester{api: ts.URL, concurrency: 1, client: ts.Client()}
	_, err := in.run(context.Background(), collFile, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "ingest"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	in.token = token
	_, err = in.run(context.Background(), collFile, "")
	require.NoError(t, err)
}

func TestIngestInvalidItem(t *testing.T) {
	ts, _ := newServer(t, "")
	in := &ingester{api: ts.URL, concurrency: 2, client: ts.Client()}
	items := writeTemp(t, "items.ndjson", `{"type":"Feature","id":"x"}`+"\n")

	_, err := in.run(context.Background(), writeTemp(t, "c.json", collectionJSON), items)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestReadItems(t *testing.T) {
	items, err := readItems(writeTemp(t, "one.json", "{\n  \"type\": \"Feature\",\n  \"id\": \"x\"\n}\n"))
	require.NoError(t, err)
	assert.Len(t, items, 1)

	items, err = readItems(writeTemp(t, "lines.ndjson", "{\"id\":\"a\"}\n\n{\"id\":\"b\"}\n"))
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = readItems(writeTemp(t, "empty.ndjson", "  \n"))
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = readItems(writeTemp(t, "bad.ndjson", "{\"id\":\"a\"}\n{oops\n"))
	assert.ErrorContains(t, err, ":2:")
}

func TestValidateFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		bad     int
		output  string
	}{
		{"item", itemJSON("a", 1), 0, "ok"},
		{"collection", collectionJSON, 0, "ok"},
		{"feature collection", `{"type":"FeatureCollection","features":[` + itemJSON("a", 1) + `,{"type":"Feature"},7]}`, 2, "[2]: not an object"},
		{"invalid item", `{"type":"Feature","id":"x"}`, 1, "failed validation"},
		{"not json", `{`, 1, "invalid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			bad := validateFile(&out, writeTemp(t, "doc.json", tt.content))
			assert.Equal(t, tt.bad, bad)
			assert.Contains(t, out.String(), tt.output)
		})
	}

	var out bytes.Buffer
	assert.Equal(t, 1, validateFile(&out, filepath.Join(t.TempDir(), "missing.json")))
}

func TestHandlerOptions(t *testing.T) {
	cfg := &config.Config{
		Title:          "Test",
		Extensions:     []string{"fields"},
		DefaultLimit:   5,
		MaxLimit:       50,
		ItemSchemaFile: writeTemp(t, "schema.json", `{"type":"object","required":["properties"]}`),
	}
	opts, err := handlerOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, "Test", opts.Title)
	assert.Equal(t, 5, opts.DefaultLimit)
	assert.NotEmpty(t, opts.Queryables)
	require.NotNil(t, opts.ItemSchema)
	assert.Error(t, opts.ItemSchema.Validate(map[string]any{"id": "x"}))

	cfg.QueryablesFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = handlerOptions(cfg)
	assert.Error(t, err)
}

func TestSendErrorDetail(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"detail": "bad things"})
	}))
	defer ts.Close()

	in := &ingester{client: ts.Client()}
	status, err := in.send(context.Background(), http.MethodPost, ts.URL, []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.ErrorContains(t, err, "400 bad things")
}
