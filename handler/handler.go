// Package handler provides the HTTP handlers for the STAC API.
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"slices"
	"strings"

	"github.com/stevemurr/stac-server/schema"
	"github.com/stevemurr/stac-server/stac"
	"github.com/stevemurr/stac-server/store"
)

// Options configures the API surface.
type Options struct {
	Title       string
	Description string

	// Extensions lists the enabled API extensions: context, fields, query,
	// sort and transaction.
	Extensions []string

	DefaultIncludes []string
	DefaultLimit    int
	MaxLimit        int
	Queryables      stac.Queryables

	// ItemSchema is an extra compiled JSON Schema every written item must
	// satisfy. Nil accepts every item.
	ItemSchema *schema.Schema

	// JWTSecret enables bearer token auth on transaction routes.
	JWTSecret string

	AllowedOrigins []string
}

// Handler holds the server dependencies and registers routes.
type Handler struct {
	store store.Store
	opts  Options
	mux   *http.ServeMux
	next  http.Handler
}

// New creates a Handler and wires up all routes.
func New(s store.Store, opts Options) *Handler {
	if opts.Queryables == nil {
		opts.Queryables = stac.DefaultQueryables()
	}
	if opts.Title == "" {
		opts.Title = "STAC API"
	}
	if opts.Description == "" {
		opts.Description = "A STAC API backed by " + storeName(s)
	}
	h := &Handler{store: s, opts: opts, mux: http.NewServeMux()}
	h.routes()
	h.next = chain(h.mux,
		withCORS(opts.AllowedOrigins),
		withRequestID,
		withAccessLog,
		withTracing,
	)
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.next.ServeHTTP(w, r)
}

func (h *Handler) enabled(ext string) bool {
	return slices.Contains(h.opts.Extensions, ext)
}

func (h *Handler) routes() {
	// Status
	h.mux.HandleFunc("GET /{$}", h.landingPage)
	h.mux.HandleFunc("GET /conformance", h.conformance)
	h.mux.HandleFunc("GET /_mgmt/ping", h.ping)
	h.mux.HandleFunc("GET /health", h.health)

	// Read
	h.mux.HandleFunc("GET /collections", h.listCollections)
	h.mux.HandleFunc("GET /collections/{collectionId}", h.getCollection)
	h.mux.HandleFunc("GET /collections/{collectionId}/items", h.listItems)
	h.mux.HandleFunc("GET /collections/{collectionId}/items/{itemId}", h.getItem)
	h.mux.HandleFunc("GET /search", h.searchGet)
	h.mux.HandleFunc("POST /search", h.searchPost)
	h.mux.HandleFunc("GET /queryables", h.queryables)
	h.mux.HandleFunc("POST /validate", h.validate)

	if !h.enabled(stac.ExtTransaction) {
		return
	}
	auth := h.requireAuth
	h.mux.Handle("POST /collections", auth(h.createCollection))
	h.mux.Handle("PUT /collections", auth(h.updateCollection))
	h.mux.Handle("PUT /collections/{collectionId}", auth(h.updateCollection))
	h.mux.Handle("DELETE /collections/{collectionId}", auth(h.deleteCollection))
	h.mux.Handle("POST /collections/{collectionId}/items", auth(h.createItems))
	h.mux.Handle("PUT /collections/{collectionId}/items", auth(h.updateItem))
	h.mux.Handle("PUT /collections/{collectionId}/items/{itemId}", auth(h.updateItem))
	h.mux.Handle("DELETE /collections/{collectionId}/items/{itemId}", auth(h.deleteItem))
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, status int, v any) {
	writeTyped(w, status, stac.MediaJSON, v)
}

func writeGeoJSON(w http.ResponseWriter, status int, v any) {
	writeTyped(w, status, stac.MediaGeoJSON, v)
}

func writeTyped(w http.ResponseWriter, status int, contentType string, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// writeErr maps an error from the stac, schema or store packages to a
// status code.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var (
		pe *stac.ParamError
		ve *schema.ValidationError
	)
	switch {
	case errors.As(err, &pe):
		writeError(w, http.StatusBadRequest, pe.Error())
	case errors.As(err, &ve):
		writeError(w, http.StatusUnprocessableEntity, ve.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "already exists")
	default:
		log.Printf("request %s: %s %s: %v", requestID(r.Context()), r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &stac.ParamError{Param: "body", Msg: "invalid JSON: " + err.Error()}
	}
	return nil
}

// readDocument decodes a request body into a generic JSON object.
func readDocument(r *http.Request) (map[string]any, error) {
	defer r.Body.Close()
	var doc map[string]any
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		return nil, &stac.ParamError{Param: "body", Msg: "invalid JSON: " + err.Error()}
	}
	if doc == nil {
		return nil, &stac.ParamError{Param: "body", Msg: "expected a JSON object"}
	}
	return doc, nil
}

// convert re-decodes a generic JSON object into a typed record.
func convert(doc map[string]any, v any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return &stac.ParamError{Param: "body", Msg: err.Error()}
	}
	return nil
}

// baseURL is the externally visible root of the API, honoring reverse
// proxy headers.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = strings.TrimSpace(strings.Split(p, ",")[0])
	}
	host := r.Host
	if fh := r.Header.Get("X-Forwarded-Host"); fh != "" {
		host = strings.TrimSpace(strings.Split(fh, ",")[0])
	}
	return scheme + "://" + host
}

func storeName(s store.Store) string {
	switch s.(type) {
	case *store.ElasticsearchStore:
		return "Elasticsearch"
	case *store.SqliteStore:
		return "SQLite"
	case *store.FileStore:
		return "a static catalog directory"
	default:
		return "memory"
	}
}
