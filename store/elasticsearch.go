package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/stevemurr/stac-server/stac"
)

// ElasticsearchOptions configures the Elasticsearch backend.
type ElasticsearchOptions struct {
	Addresses []string
	APIKey    string
	Username  string
	Password  string

	// IndexPrefix is prepended to the "collections" and "items" index names.
	IndexPrefix string

	// Refresh is the refresh policy for writes: "true", "false" or "wait_for".
	Refresh string

	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// ElasticsearchStore keeps collections and items in two indices. Items are
// indexed under "<item id>|<collection id>" so ids only need to be unique
// within a collection.
type ElasticsearchStore struct {
	es              *elasticsearch.Client
	collectionIndex string
	itemIndex       string
	refresh         string
}

// NewElasticsearchStore connects to the cluster and creates the indices
// when they do not exist yet.
func NewElasticsearchStore(ctx context.Context, opts ElasticsearchOptions) (*ElasticsearchStore, error) {
	if len(opts.Addresses) == 0 {
		return nil, fmt.Errorf("elasticsearch: no addresses configured")
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: opts.Addresses,
		APIKey:    opts.APIKey,
		Username:  opts.Username,
		Password:  opts.Password,
		Transport: opts.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: %w", err)
	}
	prefix := opts.IndexPrefix
	if prefix == "" {
		prefix = "stac_"
	}
	refresh := opts.Refresh
	if refresh == "" {
		refresh = "true"
	}
	s := &ElasticsearchStore{
		es:              es,
		collectionIndex: prefix + "collections",
		itemIndex:       prefix + "items",
		refresh:         refresh,
	}
	if err := s.ensureIndex(ctx, s.collectionIndex, esCollectionMapping); err != nil {
		return nil, err
	}
	if err := s.ensureIndex(ctx, s.itemIndex, esItemMapping); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ElasticsearchStore) ensureIndex(ctx context.Context, name string, mapping map[string]any) error {
	res, err := s.es.Indices.Exists([]string{name}, s.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch: check index %s: %w", name, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}
	body, err := json.Marshal(mapping)
	if err != nil {
		return err
	}
	res, err = s.es.Indices.Create(name,
		s.es.Indices.Create.WithBody(bytes.NewReader(body)),
		s.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch: create index %s: %w", name, err)
	}
	defer res.Body.Close()
	// Another instance may have created it in between.
	if res.IsError() && !strings.Contains(readBody(res), "resource_already_exists_exception") {
		return fmt.Errorf("elasticsearch: create index %s: %s", name, res.Status())
	}
	return nil
}

func itemDocID(collection, id string) string {
	return id + "|" + collection
}

func readBody(res *esapi.Response) string {
	b, _ := io.ReadAll(res.Body)
	return string(b)
}

// check maps an error response to a store error.
func check(res *esapi.Response, op string) error {
	if !res.IsError() {
		return nil
	}
	switch res.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	}
	return fmt.Errorf("elasticsearch: %s: %s: %s", op, res.Status(), readBody(res))
}

func (s *ElasticsearchStore) index(ctx context.Context, index, id string, doc any, create bool) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	opts := []func(*esapi.IndexRequest){
		s.es.Index.WithDocumentID(id),
		s.es.Index.WithRefresh(s.refresh),
		s.es.Index.WithContext(ctx),
	}
	if create {
		opts = append(opts, s.es.Index.WithOpType("create"))
	}
	res, err := s.es.Index(index, bytes.NewReader(body), opts...)
	if err != nil {
		return fmt.Errorf("elasticsearch: index %s: %w", id, err)
	}
	defer res.Body.Close()
	return check(res, "index "+id)
}

func (s *ElasticsearchStore) get(ctx context.Context, index, id string, v any) error {
	res, err := s.es.Get(index, id, s.es.Get.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch: get %s: %w", id, err)
	}
	defer res.Body.Close()
	if err := check(res, "get "+id); err != nil {
		return err
	}
	var doc struct {
		Found  bool            `json:"found"`
		Source json.RawMessage `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return err
	}
	if !doc.Found {
		return ErrNotFound
	}
	return json.Unmarshal(doc.Source, v)
}

func (s *ElasticsearchStore) delete(ctx context.Context, index, id string) error {
	res, err := s.es.Delete(index, id,
		s.es.Delete.WithRefresh(s.refresh),
		s.es.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch: delete %s: %w", id, err)
	}
	defer res.Body.Close()
	return check(res, "delete "+id)
}

type esHits struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (s *ElasticsearchStore) search(ctx context.Context, index string, body map[string]any) (*esHits, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(index),
		s.es.Search.WithBody(bytes.NewReader(b)),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: search: %w", err)
	}
	defer res.Body.Close()
	if err := check(res, "search"); err != nil {
		return nil, err
	}
	var hits esHits
	if err := json.NewDecoder(res.Body).Decode(&hits); err != nil {
		return nil, err
	}
	return &hits, nil
}

func (s *ElasticsearchStore) CreateCollection(ctx context.Context, c *stac.Collection) error {
	return s.index(ctx, s.collectionIndex, c.ID, c, true)
}

func (s *ElasticsearchStore) UpdateCollection(ctx context.Context, c *stac.Collection) error {
	return s.index(ctx, s.collectionIndex, c.ID, c, false)
}

func (s *ElasticsearchStore) GetCollection(ctx context.Context, id string) (*stac.Collection, error) {
	var c stac.Collection
	if err := s.get(ctx, s.collectionIndex, id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *ElasticsearchStore) ListCollections(ctx context.Context) ([]*stac.Collection, error) {
	hits, err := s.search(ctx, s.collectionIndex, map[string]any{
		"query": map[string]any{"match_all": map[string]any{}},
		"sort":  []any{map[string]any{"id": map[string]any{"order": "asc"}}},
		"size":  10000,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*stac.Collection, 0, len(hits.Hits.Hits))
	for _, h := range hits.Hits.Hits {
		var c stac.Collection
		if err := json.Unmarshal(h.Source, &c); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, nil
}

func (s *ElasticsearchStore) DeleteCollection(ctx context.Context, id string) (*stac.Collection, error) {
	c, err := s.GetCollection(ctx, id)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(map[string]any{
		"query": map[string]any{"term": map[string]any{"collection": id}},
	})
	if err != nil {
		return nil, err
	}
	res, err := s.es.DeleteByQuery([]string{s.itemIndex}, bytes.NewReader(body),
		s.es.DeleteByQuery.WithRefresh(s.refresh != "false"),
		s.es.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: delete items of %s: %w", id, err)
	}
	defer res.Body.Close()
	if err := check(res, "delete items of "+id); err != nil {
		return nil, err
	}
	if err := s.delete(ctx, s.collectionIndex, id); err != nil {
		return nil, err
	}
	return c, nil
}

// itemDocument is the indexed form of an item.
func itemDocument(it *stac.Item) (map[string]any, error) {
	start, err := it.Datetime()
	if err != nil {
		return nil, err
	}
	end, err := it.EndDatetime()
	if err != nil {
		return nil, err
	}
	doc := it.Map()
	doc[esStartField] = stac.FormatTime(start)
	doc[esEndField] = stac.FormatTime(end)
	return doc, nil
}

func (s *ElasticsearchStore) putItem(ctx context.Context, it *stac.Item, create bool) error {
	if _, err := s.GetCollection(ctx, it.Collection); err != nil {
		return err
	}
	doc, err := itemDocument(it)
	if err != nil {
		return err
	}
	return s.index(ctx, s.itemIndex, itemDocID(it.Collection, it.ID), doc, create)
}

func (s *ElasticsearchStore) CreateItem(ctx context.Context, it *stac.Item) error {
	return s.putItem(ctx, it, true)
}

func (s *ElasticsearchStore) UpdateItem(ctx context.Context, it *stac.Item) error {
	return s.putItem(ctx, it, false)
}

func (s *ElasticsearchStore) GetItem(ctx context.Context, collection, id string) (*stac.Item, error) {
	var it stac.Item
	if err := s.get(ctx, s.itemIndex, itemDocID(collection, id), &it); err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *ElasticsearchStore) DeleteItem(ctx context.Context, collection, id string) (*stac.Item, error) {
	it, err := s.GetItem(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if err := s.delete(ctx, s.itemIndex, itemDocID(collection, id)); err != nil {
		return nil, err
	}
	return it, nil
}

func (s *ElasticsearchStore) Search(ctx context.Context, q *stac.Search) (*Result, error) {
	body, err := BuildQuery(q)
	if err != nil {
		return nil, err
	}
	hits, err := s.search(ctx, s.itemIndex, body)
	if err != nil {
		return nil, err
	}
	res := &Result{Matched: hits.Hits.Total.Value}
	for _, h := range hits.Hits.Hits {
		var it stac.Item
		if err := json.Unmarshal(h.Source, &it); err != nil {
			return nil, err
		}
		res.Items = append(res.Items, &it)
	}
	return res, nil
}

func (s *ElasticsearchStore) Ping(ctx context.Context) error {
	res, err := s.es.Info(s.es.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch: %s", res.Status())
	}
	return nil
}

func (s *ElasticsearchStore) Close() error { return nil }
