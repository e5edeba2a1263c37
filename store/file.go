package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/stevemurr/stac-server/stac"
)

// FileStore keeps the catalog as a static STAC directory tree on disk.
//
// Layout:
//
//	data_dir/
//	  joplin/
//	    collection.json   # the "joplin" collection
//	    items/
//	      scene-1.json    # item "scene-1" of "joplin"
//
// Directory and file names are path-escaped ids. Search loads every item
// and evaluates the query in process.
type FileStore struct {
	mu  sync.RWMutex
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) collectionDir(id string) string {
	return filepath.Join(s.dir, url.PathEscape(id))
}

func (s *FileStore) collectionPath(id string) string {
	return filepath.Join(s.collectionDir(id), "collection.json")
}

func (s *FileStore) itemPath(collection, id string) string {
	return filepath.Join(s.collectionDir(collection), "items", url.PathEscape(id)+".json")
}

func (s *FileStore) loadFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return json.Unmarshal(data, v)
}

// saveFile writes through a temporary file so readers never see a partial
// document.
func (s *FileStore) saveFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (s *FileStore) CreateCollection(_ context.Context, c *stac.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.collectionPath(c.ID)
	if exists(path) {
		return ErrConflict
	}
	return s.saveFile(path, c)
}

func (s *FileStore) UpdateCollection(_ context.Context, c *stac.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveFile(s.collectionPath(c.ID), c)
}

func (s *FileStore) GetCollection(_ context.Context, id string) (*stac.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var c stac.Collection
	if err := s.loadFile(s.collectionPath(id), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *FileStore) ListCollections(_ context.Context) ([]*stac.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []*stac.Collection
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		var c stac.Collection
		err := s.loadFile(filepath.Join(s.dir, e.Name(), "collection.json"), &c)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *FileStore) DeleteCollection(_ context.Context, id string) (*stac.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c stac.Collection
	if err := s.loadFile(s.collectionPath(id), &c); err != nil {
		return nil, err
	}
	if err := os.RemoveAll(s.collectionDir(id)); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *FileStore) CreateItem(_ context.Context, it *stac.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !exists(s.collectionPath(it.Collection)) {
		return ErrNotFound
	}
	path := s.itemPath(it.Collection, it.ID)
	if exists(path) {
		return ErrConflict
	}
	return s.saveFile(path, it)
}

func (s *FileStore) UpdateItem(_ context.Context, it *stac.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !exists(s.collectionPath(it.Collection)) {
		return ErrNotFound
	}
	return s.saveFile(s.itemPath(it.Collection, it.ID), it)
}

func (s *FileStore) GetItem(_ context.Context, collection, id string) (*stac.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var it stac.Item
	if err := s.loadFile(s.itemPath(collection, id), &it); err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *FileStore) DeleteItem(_ context.Context, collection, id string) (*stac.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.itemPath(collection, id)
	var it stac.Item
	if err := s.loadFile(path, &it); err != nil {
		return nil, err
	}
	if err := os.Remove(path); err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *FileStore) Search(ctx context.Context, q *stac.Search) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	collections := q.Collections
	if len(collections) == 0 {
		entries, err := os.ReadDir(s.dir)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		for _, e := range entries {
			if name, err := url.PathUnescape(e.Name()); err == nil && e.IsDir() {
				collections = append(collections, name)
			}
		}
	}
	var all []*stac.Item
	for _, coll := range collections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := filepath.Join(s.collectionDir(coll), "items")
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			var it stac.Item
			if err := s.loadFile(filepath.Join(dir, e.Name()), &it); err != nil {
				return nil, err
			}
			all = append(all, &it)
		}
	}
	return searchInProcess(all, q), nil
}

func (s *FileStore) Ping(context.Context) error {
	_, err := os.Stat(s.dir)
	return err
}

func (s *FileStore) Close() error { return nil }
