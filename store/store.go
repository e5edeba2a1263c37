// Package store defines the catalog storage interface and its backends.
package store

import (
	"context"
	"errors"

	"github.com/stevemurr/stac-server/stac"
)

var (
	// ErrNotFound is returned when a collection or item does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when creating a record whose id is taken.
	ErrConflict = errors.New("already exists")
)

// Result is one page of a search.
type Result struct {
	Items []*stac.Item
	// Matched is the number of items matching the search before paging.
	Matched int
}

// Store is the interface that all catalog backends must implement.
// Collections and items are addressed by id; item ids are unique within
// their collection.
type Store interface {
	// CreateCollection inserts a collection. Returns ErrConflict if the id exists.
	CreateCollection(ctx context.Context, c *stac.Collection) error

	// UpdateCollection inserts or replaces a collection.
	UpdateCollection(ctx context.Context, c *stac.Collection) error

	// GetCollection returns a collection or ErrNotFound.
	GetCollection(ctx context.Context, id string) (*stac.Collection, error)

	// ListCollections returns every collection ordered by id.
	ListCollections(ctx context.Context) ([]*stac.Collection, error)

	// DeleteCollection removes a collection and its items and returns the
	// removed collection.
	DeleteCollection(ctx context.Context, id string) (*stac.Collection, error)

	// CreateItem inserts an item into its collection. Returns ErrNotFound if
	// the collection does not exist and ErrConflict if the item does.
	CreateItem(ctx context.Context, it *stac.Item) error

	// UpdateItem inserts or replaces an item.
	UpdateItem(ctx context.Context, it *stac.Item) error

	// GetItem returns an item or ErrNotFound.
	GetItem(ctx context.Context, collection, id string) (*stac.Item, error)

	// DeleteItem removes an item and returns it.
	DeleteItem(ctx context.Context, collection, id string) (*stac.Item, error)

	// Search returns one page of items matching s, in s.Sort order.
	Search(ctx context.Context, s *stac.Search) (*Result, error)

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// searchInProcess evaluates a search over a full item list. Used by
// backends that keep or load every item.
func searchInProcess(items []*stac.Item, s *stac.Search) *Result {
	var matched []*stac.Item
	for _, it := range items {
		if s.Match(it) {
			matched = append(matched, it)
		}
	}
	stac.SortItems(matched, s.Sort)
	return &Result{
		Items:   stac.Page(matched, s.Offset, s.Limit),
		Matched: len(matched),
	}
}
