package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/stevemurr/stac-server/geo"
	"github.com/stevemurr/stac-server/stac"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// sqlTimeLayout is fixed width so that stored timestamps order correctly
// as text.
const sqlTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SqliteStore stores the catalog in a single SQLite database.
//
// Tables:
//
//	collections(id, data)                     PRIMARY KEY (id)
//	items(collection, id, datetime, end_datetime,
//	      minx, miny, maxx, maxy, data)      PRIMARY KEY (collection, id)
//
// The datetime and bounds columns are extracted from the item document so
// that temporal and spatial filters run in SQL; attribute filters use
// json_extract over data.
type SqliteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

// NewSqliteStore opens (or creates) the database at dbPath with the named
// database/sql driver. An empty driver selects "sqlite3".
func NewSqliteStore(dbPath, driver string) (*SqliteStore, error) {
	if driver == "" {
		driver = "sqlite3"
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SqliteStore) CreateCollection(ctx context.Context, c *stac.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	found, err := s.collectionExists(ctx, s.db, c.ID)
	if err != nil {
		return err
	}
	if found {
		return ErrConflict
	}
	_, err = s.db.ExecContext(ctx, "INSERT INTO collections (id, data) VALUES (?, ?)", c.ID, string(b))
	return err
}

func (s *SqliteStore) UpdateCollection(ctx context.Context, c *stac.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO collections (id, data) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		c.ID, string(b),
	)
	return err
}

func (s *SqliteStore) GetCollection(ctx context.Context, id string) (*stac.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM collections WHERE id = ?", id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var c stac.Collection
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SqliteStore) ListCollections(ctx context.Context) ([]*stac.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM collections ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*stac.Collection
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var c stac.Collection
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *SqliteStore) DeleteCollection(ctx context.Context, id string) (*stac.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, "SELECT data FROM collections WHERE id = ?", id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM items WHERE collection = ?", id); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM collections WHERE id = ?", id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	var c stac.Collection
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SqliteStore) collectionExists(ctx context.Context, q queryer, id string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM collections WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// itemRow holds the columns extracted from an item.
type itemRow struct {
	start, end             string
	minx, miny, maxx, maxy float64
	data                   string
}

func toItemRow(it *stac.Item) (*itemRow, error) {
	start, err := it.Datetime()
	if err != nil {
		return nil, err
	}
	end, err := it.EndDatetime()
	if err != nil {
		return nil, err
	}
	bbox := it.BBox
	if len(bbox) == 0 {
		g, err := geo.ParseGeometry(it.Geometry)
		if err != nil {
			return nil, err
		}
		bbox = geo.BBox(g)
	}
	b, err := geo.BoundFromBBox(bbox)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(it)
	if err != nil {
		return nil, err
	}
	return &itemRow{
		start: start.UTC().Format(sqlTimeLayout),
		end:   end.UTC().Format(sqlTimeLayout),
		minx:  b.Min[0], miny: b.Min[1], maxx: b.Max[0], maxy: b.Max[1],
		data: string(data),
	}, nil
}

func (s *SqliteStore) CreateItem(ctx context.Context, it *stac.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := toItemRow(it)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	found, err := s.collectionExists(ctx, tx, it.Collection)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	var one int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM items WHERE collection = ? AND id = ?", it.Collection, it.ID).Scan(&one)
	if err == nil {
		return ErrConflict
	}
	if err != sql.ErrNoRows {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO items (collection, id, datetime, end_datetime, minx, miny, maxx, maxy, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.Collection, it.ID, row.start, row.end, row.minx, row.miny, row.maxx, row.maxy, row.data,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SqliteStore) UpdateItem(ctx context.Context, it *stac.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := toItemRow(it)
	if err != nil {
		return err
	}
	found, err := s.collectionExists(ctx, s.db, it.Collection)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO items (collection, id, datetime, end_datetime, minx, miny, maxx, maxy, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(collection, id) DO UPDATE SET
		   datetime = excluded.datetime, end_datetime = excluded.end_datetime,
		   minx = excluded.minx, miny = excluded.miny, maxx = excluded.maxx, maxy = excluded.maxy,
		   data = excluded.data`,
		it.Collection, it.ID, row.start, row.end, row.minx, row.miny, row.maxx, row.maxy, row.data,
	)
	return err
}

func (s *SqliteStore) GetItem(ctx context.Context, collection, id string) (*stac.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM items WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var it stac.Item
	if err := json.Unmarshal([]byte(raw), &it); err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *SqliteStore) DeleteItem(ctx context.Context, collection, id string) (*stac.Item, error) {
	it, err := s.GetItem(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM items WHERE collection = ? AND id = ?",
		collection, id,
	)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return it, nil
}

func (s *SqliteStore) Search(ctx context.Context, q *stac.Search) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	where, args := sqlWhere(q)
	order, orderArgs := sqlOrder(q.Sort)

	if q.HasSpatial() {
		// Bounds only prefilter; exact intersection and paging happen here.
		query := "SELECT data FROM items" + where + order
		items, err := s.queryItems(ctx, query, append(args, orderArgs...)...)
		if err != nil {
			return nil, err
		}
		var matched []*stac.Item
		for _, it := range items {
			g, err := geo.ParseGeometry(it.Geometry)
			if err == nil && geo.Intersects(q.Geometry, g) {
				matched = append(matched, it)
			}
		}
		return &Result{Items: stac.Page(matched, q.Offset, q.Limit), Matched: len(matched)}, nil
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items"+where, args...).Scan(&count); err != nil {
		return nil, err
	}
	query := "SELECT data FROM items" + where + order + " LIMIT ? OFFSET ?"
	pageArgs := append(append(append([]any{}, args...), orderArgs...), q.Limit, q.Offset)
	items, err := s.queryItems(ctx, query, pageArgs...)
	if err != nil {
		return nil, err
	}
	return &Result{Items: items, Matched: count}, nil
}

func (s *SqliteStore) queryItems(ctx context.Context, query string, args ...any) ([]*stac.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*stac.Item
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var it stac.Item
		if err := json.Unmarshal([]byte(raw), &it); err != nil {
			return nil, err
		}
		out = append(out, &it)
	}
	return out, rows.Err()
}

// sqlWhere translates the filters of a search into a WHERE clause.
func sqlWhere(q *stac.Search) (string, []any) {
	var (
		conds []string
		args  []any
	)
	in := func(col string, values []string) {
		conds = append(conds, col+" IN ("+placeholders(len(values))+")")
		for _, v := range values {
			args = append(args, v)
		}
	}
	if len(q.Collections) > 0 {
		in("collection", q.Collections)
	}
	if len(q.IDs) > 0 {
		in("id", q.IDs)
	}
	if q.End != nil {
		conds = append(conds, "datetime <= ?")
		args = append(args, q.End.UTC().Format(sqlTimeLayout))
	}
	if q.Start != nil {
		conds = append(conds, "end_datetime >= ?")
		args = append(args, q.Start.UTC().Format(sqlTimeLayout))
	}
	if q.Bounds != nil {
		conds = append(conds, "maxx >= ? AND minx <= ? AND maxy >= ? AND miny <= ?")
		args = append(args, q.Bounds.Min[0], q.Bounds.Max[0], q.Bounds.Min[1], q.Bounds.Max[1])
	}
	for _, f := range q.Filters {
		expr, arg := sqlFilter(f)
		conds = append(conds, expr)
		args = append(args, jsonPath(f.Field), arg)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var sqlOperators = map[stac.Operator]string{
	stac.OpEq: "=",
	stac.OpNe: "!=",
	stac.OpLt: "<",
	stac.OpLe: "<=",
	stac.OpGt: ">",
	stac.OpGe: ">=",
}

// sqlFilter returns the condition for one attribute filter. The first
// placeholder is the JSON path, the second the value.
func sqlFilter(f stac.Filter) (string, any) {
	op := sqlOperators[f.Op]
	switch f.Type {
	case stac.TypeNumber, stac.TypeInteger:
		return "CAST(json_extract(data, ?) AS REAL) " + op + " ?", f.Value
	case stac.TypeBoolean:
		v := 0
		if b, _ := f.Value.(bool); b {
			v = 1
		}
		return "json_extract(data, ?) " + op + " ?", v
	default:
		return "json_extract(data, ?) " + op + " ?", f.Value
	}
}

// sqlOrder translates sort keys into an ORDER BY clause. Missing values
// sort last in either direction.
func sqlOrder(keys []stac.SortKey) (string, []any) {
	if len(keys) == 0 {
		keys = stac.DefaultSort
	}
	var (
		parts []string
		args  []any
	)
	for _, k := range keys {
		dir := "ASC"
		if k.Direction == stac.Desc {
			dir = "DESC"
		}
		switch k.Field {
		case "id", "collection":
			parts = append(parts, k.Field+" "+dir)
		case "properties.datetime":
			parts = append(parts, "datetime "+dir)
		default:
			parts = append(parts, "json_extract(data, ?) "+dir+" NULLS LAST")
			args = append(args, jsonPath(k.Field))
		}
	}
	return " ORDER BY " + strings.Join(parts, ", "), args
}

// jsonPath converts a record path to a SQLite JSON path. Property names
// are quoted because they commonly contain ':'.
func jsonPath(field string) string {
	if name, ok := strings.CutPrefix(field, "properties."); ok {
		return `$.properties."` + name + `"`
	}
	return "$." + field
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
