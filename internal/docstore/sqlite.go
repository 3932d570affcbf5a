package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the concrete backing document store, generalizing
// linear-fuse's internal/db.Store: one JSON-document table per collection,
// queried through modernc.org/sqlite's json1 extension for indexes and
// decoded in Go for predicate evaluation (see eval.go).
type SQLiteStore struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at path, matching linear-fuse's
// internal/db.Open: WAL mode, foreign keys on, parent directory created.
func Open(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create db directory: %w", err)
			}
		}
	}
	escaped := strings.ReplaceAll(path, " ", "%20")
	db, err := sql.Open("sqlite", "file:"+escaped+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; SQLite serializes anyway
	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	for _, coll := range []string{
		CollUsers, CollSessions, CollSpaces, CollNotes, CollComments, CollCounters,
		CollPendingAttachments, CollAttachments, CollTelegramTasks, CollTelegramMirrors,
	} {
		stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY AUTOINCREMENT, data TEXT NOT NULL)`, table(coll))
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create table %s: %w", coll, err)
		}
	}
	return nil
}

func table(collection string) string { return "docs_" + collection }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) EnsureIndex(ctx context.Context, collection string, idx Index) error {
	var exprs []string
	for _, f := range idx.Fields {
		exprs = append(exprs, fmt.Sprintf("json_extract(data, '$.%s')", f))
	}
	name := fmt.Sprintf("idx_%s_%s", collection, strings.Join(idx.Fields, "_"))
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	stmt := fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s(%s)", unique, name, table(collection), strings.Join(exprs, ", "))
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *SQLiteStore) InsertOne(ctx context.Context, collection string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (data) VALUES (?)", table(collection)), string(data))
	return err
}

// loadAll decodes every row in collection into generic maps, tagged with
// their SQLite rowid for later update/delete.
func (s *SQLiteStore) loadAll(ctx context.Context, tx *sql.Tx, collection string) ([]rowDoc, error) {
	q := fmt.Sprintf("SELECT id, data FROM %s", table(collection))
	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.QueryContext(ctx, q)
	} else {
		rows, err = s.db.QueryContext(ctx, q)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rowDoc
	for rows.Next() {
		var id int64
		var raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("unmarshal document %d: %w", id, err)
		}
		out = append(out, rowDoc{id: id, doc: m})
	}
	return out, rows.Err()
}

type rowDoc struct {
	id  int64
	doc map[string]any
}

func matching(rows []rowDoc, pred Predicate) []rowDoc {
	if pred == nil {
		pred = All()
	}
	var out []rowDoc
	for _, r := range rows {
		if Eval(pred, r.doc) {
			out = append(out, r)
		}
	}
	return out
}

func applySort(rows []rowDoc, sorts []SortField) {
	if len(sorts) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, sf := range sorts {
			a := fieldValue(rows[i].doc, sf.Field)
			b := fieldValue(rows[j].doc, sf.Field)
			c := compareAny(a, b)
			if c == 0 {
				continue
			}
			if sf.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func (s *SQLiteStore) Find(ctx context.Context, collection string, q Query, dest any) (int, error) {
	rows, err := s.loadAll(ctx, nil, collection)
	if err != nil {
		return 0, err
	}
	matched := matching(rows, q.Filter)
	total := len(matched)
	applySort(matched, q.Sort)

	skip := q.Skip
	if skip > len(matched) {
		skip = len(matched)
	}
	page := matched[skip:]
	if q.Limit > 0 && q.Limit < len(page) {
		page = page[:q.Limit]
	}

	docs := make([]json.RawMessage, 0, len(page))
	for _, r := range page {
		raw, err := json.Marshal(r.doc)
		if err != nil {
			return 0, err
		}
		docs = append(docs, raw)
	}
	arr, err := json.Marshal(docs)
	if err != nil {
		return 0, err
	}
	return total, json.Unmarshal(arr, dest)
}

func (s *SQLiteStore) FindOne(ctx context.Context, collection string, q Query, dest any) (bool, error) {
	q.Limit = 1
	var sliceDest []json.RawMessage
	total, err := s.findOneRaw(ctx, collection, q, &sliceDest)
	if err != nil {
		return false, err
	}
	if total == 0 || len(sliceDest) == 0 {
		return false, nil
	}
	return true, json.Unmarshal(sliceDest[0], dest)
}

func (s *SQLiteStore) findOneRaw(ctx context.Context, collection string, q Query, dest *[]json.RawMessage) (int, error) {
	rows, err := s.loadAll(ctx, nil, collection)
	if err != nil {
		return 0, err
	}
	matched := matching(rows, q.Filter)
	applySort(matched, q.Sort)
	if len(matched) == 0 {
		return 0, nil
	}
	raw, err := json.Marshal(matched[0].doc)
	if err != nil {
		return 0, err
	}
	*dest = []json.RawMessage{raw}
	return 1, nil
}

func (s *SQLiteStore) Count(ctx context.Context, collection string, filter Predicate) (int, error) {
	rows, err := s.loadAll(ctx, nil, collection)
	if err != nil {
		return 0, err
	}
	return len(matching(rows, filter)), nil
}

func (s *SQLiteStore) UpdateOne(ctx context.Context, collection string, filter Predicate, plan *UpdatePlan) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	rows, err := s.loadAll(ctx, tx, collection)
	if err != nil {
		return false, err
	}
	matched := matching(rows, filter)
	if len(matched) == 0 {
		return false, nil
	}
	target := matched[0]
	applyPlan(target.doc, plan)
	raw, err := json.Marshal(target.doc)
	if err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET data = ? WHERE id = ?", table(collection)), string(raw), target.id); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *SQLiteStore) DeleteOne(ctx context.Context, collection string, filter Predicate) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	rows, err := s.loadAll(ctx, tx, collection)
	if err != nil {
		return false, err
	}
	matched := matching(rows, filter)
	if len(matched) == 0 {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table(collection)), matched[0].id); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *SQLiteStore) DeleteMany(ctx context.Context, collection string, filter Predicate) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := s.loadAll(ctx, tx, collection)
	if err != nil {
		return 0, err
	}
	matched := matching(rows, filter)
	for _, r := range matched {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table(collection)), r.id); err != nil {
			return 0, err
		}
	}
	return len(matched), tx.Commit()
}

func (s *SQLiteStore) FindOneAndUpdate(ctx context.Context, collection string, filter Predicate, plan *UpdatePlan, upsert bool, upsertDoc any, dest any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := s.loadAll(ctx, tx, collection)
	if err != nil {
		return err
	}
	matched := matching(rows, filter)

	var target rowDoc
	var inserted bool
	if len(matched) == 0 {
		if !upsert {
			return fmt.Errorf("docstore: no document matched and upsert=false")
		}
		raw, err := json.Marshal(upsertDoc)
		if err != nil {
			return err
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (data) VALUES (?)", table(collection)), string(raw))
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		target = rowDoc{id: id, doc: m}
		inserted = true
	} else {
		target = matched[0]
	}

	// upsertDoc already encodes the desired post-insert state; applying plan
	// on top as well would double-apply operators like Incr.
	if plan != nil && !inserted {
		applyPlan(target.doc, plan)
	}
	raw, err := json.Marshal(target.doc)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET data = ? WHERE id = ?", table(collection)), string(raw), target.id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
