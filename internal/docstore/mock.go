package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Mock implements Store entirely in memory, generalizing linear-fuse's
// internal/repo.MockRepository pattern (plain Go maps, no network/disk) to
// docstore's generic collection/document shape. Components depend on the
// Store interface, not Mock, but tests construct a Mock directly and may
// read a collection back through Collection for assertions.
type Mock struct {
	mu      sync.Mutex
	nextID  int64
	data    map[string]map[int64]map[string]any
	indexes map[string][]Index
}

func NewMock() *Mock {
	return &Mock{data: make(map[string]map[int64]map[string]any), indexes: make(map[string][]Index)}
}

func (m *Mock) coll(collection string) map[int64]map[string]any {
	c, ok := m.data[collection]
	if !ok {
		c = make(map[int64]map[string]any)
		m.data[collection] = c
	}
	return c
}

// Collection returns every document currently stored under collection,
// decoded into dest (a pointer to a slice), for test assertions.
func (m *Mock) Collection(collection string, dest any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []rowDoc
	for id, doc := range m.coll(collection) {
		rows = append(rows, rowDoc{id: id, doc: doc})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })
	docs := make([]json.RawMessage, 0, len(rows))
	for _, r := range rows {
		raw, err := json.Marshal(r.doc)
		if err != nil {
			return err
		}
		docs = append(docs, raw)
	}
	arr, err := json.Marshal(docs)
	if err != nil {
		return err
	}
	return json.Unmarshal(arr, dest)
}

func (m *Mock) EnsureIndex(ctx context.Context, collection string, idx Index) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexes[collection] = append(m.indexes[collection], idx)
	return nil
}

func toDoc(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mock) checkUnique(collection string, doc map[string]any, skipID int64) error {
	for _, idx := range m.indexes[collection] {
		if !idx.Unique {
			continue
		}
		for id, existing := range m.coll(collection) {
			if id == skipID {
				continue
			}
			same := true
			for _, f := range idx.Fields {
				if compareAny(fieldValue(existing, f), fieldValue(doc, f)) != 0 {
					same = false
					break
				}
			}
			if same {
				return fmt.Errorf("docstore: unique index violation on %s(%v)", collection, idx.Fields)
			}
		}
	}
	return nil
}

func (m *Mock) InsertOne(ctx context.Context, collection string, doc any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := toDoc(doc)
	if err != nil {
		return err
	}
	if err := m.checkUnique(collection, d, -1); err != nil {
		return err
	}
	m.nextID++
	m.coll(collection)[m.nextID] = d
	return nil
}

func (m *Mock) rows(collection string) []rowDoc {
	var out []rowDoc
	for id, doc := range m.coll(collection) {
		out = append(out, rowDoc{id: id, doc: doc})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func decodeInto(rows []rowDoc, dest any) error {
	docs := make([]json.RawMessage, 0, len(rows))
	for _, r := range rows {
		raw, err := json.Marshal(r.doc)
		if err != nil {
			return err
		}
		docs = append(docs, raw)
	}
	arr, err := json.Marshal(docs)
	if err != nil {
		return err
	}
	return json.Unmarshal(arr, dest)
}

func (m *Mock) Find(ctx context.Context, collection string, q Query, dest any) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := matching(m.rows(collection), q.Filter)
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
	return total, decodeInto(page, dest)
}

func (m *Mock) FindOne(ctx context.Context, collection string, q Query, dest any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := matching(m.rows(collection), q.Filter)
	applySort(matched, q.Sort)
	if len(matched) == 0 {
		return false, nil
	}
	return true, decodeInto(matched[:1], dest)
}

func (m *Mock) Count(ctx context.Context, collection string, filter Predicate) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(matching(m.rows(collection), filter)), nil
}

func (m *Mock) UpdateOne(ctx context.Context, collection string, filter Predicate, plan *UpdatePlan) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := matching(m.rows(collection), filter)
	if len(matched) == 0 {
		return false, nil
	}
	target := matched[0]
	applyPlan(target.doc, plan)
	normalized, err := toDoc(target.doc)
	if err != nil {
		return false, err
	}
	target.doc = normalized
	if err := m.checkUnique(collection, target.doc, target.id); err != nil {
		return false, err
	}
	m.coll(collection)[target.id] = target.doc
	return true, nil
}

func (m *Mock) DeleteOne(ctx context.Context, collection string, filter Predicate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := matching(m.rows(collection), filter)
	if len(matched) == 0 {
		return false, nil
	}
	delete(m.coll(collection), matched[0].id)
	return true, nil
}

func (m *Mock) DeleteMany(ctx context.Context, collection string, filter Predicate) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := matching(m.rows(collection), filter)
	for _, r := range matched {
		delete(m.coll(collection), r.id)
	}
	return len(matched), nil
}

func (m *Mock) FindOneAndUpdate(ctx context.Context, collection string, filter Predicate, plan *UpdatePlan, upsert bool, upsertDoc any, dest any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := matching(m.rows(collection), filter)

	var target rowDoc
	var inserted bool
	if len(matched) == 0 {
		if !upsert {
			return fmt.Errorf("docstore: no document matched and upsert=false")
		}
		d, err := toDoc(upsertDoc)
		if err != nil {
			return err
		}
		m.nextID++
		target = rowDoc{id: m.nextID, doc: d}
		inserted = true
	} else {
		target = matched[0]
	}

	// upsertDoc already encodes the desired post-insert state; applying plan
	// on top as well would double-apply operators like Incr.
	if plan != nil && !inserted {
		applyPlan(target.doc, plan)
		normalized, err := toDoc(target.doc)
		if err != nil {
			return err
		}
		target.doc = normalized
	}
	if err := m.checkUnique(collection, target.doc, target.id); err != nil {
		return err
	}
	m.coll(collection)[target.id] = target.doc
	return decodeInto([]rowDoc{target}, dest)
}

func (m *Mock) Close() error { return nil }
