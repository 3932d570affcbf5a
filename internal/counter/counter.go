// Package counter implements C3, the per-space atomic number sequences that
// back note numbers, comment numbers, pending-attachment numbers, attachment
// numbers and messenger task numbers (spec.md §4.3). A sequence starts at 1
// and only moves forward: Next reserves the next integer, and Export's
// restore path (internal/export) may raise a sequence's stored value but
// never lower it.
package counter

import (
	"context"
	"fmt"

	"github.com/spacenote/spacenote/internal/docstore"
	"github.com/spacenote/spacenote/internal/domain"
)

type Counters struct {
	store docstore.Store
}

func New(store docstore.Store) *Counters {
	return &Counters{store: store}
}

func keyFilter(key domain.CounterKey) docstore.Predicate {
	return docstore.And{Preds: []docstore.Predicate{
		docstore.Eq{Field: "space_slug", Value: key.SpaceSlug},
		docstore.Eq{Field: "kind", Value: string(key.Kind)},
		docstore.Eq{Field: "note_number", Value: key.NoteNumber},
	}}
}

type counterDoc struct {
	SpaceSlug  string             `json:"space_slug"`
	Kind       domain.CounterKind `json:"kind"`
	NoteNumber int64              `json:"note_number"`
	Value      int64              `json:"value"`
}

// Next atomically reserves and returns the next integer for key, starting
// the sequence at 1 if it doesn't exist yet.
func (c *Counters) Next(ctx context.Context, key domain.CounterKey) (int64, error) {
	var doc counterDoc
	err := c.store.FindOneAndUpdate(ctx, docstore.CollCounters, keyFilter(key),
		docstore.NewPlan().Incr("value", 1),
		true,
		counterDoc{SpaceSlug: key.SpaceSlug, Kind: key.Kind, NoteNumber: key.NoteNumber, Value: 1},
		&doc)
	if err != nil {
		return 0, fmt.Errorf("counter: next %s/%s/%d: %w", key.SpaceSlug, key.Kind, key.NoteNumber, err)
	}
	return doc.Value, nil
}

// Current returns a sequence's current value without advancing it, 0 if the
// sequence doesn't exist yet.
func (c *Counters) Current(ctx context.Context, key domain.CounterKey) (int64, error) {
	var doc counterDoc
	ok, err := c.store.FindOne(ctx, docstore.CollCounters, docstore.Query{Filter: keyFilter(key)}, &doc)
	if err != nil {
		return 0, fmt.Errorf("counter: current %s/%s/%d: %w", key.SpaceSlug, key.Kind, key.NoteNumber, err)
	}
	if !ok {
		return 0, nil
	}
	return doc.Value, nil
}

// SetIfHigher raises a sequence to value if its current value is lower,
// never lowering it. Used by internal/export's import path to restore
// counters consistent with imported data rather than restarting at 1.
func (c *Counters) SetIfHigher(ctx context.Context, key domain.CounterKey, value int64) error {
	current, err := c.Current(ctx, key)
	if err != nil {
		return err
	}
	if value <= current {
		return nil
	}
	var doc counterDoc
	return c.store.FindOneAndUpdate(ctx, docstore.CollCounters, keyFilter(key),
		docstore.NewPlan().Set("value", value),
		true,
		counterDoc{SpaceSlug: key.SpaceSlug, Kind: key.Kind, NoteNumber: key.NoteNumber, Value: value},
		&doc)
}

// DeleteBySpace removes every sequence belonging to spaceSlug, the last
// step of a space deletion's cascade (spec.md §3 "Lifecycles").
func (c *Counters) DeleteBySpace(ctx context.Context, spaceSlug string) error {
	if _, err := c.store.DeleteMany(ctx, docstore.CollCounters, docstore.Eq{Field: "space_slug", Value: spaceSlug}); err != nil {
		return fmt.Errorf("counter: delete by space %s: %w", spaceSlug, err)
	}
	return nil
}
