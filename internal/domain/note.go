package domain

import "time"

// Note is one record in a Space (spec.md §3). Natural key is
// (SpaceSlug, Number). JSON tags fix the stored document's shape, addressed
// field-by-field by internal/filter's compiled predicates.
type Note struct {
	SpaceSlug   string                `json:"space_slug"`
	Number      int64                 `json:"number"`
	Author      string                `json:"author"`
	CreatedAt   time.Time             `json:"created_at"`
	EditedAt    *time.Time            `json:"edited_at,omitempty"`
	CommentedAt *time.Time            `json:"commented_at,omitempty"`
	ActivityAt  time.Time             `json:"activity_at"`
	Fields      map[string]TypedValue `json:"fields"`
}

// Comment is a per-note, per-space threaded comment (spec.md §3). Natural
// key is (SpaceSlug, NoteNumber, Number).
type Comment struct {
	SpaceSlug    string     `json:"space_slug"`
	NoteNumber   int64      `json:"note_number"`
	Number       int64      `json:"number"`
	Author       string     `json:"author"`
	Content      string     `json:"content"`
	CreatedAt    time.Time  `json:"created_at"`
	EditedAt     *time.Time `json:"edited_at,omitempty"`
	ParentNumber *int64     `json:"parent_number,omitempty"`
}

// Page is the finite, cursor-less pagination envelope every list operation
// returns (spec.md §9 "Generators / async iteration → pagination").
type Page[T any] struct {
	Items  []T
	Total  int
	Limit  int
	Offset int
}

const (
	MinLimit     = 1
	MaxLimit     = 100
	DefaultLimit = 50
)
