// Package comment is C6, the comment store (spec.md §4.4): threaded,
// per-note sequential comments that bump their parent note's activity and,
// when requested, edit a constrained subset of the note's own fields.
package comment

import (
	"context"
	"time"

	"github.com/spacenote/spacenote/internal/apperr"
	"github.com/spacenote/spacenote/internal/counter"
	"github.com/spacenote/spacenote/internal/docstore"
	"github.com/spacenote/spacenote/internal/domain"
	"github.com/spacenote/spacenote/internal/note"
)

// NoteFieldEditor is the subset of note.Service's contract C6 needs: the
// skip-notification partial update that backs "raw_fields" on a comment.
type NoteFieldEditor interface {
	UpdateFields(ctx context.Context, space *domain.Space, number int64, editor string, raw map[string]string, pending map[int64]*domain.PendingAttachment, skipActivityNotification bool) (*domain.Note, map[string]note.FieldChange, error)
	BumpActivity(ctx context.Context, spaceSlug string, number int64, commented bool) error
}

// TaskEnqueuer mirrors note.TaskEnqueuer; kept as its own type so this
// package doesn't need note's internal wiring to depend on messenger.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, space *domain.Space, taskType domain.TaskType, noteNumber int64, payload map[string]any) error
}

type Service struct {
	store    docstore.Store
	counters *counter.Counters
	notes    NoteFieldEditor
	tasks    TaskEnqueuer
	now      func() time.Time
}

func New(store docstore.Store, counters *counter.Counters, notes NoteFieldEditor, tasks TaskEnqueuer) *Service {
	return &Service{store: store, counters: counters, notes: notes, tasks: tasks, now: func() time.Time { return time.Now().UTC() }}
}

func commentKeyFilter(spaceSlug string, noteNumber, number int64) docstore.Predicate {
	return docstore.And{Preds: []docstore.Predicate{
		docstore.Eq{Field: "space_slug", Value: spaceSlug},
		docstore.Eq{Field: "note_number", Value: noteNumber},
		docstore.Eq{Field: "number", Value: number},
	}}
}

func noteCommentsFilter(spaceSlug string, noteNumber int64) docstore.Predicate {
	return docstore.And{Preds: []docstore.Predicate{
		docstore.Eq{Field: "space_slug", Value: spaceSlug},
		docstore.Eq{Field: "note_number", Value: noteNumber},
	}}
}

// Create validates parentNumber (if given) against siblings on the same
// note, applies rawFields (every key must be in
// space.EditableFieldsOnComment) through Note.UpdateFields with
// skip_activity_notification=true, inserts the comment, bumps the note's
// activity with commented=true, then enqueues activity_comment_created
// carrying both the comment and the field change map (spec.md §4.4
// "create").
func (s *Service) Create(ctx context.Context, space *domain.Space, noteNumber int64, author, content string, parentNumber *int64, rawFields map[string]string) (*domain.Comment, error) {
	if parentNumber != nil {
		ok, err := s.store.Count(ctx, docstore.CollComments, docstore.And{Preds: []docstore.Predicate{
			docstore.Eq{Field: "space_slug", Value: space.Slug},
			docstore.Eq{Field: "note_number", Value: noteNumber},
			docstore.Eq{Field: "number", Value: *parentNumber},
		}})
		if err != nil {
			return nil, apperr.Internalf(err, "validate parent comment")
		}
		if ok == 0 {
			return nil, apperr.Validationf("parent comment %d not found on note %d", *parentNumber, noteNumber)
		}
	}

	var changes map[string]note.FieldChange
	if len(rawFields) > 0 {
		for name := range rawFields {
			if !editable(space, name) {
				return nil, apperr.Validationf("field %q is not editable on comment", name)
			}
		}
		var err error
		_, changes, err = s.notes.UpdateFields(ctx, space, noteNumber, author, rawFields, nil, true)
		if err != nil {
			return nil, err
		}
	}

	number, err := s.counters.Next(ctx, domain.CounterKey{SpaceSlug: space.Slug, Kind: domain.CounterComment, NoteNumber: noteNumber})
	if err != nil {
		return nil, apperr.Internalf(err, "reserve comment number")
	}

	c := &domain.Comment{
		SpaceSlug:    space.Slug,
		NoteNumber:   noteNumber,
		Number:       number,
		Author:       author,
		Content:      content,
		CreatedAt:    s.now(),
		ParentNumber: parentNumber,
	}
	if err := s.store.InsertOne(ctx, docstore.CollComments, c); err != nil {
		return nil, apperr.Internalf(err, "insert comment")
	}

	if err := s.notes.BumpActivity(ctx, space.Slug, noteNumber, true); err != nil {
		return nil, err
	}

	if s.tasks != nil && space.Telegram != nil && space.Telegram.ActivityChannelID != "" {
		payload := map[string]any{"comment": c}
		if len(changes) > 0 {
			payload["changes"] = changes
		}
		if err := s.tasks.Enqueue(ctx, space, domain.TaskActivityCommentCreated, noteNumber, payload); err != nil {
			return nil, apperr.Internalf(err, "enqueue activity task")
		}
	}

	return c, nil
}

func editable(space *domain.Space, field string) bool {
	for _, f := range space.EditableFieldsOnComment {
		if f == field {
			return true
		}
	}
	return false
}

// Update sets a comment's content and edited_at, and bumps the parent
// note's activity (spec.md §4.4 "update").
func (s *Service) Update(ctx context.Context, spaceSlug string, noteNumber, number int64, content string) (*domain.Comment, error) {
	now := s.now()
	plan := docstore.NewPlan().Set("content", content).Set("edited_at", now)
	matched, err := s.store.UpdateOne(ctx, docstore.CollComments, commentKeyFilter(spaceSlug, noteNumber, number), plan)
	if err != nil {
		return nil, apperr.Internalf(err, "update comment")
	}
	if !matched {
		return nil, apperr.NotFoundf("comment %d not found on note %d", number, noteNumber)
	}
	if err := s.notes.BumpActivity(ctx, spaceSlug, noteNumber, false); err != nil {
		return nil, err
	}
	return s.Get(ctx, spaceSlug, noteNumber, number)
}

// Get returns one comment by natural key.
func (s *Service) Get(ctx context.Context, spaceSlug string, noteNumber, number int64) (*domain.Comment, error) {
	var c domain.Comment
	ok, err := s.store.FindOne(ctx, docstore.CollComments, docstore.Query{Filter: commentKeyFilter(spaceSlug, noteNumber, number)}, &c)
	if err != nil {
		return nil, apperr.Internalf(err, "get comment")
	}
	if !ok {
		return nil, apperr.NotFoundf("comment %d not found on note %d", number, noteNumber)
	}
	return &c, nil
}

// Delete removes a comment. Replies keep their dangling parent_number
// rather than being deleted or rewritten (spec.md §4.4 "delete").
func (s *Service) Delete(ctx context.Context, spaceSlug string, noteNumber, number int64) error {
	ok, err := s.store.DeleteOne(ctx, docstore.CollComments, commentKeyFilter(spaceSlug, noteNumber, number))
	if err != nil {
		return apperr.Internalf(err, "delete comment")
	}
	if !ok {
		return apperr.NotFoundf("comment %d not found on note %d", number, noteNumber)
	}
	return nil
}

// List returns a note's comments ordered by ascending number (spec.md §4.4
// "list").
func (s *Service) List(ctx context.Context, spaceSlug string, noteNumber int64, offset, limit int) (domain.Page[domain.Comment], error) {
	if limit <= 0 {
		limit = domain.DefaultLimit
	}
	if limit > domain.MaxLimit {
		limit = domain.MaxLimit
	}
	q := docstore.Query{
		Filter: noteCommentsFilter(spaceSlug, noteNumber),
		Sort:   []docstore.SortField{{Field: "number", Desc: false}},
		Skip:   offset,
		Limit:  limit,
	}
	var comments []domain.Comment
	total, err := s.store.Find(ctx, docstore.CollComments, q, &comments)
	if err != nil {
		return domain.Page[domain.Comment]{}, apperr.Internalf(err, "list comments")
	}
	return domain.Page[domain.Comment]{Items: comments, Total: total, Limit: limit, Offset: offset}, nil
}

// DeleteByNote removes every comment on one note, used when the note itself
// is deleted.
func (s *Service) DeleteByNote(ctx context.Context, spaceSlug string, noteNumber int64) error {
	_, err := s.store.DeleteMany(ctx, docstore.CollComments, noteCommentsFilter(spaceSlug, noteNumber))
	if err != nil {
		return apperr.Internalf(err, "delete comments for note %d", noteNumber)
	}
	return nil
}

// DeleteBySpace removes every comment in a space, used when the space
// itself is deleted (spec.md §3 "Lifecycles" cascade order: comments before
// notes).
func (s *Service) DeleteBySpace(ctx context.Context, spaceSlug string) error {
	_, err := s.store.DeleteMany(ctx, docstore.CollComments, docstore.Eq{Field: "space_slug", Value: spaceSlug})
	if err != nil {
		return apperr.Internalf(err, "delete comments for space %s", spaceSlug)
	}
	return nil
}
