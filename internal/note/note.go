// Package note is C5, note lifecycle (spec.md §4.3): create, fetch, filtered
// listing, partial field updates and activity bumps, and bulk deletion when
// a space is removed.
package note

import (
	"context"
	"time"

	"github.com/spacenote/spacenote/internal/apperr"
	"github.com/spacenote/spacenote/internal/counter"
	"github.com/spacenote/spacenote/internal/docstore"
	"github.com/spacenote/spacenote/internal/domain"
	"github.com/spacenote/spacenote/internal/field"
	"github.com/spacenote/spacenote/internal/filter"
)

// AttachmentBinder promotes a pending attachment referenced by an IMAGE
// field into one bound to the freshly numbered note, returning the bound
// attachment's number to store in the note's field (spec.md §4.3/§4.5).
// Implemented by internal/attachment; injected here to keep this package
// from depending on the blob store.
type AttachmentBinder interface {
	BindToNote(ctx context.Context, space *domain.Space, noteNumber int64, def domain.FieldDef, pendingNumber int64) (int64, error)
}

// TaskEnqueuer schedules a durable messenger task (spec.md §4.7). Note and
// Comment both call this on create/update; internal/messenger's worker is
// the only reader of what gets written here.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, space *domain.Space, taskType domain.TaskType, noteNumber int64, payload map[string]any) error
}

// Service implements C5 against a docstore.Store, generalizing
// linear-fuse's sync.Worker pattern of one small struct wrapping a store
// handle and a handful of collaborators.
type Service struct {
	store      docstore.Store
	counters   *counter.Counters
	fields     *field.Registry
	attach     AttachmentBinder
	tasks      TaskEnqueuer
	now        func() time.Time
}

func New(store docstore.Store, counters *counter.Counters, fields *field.Registry, attach AttachmentBinder, tasks TaskEnqueuer) *Service {
	return &Service{store: store, counters: counters, fields: fields, attach: attach, tasks: tasks, now: func() time.Time { return time.Now().UTC() }}
}

// SetNow overrides the clock used for created_at/activity_at timestamps,
// for deterministic tests.
func (s *Service) SetNow(now func() time.Time) { s.now = now }

// Create parses raw against space's schema, reserves the next note number,
// binds any IMAGE fields to their pending attachment, inserts the note and
// enqueues the activity-created messenger task (spec.md §4.3 "create").
func (s *Service) Create(ctx context.Context, space *domain.Space, author string, raw map[string]string, pending map[int64]*domain.PendingAttachment) (*domain.Note, error) {
	ctxp := field.ParseContext{CurrentUser: author, Raw: raw, PendingAttachments: pending, Now: s.now}

	fields := make(map[string]domain.TypedValue, len(space.Fields))
	for _, def := range space.Fields {
		var rawPtr *string
		if v, ok := raw[def.Name]; ok {
			rawPtr = &v
		}
		tv, err := s.fields.Parse(def, space, rawPtr, ctxp)
		if err != nil {
			return nil, err
		}
		fields[def.Name] = tv
	}

	number, err := s.counters.Next(ctx, domain.CounterKey{SpaceSlug: space.Slug, Kind: domain.CounterNote})
	if err != nil {
		return nil, apperr.Internalf(err, "reserve note number")
	}

	if s.attach != nil {
		for name, def := range fieldsByName(space) {
			if def.Type != domain.FieldImage {
				continue
			}
			tv := fields[name]
			if tv.IsNull {
				continue
			}
			bound, err := s.attach.BindToNote(ctx, space, number, def, tv.Int)
			if err != nil {
				return nil, err
			}
			fields[name] = domain.ImageValue(bound)
		}
	}

	now := s.now()
	n := &domain.Note{
		SpaceSlug:  space.Slug,
		Number:     number,
		Author:     author,
		CreatedAt:  now,
		ActivityAt: now,
		Fields:     fields,
	}
	if err := s.store.InsertOne(ctx, docstore.CollNotes, n); err != nil {
		return nil, apperr.Internalf(err, "insert note")
	}

	if err := s.enqueueNoteTasks(ctx, space, domain.TaskActivityNoteCreated, domain.TaskMirrorCreate, number, nil); err != nil {
		return nil, err
	}

	return n, nil
}

// enqueueNoteTasks schedules activityType when an activity channel is
// configured and mirrorType when a mirror channel is configured (spec.md
// §4.3 "create"/"update_fields" both enqueue both kinds on their own
// trigger conditions).
func (s *Service) enqueueNoteTasks(ctx context.Context, space *domain.Space, activityType, mirrorType domain.TaskType, number int64, payload map[string]any) error {
	if s.tasks == nil || space.Telegram == nil {
		return nil
	}
	if space.Telegram.ActivityChannelID != "" {
		if err := s.tasks.Enqueue(ctx, space, activityType, number, payload); err != nil {
			return apperr.Internalf(err, "enqueue activity task")
		}
	}
	if space.Telegram.MirrorChannelID != "" {
		if err := s.tasks.Enqueue(ctx, space, mirrorType, number, payload); err != nil {
			return apperr.Internalf(err, "enqueue mirror task")
		}
	}
	return nil
}

func fieldsByName(space *domain.Space) map[string]domain.FieldDef {
	m := make(map[string]domain.FieldDef, len(space.Fields))
	for _, f := range space.Fields {
		m[f.Name] = f
	}
	return m
}

// Get returns the note numbered number in space, or apperr.NotFound.
func (s *Service) Get(ctx context.Context, spaceSlug string, number int64) (*domain.Note, error) {
	var n domain.Note
	ok, err := s.store.FindOne(ctx, docstore.CollNotes, docstore.Query{Filter: noteKeyFilter(spaceSlug, number)}, &n)
	if err != nil {
		return nil, apperr.Internalf(err, "get note")
	}
	if !ok {
		return nil, apperr.NotFoundf("note %s/%d not found", spaceSlug, number)
	}
	return &n, nil
}

func noteKeyFilter(spaceSlug string, number int64) docstore.Predicate {
	return docstore.And{Preds: []docstore.Predicate{
		docstore.Eq{Field: "space_slug", Value: spaceSlug},
		docstore.Eq{Field: "number", Value: number},
	}}
}

// List compiles filterName (plus an optional adhoc overlay) against space
// and returns one page of notes (spec.md §4.2/§4.3 "list"). limit is
// clamped into [domain.MinLimit, domain.MaxLimit], defaulting to
// domain.DefaultLimit when zero.
func (s *Service) List(ctx context.Context, space *domain.Space, caller, filterName string, adhoc []domain.Condition, offset, limit int) (domain.Page[domain.Note], error) {
	def := space.FilterByName(filterName)
	if def == nil {
		if filterName != domain.AllFilterName {
			return domain.Page[domain.Note]{}, apperr.NotFoundf("filter %q not found", filterName)
		}
		def = &domain.FilterDef{Name: domain.AllFilterName}
	}

	if limit <= 0 {
		limit = domain.DefaultLimit
	}
	if limit < domain.MinLimit {
		limit = domain.MinLimit
	}
	if limit > domain.MaxLimit {
		limit = domain.MaxLimit
	}
	if offset < 0 {
		offset = 0
	}

	q := filter.Compile(space, def, adhoc, caller, offset, limit)
	var notes []domain.Note
	total, err := s.store.Find(ctx, docstore.CollNotes, q, &notes)
	if err != nil {
		return domain.Page[domain.Note]{}, apperr.Internalf(err, "list notes")
	}
	return domain.Page[domain.Note]{Items: notes, Total: total, Limit: limit, Offset: offset}, nil
}

// FieldChange is one entry of the old-to-new change map update_fields
// reports (spec.md §4.4: C6 folds this into an activity_comment_created
// task's payload).
type FieldChange struct {
	Old domain.TypedValue
	New domain.TypedValue
}

// UpdateFields partially re-parses raw against space's schema (only the
// named fields, each independently optional/required per its own def),
// merges the result into the note's stored fields, and bumps activity
// (spec.md §4.3 "update_fields"). Enqueues the activity-updated task unless
// skipActivityNotification is set, used by C6 when a comment also edits
// fields so only one notification fires per comment. Returns the old→new
// change map for the supplied keys only.
func (s *Service) UpdateFields(ctx context.Context, space *domain.Space, number int64, editor string, raw map[string]string, pending map[int64]*domain.PendingAttachment, skipActivityNotification bool) (*domain.Note, map[string]FieldChange, error) {
	n, err := s.Get(ctx, space.Slug, number)
	if err != nil {
		return nil, nil, err
	}

	ctxp := field.ParseContext{CurrentUser: editor, Raw: raw, PendingAttachments: pending, Now: s.now}
	byName := fieldsByName(space)

	changed := make(map[string]domain.TypedValue, len(raw))
	changes := make(map[string]FieldChange, len(raw))
	for name := range raw {
		def, ok := byName[name]
		if !ok {
			return nil, nil, apperr.Validationf("unknown field %q", name)
		}
		v := raw[name]
		tv, err := s.fields.Parse(def, space, &v, ctxp)
		if err != nil {
			return nil, nil, err
		}
		if def.Type == domain.FieldImage && s.attach != nil && !tv.IsNull {
			bound, err := s.attach.BindToNote(ctx, space, number, def, tv.Int)
			if err != nil {
				return nil, nil, err
			}
			tv = domain.ImageValue(bound)
		}
		changes[name] = FieldChange{Old: n.Fields[name], New: tv}
		changed[name] = tv
	}

	now := s.now()
	plan := docstore.NewPlan()
	for name, tv := range changed {
		plan.Set("fields."+name, tv)
	}
	plan.Set("edited_at", now).Set("activity_at", now)

	matched, err := s.store.UpdateOne(ctx, docstore.CollNotes, noteKeyFilter(space.Slug, number), plan)
	if err != nil {
		return nil, nil, apperr.Internalf(err, "update note fields")
	}
	if !matched {
		return nil, nil, apperr.NotFoundf("note %s/%d not found", space.Slug, number)
	}

	for name, tv := range changed {
		n.Fields[name] = tv
	}
	n.EditedAt = &now
	n.ActivityAt = now

	if !skipActivityNotification {
		if err := s.enqueueNoteTasks(ctx, space, domain.TaskActivityNoteUpdated, domain.TaskMirrorUpdate, number, nil); err != nil {
			return nil, nil, err
		}
	} else if s.tasks != nil && space.Telegram != nil && space.Telegram.MirrorChannelID != "" {
		// A comment-driven field edit still needs the mirror kept in sync,
		// even though its own activity notification is suppressed in favor
		// of C6's activity_comment_created task.
		if err := s.tasks.Enqueue(ctx, space, domain.TaskMirrorUpdate, number, nil); err != nil {
			return nil, nil, apperr.Internalf(err, "enqueue mirror task")
		}
	}

	return n, changes, nil
}

// BumpActivity updates a note's activity_at to now, and its commented_at
// too when commented is true (spec.md §4.4 "every comment bumps the
// parent note's activity").
func (s *Service) BumpActivity(ctx context.Context, spaceSlug string, number int64, commented bool) error {
	now := s.now()
	plan := docstore.NewPlan().Set("activity_at", now)
	if commented {
		plan.Set("commented_at", now)
	}
	matched, err := s.store.UpdateOne(ctx, docstore.CollNotes, noteKeyFilter(spaceSlug, number), plan)
	if err != nil {
		return apperr.Internalf(err, "bump activity")
	}
	if !matched {
		return apperr.NotFoundf("note %s/%d not found", spaceSlug, number)
	}
	return nil
}

// DeleteBySpace removes every note belonging to spaceSlug, used when a
// space itself is deleted (spec.md §4.3 "delete_by_space").
func (s *Service) DeleteBySpace(ctx context.Context, spaceSlug string) error {
	_, err := s.store.DeleteMany(ctx, docstore.CollNotes, docstore.Eq{Field: "space_slug", Value: spaceSlug})
	if err != nil {
		return apperr.Internalf(err, "delete notes for space %s", spaceSlug)
	}
	return nil
}
