// Package space is C2: the durable Space document plus schema mutation
// operations, fronted by spacecache's in-memory mirror (spec.md §4.1 "Space
// cache", §9 "cache refresh follows the write"). Every write here
// invalidates the touched slug in the cache immediately afterward, per
// spec.md §5's single-node cache-consistency rule.
package space

import (
	"context"
	"time"

	"github.com/spacenote/spacenote/internal/apperr"
	"github.com/spacenote/spacenote/internal/docstore"
	"github.com/spacenote/spacenote/internal/domain"
	"github.com/spacenote/spacenote/internal/field"
	"github.com/spacenote/spacenote/internal/filter"
	"github.com/spacenote/spacenote/internal/spacecache"
	"github.com/spacenote/spacenote/internal/template"
)

type Service struct {
	store  docstore.Store
	cache  *spacecache.Spaces
	fields *field.Registry
	now    func() time.Time
}

func New(store docstore.Store, cache *spacecache.Spaces, fields *field.Registry) *Service {
	return &Service{store: store, cache: cache, fields: fields, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) SetNow(now func() time.Time) { s.now = now }

func slugFilter(slug string) docstore.Predicate {
	return docstore.Eq{Field: "Slug", Value: slug}
}

// Create inserts a new Space with an empty schema and the creating user as
// its sole member (spec.md §4.1 "create_space").
func (s *Service) Create(ctx context.Context, slug, title, description, creator string) (*domain.Space, error) {
	if slug == "" {
		return nil, apperr.Validationf("space slug must not be empty")
	}
	sp := &domain.Space{
		Slug:        slug,
		Title:       title,
		Description: description,
		Members:     []string{creator},
		Templates:   map[string]string{},
		CreatedAt:   s.now(),
	}
	if err := s.store.InsertOne(ctx, docstore.CollSpaces, sp); err != nil {
		return nil, apperr.Internalf(err, "insert space %s", slug)
	}
	s.cache.Set(sp)
	return sp, nil
}

// Get returns the space named slug, preferring the cache (spec.md §4.1
// "read on every authorized call").
func (s *Service) Get(ctx context.Context, slug string) (*domain.Space, error) {
	if sp, ok := s.cache.Get(slug); ok {
		return sp, nil
	}
	var sp domain.Space
	ok, err := s.store.FindOne(ctx, docstore.CollSpaces, docstore.Query{Filter: slugFilter(slug)}, &sp)
	if err != nil {
		return nil, apperr.Internalf(err, "get space %s", slug)
	}
	if !ok {
		return nil, apperr.NotFoundf("space %q not found", slug)
	}
	s.cache.Set(&sp)
	return &sp, nil
}

// List returns every space, bypassing the cache (administrative listing,
// not a hot path).
func (s *Service) List(ctx context.Context) ([]domain.Space, error) {
	var spaces []domain.Space
	if _, err := s.store.Find(ctx, docstore.CollSpaces, docstore.Query{}, &spaces); err != nil {
		return nil, apperr.Internalf(err, "list spaces")
	}
	return spaces, nil
}

func (s *Service) reload(ctx context.Context, slug string) (*domain.Space, error) {
	s.cache.Invalidate(slug)
	return s.Get(ctx, slug)
}

// SetFields validates and replaces a space's entire field schema (spec.md
// §4.1 "set_fields"). Existing notes are not retroactively migrated: field
// removal/retyping only affects future reads that address the dropped
// sub-path.
func (s *Service) SetFields(ctx context.Context, slug string, fields []domain.FieldDef) (*domain.Space, error) {
	sp, err := s.Get(ctx, slug)
	if err != nil {
		return nil, err
	}
	candidate := *sp
	candidate.Fields = fields
	for i := range fields {
		if err := s.fields.ValidateDef(&fields[i], &candidate); err != nil {
			return nil, err
		}
	}

	plan := docstore.NewPlan().Set("Fields", fields)
	if _, err := s.store.UpdateOne(ctx, docstore.CollSpaces, slugFilter(slug), plan); err != nil {
		return nil, apperr.Internalf(err, "set fields for space %s", slug)
	}
	return s.reload(ctx, slug)
}

// SetFilters validates and replaces a space's saved filters (spec.md §4.2
// "set_filters"). The reserved "all" name may not be redefined.
func (s *Service) SetFilters(ctx context.Context, slug string, filters []domain.FilterDef) (*domain.Space, error) {
	sp, err := s.Get(ctx, slug)
	if err != nil {
		return nil, err
	}
	candidate := *sp
	candidate.Filters = filters
	for i := range filters {
		if filters[i].Name == domain.AllFilterName {
			return nil, apperr.Validationf("filter name %q is reserved", domain.AllFilterName)
		}
		if err := filter.ValidateFilterDef(&filters[i], &candidate); err != nil {
			return nil, err
		}
	}

	plan := docstore.NewPlan().Set("Filters", filters)
	if _, err := s.store.UpdateOne(ctx, docstore.CollSpaces, slugFilter(slug), plan); err != nil {
		return nil, apperr.Internalf(err, "set filters for space %s", slug)
	}
	return s.reload(ctx, slug)
}

// SetTemplate validates and stores a single named template (spec.md §4.6
// "Syntax errors on set_template are a validation failure").
func (s *Service) SetTemplate(ctx context.Context, slug, name, body string) (*domain.Space, error) {
	if _, err := s.Get(ctx, slug); err != nil {
		return nil, err
	}
	if err := template.Validate(body); err != nil {
		return nil, err
	}
	plan := docstore.NewPlan().Set("Templates."+name, body)
	if _, err := s.store.UpdateOne(ctx, docstore.CollSpaces, slugFilter(slug), plan); err != nil {
		return nil, apperr.Internalf(err, "set template %s for space %s", name, slug)
	}
	return s.reload(ctx, slug)
}

// AddMember adds username to a space's member list, a no-op if already
// present.
func (s *Service) AddMember(ctx context.Context, slug, username string) (*domain.Space, error) {
	sp, err := s.Get(ctx, slug)
	if err != nil {
		return nil, err
	}
	if sp.IsMember(username) {
		return sp, nil
	}
	plan := docstore.NewPlan().Push("Members", username)
	if _, err := s.store.UpdateOne(ctx, docstore.CollSpaces, slugFilter(slug), plan); err != nil {
		return nil, apperr.Internalf(err, "add member %s to space %s", username, slug)
	}
	return s.reload(ctx, slug)
}

// RemoveMember removes username from a space's member list.
func (s *Service) RemoveMember(ctx context.Context, slug, username string) (*domain.Space, error) {
	if _, err := s.Get(ctx, slug); err != nil {
		return nil, err
	}
	plan := docstore.NewPlan().Pull("Members", "", username)
	if _, err := s.store.UpdateOne(ctx, docstore.CollSpaces, slugFilter(slug), plan); err != nil {
		return nil, apperr.Internalf(err, "remove member %s from space %s", username, slug)
	}
	return s.reload(ctx, slug)
}

// SetMessengerSettings configures (or clears, passing nil) a space's
// Telegram activity/mirror channels (spec.md §4.7 "Enqueue rules").
func (s *Service) SetMessengerSettings(ctx context.Context, slug string, settings *domain.MessengerSettings) (*domain.Space, error) {
	if _, err := s.Get(ctx, slug); err != nil {
		return nil, err
	}
	plan := docstore.NewPlan().Set("Telegram", settings)
	if _, err := s.store.UpdateOne(ctx, docstore.CollSpaces, slugFilter(slug), plan); err != nil {
		return nil, apperr.Internalf(err, "set messenger settings for space %s", slug)
	}
	return s.reload(ctx, slug)
}

// SetHiddenFieldsOnCreate configures which fields are omitted from the
// create form by presentation layers (spec.md §3).
func (s *Service) SetHiddenFieldsOnCreate(ctx context.Context, slug string, names []string) (*domain.Space, error) {
	if _, err := s.Get(ctx, slug); err != nil {
		return nil, err
	}
	plan := docstore.NewPlan().Set("HiddenFieldsOnCreate", names)
	if _, err := s.store.UpdateOne(ctx, docstore.CollSpaces, slugFilter(slug), plan); err != nil {
		return nil, apperr.Internalf(err, "set hidden fields for space %s", slug)
	}
	return s.reload(ctx, slug)
}

// SetEditableFieldsOnComment configures which fields C6 may edit via a
// comment (spec.md §4.4).
func (s *Service) SetEditableFieldsOnComment(ctx context.Context, slug string, names []string) (*domain.Space, error) {
	sp, err := s.Get(ctx, slug)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if sp.FieldByName(name) == nil {
			return nil, apperr.Validationf("unknown field %q", name)
		}
	}
	plan := docstore.NewPlan().Set("EditableFieldsOnComment", names)
	if _, err := s.store.UpdateOne(ctx, docstore.CollSpaces, slugFilter(slug), plan); err != nil {
		return nil, apperr.Internalf(err, "set editable fields for space %s", slug)
	}
	return s.reload(ctx, slug)
}

// Delete removes a space's own document. Callers (the facade) must first
// cascade-delete its messenger tasks, mirrors, attachments, renditions,
// comments, notes and counters in that order (spec.md §3 "Lifecycles").
func (s *Service) Delete(ctx context.Context, slug string) error {
	matched, err := s.store.DeleteOne(ctx, docstore.CollSpaces, slugFilter(slug))
	if err != nil {
		return apperr.Internalf(err, "delete space %s", slug)
	}
	if !matched {
		return apperr.NotFoundf("space %q not found", slug)
	}
	s.cache.Invalidate(slug)
	return nil
}
