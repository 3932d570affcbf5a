// Package export is C13: a space's full config and (optionally) its data
// as one self-describing, portable record (spec.md §4.9). Export reads
// collections directly through docstore.Store rather than through
// internal/note/internal/comment's request-scoped services, since a bulk
// dump has none of list_notes's pagination or filter concerns; import is
// the inverse, restoring counters high enough that newly created entities
// never collide with restored numbers.
package export

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/spacenote/spacenote/internal/apperr"
	"github.com/spacenote/spacenote/internal/counter"
	"github.com/spacenote/spacenote/internal/docstore"
	"github.com/spacenote/spacenote/internal/domain"
	"github.com/spacenote/spacenote/internal/identity"
)

// SchemaVersion is the export format's major version (recovered from
// export/models.py, SPEC_FULL.md's "Supplemented" section). Import rejects
// any bundle whose SchemaVersion differs, since the shape of Bundle itself
// is the compatibility contract.
const SchemaVersion = 1

// Bundle is the self-describing export record: version, timestamp, full
// Space config, and optionally the space's notes/comments/attachment
// metadata (never blob bytes — those stay in the blob store and are not
// carried here; Import restores metadata only).
type Bundle struct {
	SchemaVersion int                `yaml:"schema_version"`
	ExportedAt    time.Time          `yaml:"exported_at"`
	Space         domain.Space       `yaml:"space"`
	Notes         []domain.Note      `yaml:"notes,omitempty"`
	Comments      []domain.Comment   `yaml:"comments,omitempty"`
	Attachments   []domain.Attachment `yaml:"attachments,omitempty"`
}

type Service struct {
	store    docstore.Store
	counters *counter.Counters
	identity *identity.Service
	now      func() time.Time
}

func New(store docstore.Store, counters *counter.Counters, idp *identity.Service) *Service {
	return &Service{store: store, counters: counters, identity: idp, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) SetNow(now func() time.Time) { s.now = now }

// Export builds a Bundle for spaceSlug. includeData controls whether notes,
// comments, and attachment metadata are included alongside the Space
// config; a config-only export is useful for cloning a schema without its
// content.
func (s *Service) Export(ctx context.Context, spaceSlug string, includeData bool) (*Bundle, error) {
	var space domain.Space
	found, err := s.store.FindOne(ctx, docstore.CollSpaces, docstore.Query{Filter: docstore.Eq{Field: "Slug", Value: spaceSlug}}, &space)
	if err != nil {
		return nil, apperr.Internalf(err, "find space")
	}
	if !found {
		return nil, apperr.NotFoundf("space %q", spaceSlug)
	}

	bundle := &Bundle{SchemaVersion: SchemaVersion, ExportedAt: s.now(), Space: space}
	if !includeData {
		return bundle, nil
	}

	if _, err := s.store.Find(ctx, docstore.CollNotes, docstore.Query{
		Filter: docstore.Eq{Field: "space_slug", Value: spaceSlug},
		Sort:   []docstore.SortField{{Field: "number", Desc: false}},
	}, &bundle.Notes); err != nil {
		return nil, apperr.Internalf(err, "find notes")
	}
	if _, err := s.store.Find(ctx, docstore.CollComments, docstore.Query{
		Filter: docstore.Eq{Field: "space_slug", Value: spaceSlug},
		Sort:   []docstore.SortField{{Field: "note_number", Desc: false}, {Field: "number", Desc: false}},
	}, &bundle.Comments); err != nil {
		return nil, apperr.Internalf(err, "find comments")
	}
	if _, err := s.store.Find(ctx, docstore.CollAttachments, docstore.Query{
		Filter: docstore.Eq{Field: "space_slug", Value: spaceSlug},
	}, &bundle.Attachments); err != nil {
		return nil, apperr.Internalf(err, "find attachments")
	}
	return bundle, nil
}

// Import restores bundle as a brand-new space: the slug must be free,
// referenced users not already present are created with random passwords,
// data is bulk-inserted, and every affected counter is raised to the
// maximum number observed in the bundle.
func (s *Service) Import(ctx context.Context, bundle *Bundle) (*domain.Space, error) {
	if bundle.SchemaVersion != SchemaVersion {
		return nil, apperr.Validationf("unsupported export schema version %d", bundle.SchemaVersion)
	}

	var existing domain.Space
	found, err := s.store.FindOne(ctx, docstore.CollSpaces, docstore.Query{Filter: docstore.Eq{Field: "Slug", Value: bundle.Space.Slug}}, &existing)
	if err != nil {
		return nil, apperr.Internalf(err, "check existing space")
	}
	if found {
		return nil, apperr.Validationf("space %q already exists", bundle.Space.Slug)
	}

	if err := s.ensureUsers(ctx, referencedUsernames(bundle)); err != nil {
		return nil, err
	}

	space := bundle.Space
	if err := s.store.InsertOne(ctx, docstore.CollSpaces, &space); err != nil {
		return nil, apperr.Internalf(err, "insert space")
	}

	for i := range bundle.Notes {
		if err := s.store.InsertOne(ctx, docstore.CollNotes, &bundle.Notes[i]); err != nil {
			return nil, apperr.Internalf(err, "insert note %d", bundle.Notes[i].Number)
		}
	}
	for i := range bundle.Comments {
		if err := s.store.InsertOne(ctx, docstore.CollComments, &bundle.Comments[i]); err != nil {
			return nil, apperr.Internalf(err, "insert comment %d", bundle.Comments[i].Number)
		}
	}
	for i := range bundle.Attachments {
		if err := s.store.InsertOne(ctx, docstore.CollAttachments, &bundle.Attachments[i]); err != nil {
			return nil, apperr.Internalf(err, "insert attachment %d", bundle.Attachments[i].Number)
		}
	}

	if err := s.restoreCounters(ctx, bundle); err != nil {
		return nil, err
	}
	return &space, nil
}

func (s *Service) ensureUsers(ctx context.Context, usernames []string) error {
	for _, username := range usernames {
		if _, err := s.identity.GetUser(ctx, username); err == nil {
			continue
		} else if apperr.KindOf(err) != apperr.NotFound {
			return apperr.Internalf(err, "look up user %q", username)
		}
		if _, err := s.identity.CreateUser(ctx, username, uuid.NewString()); err != nil {
			return apperr.Internalf(err, "create missing user %q", username)
		}
	}
	return nil
}

func referencedUsernames(bundle *Bundle) []string {
	seen := map[string]bool{}
	var out []string
	add := func(username string) {
		if username == "" || seen[username] {
			return
		}
		seen[username] = true
		out = append(out, username)
	}
	for _, m := range bundle.Space.Members {
		add(m)
	}
	for _, n := range bundle.Notes {
		add(n.Author)
	}
	for _, c := range bundle.Comments {
		add(c.Author)
	}
	for _, a := range bundle.Attachments {
		add(a.Author)
	}
	sort.Strings(out)
	return out
}

func (s *Service) restoreCounters(ctx context.Context, bundle *Bundle) error {
	slug := bundle.Space.Slug

	var maxNote int64
	for _, n := range bundle.Notes {
		if n.Number > maxNote {
			maxNote = n.Number
		}
	}
	if maxNote > 0 {
		if err := s.counters.SetIfHigher(ctx, domain.CounterKey{SpaceSlug: slug, Kind: domain.CounterNote}, maxNote); err != nil {
			return apperr.Internalf(err, "restore note counter")
		}
	}

	maxComment := map[int64]int64{}
	for _, c := range bundle.Comments {
		if c.Number > maxComment[c.NoteNumber] {
			maxComment[c.NoteNumber] = c.Number
		}
	}
	for noteNumber, max := range maxComment {
		key := domain.CounterKey{SpaceSlug: slug, Kind: domain.CounterComment, NoteNumber: noteNumber}
		if err := s.counters.SetIfHigher(ctx, key, max); err != nil {
			return apperr.Internalf(err, "restore comment counter for note %d", noteNumber)
		}
	}

	maxAttachment := map[int64]int64{}
	for _, a := range bundle.Attachments {
		scope := int64(0)
		if a.NoteNumber != nil {
			scope = *a.NoteNumber
		}
		if a.Number > maxAttachment[scope] {
			maxAttachment[scope] = a.Number
		}
	}
	for scope, max := range maxAttachment {
		key := domain.CounterKey{SpaceSlug: slug, Kind: domain.CounterAttachment, NoteNumber: scope}
		if err := s.counters.SetIfHigher(ctx, key, max); err != nil {
			return apperr.Internalf(err, "restore attachment counter for scope %d", scope)
		}
	}
	return nil
}
