// Package facade is C14: the thin authorize-then-dispatch layer every
// transport (HTTP handler, CLI command) calls through. Every method takes
// a session token first, resolves it through exactly one internal/access
// ensure_* call, then dispatches to the already-grounded service that owns
// the operation. No method contains domain logic of its own beyond
// sequencing calls and translating between token-scoped identity and the
// space-scoped services underneath.
package facade

import (
	"context"
	"strconv"

	"github.com/spacenote/spacenote/internal/access"
	"github.com/spacenote/spacenote/internal/apperr"
	"github.com/spacenote/spacenote/internal/attachment"
	"github.com/spacenote/spacenote/internal/comment"
	"github.com/spacenote/spacenote/internal/counter"
	"github.com/spacenote/spacenote/internal/domain"
	"github.com/spacenote/spacenote/internal/export"
	"github.com/spacenote/spacenote/internal/field"
	"github.com/spacenote/spacenote/internal/filter"
	"github.com/spacenote/spacenote/internal/identity"
	"github.com/spacenote/spacenote/internal/messenger"
	"github.com/spacenote/spacenote/internal/note"
	"github.com/spacenote/spacenote/internal/space"
	"github.com/spacenote/spacenote/internal/template"
)

// RenditionReader is internal/image.Pool's ReadRendition method, kept as
// its own interface here the way internal/messenger declares the same
// shape, so this package doesn't force a direct dependency on the image
// decoding stack for callers that never touch renditions.
type RenditionReader interface {
	ReadRendition(spaceSlug, noteScope string, number int64) ([]byte, error)
}

// Renderer converts a blob to a webp rendition on demand (internal/image's
// package-level Convert function).
type Renderer func(data []byte, maxWidth *int) ([]byte, error)

type Facade struct {
	guard       *access.Guard
	identity    *identity.Service
	spaces      *space.Service
	notes       *note.Service
	comments    *comment.Service
	attachments *attachment.Service
	messenger   *messenger.Service
	counters    *counter.Counters
	export      *export.Service
	fields      *field.Registry
	renditions  RenditionReader
	convert     Renderer
}

func New(
	guard *access.Guard,
	idp *identity.Service,
	spaces *space.Service,
	notes *note.Service,
	comments *comment.Service,
	attachments *attachment.Service,
	msgr *messenger.Service,
	counters *counter.Counters,
	exportSvc *export.Service,
	fields *field.Registry,
	renditions RenditionReader,
	convert Renderer,
) *Facade {
	return &Facade{
		guard: guard, identity: idp, spaces: spaces, notes: notes, comments: comments,
		attachments: attachments, messenger: msgr, counters: counters, export: exportSvc,
		fields: fields, renditions: renditions, convert: convert,
	}
}

// --- Identity ---

func (f *Facade) Login(ctx context.Context, username, password string) (*domain.Session, error) {
	return f.identity.Authenticate(ctx, username, password)
}

func (f *Facade) Logout(ctx context.Context, token string) error {
	return f.identity.Logout(ctx, token)
}

// CreateUser is admin-only: the reference identity provider has no
// self-registration path (spec.md leaves account provisioning outside the
// core's domain).
func (f *Facade) CreateUser(ctx context.Context, token, username, password string) (*domain.User, error) {
	if _, err := f.guard.EnsureAdmin(ctx, token); err != nil {
		return nil, err
	}
	return f.identity.CreateUser(ctx, username, password)
}

// --- Space management (admin-only: spec.md §7's "non-admin doing admin
// op" AccessDenied example names exactly this class of operation) ---

func (f *Facade) CreateSpace(ctx context.Context, token, slug, title, description string) (*domain.Space, error) {
	user, err := f.guard.EnsureAdmin(ctx, token)
	if err != nil {
		return nil, err
	}
	return f.spaces.Create(ctx, slug, title, description, user.Username)
}

func (f *Facade) GetSpace(ctx context.Context, token, slug string) (*domain.Space, error) {
	if _, err := f.guard.EnsureSpaceReader(ctx, token, slug); err != nil {
		return nil, err
	}
	return f.spaces.Get(ctx, slug)
}

// ListSpaces returns every space the caller may read: all of them for
// admin, only those they're a member of otherwise.
func (f *Facade) ListSpaces(ctx context.Context, token string) ([]domain.Space, error) {
	user, err := f.guard.EnsureAuthenticated(ctx, token)
	if err != nil {
		return nil, err
	}
	all, err := f.spaces.List(ctx)
	if err != nil {
		return nil, err
	}
	if user.Username == domain.AdminUsername {
		return all, nil
	}
	visible := make([]domain.Space, 0, len(all))
	for _, s := range all {
		if s.IsMember(user.Username) {
			visible = append(visible, s)
		}
	}
	return visible, nil
}

func (f *Facade) SetFields(ctx context.Context, token, slug string, fields []domain.FieldDef) (*domain.Space, error) {
	if _, err := f.guard.EnsureAdmin(ctx, token); err != nil {
		return nil, err
	}
	return f.spaces.SetFields(ctx, slug, fields)
}

func (f *Facade) SetFilters(ctx context.Context, token, slug string, filters []domain.FilterDef) (*domain.Space, error) {
	if _, err := f.guard.EnsureAdmin(ctx, token); err != nil {
		return nil, err
	}
	return f.spaces.SetFilters(ctx, slug, filters)
}

func (f *Facade) SetTemplate(ctx context.Context, token, slug, name, body string) (*domain.Space, error) {
	if _, err := f.guard.EnsureAdmin(ctx, token); err != nil {
		return nil, err
	}
	return f.spaces.SetTemplate(ctx, slug, name, body)
}

func (f *Facade) AddMember(ctx context.Context, token, slug, username string) (*domain.Space, error) {
	if _, err := f.guard.EnsureAdmin(ctx, token); err != nil {
		return nil, err
	}
	return f.spaces.AddMember(ctx, slug, username)
}

func (f *Facade) RemoveMember(ctx context.Context, token, slug, username string) (*domain.Space, error) {
	if _, err := f.guard.EnsureAdmin(ctx, token); err != nil {
		return nil, err
	}
	return f.spaces.RemoveMember(ctx, slug, username)
}

func (f *Facade) SetMessengerSettings(ctx context.Context, token, slug string, settings *domain.MessengerSettings) (*domain.Space, error) {
	if _, err := f.guard.EnsureAdmin(ctx, token); err != nil {
		return nil, err
	}
	return f.spaces.SetMessengerSettings(ctx, slug, settings)
}

func (f *Facade) SetHiddenFieldsOnCreate(ctx context.Context, token, slug string, names []string) (*domain.Space, error) {
	if _, err := f.guard.EnsureAdmin(ctx, token); err != nil {
		return nil, err
	}
	return f.spaces.SetHiddenFieldsOnCreate(ctx, slug, names)
}

func (f *Facade) SetEditableFieldsOnComment(ctx context.Context, token, slug string, names []string) (*domain.Space, error) {
	if _, err := f.guard.EnsureAdmin(ctx, token); err != nil {
		return nil, err
	}
	return f.spaces.SetEditableFieldsOnComment(ctx, slug, names)
}

// DeleteSpace cascades: messenger tasks/mirrors, attachments (DB and
// blobs, which also drops their renditions), comments, notes, counters,
// then the space row itself (spec.md §3 "Lifecycles").
func (f *Facade) DeleteSpace(ctx context.Context, token, slug string) error {
	if _, err := f.guard.EnsureAdmin(ctx, token); err != nil {
		return err
	}
	if err := f.messenger.DeleteBySpace(ctx, slug); err != nil {
		return err
	}
	if err := f.attachments.DeleteBySpace(ctx, slug); err != nil {
		return err
	}
	if err := f.comments.DeleteBySpace(ctx, slug); err != nil {
		return err
	}
	if err := f.notes.DeleteBySpace(ctx, slug); err != nil {
		return err
	}
	if err := f.counters.DeleteBySpace(ctx, slug); err != nil {
		return apperr.Internalf(err, "delete counters for space %s", slug)
	}
	return f.spaces.Delete(ctx, slug)
}

// --- Notes ---

// NoteView is a Note plus its rendered (never persisted) title, the shape
// spec.md §4.3's get/list hand back to callers.
type NoteView struct {
	domain.Note
	Title string
}

func (f *Facade) noteView(space *domain.Space, n *domain.Note) NoteView {
	return NoteView{Note: *n, Title: template.NoteTitle(space, n)}
}

func (f *Facade) CreateNote(ctx context.Context, token, slug string, raw map[string]string, pending map[int64]*domain.PendingAttachment) (*NoteView, error) {
	user, err := f.guard.EnsureSpaceMember(ctx, token, slug)
	if err != nil {
		return nil, err
	}
	sp, err := f.spaces.Get(ctx, slug)
	if err != nil {
		return nil, err
	}
	n, err := f.notes.Create(ctx, sp, user.Username, raw, pending)
	if err != nil {
		return nil, err
	}
	view := f.noteView(sp, n)
	return &view, nil
}

func (f *Facade) GetNote(ctx context.Context, token, slug string, number int64) (*NoteView, error) {
	if _, err := f.guard.EnsureSpaceReader(ctx, token, slug); err != nil {
		return nil, err
	}
	sp, err := f.spaces.Get(ctx, slug)
	if err != nil {
		return nil, err
	}
	n, err := f.notes.Get(ctx, slug, number)
	if err != nil {
		return nil, err
	}
	view := f.noteView(sp, n)
	return &view, nil
}

// ListNotes compiles filterName plus an optional adhoc query string
// (spec.md §4.2's free-form overlay syntax) against space and returns one
// page of notes with rendered titles attached.
func (f *Facade) ListNotes(ctx context.Context, token, slug, filterName, adhocQuery string, offset, limit int) (domain.Page[NoteView], error) {
	user, err := f.guard.EnsureSpaceReader(ctx, token, slug)
	if err != nil {
		return domain.Page[NoteView]{}, err
	}
	sp, err := f.spaces.Get(ctx, slug)
	if err != nil {
		return domain.Page[NoteView]{}, err
	}

	var conditions []domain.Condition
	if adhocQuery != "" {
		raw, err := filter.ParseAdhocQuery(adhocQuery)
		if err != nil {
			return domain.Page[NoteView]{}, err
		}
		for _, rc := range raw {
			cond, err := filter.ResolveCondition(rc, sp, f.fields)
			if err != nil {
				return domain.Page[NoteView]{}, err
			}
			conditions = append(conditions, cond)
		}
	}

	page, err := f.notes.List(ctx, sp, user.Username, filterName, conditions, offset, limit)
	if err != nil {
		return domain.Page[NoteView]{}, err
	}
	items := make([]NoteView, len(page.Items))
	for i := range page.Items {
		items[i] = f.noteView(sp, &page.Items[i])
	}
	return domain.Page[NoteView]{Items: items, Total: page.Total, Limit: page.Limit, Offset: page.Offset}, nil
}

func (f *Facade) UpdateNoteFields(ctx context.Context, token, slug string, number int64, raw map[string]string, pending map[int64]*domain.PendingAttachment) (*NoteView, map[string]note.FieldChange, error) {
	user, err := f.guard.EnsureSpaceMember(ctx, token, slug)
	if err != nil {
		return nil, nil, err
	}
	sp, err := f.spaces.Get(ctx, slug)
	if err != nil {
		return nil, nil, err
	}
	n, changes, err := f.notes.UpdateFields(ctx, sp, number, user.Username, raw, pending, false)
	if err != nil {
		return nil, nil, err
	}
	view := f.noteView(sp, n)
	return &view, changes, nil
}

// --- Comments ---

func (f *Facade) CreateComment(ctx context.Context, token, slug string, noteNumber int64, content string, parentNumber *int64, rawFields map[string]string) (*domain.Comment, error) {
	user, err := f.guard.EnsureSpaceMember(ctx, token, slug)
	if err != nil {
		return nil, err
	}
	sp, err := f.spaces.Get(ctx, slug)
	if err != nil {
		return nil, err
	}
	return f.comments.Create(ctx, sp, noteNumber, user.Username, content, parentNumber, rawFields)
}

func (f *Facade) UpdateComment(ctx context.Context, token, slug string, noteNumber, number int64, content string) (*domain.Comment, error) {
	if _, _, err := f.guard.EnsureCommentAuthor(ctx, token, slug, noteNumber, number); err != nil {
		return nil, err
	}
	return f.comments.Update(ctx, slug, noteNumber, number, content)
}

func (f *Facade) DeleteComment(ctx context.Context, token, slug string, noteNumber, number int64) error {
	if _, _, err := f.guard.EnsureCommentAuthor(ctx, token, slug, noteNumber, number); err != nil {
		return err
	}
	return f.comments.Delete(ctx, slug, noteNumber, number)
}

func (f *Facade) ListComments(ctx context.Context, token, slug string, noteNumber int64, offset, limit int) (domain.Page[domain.Comment], error) {
	if _, err := f.guard.EnsureSpaceReader(ctx, token, slug); err != nil {
		return domain.Page[domain.Comment]{}, err
	}
	return f.comments.List(ctx, slug, noteNumber, offset, limit)
}

// --- Attachments ---

func (f *Facade) UploadPendingAttachment(ctx context.Context, token, filename, mimeType string, data []byte) (*domain.PendingAttachment, error) {
	user, err := f.guard.EnsureAuthenticated(ctx, token)
	if err != nil {
		return nil, err
	}
	return f.attachments.UploadPending(ctx, user.Username, filename, mimeType, data)
}

func (f *Facade) UploadDirectAttachment(ctx context.Context, token, slug string, noteNumber *int64, filename, mimeType string, data []byte) (*domain.Attachment, error) {
	user, err := f.guard.EnsureSpaceMember(ctx, token, slug)
	if err != nil {
		return nil, err
	}
	sp, err := f.spaces.Get(ctx, slug)
	if err != nil {
		return nil, err
	}
	return f.attachments.UploadDirect(ctx, sp, noteNumber, user.Username, filename, mimeType, data)
}

// GetPendingAttachmentBlob returns a pending upload's bytes; only its
// uploader may read it (spec.md §4.5 "Ownership").
func (f *Facade) GetPendingAttachmentBlob(ctx context.Context, token string, number int64) (*domain.PendingAttachment, []byte, error) {
	_, p, err := f.guard.EnsurePendingAttachmentOwner(ctx, token, number)
	if err != nil {
		return nil, nil, err
	}
	data, err := f.attachments.PendingBlob(p)
	if err != nil {
		return nil, nil, err
	}
	return p, data, nil
}

// GetAttachmentBlob returns a bound attachment's bytes; any space reader
// may read it (spec.md §4.5 "Ownership").
func (f *Facade) GetAttachmentBlob(ctx context.Context, token, slug string, noteNumber *int64, number int64) (*domain.Attachment, []byte, error) {
	if _, err := f.guard.EnsureSpaceReader(ctx, token, slug); err != nil {
		return nil, nil, err
	}
	a, err := f.attachments.Get(ctx, slug, noteNumber, number)
	if err != nil {
		return nil, nil, err
	}
	data, err := f.attachments.Blob(a)
	if err != nil {
		return nil, nil, err
	}
	return a, data, nil
}

// GetAttachmentRendition returns a webp rendition of a bound image
// attachment. maxWidth == nil reads the precomputed default-width
// rendition C8's background worker already produced; a non-nil maxWidth
// is an on-demand conversion instead (spec.md §4.5 "On-demand conversion
// ... via a webp output format with optional max_width option").
func (f *Facade) GetAttachmentRendition(ctx context.Context, token, slug string, noteNumber *int64, number int64, maxWidth *int) ([]byte, error) {
	if _, err := f.guard.EnsureSpaceReader(ctx, token, slug); err != nil {
		return nil, err
	}
	if maxWidth == nil {
		scope := domain.SpaceScope
		if noteNumber != nil {
			scope = strconv.FormatInt(*noteNumber, 10)
		}
		return f.renditions.ReadRendition(slug, scope, number)
	}
	a, err := f.attachments.Get(ctx, slug, noteNumber, number)
	if err != nil {
		return nil, err
	}
	data, err := f.attachments.Blob(a)
	if err != nil {
		return nil, err
	}
	return f.convert(data, maxWidth)
}

// --- Export/Import ---

func (f *Facade) ExportSpace(ctx context.Context, token, slug string, includeData bool) (*export.Bundle, error) {
	if _, err := f.guard.EnsureAdmin(ctx, token); err != nil {
		return nil, err
	}
	return f.export.Export(ctx, slug, includeData)
}

func (f *Facade) ImportSpace(ctx context.Context, token string, bundle *export.Bundle) (*domain.Space, error) {
	if _, err := f.guard.EnsureAdmin(ctx, token); err != nil {
		return nil, err
	}
	return f.export.Import(ctx, bundle)
}

