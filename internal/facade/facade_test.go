package facade

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spacenote/spacenote/internal/access"
	"github.com/spacenote/spacenote/internal/apperr"
	"github.com/spacenote/spacenote/internal/attachment"
	"github.com/spacenote/spacenote/internal/blobstore"
	"github.com/spacenote/spacenote/internal/comment"
	"github.com/spacenote/spacenote/internal/counter"
	"github.com/spacenote/spacenote/internal/docstore"
	"github.com/spacenote/spacenote/internal/domain"
	"github.com/spacenote/spacenote/internal/export"
	"github.com/spacenote/spacenote/internal/field"
	"github.com/spacenote/spacenote/internal/identity"
	"github.com/spacenote/spacenote/internal/image"
	"github.com/spacenote/spacenote/internal/messenger"
	"github.com/spacenote/spacenote/internal/note"
	"github.com/spacenote/spacenote/internal/space"
	"github.com/spacenote/spacenote/internal/spacecache"
)

type harness struct {
	facade *Facade
	idp    *identity.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := docstore.NewMock()
	blobs, err := blobstore.Open(t.TempDir())
	require.NoError(t, err)

	fixed := func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }

	fields := field.NewRegistry()
	counters := counter.New(store)
	cache := spacecache.NewSpaces()
	t.Cleanup(cache.Stop)
	spaces := space.New(store, cache, fields)
	spaces.SetNow(fixed)

	msgr := messenger.New(store, counters)
	msgr.SetNow(fixed)

	extractor := image.NewExtractor()
	pool := image.NewPool(blobs, 1)
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })

	attachments := attachment.New(store, counters, blobs, extractor, pool)
	attachments.SetNow(fixed)

	notes := note.New(store, counters, fields, attachments, msgr)
	notes.SetNow(fixed)

	comments := comment.New(store, counters, notes, msgr)

	idp := identity.New(store)
	idp.SetNow(fixed)

	guard := access.New(idp, idp, spaces, comments, attachments)

	exportSvc := export.New(store, counters, idp)
	exportSvc.SetNow(fixed)

	f := New(guard, idp, spaces, notes, comments, attachments, msgr, counters, exportSvc, fields, pool, image.Convert)
	return &harness{facade: f, idp: idp}
}

func (h *harness) login(t *testing.T, username, password string) string {
	t.Helper()
	ctx := context.Background()
	_, err := h.idp.CreateUser(ctx, username, password)
	require.NoError(t, err)
	session, err := h.idp.Authenticate(ctx, username, password)
	require.NoError(t, err)
	return session.AuthToken
}

func TestCreateSpaceRequiresAdmin(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	token := h.login(t, "alice", "hunter2")

	_, err := h.facade.CreateSpace(context.Background(), token, "proj", "Project", "")
	require.Error(t, err)
	require.Equal(t, apperr.AccessDenied, apperr.KindOf(err))
}

func TestAdminCreatesSpaceAsMember(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	token := h.login(t, domain.AdminUsername, "hunter2")

	sp, err := h.facade.CreateSpace(context.Background(), token, "proj", "Project", "")
	require.NoError(t, err)
	require.True(t, sp.IsMember(domain.AdminUsername))
}

func TestNonMemberCannotCreateNote(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	adminToken := h.login(t, domain.AdminUsername, "hunter2")
	_, err := h.facade.CreateSpace(ctx, adminToken, "proj", "Project", "")
	require.NoError(t, err)
	_, err = h.facade.SetFields(ctx, adminToken, "proj", []domain.FieldDef{
		{Name: "title", Type: domain.FieldString, Required: true, Options: domain.FieldOptions{String: &domain.StringOptions{Kind: domain.StringLine}}},
	})
	require.NoError(t, err)

	carolToken := h.login(t, "carol", "pw")
	_, err = h.facade.CreateNote(ctx, carolToken, "proj", map[string]string{"title": "hi"}, nil)
	require.Error(t, err)
	require.Equal(t, apperr.AccessDenied, apperr.KindOf(err))
}

func TestMemberCreatesAndReadsNoteWithTitle(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	adminToken := h.login(t, domain.AdminUsername, "hunter2")
	_, err := h.facade.CreateSpace(ctx, adminToken, "proj", "Project", "")
	require.NoError(t, err)
	_, err = h.facade.SetFields(ctx, adminToken, "proj", []domain.FieldDef{
		{Name: "title", Type: domain.FieldString, Required: true, Options: domain.FieldOptions{String: &domain.StringOptions{Kind: domain.StringLine}}},
	})
	require.NoError(t, err)

	bobToken := h.login(t, "bob", "pw")
	_, err = h.facade.AddMember(ctx, adminToken, "proj", "bob")
	require.NoError(t, err)

	view, err := h.facade.CreateNote(ctx, bobToken, "proj", map[string]string{"title": "hello"}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), view.Number)
	require.Equal(t, "Note #1", view.Title)

	got, err := h.facade.GetNote(ctx, bobToken, "proj", 1)
	require.NoError(t, err)
	require.Equal(t, "bob", got.Author)
}

func TestListNotesAppliesAdhocFilter(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	adminToken := h.login(t, domain.AdminUsername, "hunter2")
	_, err := h.facade.CreateSpace(ctx, adminToken, "proj", "Project", "")
	require.NoError(t, err)
	_, err = h.facade.SetFields(ctx, adminToken, "proj", []domain.FieldDef{
		{Name: "priority", Type: domain.FieldNumeric, Options: domain.FieldOptions{Numeric: &domain.NumericOptions{Kind: domain.NumericInt}}},
	})
	require.NoError(t, err)
	for _, p := range []string{"1", "2", "3"} {
		_, err = h.facade.CreateNote(ctx, adminToken, "proj", map[string]string{"priority": p}, nil)
		require.NoError(t, err)
	}

	page, err := h.facade.ListNotes(ctx, adminToken, "proj", domain.AllFilterName, "note.fields.priority:gte:2", 0, 50)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
}

func TestCommentAuthorCanUpdateOthersCannot(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	adminToken := h.login(t, domain.AdminUsername, "hunter2")
	_, err := h.facade.CreateSpace(ctx, adminToken, "proj", "Project", "")
	require.NoError(t, err)
	view, err := h.facade.CreateNote(ctx, adminToken, "proj", map[string]string{}, nil)
	require.NoError(t, err)

	bobToken := h.login(t, "bob", "pw")
	_, err = h.facade.AddMember(ctx, adminToken, "proj", "bob")
	require.NoError(t, err)

	c, err := h.facade.CreateComment(ctx, bobToken, "proj", view.Number, "hi", nil, nil)
	require.NoError(t, err)

	_, err = h.facade.UpdateComment(ctx, adminToken, "proj", view.Number, c.Number, "edited by admin")
	require.Error(t, err)
	require.Equal(t, apperr.AccessDenied, apperr.KindOf(err))

	updated, err := h.facade.UpdateComment(ctx, bobToken, "proj", view.Number, c.Number, "edited by bob")
	require.NoError(t, err)
	require.Equal(t, "edited by bob", updated.Content)
}

func TestPendingAttachmentOwnershipEnforced(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	aliceToken := h.login(t, "alice", "pw")
	bobToken := h.login(t, "bob", "pw")

	p, err := h.facade.UploadPendingAttachment(ctx, aliceToken, "photo.png", "image/png", []byte("fake-png-bytes"))
	require.NoError(t, err)

	_, _, err = h.facade.GetPendingAttachmentBlob(ctx, bobToken, p.Number)
	require.Error(t, err)
	require.Equal(t, apperr.AccessDenied, apperr.KindOf(err))

	_, data, err := h.facade.GetPendingAttachmentBlob(ctx, aliceToken, p.Number)
	require.NoError(t, err)
	require.Equal(t, []byte("fake-png-bytes"), data)
}

func TestDeleteSpaceCascadesNotes(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	adminToken := h.login(t, domain.AdminUsername, "hunter2")
	_, err := h.facade.CreateSpace(ctx, adminToken, "proj", "Project", "")
	require.NoError(t, err)
	_, err = h.facade.CreateNote(ctx, adminToken, "proj", map[string]string{}, nil)
	require.NoError(t, err)

	require.NoError(t, h.facade.DeleteSpace(ctx, adminToken, "proj"))

	_, err = h.facade.GetSpace(ctx, adminToken, "proj")
	require.Error(t, err)
	require.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestExportFailsAfterSpaceDeleted(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	adminToken := h.login(t, domain.AdminUsername, "hunter2")
	_, err := h.facade.CreateSpace(ctx, adminToken, "proj", "Project", "")
	require.NoError(t, err)
	_, err = h.facade.CreateNote(ctx, adminToken, "proj", map[string]string{}, nil)
	require.NoError(t, err)
	require.NoError(t, h.facade.DeleteSpace(ctx, adminToken, "proj"))

	bundle, err := h.facade.ExportSpace(ctx, adminToken, "proj", true)
	require.Error(t, err)
	require.Nil(t, bundle)
}
