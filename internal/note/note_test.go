package note

import (
	"context"
	"testing"
	"time"

	"github.com/spacenote/spacenote/internal/counter"
	"github.com/spacenote/spacenote/internal/docstore"
	"github.com/spacenote/spacenote/internal/domain"
	"github.com/spacenote/spacenote/internal/field"
	"github.com/spacenote/spacenote/internal/testutil"
	"github.com/stretchr/testify/require"
)

func testSpace() *domain.Space {
	return testutil.Space(testutil.WithFields(
		testutil.StringField("title", true),
		testutil.NumericIntField("priority"),
	))
}

func newService(t *testing.T) (*Service, docstore.Store) {
	t.Helper()
	store := docstore.NewMock()
	svc := New(store, counter.New(store), field.NewRegistry(), nil, nil)
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	return svc, store
}

func TestCreateAssignsSequentialNumbers(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t)
	space := testSpace()
	ctx := context.Background()

	n1, err := svc.Create(ctx, space, "alice", map[string]string{"title": "first"}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), n1.Number)

	n2, err := svc.Create(ctx, space, "alice", map[string]string{"title": "second"}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), n2.Number)
}

func TestCreateRequiresRequiredField(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t)
	space := testSpace()
	_, err := svc.Create(context.Background(), space, "alice", map[string]string{}, nil)
	require.Error(t, err)
}

func TestGetReturnsNotFoundForMissingNote(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t)
	_, err := svc.Get(context.Background(), "tasks", 99)
	require.Error(t, err)
}

func TestUpdateFieldsComputesChangeMapAndBumpsActivity(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t)
	space := testSpace()
	ctx := context.Background()

	n, err := svc.Create(ctx, space, "alice", map[string]string{"title": "first", "priority": "1"}, nil)
	require.NoError(t, err)

	later := svc.now().Add(time.Hour)
	svc.now = func() time.Time { return later }

	updated, changes, err := svc.UpdateFields(ctx, space, n.Number, "alice", map[string]string{"priority": "5"}, nil, false)
	require.NoError(t, err)
	require.Equal(t, int64(5), updated.Fields["priority"].Int)
	require.Equal(t, int64(1), changes["priority"].Old.Int)
	require.Equal(t, int64(5), changes["priority"].New.Int)
	require.NotNil(t, updated.EditedAt)
	require.Equal(t, later, updated.ActivityAt)
}

func TestUpdateFieldsRejectsUnknownField(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t)
	space := testSpace()
	ctx := context.Background()
	n, err := svc.Create(ctx, space, "alice", map[string]string{"title": "first"}, nil)
	require.NoError(t, err)

	_, _, err = svc.UpdateFields(ctx, space, n.Number, "alice", map[string]string{"bogus": "x"}, nil, false)
	require.Error(t, err)
}

func TestBumpActivitySetsCommentedAt(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t)
	space := testSpace()
	ctx := context.Background()
	n, err := svc.Create(ctx, space, "alice", map[string]string{"title": "first"}, nil)
	require.NoError(t, err)

	require.NoError(t, svc.BumpActivity(ctx, space.Slug, n.Number, true))

	got, err := svc.Get(ctx, space.Slug, n.Number)
	require.NoError(t, err)
	require.NotNil(t, got.CommentedAt)
}

func TestListFiltersByCustomField(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t)
	space := testSpace()
	ctx := context.Background()

	_, err := svc.Create(ctx, space, "alice", map[string]string{"title": "low", "priority": "1"}, nil)
	require.NoError(t, err)
	_, err = svc.Create(ctx, space, "alice", map[string]string{"title": "high", "priority": "9"}, nil)
	require.NoError(t, err)

	page, err := svc.List(ctx, space, "alice", domain.AllFilterName,
		[]domain.Condition{{Field: domain.FieldRef{FieldName: "priority"}, Op: domain.OpGte, Value: ptrTV(domain.IntValue(5))}},
		0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	require.Equal(t, "high", page.Items[0].Fields["title"].Str)
	require.Equal(t, domain.DefaultLimit, page.Limit)
}

func TestDeleteBySpaceRemovesAllNotes(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t)
	space := testSpace()
	ctx := context.Background()
	_, err := svc.Create(ctx, space, "alice", map[string]string{"title": "a"}, nil)
	require.NoError(t, err)
	_, err = svc.Create(ctx, space, "alice", map[string]string{"title": "b"}, nil)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteBySpace(ctx, space.Slug))

	page, err := svc.List(ctx, space, "alice", domain.AllFilterName, nil, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 0, page.Total)
}

func ptrTV(v domain.TypedValue) *domain.TypedValue { return &v }
