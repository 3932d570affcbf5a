package counter

import (
	"context"
	"testing"

	"github.com/spacenote/spacenote/internal/docstore"
	"github.com/spacenote/spacenote/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestNextStartsAtOneAndIncrements(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := New(docstore.NewMock())
	key := domain.CounterKey{SpaceSlug: "demo", Kind: domain.CounterNote}

	n1, err := c.Next(ctx, key)
	require.NoError(t, err)
	require.Equal(t, int64(1), n1)

	n2, err := c.Next(ctx, key)
	require.NoError(t, err)
	require.Equal(t, int64(2), n2)
}

func TestNextIsPerNoteForComments(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := New(docstore.NewMock())

	n1, err := c.Next(ctx, domain.CounterKey{SpaceSlug: "demo", Kind: domain.CounterComment, NoteNumber: 1})
	require.NoError(t, err)
	require.Equal(t, int64(1), n1)

	n2, err := c.Next(ctx, domain.CounterKey{SpaceSlug: "demo", Kind: domain.CounterComment, NoteNumber: 2})
	require.NoError(t, err)
	require.Equal(t, int64(1), n2, "counters for different notes are independent")
}

func TestSetIfHigherNeverLowers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := New(docstore.NewMock())
	key := domain.CounterKey{SpaceSlug: "demo", Kind: domain.CounterNote}

	require.NoError(t, c.SetIfHigher(ctx, key, 10))
	cur, err := c.Current(ctx, key)
	require.NoError(t, err)
	require.Equal(t, int64(10), cur)

	require.NoError(t, c.SetIfHigher(ctx, key, 5))
	cur, err = c.Current(ctx, key)
	require.NoError(t, err)
	require.Equal(t, int64(10), cur)

	next, err := c.Next(ctx, key)
	require.NoError(t, err)
	require.Equal(t, int64(11), next)
}
