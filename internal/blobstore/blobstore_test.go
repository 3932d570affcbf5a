package blobstore

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundtrip(t *testing.T) {
	t.Parallel()
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Write(PendingPath(1), []byte("hello")))
	data, err := s.Read(PendingPath(1))
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)
}

func TestOpenReturnsReadCloser(t *testing.T) {
	t.Parallel()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Write(PendingPath(1), []byte("hello")))

	r, err := s.Open(PendingPath(1))
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)
}

func TestMoveRelocatesBlob(t *testing.T) {
	t.Parallel()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Write(PendingPath(1), []byte("hello")))

	bound := BoundPath("tasks", "1", 7)
	require.NoError(t, s.Move(PendingPath(1), bound))

	_, err = s.Read(PendingPath(1))
	require.Error(t, err)
	data, err := s.Read(bound)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)
}

func TestDeleteIsIdempotent(t *testing.T) {
	t.Parallel()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Write(PendingPath(1), []byte("x")))
	require.NoError(t, s.Delete(PendingPath(1)))
	require.NoError(t, s.Delete(PendingPath(1)))
}

func TestResolveRejectsPathEscapingBase(t *testing.T) {
	t.Parallel()
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	err = s.Write("../../etc/passwd", []byte("x"))
	require.Error(t, err)

	_, err = s.Read("../secret")
	require.Error(t, err)
}
