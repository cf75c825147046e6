package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/echonote/internal/utils"
)

func newTestStore(t *testing.T) *DiskStore {
	t.Helper()
	s, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestDiskStore_SaveOpenRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.Save(ctx, "u1", "a.webm", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	rc, size, err := s.Open(ctx, "u1", "a.webm")
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, int64(5), size)

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestDiskStore_UsersAreIsolated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, "u1", "a.webm", strings.NewReader("u1 data"))
	require.NoError(t, err)

	_, _, err = s.Open(ctx, "u2", "a.webm")
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestDiskStore_RejectsPathEscapes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"../escape", "a/b", `a\b`, ".", ".."} {
		_, err := s.Save(ctx, "u1", name, strings.NewReader("x"))
		assert.Error(t, err, "name=%q", name)
	}

	_, err := s.Save(ctx, "../u1", "a.webm", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestDiskStore_OpenMissingFile(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.Open(context.Background(), "u1", "missing.webm")
	assert.ErrorIs(t, err, utils.ErrNotFound)

	err = s.Remove(context.Background(), "u1", "missing.webm")
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestDiskStore_TempPromote(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	w, tempName, err := s.CreateTemp(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tempName, ".tmp-"))

	_, err = w.Write([]byte("part1"))
	require.NoError(t, err)
	_, err = w.Write([]byte("part2"))
	require.NoError(t, err)

	// the final name is invisible until promotion
	exists, err := s.Exists(ctx, "u1", "final.webm")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, w.Close())
	require.NoError(t, s.Promote(ctx, "u1", tempName, "final.webm"))

	rc, _, err := s.Open(ctx, "u1", "final.webm")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "part1part2", string(got))

	// the temp object is gone after promotion
	exists, err = s.Exists(ctx, "u1", tempName)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDiskStore_Discard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	w, tempName, err := s.CreateTemp(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NoError(t, s.Discard(ctx, "u1", tempName))
	// discarding twice is fine
	require.NoError(t, s.Discard(ctx, "u1", tempName))
}

func TestDiskStore_SaveOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, "u1", "a.webm", strings.NewReader("old content"))
	require.NoError(t, err)
	_, err = s.Save(ctx, "u1", "a.webm", strings.NewReader("new"))
	require.NoError(t, err)

	p := filepath.Join("u1", "a.webm")
	b, err := os.ReadFile(filepath.Join(s.base, p))
	require.NoError(t, err)
	assert.Equal(t, "new", string(b))
}
