package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStore_WriteOpenDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	loc := NewLocator()
	n, err := s.Write(ctx, loc, strings.NewReader("encrypted bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(15), n)

	rc, err := s.Open(ctx, loc)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "encrypted bytes", string(data))

	// временных файлов не осталось
	entries, err := os.ReadDir(filepath.Join(dir, loc[:2]))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, s.Delete(ctx, loc))
	_, err = s.Open(ctx, loc)
	assert.ErrorIs(t, err, ErrNotFound)

	// повторное удаление — не ошибка
	assert.NoError(t, s.Delete(ctx, loc))
}

func TestFSStore_RejectsUntrustedLocator(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, loc := range []string{"", "../../etc/passwd", "report.pdf", "ab/cd"} {
		_, err := s.Write(ctx, loc, strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrBadLocator, loc)
		_, err = s.Open(ctx, loc)
		assert.ErrorIs(t, err, ErrBadLocator, loc)
		assert.ErrorIs(t, s.Delete(ctx, loc), ErrBadLocator, loc)
	}
}

type brokenReader struct{ n int }

func (b *brokenReader) Read(p []byte) (int, error) {
	if b.n > 0 {
		b.n--
		return copy(p, "abc"), nil
	}
	return 0, errors.New("connection reset")
}

func TestFSStore_FailedWriteLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	loc := NewLocator()
	_, err = s.Write(ctx, loc, &brokenReader{n: 2})
	require.Error(t, err)

	_, err = s.Open(ctx, loc)
	assert.ErrorIs(t, err, ErrNotFound)
	entries, _ := os.ReadDir(filepath.Join(dir, loc[:2]))
	assert.Empty(t, entries)
}

func TestFSStore_CancelledContext(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Write(ctx, NewLocator(), bytes.NewReader(make([]byte, 1024)))
	assert.ErrorIs(t, err, context.Canceled)
}
