package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FSStore: блобы в локальной директории: <dir>/<первые 2 символа>/<локатор>.
type FSStore struct {
	dir string
}

// NewFSStore создаёт FSStore и директорию, если её нет.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) path(locator string) string {
	return filepath.Join(s.dir, locator[:2], locator)
}

// Write: temp файл → запись → fsync → атомарный rename. При ошибке temp файл удаляется.
func (s *FSStore) Write(ctx context.Context, locator string, r io.Reader) (int64, error) {
	if err := checkLocator(locator); err != nil {
		return 0, err
	}
	full := s.path(locator)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return 0, fmt.Errorf("create shard dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), locator+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	n, err := io.Copy(tmp, ctxReader{ctx: ctx, r: r})
	if err != nil {
		cleanup()
		return 0, fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return 0, fmt.Errorf("fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, full); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("rename blob: %w", err)
	}
	return n, nil
}

func (s *FSStore) Open(_ context.Context, locator string) (io.ReadCloser, error) {
	if err := checkLocator(locator); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(locator))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

func (s *FSStore) Delete(_ context.Context, locator string) error {
	if err := checkLocator(locator); err != nil {
		return err
	}
	if err := os.Remove(s.path(locator)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// ctxReader прерывает копирование при отмене контекста.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
