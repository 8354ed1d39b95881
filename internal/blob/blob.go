// Package blob: хранилище зашифрованных байтов, адресуемых непрозрачным локатором.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

var (
	// ErrNotFound: блоба по локатору нет.
	ErrNotFound = errors.New("blob not found")
	// ErrBadLocator: локатор не сгенерирован сервером.
	ErrBadLocator = errors.New("invalid blob locator")
)

// Store: контракт блоб-хранилища.
type Store interface {
	// Write сохраняет поток целиком; частично записанный блоб не виден.
	Write(ctx context.Context, locator string, r io.Reader) (int64, error)
	// Open открывает блоб на чтение, ErrNotFound если его нет. Вызывающий закрывает поток.
	Open(ctx context.Context, locator string) (io.ReadCloser, error)
	// Delete удаляет блоб; отсутствие блоба не ошибка.
	Delete(ctx context.Context, locator string) error
}

// NewLocator генерирует новый локатор. Имя файла клиента в адресации не участвует.
func NewLocator() string {
	return uuid.NewString()
}

func checkLocator(locator string) error {
	if _, err := uuid.Parse(locator); err != nil || len(locator) != 36 {
		return fmt.Errorf("%w: %q", ErrBadLocator, locator)
	}
	return nil
}
