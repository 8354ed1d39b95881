package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: артефакт с таким id не существует.
	ErrNotFound = errors.New("artifact not found")
	// ErrDecryptionFailure: секрет верный, но блоб не расшифровывается. Попытка не расходуется.
	ErrDecryptionFailure = errors.New("decryption failure")
	// ErrConflict: гонка не разрешилась за отведённые повторы; повторить операцию целиком.
	ErrConflict = errors.New("concurrent update conflict")
	ErrTooLarge = errors.New("payload too large")

	ErrRecipientNotFound = errors.New("recipient not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidRequest    = errors.New("invalid request")

	ErrLoginTaken         = errors.New("login already taken")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// TerminalStateError: артефакт истёк или уничтожен, попытка не засчитана.
type TerminalStateError struct {
	// Reason: "expired" или "destroyed".
	Reason string
}

func (e *TerminalStateError) Error() string {
	return "artifact " + e.Reason
}

// SecretMismatchError: неверный секрет, попытка засчитана.
type SecretMismatchError struct {
	AttemptsRemaining int
	// Destroyed: эта попытка была последней и артефакт уничтожен.
	Destroyed bool
}

func (e *SecretMismatchError) Error() string {
	if e.Destroyed {
		return "secret mismatch, artifact destroyed"
	}
	return fmt.Sprintf("secret mismatch, %d attempts remaining", e.AttemptsRemaining)
}

// StorageError: сбой хранилища записей или блобов; в лимиты не засчитывается.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage failure: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
