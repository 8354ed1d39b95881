package model

import (
	"errors"
	"fmt"
	"time"
)

// Status: состояние артефакта в жизненном цикле.
type Status string

const (
	StatusPending    Status = "pending"
	StatusDownloaded Status = "downloaded"
	StatusExpired    Status = "expired"
	StatusDestroyed  Status = "destroyed"
)

// IsTerminal сообщает, является ли состояние конечным (expired/destroyed).
func (s Status) IsTerminal() bool {
	return s == StatusExpired || s == StatusDestroyed
}

// TerminalReason: почему артефакт перешёл в конечное состояние.
type TerminalReason string

const (
	ReasonNone               TerminalReason = ""
	ReasonAttemptsExhausted  TerminalReason = "attempts_exhausted"
	ReasonDownloadsExhausted TerminalReason = "downloads_exhausted"
	ReasonExpired            TerminalReason = "expired"
	ReasonRevoked            TerminalReason = "revoked"
)

// Значения по умолчанию для новых артефактов.
const (
	DefaultAttemptLimit  = 3
	DefaultDownloadLimit = 1
	DefaultTTL           = 24 * time.Hour
)

// ErrInvalidArtifact возвращается Validate при нарушении инвариантов создания.
var ErrInvalidArtifact = errors.New("invalid artifact")

// Artifact: серверная модель одного переданного файла: метаданные и счётчики жизненного цикла.
// Статусные поля меняет только движок жизненного цикла.
type Artifact struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	OwnerID     int64  `gorm:"not null;index" json:"owner_id"`     // ссылка на users.id отправителя
	RecipientID int64  `gorm:"not null;index" json:"recipient_id"` // ссылка на users.id получателя

	// StorageLocator: непрозрачный ключ в блоб-хранилище, никогда не строится из DisplayName.
	StorageLocator string `gorm:"not null" json:"-"`
	DisplayName    string `gorm:"not null" json:"display_name"`
	ByteSize       int64  `gorm:"not null" json:"byte_size"`
	ContentType    string `json:"content_type"`
	Digest         string `json:"-"` // blake3 открытого текста

	// Secret никогда не отдаётся в JSON и затирается при переходе в конечное состояние.
	Secret string `json:"-"`

	AttemptCount  int `gorm:"not null;default:0" json:"attempt_count"`
	AttemptLimit  int `gorm:"not null" json:"attempt_limit"`
	DownloadCount int `gorm:"not null;default:0" json:"download_count"`
	DownloadLimit int `gorm:"not null" json:"download_limit"`

	Status         Status         `gorm:"type:varchar(16);not null;index" json:"status"`
	TerminalReason TerminalReason `gorm:"type:varchar(32)" json:"terminal_reason,omitempty"`
	ExpiresAt      time.Time      `gorm:"not null;index" json:"expires_at"`
	TerminatedAt   *time.Time     `gorm:"index" json:"terminated_at,omitempty"`
	BlobPurged     bool           `gorm:"not null;default:false;index" json:"-"`

	Version int64 `gorm:"not null;default:1" json:"version"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal: артефакт в конечном состоянии.
func (a *Artifact) IsTerminal() bool {
	return a.Status.IsTerminal()
}

// IsExpired: дедлайн пройден (строго после ExpiresAt).
func (a *Artifact) IsExpired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// AttemptsRemaining: сколько ещё неверных попыток допустимо до уничтожения.
func (a *Artifact) AttemptsRemaining() int {
	if a.IsTerminal() {
		return 0
	}
	if r := a.AttemptLimit - a.AttemptCount; r > 0 {
		return r
	}
	return 0
}

// DownloadsRemaining: сколько ещё успешных скачиваний доступно.
func (a *Artifact) DownloadsRemaining() int {
	if a.IsTerminal() {
		return 0
	}
	if r := a.DownloadLimit - a.DownloadCount; r > 0 {
		return r
	}
	return 0
}

// Validate проверяет инварианты только что созданной записи.
func (a *Artifact) Validate() error {
	switch {
	case a.ID == "":
		return fmt.Errorf("%w: empty id", ErrInvalidArtifact)
	case a.OwnerID == 0 || a.RecipientID == 0:
		return fmt.Errorf("%w: owner and recipient are required", ErrInvalidArtifact)
	case a.StorageLocator == "":
		return fmt.Errorf("%w: empty storage locator", ErrInvalidArtifact)
	case a.Secret == "":
		return fmt.Errorf("%w: empty secret", ErrInvalidArtifact)
	case a.AttemptLimit < 1:
		return fmt.Errorf("%w: attempt limit must be >= 1, got %d", ErrInvalidArtifact, a.AttemptLimit)
	case a.DownloadLimit < 1:
		return fmt.Errorf("%w: download limit must be >= 1, got %d", ErrInvalidArtifact, a.DownloadLimit)
	case a.AttemptCount < 0 || a.AttemptCount > a.AttemptLimit:
		return fmt.Errorf("%w: attempt count %d out of range", ErrInvalidArtifact, a.AttemptCount)
	case a.DownloadCount < 0 || a.DownloadCount > a.DownloadLimit:
		return fmt.Errorf("%w: download count %d out of range", ErrInvalidArtifact, a.DownloadCount)
	case a.ByteSize < 0:
		return fmt.Errorf("%w: negative size", ErrInvalidArtifact)
	case a.ExpiresAt.IsZero():
		return fmt.Errorf("%w: expires_at is required", ErrInvalidArtifact)
	case !a.CreatedAt.IsZero() && !a.ExpiresAt.After(a.CreatedAt):
		return fmt.Errorf("%w: expires_at must be after created_at", ErrInvalidArtifact)
	}
	switch a.Status {
	case StatusPending, StatusDownloaded, StatusExpired, StatusDestroyed:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidArtifact, a.Status)
	}
	return nil
}
