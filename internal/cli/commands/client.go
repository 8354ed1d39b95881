package commands

import (
	"errors"
	"net/url"
	"strings"
	"time"

	clirepo "SecureDrop/internal/cli/repo"
	fsrepo "SecureDrop/internal/cli/repo/fs"
	"SecureDrop/internal/config"
)

// authStore хранит токен и логин между запусками CLI.
var authStore clirepo.AuthStore = fsrepo.AuthFSStore{}

var errNotLoggedIn = errors.New("not logged in: run login or register first")

func endpoint(cfg *config.Config, path string) string {
	return strings.TrimRight(cfg.ServerURL, "/") + path
}

func transferURL(cfg *config.Config, id string, suffix string) string {
	return endpoint(cfg, "/api/transfers/"+url.PathEscape(id)+suffix)
}

func requireToken() (string, error) {
	token, err := authStore.Load()
	if err != nil {
		return "", errNotLoggedIn
	}
	return token, nil
}

// transferView: метаданные передачи в ответах сервера.
type transferView struct {
	ID                 string     `json:"id"`
	OwnerID            int64      `json:"owner_id"`
	RecipientID        int64      `json:"recipient_id"`
	DisplayName        string     `json:"display_name"`
	ByteSize           int64      `json:"byte_size"`
	ContentType        string     `json:"content_type"`
	AttemptCount       int        `json:"attempt_count"`
	AttemptLimit       int        `json:"attempt_limit"`
	DownloadCount      int        `json:"download_count"`
	DownloadLimit      int        `json:"download_limit"`
	Status             string     `json:"status"`
	TerminalReason     string     `json:"terminal_reason"`
	ExpiresAt          time.Time  `json:"expires_at"`
	TerminatedAt       *time.Time `json:"terminated_at"`
	CreatedAt          time.Time  `json:"created_at"`
	AttemptsRemaining  int        `json:"attempts_remaining"`
	DownloadsRemaining int        `json:"downloads_remaining"`
}

func (v transferView) terminal() bool {
	return v.Status == "expired" || v.Status == "destroyed"
}
