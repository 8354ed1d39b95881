// Package notify доставляет получателю ключ от переданного файла.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/skip2/go-qrcode"
)

// ErrDelivery: канал доставки недоступен или отклонил сообщение.
var ErrDelivery = errors.New("key delivery failed")

const qrSize = 256

// KeyDelivery: сообщение получателю: где забрать файл и чем его открыть.
type KeyDelivery struct {
	RecipientAddress string
	ArtifactID       string
	DisplayName      string
	Secret           string
	DownloadURL      string
	ExpiresAt        time.Time
	// QRCode: PNG со ссылкой на скачивание.
	QRCode []byte
}

// Notifier: внешний канал доставки ключа.
type Notifier interface {
	Deliver(ctx context.Context, d KeyDelivery) error
	Close() error
}

// NewKeyDelivery собирает сообщение и рисует QR-код со ссылкой на скачивание.
func NewKeyDelivery(address, artifactID, displayName, secret, downloadURL string, expiresAt time.Time) (KeyDelivery, error) {
	d := KeyDelivery{
		RecipientAddress: address,
		ArtifactID:       artifactID,
		DisplayName:      displayName,
		Secret:           secret,
		DownloadURL:      downloadURL,
		ExpiresAt:        expiresAt,
	}
	if downloadURL != "" {
		png, err := qrcode.Encode(downloadURL, qrcode.Medium, qrSize)
		if err != nil {
			return KeyDelivery{}, fmt.Errorf("render qr code: %w", err)
		}
		d.QRCode = png
	}
	return d, nil
}

// message: формат сообщения во внешних брокерах.
type message struct {
	Recipient   string    `json:"recipient"`
	ArtifactID  string    `json:"artifact_id"`
	DisplayName string    `json:"display_name"`
	Secret      string    `json:"secret"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
	QRCode      []byte    `json:"qr_code,omitempty"`
}

func encode(d KeyDelivery) ([]byte, error) {
	return json.Marshal(message{
		Recipient:   d.RecipientAddress,
		ArtifactID:  d.ArtifactID,
		DisplayName: d.DisplayName,
		Secret:      d.Secret,
		DownloadURL: d.DownloadURL,
		ExpiresAt:   d.ExpiresAt.UTC(),
		QRCode:      d.QRCode,
	})
}
