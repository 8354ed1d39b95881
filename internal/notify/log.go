package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier пишет факт доставки в лог. Для локальной разработки: сам ключ не пишется,
// отправитель получает его в ответе на загрузку.
type LogNotifier struct {
	logger *zap.SugaredLogger
}

func NewLogNotifier(logger *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Deliver(_ context.Context, d KeyDelivery) error {
	n.logger.Infow("key delivery",
		"recipient", d.RecipientAddress,
		"artifact_id", d.ArtifactID,
		"file", d.DisplayName,
		"download_url", d.DownloadURL,
		"expires_at", d.ExpiresAt,
		"qr_bytes", len(d.QRCode),
	)
	return nil
}

func (n *LogNotifier) Close() error { return nil }
