package service

import (
	"SecureDrop/internal/blob"
	"SecureDrop/internal/crypto"
	"SecureDrop/internal/lifecycle"
	"SecureDrop/internal/model"
	"SecureDrop/internal/notify"
	"SecureDrop/internal/repo"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TransferConfig: параметры передачи файлов.
type TransferConfig struct {
	MaxUploadBytes       int64
	DefaultAttemptLimit  int
	DefaultDownloadLimit int
	DefaultTTL           time.Duration
	MaxTTL               time.Duration
	ChunkSize            int
	// TempDir: каталог для расшифрованных копий на время отдачи; пусто — системный.
	TempDir string
	// PublicURL: внешний адрес сервиса для ссылок в уведомлениях.
	PublicURL string
}

// TransferService: загрузка и выдача файлов поверх движка жизненного цикла.
type TransferService struct {
	artifacts repo.ArtifactRepository
	users     repo.UserRepository
	blobs     blob.Store
	engine    *lifecycle.Engine
	notifier  notify.Notifier
	cfg       TransferConfig
	logger    *zap.SugaredLogger
}

func NewTransferService(
	artifacts repo.ArtifactRepository,
	users repo.UserRepository,
	blobs blob.Store,
	engine *lifecycle.Engine,
	notifier notify.Notifier,
	cfg TransferConfig,
	logger *zap.SugaredLogger,
) *TransferService {
	if cfg.DefaultAttemptLimit <= 0 {
		cfg.DefaultAttemptLimit = model.DefaultAttemptLimit
	}
	if cfg.DefaultDownloadLimit <= 0 {
		cfg.DefaultDownloadLimit = model.DefaultDownloadLimit
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = model.DefaultTTL
	}
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = 30 * 24 * time.Hour
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = crypto.DefaultChunkSize
	}
	return &TransferService{
		artifacts: artifacts,
		users:     users,
		blobs:     blobs,
		engine:    engine,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
	}
}

// UploadRequest: входные данные загрузки.
type UploadRequest struct {
	OwnerID int64
	// Recipient: email, логин или числовой id получателя.
	Recipient   string
	FileName    string
	ContentType string
	// Size: заявленный размер; -1 если неизвестен.
	Size int64
	Body io.Reader

	// Нулевые значения — значения по умолчанию.
	AttemptLimit  int
	DownloadLimit int
	TTL           time.Duration
}

// UploadResult: созданная запись и секрет для передачи получателю.
type UploadResult struct {
	Artifact *model.Artifact
	Secret   string
}

// Upload шифрует файл в блоб-хранилище, создаёт запись и отправляет ключ получателю.
// Сначала блоб, потом запись; при любой ошибке после записи блоба всё откатывается.
func (s *TransferService) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if req.Body == nil || strings.TrimSpace(req.FileName) == "" {
		return nil, fmt.Errorf("%w: file is required", ErrInvalidRequest)
	}
	if s.cfg.MaxUploadBytes > 0 && req.Size > s.cfg.MaxUploadBytes {
		return nil, ErrTooLarge
	}
	attempts, downloads, ttl, err := s.limits(req)
	if err != nil {
		return nil, err
	}

	recipient, err := s.resolveRecipient(ctx, req.Recipient)
	if err != nil {
		return nil, err
	}

	secret, err := crypto.GenerateSecret()
	if err != nil {
		return nil, err
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	now := s.engine.Now()
	a := &model.Artifact{
		ID:             uuid.NewString(),
		OwnerID:        req.OwnerID,
		RecipientID:    recipient.ID,
		StorageLocator: blob.NewLocator(),
		DisplayName:    displayName(req.FileName),
		ContentType:    contentType,
		Secret:         secret,
		AttemptLimit:   attempts,
		DownloadLimit:  downloads,
		Status:         model.StatusPending,
		ExpiresAt:      now.Add(ttl),
		Version:        1,
	}

	stats, err := s.encryptToStore(ctx, a, req.Body)
	if err != nil {
		return nil, err
	}
	a.ByteSize = stats.Plaintext
	a.Digest = stats.Digest

	if err := a.Validate(); err != nil {
		s.discardBlob(ctx, a)
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := s.artifacts.Create(ctx, a); err != nil {
		s.discardBlob(ctx, a)
		return nil, &StorageError{Op: "create record", Err: err}
	}

	delivery, err := notify.NewKeyDelivery(recipient.Email, a.ID, a.DisplayName, secret, s.downloadURL(a.ID), a.ExpiresAt)
	if err == nil {
		err = s.notifier.Deliver(ctx, delivery)
	}
	if err != nil {
		s.logger.Warnw("key delivery failed, rolling back upload", "artifact_id", a.ID, "recipient_id", recipient.ID, "error", err)
		s.rollback(ctx, a)
		return nil, &StorageError{Op: "deliver key", Err: err}
	}

	s.logger.Infow("artifact uploaded",
		"artifact_id", a.ID,
		"owner_id", a.OwnerID,
		"recipient_id", a.RecipientID,
		"size", a.ByteSize,
		"expires_at", a.ExpiresAt,
	)
	return &UploadResult{Artifact: a, Secret: secret}, nil
}

func (s *TransferService) limits(req UploadRequest) (int, int, time.Duration, error) {
	attempts, downloads, ttl := req.AttemptLimit, req.DownloadLimit, req.TTL
	if attempts == 0 {
		attempts = s.cfg.DefaultAttemptLimit
	}
	if downloads == 0 {
		downloads = s.cfg.DefaultDownloadLimit
	}
	if ttl == 0 {
		ttl = s.cfg.DefaultTTL
	}
	switch {
	case attempts < 1:
		return 0, 0, 0, fmt.Errorf("%w: attempt limit must be positive", ErrInvalidRequest)
	case downloads < 1:
		return 0, 0, 0, fmt.Errorf("%w: download limit must be positive", ErrInvalidRequest)
	case ttl < 0 || ttl > s.cfg.MaxTTL:
		return 0, 0, 0, fmt.Errorf("%w: ttl must be within (0, %s]", ErrInvalidRequest, s.cfg.MaxTTL)
	}
	return attempts, downloads, ttl, nil
}

// resolveRecipient находит получателя по email, числовому id или логину.
func (s *TransferService) resolveRecipient(ctx context.Context, ref string) (*model.User, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: recipient is required", ErrInvalidRequest)
	}
	var (
		u   *model.User
		err error
	)
	if strings.Contains(ref, "@") {
		u, err = s.users.GetByEmail(ctx, ref)
	} else if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil {
		u, err = s.users.GetByID(ctx, id)
	} else {
		u, err = s.users.GetUserByLogin(ctx, ref)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrRecipientNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "resolve recipient", Err: err}
	}
	return u, nil
}

// encryptToStore потоково шифрует тело запроса прямо в блоб-хранилище.
func (s *TransferService) encryptToStore(ctx context.Context, a *model.Artifact, body io.Reader) (crypto.Stats, error) {
	src := body
	if s.cfg.MaxUploadBytes > 0 {
		src = &limitReader{r: body, n: s.cfg.MaxUploadBytes}
	}
	opts := crypto.Options{ChunkSize: s.cfg.ChunkSize, Compression: crypto.CompressionFor(a.ContentType)}

	pr, pw := io.Pipe()
	type result struct {
		stats crypto.Stats
		err   error
	}
	done := make(chan result, 1)
	go func() {
		st, err := crypto.Encrypt(pw, src, []byte(a.Secret), opts)
		_ = pw.CloseWithError(err)
		done <- result{st, err}
	}()

	_, werr := s.blobs.Write(ctx, a.StorageLocator, pr)
	// разблокировать шифровальщик, если хранилище бросило чтение
	_ = pr.CloseWithError(io.ErrClosedPipe)
	res := <-done

	switch {
	case errors.Is(res.err, ErrTooLarge):
		s.discardBlob(ctx, a)
		return crypto.Stats{}, ErrTooLarge
	case res.err != nil && !errors.Is(res.err, io.ErrClosedPipe):
		s.discardBlob(ctx, a)
		return crypto.Stats{}, fmt.Errorf("%w: read upload: %w", ErrInvalidRequest, res.err)
	case werr != nil:
		s.discardBlob(ctx, a)
		return crypto.Stats{}, &StorageError{Op: "write blob", Err: werr}
	case res.err != nil:
		s.discardBlob(ctx, a)
		return crypto.Stats{}, &StorageError{Op: "write blob", Err: res.err}
	}
	return res.stats, nil
}

func (s *TransferService) discardBlob(ctx context.Context, a *model.Artifact) {
	ctx = context.WithoutCancel(ctx)
	if err := s.blobs.Delete(ctx, a.StorageLocator); err != nil && !errors.Is(err, blob.ErrNotFound) {
		s.logger.Errorw("orphan blob cleanup failed", "artifact_id", a.ID, "error", err)
	}
}

func (s *TransferService) rollback(ctx context.Context, a *model.Artifact) {
	if err := s.artifacts.Delete(context.WithoutCancel(ctx), a.ID); err != nil {
		s.logger.Errorw("rollback: delete record failed", "artifact_id", a.ID, "error", err)
	}
	s.discardBlob(ctx, a)
}

func (s *TransferService) downloadURL(id string) string {
	if s.cfg.PublicURL == "" {
		return ""
	}
	return strings.TrimRight(s.cfg.PublicURL, "/") + "/api/transfers/" + id + "/download"
}

// DownloadRequest: попытка получить файл.
type DownloadRequest struct {
	ArtifactID string
	// CallerID: аутентифицированный пользователь; 0 — без проверки получателя.
	CallerID int64
	Secret   string
}

// Download: расшифрованный файл. Body обязательно закрыть: Close удаляет временную копию.
type Download struct {
	Artifact *model.Artifact
	Size     int64
	Body     io.ReadCloser
}

// Download проверяет доступ и секрет, расшифровывает блоб во временный файл и
// фиксирует скачивание до начала отдачи.
func (s *TransferService) Download(ctx context.Context, req DownloadRequest) (*Download, error) {
	a, err := s.load(ctx, req.ArtifactID)
	if err != nil {
		return nil, err
	}
	if req.CallerID != 0 && a.RecipientID != req.CallerID {
		return nil, ErrForbidden
	}

	if d := s.engine.CheckAccess(a); !d.Allowed {
		if d.Reason == lifecycle.DenyExpired && !a.IsTerminal() {
			if _, _, err := s.engine.Expire(ctx, a); err != nil {
				s.logger.Warnw("lazy expire failed", "artifact_id", a.ID, "error", err)
			}
		}
		return nil, terminalError(d.Reason)
	}

	if !crypto.SecretsEqual(req.Secret, a.Secret) {
		res, err := s.engine.RecordOutcome(ctx, a, lifecycle.OutcomeMismatch)
		if err != nil {
			return nil, s.engineError("record mismatch", err)
		}
		s.logger.Infow("secret mismatch",
			"artifact_id", a.ID,
			"attempts_remaining", res.AttemptsRemaining(),
			"destroyed", res.Destroyed,
		)
		return nil, &SecretMismatchError{AttemptsRemaining: res.AttemptsRemaining(), Destroyed: res.Destroyed}
	}

	tmp, err := s.decryptToTemp(ctx, a)
	if err != nil {
		return nil, err
	}

	res, err := s.engine.RecordOutcome(ctx, a, lifecycle.OutcomeMatch)
	if err != nil {
		_ = tmp.Close()
		return nil, s.engineError("record download", err)
	}
	s.logger.Infow("artifact downloaded",
		"artifact_id", a.ID,
		"download_count", res.Artifact.DownloadCount,
		"destroyed", res.Destroyed,
	)
	return &Download{Artifact: res.Artifact, Size: tmp.size, Body: tmp}, nil
}

// decryptToTemp расшифровывает блоб во временный файл и сверяет дайджест.
func (s *TransferService) decryptToTemp(ctx context.Context, a *model.Artifact) (*tempFile, error) {
	rc, err := s.blobs.Open(ctx, a.StorageLocator)
	if err != nil {
		return nil, &StorageError{Op: "open blob", Err: err}
	}
	defer rc.Close()

	f, err := os.CreateTemp(s.cfg.TempDir, decryptedTempPattern)
	if err != nil {
		return nil, &StorageError{Op: "create temp file", Err: err}
	}
	tmp := &tempFile{File: f}

	stats, err := crypto.Decrypt(f, rc, []byte(a.Secret))
	if err == nil && a.Digest != "" && stats.Digest != a.Digest {
		err = fmt.Errorf("%w: digest mismatch", crypto.ErrDecryption)
	}
	if err != nil {
		_ = tmp.Close()
		if errors.Is(err, crypto.ErrDecryption) {
			s.logger.Errorw("blob integrity failure", "artifact_id", a.ID, "error", err)
			return nil, ErrDecryptionFailure
		}
		return nil, &StorageError{Op: "read blob", Err: err}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = tmp.Close()
		return nil, &StorageError{Op: "rewind temp file", Err: err}
	}
	tmp.size = stats.Plaintext
	return tmp, nil
}

// decryptedTempPattern: имена расшифрованных копий в TempDir.
const decryptedTempPattern = "securedrop-*"

// RemoveStaleTemp удаляет расшифрованные копии, оставшиеся после аварийного
// завершения процесса. Вызывается при старте, до приёма запросов.
func (s *TransferService) RemoveStaleTemp() (int, error) {
	dir := s.cfg.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	matches, err := filepath.Glob(filepath.Join(dir, decryptedTempPattern))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, path := range matches {
		info, err := os.Lstat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warnw("stale temp file not removed", "path", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Infow("stale decrypted files removed", "dir", dir, "count", removed)
	}
	return removed, nil
}

// tempFile удаляет себя при закрытии.
type tempFile struct {
	*os.File
	size int64
}

func (t *tempFile) Close() error {
	err := t.File.Close()
	if rerr := os.Remove(t.Name()); rerr != nil && !errors.Is(rerr, os.ErrNotExist) && err == nil {
		err = rerr
	}
	return err
}

// ArtifactView: метаданные артефакта для владельца или получателя.
type ArtifactView struct {
	*model.Artifact
	AttemptsRemaining  int `json:"attempts_remaining"`
	DownloadsRemaining int `json:"downloads_remaining"`
}

func view(a *model.Artifact) ArtifactView {
	return ArtifactView{Artifact: a, AttemptsRemaining: a.AttemptsRemaining(), DownloadsRemaining: a.DownloadsRemaining()}
}

// ListSent: всё, что отправил пользователь, включая завершённые.
func (s *TransferService) ListSent(ctx context.Context, ownerID int64) ([]ArtifactView, error) {
	items, err := s.artifacts.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, &StorageError{Op: "list sent", Err: err}
	}
	out := make([]ArtifactView, 0, len(items))
	for i := range items {
		out = append(out, view(&items[i]))
	}
	return out, nil
}

// ListReceived: доступные получателю артефакты; просроченные, но ещё не
// обработанные очисткой, не показываются.
func (s *TransferService) ListReceived(ctx context.Context, recipientID int64) ([]ArtifactView, error) {
	items, err := s.artifacts.ListByRecipient(ctx, recipientID)
	if err != nil {
		return nil, &StorageError{Op: "list received", Err: err}
	}
	now := s.engine.Now()
	out := make([]ArtifactView, 0, len(items))
	for i := range items {
		if items[i].IsExpired(now) {
			continue
		}
		out = append(out, view(&items[i]))
	}
	return out, nil
}

// Get возвращает метаданные владельцу или получателю.
func (s *TransferService) Get(ctx context.Context, id string, callerID int64) (*ArtifactView, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.OwnerID != callerID && a.RecipientID != callerID {
		return nil, ErrForbidden
	}
	v := view(a)
	return &v, nil
}

// Revoke: отправитель отзывает артефакт: запись уничтожается, блоб удаляется.
func (s *TransferService) Revoke(ctx context.Context, id string, ownerID int64) (*model.Artifact, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	updated, err := s.engine.Revoke(ctx, a)
	if err != nil {
		return nil, s.engineError("revoke", err)
	}
	s.logger.Infow("artifact revoked", "artifact_id", id, "owner_id", ownerID, "status", updated.Status)
	return updated, nil
}

func (s *TransferService) load(ctx context.Context, id string) (*model.Artifact, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	a, err := s.artifacts.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "load record", Err: err}
	}
	return a, nil
}

func (s *TransferService) engineError(op string, err error) error {
	var denied *lifecycle.DeniedError
	switch {
	case errors.As(err, &denied):
		return terminalError(denied.Reason)
	case errors.Is(err, lifecycle.ErrConflict):
		return ErrConflict
	case errors.Is(err, repo.ErrNotFound):
		return ErrNotFound
	}
	return &StorageError{Op: op, Err: err}
}

func terminalError(reason lifecycle.DenyReason) error {
	if reason == lifecycle.DenyExpired {
		return &TerminalStateError{Reason: string(model.StatusExpired)}
	}
	return &TerminalStateError{Reason: string(model.StatusDestroyed)}
}

// displayName оставляет от имени файла только последний элемент пути.
func displayName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}

// limitReader отдаёт не больше n байт; попытка прочитать больше — ErrTooLarge.
type limitReader struct {
	r io.Reader
	n int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	if l.n < 0 {
		return 0, ErrTooLarge
	}
	if int64(len(p)) > l.n+1 {
		p = p[:l.n+1]
	}
	n, err := l.r.Read(p)
	l.n -= int64(n)
	if l.n < 0 {
		return 0, ErrTooLarge
	}
	return n, err
}
