package handlers

import (
	"SecureDrop/internal/config"
	"SecureDrop/internal/middleware"
	"SecureDrop/internal/service"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// multipartOverhead: запас на заголовки и поля формы сверх размера файла.
const multipartOverhead = 1 << 20

// maxFieldBytes: предел значения текстового поля формы.
const maxFieldBytes = 1024

// TransferHandler: загрузка, скачивание и управление переданными файлами.
type TransferHandler struct {
	TransferService *service.TransferService
	Logger          *zap.SugaredLogger
	Config          *config.Config
}

func NewTransferHandler(transferService *service.TransferService, logger *zap.SugaredLogger, cfg *config.Config) *TransferHandler {
	return &TransferHandler{TransferService: transferService, Logger: logger, Config: cfg}
}

// UploadResponse: ответ отправителю. Секрет показывается один раз.
type UploadResponse struct {
	ID            string    `json:"id"`
	Secret        string    `json:"secret"`
	DisplayName   string    `json:"display_name"`
	ByteSize      int64     `json:"byte_size"`
	Size          string    `json:"size"`
	AttemptLimit  int       `json:"attempt_limit"`
	DownloadLimit int       `json:"download_limit"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// errorResponse: структурированный отказ.
type errorResponse struct {
	Reason            string `json:"reason"`
	Message           string `json:"message"`
	AttemptsRemaining *int   `json:"attempts_remaining,omitempty"`
}

// Upload принимает multipart/form-data: поля recipient, attempt_limit, download_limit,
// ttl и затем часть file. Поля после file не учитываются.
func (h *TransferHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	maxBytes := h.Config.MaxUploadBytes()
	if r.ContentLength > maxBytes+multipartOverhead {
		h.Logger.Warnw("Upload: payload too large", "user_id", userID, "size", r.ContentLength, "limit", maxBytes)
		h.writeError(w, service.ErrTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		h.Logger.Warnw("Upload: invalid multipart form", "error", err)
		h.writeError(w, service.ErrInvalidRequest)
		return
	}

	req := service.UploadRequest{OwnerID: userID, Size: -1}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			h.Logger.Warnw("Upload: broken multipart body", "error", err)
			h.writeError(w, mapBodyError(err))
			return
		}

		if part.FormName() != "file" {
			value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
			_ = part.Close()
			if err != nil {
				h.writeError(w, mapBodyError(err))
				return
			}
			if len(value) > maxFieldBytes {
				h.Logger.Warnw("Upload: field too long", "field", part.FormName(), "limit", maxFieldBytes)
				writeJSON(w, http.StatusBadRequest, errorResponse{Reason: "invalid_request", Message: part.FormName() + " is too long"})
				return
			}
			if err := applyField(&req, part.FormName(), string(value)); err != nil {
				h.Logger.Warnw("Upload: invalid field", "field", part.FormName(), "error", err)
				writeJSON(w, http.StatusBadRequest, errorResponse{Reason: "invalid_request", Message: err.Error()})
				return
			}
			continue
		}

		req.FileName = part.FileName()
		req.ContentType = partContentType(part.Header.Get("Content-Type"), req.FileName)
		req.Body = part
		res, err := h.TransferService.Upload(r.Context(), req)
		_ = part.Close()
		if err != nil {
			h.Logger.Warnw("Upload: failed", "user_id", userID, "error", err)
			h.writeError(w, mapBodyError(err))
			return
		}

		a := res.Artifact
		writeJSON(w, http.StatusCreated, UploadResponse{
			ID:            a.ID,
			Secret:        res.Secret,
			DisplayName:   a.DisplayName,
			ByteSize:      a.ByteSize,
			Size:          humanize.IBytes(uint64(a.ByteSize)),
			AttemptLimit:  a.AttemptLimit,
			DownloadLimit: a.DownloadLimit,
			ExpiresAt:     a.ExpiresAt,
		})
		return
	}

	writeJSON(w, http.StatusBadRequest, errorResponse{Reason: "invalid_request", Message: "missing file part"})
}

// partContentType уточняет тип по расширению, если клиент прислал общий.
func partContentType(declared, fileName string) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(filepath.Ext(fileName)); byExt != "" {
		return byExt
	}
	return declared
}

func applyField(req *service.UploadRequest, name, value string) error {
	var err error
	switch name {
	case "recipient":
		req.Recipient = value
	case "attempt_limit":
		req.AttemptLimit, err = strconv.Atoi(value)
	case "download_limit":
		req.DownloadLimit, err = strconv.Atoi(value)
	case "ttl":
		req.TTL, err = time.ParseDuration(value)
	case "size":
		req.Size, err = strconv.ParseInt(value, 10, 64)
	}
	if err != nil {
		return errors.New("invalid " + name)
	}
	return nil
}

type downloadRequest struct {
	Secret string `json:"secret"`
}

// Download проверяет секрет и отдаёт расшифрованный файл.
func (h *TransferHandler) Download(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id := chi.URLParam(r, "id")

	var req downloadRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil || req.Secret == "" {
		h.Logger.Warnw("Download: invalid request body", "artifact_id", id)
		h.writeError(w, service.ErrInvalidRequest)
		return
	}

	d, err := h.TransferService.Download(r.Context(), service.DownloadRequest{ArtifactID: id, CallerID: userID, Secret: req.Secret})
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer d.Body.Close()

	a := d.Artifact
	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(d.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.DisplayName}))
	w.Header().Set("X-Downloads-Remaining", strconv.Itoa(a.DownloadsRemaining()))
	w.WriteHeader(http.StatusOK)

	if n, err := io.Copy(w, d.Body); err != nil {
		// кредит уже списан
		h.Logger.Warnw("Download: client stream interrupted", "artifact_id", id, "sent", n, "error", err)
	}
}

// Sent: отправленные текущим пользователем.
func (h *TransferHandler) Sent(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	items, err := h.TransferService.ListSent(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// Received: доступные текущему пользователю.
func (h *TransferHandler) Received(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	items, err := h.TransferService.ListReceived(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	v, err := h.TransferService.Get(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Revoke: отзыв отправителем.
func (h *TransferHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	a, err := h.TransferService.Revoke(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": a.ID, "status": a.Status, "reason": a.TerminalReason})
}

// mapBodyError превращает обрыв по лимиту тела запроса в ErrTooLarge.
func mapBodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return service.ErrTooLarge
	}
	return err
}

// writeError: единая точка отображения ошибок сервиса в HTTP.
func (h *TransferHandler) writeError(w http.ResponseWriter, err error) {
	var (
		terminal *service.TerminalStateError
		mismatch *service.SecretMismatchError
		storage  *service.StorageError
	)
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Reason: "not_found", Message: "artifact not found"})
	case errors.As(err, &terminal):
		msg := "artifact has been destroyed and can no longer be downloaded"
		if terminal.Reason == "expired" {
			msg = "artifact has expired"
		}
		writeJSON(w, http.StatusGone, errorResponse{Reason: terminal.Reason, Message: msg})
	case errors.As(err, &mismatch):
		remaining := mismatch.AttemptsRemaining
		msg := "incorrect secret"
		if mismatch.Destroyed {
			msg = "incorrect secret, attempt limit reached: artifact destroyed"
		}
		writeJSON(w, http.StatusForbidden, errorResponse{Reason: "secret_mismatch", Message: msg, AttemptsRemaining: &remaining})
	case errors.Is(err, service.ErrDecryptionFailure):
		h.Logger.Errorw("artifact cannot be decrypted", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Reason: "decryption_failure", Message: "stored file is corrupted"})
	case errors.As(err, &storage):
		h.Logger.Errorw("storage failure", "op", storage.Op, "error", storage.Err)
		w.Header().Set("Retry-After", "5")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Reason: "storage_failure", Message: "storage temporarily unavailable"})
	case errors.Is(err, service.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Reason: "conflict", Message: "concurrent update, retry"})
	case errors.Is(err, service.ErrTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
			Reason:  "too_large",
			Message: "file exceeds the " + humanize.IBytes(uint64(h.Config.MaxUploadBytes())) + " limit",
		})
	case errors.Is(err, service.ErrRecipientNotFound):
		writeJSON(w, http.StatusBadRequest, errorResponse{Reason: "recipient_not_found", Message: "recipient not found"})
	case errors.Is(err, service.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResponse{Reason: "forbidden", Message: "not allowed"})
	case errors.Is(err, service.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, errorResponse{Reason: "invalid_request", Message: err.Error()})
	default:
		h.Logger.Errorw("unexpected error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Reason: "internal", Message: "internal error"})
	}
}
