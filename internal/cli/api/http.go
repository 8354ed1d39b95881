package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

// TokenSaver: куда сохраняется выданный сервером токен.
type TokenSaver interface {
	Save(token string) error
}

// Field: текстовое поле multipart-формы. Порядок полей сохраняется.
type Field struct {
	Name  string
	Value string
}

// Error: структурированный отказ сервера.
type Error struct {
	Status            int
	Reason            string `json:"reason"`
	Message           string `json:"message"`
	AttemptsRemaining *int   `json:"attempts_remaining"`
}

func (e *Error) Error() string {
	if e.AttemptsRemaining != nil && e.Reason == "secret_mismatch" {
		return fmt.Sprintf("%s (attempts remaining: %d)", e.Message, *e.AttemptsRemaining)
	}
	return e.Message
}

// Do выполняет запрос; если token не пуст, он передаётся как auth cookie.
// Тело ответа закрывает вызывающий.
func Do(ctx context.Context, method, url string, body io.Reader, contentType, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Cookie", "auth_token="+token)
	}
	return http.DefaultClient.Do(req)
}

// PostJSON sends a JSON POST request. If token is non-empty, it is passed as auth cookie.
func PostJSON(ctx context.Context, url string, payload any, token string) (*http.Response, []byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	resp, err := Do(ctx, http.MethodPost, url, bytes.NewReader(b), "application/json", token)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body, nil
}

// GetJSON выполняет GET и декодирует ответ 200 в out.
func GetJSON(ctx context.Context, url, token string, out any) error {
	resp, err := Do(ctx, http.MethodGet, url, nil, "", token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return ResponseError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// Delete выполняет DELETE и возвращает тело ответа 200.
func Delete(ctx context.Context, url, token string) ([]byte, error) {
	resp, err := Do(ctx, http.MethodDelete, url, nil, "", token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, ResponseError(resp.StatusCode, body)
	}
	return body, nil
}

// PostMultipartFile потоково отправляет поля и затем файл одной формой.
// Файл не буферизуется в памяти.
func PostMultipartFile(ctx context.Context, url string, fields []Field, fileName string, file io.Reader, token string) (*http.Response, []byte, error) {
	if fileName == "" {
		return nil, nil, errors.New("empty file name")
	}
	if file == nil {
		return nil, nil, errors.New("nil file reader")
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, fields, fileName, file))
	}()

	resp, err := Do(ctx, http.MethodPost, url, pr, mw.FormDataContentType(), token)
	if err != nil {
		_ = pr.CloseWithError(err)
		return nil, nil, err
	}
	defer resp.Body.Close()
	_ = pr.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, bytes.TrimSpace(body), nil
}

func writeForm(mw *multipart.Writer, fields []Field, fileName string, file io.Reader) error {
	for _, f := range fields {
		if err := mw.WriteField(f.Name, f.Value); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return mw.Close()
}

// ResponseError превращает неуспешный ответ в *Error, если сервер прислал
// структурированный отказ, иначе в текстовую ошибку со статусом.
func ResponseError(status int, body []byte) error {
	var e Error
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		e.Status = status
		return &e
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		text = http.StatusText(status)
	}
	return fmt.Errorf("server status %d: %s", status, text)
}

// PersistAuthFromResponse извлекает auth cookie из ответа и сохраняет его в store.
func PersistAuthFromResponse(resp *http.Response, store TokenSaver) error {
	for _, c := range resp.Cookies() {
		if c.Name == "auth_token" && c.Value != "" {
			return store.Save(c.Value)
		}
	}
	return fmt.Errorf("no auth cookie in response")
}
