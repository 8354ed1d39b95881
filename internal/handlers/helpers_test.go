package handlers_test

import (
	"SecureDrop/internal/blob"
	"SecureDrop/internal/clock"
	"SecureDrop/internal/config"
	"SecureDrop/internal/handlers"
	"SecureDrop/internal/lifecycle"
	"SecureDrop/internal/middleware"
	"SecureDrop/internal/model"
	"SecureDrop/internal/notify"
	"SecureDrop/internal/repo"
	"SecureDrop/internal/service"
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	router http.Handler
	cfg    *config.Config
	clock  *clock.FakeClock
	alice  *model.User
	bob    *model.User
	carol  *model.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := repo.InitDB("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	blobs, err := blob.NewFSStore(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{AuthSecret: "test-secret", MaxUploadMB: 1, PublicURL: "http://drop.test"}
	logger := zap.NewNop().Sugar()
	s := &testServer{cfg: cfg, clock: clock.Fake(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))}

	users := repo.NewUserRepository(db)
	artifacts := repo.NewArtifactRepository(db)
	engine := lifecycle.NewEngine(artifacts, blobs, s.clock, logger)
	transfers := service.NewTransferService(artifacts, users, blobs, engine, notify.NewLogNotifier(logger), service.TransferConfig{
		MaxUploadBytes: cfg.MaxUploadBytes(),
		TempDir:        t.TempDir(),
		PublicURL:      cfg.PublicURL,
	}, logger)

	ctx := context.Background()
	s.alice, err = users.CreateUser(ctx, &model.User{Login: "alice", Email: "alice@example.com", Password: "x"})
	require.NoError(t, err)
	s.bob, err = users.CreateUser(ctx, &model.User{Login: "bob", Email: "bob@example.com", Password: "x"})
	require.NoError(t, err)
	s.carol, err = users.CreateUser(ctx, &model.User{Login: "carol", Email: "carol@example.com", Password: "x"})
	require.NoError(t, err)

	s.router = handlers.NewHandler(service.NewUserService(users), transfers, logger, cfg).Router
	return s
}

func (s *testServer) do(t *testing.T, req *http.Request, userID int64) *httptest.ResponseRecorder {
	t.Helper()
	if userID != 0 {
		addAuthCookie(t, req, userID, s.cfg.AuthSecret)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func addAuthCookie(t *testing.T, req *http.Request, userID int64, secret string) {
	t.Helper()
	rr := httptest.NewRecorder()
	_ = middleware.SetLoginCookie(rr, userID, secret)
	for _, c := range rr.Result().Cookies() {
		req.AddCookie(c)
	}
}

// uploadRequest собирает multipart: сначала поля, затем файл.
func uploadRequest(t *testing.T, fields map[string]string, fileName string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/transfers", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
