package service

import (
	"SecureDrop/internal/blob"
	"SecureDrop/internal/clock"
	"SecureDrop/internal/lifecycle"
	"SecureDrop/internal/model"
	"SecureDrop/internal/notify"
	"SecureDrop/internal/repo"
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingNotifier запоминает доставленные ключи.
type recordingNotifier struct {
	mu         sync.Mutex
	deliveries []notify.KeyDelivery
	err        error
}

func (n *recordingNotifier) Deliver(_ context.Context, d notify.KeyDelivery) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.deliveries = append(n.deliveries, d)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

type transferEnv struct {
	svc       *TransferService
	artifacts repo.ArtifactRepository
	users     repo.UserRepository
	blobs     *blob.FSStore
	blobDir   string
	tempDir   string
	clock     *clock.FakeClock
	notifier  *recordingNotifier

	alice *model.User
	bob   *model.User
	carol *model.User
}

func newTransferEnv(t *testing.T, cfg TransferConfig) *transferEnv {
	t.Helper()
	db, err := repo.InitDB("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	env := &transferEnv{
		artifacts: repo.NewArtifactRepository(db),
		users:     repo.NewUserRepository(db),
		blobDir:   t.TempDir(),
		tempDir:   t.TempDir(),
		clock:     clock.Fake(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)),
		notifier:  &recordingNotifier{},
	}
	env.blobs, err = blob.NewFSStore(env.blobDir)
	require.NoError(t, err)

	ctx := context.Background()
	env.alice, err = env.users.CreateUser(ctx, &model.User{Login: "alice", Email: "alice@example.com", Password: "x"})
	require.NoError(t, err)
	env.bob, err = env.users.CreateUser(ctx, &model.User{Login: "bob", Email: "Bob@Example.com", Password: "x"})
	require.NoError(t, err)
	env.carol, err = env.users.CreateUser(ctx, &model.User{Login: "carol", Email: "carol@example.com", Password: "x"})
	require.NoError(t, err)

	logger := zap.NewNop().Sugar()
	engine := lifecycle.NewEngine(env.artifacts, env.blobs, env.clock, logger)
	if cfg.TempDir == "" {
		cfg.TempDir = env.tempDir
	}
	env.svc = NewTransferService(env.artifacts, env.users, env.blobs, engine, env.notifier, cfg, logger)
	return env
}

// countFiles: число обычных файлов в каталоге (рекурсивно).
func countFiles(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		if e.IsDir() {
			n += countFiles(t, dir+"/"+e.Name())
			continue
		}
		n++
	}
	return n
}

func (e *transferEnv) blobExists(t *testing.T, locator string) bool {
	t.Helper()
	rc, err := e.blobs.Open(context.Background(), locator)
	if errors.Is(err, blob.ErrNotFound) {
		return false
	}
	require.NoError(t, err)
	_ = rc.Close()
	return true
}

func (e *transferEnv) reload(t *testing.T, id string) *model.Artifact {
	t.Helper()
	a, err := e.artifacts.GetByID(context.Background(), id)
	require.NoError(t, err)
	return a
}
