package lifecycle

import (
	"SecureDrop/internal/blob"
	"SecureDrop/internal/clock"
	"SecureDrop/internal/model"
	"SecureDrop/internal/repo"
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	repo   repo.ArtifactRepository
	blobs  *flakyStore
	clock  *clock.FakeClock
	engine *Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := repo.InitDB("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	fs, err := blob.NewFSStore(t.TempDir())
	require.NoError(t, err)

	env := &testEnv{
		repo:  repo.NewArtifactRepository(db),
		blobs: &flakyStore{Store: fs},
		clock: clock.Fake(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)),
	}
	env.engine = NewEngine(env.repo, env.blobs, env.clock, zap.NewNop().Sugar())
	return env
}

// newArtifact создаёт запись и блоб.
func (e *testEnv) newArtifact(t *testing.T, attempts, downloads int, ttl time.Duration) *model.Artifact {
	t.Helper()
	ctx := context.Background()
	a := &model.Artifact{
		ID:             uuid.NewString(),
		OwnerID:        1,
		RecipientID:    2,
		StorageLocator: blob.NewLocator(),
		DisplayName:    "data.bin",
		ByteSize:       4,
		Secret:         "right",
		AttemptLimit:   attempts,
		DownloadLimit:  downloads,
		Status:         model.StatusPending,
		ExpiresAt:      e.clock.Now().Add(ttl),
		Version:        1,
	}
	_, err := e.blobs.Write(ctx, a.StorageLocator, bytes.NewReader([]byte("blob")))
	require.NoError(t, err)
	require.NoError(t, e.repo.Create(ctx, a))
	return a
}

func (e *testEnv) blobExists(t *testing.T, locator string) bool {
	t.Helper()
	rc, err := e.blobs.Open(context.Background(), locator)
	if errors.Is(err, blob.ErrNotFound) {
		return false
	}
	require.NoError(t, err)
	_ = rc.Close()
	return true
}

func (e *testEnv) reload(t *testing.T, id string) *model.Artifact {
	t.Helper()
	a, err := e.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return a
}

// flakyStore: блоб-хранилище, у которого можно временно сломать Delete.
type flakyStore struct {
	blob.Store
	failDeletes atomic.Int32
	deletes     atomic.Int32
}

func (f *flakyStore) Delete(ctx context.Context, locator string) error {
	f.deletes.Add(1)
	if f.failDeletes.Load() > 0 {
		f.failDeletes.Add(-1)
		return errors.New("storage unavailable")
	}
	return f.Store.Delete(ctx, locator)
}
