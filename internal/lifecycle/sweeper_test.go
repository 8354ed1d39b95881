package lifecycle

import (
	"SecureDrop/internal/model"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSweeper_ExpiresAndPurges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := NewSweeper(env.engine, SweeperConfig{Interval: time.Minute, BatchSize: 2, Parallelism: 2}, zap.NewNop().Sugar())

	overdue := []*model.Artifact{
		env.newArtifact(t, 3, 1, time.Minute),
		env.newArtifact(t, 3, 1, time.Minute),
		env.newArtifact(t, 3, 1, time.Minute),
	}
	fresh := env.newArtifact(t, 3, 1, 48*time.Hour)

	// ничего не просрочено
	res := s.RunOnce(ctx)
	assert.Zero(t, res.Expired)
	assert.Zero(t, res.Errors)

	env.clock.Advance(time.Hour)
	res = s.RunOnce(ctx)
	assert.Equal(t, 3, res.Expired, "batches continue until drained")
	assert.Zero(t, res.Errors)

	for _, a := range overdue {
		got := env.reload(t, a.ID)
		assert.Equal(t, model.StatusExpired, got.Status)
		assert.True(t, got.BlobPurged)
		assert.False(t, env.blobExists(t, a.StorageLocator))
	}
	assert.Equal(t, model.StatusPending, env.reload(t, fresh.ID).Status)
	assert.True(t, env.blobExists(t, fresh.StorageLocator))

	// повторный проход идемпотентен
	res = s.RunOnce(ctx)
	assert.Zero(t, res.Expired)
	assert.Zero(t, res.Purged)
}

func TestSweeper_RetriesFailedBlobDeletes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := NewSweeper(env.engine, SweeperConfig{}, zap.NewNop().Sugar())

	a := env.newArtifact(t, 1, 1, time.Hour)
	env.blobs.failDeletes.Store(1)
	_, err := env.engine.RecordOutcome(ctx, a, OutcomeMismatch)
	require.NoError(t, err)
	require.True(t, env.blobExists(t, a.StorageLocator))

	res := s.RunOnce(ctx)
	assert.Equal(t, 1, res.Purged)
	assert.False(t, env.blobExists(t, a.StorageLocator))
	assert.True(t, env.reload(t, a.ID).BlobPurged)
}

func TestSweeper_DeletesOldTombstones(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := NewSweeper(env.engine, SweeperConfig{TombstoneRetention: 24 * time.Hour}, zap.NewNop().Sugar())

	a := env.newArtifact(t, 3, 1, 48*time.Hour)
	_, err := env.engine.Revoke(ctx, a)
	require.NoError(t, err)

	res := s.RunOnce(ctx)
	assert.Zero(t, res.Tombstones, "tombstone is kept during retention")
	assert.Equal(t, model.StatusDestroyed, env.reload(t, a.ID).Status)

	env.clock.Advance(25 * time.Hour)
	res = s.RunOnce(ctx)
	assert.Equal(t, int64(1), res.Tombstones)
	_, err = env.repo.GetByID(ctx, a.ID)
	assert.Error(t, err)
}

func TestSweeper_StartStop(t *testing.T) {
	env := newTestEnv(t)
	s := NewSweeper(env.engine, SweeperConfig{Interval: 10 * time.Millisecond}, zap.NewNop().Sugar())

	a := env.newArtifact(t, 3, 1, time.Minute)
	env.clock.Advance(time.Hour)

	s.Start(context.Background())
	assert.Eventually(t, func() bool {
		got, err := env.repo.GetByID(context.Background(), a.ID)
		return err == nil && got.Status == model.StatusExpired && got.BlobPurged
	}, 2*time.Second, 10*time.Millisecond)
	s.Stop()
	// повторный Stop безопасен
	s.Stop()
}

func TestSweeper_StartTwiceKeepsOneLoop(t *testing.T) {
	env := newTestEnv(t)
	core, logs := observer.New(zap.InfoLevel)
	s := NewSweeper(env.engine, SweeperConfig{Interval: 5 * time.Millisecond}, zap.New(core).Sugar())

	s.Start(context.Background())
	s.Start(context.Background())
	assert.Equal(t, 1, logs.FilterMessage("sweeper started").Len())

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	// после Stop фоновых проходов нет
	a := env.newArtifact(t, 3, 1, time.Minute)
	env.clock.Advance(time.Hour)
	time.Sleep(50 * time.Millisecond)
	got, err := env.repo.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)

	// перезапуск после Stop разрешён
	s.Start(context.Background())
	defer s.Stop()
	assert.Equal(t, 2, logs.FilterMessage("sweeper started").Len())
	assert.Eventually(t, func() bool {
		got, err := env.repo.GetByID(context.Background(), a.ID)
		return err == nil && got.Status == model.StatusExpired
	}, 2*time.Second, 10*time.Millisecond)
}
