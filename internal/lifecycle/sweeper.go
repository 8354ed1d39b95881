package lifecycle

import (
	"SecureDrop/internal/model"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SweeperConfig: параметры фоновой очистки.
type SweeperConfig struct {
	// Interval: период запуска.
	Interval time.Duration
	// TombstoneRetention: сколько хранить надгробия после удаления блоба; 0 — не удалять.
	TombstoneRetention time.Duration
	// BatchSize: сколько записей выбирать за один запрос.
	BatchSize int
	// Parallelism: сколько записей обрабатывать одновременно.
	Parallelism int
}

// SweepResult: результат одного прохода.
type SweepResult struct {
	Expired    int
	Purged     int
	Tombstones int64
	Errors     int
	Duration   time.Duration
}

// Sweeper: фоновая очистка:
//  1. переводит просроченные живые записи в expired (через CAS, уничтоженные не воскрешает)
//  2. удаляет блобы конечных записей, которые не удалось удалить сразу
//  3. удаляет надгробия старше TombstoneRetention
//
// Идемпотентен и безопасен при конкурентном доступе с переднего плана.
type Sweeper struct {
	engine *Engine
	cfg    SweeperConfig
	logger *zap.SugaredLogger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	runMu  sync.Mutex // Start/Stop
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper создаёт фоновую очистку поверх движка.
func NewSweeper(engine *Engine, cfg SweeperConfig, logger *zap.SugaredLogger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	return &Sweeper{engine: engine, cfg: cfg, logger: logger}
}

// Start запускает горутину с периодическим тикером. Первый проход — сразу.
// Повторный вызов до Stop ничего не делает.
func (s *Sweeper) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Infow("sweeper started", "interval", s.cfg.Interval.String())
}

// Stop останавливает горутину и ждёт завершения текущего прохода.
func (s *Sweeper) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.logger.Infow("sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один проход очистки.
func (s *Sweeper) RunOnce(ctx context.Context) *SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	res := &SweepResult{}
	now := s.engine.Now()

	expired, errs := s.expireOverdue(ctx, now)
	res.Expired, res.Errors = expired, errs

	purged, errs := s.purgeTerminal(ctx)
	res.Purged = purged
	res.Errors += errs

	if s.cfg.TombstoneRetention > 0 {
		n, err := s.engine.repo.DeleteTombstones(ctx, now.Add(-s.cfg.TombstoneRetention))
		if err != nil {
			s.logger.Errorw("sweeper: delete tombstones failed", "error", err)
			res.Errors++
		}
		res.Tombstones = n
	}

	res.Duration = time.Since(start)
	sweepRunsTotal.Inc()
	sweepExpiredTotal.Add(float64(res.Expired))
	sweepPurgedTotal.Add(float64(res.Purged))
	sweepTombstonesTotal.Add(float64(res.Tombstones))
	sweepDurationSeconds.Observe(res.Duration.Seconds())

	if res.Expired > 0 || res.Purged > 0 || res.Tombstones > 0 || res.Errors > 0 {
		s.logger.Infow("sweep finished",
			"expired", res.Expired,
			"purged", res.Purged,
			"tombstones", res.Tombstones,
			"errors", res.Errors,
			"duration", res.Duration,
		)
	}
	return res
}

// expireOverdue: фаза 1.
func (s *Sweeper) expireOverdue(ctx context.Context, now time.Time) (int, int) {
	var expired, errs atomic.Int64
	for {
		batch, err := s.engine.repo.ListExpiring(ctx, now, s.cfg.BatchSize)
		if err != nil {
			s.logger.Errorw("sweeper: list expiring failed", "error", err)
			return int(expired.Load()), int(errs.Load()) + 1
		}
		before := expired.Load()

		s.forEach(ctx, batch, func(ctx context.Context, a *model.Artifact) {
			_, changed, err := s.engine.Expire(ctx, a)
			if err != nil {
				s.logger.Warnw("sweeper: expire failed", "artifact_id", a.ID, "error", err)
				errs.Add(1)
				return
			}
			if changed {
				expired.Add(1)
			}
		})

		// неполная пачка или нет прогресса — дальше не идём
		if len(batch) < s.cfg.BatchSize || expired.Load() == before {
			return int(expired.Load()), int(errs.Load())
		}
	}
}

// purgeTerminal: фаза 2. Одна пачка за проход: неудачные удаления повторятся в следующий раз.
func (s *Sweeper) purgeTerminal(ctx context.Context) (int, int) {
	batch, err := s.engine.repo.ListUnpurged(ctx, s.cfg.BatchSize)
	if err != nil {
		s.logger.Errorw("sweeper: list unpurged failed", "error", err)
		return 0, 1
	}
	var purged, errs atomic.Int64
	s.forEach(ctx, batch, func(ctx context.Context, a *model.Artifact) {
		if err := s.engine.purge(ctx, a); err != nil {
			errs.Add(1)
			return
		}
		purged.Add(1)
	})
	return int(purged.Load()), int(errs.Load())
}

func (s *Sweeper) forEach(ctx context.Context, batch []model.Artifact, fn func(context.Context, *model.Artifact)) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)
	for i := range batch {
		a := &batch[i]
		g.Go(func() error {
			fn(gctx, a)
			return nil
		})
	}
	_ = g.Wait()
}
