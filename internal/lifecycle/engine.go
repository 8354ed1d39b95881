package lifecycle

import (
	"SecureDrop/internal/blob"
	"SecureDrop/internal/clock"
	"SecureDrop/internal/model"
	"SecureDrop/internal/repo"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrConflict: запись меняется конкурентно, повторы исчерпаны. Вызывающий повторяет операцию целиком.
var ErrConflict = errors.New("concurrent update conflict")

const (
	defaultMaxRetries   = 8
	defaultPurgeTimeout = 30 * time.Second
)

// Engine: единственный компонент, меняющий статусные поля артефакта.
// Внутреннего состояния нет: линеаризуемость обеспечивает условное обновление по версии.
type Engine struct {
	repo   repo.ArtifactRepository
	blobs  blob.Store
	clock  clock.Clock
	logger *zap.SugaredLogger

	maxRetries   int
	purgeTimeout time.Duration
}

// NewEngine создаёт движок жизненного цикла.
func NewEngine(r repo.ArtifactRepository, blobs blob.Store, c clock.Clock, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		repo:         r,
		blobs:        blobs,
		clock:        c,
		logger:       logger,
		maxRetries:   defaultMaxRetries,
		purgeTimeout: defaultPurgeTimeout,
	}
}

// Result: итог RecordOutcome.
type Result struct {
	// Artifact: состояние записи после фиксации.
	Artifact *model.Artifact
	// Destroyed: этот вызов перевёл артефакт в destroyed.
	Destroyed bool
}

// AttemptsRemaining: остаток неверных попыток после фиксации.
func (r *Result) AttemptsRemaining() int {
	return r.Artifact.AttemptsRemaining()
}

// Now: текущее время движка.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

// CheckAccess: проверка доступа на текущий момент.
func (e *Engine) CheckAccess(a *model.Artifact) Decision {
	return CheckAccess(a, e.clock.Now())
}

// RecordOutcome атомарно применяет к записи переход по исходу проверки секрета.
// При проигранной гонке запись перечитывается и переоценивается заново. Если за это
// время артефакт истёк или уничтожен, возвращается *DeniedError и счётчики не меняются.
// Просроченная, но ещё живая запись попутно переводится в expired.
func (e *Engine) RecordOutcome(ctx context.Context, a *model.Artifact, outcome Outcome) (*Result, error) {
	var denied *DeniedError
	updated, mut, err := e.commit(ctx, a, outcome.String(), func(cur *model.Artifact, now time.Time) (*Mutation, error) {
		denied = nil
		d := CheckAccess(cur, now)
		if !d.Allowed {
			denied = &DeniedError{Reason: d.Reason}
			if d.Reason == DenyExpired && !cur.IsTerminal() {
				m := terminal(cur, model.StatusExpired, model.ReasonExpired)
				return &m, nil
			}
			return nil, denied
		}
		m, err := Transition(cur, outcome, now)
		if err != nil {
			return nil, err
		}
		return &m, nil
	})
	if err != nil {
		return nil, err
	}
	if denied != nil {
		return nil, denied
	}
	return &Result{Artifact: updated, Destroyed: mut != nil && mut.Status == model.StatusDestroyed}, nil
}

// Expire переводит просроченную живую запись в expired и удаляет блоб.
// Для конечной или ещё не просроченной записи ничего не делает.
func (e *Engine) Expire(ctx context.Context, a *model.Artifact) (*model.Artifact, bool, error) {
	updated, mut, err := e.commit(ctx, a, "expire", func(cur *model.Artifact, now time.Time) (*Mutation, error) {
		if cur.IsTerminal() || !cur.IsExpired(now) {
			return nil, nil
		}
		m := terminal(cur, model.StatusExpired, model.ReasonExpired)
		return &m, nil
	})
	if err != nil {
		return nil, false, err
	}
	return updated, mut != nil, nil
}

// Revoke: отзыв отправителем: живая запись уничтожается, блоб удаляется.
// Повторный отзыв или отзыв конечной записи ничего не меняет.
func (e *Engine) Revoke(ctx context.Context, a *model.Artifact) (*model.Artifact, error) {
	updated, _, err := e.commit(ctx, a, "revoke", func(cur *model.Artifact, now time.Time) (*Mutation, error) {
		if cur.IsTerminal() {
			return nil, nil
		}
		m := terminal(cur, model.StatusDestroyed, model.ReasonRevoked)
		return &m, nil
	})
	return updated, err
}

// decideFunc вычисляет мутацию для текущей версии записи; nil — ничего не менять.
type decideFunc func(cur *model.Artifact, now time.Time) (*Mutation, error)

// commit: цикл read-check-CAS. После перехода в конечное состояние удаляет блоб:
// запись становится инертной раньше, чем исчезают байты.
func (e *Engine) commit(ctx context.Context, a *model.Artifact, event string, decide decideFunc) (*model.Artifact, *Mutation, error) {
	cur := a
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		if attempt > 0 {
			fresh, err := e.repo.GetByID(ctx, cur.ID)
			if err != nil {
				return nil, nil, fmt.Errorf("reload artifact: %w", err)
			}
			cur = fresh
		}

		now := e.clock.Now()
		mut, err := decide(cur, now)
		if err != nil {
			return nil, nil, err
		}
		if mut == nil {
			return cur, nil, nil
		}

		newVersion, err := e.repo.UpdateWithVersion(ctx, cur.ID, cur.Version, mut.updates(now))
		if errors.Is(err, repo.ErrVersionConflict) {
			casConflictsTotal.Inc()
			e.logger.Debugw("artifact update conflict, retrying", "artifact_id", cur.ID, "event", event, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("update artifact: %w", err)
		}

		updated := mut.apply(cur, newVersion, now)
		transitionsTotal.WithLabelValues(event, string(updated.Status)).Inc()

		if mut.Destroys() {
			e.logger.Infow("artifact terminated",
				"artifact_id", updated.ID,
				"status", updated.Status,
				"reason", updated.TerminalReason,
			)
			if err := e.purge(ctx, updated); err == nil {
				updated.BlobPurged = true
			}
		}
		return updated, mut, nil
	}
	return nil, nil, ErrConflict
}

// purge удаляет блоб конечной записи и отмечает это в записи. Работает и после
// отмены контекста запроса. При ошибке блоб остаётся для sweeper.
func (e *Engine) purge(ctx context.Context, a *model.Artifact) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.purgeTimeout)
	defer cancel()

	if err := e.blobs.Delete(ctx, a.StorageLocator); err != nil && !errors.Is(err, blob.ErrNotFound) {
		blobPurgeFailuresTotal.Inc()
		e.logger.Warnw("blob delete failed, left for sweeper", "artifact_id", a.ID, "error", err)
		return err
	}
	if err := e.repo.MarkBlobPurged(ctx, a.ID); err != nil {
		e.logger.Warnw("mark blob purged failed", "artifact_id", a.ID, "error", err)
		return err
	}
	return nil
}
