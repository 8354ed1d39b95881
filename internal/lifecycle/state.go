// Package lifecycle: конечный автомат артефакта: проверка доступа, учёт попыток
// и скачиваний, истечение срока и уничтожение.
//
// Состояния: pending → downloaded → (expired | destroyed). Конечные состояния
// не принимают никаких изменений. Истечение срока имеет приоритет над лимитами.
package lifecycle

import (
	"fmt"
	"time"

	"SecureDrop/internal/model"
)

// Outcome: результат проверки секрета.
type Outcome int

const (
	OutcomeMismatch Outcome = iota + 1
	OutcomeMatch
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMismatch:
		return "mismatch"
	case OutcomeMatch:
		return "match"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// DenyReason: причина отказа в доступе.
type DenyReason string

const (
	DenyExpired      DenyReason = "expired"
	DenyDestroyed    DenyReason = "destroyed"
	DenyLimitReached DenyReason = "limit_reached"
)

// Decision: результат CheckAccess.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

// DeniedError: доступ запрещён; счётчики не изменены.
type DeniedError struct {
	Reason DenyReason
}

func (e *DeniedError) Error() string {
	return "access denied: " + string(e.Reason)
}

// CheckAccess решает, допустима ли попытка доступа к записи в момент now.
// Вызывается до любой работы кодека.
func CheckAccess(a *model.Artifact, now time.Time) Decision {
	switch {
	case a.Status == model.StatusExpired:
		return Decision{Reason: DenyExpired}
	case a.Status == model.StatusDestroyed:
		return Decision{Reason: DenyDestroyed}
	case a.IsExpired(now):
		return Decision{Reason: DenyExpired}
	case a.AttemptCount >= a.AttemptLimit, a.DownloadCount >= a.DownloadLimit:
		return Decision{Reason: DenyLimitReached}
	}
	return Decision{Allowed: true}
}

// Mutation: новое значение статусных полей записи.
type Mutation struct {
	AttemptCount  int
	DownloadCount int
	Status        model.Status
	Reason        model.TerminalReason
}

// Destroys: переход уничтожает артефакт и требует удаления блоба.
func (m Mutation) Destroys() bool {
	return m.Status.IsTerminal()
}

// Transition применяет к записи ровно один переход по исходу проверки секрета.
// Чистая функция: ничего не сохраняет. Запись должна пройти CheckAccess.
func Transition(a *model.Artifact, outcome Outcome, now time.Time) (Mutation, error) {
	if d := CheckAccess(a, now); !d.Allowed {
		return Mutation{}, &DeniedError{Reason: d.Reason}
	}
	m := Mutation{AttemptCount: a.AttemptCount, DownloadCount: a.DownloadCount, Status: a.Status}

	switch outcome {
	case OutcomeMismatch:
		m.AttemptCount++
		if m.AttemptCount >= a.AttemptLimit {
			m.Status = model.StatusDestroyed
			m.Reason = model.ReasonAttemptsExhausted
		}
	case OutcomeMatch:
		m.DownloadCount++
		if m.DownloadCount >= a.DownloadLimit {
			m.Status = model.StatusDestroyed
			m.Reason = model.ReasonDownloadsExhausted
		} else {
			m.Status = model.StatusDownloaded
		}
	default:
		return Mutation{}, fmt.Errorf("unknown outcome %v", outcome)
	}
	return m, nil
}

// terminal: переход неконечной записи в конечное состояние без изменения счётчиков.
func terminal(a *model.Artifact, status model.Status, reason model.TerminalReason) Mutation {
	return Mutation{
		AttemptCount:  a.AttemptCount,
		DownloadCount: a.DownloadCount,
		Status:        status,
		Reason:        reason,
	}
}

// updates: колонки для условного обновления.
func (m Mutation) updates(now time.Time) map[string]any {
	cols := map[string]any{
		"attempt_count":  m.AttemptCount,
		"download_count": m.DownloadCount,
		"status":         string(m.Status),
		"updated_at":     now,
	}
	if m.Status.IsTerminal() {
		cols["terminal_reason"] = string(m.Reason)
		cols["terminated_at"] = now
		// секрет больше не нужен
		cols["secret"] = ""
	}
	return cols
}

// apply возвращает копию записи после фиксации мутации.
func (m Mutation) apply(a *model.Artifact, version int64, now time.Time) *model.Artifact {
	c := *a
	c.AttemptCount = m.AttemptCount
	c.DownloadCount = m.DownloadCount
	c.Status = m.Status
	if m.Status.IsTerminal() {
		c.TerminalReason = m.Reason
		t := now
		c.TerminatedAt = &t
		c.Secret = ""
	}
	c.Version = version
	c.UpdatedAt = now
	return &c
}
