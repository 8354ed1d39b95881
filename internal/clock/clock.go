// Package clock: источник времени для движка жизненного цикла.
// В проде используется Real(), в тестах — Fake() с ручным управлением временем.
package clock

import (
	"sync"
	"time"
)

// Clock отдаёт текущее время.
type Clock interface {
	Now() time.Time
}

// Real возвращает Clock на основе пакета time.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// FakeClock: детерминированные часы для тестов. Время стоит на месте,
// пока не вызван Advance или Set.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
}

// Fake создаёт FakeClock с начальным временем.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial.UTC()}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance сдвигает время вперёд на d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.mu.Unlock()
}

// Set выставляет текущее время.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t.UTC()
	c.mu.Unlock()
}
