// Package clock даёт единый источник времени и фиксированную зону шлюза (UTC+7).
package clock

import (
	"sync"
	"time"
)

// Zone часовой пояс, в котором шлюз ожидает все даты и сроки
var Zone = time.FixedZone("ICT", 7*60*60)

// Clock источник текущего времени
type Clock interface {
	Now() time.Time
}

// Real системные часы
type Real struct{}

// Now возвращает текущее время
func (Real) Now() time.Time { return time.Now() }

// Fixed часы для тестов, время двигается только вручную
type Fixed struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixed создаёт часы, остановленные на t
func NewFixed(t time.Time) *Fixed {
	return &Fixed{t: t}
}

// Now возвращает установленное время
func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

// Advance сдвигает часы вперёд
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

// InZone возвращает текущее время c в зоне шлюза
func InZone(c Clock) time.Time {
	return c.Now().In(Zone)
}
