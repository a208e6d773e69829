package clock

import (
	"sync/atomic"
	"time"
)

type TimeProvider interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time {
	return time.Now()
}

// Wall returns the system wall clock.
func Wall() TimeProvider {
	return wallClock{}
}

// Monotonic hands out millisecond timestamps that never go backwards,
// even if the underlying wall clock does.
type Monotonic struct {
	tp   TimeProvider
	last atomic.Int64
}

func NewMonotonic(tp TimeProvider) *Monotonic {
	if tp == nil {
		tp = Wall()
	}
	return &Monotonic{tp: tp}
}

// Now returns max(wall clock in ms, previously issued timestamp).
func (m *Monotonic) Now() int64 {
	now := m.tp.Now().UnixMilli()
	for {
		last := m.last.Load()
		if now <= last {
			return last
		}
		if m.last.CompareAndSwap(last, now) {
			return now
		}
	}
}
