package schedule

import (
	"sync"
	"time"
)

// TimerWakeSource implements WakeSource on process-local timers. Timers do
// not survive a restart; the startup sweep re-arms everything from the
// store.
type TimerWakeSource struct {
	mu     sync.Mutex
	timers map[int64]*time.Timer
}

func NewTimerWakeSource() *TimerWakeSource {
	return &TimerWakeSource{timers: make(map[int64]*time.Timer)}
}

func (w *TimerWakeSource) SetExact(slot int64, at time.Time, fire func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[slot]; ok {
		t.Stop()
	}
	w.timers[slot] = time.AfterFunc(time.Until(at), func() {
		w.mu.Lock()
		delete(w.timers, slot)
		w.mu.Unlock()
		fire()
	})
	return nil
}

func (w *TimerWakeSource) Cancel(slot int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[slot]; ok {
		t.Stop()
		delete(w.timers, slot)
	}
}

// Pending reports how many wakes are armed.
func (w *TimerWakeSource) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.timers)
}
