package sessions

import (
	"sync"
	"time"
)

// DefaultWatchdogTimeout tolerates slow multi-step tool execution on the
// remote side; it only has to be finite.
const DefaultWatchdogTimeout = 20 * time.Minute

// Watchdog is a resettable inactivity timer. Every successfully decoded
// event, heartbeats included, pushes the deadline forward; if the deadline
// passes the expiry callback runs exactly once. Stop and expiry guard at
// fire time, since a pending timer callback can race with Stop.
type Watchdog struct {
	mu      sync.Mutex
	timeout time.Duration
	timer   *time.Timer
	expired func()
	done    bool
}

func NewWatchdog(timeout time.Duration, onExpire func()) *Watchdog {
	if timeout <= 0 {
		timeout = DefaultWatchdogTimeout
	}
	return &Watchdog{timeout: timeout, expired: onExpire}
}

// Arm starts the timer. Must be called once, when the turn begins sending.
func (w *Watchdog) Arm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done || w.timer != nil {
		return
	}
	w.timer = time.AfterFunc(w.timeout, w.fire)
}

// Reset pushes the deadline a full timeout forward.
func (w *Watchdog) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done || w.timer == nil {
		return
	}
	w.timer.Stop()
	w.timer = time.AfterFunc(w.timeout, w.fire)
}

// Stop disarms the watchdog. Idempotent; a callback already in flight will
// observe done and bail.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.done = true
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watchdog) fire() {
	w.mu.Lock()
	if w.done {
		w.mu.Unlock()
		return
	}
	w.done = true
	w.mu.Unlock()
	if w.expired != nil {
		w.expired()
	}
}
