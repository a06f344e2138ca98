package sessions

import (
	"strings"
	"sync"
	"time"
)

// DefaultCoalesceInterval bounds how often render updates fire.
const DefaultCoalesceInterval = 50 * time.Millisecond

// Coalescer batches high-frequency answer tokens into bounded-rate render
// emissions. Every emission carries the full concatenation of all tokens
// received so far, so no token is ever lost regardless of cadence, and
// FlushFinal guarantees the last rendered state matches the authoritative
// buffer at turn end. The emit callback runs outside the coalescer lock.
type Coalescer struct {
	mu        sync.Mutex
	interval  time.Duration
	emit      func(text string)
	buf       strings.Builder
	dirty     bool
	scheduled bool
	stopped   bool
	emitted   bool
}

func NewCoalescer(interval time.Duration, emit func(text string)) *Coalescer {
	if interval <= 0 {
		interval = DefaultCoalesceInterval
	}
	return &Coalescer{interval: interval, emit: emit}
}

// Append adds one token. The first token after an emission schedules the
// next one a full interval out; tokens in between just accumulate.
func (c *Coalescer) Append(token string) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.buf.WriteString(token)
	c.dirty = true
	if !c.scheduled {
		c.scheduled = true
		time.AfterFunc(c.interval, c.fire)
	}
	c.mu.Unlock()
}

// Retract drops everything accumulated so far. Used when the producer
// retracts a partially streamed answer.
func (c *Coalescer) Retract() {
	c.mu.Lock()
	c.buf.Reset()
	c.dirty = false
	c.mu.Unlock()
}

// FlushFinal synchronously emits the authoritative final text and stops the
// coalescer. Trailing tokens that arrived after the last scheduled emission
// are covered because text is the full buffer at finalization time. An empty
// final text still emits when something was rendered earlier, so a retracted
// partial answer does not linger on screen past turn end.
func (c *Coalescer) FlushFinal(text string) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.dirty = false
	rendered := c.emitted
	c.mu.Unlock()
	if c.emit != nil && (text != "" || rendered) {
		c.emit(text)
	}
}

// Stop terminates the coalescer without a final emission. Pending timer
// callbacks become no-ops; the guard is checked at fire time because
// cancellation can race with an already scheduled callback.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.dirty = false
	c.mu.Unlock()
}

func (c *Coalescer) fire() {
	c.mu.Lock()
	c.scheduled = false
	if c.stopped || !c.dirty {
		c.mu.Unlock()
		return
	}
	c.dirty = false
	c.emitted = true
	text := c.buf.String()
	c.mu.Unlock()
	if c.emit != nil {
		c.emit(text)
	}
}
