// Package notifier publishes state-change notifications to in-process
// subscribers. One change is emitted per alert create/update/close and
// per issue create/recompute/close; delivery beyond the process
// boundary belongs to the consuming collaborator.
package notifier

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/good-yellow-bee/alertd/internal/models"
)

// ChangeType classifies a state-change notification.
type ChangeType string

const (
	AlertCreated    ChangeType = "alert-created"
	AlertUpdated    ChangeType = "alert-updated"
	AlertClosed     ChangeType = "alert-closed"
	IssueCreated    ChangeType = "issue-created"
	IssueRecomputed ChangeType = "issue-recomputed"
	IssueClosed     ChangeType = "issue-closed"
)

// Change is one state-change notification. Exactly one of Alert and
// Issue is set, matching the change type.
type Change struct {
	Type      ChangeType    `json:"type"`
	Alert     *models.Alert `json:"alert,omitempty"`
	Issue     *models.Issue `json:"issue,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// DefaultBufferSize is the per-subscriber channel buffer.
const DefaultBufferSize = 100

// Dispatcher fans changes out to subscribers over buffered channels.
// A subscriber that falls behind loses changes rather than blocking
// the pipeline; drops are counted and logged.
type Dispatcher struct {
	mu      sync.RWMutex
	subs    map[int]chan Change
	nextID  int
	closed  bool
	dropped atomic.Int64
	onDrop  func()
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{subs: make(map[int]chan Change)}
}

// WithDropHook registers a callback invoked on every dropped change,
// used for metrics.
func (d *Dispatcher) WithDropHook(hook func()) *Dispatcher {
	d.onDrop = hook
	return d
}

// Subscribe registers a subscriber and returns its channel together
// with a cancel function. A non-positive buffer falls back to
// DefaultBufferSize.
func (d *Dispatcher) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	ch := make(chan Change, buffer)
	if d.closed {
		close(ch)
		return ch, func() {}
	}
	d.subs[id] = ch

	cancel := func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if sub, ok := d.subs[id]; ok {
			delete(d.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the change to every subscriber without blocking.
func (d *Dispatcher) Publish(change Change) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return
	}
	for _, sub := range d.subs {
		select {
		case sub <- change:
		default:
			dropped := d.dropped.Add(1)
			if d.onDrop != nil {
				d.onDrop()
			}
			if dropped == 1 || dropped%100 == 0 {
				log.Printf("warning: subscriber channel full, dropped %d changes total", dropped)
			}
		}
	}
}

// Dropped returns how many changes were lost to slow subscribers.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Close closes all subscriber channels. Publish becomes a no-op.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	for id, sub := range d.subs {
		delete(d.subs, id)
		close(sub)
	}
}
