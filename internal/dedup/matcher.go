package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/good-yellow-bee/alertd/internal/keylock"
	"github.com/good-yellow-bee/alertd/internal/models"
	"github.com/good-yellow-bee/alertd/internal/storage"
)

// DefaultMaxRetries bounds how often an ingest is retried after a
// concurrent-modification conflict before it is surfaced as transient.
const DefaultMaxRetries = 3

// ErrRetriesExhausted is returned when the conflict retry budget is spent
// without a successful commit. Callers may redeliver the event; the state
// machine absorbs redelivered receive ids.
var ErrRetriesExhausted = errors.New("dedup: conflict retries exhausted")

// Matcher finds or creates the alert for an incoming event's identity key
// and applies the state machine to it. Mutations on one key are
// serialized; different keys proceed in parallel.
type Matcher struct {
	alerts     storage.AlertRepository
	locks      *keylock.KeyLock
	maxRetries int
	now        func() time.Time
	onConflict func()
}

// NewMatcher creates a Matcher over the given alert repository.
func NewMatcher(alerts storage.AlertRepository) *Matcher {
	return &Matcher{
		alerts:     alerts,
		locks:      keylock.New(),
		maxRetries: DefaultMaxRetries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the matcher's clock, for tests.
func (m *Matcher) WithClock(now func() time.Time) *Matcher {
	m.now = now
	return m
}

// WithConflictHook registers a callback invoked on every conflict
// retry, used for metrics.
func (m *Matcher) WithConflictHook(hook func()) *Matcher {
	m.onConflict = hook
	return m
}

// WithMaxRetries overrides the conflict retry budget. Non-positive
// values keep the default.
func (m *Matcher) WithMaxRetries(n int) *Matcher {
	if n > 0 {
		m.maxRetries = n
	}
	return m
}

// Ingest deduplicates the event into its alert: it creates a new alert
// for an unseen identity key, or applies the state machine to the
// existing one. The returned bool reports whether a new alert was
// created. The event must already be validated.
func (m *Matcher) Ingest(ctx context.Context, ev *models.Event) (*models.Alert, bool, error) {
	// The lock covers the (environment, resource, tenant) triple rather
	// than the full identity key: correlate sets let events with
	// different names deduplicate into one alert, and those must be
	// serialized too.
	lockKey := ev.Environment + "/" + ev.Resource + "/" + ev.Tenant
	m.locks.Lock(lockKey)
	defer m.locks.Unlock(lockKey)

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		alert, created, err := m.ingestOnce(ctx, ev)
		if err == nil {
			return alert, created, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return nil, false, err
		}
		if m.onConflict != nil {
			m.onConflict()
		}
		lastErr = err
	}
	return nil, false, fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
}

func (m *Matcher) ingestOnce(ctx context.Context, ev *models.Event) (*models.Alert, bool, error) {
	now := m.now()

	existing, err := m.findExisting(ctx, ev)
	if err != nil {
		return nil, false, err
	}

	if existing == nil {
		alert := models.NewAlert(ev, now)
		if err := m.alerts.Create(ctx, alert); err != nil {
			return nil, false, fmt.Errorf("create alert: %w", err)
		}
		return alert, true, nil
	}

	entries := Apply(existing, ev, now)
	if entries == nil && ev.ID == existing.LastReceiveID {
		// Redelivered event, already applied.
		return existing, false, nil
	}
	if err := m.alerts.Update(ctx, existing, entries); err != nil {
		return nil, false, err
	}
	existing.History = append(existing.History, entries...)
	return existing, false, nil
}

// findExisting picks the alert the event deduplicates into. Active alerts
// win over closed ones; a closed alert is still returned so a new event
// reopens it.
func (m *Matcher) findExisting(ctx context.Context, ev *models.Event) (*models.Alert, error) {
	candidates, err := m.alerts.FindCandidates(ctx, ev.Environment, ev.Resource, ev.Tenant)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}

	var inactive *models.Alert
	for _, cand := range candidates {
		if !cand.MatchesEvent(ev) {
			continue
		}
		if !cand.Status.Inactive() {
			return cand, nil
		}
		if inactive == nil || cand.LastReceiveTime.After(inactive.LastReceiveTime) {
			inactive = cand
		}
	}
	return inactive, nil
}
