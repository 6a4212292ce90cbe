// Package engine wires the processing pipeline exposed to the request
// handling layer: blackout filtering, deduplication, correlation and
// issue aggregation, plus the administrative operations, heartbeats and
// the change-notification stream.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/good-yellow-bee/alertd/internal/blackout"
	"github.com/good-yellow-bee/alertd/internal/correlation"
	"github.com/good-yellow-bee/alertd/internal/dedup"
	"github.com/good-yellow-bee/alertd/internal/heartbeat"
	"github.com/good-yellow-bee/alertd/internal/issues"
	"github.com/good-yellow-bee/alertd/internal/metrics"
	"github.com/good-yellow-bee/alertd/internal/models"
	"github.com/good-yellow-bee/alertd/internal/notifier"
	"github.com/good-yellow-bee/alertd/internal/storage"
)

// DefaultStoreTimeout bounds a single store-backed operation.
const DefaultStoreTimeout = 5 * time.Second

// TransientError marks a failure the caller may resolve by
// redelivering the event; the pipeline absorbs redelivered receive
// ids, so retries never double-count.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Result is the outcome of submitting one event.
type Result struct {
	// Alert is set unless the event was suppressed.
	Alert *models.Alert `json:"alert,omitempty"`
	// Created reports whether a new alert was created.
	Created bool `json:"created"`
	// Suppressed reports the event fell inside an active blackout and
	// produced no mutation; BlackoutID names the window.
	Suppressed bool   `json:"suppressed"`
	BlackoutID string `json:"blackoutId,omitempty"`
	// Issue is the issue the alert was linked under, when classified.
	Issue *models.Issue `json:"issue,omitempty"`
}

// Options configures the engine.
type Options struct {
	// StoreTimeout bounds each store-backed operation. Zero means
	// DefaultStoreTimeout.
	StoreTimeout time.Duration
	// HousekeepingInterval is how often timed-out alerts are swept.
	// Zero disables the sweep loop (RunHousekeeping returns nil).
	HousekeepingInterval time.Duration
	// MaxConflictRetries bounds optimistic-concurrency retries per
	// operation. Non-positive keeps the package defaults.
	MaxConflictRetries int
}

// Engine is the correlation core behind the API surface.
type Engine struct {
	store      storage.Storage
	matcher    *dedup.Matcher
	classifier *correlation.Engine
	filter     *blackout.Filter
	aggregator *issues.Aggregator
	monitor    *heartbeat.Monitor
	dispatcher *notifier.Dispatcher

	storeTimeout  time.Duration
	sweepInterval time.Duration
	now           func() time.Time
}

// New assembles the pipeline over a store and the pattern/blackout
// snapshot sources.
func New(store storage.Storage, patterns correlation.PatternSource, blackouts blackout.Source, opts Options) *Engine {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	e := &Engine{
		store: store,
		classifier: correlation.NewEngine(patterns).
			WithEvalErrorHook(func() { metrics.RuleEvalErrorsTotal.Inc() }),
		filter: blackout.NewFilter(blackouts),
		dispatcher: notifier.NewDispatcher().
			WithDropHook(func() { metrics.ChangesDroppedTotal.Inc() }),
		storeTimeout:  opts.StoreTimeout,
		sweepInterval: opts.HousekeepingInterval,
		now:           func() time.Time { return time.Now().UTC() },
	}
	e.matcher = dedup.NewMatcher(store.Alerts()).
		WithConflictHook(func() { metrics.ConflictRetriesTotal.Inc() }).
		WithMaxRetries(opts.MaxConflictRetries)
	e.aggregator = issues.NewAggregator(store.Issues(), store.Alerts()).
		WithConflictHook(func() { metrics.ConflictRetriesTotal.Inc() }).
		WithMaxRetries(opts.MaxConflictRetries)
	e.monitor = heartbeat.NewMonitor(store.Heartbeats())
	return e
}

// WithClock overrides the engine's clock and that of its parts, for
// tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	e.matcher.WithClock(now)
	e.aggregator.WithClock(now)
	e.monitor.WithClock(now)
	return e
}

// Subscribe attaches a change-notification subscriber.
func (e *Engine) Subscribe(buffer int) (<-chan notifier.Change, func()) {
	return e.dispatcher.Subscribe(buffer)
}

// Close shuts down the notification stream.
func (e *Engine) Close() {
	e.dispatcher.Close()
}

// SubmitEvent runs one event through the pipeline: validation, the
// blackout filter, deduplication into its alert and, for alerts not
// yet linked, correlation into an issue. Validation failures return a
// models.ValidationError; exhausted conflict retries surface as a
// TransientError and the event may be redelivered.
func (e *Engine) SubmitEvent(ctx context.Context, ev *models.Event) (*Result, error) {
	now := e.now()
	if err := ev.Validate(now); err != nil {
		metrics.EventsRejectedTotal.Inc()
		return nil, err
	}
	metrics.EventsReceivedTotal.WithLabelValues(ev.Environment).Inc()

	if suppressed, blackoutID := e.filter.IsSuppressed(ev, now); suppressed {
		metrics.EventsSuppressedTotal.WithLabelValues(ev.Environment).Inc()
		log.Printf("event %s/%s suppressed by blackout %s", ev.Resource, ev.Event, blackoutID)
		return &Result{Suppressed: true, BlackoutID: blackoutID}, nil
	}

	ingestCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	alert, created, err := e.matcher.Ingest(ingestCtx, ev)
	if err != nil {
		if errors.Is(err, dedup.ErrRetriesExhausted) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &TransientError{Err: err}
		}
		return nil, err
	}

	if created {
		metrics.AlertsCreatedTotal.Inc()
		e.dispatcher.Publish(notifier.Change{Type: notifier.AlertCreated, Alert: alert, Timestamp: now})
	} else {
		metrics.AlertsUpdatedTotal.Inc()
		e.dispatcher.Publish(notifier.Change{Type: notifier.AlertUpdated, Alert: alert, Timestamp: now})
	}

	result := &Result{Alert: alert, Created: created}

	// Classification runs for new alerts and for alerts still
	// unlinked; duplicate updates of an already linked alert keep
	// their grouping.
	if created || alert.IssueID == "" {
		if issue, issueCreated := e.linkClassified(ctx, alert); issue != nil {
			result.Issue = issue
			change := notifier.IssueRecomputed
			if issueCreated {
				change = notifier.IssueCreated
			}
			e.dispatcher.Publish(notifier.Change{Type: change, Issue: issue, Timestamp: now})
		}
	}
	return result, nil
}

// linkClassified classifies the alert and links it under the decided
// grouping key. Aggregation failures do not fail the ingest; the alert
// is already persisted and the link is retried on the next event.
func (e *Engine) linkClassified(ctx context.Context, alert *models.Alert) (*models.Issue, bool) {
	decision, ok := e.classifier.Classify(alert)
	if !ok {
		return nil, false
	}

	linkCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	issue, issueCreated, err := e.aggregator.LinkAlerts(linkCtx, decision.GroupKey, decision.PatternID, []string{alert.ID}, "")
	if err != nil {
		log.Printf("link alert %s under %s: %v", alert.ID, decision.GroupKey, err)
		return nil, false
	}
	alert.IssueID = issue.ID
	if issueCreated {
		metrics.IssuesCreatedTotal.Inc()
		metrics.IssuesOpen.Inc()
		log.Printf("issue created: %s", issues.Summarize(issue))
	}
	return issue, issueCreated
}

// LinkAlertsToIssue is the administrative mass-link operation.
func (e *Engine) LinkAlertsToIssue(ctx context.Context, issueID string, alertIDs []string, user string) (*models.Issue, error) {
	opCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	issue, err := e.aggregator.LinkAlertsToIssue(opCtx, issueID, alertIDs, user)
	if err != nil {
		return nil, e.wrapTransient(err)
	}
	e.dispatcher.Publish(notifier.Change{Type: notifier.IssueRecomputed, Issue: issue, Timestamp: e.now()})
	return issue, nil
}

// UnlinkAlertsFromIssue is the administrative mass-unlink operation.
// Draining the member set closes the issue.
func (e *Engine) UnlinkAlertsFromIssue(ctx context.Context, issueID string, alertIDs []string, user string) (*models.Issue, error) {
	opCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	issue, err := e.aggregator.UnlinkAlerts(opCtx, issueID, alertIDs, user)
	if err != nil {
		return nil, e.wrapTransient(err)
	}
	if issue.Status == models.StatusClosed {
		metrics.IssuesClosedTotal.Inc()
		metrics.IssuesOpen.Dec()
		e.dispatcher.Publish(notifier.Change{Type: notifier.IssueClosed, Issue: issue, Timestamp: e.now()})
	} else {
		e.dispatcher.Publish(notifier.Change{Type: notifier.IssueRecomputed, Issue: issue, Timestamp: e.now()})
	}
	return issue, nil
}

// CloseIssue resolves an issue regardless of remaining members.
func (e *Engine) CloseIssue(ctx context.Context, issueID, user string) (*models.Issue, error) {
	opCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	issue, err := e.aggregator.Close(opCtx, issueID, user)
	if err != nil {
		return nil, e.wrapTransient(err)
	}
	metrics.IssuesClosedTotal.Inc()
	metrics.IssuesOpen.Dec()
	e.dispatcher.Publish(notifier.Change{Type: notifier.IssueClosed, Issue: issue, Timestamp: e.now()})
	return issue, nil
}

// GetAlert returns an alert with its history.
func (e *Engine) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	opCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	return e.store.Alerts().GetByID(opCtx, id)
}

// GetIssue returns an issue by id.
func (e *Engine) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	opCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	return e.store.Issues().GetByID(opCtx, id)
}

// ListOpenIssues returns all non-closed issues.
func (e *Engine) ListOpenIssues(ctx context.Context) ([]*models.Issue, error) {
	opCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	return e.store.Issues().ListOpen(opCtx)
}

// RecordHeartbeat records a liveness beat for an origin.
func (e *Engine) RecordHeartbeat(ctx context.Context, origin, tenant string, timeout time.Duration, tags []string, beatType string) (*models.Heartbeat, error) {
	opCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	hb, err := e.monitor.Beat(opCtx, origin, tenant, timeout, tags, beatType)
	if err != nil {
		return nil, err
	}
	metrics.HeartbeatsReceivedTotal.Inc()
	return hb, nil
}

// Heartbeats returns the heartbeat monitor for read-side queries.
func (e *Engine) Heartbeats() *heartbeat.Monitor {
	return e.monitor
}

func (e *Engine) wrapTransient(err error) error {
	if errors.Is(err, issues.ErrRetriesExhausted) || errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Err: err}
	}
	return err
}
