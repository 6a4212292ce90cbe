package engine

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/good-yellow-bee/alertd/internal/metrics"
	"github.com/good-yellow-bee/alertd/internal/models"
	"github.com/good-yellow-bee/alertd/internal/notifier"
	"github.com/good-yellow-bee/alertd/internal/storage"
)

// RunHousekeeping expires idle alerts until the context is canceled.
// An alert whose last receive time plus timeout has passed transitions
// to expired with a status-change history entry. A zero sweep interval
// disables the loop.
func (e *Engine) RunHousekeeping(ctx context.Context) error {
	if e.sweepInterval <= 0 {
		return nil
	}
	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.SweepTimedOut(ctx)
		}
	}
}

// SweepTimedOut expires every active alert past its timeout and
// returns how many were expired. Conflicting updates are skipped; the
// next sweep retries them.
func (e *Engine) SweepTimedOut(ctx context.Context) int {
	now := e.now()

	opCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	timedOut, err := e.store.Alerts().ListTimedOut(opCtx, now)
	if err != nil {
		log.Printf("housekeeping: list timed out: %v", err)
		return 0
	}

	expired := 0
	for _, alert := range timedOut {
		alert.Status = models.StatusExpired
		alert.UpdateTime = now
		entry := models.HistoryEntry{
			ID:         alert.ID,
			Event:      alert.Event,
			Severity:   alert.Severity,
			Status:     models.StatusExpired,
			Value:      alert.Value,
			Text:       "alert timed out",
			Type:       models.ChangeStatus,
			UpdateTime: now,
			Timeout:    alert.Timeout,
		}
		if err := e.store.Alerts().Update(opCtx, alert, []models.HistoryEntry{entry}); err != nil {
			if !errors.Is(err, storage.ErrConflict) {
				log.Printf("housekeeping: expire alert %s: %v", alert.ID, err)
			}
			continue
		}
		expired++
		metrics.AlertsExpiredTotal.Inc()
		e.dispatcher.Publish(notifier.Change{Type: notifier.AlertClosed, Alert: alert, Timestamp: now})
	}
	if expired > 0 {
		log.Printf("housekeeping: expired %d alert(s)", expired)
	}
	return expired
}
