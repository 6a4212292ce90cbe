// Package heartbeat tracks liveness of reporting origins. It is a
// ledger only: staleness is read by an external collaborator that
// raises its own alerts about silent sources.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/good-yellow-bee/alertd/internal/models"
	"github.com/good-yellow-bee/alertd/internal/storage"
)

// DefaultTimeout applies when a beat carries no timeout of its own.
const DefaultTimeout = 5 * time.Minute

// Monitor upserts heartbeats by (origin, tenant) and answers staleness
// queries.
type Monitor struct {
	beats storage.HeartbeatRepository
	now   func() time.Time
}

// NewMonitor creates a Monitor over the given repository.
func NewMonitor(beats storage.HeartbeatRepository) *Monitor {
	return &Monitor{
		beats: beats,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the monitor's clock, for tests.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// Beat records a liveness signal: the first beat creates the record,
// subsequent beats advance the receive time and bump the count. A
// non-positive timeout falls back to DefaultTimeout.
func (m *Monitor) Beat(ctx context.Context, origin, tenant string, timeout time.Duration, tags []string, beatType string) (*models.Heartbeat, error) {
	if origin == "" {
		return nil, &models.ValidationError{Field: "origin", Reason: "is required"}
	}
	if timeout < 0 {
		return nil, &models.ValidationError{Field: "timeout", Reason: "must not be negative"}
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	hb := models.NewHeartbeat(origin, tenant, timeout, m.now())
	hb.Tags = tags
	hb.Type = beatType

	stored, err := m.beats.Upsert(ctx, hb)
	if err != nil {
		return nil, fmt.Errorf("record heartbeat: %w", err)
	}
	return stored, nil
}

// IsStale reports whether the origin missed its deadline. An origin
// that never beat is stale.
func (m *Monitor) IsStale(ctx context.Context, origin, tenant string) (bool, error) {
	hb, err := m.beats.Get(ctx, origin, tenant)
	if errors.Is(err, storage.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return hb.IsStale(m.now()), nil
}

// List returns the heartbeats for a tenant, all tenants when empty.
func (m *Monitor) List(ctx context.Context, tenant string) ([]*models.Heartbeat, error) {
	return m.beats.List(ctx, tenant)
}

// ListStale returns the heartbeats past their deadline.
func (m *Monitor) ListStale(ctx context.Context, tenant string) ([]*models.Heartbeat, error) {
	beats, err := m.beats.List(ctx, tenant)
	if err != nil {
		return nil, err
	}
	now := m.now()
	var stale []*models.Heartbeat
	for _, hb := range beats {
		if hb.IsStale(now) {
			stale = append(stale, hb)
		}
	}
	return stale, nil
}

// Delete removes an origin's record.
func (m *Monitor) Delete(ctx context.Context, origin, tenant string) error {
	return m.beats.Delete(ctx, origin, tenant)
}
