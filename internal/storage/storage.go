// Package storage provides the transactional store behind the
// correlation core: repositories for alerts, issues and heartbeats with
// optimistic concurrency checks.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/good-yellow-bee/alertd/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an optimistic version check fails because
// the record was mutated concurrently. Callers re-read the freshest
// state and retry within their bounded retry budget.
var ErrConflict = errors.New("concurrent modification")

// Storage is the root interface handed to the core.
type Storage interface {
	// Open initializes the underlying database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate applies schema migrations.
	Migrate() error

	Alerts() AlertRepository
	Issues() IssueRepository
	Heartbeats() HeartbeatRepository
}

// AlertRepository persists alerts and their append-only history. The
// alert row and its new history entries are always committed in a single
// transaction: either both land or neither does.
type AlertRepository interface {
	// Create inserts a new alert together with its initial history.
	Create(ctx context.Context, alert *models.Alert) error
	// GetByID returns the alert with its full ordered history.
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	// GetByIDs returns the alerts for the given ids, without history.
	// Missing ids are skipped.
	GetByIDs(ctx context.Context, ids []string) ([]*models.Alert, error)
	// FindCandidates returns all alerts for an (environment, resource,
	// tenant) triple, without history, closed ones included so a new
	// event can reopen them. The dedup matcher narrows these by event
	// name and correlate set.
	FindCandidates(ctx context.Context, environment, resource, tenant string) ([]*models.Alert, error)
	// Update persists a mutated alert and appends the given history
	// entries atomically. Returns ErrConflict when alert.Version is
	// stale.
	Update(ctx context.Context, alert *models.Alert, entries []models.HistoryEntry) error
	// ListTimedOut returns active alerts whose timeout elapsed before
	// the given time.
	ListTimedOut(ctx context.Context, now time.Time) ([]*models.Alert, error)
	// History returns an alert's history, oldest first.
	History(ctx context.Context, alertID string) ([]models.HistoryEntry, error)
}

// IssueRepository persists issues.
type IssueRepository interface {
	Create(ctx context.Context, issue *models.Issue) error
	GetByID(ctx context.Context, id string) (*models.Issue, error)
	// GetOpenByGroupKey returns the non-closed issue for a grouping
	// key, or ErrNotFound.
	GetOpenByGroupKey(ctx context.Context, groupKey string) (*models.Issue, error)
	// Update persists a mutated issue. Returns ErrConflict when
	// issue.Version is stale.
	Update(ctx context.Context, issue *models.Issue) error
	ListOpen(ctx context.Context) ([]*models.Issue, error)
}

// HeartbeatRepository persists liveness records keyed by
// (origin, tenant).
type HeartbeatRepository interface {
	// Upsert creates the record on first beat and bumps receive time
	// and count on subsequent beats.
	Upsert(ctx context.Context, hb *models.Heartbeat) (*models.Heartbeat, error)
	Get(ctx context.Context, origin, tenant string) (*models.Heartbeat, error)
	List(ctx context.Context, tenant string) ([]*models.Heartbeat, error)
	Delete(ctx context.Context, origin, tenant string) error
}
