package models

import "time"

// ChangeType classifies an alert history entry.
type ChangeType string

const (
	// ChangeNew records alert creation.
	ChangeNew ChangeType = "new"
	// ChangeSeverity records a severity change.
	ChangeSeverity ChangeType = "severity-change"
	// ChangeStatus records a status transition.
	ChangeStatus ChangeType = "status-change"
	// ChangeValue records a value or text change at unchanged severity.
	ChangeValue ChangeType = "value-change"
	// ChangeDedup records an identical repeat, kept for audit continuity.
	ChangeDedup ChangeType = "dedup"
)

// HistoryEntry is one immutable record in an alert's append-only history.
// Entries are ordered by UpdateTime and never mutated or reordered.
type HistoryEntry struct {
	ID         string        `json:"id"`
	Event      string        `json:"event"`
	Severity   Severity      `json:"severity"`
	Status     Status        `json:"status"`
	Value      string        `json:"value"`
	Text       string        `json:"text"`
	Type       ChangeType    `json:"type"`
	UpdateTime time.Time     `json:"updateTime"`
	User       string        `json:"user,omitempty"` // empty means system
	Timeout    time.Duration `json:"timeout"`
}

// IssueHistoryEntry is one record in an issue's append-only action log.
type IssueHistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	User      string    `json:"user,omitempty"`
	Details   string    `json:"details,omitempty"`
}
