package models

import (
	"time"

	"github.com/google/uuid"
)

// Issue is an aggregate grouping of related alerts. Its derived fields
// (Severity, HostCritical, Hosts, ProjectGroups, InfoSystems,
// LastAlertTime) are always recomputed from the current member set and
// never independently mutated.
type Issue struct {
	ID              string            `json:"id"`
	Summary         string            `json:"summary"`
	Severity        Severity          `json:"severity"`
	HostCritical    bool              `json:"hostCritical"`
	DutyAdmin       string            `json:"dutyAdmin,omitempty"`
	Description     string            `json:"description,omitempty"`
	Status          Status            `json:"status"`
	StatusDuration  time.Duration     `json:"statusDuration,omitempty"`
	CreateTime      time.Time         `json:"createTime"`
	LastAlertTime   time.Time         `json:"lastAlertTime,omitempty"`
	ResolveTime     *time.Time        `json:"resolveTime,omitempty"`
	PatternID       string            `json:"patternId,omitempty"`
	GroupKey        string            `json:"groupKey"`
	IncKey          string            `json:"incKey,omitempty"`
	SlackLink       string            `json:"slackLink,omitempty"`
	DisasterLink    string            `json:"disasterLink,omitempty"`
	EscalationGroup string            `json:"escalationGroup,omitempty"`
	Alerts          []string          `json:"alerts"`
	Hosts           []string          `json:"hosts"`
	ProjectGroups   []string          `json:"projectGroups"`
	InfoSystems     []string          `json:"infoSystems"`
	Attributes      map[string]string `json:"attributes,omitempty"`
	MasterIncident  string            `json:"masterIncident,omitempty"`

	History []IssueHistoryEntry `json:"history,omitempty"`

	// Version is the optimistic concurrency counter maintained by the
	// store.
	Version int64 `json:"-"`
}

// NewIssue creates an open issue for a grouping key, seeded from the
// alert that triggered it.
func NewIssue(groupKey, patternID string, seed *Alert, now time.Time) *Issue {
	iss := &Issue{
		ID:            uuid.NewString(),
		Summary:       seed.Event + " on " + seed.Resource,
		Severity:      seed.Severity,
		Status:        StatusOpen,
		CreateTime:    now,
		PatternID:     patternID,
		GroupKey:      groupKey,
		Alerts:        []string{},
		Hosts:         []string{},
		ProjectGroups: []string{},
		InfoSystems:   []string{},
	}
	iss.History = []IssueHistoryEntry{{
		Timestamp: now,
		Action:    "created",
		Details:   "issue created for group key " + groupKey,
	}}
	return iss
}

// HasMember reports whether the alert id is in the member set.
func (i *Issue) HasMember(alertID string) bool {
	return contains(i.Alerts, alertID)
}

// AddHistory appends an entry to the issue's action log.
func (i *Issue) AddHistory(now time.Time, action, user, details string) {
	i.History = append(i.History, IssueHistoryEntry{
		Timestamp: now,
		Action:    action,
		User:      user,
		Details:   details,
	})
}
