package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IdentityKey identifies one logical alert: repeated events with the same
// key deduplicate into a single alert record.
type IdentityKey struct {
	Environment string
	Resource    string
	Event       string
	Tenant      string
}

// String renders the key in a stable form usable for per-key locking.
func (k IdentityKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Environment, k.Resource, k.Event, k.Tenant)
}

// Alert is one monitored condition, deduplicated across repeated reports
// of the same identity key. At most one non-closed alert exists per key.
type Alert struct {
	ID          string            `json:"id"`
	Resource    string            `json:"resource"`
	Event       string            `json:"event"`
	Environment string            `json:"environment"`
	Tenant      string            `json:"tenant,omitempty"`
	Severity    Severity          `json:"severity"`
	Correlate   []string          `json:"correlate,omitempty"`
	Status      Status            `json:"status"`
	Service     []string          `json:"service,omitempty"`
	Group       string            `json:"group"`
	Value       string            `json:"value,omitempty"`
	Text        string            `json:"text,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Origin      string            `json:"origin,omitempty"`
	Type        string            `json:"type,omitempty"`
	CreateTime  time.Time         `json:"createTime"`
	Timeout     time.Duration     `json:"timeout"`
	RawData     string            `json:"rawData,omitempty"`

	DuplicateCount   int       `json:"duplicateCount"`
	Repeat           bool      `json:"repeat"`
	PreviousSeverity Severity  `json:"previousSeverity"`
	TrendIndication  Trend     `json:"trendIndication"`
	ReceiveTime      time.Time `json:"receiveTime"`
	LastReceiveID    string    `json:"lastReceiveId"`
	LastReceiveTime  time.Time `json:"lastReceiveTime"`
	UpdateTime       time.Time `json:"updateTime"`

	History []HistoryEntry `json:"history,omitempty"`
	IssueID string         `json:"issueId,omitempty"`

	// Version is the optimistic concurrency counter maintained by the
	// store. A stale version on update surfaces as a conflict.
	Version int64 `json:"-"`
}

// NewAlert creates an alert from the first event seen for its identity
// key, with the initial history entry already appended.
func NewAlert(ev *Event, now time.Time) *Alert {
	a := &Alert{
		ID:          uuid.NewString(),
		Resource:    ev.Resource,
		Event:       ev.Event,
		Environment: ev.Environment,
		Tenant:      ev.Tenant,
		Severity:    ev.Severity,
		Correlate:   ev.Correlate,
		Status:      StatusOpen,
		Service:     ev.Service,
		Group:       ev.Group,
		Value:       ev.Value,
		Text:        ev.Text,
		Tags:        ev.Tags,
		Attributes:  ev.Attributes,
		Origin:      ev.Origin,
		Type:        ev.Type,
		CreateTime:  ev.CreateTime,
		Timeout:     ev.Timeout,
		RawData:     ev.RawData,

		DuplicateCount:   0,
		Repeat:           false,
		PreviousSeverity: SeverityUnknown,
		TrendIndication:  TrendOf(SeverityUnknown, ev.Severity),
		ReceiveTime:      now,
		LastReceiveTime:  now,
		UpdateTime:       now,
	}
	a.LastReceiveID = ev.ID
	a.History = []HistoryEntry{{
		ID:         a.ID,
		Event:      a.Event,
		Severity:   a.Severity,
		Status:     a.Status,
		Value:      a.Value,
		Text:       a.Text,
		Type:       ChangeNew,
		UpdateTime: ev.CreateTime,
		Timeout:    a.Timeout,
	}}
	return a
}

// Key returns the alert's identity key.
func (a *Alert) Key() IdentityKey {
	return IdentityKey{
		Environment: a.Environment,
		Resource:    a.Resource,
		Event:       a.Event,
		Tenant:      a.Tenant,
	}
}

// MatchesEvent reports whether the event deduplicates into this alert:
// either the event names match or the incoming name appears in the
// alert's correlate set.
func (a *Alert) MatchesEvent(ev *Event) bool {
	if a.Event == ev.Event {
		return true
	}
	return contains(a.Correlate, ev.Event) || contains(ev.Correlate, a.Event)
}

// HasTag reports whether the alert carries the given tag.
func (a *Alert) HasTag(tag string) bool {
	return contains(a.Tags, tag)
}

// TagValues collects the values of "key:value" tags matching the given
// key, e.g. TagValues("host") over ["host:web1", "env:prod"] yields
// ["web1"].
func (a *Alert) TagValues(key string) []string {
	prefix := key + ":"
	var values []string
	for _, tag := range a.Tags {
		if strings.HasPrefix(tag, prefix) && len(tag) > len(prefix) {
			values = append(values, tag[len(prefix):])
		}
	}
	return values
}

// Attribute returns the named attribute or the empty string.
func (a *Alert) Attribute(key string) string {
	if a.Attributes == nil {
		return ""
	}
	return a.Attributes[key]
}
