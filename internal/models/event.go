package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout is applied to events that do not carry their own.
const DefaultTimeout = 24 * time.Hour

// ValidationError reports an event that is missing a mandatory identity
// field or carries malformed data. Such events are rejected before any
// mutation and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: %s %s", e.Field, e.Reason)
}

// Event is a single incoming report of a monitored condition, as handed
// to the core by the request-handling collaborator.
type Event struct {
	ID          string            `json:"id"`
	Resource    string            `json:"resource"`
	Event       string            `json:"event"`
	Environment string            `json:"environment"`
	Tenant      string            `json:"tenant,omitempty"`
	Severity    Severity          `json:"severity"`
	Correlate   []string          `json:"correlate,omitempty"`
	Service     []string          `json:"service,omitempty"`
	Group       string            `json:"group,omitempty"`
	Value       string            `json:"value,omitempty"`
	Text        string            `json:"text,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Origin      string            `json:"origin,omitempty"`
	Type        string            `json:"type,omitempty"`
	CreateTime  time.Time         `json:"createTime"`
	Timeout     time.Duration     `json:"timeout,omitempty"`
	RawData     string            `json:"rawData,omitempty"`
}

// Validate checks mandatory fields and normalizes defaults. It assigns a
// receive id when the event has none and must be called before the event
// enters the pipeline.
func (e *Event) Validate(now time.Time) error {
	if e.Resource == "" {
		return &ValidationError{Field: "resource", Reason: "is required"}
	}
	if e.Event == "" {
		return &ValidationError{Field: "event", Reason: "is required"}
	}
	if e.Environment == "" {
		return &ValidationError{Field: "environment", Reason: "is required"}
	}
	for key := range e.Attributes {
		if strings.ContainsAny(key, ".$") {
			return &ValidationError{Field: "attributes", Reason: fmt.Sprintf("key %q must not contain '.' or '$'", key)}
		}
	}
	if e.Timeout < 0 {
		return &ValidationError{Field: "timeout", Reason: "must not be negative"}
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Severity == "" {
		e.Severity = SeverityNormal
	}
	if e.Group == "" {
		e.Group = "Misc"
	}
	if e.Timeout == 0 {
		e.Timeout = DefaultTimeout
	}
	if e.CreateTime.IsZero() {
		e.CreateTime = now
	}
	for i, tag := range e.Tags {
		e.Tags[i] = strings.TrimSpace(tag)
	}
	if len(e.Correlate) > 0 && !contains(e.Correlate, e.Event) {
		e.Correlate = append(e.Correlate, e.Event)
	}
	return nil
}

// Key returns the identity key of the event.
func (e *Event) Key() IdentityKey {
	return IdentityKey{
		Environment: e.Environment,
		Resource:    e.Resource,
		Event:       e.Event,
		Tenant:      e.Tenant,
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
