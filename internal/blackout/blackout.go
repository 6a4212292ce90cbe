// Package blackout suppresses events that fall inside administrator
// defined quiet windows. Windows are owned by an external collaborator
// and served to the filter as a read-only snapshot.
package blackout

import (
	"fmt"
	"sort"
	"time"

	"github.com/good-yellow-bee/alertd/internal/models"
)

// Blackout is one suppression window. Environment must match exactly;
// every other selector narrows the match only when populated, so an
// absent field is a wildcard. The tag list matches when it is a subset
// of the event's tags.
type Blackout struct {
	ID          string    `yaml:"id"`
	Priority    int       `yaml:"priority"`
	Environment string    `yaml:"environment"`
	Service     []string  `yaml:"service,omitempty"`
	Resource    string    `yaml:"resource,omitempty"`
	Event       string    `yaml:"event,omitempty"`
	Group       string    `yaml:"group,omitempty"`
	Tags        []string  `yaml:"tags,omitempty"`
	Origin      string    `yaml:"origin,omitempty"`
	Tenant      string    `yaml:"tenant,omitempty"`
	StartTime   time.Time `yaml:"start_time"`
	EndTime     time.Time `yaml:"end_time"`
}

// Validate checks the window configuration.
func (b *Blackout) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("blackout id is required")
	}
	if b.Environment == "" {
		return fmt.Errorf("blackout %q: environment is required", b.ID)
	}
	if b.StartTime.IsZero() || b.EndTime.IsZero() {
		return fmt.Errorf("blackout %q: start_time and end_time are required", b.ID)
	}
	if !b.EndTime.After(b.StartTime) {
		return fmt.Errorf("blackout %q: end_time must be after start_time", b.ID)
	}
	return nil
}

// Active reports whether now falls inside the window, inclusive on
// both ends.
func (b *Blackout) Active(now time.Time) bool {
	return !now.Before(b.StartTime) && !now.After(b.EndTime)
}

// Matches reports whether an active window suppresses the event.
func (b *Blackout) Matches(ev *models.Event, now time.Time) bool {
	if !b.Active(now) {
		return false
	}
	if b.Environment != ev.Environment {
		return false
	}
	if b.Tenant != "" && b.Tenant != ev.Tenant {
		return false
	}
	if b.Resource != "" && b.Resource != ev.Resource {
		return false
	}
	if b.Event != "" && b.Event != ev.Event {
		return false
	}
	if b.Group != "" && b.Group != ev.Group {
		return false
	}
	if b.Origin != "" && b.Origin != ev.Origin {
		return false
	}
	if len(b.Service) > 0 && !anyOverlap(b.Service, ev.Service) {
		return false
	}
	if len(b.Tags) > 0 && !subset(b.Tags, ev.Tags) {
		return false
	}
	return true
}

func anyOverlap(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}

func subset(want, have []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if w == h {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// sortBlackouts orders windows by ascending priority, ties by id, so
// the first match is deterministic.
func sortBlackouts(blackouts []*Blackout) {
	sort.SliceStable(blackouts, func(i, j int) bool {
		if blackouts[i].Priority != blackouts[j].Priority {
			return blackouts[i].Priority < blackouts[j].Priority
		}
		return blackouts[i].ID < blackouts[j].ID
	})
}
