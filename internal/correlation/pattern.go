package correlation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/good-yellow-bee/alertd/internal/models"
)

// Pattern is a correlation rule. Patterns are evaluated in ascending
// priority order with ties broken by id, and the first whose predicate
// matches decides the grouping key.
type Pattern struct {
	// ID is the unique identifier for the pattern.
	ID string `yaml:"id"`
	// Name labels the pattern and prefixes the grouping keys it yields.
	Name string `yaml:"name"`
	// Priority orders evaluation; lower values are tried first.
	Priority int `yaml:"priority"`
	// Active controls whether the pattern is evaluated. Defaults to true.
	Active *bool `yaml:"active,omitempty"`
	// Match is the predicate tried against each alert.
	Match Predicate `yaml:"match"`
	// GroupBy selects the grouping key source: "tag:<name>" takes the
	// value of a "name:value" tag, "field:event", "field:resource" and
	// "field:group" take the alert field.
	GroupBy string `yaml:"group_by"`

	CreateTime time.Time `yaml:"create_time,omitempty"`
	UpdateTime time.Time `yaml:"update_time,omitempty"`
}

// IsActive returns whether the pattern is evaluated.
func (p *Pattern) IsActive() bool {
	if p.Active == nil {
		return true
	}
	return *p.Active
}

// Validate checks the pattern configuration.
func (p *Pattern) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("pattern id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("pattern name is required for %q", p.ID)
	}
	if err := p.Match.Validate(); err != nil {
		return fmt.Errorf("pattern %q: match: %w", p.ID, err)
	}

	if name, ok := strings.CutPrefix(p.GroupBy, "tag:"); ok {
		if name == "" {
			return fmt.Errorf("pattern %q: group_by tag name is empty", p.ID)
		}
		return nil
	}
	if field, ok := strings.CutPrefix(p.GroupBy, "field:"); ok {
		switch field {
		case "event", "resource", "group":
			return nil
		}
		return fmt.Errorf("pattern %q: group_by field must be event, resource or group, got %q", p.ID, field)
	}
	return fmt.Errorf("pattern %q: group_by must be tag:<name> or field:<name>, got %q", p.ID, p.GroupBy)
}

// GroupKey derives the grouping key for an alert this pattern matched.
// The key is the pattern name joined with the selected value. A tag
// source whose tag is absent yields ok=false and the alert falls
// through to lower-priority patterns.
func (p *Pattern) GroupKey(alert *models.Alert) (string, bool) {
	var value string
	if name, ok := strings.CutPrefix(p.GroupBy, "tag:"); ok {
		values := alert.TagValues(name)
		if len(values) == 0 {
			return "", false
		}
		value = values[0]
	} else if field, ok := strings.CutPrefix(p.GroupBy, "field:"); ok {
		switch field {
		case "event":
			value = alert.Event
		case "resource":
			value = alert.Resource
		case "group":
			value = alert.Group
		}
	}
	if value == "" {
		return "", false
	}
	return p.Name + ":" + value, true
}

// sortPatterns orders patterns by ascending priority, ties by id, so
// classification is deterministic for a given pattern set.
func sortPatterns(patterns []*Pattern) {
	sort.SliceStable(patterns, func(i, j int) bool {
		if patterns[i].Priority != patterns[j].Priority {
			return patterns[i].Priority < patterns[j].Priority
		}
		return patterns[i].ID < patterns[j].ID
	})
}
