// Package correlation groups alerts into issues. Patterns are
// prioritized rules whose predicates are a closed set of operators
// evaluated against alert fields, attributes and tags; the first
// matching pattern yields the issue grouping key.
package correlation

import (
	"fmt"
	"strings"

	"github.com/good-yellow-bee/alertd/internal/models"
)

// Predicate is one node of a pattern's match expression. Exactly one
// operator field must be set. Evaluation is pure and side-effect-free.
type Predicate struct {
	// Equals matches when the selected field equals a value.
	Equals *EqualsPredicate `yaml:"equals,omitempty"`
	// In matches when the selected field equals any of the values.
	In *InPredicate `yaml:"in,omitempty"`
	// TagPresent matches when the alert carries the tag, either bare
	// ("critical_host") or as a "name:value" prefix ("host:web1"
	// satisfies tag_present: host).
	TagPresent string `yaml:"tag_present,omitempty"`
	// All matches when every child predicate matches.
	All []Predicate `yaml:"all,omitempty"`
	// Any matches when at least one child predicate matches.
	Any []Predicate `yaml:"any,omitempty"`
	// Not inverts its child predicate.
	Not *Predicate `yaml:"not,omitempty"`
}

// EqualsPredicate compares one alert field against a literal.
type EqualsPredicate struct {
	Field string `yaml:"field"`
	Value string `yaml:"value"`
}

// InPredicate tests one alert field for membership in a value list.
type InPredicate struct {
	Field  string   `yaml:"field"`
	Values []string `yaml:"values"`
}

// Validate checks that exactly one operator is set and that selectors
// are well-formed, recursing into children.
func (p *Predicate) Validate() error {
	set := 0
	if p.Equals != nil {
		set++
		if p.Equals.Field == "" {
			return fmt.Errorf("equals: field is required")
		}
	}
	if p.In != nil {
		set++
		if p.In.Field == "" {
			return fmt.Errorf("in: field is required")
		}
		if len(p.In.Values) == 0 {
			return fmt.Errorf("in: values is required")
		}
	}
	if p.TagPresent != "" {
		set++
	}
	if len(p.All) > 0 {
		set++
		for i := range p.All {
			if err := p.All[i].Validate(); err != nil {
				return fmt.Errorf("all[%d]: %w", i, err)
			}
		}
	}
	if len(p.Any) > 0 {
		set++
		for i := range p.Any {
			if err := p.Any[i].Validate(); err != nil {
				return fmt.Errorf("any[%d]: %w", i, err)
			}
		}
	}
	if p.Not != nil {
		set++
		if err := p.Not.Validate(); err != nil {
			return fmt.Errorf("not: %w", err)
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one operator required, got %d", set)
	}
	return nil
}

// Eval evaluates the predicate against an alert. An error means the
// predicate could not be evaluated (unknown field selector); callers
// treat that as a non-match.
func (p *Predicate) Eval(alert *models.Alert) (bool, error) {
	switch {
	case p.Equals != nil:
		got, err := fieldValue(alert, p.Equals.Field)
		if err != nil {
			return false, err
		}
		return got == p.Equals.Value, nil

	case p.In != nil:
		got, err := fieldValue(alert, p.In.Field)
		if err != nil {
			return false, err
		}
		for _, v := range p.In.Values {
			if got == v {
				return true, nil
			}
		}
		return false, nil

	case p.TagPresent != "":
		return alert.HasTag(p.TagPresent) || len(alert.TagValues(p.TagPresent)) > 0, nil

	case len(p.All) > 0:
		for i := range p.All {
			ok, err := p.All[i].Eval(alert)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case len(p.Any) > 0:
		for i := range p.Any {
			ok, err := p.Any[i].Eval(alert)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case p.Not != nil:
		ok, err := p.Not.Eval(alert)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
	return false, fmt.Errorf("empty predicate")
}

// fieldValue resolves a field selector against an alert. Selectors are
// plain field names, "attr:<key>" for attributes, or "tag:<name>" for
// the value part of a "name:value" tag. Missing attributes and tags
// resolve to the empty string; an unknown selector is an error.
func fieldValue(alert *models.Alert, field string) (string, error) {
	if key, ok := strings.CutPrefix(field, "attr:"); ok {
		return alert.Attribute(key), nil
	}
	if name, ok := strings.CutPrefix(field, "tag:"); ok {
		values := alert.TagValues(name)
		if len(values) == 0 {
			return "", nil
		}
		return values[0], nil
	}

	switch field {
	case "event":
		return alert.Event, nil
	case "resource":
		return alert.Resource, nil
	case "environment":
		return alert.Environment, nil
	case "group":
		return alert.Group, nil
	case "origin":
		return alert.Origin, nil
	case "type":
		return alert.Type, nil
	case "tenant":
		return alert.Tenant, nil
	case "severity":
		return string(alert.Severity), nil
	case "status":
		return string(alert.Status), nil
	case "value":
		return alert.Value, nil
	case "text":
		return alert.Text, nil
	}
	return "", fmt.Errorf("unknown field selector %q", field)
}
