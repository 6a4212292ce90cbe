package correlation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestClassifyPriorityOrder(t *testing.T) {
	alert := classifiableAlert()

	low := &Pattern{
		ID: "p-low", Name: "ByEvent", Priority: 20,
		Match:   Predicate{Equals: &EqualsPredicate{Field: "environment", Value: "prod"}},
		GroupBy: "field:event",
	}
	high := &Pattern{
		ID: "p-high", Name: "Hostname", Priority: 10,
		Match:   Predicate{TagPresent: "host"},
		GroupBy: "tag:host",
	}

	engine := NewEngine(Static(low, high))
	decision, ok := engine.Classify(alert)
	if !ok {
		t.Fatal("expected a match")
	}
	if decision.PatternID != "p-high" {
		t.Errorf("winner = %s, want the lower priority value", decision.PatternID)
	}
	if decision.GroupKey != "Hostname:web1" {
		t.Errorf("GroupKey = %q", decision.GroupKey)
	}
}

func TestClassifyPriorityTieBreaksByID(t *testing.T) {
	alert := classifiableAlert()
	match := Predicate{Equals: &EqualsPredicate{Field: "environment", Value: "prod"}}

	b := &Pattern{ID: "p-b", Name: "B", Priority: 10, Match: match, GroupBy: "field:event"}
	a := &Pattern{ID: "p-a", Name: "A", Priority: 10, Match: match, GroupBy: "field:event"}

	engine := NewEngine(Static(b, a))
	decision, ok := engine.Classify(alert)
	if !ok || decision.PatternID != "p-a" {
		t.Errorf("winner = %+v, want p-a on id tie-break", decision)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	alert := classifiableAlert()
	engine := NewEngine(Static(
		&Pattern{ID: "p1", Name: "Hostname", Priority: 10, Match: Predicate{TagPresent: "host"}, GroupBy: "tag:host"},
		&Pattern{ID: "p2", Name: "ByEvent", Priority: 10, Match: Predicate{TagPresent: "host"}, GroupBy: "field:event"},
	))

	first, ok := engine.Classify(alert)
	if !ok {
		t.Fatal("expected a match")
	}
	for i := 0; i < 10; i++ {
		again, ok := engine.Classify(alert)
		if !ok || again != first {
			t.Fatalf("classification changed: %+v vs %+v", again, first)
		}
	}
}

func TestClassifyEvalErrorFailsOpen(t *testing.T) {
	alert := classifiableAlert()

	broken := &Pattern{
		ID: "p-broken", Name: "Broken", Priority: 1,
		Match:   Predicate{Equals: &EqualsPredicate{Field: "no-such-field", Value: "x"}},
		GroupBy: "field:event",
	}
	fallback := &Pattern{
		ID: "p-ok", Name: "Hostname", Priority: 2,
		Match:   Predicate{TagPresent: "host"},
		GroupBy: "tag:host",
	}

	engine := NewEngine(Static(broken, fallback))
	decision, ok := engine.Classify(alert)
	if !ok || decision.PatternID != "p-ok" {
		t.Errorf("decision = %+v, want fall-through to p-ok", decision)
	}
	if engine.Stats().EvalErrors != 1 {
		t.Errorf("EvalErrors = %d, want 1", engine.Stats().EvalErrors)
	}
}

func TestClassifyMissingGroupTagFallsThrough(t *testing.T) {
	alert := classifiableAlert()

	noTag := &Pattern{
		ID: "p-rack", Name: "Rack", Priority: 1,
		Match:   Predicate{Equals: &EqualsPredicate{Field: "environment", Value: "prod"}},
		GroupBy: "tag:rack",
	}
	fallback := &Pattern{
		ID: "p-host", Name: "Hostname", Priority: 2,
		Match:   Predicate{TagPresent: "host"},
		GroupBy: "tag:host",
	}

	engine := NewEngine(Static(noTag, fallback))
	decision, ok := engine.Classify(alert)
	if !ok || decision.PatternID != "p-host" {
		t.Errorf("decision = %+v, want p-host", decision)
	}
}

func TestClassifyInactiveAndNoMatch(t *testing.T) {
	alert := classifiableAlert()
	inactive := false

	engine := NewEngine(Static(&Pattern{
		ID: "p1", Name: "Hostname", Active: &inactive,
		Match:   Predicate{TagPresent: "host"},
		GroupBy: "tag:host",
	}))
	if _, ok := engine.Classify(alert); ok {
		t.Error("inactive pattern must not match")
	}

	engine = NewEngine(Static())
	if _, ok := engine.Classify(alert); ok {
		t.Error("empty pattern set must not match")
	}
}

const patternsYAML = `
patterns:
  - id: p-host
    name: Hostname
    priority: 10
    group_by: "tag:host"
    match:
      all:
        - equals: {field: environment, value: prod}
        - tag_present: host
  - id: p-event
    name: ByEvent
    priority: 20
    group_by: "field:event"
    match:
      in:
        field: event
        values: [cpu-high, disk-full]
`

func TestLoadPatterns(t *testing.T) {
	patterns, err := LoadPatterns(strings.NewReader(patternsYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(patterns) != 2 {
		t.Fatalf("patterns = %d, want 2", len(patterns))
	}
	if patterns[0].ID != "p-host" || patterns[1].ID != "p-event" {
		t.Errorf("order = %s, %s", patterns[0].ID, patterns[1].ID)
	}

	engine := NewEngine(Static(patterns...))
	decision, ok := engine.Classify(classifiableAlert())
	if !ok || decision.GroupKey != "Hostname:web1" {
		t.Errorf("decision = %+v", decision)
	}
}

func TestLoadPatternsRejectsDuplicateIDs(t *testing.T) {
	doc := `
patterns:
  - {id: p1, name: A, group_by: "field:event", match: {tag_present: host}}
  - {id: p1, name: B, group_by: "field:event", match: {tag_present: host}}
`
	if _, err := LoadPatterns(strings.NewReader(doc)); err == nil {
		t.Error("expected duplicate id error")
	}
}

func TestFileSourceReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	if err := os.WriteFile(path, []byte(patternsYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	source, err := NewFileSource(path, 0)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	if len(source.Patterns()) != 2 {
		t.Fatalf("initial patterns = %d, want 2", len(source.Patterns()))
	}

	updated := `
patterns:
  - id: p-only
    name: Hostname
    priority: 1
    group_by: "tag:host"
    match: {tag_present: host}
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := source.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(source.Patterns()) != 1 || source.Patterns()[0].ID != "p-only" {
		t.Errorf("patterns after reload = %+v", source.Patterns())
	}

	// A broken file keeps the previous snapshot.
	if err := os.WriteFile(path, []byte("patterns: [{id: broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := source.Reload(); err == nil {
		t.Error("expected reload error for broken YAML")
	}
	if len(source.Patterns()) != 1 {
		t.Errorf("snapshot lost after failed reload: %+v", source.Patterns())
	}
}
