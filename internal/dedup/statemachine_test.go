package dedup

import (
	"fmt"
	"testing"
	"time"

	"github.com/good-yellow-bee/alertd/internal/models"
)

func makeEvent(t *testing.T, severity models.Severity, value string, now time.Time) *models.Event {
	t.Helper()
	ev := &models.Event{
		Resource:    "db1",
		Event:       "cpu-high",
		Environment: "prod",
		Severity:    severity,
		Value:       value,
	}
	if err := ev.Validate(now); err != nil {
		t.Fatal(err)
	}
	return ev
}

func TestNewAlertFromFirstEvent(t *testing.T) {
	now := time.Now().UTC()
	ev := makeEvent(t, models.SeverityMajor, "91%", now)
	alert := models.NewAlert(ev, now)

	if alert.DuplicateCount != 0 {
		t.Errorf("DuplicateCount = %d, want 0", alert.DuplicateCount)
	}
	if alert.Status != models.StatusOpen {
		t.Errorf("Status = %s, want open", alert.Status)
	}
	if len(alert.History) != 1 || alert.History[0].Type != models.ChangeNew {
		t.Errorf("history = %+v, want single new entry", alert.History)
	}
	if alert.PreviousSeverity != models.SeverityUnknown {
		t.Errorf("PreviousSeverity = %s, want unknown", alert.PreviousSeverity)
	}
	if alert.TrendIndication != models.TrendMoreSevere {
		t.Errorf("TrendIndication = %s, want moreSevere", alert.TrendIndication)
	}
}

func TestApplySeverityChange(t *testing.T) {
	now := time.Now().UTC()
	alert := models.NewAlert(makeEvent(t, models.SeverityMajor, "91%", now), now)
	alert.DuplicateCount = 4

	ev := makeEvent(t, models.SeverityCritical, "97%", now)
	entries := Apply(alert, ev, now.Add(time.Second))

	if alert.Severity != models.SeverityCritical {
		t.Errorf("Severity = %s", alert.Severity)
	}
	if alert.PreviousSeverity != models.SeverityMajor {
		t.Errorf("PreviousSeverity = %s, want major", alert.PreviousSeverity)
	}
	if alert.TrendIndication != models.TrendMoreSevere {
		t.Errorf("TrendIndication = %s", alert.TrendIndication)
	}
	if alert.DuplicateCount != 0 {
		t.Errorf("DuplicateCount = %d, want reset to 0", alert.DuplicateCount)
	}
	if alert.Repeat {
		t.Error("Repeat = true, want false")
	}
	if len(entries) != 1 || entries[0].Type != models.ChangeSeverity {
		t.Errorf("entries = %+v, want one severity-change", entries)
	}
}

func TestApplyValueChange(t *testing.T) {
	now := time.Now().UTC()
	alert := models.NewAlert(makeEvent(t, models.SeverityMajor, "91%", now), now)

	ev := makeEvent(t, models.SeverityMajor, "93%", now)
	entries := Apply(alert, ev, now.Add(time.Second))

	if alert.DuplicateCount != 1 {
		t.Errorf("DuplicateCount = %d, want 1", alert.DuplicateCount)
	}
	if !alert.Repeat {
		t.Error("Repeat = false, want true")
	}
	if alert.Value != "93%" {
		t.Errorf("Value = %s", alert.Value)
	}
	if len(entries) != 1 || entries[0].Type != models.ChangeValue {
		t.Errorf("entries = %+v, want one value-change", entries)
	}
}

func TestApplyIdenticalRepeat(t *testing.T) {
	now := time.Now().UTC()
	alert := models.NewAlert(makeEvent(t, models.SeverityMajor, "91%", now), now)

	// duplicate_count equals the number of identical events minus one,
	// repeat is true from the second event on.
	for i := 1; i <= 5; i++ {
		ev := makeEvent(t, models.SeverityMajor, "91%", now)
		entries := Apply(alert, ev, now.Add(time.Duration(i)*time.Second))
		if alert.DuplicateCount != i {
			t.Fatalf("after %d repeats DuplicateCount = %d", i, alert.DuplicateCount)
		}
		if !alert.Repeat {
			t.Fatalf("after %d repeats Repeat = false", i)
		}
		if len(entries) != 1 || entries[0].Type != models.ChangeDedup {
			t.Fatalf("entries = %+v, want one dedup entry", entries)
		}
	}
	if len(alert.History) != 1 {
		t.Errorf("Apply must not touch the in-memory history, got %d entries", len(alert.History))
	}
}

func TestApplyEscalationLadder(t *testing.T) {
	now := time.Now().UTC()
	ladder := []models.Severity{
		models.SeverityWarning,
		models.SeverityMinor,
		models.SeverityMajor,
		models.SeverityCritical,
	}
	alert := models.NewAlert(makeEvent(t, ladder[0], "v", now), now)

	for i := 1; i < len(ladder); i++ {
		prev := alert.Severity
		Apply(alert, makeEvent(t, ladder[i], "v", now), now.Add(time.Duration(i)*time.Second))
		if alert.TrendIndication != models.TrendMoreSevere {
			t.Errorf("step %d: TrendIndication = %s, want moreSevere", i, alert.TrendIndication)
		}
		if alert.PreviousSeverity != prev {
			t.Errorf("step %d: PreviousSeverity = %s, want %s", i, alert.PreviousSeverity, prev)
		}
	}
}

func TestApplyReopensClosedAlert(t *testing.T) {
	now := time.Now().UTC()
	alert := models.NewAlert(makeEvent(t, models.SeverityMajor, "91%", now), now)
	alert.Status = models.StatusClosed

	ev := makeEvent(t, models.SeverityMajor, "92%", now)
	entries := Apply(alert, ev, now.Add(time.Minute))

	if alert.Status != models.StatusOpen {
		t.Errorf("Status = %s, want open", alert.Status)
	}
	if alert.PreviousSeverity != models.SeverityMajor {
		t.Errorf("PreviousSeverity = %s, want severity held at close", alert.PreviousSeverity)
	}
	if len(entries) == 0 || entries[0].Type != models.ChangeStatus {
		t.Errorf("entries = %+v, want leading status-change", entries)
	}
}

func TestApplyReopenWithSeverityChange(t *testing.T) {
	now := time.Now().UTC()
	alert := models.NewAlert(makeEvent(t, models.SeverityMajor, "91%", now), now)
	alert.Status = models.StatusExpired

	ev := makeEvent(t, models.SeverityCritical, "99%", now)
	entries := Apply(alert, ev, now.Add(time.Minute))

	if alert.Status != models.StatusOpen {
		t.Errorf("Status = %s, want open", alert.Status)
	}
	if alert.PreviousSeverity != models.SeverityMajor {
		t.Errorf("PreviousSeverity = %s, want major", alert.PreviousSeverity)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want status-change plus severity-change", len(entries))
	}
	if entries[0].Type != models.ChangeStatus || entries[1].Type != models.ChangeSeverity {
		t.Errorf("entry types = %s, %s", entries[0].Type, entries[1].Type)
	}
}

func TestApplyAbsorbsRedelivery(t *testing.T) {
	now := time.Now().UTC()
	ev := makeEvent(t, models.SeverityMajor, "91%", now)
	alert := models.NewAlert(ev, now)

	// Redelivering the exact same receive id must not double-count.
	entries := Apply(alert, ev, now.Add(time.Second))
	if entries != nil {
		t.Errorf("entries = %+v, want nil for redelivery", entries)
	}
	if alert.DuplicateCount != 0 {
		t.Errorf("DuplicateCount = %d, want 0", alert.DuplicateCount)
	}
}

func TestApplyMergesTags(t *testing.T) {
	now := time.Now().UTC()
	first := makeEvent(t, models.SeverityMajor, "v", now)
	first.Tags = []string{"host:web1"}
	alert := models.NewAlert(first, now)

	ev := makeEvent(t, models.SeverityMajor, "v", now)
	ev.Tags = []string{"host:web1", "critical_host"}
	Apply(alert, ev, now.Add(time.Second))

	if len(alert.Tags) != 2 {
		t.Errorf("Tags = %v, want deduplicated merge", alert.Tags)
	}
}

func ExampleApply() {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ev := &models.Event{Resource: "db1", Event: "cpu-high", Environment: "prod", Severity: models.SeverityMajor}
	_ = ev.Validate(now)
	alert := models.NewAlert(ev, now)

	repeat := &models.Event{Resource: "db1", Event: "cpu-high", Environment: "prod", Severity: models.SeverityMajor}
	_ = repeat.Validate(now)
	Apply(alert, repeat, now.Add(time.Second))

	fmt.Println(alert.DuplicateCount, alert.Repeat)
	// Output: 1 true
}
