package dedup

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/good-yellow-bee/alertd/internal/models"
	"github.com/good-yellow-bee/alertd/internal/storage"
)

func openTestStorage(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err := store.Open(); err != nil {
		t.Fatalf("open storage: %v", err)
	}
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestIngestCreatesThenDeduplicates(t *testing.T) {
	store := openTestStorage(t)
	matcher := NewMatcher(store.Alerts())
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	first := makeEvent(t, models.SeverityMajor, "91%", now)
	alert, created, err := matcher.Ingest(ctx, first)
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if !created {
		t.Error("first ingest should create")
	}
	if alert.DuplicateCount != 0 {
		t.Errorf("DuplicateCount = %d, want 0", alert.DuplicateCount)
	}

	second := makeEvent(t, models.SeverityMajor, "91%", now)
	dup, created, err := matcher.Ingest(ctx, second)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if created {
		t.Error("second ingest should deduplicate, not create")
	}
	if dup.ID != alert.ID {
		t.Errorf("deduplicated into %s, want %s", dup.ID, alert.ID)
	}
	if dup.DuplicateCount != 1 || !dup.Repeat {
		t.Errorf("DuplicateCount = %d Repeat = %v", dup.DuplicateCount, dup.Repeat)
	}

	got, err := store.Alerts().GetByID(ctx, alert.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.DuplicateCount != 1 {
		t.Errorf("persisted DuplicateCount = %d, want 1", got.DuplicateCount)
	}
	if len(got.History) != 2 {
		t.Errorf("history length = %d, want 2", len(got.History))
	}
}

func TestIngestCorrelatedEvent(t *testing.T) {
	store := openTestStorage(t)
	matcher := NewMatcher(store.Alerts())
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	down := &models.Event{
		Resource:    "web1",
		Event:       "node-down",
		Environment: "prod",
		Severity:    models.SeverityCritical,
		Correlate:   []string{"node-up"},
	}
	if err := down.Validate(now); err != nil {
		t.Fatal(err)
	}
	alert, created, err := matcher.Ingest(ctx, down)
	if err != nil || !created {
		t.Fatalf("ingest node-down: created=%v err=%v", created, err)
	}

	up := &models.Event{
		Resource:    "web1",
		Event:       "node-up",
		Environment: "prod",
		Severity:    models.SeverityNormal,
		Correlate:   []string{"node-down"},
	}
	if err := up.Validate(now); err != nil {
		t.Fatal(err)
	}
	cleared, created, err := matcher.Ingest(ctx, up)
	if err != nil {
		t.Fatalf("ingest node-up: %v", err)
	}
	if created {
		t.Error("correlated event must reuse the existing alert")
	}
	if cleared.ID != alert.ID {
		t.Errorf("correlated into %s, want %s", cleared.ID, alert.ID)
	}
	if cleared.Event != "node-up" || cleared.Severity != models.SeverityNormal {
		t.Errorf("alert now %s/%s", cleared.Event, cleared.Severity)
	}
	if cleared.PreviousSeverity != models.SeverityCritical {
		t.Errorf("PreviousSeverity = %s, want critical", cleared.PreviousSeverity)
	}
	if cleared.TrendIndication != models.TrendLessSevere {
		t.Errorf("TrendIndication = %s", cleared.TrendIndication)
	}
}

func TestIngestReopensClosedAlert(t *testing.T) {
	store := openTestStorage(t)
	matcher := NewMatcher(store.Alerts())
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	alert, _, err := matcher.Ingest(ctx, makeEvent(t, models.SeverityMajor, "91%", now))
	if err != nil {
		t.Fatal(err)
	}

	alert.Status = models.StatusClosed
	if err := store.Alerts().Update(ctx, alert, nil); err != nil {
		t.Fatal(err)
	}

	reopened, created, err := matcher.Ingest(ctx, makeEvent(t, models.SeverityMajor, "95%", now))
	if err != nil {
		t.Fatalf("ingest into closed alert: %v", err)
	}
	if created {
		t.Error("closed alert must be reopened, not replaced")
	}
	if reopened.ID != alert.ID {
		t.Errorf("reopened %s, want %s", reopened.ID, alert.ID)
	}
	if reopened.Status != models.StatusOpen {
		t.Errorf("Status = %s, want open", reopened.Status)
	}
}

func TestIngestDistinctKeysStaySeparate(t *testing.T) {
	store := openTestStorage(t)
	matcher := NewMatcher(store.Alerts())
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	a, _, err := matcher.Ingest(ctx, makeEvent(t, models.SeverityMajor, "v", now))
	if err != nil {
		t.Fatal(err)
	}

	other := &models.Event{
		Resource:    "db2",
		Event:       "cpu-high",
		Environment: "prod",
		Severity:    models.SeverityMajor,
	}
	if err := other.Validate(now); err != nil {
		t.Fatal(err)
	}
	b, created, err := matcher.Ingest(ctx, other)
	if err != nil {
		t.Fatal(err)
	}
	if !created || b.ID == a.ID {
		t.Errorf("different resource must create a new alert (created=%v)", created)
	}
}

func TestIngestRedeliveryIsIdempotent(t *testing.T) {
	store := openTestStorage(t)
	matcher := NewMatcher(store.Alerts())
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	ev := makeEvent(t, models.SeverityMajor, "91%", now)
	if _, _, err := matcher.Ingest(ctx, ev); err != nil {
		t.Fatal(err)
	}
	alert, created, err := matcher.Ingest(ctx, ev)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if created {
		t.Error("redelivery must not create")
	}
	if alert.DuplicateCount != 0 {
		t.Errorf("DuplicateCount = %d, want 0 after redelivery", alert.DuplicateCount)
	}
}

func TestIngestConcurrentDuplicates(t *testing.T) {
	store := openTestStorage(t)
	matcher := NewMatcher(store.Alerts())
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := matcher.Ingest(ctx, makeEvent(t, models.SeverityMajor, "91%", now))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent ingest: %v", err)
		}
	}

	got, err := store.Alerts().FindCandidates(ctx, "prod", "db1", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("alerts = %d, want 1", len(got))
	}
	if got[0].DuplicateCount != n-1 {
		t.Errorf("DuplicateCount = %d, want %d", got[0].DuplicateCount, n-1)
	}
}
