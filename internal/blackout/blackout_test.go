package blackout

import (
	"strings"
	"testing"
	"time"

	"github.com/good-yellow-bee/alertd/internal/models"
)

var (
	windowStart = time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)
	inWindow    = time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
)

func suppressibleEvent() *models.Event {
	return &models.Event{
		Resource:    "db1",
		Event:       "cpu-high",
		Environment: "prod",
		Group:       "OS",
		Service:     []string{"billing", "checkout"},
		Tags:        []string{"host:db1", "maintenance"},
		Origin:      "zabbix",
	}
}

func TestBlackoutMatches(t *testing.T) {
	tests := []struct {
		name string
		b    Blackout
		now  time.Time
		want bool
	}{
		{
			name: "environment only wildcard rest",
			b:    Blackout{Environment: "prod", StartTime: windowStart, EndTime: windowEnd},
			now:  inWindow,
			want: true,
		},
		{
			name: "wrong environment",
			b:    Blackout{Environment: "staging", StartTime: windowStart, EndTime: windowEnd},
			now:  inWindow,
			want: false,
		},
		{
			name: "before window",
			b:    Blackout{Environment: "prod", StartTime: windowStart, EndTime: windowEnd},
			now:  windowStart.Add(-time.Minute),
			want: false,
		},
		{
			name: "after window",
			b:    Blackout{Environment: "prod", StartTime: windowStart, EndTime: windowEnd},
			now:  windowEnd.Add(time.Minute),
			want: false,
		},
		{
			name: "window edges inclusive",
			b:    Blackout{Environment: "prod", StartTime: windowStart, EndTime: windowEnd},
			now:  windowEnd,
			want: true,
		},
		{
			name: "resource narrows",
			b:    Blackout{Environment: "prod", Resource: "db2", StartTime: windowStart, EndTime: windowEnd},
			now:  inWindow,
			want: false,
		},
		{
			name: "resource matches",
			b:    Blackout{Environment: "prod", Resource: "db1", StartTime: windowStart, EndTime: windowEnd},
			now:  inWindow,
			want: true,
		},
		{
			name: "event narrows",
			b:    Blackout{Environment: "prod", Event: "disk-full", StartTime: windowStart, EndTime: windowEnd},
			now:  inWindow,
			want: false,
		},
		{
			name: "service overlap matches",
			b:    Blackout{Environment: "prod", Service: []string{"checkout", "search"}, StartTime: windowStart, EndTime: windowEnd},
			now:  inWindow,
			want: true,
		},
		{
			name: "service without overlap",
			b:    Blackout{Environment: "prod", Service: []string{"search"}, StartTime: windowStart, EndTime: windowEnd},
			now:  inWindow,
			want: false,
		},
		{
			name: "tag subset matches",
			b:    Blackout{Environment: "prod", Tags: []string{"maintenance"}, StartTime: windowStart, EndTime: windowEnd},
			now:  inWindow,
			want: true,
		},
		{
			name: "tag superset does not match",
			b:    Blackout{Environment: "prod", Tags: []string{"maintenance", "planned"}, StartTime: windowStart, EndTime: windowEnd},
			now:  inWindow,
			want: false,
		},
		{
			name: "tenant narrows",
			b:    Blackout{Environment: "prod", Tenant: "acme", StartTime: windowStart, EndTime: windowEnd},
			now:  inWindow,
			want: false,
		},
		{
			name: "origin matches",
			b:    Blackout{Environment: "prod", Origin: "zabbix", StartTime: windowStart, EndTime: windowEnd},
			now:  inWindow,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.b.Matches(suppressibleEvent(), tt.now); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterFirstMatchWins(t *testing.T) {
	filter := NewFilter(Static(
		&Blackout{ID: "b-late", Priority: 20, Environment: "prod", StartTime: windowStart, EndTime: windowEnd},
		&Blackout{ID: "b-early", Priority: 10, Environment: "prod", StartTime: windowStart, EndTime: windowEnd},
	))

	suppressed, id := filter.IsSuppressed(suppressibleEvent(), inWindow)
	if !suppressed || id != "b-early" {
		t.Errorf("IsSuppressed = %v, %q, want match on b-early", suppressed, id)
	}
}

func TestFilterNoActiveWindow(t *testing.T) {
	filter := NewFilter(Static(
		&Blackout{ID: "b1", Environment: "prod", StartTime: windowStart, EndTime: windowEnd},
	))

	suppressed, _ := filter.IsSuppressed(suppressibleEvent(), windowEnd.Add(time.Hour))
	if suppressed {
		t.Error("expired window must not suppress")
	}
}

func TestBlackoutValidate(t *testing.T) {
	tests := []struct {
		name    string
		b       Blackout
		wantErr string
	}{
		{
			name: "valid",
			b:    Blackout{ID: "b1", Environment: "prod", StartTime: windowStart, EndTime: windowEnd},
		},
		{
			name:    "missing id",
			b:       Blackout{Environment: "prod", StartTime: windowStart, EndTime: windowEnd},
			wantErr: "id is required",
		},
		{
			name:    "missing environment",
			b:       Blackout{ID: "b1", StartTime: windowStart, EndTime: windowEnd},
			wantErr: "environment is required",
		},
		{
			name:    "inverted window",
			b:       Blackout{ID: "b1", Environment: "prod", StartTime: windowEnd, EndTime: windowStart},
			wantErr: "end_time must be after",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.b.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadBlackouts(t *testing.T) {
	doc := `
blackouts:
  - id: b1
    priority: 10
    environment: prod
    resource: db1
    start_time: 2026-03-01T02:00:00Z
    end_time: 2026-03-01T04:00:00Z
  - id: b2
    priority: 5
    environment: prod
    tags: [maintenance]
    start_time: 2026-03-01T02:00:00Z
    end_time: 2026-03-01T04:00:00Z
`
	blackouts, err := LoadBlackouts(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(blackouts) != 2 {
		t.Fatalf("blackouts = %d, want 2", len(blackouts))
	}
	if blackouts[0].ID != "b2" {
		t.Errorf("first blackout = %s, want b2 by priority", blackouts[0].ID)
	}
}
