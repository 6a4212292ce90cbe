package models

import "testing"

func TestSeverityRankOrder(t *testing.T) {
	order := []Severity{
		SeverityCritical,
		SeverityMajor,
		SeverityMinor,
		SeverityWarning,
		SeverityNormal,
		SeverityUnknown,
	}
	for i := 0; i < len(order)-1; i++ {
		if !order[i].MoreSevereThan(order[i+1]) {
			t.Errorf("%s should outrank %s", order[i], order[i+1])
		}
	}
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want Severity
	}{
		{"critical", SeverityCritical},
		{"major", SeverityMajor},
		{"minor", SeverityMinor},
		{"warning", SeverityWarning},
		{"normal", SeverityNormal},
		{"ok", SeverityNormal},
		{"cleared", SeverityNormal},
		{"bogus", SeverityUnknown},
		{"", SeverityUnknown},
	}
	for _, tt := range tests {
		if got := ParseSeverity(tt.in); got != tt.want {
			t.Errorf("ParseSeverity(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestTrendOf(t *testing.T) {
	tests := []struct {
		name     string
		previous Severity
		current  Severity
		want     Trend
	}{
		{"escalation", SeverityMajor, SeverityCritical, TrendMoreSevere},
		{"recovery", SeverityCritical, SeverityNormal, TrendLessSevere},
		{"steady", SeverityWarning, SeverityWarning, TrendNoChange},
		{"from unknown", SeverityUnknown, SeverityMinor, TrendMoreSevere},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrendOf(tt.previous, tt.current); got != tt.want {
				t.Errorf("TrendOf(%s, %s) = %s, want %s", tt.previous, tt.current, got, tt.want)
			}
		})
	}
}

func TestMaxSeverity(t *testing.T) {
	got := MaxSeverity([]Severity{SeverityWarning, SeverityMajor, SeverityNormal})
	if got != SeverityMajor {
		t.Errorf("MaxSeverity = %s, want %s", got, SeverityMajor)
	}
	if got := MaxSeverity(nil); got != SeverityUnknown {
		t.Errorf("MaxSeverity(nil) = %s, want unknown", got)
	}
}

func TestStatusInactive(t *testing.T) {
	for _, s := range []Status{StatusClosed, StatusExpired} {
		if !s.Inactive() {
			t.Errorf("%s should be inactive", s)
		}
	}
	for _, s := range []Status{StatusOpen, StatusAck, StatusShelved} {
		if s.Inactive() {
			t.Errorf("%s should not be inactive", s)
		}
	}
}
