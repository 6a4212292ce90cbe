package correlation

import (
	"strings"
	"testing"

	"github.com/good-yellow-bee/alertd/internal/models"
)

func classifiableAlert() *models.Alert {
	return &models.Alert{
		ID:          "a1",
		Resource:    "web1",
		Event:       "cpu-high",
		Environment: "prod",
		Severity:    models.SeverityMajor,
		Group:       "OS",
		Tags:        []string{"host:web1", "critical_host", "project_group:billing"},
		Attributes:  map[string]string{"region": "eu-1"},
	}
}

func TestPredicateEval(t *testing.T) {
	alert := classifiableAlert()

	tests := []struct {
		name string
		pred Predicate
		want bool
	}{
		{
			name: "equals field match",
			pred: Predicate{Equals: &EqualsPredicate{Field: "environment", Value: "prod"}},
			want: true,
		},
		{
			name: "equals field mismatch",
			pred: Predicate{Equals: &EqualsPredicate{Field: "environment", Value: "staging"}},
			want: false,
		},
		{
			name: "equals attribute",
			pred: Predicate{Equals: &EqualsPredicate{Field: "attr:region", Value: "eu-1"}},
			want: true,
		},
		{
			name: "equals missing attribute is no match",
			pred: Predicate{Equals: &EqualsPredicate{Field: "attr:zone", Value: "eu-1"}},
			want: false,
		},
		{
			name: "equals tag value",
			pred: Predicate{Equals: &EqualsPredicate{Field: "tag:host", Value: "web1"}},
			want: true,
		},
		{
			name: "in membership",
			pred: Predicate{In: &InPredicate{Field: "event", Values: []string{"disk-full", "cpu-high"}}},
			want: true,
		},
		{
			name: "in no membership",
			pred: Predicate{In: &InPredicate{Field: "event", Values: []string{"disk-full"}}},
			want: false,
		},
		{
			name: "tag present bare",
			pred: Predicate{TagPresent: "critical_host"},
			want: true,
		},
		{
			name: "tag present keyed",
			pred: Predicate{TagPresent: "host"},
			want: true,
		},
		{
			name: "tag absent",
			pred: Predicate{TagPresent: "rack"},
			want: false,
		},
		{
			name: "all conjunction",
			pred: Predicate{All: []Predicate{
				{Equals: &EqualsPredicate{Field: "environment", Value: "prod"}},
				{TagPresent: "critical_host"},
			}},
			want: true,
		},
		{
			name: "all short-circuits on mismatch",
			pred: Predicate{All: []Predicate{
				{Equals: &EqualsPredicate{Field: "environment", Value: "staging"}},
				{TagPresent: "critical_host"},
			}},
			want: false,
		},
		{
			name: "any disjunction",
			pred: Predicate{Any: []Predicate{
				{Equals: &EqualsPredicate{Field: "environment", Value: "staging"}},
				{TagPresent: "critical_host"},
			}},
			want: true,
		},
		{
			name: "not inversion",
			pred: Predicate{Not: &Predicate{TagPresent: "rack"}},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.pred.Eval(alert)
			if err != nil {
				t.Fatalf("eval: %v", err)
			}
			if got != tt.want {
				t.Errorf("Eval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPredicateEvalUnknownField(t *testing.T) {
	pred := Predicate{Equals: &EqualsPredicate{Field: "hostname", Value: "web1"}}
	if _, err := pred.Eval(classifiableAlert()); err == nil {
		t.Error("expected error for unknown field selector")
	}
}

func TestPredicateValidate(t *testing.T) {
	tests := []struct {
		name    string
		pred    Predicate
		wantErr string
	}{
		{
			name: "valid equals",
			pred: Predicate{Equals: &EqualsPredicate{Field: "event", Value: "x"}},
		},
		{
			name:    "empty predicate",
			pred:    Predicate{},
			wantErr: "exactly one operator",
		},
		{
			name: "two operators",
			pred: Predicate{
				Equals:     &EqualsPredicate{Field: "event", Value: "x"},
				TagPresent: "host",
			},
			wantErr: "exactly one operator",
		},
		{
			name:    "equals without field",
			pred:    Predicate{Equals: &EqualsPredicate{Value: "x"}},
			wantErr: "field is required",
		},
		{
			name:    "in without values",
			pred:    Predicate{In: &InPredicate{Field: "event"}},
			wantErr: "values is required",
		},
		{
			name: "invalid child in all",
			pred: Predicate{All: []Predicate{
				{TagPresent: "host"},
				{},
			}},
			wantErr: "all[1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pred.Validate()
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

func TestPatternValidateGroupBy(t *testing.T) {
	base := Pattern{
		ID:    "p1",
		Name:  "Hostname",
		Match: Predicate{TagPresent: "host"},
	}

	tests := []struct {
		groupBy string
		ok      bool
	}{
		{"tag:host", true},
		{"field:event", true},
		{"field:resource", true},
		{"field:group", true},
		{"field:severity", false},
		{"tag:", false},
		{"", false},
		{"host", false},
	}

	for _, tt := range tests {
		p := base
		p.GroupBy = tt.groupBy
		err := p.Validate()
		if tt.ok && err != nil {
			t.Errorf("group_by %q: Validate() = %v, want nil", tt.groupBy, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("group_by %q: Validate() = nil, want error", tt.groupBy)
		}
	}
}

func TestPatternGroupKey(t *testing.T) {
	alert := classifiableAlert()

	p := Pattern{ID: "p1", Name: "Hostname", GroupBy: "tag:host"}
	key, ok := p.GroupKey(alert)
	if !ok || key != "Hostname:web1" {
		t.Errorf("GroupKey = %q, %v", key, ok)
	}

	p.GroupBy = "field:event"
	key, ok = p.GroupKey(alert)
	if !ok || key != "Hostname:cpu-high" {
		t.Errorf("GroupKey = %q, %v", key, ok)
	}

	p.GroupBy = "tag:rack"
	if _, ok = p.GroupKey(alert); ok {
		t.Error("absent tag must not yield a grouping key")
	}
}
