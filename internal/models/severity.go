// Package models defines the domain model for alertd: alerts, issues,
// heartbeats and their history entries.
package models

// Severity represents an alert severity level, ranked from critical down
// to unknown.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
	SeverityWarning  Severity = "warning"
	SeverityNormal   Severity = "normal"
	SeverityUnknown  Severity = "unknown"
)

// severityRank orders severities. Higher rank means more severe.
var severityRank = map[Severity]int{
	SeverityCritical: 5,
	SeverityMajor:    4,
	SeverityMinor:    3,
	SeverityWarning:  2,
	SeverityNormal:   1,
	SeverityUnknown:  0,
}

// Rank returns the numeric rank of the severity. Unknown severities rank
// lowest.
func (s Severity) Rank() int {
	return severityRank[s]
}

// MoreSevereThan reports whether s outranks other.
func (s Severity) MoreSevereThan(other Severity) bool {
	return s.Rank() > other.Rank()
}

// ParseSeverity converts a string to a Severity. "ok" is accepted as an
// alias for normal. Unrecognized values map to unknown.
func ParseSeverity(s string) Severity {
	switch s {
	case "critical":
		return SeverityCritical
	case "major":
		return SeverityMajor
	case "minor":
		return SeverityMinor
	case "warning":
		return SeverityWarning
	case "normal", "ok", "cleared":
		return SeverityNormal
	default:
		return SeverityUnknown
	}
}

// MaxSeverity returns the most severe of the given severities, or unknown
// for an empty list.
func MaxSeverity(severities []Severity) Severity {
	max := SeverityUnknown
	for _, s := range severities {
		if s.MoreSevereThan(max) {
			max = s
		}
	}
	return max
}

// Trend indicates the direction of a severity change.
type Trend string

const (
	TrendMoreSevere Trend = "moreSevere"
	TrendLessSevere Trend = "lessSevere"
	TrendNoChange   Trend = "noChange"
)

// TrendOf compares two severities and returns the trend of moving from
// previous to current.
func TrendOf(previous, current Severity) Trend {
	switch {
	case current.Rank() > previous.Rank():
		return TrendMoreSevere
	case current.Rank() < previous.Rank():
		return TrendLessSevere
	default:
		return TrendNoChange
	}
}

// Status represents the lifecycle state of an alert or issue.
type Status string

const (
	StatusOpen    Status = "open"
	StatusAck     Status = "ack"
	StatusShelved Status = "shelved"
	StatusClosed  Status = "closed"
	StatusExpired Status = "expired"
)

// Inactive reports whether the status is a terminal one (closed or
// expired). A new event for an inactive alert reopens it.
func (s Status) Inactive() bool {
	return s == StatusClosed || s == StatusExpired
}

// ParseStatus converts a string to a Status. Unrecognized values map to
// open.
func ParseStatus(s string) Status {
	switch s {
	case "ack", "acknowledged":
		return StatusAck
	case "shelved":
		return StatusShelved
	case "closed":
		return StatusClosed
	case "expired":
		return StatusExpired
	default:
		return StatusOpen
	}
}
