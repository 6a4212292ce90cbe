// Package dedup collapses repeated reports of the same condition into a
// single mutable alert record. The state machine computes the next alert
// state for an incoming event; the matcher finds or creates the alert
// under per-key exclusive access and persists the result.
package dedup

import (
	"time"

	"github.com/good-yellow-bee/alertd/internal/models"
)

// Apply computes the next state of an existing alert for an incoming
// event. It mutates alert in place and returns the history entries to
// append. Apply is pure apart from its arguments: no I/O, no clock reads.
//
// An event whose receive id matches the alert's last receive id is a
// redelivery and is absorbed without any mutation (nil entries).
func Apply(alert *models.Alert, ev *models.Event, now time.Time) []models.HistoryEntry {
	if ev.ID != "" && ev.ID == alert.LastReceiveID {
		return nil
	}

	var entries []models.HistoryEntry

	// Reopen-on-new-event: a closed or expired alert receiving a fresh
	// event goes back to open, with previous severity taken from the
	// value it held at close.
	reopened := false
	if alert.Status.Inactive() {
		reopened = true
		alert.Status = models.StatusOpen
		entries = append(entries, models.HistoryEntry{
			ID:         alert.ID,
			Event:      alert.Event,
			Severity:   alert.Severity,
			Status:     models.StatusOpen,
			Value:      ev.Value,
			Text:       "reopened by new event",
			Type:       models.ChangeStatus,
			UpdateTime: now,
			Timeout:    ev.Timeout,
		})
	}

	switch {
	case ev.Severity != alert.Severity:
		alert.PreviousSeverity = alert.Severity
		alert.TrendIndication = models.TrendOf(alert.Severity, ev.Severity)
		alert.Severity = ev.Severity
		alert.DuplicateCount = 0
		alert.Repeat = false
		entries = append(entries, models.HistoryEntry{
			ID:         alert.ID,
			Event:      ev.Event,
			Severity:   ev.Severity,
			Status:     alert.Status,
			Value:      ev.Value,
			Text:       ev.Text,
			Type:       models.ChangeSeverity,
			UpdateTime: now,
			Timeout:    ev.Timeout,
		})

	case reopened:
		// Same severity as at close: previous severity still records
		// the value held at close time.
		alert.PreviousSeverity = alert.Severity
		alert.TrendIndication = models.TrendNoChange
		alert.DuplicateCount = 0
		alert.Repeat = false

	case ev.Value != alert.Value || ev.Text != alert.Text:
		alert.DuplicateCount++
		alert.Repeat = true
		entries = append(entries, models.HistoryEntry{
			ID:         alert.ID,
			Event:      ev.Event,
			Severity:   ev.Severity,
			Status:     alert.Status,
			Value:      ev.Value,
			Text:       ev.Text,
			Type:       models.ChangeValue,
			UpdateTime: now,
			Timeout:    ev.Timeout,
		})

	default:
		// Fully identical repeat: count it and keep a minimal entry
		// for audit continuity.
		alert.DuplicateCount++
		alert.Repeat = true
		entries = append(entries, models.HistoryEntry{
			ID:         alert.ID,
			Event:      ev.Event,
			Severity:   ev.Severity,
			Status:     alert.Status,
			Value:      ev.Value,
			Type:       models.ChangeDedup,
			UpdateTime: now,
			Timeout:    ev.Timeout,
		})
	}

	alert.Value = ev.Value
	alert.Text = ev.Text
	if len(ev.Service) > 0 {
		alert.Service = ev.Service
	}
	if len(ev.Tags) > 0 {
		alert.Tags = mergeTags(alert.Tags, ev.Tags)
	}
	if len(ev.Attributes) > 0 {
		if alert.Attributes == nil {
			alert.Attributes = make(map[string]string, len(ev.Attributes))
		}
		for k, v := range ev.Attributes {
			alert.Attributes[k] = v
		}
	}
	if len(ev.Correlate) > 0 {
		alert.Correlate = ev.Correlate
	}
	alert.Timeout = ev.Timeout
	alert.RawData = ev.RawData
	alert.ReceiveTime = now
	alert.LastReceiveID = ev.ID
	alert.LastReceiveTime = now
	alert.UpdateTime = now

	return entries
}

func mergeTags(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	merged := make([]string, 0, len(existing)+len(incoming))
	for _, t := range existing {
		seen[t] = struct{}{}
		merged = append(merged, t)
	}
	for _, t := range incoming {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			merged = append(merged, t)
		}
	}
	return merged
}
