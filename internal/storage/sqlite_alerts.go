package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/good-yellow-bee/alertd/internal/models"
)

type sqliteAlertRepo struct {
	db *sql.DB
}

const alertColumns = `id, resource, event, environment, tenant, severity, correlate_json,
	status, service_json, grp, value, text, tags_json, attributes_json, origin, event_type,
	create_time, timeout_ns, raw_data, duplicate_count, repeat, previous_severity, trend,
	receive_time, last_receive_id, last_receive_time, update_time, issue_id, version`

func (r *sqliteAlertRepo) Create(ctx context.Context, alert *models.Alert) error {
	correlateJSON, err := marshalJSON(alert.Correlate)
	if err != nil {
		return fmt.Errorf("marshal correlate: %w", err)
	}
	serviceJSON, err := marshalJSON(alert.Service)
	if err != nil {
		return fmt.Errorf("marshal service: %w", err)
	}
	tagsJSON, err := marshalJSON(alert.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	attrsJSON, err := marshalJSON(alert.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create alert: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		alert.ID, alert.Resource, alert.Event, alert.Environment, alert.Tenant,
		alert.Severity, correlateJSON, alert.Status, serviceJSON, alert.Group,
		nullString(alert.Value), nullString(alert.Text), tagsJSON, attrsJSON,
		nullString(alert.Origin), nullString(alert.Type), alert.CreateTime,
		alert.Timeout.Nanoseconds(), nullString(alert.RawData), alert.DuplicateCount,
		boolToInt(alert.Repeat), alert.PreviousSeverity, alert.TrendIndication,
		alert.ReceiveTime, nullString(alert.LastReceiveID), alert.LastReceiveTime,
		alert.UpdateTime, nullString(alert.IssueID), int64(1),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}

	if err := insertHistory(ctx, tx, alert.ID, alert.History); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create alert: %w", err)
	}
	alert.Version = 1
	return nil
}

func (r *sqliteAlertRepo) Update(ctx context.Context, alert *models.Alert, entries []models.HistoryEntry) error {
	correlateJSON, err := marshalJSON(alert.Correlate)
	if err != nil {
		return fmt.Errorf("marshal correlate: %w", err)
	}
	serviceJSON, err := marshalJSON(alert.Service)
	if err != nil {
		return fmt.Errorf("marshal service: %w", err)
	}
	tagsJSON, err := marshalJSON(alert.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	attrsJSON, err := marshalJSON(alert.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update alert: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE alerts SET severity = ?, correlate_json = ?, status = ?, service_json = ?,
			grp = ?, value = ?, text = ?, tags_json = ?, attributes_json = ?,
			timeout_ns = ?, raw_data = ?, duplicate_count = ?, repeat = ?,
			previous_severity = ?, trend = ?, receive_time = ?, last_receive_id = ?,
			last_receive_time = ?, update_time = ?, issue_id = ?, version = version + 1
		WHERE id = ? AND version = ?
	`
	result, err := tx.ExecContext(ctx, query,
		alert.Severity, correlateJSON, alert.Status, serviceJSON, alert.Group,
		nullString(alert.Value), nullString(alert.Text), tagsJSON, attrsJSON,
		alert.Timeout.Nanoseconds(), nullString(alert.RawData), alert.DuplicateCount,
		boolToInt(alert.Repeat), alert.PreviousSeverity, alert.TrendIndication,
		alert.ReceiveTime, nullString(alert.LastReceiveID), alert.LastReceiveTime,
		alert.UpdateTime, nullString(alert.IssueID),
		alert.ID, alert.Version,
	)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM alerts WHERE id = ?", alert.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check alert exists: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("alert %s: %w", alert.ID, ErrNotFound)
		}
		return fmt.Errorf("alert %s: %w", alert.ID, ErrConflict)
	}

	if err := insertHistory(ctx, tx, alert.ID, entries); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update alert: %w", err)
	}
	alert.Version++
	return nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, alertID string, entries []models.HistoryEntry) error {
	query := `
		INSERT INTO alert_history (alert_id, ref_id, event, severity, status, value, text,
			change_type, update_time, user, timeout_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, h := range entries {
		if _, err := tx.ExecContext(ctx, query,
			alertID, h.ID, h.Event, h.Severity, h.Status, nullString(h.Value),
			nullString(h.Text), h.Type, h.UpdateTime, nullString(h.User),
			h.Timeout.Nanoseconds(),
		); err != nil {
			return fmt.Errorf("insert history entry: %w", err)
		}
	}
	return nil
}

func (r *sqliteAlertRepo) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = ?`
	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	history, err := r.History(ctx, id)
	if err != nil {
		return nil, err
	}
	alert.History = history
	return alert, nil
}

func (r *sqliteAlertRepo) GetByIDs(ctx context.Context, ids []string) ([]*models.Alert, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := ""
	args := make([]any, 0, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, id)
	}
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id IN (` + placeholders + `)`
	return r.queryAlerts(ctx, query, args...)
}

func (r *sqliteAlertRepo) FindCandidates(ctx context.Context, environment, resource, tenant string) ([]*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + ` FROM alerts
		WHERE environment = ? AND resource = ? AND tenant = ?
		ORDER BY create_time
	`
	return r.queryAlerts(ctx, query, environment, resource, tenant)
}

func (r *sqliteAlertRepo) ListTimedOut(ctx context.Context, now time.Time) ([]*models.Alert, error) {
	// The deadline depends on last_receive_time + timeout_ns, so the
	// query cuts on status only and the clock comparison happens in Go.
	query := `
		SELECT ` + alertColumns + ` FROM alerts
		WHERE status NOT IN ('closed', 'expired')
	`
	alerts, err := r.queryAlerts(ctx, query)
	if err != nil {
		return nil, err
	}
	var timedOut []*models.Alert
	for _, a := range alerts {
		if a.Timeout > 0 && now.After(a.LastReceiveTime.Add(a.Timeout)) {
			timedOut = append(timedOut, a)
		}
	}
	return timedOut, nil
}

func (r *sqliteAlertRepo) History(ctx context.Context, alertID string) ([]models.HistoryEntry, error) {
	query := `
		SELECT ref_id, event, severity, status, value, text, change_type, update_time, user, timeout_ns
		FROM alert_history WHERE alert_id = ?
		ORDER BY update_time, rowid_seq
	`
	rows, err := r.db.QueryContext(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var history []models.HistoryEntry
	for rows.Next() {
		var h models.HistoryEntry
		var value, text, user sql.NullString
		var timeoutNS int64
		if err := rows.Scan(&h.ID, &h.Event, &h.Severity, &h.Status, &value, &text,
			&h.Type, &h.UpdateTime, &user, &timeoutNS); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		h.Value = value.String
		h.Text = text.String
		h.User = user.String
		h.Timeout = time.Duration(timeoutNS)
		history = append(history, h)
	}
	return history, rows.Err()
}

func (r *sqliteAlertRepo) queryAlerts(ctx context.Context, query string, args ...any) ([]*models.Alert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var a models.Alert
	var correlateJSON, serviceJSON, tagsJSON, attrsJSON string
	var value, text, origin, eventType, rawData, lastReceiveID, issueID sql.NullString
	var timeoutNS int64
	var repeat int

	err := row.Scan(
		&a.ID, &a.Resource, &a.Event, &a.Environment, &a.Tenant, &a.Severity,
		&correlateJSON, &a.Status, &serviceJSON, &a.Group, &value, &text,
		&tagsJSON, &attrsJSON, &origin, &eventType, &a.CreateTime, &timeoutNS,
		&rawData, &a.DuplicateCount, &repeat, &a.PreviousSeverity,
		&a.TrendIndication, &a.ReceiveTime, &lastReceiveID, &a.LastReceiveTime,
		&a.UpdateTime, &issueID, &a.Version,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan alert: %w", err)
	}

	if a.Correlate, err = unmarshalStrings(correlateJSON); err != nil {
		return nil, fmt.Errorf("unmarshal correlate: %w", err)
	}
	if a.Service, err = unmarshalStrings(serviceJSON); err != nil {
		return nil, fmt.Errorf("unmarshal service: %w", err)
	}
	if a.Tags, err = unmarshalStrings(tagsJSON); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if a.Attributes, err = unmarshalMap(attrsJSON); err != nil {
		return nil, fmt.Errorf("unmarshal attributes: %w", err)
	}
	a.Value = value.String
	a.Text = text.String
	a.Origin = origin.String
	a.Type = eventType.String
	a.RawData = rawData.String
	a.LastReceiveID = lastReceiveID.String
	a.IssueID = issueID.String
	a.Timeout = time.Duration(timeoutNS)
	a.Repeat = repeat != 0
	return &a, nil
}
