package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/good-yellow-bee/alertd/internal/models"
)

type sqliteHeartbeatRepo struct {
	db *sql.DB
}

const heartbeatColumns = `id, origin, tenant, tags_json, event_type, create_time,
	timeout_ns, receive_time, receive_count`

func (r *sqliteHeartbeatRepo) Upsert(ctx context.Context, hb *models.Heartbeat) (*models.Heartbeat, error) {
	tagsJSON, err := marshalJSON(hb.Tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}

	query := `
		INSERT INTO heartbeats (` + heartbeatColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(origin, tenant) DO UPDATE SET
			tags_json = excluded.tags_json,
			event_type = excluded.event_type,
			timeout_ns = excluded.timeout_ns,
			receive_time = excluded.receive_time,
			receive_count = receive_count + 1
	`
	_, err = r.db.ExecContext(ctx, query,
		hb.ID, hb.Origin, hb.Tenant, tagsJSON, nullString(hb.Type),
		hb.CreateTime, hb.Timeout.Nanoseconds(), hb.ReceiveTime,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert heartbeat: %w", err)
	}
	return r.Get(ctx, hb.Origin, hb.Tenant)
}

func (r *sqliteHeartbeatRepo) Get(ctx context.Context, origin, tenant string) (*models.Heartbeat, error) {
	query := `SELECT ` + heartbeatColumns + ` FROM heartbeats WHERE origin = ? AND tenant = ?`
	return scanHeartbeat(r.db.QueryRowContext(ctx, query, origin, tenant))
}

func (r *sqliteHeartbeatRepo) List(ctx context.Context, tenant string) ([]*models.Heartbeat, error) {
	query := `SELECT ` + heartbeatColumns + ` FROM heartbeats`
	args := []any{}
	if tenant != "" {
		query += ` WHERE tenant = ?`
		args = append(args, tenant)
	}
	query += ` ORDER BY origin`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query heartbeats: %w", err)
	}
	defer rows.Close()

	var beats []*models.Heartbeat
	for rows.Next() {
		hb, err := scanHeartbeat(rows)
		if err != nil {
			return nil, err
		}
		beats = append(beats, hb)
	}
	return beats, rows.Err()
}

func (r *sqliteHeartbeatRepo) Delete(ctx context.Context, origin, tenant string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM heartbeats WHERE origin = ? AND tenant = ?", origin, tenant)
	if err != nil {
		return fmt.Errorf("delete heartbeat: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("heartbeat %s/%s: %w", origin, tenant, ErrNotFound)
	}
	return nil
}

func scanHeartbeat(row rowScanner) (*models.Heartbeat, error) {
	var hb models.Heartbeat
	var tagsJSON string
	var eventType sql.NullString
	var timeoutNS int64

	err := row.Scan(&hb.ID, &hb.Origin, &hb.Tenant, &tagsJSON, &eventType,
		&hb.CreateTime, &timeoutNS, &hb.ReceiveTime, &hb.ReceiveCount)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan heartbeat: %w", err)
	}

	if hb.Tags, err = unmarshalStrings(tagsJSON); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	hb.Type = eventType.String
	hb.Timeout = time.Duration(timeoutNS)
	return &hb, nil
}
