package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			-- Alerts table: one row per deduplicated condition
			CREATE TABLE IF NOT EXISTS alerts (
				id TEXT PRIMARY KEY,
				resource TEXT NOT NULL,
				event TEXT NOT NULL,
				environment TEXT NOT NULL,
				tenant TEXT NOT NULL DEFAULT '',
				severity TEXT NOT NULL,
				correlate_json TEXT NOT NULL DEFAULT '[]',
				status TEXT NOT NULL,
				service_json TEXT NOT NULL DEFAULT '[]',
				grp TEXT NOT NULL DEFAULT 'Misc',
				value TEXT,
				text TEXT,
				tags_json TEXT NOT NULL DEFAULT '[]',
				attributes_json TEXT NOT NULL DEFAULT '{}',
				origin TEXT,
				event_type TEXT,
				create_time DATETIME NOT NULL,
				timeout_ns INTEGER NOT NULL,
				raw_data TEXT,
				duplicate_count INTEGER NOT NULL DEFAULT 0,
				repeat INTEGER NOT NULL DEFAULT 0,
				previous_severity TEXT NOT NULL DEFAULT 'unknown',
				trend TEXT NOT NULL DEFAULT 'noChange',
				receive_time DATETIME NOT NULL,
				last_receive_id TEXT,
				last_receive_time DATETIME NOT NULL,
				update_time DATETIME NOT NULL,
				issue_id TEXT,
				version INTEGER NOT NULL DEFAULT 1
			);
			CREATE INDEX IF NOT EXISTS idx_alerts_identity
				ON alerts(environment, resource, tenant, status);
			CREATE INDEX IF NOT EXISTS idx_alerts_issue ON alerts(issue_id);

			-- Alert history: append-only, never updated or deleted by the core
			CREATE TABLE IF NOT EXISTS alert_history (
				rowid_seq INTEGER PRIMARY KEY AUTOINCREMENT,
				alert_id TEXT NOT NULL,
				ref_id TEXT NOT NULL,
				event TEXT NOT NULL,
				severity TEXT NOT NULL,
				status TEXT NOT NULL,
				value TEXT,
				text TEXT,
				change_type TEXT NOT NULL,
				update_time DATETIME NOT NULL,
				user TEXT,
				timeout_ns INTEGER NOT NULL,
				FOREIGN KEY (alert_id) REFERENCES alerts(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_history_alert ON alert_history(alert_id, update_time);

			-- Issues table: aggregates of related alerts
			CREATE TABLE IF NOT EXISTS issues (
				id TEXT PRIMARY KEY,
				summary TEXT NOT NULL,
				severity TEXT NOT NULL,
				host_critical INTEGER NOT NULL DEFAULT 0,
				duty_admin TEXT,
				description TEXT,
				status TEXT NOT NULL,
				status_duration_ns INTEGER NOT NULL DEFAULT 0,
				create_time DATETIME NOT NULL,
				last_alert_time DATETIME,
				resolve_time DATETIME,
				pattern_id TEXT,
				group_key TEXT NOT NULL,
				inc_key TEXT,
				slack_link TEXT,
				disaster_link TEXT,
				escalation_group TEXT,
				alerts_json TEXT NOT NULL DEFAULT '[]',
				hosts_json TEXT NOT NULL DEFAULT '[]',
				project_groups_json TEXT NOT NULL DEFAULT '[]',
				info_systems_json TEXT NOT NULL DEFAULT '[]',
				attributes_json TEXT NOT NULL DEFAULT '{}',
				master_incident TEXT,
				history_json TEXT NOT NULL DEFAULT '[]',
				version INTEGER NOT NULL DEFAULT 1
			);
			CREATE INDEX IF NOT EXISTS idx_issues_group_key ON issues(group_key, status);

			-- Heartbeats table: liveness ledger per (origin, tenant)
			CREATE TABLE IF NOT EXISTS heartbeats (
				id TEXT PRIMARY KEY,
				origin TEXT NOT NULL,
				tenant TEXT NOT NULL DEFAULT '',
				tags_json TEXT NOT NULL DEFAULT '[]',
				event_type TEXT,
				create_time DATETIME NOT NULL,
				timeout_ns INTEGER NOT NULL,
				receive_time DATETIME NOT NULL,
				receive_count INTEGER NOT NULL DEFAULT 1,
				UNIQUE(origin, tenant)
			);

			-- Migration tracking
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version INTEGER PRIMARY KEY,
				name TEXT NOT NULL,
				applied_at DATETIME NOT NULL
			);
		`,
	},
}

// runMigrations applies all pending migrations in order.
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}
