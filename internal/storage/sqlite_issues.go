package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/good-yellow-bee/alertd/internal/models"
)

type sqliteIssueRepo struct {
	db *sql.DB
}

const issueColumns = `id, summary, severity, host_critical, duty_admin, description, status,
	status_duration_ns, create_time, last_alert_time, resolve_time, pattern_id, group_key,
	inc_key, slack_link, disaster_link, escalation_group, alerts_json, hosts_json,
	project_groups_json, info_systems_json, attributes_json, master_incident, history_json, version`

func (r *sqliteIssueRepo) Create(ctx context.Context, issue *models.Issue) error {
	vals, err := issueJSONValues(issue)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO issues (` + issueColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		issue.ID, issue.Summary, issue.Severity, boolToInt(issue.HostCritical),
		nullString(issue.DutyAdmin), nullString(issue.Description), issue.Status,
		issue.StatusDuration.Nanoseconds(), issue.CreateTime, nullTime(issue.LastAlertTime),
		issue.ResolveTime, nullString(issue.PatternID), issue.GroupKey,
		nullString(issue.IncKey), nullString(issue.SlackLink), nullString(issue.DisasterLink),
		nullString(issue.EscalationGroup), vals.alerts, vals.hosts, vals.projectGroups,
		vals.infoSystems, vals.attributes, nullString(issue.MasterIncident), vals.history,
		int64(1),
	)
	if err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}
	issue.Version = 1
	return nil
}

func (r *sqliteIssueRepo) Update(ctx context.Context, issue *models.Issue) error {
	vals, err := issueJSONValues(issue)
	if err != nil {
		return err
	}

	query := `
		UPDATE issues SET summary = ?, severity = ?, host_critical = ?, duty_admin = ?,
			description = ?, status = ?, status_duration_ns = ?, last_alert_time = ?,
			resolve_time = ?, pattern_id = ?, group_key = ?, inc_key = ?, slack_link = ?,
			disaster_link = ?, escalation_group = ?, alerts_json = ?, hosts_json = ?,
			project_groups_json = ?, info_systems_json = ?, attributes_json = ?,
			master_incident = ?, history_json = ?, version = version + 1
		WHERE id = ? AND version = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		issue.Summary, issue.Severity, boolToInt(issue.HostCritical),
		nullString(issue.DutyAdmin), nullString(issue.Description), issue.Status,
		issue.StatusDuration.Nanoseconds(), nullTime(issue.LastAlertTime), issue.ResolveTime,
		nullString(issue.PatternID), issue.GroupKey, nullString(issue.IncKey),
		nullString(issue.SlackLink), nullString(issue.DisasterLink),
		nullString(issue.EscalationGroup), vals.alerts, vals.hosts, vals.projectGroups,
		vals.infoSystems, vals.attributes, nullString(issue.MasterIncident), vals.history,
		issue.ID, issue.Version,
	)
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		var exists int
		if err := r.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM issues WHERE id = ?", issue.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check issue exists: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("issue %s: %w", issue.ID, ErrNotFound)
		}
		return fmt.Errorf("issue %s: %w", issue.ID, ErrConflict)
	}
	issue.Version++
	return nil
}

func (r *sqliteIssueRepo) GetByID(ctx context.Context, id string) (*models.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE id = ?`
	return scanIssue(r.db.QueryRowContext(ctx, query, id))
}

func (r *sqliteIssueRepo) GetOpenByGroupKey(ctx context.Context, groupKey string) (*models.Issue, error) {
	query := `
		SELECT ` + issueColumns + ` FROM issues
		WHERE group_key = ? AND status NOT IN ('closed', 'expired')
		ORDER BY create_time LIMIT 1
	`
	return scanIssue(r.db.QueryRowContext(ctx, query, groupKey))
}

func (r *sqliteIssueRepo) ListOpen(ctx context.Context) ([]*models.Issue, error) {
	query := `
		SELECT ` + issueColumns + ` FROM issues
		WHERE status NOT IN ('closed', 'expired')
		ORDER BY create_time
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query issues: %w", err)
	}
	defer rows.Close()

	var issues []*models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

type issueJSON struct {
	alerts, hosts, projectGroups, infoSystems, attributes, history string
}

func issueJSONValues(issue *models.Issue) (issueJSON, error) {
	var vals issueJSON
	var err error
	if vals.alerts, err = marshalJSON(issue.Alerts); err != nil {
		return vals, fmt.Errorf("marshal alerts: %w", err)
	}
	if vals.hosts, err = marshalJSON(issue.Hosts); err != nil {
		return vals, fmt.Errorf("marshal hosts: %w", err)
	}
	if vals.projectGroups, err = marshalJSON(issue.ProjectGroups); err != nil {
		return vals, fmt.Errorf("marshal project groups: %w", err)
	}
	if vals.infoSystems, err = marshalJSON(issue.InfoSystems); err != nil {
		return vals, fmt.Errorf("marshal info systems: %w", err)
	}
	if vals.attributes, err = marshalJSON(issue.Attributes); err != nil {
		return vals, fmt.Errorf("marshal attributes: %w", err)
	}
	if vals.history, err = marshalJSON(issue.History); err != nil {
		return vals, fmt.Errorf("marshal history: %w", err)
	}
	return vals, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func scanIssue(row rowScanner) (*models.Issue, error) {
	var i models.Issue
	var alertsJSON, hostsJSON, projectGroupsJSON, infoSystemsJSON, attrsJSON, historyJSON string
	var dutyAdmin, description, patternID, incKey, slackLink, disasterLink, escalationGroup, masterIncident sql.NullString
	var lastAlertTime, resolveTime sql.NullTime
	var hostCritical int
	var statusDurationNS int64

	err := row.Scan(
		&i.ID, &i.Summary, &i.Severity, &hostCritical, &dutyAdmin, &description,
		&i.Status, &statusDurationNS, &i.CreateTime, &lastAlertTime, &resolveTime,
		&patternID, &i.GroupKey, &incKey, &slackLink, &disasterLink, &escalationGroup,
		&alertsJSON, &hostsJSON, &projectGroupsJSON, &infoSystemsJSON, &attrsJSON,
		&masterIncident, &historyJSON, &i.Version,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan issue: %w", err)
	}

	i.HostCritical = hostCritical != 0
	i.DutyAdmin = dutyAdmin.String
	i.Description = description.String
	i.PatternID = patternID.String
	i.IncKey = incKey.String
	i.SlackLink = slackLink.String
	i.DisasterLink = disasterLink.String
	i.EscalationGroup = escalationGroup.String
	i.MasterIncident = masterIncident.String
	i.StatusDuration = time.Duration(statusDurationNS)
	if lastAlertTime.Valid {
		i.LastAlertTime = lastAlertTime.Time
	}
	if resolveTime.Valid {
		t := resolveTime.Time
		i.ResolveTime = &t
	}

	if i.Alerts, err = unmarshalStrings(alertsJSON); err != nil {
		return nil, fmt.Errorf("unmarshal alerts: %w", err)
	}
	if i.Hosts, err = unmarshalStrings(hostsJSON); err != nil {
		return nil, fmt.Errorf("unmarshal hosts: %w", err)
	}
	if i.ProjectGroups, err = unmarshalStrings(projectGroupsJSON); err != nil {
		return nil, fmt.Errorf("unmarshal project groups: %w", err)
	}
	if i.InfoSystems, err = unmarshalStrings(infoSystemsJSON); err != nil {
		return nil, fmt.Errorf("unmarshal info systems: %w", err)
	}
	if i.Attributes, err = unmarshalMap(attrsJSON); err != nil {
		return nil, fmt.Errorf("unmarshal attributes: %w", err)
	}
	if historyJSON != "" {
		if err := json.Unmarshal([]byte(historyJSON), &i.History); err != nil {
			return nil, fmt.Errorf("unmarshal history: %w", err)
		}
	}
	return &i, nil
}
