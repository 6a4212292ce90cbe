// Package issues owns the issue aggregate: linking and unlinking member
// alerts, recomputing derived summary fields and closing issues whose
// member set drains. All derived fields are a pure function of the
// current members and are replaced wholesale on every recomputation.
package issues

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/good-yellow-bee/alertd/internal/keylock"
	"github.com/good-yellow-bee/alertd/internal/models"
	"github.com/good-yellow-bee/alertd/internal/storage"
)

// DefaultMaxRetries bounds how often an issue mutation is retried
// after a concurrent-modification conflict.
const DefaultMaxRetries = 3

// ErrRetriesExhausted is returned when the conflict retry budget is
// spent without a successful commit.
var ErrRetriesExhausted = errors.New("issues: conflict retries exhausted")

// ErrNoMembers is returned when a link request resolves to zero
// existing alerts, which must never create an empty issue.
var ErrNoMembers = errors.New("issues: no alerts to link")

// Tag keys the recomputation derives collection fields from.
const (
	tagHost         = "host"
	tagProjectGroup = "project_group"
	tagInfoSystem   = "info_system"
	tagCriticalHost = "critical_host"
)

// Issue history actions.
const (
	actionLinked     = "alert-linked"
	actionUnlinked   = "alerts-unlinked"
	actionRecomputed = "recomputed"
	actionResolved   = "resolved"
)

// Aggregator serializes issue mutations per grouping key and keeps the
// derived fields consistent with the member set.
type Aggregator struct {
	issues     storage.IssueRepository
	alerts     storage.AlertRepository
	locks      *keylock.KeyLock
	maxRetries int
	now        func() time.Time
	onConflict func()
}

// NewAggregator creates an Aggregator over the given repositories.
func NewAggregator(issues storage.IssueRepository, alerts storage.AlertRepository) *Aggregator {
	return &Aggregator{
		issues:     issues,
		alerts:     alerts,
		locks:      keylock.New(),
		maxRetries: DefaultMaxRetries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the aggregator's clock, for tests.
func (g *Aggregator) WithClock(now func() time.Time) *Aggregator {
	g.now = now
	return g
}

// WithConflictHook registers a callback invoked on every conflict
// retry, used for metrics.
func (g *Aggregator) WithConflictHook(hook func()) *Aggregator {
	g.onConflict = hook
	return g
}

// WithMaxRetries overrides the conflict retry budget. Non-positive
// values keep the default.
func (g *Aggregator) WithMaxRetries(n int) *Aggregator {
	if n > 0 {
		g.maxRetries = n
	}
	return g
}

// LinkAlerts adds the alerts to the open issue for the grouping key,
// creating the issue when none exists. The whole set is applied as one
// recomputation. Returns the issue and whether it was created.
func (g *Aggregator) LinkAlerts(ctx context.Context, groupKey, patternID string, alertIDs []string, user string) (*models.Issue, bool, error) {
	if len(alertIDs) == 0 {
		return nil, false, ErrNoMembers
	}

	g.locks.Lock("group/" + groupKey)
	defer g.locks.Unlock("group/" + groupKey)

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		issue, created, err := g.linkOnce(ctx, groupKey, patternID, alertIDs, user)
		if err == nil {
			return issue, created, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return nil, false, err
		}
		if g.onConflict != nil {
			g.onConflict()
		}
		lastErr = err
	}
	return nil, false, fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
}

func (g *Aggregator) linkOnce(ctx context.Context, groupKey, patternID string, alertIDs []string, user string) (*models.Issue, bool, error) {
	now := g.now()

	members, err := g.alerts.GetByIDs(ctx, alertIDs)
	if err != nil {
		return nil, false, fmt.Errorf("load alerts: %w", err)
	}
	if len(members) == 0 {
		return nil, false, ErrNoMembers
	}

	issue, err := g.issues.GetOpenByGroupKey(ctx, groupKey)
	created := false
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		issue = models.NewIssue(groupKey, patternID, members[0], now)
		created = true
	default:
		return nil, false, fmt.Errorf("lookup issue: %w", err)
	}

	added := 0
	for _, a := range members {
		if !issue.HasMember(a.ID) {
			issue.Alerts = append(issue.Alerts, a.ID)
			added++
		}
	}

	if err := g.recompute(ctx, issue); err != nil {
		return nil, false, err
	}
	if added > 0 {
		issue.AddHistory(now, actionLinked, user,
			fmt.Sprintf("linked %d alert(s)", added))
	}

	if created {
		if err := g.issues.Create(ctx, issue); err != nil {
			return nil, false, fmt.Errorf("create issue: %w", err)
		}
	} else {
		if err := g.issues.Update(ctx, issue); err != nil {
			return nil, false, err
		}
	}

	g.setAlertIssue(ctx, members, issue.ID)
	return issue, created, nil
}

// LinkAlertsToIssue adds the alerts to an existing issue by id, the
// administrative counterpart of LinkAlerts. The whole set is applied
// as one recomputation.
func (g *Aggregator) LinkAlertsToIssue(ctx context.Context, issueID string, alertIDs []string, user string) (*models.Issue, error) {
	if len(alertIDs) == 0 {
		return nil, ErrNoMembers
	}

	g.locks.Lock("issue/" + issueID)
	defer g.locks.Unlock("issue/" + issueID)

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		issue, err := g.linkToIssueOnce(ctx, issueID, alertIDs, user)
		if err == nil {
			return issue, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return nil, err
		}
		if g.onConflict != nil {
			g.onConflict()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
}

func (g *Aggregator) linkToIssueOnce(ctx context.Context, issueID string, alertIDs []string, user string) (*models.Issue, error) {
	now := g.now()

	issue, err := g.issues.GetByID(ctx, issueID)
	if err != nil {
		return nil, err
	}

	members, err := g.alerts.GetByIDs(ctx, alertIDs)
	if err != nil {
		return nil, fmt.Errorf("load alerts: %w", err)
	}
	if len(members) == 0 {
		return nil, ErrNoMembers
	}

	added := 0
	for _, a := range members {
		if !issue.HasMember(a.ID) {
			issue.Alerts = append(issue.Alerts, a.ID)
			added++
		}
	}
	if added == 0 {
		return issue, nil
	}

	if err := g.recompute(ctx, issue); err != nil {
		return nil, err
	}
	issue.AddHistory(now, actionLinked, user,
		fmt.Sprintf("linked %d alert(s)", added))

	if err := g.issues.Update(ctx, issue); err != nil {
		return nil, err
	}
	g.setAlertIssue(ctx, members, issue.ID)
	return issue, nil
}

// UnlinkAlerts removes the alerts from the issue's member set as one
// recomputation. Draining the member set closes the issue with a
// resolve time; that is the only membership path that closes an issue.
func (g *Aggregator) UnlinkAlerts(ctx context.Context, issueID string, alertIDs []string, user string) (*models.Issue, error) {
	g.locks.Lock("issue/" + issueID)
	defer g.locks.Unlock("issue/" + issueID)

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		issue, err := g.unlinkOnce(ctx, issueID, alertIDs, user)
		if err == nil {
			return issue, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return nil, err
		}
		if g.onConflict != nil {
			g.onConflict()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
}

func (g *Aggregator) unlinkOnce(ctx context.Context, issueID string, alertIDs []string, user string) (*models.Issue, error) {
	now := g.now()

	issue, err := g.issues.GetByID(ctx, issueID)
	if err != nil {
		return nil, err
	}

	remove := make(map[string]struct{}, len(alertIDs))
	for _, id := range alertIDs {
		remove[id] = struct{}{}
	}

	kept := issue.Alerts[:0:0]
	var removed []string
	for _, id := range issue.Alerts {
		if _, gone := remove[id]; gone {
			removed = append(removed, id)
			continue
		}
		kept = append(kept, id)
	}
	if len(removed) == 0 {
		return issue, nil
	}
	issue.Alerts = kept
	issue.AddHistory(now, actionUnlinked, user,
		fmt.Sprintf("unlinked %d alert(s)", len(removed)))

	if len(issue.Alerts) == 0 {
		g.close(issue, user, now)
	} else if err := g.recompute(ctx, issue); err != nil {
		return nil, err
	}

	if err := g.issues.Update(ctx, issue); err != nil {
		return nil, err
	}

	if err := g.checkInvariant(issue); err != nil {
		return nil, err
	}

	if cleared, err := g.alerts.GetByIDs(ctx, removed); err == nil {
		g.setAlertIssue(ctx, cleared, "")
	}
	return issue, nil
}

// Close resolves the issue regardless of remaining members.
func (g *Aggregator) Close(ctx context.Context, issueID, user string) (*models.Issue, error) {
	g.locks.Lock("issue/" + issueID)
	defer g.locks.Unlock("issue/" + issueID)

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		issue, err := g.issues.GetByID(ctx, issueID)
		if err != nil {
			return nil, err
		}
		if issue.Status == models.StatusClosed {
			return issue, nil
		}
		g.close(issue, user, g.now())

		err = g.issues.Update(ctx, issue)
		if err == nil {
			if members, merr := g.alerts.GetByIDs(ctx, issue.Alerts); merr == nil {
				g.setAlertIssue(ctx, members, "")
			}
			return issue, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return nil, err
		}
		if g.onConflict != nil {
			g.onConflict()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
}

// Recompute reloads the member set and rederives the issue's summary
// fields, persisting the result. Used after member alerts mutate.
func (g *Aggregator) Recompute(ctx context.Context, issueID string) (*models.Issue, error) {
	g.locks.Lock("issue/" + issueID)
	defer g.locks.Unlock("issue/" + issueID)

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		issue, err := g.issues.GetByID(ctx, issueID)
		if err != nil {
			return nil, err
		}
		if issue.Status == models.StatusClosed {
			return issue, nil
		}
		if err := g.recompute(ctx, issue); err != nil {
			return nil, err
		}
		issue.AddHistory(g.now(), actionRecomputed, "", "derived fields recomputed")

		err = g.issues.Update(ctx, issue)
		if err == nil {
			return issue, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return nil, err
		}
		if g.onConflict != nil {
			g.onConflict()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
}

func (g *Aggregator) close(issue *models.Issue, user string, now time.Time) {
	issue.Status = models.StatusClosed
	resolved := now
	issue.ResolveTime = &resolved
	issue.StatusDuration = now.Sub(issue.CreateTime)
	issue.AddHistory(now, actionResolved, user, "issue resolved")
}

// recompute replaces every derived field from the current member set.
// The collections are rebuilt from scratch, never patched.
func (g *Aggregator) recompute(ctx context.Context, issue *models.Issue) error {
	members, err := g.alerts.GetByIDs(ctx, issue.Alerts)
	if err != nil {
		return fmt.Errorf("load members: %w", err)
	}

	severity := models.SeverityUnknown
	hostCritical := false
	hosts := map[string]struct{}{}
	projectGroups := map[string]struct{}{}
	infoSystems := map[string]struct{}{}
	var lastAlert time.Time

	for _, a := range members {
		if a.Severity.MoreSevereThan(severity) {
			severity = a.Severity
		}
		if a.HasTag(tagCriticalHost) {
			hostCritical = true
		}
		for _, h := range a.TagValues(tagHost) {
			hosts[h] = struct{}{}
		}
		for _, pg := range a.TagValues(tagProjectGroup) {
			projectGroups[pg] = struct{}{}
		}
		for _, is := range a.TagValues(tagInfoSystem) {
			infoSystems[is] = struct{}{}
		}
		if a.CreateTime.After(lastAlert) {
			lastAlert = a.CreateTime
		}
	}

	issue.Severity = severity
	issue.HostCritical = hostCritical
	issue.Hosts = sortedKeys(hosts)
	issue.ProjectGroups = sortedKeys(projectGroups)
	issue.InfoSystems = sortedKeys(infoSystems)
	issue.LastAlertTime = lastAlert
	return nil
}

// checkInvariant verifies an issue is never left open with zero
// members. A violation is a programming error: logged loudly and
// surfaced, never silently corrected.
func (g *Aggregator) checkInvariant(issue *models.Issue) error {
	if len(issue.Alerts) == 0 && issue.Status != models.StatusClosed {
		err := fmt.Errorf("issue %s open with empty member set", issue.ID)
		log.Printf("invariant: %v", err)
		return err
	}
	return nil
}

// setAlertIssue updates the back-reference on member alerts. Best
// effort: a racing dedup update wins and the reference is repaired on
// the next link, so conflicts are logged, not retried.
func (g *Aggregator) setAlertIssue(ctx context.Context, alerts []*models.Alert, issueID string) {
	for _, a := range alerts {
		if a.IssueID == issueID {
			continue
		}
		a.IssueID = issueID
		if err := g.alerts.Update(ctx, a, nil); err != nil && !errors.Is(err, storage.ErrConflict) {
			log.Printf("issues: set issue ref on alert %s: %v", a.ID, err)
		}
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Summarize renders a short member digest used in logs.
func Summarize(issue *models.Issue) string {
	return fmt.Sprintf("%s [%s] members=%d hosts=%s",
		issue.GroupKey, issue.Severity, len(issue.Alerts), strings.Join(issue.Hosts, ","))
}
