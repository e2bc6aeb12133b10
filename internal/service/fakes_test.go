package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/mediagate/modgate/internal/model"
)

// In-memory stand-ins for the Postgres repositories, mirroring their filter
// semantics closely enough to exercise the services without a store.

type fakeAuditRepo struct {
	entries []*model.AuditLogEntry
	failAll bool
}

var errStoreDown = sql.ErrConnDone

func (r *fakeAuditRepo) Insert(ctx context.Context, entry *model.AuditLogEntry) error {
	if r.failAll {
		return errStoreDown
	}
	clone := *entry
	r.entries = append(r.entries, &clone)
	return nil
}

func (r *fakeAuditRepo) matches(entry *model.AuditLogEntry, filter model.AuditLogFilter) bool {
	if filter.ActorID != "" && entry.ActorID != filter.ActorID {
		return false
	}
	if len(filter.ActionTypes) > 0 {
		found := false
		for _, at := range filter.ActionTypes {
			if entry.ActionType == at {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.TargetID != "" && entry.TargetID != filter.TargetID {
		return false
	}
	if filter.OrganizationID != "" && entry.OrganizationID != filter.OrganizationID {
		return false
	}
	if filter.IPAddress != "" && entry.IPAddress != filter.IPAddress {
		return false
	}
	if filter.Success != nil && entry.Success != *filter.Success {
		return false
	}
	if filter.From != nil && entry.Timestamp.Before(*filter.From) {
		return false
	}
	if filter.To != nil && entry.Timestamp.After(*filter.To) {
		return false
	}
	if filter.SearchQuery != "" {
		needle := strings.ToLower(filter.SearchQuery)
		metadata := ""
		if len(entry.Metadata) > 0 {
			raw, _ := json.Marshal(entry.Metadata)
			metadata = string(raw)
		}
		haystack := strings.ToLower(string(entry.ActionType) + " " + entry.TargetID + " " + entry.ErrorMessage + " " + metadata)
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}

func (r *fakeAuditRepo) filtered(filter model.AuditLogFilter) []*model.AuditLogEntry {
	out := make([]*model.AuditLogEntry, 0)
	for _, entry := range r.entries {
		if r.matches(entry, filter) {
			out = append(out, entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

func (r *fakeAuditRepo) Query(ctx context.Context, filter model.AuditLogFilter) ([]*model.AuditLogEntry, int, error) {
	if r.failAll {
		return nil, 0, errStoreDown
	}
	all := r.filtered(filter)
	total := len(all)
	start := (filter.Page - 1) * filter.PageSize
	if start > total {
		start = total
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (r *fakeAuditRepo) Fetch(ctx context.Context, filter model.AuditLogFilter, limit int) ([]*model.AuditLogEntry, error) {
	if r.failAll {
		return nil, errStoreDown
	}
	all := r.filtered(filter)
	if len(all) > limit+1 {
		all = all[:limit+1]
	}
	return all, nil
}

func (r *fakeAuditRepo) Count(ctx context.Context, organizationID string, since time.Time) (int, error) {
	if r.failAll {
		return 0, errStoreDown
	}
	count := 0
	for _, entry := range r.entries {
		if organizationID != "" && entry.OrganizationID != organizationID {
			continue
		}
		if entry.Timestamp.Before(since) {
			continue
		}
		count++
	}
	return count, nil
}

type fakeFlagRepo struct {
	flags   []*model.ModerationFlag
	inserts int
	failAll bool
}

func (r *fakeFlagRepo) Insert(ctx context.Context, flag *model.ModerationFlag) error {
	if r.failAll {
		return errStoreDown
	}
	r.inserts++
	clone := *flag
	r.flags = append(r.flags, &clone)
	return nil
}

func (r *fakeFlagRepo) ActiveFlags(ctx context.Context, clientID, tokenID, ipAddress string, now time.Time) ([]*model.ModerationFlag, error) {
	if r.failAll {
		return nil, errStoreDown
	}
	out := make([]*model.ModerationFlag, 0)
	for _, flag := range r.flags {
		switch {
		case clientID != "":
			if flag.ClientID != clientID {
				continue
			}
		case tokenID != "":
			if flag.TokenID != tokenID {
				continue
			}
		case ipAddress != "":
			if flag.IPAddress != ipAddress {
				continue
			}
		default:
			continue
		}
		if !flag.ActiveAt(now) {
			continue
		}
		out = append(out, flag)
	}
	return out, nil
}

func (r *fakeFlagRepo) Deactivate(ctx context.Context, flagID string, now time.Time) error {
	if r.failAll {
		return errStoreDown
	}
	for _, flag := range r.flags {
		if flag.FlagID == flagID {
			t := now
			flag.ExpiresAt = &t
			return nil
		}
	}
	return sql.ErrNoRows
}

func (r *fakeFlagRepo) CountActive(ctx context.Context, organizationID string, now time.Time) (int, error) {
	if r.failAll {
		return 0, errStoreDown
	}
	count := 0
	for _, flag := range r.flags {
		if organizationID != "" && flag.OrganizationID != organizationID {
			continue
		}
		if flag.ActiveAt(now) {
			count++
		}
	}
	return count, nil
}

var severityOrder = map[model.FlagSeverity]int{
	model.SeverityLow:      1,
	model.SeverityMedium:   2,
	model.SeverityHigh:     3,
	model.SeverityCritical: 4,
}

func (r *fakeFlagRepo) TopOffenders(ctx context.Context, dimension, organizationID string, since time.Time, limit int) ([]model.OffenderCount, error) {
	if r.failAll {
		return nil, errStoreDown
	}
	counts := make(map[string]*model.OffenderCount)
	order := make([]string, 0)
	for _, flag := range r.flags {
		if organizationID != "" && flag.OrganizationID != organizationID {
			continue
		}
		if flag.FlaggedAt.Before(since) {
			continue
		}
		id := flag.ClientID
		if dimension == "ip_address" {
			id = flag.IPAddress
		}
		if id == "" {
			continue
		}
		oc, ok := counts[id]
		if !ok {
			oc = &model.OffenderCount{ID: id, MaxSeverity: flag.Severity}
			counts[id] = oc
			order = append(order, id)
		}
		oc.FlagCount++
		if severityOrder[flag.Severity] > severityOrder[oc.MaxSeverity] {
			oc.MaxSeverity = flag.Severity
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]].FlagCount > counts[order[j]].FlagCount
	})
	out := make([]model.OffenderCount, 0, limit)
	for _, id := range order {
		if len(out) >= limit {
			break
		}
		out = append(out, *counts[id])
	}
	return out, nil
}

type fakeModeratorRepo struct {
	roles map[string]string
}

func (r *fakeModeratorRepo) GetRole(ctx context.Context, userID string) (string, error) {
	return r.roles[userID], nil
}

func (r *fakeModeratorRepo) SetRole(ctx context.Context, userID, role string) error {
	if r.roles == nil {
		r.roles = make(map[string]string)
	}
	r.roles[userID] = role
	return nil
}

type fakeAbuseRepo struct {
	configs map[string]*model.AbuseDetectionConfig
	reports []*model.AbuseReport
	failAll bool
}

func (r *fakeAbuseRepo) GetConfig(ctx context.Context, organizationID string) (*model.AbuseDetectionConfig, error) {
	if r.failAll {
		return nil, errStoreDown
	}
	if cfg, ok := r.configs[organizationID]; ok {
		return cfg, nil
	}
	if cfg, ok := r.configs[""]; ok {
		return cfg, nil
	}
	return nil, nil
}

func (r *fakeAbuseRepo) UpsertConfig(ctx context.Context, cfg *model.AbuseDetectionConfig) error {
	if r.failAll {
		return errStoreDown
	}
	if r.configs == nil {
		r.configs = make(map[string]*model.AbuseDetectionConfig)
	}
	clone := *cfg
	r.configs[cfg.OrganizationID] = &clone
	return nil
}

func (r *fakeAbuseRepo) InsertReport(ctx context.Context, report *model.AbuseReport) error {
	if r.failAll {
		return errStoreDown
	}
	clone := *report
	r.reports = append(r.reports, &clone)
	return nil
}

func (r *fakeAbuseRepo) QueryReports(ctx context.Context, filter model.AbuseReportFilter) ([]*model.AbuseReport, int, error) {
	if r.failAll {
		return nil, 0, errStoreDown
	}
	all := make([]*model.AbuseReport, 0)
	for _, report := range r.reports {
		if filter.Score != "" && report.AbuseScore != filter.Score {
			continue
		}
		if filter.OrganizationID != "" && report.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.TokenID != "" && report.TokenID != filter.TokenID {
			continue
		}
		if filter.MinSeverity != nil && report.Severity < *filter.MinSeverity {
			continue
		}
		if filter.MaxSeverity != nil && report.Severity > *filter.MaxSeverity {
			continue
		}
		if len(filter.Patterns) > 0 {
			found := false
			for _, want := range filter.Patterns {
				for _, have := range report.Patterns {
					if want == have {
						found = true
					}
				}
			}
			if !found {
				continue
			}
		}
		all = append(all, report)
	}
	total := len(all)
	start := (filter.Page - 1) * filter.PageSize
	if start > total {
		start = total
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (r *fakeAbuseRepo) ResolveReport(ctx context.Context, reportID, resolvedBy, notes string, flagged bool) error {
	if r.failAll {
		return errStoreDown
	}
	for _, report := range r.reports {
		if report.ReportID == reportID {
			now := time.Now().UTC()
			report.IsResolved = true
			report.IsFlagged = flagged
			report.ResolvedAt = &now
			report.ResolvedBy = resolvedBy
			report.Notes = notes
			return nil
		}
	}
	return sql.ErrNoRows
}

func (r *fakeAbuseRepo) CountSince(ctx context.Context, organizationID string, since time.Time) (int, map[model.AbuseScore]int, error) {
	if r.failAll {
		return 0, nil, errStoreDown
	}
	dist := map[model.AbuseScore]int{
		model.ScoreNormal:     0,
		model.ScoreSuspicious: 0,
		model.ScoreAbusive:    0,
	}
	total := 0
	for _, report := range r.reports {
		if organizationID != "" && report.OrganizationID != organizationID {
			continue
		}
		if report.DetectedAt.Before(since) {
			continue
		}
		dist[report.AbuseScore]++
		total++
	}
	return total, dist, nil
}

func (r *fakeAbuseRepo) ResolvedSince(ctx context.Context, organizationID string, since time.Time) (int, error) {
	if r.failAll {
		return 0, errStoreDown
	}
	count := 0
	for _, report := range r.reports {
		if organizationID != "" && report.OrganizationID != organizationID {
			continue
		}
		if report.IsResolved && report.ResolvedAt != nil && !report.ResolvedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *fakeAbuseRepo) TopPatterns(ctx context.Context, organizationID string, since time.Time, limit int) ([]model.PatternCount, error) {
	if r.failAll {
		return nil, errStoreDown
	}
	counts := make(map[model.AbusePattern]int)
	order := make([]model.AbusePattern, 0)
	for _, report := range r.reports {
		if organizationID != "" && report.OrganizationID != organizationID {
			continue
		}
		if report.DetectedAt.Before(since) {
			continue
		}
		for _, pattern := range report.Patterns {
			if _, ok := counts[pattern]; !ok {
				order = append(order, pattern)
			}
			counts[pattern]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	out := make([]model.PatternCount, 0, limit)
	for _, pattern := range order {
		if len(out) >= limit {
			break
		}
		out = append(out, model.PatternCount{Pattern: pattern, Count: counts[pattern]})
	}
	return out, nil
}

type fakeEvents struct {
	published []model.ModerationEvent
}

func (f *fakeEvents) Publish(event model.ModerationEvent) {
	f.published = append(f.published, event)
}
