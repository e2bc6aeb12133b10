package service

import (
	"context"
	"time"

	"github.com/mediagate/modgate/internal/model"
	"github.com/mediagate/modgate/internal/pkg/apperrors"
)

const topN = 10

type StatsService struct {
	audit AuditRepo
	abuse AbuseRepo
	flags FlagRepo
	now   func() time.Time
}

func NewStatsService(audit AuditRepo, abuse AbuseRepo, flags FlagRepo) *StatsService {
	return &StatsService{
		audit: audit,
		abuse: abuse,
		flags: flags,
		now:   time.Now,
	}
}

// WindowStart maps a stats range to the lookback cutoff from now.
// Unrecognized ranges default to 24h.
func WindowStart(timeRange model.StatsTimeRange, now time.Time) time.Time {
	switch timeRange {
	case model.Range7d:
		return now.Add(-7 * 24 * time.Hour)
	case model.Range30d:
		return now.Add(-30 * 24 * time.Hour)
	case model.Range90d:
		return now.Add(-90 * 24 * time.Hour)
	default:
		return now.Add(-24 * time.Hour)
	}
}

// GetStats assembles the windowed moderation rollup. The active-flag count
// is unconditional; everything else is bounded by the window.
func (s *StatsService) GetStats(ctx context.Context, timeRange model.StatsTimeRange, organizationID string) (*model.ModerationStats, error) {
	now := s.now().UTC()
	since := WindowStart(timeRange, now)

	auditCount, err := s.audit.Count(ctx, organizationID, since)
	if err != nil {
		return nil, apperrors.NewStore("audit count", err)
	}
	reportCount, distribution, err := s.abuse.CountSince(ctx, organizationID, since)
	if err != nil {
		return nil, apperrors.NewStore("report count", err)
	}
	resolvedCount, err := s.abuse.ResolvedSince(ctx, organizationID, since)
	if err != nil {
		return nil, apperrors.NewStore("resolved count", err)
	}
	activeFlags, err := s.flags.CountActive(ctx, organizationID, now)
	if err != nil {
		return nil, apperrors.NewStore("active flag count", err)
	}
	topPatterns, err := s.abuse.TopPatterns(ctx, organizationID, since, topN)
	if err != nil {
		return nil, apperrors.NewStore("top patterns", err)
	}
	topClients, err := s.flags.TopOffenders(ctx, "client_id", organizationID, since, topN)
	if err != nil {
		return nil, apperrors.NewStore("top flagged clients", err)
	}
	topIPs, err := s.flags.TopOffenders(ctx, "ip_address", organizationID, since, topN)
	if err != nil {
		return nil, apperrors.NewStore("top flagged ips", err)
	}

	return &model.ModerationStats{
		TimeRange:         timeRange,
		Since:             since,
		AuditLogCount:     auditCount,
		AbuseReportCount:  reportCount,
		ActiveFlagCount:   activeFlags,
		ResolvedCount:     resolvedCount,
		ScoreDistribution: distribution,
		TopPatterns:       topPatterns,
		TopFlaggedClients: topClients,
		TopFlaggedIPs:     topIPs,
	}, nil
}
