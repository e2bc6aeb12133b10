package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mediagate/modgate/internal/model"
	"github.com/mediagate/modgate/internal/pkg/apperrors"

	"github.com/google/uuid"
)

type AbuseRepo interface {
	GetConfig(ctx context.Context, organizationID string) (*model.AbuseDetectionConfig, error)
	UpsertConfig(ctx context.Context, cfg *model.AbuseDetectionConfig) error
	InsertReport(ctx context.Context, report *model.AbuseReport) error
	QueryReports(ctx context.Context, filter model.AbuseReportFilter) ([]*model.AbuseReport, int, error)
	ResolveReport(ctx context.Context, reportID, resolvedBy, notes string, flagged bool) error
	CountSince(ctx context.Context, organizationID string, since time.Time) (int, map[model.AbuseScore]int, error)
	ResolvedSince(ctx context.Context, organizationID string, since time.Time) (int, error)
	TopPatterns(ctx context.Context, organizationID string, since time.Time, limit int) ([]model.PatternCount, error)
}

// EventPublisher pushes moderation events to the dashboard feed. A nil
// publisher is legal; publishing never blocks the write path.
type EventPublisher interface {
	Publish(event model.ModerationEvent)
}

type AbuseService struct {
	repo   AbuseRepo
	audit  *AuditService
	events EventPublisher
	now    func() time.Time
}

func NewAbuseService(repo AbuseRepo, audit *AuditService, events EventPublisher) *AbuseService {
	return &AbuseService{
		repo:   repo,
		audit:  audit,
		events: events,
		now:    time.Now,
	}
}

// GetConfig returns the effective detection config for an organization.
// A missing row silently falls back to the hard-coded default; only real
// store failures propagate.
func (s *AbuseService) GetConfig(ctx context.Context, organizationID string) (model.AbuseDetectionConfig, error) {
	cfg, err := s.repo.GetConfig(ctx, organizationID)
	if err != nil {
		return model.AbuseDetectionConfig{}, apperrors.NewStore("abuse config fetch", err)
	}
	if cfg == nil {
		fallback := model.DefaultAbuseDetectionConfig()
		fallback.OrganizationID = organizationID
		return fallback, nil
	}
	return *cfg, nil
}

// UpdateConfig writes an organization override and records the change in
// the audit trail.
func (s *AbuseService) UpdateConfig(ctx context.Context, cfg model.AbuseDetectionConfig, actorID, ip string) error {
	if cfg.AbusiveScoreThreshold <= cfg.SuspiciousScoreThreshold || cfg.SuspiciousScoreThreshold < 0 {
		return apperrors.NewValidation("abusive threshold must exceed suspicious threshold, both non-negative")
	}
	if err := s.repo.UpsertConfig(ctx, &cfg); err != nil {
		return apperrors.NewStore("abuse config upsert", err)
	}
	if _, err := s.audit.Log(ctx, &model.AuditLogEntry{
		ActorID:        actorID,
		ActionType:     model.ActionConfigUpdated,
		TargetType:     "organization",
		TargetID:       cfg.OrganizationID,
		IPAddress:      ip,
		OrganizationID: cfg.OrganizationID,
		Success:        true,
	}); err != nil {
		return err
	}
	return nil
}

// DetectAbuse classifies one metrics snapshot using the organization's
// effective config. Side-effect free with respect to the stores.
func (s *AbuseService) DetectAbuse(ctx context.Context, m model.AbuseDetectionMetrics, organizationID string) (model.AbuseDetectionResult, error) {
	cfg, err := s.GetConfig(ctx, organizationID)
	if err != nil {
		return model.AbuseDetectionResult{}, err
	}
	return ScoreMetrics(m, cfg), nil
}

// CreateReport runs detection and persists the outcome together with the
// raw snapshot for audit and replay.
func (s *AbuseService) CreateReport(ctx context.Context, m model.AbuseDetectionMetrics, organizationID string) (*model.AbuseReport, error) {
	result, err := s.DetectAbuse(ctx, m, organizationID)
	if err != nil {
		return nil, err
	}

	report := &model.AbuseReport{
		ReportID:       uuid.New().String(),
		ClientID:       m.ClientID,
		IPAddress:      m.IPAddress,
		TokenID:        m.TokenID,
		Endpoint:       m.Endpoint,
		OrganizationID: organizationID,
		AbuseScore:     result.Score,
		Severity:       result.Severity,
		Patterns:       result.Patterns,
		Metrics:        m,
		DetectedAt:     s.now().UTC(),
	}
	if err := s.repo.InsertReport(ctx, report); err != nil {
		return nil, apperrors.NewStore("abuse report insert", err)
	}

	if s.events != nil {
		s.events.Publish(model.ModerationEvent{
			Type:           "report_created",
			OrganizationID: organizationID,
			Payload:        report,
			EmittedAt:      report.DetectedAt,
		})
	}
	return report, nil
}

// QueryReports returns one filtered, paginated page, newest first.
func (s *AbuseService) QueryReports(ctx context.Context, filter model.AbuseReportFilter) (*model.AbuseReportPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 1000 {
		filter.PageSize = 50
	}
	reports, total, err := s.repo.QueryReports(ctx, filter)
	if err != nil {
		return nil, apperrors.NewStore("abuse report query", err)
	}
	return &model.AbuseReportPage{
		Reports:  reports,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

// ResolveReport sets the reviewer fields on a report and mirrors the action
// into the audit trail.
func (s *AbuseService) ResolveReport(ctx context.Context, reportID, resolvedBy, notes string, flagged bool, ip string) error {
	if reportID == "" {
		return apperrors.NewValidation("report_id is required")
	}
	err := s.repo.ResolveReport(ctx, reportID, resolvedBy, notes, flagged)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewNotFound("abuse report not found")
	}
	if err != nil {
		return apperrors.NewStore("abuse report resolve", err)
	}

	if _, err := s.audit.Log(ctx, &model.AuditLogEntry{
		ActorID:    resolvedBy,
		ActionType: model.ActionReportResolved,
		TargetType: "abuse_report",
		TargetID:   reportID,
		IPAddress:  ip,
		Metadata:   map[string]interface{}{"flagged": flagged, "notes": notes},
		Success:    true,
	}); err != nil {
		return err
	}
	return nil
}
