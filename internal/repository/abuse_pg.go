package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mediagate/modgate/internal/model"

	"github.com/jmoiron/sqlx"
)

type PostgresAbuseRepo struct {
	db *sqlx.DB
}

func NewPostgresAbuseRepo(db *sqlx.DB) *PostgresAbuseRepo {
	repo := &PostgresAbuseRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

// GetConfig returns the organization-specific detection config, falling
// back to the global row (empty organization_id). A missing row yields
// (nil, nil); the caller substitutes the hard-coded default.
func (r *PostgresAbuseRepo) GetConfig(ctx context.Context, organizationID string) (*model.AbuseDetectionConfig, error) {
	var thresholdsJSON []byte
	query := `SELECT thresholds FROM abuse_detection_configs WHERE organization_id = $1 LIMIT 1`

	err := r.db.QueryRowxContext(ctx, query, organizationID).Scan(&thresholdsJSON)
	if errors.Is(err, sql.ErrNoRows) && organizationID != "" {
		err = r.db.QueryRowxContext(ctx, query, "").Scan(&thresholdsJSON)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cfg model.AbuseDetectionConfig
	if err := json.Unmarshal(thresholdsJSON, &cfg); err != nil {
		return nil, fmt.Errorf("corrupt abuse config row: %w", err)
	}
	cfg.OrganizationID = organizationID
	return &cfg, nil
}

// UpsertConfig writes an organization override row (or the global row when
// organizationID is empty).
func (r *PostgresAbuseRepo) UpsertConfig(ctx context.Context, cfg *model.AbuseDetectionConfig) error {
	thresholds, _ := json.Marshal(cfg)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO abuse_detection_configs (organization_id, thresholds, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (organization_id)
		DO UPDATE SET thresholds = $2, updated_at = $3
	`, cfg.OrganizationID, thresholds, time.Now().UTC())
	return err
}

func (r *PostgresAbuseRepo) InsertReport(ctx context.Context, report *model.AbuseReport) error {
	metricsJSON, _ := json.Marshal(report.Metrics)
	patternsJSON, _ := json.Marshal(report.Patterns)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO abuse_reports (
			report_id, client_id, ip_address, token_id, endpoint, organization_id,
			abuse_score, severity, patterns, metrics, detected_at,
			is_flagged, is_resolved
		) VALUES (
			$1,$2,$3,$4,$5,$6,
			$7,$8,$9,$10,$11,
			$12,$13
		)
	`, report.ReportID, report.ClientID, report.IPAddress, report.TokenID, report.Endpoint, report.OrganizationID,
		report.AbuseScore, report.Severity, patternsJSON, metricsJSON, report.DetectedAt,
		report.IsFlagged, report.IsResolved)
	return err
}

const reportColumns = `report_id, client_id, ip_address, token_id, endpoint, organization_id, abuse_score, severity, patterns, metrics, detected_at, is_flagged, is_resolved, resolved_at, resolved_by, notes`

// QueryReports returns one page of filtered reports, newest first, plus the
// total match count.
func (r *PostgresAbuseRepo) QueryReports(ctx context.Context, filter model.AbuseReportFilter) ([]*model.AbuseReport, int, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 1000 {
		pageSize = 50
	}

	preds := reportPredicates(filter)
	where, args, idx := preds.WhereClause(1)

	var total int
	if err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM abuse_reports`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + reportColumns + ` FROM abuse_reports` + where
	query += fmt.Sprintf(" ORDER BY detected_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	reports := make([]*model.AbuseReport, 0, pageSize)
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		reports = append(reports, report)
	}
	return reports, total, rows.Err()
}

func reportPredicates(filter model.AbuseReportFilter) *predicateList {
	preds := newPredicateList()
	if filter.Score != "" {
		preds.Add("abuse_score", "=", string(filter.Score))
	}
	if len(filter.Patterns) > 0 {
		// report matches when it contains any listed pattern
		patterns, _ := json.Marshal(filter.Patterns)
		preds.AddRaw("patterns ?| ARRAY(SELECT jsonb_array_elements_text($%d::jsonb))", string(patterns))
	}
	if filter.ClientID != "" {
		preds.Add("client_id", "=", filter.ClientID)
	}
	if filter.IPAddress != "" {
		preds.Add("ip_address", "=", filter.IPAddress)
	}
	if filter.TokenID != "" {
		preds.Add("token_id", "=", filter.TokenID)
	}
	if filter.OrganizationID != "" {
		preds.Add("organization_id", "=", filter.OrganizationID)
	}
	if filter.From != nil {
		preds.Add("detected_at", ">=", *filter.From)
	}
	if filter.To != nil {
		preds.Add("detected_at", "<=", *filter.To)
	}
	if filter.MinSeverity != nil {
		preds.Add("severity", ">=", *filter.MinSeverity)
	}
	if filter.MaxSeverity != nil {
		preds.Add("severity", "<=", *filter.MaxSeverity)
	}
	if filter.IsFlagged != nil {
		preds.Add("is_flagged", "=", *filter.IsFlagged)
	}
	if filter.IsResolved != nil {
		preds.Add("is_resolved", "=", *filter.IsResolved)
	}
	return preds
}

func scanReport(rows *sqlx.Rows) (*model.AbuseReport, error) {
	var report model.AbuseReport
	var patternsJSON, metricsJSON []byte
	var resolvedAt sql.NullTime
	var resolvedBy, notes sql.NullString
	if err := rows.Scan(
		&report.ReportID,
		&report.ClientID,
		&report.IPAddress,
		&report.TokenID,
		&report.Endpoint,
		&report.OrganizationID,
		&report.AbuseScore,
		&report.Severity,
		&patternsJSON,
		&metricsJSON,
		&report.DetectedAt,
		&report.IsFlagged,
		&report.IsResolved,
		&resolvedAt,
		&resolvedBy,
		&notes,
	); err != nil {
		return nil, err
	}
	_ = json.Unmarshal(patternsJSON, &report.Patterns)
	_ = json.Unmarshal(metricsJSON, &report.Metrics)
	if resolvedAt.Valid {
		report.ResolvedAt = &resolvedAt.Time
	}
	report.ResolvedBy = resolvedBy.String
	report.Notes = notes.String
	return &report, nil
}

// ResolveReport sets the reviewer workflow fields. They are the only
// mutable columns on a report.
func (r *PostgresAbuseRepo) ResolveReport(ctx context.Context, reportID, resolvedBy, notes string, flagged bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE abuse_reports
		SET is_flagged = $2, is_resolved = TRUE, resolved_at = $3, resolved_by = $4, notes = $5
		WHERE report_id = $1
	`, reportID, flagged, time.Now().UTC(), resolvedBy, notes)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return err
}

// CountSince returns report count, score distribution and top pattern
// frequencies within the window.
func (r *PostgresAbuseRepo) CountSince(ctx context.Context, organizationID string, since time.Time) (int, map[model.AbuseScore]int, error) {
	preds := newPredicateList()
	if organizationID != "" {
		preds.Add("organization_id", "=", organizationID)
	}
	preds.Add("detected_at", ">=", since)
	where, args, _ := preds.WhereClause(1)

	rows, err := r.db.QueryxContext(ctx, `SELECT abuse_score, COUNT(*) FROM abuse_reports`+where+` GROUP BY abuse_score`, args...)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	total := 0
	dist := map[model.AbuseScore]int{
		model.ScoreNormal:     0,
		model.ScoreSuspicious: 0,
		model.ScoreAbusive:    0,
	}
	for rows.Next() {
		var score model.AbuseScore
		var count int
		if err := rows.Scan(&score, &count); err != nil {
			return 0, nil, err
		}
		dist[score] = count
		total += count
	}
	return total, dist, rows.Err()
}

// ResolvedSince returns the number of reports resolved within the window.
func (r *PostgresAbuseRepo) ResolvedSince(ctx context.Context, organizationID string, since time.Time) (int, error) {
	preds := newPredicateList()
	if organizationID != "" {
		preds.Add("organization_id", "=", organizationID)
	}
	preds.Add("is_resolved", "=", true)
	preds.Add("resolved_at", ">=", since)
	where, args, _ := preds.WhereClause(1)

	var total int
	err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM abuse_reports`+where, args...).Scan(&total)
	return total, err
}

// TopPatterns returns the most frequent abuse patterns within the window.
func (r *PostgresAbuseRepo) TopPatterns(ctx context.Context, organizationID string, since time.Time, limit int) ([]model.PatternCount, error) {
	preds := newPredicateList()
	if organizationID != "" {
		preds.Add("organization_id", "=", organizationID)
	}
	preds.Add("detected_at", ">=", since)
	where, args, idx := preds.WhereClause(1)

	query := `
		SELECT p.pattern, COUNT(*) AS freq
		FROM abuse_reports, jsonb_array_elements_text(patterns) AS p(pattern)` + where + fmt.Sprintf(`
		GROUP BY p.pattern
		ORDER BY freq DESC
		LIMIT $%d`, idx)
	args = append(args, limit)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]model.PatternCount, 0, limit)
	for rows.Next() {
		var pc model.PatternCount
		if err := rows.Scan(&pc.Pattern, &pc.Count); err != nil {
			return nil, err
		}
		results = append(results, pc)
	}
	return results, rows.Err()
}

func (r *PostgresAbuseRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS abuse_detection_configs (
			organization_id TEXT PRIMARY KEY,
			thresholds JSONB NOT NULL,
			updated_at TIMESTAMPTZ
		)
	`)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS abuse_reports (
			report_id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL DEFAULT '',
			ip_address TEXT NOT NULL DEFAULT '',
			token_id TEXT NOT NULL DEFAULT '',
			endpoint TEXT NOT NULL DEFAULT '',
			organization_id TEXT NOT NULL DEFAULT '',
			abuse_score TEXT NOT NULL,
			severity INTEGER NOT NULL,
			patterns JSONB NOT NULL DEFAULT '[]',
			metrics JSONB NOT NULL DEFAULT '{}',
			detected_at TIMESTAMPTZ NOT NULL,
			is_flagged BOOLEAN NOT NULL DEFAULT FALSE,
			is_resolved BOOLEAN NOT NULL DEFAULT FALSE,
			resolved_at TIMESTAMPTZ,
			resolved_by TEXT,
			notes TEXT
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_abuse_reports_org_detected ON abuse_reports(organization_id, detected_at DESC)`)
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_abuse_reports_patterns ON abuse_reports USING GIN (patterns)`)
	return nil
}
