package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mediagate/modgate/internal/model"

	"github.com/jmoiron/sqlx"
)

type PostgresAuditRepo struct {
	db *sqlx.DB
}

func NewPostgresAuditRepo(db *sqlx.DB) *PostgresAuditRepo {
	repo := &PostgresAuditRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

func (r *PostgresAuditRepo) Insert(ctx context.Context, entry *model.AuditLogEntry) error {
	if entry == nil {
		return nil
	}
	metadataJSON, _ := json.Marshal(entry.Metadata)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			log_id, actor_id, actor_email, action_type, target_type, target_id,
			ts, ip_address, user_agent, organization_id,
			metadata, success, error_message
		) VALUES (
			$1,$2,$3,$4,$5,$6,
			$7,$8,$9,$10,
			$11,$12,$13
		)
		ON CONFLICT (log_id) DO NOTHING
	`, entry.LogID, entry.ActorID, entry.ActorEmail, entry.ActionType, entry.TargetType, entry.TargetID,
		entry.Timestamp, entry.IPAddress, entry.UserAgent, entry.OrganizationID,
		metadataJSON, entry.Success, entry.ErrorMessage)
	return err
}

const auditColumns = `log_id, actor_id, actor_email, action_type, target_type, target_id, ts, ip_address, user_agent, organization_id, metadata, success, error_message`

// Query returns one page of the filtered trail, newest first, plus the
// total match count computed independently of the page window.
func (r *PostgresAuditRepo) Query(ctx context.Context, filter model.AuditLogFilter) ([]*model.AuditLogEntry, int, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 1000 {
		pageSize = 50
	}

	preds := auditPredicates(filter)
	where, args, idx := preds.WhereClause(1)

	var total int
	if err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + auditColumns + ` FROM audit_logs` + where
	query += orderAndPage(idx)
	args = append(args, pageSize, (page-1)*pageSize)

	entries, err := r.scanEntries(ctx, query, args)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Fetch returns up to limit+1 filtered rows, newest first. Callers use the
// extra row to detect export truncation.
func (r *PostgresAuditRepo) Fetch(ctx context.Context, filter model.AuditLogFilter, limit int) ([]*model.AuditLogEntry, error) {
	preds := auditPredicates(filter)
	where, args, idx := preds.WhereClause(1)

	query := `SELECT ` + auditColumns + ` FROM audit_logs` + where
	query += orderAndPage(idx)
	args = append(args, limit+1, 0)

	return r.scanEntries(ctx, query, args)
}

func orderAndPage(idx int) string {
	return fmt.Sprintf(" ORDER BY ts DESC LIMIT $%d OFFSET $%d", idx, idx+1)
}

func auditPredicates(filter model.AuditLogFilter) *predicateList {
	preds := newPredicateList()
	if filter.ActorID != "" {
		preds.Add("actor_id", "=", filter.ActorID)
	}
	if len(filter.ActionTypes) > 0 {
		values := make([]interface{}, len(filter.ActionTypes))
		for i, at := range filter.ActionTypes {
			values[i] = string(at)
		}
		preds.AddRaw("action_type IN ("+inPlaceholders(len(values))+")", values...)
	}
	if filter.TargetID != "" {
		preds.Add("target_id", "=", filter.TargetID)
	}
	if filter.TargetType != "" {
		preds.Add("target_type", "=", filter.TargetType)
	}
	if filter.OrganizationID != "" {
		preds.Add("organization_id", "=", filter.OrganizationID)
	}
	if filter.IPAddress != "" {
		preds.Add("ip_address", "=", filter.IPAddress)
	}
	if filter.Success != nil {
		preds.Add("success", "=", *filter.Success)
	}
	if filter.From != nil {
		preds.Add("ts", ">=", *filter.From)
	}
	if filter.To != nil {
		preds.Add("ts", "<=", *filter.To)
	}
	if filter.SearchQuery != "" {
		like := "%" + filter.SearchQuery + "%"
		preds.AddRaw("(action_type ILIKE $%d OR target_id ILIKE $%d OR error_message ILIKE $%d OR metadata::text ILIKE $%d)",
			like, like, like, like)
	}
	return preds
}

func (r *PostgresAuditRepo) scanEntries(ctx context.Context, query string, args []interface{}) ([]*model.AuditLogEntry, error) {
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*model.AuditLogEntry, 0)
	for rows.Next() {
		var entry model.AuditLogEntry
		var metadataJSON []byte
		if err := rows.Scan(
			&entry.LogID,
			&entry.ActorID,
			&entry.ActorEmail,
			&entry.ActionType,
			&entry.TargetType,
			&entry.TargetID,
			&entry.Timestamp,
			&entry.IPAddress,
			&entry.UserAgent,
			&entry.OrganizationID,
			&metadataJSON,
			&entry.Success,
			&entry.ErrorMessage,
		); err != nil {
			return nil, err
		}
		if len(metadataJSON) > 0 {
			_ = json.Unmarshal(metadataJSON, &entry.Metadata)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// Count returns the number of entries at or after since.
func (r *PostgresAuditRepo) Count(ctx context.Context, organizationID string, since time.Time) (int, error) {
	preds := newPredicateList()
	if organizationID != "" {
		preds.Add("organization_id", "=", organizationID)
	}
	preds.Add("ts", ">=", since)
	where, args, _ := preds.WhereClause(1)

	var total int
	err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total)
	return total, err
}

func (r *PostgresAuditRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_logs (
			log_id TEXT PRIMARY KEY,
			actor_id TEXT NOT NULL,
			actor_email TEXT NOT NULL DEFAULT '',
			action_type TEXT NOT NULL,
			target_type TEXT NOT NULL DEFAULT '',
			target_id TEXT NOT NULL DEFAULT '',
			ts TIMESTAMPTZ NOT NULL,
			ip_address TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			organization_id TEXT NOT NULL DEFAULT '',
			metadata JSONB,
			success BOOLEAN NOT NULL DEFAULT TRUE,
			error_message TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_audit_logs_org_ts ON audit_logs(organization_id, ts DESC)`)
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_audit_logs_actor ON audit_logs(actor_id, ts DESC)`)
	return nil
}
