package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mediagate/modgate/internal/model"

	"github.com/jmoiron/sqlx"
)

type PostgresFlagRepo struct {
	db *sqlx.DB
}

func NewPostgresFlagRepo(db *sqlx.DB) *PostgresFlagRepo {
	repo := &PostgresFlagRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

func (r *PostgresFlagRepo) Insert(ctx context.Context, flag *model.ModerationFlag) error {
	metadataJSON, _ := json.Marshal(flag.Metadata)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO moderation_flags (
			flag_id, client_id, token_id, ip_address, organization_id,
			flag_reason, flag_type, severity, flagged_by, flagged_at,
			expires_at, metadata
		) VALUES (
			$1,$2,$3,$4,$5,
			$6,$7,$8,$9,$10,
			$11,$12
		)
	`, flag.FlagID, flag.ClientID, flag.TokenID, flag.IPAddress, flag.OrganizationID,
		flag.FlagReason, flag.FlagType, flag.Severity, flag.FlaggedBy, flag.FlaggedAt,
		flag.ExpiresAt, metadataJSON)
	return err
}

const flagColumns = `flag_id, client_id, token_id, ip_address, organization_id, flag_reason, flag_type, severity, flagged_by, flagged_at, expires_at, metadata`

// ActiveFlags returns flags on the given dimension that are still in force
// at now. Expiry is the strict boundary now < expires_at; NULL means
// permanent.
func (r *PostgresFlagRepo) ActiveFlags(ctx context.Context, clientID, tokenID, ipAddress string, now time.Time) ([]*model.ModerationFlag, error) {
	preds := newPredicateList()
	switch {
	case clientID != "":
		preds.Add("client_id", "=", clientID)
	case tokenID != "":
		preds.Add("token_id", "=", tokenID)
	case ipAddress != "":
		preds.Add("ip_address", "=", ipAddress)
	default:
		return []*model.ModerationFlag{}, nil
	}
	preds.AddRaw("(expires_at IS NULL OR expires_at > $%d)", now)
	where, args, _ := preds.WhereClause(1)

	rows, err := r.db.QueryxContext(ctx, `SELECT `+flagColumns+` FROM moderation_flags`+where+` ORDER BY flagged_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flags := make([]*model.ModerationFlag, 0)
	for rows.Next() {
		flag, err := scanFlag(rows)
		if err != nil {
			return nil, err
		}
		flags = append(flags, flag)
	}
	return flags, rows.Err()
}

func scanFlag(rows *sqlx.Rows) (*model.ModerationFlag, error) {
	var flag model.ModerationFlag
	var expiresAt sql.NullTime
	var metadataJSON []byte
	if err := rows.Scan(
		&flag.FlagID,
		&flag.ClientID,
		&flag.TokenID,
		&flag.IPAddress,
		&flag.OrganizationID,
		&flag.FlagReason,
		&flag.FlagType,
		&flag.Severity,
		&flag.FlaggedBy,
		&flag.FlaggedAt,
		&expiresAt,
		&metadataJSON,
	); err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		flag.ExpiresAt = &expiresAt.Time
	}
	if len(metadataJSON) > 0 {
		_ = json.Unmarshal(metadataJSON, &flag.Metadata)
	}
	return &flag, nil
}

// Deactivate forces expiry of a flag (manual reversal, distinct from lazy
// time-based expiry). Returns sql.ErrNoRows when the flag does not exist.
func (r *PostgresFlagRepo) Deactivate(ctx context.Context, flagID string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE moderation_flags SET expires_at = $2 WHERE flag_id = $1`, flagID, now)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return err
}

// CountActive returns the number of flags in force at now, regardless of
// when they were created.
func (r *PostgresFlagRepo) CountActive(ctx context.Context, organizationID string, now time.Time) (int, error) {
	preds := newPredicateList()
	if organizationID != "" {
		preds.Add("organization_id", "=", organizationID)
	}
	preds.AddRaw("(expires_at IS NULL OR expires_at > $%d)", now)
	where, args, _ := preds.WhereClause(1)

	var total int
	err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM moderation_flags`+where, args...).Scan(&total)
	return total, err
}

// severityRank orders the enumerated levels so MAX() picks the worst one.
const severityRank = `CASE severity WHEN 'CRITICAL' THEN 4 WHEN 'HIGH' THEN 3 WHEN 'MEDIUM' THEN 2 ELSE 1 END`

// TopOffenders returns the most-flagged values of dimension ("client_id" or
// "ip_address") within the window, with flag count and worst severity.
func (r *PostgresFlagRepo) TopOffenders(ctx context.Context, dimension, organizationID string, since time.Time, limit int) ([]model.OffenderCount, error) {
	if dimension != "client_id" && dimension != "ip_address" {
		return nil, fmt.Errorf("unsupported offender dimension %q", dimension)
	}

	preds := newPredicateList()
	preds.Add(dimension, "<>", "")
	if organizationID != "" {
		preds.Add("organization_id", "=", organizationID)
	}
	preds.Add("flagged_at", ">=", since)
	where, args, idx := preds.WhereClause(1)

	query := `SELECT ` + dimension + `, COUNT(*) AS flags, MAX(` + severityRank + `) AS worst FROM moderation_flags` +
		where + fmt.Sprintf(` GROUP BY `+dimension+` ORDER BY flags DESC LIMIT $%d`, idx)
	args = append(args, limit)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]model.OffenderCount, 0, limit)
	for rows.Next() {
		var oc model.OffenderCount
		var worst int
		if err := rows.Scan(&oc.ID, &oc.FlagCount, &worst); err != nil {
			return nil, err
		}
		oc.MaxSeverity = severityFromRank(worst)
		results = append(results, oc)
	}
	return results, rows.Err()
}

func severityFromRank(rank int) model.FlagSeverity {
	switch rank {
	case 4:
		return model.SeverityCritical
	case 3:
		return model.SeverityHigh
	case 2:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

func (r *PostgresFlagRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS moderation_flags (
			flag_id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL DEFAULT '',
			token_id TEXT NOT NULL DEFAULT '',
			ip_address TEXT NOT NULL DEFAULT '',
			organization_id TEXT NOT NULL DEFAULT '',
			flag_reason TEXT NOT NULL,
			flag_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			flagged_by TEXT NOT NULL,
			flagged_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ,
			metadata JSONB
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_moderation_flags_client ON moderation_flags(client_id) WHERE client_id <> ''`)
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_moderation_flags_token ON moderation_flags(token_id) WHERE token_id <> ''`)
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_moderation_flags_ip ON moderation_flags(ip_address) WHERE ip_address <> ''`)
	return nil
}
