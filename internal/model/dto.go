package model

import (
	"time"
)

// AuditLogFilter narrows an audit trail query. Zero values mean "no
// constraint"; SearchQuery is a case-insensitive substring match across
// action type, target id and serialized metadata.
type AuditLogFilter struct {
	ActorID        string            `json:"actor_id,omitempty"`
	ActionTypes    []AuditActionType `json:"action_types,omitempty"`
	TargetID       string            `json:"target_id,omitempty"`
	TargetType     string            `json:"target_type,omitempty"`
	OrganizationID string            `json:"organization_id,omitempty"`
	IPAddress      string            `json:"ip_address,omitempty"`
	Success        *bool             `json:"success,omitempty"`
	From           *time.Time        `json:"from,omitempty"`
	To             *time.Time        `json:"to,omitempty"`
	SearchQuery    string            `json:"search_query,omitempty"`
	Page           int               `json:"page,omitempty"`
	PageSize       int               `json:"page_size,omitempty"`
}

// AuditLogPage is one offset-based page of a filtered audit query.
// Total is computed independently of the page window.
type AuditLogPage struct {
	Logs     []*AuditLogEntry `json:"logs"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// ExportFormat selects the audit export encoding.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// AuditExport carries the full (capped) filtered result set. Truncated is
// set when the matched rows exceeded the export cap; the export never drops
// rows silently.
type AuditExport struct {
	Format       ExportFormat     `json:"format"`
	Logs         []*AuditLogEntry `json:"logs,omitempty"`
	CSV          string           `json:"csv,omitempty"`
	TotalMatched int              `json:"total_matched"`
	Truncated    bool             `json:"truncated"`
}

// AbuseReportFilter narrows an abuse report query. Patterns matches reports
// containing any of the listed patterns. Severity bounds are inclusive.
type AbuseReportFilter struct {
	Score          AbuseScore     `json:"score,omitempty"`
	Patterns       []AbusePattern `json:"patterns,omitempty"`
	ClientID       string         `json:"client_id,omitempty"`
	IPAddress      string         `json:"ip_address,omitempty"`
	TokenID        string         `json:"token_id,omitempty"`
	OrganizationID string         `json:"organization_id,omitempty"`
	From           *time.Time     `json:"from,omitempty"`
	To             *time.Time     `json:"to,omitempty"`
	MinSeverity    *int           `json:"min_severity,omitempty"`
	MaxSeverity    *int           `json:"max_severity,omitempty"`
	IsFlagged      *bool          `json:"is_flagged,omitempty"`
	IsResolved     *bool          `json:"is_resolved,omitempty"`
	Page           int            `json:"page,omitempty"`
	PageSize       int            `json:"page_size,omitempty"`
}

// AbuseReportPage is one offset-based page of a filtered report query.
type AbuseReportPage struct {
	Reports  []*AbuseReport `json:"reports"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// FlagClientRequest creates an enforcement flag. At least one of ClientID,
// TokenID or IPAddress must be present.
type FlagClientRequest struct {
	ClientID       string                 `json:"client_id,omitempty"`
	TokenID        string                 `json:"token_id,omitempty"`
	IPAddress      string                 `json:"ip_address,omitempty"`
	OrganizationID string                 `json:"organization_id,omitempty"`
	FlagReason     string                 `json:"flag_reason" binding:"required"`
	FlagType       FlagType               `json:"flag_type" binding:"required"`
	Severity       FlagSeverity           `json:"severity" binding:"required"`
	ExpiresAt      *time.Time             `json:"expires_at,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// BanTokenRequest bans a token. A nil BanDurationHours means permanent.
type BanTokenRequest struct {
	TokenID          string `json:"token_id" binding:"required"`
	OrganizationID   string `json:"organization_id,omitempty"`
	Reason           string `json:"reason" binding:"required"`
	BanDurationHours *int   `json:"ban_duration_hours,omitempty"`
	NotifyClient     bool   `json:"notify_client,omitempty"`
}

// BanTokenResponse reports the outcome of a ban.
type BanTokenResponse struct {
	Success   bool       `json:"success"`
	TokenID   string     `json:"token_id"`
	FlagID    string     `json:"flag_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Message   string     `json:"message"`
}

// StatsTimeRange selects the lookback window for moderation statistics.
type StatsTimeRange string

const (
	Range24h StatsTimeRange = "24h"
	Range7d  StatsTimeRange = "7d"
	Range30d StatsTimeRange = "30d"
	Range90d StatsTimeRange = "90d"
)

// PatternCount is one row of the top-patterns rollup.
type PatternCount struct {
	Pattern AbusePattern `json:"pattern"`
	Count   int          `json:"count"`
}

// OffenderCount is one row of the top-flagged-clients/IPs rollups.
type OffenderCount struct {
	ID          string       `json:"id"`
	FlagCount   int          `json:"flag_count"`
	MaxSeverity FlagSeverity `json:"max_severity"`
}

// ModerationStats is the windowed rollup over the audit trail and the abuse
// report store. ActiveFlags is unconditional, everything else is windowed.
type ModerationStats struct {
	TimeRange         StatsTimeRange     `json:"time_range"`
	Since             time.Time          `json:"since"`
	AuditLogCount     int                `json:"audit_log_count"`
	AbuseReportCount  int                `json:"abuse_report_count"`
	ActiveFlagCount   int                `json:"active_flag_count"`
	ResolvedCount     int                `json:"resolved_count"`
	ScoreDistribution map[AbuseScore]int `json:"score_distribution"`
	TopPatterns       []PatternCount     `json:"top_patterns"`
	TopFlaggedClients []OffenderCount    `json:"top_flagged_clients"`
	TopFlaggedIPs     []OffenderCount    `json:"top_flagged_ips"`
}

// ModerationEvent is one message on the dashboard event feed.
type ModerationEvent struct {
	Type           string      `json:"type"` // flag_created | token_banned | report_created | flag_removed
	OrganizationID string      `json:"organization_id,omitempty"`
	Payload        interface{} `json:"payload"`
	EmittedAt      time.Time   `json:"emitted_at"`
}
