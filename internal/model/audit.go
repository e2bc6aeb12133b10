package model

import (
	"time"
)

// AuditActionType enumerates the sensitive actions recorded in the trail.
type AuditActionType string

const (
	ActionClientFlagged  AuditActionType = "CLIENT_FLAGGED"
	ActionTokenBanned    AuditActionType = "TOKEN_BANNED"
	ActionFlagRemoved    AuditActionType = "FLAG_REMOVED"
	ActionReportResolved AuditActionType = "REPORT_RESOLVED"
	ActionConfigUpdated  AuditActionType = "CONFIG_UPDATED"
	ActionAuditExported  AuditActionType = "AUDIT_EXPORTED"
	ActionRoleChanged    AuditActionType = "MODERATOR_ROLE_CHANGED"
)

// AuditLogEntry is one immutable record per sensitive action.
// LogID and Timestamp are assigned by the store on insert; Timestamp is the
// canonical ordering key for every query.
type AuditLogEntry struct {
	LogID          string                 `json:"log_id"`
	ActorID        string                 `json:"actor_id"`
	ActorEmail     string                 `json:"actor_email,omitempty"`
	ActionType     AuditActionType        `json:"action_type"`
	TargetType     string                 `json:"target_type,omitempty"`
	TargetID       string                 `json:"target_id,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	IPAddress      string                 `json:"ip_address"`
	UserAgent      string                 `json:"user_agent,omitempty"`
	OrganizationID string                 `json:"organization_id,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	Success        bool                   `json:"success"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
}
