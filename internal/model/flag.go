package model

import (
	"time"
)

// FlagType enumerates the kinds of enforcement flags.
type FlagType string

const (
	FlagTypeGeneric    FlagType = "FLAG"
	FlagTypeBan        FlagType = "BAN"
	FlagTypeWatchlist  FlagType = "WATCHLIST"
	FlagTypeRestricted FlagType = "RESTRICTED"
)

// FlagSeverity is the enumerated level on a flag, distinct from the
// 0-100 abuse severity score.
type FlagSeverity string

const (
	SeverityLow      FlagSeverity = "LOW"
	SeverityMedium   FlagSeverity = "MEDIUM"
	SeverityHigh     FlagSeverity = "HIGH"
	SeverityCritical FlagSeverity = "CRITICAL"
)

// ModerationFlag is a time-bounded enforcement record against a client,
// token or IP dimension. A flag is active while ExpiresAt is nil or in the
// future; expiry is evaluated lazily, there is no background sweep.
type ModerationFlag struct {
	FlagID         string                 `json:"flag_id"`
	ClientID       string                 `json:"client_id,omitempty"`
	TokenID        string                 `json:"token_id,omitempty"`
	IPAddress      string                 `json:"ip_address,omitempty"`
	OrganizationID string                 `json:"organization_id,omitempty"`
	FlagReason     string                 `json:"flag_reason"`
	FlagType       FlagType               `json:"flag_type"`
	Severity       FlagSeverity           `json:"severity"`
	FlaggedBy      string                 `json:"flagged_by"`
	FlaggedAt      time.Time              `json:"flagged_at"`
	ExpiresAt      *time.Time             `json:"expires_at,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// ActiveAt reports whether the flag is in force at the given instant.
// The boundary is strict: a flag expiring exactly at now is not active.
func (f *ModerationFlag) ActiveAt(now time.Time) bool {
	return f.ExpiresAt == nil || now.Before(*f.ExpiresAt)
}

// TargetDimension returns the identity dimension the flag acts on,
// preferring client id, then token id, then IP.
func (f *ModerationFlag) TargetDimension() (targetType, targetID string) {
	switch {
	case f.ClientID != "":
		return "client", f.ClientID
	case f.TokenID != "":
		return "token", f.TokenID
	default:
		return "ip", f.IPAddress
	}
}
