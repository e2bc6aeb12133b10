package model

import (
	"time"
)

// AbuseScore is the ternary classification derived from severity.
type AbuseScore string

const (
	ScoreNormal     AbuseScore = "NORMAL"
	ScoreSuspicious AbuseScore = "SUSPICIOUS"
	ScoreAbusive    AbuseScore = "ABUSIVE"
)

// AbusePattern tags the class of abusive behavior a signal detected.
type AbusePattern string

const (
	PatternRateLimitBypass      AbusePattern = "RATE_LIMIT_BYPASS"
	PatternInvalidPayloadSpam   AbusePattern = "INVALID_PAYLOAD_SPAM"
	PatternUnauthorizedAccess   AbusePattern = "UNAUTHORIZED_ACCESS_ATTEMPTS"
	PatternBruteForce           AbusePattern = "BRUTE_FORCE_ATTEMPT"
	PatternTokenReplay          AbusePattern = "TOKEN_REPLAY_ATTACK"
	PatternWebhookFailures      AbusePattern = "EXCESSIVE_WEBHOOK_FAILURES"
	PatternSuspiciousIPBehavior AbusePattern = "SUSPICIOUS_IP_BEHAVIOR"
)

// AbuseDetectionMetrics is an ephemeral snapshot handed to the scoring
// engine. Counts and totals come from the same collection window; the engine
// never re-windows a denominator.
type AbuseDetectionMetrics struct {
	RateLimitExceededCount  int `json:"rate_limit_exceeded_count"`
	RateLimitBypassAttempts int `json:"rate_limit_bypass_attempts"`
	MalformedPayloadCount   int `json:"malformed_payload_count"`
	UnauthorizedAttempts    int `json:"unauthorized_attempts"`
	AuthenticationFailures  int `json:"authentication_failures"`
	TokenReuseCount         int `json:"token_reuse_count"`
	SuspiciousTokenPatterns int `json:"suspicious_token_patterns"`
	WebhookFailureCount     int `json:"webhook_failure_count"`
	WebhookTotalAttempts    int `json:"webhook_total_attempts"`
	TotalRequests           int `json:"total_requests"`
	RequestsPerMinute       int `json:"requests_per_minute"`
	ErrorCount              int `json:"error_count"`

	// Dimension identifiers, all optional
	ClientID  string `json:"client_id,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	TokenID   string `json:"token_id,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
}

// AbuseDetectionConfig holds the per-organization thresholds driving the
// scoring engine. Invariant: AbusiveScoreThreshold > SuspiciousScoreThreshold >= 0.
type AbuseDetectionConfig struct {
	OrganizationID string `json:"organization_id,omitempty"`

	RateLimitExceededThreshold    int     `json:"rate_limit_exceeded_threshold"`
	RateLimitBypassThreshold      int     `json:"rate_limit_bypass_threshold"`
	MalformedPayloadThreshold     int     `json:"malformed_payload_threshold"`
	MalformedPayloadPctThreshold  float64 `json:"malformed_payload_pct_threshold"`
	UnauthorizedAttemptsThreshold int     `json:"unauthorized_attempts_threshold"`
	AuthFailureThreshold          int     `json:"auth_failure_threshold"`
	TokenReuseThreshold           int     `json:"token_reuse_threshold"`
	SuspiciousTokenThreshold      int     `json:"suspicious_token_threshold"`
	WebhookFailureThreshold       int     `json:"webhook_failure_threshold"`
	WebhookFailurePctThreshold    float64 `json:"webhook_failure_pct_threshold"`
	TimeWindowMinutes             int     `json:"time_window_minutes"`
	RequestsPerMinuteThreshold    int     `json:"requests_per_minute_threshold"`
	ErrorRatePctThreshold         float64 `json:"error_rate_pct_threshold"`

	SuspiciousScoreThreshold int `json:"suspicious_score_threshold"`
	AbusiveScoreThreshold    int `json:"abusive_score_threshold"`
}

// DefaultAbuseDetectionConfig is the hard-coded fallback used whenever no
// organization-specific row exists. Absence of a row is not an error.
func DefaultAbuseDetectionConfig() AbuseDetectionConfig {
	return AbuseDetectionConfig{
		RateLimitExceededThreshold:    10,
		RateLimitBypassThreshold:      5,
		MalformedPayloadThreshold:     20,
		MalformedPayloadPctThreshold:  15,
		UnauthorizedAttemptsThreshold: 10,
		AuthFailureThreshold:          15,
		TokenReuseThreshold:           5,
		SuspiciousTokenThreshold:      3,
		WebhookFailureThreshold:       10,
		WebhookFailurePctThreshold:    25,
		TimeWindowMinutes:             60,
		RequestsPerMinuteThreshold:    100,
		ErrorRatePctThreshold:         20,
		SuspiciousScoreThreshold:      50,
		AbusiveScoreThreshold:         75,
	}
}

// AbuseDetectionResult is the output of one scoring run.
type AbuseDetectionResult struct {
	Score    AbuseScore     `json:"score"`
	Severity int            `json:"severity"`
	Patterns []AbusePattern `json:"patterns"`
}

// AbuseReport is the persisted result of one scoring run. Only the
// moderation workflow fields (IsFlagged/IsResolved/ResolvedAt/ResolvedBy/
// Notes) are mutable after creation.
type AbuseReport struct {
	ReportID       string                `json:"report_id"`
	ClientID       string                `json:"client_id,omitempty"`
	IPAddress      string                `json:"ip_address,omitempty"`
	TokenID        string                `json:"token_id,omitempty"`
	Endpoint       string                `json:"endpoint,omitempty"`
	OrganizationID string                `json:"organization_id,omitempty"`
	AbuseScore     AbuseScore            `json:"abuse_score"`
	Severity       int                   `json:"severity"`
	Patterns       []AbusePattern        `json:"patterns"`
	Metrics        AbuseDetectionMetrics `json:"metrics"`
	DetectedAt     time.Time             `json:"detected_at"`
	IsFlagged      bool                  `json:"is_flagged"`
	IsResolved     bool                  `json:"is_resolved"`
	ResolvedAt     *time.Time            `json:"resolved_at,omitempty"`
	ResolvedBy     string                `json:"resolved_by,omitempty"`
	Notes          string                `json:"notes,omitempty"`
}
