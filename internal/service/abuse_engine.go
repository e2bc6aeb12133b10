package service

import (
	"github.com/mediagate/modgate/internal/model"
	"github.com/mediagate/modgate/internal/pkg/metrics"

	"github.com/shopspring/decimal"
)

// Signal severity weights. Each check is independent; triggered weights sum
// into the 0-100 severity, clamped.
const (
	weightRateLimitExceeded = 15
	weightRateLimitBypass   = 20
	weightMalformedPayload  = 10
	weightUnauthorized      = 25
	weightAuthFailure       = 30
	weightTokenReuse        = 35
	weightSuspiciousToken   = 20
	weightWebhookFailures   = 10
	weightHighRequestRate   = 15
	weightHighErrorRate     = 10
)

// ScoreMetrics runs the multi-signal abuse checks against one metrics
// snapshot. Pure: no stores are touched and zero-valued metrics can never
// fail. Duplicate pattern tags are collapsed, insertion order preserved.
func ScoreMetrics(m model.AbuseDetectionMetrics, cfg model.AbuseDetectionConfig) model.AbuseDetectionResult {
	severity := 0
	patterns := make([]model.AbusePattern, 0, 4)
	seen := make(map[model.AbusePattern]bool)

	trigger := func(weight int, pattern model.AbusePattern) {
		severity += weight
		metrics.SignalTriggers.WithLabelValues(string(pattern)).Inc()
		if !seen[pattern] {
			seen[pattern] = true
			patterns = append(patterns, pattern)
		}
	}

	if m.RateLimitExceededCount >= cfg.RateLimitExceededThreshold {
		trigger(weightRateLimitExceeded, model.PatternRateLimitBypass)
	}
	if m.RateLimitBypassAttempts >= cfg.RateLimitBypassThreshold {
		trigger(weightRateLimitBypass, model.PatternRateLimitBypass)
	}
	if m.MalformedPayloadCount >= cfg.MalformedPayloadThreshold ||
		pctAtLeast(m.MalformedPayloadCount, m.TotalRequests, cfg.MalformedPayloadPctThreshold) {
		trigger(weightMalformedPayload, model.PatternInvalidPayloadSpam)
	}
	if m.UnauthorizedAttempts >= cfg.UnauthorizedAttemptsThreshold {
		trigger(weightUnauthorized, model.PatternUnauthorizedAccess)
	}
	if m.AuthenticationFailures >= cfg.AuthFailureThreshold {
		trigger(weightAuthFailure, model.PatternBruteForce)
	}
	if m.TokenReuseCount >= cfg.TokenReuseThreshold {
		trigger(weightTokenReuse, model.PatternTokenReplay)
	}
	if m.SuspiciousTokenPatterns >= cfg.SuspiciousTokenThreshold {
		trigger(weightSuspiciousToken, model.PatternTokenReplay)
	}
	if m.WebhookFailureCount >= cfg.WebhookFailureThreshold ||
		pctAtLeast(m.WebhookFailureCount, m.WebhookTotalAttempts, cfg.WebhookFailurePctThreshold) {
		trigger(weightWebhookFailures, model.PatternWebhookFailures)
	}
	if m.RequestsPerMinute >= cfg.RequestsPerMinuteThreshold {
		trigger(weightHighRequestRate, model.PatternSuspiciousIPBehavior)
	}
	if pctAtLeast(m.ErrorCount, m.TotalRequests, cfg.ErrorRatePctThreshold) {
		trigger(weightHighErrorRate, model.PatternSuspiciousIPBehavior)
	}

	if severity > 100 {
		severity = 100
	}

	result := model.AbuseDetectionResult{
		Score:    classify(severity, cfg),
		Severity: severity,
		Patterns: patterns,
	}
	metrics.AbuseDetections.WithLabelValues(string(result.Score)).Inc()
	return result
}

func classify(severity int, cfg model.AbuseDetectionConfig) model.AbuseScore {
	switch {
	case severity >= cfg.AbusiveScoreThreshold:
		return model.ScoreAbusive
	case severity >= cfg.SuspiciousScoreThreshold:
		return model.ScoreSuspicious
	default:
		return model.ScoreNormal
	}
}

// pctAtLeast reports whether count/total reaches threshold percent. A zero
// total is 0%, never a division. Decimal math keeps snapshots sitting
// exactly on a threshold deterministic.
func pctAtLeast(count, total int, threshold float64) bool {
	if total <= 0 || threshold <= 0 {
		return false
	}
	pct := decimal.NewFromInt(int64(count) * 100).Div(decimal.NewFromInt(int64(total)))
	return pct.GreaterThanOrEqual(decimal.NewFromFloat(threshold))
}
