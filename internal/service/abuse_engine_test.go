package service

import (
	"testing"

	"github.com/mediagate/modgate/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreMetricsAllZero(t *testing.T) {
	result := ScoreMetrics(model.AbuseDetectionMetrics{}, model.DefaultAbuseDetectionConfig())

	assert.Equal(t, 0, result.Severity)
	assert.Equal(t, model.ScoreNormal, result.Score)
	assert.Empty(t, result.Patterns)
}

func TestScoreMetricsSingleSignalStaysNormal(t *testing.T) {
	m := model.AbuseDetectionMetrics{RateLimitExceededCount: 10}
	result := ScoreMetrics(m, model.DefaultAbuseDetectionConfig())

	assert.Equal(t, 15, result.Severity)
	assert.Equal(t, model.ScoreNormal, result.Score)
	assert.Equal(t, []model.AbusePattern{model.PatternRateLimitBypass}, result.Patterns)
}

func TestScoreMetricsSuspiciousCombination(t *testing.T) {
	m := model.AbuseDetectionMetrics{
		AuthenticationFailures: 15,
		UnauthorizedAttempts:   10,
	}
	result := ScoreMetrics(m, model.DefaultAbuseDetectionConfig())

	assert.Equal(t, 55, result.Severity)
	assert.Equal(t, model.ScoreSuspicious, result.Score)
	assert.ElementsMatch(t, []model.AbusePattern{
		model.PatternUnauthorizedAccess,
		model.PatternBruteForce,
	}, result.Patterns)
}

func TestScoreMetricsSeverityClamped(t *testing.T) {
	// Every signal fires; the raw sum is far above 100.
	m := model.AbuseDetectionMetrics{
		RateLimitExceededCount:  100,
		RateLimitBypassAttempts: 100,
		MalformedPayloadCount:   100,
		UnauthorizedAttempts:    100,
		AuthenticationFailures:  100,
		TokenReuseCount:         100,
		SuspiciousTokenPatterns: 100,
		WebhookFailureCount:     100,
		WebhookTotalAttempts:    100,
		TotalRequests:           100,
		RequestsPerMinute:       1000,
		ErrorCount:              100,
	}
	result := ScoreMetrics(m, model.DefaultAbuseDetectionConfig())

	assert.Equal(t, 100, result.Severity)
	assert.Equal(t, model.ScoreAbusive, result.Score)
}

func TestScoreMetricsDuplicatePatternsCollapsed(t *testing.T) {
	// Token reuse and suspicious token patterns both tag TOKEN_REPLAY_ATTACK;
	// the weights still sum while the tag appears once.
	m := model.AbuseDetectionMetrics{
		TokenReuseCount:         5,
		SuspiciousTokenPatterns: 3,
	}
	result := ScoreMetrics(m, model.DefaultAbuseDetectionConfig())

	assert.Equal(t, 55, result.Severity)
	assert.Equal(t, []model.AbusePattern{model.PatternTokenReplay}, result.Patterns)
}

func TestScoreMetricsZeroDenominators(t *testing.T) {
	// Percentage checks with zero totals must read as 0%, not trigger.
	m := model.AbuseDetectionMetrics{
		MalformedPayloadCount: 5,
		WebhookFailureCount:   5,
		ErrorCount:            5,
	}
	result := ScoreMetrics(m, model.DefaultAbuseDetectionConfig())

	assert.Equal(t, 0, result.Severity)
	assert.Equal(t, model.ScoreNormal, result.Score)
	assert.Empty(t, result.Patterns)
}

func TestScoreMetricsPercentageExactlyOnThreshold(t *testing.T) {
	// 3 of 20 requests malformed is exactly 15%, which triggers.
	m := model.AbuseDetectionMetrics{
		MalformedPayloadCount: 3,
		TotalRequests:         20,
	}
	result := ScoreMetrics(m, model.DefaultAbuseDetectionConfig())

	assert.Equal(t, 10, result.Severity)
	assert.Equal(t, []model.AbusePattern{model.PatternInvalidPayloadSpam}, result.Patterns)
}

func TestScoreMetricsCustomThresholds(t *testing.T) {
	cfg := model.DefaultAbuseDetectionConfig()
	cfg.SuspiciousScoreThreshold = 10
	cfg.AbusiveScoreThreshold = 20

	m := model.AbuseDetectionMetrics{RateLimitExceededCount: 10}
	result := ScoreMetrics(m, cfg)

	require.Equal(t, 15, result.Severity)
	assert.Equal(t, model.ScoreSuspicious, result.Score)
}

func TestClassifyBoundaries(t *testing.T) {
	cfg := model.DefaultAbuseDetectionConfig()

	assert.Equal(t, model.ScoreNormal, classify(49, cfg))
	assert.Equal(t, model.ScoreSuspicious, classify(50, cfg))
	assert.Equal(t, model.ScoreSuspicious, classify(74, cfg))
	assert.Equal(t, model.ScoreAbusive, classify(75, cfg))
	assert.Equal(t, model.ScoreAbusive, classify(100, cfg))
}

func TestPctAtLeast(t *testing.T) {
	assert.False(t, pctAtLeast(5, 0, 20))
	assert.False(t, pctAtLeast(0, 100, 20))
	assert.False(t, pctAtLeast(19, 100, 20))
	assert.True(t, pctAtLeast(20, 100, 20))
	assert.True(t, pctAtLeast(1, 4, 25))
	assert.False(t, pctAtLeast(1, 5, 25))
}
