package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mediagate/modgate/internal/config"
	"github.com/mediagate/modgate/internal/model"

	"github.com/redis/go-redis/v9"
)

// Signal names the raw counter buckets tracked per actor dimension. The
// upstream request path increments these; the collector assembles them into
// one AbuseDetectionMetrics snapshot per window.
type Signal = string

const (
	SignalRateLimitExceeded Signal = "rate_limit_exceeded"
	SignalRateLimitBypass   Signal = "rate_limit_bypass"
	SignalMalformedPayload  Signal = "malformed_payload"
	SignalUnauthorized      Signal = "unauthorized"
	SignalAuthFailure       Signal = "auth_failure"
	SignalTokenReuse        Signal = "token_reuse"
	SignalSuspiciousToken   Signal = "suspicious_token"
	SignalWebhookFailure    Signal = "webhook_failure"
	SignalWebhookAttempt    Signal = "webhook_attempt"
	SignalRequest           Signal = "request"
	SignalError             Signal = "error"
)

// RedisMetricsRepo keeps per-dimension signal counters in a redis hash per
// collection window. Counters carry a TTL of twice the window so a snapshot
// taken late still sees complete data.
type RedisMetricsRepo struct {
	client *redis.Client
	prefix string
	window time.Duration
}

func NewRedisMetricsRepo(cfg *config.Config, window time.Duration) *RedisMetricsRepo {
	if window <= 0 {
		window = time.Hour
	}
	prefix := "abuse"
	if cfg != nil && cfg.Redis.KeyPrefix != "" {
		prefix = cfg.Redis.KeyPrefix
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return &RedisMetricsRepo{client: client, prefix: prefix, window: window}
}

// Ping verifies connectivity at startup.
func (r *RedisMetricsRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// RecordSignal increments one counter for the dimension key.
func (r *RedisMetricsRepo) RecordSignal(ctx context.Context, organizationID, dimension string, signal Signal, delta int) error {
	if delta == 0 {
		return nil
	}
	key := r.makeKey(organizationID, dimension)
	pipe := r.client.TxPipeline()
	pipe.HIncrBy(ctx, key, string(signal), int64(delta))
	pipe.Expire(ctx, key, 2*r.window)
	_, err := pipe.Exec(ctx)
	return err
}

// Snapshot reads the current window's counters for the dimension key into a
// metrics snapshot. Counters and totals come from the same hash, so the
// percentage denominators match their numerators by construction.
func (r *RedisMetricsRepo) Snapshot(ctx context.Context, organizationID, dimension string) (model.AbuseDetectionMetrics, error) {
	key := r.makeKey(organizationID, dimension)
	values, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return model.AbuseDetectionMetrics{}, err
	}

	get := func(s Signal) int {
		n := 0
		fmt.Sscanf(values[string(s)], "%d", &n)
		return n
	}

	metrics := model.AbuseDetectionMetrics{
		RateLimitExceededCount:  get(SignalRateLimitExceeded),
		RateLimitBypassAttempts: get(SignalRateLimitBypass),
		MalformedPayloadCount:   get(SignalMalformedPayload),
		UnauthorizedAttempts:    get(SignalUnauthorized),
		AuthenticationFailures:  get(SignalAuthFailure),
		TokenReuseCount:         get(SignalTokenReuse),
		SuspiciousTokenPatterns: get(SignalSuspiciousToken),
		WebhookFailureCount:     get(SignalWebhookFailure),
		WebhookTotalAttempts:    get(SignalWebhookAttempt),
		TotalRequests:           get(SignalRequest),
		ErrorCount:              get(SignalError),
	}
	if minutes := int(r.window.Minutes()); minutes > 0 {
		metrics.RequestsPerMinute = metrics.TotalRequests / minutes
	}
	return metrics, nil
}

func (r *RedisMetricsRepo) makeKey(organizationID, dimension string) string {
	bucket := time.Now().UTC().Truncate(r.window).Format("2006-01-02T15:04")
	return fmt.Sprintf("%s:%s:%s:%s", r.prefix, organizationID, dimension, bucket)
}

func (r *RedisMetricsRepo) Close() error {
	return r.client.Close()
}
