package service

import (
	"context"
	"testing"

	"github.com/mediagate/modgate/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMetricsSource struct {
	snapshots map[string]model.AbuseDetectionMetrics
	counters  map[string]int
	lastKey   string
}

func (s *fakeMetricsSource) Snapshot(ctx context.Context, organizationID, dimension string) (model.AbuseDetectionMetrics, error) {
	s.lastKey = dimension
	return s.snapshots[dimension], nil
}

func (s *fakeMetricsSource) RecordSignal(ctx context.Context, organizationID, dimension string, signal string, delta int) error {
	if s.counters == nil {
		s.counters = make(map[string]int)
	}
	s.counters[dimension+"/"+signal] += delta
	return nil
}

func TestDimensionKeyPreference(t *testing.T) {
	assert.Equal(t, "client:c1", DimensionKey{ClientID: "c1", TokenID: "t1", IPAddress: "ip"}.key())
	assert.Equal(t, "token:t1", DimensionKey{TokenID: "t1", IPAddress: "ip"}.key())
	assert.Equal(t, "ip:203.0.113.9", DimensionKey{IPAddress: "203.0.113.9"}.key())
	assert.Equal(t, "", DimensionKey{Endpoint: "/v1/orders"}.key())
}

func TestCollectorEvaluate(t *testing.T) {
	h := newAbuseHarness()
	source := &fakeMetricsSource{snapshots: map[string]model.AbuseDetectionMetrics{
		"client:c1": {AuthenticationFailures: 20, UnauthorizedAttempts: 10},
	}}
	collector := NewCollector(source, source, h.svc)

	report, err := collector.Evaluate(context.Background(), "org-1", DimensionKey{
		ClientID: "c1",
		Endpoint: "/v1/orders",
	})
	require.NoError(t, err)

	assert.Equal(t, "client:c1", source.lastKey)
	assert.Equal(t, "c1", report.ClientID)
	assert.Equal(t, "/v1/orders", report.Endpoint)
	assert.Equal(t, 55, report.Severity)
	assert.Equal(t, model.ScoreSuspicious, report.AbuseScore)
	require.Len(t, h.repo.reports, 1)
}

func TestCollectorRecord(t *testing.T) {
	h := newAbuseHarness()
	source := &fakeMetricsSource{}
	collector := NewCollector(source, source, h.svc)
	ctx := context.Background()

	require.NoError(t, collector.Record(ctx, "org-1", DimensionKey{TokenID: "t1"}, "auth_failure", 3))
	require.NoError(t, collector.Record(ctx, "org-1", DimensionKey{TokenID: "t1"}, "auth_failure", 0))
	assert.Equal(t, 4, source.counters["token:t1/auth_failure"])

	assert.Error(t, collector.Record(ctx, "org-1", DimensionKey{}, "auth_failure", 1))
	assert.Error(t, collector.Record(ctx, "org-1", DimensionKey{TokenID: "t1"}, "", 1))
}

func TestCollectorEvaluateRequiresDimension(t *testing.T) {
	h := newAbuseHarness()
	collector := NewCollector(&fakeMetricsSource{}, &fakeMetricsSource{}, h.svc)

	_, err := collector.Evaluate(context.Background(), "org-1", DimensionKey{})
	require.Error(t, err)
	assert.Empty(t, h.repo.reports)
}
