package service

import (
	"context"

	"github.com/mediagate/modgate/internal/model"
	"github.com/mediagate/modgate/internal/pkg/apperrors"
)

// MetricsSource assembles one raw signal-counter snapshot per actor
// dimension. Backed by redis in production.
type MetricsSource interface {
	Snapshot(ctx context.Context, organizationID, dimension string) (model.AbuseDetectionMetrics, error)
}

// SignalRecorder increments one raw counter for an actor dimension in the
// current collection window.
type SignalRecorder interface {
	RecordSignal(ctx context.Context, organizationID, dimension string, signal string, delta int) error
}

// DimensionKey identifies the actor a snapshot is collected for. The first
// non-empty field (client, token, ip) keys the counter hash.
type DimensionKey struct {
	ClientID  string
	TokenID   string
	IPAddress string
	Endpoint  string
}

func (k DimensionKey) key() string {
	switch {
	case k.ClientID != "":
		return "client:" + k.ClientID
	case k.TokenID != "":
		return "token:" + k.TokenID
	case k.IPAddress != "":
		return "ip:" + k.IPAddress
	default:
		return ""
	}
}

// Collector glues the signal counters to the scoring pipeline: ingest raw
// signals from the request path, snapshot a window, stamp the dimension
// identifiers, persist a report.
type Collector struct {
	source   MetricsSource
	recorder SignalRecorder
	abuse    *AbuseService
}

func NewCollector(source MetricsSource, recorder SignalRecorder, abuse *AbuseService) *Collector {
	return &Collector{source: source, recorder: recorder, abuse: abuse}
}

// Record increments one signal counter for an actor dimension. A zero delta
// defaults to one.
func (c *Collector) Record(ctx context.Context, organizationID string, dims DimensionKey, signal string, delta int) error {
	key := dims.key()
	if key == "" {
		return apperrors.NewValidation("at least one dimension identifier is required")
	}
	if signal == "" {
		return apperrors.NewValidation("signal is required")
	}
	if delta == 0 {
		delta = 1
	}
	if err := c.recorder.RecordSignal(ctx, organizationID, key, signal, delta); err != nil {
		return apperrors.NewStore("signal record", err)
	}
	return nil
}

// Evaluate scores the current window for one actor dimension and persists
// the outcome as an abuse report.
func (c *Collector) Evaluate(ctx context.Context, organizationID string, dims DimensionKey) (*model.AbuseReport, error) {
	key := dims.key()
	if key == "" {
		return nil, apperrors.NewValidation("at least one dimension identifier is required")
	}

	metrics, err := c.source.Snapshot(ctx, organizationID, key)
	if err != nil {
		return nil, apperrors.NewStore("metrics snapshot", err)
	}
	metrics.ClientID = dims.ClientID
	metrics.TokenID = dims.TokenID
	metrics.IPAddress = dims.IPAddress
	metrics.Endpoint = dims.Endpoint

	return c.abuse.CreateReport(ctx, metrics, organizationID)
}
