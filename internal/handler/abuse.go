package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/mediagate/modgate/internal/middleware"
	"github.com/mediagate/modgate/internal/model"
	"github.com/mediagate/modgate/internal/pkg/apperrors"
	"github.com/mediagate/modgate/internal/repository"
	"github.com/mediagate/modgate/internal/service"

	"github.com/gin-gonic/gin"
)

type AbuseHandler struct {
	svc *service.AbuseService
}

func NewAbuseHandler(svc *service.AbuseService) *AbuseHandler {
	return &AbuseHandler{svc: svc}
}

func (h *AbuseHandler) GetConfig(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	cfg, err := h.svc.GetConfig(c.Request.Context(), actor.OrganizationID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *AbuseHandler) UpdateConfig(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	var cfg model.AbuseDetectionConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		_ = c.Error(apperrors.NewValidation(err.Error()))
		return
	}
	cfg.OrganizationID = actor.OrganizationID

	if err := h.svc.UpdateConfig(c.Request.Context(), cfg, actor.ID, c.ClientIP()); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// Detect classifies a metrics snapshot without persisting anything.
func (h *AbuseHandler) Detect(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	var m model.AbuseDetectionMetrics
	if err := c.ShouldBindJSON(&m); err != nil {
		_ = c.Error(apperrors.NewValidation(err.Error()))
		return
	}

	result, err := h.svc.DetectAbuse(c.Request.Context(), m, actor.OrganizationID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *AbuseHandler) CreateReport(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	var m model.AbuseDetectionMetrics
	if err := c.ShouldBindJSON(&m); err != nil {
		_ = c.Error(apperrors.NewValidation(err.Error()))
		return
	}

	report, err := h.svc.CreateReport(c.Request.Context(), m, actor.OrganizationID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

func (h *AbuseHandler) QueryReports(c *gin.Context) {
	filter, err := reportFilterFromQuery(c)
	if err != nil {
		_ = c.Error(apperrors.NewValidation(err.Error()))
		return
	}

	page, err := h.svc.QueryReports(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, page)
}

type resolveRequest struct {
	Notes   string `json:"notes"`
	Flagged bool   `json:"flagged"`
}

func (h *AbuseHandler) ResolveReport(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	reportID := c.Param("id")

	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewValidation(err.Error()))
		return
	}

	if err := h.svc.ResolveReport(c.Request.Context(), reportID, actor.ID, req.Notes, req.Flagged, c.ClientIP()); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resolved", "report_id": reportID})
}

// CollectorHandler exposes the redis-backed evaluation path: snapshot the
// current window's counters for one actor dimension and persist a report.
type CollectorHandler struct {
	collector *service.Collector
}

func NewCollectorHandler(collector *service.Collector) *CollectorHandler {
	return &CollectorHandler{collector: collector}
}

type evaluateRequest struct {
	ClientID  string `json:"client_id"`
	TokenID   string `json:"token_id"`
	IPAddress string `json:"ip_address"`
	Endpoint  string `json:"endpoint"`
}

type recordSignalRequest struct {
	ClientID  string `json:"client_id"`
	TokenID   string `json:"token_id"`
	IPAddress string `json:"ip_address"`
	Signal    string `json:"signal" binding:"required"`
	Delta     int    `json:"delta"`
}

var knownSignals = map[string]bool{
	repository.SignalRateLimitExceeded: true,
	repository.SignalRateLimitBypass:   true,
	repository.SignalMalformedPayload:  true,
	repository.SignalUnauthorized:      true,
	repository.SignalAuthFailure:       true,
	repository.SignalTokenReuse:        true,
	repository.SignalSuspiciousToken:   true,
	repository.SignalWebhookFailure:    true,
	repository.SignalWebhookAttempt:    true,
	repository.SignalRequest:           true,
	repository.SignalError:             true,
}

// RecordSignal ingests one raw counter increment from the upstream request
// path into the current collection window.
func (h *CollectorHandler) RecordSignal(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	var req recordSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewValidation(err.Error()))
		return
	}
	if !knownSignals[req.Signal] {
		_ = c.Error(apperrors.NewValidation("unknown signal " + req.Signal))
		return
	}

	err := h.collector.Record(c.Request.Context(), actor.OrganizationID, service.DimensionKey{
		ClientID:  req.ClientID,
		TokenID:   req.TokenID,
		IPAddress: req.IPAddress,
	}, req.Signal, req.Delta)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "recorded"})
}

func (h *CollectorHandler) Evaluate(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewValidation(err.Error()))
		return
	}

	report, err := h.collector.Evaluate(c.Request.Context(), actor.OrganizationID, service.DimensionKey{
		ClientID:  req.ClientID,
		TokenID:   req.TokenID,
		IPAddress: req.IPAddress,
		Endpoint:  req.Endpoint,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

func reportFilterFromQuery(c *gin.Context) (model.AbuseReportFilter, error) {
	filter := model.AbuseReportFilter{
		Score:          model.AbuseScore(c.Query("score")),
		ClientID:       c.Query("client_id"),
		IPAddress:      c.Query("ip_address"),
		TokenID:        c.Query("token_id"),
		OrganizationID: c.Query("organization_id"),
	}
	if raw := c.Query("patterns"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			filter.Patterns = append(filter.Patterns, model.AbusePattern(strings.TrimSpace(p)))
		}
	}
	for key, dst := range map[string]**int{
		"min_severity": &filter.MinSeverity,
		"max_severity": &filter.MaxSeverity,
	} {
		if raw := c.Query(key); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				return filter, err
			}
			*dst = &parsed
		}
	}
	for key, dst := range map[string]**bool{
		"is_flagged":  &filter.IsFlagged,
		"is_resolved": &filter.IsResolved,
	} {
		if raw := c.Query(key); raw != "" {
			parsed, err := strconv.ParseBool(raw)
			if err != nil {
				return filter, err
			}
			*dst = &parsed
		}
	}
	if raw := c.Query("from"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			return filter, err
		}
		filter.From = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			return filter, err
		}
		filter.To = &t
	}
	filter.Page = intQuery(c, "page", 1)
	filter.PageSize = intQuery(c, "page_size", 50)
	return filter, nil
}
