package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mediagate/modgate/internal/middleware"
	"github.com/mediagate/modgate/internal/model"
	"github.com/mediagate/modgate/internal/pkg/apperrors"
	"github.com/mediagate/modgate/internal/service"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	svc *service.AuditService
}

func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

type logEntryRequest struct {
	ActionType   model.AuditActionType  `json:"action_type" binding:"required"`
	TargetType   string                 `json:"target_type"`
	TargetID     string                 `json:"target_id"`
	Metadata     map[string]interface{} `json:"metadata"`
	Success      *bool                  `json:"success"`
	ErrorMessage string                 `json:"error_message"`
}

// Log appends one audit entry. Actor identity and request metadata come
// from the resolved context, never from the payload.
func (h *AuditHandler) Log(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		_ = c.Error(apperrors.New(apperrors.ErrAuthFailed, "missing actor context", nil))
		return
	}

	var req logEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewValidation(err.Error()))
		return
	}

	success := true
	if req.Success != nil {
		success = *req.Success
	}

	logID, err := h.svc.Log(c.Request.Context(), &model.AuditLogEntry{
		ActorID:        actor.ID,
		ActorEmail:     actor.Email,
		ActionType:     req.ActionType,
		TargetType:     req.TargetType,
		TargetID:       req.TargetID,
		IPAddress:      c.ClientIP(),
		UserAgent:      c.Request.UserAgent(),
		OrganizationID: actor.OrganizationID,
		Metadata:       req.Metadata,
		Success:        success,
		ErrorMessage:   req.ErrorMessage,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"log_id": logID})
}

func (h *AuditHandler) Query(c *gin.Context) {
	filter, err := auditFilterFromQuery(c)
	if err != nil {
		_ = c.Error(apperrors.NewValidation(err.Error()))
		return
	}

	page, err := h.svc.Query(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *AuditHandler) Export(c *gin.Context) {
	filter, err := auditFilterFromQuery(c)
	if err != nil {
		_ = c.Error(apperrors.NewValidation(err.Error()))
		return
	}

	format := model.ExportFormat(c.DefaultQuery("format", "json"))
	export, err := h.svc.Export(c.Request.Context(), format, filter)
	if err != nil {
		_ = c.Error(err)
		return
	}

	actor, _ := middleware.ActorFrom(c)
	if _, err := h.svc.Log(c.Request.Context(), &model.AuditLogEntry{
		ActorID:        actor.ID,
		ActorEmail:     actor.Email,
		ActionType:     model.ActionAuditExported,
		TargetType:     "audit_export",
		IPAddress:      c.ClientIP(),
		UserAgent:      c.Request.UserAgent(),
		OrganizationID: actor.OrganizationID,
		Metadata: map[string]interface{}{
			"format":    string(format),
			"rows":      export.TotalMatched,
			"truncated": export.Truncated,
		},
		Success: true,
	}); err != nil {
		_ = c.Error(err)
		return
	}

	if format == model.ExportCSV {
		c.Header("Content-Disposition", `attachment; filename="audit_logs.csv"`)
		c.Header("X-Export-Truncated", strconv.FormatBool(export.Truncated))
		c.Data(http.StatusOK, "text/csv", []byte(export.CSV))
		return
	}
	c.JSON(http.StatusOK, export)
}

func auditFilterFromQuery(c *gin.Context) (model.AuditLogFilter, error) {
	filter := model.AuditLogFilter{
		ActorID:        c.Query("actor_id"),
		TargetID:       c.Query("target_id"),
		TargetType:     c.Query("target_type"),
		OrganizationID: c.Query("organization_id"),
		IPAddress:      c.Query("ip_address"),
		SearchQuery:    c.Query("search"),
	}
	if raw := c.Query("action_types"); raw != "" {
		for _, at := range strings.Split(raw, ",") {
			filter.ActionTypes = append(filter.ActionTypes, model.AuditActionType(strings.TrimSpace(at)))
		}
	}
	if raw := c.Query("success"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid success value %q", raw)
		}
		filter.Success = &parsed
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

func intQuery(c *gin.Context, key string, fallback int) int {
	if raw := c.Query(key); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time format")
}
