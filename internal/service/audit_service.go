package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mediagate/modgate/internal/model"
	"github.com/mediagate/modgate/internal/pkg/apperrors"
	"github.com/mediagate/modgate/internal/pkg/metrics"

	"github.com/google/uuid"
)

// DefaultExportMaxRows caps export result sets. Overruns are reported via
// the Truncated field, never dropped silently.
const DefaultExportMaxRows = 10000

type AuditRepo interface {
	Insert(ctx context.Context, entry *model.AuditLogEntry) error
	Query(ctx context.Context, filter model.AuditLogFilter) ([]*model.AuditLogEntry, int, error)
	Fetch(ctx context.Context, filter model.AuditLogFilter, limit int) ([]*model.AuditLogEntry, error)
	Count(ctx context.Context, organizationID string, since time.Time) (int, error)
}

type AuditService struct {
	repo          AuditRepo
	exportMaxRows int
	now           func() time.Time
}

func NewAuditService(repo AuditRepo, exportMaxRows int) *AuditService {
	if exportMaxRows <= 0 {
		exportMaxRows = DefaultExportMaxRows
	}
	return &AuditService{
		repo:          repo,
		exportMaxRows: exportMaxRows,
		now:           time.Now,
	}
}

// Log appends one entry to the trail. LogID and Timestamp are always
// assigned here, never taken from the caller.
func (s *AuditService) Log(ctx context.Context, entry *model.AuditLogEntry) (string, error) {
	entry.LogID = uuid.New().String()
	entry.Timestamp = s.now().UTC()
	if err := s.repo.Insert(ctx, entry); err != nil {
		return "", apperrors.NewStore("audit insert", err)
	}
	metrics.AuditWrites.Inc()
	return entry.LogID, nil
}

// Query returns one filtered, paginated page, newest first.
func (s *AuditService) Query(ctx context.Context, filter model.AuditLogFilter) (*model.AuditLogPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 1000 {
		filter.PageSize = 50
	}
	logs, total, err := s.repo.Query(ctx, filter)
	if err != nil {
		return nil, apperrors.NewStore("audit query", err)
	}
	return &model.AuditLogPage{
		Logs:     logs,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

// Export retrieves the complete filtered set (up to the export cap) in one
// of the two supported formats. Pagination fields on the filter are
// ignored.
func (s *AuditService) Export(ctx context.Context, format model.ExportFormat, filter model.AuditLogFilter) (*model.AuditExport, error) {
	if format != model.ExportJSON && format != model.ExportCSV {
		return nil, apperrors.NewValidation(fmt.Sprintf("unsupported export format %q", format))
	}

	logs, err := s.repo.Fetch(ctx, filter, s.exportMaxRows)
	if err != nil {
		return nil, apperrors.NewStore("audit export", err)
	}

	truncated := false
	if len(logs) > s.exportMaxRows {
		logs = logs[:s.exportMaxRows]
		truncated = true
	}

	export := &model.AuditExport{
		Format:       format,
		TotalMatched: len(logs),
		Truncated:    truncated,
	}
	if format == model.ExportJSON {
		export.Logs = logs
		return export, nil
	}
	export.CSV = encodeCSV(logs)
	return export, nil
}

// csvHeader is the fixed first row of every CSV export.
var csvHeader = []string{
	"log_id", "timestamp", "actor_id", "action_type", "target_type", "target_id",
	"organization_id", "ip_address", "user_agent", "success", "error_message", "metadata",
}

func encodeCSV(logs []*model.AuditLogEntry) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	_ = w.Write(csvHeader)
	for _, entry := range logs {
		metadata := ""
		if len(entry.Metadata) > 0 {
			raw, _ := json.Marshal(entry.Metadata)
			metadata = string(raw)
		}
		_ = w.Write([]string{
			entry.LogID,
			entry.Timestamp.UTC().Format(time.RFC3339Nano),
			entry.ActorID,
			string(entry.ActionType),
			entry.TargetType,
			entry.TargetID,
			entry.OrganizationID,
			entry.IPAddress,
			entry.UserAgent,
			strconv.FormatBool(entry.Success),
			entry.ErrorMessage,
			metadata,
		})
	}
	w.Flush()
	return sb.String()
}
