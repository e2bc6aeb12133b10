package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mediagate/modgate/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededAuditService(t *testing.T, repo *fakeAuditRepo) *AuditService {
	t.Helper()
	svc := NewAuditService(repo, 0)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return svc
}

func TestAuditLogAssignsIdentityAndTimestamp(t *testing.T) {
	repo := &fakeAuditRepo{}
	svc := seededAuditService(t, repo)

	entry := &model.AuditLogEntry{
		LogID:      "caller-supplied-id",
		Timestamp:  time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC),
		ActorID:    "mod-1",
		ActionType: model.ActionClientFlagged,
		TargetType: "client",
		TargetID:   "client-9",
		Success:    true,
	}
	logID, err := svc.Log(context.Background(), entry)
	require.NoError(t, err)

	assert.NotEmpty(t, logID)
	assert.NotEqual(t, "caller-supplied-id", logID)
	require.Len(t, repo.entries, 1)
	stored := repo.entries[0]
	assert.Equal(t, logID, stored.LogID)
	assert.Equal(t, 2026, stored.Timestamp.Year())
}

func TestAuditQueryPaginationCoversAllRows(t *testing.T) {
	repo := &fakeAuditRepo{}
	svc := seededAuditService(t, repo)

	for i := 0; i < 25; i++ {
		_, err := svc.Log(context.Background(), &model.AuditLogEntry{
			ActorID:    fmt.Sprintf("mod-%d", i%3),
			ActionType: model.ActionClientFlagged,
			TargetType: "client",
			TargetID:   fmt.Sprintf("client-%d", i),
			Success:    true,
		})
		require.NoError(t, err)
	}

	seen := make(map[string]bool)
	total := 0
	for page := 1; ; page++ {
		res, err := svc.Query(context.Background(), model.AuditLogFilter{Page: page, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, 25, res.Total)
		if len(res.Logs) == 0 {
			break
		}
		for _, entry := range res.Logs {
			assert.False(t, seen[entry.LogID], "log %s returned twice", entry.LogID)
			seen[entry.LogID] = true
		}
		total += len(res.Logs)
	}
	assert.Equal(t, 25, total)
}

func TestAuditQueryNewestFirst(t *testing.T) {
	repo := &fakeAuditRepo{}
	svc := seededAuditService(t, repo)

	for i := 0; i < 5; i++ {
		_, err := svc.Log(context.Background(), &model.AuditLogEntry{
			ActionType: model.ActionTokenBanned,
			TargetType: "token",
			TargetID:   fmt.Sprintf("tok-%d", i),
		})
		require.NoError(t, err)
	}

	res, err := svc.Query(context.Background(), model.AuditLogFilter{})
	require.NoError(t, err)
	require.Len(t, res.Logs, 5)
	assert.Equal(t, "tok-4", res.Logs[0].TargetID)
	assert.Equal(t, "tok-0", res.Logs[4].TargetID)
}

func TestAuditQueryFilters(t *testing.T) {
	repo := &fakeAuditRepo{}
	svc := seededAuditService(t, repo)

	ctx := context.Background()
	_, _ = svc.Log(ctx, &model.AuditLogEntry{ActorID: "mod-a", ActionType: model.ActionClientFlagged, TargetID: "c1", OrganizationID: "org-1", Success: true})
	_, _ = svc.Log(ctx, &model.AuditLogEntry{ActorID: "mod-b", ActionType: model.ActionTokenBanned, TargetID: "t1", OrganizationID: "org-1", Success: true})
	_, _ = svc.Log(ctx, &model.AuditLogEntry{ActorID: "mod-a", ActionType: model.ActionConfigUpdated, TargetID: "org-2", OrganizationID: "org-2", Success: false, ErrorMessage: "threshold invalid"})

	res, err := svc.Query(ctx, model.AuditLogFilter{ActorID: "mod-a"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)

	res, err = svc.Query(ctx, model.AuditLogFilter{
		ActionTypes: []model.AuditActionType{model.ActionTokenBanned, model.ActionConfigUpdated},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)

	success := false
	res, err = svc.Query(ctx, model.AuditLogFilter{Success: &success})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "threshold invalid", res.Logs[0].ErrorMessage)

	res, err = svc.Query(ctx, model.AuditLogFilter{SearchQuery: "THRESHOLD"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
}

func TestAuditQuerySearch(t *testing.T) {
	repo := &fakeAuditRepo{}
	svc := seededAuditService(t, repo)
	ctx := context.Background()

	_, _ = svc.Log(ctx, &model.AuditLogEntry{
		ActorID:    "mod-a",
		ActionType: model.ActionClientFlagged,
		TargetID:   "bot-network-7",
		Metadata:   map[string]interface{}{"campaign": "credential-harvest"},
		Success:    true,
	})
	_, _ = svc.Log(ctx, &model.AuditLogEntry{
		ActorID:    "mod-b",
		ActionType: model.ActionTokenBanned,
		TargetID:   "tok-1",
		Success:    true,
	})

	// Case-insensitive substring over the action type.
	res, err := svc.Query(ctx, model.AuditLogFilter{SearchQuery: "client_FLAGGED"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "bot-network-7", res.Logs[0].TargetID)

	// Over the target id.
	res, err = svc.Query(ctx, model.AuditLogFilter{SearchQuery: "BOT-NETWORK"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)

	// Over the serialized metadata.
	res, err = svc.Query(ctx, model.AuditLogFilter{SearchQuery: "harvest"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "mod-a", res.Logs[0].ActorID)

	// Non-matching substrings exclude everything.
	res, err = svc.Query(ctx, model.AuditLogFilter{SearchQuery: "webhook"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
}

func TestAuditExportRejectsUnknownFormat(t *testing.T) {
	svc := seededAuditService(t, &fakeAuditRepo{})

	_, err := svc.Export(context.Background(), model.ExportFormat("xml"), model.AuditLogFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xml")
}

func TestAuditExportJSON(t *testing.T) {
	repo := &fakeAuditRepo{}
	svc := seededAuditService(t, repo)

	for i := 0; i < 3; i++ {
		_, _ = svc.Log(context.Background(), &model.AuditLogEntry{
			ActionType: model.ActionClientFlagged, TargetID: fmt.Sprintf("c%d", i),
		})
	}

	export, err := svc.Export(context.Background(), model.ExportJSON, model.AuditLogFilter{})
	require.NoError(t, err)
	assert.Equal(t, model.ExportJSON, export.Format)
	assert.Len(t, export.Logs, 3)
	assert.False(t, export.Truncated)
	assert.Empty(t, export.CSV)
}

func TestAuditExportCSVRoundTrip(t *testing.T) {
	repo := &fakeAuditRepo{}
	svc := seededAuditService(t, repo)

	_, err := svc.Log(context.Background(), &model.AuditLogEntry{
		ActorID:    "mod-1",
		ActionType: model.ActionClientFlagged,
		TargetType: "client",
		TargetID:   "client-7",
		Success:    true,
		Metadata: map[string]interface{}{
			"reason": `spam, with "quotes" and, commas`,
		},
	})
	require.NoError(t, err)

	export, err := svc.Export(context.Background(), model.ExportCSV, model.AuditLogFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, export.CSV)

	records, err := csv.NewReader(strings.NewReader(export.CSV)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, csvHeader, records[0])

	// Same filters, JSON format: row counts agree.
	jsonExport, err := svc.Export(context.Background(), model.ExportJSON, model.AuditLogFilter{})
	require.NoError(t, err)
	assert.Equal(t, len(jsonExport.Logs), len(records)-1)

	row := records[1]
	require.Len(t, row, len(csvHeader))
	assert.Equal(t, "mod-1", row[2])
	assert.Equal(t, string(model.ActionClientFlagged), row[3])
	assert.Equal(t, "client-7", row[5])
	assert.Equal(t, "true", row[9])

	// CSV-unquoting followed by JSON decoding recovers the metadata value
	// exactly, commas and quotes intact.
	var metadata map[string]string
	require.NoError(t, json.Unmarshal([]byte(row[11]), &metadata))
	assert.Equal(t, `spam, with "quotes" and, commas`, metadata["reason"])

	_, err = time.Parse(time.RFC3339Nano, row[1])
	assert.NoError(t, err)
}

func TestAuditExportTruncation(t *testing.T) {
	repo := &fakeAuditRepo{}
	svc := NewAuditService(repo, 5)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for i := 0; i < 8; i++ {
		_, err := svc.Log(context.Background(), &model.AuditLogEntry{
			ActionType: model.ActionTokenBanned, TargetID: fmt.Sprintf("t%d", i),
		})
		require.NoError(t, err)
	}

	export, err := svc.Export(context.Background(), model.ExportJSON, model.AuditLogFilter{})
	require.NoError(t, err)
	assert.True(t, export.Truncated)
	assert.Len(t, export.Logs, 5)
}
