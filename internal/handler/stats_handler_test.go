package handler

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/uniguide/corrections-api/internal/models"
	"github.com/uniguide/corrections-api/pkg/export"
)

type statsServiceMock struct {
	stats   *models.CorrectionStatistics
	dataset *export.Dataset
	err     error
}

func (m *statsServiceMock) Statistics(ctx context.Context) (*models.CorrectionStatistics, error) {
	return m.stats, m.err
}

func (m *statsServiceMock) ExportDataset(ctx context.Context) (*export.Dataset, error) {
	return m.dataset, m.err
}

func statsTestDataset() *export.Dataset {
	return &export.Dataset{
		Headers: []string{"Section", "Key", "Count"},
		Rows: []map[string]string{
			{"Section": "status", "Key": "APPLIED", "Count": "12"},
			{"Section": "queue", "Key": "pending", "Count": "3"},
		},
	}
}

func TestStatsHandlerStatistics(t *testing.T) {
	mock := &statsServiceMock{stats: &models.CorrectionStatistics{
		Submissions: models.SubmissionStats{Total: 19, ApprovalRate: 0.8},
	}}
	handler := NewStatsHandler(mock, nil, nil)

	c, w := newCorrectionTestContext(t, http.MethodGet, "/statistics", nil)
	withClaims(c, models.RoleModerator)

	handler.Statistics(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"approvalRate":0.8`)
}

func TestStatsHandlerExportCSV(t *testing.T) {
	mock := &statsServiceMock{dataset: statsTestDataset()}
	handler := NewStatsHandler(mock, nil, nil)

	c, w := newCorrectionTestContext(t, http.MethodGet, "/statistics/export?format=csv", nil)
	withClaims(c, models.RoleAdmin)

	handler.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Content-Disposition"), "correction-stats-")
	require.Contains(t, w.Header().Get("Content-Disposition"), ".csv")

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "Section,Key,Count", strings.TrimSpace(lines[0]))
	require.Contains(t, lines[1], "APPLIED")
}

func TestStatsHandlerExportPDF(t *testing.T) {
	mock := &statsServiceMock{dataset: statsTestDataset()}
	handler := NewStatsHandler(mock, nil, nil)

	c, w := newCorrectionTestContext(t, http.MethodGet, "/statistics/export?format=pdf", nil)
	withClaims(c, models.RoleAdmin)

	handler.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	require.True(t, strings.HasPrefix(w.Body.String(), "%PDF"))
}

func TestStatsHandlerExportUnknownFormat(t *testing.T) {
	mock := &statsServiceMock{dataset: statsTestDataset()}
	handler := NewStatsHandler(mock, nil, nil)

	c, w := newCorrectionTestContext(t, http.MethodGet, "/statistics/export?format=xml", nil)
	withClaims(c, models.RoleAdmin)

	handler.Export(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
