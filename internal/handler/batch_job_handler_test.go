package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/uniguide/corrections-api/internal/models"
	appErrors "github.com/uniguide/corrections-api/pkg/errors"
)

type batchJobServiceMock struct {
	job        *models.BatchJob
	jobs       []models.BatchJob
	stats      *models.QueueStats
	err        error
	lastFilter models.BatchJobFilter
	requeueID  string
	actorID    string
}

func (m *batchJobServiceMock) GetJob(ctx context.Context, id string) (*models.BatchJob, error) {
	return m.job, m.err
}

func (m *batchJobServiceMock) ListJobs(ctx context.Context, filter models.BatchJobFilter) ([]models.BatchJob, error) {
	m.lastFilter = filter
	return m.jobs, m.err
}

func (m *batchJobServiceMock) RequeueJob(ctx context.Context, jobID string, actorID string) (*models.BatchJob, error) {
	m.requeueID = jobID
	m.actorID = actorID
	return m.job, m.err
}

func (m *batchJobServiceMock) QueueStats(ctx context.Context) (*models.QueueStats, error) {
	return m.stats, m.err
}

func TestBatchJobHandlerListParsesFilter(t *testing.T) {
	mock := &batchJobServiceMock{jobs: []models.BatchJob{{ID: "job-1"}}}
	handler := NewBatchJobHandler(mock)

	c, w := newCorrectionTestContext(t, http.MethodGet,
		"/batch-jobs?status=pending,failed&correctionId=corr-1&entityId=inst-1&limit=10", nil)
	withClaims(c, models.RoleAdmin)

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []models.BatchJobStatus{models.BatchJobStatusPending, models.BatchJobStatusFailed}, mock.lastFilter.Status)
	require.Equal(t, "corr-1", mock.lastFilter.CorrectionID)
	require.Equal(t, "inst-1", mock.lastFilter.EntityID)
	require.Equal(t, 10, mock.lastFilter.Limit)
}

func TestBatchJobHandlerRequeuePassesActor(t *testing.T) {
	mock := &batchJobServiceMock{job: &models.BatchJob{ID: "job-1", Status: models.BatchJobStatusPending}}
	handler := NewBatchJobHandler(mock)

	c, w := newCorrectionTestContext(t, http.MethodPost, "/batch-jobs/job-1/requeue", nil)
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	withClaims(c, models.RoleAdmin)

	handler.Requeue(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "job-1", mock.requeueID)
	require.Equal(t, "user-1", mock.actorID)
}

func TestBatchJobHandlerRequeueRequiresClaims(t *testing.T) {
	handler := NewBatchJobHandler(&batchJobServiceMock{})

	c, w := newCorrectionTestContext(t, http.MethodPost, "/batch-jobs/job-1/requeue", nil)
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}

	handler.Requeue(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBatchJobHandlerRequeueConflict(t *testing.T) {
	mock := &batchJobServiceMock{err: appErrors.Clone(appErrors.ErrConflict, "only failed jobs can be requeued")}
	handler := NewBatchJobHandler(mock)

	c, w := newCorrectionTestContext(t, http.MethodPost, "/batch-jobs/job-1/requeue", nil)
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	withClaims(c, models.RoleAdmin)

	handler.Requeue(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestBatchJobHandlerQueueStats(t *testing.T) {
	mock := &batchJobServiceMock{stats: &models.QueueStats{Pending: 2, Failed: 1, Depth: 2}}
	handler := NewBatchJobHandler(mock)

	c, w := newCorrectionTestContext(t, http.MethodGet, "/queue/stats", nil)
	withClaims(c, models.RoleModerator)

	handler.QueueStats(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.QueueStats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, 2, envelope.Data.Pending)
	require.Equal(t, 2, envelope.Data.Depth)
}
