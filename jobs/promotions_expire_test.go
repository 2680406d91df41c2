package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/EZERROUK/x-panel-sub002/internal/jobs"
)

type stubExpirer struct {
	n     int64
	err   error
	calls int
}

func (s *stubExpirer) ExpirePromotions(context.Context) (int64, error) {
	s.calls++
	return s.n, s.err
}

type stubCleaner struct {
	n         int64
	err       error
	olderThan time.Duration
	calls     int
}

func (s *stubCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	s.calls++
	s.olderThan = olderThan
	return s.n, s.err
}

func newExpireTask(t *testing.T, retention time.Duration) *asynq.Task {
	t.Helper()
	task, err := NewPromotionsExpireTask(retention)
	require.NoError(t, err)
	return task
}

func TestPromotionsExpireTaskPayload(t *testing.T) {
	task := newExpireTask(t, 72*time.Hour)
	assert.Equal(t, TaskPromotionsExpire, task.Type())

	var payload PromotionsExpirePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, 72*time.Hour, payload.IdempotencyRetention)
}

func TestPromotionsExpireJobRecordsAffectedRows(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	expirer := &stubExpirer{n: 3}
	cleaner := &stubCleaner{n: 7}
	job := NewPromotionsExpireJob(expirer, cleaner, nil, metrics)

	require.NoError(t, job.Handle(context.Background(), newExpireTask(t, time.Hour)))

	assert.Equal(t, 1, expirer.calls)
	assert.Equal(t, 1, cleaner.calls)
	assert.Equal(t, time.Hour, cleaner.olderThan)

	count, err := testutil.GatherAndCount(reg, "xpanel_job_affected_rows_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = testutil.GatherAndCount(reg, "xpanel_jobs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPromotionsExpireJobSkipsCleanupWithoutRetention(t *testing.T) {
	expirer := &stubExpirer{}
	cleaner := &stubCleaner{}
	job := NewPromotionsExpireJob(expirer, cleaner, nil, nil)

	require.NoError(t, job.Handle(context.Background(), newExpireTask(t, 0)))
	assert.Equal(t, 1, expirer.calls)
	assert.Zero(t, cleaner.calls)
}

func TestPromotionsExpireJobPropagatesFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	boom := errors.New("database unavailable")
	cleaner := &stubCleaner{}
	job := NewPromotionsExpireJob(&stubExpirer{err: boom}, cleaner, nil, jobmetrics.NewMetrics(reg))

	err := job.Handle(context.Background(), newExpireTask(t, time.Hour))
	require.ErrorIs(t, err, boom)
	assert.Zero(t, cleaner.calls)

	count, err := testutil.GatherAndCount(reg, "xpanel_jobs_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPromotionsExpireJobRejectsMalformedPayload(t *testing.T) {
	expirer := &stubExpirer{}
	job := NewPromotionsExpireJob(expirer, nil, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskPromotionsExpire, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	assert.Zero(t, expirer.calls)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

type stubEnqueuer struct {
	err       error
	retention time.Duration
}

func (s *stubEnqueuer) EnqueuePromotionsExpire(_ context.Context, retention time.Duration) (*asynq.TaskInfo, error) {
	s.retention = retention
	if s.err != nil {
		return nil, s.err
	}
	return &asynq.TaskInfo{ID: "task-1", Type: TaskPromotionsExpire}, nil
}

func serveJobs(h *Handler, method, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHandlerHealth(t *testing.T) {
	h := NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 2, Retry: 1}}, nil, 0, nil)
	rec := serveJobs(h, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, queueHealth{Queue: QueueDefault, Pending: 2, Retry: 1}, body)

	h = NewHandler(stubInspector{err: errors.New("redis down")}, nil, 0, nil)
	rec = serveJobs(h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandlerTriggerExpire(t *testing.T) {
	enq := &stubEnqueuer{}
	h := NewHandler(nil, enq, 48*time.Hour, nil)
	rec := serveJobs(h, http.MethodPost, "/promotions/expire")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 48*time.Hour, enq.retention)
	assert.Contains(t, rec.Body.String(), "task-1")

	h = NewHandler(nil, &stubEnqueuer{err: asynq.ErrDuplicateTask}, 0, nil)
	rec = serveJobs(h, http.MethodPost, "/promotions/expire")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "already queued")

	h = NewHandler(nil, nil, 0, nil)
	rec = serveJobs(h, http.MethodPost, "/promotions/expire")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
