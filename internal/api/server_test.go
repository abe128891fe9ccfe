package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/diffbridge/diffbridge/internal/app/workflow"
	"github.com/diffbridge/diffbridge/internal/config"
	"github.com/diffbridge/diffbridge/internal/domain/validation"
	blobmem "github.com/diffbridge/diffbridge/internal/infra/blob/memory"
	busmem "github.com/diffbridge/diffbridge/internal/infra/eventbus/memory"
	storemem "github.com/diffbridge/diffbridge/internal/infra/storage/validation/memory"
	"github.com/diffbridge/diffbridge/pkg/common/logger"
)

// stubDispatcher hands out deterministic correlation ids without a CI system.
type stubDispatcher struct {
	next int
	err  error
}

func (d *stubDispatcher) Dispatch(_ context.Context, kind validation.JobKind, _ map[string]string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	d.next++
	return fmt.Sprintf("%s-%d", kind, d.next), nil
}

type stubFetcher struct{}

func (stubFetcher) FetchArtifact(context.Context, string) ([]byte, error) {
	return []byte("a,b\n1,2\n"), nil
}

type apiFixture struct {
	server     *Server
	repo       *storemem.TaskStore
	dispatcher *stubDispatcher
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	log := logger.New(io.Discard, logger.LevelDebug, "test", nil)
	tracer := noop.NewTracerProvider().Tracer("test")
	repo := storemem.NewTaskStore()
	blobs := blobmem.NewStore()
	bus := busmem.NewBroker()
	locks := workflow.NewTaskLocks()
	dispatcher := &stubDispatcher{}

	coordinator := workflow.NewCoordinator(repo, dispatcher, blobs, bus, locks, log, tracer)
	ingestor := workflow.NewIngestor(repo, blobs, stubFetcher{}, bus, locks, log, tracer)

	cfg := &config.Config{}
	cfg.API.Host = "127.0.0.1"
	cfg.API.Port = "0"

	return &apiFixture{
		server:     NewServer(cfg, log, tracer, coordinator, ingestor),
		repo:       repo,
		dispatcher: dispatcher,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

var (
	creatorHeaders = map[string]string{
		"X-User-Id":     "creator-1",
		"X-User-Groups": "creators",
	}
	validatorHeaders = map[string]string{
		"X-User-Id":     "validator-1",
		"X-User-Groups": "validators",
		"X-File-Name":   "reviewed.csv",
		"Content-Type":  "text/csv",
	}
)

func createTask(t *testing.T, f *apiFixture) taskResponse {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/v1/tasks", map[string]string{"gitBranch": "feature/x"}, creatorHeaders)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp taskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func deliverWebhook(t *testing.T, f *apiFixture, jobID, status string, artifacts map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	payload := map[string]any{"jobId": jobID, "status": status}
	if artifacts != nil {
		payload["artifacts"] = artifacts
	}
	return f.do(t, http.MethodPost, "/v1/webhooks/jenkins", payload, nil)
}

func TestServer_CreateTask(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	resp := createTask(t, f)
	assert.Equal(t, "CREATED", resp.Status)
	assert.Equal(t, "feature/x", resp.GitBranch)
	assert.NotEmpty(t, resp.GenerationJobID)
	assert.Equal(t, "creator-1", resp.CreatedBy)
}

func TestServer_CreateTask_Forbidden(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/tasks", map[string]string{"gitBranch": "feature/x"}, map[string]string{
		"X-User-Id":     "v1",
		"X-User-Groups": "validators",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServer_CreateTask_MissingBranch(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/tasks", map[string]string{}, creatorHeaders)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_CreateTask_DispatchDown(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	f.dispatcher.err = fmt.Errorf("jenkins unreachable")

	rec := f.do(t, http.MethodPost, "/v1/tasks", map[string]string{"gitBranch": "feature/x"}, creatorHeaders)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServer_GetTask(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	created := createTask(t, f)

	rec := f.do(t, http.MethodGet, "/v1/tasks/"+created.ID, nil, creatorHeaders)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/tasks/not-a-uuid", nil, creatorHeaders)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/tasks/00000000-0000-0000-0000-000000000001", nil, creatorHeaders)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_GetTask_Anonymous(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	created := createTask(t, f)

	rec := f.do(t, http.MethodGet, "/v1/tasks/"+created.ID, nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServer_ListTasks_StatusFilter(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	createTask(t, f)

	rec := f.do(t, http.MethodGet, "/v1/tasks?status=CREATED", nil, creatorHeaders)
	require.Equal(t, http.StatusOK, rec.Code)
	var tasks []taskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	assert.Len(t, tasks, 1)

	rec = f.do(t, http.MethodGet, "/v1/tasks?status=BOGUS", nil, creatorHeaders)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Webhook_GenerationSuccess(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	created := createTask(t, f)

	rec := deliverWebhook(t, f, created.GenerationJobID, "SUCCESS", map[string]string{
		"diffUrl":           "https://ci/diff.csv",
		"currentCommitHash": "abc123",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	getRec := f.do(t, http.MethodGet, "/v1/tasks/"+created.ID, nil, creatorHeaders)
	var task taskResponse
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &task))
	assert.Equal(t, "PENDING_VALIDATION", task.Status)
	assert.Equal(t, "abc123", task.CurrentCommitHash)
}

func TestServer_Webhook_DuplicateStillOK(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	created := createTask(t, f)

	artifacts := map[string]string{"diffUrl": "https://ci/diff.csv", "currentCommitHash": "abc123"}
	rec := deliverWebhook(t, f, created.GenerationJobID, "SUCCESS", artifacts)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = deliverWebhook(t, f, created.GenerationJobID, "SUCCESS", artifacts)
	assert.Equal(t, http.StatusOK, rec.Code, "duplicates are acknowledged to stop retries")

	var resp webhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ignored", resp.Result)
}

func TestServer_Webhook_UnknownJob(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := deliverWebhook(t, f, "never-dispatched", "SUCCESS", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Webhook_BadPayload(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/webhooks/jenkins", []byte("{not json"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = deliverWebhook(t, f, "job-1", "DONE", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown status values are rejected")
}

func TestServer_FullLifecycle(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	created := createTask(t, f)

	rec := deliverWebhook(t, f, created.GenerationJobID, "SUCCESS", map[string]string{
		"diffUrl":           "https://ci/diff.csv",
		"currentCommitHash": "abc123",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/tasks/"+created.ID+"/validated-file", []byte("a,b\n1,9\n"), validatorHeaders)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/v1/tasks/"+created.ID+"/integration", nil, validatorHeaders)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var task taskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	require.NotEmpty(t, task.IntegrationJobID)

	rec = deliverWebhook(t, f, task.IntegrationJobID, "SUCCESS", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	getRec := f.do(t, http.MethodGet, "/v1/tasks/"+created.ID, nil, creatorHeaders)
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &task))
	assert.Equal(t, "INTEGRATED", task.Status)
	assert.Equal(t, "SUCCESS", task.IntegrationResult)
}

func TestServer_UploadRejectsNonCSV(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	created := createTask(t, f)

	deliverWebhook(t, f, created.GenerationJobID, "SUCCESS", map[string]string{
		"diffUrl":           "https://ci/diff.csv",
		"currentCommitHash": "abc123",
	})

	headers := map[string]string{
		"X-User-Id":     "validator-1",
		"X-User-Groups": "validators",
		"X-File-Name":   "reviewed.xlsx",
		"Content-Type":  "application/vnd.ms-excel",
	}
	rec := f.do(t, http.MethodPost, "/v1/tasks/"+created.ID+"/validated-file", []byte("x"), headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_IntegrationBeforeUploadConflicts(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	created := createTask(t, f)

	deliverWebhook(t, f, created.GenerationJobID, "SUCCESS", map[string]string{
		"diffUrl":           "https://ci/diff.csv",
		"currentCommitHash": "abc123",
	})

	rec := f.do(t, http.MethodPost, "/v1/tasks/"+created.ID+"/integration", nil, validatorHeaders)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_Liveness(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/liveness", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
