package producer

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routemind/routemind/core"
)

// stubPublisher implements core.TaskPublisher for API tests.
type stubPublisher struct {
	mu        sync.Mutex
	err       error
	published []*core.Task
}

func (s *stubPublisher) Publish(ctx context.Context, task *core.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	task.RoutingKey = "priority.normal"
	s.published = append(s.published, task)
	return nil
}

func (s *stubPublisher) PublishBatch(ctx context.Context, tasks []*core.Task) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.published = append(s.published, tasks...)
	return len(tasks), nil
}

func (s *stubPublisher) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

func newTestAPI(pub core.TaskPublisher, supervisor *Supervisor) *httptest.Server {
	api := NewAPI(pub, supervisor, 10*time.Millisecond, nil)
	router := chi.NewRouter()
	api.Routes(router)
	return httptest.NewServer(router)
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestSubmitTask(t *testing.T) {
	pub := &stubPublisher{}
	server := newTestAPI(pub, nil)
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/tasks", SubmitRequest{
		Type:           core.TaskEmailNotification,
		ManualPriority: 4,
		Parameters:     map[string]interface{}{"user_id": "u-1"},
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body SubmitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.TaskID)
	assert.Equal(t, "priority.normal", body.RoutingKey)
	assert.Equal(t, 1, pub.count())
}

func TestSubmitUnknownType(t *testing.T) {
	server := newTestAPI(&stubPublisher{}, nil)
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/tasks", SubmitRequest{
		Type:           "TimeTravel",
		ManualPriority: 4,
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "unknown_task_type", body.Error.Code)
}

func TestSubmitInvalidPriority(t *testing.T) {
	server := newTestAPI(&stubPublisher{}, nil)
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/tasks", SubmitRequest{
		Type:           core.TaskDataAnalysis,
		ManualPriority: 11,
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitOverflowReturnsStructuredError(t *testing.T) {
	pub := &stubPublisher{err: core.NewPipelineError("publisher.Publish", "broker", core.ErrQueueOverflow)}
	server := newTestAPI(pub, nil)
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/tasks", SubmitRequest{
		Type:           core.TaskMLTraining,
		ManualPriority: 1,
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "queue_overflow", body.Error.Code)
}

func TestSubmitPublishFailure(t *testing.T) {
	pub := &stubPublisher{err: core.ErrPublishFailed}
	server := newTestAPI(pub, nil)
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/tasks", SubmitRequest{
		Type:           core.TaskDataExport,
		ManualPriority: 3,
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "publish_failed", body.Error.Code)
}

func TestSubmitBatch(t *testing.T) {
	pub := &stubPublisher{}
	server := newTestAPI(pub, nil)
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/tasks/batch", BatchSubmitRequest{
		Tasks: []SubmitRequest{
			{Type: core.TaskDataAnalysis, ManualPriority: 5},
			{Type: core.TaskEmailNotification, ManualPriority: 2},
		},
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body BatchSubmitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body.Requested)
	assert.Equal(t, 2, body.Published)
}

func TestSubmitBatchEmpty(t *testing.T) {
	server := newTestAPI(&stubPublisher{}, nil)
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/tasks/batch", BatchSubmitRequest{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAutoTaskLifecycleOverHTTP(t *testing.T) {
	pub := &stubPublisher{}
	supervisor := NewSupervisor(pub, nil)
	server := newTestAPI(pub, supervisor)
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/autotask/start", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Second start conflicts.
	resp = postJSON(t, server.URL+"/api/autotask/start", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	statusResp, err := http.Get(server.URL + "/api/autotask/status")
	require.NoError(t, err)
	var status map[string]interface{}
	require.NoError(t, json.NewDecoder(statusResp.Body).Decode(&status))
	statusResp.Body.Close()
	assert.Equal(t, true, status["running"])

	resp = postJSON(t, server.URL+"/api/autotask/stop", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, supervisor.Running())
}

func TestHealthz(t *testing.T) {
	server := newTestAPI(&stubPublisher{}, nil)
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
