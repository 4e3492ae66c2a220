package producer

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/routemind/routemind/core"
)

// API is the HTTP submission surface. It exposes task submission, the
// autotask supervisor controls and a liveness probe.
type API struct {
	publisher  core.TaskPublisher
	supervisor *Supervisor
	interval   time.Duration
	logger     core.Logger
}

// NewAPI creates the submission API.
func NewAPI(publisher core.TaskPublisher, supervisor *Supervisor, autoSendInterval time.Duration, logger core.Logger) *API {
	if logger != nil {
		if cal, ok := logger.(core.ComponentAwareLogger); ok {
			logger = cal.WithComponent("pipeline/producer")
		}
	}
	return &API{
		publisher:  publisher,
		supervisor: supervisor,
		interval:   autoSendInterval,
		logger:     logger,
	}
}

// Routes mounts the API onto a chi router.
func (a *API) Routes(r chi.Router) {
	r.Post("/api/tasks", a.handleSubmit)
	r.Post("/api/tasks/batch", a.handleSubmitBatch)
	r.Post("/api/autotask/start", a.handleAutoTaskStart)
	r.Post("/api/autotask/stop", a.handleAutoTaskStop)
	r.Get("/api/autotask/status", a.handleAutoTaskStatus)
	r.Get("/healthz", a.handleHealth)
}

// SubmitRequest is the request body for task submission.
type SubmitRequest struct {
	Type           core.TaskType          `json:"type"`
	Title          string                 `json:"title,omitempty"`
	Description    string                 `json:"description,omitempty"`
	ManualPriority int                    `json:"manual_priority"`
	MaxRetries     int                    `json:"max_retries,omitempty"`
	Parameters     map[string]interface{} `json:"parameters,omitempty"`
	Features       *core.Features         `json:"features,omitempty"`
}

// SubmitResponse is the success response for task submission.
type SubmitResponse struct {
	TaskID      string `json:"task_id"`
	RoutingKey  string `json:"routing_key,omitempty"`
	AIProcessed bool   `json:"ai_processed"`
}

// errorBody is the structured error response. Internal retries and DLQ
// movement are invisible to submitters; it carries request validation,
// autotask control and publish failures only.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	task, errCode, errMsg := a.buildTask(req)
	if errCode != "" {
		writeError(w, http.StatusBadRequest, errCode, errMsg)
		return
	}

	if err := a.publisher.Publish(r.Context(), task); err != nil {
		code, status := classifyPublishError(err)
		writeError(w, status, code, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitResponse{
		TaskID:      task.ID,
		RoutingKey:  task.RoutingKey,
		AIProcessed: task.AIProcessed,
	})
}

// BatchSubmitRequest is the request body for batch submission.
type BatchSubmitRequest struct {
	Tasks []SubmitRequest `json:"tasks"`
}

// BatchSubmitResponse reports how many tasks were published.
type BatchSubmitResponse struct {
	Requested int `json:"requested"`
	Published int `json:"published"`
}

func (a *API) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if len(req.Tasks) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "tasks must be non-empty")
		return
	}

	tasks := make([]*core.Task, 0, len(req.Tasks))
	for _, item := range req.Tasks {
		task, errCode, errMsg := a.buildTask(item)
		if errCode != "" {
			writeError(w, http.StatusBadRequest, errCode, errMsg)
			return
		}
		tasks = append(tasks, task)
	}

	published, err := a.publisher.PublishBatch(r.Context(), tasks)
	if err != nil && published == 0 {
		code, status := classifyPublishError(err)
		writeError(w, status, code, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, BatchSubmitResponse{
		Requested: len(tasks),
		Published: published,
	})
}

func (a *API) buildTask(req SubmitRequest) (*core.Task, string, string) {
	if !core.ValidTaskType(req.Type) {
		return nil, "unknown_task_type", "task type is not part of the catalog"
	}
	if req.ManualPriority < 0 || req.ManualPriority > 10 {
		return nil, "invalid_priority", "manual_priority must be in [0,10]"
	}

	return &core.Task{
		ID:             uuid.NewString(),
		Type:           req.Type,
		Title:          req.Title,
		Description:    req.Description,
		CreatedAt:      time.Now(),
		ManualPriority: req.ManualPriority,
		MaxRetries:     req.MaxRetries,
		Parameters:     req.Parameters,
		Features:       req.Features,
	}, "", ""
}

func (a *API) handleAutoTaskStart(w http.ResponseWriter, r *http.Request) {
	if a.supervisor == nil {
		writeError(w, http.StatusNotFound, "autotask_disabled", "autotask supervisor not configured")
		return
	}
	if err := a.supervisor.Start(a.interval); err != nil {
		if errors.Is(err, core.ErrAlreadyStarted) {
			writeError(w, http.StatusConflict, "already_running", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "autotask_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"running": true})
}

func (a *API) handleAutoTaskStop(w http.ResponseWriter, r *http.Request) {
	if a.supervisor == nil {
		writeError(w, http.StatusNotFound, "autotask_disabled", "autotask supervisor not configured")
		return
	}
	if err := a.supervisor.Stop(); err != nil {
		writeError(w, http.StatusConflict, "not_running", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"running": false})
}

func (a *API) handleAutoTaskStatus(w http.ResponseWriter, r *http.Request) {
	if a.supervisor == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"configured": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"configured": true,
		"running":    a.supervisor.Running(),
		"tasks_sent": a.supervisor.Sent(),
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func classifyPublishError(err error) (code string, status int) {
	if core.IsOverflow(err) {
		return "queue_overflow", http.StatusServiceUnavailable
	}
	return "publish_failed", http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}
