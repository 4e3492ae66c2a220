package predservice

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/routemind/routemind/core"
)

// maxBatch is the largest accepted predict-batch request.
const maxBatch = 100

// Routes mounts the service API onto a chi router.
func (s *Service) Routes(r chi.Router) {
	r.Post("/predict", s.handlePredict)
	r.Post("/predict-batch", s.handlePredictBatch)
	r.Post("/predict-priority", s.handlePredictPriority)
	r.Post("/predict-duration", s.handlePredictDuration)
	r.Get("/health", s.handleHealth)
	r.Get("/statistics", s.handleStatistics)
	r.Post("/training/record", s.handleTrainingRecord)
	r.Post("/training/retrain", s.handleRetrain)
}

type predictReply struct {
	Success     bool              `json:"success"`
	Predictions *core.Predictions `json:"predictions,omitempty"`
	Error       string            `json:"error,omitempty"`
}

func (s *Service) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, predictReply{Error: "invalid JSON body"})
		return
	}
	if !core.ValidTaskType(req.TaskType) {
		writeJSON(w, http.StatusBadRequest, predictReply{Error: "unknown task type"})
		return
	}

	writeJSON(w, http.StatusOK, predictReply{
		Success:     true,
		Predictions: s.Predict(req),
	})
}

type batchPredictRequest struct {
	Tasks []PredictRequest `json:"tasks"`
}

type batchPredictItem struct {
	TaskID      string            `json:"task_id"`
	Success     bool              `json:"success"`
	Predictions *core.Predictions `json:"predictions,omitempty"`
	Error       string            `json:"error,omitempty"`
}

type batchPredictReply struct {
	Results []batchPredictItem `json:"results"`
}

func (s *Service) handlePredictBatch(w http.ResponseWriter, r *http.Request) {
	var req batchPredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if len(req.Tasks) == 0 || len(req.Tasks) > maxBatch {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "batch size must be between 1 and 100",
		})
		return
	}

	reply := batchPredictReply{Results: make([]batchPredictItem, 0, len(req.Tasks))}
	for _, item := range req.Tasks {
		if !core.ValidTaskType(item.TaskType) {
			reply.Results = append(reply.Results, batchPredictItem{
				TaskID: item.TaskID,
				Error:  "unknown task type",
			})
			continue
		}
		reply.Results = append(reply.Results, batchPredictItem{
			TaskID:      item.TaskID,
			Success:     true,
			Predictions: s.Predict(item),
		})
	}
	writeJSON(w, http.StatusOK, reply)
}

// handlePredictPriority is the fast single-axis priority endpoint.
func (s *Service) handlePredictPriority(w http.ResponseWriter, r *http.Request) {
	s.singleAxis(w, r, core.KindPriority)
}

// handlePredictDuration is the fast single-axis duration endpoint.
func (s *Service) handlePredictDuration(w http.ResponseWriter, r *http.Request) {
	s.singleAxis(w, r, core.KindDuration)
}

func (s *Service) singleAxis(w http.ResponseWriter, r *http.Request, kind core.PredictionKind) {
	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, predictReply{Error: "invalid JSON body"})
		return
	}
	if !core.ValidTaskType(req.TaskType) {
		writeJSON(w, http.StatusBadRequest, predictReply{Error: "unknown task type"})
		return
	}

	req.RequestedKinds = []core.PredictionKind{kind}
	writeJSON(w, http.StatusOK, predictReply{
		Success:     true,
		Predictions: s.Predict(req),
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"model_ready": s.model.ready(),
	})
}

func (s *Service) handleStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Stats())
}

func (s *Service) handleTrainingRecord(w http.ResponseWriter, r *http.Request) {
	var obs Observation
	if err := json.NewDecoder(r.Body).Decode(&obs); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if obs.TaskID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "task_id is required"})
		return
	}

	s.Observe(obs)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func (s *Service) handleRetrain(w http.ResponseWriter, r *http.Request) {
	minRecords := 1
	if v := r.URL.Query().Get("minRecords"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "minRecords must be a positive integer"})
			return
		}
		minRecords = n
	}

	size, ok := s.Retrain(minRecords)
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":       "not enough training records",
			"buffer_size": size,
			"min_records": minRecords,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "retrained",
		"observations":  size,
		"model_version": s.model.version(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
