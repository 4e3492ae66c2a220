package rabbitmq

import (
	"strconv"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/routemind/routemind/core"
)

// Wire header names. The set published on a message is a subset of this
// catalog; task-id, task-type and retry-count are always present.
const (
	HeaderTaskType            = "task-type"
	HeaderTaskID              = "task-id"
	HeaderRetryCount          = "retry-count"
	HeaderMaxRetries          = "max-retries"
	HeaderAIProcessed         = "ai-processed"
	HeaderRoutingReason       = "routing-reason"
	HeaderQueueRecommendation = "queue-recommendation"

	HeaderAIPriority           = "ai-priority"
	HeaderAIDurationMs         = "ai-duration-ms"
	HeaderAIIsAnomaly          = "ai-is-anomaly"
	HeaderAISuccessProbability = "ai-success-probability"
	HeaderAIServiceVersion     = "ai-service-version"
)

// BuildHeaders assembles the wire headers for one publish. Prediction
// headers appear only when the task carries predictions. Trace context
// headers are injected separately by the publisher.
func BuildHeaders(task *core.Task, reason string, recommendation core.Destination) amqp.Table {
	headers := amqp.Table{
		HeaderTaskType:            string(task.Type),
		HeaderTaskID:              task.ID,
		HeaderRetryCount:          int32(task.RetryCount),
		HeaderMaxRetries:          int32(task.MaxRetries),
		HeaderAIProcessed:         task.AIProcessed,
		HeaderRoutingReason:       reason,
		HeaderQueueRecommendation: string(recommendation),
	}

	if p := task.Predictions; p != nil {
		headers[HeaderAIPriority] = int32(p.CalculatedPriority)
		headers[HeaderAIDurationMs] = p.PredictedDurationMs
		headers[HeaderAIIsAnomaly] = p.IsAnomaly
		headers[HeaderAISuccessProbability] = p.SuccessProbability
		headers[HeaderAIServiceVersion] = p.ModelVersion
	}

	return headers
}

// HeaderString reads a string header, tolerating []byte values.
func HeaderString(headers amqp.Table, key string) string {
	switch v := headers[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// HeaderInt reads an integer header across the numeric types AMQP clients
// produce.
func HeaderInt(headers amqp.Table, key string) int {
	switch v := headers[key].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	case []byte:
		n, _ := strconv.Atoi(string(v))
		return n
	default:
		return 0
	}
}

// HeaderBool reads a boolean header.
func HeaderBool(headers amqp.Table, key string) bool {
	switch v := headers[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}
