package core

import (
	"encoding/json"
	"time"
)

// TypedParams is the typed projection of the untyped task parameter map.
// The wire format keeps parameters as map[string]interface{}; inside the
// pipeline, the prediction client works only with this projection so
// unknown keys cannot leak into feature estimation. Handlers are not limited
// to it: the simulated handlers in package handlers read the raw "fail" key
// from the parameter map.
type TypedParams struct {
	UserID      string
	Tenant      string
	Tier        Tier
	Department  string
	Source      string
	InputSize   *int64
	RecordCount *int64
	InputFormat string
	Scheduled   *bool
	BatchOK     *bool
	Deadline    *time.Time
}

// ProjectParams extracts the known keys from a raw parameter map. Values of
// the wrong dynamic type are ignored rather than coerced; the projection is
// a boundary filter, not a validator.
func ProjectParams(raw map[string]interface{}) TypedParams {
	var p TypedParams
	if raw == nil {
		return p
	}
	p.UserID = stringParam(raw, "user_id")
	p.Tenant = stringParam(raw, "tenant")
	p.Tier = Tier(stringParam(raw, "tier"))
	p.Department = stringParam(raw, "department")
	p.Source = stringParam(raw, "source")
	p.InputFormat = stringParam(raw, "input_format")
	p.InputSize = int64Param(raw, "input_size")
	p.RecordCount = int64Param(raw, "record_count")
	p.Scheduled = boolParam(raw, "scheduled")
	p.BatchOK = boolParam(raw, "batch_ok")
	if s := stringParam(raw, "deadline"); s != "" {
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			p.Deadline = &ts
		}
	}
	return p
}

func stringParam(raw map[string]interface{}, key string) string {
	if v, ok := raw[key].(string); ok {
		return v
	}
	return ""
}

func int64Param(raw map[string]interface{}, key string) *int64 {
	switch v := raw[key].(type) {
	case int:
		n := int64(v)
		return &n
	case int64:
		return &v
	case float64:
		// JSON numbers decode as float64
		n := int64(v)
		return &n
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return &n
		}
	}
	return nil
}

func boolParam(raw map[string]interface{}, key string) *bool {
	if v, ok := raw[key].(bool); ok {
		return &v
	}
	return nil
}
