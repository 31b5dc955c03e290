package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, propagated through the call chain via context.
const (
	FieldRequestID  = "request_id"
	FieldRunID      = "run_id"
	FieldComponent  = "component"
	FieldPhase      = "phase"
	FieldCollection = "collection"
	FieldSource     = "source"
)

// Metric fields, attached per entry for aggregation.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldSize       = "size"
	FieldStatus     = "status"
)
