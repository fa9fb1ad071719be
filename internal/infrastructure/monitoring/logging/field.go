package logging

import (
	"context"
	"time"
)

// Canonical field keys shared across packages.
const (
	FieldRequestID = "request_id"
	FieldRunID     = "run_id"
	FieldScenario  = "scenario"
	FieldYear      = "year"
	FieldKind      = "kind"
	FieldErrorCode = "error_code"
	FieldDuration  = "duration_ms"
)

// Field is a typed key-value pair attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

// String constructs a Field with a string value.
func String(key, val string) Field { return Field{Key: key, Value: val} }

// Int constructs a Field with an int value.
func Int(key string, val int) Field { return Field{Key: key, Value: val} }

// Int64 constructs a Field with an int64 value.
func Int64(key string, val int64) Field { return Field{Key: key, Value: val} }

// Float64 constructs a Field with a float64 value.
func Float64(key string, val float64) Field { return Field{Key: key, Value: val} }

// Bool constructs a Field with a bool value.
func Bool(key string, val bool) Field { return Field{Key: key, Value: val} }

// Duration constructs a Field with a time.Duration value.
func Duration(key string, val time.Duration) Field { return Field{Key: key, Value: val} }

// Any constructs a Field with an arbitrary value.
func Any(key string, val interface{}) Field { return Field{Key: key, Value: val} }

// Err captures an error under the key "error". A nil error is logged as "<nil>".
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: "<nil>"}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Year is shorthand for the simulated year of a planning decision.
func Year(y int) Field { return Field{Key: FieldYear, Value: y} }

type ctxKey struct{ name string }

var (
	requestIDKey = ctxKey{"request_id"}
	runIDKey     = ctxKey{"run_id"}
)

// WithRequestID stores a request identifier on ctx for Logger.WithContext.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithRunID stores a simulation run identifier on ctx for Logger.WithContext.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RequestIDFrom returns the request identifier stored on ctx, if any.
func RequestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

func contextFields(ctx context.Context) []Field {
	if ctx == nil {
		return nil
	}
	var out []Field
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		out = append(out, String(FieldRequestID, v))
	}
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		out = append(out, String(FieldRunID, v))
	}
	return out
}
