package kafka

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/terminal-planner/pkg/errors"
)

// SchemaVersion is stamped on every envelope this package writes.
const SchemaVersion = "v1"

// Record headers. Consumers can route on them without decoding the value.
const (
	HeaderEventType = "event_type"
	HeaderTraceID   = "trace_id"
)

// EventEnvelope is the JSON value of every planning record.
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion string          `json:"schema_version"`
	TraceID       string          `json:"trace_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEventEnvelope encodes payload under a fresh event id.
func NewEventEnvelope(eventType, source string, payload interface{}) (*EventEnvelope, error) {
	if eventType == "" {
		return nil, errors.New(errors.ErrCodeValidation, "event type required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "encode event payload").WithDetail(eventType)
	}
	return &EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		Payload:       data,
	}, nil
}

// ParseEnvelope decodes a consumed record.
func ParseEnvelope(msg *Message) (*EventEnvelope, error) {
	if len(msg.Value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty event record")
	}
	var env EventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "decode event envelope")
	}
	return &env, nil
}

// DecodePayload unmarshals the payload into target. A null payload leaves
// target untouched.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "decode event payload").WithDetail(e.EventType)
	}
	return nil
}

// ToMessage builds the record for topic, partitioned by key.
func (e *EventEnvelope) ToMessage(topic, key string) (*ProducerMessage, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "encode event envelope")
	}
	msg := &ProducerMessage{
		Topic:     topic,
		Value:     val,
		Headers:   map[string]string{HeaderEventType: e.EventType},
		Timestamp: e.Timestamp,
	}
	if e.TraceID != "" {
		msg.Headers[HeaderTraceID] = e.TraceID
	}
	if key != "" {
		msg.Key = []byte(key)
	}
	return msg, nil
}
