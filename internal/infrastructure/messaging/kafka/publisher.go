package kafka

import (
	"context"

	"github.com/turtacn/terminal-planner/internal/infrastructure/monitoring/logging"
)

// MessagePublisher is the part of Producer the event publisher needs.
type MessagePublisher interface {
	Publish(ctx context.Context, msg *ProducerMessage) error
}

// PlanningEventPublisher wraps planning payloads in an EventEnvelope and
// writes them to one topic keyed by run id.
type PlanningEventPublisher struct {
	producer MessagePublisher
	topic    string
	source   string
	logger   logging.Logger
}

func NewPlanningEventPublisher(producer MessagePublisher, topic, source string, logger logging.Logger) *PlanningEventPublisher {
	if topic == "" {
		topic = TopicPlanningEvents
	}
	return &PlanningEventPublisher{
		producer: producer,
		topic:    topic,
		source:   source,
		logger:   logger,
	}
}

func (p *PlanningEventPublisher) Publish(ctx context.Context, key, eventType string, payload interface{}) error {
	env, err := NewEventEnvelope(eventType, p.source, payload)
	if err != nil {
		return err
	}
	if id := logging.RequestIDFrom(ctx); id != "" {
		env.TraceID = id
	}
	msg, err := env.ToMessage(p.topic, key)
	if err != nil {
		return err
	}
	if err := p.producer.Publish(ctx, msg); err != nil {
		p.logger.Warn("Failed to publish planning event",
			logging.String("event_type", eventType),
			logging.String("key", key),
			logging.Err(err))
		return err
	}
	return nil
}
