package cli

import (
	"context"

	"github.com/turtacn/terminal-planner/internal/application/planning"
	"github.com/turtacn/terminal-planner/internal/domain/simulation"
	"github.com/turtacn/terminal-planner/internal/infrastructure/monitoring/prometheus"
)

type eventRecorder interface {
	RecordEvent(eventType string)
}

type exportRecorder interface {
	RecordExport(err error)
}

// countingPublisher counts successfully published events by type.
type countingPublisher struct {
	next    planning.EventPublisher
	metrics eventRecorder
}

func (p *countingPublisher) Publish(ctx context.Context, key, eventType string, payload interface{}) error {
	err := p.next.Publish(ctx, key, eventType, payload)
	if err == nil {
		p.metrics.RecordEvent(eventType)
	}
	return err
}

// countingExporter counts export attempts by outcome.
type countingExporter struct {
	next    planning.ReportExporter
	metrics exportRecorder
}

func (e *countingExporter) Export(ctx context.Context, run *simulation.Run) ([]string, error) {
	keys, err := e.next.Export(ctx, run)
	e.metrics.RecordExport(err)
	return keys, err
}

// instrumentPublisher counts published events on m. A nil m returns next.
func instrumentPublisher(next planning.EventPublisher, m *prometheus.AppMetrics) planning.EventPublisher {
	if m == nil {
		return next
	}
	return &countingPublisher{next: next, metrics: m}
}

// instrumentExporter counts export outcomes on m. A nil m returns next.
func instrumentExporter(next planning.ReportExporter, m *prometheus.AppMetrics) planning.ReportExporter {
	if m == nil {
		return next
	}
	return &countingExporter{next: next, metrics: m}
}
