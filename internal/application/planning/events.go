package planning

import (
	"sync"

	"github.com/turtacn/terminal-planner/internal/domain/simulation"
	"github.com/turtacn/terminal-planner/internal/domain/terminal"
	"github.com/turtacn/terminal-planner/internal/infrastructure/monitoring/logging"
)

// EventType names a planner decision.
type EventType string

const (
	EventYearStarted      EventType = "year_started"
	EventReport           EventType = "report"
	EventTriggerEvaluated EventType = "trigger_evaluated"
	EventElementAdded     EventType = "element_added"
	EventYearCompleted    EventType = "year_completed"
	EventRunCompleted     EventType = "run_completed"
)

// Event is one planner decision. Only the fields relevant to Type are set.
type Event struct {
	Type EventType     `json:"type"`
	Year int           `json:"year"`
	Kind terminal.Kind `json:"kind,omitempty"`

	// EventReport
	Report *terminal.KindReport `json:"report,omitempty"`

	// EventTriggerEvaluated: the measured value against its threshold.
	// For berths Value is occupancy and Target the allowable occupancy;
	// for the other kinds Value is planned capacity and Target the demand.
	// Unbounded marks an infinite Value, which is then reported as zero.
	Value     float64 `json:"value,omitempty"`
	Unbounded bool    `json:"unbounded,omitempty"`
	Target    float64 `json:"target,omitempty"`
	Triggered bool    `json:"triggered,omitempty"`

	// EventElementAdded
	Element *terminal.Element `json:"element,omitempty"`

	// EventYearCompleted
	Summary *simulation.YearSummary `json:"summary,omitempty"`

	// EventRunCompleted
	NPV float64 `json:"npv,omitempty"`
}

// Observer receives planner events synchronously, in decision order.
type Observer interface {
	OnEvent(e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(e Event)

// OnEvent calls f.
func (f ObserverFunc) OnEvent(e Event) { f(e) }

type multiObserver []Observer

func (m multiObserver) OnEvent(e Event) {
	for _, o := range m {
		o.OnEvent(e)
	}
}

// Observers fans events out to every non-nil observer.
func Observers(obs ...Observer) Observer {
	out := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

// LoggingObserver writes each decision as a structured log entry.
type LoggingObserver struct {
	logger logging.Logger
}

// NewLoggingObserver returns an observer logging through logger.
func NewLoggingObserver(logger logging.Logger) *LoggingObserver {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &LoggingObserver{logger: logger.Named("planner")}
}

// OnEvent implements Observer.
func (o *LoggingObserver) OnEvent(e Event) {
	fields := []logging.Field{logging.Year(e.Year)}
	if e.Kind != "" {
		fields = append(fields, logging.String(logging.FieldKind, e.Kind.String()))
	}
	switch e.Type {
	case EventYearStarted:
		o.logger.Debug("simulating year", fields...)
	case EventReport:
		o.logger.Debug("element report", append(fields,
			logging.Int("online", e.Report.Online),
			logging.Int("planned", e.Report.Planned),
			logging.Float64("online_capacity", e.Report.OnlineCapacity),
			logging.Float64("planned_capacity", e.Report.PlannedCapacity),
		)...)
	case EventTriggerEvaluated:
		o.logger.Debug("trigger evaluated", append(fields,
			logging.Float64("value", e.Value),
			logging.Bool("unbounded", e.Unbounded),
			logging.Float64("target", e.Target),
			logging.Bool("triggered", e.Triggered),
		)...)
	case EventElementAdded:
		o.logger.Info("element added", append(fields,
			logging.String("name", e.Element.Name),
			logging.Int("year_online", e.Element.YearOnline),
			logging.Float64("capex", e.Element.Capex),
		)...)
	case EventYearCompleted:
		o.logger.Info("year completed", append(fields,
			logging.Float64("volume", e.Summary.Volume),
			logging.Float64("berth_occupancy", e.Summary.BerthOccupancy),
			logging.Float64("demurrage", e.Summary.Demurrage),
		)...)
	case EventRunCompleted:
		o.logger.Info("simulation completed", logging.Float64("npv", e.NPV))
	}
}

// Recorder keeps every event it sees. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// OnEvent implements Observer.
func (r *Recorder) OnEvent(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
