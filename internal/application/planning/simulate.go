package planning

import (
	"context"

	"github.com/turtacn/terminal-planner/internal/domain/queueing"
	"github.com/turtacn/terminal-planner/internal/domain/simulation"
	"github.com/turtacn/terminal-planner/internal/domain/terminal"
)

// SimulateOption customises a single Simulate call.
type SimulateOption func(*simulateOptions)

type simulateOptions struct {
	queue     *queueing.Model
	observer  Observer
	factoryOp []terminal.FactoryOption
}

// WithQueueModel overrides the process-wide queueing model.
func WithQueueModel(m *queueing.Model) SimulateOption {
	return func(o *simulateOptions) { o.queue = m }
}

// WithObserver receives every planner event of the run.
func WithObserver(obs Observer) SimulateOption {
	return func(o *simulateOptions) { o.observer = obs }
}

// WithFactoryOptions passes options to the element factory.
func WithFactoryOptions(opts ...terminal.FactoryOption) SimulateOption {
	return func(o *simulateOptions) { o.factoryOp = append(o.factoryOp, opts...) }
}

// Simulate validates s against params and runs it over a fresh registry.
// Defaults must already be applied to s.
func Simulate(ctx context.Context, s *Scenario, params terminal.Parameters, opts ...SimulateOption) (*simulation.Result, error) {
	o := simulateOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	if err := s.Validate(params); err != nil {
		return nil, err
	}
	forecast, err := s.Forecaster()
	if err != nil {
		return nil, err
	}
	factory, err := terminal.NewFactory(params, s.OperationalHours, s.EnergyUtilisation, o.factoryOp...)
	if err != nil {
		return nil, err
	}
	planner, err := NewPlanner(s.PlannerConfig(), s.Horizon(), factory, terminal.NewRegistry(), o.observer)
	if err != nil {
		return nil, err
	}
	driver, err := NewDriver(s.DriverConfig(), planner, forecast, o.queue, o.observer)
	if err != nil {
		return nil, err
	}
	return driver.Run(ctx)
}
