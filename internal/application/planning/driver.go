package planning

import (
	"context"
	"math"

	"github.com/turtacn/terminal-planner/internal/domain/finance"
	"github.com/turtacn/terminal-planner/internal/domain/queueing"
	"github.com/turtacn/terminal-planner/internal/domain/simulation"
	"github.com/turtacn/terminal-planner/internal/domain/terminal"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

// DriverConfig holds the run-wide settings of a simulation.
type DriverConfig struct {
	Horizon     finance.Horizon `json:"horizon"`
	HandlingFee float64         `json:"handling_fee"`
	WACC        finance.WACC    `json:"wacc"`
}

// Driver steps a planner through every year of the horizon.
type Driver struct {
	cfg      DriverConfig
	planner  *Planner
	forecast Forecaster
	queue    *queueing.Model
	observer Observer
}

// NewDriver wires a driver. A nil queue uses the process-wide model.
func NewDriver(cfg DriverConfig, planner *Planner, forecast Forecaster, queue *queueing.Model, observer Observer) (*Driver, error) {
	if err := cfg.Horizon.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.WACC.Validate(); err != nil {
		return nil, err
	}
	if cfg.HandlingFee < 0 {
		return nil, errors.InvalidParam("handling fee must be >= 0")
	}
	if planner == nil || forecast == nil {
		return nil, errors.InvalidParam("driver requires a planner and a forecast")
	}
	if queue == nil {
		queue = queueing.Default()
	}
	if observer == nil {
		observer = Observers()
	}
	return &Driver{cfg: cfg, planner: planner, forecast: forecast, queue: queue, observer: observer}, nil
}

// Run simulates every year in order and aggregates the result. The context is
// checked between years.
func (d *Driver) Run(ctx context.Context) (*simulation.Result, error) {
	h := d.cfg.Horizon
	res := &simulation.Result{Horizon: h, Years: make([]simulation.YearSummary, 0, h.Lifecycle)}
	demurrage := make([]float64, h.Lifecycle)
	revenue := make([]float64, h.Lifecycle)
	params := d.planner.factory.Parameters()

	for i, year := range h.Years() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d.observer.OnEvent(Event{Type: EventYearStarted, Year: year})

		demand, err := d.forecast.Demand(year)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeForecastFailed, "forecast")
		}
		demand.Year = year
		if err := d.planner.Plan(year, demand); err != nil {
			return nil, err
		}

		calls, err := params.Calls(demand)
		if err != nil {
			return nil, err
		}
		summary, err := d.summarise(year, demand, calls)
		if err != nil {
			return nil, err
		}
		demurrage[i] = summary.Demurrage
		revenue[i] = summary.Revenue
		res.Years = append(res.Years, summary)
		d.observer.OnEvent(Event{Type: EventYearCompleted, Year: year, Summary: &summary})
	}

	res.Elements = d.planner.registry.All()
	portfolio, err := finance.Aggregate(finance.AggregateInput{
		Horizon:        h,
		Elements:       res.Elements,
		Demurrage:      demurrage,
		Revenue:        revenue,
		TerminalLabour: params.Labour.AnnualCost(),
	})
	if err != nil {
		return nil, err
	}
	table, err := finance.NPV(portfolio, d.cfg.WACC)
	if err != nil {
		return nil, err
	}
	res.Portfolio = portfolio
	res.NPV = table
	d.observer.OnEvent(Event{Type: EventRunCompleted, Year: h.End() - 1, NPV: table.NPV})
	return res, nil
}

// summarise computes demurrage and revenue from the elements online in year.
// Vessels wait waiting_factor * service_time per call, where the factor
// comes from the online occupancy and the number of online berths.
func (d *Driver) summarise(year int, demand terminal.Demand, calls []terminal.VesselCalls) (simulation.YearSummary, error) {
	s := simulation.YearSummary{
		Year:           year,
		Volume:         demand.Volume,
		BerthOccupancy: d.planner.BerthOccupancy(calls),
		Elements:       d.planner.registry.Len(),
	}
	for _, c := range calls {
		s.Calls += c.Calls
	}

	var cranes []terminal.Element
	berths := 0
	for _, e := range d.planner.registry.OnlineBy(year) {
		switch e.Kind {
		case terminal.KindBerth:
			berths++
		case terminal.KindCrane:
			cranes = append(cranes, e)
		}
	}
	rate := ServiceRate(cranes)
	if berths == 0 || rate <= 0 {
		return s, nil
	}

	occupancy := Occupancy(calls, rate, d.planner.cfg.OperationalHours)
	factor, err := d.queue.WaitingFactor(occupancy, int(math.Min(float64(berths), queueing.MaxServers)))
	if err != nil {
		return simulation.YearSummary{}, err
	}
	s.OnlineOccupancy = &occupancy
	s.WaitingFactor = &factor
	for _, c := range calls {
		waiting := factor * c.Class.CallSize / rate
		s.Demurrage += float64(c.Calls) * waiting * c.Class.DemurrageRate
	}
	s.Revenue = d.cfg.HandlingFee * demand.Volume
	return s, nil
}
