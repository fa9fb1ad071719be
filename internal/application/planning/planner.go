// Package planning runs the year-by-year investment simulation of a terminal:
// the planner decides which elements to add, the driver steps through the
// horizon and the service wraps a run with persistence, caching and events.
package planning

import (
	"math"

	"github.com/turtacn/terminal-planner/internal/domain/finance"
	"github.com/turtacn/terminal-planner/internal/domain/terminal"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

// PlannerConfig holds the service-level targets of the planner.
type PlannerConfig struct {
	OperationalHours          float64 `json:"operational_hours"`
	AllowableBerthOccupancy   float64 `json:"allowable_berth_occupancy"`
	AllowableStationOccupancy float64 `json:"allowable_station_occupancy"`
	StorageFraction           float64 `json:"storage_fraction"`
	MaxIterations             int     `json:"max_iterations"`
}

// Validate rejects configurations that would divide by zero or never stop.
func (c PlannerConfig) Validate() error {
	invalid := func(msg string) error {
		return errors.New(errors.ErrCodePlannerConfigInvalid, msg)
	}
	switch {
	case c.OperationalHours <= 0:
		return invalid("operational hours must be positive")
	case c.AllowableBerthOccupancy <= 0:
		return invalid("allowable berth occupancy must be positive")
	case c.AllowableStationOccupancy <= 0 || c.AllowableStationOccupancy > 1:
		return invalid("allowable station occupancy must be in (0, 1]")
	case c.StorageFraction < 0:
		return invalid("storage fraction must be >= 0")
	case c.MaxIterations < 1:
		return invalid("max iterations must be >= 1")
	}
	return nil
}

// Planner appends elements to a registry until every trigger of a year is
// met. Every element is priced by the factory and receives its cash flow
// before it enters the registry.
type Planner struct {
	cfg      PlannerConfig
	horizon  finance.Horizon
	factory  *terminal.Factory
	registry *terminal.Registry
	observer Observer
}

// NewPlanner wires a planner. A nil observer discards events.
func NewPlanner(cfg PlannerConfig, h finance.Horizon, factory *terminal.Factory, registry *terminal.Registry, observer Observer) (*Planner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if factory == nil || registry == nil {
		return nil, errors.InvalidParam("planner requires a factory and a registry")
	}
	if observer == nil {
		observer = Observers()
	}
	return &Planner{cfg: cfg, horizon: h, factory: factory, registry: registry, observer: observer}, nil
}

// Registry returns the registry the planner appends to.
func (p *Planner) Registry() *terminal.Registry { return p.registry }

// ServiceRate sums the effective rate of the given cranes in t/h.
func ServiceRate(cranes []terminal.Element) float64 {
	rate := 0.0
	for i := range cranes {
		rate += cranes[i].EffectiveRate()
	}
	return rate
}

// Occupancy is the time vessels spend at berth divided by operational hours:
// sum over classes of calls * (call_size / rate + mooring_time). Without
// service capacity any traffic gives +Inf; no traffic gives zero.
func Occupancy(calls []terminal.VesselCalls, rate, operationalHours float64) float64 {
	hours := 0.0
	traffic := false
	for _, c := range calls {
		if c.Calls == 0 {
			continue
		}
		traffic = true
		if rate <= 0 {
			return math.Inf(1)
		}
		hours += float64(c.Calls) * (c.Class.CallSize/rate + c.Class.MooringTime)
	}
	if !traffic {
		return 0
	}
	return hours / operationalHours
}

// MooringOccupancy is the occupancy from mooring time alone, the floor that
// no amount of crane capacity can lower.
func MooringOccupancy(calls []terminal.VesselCalls, operationalHours float64) float64 {
	return Occupancy(calls, math.Inf(1), operationalHours)
}

// BerthOccupancy is the occupancy with every planned crane in service.
func (p *Planner) BerthOccupancy(calls []terminal.VesselCalls) float64 {
	return Occupancy(calls, ServiceRate(p.registry.FindByKind(terminal.KindCrane)), p.cfg.OperationalHours)
}

func (p *Planner) craneSlotFree() bool {
	slots := 0
	for _, b := range p.registry.FindByKind(terminal.KindBerth) {
		slots += b.MaxCranes
	}
	return slots > p.registry.Count(terminal.KindCrane)
}

// Plan evaluates every trigger for year in a fixed order: berths with their
// quays and cranes, quay conveyors, storage, hinterland conveyors and
// unloading stations.
func (p *Planner) Plan(year int, d terminal.Demand) error {
	calls, err := p.factory.Parameters().Calls(d)
	if err != nil {
		return err
	}
	if err := p.investBerths(year, d, calls); err != nil {
		return err
	}

	quayConveyorTarget := ServiceRate(p.registry.FindByKind(terminal.KindCrane))
	if err := p.investCapacity(year, terminal.KindQuayConveyor, quayConveyorTarget, p.factory.QuayConveyor); err != nil {
		return err
	}

	storageTarget := 0.0
	if d.Volume > 0 {
		storageTarget = math.Max(p.factory.Parameters().LargestCall(d.Mix), p.cfg.StorageFraction*d.Volume)
	}
	if err := p.investCapacity(year, terminal.KindStorage, storageTarget, p.factory.Storage); err != nil {
		return err
	}

	stationTarget := d.Volume / p.cfg.OperationalHours / p.cfg.AllowableStationOccupancy
	if err := p.investCapacity(year, terminal.KindHinterlandConveyor, stationTarget, p.factory.HinterlandConveyor); err != nil {
		return err
	}
	return p.investCapacity(year, terminal.KindUnloadingStation, stationTarget, p.factory.UnloadingStation)
}

func (p *Planner) report(year int, kinds ...terminal.Kind) {
	for _, k := range kinds {
		rep := p.registry.Report(k, year)
		p.observer.OnEvent(Event{Type: EventReport, Year: year, Kind: k, Report: &rep})
	}
}

// investBerths adds berth, quay or crane, strictly in that priority, until
// the planned berth occupancy is within the allowable occupancy. Demand whose
// mooring occupancy already reaches the allowable occupancy is rejected
// before anything is added.
func (p *Planner) investBerths(year int, d terminal.Demand, calls []terminal.VesselCalls) error {
	if floor := MooringOccupancy(calls, p.cfg.OperationalHours); floor >= p.cfg.AllowableBerthOccupancy {
		return errors.New(errors.ErrCodePlannerConfigInvalid, "demand cannot meet allowable berth occupancy").
			WithDetailf("year=%d mooring_occupancy=%.4f allowable=%.4f", year, floor, p.cfg.AllowableBerthOccupancy)
	}
	p.report(year, terminal.KindBerth, terminal.KindQuay, terminal.KindCrane)

	occupancy := p.BerthOccupancy(calls)
	for i := 0; ; i++ {
		triggered := occupancy > p.cfg.AllowableBerthOccupancy
		ev := Event{
			Type: EventTriggerEvaluated, Year: year, Kind: terminal.KindBerth,
			Value: occupancy, Target: p.cfg.AllowableBerthOccupancy, Triggered: triggered,
		}
		if math.IsInf(occupancy, 1) {
			ev.Value, ev.Unbounded = 0, true
		}
		p.observer.OnEvent(ev)
		if !triggered {
			return nil
		}
		if i >= p.cfg.MaxIterations {
			return errors.New(errors.ErrCodeExpansionDiverged, "berth occupancy still above target").
				WithDetailf("year=%d occupancy=%.4f iterations=%d", year, occupancy, i)
		}

		var e *terminal.Element
		switch {
		case !p.craneSlotFree():
			e = p.factory.Berth(year)
		case p.registry.Count(terminal.KindBerth) > p.registry.Count(terminal.KindQuay):
			length, depth, err := p.factory.QuayDimensions(d.Mix)
			if err != nil {
				return err
			}
			e = p.factory.Quay(year, length, depth)
		default:
			e = p.factory.Crane(year)
		}
		if err := p.add(year, e); err != nil {
			return err
		}
		occupancy = p.BerthOccupancy(calls)
	}
}

// investCapacity adds units of kind k until planned capacity reaches target.
func (p *Planner) investCapacity(year int, k terminal.Kind, target float64, build func(int) *terminal.Element) error {
	p.report(year, k)

	installed := p.registry.PlannedCapacity(k)
	p.observer.OnEvent(Event{
		Type: EventTriggerEvaluated, Year: year, Kind: k,
		Value: installed, Target: target, Triggered: installed < target,
	})
	for i := 0; installed < target; i++ {
		if i >= p.cfg.MaxIterations {
			return errors.New(errors.ErrCodeExpansionDiverged, "capacity still below target").
				WithDetailf("kind=%s year=%d installed=%.2f target=%.2f", k, year, installed, target)
		}
		e := build(year)
		if e.Capacity() <= 0 {
			return errors.New(errors.ErrCodePlannerConfigInvalid, "element has no capacity").WithDetail(k.String())
		}
		if err := p.add(year, e); err != nil {
			return err
		}
		installed = p.registry.PlannedCapacity(k)
	}
	return nil
}

func (p *Planner) add(year int, e *terminal.Element) error {
	cf, err := finance.BuildCashflow(*e, p.horizon)
	if err != nil {
		return err
	}
	if err := e.AttachCashflow(cf); err != nil {
		return err
	}
	if err := p.registry.Add(e); err != nil {
		return err
	}
	added := *e
	added.Cashflow = nil
	p.observer.OnEvent(Event{Type: EventElementAdded, Year: year, Kind: e.Kind, Element: &added})
	return nil
}
