package terminal

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/turtacn/terminal-planner/pkg/errors"
)

// Factory creates fully priced elements. Every constructor fixes YearOnline
// to year + delivery time and sets capex and opex from the parameter table.
type Factory struct {
	params            Parameters
	operationalHours  float64
	energyUtilisation float64
	newID             func() string
	seq               map[Kind]int
}

// FactoryOption customises a Factory.
type FactoryOption func(*Factory)

// WithIDGenerator replaces the uuid generator, mostly for tests.
func WithIDGenerator(gen func() string) FactoryOption {
	return func(f *Factory) { f.newID = gen }
}

// NewFactory validates its inputs and returns a Factory.
func NewFactory(params Parameters, operationalHours, energyUtilisation float64, opts ...FactoryOption) (*Factory, error) {
	if operationalHours <= 0 {
		return nil, errors.Validation("operational hours must be positive")
	}
	if energyUtilisation < 0 || energyUtilisation > 1 {
		return nil, errors.Validation("energy utilisation must be in [0, 1]")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	f := &Factory{
		params:            params,
		operationalHours:  operationalHours,
		energyUtilisation: energyUtilisation,
		newID:             uuid.NewString,
		seq:               make(map[Kind]int),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Parameters returns the table the factory prices with.
func (f *Factory) Parameters() Parameters { return f.params }

func (f *Factory) base(k Kind, year, delivery, lifespan int) *Element {
	f.seq[k]++
	return &Element{
		ID:           f.newID(),
		Name:         fmt.Sprintf("%s_%02d", k, f.seq[k]),
		Kind:         k,
		DeliveryTime: delivery,
		Lifespan:     lifespan,
		YearOnline:   year + delivery,
	}
}

// Berth returns a berth. Berths only provide crane slots and carry no cost.
func (f *Factory) Berth(year int) *Element {
	p := f.params.Berth
	e := f.base(KindBerth, year, p.DeliveryTime, 0)
	e.MaxCranes = p.MaxCranes
	return e
}

// QuayDimensions returns the length and depth of a quay for the largest
// vessel in mix: length is the largest LOA and depth the largest draft plus
// sinkage, wave motion and safety margin.
func (f *Factory) QuayDimensions(mix []VesselShare) (length, depth float64, err error) {
	loa, draft, ok := f.params.LargestVessel(mix)
	if !ok {
		return 0, 0, errors.Validation("vessel mix has no class with a positive share")
	}
	q := f.params.Quay
	return loa, draft + q.MaxSinkage + q.WaveMotion + q.SafetyMargin, nil
}

// Quay returns a quay wall of the given dimensions priced with the Gijt
// unit-rate curve.
func (f *Factory) Quay(year int, length, depth float64) *Element {
	p := f.params.Quay
	e := f.base(KindQuay, year, p.DeliveryTime, p.Lifespan)
	e.Length = length
	e.Depth = depth

	unitRate := math.Trunc(p.GijtConstant * math.Pow(depth*2+p.Freeboard, p.GijtCoefficient))
	mobilisation := math.Trunc(math.Max(length*unitRate*p.MobilisationPerc, p.MobilisationMin))
	e.Capex = math.Trunc(length*unitRate + mobilisation)
	e.Maintenance = Amount(e.Capex * p.MaintenancePerc)
	e.Insurance = Amount(e.Capex * p.InsurancePerc)
	return e
}

// Crane returns a harbour crane with energy and labour opex.
func (f *Factory) Crane(year int) *Element {
	p := f.params.Crane
	e := f.base(KindCrane, year, p.DeliveryTime, p.Lifespan)
	e.LiftingCapacity = p.LiftingCapacity
	e.HourlyCycles = p.HourlyCycles
	e.EffFact = p.EffFact

	e.Capex = math.Trunc(p.UnitRate * (1 + p.MobilisationPerc))
	e.Maintenance = Amount(e.Capex * p.MaintenancePerc)
	e.Insurance = Amount(e.Capex * p.InsurancePerc)
	e.Energy = Amount(p.Consumption * f.operationalHours * f.energyUtilisation)
	e.Labour = Amount(p.Crew * f.operationalHours / f.params.Labour.ShiftLength)
	return e
}

// Storage returns a silo.
func (f *Factory) Storage(year int) *Element {
	p := f.params.Storage
	e := f.base(KindStorage, year, p.DeliveryTime, p.Lifespan)
	e.StorageCapacity = p.Capacity

	e.Capex = p.UnitRate*p.Capacity + p.MobilisationMin
	e.Maintenance = Amount(e.Capex * p.MaintenancePerc)
	e.Insurance = Amount(e.Capex * p.InsurancePerc)
	e.Energy = Amount(p.Consumption * p.Capacity * f.operationalHours)
	return e
}

// QuayConveyor returns a conveyor between the quay and storage.
func (f *Factory) QuayConveyor(year int) *Element {
	return f.conveyor(KindQuayConveyor, f.params.QuayConveyor, year)
}

// HinterlandConveyor returns a conveyor between storage and the hinterland.
func (f *Factory) HinterlandConveyor(year int) *Element {
	return f.conveyor(KindHinterlandConveyor, f.params.HinterlandConveyor, year)
}

func (f *Factory) conveyor(k Kind, p ConveyorParams, year int) *Element {
	e := f.base(k, year, p.DeliveryTime, p.Lifespan)
	e.CapacitySteps = p.CapacitySteps
	e.Length = p.Length

	e.Capex = math.Trunc(p.CapacitySteps*p.UnitRate*p.Length + p.Mobilisation)
	e.Maintenance = Amount(e.Capex * p.MaintenancePerc)
	e.Insurance = Amount(e.Capex * p.InsurancePerc)
	consumption := p.CapacitySteps*p.ConsumptionCoefficient + p.ConsumptionConstant
	e.Energy = Amount(consumption * f.operationalHours * f.energyUtilisation)
	return e
}

// UnloadingStation returns a hinterland unloading station.
func (f *Factory) UnloadingStation(year int) *Element {
	p := f.params.UnloadingStation
	e := f.base(KindUnloadingStation, year, p.DeliveryTime, p.Lifespan)
	e.CapacitySteps = p.CapacitySteps

	e.Capex = math.Trunc(p.CapacitySteps*p.UnitRate + p.Mobilisation)
	e.Maintenance = Amount(e.Capex * p.MaintenancePerc)
	e.Insurance = Amount(e.Capex * p.InsurancePerc)
	e.Energy = Amount(p.Consumption * p.CapacitySteps * f.operationalHours)
	return e
}
