// Package terminal holds the physical side of the planner: the infrastructure
// elements a terminal is built from, the append-only registry that owns them,
// vessel reference data and the per-kind parameter tables.
package terminal

import (
	"github.com/turtacn/terminal-planner/pkg/errors"
)

// Kind discriminates element behaviour.
type Kind string

const (
	KindBerth              Kind = "berth"
	KindQuay               Kind = "quay"
	KindCrane              Kind = "crane"
	KindStorage            Kind = "storage"
	KindQuayConveyor       Kind = "quay_conveyor"
	KindHinterlandConveyor Kind = "hinterland_conveyor"
	KindUnloadingStation   Kind = "unloading_station"
)

// Kinds lists every kind in planning order.
func Kinds() []Kind {
	return []Kind{
		KindBerth, KindQuay, KindCrane, KindQuayConveyor,
		KindStorage, KindHinterlandConveyor, KindUnloadingStation,
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

func (k Kind) String() string { return string(k) }

// Cashflow is the per-year series of one element over the simulation horizon.
// All slices are aligned with Years.
type Cashflow struct {
	Years       []int     `json:"years"`
	Capex       []float64 `json:"capex"`
	Maintenance []float64 `json:"maintenance"`
	Insurance   []float64 `json:"insurance"`
	Energy      []float64 `json:"energy"`
	Labour      []float64 `json:"labour"`
}

// Len returns the number of years covered.
func (c *Cashflow) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Years)
}

// Element is one infrastructure unit. YearOnline, Capex and the opex scalars
// are fixed by the constructor in Factory; Cashflow is attached exactly once.
// A nil opex pointer means the element has no such cost.
type Element struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind Kind   `json:"kind"`

	// Quay
	Length float64 `json:"length,omitempty"`
	Depth  float64 `json:"depth,omitempty"`
	// Berth
	MaxCranes int `json:"max_cranes,omitempty"`
	// Crane
	LiftingCapacity float64 `json:"lifting_capacity,omitempty"`
	HourlyCycles    float64 `json:"hourly_cycles,omitempty"`
	EffFact         float64 `json:"eff_fact,omitempty"`
	// Storage
	StorageCapacity float64 `json:"storage_capacity,omitempty"`
	// Conveyors and unloading stations, in t/h
	CapacitySteps float64 `json:"capacity_steps,omitempty"`

	DeliveryTime int `json:"delivery_time"`
	Lifespan     int `json:"lifespan,omitempty"`
	YearOnline   int `json:"year_online"`

	Capex       float64  `json:"capex"`
	Maintenance *float64 `json:"maintenance,omitempty"`
	Insurance   *float64 `json:"insurance,omitempty"`
	Energy      *float64 `json:"energy,omitempty"`
	Labour      *float64 `json:"labour,omitempty"`

	Cashflow *Cashflow `json:"cashflow,omitempty"`
}

// Amount returns a pointer to v, for optional opex fields.
func Amount(v float64) *float64 { return &v }

// ValueOf returns the value of an optional amount, zero when absent.
func ValueOf(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// EffectiveRate is the crane service rate in t/h.
func (e *Element) EffectiveRate() float64 {
	if e.Kind != KindCrane {
		return 0
	}
	return e.LiftingCapacity * e.HourlyCycles * e.EffFact
}

// Capacity is the nominal capacity of the element in the unit its trigger is
// measured in: crane slots for berths, metres for quays, t/h for cranes,
// conveyors and stations, tonnes for storage.
func (e *Element) Capacity() float64 {
	switch e.Kind {
	case KindBerth:
		return float64(e.MaxCranes)
	case KindQuay:
		return e.Length
	case KindCrane:
		return e.EffectiveRate()
	case KindStorage:
		return e.StorageCapacity
	case KindQuayConveyor, KindHinterlandConveyor, KindUnloadingStation:
		return e.CapacitySteps
	}
	return 0
}

// OnlineIn reports whether the element operates in year.
func (e *Element) OnlineIn(year int) bool {
	return year >= e.YearOnline
}

// AttachCashflow sets the element's series. A second call is rejected.
func (e *Element) AttachCashflow(cf Cashflow) error {
	if e.Cashflow != nil {
		return errors.InvalidState("cashflow already attached").WithDetail(e.Name)
	}
	e.Cashflow = &cf
	return nil
}

// Validate checks the invariants every element must satisfy before it enters
// a registry.
func (e *Element) Validate() error {
	if e.ID == "" {
		return errors.Validation("element id is required")
	}
	if !e.Kind.Valid() {
		return errors.Validation("unknown element kind").WithDetail(string(e.Kind))
	}
	if e.DeliveryTime < 0 {
		return errors.Validation("delivery time must be >= 0").WithDetail(e.Name)
	}
	if e.Capex < 0 {
		return errors.Validation("capex must be >= 0").WithDetail(e.Name)
	}
	for _, v := range []*float64{e.Maintenance, e.Insurance, e.Energy, e.Labour} {
		if v != nil && *v < 0 {
			return errors.Validation("opex must be >= 0").WithDetail(e.Name)
		}
	}
	if e.Capacity() < 0 {
		return errors.Validation("capacity must be >= 0").WithDetail(e.Name)
	}
	return nil
}
