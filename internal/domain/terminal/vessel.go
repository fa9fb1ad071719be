package terminal

import (
	"math"

	"github.com/turtacn/terminal-planner/pkg/errors"
)

// VesselClass is static reference data for one ship size class.
type VesselClass struct {
	Name          string  `yaml:"name" json:"name"`
	CallSize      float64 `yaml:"call_size" json:"call_size"` // t per call
	LOA           float64 `yaml:"loa" json:"loa"`             // m
	Draft         float64 `yaml:"draft" json:"draft"`         // m
	Beam          float64 `yaml:"beam" json:"beam"`           // m
	MaxCranes     int     `yaml:"max_cranes" json:"max_cranes"`
	MooringTime   float64 `yaml:"mooring_time" json:"mooring_time"`     // h
	DemurrageRate float64 `yaml:"demurrage_rate" json:"demurrage_rate"` // per hour waiting
}

// Validate rejects classes that cannot size a quay or a call count.
func (v VesselClass) Validate() error {
	if v.Name == "" {
		return errors.Validation("vessel class name is required")
	}
	if v.CallSize <= 0 {
		return errors.Validation("vessel call_size must be positive").WithDetail(v.Name)
	}
	if v.LOA <= 0 || v.Draft <= 0 {
		return errors.Validation("vessel loa and draft must be positive").WithDetail(v.Name)
	}
	if v.MooringTime < 0 || v.DemurrageRate < 0 {
		return errors.Validation("vessel mooring_time and demurrage_rate must be >= 0").WithDetail(v.Name)
	}
	return nil
}

// Vessel class names of the default table.
const (
	Handysize = "handysize"
	Handymax  = "handymax"
	Panamax   = "panamax"
)

// DefaultVesselClasses returns the dry-bulk reference classes.
func DefaultVesselClasses() []VesselClass {
	return []VesselClass{
		{Name: Handysize, CallSize: 35000, LOA: 130, Draft: 10, Beam: 24, MaxCranes: 2, MooringTime: 3, DemurrageRate: 600},
		{Name: Handymax, CallSize: 50000, LOA: 180, Draft: 11.5, Beam: 28, MaxCranes: 2, MooringTime: 3, DemurrageRate: 730},
		{Name: Panamax, CallSize: 65000, LOA: 220, Draft: 13, Beam: 32.2, MaxCranes: 3, MooringTime: 3, DemurrageRate: 730},
	}
}

// VesselShare is the percentage of a year's volume carried by one class.
type VesselShare struct {
	Class      string  `yaml:"class" json:"class"`
	Percentage float64 `yaml:"percentage" json:"percentage"`
}

// Demand is the forecast for one year.
type Demand struct {
	Year   int           `json:"year"`
	Volume float64       `json:"volume"`
	Mix    []VesselShare `json:"mix"`
}

// VesselCalls is the traffic one class generates in a year.
type VesselCalls struct {
	Class  VesselClass `json:"class"`
	Volume float64     `json:"volume"`
	Calls  int         `json:"calls"`
}

// Calls converts d into calls per class, in mix order:
// calls = ceil(volume * percentage / 100 / call_size).
func (p Parameters) Calls(d Demand) ([]VesselCalls, error) {
	if d.Volume < 0 {
		return nil, errors.Validation("forecast volume must be >= 0").WithDetailf("year=%d", d.Year)
	}
	out := make([]VesselCalls, 0, len(d.Mix))
	for _, share := range d.Mix {
		class, ok := p.Vessel(share.Class)
		if !ok {
			return nil, errors.Validation("unknown vessel class in mix").WithDetail(share.Class)
		}
		if share.Percentage < 0 {
			return nil, errors.Validation("vessel share must be >= 0").WithDetail(share.Class)
		}
		vol := d.Volume * share.Percentage / 100
		out = append(out, VesselCalls{
			Class:  class,
			Volume: vol,
			Calls:  int(math.Ceil(vol / class.CallSize)),
		})
	}
	return out, nil
}

// LargestVessel returns the maximum LOA and draft over the classes present in
// mix with a positive share. ok is false if no class is present.
func (p Parameters) LargestVessel(mix []VesselShare) (loa, draft float64, ok bool) {
	for _, share := range mix {
		if share.Percentage <= 0 {
			continue
		}
		class, found := p.Vessel(share.Class)
		if !found {
			continue
		}
		loa = math.Max(loa, class.LOA)
		draft = math.Max(draft, class.Draft)
		ok = true
	}
	return loa, draft, ok
}

// LargestCall returns the largest call size over the classes present in mix.
func (p Parameters) LargestCall(mix []VesselShare) float64 {
	largest := 0.0
	for _, share := range mix {
		if share.Percentage <= 0 {
			continue
		}
		if class, ok := p.Vessel(share.Class); ok {
			largest = math.Max(largest, class.CallSize)
		}
	}
	return largest
}
