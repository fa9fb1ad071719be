package terminal

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/turtacn/terminal-planner/pkg/errors"
)

// QuayParams sizes and prices a quay wall.
type QuayParams struct {
	DeliveryTime     int     `yaml:"delivery_time" json:"delivery_time"`
	Lifespan         int     `yaml:"lifespan" json:"lifespan"`
	MobilisationMin  float64 `yaml:"mobilisation_min" json:"mobilisation_min"`
	MobilisationPerc float64 `yaml:"mobilisation_perc" json:"mobilisation_perc"`
	MaintenancePerc  float64 `yaml:"maintenance_perc" json:"maintenance_perc"`
	InsurancePerc    float64 `yaml:"insurance_perc" json:"insurance_perc"`
	Freeboard        float64 `yaml:"freeboard" json:"freeboard"`
	GijtConstant     float64 `yaml:"gijt_constant" json:"gijt_constant"`
	GijtCoefficient  float64 `yaml:"gijt_coefficient" json:"gijt_coefficient"`
	// Depth allowances added to the largest draft.
	MaxSinkage   float64 `yaml:"max_sinkage" json:"max_sinkage"`
	WaveMotion   float64 `yaml:"wave_motion" json:"wave_motion"`
	SafetyMargin float64 `yaml:"safety_margin" json:"safety_margin"`
}

// BerthParams describes a berth. A berth has no cost of its own.
type BerthParams struct {
	DeliveryTime int `yaml:"delivery_time" json:"delivery_time"`
	MaxCranes    int `yaml:"max_cranes" json:"max_cranes"`
}

// CraneParams describes the cyclic unloader installed on berths.
type CraneParams struct {
	Type             string  `yaml:"type" json:"type"`
	DeliveryTime     int     `yaml:"delivery_time" json:"delivery_time"`
	Lifespan         int     `yaml:"lifespan" json:"lifespan"`
	UnitRate         float64 `yaml:"unit_rate" json:"unit_rate"`
	MobilisationPerc float64 `yaml:"mobilisation_perc" json:"mobilisation_perc"`
	MaintenancePerc  float64 `yaml:"maintenance_perc" json:"maintenance_perc"`
	InsurancePerc    float64 `yaml:"insurance_perc" json:"insurance_perc"`
	Consumption      float64 `yaml:"consumption" json:"consumption"`
	Crew             float64 `yaml:"crew" json:"crew"`
	LiftingCapacity  float64 `yaml:"lifting_capacity" json:"lifting_capacity"`
	HourlyCycles     float64 `yaml:"hourly_cycles" json:"hourly_cycles"`
	EffFact          float64 `yaml:"eff_fact" json:"eff_fact"`
}

// StorageParams describes a silo.
type StorageParams struct {
	DeliveryTime    int     `yaml:"delivery_time" json:"delivery_time"`
	Lifespan        int     `yaml:"lifespan" json:"lifespan"`
	UnitRate        float64 `yaml:"unit_rate" json:"unit_rate"`
	MobilisationMin float64 `yaml:"mobilisation_min" json:"mobilisation_min"`
	MaintenancePerc float64 `yaml:"maintenance_perc" json:"maintenance_perc"`
	InsurancePerc   float64 `yaml:"insurance_perc" json:"insurance_perc"`
	Consumption     float64 `yaml:"consumption" json:"consumption"`
	Capacity        float64 `yaml:"capacity" json:"capacity"`
}

// ConveyorParams describes a quay or hinterland conveyor.
type ConveyorParams struct {
	DeliveryTime           int     `yaml:"delivery_time" json:"delivery_time"`
	Lifespan               int     `yaml:"lifespan" json:"lifespan"`
	Length                 float64 `yaml:"length" json:"length"`
	UnitRate               float64 `yaml:"unit_rate" json:"unit_rate"`
	Mobilisation           float64 `yaml:"mobilisation" json:"mobilisation"`
	MaintenancePerc        float64 `yaml:"maintenance_perc" json:"maintenance_perc"`
	InsurancePerc          float64 `yaml:"insurance_perc" json:"insurance_perc"`
	ConsumptionConstant    float64 `yaml:"consumption_constant" json:"consumption_constant"`
	ConsumptionCoefficient float64 `yaml:"consumption_coefficient" json:"consumption_coefficient"`
	CapacitySteps          float64 `yaml:"capacity_steps" json:"capacity_steps"`
}

// StationParams describes a hinterland unloading station.
type StationParams struct {
	DeliveryTime    int     `yaml:"delivery_time" json:"delivery_time"`
	Lifespan        int     `yaml:"lifespan" json:"lifespan"`
	UnitRate        float64 `yaml:"unit_rate" json:"unit_rate"`
	Mobilisation    float64 `yaml:"mobilisation" json:"mobilisation"`
	MaintenancePerc float64 `yaml:"maintenance_perc" json:"maintenance_perc"`
	InsurancePerc   float64 `yaml:"insurance_perc" json:"insurance_perc"`
	Consumption     float64 `yaml:"consumption" json:"consumption"`
	CapacitySteps   float64 `yaml:"capacity_steps" json:"capacity_steps"`
}

// LabourParams holds the terminal-wide staffing costs.
type LabourParams struct {
	InternationalSalary float64 `yaml:"international_salary" json:"international_salary"`
	InternationalStaff  float64 `yaml:"international_staff" json:"international_staff"`
	LocalSalary         float64 `yaml:"local_salary" json:"local_salary"`
	LocalStaff          float64 `yaml:"local_staff" json:"local_staff"`
	ShiftLength         float64 `yaml:"shift_length" json:"shift_length"`
}

// AnnualCost is the terminal-wide labour line.
func (l LabourParams) AnnualCost() float64 {
	return l.InternationalStaff*l.InternationalSalary + l.LocalStaff*l.LocalSalary
}

// Parameters is the full read-only parameter table used by a simulation.
type Parameters struct {
	Quay               QuayParams     `yaml:"quay" json:"quay"`
	Berth              BerthParams    `yaml:"berth" json:"berth"`
	Crane              CraneParams    `yaml:"crane" json:"crane"`
	Storage            StorageParams  `yaml:"storage" json:"storage"`
	QuayConveyor       ConveyorParams `yaml:"quay_conveyor" json:"quay_conveyor"`
	HinterlandConveyor ConveyorParams `yaml:"hinterland_conveyor" json:"hinterland_conveyor"`
	UnloadingStation   StationParams  `yaml:"unloading_station" json:"unloading_station"`
	Labour             LabourParams   `yaml:"labour" json:"labour"`
	Vessels            []VesselClass  `yaml:"vessels" json:"vessels"`
}

// DefaultParameters returns the agribulk reference table.
func DefaultParameters() Parameters {
	conveyor := ConveyorParams{
		DeliveryTime:           1,
		Lifespan:               10,
		Length:                 500,
		UnitRate:               6,
		Mobilisation:           30000,
		MaintenancePerc:        0.10,
		InsurancePerc:          0.01,
		ConsumptionConstant:    81,
		ConsumptionCoefficient: 0.08,
		CapacitySteps:          400,
	}
	return Parameters{
		Quay: QuayParams{
			DeliveryTime:     2,
			Lifespan:         50,
			MobilisationMin:  2500000,
			MobilisationPerc: 0.02,
			MaintenancePerc:  0.01,
			InsurancePerc:    0.01,
			Freeboard:        4,
			GijtConstant:     757.20,
			GijtCoefficient:  1.2878,
			MaxSinkage:       0.5,
			WaveMotion:       0.5,
			SafetyMargin:     0.5,
		},
		Berth: BerthParams{DeliveryTime: 1, MaxCranes: 3},
		Crane: CraneParams{
			Type:             "harbour_crane",
			DeliveryTime:     1,
			Lifespan:         40,
			UnitRate:         14000000,
			MobilisationPerc: 0.15,
			MaintenancePerc:  0.02,
			InsurancePerc:    0.01,
			Consumption:      210,
			Crew:             3,
			LiftingCapacity:  40,
			HourlyCycles:     40,
			EffFact:          0.55,
		},
		Storage: StorageParams{
			DeliveryTime:    1,
			Lifespan:        30,
			UnitRate:        60,
			MobilisationMin: 200000,
			MaintenancePerc: 0.02,
			InsurancePerc:   0.01,
			Consumption:     0.002,
			Capacity:        6000,
		},
		QuayConveyor:       conveyor,
		HinterlandConveyor: conveyor,
		UnloadingStation: StationParams{
			DeliveryTime:    1,
			Lifespan:        15,
			UnitRate:        4000,
			Mobilisation:    100000,
			MaintenancePerc: 0.02,
			InsurancePerc:   0.01,
			Consumption:     0.25,
			CapacitySteps:   300,
		},
		Labour: LabourParams{
			InternationalSalary: 105000,
			InternationalStaff:  4,
			LocalSalary:         18850,
			LocalStaff:          10,
			ShiftLength:         6.5,
		},
		Vessels: DefaultVesselClasses(),
	}
}

// LoadParameters reads a YAML parameter file on top of DefaultParameters, so
// a file only needs the values it changes. A vessels list replaces the
// default list entirely.
func LoadParameters(path string) (Parameters, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Parameters{}, errors.Wrap(err, errors.CodeInvalidParam, "read parameter file")
	}
	return ParseParameters(raw)
}

// ParseParameters decodes a YAML parameter document on top of the defaults.
func ParseParameters(raw []byte) (Parameters, error) {
	p := DefaultParameters()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !stderrors.Is(err, io.EOF) {
		return Parameters{}, errors.Wrap(err, errors.ErrCodeSerialization, "decode parameter file")
	}
	if err := p.Validate(); err != nil {
		return Parameters{}, err
	}
	return p, nil
}

// Validate rejects tables that would produce undefined arithmetic.
func (p Parameters) Validate() error {
	check := func(ok bool, format string, args ...interface{}) error {
		if ok {
			return nil
		}
		return errors.Validation("invalid parameter table").WithDetail(fmt.Sprintf(format, args...))
	}
	checks := []error{
		check(p.Berth.MaxCranes >= 1, "berth.max_cranes must be >= 1"),
		check(p.Crane.LiftingCapacity > 0 && p.Crane.HourlyCycles > 0 && p.Crane.EffFact > 0,
			"crane lifting_capacity, hourly_cycles and eff_fact must be positive"),
		check(p.Crane.UnitRate >= 0, "crane.unit_rate must be >= 0"),
		check(p.Labour.ShiftLength > 0, "labour.shift_length must be positive"),
		check(p.Storage.Capacity > 0, "storage.capacity must be positive"),
		check(p.QuayConveyor.CapacitySteps > 0, "quay_conveyor.capacity_steps must be positive"),
		check(p.HinterlandConveyor.CapacitySteps > 0, "hinterland_conveyor.capacity_steps must be positive"),
		check(p.UnloadingStation.CapacitySteps > 0, "unloading_station.capacity_steps must be positive"),
		check(p.Quay.GijtConstant > 0, "quay.gijt_constant must be positive"),
		check(len(p.Vessels) > 0, "at least one vessel class is required"),
	}
	for _, d := range []int{
		p.Quay.DeliveryTime, p.Berth.DeliveryTime, p.Crane.DeliveryTime, p.Storage.DeliveryTime,
		p.QuayConveyor.DeliveryTime, p.HinterlandConveyor.DeliveryTime, p.UnloadingStation.DeliveryTime,
	} {
		checks = append(checks, check(d >= 0, "delivery_time must be >= 0, got %d", d))
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	seen := make(map[string]struct{}, len(p.Vessels))
	for _, v := range p.Vessels {
		if err := v.Validate(); err != nil {
			return err
		}
		if _, dup := seen[v.Name]; dup {
			return errors.Validation("duplicate vessel class").WithDetail(v.Name)
		}
		seen[v.Name] = struct{}{}
	}
	return nil
}

// Vessel returns the vessel class called name.
func (p Parameters) Vessel(name string) (VesselClass, bool) {
	for _, v := range p.Vessels {
		if v.Name == name {
			return v, true
		}
	}
	return VesselClass{}, false
}
