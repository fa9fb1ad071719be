package planning

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/turtacn/terminal-planner/internal/config"
	"github.com/turtacn/terminal-planner/internal/domain/finance"
	"github.com/turtacn/terminal-planner/internal/domain/terminal"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

// Forecast kinds.
const (
	ForecastLinear = "linear"
	ForecastTable  = "table"
)

// ForecastSpec describes the demand of a scenario. A linear forecast uses
// Base and Growth; a table forecast lists every year explicitly.
type ForecastSpec struct {
	Type   string                 `yaml:"type" json:"type"`
	Base   float64                `yaml:"base,omitempty" json:"base,omitempty"`
	Growth float64                `yaml:"growth,omitempty" json:"growth,omitempty"`
	Mix    []terminal.VesselShare `yaml:"mix" json:"mix"`
	Years  []YearVolume           `yaml:"years,omitempty" json:"years,omitempty"`
}

// Scenario is one simulation request. Zero values are filled from the
// service configuration by ApplyDefaults.
type Scenario struct {
	Name                      string        `yaml:"name" json:"name"`
	StartYear                 int           `yaml:"start_year" json:"start_year"`
	Lifecycle                 int           `yaml:"lifecycle" json:"lifecycle"`
	OperationalHours          float64       `yaml:"operational_hours" json:"operational_hours"`
	AllowableBerthOccupancy   float64       `yaml:"allowable_berth_occupancy" json:"allowable_berth_occupancy"`
	AllowableStationOccupancy float64       `yaml:"allowable_station_occupancy" json:"allowable_station_occupancy"`
	EnergyUtilisation         float64       `yaml:"energy_utilisation" json:"energy_utilisation"`
	StorageFraction           float64       `yaml:"storage_fraction" json:"storage_fraction"`
	HandlingFee               float64       `yaml:"handling_fee" json:"handling_fee"`
	MaxIterations             int           `yaml:"max_iterations" json:"max_iterations"`
	Forecast                  ForecastSpec  `yaml:"forecast" json:"forecast"`
	Finance                   *finance.WACC `yaml:"finance,omitempty" json:"finance,omitempty"`
}

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeScenarioInvalid, "read scenario file")
	}
	return ParseScenario(raw)
}

// ParseScenario decodes a YAML (or JSON) scenario document. Unknown fields
// are rejected.
func ParseScenario(raw []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil, errors.New(errors.ErrCodeScenarioInvalid, "scenario document is empty")
		}
		return nil, errors.Wrap(err, errors.ErrCodeScenarioInvalid, "decode scenario")
	}
	return &s, nil
}

// ApplyDefaults fills zero-valued fields from the service configuration.
func (s *Scenario) ApplyDefaults(sim config.SimulationConfig, fin config.FinanceConfig) {
	if s.StartYear == 0 {
		s.StartYear = sim.StartYear
	}
	if s.Lifecycle == 0 {
		s.Lifecycle = sim.Lifecycle
	}
	if s.OperationalHours == 0 {
		s.OperationalHours = sim.OperationalHours
	}
	if s.AllowableBerthOccupancy == 0 {
		s.AllowableBerthOccupancy = sim.AllowableBerthOccupancy
	}
	if s.AllowableStationOccupancy == 0 {
		s.AllowableStationOccupancy = sim.AllowableStationOccupancy
	}
	if s.EnergyUtilisation == 0 {
		s.EnergyUtilisation = sim.EnergyUtilisation
	}
	if s.StorageFraction == 0 {
		s.StorageFraction = sim.StorageFraction
	}
	if s.HandlingFee == 0 {
		s.HandlingFee = sim.HandlingFee
	}
	if s.MaxIterations == 0 {
		s.MaxIterations = sim.MaxIterations
	}
	if s.Forecast.Type == "" {
		s.Forecast.Type = ForecastLinear
	}
	if s.Finance == nil {
		s.Finance = &finance.WACC{
			Gearing:      fin.Gearing,
			EquityReturn: fin.EquityReturn,
			DebtReturn:   fin.DebtReturn,
			TaxRate:      fin.TaxRate,
			Inflation:    fin.Inflation,
		}
	}
}

// Horizon returns the simulated period.
func (s *Scenario) Horizon() finance.Horizon {
	return finance.Horizon{Start: s.StartYear, Lifecycle: s.Lifecycle}
}

// PlannerConfig returns the planner targets of the scenario.
func (s *Scenario) PlannerConfig() PlannerConfig {
	return PlannerConfig{
		OperationalHours:          s.OperationalHours,
		AllowableBerthOccupancy:   s.AllowableBerthOccupancy,
		AllowableStationOccupancy: s.AllowableStationOccupancy,
		StorageFraction:           s.StorageFraction,
		MaxIterations:             s.MaxIterations,
	}
}

// DriverConfig returns the run-wide settings of the scenario.
func (s *Scenario) DriverConfig() DriverConfig {
	cfg := DriverConfig{Horizon: s.Horizon(), HandlingFee: s.HandlingFee, WACC: finance.DefaultWACC()}
	if s.Finance != nil {
		cfg.WACC = *s.Finance
	}
	return cfg
}

// Validate checks the scenario against a parameter table before any
// arithmetic runs.
func (s *Scenario) Validate(params terminal.Parameters) error {
	if err := s.Horizon().Validate(); err != nil {
		return err
	}
	if err := s.PlannerConfig().Validate(); err != nil {
		return err
	}
	if s.EnergyUtilisation < 0 || s.EnergyUtilisation > 1 {
		return errors.New(errors.ErrCodeScenarioInvalid, "energy utilisation must be in [0, 1]")
	}
	if s.HandlingFee < 0 {
		return errors.New(errors.ErrCodeScenarioInvalid, "handling fee must be >= 0")
	}
	if s.Finance != nil {
		if err := s.Finance.Validate(); err != nil {
			return err
		}
	}

	f := s.Forecast
	switch f.Type {
	case ForecastLinear:
		if f.Base < 0 {
			return errors.New(errors.ErrCodeScenarioInvalid, "forecast base must be >= 0")
		}
		return ValidateMix(params, f.Mix)
	case ForecastTable:
		if len(f.Mix) > 0 {
			if err := ValidateMix(params, f.Mix); err != nil {
				return err
			}
		}
		covered := make(map[int]bool, len(f.Years))
		for _, y := range f.Years {
			if y.Volume < 0 {
				return errors.New(errors.ErrCodeScenarioInvalid, "forecast volume must be >= 0").WithDetailf("year=%d", y.Year)
			}
			mix := y.Mix
			if len(mix) == 0 {
				mix = f.Mix
			}
			if err := ValidateMix(params, mix); err != nil {
				return err
			}
			covered[y.Year] = true
		}
		for _, year := range s.Horizon().Years() {
			if !covered[year] {
				return errors.New(errors.ErrCodeScenarioInvalid, "forecast table does not cover horizon").WithDetailf("year=%d", year)
			}
		}
		return nil
	default:
		return errors.New(errors.ErrCodeScenarioInvalid, "unknown forecast type").WithDetail(f.Type)
	}
}

// Forecaster builds the demand provider of the scenario.
func (s *Scenario) Forecaster() (Forecaster, error) {
	switch s.Forecast.Type {
	case ForecastLinear:
		return LinearForecast{Start: s.StartYear, Base: s.Forecast.Base, Growth: s.Forecast.Growth, Mix: s.Forecast.Mix}, nil
	case ForecastTable:
		return NewTableForecast(s.Forecast.Years, s.Forecast.Mix)
	}
	return nil, errors.New(errors.ErrCodeScenarioInvalid, "unknown forecast type").WithDetail(s.Forecast.Type)
}

// Fingerprint identifies the scenario together with the parameter table, so
// identical requests map to the same cached result.
func (s *Scenario) Fingerprint(params terminal.Parameters) (string, error) {
	raw, err := json.Marshal(struct {
		Scenario   *Scenario           `json:"scenario"`
		Parameters terminal.Parameters `json:"parameters"`
	}{s, params})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "fingerprint scenario")
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
