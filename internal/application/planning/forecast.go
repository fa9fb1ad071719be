package planning

import (
	"math"
	"sort"

	"github.com/turtacn/terminal-planner/internal/domain/terminal"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

// Forecaster returns the cargo demand of a year.
type Forecaster interface {
	Demand(year int) (terminal.Demand, error)
}

// LinearForecast grows volume by a fixed amount per year from Start.
type LinearForecast struct {
	Start  int
	Base   float64
	Growth float64
	Mix    []terminal.VesselShare
}

// Demand implements Forecaster. Volumes never go below zero.
func (f LinearForecast) Demand(year int) (terminal.Demand, error) {
	volume := f.Base + f.Growth*float64(year-f.Start)
	return terminal.Demand{
		Year:   year,
		Volume: math.Max(volume, 0),
		Mix:    append([]terminal.VesselShare(nil), f.Mix...),
	}, nil
}

// TableForecast serves explicit per-year volumes. A year may override the
// default mix.
type TableForecast struct {
	rows map[int]terminal.Demand
	mix  []terminal.VesselShare
}

// YearVolume is one row of a TableForecast.
type YearVolume struct {
	Year   int                    `yaml:"year" json:"year"`
	Volume float64                `yaml:"volume" json:"volume"`
	Mix    []terminal.VesselShare `yaml:"mix,omitempty" json:"mix,omitempty"`
}

// NewTableForecast indexes rows by year. Duplicate years are rejected.
func NewTableForecast(rows []YearVolume, mix []terminal.VesselShare) (*TableForecast, error) {
	t := &TableForecast{rows: make(map[int]terminal.Demand, len(rows)), mix: mix}
	for _, r := range rows {
		if _, dup := t.rows[r.Year]; dup {
			return nil, errors.New(errors.ErrCodeScenarioInvalid, "duplicate forecast year").WithDetailf("year=%d", r.Year)
		}
		m := r.Mix
		if len(m) == 0 {
			m = mix
		}
		t.rows[r.Year] = terminal.Demand{Year: r.Year, Volume: r.Volume, Mix: m}
	}
	return t, nil
}

// Demand implements Forecaster.
func (t *TableForecast) Demand(year int) (terminal.Demand, error) {
	d, ok := t.rows[year]
	if !ok {
		return terminal.Demand{}, errors.New(errors.ErrCodeForecastFailed, "no forecast for year").WithDetailf("year=%d", year)
	}
	d.Mix = append([]terminal.VesselShare(nil), d.Mix...)
	return d, nil
}

// Years returns the covered years in ascending order.
func (t *TableForecast) Years() []int {
	out := make([]int, 0, len(t.rows))
	for y := range t.rows {
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}

// ValidateMix checks that mix names known classes and sums to 100 percent.
func ValidateMix(params terminal.Parameters, mix []terminal.VesselShare) error {
	if len(mix) == 0 {
		return errors.New(errors.ErrCodeScenarioInvalid, "vessel mix is empty")
	}
	total := 0.0
	for _, s := range mix {
		if _, ok := params.Vessel(s.Class); !ok {
			return errors.New(errors.ErrCodeScenarioInvalid, "unknown vessel class").WithDetail(s.Class)
		}
		if s.Percentage < 0 {
			return errors.New(errors.ErrCodeScenarioInvalid, "vessel share must be >= 0").WithDetail(s.Class)
		}
		total += s.Percentage
	}
	if math.Abs(total-100) > 1e-6 {
		return errors.New(errors.ErrCodeScenarioInvalid, "vessel mix must sum to 100").WithDetailf("sum=%v", total)
	}
	return nil
}
