package planning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/terminal-planner/internal/domain/terminal"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

func TestLinearForecast_Demand(t *testing.T) {
	f := LinearForecast{
		Start:  2019,
		Base:   1e6,
		Growth: 2.5e5,
		Mix:    []terminal.VesselShare{{Class: terminal.Handymax, Percentage: 100}},
	}

	d, err := f.Demand(2019)
	require.NoError(t, err)
	assert.Equal(t, 1e6, d.Volume)

	d, err = f.Demand(2023)
	require.NoError(t, err)
	assert.Equal(t, 2e6, d.Volume)
	assert.Equal(t, 2023, d.Year)

	d.Mix[0].Percentage = 0
	again, _ := f.Demand(2023)
	assert.Equal(t, 100.0, again.Mix[0].Percentage)
}

func TestLinearForecast_NeverNegative(t *testing.T) {
	f := LinearForecast{Start: 2019, Base: 1e5, Growth: -1e5}
	d, err := f.Demand(2025)
	require.NoError(t, err)
	assert.Zero(t, d.Volume)
}

func TestTableForecast(t *testing.T) {
	mix := []terminal.VesselShare{{Class: terminal.Handysize, Percentage: 100}}
	override := []terminal.VesselShare{{Class: terminal.Panamax, Percentage: 100}}
	f, err := NewTableForecast([]YearVolume{
		{Year: 2020, Volume: 2e6, Mix: override},
		{Year: 2019, Volume: 1e6},
	}, mix)
	require.NoError(t, err)

	assert.Equal(t, []int{2019, 2020}, f.Years())

	d, err := f.Demand(2019)
	require.NoError(t, err)
	assert.Equal(t, 1e6, d.Volume)
	assert.Equal(t, terminal.Handysize, d.Mix[0].Class)

	d, err = f.Demand(2020)
	require.NoError(t, err)
	assert.Equal(t, terminal.Panamax, d.Mix[0].Class)

	_, err = f.Demand(2021)
	assert.True(t, errors.IsCode(err, errors.ErrCodeForecastFailed))
}

func TestNewTableForecast_DuplicateYear(t *testing.T) {
	_, err := NewTableForecast([]YearVolume{{Year: 2019}, {Year: 2019}}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeScenarioInvalid))
}

func TestValidateMix(t *testing.T) {
	params := terminal.DefaultParameters()
	tests := []struct {
		name string
		mix  []terminal.VesselShare
		ok   bool
	}{
		{"single class", []terminal.VesselShare{{Class: terminal.Handysize, Percentage: 100}}, true},
		{"split", []terminal.VesselShare{
			{Class: terminal.Handysize, Percentage: 30},
			{Class: terminal.Handymax, Percentage: 30},
			{Class: terminal.Panamax, Percentage: 40},
		}, true},
		{"empty", nil, false},
		{"unknown class", []terminal.VesselShare{{Class: "capesize", Percentage: 100}}, false},
		{"negative share", []terminal.VesselShare{
			{Class: terminal.Handysize, Percentage: 110},
			{Class: terminal.Handymax, Percentage: -10},
		}, false},
		{"does not sum to 100", []terminal.VesselShare{{Class: terminal.Handysize, Percentage: 90}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMix(params, tt.mix)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeScenarioInvalid))
		})
	}
}
