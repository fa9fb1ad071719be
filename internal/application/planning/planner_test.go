package planning

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/terminal-planner/internal/domain/finance"
	"github.com/turtacn/terminal-planner/internal/domain/terminal"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

var testHorizon = finance.Horizon{Start: 2019, Lifecycle: 5}

func testPlannerConfig() PlannerConfig {
	return PlannerConfig{
		OperationalHours:          4680,
		AllowableBerthOccupancy:   0.4,
		AllowableStationOccupancy: 0.6,
		StorageFraction:           0.1,
		MaxIterations:             1000,
	}
}

func handysizeDemand(year int, volume float64) terminal.Demand {
	return terminal.Demand{
		Year:   year,
		Volume: volume,
		Mix:    []terminal.VesselShare{{Class: terminal.Handysize, Percentage: 100}},
	}
}

func newTestPlanner(t *testing.T, cfg PlannerConfig, obs Observer) *Planner {
	t.Helper()
	n := 0
	factory, err := terminal.NewFactory(terminal.DefaultParameters(), cfg.OperationalHours, 0.8,
		terminal.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("el-%03d", n)
		}))
	require.NoError(t, err)
	p, err := NewPlanner(cfg, testHorizon, factory, terminal.NewRegistry(), obs)
	require.NoError(t, err)
	return p
}

func kindsAdded(rec *Recorder) []terminal.Kind {
	var out []terminal.Kind
	for _, e := range rec.OfType(EventElementAdded) {
		out = append(out, e.Kind)
	}
	return out
}

func TestPlannerConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PlannerConfig)
	}{
		{"zero hours", func(c *PlannerConfig) { c.OperationalHours = 0 }},
		{"zero berth occupancy", func(c *PlannerConfig) { c.AllowableBerthOccupancy = 0 }},
		{"station occupancy above one", func(c *PlannerConfig) { c.AllowableStationOccupancy = 1.2 }},
		{"negative storage fraction", func(c *PlannerConfig) { c.StorageFraction = -0.1 }},
		{"no iterations", func(c *PlannerConfig) { c.MaxIterations = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testPlannerConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodePlannerConfigInvalid))
		})
	}
	assert.NoError(t, testPlannerConfig().Validate())
}

func TestNewPlanner_RequiresCollaborators(t *testing.T) {
	_, err := NewPlanner(testPlannerConfig(), testHorizon, nil, terminal.NewRegistry(), nil)
	assert.Error(t, err)

	_, err = NewPlanner(testPlannerConfig(), finance.Horizon{Start: 2019}, nil, nil, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeHorizonInvalid))
}

func TestOccupancy(t *testing.T) {
	class, _ := terminal.DefaultParameters().Vessel(terminal.Handysize)
	calls := []terminal.VesselCalls{{Class: class, Volume: 1e6, Calls: 29}}

	t.Run("one crane", func(t *testing.T) {
		got := Occupancy(calls, 880, 4680)
		assert.InDelta(t, 29*(35000.0/880+3)/4680, got, 1e-9)
	})
	t.Run("no cranes is unbounded", func(t *testing.T) {
		assert.True(t, Occupancy(calls, 0, 4680) > 1e300)
	})
	t.Run("no traffic is zero", func(t *testing.T) {
		empty := []terminal.VesselCalls{{Class: class, Calls: 0}}
		assert.Zero(t, Occupancy(empty, 0, 4680))
		assert.Zero(t, Occupancy(nil, 880, 4680))
	})
}

func TestPlanner_BuildsBerthQuayCraneFromEmpty(t *testing.T) {
	rec := &Recorder{}
	p := newTestPlanner(t, testPlannerConfig(), rec)

	require.NoError(t, p.Plan(2019, handysizeDemand(2019, 1e6)))

	added := kindsAdded(rec)
	require.GreaterOrEqual(t, len(added), 3)
	assert.Equal(t, []terminal.Kind{terminal.KindBerth, terminal.KindQuay, terminal.KindCrane}, added[:3])

	reg := p.Registry()
	assert.Equal(t, 1, reg.Count(terminal.KindBerth))
	assert.Equal(t, 1, reg.Count(terminal.KindQuay))
	assert.Equal(t, 1, reg.Count(terminal.KindCrane))
	assert.Equal(t, 3, reg.Count(terminal.KindQuayConveyor))
	assert.Equal(t, 17, reg.Count(terminal.KindStorage))
	assert.Equal(t, 1, reg.Count(terminal.KindHinterlandConveyor))
	assert.Equal(t, 2, reg.Count(terminal.KindUnloadingStation))

	quay := reg.FindByKind(terminal.KindQuay)[0]
	assert.Equal(t, 2021, quay.YearOnline)
	assert.Equal(t, 130.0, quay.Length)
}

func TestPlanner_BerthPriority(t *testing.T) {
	tests := []struct {
		name   string
		volume float64
		want   []terminal.Kind
	}{
		{
			name:   "cranes fill the berth first",
			volume: 3e6,
			want: []terminal.Kind{
				terminal.KindBerth, terminal.KindQuay,
				terminal.KindCrane, terminal.KindCrane, terminal.KindCrane,
			},
		},
		{
			name:   "second berth once slots are full",
			volume: 5e6,
			want: []terminal.Kind{
				terminal.KindBerth, terminal.KindQuay,
				terminal.KindCrane, terminal.KindCrane, terminal.KindCrane,
				terminal.KindBerth, terminal.KindQuay, terminal.KindCrane,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &Recorder{}
			p := newTestPlanner(t, testPlannerConfig(), rec)
			require.NoError(t, p.Plan(2019, handysizeDemand(2019, tt.volume)))
			assert.Equal(t, tt.want, kindsAdded(rec)[:len(tt.want)])
		})
	}
}

func TestPlanner_TerminatesWithinAllowableOccupancy(t *testing.T) {
	for _, volume := range []float64{2e5, 1e6, 2.5e6, 4e6, 8e6, 1.2e7} {
		t.Run(fmt.Sprintf("%.0f", volume), func(t *testing.T) {
			p := newTestPlanner(t, testPlannerConfig(), nil)
			d := handysizeDemand(2019, volume)
			require.NoError(t, p.Plan(2019, d))

			calls, err := terminal.DefaultParameters().Calls(d)
			require.NoError(t, err)
			assert.LessOrEqual(t, p.BerthOccupancy(calls), 0.4)
			assert.GreaterOrEqual(t, p.Registry().PlannedCapacity(terminal.KindStorage), 0.1*volume)
			assert.GreaterOrEqual(t, p.Registry().PlannedCapacity(terminal.KindUnloadingStation), volume/4680/0.6)
		})
	}
}

func TestPlanner_NoAdditionsWhenUnderTarget(t *testing.T) {
	rec := &Recorder{}
	p := newTestPlanner(t, testPlannerConfig(), rec)
	require.NoError(t, p.Plan(2019, handysizeDemand(2019, 1e6)))
	before := p.Registry().Len()
	addedBefore := len(rec.OfType(EventElementAdded))

	require.NoError(t, p.Plan(2020, handysizeDemand(2020, 1e6)))

	assert.Equal(t, before, p.Registry().Len())
	assert.Len(t, rec.OfType(EventElementAdded), addedBefore)
	for _, e := range rec.OfType(EventTriggerEvaluated) {
		if e.Year == 2020 {
			assert.False(t, e.Triggered, "kind %s", e.Kind)
		}
	}
}

func TestPlanner_NoTrafficAddsNothing(t *testing.T) {
	rec := &Recorder{}
	p := newTestPlanner(t, testPlannerConfig(), rec)
	require.NoError(t, p.Plan(2019, handysizeDemand(2019, 0)))

	assert.Zero(t, p.Registry().Len())
	assert.Empty(t, rec.OfType(EventElementAdded))
}

func TestPlanner_StorageCoversLargestCall(t *testing.T) {
	p := newTestPlanner(t, testPlannerConfig(), nil)
	require.NoError(t, p.Plan(2019, handysizeDemand(2019, 1e5)))

	assert.GreaterOrEqual(t, p.Registry().PlannedCapacity(terminal.KindStorage), 35000.0)
}

func TestMooringOccupancy(t *testing.T) {
	calls := []terminal.VesselCalls{{Class: terminal.VesselClass{CallSize: 35000, MooringTime: 3}, Calls: 715}}
	assert.InDelta(t, 715*3/4680.0, MooringOccupancy(calls, 4680), 1e-12)
	assert.Zero(t, MooringOccupancy(nil, 4680))
}

func TestPlanner_InfeasibleDemandFailsFast(t *testing.T) {
	rec := &Recorder{}
	p := newTestPlanner(t, testPlannerConfig(), rec)

	// 25 Mt of handysize traffic moors for 715 * 3 h, above 40 % of 4680 h.
	err := p.Plan(2019, handysizeDemand(2019, 25e6))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodePlannerConfigInvalid))
	assert.Contains(t, err.Error(), "mooring_occupancy=0.4583")
	assert.Zero(t, p.Registry().Len())
	assert.Empty(t, rec.OfType(EventElementAdded))
}

func TestPlanner_FeasibleHighDemandConverges(t *testing.T) {
	p := newTestPlanner(t, testPlannerConfig(), nil)
	d := handysizeDemand(2019, 15e6)
	require.NoError(t, p.Plan(2019, d))

	calls, err := terminal.DefaultParameters().Calls(d)
	require.NoError(t, err)
	assert.LessOrEqual(t, p.BerthOccupancy(calls), 0.4)
	assert.Equal(t, p.Registry().Count(terminal.KindBerth), p.Registry().Count(terminal.KindQuay))
}

func TestPlanner_DivergenceIsReported(t *testing.T) {
	cfg := testPlannerConfig()
	cfg.MaxIterations = 2
	p := newTestPlanner(t, cfg, nil)

	err := p.Plan(2019, handysizeDemand(2019, 1e6))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeExpansionDiverged))
	assert.Equal(t, 2, p.Registry().Len())
}

func TestPlanner_EveryElementCarriesCashflow(t *testing.T) {
	p := newTestPlanner(t, testPlannerConfig(), nil)
	require.NoError(t, p.Plan(2019, handysizeDemand(2019, 1e6)))

	for _, e := range p.Registry().All() {
		require.NotNil(t, e.Cashflow, e.Name)
		assert.Equal(t, testHorizon.Lifecycle, e.Cashflow.Len())
	}
}

func TestPlanner_EventOrder(t *testing.T) {
	rec := &Recorder{}
	p := newTestPlanner(t, testPlannerConfig(), rec)
	require.NoError(t, p.Plan(2019, handysizeDemand(2019, 1e6)))

	var reported []terminal.Kind
	for _, e := range rec.OfType(EventReport) {
		reported = append(reported, e.Kind)
	}
	assert.Equal(t, []terminal.Kind{
		terminal.KindBerth, terminal.KindQuay, terminal.KindCrane,
		terminal.KindQuayConveyor, terminal.KindStorage,
		terminal.KindHinterlandConveyor, terminal.KindUnloadingStation,
	}, reported)

	first := rec.OfType(EventTriggerEvaluated)[0]
	assert.Equal(t, terminal.KindBerth, first.Kind)
	assert.True(t, first.Unbounded)
	assert.True(t, first.Triggered)
	assert.Zero(t, first.Value)

	for _, e := range rec.OfType(EventElementAdded) {
		assert.Nil(t, e.Element.Cashflow)
	}
	_, err := json.Marshal(rec.Events())
	assert.NoError(t, err)
}

func TestPlanner_Reproducible(t *testing.T) {
	run := func() []string {
		p := newTestPlanner(t, testPlannerConfig(), nil)
		for year := 2019; year < 2024; year++ {
			require.NoError(t, p.Plan(year, handysizeDemand(year, 1e6+float64(year-2019)*5e5)))
		}
		var out []string
		for _, e := range p.Registry().All() {
			out = append(out, fmt.Sprintf("%s/%s/%d", e.ID, e.Kind, e.YearOnline))
		}
		return out
	}
	assert.Equal(t, run(), run())
}
