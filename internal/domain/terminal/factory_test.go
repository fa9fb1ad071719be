package terminal

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFactory(t *testing.T) *Factory {
	t.Helper()
	n := 0
	f, err := NewFactory(DefaultParameters(), 4680, 0.8, WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}))
	require.NoError(t, err)
	return f
}

func TestNewFactory_RejectsInvalidInputs(t *testing.T) {
	_, err := NewFactory(DefaultParameters(), 0, 0.8)
	assert.Error(t, err)

	_, err = NewFactory(DefaultParameters(), 4680, 1.5)
	assert.Error(t, err)

	bad := DefaultParameters()
	bad.Berth.MaxCranes = 0
	_, err = NewFactory(bad, 4680, 0.8)
	assert.Error(t, err)
}

func TestFactory_Berth(t *testing.T) {
	f := newTestFactory(t)
	b := f.Berth(2019)

	assert.Equal(t, KindBerth, b.Kind)
	assert.Equal(t, "id-1", b.ID)
	assert.Equal(t, "berth_01", b.Name)
	assert.Equal(t, 3, b.MaxCranes)
	assert.Equal(t, 2020, b.YearOnline)
	assert.Zero(t, b.Capex)
	assert.Nil(t, b.Maintenance)
	assert.Nil(t, b.Labour)
	assert.Equal(t, "berth_02", f.Berth(2019).Name)
}

func TestFactory_QuayDimensions(t *testing.T) {
	f := newTestFactory(t)

	length, depth, err := f.QuayDimensions([]VesselShare{
		{Class: Handysize, Percentage: 50},
		{Class: Panamax, Percentage: 50},
	})
	require.NoError(t, err)
	assert.InDelta(t, 220.0, length, 1e-9)
	assert.InDelta(t, 14.5, depth, 1e-9)

	length, depth, err = f.QuayDimensions([]VesselShare{
		{Class: Handysize, Percentage: 100},
		{Class: Panamax, Percentage: 0},
	})
	require.NoError(t, err)
	assert.InDelta(t, 130.0, length, 1e-9)
	assert.InDelta(t, 11.5, depth, 1e-9)

	_, _, err = f.QuayDimensions(nil)
	assert.Error(t, err)
}

func TestFactory_Quay(t *testing.T) {
	f := newTestFactory(t)
	q := f.Quay(2019, 220, 14.5)

	assert.Equal(t, KindQuay, q.Kind)
	assert.Equal(t, 2021, q.YearOnline)
	assert.Equal(t, 2, q.DeliveryTime)
	// unit rate 68352, mobilisation floored at 2.5M
	assert.InDelta(t, 17537440.0, q.Capex, 1e-6)
	assert.InDelta(t, 175374.4, ValueOf(q.Maintenance), 1e-6)
	assert.InDelta(t, 175374.4, ValueOf(q.Insurance), 1e-6)
	assert.Nil(t, q.Energy)
	assert.Nil(t, q.Labour)
	assert.InDelta(t, 220.0, q.Capacity(), 1e-9)
}

func TestFactory_Crane(t *testing.T) {
	f := newTestFactory(t)
	c := f.Crane(2020)

	assert.Equal(t, 2021, c.YearOnline)
	assert.InDelta(t, 16100000.0, c.Capex, 1e-6)
	assert.InDelta(t, 322000.0, ValueOf(c.Maintenance), 1e-6)
	assert.InDelta(t, 161000.0, ValueOf(c.Insurance), 1e-6)
	assert.InDelta(t, 786240.0, ValueOf(c.Energy), 1e-6)
	assert.InDelta(t, 2160.0, ValueOf(c.Labour), 1e-6)
	assert.InDelta(t, 880.0, c.EffectiveRate(), 1e-9)
	assert.InDelta(t, 880.0, c.Capacity(), 1e-9)
}

func TestFactory_StorageConveyorStation(t *testing.T) {
	f := newTestFactory(t)

	s := f.Storage(2019)
	assert.InDelta(t, 560000.0, s.Capex, 1e-6)
	assert.InDelta(t, 11200.0, ValueOf(s.Maintenance), 1e-6)
	assert.InDelta(t, 5600.0, ValueOf(s.Insurance), 1e-6)
	assert.InDelta(t, 56160.0, ValueOf(s.Energy), 1e-6)
	assert.InDelta(t, 6000.0, s.Capacity(), 1e-9)

	qc := f.QuayConveyor(2019)
	assert.Equal(t, KindQuayConveyor, qc.Kind)
	assert.InDelta(t, 1230000.0, qc.Capex, 1e-6)
	assert.InDelta(t, 123000.0, ValueOf(qc.Maintenance), 1e-6)
	assert.InDelta(t, 12300.0, ValueOf(qc.Insurance), 1e-6)
	assert.InDelta(t, 423072.0, ValueOf(qc.Energy), 1e-6)
	assert.InDelta(t, 400.0, qc.Capacity(), 1e-9)

	hc := f.HinterlandConveyor(2019)
	assert.Equal(t, KindHinterlandConveyor, hc.Kind)
	assert.Equal(t, "hinterland_conveyor_01", hc.Name)

	st := f.UnloadingStation(2019)
	assert.InDelta(t, 1300000.0, st.Capex, 1e-6)
	assert.InDelta(t, 26000.0, ValueOf(st.Maintenance), 1e-6)
	assert.InDelta(t, 13000.0, ValueOf(st.Insurance), 1e-6)
	assert.InDelta(t, 351000.0, ValueOf(st.Energy), 1e-6)
	assert.Nil(t, st.Labour)
}
