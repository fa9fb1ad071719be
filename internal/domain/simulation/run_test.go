package simulation

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/terminal-planner/internal/domain/finance"
	"github.com/turtacn/terminal-planner/internal/domain/terminal"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

func TestRun_Lifecycle(t *testing.T) {
	run := NewRun("base", "abc", []byte(`{"name":"base"}`))
	assert.Equal(t, RunStatusPending, run.Status)
	assert.NotEmpty(t, run.ID)
	assert.Zero(t, run.Duration())

	_, ok := run.NPV()
	assert.False(t, ok)

	require.NoError(t, run.Start())
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.True(t, errors.IsCode(run.Start(), errors.CodeConflict))

	res := &Result{NPV: &finance.NPVTable{NPV: -1.5e6}}
	require.NoError(t, run.Complete(res))
	assert.Equal(t, RunStatusCompleted, run.Status)
	require.NotNil(t, run.CompletedAt)
	assert.GreaterOrEqual(t, run.Duration().Nanoseconds(), int64(0))

	npv, ok := run.NPV()
	assert.True(t, ok)
	assert.Equal(t, -1.5e6, npv)

	assert.Error(t, run.Fail(stderrors.New("late")))
	assert.Error(t, run.Complete(res))
}

func TestRun_CompleteRequiresResult(t *testing.T) {
	run := NewRun("base", "abc", nil)
	require.NoError(t, run.Start())
	assert.True(t, errors.IsCode(run.Complete(nil), errors.CodeInvalidParam))
}

func TestRun_Fail(t *testing.T) {
	run := NewRun("base", "abc", nil)
	require.NoError(t, run.Fail(stderrors.New("forecast missing")))
	assert.Equal(t, RunStatusFailed, run.Status)
	assert.Equal(t, "forecast missing", run.Error)
	assert.True(t, run.Status.IsTerminal())
	assert.Error(t, run.Start())
}

func TestRunStatus_Valid(t *testing.T) {
	for _, s := range []RunStatus{RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusFailed} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, RunStatus("paused").Valid())
	assert.False(t, RunStatusRunning.IsTerminal())
}

func TestResult_ElementsOf(t *testing.T) {
	res := &Result{Elements: []terminal.Element{
		{ID: "1", Kind: terminal.KindBerth},
		{ID: "2", Kind: terminal.KindCrane},
		{ID: "3", Kind: terminal.KindCrane},
	}}
	cranes := res.ElementsOf(terminal.KindCrane)
	require.Len(t, cranes, 2)
	assert.Equal(t, "2", cranes[0].ID)
	assert.Empty(t, res.ElementsOf(terminal.KindQuay))
}

func TestApplyOptions(t *testing.T) {
	o := ApplyOptions()
	assert.Equal(t, 20, o.Limit)

	o = ApplyOptions(WithPagination(-5, 500), WithStatus(RunStatusFailed))
	assert.Equal(t, 0, o.Offset)
	assert.Equal(t, 100, o.Limit)
	assert.Equal(t, RunStatusFailed, o.Status)
}
