package errors_test

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/terminal-planner/pkg/errors"
)

func TestNew_FieldsAreSetCorrectly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		code    errors.ErrorCode
		message string
	}{
		{"internal error", errors.CodeInternal, "unexpected failure"},
		{"run not found", errors.ErrCodeSimulationNotFound, "run 42 not found"},
		{"invalid param", errors.CodeInvalidParam, "lifecycle must be positive"},
		{"diverged", errors.ErrCodeExpansionDiverged, "berth loop exceeded iterations"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ae := errors.New(tc.code, tc.message)

			require.NotNil(t, ae)
			assert.Equal(t, tc.code, ae.Code)
			assert.Equal(t, tc.message, ae.Message)
			assert.Empty(t, ae.Detail)
			assert.Nil(t, ae.Cause)
			assert.Contains(t, ae.Stack, "errors_test.go")
		})
	}
}

func TestNewf_FormatsMessage(t *testing.T) {
	t.Parallel()

	ae := errors.Newf(errors.ErrCodeServerCountOutOfRange, "server count %d outside [1, %d]", 12, 10)
	assert.Equal(t, "server count 12 outside [1, 10]", ae.Message)
}

func TestWrap_NilErrReturnsNil(t *testing.T) {
	t.Parallel()

	assert.Nil(t, errors.Wrap(nil, errors.CodeInternal, "should not matter"))
	assert.Nil(t, errors.Wrapf(nil, errors.CodeInternal, "id=%d", 1))
}

func TestWrap_CauseChainIsPreserved(t *testing.T) {
	t.Parallel()

	root := stderrors.New("connection refused")
	wrapped := errors.Wrap(root, errors.ErrCodeDatabaseError, "insert simulation run")

	require.NotNil(t, wrapped)
	assert.Equal(t, errors.ErrCodeDatabaseError, wrapped.Code)
	assert.Equal(t, root, wrapped.Cause)
	assert.Equal(t, root, stderrors.Unwrap(wrapped))
	assert.True(t, stderrors.Is(wrapped, root))
}

func TestWrap_PreservesOriginalCodeWhenCodeUnknown(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodeSimulationNotFound, "not found")
	outer := errors.Wrap(inner, errors.CodeUnknown, "adding context")
	assert.Equal(t, errors.ErrCodeSimulationNotFound, outer.Code)

	outerf := errors.Wrapf(inner, errors.CodeUnknown, "run %s", "abc")
	assert.Equal(t, errors.ErrCodeSimulationNotFound, outerf.Code)
	assert.Equal(t, "run abc", outerf.Message)
}

func TestWrap_OverridesCodeWhenExplicit(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodeSimulationNotFound, "not found")
	outer := errors.Wrap(inner, errors.CodeInternal, "unexpected state")
	assert.Equal(t, errors.CodeInternal, outer.Code)
}

func TestError_Format(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  *errors.AppError
		want string
	}{
		{
			name: "message only",
			err:  errors.New(errors.ErrCodeScenarioInvalid, "invalid scenario"),
			want: "[SIM_001] invalid scenario",
		},
		{
			name: "with detail",
			err:  errors.New(errors.ErrCodeScenarioInvalid, "invalid scenario").WithDetail("lifecycle=0"),
			want: "[SIM_001] invalid scenario: lifecycle=0",
		},
		{
			name: "with cause",
			err:  errors.Wrap(stderrors.New("boom"), errors.ErrCodeCacheError, "cache get"),
			want: "[COMMON_013] cache get: boom",
		},
		{
			name: "empty message",
			err:  errors.New(errors.CodeInternal, ""),
			want: "[COMMON_001] ",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestWithDetail_SetsDetailOnCopy(t *testing.T) {
	t.Parallel()

	original := errors.NotFound("run not found")
	withDetail := original.WithDetail("id=42")

	assert.Empty(t, original.Detail)
	assert.Equal(t, "id=42", withDetail.Detail)
	assert.Equal(t, "year=2021", original.WithDetailf("year=%d", 2021).Detail)
}

func TestWithDetail_NilReceiverReturnsNil(t *testing.T) {
	t.Parallel()

	var ae *errors.AppError
	assert.Nil(t, ae.WithDetail("x"))
	assert.Nil(t, ae.WithCause(stderrors.New("x")))
}

func TestWithCause_DoesNotMutateOriginal(t *testing.T) {
	t.Parallel()

	original := errors.Internal("publish failed")
	cause := stderrors.New("broker down")
	withCause := original.WithCause(cause)

	assert.Nil(t, original.Cause)
	assert.Equal(t, cause, withCause.Cause)
}

func TestIsCode(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodeServerCountOutOfRange, "n=11")
	mid := errors.Wrap(inner, errors.ErrCodeFitFailed, "inverse")
	outer := fmt.Errorf("planner: %w", errors.Wrap(mid, errors.ErrCodeExpansionDiverged, "berth loop"))

	assert.True(t, errors.IsCode(outer, errors.ErrCodeExpansionDiverged))
	assert.True(t, errors.IsCode(outer, errors.ErrCodeFitFailed))
	assert.True(t, errors.IsCode(outer, errors.ErrCodeServerCountOutOfRange))
	assert.False(t, errors.IsCode(outer, errors.CodeNotFound))
	assert.False(t, errors.IsCode(nil, errors.CodeInternal))
	assert.False(t, errors.IsCode(stderrors.New("plain"), errors.CodeInternal))
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	assert.True(t, errors.IsNotFound(errors.NotFound("x")))
	assert.True(t, errors.IsNotFound(errors.New(errors.ErrCodeSimulationNotFound, "x")))
	assert.False(t, errors.IsNotFound(errors.Internal("x")))
}

func TestGetCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, errors.CodeOK, errors.GetCode(nil))
	assert.Equal(t, errors.CodeUnknown, errors.GetCode(stderrors.New("plain")))
	assert.Equal(t, errors.CodeUnknown, errors.GetCode(fmt.Errorf("ctx: %w", stderrors.New("plain"))))
	assert.Equal(t, errors.CodeConflict,
		errors.GetCode(fmt.Errorf("ctx: %w", errors.Conflict("dup"))))
}

func TestConvenienceFactories_ReturnCorrectCode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  *errors.AppError
		code errors.ErrorCode
	}{
		{"NotFound", errors.NotFound("m"), errors.CodeNotFound},
		{"InvalidParam", errors.InvalidParam("m"), errors.CodeInvalidParam},
		{"InvalidState", errors.InvalidState("m"), errors.CodeConflict},
		{"Internal", errors.Internal("m"), errors.CodeInternal},
		{"Conflict", errors.Conflict("m"), errors.CodeConflict},
		{"Validation", errors.Validation("m"), errors.ErrCodeValidation},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.code, tc.err.Code)
			assert.Equal(t, "m", tc.err.Message)
			assert.True(t, strings.HasPrefix(tc.err.Error(), "["+string(tc.code)+"]"))
		})
	}
}

func TestStdlib_ErrorsAs_DeepChain(t *testing.T) {
	t.Parallel()

	ae := errors.New(errors.ErrCodeHorizonInvalid, "lifecycle=0")
	wrapped := fmt.Errorf("layer2: %w", fmt.Errorf("layer1: %w", ae))

	var target *errors.AppError
	require.True(t, stderrors.As(wrapped, &target))
	assert.Equal(t, errors.ErrCodeHorizonInvalid, target.Code)
}
