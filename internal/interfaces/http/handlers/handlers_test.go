package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/terminal-planner/internal/application/planning"
	"github.com/turtacn/terminal-planner/internal/domain/finance"
	"github.com/turtacn/terminal-planner/internal/domain/simulation"
	"github.com/turtacn/terminal-planner/internal/domain/terminal"
	"github.com/turtacn/terminal-planner/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/terminal-planner/internal/infrastructure/storage/minio"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// --- Mocks ---

type mockSimulationService struct {
	mock.Mock
	events chan planning.StreamEvent
}

func (m *mockSimulationService) Simulate(ctx context.Context, req *planning.SimulateRequest) (*simulation.Run, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*simulation.Run), args.Error(1)
}

func (m *mockSimulationService) GetRun(ctx context.Context, id string) (*simulation.Run, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*simulation.Run), args.Error(1)
}

func (m *mockSimulationService) GetNPV(ctx context.Context, id string) (*finance.NPVTable, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*finance.NPVTable), args.Error(1)
}

func (m *mockSimulationService) ListRuns(ctx context.Context, opts ...simulation.QueryOption) ([]*simulation.Run, error) {
	args := m.Called(ctx, simulation.ApplyOptions(opts...))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*simulation.Run), args.Error(1)
}

func (m *mockSimulationService) Elements(ctx context.Context, id string, kind terminal.Kind) ([]terminal.Element, error) {
	args := m.Called(ctx, id, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]terminal.Element), args.Error(1)
}

func (m *mockSimulationService) Subscribe() (<-chan planning.StreamEvent, func()) {
	m.Called()
	return m.events, func() {}
}

type mockReportLister struct {
	mock.Mock
}

func (m *mockReportLister) Links(ctx context.Context, runID string) ([]minio.ReportLink, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]minio.ReportLink), args.Error(1)
}

type countingRecorder struct{ codes []string }

func (r *countingRecorder) RecordError(code string) { r.codes = append(r.codes, code) }

// --- Helpers ---

func completedRun(t *testing.T) *simulation.Run {
	t.Helper()
	run := simulation.NewRun("base", "fp-1", json.RawMessage(`{"name":"base"}`))
	require.NoError(t, run.Start())
	require.NoError(t, run.Complete(&simulation.Result{
		Horizon: finance.Horizon{Start: 2020, Lifecycle: 2},
		NPV:     &finance.NPVTable{NPV: -1.5e6},
	}))
	return run
}

func newTestEngine(svc planning.SimulationService, reports ReportLister, rec ErrorRecorder) *gin.Engine {
	r := gin.New()
	if rec != nil {
		r.Use(UseErrorRecorder(rec))
	}
	h := NewSimulationHandler(svc, reports, 1024, logging.NewNopLogger())
	h.RegisterRoutes(r.Group("/api/v1/simulations"))
	return r
}

func do(r *gin.Engine, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// --- Create ---

func TestCreate_Success(t *testing.T) {
	svc := new(mockSimulationService)
	run := completedRun(t)
	svc.On("Simulate", mock.Anything, mock.MatchedBy(func(req *planning.SimulateRequest) bool {
		return req.Scenario.Name == "base" && req.Scenario.StartYear == 2020 && !req.NoCache
	})).Return(run, nil)

	w := do(newTestEngine(svc, nil, nil), http.MethodPost, "/api/v1/simulations",
		[]byte("name: base\nstart_year: 2020\n"))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/api/v1/simulations/"+run.ID, w.Header().Get("Location"))
	var got simulation.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, run.ID, got.ID)
	svc.AssertExpectations(t)
}

func TestCreate_JSONBodyAndNoCache(t *testing.T) {
	svc := new(mockSimulationService)
	svc.On("Simulate", mock.Anything, mock.MatchedBy(func(req *planning.SimulateRequest) bool {
		return req.Scenario.Name == "json" && req.NoCache
	})).Return(completedRun(t), nil)

	w := do(newTestEngine(svc, nil, nil), http.MethodPost, "/api/v1/simulations?no_cache=true",
		[]byte(`{"name":"json","lifecycle":5}`))

	assert.Equal(t, http.StatusCreated, w.Code)
	svc.AssertExpectations(t)
}

func TestCreate_UnknownField(t *testing.T) {
	svc := new(mockSimulationService)
	rec := &countingRecorder{}

	w := do(newTestEngine(svc, nil, rec), http.MethodPost, "/api/v1/simulations", []byte("bogus: 1\n"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(errors.ErrCodeScenarioInvalid), decodeError(t, w).Code)
	assert.Equal(t, []string{string(errors.ErrCodeScenarioInvalid)}, rec.codes)
	svc.AssertNotCalled(t, "Simulate", mock.Anything, mock.Anything)
}

func TestCreate_EmptyBody(t *testing.T) {
	w := do(newTestEngine(new(mockSimulationService), nil, nil), http.MethodPost, "/api/v1/simulations", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "scenario document is empty", decodeError(t, w).Message)
}

func TestCreate_BodyTooLarge(t *testing.T) {
	w := do(newTestEngine(new(mockSimulationService), nil, nil), http.MethodPost, "/api/v1/simulations",
		bytes.Repeat([]byte("a"), 4096))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(errors.ErrCodeBadRequest), decodeError(t, w).Code)
}

func TestCreate_ServiceErrorHidesCause(t *testing.T) {
	svc := new(mockSimulationService)
	svc.On("Simulate", mock.Anything, mock.Anything).
		Return(nil, errors.New(errors.ErrCodeDatabaseError, "pq: connection refused on 10.0.0.4"))

	w := do(newTestEngine(svc, nil, nil), http.MethodPost, "/api/v1/simulations", []byte("name: x\n"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, string(errors.ErrCodeDatabaseError), resp.Code)
	assert.NotContains(t, resp.Message, "10.0.0.4")
}

// --- List ---

func TestList_DefaultPagination(t *testing.T) {
	svc := new(mockSimulationService)
	run := completedRun(t)
	svc.On("ListRuns", mock.Anything, simulation.QueryOptions{Offset: 0, Limit: 20}).
		Return([]*simulation.Run{run}, nil)

	w := do(newTestEngine(svc, nil, nil), http.MethodGet, "/api/v1/simulations", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Runs, 1)
	assert.Equal(t, run.ID, resp.Runs[0].ID)
	assert.Equal(t, "completed", resp.Runs[0].Status)
	require.NotNil(t, resp.Runs[0].NPV)
	assert.InDelta(t, -1.5e6, *resp.Runs[0].NPV, 1e-6)
	assert.Equal(t, 20, resp.Limit)
	svc.AssertExpectations(t)
}

func TestList_StatusAndClampedLimit(t *testing.T) {
	svc := new(mockSimulationService)
	svc.On("ListRuns", mock.Anything, simulation.QueryOptions{Offset: 10, Limit: 100, Status: simulation.RunStatus("failed")}).
		Return([]*simulation.Run{}, nil)

	w := do(newTestEngine(svc, nil, nil), http.MethodGet, "/api/v1/simulations?status=failed&offset=10&limit=500", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotNil(t, resp.Runs)
	assert.Empty(t, resp.Runs)
	assert.Equal(t, 100, resp.Limit)
	assert.Equal(t, 10, resp.Offset)
}

func TestList_UnknownStatus(t *testing.T) {
	w := do(newTestEngine(new(mockSimulationService), nil, nil), http.MethodGet, "/api/v1/simulations?status=sleeping", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "sleeping", decodeError(t, w).Detail)
}

// --- Get / NPV / Elements ---

func TestGet_NotFound(t *testing.T) {
	svc := new(mockSimulationService)
	svc.On("GetRun", mock.Anything, "missing").
		Return(nil, errors.New(errors.ErrCodeSimulationNotFound, "simulation run not found"))

	w := do(newTestEngine(svc, nil, nil), http.MethodGet, "/api/v1/simulations/missing", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(errors.ErrCodeSimulationNotFound), decodeError(t, w).Code)
}

func TestNPV_Success(t *testing.T) {
	svc := new(mockSimulationService)
	svc.On("GetNPV", mock.Anything, "r1").Return(&finance.NPVTable{
		WACCReal: 0.07,
		Rows:     []finance.NPVRow{{Year: 2020, Capex: -10, PV: -10, CumPV: -10}},
		NPV:      -10,
	}, nil)

	w := do(newTestEngine(svc, nil, nil), http.MethodGet, "/api/v1/simulations/r1/npv", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var table finance.NPVTable
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &table))
	assert.Equal(t, -10.0, table.NPV)
	assert.Len(t, table.Rows, 1)
}

func TestNPV_RunNotCompleted(t *testing.T) {
	svc := new(mockSimulationService)
	svc.On("GetNPV", mock.Anything, "r1").Return(nil, errors.InvalidState("run has not completed"))

	w := do(newTestEngine(svc, nil, nil), http.MethodGet, "/api/v1/simulations/r1/npv", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "run has not completed", decodeError(t, w).Message)
}

func TestElements_KindFilter(t *testing.T) {
	svc := new(mockSimulationService)
	svc.On("Elements", mock.Anything, "r1", terminal.Kind("berth")).
		Return([]terminal.Element{{ID: "e1", Name: "Berth_01", Kind: terminal.Kind("berth")}}, nil)

	w := do(newTestEngine(svc, nil, nil), http.MethodGet, "/api/v1/simulations/r1/elements?kind=berth", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		RunID    string             `json:"run_id"`
		Elements []terminal.Element `json:"elements"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "r1", body.RunID)
	require.Len(t, body.Elements, 1)
	assert.Equal(t, "Berth_01", body.Elements[0].Name)
}

// --- Reports ---

func TestReports_StorageDisabled(t *testing.T) {
	w := do(newTestEngine(new(mockSimulationService), nil, nil), http.MethodGet, "/api/v1/simulations/r1/reports", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReports_Links(t *testing.T) {
	svc := new(mockSimulationService)
	run := completedRun(t)
	svc.On("GetRun", mock.Anything, run.ID).Return(run, nil)
	reports := new(mockReportLister)
	reports.On("Links", mock.Anything, run.ID).Return([]minio.ReportLink{
		{Name: "npv.csv", Key: "runs/" + run.ID + "/npv.csv", Size: 120, URL: "http://minio/x", At: time.Now()},
	}, nil)

	w := do(newTestEngine(svc, reports, nil), http.MethodGet, "/api/v1/simulations/"+run.ID+"/reports", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "npv.csv")
	reports.AssertExpectations(t)
}

func TestReports_UnknownRun(t *testing.T) {
	svc := new(mockSimulationService)
	svc.On("GetRun", mock.Anything, "nope").
		Return(nil, errors.New(errors.ErrCodeSimulationNotFound, "simulation run not found"))
	reports := new(mockReportLister)

	w := do(newTestEngine(svc, reports, nil), http.MethodGet, "/api/v1/simulations/nope/reports", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	reports.AssertNotCalled(t, "Links", mock.Anything, mock.Anything)
}

// --- Health ---

func TestHealth_Liveness(t *testing.T) {
	h := NewHealthHandler("1.2.3", 0)
	r := gin.New()
	r.GET("/healthz", h.Liveness)

	w := do(r, http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
}

func TestHealth_Readiness(t *testing.T) {
	up := CheckFunc{N: "postgres", F: func(context.Context) error { return nil }}
	down := CheckFunc{N: "redis", F: func(context.Context) error { return errors.New(errors.ErrCodeCacheError, "dial tcp: refused") }}

	t.Run("all up", func(t *testing.T) {
		r := gin.New()
		r.GET("/readyz", NewHealthHandler("v", time.Second, up).Readiness)
		w := do(r, http.MethodGet, "/readyz", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "ready", resp.Status)
		assert.Equal(t, "up", resp.Components["postgres"].Status)
	})

	t.Run("one down", func(t *testing.T) {
		r := gin.New()
		r.GET("/readyz", NewHealthHandler("v", time.Second, up, down).Readiness)
		w := do(r, http.MethodGet, "/readyz", nil)
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "not_ready", resp.Status)
		assert.Equal(t, "down", resp.Components["redis"].Status)
		assert.Contains(t, resp.Components["redis"].Error, "refused")
	})

	t.Run("timeout", func(t *testing.T) {
		slow := CheckFunc{N: "kafka", F: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}}
		r := gin.New()
		r.GET("/readyz", NewHealthHandler("v", 20*time.Millisecond, slow).Readiness)
		w := do(r, http.MethodGet, "/readyz", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}
