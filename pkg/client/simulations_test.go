package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/terminal-planner/internal/application/planning"
	"github.com/turtacn/terminal-planner/internal/domain/terminal"
	"github.com/turtacn/terminal-planner/internal/infrastructure/monitoring/logging"
	apihttp "github.com/turtacn/terminal-planner/internal/interfaces/http"
	"github.com/turtacn/terminal-planner/internal/interfaces/http/handlers"
	"github.com/turtacn/terminal-planner/internal/interfaces/http/middleware"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

const yamlScenario = `
name: sdk
start_year: 2020
lifecycle: 3
forecast:
  type: linear
  base: 1000000
  mix:
    - class: handysize
      percentage: 50
    - class: handymax
      percentage: 50
`

func TestCreate_RequestShape(t *testing.T) {
	tests := []struct {
		name        string
		scenario    string
		opts        *CreateOptions
		contentType string
		noCache     string
	}{
		{"yaml", yamlScenario, nil, "application/yaml", ""},
		{"json no cache", `{"name":"sdk"}`, &CreateOptions{NoCache: true}, "application/json", "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/api/v1/simulations", r.URL.Path)
				assert.Equal(t, tt.contentType, r.Header.Get("Content-Type"))
				assert.Equal(t, tt.noCache, r.URL.Query().Get("no_cache"))
				body, _ := io.ReadAll(r.Body)
				assert.Equal(t, tt.scenario, string(body))
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(`{"id":"r1","name":"sdk","status":"completed","result":{"npv":{"npv":-42}}}`))
			})
			run, err := c.Simulations().Create(context.Background(), []byte(tt.scenario), tt.opts)
			require.NoError(t, err)
			assert.Equal(t, "r1", run.ID)
			require.NotNil(t, run.Result)
			assert.Equal(t, -42.0, run.Result.NPV.NPV)
		})
	}
}

func TestCreate_EmptyScenario(t *testing.T) {
	c, err := NewClient("http://planner.example")
	require.NoError(t, err)
	_, err = c.Simulations().Create(context.Background(), nil, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeScenarioInvalid))
}

func TestList_Query(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "failed", q.Get("status"))
		assert.Equal(t, "10", q.Get("offset"))
		assert.Equal(t, "5", q.Get("limit"))
		_, _ = w.Write([]byte(`{"runs":[{"id":"r1","status":"failed","error":"boom"}],"offset":10,"limit":5}`))
	})
	list, err := c.Simulations().List(context.Background(), &ListOptions{Status: StatusFailed, Offset: 10, Limit: 5})
	require.NoError(t, err)
	require.Len(t, list.Runs, 1)
	assert.Equal(t, "boom", list.Runs[0].Error)
	assert.Nil(t, list.Runs[0].NPV)
}

func TestRunEndpoints_Paths(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/simulations/a%2Fb", "/api/v1/simulations/a/b":
			t.Errorf("run id was not escaped: %s", r.URL.RawPath)
		case "/api/v1/simulations/r1/npv":
			_, _ = w.Write([]byte(`{"wacc_real":0.05,"rows":[{"year":2020,"pv":-10}],"npv":-10}`))
		case "/api/v1/simulations/r1/elements":
			assert.Equal(t, "crane", r.URL.Query().Get("kind"))
			_, _ = w.Write([]byte(`{"run_id":"r1","elements":[{"id":"e1","name":"crane_01","kind":"crane","year_online":2021}]}`))
		case "/api/v1/simulations/r1/reports":
			_, _ = w.Write([]byte(`{"run_id":"r1","reports":[{"name":"npv.csv","key":"runs/r1/npv.csv","url":"http://s3/x"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()
	s := c.Simulations()

	table, err := s.NPV(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, -10.0, table.NPV)
	require.Len(t, table.Rows, 1)

	elements, err := s.Elements(ctx, "r1", "crane")
	require.NoError(t, err)
	require.Len(t, elements, 1)
	assert.Equal(t, "crane_01", elements[0].Name)

	reports, err := s.Reports(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "runs/r1/npv.csv", reports[0].Key)

	_, err = s.Get(ctx, "a/b")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())
}

func TestRunEndpoints_RequireID(t *testing.T) {
	c, err := NewClient("http://planner.example")
	require.NoError(t, err)
	s := c.Simulations()
	ctx := context.Background()

	_, err = s.Get(ctx, "")
	assert.Error(t, err)
	_, err = s.NPV(ctx, "")
	assert.Error(t, err)
	_, err = s.Elements(ctx, "", "")
	assert.Error(t, err)
	_, err = s.Reports(ctx, "")
	assert.Error(t, err)
}

func TestStream_HandshakeRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	err := c.Simulations().Stream(context.Background(), "", func(StreamEvent) error { return nil })
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}

// signalGauge reports when a stream subscriber is registered.
type signalGauge struct {
	once      sync.Once
	connected chan struct{}
}

func (g *signalGauge) Inc() { g.once.Do(func() { close(g.connected) }) }
func (g *signalGauge) Dec() {}

func newServer(t *testing.T, gauge handlers.SubscriberGauge) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logging.NewNopLogger()
	svc, err := planning.NewSimulationService(terminal.DefaultParameters(), planning.ServiceDeps{Logger: logger}, nil)
	require.NoError(t, err)
	router := apihttp.NewRouter(apihttp.RouterConfig{
		SimulationHandler: handlers.NewSimulationHandler(svc, nil, 0, logger),
		StreamHandler:     handlers.NewStreamHandler(svc, gauge, nil, logger),
		HealthHandler:     handlers.NewHealthHandler("test", time.Second),
		Logging:           middleware.DefaultLoggingConfig(),
		Logger:            logger,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestSimulations_AgainstServer(t *testing.T) {
	srv := newServer(t, nil)
	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	ctx := context.Background()
	s := c.Simulations()

	run, err := s.Create(ctx, []byte(yamlScenario), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	require.NotNil(t, run.Result)
	assert.Equal(t, Horizon{Start: 2020, Lifecycle: 3}, run.Result.Horizon)
	require.NotNil(t, run.Result.NPV)

	got, err := s.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Fingerprint, got.Fingerprint)

	table, err := s.NPV(ctx, run.ID)
	require.NoError(t, err)
	assert.InDelta(t, run.Result.NPV.NPV, table.NPV, 1e-6)

	berths, err := s.Elements(ctx, run.ID, "berth")
	require.NoError(t, err)
	require.NotEmpty(t, berths)
	for _, e := range berths {
		assert.Equal(t, "berth", e.Kind)
	}

	list, err := s.List(ctx, &ListOptions{Status: StatusCompleted})
	require.NoError(t, err)
	require.Len(t, list.Runs, 1)
	require.NotNil(t, list.Runs[0].NPV)

	_, err = s.Reports(ctx, run.ID)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)

	_, err = s.Create(ctx, []byte("nonsense: true\n"), nil)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "SIM_001", apiErr.Code)
}

func TestStream_AgainstServer(t *testing.T) {
	gauge := &signalGauge{connected: make(chan struct{})}
	srv := newServer(t, gauge)
	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu     sync.Mutex
		events []StreamEvent
	)
	done := make(chan error, 1)
	go func() {
		done <- c.Simulations().Stream(ctx, "", func(ev StreamEvent) error {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, ev)
			if ev.Type == "run_completed" {
				cancel()
			}
			return nil
		})
	}()

	select {
	case <-gauge.connected:
	case <-time.After(5 * time.Second):
		t.Fatal("stream never subscribed")
	}
	run, err := c.Simulations().Create(context.Background(), []byte(strings.Replace(yamlScenario, "sdk", "streamed", 1)), nil)
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	assert.Equal(t, "year_started", events[0].Type)
	assert.Equal(t, "run_completed", events[len(events)-1].Type)
	for _, ev := range events {
		assert.Equal(t, run.ID, ev.RunID)
	}
}
