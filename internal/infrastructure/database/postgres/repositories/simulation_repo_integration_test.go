//go:build integration

package repositories_test

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/terminal-planner/internal/domain/finance"
	"github.com/turtacn/terminal-planner/internal/domain/simulation"
	"github.com/turtacn/terminal-planner/internal/domain/terminal"
	"github.com/turtacn/terminal-planner/internal/infrastructure/database/postgres"
	"github.com/turtacn/terminal-planner/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/terminal-planner/internal/infrastructure/monitoring/logging"
)

// startPostgres launches a PostgreSQL 16 container with the schema applied.
func startPostgres(t *testing.T) *postgres.Connection {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "tplanner_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	cfg := postgres.PostgresConfig{
		Host:     host,
		Port:     portNum,
		Database: "tplanner_test",
		Username: "test",
		Password: "test",
	}
	log := logging.NewNopLogger()

	m, err := postgres.NewMigrator(postgres.BuildDSN(cfg), "", log)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	st, err := m.Status()
	require.NoError(t, err)
	assert.Equal(t, uint(3), st.Version)
	require.NoError(t, m.Close())

	conn, err := postgres.NewConnection(cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestSimulationRepo_RoundTrip(t *testing.T) {
	conn := startPostgres(t)
	repo := repositories.NewPostgresSimulationRepo(conn, logging.NewNopLogger())
	ctx := context.Background()

	h := finance.Horizon{Start: 2020, Lifecycle: 2}
	run := simulation.NewRun("base", "fp-int", json.RawMessage(`{"name":"base"}`))
	require.NoError(t, run.Start())
	require.NoError(t, repo.Save(ctx, run))

	require.NoError(t, run.Complete(&simulation.Result{
		Horizon: h,
		Elements: []terminal.Element{
			{ID: "e1", Name: "Berth_01", Kind: terminal.KindBerth, YearOnline: 2021},
			{ID: "e2", Name: "Quay_01", Kind: terminal.KindQuay, YearOnline: 2022, Capex: 1.5e7},
		},
		Years:     []simulation.YearSummary{{Year: 2020}, {Year: 2021}},
		Portfolio: &finance.Portfolio{Horizon: h, Rows: []finance.Row{{Year: 2020}, {Year: 2021}}},
		NPV: &finance.NPVTable{WACCNominal: 0.1, WACCReal: 0.08, NPV: -3, Rows: []finance.NPVRow{
			{Year: 2020, PV: -1, CumPV: -1},
			{Year: 2021, PV: -2, CumPV: -3},
		}},
	}))
	require.NoError(t, repo.Save(ctx, run))

	got, err := repo.FindByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, simulation.RunStatusCompleted, got.Status)
	assert.Len(t, got.Result.Elements, 2)
	assert.Equal(t, []int{2020, 2021}, []int{got.Result.NPV.Rows[0].Year, got.Result.NPV.Rows[1].Year})

	byFP, err := repo.FindByFingerprint(ctx, "fp-int")
	require.NoError(t, err)
	assert.Equal(t, run.ID, byFP.ID)

	quays, err := repo.Elements(ctx, run.ID, terminal.KindQuay)
	require.NoError(t, err)
	require.Len(t, quays, 1)
	assert.Equal(t, "Quay_01", quays[0].Name)

	runs, err := repo.List(ctx, simulation.WithStatus(simulation.RunStatusCompleted))
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
