package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigYAML = `
server:
  http:
    host: "localhost"
    port: 8080
    mode: "test"
log:
  level: "debug"
  format: "console"
database:
  postgres:
    enabled: true
    host: "localhost"
    port: 5432
    user: "planner"
    password: "secret"
    dbname: "tplanner"
cache:
  redis:
    enabled: true
    addr: "localhost:6379"
    default_ttl: 2h
messaging:
  kafka:
    enabled: true
    brokers: ["localhost:9092", "localhost:9093"]
    topic: "planning.events"
storage:
  minio:
    enabled: true
    endpoint: "localhost:9000"
    access_key: "key"
    secret_key: "secret"
    bucket: "reports"
monitoring:
  prometheus:
    enabled: true
simulation:
  start_year: 2020
  lifecycle: 10
  operational_hours: 5000
  allowable_berth_occupancy: 0.5
finance:
  gearing: 50
  equity_return: 0.08
  debt_return: 0.05
  tax_rate: 0.25
  inflation: 0.01
`

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func setEnvVars(t *testing.T, vars map[string]string) {
	t.Helper()
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func TestLoad_FromFile_ValidConfig(t *testing.T) {
	cfg, err := Load(WithConfigPath(createTempConfigFile(t, validConfigYAML)))
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.HTTP.Host)
	assert.Equal(t, 8080, cfg.Server.HTTP.Port)
	assert.Equal(t, "test", cfg.Server.HTTP.Mode)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Database.Postgres.Enabled)
	assert.Equal(t, "planner", cfg.Database.Postgres.User)
	assert.Equal(t, 2*time.Hour, cfg.Cache.Redis.DefaultTTL)
	assert.Equal(t, []string{"localhost:9092", "localhost:9093"}, cfg.Messaging.Kafka.Brokers)
	assert.Equal(t, "reports", cfg.Storage.MinIO.Bucket)
	assert.Equal(t, 2020, cfg.Simulation.StartYear)
	assert.Equal(t, 10, cfg.Simulation.Lifecycle)
	assert.InDelta(t, 0.5, cfg.Simulation.AllowableBerthOccupancy, 1e-12)
	assert.InDelta(t, 0.25, cfg.Finance.TaxRate, 1e-12)
}

func TestLoad_FromFile_FileNotFound(t *testing.T) {
	_, err := Load(WithConfigPath("non_existent_config.yaml"))
	assert.ErrorIs(t, err, ErrConfigFileNotFound)
}

func TestLoad_FromFile_InvalidYAML(t *testing.T) {
	_, err := Load(WithConfigPath(createTempConfigFile(t, "invalid_yaml: [")))
	assert.ErrorIs(t, err, ErrConfigParseError)
}

func TestLoad_FromFile_ValidationFailure(t *testing.T) {
	path := createTempConfigFile(t, `
simulation:
  allowable_berth_occupancy: 1.5
`)
	_, err := Load(WithConfigPath(path))
	assert.ErrorIs(t, err, ErrConfigValidation)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	setEnvVars(t, map[string]string{
		"TPLANNER_SERVER_HTTP_PORT":          "9999",
		"TPLANNER_SERVER_GRPC_ENABLED":       "true",
		"TPLANNER_DATABASE_POSTGRES_HOST":    "db-host",
		"TPLANNER_SIMULATION_HANDLING_FEE":   "12.5",
		"TPLANNER_SIMULATION_MAX_ITERATIONS": "50",
	})

	cfg, err := Load(WithConfigPath(path))
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.HTTP.Port)
	assert.True(t, cfg.Server.GRPC.Enabled)
	assert.Equal(t, DefaultGRPCPort, cfg.Server.GRPC.Port)
	assert.Equal(t, "db-host", cfg.Database.Postgres.Host)
	assert.InDelta(t, 12.5, cfg.Simulation.HandlingFee, 1e-12)
	assert.Equal(t, 50, cfg.Simulation.MaxIterations)
}

func TestLoadFromEnv_DefaultsOnly(t *testing.T) {
	setEnvVars(t, map[string]string{
		"TPLANNER_SIMULATION_LIFECYCLE": "30",
	})

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Simulation.Lifecycle)
	assert.Equal(t, DefaultStartYear, cfg.Simulation.StartYear)
	assert.Equal(t, DefaultHTTPPort, cfg.Server.HTTP.Port)
	assert.InDelta(t, DefaultGearing, cfg.Finance.Gearing, 1e-12)
	assert.False(t, cfg.Messaging.Kafka.Enabled)
}

func TestLoad_DefaultValuesFillGaps(t *testing.T) {
	path := createTempConfigFile(t, `
simulation:
  lifecycle: 15
`)
	cfg, err := Load(WithConfigPath(path))
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.Simulation.Lifecycle)
	assert.InDelta(t, float64(DefaultOperationalHours), cfg.Simulation.OperationalHours, 1e-12)
	assert.Equal(t, DefaultLogFormat, cfg.Log.Format)
	assert.Equal(t, DefaultMetricsPath, cfg.Monitoring.Prometheus.Path)
}

func TestMustLoad_PanicsOnMissingFile(t *testing.T) {
	assert.Panics(t, func() { MustLoad(WithConfigPath("missing.yaml")) })
}

func TestWatch_MissingFile(t *testing.T) {
	err := Watch("missing.yaml", func(*Config) {}, nil)
	assert.ErrorIs(t, err, ErrConfigFileNotFound)
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	changed := make(chan *Config, 4)
	require.NoError(t, Watch(path, func(c *Config) { changed <- c }, nil))

	updated := []byte(validConfigYAML + "\n# touched\n")
	require.NoError(t, os.WriteFile(path, updated, 0o644))

	select {
	case cfg := <-changed:
		assert.Equal(t, 2020, cfg.Simulation.StartYear)
	case <-time.After(5 * time.Second):
		t.Skip("filesystem notifications unavailable in this environment")
	}
}
