// Package config defines the configuration structures of terminal-planner.
// No I/O lives in this file, only plain data types and validation.
package config

import (
	"fmt"
	"time"
)

// HTTPConfig holds HTTP listener tunables.
type HTTPConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// GRPCConfig holds the gRPC listener. It serves the planner service and the
// standard health service next to the HTTP API.
type GRPCConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Reflection      bool          `mapstructure:"reflection"`
	MaxRecvMsgSize  int           `mapstructure:"max_recv_msg_size"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	HealthInterval  time.Duration `mapstructure:"health_interval"`
}

// ServerConfig groups the network listeners.
type ServerConfig struct {
	HTTP HTTPConfig `mapstructure:"http"`
	GRPC GRPCConfig `mapstructure:"grpc"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level       string   `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format      string   `mapstructure:"format"` // "json" | "console"
	OutputPaths []string `mapstructure:"output_paths"`
}

// PostgresConfig holds the run store connection parameters.
type PostgresConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	DBName           string        `mapstructure:"dbname"`
	SSLMode          string        `mapstructure:"sslmode"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `mapstructure:"conn_max_idle_time"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	// MigrationPath overrides the migrations embedded in the binary.
	MigrationPath string `mapstructure:"migration_path"`
}

// DatabaseConfig groups relational stores.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig holds the result cache parameters.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// CacheConfig groups caches.
type CacheConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// KafkaConfig holds the planning-event producer parameters.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	ClientID     string        `mapstructure:"client_id"`
	GroupID      string        `mapstructure:"group_id"`
	RequiredAcks int           `mapstructure:"required_acks"`
	Compression  string        `mapstructure:"compression"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MessagingConfig groups message brokers.
type MessagingConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// MinIOConfig holds report export parameters.
type MinIOConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Endpoint      string        `mapstructure:"endpoint"`
	AccessKey     string        `mapstructure:"access_key"`
	SecretKey     string        `mapstructure:"secret_key"`
	Bucket        string        `mapstructure:"bucket"`
	Region        string        `mapstructure:"region"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
}

// StorageConfig groups object stores.
type StorageConfig struct {
	MinIO MinIOConfig `mapstructure:"minio"`
}

// PrometheusConfig controls the metrics endpoint.
type PrometheusConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
	Path      string `mapstructure:"path"`
}

// MonitoringConfig groups observability settings.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// SimulationConfig holds the default planning horizon and service targets.
// Scenarios may override the horizon and targets per run.
type SimulationConfig struct {
	StartYear                 int     `mapstructure:"start_year"`
	Lifecycle                 int     `mapstructure:"lifecycle"`
	OperationalHours          float64 `mapstructure:"operational_hours"`
	AllowableBerthOccupancy   float64 `mapstructure:"allowable_berth_occupancy"`
	AllowableStationOccupancy float64 `mapstructure:"allowable_station_occupancy"`
	// EnergyUtilisation is the assumed equipment utilisation used for energy
	// cost until a real utilisation model exists.
	EnergyUtilisation float64 `mapstructure:"energy_utilisation"`
	StorageFraction   float64 `mapstructure:"storage_fraction"`
	HandlingFee       float64 `mapstructure:"handling_fee"`
	MaxIterations     int     `mapstructure:"max_iterations"`
	// ParametersFile optionally points at a YAML asset parameter table.
	ParametersFile string `mapstructure:"parameters_file"`
}

// FinanceConfig holds the WACC inputs.
type FinanceConfig struct {
	Gearing      float64 `mapstructure:"gearing"` // debt share in percent
	EquityReturn float64 `mapstructure:"equity_return"`
	DebtReturn   float64 `mapstructure:"debt_return"`
	TaxRate      float64 `mapstructure:"tax_rate"`
	Inflation    float64 `mapstructure:"inflation"`
}

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Messaging  MessagingConfig  `mapstructure:"messaging"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Finance    FinanceConfig    `mapstructure:"finance"`
}

// Validate performs semantic validation of a fully-populated Config and
// returns the first problem found.
func (c *Config) Validate() error {
	h := c.Server.HTTP
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("config: server.http.port %d is out of range [1, 65535]", h.Port)
	}
	switch h.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.http.mode %q is invalid; expected debug|release|test", h.Mode)
	}

	if g := c.Server.GRPC; g.Enabled {
		if g.Port < 0 || g.Port > 65535 {
			return fmt.Errorf("config: server.grpc.port %d is out of range [0, 65535]", g.Port)
		}
		if g.MaxRecvMsgSize < 0 {
			return fmt.Errorf("config: server.grpc.max_recv_msg_size must be >= 0")
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	if pg := c.Database.Postgres; pg.Enabled {
		if pg.Host == "" {
			return fmt.Errorf("config: database.postgres.host is required")
		}
		if pg.Port < 1 || pg.Port > 65535 {
			return fmt.Errorf("config: database.postgres.port %d is out of range [1, 65535]", pg.Port)
		}
		if pg.DBName == "" {
			return fmt.Errorf("config: database.postgres.dbname is required")
		}
	}
	if r := c.Cache.Redis; r.Enabled {
		if r.Addr == "" {
			return fmt.Errorf("config: cache.redis.addr is required")
		}
		if r.DB < 0 {
			return fmt.Errorf("config: cache.redis.db must be >= 0, got %d", r.DB)
		}
	}
	if k := c.Messaging.Kafka; k.Enabled {
		if len(k.Brokers) == 0 {
			return fmt.Errorf("config: messaging.kafka.brokers must contain at least one broker address")
		}
		if k.Topic == "" {
			return fmt.Errorf("config: messaging.kafka.topic is required")
		}
	}
	if m := c.Storage.MinIO; m.Enabled {
		if m.Endpoint == "" || m.Bucket == "" {
			return fmt.Errorf("config: storage.minio.endpoint and bucket are required")
		}
		if m.AccessKey == "" || m.SecretKey == "" {
			return fmt.Errorf("config: storage.minio credentials are required")
		}
	}

	if err := c.Simulation.Validate(); err != nil {
		return err
	}
	return c.Finance.Validate()
}

// Validate checks the simulation defaults.
func (s SimulationConfig) Validate() error {
	switch {
	case s.Lifecycle < 1:
		return fmt.Errorf("config: simulation.lifecycle must be >= 1, got %d", s.Lifecycle)
	case s.OperationalHours <= 0:
		return fmt.Errorf("config: simulation.operational_hours must be positive")
	case s.AllowableBerthOccupancy <= 0 || s.AllowableBerthOccupancy >= 1:
		return fmt.Errorf("config: simulation.allowable_berth_occupancy must be in (0, 1), got %g", s.AllowableBerthOccupancy)
	case s.AllowableStationOccupancy <= 0 || s.AllowableStationOccupancy > 1:
		return fmt.Errorf("config: simulation.allowable_station_occupancy must be in (0, 1], got %g", s.AllowableStationOccupancy)
	case s.EnergyUtilisation < 0 || s.EnergyUtilisation > 1:
		return fmt.Errorf("config: simulation.energy_utilisation must be in [0, 1], got %g", s.EnergyUtilisation)
	case s.StorageFraction < 0:
		return fmt.Errorf("config: simulation.storage_fraction must be >= 0")
	case s.HandlingFee < 0:
		return fmt.Errorf("config: simulation.handling_fee must be >= 0")
	case s.MaxIterations < 1:
		return fmt.Errorf("config: simulation.max_iterations must be >= 1")
	}
	return nil
}

// Validate checks the WACC inputs.
func (f FinanceConfig) Validate() error {
	if f.Gearing < 0 || f.Gearing > 100 {
		return fmt.Errorf("config: finance.gearing must be in [0, 100], got %g", f.Gearing)
	}
	if f.TaxRate < 0 || f.TaxRate >= 1 {
		return fmt.Errorf("config: finance.tax_rate must be in [0, 1), got %g", f.TaxRate)
	}
	if f.Inflation <= -1 {
		return fmt.Errorf("config: finance.inflation must be > -1, got %g", f.Inflation)
	}
	return nil
}
