package config

import "time"

const (
	DefaultHTTPHost        = "0.0.0.0"
	DefaultHTTPPort        = 8080
	DefaultServerMode      = "release"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxBodySize     = 1 << 20

	DefaultGRPCPort            = 9090
	DefaultGRPCMaxRecvMsgSize  = 4 << 20
	DefaultGRPCGracefulTimeout = 10 * time.Second
	DefaultGRPCHealthInterval  = 15 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultDBHost           = "localhost"
	DefaultDBPort           = 5432
	DefaultDBName           = "tplanner"
	DefaultDBSSLMode        = "disable"
	DefaultDBMaxOpenConns   = 10
	DefaultDBMaxIdleConns   = 5
	DefaultDBConnLifetime   = 30 * time.Minute
	DefaultStatementTimeout = 30 * time.Second

	DefaultRedisAddr     = "localhost:6379"
	DefaultRedisPoolSize = 10
	DefaultCacheTTL      = 24 * time.Hour
	DefaultCachePrefix   = "tplanner"

	DefaultKafkaBroker = "localhost:9092"
	DefaultKafkaTopic  = "tplanner.planning.events"
	DefaultKafkaClient = "tplanner"
	DefaultKafkaGroup  = "tplanner-events"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "tplanner-reports"
	DefaultPresignExpiry = time.Hour

	DefaultMetricsNamespace = "tplanner"
	DefaultMetricsPath      = "/metrics"

	DefaultStartYear                 = 2019
	DefaultLifecycle                 = 20
	DefaultOperationalHours          = 4680
	DefaultAllowableBerthOccupancy   = 0.40
	DefaultAllowableStationOccupancy = 0.60
	DefaultEnergyUtilisation         = 0.80
	DefaultStorageFraction           = 0.10
	DefaultHandlingFee               = 9.8
	DefaultMaxIterations             = 1000

	DefaultGearing      = 60
	DefaultEquityReturn = 0.10
	DefaultDebtReturn   = 0.30
	DefaultTaxRate      = 0.28
	DefaultInflation    = 0.02
)

// NewDefaultConfig returns a Config with every default applied. External
// stores are disabled, so the result runs a simulation without any service.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-value fields in cfg. Explicit values always win.
// The finance block is defaulted as a whole because a zero tax rate or zero
// inflation are legitimate settings.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	h := &cfg.Server.HTTP
	if h.Host == "" {
		h.Host = DefaultHTTPHost
	}
	if h.Port == 0 {
		h.Port = DefaultHTTPPort
	}
	if h.Mode == "" {
		h.Mode = DefaultServerMode
	}
	if h.ReadTimeout == 0 {
		h.ReadTimeout = DefaultReadTimeout
	}
	if h.WriteTimeout == 0 {
		h.WriteTimeout = DefaultWriteTimeout
	}
	if h.ShutdownTimeout == 0 {
		h.ShutdownTimeout = DefaultShutdownTimeout
	}
	if h.MaxBodySize == 0 {
		h.MaxBodySize = DefaultMaxBodySize
	}

	g := &cfg.Server.GRPC
	if g.Host == "" {
		g.Host = DefaultHTTPHost
	}
	if g.Port == 0 {
		g.Port = DefaultGRPCPort
	}
	if g.MaxRecvMsgSize == 0 {
		g.MaxRecvMsgSize = DefaultGRPCMaxRecvMsgSize
	}
	if g.GracefulTimeout == 0 {
		g.GracefulTimeout = DefaultGRPCGracefulTimeout
	}
	if g.HealthInterval == 0 {
		g.HealthInterval = DefaultGRPCHealthInterval
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	pg := &cfg.Database.Postgres
	if pg.Host == "" {
		pg.Host = DefaultDBHost
	}
	if pg.Port == 0 {
		pg.Port = DefaultDBPort
	}
	if pg.DBName == "" {
		pg.DBName = DefaultDBName
	}
	if pg.SSLMode == "" {
		pg.SSLMode = DefaultDBSSLMode
	}
	if pg.MaxOpenConns == 0 {
		pg.MaxOpenConns = DefaultDBMaxOpenConns
	}
	if pg.MaxIdleConns == 0 {
		pg.MaxIdleConns = DefaultDBMaxIdleConns
	}
	if pg.ConnMaxLifetime == 0 {
		pg.ConnMaxLifetime = DefaultDBConnLifetime
	}
	if pg.StatementTimeout == 0 {
		pg.StatementTimeout = DefaultStatementTimeout
	}

	r := &cfg.Cache.Redis
	if r.Addr == "" {
		r.Addr = DefaultRedisAddr
	}
	if r.PoolSize == 0 {
		r.PoolSize = DefaultRedisPoolSize
	}
	if r.DefaultTTL == 0 {
		r.DefaultTTL = DefaultCacheTTL
	}
	if r.KeyPrefix == "" {
		r.KeyPrefix = DefaultCachePrefix
	}

	k := &cfg.Messaging.Kafka
	if len(k.Brokers) == 0 {
		k.Brokers = []string{DefaultKafkaBroker}
	}
	if k.Topic == "" {
		k.Topic = DefaultKafkaTopic
	}
	if k.ClientID == "" {
		k.ClientID = DefaultKafkaClient
	}
	if k.GroupID == "" {
		k.GroupID = DefaultKafkaGroup
	}

	m := &cfg.Storage.MinIO
	if m.Endpoint == "" {
		m.Endpoint = DefaultMinIOEndpoint
	}
	if m.Bucket == "" {
		m.Bucket = DefaultMinIOBucket
	}
	if m.PresignExpiry == 0 {
		m.PresignExpiry = DefaultPresignExpiry
	}

	p := &cfg.Monitoring.Prometheus
	if p.Namespace == "" {
		p.Namespace = DefaultMetricsNamespace
	}
	if p.Path == "" {
		p.Path = DefaultMetricsPath
	}

	s := &cfg.Simulation
	if s.StartYear == 0 {
		s.StartYear = DefaultStartYear
	}
	if s.Lifecycle == 0 {
		s.Lifecycle = DefaultLifecycle
	}
	if s.OperationalHours == 0 {
		s.OperationalHours = DefaultOperationalHours
	}
	if s.AllowableBerthOccupancy == 0 {
		s.AllowableBerthOccupancy = DefaultAllowableBerthOccupancy
	}
	if s.AllowableStationOccupancy == 0 {
		s.AllowableStationOccupancy = DefaultAllowableStationOccupancy
	}
	if s.EnergyUtilisation == 0 {
		s.EnergyUtilisation = DefaultEnergyUtilisation
	}
	if s.StorageFraction == 0 {
		s.StorageFraction = DefaultStorageFraction
	}
	if s.HandlingFee == 0 {
		s.HandlingFee = DefaultHandlingFee
	}
	if s.MaxIterations == 0 {
		s.MaxIterations = DefaultMaxIterations
	}

	if cfg.Finance == (FinanceConfig{}) {
		cfg.Finance = FinanceConfig{
			Gearing:      DefaultGearing,
			EquityReturn: DefaultEquityReturn,
			DebtReturn:   DefaultDebtReturn,
			TaxRate:      DefaultTaxRate,
			Inflation:    DefaultInflation,
		}
	}
}

// viperDefaults registers every key with viper so that TPLANNER_* variables
// are honoured by Unmarshal even when the key is absent from the file.
func viperDefaults() map[string]interface{} {
	d := NewDefaultConfig()
	return map[string]interface{}{
		"server.http.host":             d.Server.HTTP.Host,
		"server.http.port":             d.Server.HTTP.Port,
		"server.http.mode":             d.Server.HTTP.Mode,
		"server.http.read_timeout":     d.Server.HTTP.ReadTimeout,
		"server.http.write_timeout":    d.Server.HTTP.WriteTimeout,
		"server.http.shutdown_timeout": d.Server.HTTP.ShutdownTimeout,
		"server.http.max_body_size":    d.Server.HTTP.MaxBodySize,

		"server.grpc.enabled":           false,
		"server.grpc.host":              d.Server.GRPC.Host,
		"server.grpc.port":              d.Server.GRPC.Port,
		"server.grpc.reflection":        false,
		"server.grpc.max_recv_msg_size": d.Server.GRPC.MaxRecvMsgSize,
		"server.grpc.graceful_timeout":  d.Server.GRPC.GracefulTimeout,
		"server.grpc.health_interval":   d.Server.GRPC.HealthInterval,

		"log.level":  d.Log.Level,
		"log.format": d.Log.Format,

		"database.postgres.enabled":           false,
		"database.postgres.host":              d.Database.Postgres.Host,
		"database.postgres.port":              d.Database.Postgres.Port,
		"database.postgres.user":              "",
		"database.postgres.password":          "",
		"database.postgres.dbname":            d.Database.Postgres.DBName,
		"database.postgres.sslmode":           d.Database.Postgres.SSLMode,
		"database.postgres.max_open_conns":    d.Database.Postgres.MaxOpenConns,
		"database.postgres.max_idle_conns":    d.Database.Postgres.MaxIdleConns,
		"database.postgres.conn_max_lifetime": d.Database.Postgres.ConnMaxLifetime,
		"database.postgres.statement_timeout": d.Database.Postgres.StatementTimeout,
		"database.postgres.migration_path":    "",

		"cache.redis.enabled":     false,
		"cache.redis.addr":        d.Cache.Redis.Addr,
		"cache.redis.password":    "",
		"cache.redis.db":          0,
		"cache.redis.pool_size":   d.Cache.Redis.PoolSize,
		"cache.redis.default_ttl": d.Cache.Redis.DefaultTTL,
		"cache.redis.key_prefix":  d.Cache.Redis.KeyPrefix,

		"messaging.kafka.enabled":   false,
		"messaging.kafka.brokers":   d.Messaging.Kafka.Brokers,
		"messaging.kafka.topic":     d.Messaging.Kafka.Topic,
		"messaging.kafka.client_id": d.Messaging.Kafka.ClientID,
		"messaging.kafka.group_id":  d.Messaging.Kafka.GroupID,

		"storage.minio.enabled":        false,
		"storage.minio.endpoint":       d.Storage.MinIO.Endpoint,
		"storage.minio.access_key":     "",
		"storage.minio.secret_key":     "",
		"storage.minio.bucket":         d.Storage.MinIO.Bucket,
		"storage.minio.use_ssl":        false,
		"storage.minio.presign_expiry": d.Storage.MinIO.PresignExpiry,

		"monitoring.prometheus.enabled":   false,
		"monitoring.prometheus.namespace": d.Monitoring.Prometheus.Namespace,
		"monitoring.prometheus.path":      d.Monitoring.Prometheus.Path,

		"simulation.start_year":                  d.Simulation.StartYear,
		"simulation.lifecycle":                   d.Simulation.Lifecycle,
		"simulation.operational_hours":           d.Simulation.OperationalHours,
		"simulation.allowable_berth_occupancy":   d.Simulation.AllowableBerthOccupancy,
		"simulation.allowable_station_occupancy": d.Simulation.AllowableStationOccupancy,
		"simulation.energy_utilisation":          d.Simulation.EnergyUtilisation,
		"simulation.storage_fraction":            d.Simulation.StorageFraction,
		"simulation.handling_fee":                d.Simulation.HandlingFee,
		"simulation.max_iterations":              d.Simulation.MaxIterations,
		"simulation.parameters_file":             "",

		"finance.gearing":       d.Finance.Gearing,
		"finance.equity_return": d.Finance.EquityReturn,
		"finance.debt_return":   d.Finance.DebtReturn,
		"finance.tax_rate":      d.Finance.TaxRate,
		"finance.inflation":     d.Finance.Inflation,
	}
}
