package cli

import (
	"context"
	"time"

	"github.com/turtacn/terminal-planner/internal/application/planning"
	"github.com/turtacn/terminal-planner/internal/config"
	"github.com/turtacn/terminal-planner/internal/domain/terminal"
	"github.com/turtacn/terminal-planner/internal/infrastructure/database/postgres"
	"github.com/turtacn/terminal-planner/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/terminal-planner/internal/infrastructure/database/redis"
	"github.com/turtacn/terminal-planner/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/terminal-planner/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/terminal-planner/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/terminal-planner/internal/infrastructure/storage/minio"
	"github.com/turtacn/terminal-planner/internal/interfaces/http/handlers"
)

// eventSource is the source field of every published envelope.
const eventSource = "tplanner"

// application holds the simulation service and every enabled adapter behind
// it. Adapters are enabled per config section; a default config runs fully
// in memory.
type application struct {
	service     planning.SimulationService
	broadcaster *planning.Broadcaster
	collector   prometheus.MetricsCollector
	metrics     *prometheus.AppMetrics
	reports     handlers.ReportLister
	checks      []handlers.HealthChecker
	closers     []func() error
	logger      logging.Logger
}

func newApplication(ctx context.Context, cfg *config.Config, logger logging.Logger) (_ *application, err error) {
	app := &application{logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	params := terminal.DefaultParameters()
	if path := cfg.Simulation.ParametersFile; path != "" {
		if params, err = terminal.LoadParameters(path); err != nil {
			return nil, err
		}
		logger.Info("asset parameters loaded", logging.String("path", path))
	}

	deps := planning.ServiceDeps{Logger: logger}

	if pc := cfg.Monitoring.Prometheus; pc.Enabled {
		app.collector, err = prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            pc.Namespace,
			Subsystem:            pc.Subsystem,
			EnableProcessMetrics: true,
			EnableGoMetrics:      true,
		}, logger)
		if err != nil {
			return nil, err
		}
		app.metrics = prometheus.NewAppMetrics(app.collector)
		app.metrics.SetBuildInfo(Version, GitCommit)
		deps.Metrics = app.metrics
	}

	if pg := cfg.Database.Postgres; pg.Enabled {
		conn, cerr := postgres.NewConnection(postgresConfig(pg), logger)
		if cerr != nil {
			return nil, cerr
		}
		app.onClose(conn.Close)
		app.check("postgres", conn.HealthCheck)
		deps.Repository = repositories.NewPostgresSimulationRepo(conn, logger)
	}

	if rc := cfg.Cache.Redis; rc.Enabled {
		client, cerr := redis.NewClient(&redis.RedisConfig{
			Addr:         rc.Addr,
			Password:     rc.Password,
			DB:           rc.DB,
			PoolSize:     rc.PoolSize,
			DialTimeout:  rc.DialTimeout,
			ReadTimeout:  rc.ReadTimeout,
			WriteTimeout: rc.WriteTimeout,
		}, logger)
		if cerr != nil {
			return nil, cerr
		}
		app.onClose(client.Close)
		app.check("redis", client.HealthCheck)
		deps.Cache = redis.NewRedisCache(client, logger,
			redis.WithPrefix(rc.KeyPrefix+":"),
			redis.WithDefaultTTL(rc.DefaultTTL))
		deps.Locker = redis.NewRunLocker(redis.NewLockFactory(client, logger))
	}

	if kc := cfg.Messaging.Kafka; kc.Enabled {
		ensureTopics(ctx, kc, logger)
		producer, cerr := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:          kc.Brokers,
			ClientID:         kc.ClientID,
			RequiredAcks:     kc.RequiredAcks,
			BatchTimeout:     kc.BatchTimeout,
			CompressionCodec: kc.Compression,
			WriteTimeout:     kc.WriteTimeout,
		}, logger)
		if cerr != nil {
			return nil, cerr
		}
		app.onClose(producer.Close)
		deps.Publisher = instrumentPublisher(
			kafka.NewPlanningEventPublisher(producer, kc.Topic, eventSource, logger), app.metrics)
	}

	if mc := cfg.Storage.MinIO; mc.Enabled {
		client, cerr := minio.NewMinIOClient(&minio.MinIOConfig{
			Endpoint:        mc.Endpoint,
			AccessKeyID:     mc.AccessKey,
			SecretAccessKey: mc.SecretKey,
			UseSSL:          mc.UseSSL,
			Region:          mc.Region,
			Bucket:          mc.Bucket,
			PresignExpiry:   mc.PresignExpiry,
		}, logger)
		if cerr != nil {
			return nil, cerr
		}
		app.onClose(client.Close)
		app.check("minio", func(ctx context.Context) error {
			_, herr := client.HealthCheck(ctx)
			return herr
		})
		exporter := minio.NewReportExporter(minio.NewMinIORepository(client, logger), mc.PresignExpiry, logger)
		deps.Exporter = instrumentExporter(exporter, app.metrics)
		app.reports = exporter
	}

	app.broadcaster = planning.NewBroadcaster(64)
	deps.Broadcaster = app.broadcaster

	app.service, err = planning.NewSimulationService(params, deps, &planning.ServiceConfig{
		Simulation: cfg.Simulation,
		Finance:    cfg.Finance,
		CacheTTL:   cfg.Cache.Redis.DefaultTTL,
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

func (a *application) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *application) check(name string, fn func(context.Context) error) {
	a.checks = append(a.checks, handlers.CheckFunc{N: name, F: fn})
}

// Close releases adapters in reverse order of creation and returns the first
// error.
func (a *application) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("adapter close failed", logging.Err(err))
			if first == nil {
				first = err
			}
		}
	}
	a.closers = nil
	return first
}

func postgresConfig(pg config.PostgresConfig) postgres.PostgresConfig {
	return postgres.PostgresConfig{
		Host:             pg.Host,
		Port:             pg.Port,
		Database:         pg.DBName,
		Username:         pg.User,
		Password:         pg.Password,
		SSLMode:          pg.SSLMode,
		MaxOpenConns:     pg.MaxOpenConns,
		MaxIdleConns:     pg.MaxIdleConns,
		ConnMaxLifetime:  pg.ConnMaxLifetime,
		ConnMaxIdleTime:  pg.ConnMaxIdleTime,
		StatementTimeout: pg.StatementTimeout,
	}
}

// ensureTopics creates the event and dead-letter topics. Brokers with topic
// auto-creation or restricted ACLs may refuse; the producer still works then.
func ensureTopics(ctx context.Context, kc config.KafkaConfig, logger logging.Logger) {
	mgr, err := kafka.NewTopicManager(kc.Brokers, logger)
	if err != nil {
		logger.Warn("kafka topic setup skipped", logging.Err(err))
		return
	}
	defer mgr.Close()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := mgr.EnsureTopics(ctx, kafka.DefaultTopics(kc.Topic)); err != nil {
		logger.Warn("kafka topic setup failed", logging.Err(err))
	}
}
