package cli

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/turtacn/terminal-planner/internal/config"
	"github.com/turtacn/terminal-planner/internal/infrastructure/monitoring/logging"
	grpcserver "github.com/turtacn/terminal-planner/internal/interfaces/grpc"
	httpserver "github.com/turtacn/terminal-planner/internal/interfaces/http"
	"github.com/turtacn/terminal-planner/internal/interfaces/http/handlers"
	"github.com/turtacn/terminal-planner/internal/interfaces/http/middleware"
)

// NewServeCmd starts the HTTP API and, when enabled, the gRPC server.
func NewServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the planning API, the live stream and metrics over HTTP and gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if port > 0 {
				cliCtx.Config.Server.HTTP.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cliCtx)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP port (overrides the config file)")
	return cmd
}

func runServe(ctx context.Context, cliCtx *CLIContext) error {
	cfg, logger := cliCtx.Config, cliCtx.Logger
	logger.Info("starting tplanner API server",
		logging.String("version", Version),
		logging.String("commit", GitCommit))

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if cliCtx.ConfigPath != "" {
		watchLogLevel(cliCtx.ConfigPath, logger)
	}

	srv := httpserver.NewServer(httpserver.ServerConfig{
		Host:            cfg.Server.HTTP.Host,
		Port:            cfg.Server.HTTP.Port,
		ReadTimeout:     cfg.Server.HTTP.ReadTimeout,
		WriteTimeout:    cfg.Server.HTTP.WriteTimeout,
		ShutdownTimeout: cfg.Server.HTTP.ShutdownTimeout,
	}, newRouter(cfg, app, logger), logger)

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Start() }()

	var rpc *grpcserver.Server
	if cfg.Server.GRPC.Enabled {
		if rpc, err = newRPCServer(cfg.Server.GRPC, app, logger); err != nil {
			_ = srv.Stop(context.Background())
			return err
		}
		go func() { errCh <- rpc.Start() }()
		go rpc.WatchHealth(ctx, cfg.Server.GRPC.HealthInterval, healthChecks(app)...)
	}

	select {
	case err = <-errCh:
	case <-ctx.Done():
	}
	// The parent context may already be cancelled; Stop bounds each drain itself.
	if rpc != nil {
		_ = rpc.Stop(context.Background())
	}
	if stopErr := srv.Stop(context.Background()); err == nil {
		err = stopErr
	}
	return err
}

// newRPCServer serves the planner over gRPC with the adapters of app.
func newRPCServer(gc config.GRPCConfig, app *application, logger logging.Logger) (*grpcserver.Server, error) {
	opts := []grpcserver.Option{grpcserver.WithLogger(logger)}
	if app.metrics != nil {
		opts = append(opts, grpcserver.WithMetrics(app.metrics))
	}
	rpc, err := grpcserver.NewServer(gc, opts...)
	if err != nil {
		return nil, err
	}
	grpcserver.NewPlannerServer(app.service).Register(rpc)
	return rpc, nil
}

func healthChecks(app *application) []grpcserver.HealthChecker {
	out := make([]grpcserver.HealthChecker, len(app.checks))
	for i, c := range app.checks {
		out[i] = c
	}
	return out
}

func newRouter(cfg *config.Config, app *application, logger logging.Logger) *gin.Engine {
	if cfg.Server.HTTP.Mode != "" {
		gin.SetMode(cfg.Server.HTTP.Mode)
	}

	rc := httpserver.RouterConfig{
		SimulationHandler: handlers.NewSimulationHandler(app.service, app.reports, cfg.Server.HTTP.MaxBodySize, logger),
		HealthHandler:     handlers.NewHealthHandler(Version, 0, app.checks...),
		Logging:           middleware.DefaultLoggingConfig(),
		CORSOrigins:       cfg.Server.HTTP.CORSOrigins,
		Logger:            logger,
	}

	var gauge handlers.SubscriberGauge
	if app.metrics != nil {
		rc.Metrics = app.metrics
		rc.MetricsHandler = app.collector.Handler()
		rc.MetricsPath = cfg.Monitoring.Prometheus.Path
		gauge = app.metrics.StreamSubscribers.WithLabelValues()
	}
	var checkOrigin func(*http.Request) bool
	if len(cfg.Server.HTTP.CORSOrigins) > 0 {
		allowed := middleware.OriginMatcher(cfg.Server.HTTP.CORSOrigins)
		checkOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed(origin)
		}
	}
	rc.StreamHandler = handlers.NewStreamHandler(app.service, gauge, checkOrigin, logger)
	return httpserver.NewRouter(rc)
}

// watchLogLevel applies log.level edits of the config file without a
// restart. Other settings need one.
func watchLogLevel(path string, logger logging.Logger) {
	err := config.Watch(path, func(c *config.Config) {
		if err := logging.SetLevel(logger, logging.Level(c.Log.Level)); err != nil {
			logger.Warn("log level not changed", logging.Err(err))
			return
		}
		logger.Info("configuration reloaded", logging.String("log_level", c.Log.Level))
	}, func(err error) {
		logger.Warn("configuration reload rejected", logging.Err(err))
	})
	if err != nil {
		logger.Warn("configuration watch disabled", logging.Err(err))
	}
}
