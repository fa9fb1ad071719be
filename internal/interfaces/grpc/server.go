// Package grpc serves the planner over gRPC next to the HTTP API: the planner
// service with JSON-encoded messages, the standard health service fed by the
// same dependency checks as /readyz, and reflection on request.
package grpc

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/turtacn/terminal-planner/internal/config"
	"github.com/turtacn/terminal-planner/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

const healthCheckTimeout = 3 * time.Second

var keepaliveParams = keepalive.ServerParameters{
	MaxConnectionIdle:     15 * time.Minute,
	MaxConnectionAgeGrace: 5 * time.Second,
	Time:                  5 * time.Minute,
	Timeout:               time.Second,
}

// RPCRecorder receives one observation per finished call or stream.
type RPCRecorder interface {
	ObserveRPC(service, method, code string, d time.Duration)
}

// HealthChecker checks one dependency of the planner.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// Validator is implemented by requests that can check themselves.
type Validator interface {
	Validate() error
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records every call on m.
func WithMetrics(m RPCRecorder) Option {
	return func(s *Server) { s.metrics = m }
}

func WithTLSConfig(tc *tls.Config) Option {
	return func(s *Server) { s.tls = tc }
}

// Server owns the gRPC listener and the health status it reports.
type Server struct {
	cfg     config.GRPCConfig
	logger  logging.Logger
	metrics RPCRecorder
	tls     *tls.Config

	gs       *grpc.Server
	health   *health.Server
	listener net.Listener

	mu       sync.Mutex
	services []string
	ready    bool
}

// NewServer binds the listener and registers the health service, which
// reports NOT_SERVING until SetReady or WatchHealth says otherwise.
func NewServer(cfg config.GRPCConfig, opts ...Option) (*Server, error) {
	s := &Server{cfg: cfg, logger: logging.NewNopLogger()}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.Named("grpc")

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "grpc listen").WithDetail(addr)
	}
	s.listener = lis

	serverOpts := []grpc.ServerOption{
		grpc.KeepaliveParams(keepaliveParams),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{MinTime: 5 * time.Second, PermitWithoutStream: true}),
		grpc.ChainUnaryInterceptor(
			recoverUnary(s.logger),
			logUnary(s.logger),
			s.observeUnary,
			statusUnary,
			validateUnary,
		),
		grpc.ChainStreamInterceptor(
			recoverStream(s.logger),
			logStream(s.logger),
			s.observeStream,
			statusStream,
		),
	}
	if cfg.MaxRecvMsgSize > 0 {
		serverOpts = append(serverOpts, grpc.MaxRecvMsgSize(cfg.MaxRecvMsgSize))
	}
	if s.tls != nil {
		serverOpts = append(serverOpts, grpc.Creds(credentials.NewTLS(s.tls)))
	}
	s.gs = grpc.NewServer(serverOpts...)

	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.gs, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	if cfg.Reflection {
		reflection.Register(s.gs)
		s.logger.Info("grpc reflection enabled")
	}
	return s, nil
}

// RegisterService adds a service. Its health status follows the server's.
func (s *Server) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	s.gs.RegisterService(desc, impl)
	s.mu.Lock()
	s.services = append(s.services, desc.ServiceName)
	ready := s.ready
	s.mu.Unlock()
	s.health.SetServingStatus(desc.ServiceName, servingStatus(ready))
	s.logger.Info("grpc service registered", logging.String("service", desc.ServiceName))
}

func servingStatus(ready bool) healthpb.HealthCheckResponse_ServingStatus {
	if ready {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// SetReady sets the status of the server and every registered service.
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	changed := s.ready != ready
	s.ready = ready
	names := append([]string{""}, s.services...)
	s.mu.Unlock()

	st := servingStatus(ready)
	for _, name := range names {
		s.health.SetServingStatus(name, st)
	}
	if changed {
		s.logger.Info("grpc health changed", logging.String("status", st.String()))
	}
}

// CheckHealth runs every checker and marks the server ready if all pass.
func (s *Server) CheckHealth(ctx context.Context, checks ...HealthChecker) bool {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	ready := true
	for _, c := range checks {
		if err := c.Check(ctx); err != nil {
			s.logger.Warn("dependency not ready", logging.String("component", c.Name()), logging.Err(err))
			ready = false
		}
	}
	s.SetReady(ready)
	return ready
}

// WatchHealth checks once, then every interval until ctx is done.
func (s *Server) WatchHealth(ctx context.Context, interval time.Duration, checks ...HealthChecker) {
	s.CheckHealth(ctx, checks...)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckHealth(ctx, checks...)
		}
	}
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("grpc server listening", logging.String("addr", s.Addr()))
	if err := s.gs.Serve(s.listener); err != nil && !stderrors.Is(err, grpc.ErrServerStopped) {
		return errors.Wrap(err, errors.ErrCodeInternal, "grpc serve")
	}
	return nil
}

// Stop reports NOT_SERVING, then drains calls for up to the graceful timeout
// before closing the remaining ones.
func (s *Server) Stop(ctx context.Context) error {
	s.health.Shutdown()

	timeout := s.cfg.GracefulTimeout
	if timeout <= 0 {
		timeout = config.DefaultGRPCGracefulTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("grpc server stopped")
	case <-ctx.Done():
		s.logger.Warn("grpc drain timed out, closing open calls")
		s.gs.Stop()
	}
	return nil
}

// Addr is the bound address, useful with port 0.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// ---------------------------------------------------------------------------
// Interceptors, outermost first.
// ---------------------------------------------------------------------------

func recovered(logger logging.Logger, method string, r interface{}) error {
	logger.Error("grpc handler panicked",
		logging.String("method", method),
		logging.String("panic", fmt.Sprint(r)),
		logging.String("stack", string(debug.Stack())))
	return status.Error(codes.Internal, "internal error")
}

func recoverUnary(logger logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = recovered(logger, info.FullMethod, r)
			}
		}()
		return next(ctx, req)
	}
}

func recoverStream(logger logging.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = recovered(logger, info.FullMethod, r)
			}
		}()
		return next(srv, ss)
	}
}

func isHealthMethod(method string) bool {
	return strings.HasPrefix(method, "/grpc.health.v1.Health/")
}

func logCall(logger logging.Logger, kind, method string, start time.Time, err error) {
	if isHealthMethod(method) {
		return
	}
	fields := []logging.Field{
		logging.String("method", method),
		logging.Duration("elapsed", time.Since(start)),
		logging.String("code", status.Code(err).String()),
	}
	if err != nil && status.Code(err) == codes.Internal {
		logger.Error("grpc "+kind+" failed", append(fields, logging.Err(err))...)
		return
	}
	logger.Info("grpc "+kind, fields...)
}

func logUnary(logger logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		logCall(logger, "call", info.FullMethod, start, err)
		return resp, err
	}
}

func logStream(logger logging.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
		start := time.Now()
		err := next(srv, ss)
		logCall(logger, "stream", info.FullMethod, start, err)
		return err
	}
}

func (s *Server) observe(method string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	service, name := splitMethod(method)
	s.metrics.ObserveRPC(service, name, status.Code(err).String(), time.Since(start))
}

func (s *Server) observeUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := next(ctx, req)
	s.observe(info.FullMethod, start, err)
	return resp, err
}

func (s *Server) observeStream(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
	start := time.Now()
	err := next(srv, ss)
	s.observe(info.FullMethod, start, err)
	return err
}

func statusUnary(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, next grpc.UnaryHandler) (interface{}, error) {
	resp, err := next(ctx, req)
	return resp, toStatus(err)
}

func statusStream(srv interface{}, ss grpc.ServerStream, _ *grpc.StreamServerInfo, next grpc.StreamHandler) error {
	return toStatus(next(srv, ss))
}

func validateUnary(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, next grpc.UnaryHandler) (interface{}, error) {
	if v, ok := req.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	return next(ctx, req)
}

// toStatus converts application errors to gRPC statuses. The message keeps
// the application code, e.g. "[SIM_001] invalid scenario".
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case stderrors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case stderrors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codeForHTTP(errors.HTTPStatusForCode(errors.GetCode(err))), err.Error())
}

func codeForHTTP(httpStatus int) codes.Code {
	switch httpStatus {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return codes.InvalidArgument
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusConflict:
		return codes.FailedPrecondition
	case http.StatusServiceUnavailable:
		return codes.Unavailable
	case http.StatusGatewayTimeout:
		return codes.DeadlineExceeded
	}
	return codes.Internal
}

// splitMethod splits "/pkg.Service/Method".
func splitMethod(full string) (service, method string) {
	full = strings.TrimPrefix(full, "/")
	if i := strings.LastIndex(full, "/"); i >= 0 {
		return full[:i], full[i+1:]
	}
	return "unknown", full
}
