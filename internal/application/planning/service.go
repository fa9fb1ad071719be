package planning

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/turtacn/terminal-planner/internal/config"
	"github.com/turtacn/terminal-planner/internal/domain/finance"
	"github.com/turtacn/terminal-planner/internal/domain/queueing"
	"github.com/turtacn/terminal-planner/internal/domain/simulation"
	"github.com/turtacn/terminal-planner/internal/domain/terminal"
	"github.com/turtacn/terminal-planner/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

// ---------------------------------------------------------------------------
// Request / response DTOs
// ---------------------------------------------------------------------------

// SimulateRequest asks the service to run one scenario.
type SimulateRequest struct {
	Scenario *Scenario
	// Observer additionally receives the run's events, e.g. for a CLI trace.
	Observer Observer
	// NoCache forces a fresh run even when an identical scenario was cached.
	NoCache bool
}

// Validate checks the request shape. Scenario contents are validated later
// against the parameter table.
func (r *SimulateRequest) Validate() error {
	if r == nil || r.Scenario == nil {
		return errors.New(errors.ErrCodeScenarioInvalid, "scenario is required")
	}
	return nil
}

// RunCompletedPayload is published once a run has finished.
type RunCompletedPayload struct {
	RunID       string  `json:"run_id"`
	Name        string  `json:"name"`
	Fingerprint string  `json:"fingerprint"`
	Status      string  `json:"status"`
	NPV         float64 `json:"npv"`
	Elements    int     `json:"elements"`
	Error       string  `json:"error,omitempty"`
	DurationMS  int64   `json:"duration_ms"`
}

// DecisionsPayload carries every planner event of a run, in decision order.
type DecisionsPayload struct {
	RunID  string  `json:"run_id"`
	Events []Event `json:"events"`
}

// Published event types.
const (
	EventTypeRunCompleted = "simulation.completed"
	EventTypeRunFailed    = "simulation.failed"
	EventTypeDecisions    = "simulation.decisions"
)

// ---------------------------------------------------------------------------
// Adapter interfaces (ports for infrastructure)
// ---------------------------------------------------------------------------

// Cache stores finished runs by id and by scenario fingerprint.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) error
}

// RunLocker serialises runs of the same scenario across replicas.
type RunLocker interface {
	Acquire(ctx context.Context, name string) (release func(context.Context) error, err error)
}

// EventPublisher forwards run events to a message bus.
type EventPublisher interface {
	Publish(ctx context.Context, key, eventType string, payload interface{}) error
}

// ReportExporter writes the reports of a finished run and returns their keys.
type ReportExporter interface {
	Export(ctx context.Context, run *simulation.Run) ([]string, error)
}

// MetricsCollector records operational metrics.
type MetricsCollector interface {
	ObserveRun(status string, duration time.Duration)
	IncElementsAdded(kind string, n int)
	IncCacheLookup(hit bool)
}

type noopMetrics struct{}

func (noopMetrics) ObserveRun(string, time.Duration) {}
func (noopMetrics) IncElementsAdded(string, int)     {}
func (noopMetrics) IncCacheLookup(bool)              {}

type noopCache struct{}

func (noopCache) Get(context.Context, string, interface{}) error {
	return errors.NotFound("cache miss")
}
func (noopCache) Set(context.Context, string, interface{}, time.Duration) error {
	return nil
}
func (noopCache) Delete(context.Context, ...string) error { return nil }
func (noopCache) GetOrSet(ctx context.Context, _ string, dest interface{}, _ time.Duration, loader func(ctx context.Context) (interface{}, error)) error {
	v, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "encode cached value")
	}
	return json.Unmarshal(raw, dest)
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, string, interface{}) error { return nil }

type noopExporter struct{}

func (noopExporter) Export(context.Context, *simulation.Run) ([]string, error) { return nil, nil }

// ---------------------------------------------------------------------------
// In-memory repository
// ---------------------------------------------------------------------------

// MemoryRunRepository keeps runs in process memory. It backs the CLI and
// deployments without a database.
type MemoryRunRepository struct {
	mu   sync.RWMutex
	runs map[string]*simulation.Run
}

// NewMemoryRunRepository returns an empty repository.
func NewMemoryRunRepository() *MemoryRunRepository {
	return &MemoryRunRepository{runs: make(map[string]*simulation.Run)}
}

// Save stores a copy of run.
func (m *MemoryRunRepository) Save(_ context.Context, run *simulation.Run) error {
	if run == nil || run.ID == "" {
		return errors.InvalidParam("run id is required")
	}
	cp := *run
	m.mu.Lock()
	m.runs[run.ID] = &cp
	m.mu.Unlock()
	return nil
}

// FindByID returns a copy of the run.
func (m *MemoryRunRepository) FindByID(_ context.Context, id string) (*simulation.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeSimulationNotFound, "simulation run not found").WithDetail(id)
	}
	cp := *run
	return &cp, nil
}

// FindByFingerprint returns the most recent completed run of a scenario.
func (m *MemoryRunRepository) FindByFingerprint(_ context.Context, fingerprint string) (*simulation.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *simulation.Run
	for _, run := range m.runs {
		if run.Fingerprint != fingerprint || run.Status != simulation.RunStatusCompleted {
			continue
		}
		if found == nil || newerRun(run, found) {
			found = run
		}
	}
	if found == nil {
		return nil, errors.New(errors.ErrCodeSimulationNotFound, "no completed run for fingerprint").WithDetail(fingerprint)
	}
	cp := *found
	return &cp, nil
}

// newerRun orders runs newest first, then by id.
func newerRun(a, b *simulation.Run) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// List returns runs newest first, ties broken by id.
func (m *MemoryRunRepository) List(_ context.Context, opts ...simulation.QueryOption) ([]*simulation.Run, error) {
	o := simulation.ApplyOptions(opts...)
	m.mu.RLock()
	all := make([]*simulation.Run, 0, len(m.runs))
	for _, run := range m.runs {
		if o.Status != "" && run.Status != o.Status {
			continue
		}
		cp := *run
		all = append(all, &cp)
	}
	m.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool { return newerRun(all[i], all[j]) })
	if o.Offset >= len(all) {
		return []*simulation.Run{}, nil
	}
	end := o.Offset + o.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[o.Offset:end], nil
}

// Elements returns the build plan of a run, optionally restricted to kind.
func (m *MemoryRunRepository) Elements(ctx context.Context, runID string, kind terminal.Kind) ([]terminal.Element, error) {
	run, err := m.FindByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Result == nil {
		return []terminal.Element{}, nil
	}
	if kind == "" {
		return append([]terminal.Element(nil), run.Result.Elements...), nil
	}
	return run.Result.ElementsOf(kind), nil
}

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

const (
	defaultResultCacheTTL  = 24 * time.Hour
	defaultRunTimeout      = 2 * time.Minute
	cacheKeyPrefixRun      = "simulation:run:"
	cacheKeyPrefixScenario = "simulation:fingerprint:"
)

// ---------------------------------------------------------------------------
// SimulationService interface
// ---------------------------------------------------------------------------

// SimulationService runs scenarios and serves their results.
type SimulationService interface {
	// Simulate validates and runs a scenario, or returns the cached run of an
	// identical scenario.
	Simulate(ctx context.Context, req *SimulateRequest) (*simulation.Run, error)

	// GetRun returns a run by id.
	GetRun(ctx context.Context, id string) (*simulation.Run, error)

	// GetNPV returns the discounted cash-flow table of a completed run.
	GetNPV(ctx context.Context, id string) (*finance.NPVTable, error)

	// ListRuns returns recent runs.
	ListRuns(ctx context.Context, opts ...simulation.QueryOption) ([]*simulation.Run, error)

	// Elements returns the build plan of a run.
	Elements(ctx context.Context, id string, kind terminal.Kind) ([]terminal.Element, error)

	// Subscribe streams planner events of every run started after the call.
	Subscribe() (<-chan StreamEvent, func())
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

// ServiceConfig holds tuneable parameters.
type ServiceConfig struct {
	Simulation config.SimulationConfig
	Finance    config.FinanceConfig
	CacheTTL   time.Duration
	RunTimeout time.Duration
}

// DefaultServiceConfig returns production defaults.
func DefaultServiceConfig() *ServiceConfig {
	defaults := config.NewDefaultConfig()
	return &ServiceConfig{
		Simulation: defaults.Simulation,
		Finance:    defaults.Finance,
		CacheTTL:   defaultResultCacheTTL,
		RunTimeout: defaultRunTimeout,
	}
}

// ServiceDeps are the collaborators of the service. Every field is optional.
type ServiceDeps struct {
	Repository  simulation.RunRepository
	Cache       Cache
	Locker      RunLocker
	Publisher   EventPublisher
	Exporter    ReportExporter
	Metrics     MetricsCollector
	Broadcaster *Broadcaster
	Queue       *queueing.Model
	Logger      logging.Logger
}

type simulationServiceImpl struct {
	params      terminal.Parameters
	repo        simulation.RunRepository
	cache       Cache
	locker      RunLocker
	publisher   EventPublisher
	exporter    ReportExporter
	metrics     MetricsCollector
	broadcaster *Broadcaster
	queue       *queueing.Model
	logger      logging.Logger
	config      *ServiceConfig
}

// NewSimulationService constructs a SimulationService that prices elements
// with params.
func NewSimulationService(params terminal.Parameters, deps ServiceDeps, cfg *ServiceConfig) (SimulationService, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultResultCacheTTL
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}

	s := &simulationServiceImpl{
		params:      params,
		repo:        deps.Repository,
		cache:       deps.Cache,
		locker:      deps.Locker,
		publisher:   deps.Publisher,
		exporter:    deps.Exporter,
		metrics:     deps.Metrics,
		broadcaster: deps.Broadcaster,
		queue:       deps.Queue,
		logger:      deps.Logger,
		config:      cfg,
	}
	if s.repo == nil {
		s.repo = NewMemoryRunRepository()
	}
	if s.cache == nil {
		s.cache = noopCache{}
	}
	if s.locker == nil {
		s.locker = noopLocker{}
	}
	if s.publisher == nil {
		s.publisher = noopPublisher{}
	}
	if s.exporter == nil {
		s.exporter = noopExporter{}
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.broadcaster == nil {
		s.broadcaster = NewBroadcaster(0)
	}
	if s.queue == nil {
		s.queue = queueing.Default()
	}
	if s.logger == nil {
		s.logger = logging.NewNopLogger()
	}
	s.logger = s.logger.Named("simulation")
	return s, nil
}

// Simulate implements SimulationService.
func (s *simulationServiceImpl) Simulate(ctx context.Context, req *SimulateRequest) (*simulation.Run, error) {
	// 1. Validate the request and fill defaults from configuration.
	if err := req.Validate(); err != nil {
		return nil, err
	}
	sc := *req.Scenario
	sc.ApplyDefaults(s.config.Simulation, s.config.Finance)
	if err := sc.Validate(s.params); err != nil {
		return nil, err
	}
	fingerprint, err := sc.Fingerprint(s.params)
	if err != nil {
		return nil, err
	}
	log := s.logger.With(logging.String("scenario", sc.Name), logging.String("fingerprint", fingerprint[:12]))

	// 2. Serve an identical scenario from the cache.
	if !req.NoCache {
		if run, ok := s.cachedRun(ctx, fingerprint); ok {
			log.Info("serving cached simulation", logging.String(logging.FieldRunID, run.ID))
			return run, nil
		}
	}

	// 3. One replica runs a scenario at a time; the others wait and reuse it.
	release, err := s.locker.Acquire(ctx, fingerprint)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConflict, "acquire simulation lock")
	}
	defer func() {
		if rerr := release(context.Background()); rerr != nil {
			log.Warn("failed to release simulation lock", logging.Err(rerr))
		}
	}()
	if !req.NoCache {
		if run, ok := s.cachedRun(ctx, fingerprint); ok {
			return run, nil
		}
	}

	// 4. Record the run.
	raw, err := json.Marshal(&sc)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "encode scenario")
	}
	run := simulation.NewRun(sc.Name, fingerprint, raw)
	if err := run.Start(); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, run); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "save simulation run")
	}
	log = log.With(logging.String(logging.FieldRunID, run.ID))
	ctx = logging.WithRunID(ctx, run.ID)

	// 5. Run the driver.
	recorder := &Recorder{}
	observer := Observers(recorder, NewLoggingObserver(log), s.broadcaster.Observer(run.ID), req.Observer)
	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()
	start := time.Now()
	result, runErr := Simulate(runCtx, &sc, s.params, WithQueueModel(s.queue), WithObserver(observer))
	elapsed := time.Since(start)

	if runErr != nil {
		return nil, s.fail(ctx, log, run, runErr, elapsed)
	}

	// 6. Persist and cache the result.
	if err := run.Complete(result); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, run); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "save simulation result")
	}
	s.cacheRun(ctx, log, run)

	// 7. Publish, export and record metrics. Failures here do not fail the run.
	s.publish(ctx, log, run.ID, EventTypeDecisions, DecisionsPayload{RunID: run.ID, Events: recorder.Events()})
	s.publish(ctx, log, run.ID, EventTypeRunCompleted, completedPayload(run, elapsed))
	if keys, err := s.exporter.Export(ctx, run); err != nil {
		log.Warn("failed to export simulation reports", logging.Err(err))
	} else if len(keys) > 0 {
		log.Info("exported simulation reports", logging.Any("objects", keys))
	}
	s.metrics.ObserveRun(string(simulation.RunStatusCompleted), elapsed)
	for kind, n := range countKinds(result.Elements) {
		s.metrics.IncElementsAdded(kind.String(), n)
	}

	npv, _ := run.NPV()
	log.Info("simulation completed",
		logging.Int("elements", len(result.Elements)),
		logging.Float64("npv", npv),
		logging.Duration("elapsed", elapsed),
	)
	return run, nil
}

func (s *simulationServiceImpl) fail(ctx context.Context, log logging.Logger, run *simulation.Run, cause error, elapsed time.Duration) error {
	log.Error("simulation failed", logging.Err(cause))
	if err := run.Fail(cause); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, run); err != nil {
		log.Warn("failed to save failed run", logging.Err(err))
	}
	s.publish(ctx, log, run.ID, EventTypeRunFailed, completedPayload(run, elapsed))
	s.metrics.ObserveRun(string(simulation.RunStatusFailed), elapsed)
	switch {
	case errors.GetCode(cause) != errors.CodeUnknown:
		return cause
	case stderrors.Is(cause, context.DeadlineExceeded):
		return errors.Wrap(cause, errors.ErrCodeTimeout, "simulation timed out")
	case stderrors.Is(cause, context.Canceled):
		return cause
	}
	return errors.Wrap(cause, errors.ErrCodeInternal, "simulation failed")
}

func (s *simulationServiceImpl) cachedRun(ctx context.Context, fingerprint string) (*simulation.Run, bool) {
	var run simulation.Run
	if err := s.cache.Get(ctx, cacheKeyPrefixScenario+fingerprint, &run); err != nil {
		s.metrics.IncCacheLookup(false)
		return nil, false
	}
	s.metrics.IncCacheLookup(true)
	return &run, true
}

func (s *simulationServiceImpl) cacheRun(ctx context.Context, log logging.Logger, run *simulation.Run) {
	if err := s.cache.Set(ctx, cacheKeyPrefixScenario+run.Fingerprint, run, s.config.CacheTTL); err != nil {
		log.Warn("failed to cache simulation", logging.Err(err))
	}
	if err := s.cache.Set(ctx, cacheKeyPrefixRun+run.ID, run, s.config.CacheTTL); err != nil {
		log.Warn("failed to cache simulation", logging.Err(err))
	}
}

func (s *simulationServiceImpl) publish(ctx context.Context, log logging.Logger, key, eventType string, payload interface{}) {
	if err := s.publisher.Publish(ctx, key, eventType, payload); err != nil {
		log.Warn("failed to publish simulation event", logging.String("event_type", eventType), logging.Err(err))
	}
}

// GetRun implements SimulationService.
func (s *simulationServiceImpl) GetRun(ctx context.Context, id string) (*simulation.Run, error) {
	if id == "" {
		return nil, errors.InvalidParam("run id is required")
	}
	var run simulation.Run
	err := s.cache.GetOrSet(ctx, cacheKeyPrefixRun+id, &run, s.config.CacheTTL, func(ctx context.Context) (interface{}, error) {
		return s.repo.FindByID(ctx, id)
	})
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.New(errors.ErrCodeSimulationNotFound, "simulation run not found").WithDetail(id)
		}
		return nil, err
	}
	return &run, nil
}

// GetNPV implements SimulationService.
func (s *simulationServiceImpl) GetNPV(ctx context.Context, id string) (*finance.NPVTable, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status != simulation.RunStatusCompleted || run.Result == nil || run.Result.NPV == nil {
		return nil, errors.InvalidState(fmt.Sprintf("simulation run %s is %s", id, run.Status))
	}
	return run.Result.NPV, nil
}

// ListRuns implements SimulationService.
func (s *simulationServiceImpl) ListRuns(ctx context.Context, opts ...simulation.QueryOption) ([]*simulation.Run, error) {
	return s.repo.List(ctx, opts...)
}

// Elements implements SimulationService.
func (s *simulationServiceImpl) Elements(ctx context.Context, id string, kind terminal.Kind) ([]terminal.Element, error) {
	if kind != "" && !kind.Valid() {
		return nil, errors.InvalidParam("unknown element kind").WithDetail(kind.String())
	}
	return s.repo.Elements(ctx, id, kind)
}

// Subscribe implements SimulationService.
func (s *simulationServiceImpl) Subscribe() (<-chan StreamEvent, func()) {
	return s.broadcaster.Subscribe()
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func completedPayload(run *simulation.Run, elapsed time.Duration) RunCompletedPayload {
	p := RunCompletedPayload{
		RunID:       run.ID,
		Name:        run.Name,
		Fingerprint: run.Fingerprint,
		Status:      string(run.Status),
		Error:       run.Error,
		DurationMS:  elapsed.Milliseconds(),
	}
	if npv, ok := run.NPV(); ok {
		p.NPV = npv
	}
	if run.Result != nil {
		p.Elements = len(run.Result.Elements)
	}
	return p
}

func countKinds(elements []terminal.Element) map[terminal.Kind]int {
	out := make(map[terminal.Kind]int)
	for _, e := range elements {
		out[e.Kind]++
	}
	return out
}
