package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/terminal-planner/internal/application/planning"
	"github.com/turtacn/terminal-planner/internal/domain/simulation"
	"github.com/turtacn/terminal-planner/internal/domain/terminal"
	"github.com/turtacn/terminal-planner/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/terminal-planner/internal/infrastructure/storage/minio"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

// ReportLister returns download links for the exported reports of a run.
type ReportLister interface {
	Links(ctx context.Context, runID string) ([]minio.ReportLink, error)
}

// SimulationHandler serves /api/v1/simulations.
type SimulationHandler struct {
	svc         planning.SimulationService
	reports     ReportLister
	maxBodySize int64
	logger      logging.Logger
}

// NewSimulationHandler creates a SimulationHandler. reports may be nil when
// object storage is disabled.
func NewSimulationHandler(svc planning.SimulationService, reports ReportLister, maxBodySize int64, logger logging.Logger) *SimulationHandler {
	if maxBodySize <= 0 {
		maxBodySize = 1 << 20
	}
	return &SimulationHandler{svc: svc, reports: reports, maxBodySize: maxBodySize, logger: logger}
}

// RegisterRoutes mounts the simulation endpoints on g.
func (h *SimulationHandler) RegisterRoutes(g *gin.RouterGroup) {
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.GET("/:id/npv", h.NPV)
	g.GET("/:id/elements", h.Elements)
	g.GET("/:id/reports", h.Reports)
}

// RunSummary is the listing view of a run.
type RunSummary struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Fingerprint string     `json:"fingerprint"`
	NPV         *float64   `json:"npv,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func summarise(run *simulation.Run) RunSummary {
	s := RunSummary{
		ID:          run.ID,
		Name:        run.Name,
		Status:      string(run.Status),
		Fingerprint: run.Fingerprint,
		Error:       run.Error,
		CreatedAt:   run.CreatedAt,
		CompletedAt: run.CompletedAt,
	}
	if npv, ok := run.NPV(); ok {
		s.NPV = &npv
	}
	return s
}

// ListResponse is the body of GET /simulations.
type ListResponse struct {
	Runs   []RunSummary `json:"runs"`
	Offset int          `json:"offset"`
	Limit  int          `json:"limit"`
}

// Create runs the scenario in the request body, JSON or YAML. The run
// completes before the response is written; ?no_cache=true forces a fresh run.
func (h *SimulationHandler) Create(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodySize))
	if err != nil {
		writeAppError(c, errors.New(errors.ErrCodeBadRequest, "request body too large or unreadable"))
		return
	}
	sc, err := planning.ParseScenario(body)
	if err != nil {
		writeAppError(c, err)
		return
	}
	noCache, _ := strconv.ParseBool(c.Query("no_cache"))

	run, err := h.svc.Simulate(c.Request.Context(), &planning.SimulateRequest{Scenario: sc, NoCache: noCache})
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.Header("Location", "/api/v1/simulations/"+run.ID)
	c.JSON(http.StatusCreated, run)
}

// List returns recent runs, newest first.
func (h *SimulationHandler) List(c *gin.Context) {
	offset, limit := parsePagination(c)
	opts := []simulation.QueryOption{simulation.WithPagination(offset, limit)}
	if s := c.Query("status"); s != "" {
		status := simulation.RunStatus(s)
		if !status.Valid() {
			writeAppError(c, errors.InvalidParam("unknown run status").WithDetail(s))
			return
		}
		opts = append(opts, simulation.WithStatus(status))
	}
	applied := simulation.ApplyOptions(opts...)

	runs, err := h.svc.ListRuns(c.Request.Context(), opts...)
	if err != nil {
		writeAppError(c, err)
		return
	}
	resp := ListResponse{Runs: make([]RunSummary, 0, len(runs)), Offset: applied.Offset, Limit: applied.Limit}
	for _, r := range runs {
		resp.Runs = append(resp.Runs, summarise(r))
	}
	c.JSON(http.StatusOK, resp)
}

// Get returns one run with its result.
func (h *SimulationHandler) Get(c *gin.Context) {
	run, err := h.svc.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// NPV returns the discounted cash-flow table of a completed run.
func (h *SimulationHandler) NPV(c *gin.Context) {
	table, err := h.svc.GetNPV(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, table)
}

// Elements returns the build plan, optionally filtered by ?kind=.
func (h *SimulationHandler) Elements(c *gin.Context) {
	elements, err := h.svc.Elements(c.Request.Context(), c.Param("id"), terminal.Kind(c.Query("kind")))
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": c.Param("id"), "elements": elements})
}

// Reports lists presigned links to the exported reports of a run.
func (h *SimulationHandler) Reports(c *gin.Context) {
	if h.reports == nil {
		writeAppError(c, errors.New(errors.ErrCodeServiceUnavailable, "report storage is disabled"))
		return
	}
	id := c.Param("id")
	if _, err := h.svc.GetRun(c.Request.Context(), id); err != nil {
		writeAppError(c, err)
		return
	}
	links, err := h.reports.Links(c.Request.Context(), id)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": id, "reports": links})
}
