// Package simulation holds the record of a planning run: its status, the
// scenario it was started from and the result the driver produced.
package simulation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/terminal-planner/internal/domain/finance"
	"github.com/turtacn/terminal-planner/internal/domain/terminal"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether the run has finished.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

// YearSummary is the traffic and terminal performance of one year.
// OnlineOccupancy and WaitingFactor are nil while no berth or crane is online.
type YearSummary struct {
	Year            int      `json:"year"`
	Volume          float64  `json:"volume"`
	Calls           int      `json:"calls"`
	BerthOccupancy  float64  `json:"berth_occupancy"`
	OnlineOccupancy *float64 `json:"online_occupancy,omitempty"`
	WaitingFactor   *float64 `json:"waiting_factor,omitempty"`
	Demurrage       float64  `json:"demurrage"`
	Revenue         float64  `json:"revenue"`
	Elements        int      `json:"elements"`
}

// Result is the outcome of one run: the build plan, the yearly summaries and
// the discounted portfolio.
type Result struct {
	Horizon   finance.Horizon    `json:"horizon"`
	Elements  []terminal.Element `json:"elements"`
	Years     []YearSummary      `json:"years"`
	Portfolio *finance.Portfolio `json:"portfolio"`
	NPV       *finance.NPVTable  `json:"npv"`
}

// ElementsOf returns the elements of kind k in build order.
func (r *Result) ElementsOf(k terminal.Kind) []terminal.Element {
	var out []terminal.Element
	for _, e := range r.Elements {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// Run is one simulation request and, once finished, its result.
type Run struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Fingerprint string          `json:"fingerprint"`
	Status      RunStatus       `json:"status"`
	Scenario    json.RawMessage `json:"scenario,omitempty"`
	Result      *Result         `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// NewRun creates a pending run.
func NewRun(name, fingerprint string, scenario json.RawMessage) *Run {
	return &Run{
		ID:          uuid.New().String(),
		Name:        name,
		Fingerprint: fingerprint,
		Status:      RunStatusPending,
		Scenario:    scenario,
		CreatedAt:   time.Now().UTC(),
	}
}

// Start moves a pending run to running.
func (r *Run) Start() error {
	if r.Status != RunStatusPending {
		return errors.InvalidState("run " + r.ID + " is " + string(r.Status))
	}
	r.Status = RunStatusRunning
	return nil
}

// Complete records the result of a running run.
func (r *Run) Complete(res *Result) error {
	if r.Status != RunStatusRunning {
		return errors.InvalidState("run " + r.ID + " is " + string(r.Status))
	}
	if res == nil {
		return errors.InvalidParam("result is nil")
	}
	now := time.Now().UTC()
	r.Status = RunStatusCompleted
	r.Result = res
	r.CompletedAt = &now
	return nil
}

// Fail records why a run stopped. It is allowed from any non-terminal state.
func (r *Run) Fail(cause error) error {
	if r.Status.IsTerminal() {
		return errors.InvalidState("run " + r.ID + " is " + string(r.Status))
	}
	now := time.Now().UTC()
	r.Status = RunStatusFailed
	if cause != nil {
		r.Error = cause.Error()
	}
	r.CompletedAt = &now
	return nil
}

// NPV returns the run's net present value, or false while no result exists.
func (r *Run) NPV() (float64, bool) {
	if r.Result == nil || r.Result.NPV == nil {
		return 0, false
	}
	return r.Result.NPV.NPV, true
}

// Duration is the wall time between creation and completion.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.CreatedAt)
}
