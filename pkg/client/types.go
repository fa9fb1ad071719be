package client

import (
	"encoding/json"
	"time"
)

// Run statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Horizon is the simulated period: Lifecycle years from Start.
type Horizon struct {
	Start     int `json:"start"`
	Lifecycle int `json:"lifecycle"`
}

// Element is one asset of the build plan.
type Element struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Kind         string   `json:"kind"`
	DeliveryTime int      `json:"delivery_time"`
	YearOnline   int      `json:"year_online"`
	Capex        float64  `json:"capex"`
	Maintenance  *float64 `json:"maintenance,omitempty"`
	Insurance    *float64 `json:"insurance,omitempty"`
	Energy       *float64 `json:"energy,omitempty"`
	Labour       *float64 `json:"labour,omitempty"`
}

// YearSummary is the traffic and terminal performance of one year.
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

// NPVRow is one discounted year. Costs are negative.
type NPVRow struct {
	Year    int     `json:"year"`
	Capex   float64 `json:"capex"`
	Opex    float64 `json:"opex"`
	Revenue float64 `json:"revenue"`
	PV      float64 `json:"pv"`
	CumPV   float64 `json:"cum_pv"`
}

// NPVTable is the discounted cash flow of a run.
type NPVTable struct {
	WACCNominal float64  `json:"wacc_nominal"`
	WACCReal    float64  `json:"wacc_real"`
	Rows        []NPVRow `json:"rows"`
	NPV         float64  `json:"npv"`
}

// Result is the outcome of a completed run. Portfolio is the undiscounted
// yearly cash-flow table, left undecoded.
type Result struct {
	Horizon   Horizon         `json:"horizon"`
	Elements  []Element       `json:"elements"`
	Years     []YearSummary   `json:"years"`
	Portfolio json.RawMessage `json:"portfolio,omitempty"`
	NPV       *NPVTable       `json:"npv"`
}

// Run is one simulation as returned by the server.
type Run struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Fingerprint string          `json:"fingerprint"`
	Status      string          `json:"status"`
	Scenario    json.RawMessage `json:"scenario,omitempty"`
	Result      *Result         `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
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

// RunList is one page of runs.
type RunList struct {
	Runs   []RunSummary `json:"runs"`
	Offset int          `json:"offset"`
	Limit  int          `json:"limit"`
}

// ReportLink points at one exported report of a run.
type ReportLink struct {
	Name         string    `json:"name"`
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	URL          string    `json:"url"`
	LastModified time.Time `json:"last_modified"`
}

// StreamEvent is one planner decision pushed over the live stream. Only the
// fields relevant to Type are set.
type StreamEvent struct {
	RunID     string   `json:"run_id"`
	Type      string   `json:"type"`
	Year      int      `json:"year"`
	Kind      string   `json:"kind,omitempty"`
	Value     float64  `json:"value,omitempty"`
	Unbounded bool     `json:"unbounded,omitempty"`
	Target    float64  `json:"target,omitempty"`
	Triggered bool     `json:"triggered,omitempty"`
	Element   *Element `json:"element,omitempty"`

	Summary *YearSummary `json:"summary,omitempty"`
	NPV     float64      `json:"npv,omitempty"`
}
