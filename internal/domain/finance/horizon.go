// Package finance turns element cost scalars into per-year cash-flow series,
// aggregates them into a terminal portfolio and discounts the result.
package finance

import (
	"github.com/turtacn/terminal-planner/pkg/errors"
)

// Horizon is the simulated period [Start, Start+Lifecycle).
type Horizon struct {
	Start     int `json:"start"`
	Lifecycle int `json:"lifecycle"`
}

// Validate rejects empty horizons.
func (h Horizon) Validate() error {
	if h.Lifecycle < 1 {
		return errors.New(errors.ErrCodeHorizonInvalid, "lifecycle must be >= 1").
			WithDetailf("lifecycle=%d", h.Lifecycle)
	}
	return nil
}

// End is the first year after the horizon.
func (h Horizon) End() int { return h.Start + h.Lifecycle }

// Years lists every year of the horizon in order.
func (h Horizon) Years() []int {
	if h.Lifecycle < 1 {
		return nil
	}
	out := make([]int, h.Lifecycle)
	for i := range out {
		out[i] = h.Start + i
	}
	return out
}

// Index returns the position of year in the horizon.
func (h Horizon) Index(year int) (int, bool) {
	if year < h.Start || year >= h.End() {
		return 0, false
	}
	return year - h.Start, true
}
