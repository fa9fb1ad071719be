package finance

import (
	"github.com/turtacn/terminal-planner/internal/domain/terminal"
)

// Capex phasing of elements that take more than one year to deliver.
const (
	FirstBuildYearShare  = 0.6
	SecondBuildYearShare = 0.4
)

// BuildCashflow spreads the capex and opex scalars of e over h.
//
// Capex lands in the year(s) before YearOnline: 60/40 over the two preceding
// years when the delivery time exceeds one year, otherwise all of it in the
// preceding year. Capex falling outside the horizon is dropped. Each present
// opex scalar applies unchanged from YearOnline to the end of the horizon.
func BuildCashflow(e terminal.Element, h Horizon) (terminal.Cashflow, error) {
	if err := h.Validate(); err != nil {
		return terminal.Cashflow{}, err
	}
	n := h.Lifecycle
	cf := terminal.Cashflow{
		Years:       h.Years(),
		Capex:       make([]float64, n),
		Maintenance: make([]float64, n),
		Insurance:   make([]float64, n),
		Energy:      make([]float64, n),
		Labour:      make([]float64, n),
	}

	put := func(year int, amount float64) {
		if i, ok := h.Index(year); ok {
			cf.Capex[i] += amount
		}
	}
	if e.DeliveryTime > 1 {
		put(e.YearOnline-2, FirstBuildYearShare*e.Capex)
		put(e.YearOnline-1, SecondBuildYearShare*e.Capex)
	} else {
		put(e.YearOnline-1, e.Capex)
	}

	for _, col := range []struct {
		dst []float64
		src *float64
	}{
		{cf.Maintenance, e.Maintenance},
		{cf.Insurance, e.Insurance},
		{cf.Energy, e.Energy},
		{cf.Labour, e.Labour},
	} {
		if col.src == nil {
			continue
		}
		for i, year := range cf.Years {
			if year >= e.YearOnline {
				col.dst[i] = *col.src
			}
		}
	}
	return cf, nil
}
