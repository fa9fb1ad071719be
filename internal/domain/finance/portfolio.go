package finance

import (
	"gonum.org/v1/gonum/floats"

	"github.com/turtacn/terminal-planner/internal/domain/terminal"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

// Row is one year of the portfolio cash-flow table.
type Row struct {
	Year        int     `json:"year"`
	Capex       float64 `json:"capex"`
	Maintenance float64 `json:"maintenance"`
	Insurance   float64 `json:"insurance"`
	Energy      float64 `json:"energy"`
	Labour      float64 `json:"labour"`
	Demurrage   float64 `json:"demurrage"`
	Revenue     float64 `json:"revenue"`
}

// Opex is the sum of the recurring cost columns.
func (r Row) Opex() float64 {
	return r.Maintenance + r.Insurance + r.Energy + r.Demurrage + r.Labour
}

// Portfolio is the year-indexed sum of every element's cash flow plus the
// terminal-level demurrage, revenue and labour lines.
type Portfolio struct {
	Horizon Horizon `json:"horizon"`
	Rows    []Row   `json:"rows"`
}

// AggregateInput collects what Aggregate needs. Demurrage and Revenue are
// aligned with the horizon; nil means zero in every year. TerminalLabour is
// added to the labour column in every year with non-zero revenue.
type AggregateInput struct {
	Horizon        Horizon
	Elements       []terminal.Element
	Demurrage      []float64
	Revenue        []float64
	TerminalLabour float64
}

// Aggregate sums the element series column by column. Elements without an
// attached cash flow contribute nothing.
func Aggregate(in AggregateInput) (*Portfolio, error) {
	h := in.Horizon
	if err := h.Validate(); err != nil {
		return nil, err
	}
	n := h.Lifecycle
	demurrage, err := aligned(in.Demurrage, n, "demurrage")
	if err != nil {
		return nil, err
	}
	revenue, err := aligned(in.Revenue, n, "revenue")
	if err != nil {
		return nil, err
	}

	capex := make([]float64, n)
	maintenance := make([]float64, n)
	insurance := make([]float64, n)
	energy := make([]float64, n)
	labour := make([]float64, n)

	for i := range in.Elements {
		cf := in.Elements[i].Cashflow
		if cf == nil {
			continue
		}
		if cf.Len() != n || cf.Years[0] != h.Start {
			return nil, errors.New(errors.ErrCodeHorizonInvalid, "element cash flow does not match horizon").
				WithDetail(in.Elements[i].Name)
		}
		floats.Add(capex, cf.Capex)
		floats.Add(maintenance, cf.Maintenance)
		floats.Add(insurance, cf.Insurance)
		floats.Add(energy, cf.Energy)
		floats.Add(labour, cf.Labour)
	}

	p := &Portfolio{Horizon: h, Rows: make([]Row, n)}
	for i, year := range h.Years() {
		row := Row{
			Year:        year,
			Capex:       capex[i],
			Maintenance: maintenance[i],
			Insurance:   insurance[i],
			Energy:      energy[i],
			Labour:      labour[i],
			Demurrage:   demurrage[i],
			Revenue:     revenue[i],
		}
		if row.Revenue != 0 {
			row.Labour += in.TerminalLabour
		}
		p.Rows[i] = row
	}
	return p, nil
}

func aligned(s []float64, n int, name string) ([]float64, error) {
	if s == nil {
		return make([]float64, n), nil
	}
	if len(s) != n {
		return nil, errors.New(errors.ErrCodeHorizonInvalid, "series does not match horizon").
			WithDetailf("%s has %d values, horizon has %d", name, len(s), n)
	}
	return s, nil
}

// Column returns one named column: capex, maintenance, insurance, energy,
// labour, demurrage or revenue.
func (p *Portfolio) Column(name string) ([]float64, error) {
	out := make([]float64, len(p.Rows))
	for i, r := range p.Rows {
		switch name {
		case "capex":
			out[i] = r.Capex
		case "maintenance":
			out[i] = r.Maintenance
		case "insurance":
			out[i] = r.Insurance
		case "energy":
			out[i] = r.Energy
		case "labour":
			out[i] = r.Labour
		case "demurrage":
			out[i] = r.Demurrage
		case "revenue":
			out[i] = r.Revenue
		default:
			return nil, errors.InvalidParam("unknown portfolio column").WithDetail(name)
		}
	}
	return out, nil
}

// Totals sums every column over the horizon. Year is zero.
func (p *Portfolio) Totals() Row {
	col := func(name string) float64 {
		c, _ := p.Column(name)
		return floats.Sum(c)
	}
	return Row{
		Capex:       col("capex"),
		Maintenance: col("maintenance"),
		Insurance:   col("insurance"),
		Energy:      col("energy"),
		Labour:      col("labour"),
		Demurrage:   col("demurrage"),
		Revenue:     col("revenue"),
	}
}
