package finance

import (
	"gonum.org/v1/gonum/floats"
)

// NPVRow is one year of the discounted table. Costs are negative.
type NPVRow struct {
	Year    int     `json:"year"`
	Capex   float64 `json:"capex"`
	Opex    float64 `json:"opex"`
	Revenue float64 `json:"revenue"`
	PV      float64 `json:"pv"`
	CumPV   float64 `json:"cum_pv"`
}

// NPVTable is the discounted cash flow of a portfolio.
type NPVTable struct {
	WACCNominal float64  `json:"wacc_nominal"`
	WACCReal    float64  `json:"wacc_real"`
	Rows        []NPVRow `json:"rows"`
	NPV         float64  `json:"npv"`
}

// NPV discounts every column of p by (1 + real WACC)^(year - start).
func NPV(p *Portfolio, w WACC) (*NPVTable, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	n := len(p.Rows)
	pv := make([]float64, n)
	t := &NPVTable{
		WACCNominal: w.Nominal(),
		WACCReal:    w.Real(),
		Rows:        make([]NPVRow, n),
	}
	for i, r := range p.Rows {
		df := w.DiscountFactor(r.Year, p.Horizon.Start)
		row := NPVRow{
			Year:    r.Year,
			Capex:   -r.Capex / df,
			Opex:    -r.Opex() / df,
			Revenue: r.Revenue / df,
		}
		row.PV = row.Capex + row.Opex + row.Revenue
		pv[i] = row.PV
		t.Rows[i] = row
	}
	if n == 0 {
		return t, nil
	}
	cum := make([]float64, n)
	floats.CumSum(cum, pv)
	for i := range t.Rows {
		t.Rows[i].CumPV = cum[i]
	}
	t.NPV = cum[n-1]
	return t, nil
}
