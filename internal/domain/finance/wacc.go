package finance

import (
	"math"

	"github.com/turtacn/terminal-planner/pkg/errors"
)

// WACC holds the capital structure used to discount the portfolio.
// Gearing is the debt share in percent.
type WACC struct {
	Gearing      float64 `yaml:"gearing" json:"gearing"`
	EquityReturn float64 `yaml:"equity_return" json:"equity_return"`
	DebtReturn   float64 `yaml:"debt_return" json:"debt_return"`
	TaxRate      float64 `yaml:"tax_rate" json:"tax_rate"`
	Inflation    float64 `yaml:"inflation" json:"inflation"`
}

// DefaultWACC returns the reference capital structure.
func DefaultWACC() WACC {
	return WACC{Gearing: 60, EquityReturn: 0.10, DebtReturn: 0.30, TaxRate: 0.28, Inflation: 0.02}
}

// Validate rejects structures with no defined real rate.
func (w WACC) Validate() error {
	switch {
	case w.Gearing < 0 || w.Gearing > 100:
		return errors.InvalidParam("gearing must be in [0, 100]").WithDetailf("gearing=%v", w.Gearing)
	case w.TaxRate < 0 || w.TaxRate > 1:
		return errors.InvalidParam("tax rate must be in [0, 1]").WithDetailf("tax_rate=%v", w.TaxRate)
	case w.Inflation <= -1:
		return errors.InvalidParam("inflation must be > -1").WithDetailf("inflation=%v", w.Inflation)
	}
	if w.Real() <= -1 {
		return errors.InvalidParam("real WACC must be > -1")
	}
	return nil
}

// Nominal is ((1-g)·Re + g·Rd)·(1-Tc) with g the debt share.
func (w WACC) Nominal() float64 {
	debt := w.Gearing / 100
	equity := 1 - debt
	return (equity*w.EquityReturn + debt*w.DebtReturn) * (1 - w.TaxRate)
}

// Real removes inflation from the nominal rate.
func (w WACC) Real() float64 {
	return (1+w.Nominal())/(1+w.Inflation) - 1
}

// DiscountFactor is the divisor applied to values of year.
func (w WACC) DiscountFactor(year, start int) float64 {
	return math.Pow(1+w.Real(), float64(year-start))
}
