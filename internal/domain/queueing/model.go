// Package queueing maps berth occupancy to the expected waiting factor of a
// vessel (waiting time as a multiple of service time) and back, using a
// polynomial fit of the Groenveld E2/E2/n table.
//
// The raw degree-6 polynomial is not monotone at the edges of the table, so
// the forward mapping uses its running maximum clipped at zero. This keeps the
// mapping non-decreasing on [MinOccupancy, MaxOccupancy] and makes the inverse
// well defined.
package queueing

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/turtacn/terminal-planner/pkg/errors"
)

const (
	// MaxServers is the largest server count the table covers.
	MaxServers = 10
	// MinOccupancy and MaxOccupancy bound the tabulated utilisation range.
	MinOccupancy = 0.1
	MaxOccupancy = 0.9

	polynomialOrder = 6
	envelopeStep    = 0.001
	bisectionRounds = 60

	maxExtrapolationSteps = 10000
)

type fit struct {
	coeffs   []float64 // ascending powers
	envelope []float64 // running max of the polynomial on the sample grid
}

func (f *fit) poly(x float64) float64 {
	v := 0.0
	for i := len(f.coeffs) - 1; i >= 0; i-- {
		v = v*x + f.coeffs[i]
	}
	return v
}

// eval is the running maximum of the polynomial on [MinOccupancy, x],
// clipped at zero. Between grid points the envelope is interpolated linearly.
func (f *fit) eval(x float64) float64 {
	last := len(f.envelope) - 1
	switch {
	case x <= 0:
		return 0
	case x < MinOccupancy:
		return f.envelope[0] * x / MinOccupancy
	case x >= MaxOccupancy:
		v := f.envelope[last]
		steps := int(math.Min(math.Ceil((x-MaxOccupancy)/envelopeStep), maxExtrapolationSteps))
		for i := 1; i <= steps; i++ {
			v = math.Max(v, f.poly(math.Min(MaxOccupancy+float64(i)*envelopeStep, x)))
		}
		return v
	}
	pos := (x - MinOccupancy) / envelopeStep
	idx := int(math.Floor(pos))
	if idx >= last {
		return f.envelope[last]
	}
	frac := pos - float64(idx)
	return f.envelope[idx] + (f.envelope[idx+1]-f.envelope[idx])*frac
}

type slot struct {
	once sync.Once
	fit  *fit
	err  error
}

// Model evaluates the fitted table. Fits are computed lazily, once per server
// count, and a Model is safe for concurrent use.
type Model struct {
	slots [MaxServers]slot
}

// NewModel returns a Model with an empty fit cache.
func NewModel() *Model {
	return &Model{}
}

var defaultModel = NewModel()

// Default returns the process-wide model.
func Default() *Model { return defaultModel }

func (m *Model) fitFor(servers int) (*fit, error) {
	s := &m.slots[servers-1]
	s.once.Do(func() {
		s.fit, s.err = newFit(tableUtilisation, column(servers))
	})
	return s.fit, s.err
}

func newFit(xs, ys []float64) (*fit, error) {
	coeffs, err := fitPolynomial(xs, ys, polynomialOrder)
	if err != nil {
		return nil, err
	}
	f := &fit{coeffs: coeffs}
	n := int(math.Round((MaxOccupancy-MinOccupancy)/envelopeStep)) + 1
	f.envelope = make([]float64, n)
	running := 0.0
	for i := 0; i < n; i++ {
		running = math.Max(running, f.poly(MinOccupancy+float64(i)*envelopeStep))
		f.envelope[i] = running
	}
	return f, nil
}

// fitPolynomial solves the Vandermonde least-squares system for the
// coefficients of a polynomial of the given order, lowest power first.
func fitPolynomial(xs, ys []float64, order int) ([]float64, error) {
	if len(xs) != len(ys) || len(xs) <= order {
		return nil, errors.New(errors.ErrCodeFitFailed, "not enough samples for polynomial fit")
	}
	a := mat.NewDense(len(xs), order+1, nil)
	for i, x := range xs {
		p := 1.0
		for j := 0; j <= order; j++ {
			a.Set(i, j, p)
			p *= x
		}
	}
	b := mat.NewVecDense(len(ys), append([]float64(nil), ys...))
	var c mat.VecDense
	if err := c.SolveVec(a, b); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFitFailed, "least squares solve")
	}
	return mat.Col(nil, 0, &c), nil
}

func checkServers(servers int) error {
	if servers < 1 {
		return errors.InvalidParam("server count must be >= 1").WithDetailf("servers=%d", servers)
	}
	return nil
}

// WaitingFactor returns the waiting factor at occupancy for a terminal with
// the given number of servers. Beyond MaxServers the table gives no answer
// and the result is +Inf, meaning more capacity is required.
func (m *Model) WaitingFactor(occupancy float64, servers int) (float64, error) {
	if err := checkServers(servers); err != nil {
		return 0, err
	}
	if math.IsNaN(occupancy) || occupancy < 0 {
		return 0, errors.InvalidParam("occupancy must be >= 0").WithDetailf("occupancy=%v", occupancy)
	}
	if servers > MaxServers || math.IsInf(occupancy, 1) {
		return math.Inf(1), nil
	}
	f, err := m.fitFor(servers)
	if err != nil {
		return 0, err
	}
	return f.eval(occupancy), nil
}

// Occupancy returns the largest occupancy in [MinOccupancy, MaxOccupancy]
// whose waiting factor does not exceed factor. Factors above the tabulated
// maximum yield MaxOccupancy and factors below the minimum yield MinOccupancy.
//
// Where the fitted curve is flat the inverse is not unique and the upper end
// of the flat stretch is returned. For large server counts the table is close
// to zero up to about 0.3 occupancy, so a round trip from that region can come
// back up to 0.2 higher. Where the curve rises the round trip is close to exact.
func (m *Model) Occupancy(factor float64, servers int) (float64, error) {
	if err := checkServers(servers); err != nil {
		return 0, err
	}
	if servers > MaxServers {
		return 0, errors.New(errors.ErrCodeServerCountOutOfRange, "server count exceeds table").
			WithDetailf("servers=%d max=%d", servers, MaxServers)
	}
	if math.IsNaN(factor) || factor < 0 {
		return 0, errors.InvalidParam("waiting factor must be >= 0").WithDetailf("factor=%v", factor)
	}
	f, err := m.fitFor(servers)
	if err != nil {
		return 0, err
	}
	if factor >= f.eval(MaxOccupancy) {
		return MaxOccupancy, nil
	}
	if factor < f.eval(MinOccupancy) {
		return MinOccupancy, nil
	}
	lo, hi := MinOccupancy, MaxOccupancy
	for i := 0; i < bisectionRounds; i++ {
		mid := (lo + hi) / 2
		if f.eval(mid) <= factor {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo, nil
}
