// Package geomstep constructs the alternative-objective step used to repair
// the geometry of the interpolation set when the trust-region step alone
// would leave it too close to degenerate: a step of length at most delta
// chosen to make |L_knew(xopt+step)| as large as possible, subject to the
// linear constraints that are near-active at xopt.
package geomstep

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/zaikun/lincoa-go/internal/linalg"
	"github.com/zaikun/lincoa-go/internal/model"
)

// Result is the outcome of a geometry-improving step construction.
type Result struct {
	Step  []float64
	Ifeas bool // true if xopt+Step satisfies every constraint (to 1e-8), not only the near-active ones
}

// Solve returns the better of two candidate steps for improving the
// poisedness of the interpolation set at index knew: a projected-gradient
// step along the gradient of L_knew, and a step toward an existing sample
// point, each trimmed to the trust region and to the constraints that are
// within delta of being active (rescon[j] >= 0, spec section 3's sign
// convention). Whichever candidate yields the larger |L_knew(xopt+step)|
// is returned.
func Solve(m *model.Model, knew int, a *mat.Dense, b, rescon []float64, delta float64) (Result, error) {
	grad, err := m.LagrangeGradient(knew)
	if err != nil {
		return Result{}, err
	}

	cand1, _ := trimmedStep(grad, a, rescon, delta)
	val1, err := signedBest(m, knew, cand1)
	if err != nil {
		return Result{}, err
	}

	best := cand1
	bestVal := math.Abs(val1)

	xopt := m.XOpt()
	for k := 0; k < m.NPT; k++ {
		if k == knew || k == m.KOpt {
			continue
		}
		xk := make([]float64, m.N)
		mat.Col(xk, k, m.XPT)
		dir := make([]float64, m.N)
		copy(dir, xk)
		floats.Sub(dir, xopt)
		if norm(dir) < 1e-12 {
			continue
		}
		cand, _ := trimmedStep(dir, a, rescon, delta)
		val, err := signedBest(m, knew, cand)
		if err != nil {
			return Result{}, err
		}
		if math.Abs(val) > bestVal {
			bestVal = math.Abs(val)
			best = cand
		}
	}

	x := m.XAbs(m.KOpt)
	floats.Add(x, best)
	ifeas := true
	for j := range b {
		ifeas = ifeas && linalg.Dot(mat.Col(nil, j, a), x) <= b[j]+1e-8
	}
	return Result{Step: best, Ifeas: ifeas}, nil
}

// signedBest evaluates L_knew(xopt+step) to report the raw (signed) value;
// the caller compares magnitudes. The sign of each candidate step is fixed
// beforehand by trimmedStep, which keeps the direction with the larger
// feasible length, so no candidate is negated on the basis of its value.
func signedBest(m *model.Model, knew int, step []float64) (float64, error) {
	t := make([]float64, m.N)
	copy(t, m.XOpt())
	floats.Add(t, step)
	return m.LagrangeValue(knew, t)
}

// trimmedStep scales dir (or its negation, whichever is unconstrained by
// more budget) to length delta and then trims it so that every near-active
// constraint (rescon[j] >= 0) remains satisfied. It tries both signs of dir
// and keeps the one with the larger feasible length, matching the
// specification's intent of maximizing |L_knew| rather than committing to a
// single sign up front.
func trimmedStep(dir []float64, a *mat.Dense, rescon []float64, delta float64) ([]float64, bool) {
	n := len(dir)
	nd := norm(dir)
	if nd == 0 {
		return make([]float64, n), true
	}
	unit := make([]float64, n)
	copy(unit, dir)
	floats.Scale(1/nd, unit)

	posLen, posFeas := feasibleLength(unit, a, rescon, delta)
	neg := make([]float64, n)
	copy(neg, unit)
	floats.Scale(-1, neg)
	negLen, negFeas := feasibleLength(neg, a, rescon, delta)

	if posLen >= negLen {
		step := make([]float64, n)
		copy(step, unit)
		floats.Scale(posLen, step)
		return step, posFeas
	}
	step := make([]float64, n)
	copy(step, neg)
	floats.Scale(negLen, step)
	return step, negFeas
}

// feasibleLength returns the largest alpha in [0,delta] such that
// xopt+alpha*unit violates no near-active constraint, alongside whether the
// trust-region bound (rather than a constraint) was the binding one.
func feasibleLength(unit []float64, a *mat.Dense, rescon []float64, delta float64) (float64, bool) {
	alpha := delta
	feas := true
	if a == nil {
		return alpha, feas
	}
	_, m := a.Dims()
	n := len(unit)
	for j := 0; j < m; j++ {
		if rescon[j] < 0 {
			continue // certifiably inactive within this trust region
		}
		aj := make([]float64, n)
		mat.Col(aj, j, a)
		adir := linalg.Dot(aj, unit)
		if adir <= 0 {
			continue
		}
		limit := rescon[j] / adir
		if limit < alpha {
			alpha = limit
			feas = false
		}
	}
	if alpha < 0 {
		alpha = 0
	}
	return alpha, feas
}

func norm(v []float64) float64 {
	return math.Sqrt(linalg.Dot(v, v))
}
