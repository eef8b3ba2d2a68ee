package lincoa

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/zaikun/lincoa-go/internal/model"
)

// buildInitialModel constructs the standard coordinate interpolation set
// used to start the iteration: XBase = x0, followed by the 2n points
// x0 +/- rhobeg*e_i, giving npt = 2n+1 samples. This restricts the solver to
// that one (most commonly used) choice of npt rather than the full
// Powell-supported range [n+2, (n+1)(n+2)/2]; see DESIGN.md.
//
// a, b are the normalized constraint matrix/rhs (a may have zero columns
// when the problem is unconstrained). buildInitialModel does not nudge the
// placement of the 2n+1 coordinate points away from infeasible positions —
// see DESIGN.md for why the symmetric +/-rhobeg construction is kept as-is
// — but it does determine each sample's feasibility and uses it to seed
// KOpt at the best feasible sample, falling back to the best sample overall
// when none is feasible, per spec section 4.8's Initialization paragraph.
// The returned []bool is the per-sample feasibility array the outer loop
// carries forward and updates as Update() replaces points.
//
// eval is called once per sample (after the origin, which the caller has
// already evaluated and passed as f0) to populate FVal; it must not mutate
// its argument.
func buildInitialModel(n int, x0 []float64, f0, rhobeg float64, a *mat.Dense, b []float64, eval func(x []float64) float64) (*model.Model, []bool, error) {
	npt := 2*n + 1
	m := model.New(n, npt)
	copy(m.XBase, x0)
	m.FVal[0] = f0

	for i := 0; i < n; i++ {
		xi := make([]float64, n)
		copy(xi, x0)
		xi[i] += rhobeg
		fi := eval(xi)
		m.XPT.Set(i, i+1, rhobeg)
		m.FVal[i+1] = fi

		xj := make([]float64, n)
		copy(xj, x0)
		xj[i] -= rhobeg
		fj := eval(xj)
		m.XPT.Set(i, n+1+i, -rhobeg)
		m.FVal[n+1+i] = fj
	}

	rhosq := rhobeg * rhobeg
	recip := 1 / rhosq
	reciq := math.Sqrt(0.5) / rhosq

	for i := 0; i < n; i++ {
		fPlus := m.FVal[i+1]
		fMinus := m.FVal[n+1+i]
		m.GOpt[i] = (fPlus - fMinus) / (2 * rhobeg)
		m.HQ.SetSym(i, i, (fPlus+fMinus-2*f0)*recip)

		m.BMat.Set(i, i+1, 1/(2*rhobeg))
		m.BMat.Set(i, n+1+i, -1/(2*rhobeg))

		m.ZMat.Set(0, i, -reciq-reciq)
		m.ZMat.Set(i+1, i, reciq)
		m.ZMat.Set(n+1+i, i, reciq)
	}
	m.IDZ = 1

	feasible := make([]bool, npt)
	bestOverall, bestFeasible := 0, -1
	for k := 0; k < npt; k++ {
		if m.FVal[k] < m.FVal[bestOverall] {
			bestOverall = k
		}
		feasible[k] = isFeasible(a, b, m.XAbs(k))
		if feasible[k] && (bestFeasible == -1 || m.FVal[k] < m.FVal[bestFeasible]) {
			bestFeasible = k
		}
	}
	if bestFeasible >= 0 {
		m.KOpt = bestFeasible
	} else {
		m.KOpt = bestOverall
	}
	// GOpt above is the gradient at XBase; move it to XOpt.
	m.GOpt = addedVec(m.GOpt, m.HessVec(m.XOpt()))

	if err := m.Check(); err != nil {
		return nil, nil, err
	}
	return m, feasible, nil
}

func allFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func addedVec(a, b []float64) []float64 {
	out := make([]float64, len(a))
	copy(out, a)
	floats.Add(out, b)
	return out
}
