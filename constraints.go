package lincoa

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// normalizeConstraints converts the caller's A*x <= B rows into unit-norm
// gradients (one per column of the returned matrix, matching the layout
// internal/trslin and internal/geomstep expect) and right-hand sides scaled
// by the same factor. A row whose gradient norm is below tol is rejected
// with ErrDegenerateConstraint, since dividing by it would amplify rounding
// error without bound.
func normalizeConstraints(a [][]float64, b []float64, n int) (*mat.Dense, []float64, error) {
	m := len(a)
	amat := mat.NewDense(n, m, nil)
	bout := make([]float64, m)
	const tol = 1e-12
	for j := 0; j < m; j++ {
		if len(a[j]) != n {
			return nil, nil, ErrInvalidDimension
		}
		norm := math.Sqrt(floats.Dot(a[j], a[j]))
		if norm < tol {
			return nil, nil, ErrDegenerateConstraint
		}
		for i := 0; i < n; i++ {
			amat.Set(i, j, a[j][i]/norm)
		}
		bout[j] = b[j] / norm
	}
	return amat, bout, nil
}

// computeRescon evaluates the sign-encoded constraint residuals at xopt,
// following spec section 3's convention exactly: rescon[j] = bj - aj.xopt
// (the true slack) when that slack lies in [0, delta) (the constraint is
// within delta of being active and must be honored by the line search), or
// -(bj - aj.xopt) (the negated true slack) when the slack already meets or
// exceeds delta and the constraint is certifiably inactive inside this
// trust region. Either way |rescon[j]| can be compared against delta to
// tell the two cases apart, and internal/trslin and internal/geomstep rely
// on a nonnegative rescon[j] being the literal slack bj-aj.xopt, not an
// offset from it: they use it directly as the remaining distance to the
// boundary along a unit direction.
func computeRescon(a *mat.Dense, b, xopt []float64, delta float64) []float64 {
	_, m := a.Dims()
	n := len(xopt)
	rescon := make([]float64, m)
	for j := 0; j < m; j++ {
		aj := make([]float64, n)
		mat.Col(aj, j, a)
		slack := b[j] - floats.Dot(aj, xopt)
		if slack >= delta {
			rescon[j] = -slack
		} else {
			rescon[j] = slack
		}
	}
	return rescon
}

// isFeasible reports whether x satisfies every row of a.x <= b (the
// normalized constraint matrix), to within a small numerical tolerance. A
// nil or zero-column a (the unconstrained case) is always feasible.
func isFeasible(a *mat.Dense, b, x []float64) bool {
	if a == nil {
		return true
	}
	_, m := a.Dims()
	const tol = 1e-8
	for j := 0; j < m; j++ {
		aj := make([]float64, len(x))
		mat.Col(aj, j, a)
		if floats.Dot(aj, x)-b[j] > tol {
			return false
		}
	}
	return true
}

// cstrv returns max(0, max_j(rawA[j].x - rawB[j])), the worst-case
// constraint violation in the caller's original units (spec section 6:
// "the original constraints A_orig, b_orig are also passed through solely
// to compute the reported cstrv in original units"). rawA/rawB are
// Problem.A/Problem.B exactly as supplied, not the unit-normalized matrix
// the solver's internals operate on.
func cstrv(rawA [][]float64, rawB []float64, x []float64) float64 {
	worst := 0.0
	for j := range rawA {
		v := floats.Dot(rawA[j], x) - rawB[j]
		if v > worst {
			worst = v
		}
	}
	return worst
}
