package trsbox

import "math"

// ldl holds the L (unit lower bidiagonal, stored as its single subdiagonal)
// and D (diagonal) factors of a symmetric positive definite tridiagonal
// matrix T + lambda*I.
type ldl struct {
	d []float64 // diagonal, length n
	l []float64 // subdiagonal multipliers, length n-1
	ok bool      // false if a nonpositive pivot was encountered
}

// factorTridiag attempts the LDL^T factorization of T+lambda*I where T is
// given by diag/offdiag. It stops (ok=false) at the first nonpositive pivot,
// recording how far it got in d/l.
func factorTridiag(diag, offdiag []float64, lambda float64) ldl {
	n := len(diag)
	d := make([]float64, n)
	l := make([]float64, max0(n-1))
	d[0] = diag[0] + lambda
	if d[0] <= 0 {
		return ldl{d: d[:1], l: nil, ok: false}
	}
	for i := 0; i < n-1; i++ {
		l[i] = offdiag[i] / d[i]
		d[i+1] = (diag[i+1] + lambda) - l[i]*offdiag[i]
		if d[i+1] <= 0 {
			return ldl{d: d[:i + 2], l: l[:i + 1], ok: false}
		}
	}
	return ldl{d: d, l: l, ok: true}
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// solve returns x solving (T+lambda*I) x = b given its LDL^T factors, along
// with w solving L w = b (forward substitution only, no divide by D), used
// by the caller to estimate phi'(lambda).
func (f ldl) solve(b []float64) (x, w []float64) {
	n := len(f.d)
	z := make([]float64, n)
	z[0] = b[0]
	for i := 1; i < n; i++ {
		z[i] = b[i] - f.l[i-1]*z[i-1]
	}
	wv := make([]float64, n)
	for i := 0; i < n; i++ {
		wv[i] = z[i] / f.d[i]
	}
	x = make([]float64, n)
	x[n-1] = wv[n-1]
	for i := n - 2; i >= 0; i-- {
		x[i] = wv[i] - f.l[i]*x[i+1]
	}
	return x, z
}

func norm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

// solveSecular finds lambda >= 0 such that (T+lambda I) d = -g with
// ‖d‖ ≈ delta (or the unconstrained Newton step if it already lies within
// delta and T is positive definite), using a safeguarded Newton iteration
// on the secular equation phi(lambda) = 1/‖d‖ - 1/delta. It detects the
// Cholesky pivot failures that signal a hard-case configuration and raises
// the bracket's lower end accordingly. The hard case gets no
// eigenvector-based correction: the result is the last successfully
// factored solve, scaled back to length delta if it is longer, or a zero
// step if no factorization succeeded (documented simplification, see
// DESIGN.md).
func solveSecular(diag, offdiag []float64, g []float64, delta, tau float64) ([]float64, float64) {
	n := len(diag)
	neg := make([]float64, n)
	for i := range g {
		neg[i] = -g[i]
	}

	minDiag := diag[0]
	for _, v := range diag {
		if v < minDiag {
			minDiag = v
		}
	}
	normInf := 0.0
	for i, v := range diag {
		row := math.Abs(v)
		if i > 0 {
			row += math.Abs(offdiag[i-1])
		}
		if i < n-1 {
			row += math.Abs(offdiag[i])
		}
		if row > normInf {
			normInf = row
		}
	}
	gn := norm(g)
	parl := math.Max(0, math.Max(-minDiag, gn/delta-normInf))
	paru := gn/delta + normInf

	// Try the unconstrained Newton step first (lambda = 0).
	if f := factorTridiag(diag, offdiag, 0); f.ok {
		x, _ := f.solve(neg)
		if norm(x) <= delta {
			return x, minEigenvalueLowerBound(diag, offdiag)
		}
	}

	lambda := parl
	maxIter := 1000
	if cap := 100 * n; cap < maxIter {
		maxIter = cap
	}
	var best []float64
	for iter := 0; iter < maxIter; iter++ {
		f := factorTridiag(diag, offdiag, lambda)
		if !f.ok {
			parl = lambda
			lambda = nextTrial(parl, paru)
			continue
		}
		x, w := f.solve(neg)
		best = x
		nx := norm(x)
		if nx == 0 {
			break
		}
		phi := 1/nx - 1/delta
		if math.Abs(nx-delta) <= tau*delta {
			break
		}
		if nx > delta {
			parl = lambda
		} else {
			paru = lambda
		}
		// Newton update using phi'(lambda) = (w.w/d-weighted) / nx^3,
		// approximated here via ‖w‖ from the forward-substitution vector.
		wn := norm(w)
		var step float64
		if wn > 0 {
			step = phi * nx * nx * nx / (wn * wn)
		}
		next := lambda + step
		if !(next > parl && next < paru) || math.IsNaN(next) {
			next = 0.5 * (parl + paru)
		}
		lambda = next
	}
	if best == nil {
		best = make([]float64, n)
	}
	if bn := norm(best); bn > delta && bn > 0 {
		for i := range best {
			best[i] *= delta / bn
		}
	}
	return best, 0
}

func nextTrial(parl, paru float64) float64 {
	if paru > parl && !math.IsInf(paru, 0) {
		return 0.5 * (parl + paru)
	}
	return parl + 1
}

// minEigenvalueLowerBound returns Gershgorin's lower bound on the least
// eigenvalue of the tridiagonal matrix, used as a conservative crvmin for
// interior Newton steps (the specification allows either a tight bisection
// on the secular equation or a safe estimate; a Gershgorin bound is cheap
// and always valid, a documented simplification of the exact bisection the
// source performs).
func minEigenvalueLowerBound(diag, offdiag []float64) float64 {
	n := len(diag)
	min := math.Inf(1)
	for i, v := range diag {
		r := 0.0
		if i > 0 {
			r += math.Abs(offdiag[i-1])
		}
		if i < n-1 {
			r += math.Abs(offdiag[i])
		}
		if v-r < min {
			min = v - r
		}
	}
	if min < 0 {
		min = 0
	}
	return min
}
