// Package trslin solves the linearly constrained trust-region subproblem
//
//	minimize    g.d + 0.5 d^T H d
//	subject to  ‖d‖ <= delta,  aⱼ.(xopt+d) <= bⱼ  for all j
//
// by truncated projected conjugate gradient inside the null space of the
// active constraint gradients, with active-set add/drop driven by the
// residuals encountered along the line search.
package trslin

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/zaikun/lincoa-go/internal/linalg"
)

// HessVec computes H*d for the caller's current quadratic model.
type HessVec func(d []float64) []float64

// ActiveSet is the in/out null-space factorization the outer loop carries
// between calls: QFAC spans R^n with its first NAct columns equal to an
// orthonormal basis of the active constraint gradients (in the order given
// by IAct) and the remaining columns spanning their null space; RFAC is the
// upper-triangular factor of those active gradients in QFAC's basis.
type ActiveSet struct {
	N    int
	QFAC *mat.Dense // n x n, orthogonal
	RFAc *mat.Dense // n x n, upper triangular (only the leading NAct x NAct block is meaningful)
	IAct []int      // 0-indexed constraint indices, length NAct
	NAct int
}

// NewActiveSet returns an ActiveSet with no active constraints and QFAC = I.
func NewActiveSet(n int) *ActiveSet {
	q := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		q.Set(i, i, 1)
	}
	return &ActiveSet{
		N:    n,
		QFAC: q,
		RFAc: mat.NewDense(n, n, nil),
		IAct: nil,
		NAct: 0,
	}
}

// Result is the outcome of solving the linearly constrained trust-region
// subproblem once.
type Result struct {
	Step    []float64
	Snorm   float64
	Ngetact int
}

const tol = 1e-10

// Solve runs the projected-CG / active-set loop described in the package
// doc comment. a holds one unit-norm constraint gradient per column, b the
// corresponding right-hand sides, and rescon the sign-encoded residuals at
// xopt (spec section 3): rescon[j] >= 0 means constraint j is within delta
// of being active and must be honored by the line search; rescon[j] < 0
// with |rescon[j]| >= delta means it is certifiably inactive within this
// trust region and can be skipped.
func Solve(gopt []float64, hv HessVec, a *mat.Dense, b, rescon []float64, delta float64, as *ActiveSet) Result {
	n := len(gopt)
	if norm(gopt) == 0 {
		return Result{Step: make([]float64, n)}
	}

	step := make([]float64, n)
	ngetact := 0
	maxRestarts := n + len(b) + 5

	for restart := 0; restart < maxRestarts; restart++ {
		g := addVec(gopt, hv(step)) // gradient of the model at xopt+step
		pg := projectNullSpace(as, g)
		if norm(pg) < tol {
			break
		}
		floats.Scale(-1, pg)

		d, hitBoundary, newActive, consumed := cgToBoundaryOrConstraint(step, pg, hv, a, b, rescon, delta, as)
		step = d
		if newActive >= 0 {
			addConstraint(as, a, newActive)
			ngetact++
			continue
		}
		if hitBoundary || consumed {
			break
		}
	}

	boundaryWalk(step, gopt, hv, a, b, delta, as)

	return Result{Step: step, Snorm: norm(step), Ngetact: ngetact}
}

func norm(v []float64) float64 {
	return math.Sqrt(linalg.Dot(v, v))
}

func addVec(a, b []float64) []float64 {
	out := make([]float64, len(a))
	copy(out, a)
	floats.Add(out, b)
	return out
}

// projectNullSpace returns the projection of v onto the span of
// QFAC[:,NAct:N].
func projectNullSpace(as *ActiveSet, v []float64) []float64 {
	n := as.N
	out := make([]float64, n)
	for j := as.NAct; j < n; j++ {
		col := make([]float64, n)
		mat.Col(col, j, as.QFAC)
		c := linalg.Dot(col, v)
		floats.AddScaled(out, c, col)
	}
	return out
}

// cgToBoundaryOrConstraint runs a single conjugate-gradient pass starting
// from the current step along direction p (already the projected steepest
// descent direction), stopping at the trust-region boundary, at the first
// newly binding constraint, or at CG's own termination (negative curvature
// or exact minimization within the null space).
func cgToBoundaryOrConstraint(step, p []float64, hv HessVec, a *mat.Dense, b, rescon []float64, delta float64, as *ActiveSet) (newStep []float64, hitBoundary bool, newActive int, consumed bool) {
	n := len(step)
	d := make([]float64, n)
	copy(d, step)
	r := make([]float64, n)
	copy(r, p)
	dir := make([]float64, n)
	copy(dir, p)
	newActive = -1

	_, m := a.Dims()
	maxIter := n + 2
	for iter := 0; iter < maxIter; iter++ {
		hDir := hv(dir)
		curv := linalg.Dot(dir, hDir)
		if curv <= 0 {
			// Negative curvature: go to the trust-region boundary along dir.
			alpha := stepToSphere(d, dir, delta)
			floats.AddScaled(d, alpha, dir)
			return d, true, -1, true
		}
		rr := linalg.Dot(r, r)
		alphaCG := rr / curv
		alphaTR := stepToSphere(d, dir, delta)

		alphaC := math.Inf(1)
		hitJ := -1
		for j := 0; j < m; j++ {
			if isActive(as, j) || rescon[j] < 0 {
				continue
			}
			aj := make([]float64, n)
			mat.Col(aj, j, a)
			adir := linalg.Dot(aj, dir)
			if adir <= 0 {
				continue
			}
			resid := rescon[j] - linalg.Dot(aj, d)
			ac := resid / adir
			if ac >= 0 && ac < alphaC {
				alphaC = ac
				hitJ = j
			}
		}

		alpha := math.Min(alphaCG, math.Min(alphaTR, alphaC))
		floats.AddScaled(d, alpha, dir)

		switch {
		case alpha == alphaTR:
			return d, true, -1, true
		case alpha == alphaC && hitJ >= 0:
			return d, false, hitJ, true
		}

		floats.AddScaled(r, -alpha, hDir)
		r = projectNullSpace(as, r)
		rrNew := linalg.Dot(r, r)
		if rrNew < tol*tol {
			return d, false, -1, true
		}
		beta := rrNew / rr
		for i := range dir {
			dir[i] = r[i] + beta*dir[i]
		}
	}
	return d, false, -1, true
}

func isActive(as *ActiveSet, j int) bool {
	for _, k := range as.IAct {
		if k == j {
			return true
		}
	}
	return false
}

// stepToSphere returns the nonnegative alpha solving ‖d+alpha*dir‖ = delta.
func stepToSphere(d, dir []float64, delta float64) float64 {
	dd := linalg.Dot(d, d)
	dDir := linalg.Dot(d, dir)
	dirDir := linalg.Dot(dir, dir)
	if dirDir == 0 {
		return math.Inf(1)
	}
	c := dd - delta*delta
	disc := dDir*dDir - dirDir*c
	if disc < 0 {
		disc = 0
	}
	return (-dDir + math.Sqrt(disc)) / dirDir
}

// addConstraint appends constraint j to the active set and recomputes QFAC
// and RFAC via modified Gram-Schmidt against the (unit-norm) active
// constraint gradients, in the order they were added. This is a direct
// (O(n^3)) recomputation rather than the Givens-rotation incremental
// update the source performs; see DESIGN.md.
func addConstraint(as *ActiveSet, a *mat.Dense, j int) {
	as.IAct = append(as.IAct, j)
	as.NAct++
	rebuildFactorization(as, a)
}

// dropConstraint removes the constraint at position pos in IAct and
// recomputes the factorization.
func dropConstraint(as *ActiveSet, a *mat.Dense, pos int) {
	as.IAct = append(as.IAct[:pos], as.IAct[pos+1:]...)
	as.NAct--
	rebuildFactorization(as, a)
}

func rebuildFactorization(as *ActiveSet, a *mat.Dense) {
	n := as.N
	q := mat.NewDense(n, n, nil)
	cols := make([][]float64, 0, n)
	for _, j := range as.IAct {
		col := make([]float64, n)
		mat.Col(col, j, a)
		cols = append(cols, col)
	}
	// Complete the basis with the standard basis vectors.
	for i := 0; i < n; i++ {
		e := make([]float64, n)
		e[i] = 1
		cols = append(cols, e)
	}
	qn := 0
	for _, c := range cols {
		v := make([]float64, n)
		copy(v, c)
		for k := 0; k < qn; k++ {
			qk := make([]float64, n)
			mat.Col(qk, k, q)
			proj := linalg.Dot(v, qk)
			floats.AddScaled(v, -proj, qk)
		}
		nv := norm(v)
		if nv < 1e-10 {
			continue
		}
		floats.Scale(1/nv, v)
		q.SetCol(qn, v)
		qn++
		if qn == n {
			break
		}
	}
	as.QFAC = q

	r := mat.NewDense(n, n, nil)
	for k, j := range as.IAct {
		col := make([]float64, n)
		mat.Col(col, j, a)
		for i := 0; i <= k; i++ {
			qi := make([]float64, n)
			mat.Col(qi, i, q)
			r.Set(i, k, linalg.Dot(qi, col))
		}
	}
	as.RFAc = r
}

// boundaryWalk inspects the multipliers implied by the active set once CG
// has stopped, and drops the single most-negative one if present. A full
// bent-boundary continuation (spec section 4.6 step 4) is approximated by
// this one-shot drop-and-stop, a documented simplification: see DESIGN.md.
func boundaryWalk(step, gopt []float64, hv HessVec, a *mat.Dense, b []float64, delta float64, as *ActiveSet) {
	if as.NAct == 0 {
		return
	}
	n := len(step)
	g := addVec(gopt, hv(step))
	floats.Scale(-1, g)

	worst := -1
	worstVal := -tol
	for k := 0; k < as.NAct; k++ {
		qk := make([]float64, n)
		mat.Col(qk, k, as.QFAC)
		mult := linalg.Dot(qk, g)
		if mult < worstVal {
			worstVal = mult
			worst = k
		}
	}
	if worst >= 0 {
		dropConstraint(as, a, worst)
	}
}
