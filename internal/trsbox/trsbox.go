// Package trsbox solves the unconstrained trust-region subproblem
//
//	minimize   g.d + 0.5 d^T H d
//	subject to ‖d‖ <= delta
//
// by Householder tridiagonalization followed by a safeguarded Moré–Sorensen
// Newton iteration on the secular equation. It is the unconstrained solver of
// a UOBYQA-style core; lincoa's outer loop does not call it and uses
// internal/trslin for its linearly constrained subproblem.
//
// The routine never returns an error: non-finite inputs fall back to a zero
// step, and the iteration cap always terminates with the best step found so
// far, matching the "never throws" contract of the specification.
package trsbox

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/zaikun/lincoa-go/internal/linalg"
)

// Result is the outcome of solving the unconstrained trust-region
// subproblem.
type Result struct {
	Step []float64
	// Crvmin is 0 unless Step is an interior Newton step. For an interior
	// step it is h itself when n == 1, and otherwise a Gershgorin lower bound
	// on the least eigenvalue of H, clamped at 0; the exact least eigenvalue
	// is not computed for n > 1.
	Crvmin float64
}

// Solve returns the (approximate) solution of
//
//	minimize   g.d + 0.5 d^T H d   subject to ‖d‖ <= delta
//
// with relative accuracy tau in (0,1).
func Solve(g []float64, h *mat.SymDense, delta, tau float64) Result {
	n := len(g)
	if !linalg.IsFiniteVec(g) || !linalg.IsFiniteSym(h) || !linalg.IsFinite(delta) || delta <= 0 {
		return Result{Step: make([]float64, n)}
	}
	if n == 1 {
		return solve1D(g[0], h.At(0, 0), delta)
	}
	if isZero(h) {
		return solveZeroHessian(g, delta)
	}

	tri := linalg.Tridiagonalize(h)
	gt := backTransformForward(tri, g)

	d, crvmin := solveSecular(tri.Diag, tri.Offdiag, gt, delta, tau)
	step := backTransformBackward(tri, d)
	return Result{Step: step, Crvmin: crvmin}
}

func isZero(h *mat.SymDense) bool {
	n := h.Symmetric()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if h.At(i, j) != 0 {
				return false
			}
		}
	}
	return true
}

func solveZeroHessian(g []float64, delta float64) Result {
	n := len(g)
	gn := math.Sqrt(linalg.Dot(g, g))
	step := make([]float64, n)
	if gn > 0 {
		floats.AddScaled(step, -delta/gn, g)
	}
	return Result{Step: step}
}

func solve1D(g, h, delta float64) Result {
	if h > 0 && math.Abs(g/h) <= delta {
		return Result{Step: []float64{-g / h}, Crvmin: h}
	}
	d := delta
	if g > 0 {
		d = -delta
	}
	return Result{Step: []float64{d}}
}

// backTransformForward applies the same sequence of Householder reflectors
// used to tridiagonalize H to the vector g, giving its representation in
// the tridiagonal basis.
func backTransformForward(tri *linalg.Tridiagonalization, g []float64) []float64 {
	n := len(g)
	out := make([]float64, n)
	copy(out, g)
	// Apply reflectors in the same order they were generated (k=0..n-3),
	// each acting on the trailing subvector out[k+1:].
	for k := 0; k < n-2; k++ {
		sub := n - k - 1
		v := make([]float64, sub)
		v[0] = tri.Vectors.At(k+1, k)
		for i := 1; i < sub; i++ {
			v[i] = tri.Vectors.At(k+1+i, k)
		}
		nv := math.Sqrt(linalg.Dot(v, v))
		if nv == 0 {
			continue
		}
		seg := out[k+1 : k+1+sub]
		proj := 2 * linalg.Dot(seg, v)
		floats.AddScaled(seg, -proj, v)
	}
	return out
}

// backTransformBackward maps a step computed in tridiagonal coordinates back
// to the original basis, by applying the Householder reflectors in reverse
// order (they are self-inverse).
func backTransformBackward(tri *linalg.Tridiagonalization, d []float64) []float64 {
	n := len(d)
	out := make([]float64, n)
	copy(out, d)
	for k := n - 3; k >= 0; k-- {
		sub := n - k - 1
		v := make([]float64, sub)
		v[0] = tri.Vectors.At(k+1, k)
		for i := 1; i < sub; i++ {
			v[i] = tri.Vectors.At(k+1+i, k)
		}
		nv := math.Sqrt(linalg.Dot(v, v))
		if nv == 0 {
			continue
		}
		seg := out[k+1 : k+1+sub]
		proj := 2 * linalg.Dot(seg, v)
		floats.AddScaled(seg, -proj, v)
	}
	return out
}
