// Package linalg provides the dense linear-algebra primitives shared by the
// lincoa model and its trust-region subproblem solvers: symmetric rank-one
// updates, Householder tridiagonalization, and small masked-reduction
// helpers that the rest of the solver builds on.
//
// Generic vector arithmetic (dot products, scaling, norms) is left to
// gonum.org/v1/gonum/floats; this package only implements the operations
// that are specific to the model's numerical design.
package linalg

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Dot returns the inner product of a and b. It is a thin re-export of
// floats.Dot so callers in this module don't need to import both packages
// for the common case.
func Dot(a, b []float64) float64 {
	return floats.Dot(a, b)
}

// SymRankOneInPlace performs A ← A + alpha*v*vᵀ, the symmetric rank-one
// update used when absorbing a point's implicit Hessian contribution into
// the explicit block HQ.
func SymRankOneInPlace(a *mat.SymDense, alpha float64, v []float64) {
	vv := mat.NewVecDense(len(v), v)
	a.SymRankOne(a, alpha, vv)
}

// IsFiniteVec reports whether every element of x is finite.
func IsFiniteVec(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// IsFinite reports whether f is finite.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// IsFiniteSym reports whether every entry of a symmetric matrix is finite.
func IsFiniteSym(a *mat.SymDense) bool {
	n := a.Symmetric()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if !IsFinite(a.At(i, j)) {
				return false
			}
		}
	}
	return true
}

// MaskedIndices returns the indices in [0,n) for which pred holds. It is the
// generic "indices where predicate holds" reduction used by several parts of
// the solver (active-set selection, feasible-sample filtering).
func MaskedIndices(n int, pred func(i int) bool) []int {
	var idx []int
	for i := 0; i < n; i++ {
		if pred(i) {
			idx = append(idx, i)
		}
	}
	return idx
}

// ArgMax returns the index i in [0,n) maximizing key(i), breaking ties in
// favor of the tiebreak function when it returns true for the candidate
// over the incumbent.
func ArgMax(n int, key func(i int) float64, tiebreak func(cand, incumbent int) bool) int {
	best := -1
	var bestVal float64
	for i := 0; i < n; i++ {
		v := key(i)
		switch {
		case best == -1 || v > bestVal:
			best, bestVal = i, v
		case v == bestVal && tiebreak != nil && tiebreak(i, best):
			best = i
		}
	}
	return best
}

// Tridiagonalization holds the result of a Householder tridiagonalization of
// a symmetric matrix: the diagonal and off-diagonal of the resulting
// tridiagonal form, plus the Householder vectors needed to back-transform a
// vector from tridiagonal space to the original basis.
//
// Following the source design, the Householder vectors are stored aliased
// in the strict lower triangle of Vectors (a copy of the input matrix); this
// package does not require callers to provide separate storage.
type Tridiagonalization struct {
	Diag    []float64 // length n
	Offdiag []float64 // length n-1
	Vectors *mat.Dense // n x n, Householder vectors in strict lower triangle
}

// Tridiagonalize reduces the symmetric matrix h to tridiagonal form by
// Householder similarity transforms, equivalent to LAPACK's dsytd2. It
// returns the diagonal, off-diagonal, and the matrix of Householder vectors
// needed to reconstruct the orthogonal transform.
func Tridiagonalize(h *mat.SymDense) *Tridiagonalization {
	n := h.Symmetric()
	a := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			a.Set(i, j, h.At(i, j))
		}
	}
	diag := make([]float64, n)
	offdiag := make([]float64, max0(n-1))

	for k := 0; k < n-2; k++ {
		// Form the Householder vector annihilating a[k+2:,k].
		col := make([]float64, n-k-1)
		for i := range col {
			col[i] = a.At(k+1+i, k)
		}
		alpha := -sign(norm2(col), col[0])
		if alpha == 0 {
			offdiag[k] = col[0]
			continue
		}
		v := make([]float64, len(col))
		copy(v, col)
		v[0] -= alpha
		vnorm := norm2(v)
		if vnorm == 0 {
			offdiag[k] = col[0]
			continue
		}
		for i := range v {
			v[i] /= vnorm
		}

		// Apply the Householder reflector H = I - 2vv^T to the trailing
		// (n-k-1)x(n-k-1) submatrix on both sides: A ← H A H.
		sub := n - k - 1
		p := make([]float64, sub)
		for i := 0; i < sub; i++ {
			var s float64
			for j := 0; j < sub; j++ {
				s += a.At(k+1+i, k+1+j) * v[j]
			}
			p[i] = 2 * s
		}
		pv := Dot(p, v)
		w := make([]float64, sub)
		for i := range w {
			w[i] = p[i] - pv*v[i]
		}
		for i := 0; i < sub; i++ {
			for j := 0; j < sub; j++ {
				val := a.At(k+1+i, k+1+j) - w[i]*v[j] - v[i]*w[j]
				a.Set(k+1+i, k+1+j, val)
				a.Set(k+1+j, k+1+i, val)
			}
		}
		offdiag[k] = alpha
		for i := 1; i < len(v); i++ {
			a.Set(k+1+i, k, v[i])
		}
		a.Set(k+1, k, v[0])
	}
	if n >= 2 {
		offdiag[n-2] = a.At(n-1, n-2)
	}
	for i := 0; i < n; i++ {
		diag[i] = a.At(i, i)
	}
	return &Tridiagonalization{Diag: diag, Offdiag: offdiag, Vectors: a}
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func norm2(v []float64) float64 {
	return math.Sqrt(Dot(v, v))
}

func sign(mag, ref float64) float64 {
	if ref < 0 {
		return -mag
	}
	return mag
}
