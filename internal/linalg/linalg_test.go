package linalg

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestSymRankOneInPlace(t *testing.T) {
	a := mat.NewSymDense(3, []float64{
		2, 0, 0,
		0, 2, 0,
		0, 0, 2,
	})
	v := []float64{1, 2, 3}
	SymRankOneInPlace(a, 0.5, v)
	want := mat.NewSymDense(3, nil)
	want.AddSym(mat.NewSymDense(3, []float64{2, 0, 0, 0, 2, 0, 0, 0, 2}), outerSym(0.5, v))
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(a.At(i, j)-want.At(i, j)) > 1e-12 {
				t.Errorf("At(%d,%d) = %v, want %v", i, j, a.At(i, j), want.At(i, j))
			}
		}
	}
}

func outerSym(alpha float64, v []float64) *mat.SymDense {
	n := len(v)
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, alpha*v[i]*v[j])
		}
	}
	return s
}

func TestIsFinite(t *testing.T) {
	if !IsFinite(1.0) {
		t.Error("1.0 should be finite")
	}
	if IsFinite(math.NaN()) {
		t.Error("NaN should not be finite")
	}
	if IsFinite(math.Inf(1)) {
		t.Error("+Inf should not be finite")
	}
	if !IsFiniteVec([]float64{1, 2, 3}) {
		t.Error("all-finite vector should report finite")
	}
	if IsFiniteVec([]float64{1, math.NaN(), 3}) {
		t.Error("vector with NaN should not report finite")
	}
}

func TestMaskedIndicesAndArgMax(t *testing.T) {
	idx := MaskedIndices(5, func(i int) bool { return i%2 == 0 })
	want := []int{0, 2, 4}
	if len(idx) != len(want) {
		t.Fatalf("got %v, want %v", idx, want)
	}
	for i := range want {
		if idx[i] != want[i] {
			t.Fatalf("got %v, want %v", idx, want)
		}
	}

	vals := []float64{1, 5, 5, 2}
	best := ArgMax(len(vals), func(i int) float64 { return vals[i] }, func(cand, incumbent int) bool {
		return cand > incumbent // tie-break toward the larger index
	})
	if best != 2 {
		t.Errorf("ArgMax with tiebreak = %d, want 2", best)
	}
}

// TestTridiagonalizeShape checks that the diagonal and off-diagonal of the
// tridiagonal form have the expected lengths and are finite, and that the
// trace of the original matrix is preserved, as it must be under an
// orthogonal similarity transform.
func TestTridiagonalizeShape(t *testing.T) {
	h := mat.NewSymDense(4, []float64{
		4, 1, 0, 0.5,
		1, 3, 0.5, 0,
		0, 0.5, 2, 1,
		0.5, 0, 1, 5,
	})
	tri := Tridiagonalize(h)
	if len(tri.Diag) != 4 {
		t.Fatalf("len(Diag) = %d, want 4", len(tri.Diag))
	}
	if len(tri.Offdiag) != 3 {
		t.Fatalf("len(Offdiag) = %d, want 3", len(tri.Offdiag))
	}
	if !IsFiniteVec(tri.Diag) || !IsFiniteVec(tri.Offdiag) {
		t.Fatalf("tridiagonalization produced non-finite entries")
	}
	// Trace is invariant under an orthogonal similarity transform.
	var traceOrig, traceTri float64
	for i := 0; i < 4; i++ {
		traceOrig += h.At(i, i)
	}
	traceTri = floats.Sum(tri.Diag)
	if math.Abs(traceOrig-traceTri) > 1e-8 {
		t.Errorf("trace not preserved: got %v, want %v", traceTri, traceOrig)
	}
}
