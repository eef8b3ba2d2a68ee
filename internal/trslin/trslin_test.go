package trslin

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func diagHess(vals []float64) HessVec {
	return func(d []float64) []float64 {
		out := make([]float64, len(d))
		for i, v := range d {
			out[i] = vals[i] * v
		}
		return out
	}
}

func TestSolveUnconstrainedInterior(t *testing.T) {
	// min g.d + 0.5 d^T H d, H = diag(2,2), g = (-2,-4): unconstrained
	// minimizer is (1,2), well inside delta=10 and with no constraints.
	g := []float64{-2, -4}
	hv := diagHess([]float64{2, 2})
	a := mat.NewDense(2, 1, []float64{1, 0}) // one constraint, far away
	b := []float64{100}
	rescon := []float64{-100} // certifiably inactive
	as := NewActiveSet(2)
	res := Solve(g, hv, a, b, rescon, 10, as)
	want := []float64{1, 2}
	for i := range want {
		if math.Abs(res.Step[i]-want[i]) > 1e-6 {
			t.Errorf("Step[%d] = %v, want %v", i, res.Step[i], want[i])
		}
	}
}

func TestSolveRespectsTrustRegion(t *testing.T) {
	g := []float64{-10, -10}
	hv := diagHess([]float64{2, 2})
	a := mat.NewDense(2, 1, []float64{1, 0})
	b := []float64{100}
	rescon := []float64{-100}
	as := NewActiveSet(2)
	res := Solve(g, hv, a, b, rescon, 1, as)
	if res.Snorm > 1+1e-6 {
		t.Errorf("Snorm = %v exceeds delta=1", res.Snorm)
	}
}

func TestSolveHonorsBindingConstraint(t *testing.T) {
	// Steepest descent direction is (1,1)/sqrt2 (since g=(-1,-1), H=I), but
	// constraint a=(1,0), b=0, rescon=0 forbids any positive step along x.
	g := []float64{-1, -1}
	hv := diagHess([]float64{1, 1})
	a := mat.NewDense(2, 1, []float64{1, 0})
	b := []float64{0}
	rescon := []float64{0}
	as := NewActiveSet(2)
	res := Solve(g, hv, a, b, rescon, 5, as)
	if res.Step[0] > 1e-6 {
		t.Errorf("Step[0] = %v, want <= 0 (constraint binding)", res.Step[0])
	}
}

func TestSolveZeroGradientReturnsZeroStep(t *testing.T) {
	hv := diagHess([]float64{1, 1})
	a := mat.NewDense(2, 1, []float64{1, 0})
	as := NewActiveSet(2)
	res := Solve([]float64{0, 0}, hv, a, []float64{1}, []float64{-1}, 1, as)
	for _, v := range res.Step {
		if v != 0 {
			t.Errorf("expected zero step for zero gradient, got %v", res.Step)
		}
	}
}

func TestRebuildFactorizationOrthogonal(t *testing.T) {
	as := NewActiveSet(3)
	a := mat.NewDense(3, 2, []float64{
		1, 0,
		0, 1,
		0, 0,
	})
	addConstraint(as, a, 0)
	addConstraint(as, a, 1)
	// QFAC must remain orthogonal: QFAC^T QFAC = I.
	var qtq mat.Dense
	qtq.Mul(as.QFAC.T(), as.QFAC)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(qtq.At(i, j)-want) > 1e-9 {
				t.Errorf("QFAC^T QFAC[%d,%d] = %v, want %v", i, j, qtq.At(i, j), want)
			}
		}
	}
}
