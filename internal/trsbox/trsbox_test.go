package trsbox

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestSolveZeroHessian(t *testing.T) {
	g := []float64{3, 4}
	h := mat.NewSymDense(2, []float64{0, 0, 0, 0})
	res := Solve(g, h, 2, 1e-8)
	if got := math.Hypot(res.Step[0], res.Step[1]); math.Abs(got-2) > 1e-9 {
		t.Errorf("‖step‖ = %v, want 2", got)
	}
	// Step should point opposite the gradient.
	if res.Step[0] >= 0 || res.Step[1] >= 0 {
		t.Errorf("step = %v, want negative multiple of g", res.Step)
	}
}

func TestSolve1DInterior(t *testing.T) {
	res := Solve([]float64{2}, mat.NewSymDense(1, []float64{4}), 10, 1e-8)
	if math.Abs(res.Step[0]-(-0.5)) > 1e-9 {
		t.Errorf("step = %v, want -0.5", res.Step[0])
	}
	if res.Crvmin != 4 {
		t.Errorf("Crvmin = %v, want 4", res.Crvmin)
	}
}

func TestSolve1DBoundary(t *testing.T) {
	res := Solve([]float64{2}, mat.NewSymDense(1, []float64{4}), 0.1, 1e-8)
	if math.Abs(res.Step[0]-(-0.1)) > 1e-9 {
		t.Errorf("step = %v, want -0.1", res.Step[0])
	}
}

func TestSolveInteriorNewtonStep(t *testing.T) {
	// H = diag(2,2), g = (-2,-4): unconstrained minimizer is (1,2), norm
	// sqrt(5) < delta=10, so it should be accepted as an interior step.
	g := []float64{-2, -4}
	h := mat.NewSymDense(2, []float64{2, 0, 0, 2})
	res := Solve(g, h, 10, 1e-10)
	want := []float64{1, 2}
	for i := range want {
		if math.Abs(res.Step[i]-want[i]) > 1e-6 {
			t.Errorf("Step[%d] = %v, want %v", i, res.Step[i], want[i])
		}
	}
	if res.Crvmin <= 0 {
		t.Errorf("Crvmin = %v, want > 0 for an interior step on a PD Hessian", res.Crvmin)
	}
}

func TestSolveRespectsTrustRadius(t *testing.T) {
	g := []float64{-10, -10}
	h := mat.NewSymDense(2, []float64{2, 0, 0, 2})
	delta := 1.0
	res := Solve(g, h, delta, 1e-8)
	n := math.Hypot(res.Step[0], res.Step[1])
	if n > delta+1e-6 {
		t.Errorf("‖step‖ = %v exceeds delta = %v", n, delta)
	}
}

func TestSolveNonFiniteInputsReturnZeroStep(t *testing.T) {
	res := Solve([]float64{math.NaN(), 1}, mat.NewSymDense(2, []float64{1, 0, 0, 1}), 1, 1e-8)
	for _, v := range res.Step {
		if v != 0 {
			t.Errorf("expected zero fallback step, got %v", res.Step)
		}
	}
}

func TestSolveThreeDimensional(t *testing.T) {
	g := []float64{1, -2, 0.5}
	h := mat.NewSymDense(3, []float64{
		6, 1, 0,
		1, 5, 0.5,
		0, 0.5, 4,
	})
	delta := 0.3
	res := Solve(g, h, delta, 1e-8)
	if n := norm(res.Step); n > delta+1e-6 {
		t.Errorf("‖step‖ = %v exceeds delta = %v", n, delta)
	}
	for _, v := range res.Step {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("non-finite step: %v", res.Step)
		}
	}
}
