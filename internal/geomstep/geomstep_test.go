package geomstep

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/zaikun/lincoa-go/internal/model"
)

func newSimplexModel(t *testing.T) *model.Model {
	t.Helper()
	n, npt := 2, 5
	m := model.New(n, npt)
	pts := [][2]float64{{0, 0}, {1, 0}, {0, 1}, {-1, 0}, {0, -1}}
	for k, p := range pts {
		m.XPT.Set(0, k, p[0])
		m.XPT.Set(1, k, p[1])
		m.FVal[k] = p[0]*p[0] + p[1]*p[1]
	}
	m.KOpt = 0
	m.ZMat.Set(1, 0, 1/math.Sqrt2)
	m.ZMat.Set(3, 0, -1/math.Sqrt2)
	m.ZMat.Set(2, 1, 1/math.Sqrt2)
	m.ZMat.Set(4, 1, -1/math.Sqrt2)
	m.IDZ = 1
	m.BMat.Set(0, 1, 0.5)
	m.BMat.Set(1, 2, 0.5)
	return m
}

func TestSolveRespectsTrustRegion(t *testing.T) {
	m := newSimplexModel(t)
	a := mat.NewDense(2, 1, []float64{1, 0})
	b := []float64{100}
	rescon := []float64{-100}
	res, err := Solve(m, 1, a, b, rescon, 0.5)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	n := math.Hypot(res.Step[0], res.Step[1])
	if n > 0.5+1e-9 {
		t.Errorf("‖step‖ = %v exceeds delta=0.5", n)
	}
}

func TestSolveHonorsNearActiveConstraint(t *testing.T) {
	m := newSimplexModel(t)
	// Constraint x <= 0 is exactly active at xopt=(0,0).
	a := mat.NewDense(2, 1, []float64{1, 0})
	b := []float64{0}
	rescon := []float64{0}
	res, err := Solve(m, 1, a, b, rescon, 1)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if res.Step[0] > 1e-9 {
		t.Errorf("Step[0] = %v, want <= 0 under active constraint x<=0", res.Step[0])
	}
}

func TestSolveReturnsFiniteStep(t *testing.T) {
	m := newSimplexModel(t)
	res, err := Solve(m, 3, nil, nil, nil, 1)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	for _, v := range res.Step {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("non-finite step: %v", res.Step)
		}
	}
}
