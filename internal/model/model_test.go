package model

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// newSimplexModel builds a minimal n=2, npt=5 model around the origin, with
// a simple convex quadratic fit, for use across tests in this package.
func newSimplexModel(t *testing.T) *Model {
	t.Helper()
	n, npt := 2, 5
	m := New(n, npt)
	pts := [][2]float64{{0, 0}, {1, 0}, {0, 1}, {-1, 0}, {0, -1}}
	for k, p := range pts {
		m.XPT.Set(0, k, p[0])
		m.XPT.Set(1, k, p[1])
		m.FVal[k] = p[0]*p[0] + p[1]*p[1]
	}
	m.KOpt = 0
	// ZMAT: npt x (npt-n-1) = 5x2, orthonormal columns, arbitrary but
	// well-conditioned for testing the factorization bookkeeping.
	m.ZMat.Set(1, 0, 1/math.Sqrt2)
	m.ZMat.Set(3, 0, -1/math.Sqrt2)
	m.ZMat.Set(2, 1, 1/math.Sqrt2)
	m.ZMat.Set(4, 1, -1/math.Sqrt2)
	m.IDZ = 1
	m.BMat.Set(0, 1, 0.5)
	m.BMat.Set(1, 2, 0.5)
	return m
}

func TestNewShapes(t *testing.T) {
	m := New(3, 7)
	if r, c := m.XPT.Dims(); r != 3 || c != 7 {
		t.Fatalf("XPT dims = %d,%d want 3,7", r, c)
	}
	if r, c := m.BMat.Dims(); r != 3 || c != 10 {
		t.Fatalf("BMat dims = %d,%d want 3,10", r, c)
	}
	if r, c := m.ZMat.Dims(); r != 7 || c != 3 {
		t.Fatalf("ZMat dims = %d,%d want 7,3", r, c)
	}
	if err := m.Check(); err != nil {
		t.Fatalf("fresh model should validate: %v", err)
	}
}

func TestXOptAndXAbs(t *testing.T) {
	m := newSimplexModel(t)
	m.XBase[0], m.XBase[1] = 10, 20
	xopt := m.XOpt()
	if xopt[0] != 0 || xopt[1] != 0 {
		t.Fatalf("XOpt = %v, want (0,0)", xopt)
	}
	xabs := m.XAbs(1)
	if xabs[0] != 11 || xabs[1] != 20 {
		t.Fatalf("XAbs(1) = %v, want (11,20)", xabs)
	}
}

func TestEvalQuadZeroStep(t *testing.T) {
	m := newSimplexModel(t)
	if v := m.EvalQuad([]float64{0, 0}); v != 0 {
		t.Errorf("EvalQuad(0) = %v, want 0", v)
	}
}

func TestLagrangeCoeffFiniteAndFullLength(t *testing.T) {
	m := newSimplexModel(t)
	for k := 0; k < m.NPT; k++ {
		c, err := m.LagrangeCoeff(k)
		if err != nil {
			t.Fatalf("LagrangeCoeff(%d): %v", k, err)
		}
		if len(c) != m.NPT {
			t.Fatalf("LagrangeCoeff(%d) length = %d, want %d", k, len(c), m.NPT)
		}
	}
}

func TestShiftOriginPreservesXOptAtZero(t *testing.T) {
	m := newSimplexModel(t)
	m.KOpt = 1 // xopt = (1,0)
	m.ShiftOrigin()
	xopt := m.XOpt()
	if math.Abs(xopt[0]) > 1e-9 || math.Abs(xopt[1]) > 1e-9 {
		t.Fatalf("XOpt after shift = %v, want (0,0)", xopt)
	}
	if m.XBase[0] != 1 || m.XBase[1] != 0 {
		t.Fatalf("XBase after shift = %v, want (1,0)", m.XBase)
	}
}

func TestShiftOriginThreshold(t *testing.T) {
	if !ShiftOriginThreshold([]float64{100, 0}, 0.5) {
		t.Error("large ‖xopt‖ relative to delta should trigger a shift")
	}
	if ShiftOriginThreshold([]float64{0.01, 0}, 1) {
		t.Error("small ‖xopt‖ relative to delta should not trigger a shift")
	}
}

func TestUpdateReplacesSampleAndKeepsModelFinite(t *testing.T) {
	m := newSimplexModel(t)
	step := []float64{0.1, 0.1}
	knew, err := m.Update(0, step, 0.02)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if knew < 0 || knew >= m.NPT {
		t.Fatalf("Update returned out-of-range knew=%d", knew)
	}
	if err := m.Check(); err != nil {
		t.Fatalf("model invalid after update: %v", err)
	}
	got := mat.Col(nil, knew, m.XPT)
	wantX, wantY := step[0], step[1] // xopt was (0,0)
	if math.Abs(got[0]-wantX) > 1e-9 || math.Abs(got[1]-wantY) > 1e-9 {
		t.Errorf("XPT[:,knew] = %v, want (%v,%v)", got, wantX, wantY)
	}
	if m.FVal[knew] != 0.02 {
		t.Errorf("FVal[knew] = %v, want 0.02", m.FVal[knew])
	}
}

func TestUpdateWithExplicitKnew(t *testing.T) {
	m := newSimplexModel(t)
	step := []float64{0.2, -0.1}
	knew, err := m.Update(3, step, 0.05) // 1-indexed hint -> index 2
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if knew != 2 {
		t.Fatalf("Update with hint 3 returned knew=%d, want 2", knew)
	}
}
