// Package model implements the interpolation data that lincoa's outer loop
// builds and queries every iteration: the moving sample set, the quadratic
// model it defines, and the factored inverse KKT matrix used to evaluate and
// update Lagrange functions.
//
// The three operations the source design separates — read-only evaluation
// (Model), rank-one/rank-two maintenance of the factorization (Update), and
// re-centering the sample set around a new base point (ShiftOrigin) — are
// kept here as a single package because they share the same invariants and
// are never useful in isolation.
package model

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/zaikun/lincoa-go/internal/linalg"
)

// ErrModelCorrupt is returned by operations that detect a non-finite entry
// in the model or its factorization.
var ErrModelCorrupt = errors.New("lincoa/model: non-finite entry in model or factorization")

// ErrDegenerateDenominator is returned by Update when the computed
// tau*sigma product used to accept a replacement point falls below a tiny
// safety threshold, signaling loss of unisolvency of the interpolation set.
var ErrDegenerateDenominator = errors.New("lincoa/model: degenerate update denominator")

// denominatorFloor is the minimum acceptable magnitude of the tau*sigma
// product during an Update; below it the replacement is rejected rather
// than risk an ill-conditioned factorization.
const denominatorFloor = 1e-8

// Model holds the interpolation set, its quadratic model, and the factored
// inverse KKT matrix {BMAT, ZMAT, IDZ} described in the specification's data
// model. All coordinates in XPT are offsets from XBase; XOpt is recovered as
// XPT's KOpt-th column.
type Model struct {
	N, NPT int

	XBase []float64 // n
	XPT   *mat.Dense // n x npt, column k is sample k relative to XBase
	FVal  []float64  // npt
	KOpt  int

	GOpt []float64     // n, gradient of Q at XOpt
	HQ   *mat.SymDense // n x n, explicit Hessian block
	PQ   []float64     // npt, implicit Hessian coefficients

	BMat *mat.Dense // n x (npt+n)
	ZMat *mat.Dense // npt x (npt-n-1)
	IDZ  int         // 1-indexed: ZMAT columns < IDZ carry sign -1, the rest +1
}

// New allocates a zero-valued Model for the given dimension and number of
// interpolation points.
func New(n, npt int) *Model {
	return &Model{
		N: n, NPT: npt,
		XBase: make([]float64, n),
		XPT:   mat.NewDense(n, npt, nil),
		FVal:  make([]float64, npt),
		GOpt:  make([]float64, n),
		HQ:    mat.NewSymDense(n, nil),
		PQ:    make([]float64, npt),
		BMat:  mat.NewDense(n, npt+n, nil),
		ZMat:  mat.NewDense(npt, npt-n-1, nil),
		IDZ:   1,
	}
}

// XOpt returns the coordinates of the current best sample, relative to
// XBase.
func (m *Model) XOpt() []float64 {
	xopt := make([]float64, m.N)
	mat.Col(xopt, m.KOpt, m.XPT)
	return xopt
}

// XAbs returns the absolute coordinates of sample k (XBase + XPT[:,k]).
func (m *Model) XAbs(k int) []float64 {
	x := make([]float64, m.N)
	mat.Col(x, k, m.XPT)
	floats.Add(x, m.XBase)
	return x
}

// signOf returns the Powell sign convention for ZMAT column j (0-indexed):
// -1 for columns before IDZ-1, +1 from IDZ-1 onward.
func (m *Model) signOf(j int) float64 {
	if j < m.IDZ-1 {
		return -1
	}
	return 1
}

// implicitCoeff returns the npt-vector c such that c[i] = sum_j sign(j) *
// ZMAT[i,j] * ZMAT[k,j], i.e. the k-th column of the leading npt x npt
// inverse ZMAT * D * ZMATᵀ. This vector plays two roles in the solver: as
// PQ-style weights on the rank-one terms XPT[:,i] XPT[:,i]ᵀ forming the
// implicit part of Lagrange function k's Hessian, and (its k-th entry) as
// the "alpha" curvature scalar used by Update's denominator test.
func (m *Model) implicitCoeff(k int) ([]float64, error) {
	_, zcols := m.ZMat.Dims()
	c := make([]float64, m.NPT)
	for i := 0; i < m.NPT; i++ {
		var s float64
		for j := 0; j < zcols; j++ {
			s += m.signOf(j) * m.ZMat.At(i, j) * m.ZMat.At(k, j)
		}
		c[i] = s
	}
	if !linalg.IsFiniteVec(c) {
		return nil, ErrModelCorrupt
	}
	return c, nil
}

// LagrangeCoeff returns the implicit-part coefficients of the k-th Lagrange
// function, i.e. the weights on XPT[:,i] XPT[:,i]ᵀ in its quadratic form.
// It fails with ErrModelCorrupt if any entry is not finite.
func (m *Model) LagrangeCoeff(k int) ([]float64, error) {
	return m.implicitCoeff(k)
}

// EvalQuad returns Q(d) = gopt.d + 0.5 d^T H d, where H = HQ + implicit
// Hessian, matching the convention used when FVAL entries were fit.
func (m *Model) EvalQuad(d []float64) float64 {
	lin := linalg.Dot(m.GOpt, d)
	hd := mat.NewVecDense(m.N, nil)
	hd.MulVec(m.HQ, mat.NewVecDense(m.N, d))
	quad := 0.5 * linalg.Dot(hd.RawVector().Data, d)
	for k := 0; k < m.NPT; k++ {
		if m.PQ[k] == 0 {
			continue
		}
		xk := make([]float64, m.N)
		mat.Col(xk, k, m.XPT)
		xd := linalg.Dot(xk, d)
		quad += 0.5 * m.PQ[k] * xd * xd
	}
	return lin + quad
}

// HessVec returns H*d where H = HQ + sum_k PQ[k] XPT[:,k] XPT[:,k]ᵀ is the
// full (explicit+implicit) Hessian of the current quadratic model. trslin
// treats the model as a black-box quadratic through this method, never
// touching HQ/PQ directly.
func (m *Model) HessVec(d []float64) []float64 {
	hd := mat.NewVecDense(m.N, nil)
	hd.MulVec(m.HQ, mat.NewVecDense(m.N, d))
	out := make([]float64, m.N)
	copy(out, hd.RawVector().Data)
	for k := 0; k < m.NPT; k++ {
		if m.PQ[k] == 0 {
			continue
		}
		xk := make([]float64, m.N)
		mat.Col(xk, k, m.XPT)
		xd := linalg.Dot(xk, d)
		floats.AddScaled(out, m.PQ[k]*xd, xk)
	}
	return out
}

// LagrangeValue evaluates the k-th Lagrange function at the point whose
// offset from XBase is t (for instance XOpt()+step).
func (m *Model) LagrangeValue(k int, t []float64) (float64, error) {
	return m.lagrangeValueAt(k, t)
}

// LagrangeGradient returns the gradient of the k-th Lagrange function at
// XOpt: BMAT[:,k] + sum_i c_k[i] (XPT[:,i].XOpt) XPT[:,i].
func (m *Model) LagrangeGradient(k int) ([]float64, error) {
	c, err := m.implicitCoeff(k)
	if err != nil {
		return nil, err
	}
	xopt := m.XOpt()
	g := make([]float64, m.N)
	mat.Col(g, k, m.BMat)
	for i := 0; i < m.NPT; i++ {
		if c[i] == 0 {
			continue
		}
		xi := make([]float64, m.N)
		mat.Col(xi, i, m.XPT)
		xt := linalg.Dot(xi, xopt)
		floats.AddScaled(g, c[i]*xt, xi)
	}
	return g, nil
}

// lagrangeValueAt evaluates the k-th Lagrange function at the point whose
// offset from XBase is t, using L_k(t) = BMAT[:,k].t + 0.5 * sum_i c_k[i]
// (XPT[:,i].t)^2.
func (m *Model) lagrangeValueAt(k int, t []float64) (float64, error) {
	c, err := m.implicitCoeff(k)
	if err != nil {
		return 0, err
	}
	bcol := make([]float64, m.N)
	mat.Col(bcol, k, m.BMat)
	val := linalg.Dot(bcol, t)
	for i := 0; i < m.NPT; i++ {
		if c[i] == 0 {
			continue
		}
		xi := make([]float64, m.N)
		mat.Col(xi, i, m.XPT)
		xt := linalg.Dot(xi, t)
		val += 0.5 * c[i] * xt * xt
	}
	return val, nil
}

// diffsFromKOpt returns FVAL[k]-FVAL[KOpt] for every k, the right-hand side
// of the minimum-Frobenius-norm interpolation conditions used by both
// MinimumNormPrediction and RebuildMinimumNorm.
func (m *Model) diffsFromKOpt() []float64 {
	d := make([]float64, m.NPT)
	for k := range d {
		d[k] = m.FVal[k] - m.FVal[m.KOpt]
	}
	return d
}

// minimumNormCoeffs solves for the implicit-Hessian weights and gradient of
// the minimum-Frobenius-norm quadratic that interpolates FVAL through
// XBASE+XPT with no explicit (HQ) second-derivative term: pq = ZMAT*D*ZMATᵀ *
// diffs, gopt = BMAT[:, :npt] * diffs, where diffs[k] = FVAL[k]-FVAL[KOpt].
// This is the alternative model the outer loop periodically compares its
// Broyden-updated model against (spec section 4.8 step 7).
func (m *Model) minimumNormCoeffs() (pq, gopt []float64, err error) {
	diffs := m.diffsFromKOpt()
	_, zcols := m.ZMat.Dims()
	pq = make([]float64, m.NPT)
	for i := 0; i < m.NPT; i++ {
		var s float64
		for j := 0; j < zcols; j++ {
			var zj float64
			for k := 0; k < m.NPT; k++ {
				zj += m.ZMat.At(k, j) * diffs[k]
			}
			s += m.signOf(j) * m.ZMat.At(i, j) * zj
		}
		pq[i] = s
	}
	gopt = make([]float64, m.N)
	for k := 0; k < m.NPT; k++ {
		if diffs[k] == 0 {
			continue
		}
		bcol := make([]float64, m.N)
		mat.Col(bcol, k, m.BMat)
		floats.AddScaled(gopt, diffs[k], bcol)
	}
	if !linalg.IsFiniteVec(pq) || !linalg.IsFiniteVec(gopt) {
		return nil, nil, ErrModelCorrupt
	}
	return pq, gopt, nil
}

// MinimumNormPrediction returns what the minimum-Frobenius-norm alternative
// model (see minimumNormCoeffs) would predict as Q(d) for the step d,
// without mutating the live Broyden-updated model. The outer loop uses this
// to decide whether the alternative model is currently tracking the
// objective more accurately (spec section 4.8 step 7).
func (m *Model) MinimumNormPrediction(d []float64) (float64, error) {
	pq, gopt, err := m.minimumNormCoeffs()
	if err != nil {
		return 0, err
	}
	lin := linalg.Dot(gopt, d)
	var quad float64
	for k := 0; k < m.NPT; k++ {
		if pq[k] == 0 {
			continue
		}
		xk := make([]float64, m.N)
		mat.Col(xk, k, m.XPT)
		xd := linalg.Dot(xk, d)
		quad += 0.5 * pq[k] * xd * xd
	}
	return lin + quad, nil
}

// RebuildMinimumNorm replaces the current model with the minimum
// Frobenius-norm interpolant: HQ is reset to zero and PQ, GOpt are
// recomputed from FVAL via ZMAT/BMAT, discarding every explicit
// second-derivative correction accumulated by prior calls to Update. The
// outer loop does this when the alternative model has out-predicted the
// Broyden one for several consecutive iterations (spec section 4.8 step 7).
func (m *Model) RebuildMinimumNorm() error {
	pq, gopt, err := m.minimumNormCoeffs()
	if err != nil {
		return err
	}
	m.HQ = mat.NewSymDense(m.N, nil)
	m.PQ = pq
	m.GOpt = gopt
	return m.Check()
}

// Check validates the invariants that must hold after every mutation: HQ is
// symmetric and finite, IDZ is within range, and every stored array is free
// of NaN/Inf.
func (m *Model) Check() error {
	if !linalg.IsFiniteSym(m.HQ) {
		return fmt.Errorf("%w: HQ", ErrModelCorrupt)
	}
	if !linalg.IsFiniteVec(m.PQ) || !linalg.IsFiniteVec(m.GOpt) || !linalg.IsFiniteVec(m.FVal) || !linalg.IsFiniteVec(m.XBase) {
		return fmt.Errorf("%w: vector state", ErrModelCorrupt)
	}
	maxIDZ := m.NPT - m.N
	if m.IDZ < 1 || m.IDZ > maxIDZ {
		return fmt.Errorf("%w: IDZ=%d out of [1,%d]", ErrModelCorrupt, m.IDZ, maxIDZ)
	}
	for _, d := range []*mat.Dense{m.XPT, m.BMat, m.ZMat} {
		r, c := d.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				if !linalg.IsFinite(d.At(i, j)) {
					return fmt.Errorf("%w: XPT/BMAT/ZMAT", ErrModelCorrupt)
				}
			}
		}
	}
	return nil
}
