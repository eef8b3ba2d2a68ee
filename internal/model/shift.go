package model

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/zaikun/lincoa-go/internal/linalg"
)

// ShiftOriginThreshold reports whether ‖xopt‖^2 >= 1e4*delta^2, the trigger
// the outer loop uses to decide whether to re-center the model.
func ShiftOriginThreshold(xopt []float64, delta float64) bool {
	return linalg.Dot(xopt, xopt) >= 1e4*delta*delta
}

// ShiftOrigin re-expresses the model relative to a new base point
// (XBase + XOpt) without changing the interpolant it represents: XBase
// absorbs the current XOpt, every sample's offset is reduced by XOpt, and
// HQ/GOpt are adjusted so Q(d) keeps meaning the same thing relative to the
// new XOpt (now the zero vector).
func (m *Model) ShiftOrigin() {
	xopt := m.XOpt()
	floats.Add(m.XBase, xopt)

	r, c := m.XPT.Dims()
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			m.XPT.Set(i, j, m.XPT.At(i, j)-xopt[i])
		}
	}

	// The quadratic model Q_old(d) = gopt.d + 0.5 d^T H d was defined with d
	// relative to the old xopt. In the new frame, d' = d - xopt (since the
	// new xopt is 0), so d = d' + xopt, and
	//   Q_old(d' + xopt) = (gopt + H xopt).d' + 0.5 d'^T H d' + const.
	// The constant is absorbed into FVal (it cancels in FVal[k]-FVal[kopt]
	// differences), so only the linear term needs updating.
	hx := mat.NewVecDense(m.N, nil)
	hx.MulVec(m.HQ, mat.NewVecDense(m.N, xopt))
	floats.Add(m.GOpt, hx.RawVector().Data)

	// BMAT's first npt columns are linear coefficients of Lagrange
	// functions expressed relative to XBase; since every XPT column moved
	// by -xopt, shift them as well so the defining property is preserved:
	// L_k's new linear term, evaluated at a point offset t' = t - xopt,
	// must equal the old one evaluated at t.
	for k := 0; k < m.NPT; k++ {
		c, err := m.implicitCoeff(k)
		if err != nil {
			continue
		}
		var correction []float64
		for i := 0; i < m.NPT; i++ {
			if c[i] == 0 {
				continue
			}
			xi := make([]float64, m.N)
			mat.Col(xi, i, m.XPT)
			dot := linalg.Dot(xi, xopt)
			if correction == nil {
				correction = make([]float64, m.N)
			}
			floats.AddScaled(correction, c[i]*dot, xi)
		}
		if correction != nil {
			bcol := make([]float64, m.N)
			mat.Col(bcol, k, m.BMat)
			floats.Add(bcol, correction)
			m.BMat.SetCol(k, bcol)
		}
	}

	// KOpt still identifies the same column, now the zero vector.
}
