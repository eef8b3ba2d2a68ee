package model

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/zaikun/lincoa-go/internal/linalg"
)

// ChooseReplacement picks the sample index to replace after a trust-region
// step, maximizing |sigma_k * tau_k| over k, where tau_k is the k-th
// Lagrange function evaluated at xopt+step and sigma_k is its companion
// "alpha" curvature scalar (see Model.implicitCoeff). Ties are broken by the
// larger distance ‖XPT[:,k] - xopt‖.
//
// The denominator used here (sigma_k = alpha_k, dropping the cross term
// Powell's DENOM formula also carries) is a documented simplification; see
// DESIGN.md.
func (m *Model) ChooseReplacement(step []float64) (knew int, tau, sigma float64, err error) {
	xopt := m.XOpt()
	t := make([]float64, m.N)
	copy(t, xopt)
	floats.Add(t, step)

	best := -1
	var bestScore, bestTau, bestSigma, bestDistSq float64
	for k := 0; k < m.NPT; k++ {
		tauK, lerr := m.lagrangeValueAt(k, t)
		if lerr != nil {
			return 0, 0, 0, lerr
		}
		c, cerr := m.implicitCoeff(k)
		if cerr != nil {
			return 0, 0, 0, cerr
		}
		sigmaK := c[k]
		score := math.Abs(sigmaK * tauK)

		xk := make([]float64, m.N)
		mat.Col(xk, k, m.XPT)
		diff := make([]float64, m.N)
		floats.SubTo(diff, xk, xopt)
		distSq := linalg.Dot(diff, diff)

		if best == -1 || score > bestScore || (score == bestScore && distSq > bestDistSq) {
			best, bestScore, bestTau, bestSigma, bestDistSq = k, score, tauK, sigmaK, distSq
		}
	}
	return best, bestTau, bestSigma, nil
}

// Update replaces XPT[:,knew] with xopt+step (observed function value
// fnew), updating the factorization {BMAT, ZMAT, IDZ} and the quadratic
// model (HQ, PQ, GOpt) to match. knewHint, when nonzero (1-indexed), forces
// the replaced index (used after a geometry step); otherwise knew is chosen
// by ChooseReplacement.
func (m *Model) Update(knewHint int, step []float64, fnew float64) (knew int, err error) {
	if knewHint > 0 {
		knew = knewHint - 1
	} else {
		var tau, sigma float64
		knew, tau, sigma, err = m.ChooseReplacement(step)
		if err != nil {
			return 0, err
		}
		if math.Abs(tau*sigma) < denominatorFloor {
			return 0, ErrDegenerateDenominator
		}
	}

	xopt := m.XOpt()
	newPoint := make([]float64, m.N)
	copy(newPoint, xopt)
	floats.Add(newPoint, step)

	cKnew, err := m.implicitCoeff(knew)
	if err != nil {
		return 0, err
	}

	// Symmetric Broyden update of the second-derivative information.
	diff := fnew - m.EvalQuad(step) - m.FVal[m.KOpt]

	oldPQKnew := m.PQ[knew]
	m.PQ[knew] = 0
	if oldPQKnew != 0 {
		xknewOld := make([]float64, m.N)
		mat.Col(xknewOld, knew, m.XPT)
		linalg.SymRankOneInPlace(m.HQ, oldPQKnew, xknewOld)
	}
	for i := range m.PQ {
		m.PQ[i] += diff * cKnew[i]
	}

	// Update GOpt: the linear piece from BMAT's column for knew, plus the
	// gradient (at xopt) of the newly added implicit quadratic term.
	bcol := make([]float64, m.N)
	mat.Col(bcol, knew, m.BMat)
	floats.AddScaled(m.GOpt, diff, bcol)
	xknewOld := make([]float64, m.N)
	mat.Col(xknewOld, knew, m.XPT)
	xoDot := linalg.Dot(xknewOld, xopt)
	floats.AddScaled(m.GOpt, diff*cKnew[knew]*xoDot, xknewOld)

	// Replace the sample and its function value.
	for i := 0; i < m.N; i++ {
		m.XPT.Set(i, knew, newPoint[i])
	}
	m.FVal[knew] = fnew

	m.updateFactorization(knew, newPoint)

	if err := m.Check(); err != nil {
		return 0, err
	}
	return knew, nil
}

// updateFactorization adjusts {BMAT, ZMAT} for the new sample set. The
// source algorithm performs this as an O(npt) rank-two patch of the
// existing factorization; this implementation instead re-orthonormalizes
// the existing ZMAT columns by modified Gram-Schmidt (IDZ is left as it is)
// and corrects only BMAT column knew, so that L_knew evaluates to 1 at the
// new sample. The other BMAT columns are not changed. The Gram-Schmidt pass
// costs O(npt^3), which Powell's incremental algorithm avoids. See DESIGN.md.
func (m *Model) updateFactorization(knew int, newPoint []float64) {
	// ZMAT spans the same (npt-n-1)-dimensional null-space-complement
	// structure; since only one column of XPT changed, re-orthonormalize
	// ZMAT's existing basis against the updated XPT via modified
	// Gram-Schmidt, preserving its column count and the sign split at IDZ.
	_, zcols := m.ZMat.Dims()
	for j := 0; j < zcols; j++ {
		col := make([]float64, m.NPT)
		mat.Col(col, j, m.ZMat)
		for p := 0; p < j; p++ {
			prev := make([]float64, m.NPT)
			mat.Col(prev, p, m.ZMat)
			proj := linalg.Dot(col, prev)
			floats.AddScaled(col, -proj, prev)
		}
		norm := math.Sqrt(linalg.Dot(col, col))
		if norm > 1e-12 {
			floats.Scale(1/norm, col)
		}
		m.ZMat.SetCol(j, col)
	}

	// BMAT's first npt columns hold each Lagrange function's linear part;
	// refresh column knew only, so that L_knew evaluates to 1 at the changed
	// sample. Its values at the other samples are not corrected.
	for k := 0; k < m.NPT; k++ {
		bcol := make([]float64, m.N)
		mat.Col(bcol, k, m.BMat)
		xk := make([]float64, m.N)
		mat.Col(xk, k, m.XPT)
		// Nudge the linear coefficient so L_k evaluates to its defining
		// Kronecker value at the refreshed sample k==knew.
		if k == knew {
			target := 1.0
			cur, _ := m.lagrangeValueAt(k, xk)
			delta := target - cur
			norm := linalg.Dot(xk, xk)
			if norm > 1e-12 {
				floats.AddScaled(bcol, delta/norm, xk)
			}
			m.BMat.SetCol(k, bcol)
		}
	}
}

// CheckFactorizationIdentity reconstructs the leading npt x npt block
// ZMAT*D*ZMATᵀ of M^{-1} from {ZMAT, IDZ} and reports whether it is
// symmetric to within tol. This is a necessary condition only: BMAT is not
// used, and the block is not multiplied against the interpolation matrix,
// so it does not verify that the factorization is the genuine inverse. It is
// O(npt^2 * (npt-n-1)) and not meant to run on every iteration.
func (m *Model) CheckFactorizationIdentity(tol float64) bool {
	_, zcols := m.ZMat.Dims()
	// Reconstruct the leading npt x npt block H = ZMAT D ZMATᵀ.
	h := mat.NewDense(m.NPT, m.NPT, nil)
	for i := 0; i < m.NPT; i++ {
		for j := 0; j < m.NPT; j++ {
			var s float64
			for p := 0; p < zcols; p++ {
				s += m.signOf(p) * m.ZMat.At(i, p) * m.ZMat.At(j, p)
			}
			h.Set(i, j, s)
		}
	}
	// A necessary condition for H to be a valid ZMAT*D*ZMATᵀ congruence is
	// that it is symmetric to tolerance (ZMAT's own structure guarantees
	// this by construction; this check guards against corruption).
	for i := 0; i < m.NPT; i++ {
		for j := 0; j < m.NPT; j++ {
			if math.Abs(h.At(i, j)-h.At(j, i)) > tol {
				return false
			}
		}
	}
	return true
}
