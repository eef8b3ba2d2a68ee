package lincoa

import (
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"

	"github.com/zaikun/lincoa-go/internal/geomstep"
	"github.com/zaikun/lincoa-go/internal/model"
	"github.com/zaikun/lincoa-go/internal/trslin"
)

// state names the step of the outer loop's cycle, matching the design's
// explicit state machine: a trial step is either a trust-region step or a
// geometry-improving step, evaluated at the new point, folded into the
// model, and followed by adjusting the trust-region radius before the cycle
// repeats.
type state int

const (
	stateChooseStep state = iota
	stateEvaluate
	stateUpdate
	stateAdjustRadius
)

// Minimize finds a local minimizer of p.Func starting from x0, subject to
// the linear constraints p.A, p.B, using the trust-region radius schedule
// and termination rules in settings.
func Minimize(p Problem, x0 []float64, settings Settings) (Result, error) {
	start := time.Now()

	if p.Func == nil {
		return Result{}, ErrMissingObjective
	}
	n := len(x0)
	if n == 0 {
		return Result{}, ErrInvalidDimension
	}
	if settings.RhoBeg <= 0 || settings.RhoEnd <= 0 || settings.RhoEnd > settings.RhoBeg {
		return Result{}, ErrInvalidSettings
	}
	if settings.Eta1 == 0 && settings.Eta2 == 0 {
		settings.Eta1, settings.Eta2 = 0.1, 0.7
	}
	if settings.Gamma1 == 0 {
		settings.Gamma1 = 0.5
	}
	if settings.Gamma2 == 0 {
		settings.Gamma2 = 2
	}
	if settings.MaxFuncEvaluations == 0 {
		settings.MaxFuncEvaluations = 500 * (n + 1)
	}

	if !allFinite(x0) {
		return Result{X: append([]float64(nil), x0...), Status: NaNInputX}, nil
	}

	var a *mat.Dense
	var b []float64
	if len(p.A) > 0 {
		var err error
		a, b, err = normalizeConstraints(p.A, p.B, n)
		if err != nil {
			return Result{}, err
		}
	} else {
		a = &mat.Dense{}
	}

	var stats Stats
	hist := newHistoryRing(settings.MaxHistory)
	logf := settings.Logf

	eval := func(x []float64) float64 {
		f := p.Func(x)
		stats.FuncEvaluations++
		if settings.RecordHistory {
			hist.push(HistoryEntry{X: append([]float64(nil), x...), F: f})
		}
		return f
	}

	f0 := eval(x0)
	result := func(x []float64, f float64, status Status) Result {
		return Result{
			X: x, F: f, Cstrv: cstrv(p.A, p.B, x),
			Status: status, Stats: withRuntime(stats, start), History: hist.entries(),
		}
	}
	if math.IsNaN(f0) {
		return result(append([]float64(nil), x0...), f0, NaNObjective), nil
	}
	if f0 <= settings.FTarget {
		return result(append([]float64(nil), x0...), f0, FTargetAchieved), nil
	}

	mdl, feasible, err := buildInitialModel(n, x0, f0, settings.RhoBeg, a, b, eval)
	if err != nil {
		return Result{}, err
	}

	activeSet := trslin.NewActiveSet(n)
	rho := settings.RhoBeg
	delta := rho
	status := NotTerminated

	var trialStep []float64
	var xnew []float64
	var fnew float64
	var lastRatio float64
	isGeomStep := false
	geomKnew := -1
	geomIfeas := true
	ngetact := 0

	// nvala/nvalb count, respectively, how many consecutive too-short trust
	// steps landed at or below 0.5*rho and strictly above it; once both stay
	// small a geometry step is tried to fix the sample set's poisedness
	// before giving up and reducing rho outright (spec section 4.8 step 4).
	// nvalStallLimit is not given an exact value by the spec (unlike the
	// 0.1999/0.5 thresholds below, which it asks to preserve exactly); 3 is
	// a small, deliberately conservative bound documented in DESIGN.md.
	const nvalStallLimit = 3
	nvala, nvalb := 0, 0

	// imprv toggles when a trust step predicts no improvement (qred<=0): the
	// first occurrence retries with a geometry step, a second consecutive
	// occurrence forces a rho reduction instead of looping forever. This is
	// the mechanism spec section 4.8 step 5 ties directly to the historical
	// infinite-looping regression (scenario E5).
	imprv := false

	// itest counts consecutive iterations in which the minimum-Frobenius-norm
	// alternative model predicted the actual objective value more accurately
	// than the live Broyden-updated model; reaching 3 triggers a rebuild to
	// the alternative model (spec section 4.8 step 7).
	itest := 0

	// fsave is fopt as of the last rho reduction (or start), used by step
	// 10's "has this rho level made any progress" check.
	fsave := f0

	// knewGeom is 0 when the next step should be a trust-region step, or
	// 1+index of the sample a geometry step should target.
	knewGeom := 0

	reduceRho := func() {
		if rho <= settings.RhoEnd || scalar.EqualWithinAbsOrRel(rho, settings.RhoEnd, 1e-12, 1e-12) {
			status = Success
			return
		}
		newRho, newDelta := nextRho(rho, settings)
		rho, delta = newRho, newDelta
		stats.RhoReductions++
		nvala, nvalb = 0, 0
		knewGeom = 0
		fsave = mdl.FVal[mdl.KOpt]
	}

	st := stateChooseStep
	for status == NotTerminated {
		switch st {
		case stateChooseStep:
			xopt := mdl.XOpt()
			if model.ShiftOriginThreshold(xopt, delta) {
				mdl.ShiftOrigin()
				xopt = mdl.XOpt()
			}
			rescon := computeRescon(a, b, mdl.XAbs(mdl.KOpt), delta)

			isGeomStep = knewGeom > 0
			if isGeomStep {
				gr, gerr := geomstep.Solve(mdl, knewGeom-1, a, b, rescon, math.Max(0.1*delta, rho))
				if gerr != nil {
					isGeomStep = false
				} else {
					trialStep = gr.Step
					geomKnew = knewGeom - 1
					geomIfeas = gr.Ifeas
				}
			}
			knewGeom = 0

			if !isGeomStep {
				tr := trslin.Solve(mdl.GOpt, mdl.HessVec, a, b, rescon, delta, activeSet)
				trialStep = tr.Step
				ngetact = tr.Ngetact
				snorm := tr.Snorm

				thresh := 0.5 * delta
				if ngetact > 1 {
					thresh = 0.1999 * delta
				}
				if snorm <= thresh {
					delta = 0.5 * delta
					if delta <= 1.4*rho {
						delta = rho
					}
					if snorm <= 0.5*rho {
						nvala++
					} else {
						nvalb++
					}
					if nvala < nvalStallLimit && nvalb < nvalStallLimit {
						if kfar := farthestSample(mdl); kfar >= 0 {
							knewGeom = kfar + 1
						}
						continue
					}
					reduceRho()
					continue
				}
				nvala, nvalb = 0, 0

				qred := -mdl.EvalQuad(trialStep)
				if qred <= 0 {
					if !imprv {
						imprv = true
						if kfar := farthestSample(mdl); kfar >= 0 {
							knewGeom = kfar + 1
						}
						continue
					}
					imprv = false
					reduceRho()
					continue
				}
				imprv = false
			}
			st = stateEvaluate

		case stateEvaluate:
			if stats.FuncEvaluations >= settings.MaxFuncEvaluations {
				status = MaxFunEvaluationsReached
				continue
			}
			snorm := norm(trialStep)
			if snorm < 0.1*rho {
				// Neither candidate made meaningful progress: shrink
				// immediately rather than waste a function evaluation. This
				// is the pre-evaluation half of spec section 4.8 step 6's
				// displacement sanity check (0.1*rho < ||x-xsav||): a step
				// this short never reaches the evaluation below, so it
				// folds into the trust-radius shrink mechanics instead of
				// the terminal DamagingRounding path, which is reserved for
				// the other, anomalous half of that check.
				delta = settings.Gamma1 * delta
				st = stateChooseStep
				continue
			}
			if snorm >= 2*delta {
				// The realized displacement should never exceed the trust
				// region that bounded the subproblem solve that produced
				// it; if it does, the model or factorization has drifted
				// from what the subproblem solvers assumed.
				status = DamagingRounding
				continue
			}
			xopt := mdl.XOpt()
			xnew = addedVec(mdl.XBase, addedVec(xopt, trialStep))
			if !allFinite(xnew) {
				status = NaNModel
				continue
			}
			fnew = eval(xnew)
			stats.Iterations++
			if isGeomStep {
				stats.GeometrySteps++
			}
			if logf != nil && settings.IPrint > 0 {
				logf("lincoa: iter=%d rho=%.3e f=%.6e geom=%t\n", stats.Iterations, rho, fnew, isGeomStep)
			}
			if math.IsNaN(fnew) {
				status = NaNObjective
				continue
			}
			if fnew <= settings.FTarget {
				status = FTargetAchieved
				continue
			}
			st = stateUpdate

		case stateUpdate:
			oldF := mdl.FVal[mdl.KOpt]
			predicted := -mdl.EvalQuad(trialStep)

			var ifeasNew bool
			if isGeomStep {
				ifeasNew = geomIfeas
			} else {
				ifeasNew = isFeasible(a, b, xnew)
			}

			knewHint := 0
			if isGeomStep && geomKnew >= 0 {
				knewHint = geomKnew + 1
			}
			knew, uerr := mdl.Update(knewHint, trialStep, fnew)
			if uerr != nil {
				if errors.Is(uerr, model.ErrDegenerateDenominator) {
					status = DamagingRounding
				} else {
					status = NaNModel
				}
				continue
			}

			// Promote knew to KOpt only when the new point is feasible and
			// either better than the current incumbent or the incumbent is
			// infeasible: a best-feasible-iterate invariant (spec section 3's
			// xsav/kopt), not a bare argmin over FVAL. An infeasible point is
			// never promoted. If the current incumbent is itself still the
			// initialization's infeasible fallback, any feasible point takes
			// over regardless of its f value, since Powell's algorithm never
			// knowingly retreats from a feasible sample to an infeasible one.
			// GOpt is moved along with KOpt so it stays the gradient at XOpt.
			oldKOptFeasible := feasible[mdl.KOpt]
			feasible[knew] = ifeasNew
			if ifeasNew && (!oldKOptFeasible || fnew < mdl.FVal[mdl.KOpt]) {
				mdl.GOpt = addedVec(mdl.GOpt, mdl.HessVec(trialStep))
				mdl.KOpt = knew
			}
			lastRatio = ratio(oldF-fnew, predicted)

			// Minimum-Frobenius-norm alternative-model bookkeeping (spec
			// section 4.8 step 7): only evaluated for feasible points, and
			// only while a rebuild isn't already imminent.
			if ifeasNew && itest < 3 {
				diff := fnew - oldF + predicted
				if altPred, aerr := mdl.MinimumNormPrediction(trialStep); aerr == nil {
					altDiff := fnew - oldF - altPred
					if math.Abs(altDiff) < math.Abs(diff) {
						itest++
					} else {
						itest = 0
					}
				}
			}
			if itest >= 3 {
				if rerr := mdl.RebuildMinimumNorm(); rerr == nil {
					itest = 0
				}
			}

			st = stateAdjustRadius

		case stateAdjustRadius:
			deltaBeforeAdjust := delta
			if !isGeomStep {
				switch {
				case lastRatio < settings.Eta1:
					delta = settings.Gamma1 * delta
				case lastRatio >= settings.Eta2:
					delta = math.Min(settings.Gamma2*delta, math.Max(delta, 2*norm(trialStep)))
				default:
					delta = math.Min(delta, math.Max(norm(trialStep), rho))
				}
			}

			// Step 10: decide what the next cycle does. A geometry step just
			// evaluated, or a clearly successful trust step, always goes
			// straight back to another trust step. Otherwise check whether
			// some sample has drifted too far from xopt and needs a
			// geometry fix first; failing that, keep taking trust steps
			// only if this rho level is still making progress; otherwise
			// fall through to a rho reduction.
			justFixedGeometry := isGeomStep
			if justFixedGeometry || lastRatio >= settings.Eta1 {
				knewGeom = 0
			} else {
				distsq := math.Max(delta*delta, 4*rho*rho)
				if kfar := farthestSample(mdl); kfar >= 0 && sampleDistSq(mdl, kfar) > distsq {
					knewGeom = kfar + 1
				} else if mdl.FVal[mdl.KOpt] < fsave || deltaBeforeAdjust > rho {
					knewGeom = 0
				} else {
					reduceRho()
					st = stateChooseStep
					continue
				}
			}
			st = stateChooseStep
		}
	}

	best := mdl.XAbs(mdl.KOpt)
	bestF := mdl.FVal[mdl.KOpt]
	if status == FTargetAchieved && fnew <= bestF {
		best, bestF = xnew, fnew
	}
	return result(best, bestF, status), nil
}

func withRuntime(s Stats, start time.Time) Stats {
	s.Runtime = time.Since(start)
	return s
}

func ratio(actual, predicted float64) float64 {
	if predicted <= 0 {
		if actual <= 0 {
			return 0
		}
		return 1
	}
	return actual / predicted
}

// nextRho applies Powell's standard geometric reduction schedule, passing
// through an intermediate radius of sqrt(rho*rhoEnd) before dropping
// straight to rhoEnd.
func nextRho(rho float64, settings Settings) (newRho, newDelta float64) {
	ratio := rho / settings.RhoEnd
	switch {
	case ratio <= 16:
		newRho = settings.RhoEnd
	case ratio <= 250:
		newRho = math.Sqrt(ratio) * settings.RhoEnd
	default:
		newRho = 0.1 * rho
	}
	newDelta = math.Max(0.5*rho, newRho)
	return newRho, newDelta
}

func farthestSample(m *model.Model) int {
	xopt := m.XOpt()
	best := -1
	var bestDist float64
	for k := 0; k < m.NPT; k++ {
		if k == m.KOpt {
			continue
		}
		xk := make([]float64, m.N)
		mat.Col(xk, k, m.XPT)
		var d float64
		for i := range xk {
			diff := xk[i] - xopt[i]
			d += diff * diff
		}
		if best == -1 || d > bestDist {
			best, bestDist = k, d
		}
	}
	return best
}

// sampleDistSq returns ||XPT[:,k] - xopt||^2.
func sampleDistSq(m *model.Model, k int) float64 {
	xopt := m.XOpt()
	xk := make([]float64, m.N)
	mat.Col(xk, k, m.XPT)
	var d float64
	for i := range xk {
		diff := xk[i] - xopt[i]
		d += diff * diff
	}
	return d
}

func norm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

// historyRing accumulates HistoryEntry records the way PRIMA's own
// bindings do (spec section 6's "Output buffers for history arrays, sized
// maxhist"): once cap entries have been pushed, each further push overwrites
// the oldest retained one, so the buffer always holds the most recent cap
// evaluations. A zero cap means unbounded (the common case for library use,
// where the caller wants the full trace rather than a fixed-size window).
type historyRing struct {
	cap     int
	buf     []HistoryEntry
	next    int
	wrapped bool
}

func newHistoryRing(cap int) *historyRing {
	return &historyRing{cap: cap}
}

func (h *historyRing) push(e HistoryEntry) {
	if h.cap <= 0 {
		h.buf = append(h.buf, e)
		return
	}
	if len(h.buf) < h.cap {
		h.buf = append(h.buf, e)
		return
	}
	h.buf[h.next] = e
	h.next = (h.next + 1) % h.cap
	h.wrapped = true
}

// entries returns the retained history in evaluation order (oldest first).
func (h *historyRing) entries() []HistoryEntry {
	if !h.wrapped {
		return h.buf
	}
	out := make([]HistoryEntry, 0, len(h.buf))
	out = append(out, h.buf[h.next:]...)
	out = append(out, h.buf[:h.next]...)
	return out
}
