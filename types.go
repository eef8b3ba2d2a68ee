package lincoa

import (
	"math"
	"time"
)

// Problem describes the optimization problem to be solved: minimize Func
// subject to A*x <= B (row-wise).
type Problem struct {
	// Func evaluates the objective function at x. Func must not modify x.
	// Func may be called at points that violate the constraints: every
	// initial coordinate point x0 +/- RhoBeg*e_i is evaluated whether or not
	// it is feasible, and trial points are not checked for feasibility
	// before they are evaluated.
	Func func(x []float64) float64

	// A holds one constraint gradient per row: constraint i is
	// A[i].x <= B[i]. A may be nil if there are no constraints.
	A [][]float64

	// B holds the right-hand sides of the constraints in A, one per row.
	B []float64
}

// Settings controls the trust-region schedule, termination, and logging of
// a call to Minimize. Use DefaultSettings to obtain sensible defaults and
// override only the fields that matter for the call at hand.
type Settings struct {
	// RhoBeg is the initial trust-region radius. It should be set to the
	// typical distance the solver may need to move from the starting point,
	// and must exceed RhoEnd.
	RhoBeg float64

	// RhoEnd is the final trust-region radius, roughly the required
	// accuracy in the variables. Minimize returns Success once the radius
	// is reduced to RhoEnd without triggering another termination status.
	RhoEnd float64

	// Eta1 and Eta2 are the ratio thresholds used to classify a trial step
	// as poor, acceptable, or very successful, in (0,1) with Eta1 <= Eta2.
	// Defaults are 0.1 and 0.7.
	Eta1, Eta2 float64

	// Gamma1 and Gamma2 shrink and enlarge the trust-region radius after a
	// poor or very successful step, respectively, with 0 < Gamma1 < 1 <
	// Gamma2. Defaults are 0.5 and 2.
	Gamma1, Gamma2 float64

	// FTarget stops the optimization as soon as an evaluated objective
	// value is at or below this threshold. The default, negative infinity,
	// disables this check.
	FTarget float64

	// MaxFuncEvaluations caps the number of objective evaluations. Zero
	// means the default of 500*(n+1) is used, where n is the problem
	// dimension.
	MaxFuncEvaluations int

	// IPrint switches the progress output sent to Logf: 0 (or a negative
	// value) silences it, and any positive value sends the same one line per
	// iteration; larger values add no detail.
	IPrint int

	// Logf, if non-nil and IPrint > 0, receives a line of progress output
	// every iteration. It follows the fmt.Printf calling convention.
	Logf func(format string, args ...interface{})

	// RecordHistory, if true, causes Minimize to populate Result.History
	// with one entry per function evaluation.
	RecordHistory bool

	// MaxHistory caps the number of entries Result.History retains, behaving
	// as a ring buffer over the most recent evaluations once the cap is
	// reached (spec section 6: "Output buffers for history arrays (sized
	// maxhist, caller-chosen; may be empty)"). Zero means unbounded.
	MaxHistory int
}

// DefaultSettings returns Settings with the given initial and final
// trust-region radii and the standard values for every other field. A zero
// Settings is not equivalent: Minimize rejects it with ErrInvalidSettings,
// since its RhoBeg is zero.
func DefaultSettings(rhoBeg, rhoEnd float64) Settings {
	return Settings{
		RhoBeg:  rhoBeg,
		RhoEnd:  rhoEnd,
		Eta1:    0.1,
		Eta2:    0.7,
		Gamma1:  0.5,
		Gamma2:  2,
		FTarget: math.Inf(-1),
	}
}

// HistoryEntry records a single function evaluation performed during the
// optimization.
type HistoryEntry struct {
	X []float64
	F float64
}

// Stats reports counters accumulated during a run of Minimize.
type Stats struct {
	FuncEvaluations int
	Iterations      int
	GeometrySteps   int
	RhoReductions   int
	Runtime         time.Duration
}

// Result is returned by Minimize.
type Result struct {
	X []float64
	F float64

	// Cstrv is the worst-case violation of Problem.A, Problem.B at X, in
	// the caller's original (pre-normalization) units: max(0, max_j(A[j].X
	// - B[j])). It is zero when X is feasible.
	Cstrv float64

	Status  Status
	Stats   Stats
	History []HistoryEntry
}
