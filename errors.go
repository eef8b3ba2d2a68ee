package lincoa

import (
	"errors"
	"fmt"
)

// Status represents the outcome of a call to Minimize.
type Status int

const (
	// NotTerminated is never returned to callers; it is the internal
	// sentinel meaning "keep iterating".
	NotTerminated Status = iota
	// Success indicates that the trust-region radius reached RhoEnd without
	// any other termination condition triggering first.
	Success
	// FTargetAchieved indicates that an evaluated objective value fell at
	// or below Settings.FTarget.
	FTargetAchieved
	// MaxFunEvaluationsReached indicates that Settings.MaxFuncEvaluations
	// function evaluations were used without convergence.
	MaxFunEvaluationsReached
	// NaNInputX indicates that the starting point contains a NaN or Inf.
	NaNInputX
	// NaNObjective indicates that the objective function returned a NaN.
	NaNObjective
	// NaNModel indicates that the quadratic model's internal state became
	// non-finite, most likely from an ill-conditioned interpolation set.
	NaNModel
	// DamagingRounding indicates that accumulated rounding error forced the
	// solver to stop before RhoEnd was reached, to avoid degrading the
	// model further.
	DamagingRounding
	// InfeasibleConstraints indicates that the supplied constraints admit
	// no feasible point within tolerance of the starting point.
	InfeasibleConstraints
)

var statusNames = map[Status]string{
	NotTerminated:            "NotTerminated",
	Success:                  "Success",
	FTargetAchieved:          "FTargetAchieved",
	MaxFunEvaluationsReached: "MaxFunEvaluationsReached",
	NaNInputX:                "NaNInputX",
	NaNObjective:             "NaNObjective",
	NaNModel:                 "NaNModel",
	DamagingRounding:         "DamagingRounding",
	InfeasibleConstraints:    "InfeasibleConstraints",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Done reports whether s represents a terminal status.
func (s Status) Done() bool {
	return s != NotTerminated
}

// ErrMissingObjective is returned by Minimize when Problem.Func is nil.
var ErrMissingObjective = errors.New("lincoa: objective function is nil")

// ErrInvalidDimension is returned by Minimize when x0 is empty or its
// length is inconsistent with the constraints.
var ErrInvalidDimension = errors.New("lincoa: invalid problem dimension")

// ErrInvalidSettings is returned by Minimize when Settings contains
// self-contradictory tolerances (for instance RhoEnd > RhoBeg).
var ErrInvalidSettings = errors.New("lincoa: invalid settings")

// ErrDegenerateConstraint is returned by normalizeConstraints when a
// constraint row has a near-zero gradient and so cannot be normalized to
// unit length.
var ErrDegenerateConstraint = errors.New("lincoa: constraint row has near-zero gradient")
