// Copyright ©2024 The lincoa-go Authors. All rights reserved.

// Package lincoa implements LINCOA, Powell's derivative-free trust-region
// method for minimizing a function of several variables subject to linear
// inequality constraints, when the derivatives are unavailable or unreliable.
//
// The algorithm builds a quadratic interpolation model of the objective over
// a moving set of npt sample points and improves it iteratively: it solves a
// trust-region subproblem restricted to the linear constraints to propose a
// trial step, evaluates the objective there, updates the model, and shrinks
// or enlarges the trust region according to how well the model predicted the
// improvement. Periodically, when the step produced by the subproblem would
// be too short to usefully update the model, a separate geometry-improving
// step is taken instead to keep the sample set well poised.
//
// Minimize is the entry point:
//
//	res, err := lincoa.Minimize(problem, x0, settings)
//
// See Problem, Settings and Result for the parameters and statistics
// exchanged with the solver.
package lincoa
