// Copyright 2025 The Lagrange Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package lagrangian drives the iterative penalty-based approximation of a
// constrained optimization problem known as Lagrangian relaxation.
//
// The caller builds a relaxed model in which a set of hard constraints has
// been replaced by non-negative penalty expressions, and hands the model,
// a solver, and the penalty expressions to a Controller. Each iteration
// the Controller maximizes the base objective plus the multiplier-weighted
// penalties, reads the violation of every relaxed constraint from the
// returned solution, and shrinks the multipliers with a diminishing-step
// subgradient update until the penalized violations fall below a
// threshold or the iteration budget runs out.
//
// The loop yields a bound and an approximate solution, not a proof of
// optimality for the original constrained problem.
package lagrangian

import (
	"fmt"
	"math"

	log "github.com/golang/glog"
	"github.com/lagrange-opt/lagrange/mipmodel"
	"gonum.org/v1/gonum/floats"
)

const (
	// DefaultEpsilon is the convergence threshold used when the config
	// leaves Epsilon at zero.
	DefaultEpsilon = 1e-6
	// DefaultInitialMultiplier seeds every multiplier when the config
	// leaves InitialMultiplier at zero.
	DefaultInitialMultiplier = 1.0
)

// Config describes one relaxation run.
type Config struct {
	// BaseObjective is the original (non-relaxed) objective to maximize.
	BaseObjective mipmodel.LinearArgument
	// PenaltyTerms holds one non-negative-valued expression per relaxed
	// constraint, each evaluating to the violation of that constraint in
	// a solution.
	PenaltyTerms []mipmodel.LinearArgument
	// MaxIterations bounds the loop and must be positive. A budget of N
	// performs up to N+1 solves, matching the reference formulation of
	// the loop.
	MaxIterations int
	// Epsilon is the convergence threshold on penalized violations. Zero
	// means DefaultEpsilon; negative values are rejected.
	Epsilon float64
	// InitialMultiplier seeds every multiplier. Zero means
	// DefaultInitialMultiplier; negative values are rejected.
	InitialMultiplier float64
}

func (c Config) withDefaults() Config {
	if c.Epsilon == 0 {
		c.Epsilon = DefaultEpsilon
	}
	if c.InitialMultiplier == 0 {
		c.InitialMultiplier = DefaultInitialMultiplier
	}
	return c
}

func (c Config) validate() error {
	if c.BaseObjective == nil {
		return fmt.Errorf("lagrangian: BaseObjective must be set")
	}
	if len(c.PenaltyTerms) == 0 {
		return fmt.Errorf("lagrangian: PenaltyTerms must not be empty")
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("lagrangian: MaxIterations must be positive, got %d", c.MaxIterations)
	}
	if c.Epsilon <= 0 {
		return fmt.Errorf("lagrangian: Epsilon must be positive, got %g", c.Epsilon)
	}
	if c.InitialMultiplier < 0 {
		return fmt.Errorf("lagrangian: InitialMultiplier must be non-negative, got %g", c.InitialMultiplier)
	}
	return nil
}

// Iteration is an immutable snapshot of one loop iteration: the 1-based
// iteration number, the objective the solver returned, and the multiplier
// and violation vectors of that iteration. Justifier holds the first
// penalized violation at or above the threshold, or 0 when the iteration
// converged; it exists for reporting only and feeds nothing.
type Iteration struct {
	Number      int
	Objective   float64
	Multipliers []float64
	Violations  []float64
	Justifier   float64
}

// Result is the outcome of a relaxation run.
type Result struct {
	// Converged is true when every penalized violation fell below the
	// threshold, and false when the iteration budget ran out first.
	Converged bool
	// Best is the objective value of the most recent successful solve.
	Best float64
	// TotalPenalty is the unweighted sum of the penalty terms at the last
	// iteration.
	TotalPenalty float64
	// Iterations is the number of solves performed.
	Iterations int
	// History holds one snapshot per iteration.
	History []Iteration
	// Solution is the assignment of the most recent successful solve.
	Solution *mipmodel.Solution
}

// SolveFailedError reports that the solver failed mid-loop. The loop stops
// at the failing iteration and is not retried; the Result accompanying
// this error still carries the best solution from earlier iterations, if
// any.
type SolveFailedError struct {
	// Iteration is the 1-based iteration at which the solve failed.
	Iteration int
	// Status is the solver status of the failed solve, StatusUnknown when
	// the solver returned a transport-level error instead.
	Status mipmodel.Status
	// Err is the underlying error, if the solver returned one.
	Err error
}

func (e *SolveFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("lagrangian: solve failed at iteration %d: %v", e.Iteration, e.Err)
	}
	return fmt.Sprintf("lagrangian: solve failed at iteration %d with status %v", e.Iteration, e.Status)
}

func (e *SolveFailedError) Unwrap() error { return e.Err }

// Controller owns one relaxation run: the relaxed model, the solver
// capability, and the run configuration. The multiplier vector and the
// best solution never escape a run.
type Controller struct {
	cfg    Config
	model  *mipmodel.Builder
	solver mipmodel.Solver
}

// NewController validates the configuration and returns a Controller. The
// model must already contain the non-relaxed constraints and the penalty
// variables referenced by cfg.PenaltyTerms; the Controller only ever
// rewrites its objective. Invalid configurations are rejected here, before
// any solve.
func NewController(model *mipmodel.Builder, solver mipmodel.Solver, cfg Config) (*Controller, error) {
	if model == nil {
		return nil, fmt.Errorf("lagrangian: model must not be nil")
	}
	if solver == nil {
		return nil, fmt.Errorf("lagrangian: solver must not be nil")
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Controller{cfg: cfg, model: model, solver: solver}, nil
}

// state is the explicit loop state threaded through step: the multiplier
// vector in use and the best solve seen so far.
type state struct {
	multipliers []float64
	best        float64
	solution    *mipmodel.Solution
}

// Run executes the relaxation loop and returns its Result. On solver
// failure the returned error is a *SolveFailedError and the Result still
// reports the best earlier solve. Budget exhaustion without convergence is
// not an error.
func (c *Controller) Run() (*Result, error) {
	k := len(c.cfg.PenaltyTerms)
	st := state{multipliers: make([]float64, k)}
	for i := range st.multipliers {
		st.multipliers[i] = c.cfg.InitialMultiplier
	}

	res := &Result{}
	for count := 1; count <= c.cfg.MaxIterations+1; count++ {
		next, done, err := c.step(st, count, res)
		if err != nil {
			return res, err
		}
		st = next
		if done {
			return res, nil
		}
	}

	log.Infof("lagrangian: no convergence within %d iterations, best=%g", res.Iterations, st.best)
	return res, nil
}

// step performs one iteration: solve with the current multipliers, record
// the snapshot, check convergence, and produce the state for the next
// iteration. It reports done=true when the loop converged.
func (c *Controller) step(st state, count int, res *Result) (state, bool, error) {
	// Rebuilt every iteration: base objective plus the multiplier-weighted
	// penalties.
	obj := mipmodel.NewLinearExpr().Add(c.cfg.BaseObjective)
	for i, p := range c.cfg.PenaltyTerms {
		obj.AddTerm(p, st.multipliers[i])
	}
	c.model.Maximize(obj)

	m, err := c.model.Build()
	if err != nil {
		return st, false, &SolveFailedError{Iteration: count, Err: err}
	}
	sol, err := c.solver.Solve(m)
	if err != nil {
		log.Warningf("lagrangian: solve fails, stopping at iteration %d: %v", count, err)
		return st, false, &SolveFailedError{Iteration: count, Err: err}
	}
	if !sol.Status.HasSolution() {
		log.Warningf("lagrangian: solve fails with status %v, stopping at iteration %d", sol.Status, count)
		return st, false, &SolveFailedError{Iteration: count, Status: sol.Status}
	}

	st.best = sol.Objective
	st.solution = sol
	violations := make([]float64, len(c.cfg.PenaltyTerms))
	for i, p := range c.cfg.PenaltyTerms {
		violations[i] = mipmodel.SolutionValue(sol, p)
	}
	log.Infof("lagrangian: %d> new iteration: obj=%g, m=%v, p=%v", count, st.best, st.multipliers, violations)

	// First penalized violation at or above the threshold blocks
	// convergence; its value is recorded for reporting only.
	converged := true
	justifier := 0.0
	for i, p := range violations {
		if pv := p * st.multipliers[i]; pv >= c.cfg.Epsilon {
			converged = false
			justifier = pv
			break
		}
	}

	snapshot := Iteration{
		Number:      count,
		Objective:   st.best,
		Multipliers: append([]float64(nil), st.multipliers...),
		Violations:  append([]float64(nil), violations...),
		Justifier:   justifier,
	}
	res.History = append(res.History, snapshot)
	res.Iterations = count
	res.Best = st.best
	res.TotalPenalty = floats.Sum(violations)
	res.Solution = st.solution

	if converged {
		res.Converged = true
		log.Infof("lagrangian: relaxation succeeds, best=%g, penalty=%g, iterations=%d", res.Best, res.TotalPenalty, res.Iterations)
		return st, true, nil
	}

	if count <= c.cfg.MaxIterations {
		// Diminishing-step subgradient update, clamped at zero so
		// multipliers stay non-negative.
		scale := 1.0 / float64(count)
		next := make([]float64, len(st.multipliers))
		for i := range next {
			next[i] = math.Max(st.multipliers[i]-scale*violations[i], 0)
		}
		st.multipliers = next
		log.Infof("lagrangian: %d> loop continues, m=%v, justifier=%g", count, st.multipliers, justifier)
	}

	return st, false, nil
}
