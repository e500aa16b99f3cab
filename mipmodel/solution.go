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

package mipmodel

// Status describes the outcome of a solve.
type Status int

const (
	// StatusUnknown means the solver stopped without classifying the model.
	StatusUnknown Status = iota
	// StatusOptimal means the solution is optimal within solver tolerance.
	StatusOptimal
	// StatusFeasible means a solution was found but optimality was not proven.
	StatusFeasible
	// StatusInfeasible means the model has no solution.
	StatusInfeasible
	// StatusUnbounded means the objective can be improved without limit.
	StatusUnbounded
)

// String returns a human readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "OPTIMAL"
	case StatusFeasible:
		return "FEASIBLE"
	case StatusInfeasible:
		return "INFEASIBLE"
	case StatusUnbounded:
		return "UNBOUNDED"
	default:
		return "UNKNOWN"
	}
}

// HasSolution reports whether the status carries a usable variable
// assignment.
func (s Status) HasSolution() bool {
	return s == StatusOptimal || s == StatusFeasible
}

// Solution is the result of a solve: a status, the value of every variable
// in the model, and the objective value of that assignment. `Values` and
// `Objective` are only meaningful when `Status.HasSolution()` is true.
type Solution struct {
	Status    Status
	Values    []float64
	Objective float64
}

// Solver is the boundary to an optimization engine. Solve consumes a built
// model and returns a Solution. An error is returned only for mechanical
// failures; an infeasible or unbounded model is reported through the
// solution status. For a fixed input, the objective value of an optimal
// solution must be within solver tolerance of the true optimum; that
// guarantee belongs to the engine and is not re-verified by callers.
type Solver interface {
	Solve(m *Model) (*Solution, error)
}

// SolutionValue returns the value of LinearArgument `la` in the solution.
func SolutionValue(s *Solution, la LinearArgument) float64 {
	return la.evaluateSolutionValue(s)
}

// SolutionBooleanValue returns the value of the binary variable `v` in the
// solution.
func SolutionBooleanValue(s *Solution, v Var) bool {
	return v.evaluateSolutionValue(s) > 0.5
}
