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

package lagrangian

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/lagrange-opt/lagrange/bnb"
	"github.com/lagrange-opt/lagrange/mipmodel"
)

// fakeSolver replays a script of solutions and errors, one per Solve call.
// The last entry repeats if the loop asks for more.
type fakeSolver struct {
	script []fakeStep
	calls  int
}

type fakeStep struct {
	sol *mipmodel.Solution
	err error
}

func (f *fakeSolver) Solve(m *mipmodel.Model) (*mipmodel.Solution, error) {
	i := f.calls
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	f.calls++
	return f.script[i].sol, f.script[i].err
}

// testSetup builds a relaxed model with one profit variable and five
// penalty variables, the layout the fake solutions index into: value 0 is
// the profit variable, values 1..5 the penalties.
func testSetup() (*mipmodel.Builder, Config) {
	model := mipmodel.NewModelBuilder()
	profit := model.NewContinuousVar(0, 100)
	penalties := make([]mipmodel.LinearArgument, 5)
	for i := range penalties {
		penalties[i] = model.NewContinuousVar(0, math.Inf(1))
	}
	return model, Config{
		BaseObjective: profit,
		PenaltyTerms:  penalties,
		MaxIterations: 10,
	}
}

// step builds one scripted solution: the reported objective and the five
// penalty readings.
func step(obj float64, p [5]float64) fakeStep {
	values := append([]float64{obj}, p[:]...)
	return fakeStep{sol: &mipmodel.Solution{
		Status:    mipmodel.StatusOptimal,
		Values:    values,
		Objective: obj,
	}}
}

func TestRun_ConvergesOnFirstIteration(t *testing.T) {
	model, cfg := testSetup()
	solver := &fakeSolver{script: []fakeStep{step(47, [5]float64{})}}

	ctrl, err := NewController(model, solver, cfg)
	if err != nil {
		t.Fatalf("NewController() returned with unexpected error %v", err)
	}
	res, err := ctrl.Run()
	if err != nil {
		t.Fatalf("Run() returned with unexpected error %v", err)
	}

	if !res.Converged {
		t.Errorf("Converged = false, want true")
	}
	if res.Iterations != 1 {
		t.Errorf("Iterations = %v, want 1", res.Iterations)
	}
	if res.Best != 47 {
		t.Errorf("Best = %v, want 47", res.Best)
	}
	if solver.calls != 1 {
		t.Errorf("solver calls = %v, want 1", solver.calls)
	}
	// No multiplier update happened: the only snapshot carries the
	// initial multipliers.
	wantM := []float64{1, 1, 1, 1, 1}
	if diff := cmp.Diff(wantM, res.History[0].Multipliers); diff != "" {
		t.Errorf("History[0].Multipliers returned diff (-want +got):\n%s", diff)
	}
}

func TestRun_MultiplierUpdate(t *testing.T) {
	model, cfg := testSetup()
	solver := &fakeSolver{script: []fakeStep{
		step(50, [5]float64{0.5, 0, 0, 0, 0}),
		step(48, [5]float64{}),
	}}

	ctrl, err := NewController(model, solver, cfg)
	if err != nil {
		t.Fatalf("NewController() returned with unexpected error %v", err)
	}
	res, err := ctrl.Run()
	if err != nil {
		t.Fatalf("Run() returned with unexpected error %v", err)
	}

	if !res.Converged || res.Iterations != 2 {
		t.Fatalf("Converged = %v, Iterations = %v, want converged in 2", res.Converged, res.Iterations)
	}
	// m_0 = max(1 - (1/1)*0.5, 0) = 0.5; the rest untouched since their
	// violations are zero.
	wantM := []float64{0.5, 1, 1, 1, 1}
	if diff := cmp.Diff(wantM, res.History[1].Multipliers); diff != "" {
		t.Errorf("History[1].Multipliers returned diff (-want +got):\n%s", diff)
	}
	if got, want := res.History[0].Justifier, 0.5; got != want {
		t.Errorf("History[0].Justifier = %v, want %v", got, want)
	}
	if got := res.History[1].Justifier; got != 0 {
		t.Errorf("History[1].Justifier = %v, want 0", got)
	}
	if res.Best != 48 {
		t.Errorf("Best = %v, want 48", res.Best)
	}
}

func TestRun_MultiplierClampedAtZero(t *testing.T) {
	model, cfg := testSetup()
	cfg.InitialMultiplier = 0.1
	solver := &fakeSolver{script: []fakeStep{
		step(30, [5]float64{10, 0, 0, 0, 0}),
		step(30, [5]float64{10, 0, 0, 0, 0}),
	}}

	ctrl, err := NewController(model, solver, cfg)
	if err != nil {
		t.Fatalf("NewController() returned with unexpected error %v", err)
	}
	res, err := ctrl.Run()
	if err != nil {
		t.Fatalf("Run() returned with unexpected error %v", err)
	}

	// m_0 = max(0.1 - 1*10, 0) clamps to 0, so the second iteration
	// converges even though the violation is still 10.
	wantM := []float64{0, 0.1, 0.1, 0.1, 0.1}
	if diff := cmp.Diff(wantM, res.History[1].Multipliers); diff != "" {
		t.Errorf("History[1].Multipliers returned diff (-want +got):\n%s", diff)
	}
	if !res.Converged || res.Iterations != 2 {
		t.Errorf("Converged = %v, Iterations = %v, want converged in 2", res.Converged, res.Iterations)
	}
}

func TestNewController_InvalidConfig(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "ZeroMaxIterations",
			mutate: func(c *Config) { c.MaxIterations = 0 },
		},
		{
			name:   "NegativeMaxIterations",
			mutate: func(c *Config) { c.MaxIterations = -3 },
		},
		{
			name:   "NegativeEpsilon",
			mutate: func(c *Config) { c.Epsilon = -1e-6 },
		},
		{
			name:   "NegativeInitialMultiplier",
			mutate: func(c *Config) { c.InitialMultiplier = -1 },
		},
		{
			name:   "NoPenaltyTerms",
			mutate: func(c *Config) { c.PenaltyTerms = nil },
		},
		{
			name:   "NoBaseObjective",
			mutate: func(c *Config) { c.BaseObjective = nil },
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			model, cfg := testSetup()
			test.mutate(&cfg)
			solver := &fakeSolver{script: []fakeStep{step(1, [5]float64{})}}

			if _, err := NewController(model, solver, cfg); err == nil {
				t.Errorf("NewController() returned nil error, want config rejection")
			}
			if solver.calls != 0 {
				t.Errorf("solver calls = %v, want 0", solver.calls)
			}
		})
	}
}

func TestRun_SolverFailureShortCircuits(t *testing.T) {
	testCases := []struct {
		name    string
		failing fakeStep
	}{
		{
			name:    "Infeasible",
			failing: fakeStep{sol: &mipmodel.Solution{Status: mipmodel.StatusInfeasible}},
		},
		{
			name:    "TransportError",
			failing: fakeStep{err: errors.New("engine crashed")},
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			model, cfg := testSetup()
			// The small violation keeps the multiplier positive, so the
			// loop is still running when the third solve fails.
			solver := &fakeSolver{script: []fakeStep{
				step(40, [5]float64{0.25, 0, 0, 0, 0}),
				step(42, [5]float64{0.25, 0, 0, 0, 0}),
				test.failing,
			}}

			ctrl, err := NewController(model, solver, cfg)
			if err != nil {
				t.Fatalf("NewController() returned with unexpected error %v", err)
			}
			res, err := ctrl.Run()

			var failed *SolveFailedError
			if !errors.As(err, &failed) {
				t.Fatalf("Run() returned error %v, want *SolveFailedError", err)
			}
			if failed.Iteration != 3 {
				t.Errorf("failure iteration = %v, want 3", failed.Iteration)
			}
			if solver.calls != 3 {
				t.Errorf("solver calls = %v, want 3", solver.calls)
			}
			if res.Best != 42 {
				t.Errorf("Best = %v, want the iteration-2 objective 42", res.Best)
			}
			if res.Iterations != 2 {
				t.Errorf("Iterations = %v, want 2", res.Iterations)
			}
		})
	}
}

func TestRun_FailureOnFirstIterationReportsNoSolution(t *testing.T) {
	model, cfg := testSetup()
	solver := &fakeSolver{script: []fakeStep{
		{sol: &mipmodel.Solution{Status: mipmodel.StatusUnbounded}},
	}}

	ctrl, err := NewController(model, solver, cfg)
	if err != nil {
		t.Fatalf("NewController() returned with unexpected error %v", err)
	}
	res, err := ctrl.Run()

	var failed *SolveFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("Run() returned error %v, want *SolveFailedError", err)
	}
	if failed.Iteration != 1 {
		t.Errorf("failure iteration = %v, want 1", failed.Iteration)
	}
	if res.Solution != nil {
		t.Errorf("Solution = %v, want nil", res.Solution)
	}
	if len(res.History) != 0 {
		t.Errorf("History has %v entries, want 0", len(res.History))
	}
}

func TestRun_BudgetExhaustion(t *testing.T) {
	model, cfg := testSetup()
	cfg.MaxIterations = 3
	// Never converges: the violation of 0.1 shrinks the multiplier without
	// ever clamping it, so p*m stays far above the threshold.
	solver := &fakeSolver{script: []fakeStep{step(40, [5]float64{0.1, 0, 0, 0, 0})}}

	ctrl, err := NewController(model, solver, cfg)
	if err != nil {
		t.Fatalf("NewController() returned with unexpected error %v", err)
	}
	res, err := ctrl.Run()
	if err != nil {
		t.Fatalf("Run() returned with unexpected error %v", err)
	}

	if res.Converged {
		t.Errorf("Converged = true, want false")
	}
	// A budget of N performs N+1 solves, preserving the reference loop
	// bound.
	if solver.calls != 4 {
		t.Errorf("solver calls = %v, want 4", solver.calls)
	}
	if res.Iterations != 4 {
		t.Errorf("Iterations = %v, want 4", res.Iterations)
	}
	if res.Best != 40 {
		t.Errorf("Best = %v, want 40", res.Best)
	}
}

func TestRun_MultipliersStayNonNegative(t *testing.T) {
	model, cfg := testSetup()
	cfg.MaxIterations = 5
	solver := &fakeSolver{script: []fakeStep{
		step(10, [5]float64{3, 0.2, 7, 0, 1}),
		step(11, [5]float64{0.4, 5, 0.1, 2, 9}),
	}}

	ctrl, err := NewController(model, solver, cfg)
	if err != nil {
		t.Fatalf("NewController() returned with unexpected error %v", err)
	}
	res, err := ctrl.Run()
	if err != nil {
		t.Fatalf("Run() returned with unexpected error %v", err)
	}

	for _, it := range res.History {
		for k, m := range it.Multipliers {
			if m < 0 {
				t.Errorf("iteration %d multiplier %d = %v, want >= 0", it.Number, k, m)
			}
		}
	}
}

func TestRun_StepScaleShrinks(t *testing.T) {
	model, cfg := testSetup()
	cfg.MaxIterations = 3
	// Constant violation of 0.25 on the first constraint: the multiplier
	// shrinks by 0.25/1, then 0.25/2, then 0.25/3.
	solver := &fakeSolver{script: []fakeStep{step(20, [5]float64{0.25, 0, 0, 0, 0})}}

	ctrl, err := NewController(model, solver, cfg)
	if err != nil {
		t.Fatalf("NewController() returned with unexpected error %v", err)
	}
	res, err := ctrl.Run()
	if err != nil {
		t.Fatalf("Run() returned with unexpected error %v", err)
	}

	var firstMultipliers []float64
	for _, it := range res.History {
		firstMultipliers = append(firstMultipliers, it.Multipliers[0])
	}
	want := []float64{1, 0.75, 0.625, 0.625 - 0.25/3}
	if diff := cmp.Diff(want, firstMultipliers, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("multiplier trajectory returned diff (-want +got):\n%s", diff)
	}
}

// buildRelaxedGAP mirrors the worked example: the assignment constraints
// are relaxed into penalty variables.
func buildRelaxedGAP() (*mipmodel.Builder, Config) {
	capacities := []float64{15, 15, 15}
	profits := [][]float64{
		{6, 10, 1},
		{12, 12, 5},
		{15, 4, 3},
		{10, 3, 9},
		{8, 9, 5},
	}
	usage := [][]float64{
		{5, 7, 2},
		{14, 8, 7},
		{10, 6, 12},
		{8, 4, 15},
		{6, 12, 5},
	}

	model := mipmodel.NewModelBuilder()
	tasks := len(profits)
	agents := len(capacities)

	x := make([][]mipmodel.Var, tasks)
	for i := range x {
		x[i] = make([]mipmodel.Var, agents)
		for j := range x[i] {
			x[i][j] = model.NewBinaryVar()
		}
	}
	for j := 0; j < agents; j++ {
		used := mipmodel.NewLinearExpr()
		for i := 0; i < tasks; i++ {
			used.AddTerm(x[i][j], usage[i][j])
		}
		model.AddLinearConstraint(used, 0, capacities[j])
	}

	penalties := make([]mipmodel.LinearArgument, tasks)
	for i := range x {
		p := model.NewContinuousVar(0, 1)
		model.AddEquality(model.Sum(x[i]...).Add(p), mipmodel.NewConstant(1))
		penalties[i] = p
	}

	profit := mipmodel.NewLinearExpr()
	for i := range x {
		profit.Add(model.ScalProd(x[i], profits[i]))
	}

	return model, Config{
		BaseObjective: profit,
		PenaltyTerms:  penalties,
		MaxIterations: 10,
	}
}

func TestRun_GAPWithBranchAndBound(t *testing.T) {
	model, cfg := buildRelaxedGAP()

	ctrl, err := NewController(model, bnb.NewSolver(), cfg)
	if err != nil {
		t.Fatalf("NewController() returned with unexpected error %v", err)
	}
	res, err := ctrl.Run()
	if err != nil {
		t.Fatalf("Run() returned with unexpected error %v", err)
	}

	// Each iteration maximizes profit plus non-negative penalties over a
	// superset of the original feasible region, so the reported best is
	// an upper bound on the exact GAP optimum of 46.
	if res.Best < 46-1e-6 {
		t.Errorf("Best = %v, want >= 46", res.Best)
	}
	if res.Iterations < 1 || res.Iterations > cfg.MaxIterations+1 {
		t.Errorf("Iterations = %v, want within [1,%d]", res.Iterations, cfg.MaxIterations+1)
	}
	for _, it := range res.History {
		for k, m := range it.Multipliers {
			if m < 0 {
				t.Errorf("iteration %d multiplier %d = %v, want >= 0", it.Number, k, m)
			}
		}
	}
}

func ExampleController() {
	// Maximize x over x in [0,5] with the constraint x <= 2 relaxed: the
	// penalty variable p carries the violation through x - 2 <= p.
	model := mipmodel.NewModelBuilder()
	x := model.NewIntegerVar(0, 5)
	p := model.NewContinuousVar(0, 3)
	model.AddLessOrEqual(mipmodel.NewLinearExpr().Add(x).AddConstant(-2), p)

	ctrl, err := NewController(model, bnb.NewSolver(), Config{
		BaseObjective: x,
		PenaltyTerms:  []mipmodel.LinearArgument{p},
		MaxIterations: 10,
	})
	if err != nil {
		fmt.Println("controller:", err)
		return
	}
	res, err := ctrl.Run()
	if err != nil {
		fmt.Println("run:", err)
		return
	}
	fmt.Println("converged:", res.Converged)
	// Output:
	// converged: true
}
