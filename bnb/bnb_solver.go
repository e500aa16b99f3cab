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

// Package bnb implements the mipmodel.Solver boundary with a small
// best-first branch-and-bound search over an LP relaxation.
//
// It exists so that models built with mipmodel can be solved without an
// external engine. It is sized for small instruction-scale models; any
// industrial engine can replace it behind the mipmodel.Solver interface.
package bnb

import (
	"errors"
	"fmt"
	"math"

	log "github.com/golang/glog"
	"github.com/lagrange-opt/lagrange/mipmodel"
	"gonum.org/v1/gonum/optimize/convex/lp"
	pq "gopkg.in/dnaeon/go-priorityqueue.v1"
)

const (
	defaultIntegralityTol = 1e-6
	defaultMaxNodes       = 50000

	// pruneTol guards bound-based pruning against simplex noise.
	pruneTol = 1e-9

	// simplexTol is the pivot tolerance handed to lp.Simplex. A zero
	// tolerance makes Bland's rule reject every pivot on degenerate
	// vertices, which assignment-style models hit routinely.
	simplexTol = 1e-8
)

// Solver is a branch-and-bound MIP solver over gonum's simplex. The zero
// value is usable; fields left at zero take the package defaults.
type Solver struct {
	// IntegralityTol is the distance from an integer below which a value
	// is accepted as integral.
	IntegralityTol float64
	// MaxNodes bounds how many subproblems the search may explore.
	MaxNodes int
}

// NewSolver returns a Solver with default settings.
func NewSolver() *Solver {
	return &Solver{}
}

// node is one subproblem of the search: the variable bounds it was created
// with and the LP relaxation objective of its parent, used as its priority
// and pruning bound. Objectives are kept in internal minimization space.
type node struct {
	lower []float64
	upper []float64
	bound float64
}

func (nd *node) child() *node {
	c := &node{
		lower: make([]float64, len(nd.lower)),
		upper: make([]float64, len(nd.upper)),
	}
	copy(c.lower, nd.lower)
	copy(c.upper, nd.upper)
	return c
}

type relaxationResult struct {
	status mipmodel.Status
	x      []float64
	obj    float64
}

// solveRelaxation solves the LP relaxation of a node and maps the simplex
// outcome onto a status. `x` is returned in original variable space.
func solveRelaxation(m *mipmodel.Model, c []float64, nd *node) (relaxationResult, error) {
	sf, err := toStandardForm(m, c, nd.lower, nd.upper)
	if errors.Is(err, errBoundsInfeasible) {
		return relaxationResult{status: mipmodel.StatusInfeasible}, nil
	}
	if err != nil {
		return relaxationResult{}, err
	}

	n := sf.nVars
	x := make([]float64, n)

	if sf.a == nil {
		// No constraint rows at all: every remaining variable is free
		// upward, so any negative cost makes the problem unbounded and
		// otherwise the shifted origin is optimal.
		for j := 0; j < n; j++ {
			if sf.c[j] < 0 {
				return relaxationResult{status: mipmodel.StatusUnbounded}, nil
			}
		}
		copy(x, nd.lower)
		return relaxationResult{status: mipmodel.StatusOptimal, x: x, obj: sf.constant}, nil
	}

	z, y, err := lp.Simplex(sf.c, sf.a, sf.b, simplexTol, nil)
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return relaxationResult{status: mipmodel.StatusInfeasible}, nil
	case errors.Is(err, lp.ErrUnbounded):
		return relaxationResult{status: mipmodel.StatusUnbounded}, nil
	case err != nil:
		return relaxationResult{}, fmt.Errorf("simplex failed: %w", err)
	}

	for j := 0; j < n; j++ {
		x[j] = nd.lower[j] + y[j]
	}
	return relaxationResult{status: mipmodel.StatusOptimal, x: x, obj: z + sf.constant}, nil
}

// branchVar picks the integer variable whose fractional part is closest to
// 1/2, or -1 when every integer variable is integral within `tol`.
func branchVar(m *mipmodel.Model, x []float64, tol float64) int {
	best := -1
	bestDist := tol
	for j := range m.Variables {
		if !m.Variables[j].Integer {
			continue
		}
		frac := x[j] - math.Floor(x[j])
		dist := math.Min(frac, 1-frac)
		if dist > bestDist {
			best = j
			bestDist = dist
		}
	}
	return best
}

// Solve runs the branch-and-bound search on the model.
func (s *Solver) Solve(m *mipmodel.Model) (*mipmodel.Solution, error) {
	tol := s.IntegralityTol
	if tol <= 0 {
		tol = defaultIntegralityTol
	}
	maxNodes := s.MaxNodes
	if maxNodes <= 0 {
		maxNodes = defaultMaxNodes
	}

	n := len(m.Variables)
	if n == 0 {
		return nil, errors.New("model has no variables")
	}

	// Internal objective: always a minimization.
	sense := 1.0
	if m.Objective.Maximize {
		sense = -1.0
	}
	userCoeffs, err := denseRow(n, m.Objective.VarIndices, m.Objective.Coefficients)
	if err != nil {
		return nil, fmt.Errorf("objective: %w", err)
	}
	c := make([]float64, n)
	for j := range c {
		c[j] = sense * userCoeffs[j]
	}

	root := &node{
		lower: make([]float64, n),
		upper: make([]float64, n),
		bound: math.Inf(-1),
	}
	for j := range m.Variables {
		root.lower[j] = m.Variables[j].Bounds.Lo
		root.upper[j] = m.Variables[j].Bounds.Hi
	}

	open := pq.New[*node, float64](pq.MinHeap)
	open.Put(root, root.bound)

	var incumbent []float64
	incumbentObj := math.Inf(1)
	haveIncumbent := false
	explored := 0
	budgetHit := false

	for open.Len() > 0 {
		if explored >= maxNodes {
			budgetHit = true
			break
		}
		nd := open.Get().Value
		if haveIncumbent && nd.bound >= incumbentObj-pruneTol {
			continue
		}
		explored++

		rel, err := solveRelaxation(m, c, nd)
		if err != nil {
			return nil, err
		}
		switch rel.status {
		case mipmodel.StatusInfeasible:
			continue
		case mipmodel.StatusUnbounded:
			return &mipmodel.Solution{Status: mipmodel.StatusUnbounded}, nil
		}
		if haveIncumbent && rel.obj >= incumbentObj-pruneTol {
			continue
		}

		j := branchVar(m, rel.x, tol)
		if j < 0 {
			incumbent = rel.x
			incumbentObj = rel.obj
			haveIncumbent = true
			log.V(1).Infof("bnb: new incumbent %g after %d nodes", sense*incumbentObj+m.Objective.Offset, explored)
			continue
		}

		v := rel.x[j]
		down := nd.child()
		down.upper[j] = math.Floor(v)
		up := nd.child()
		up.lower[j] = math.Ceil(v)
		for _, ch := range []*node{down, up} {
			if ch.lower[j] > ch.upper[j] {
				continue
			}
			ch.bound = rel.obj
			open.Put(ch, ch.bound)
		}
	}

	if !haveIncumbent {
		if budgetHit {
			return &mipmodel.Solution{Status: mipmodel.StatusUnknown},
				fmt.Errorf("node budget of %d exhausted without a solution", maxNodes)
		}
		return &mipmodel.Solution{Status: mipmodel.StatusInfeasible}, nil
	}

	// Clean integrality noise and report the objective in the caller's
	// sense.
	values := make([]float64, n)
	copy(values, incumbent)
	for j := range m.Variables {
		if m.Variables[j].Integer {
			values[j] = math.Round(values[j])
		}
	}
	obj := m.Objective.Offset
	for j := range values {
		obj += userCoeffs[j] * values[j]
	}

	status := mipmodel.StatusOptimal
	if budgetHit {
		status = mipmodel.StatusFeasible
	}
	log.V(1).Infof("bnb: finished with status %v, objective %g, %d nodes", status, obj, explored)
	return &mipmodel.Solution{Status: status, Values: values, Objective: obj}, nil
}
