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

package bnb

import (
	"errors"
	"fmt"
	"math"

	"github.com/lagrange-opt/lagrange/mipmodel"
	"gonum.org/v1/gonum/mat"
)

// errBoundsInfeasible signals that the variable or constraint bounds of a
// subproblem contradict each other before any simplex run.
var errBoundsInfeasible = errors.New("bounds are contradictory")

// standardForm is a subproblem in simplex standard form:
// minimize c^T y subject to a*y = b, y >= 0. The first nVars entries of y
// are the model variables shifted by their lower bounds; the rest are
// slack variables. `constant` is the objective contribution of the shift
// and must be added back to the simplex optimum.
type standardForm struct {
	c        []float64
	a        *mat.Dense
	b        []float64
	nVars    int
	constant float64
}

// denseRow expands the sparse (indices, coefficients) pair of a constraint
// or objective into a dense vector of length n. Duplicate indices are
// summed.
func denseRow(n int, inds []mipmodel.VarIndex, coeffs []float64) ([]float64, error) {
	r := make([]float64, n)
	for i, ind := range inds {
		if int(ind) < 0 || int(ind) >= n {
			return nil, fmt.Errorf("variable index %d out of range [0,%d)", ind, n)
		}
		r[ind] += coeffs[i]
	}
	return r, nil
}

// toStandardForm converts the model with the per-node variable bounds into
// simplex standard form. `c` is the dense internal (minimization)
// objective. Inequalities, including finite upper bounds, become slack
// variable rows following the usual [A 0; G I] embedding.
func toStandardForm(m *mipmodel.Model, c, lower, upper []float64) (*standardForm, error) {
	n := len(m.Variables)

	for j := range m.Variables {
		if math.IsInf(lower[j], -1) {
			return nil, fmt.Errorf("variable %d has no finite lower bound; free variables are not supported", j)
		}
		if upper[j]-lower[j] < 0 {
			return nil, errBoundsInfeasible
		}
	}

	var constant float64
	for j := 0; j < n; j++ {
		constant += c[j] * lower[j]
	}

	// Equality rows (aEq, bEq) and inequality rows (g, h) in the shifted
	// variables y = x - lower.
	var aEq, g [][]float64
	var bEq, h []float64

	for ci, ct := range m.Constraints {
		row, err := denseRow(n, ct.VarIndices, ct.Coefficients)
		if err != nil {
			return nil, fmt.Errorf("constraint %d: %w", ci, err)
		}
		var shift float64
		for j := 0; j < n; j++ {
			shift += row[j] * lower[j]
		}
		bounds := ct.Bounds.Offset(-shift)
		if bounds.IsEmpty() {
			return nil, errBoundsInfeasible
		}
		switch {
		case bounds.Lo == bounds.Hi:
			aEq = append(aEq, row)
			bEq = append(bEq, bounds.Hi)
		default:
			if !math.IsInf(bounds.Hi, 1) {
				g = append(g, row)
				h = append(h, bounds.Hi)
			}
			if !math.IsInf(bounds.Lo, -1) {
				neg := make([]float64, n)
				for j, v := range row {
					neg[j] = -v
				}
				g = append(g, neg)
				h = append(h, -bounds.Lo)
			}
		}
	}

	// Finite upper bounds become y_j <= upper_j - lower_j rows.
	for j := 0; j < n; j++ {
		if math.IsInf(upper[j], 1) {
			continue
		}
		row := make([]float64, n)
		row[j] = 1
		g = append(g, row)
		h = append(h, upper[j]-lower[j])
	}

	nIneq := len(g)
	nEq := len(aEq)
	nRows := nEq + nIneq
	nCols := n + nIneq

	if nRows == 0 {
		return &standardForm{c: c, nVars: n, constant: constant}, nil
	}

	cNew := make([]float64, nCols)
	copy(cNew, c)

	bNew := make([]float64, nRows)
	copy(bNew, bEq)
	copy(bNew[nEq:], h)

	a := mat.NewDense(nRows, nCols, nil)
	for i, row := range aEq {
		for j, v := range row {
			a.Set(i, j, v)
		}
	}
	// Embed G below the equality rows and place the slack identity next
	// to it.
	for i, row := range g {
		for j, v := range row {
			a.Set(nEq+i, j, v)
		}
		a.Set(nEq+i, n+i, 1)
	}

	return &standardForm{c: cNew, a: a, b: bNew, nVars: n, constant: constant}, nil
}
