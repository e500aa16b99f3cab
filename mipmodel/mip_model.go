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

// Package mipmodel offers a user-friendly API to build linear
// mixed-integer models.
//
// The `Builder` struct wraps the model data and provides helper methods for
// adding constraints and variables to the model. The `Var` struct is a
// reference to a specific variable in the model and provides helpful
// methods for interacting with that variable. The `LinearExpr` struct
// provides helper methods for creating constraints and the objective from
// expressions with many variables and coefficients.
//
// The model built here is plain tagged data; it carries no reference to
// any particular solver. Solvers consume it through the `Solver` interface.
package mipmodel

import (
	"errors"
	"fmt"

	log "github.com/golang/glog"
)

// ErrMixedModels holds the error when elements added to a model are different.
var ErrMixedModels = errors.New("elements are not part of the same model")

type (
	// VarIndex is the index of a variable in the model.
	VarIndex int32
	// ConstrIndex is the index of a constraint in the model.
	ConstrIndex int32
)

// VariableData describes one decision variable of a model.
type VariableData struct {
	Name    string
	Bounds  Interval
	Integer bool
}

// LinearConstraintData describes one linear constraint of a model: the
// inner product of `Coefficients` with the variables at `VarIndices` must
// lie in `Bounds`.
type LinearConstraintData struct {
	Name         string
	VarIndices   []VarIndex
	Coefficients []float64
	Bounds       Interval
}

// ObjectiveData describes the linear objective of a model.
type ObjectiveData struct {
	VarIndices   []VarIndex
	Coefficients []float64
	Offset       float64
	Maximize     bool
}

// Model is the plain data representation of a linear mixed-integer model.
// It is what solvers consume; it holds no behavior of its own.
type Model struct {
	Variables   []VariableData
	Constraints []LinearConstraintData
	Objective   ObjectiveData
}

// LinearArgument provides an interface for Var and LinearExpr.
type LinearArgument interface {
	addToLinearExpr(e *LinearExpr, c float64)
	evaluateSolutionValue(s *Solution) float64
}

// LinearExpr is a container for a linear expression.
type LinearExpr struct {
	varCoeffs []varCoeff
	offset    float64
}

type varCoeff struct {
	ind   VarIndex
	coeff float64
}

// NewLinearExpr creates a new empty LinearExpr.
func NewLinearExpr() *LinearExpr {
	return &LinearExpr{}
}

// NewConstant creates and returns a LinearExpr containing the constant `c`.
func NewConstant(c float64) *LinearExpr {
	return &LinearExpr{offset: c}
}

// Add adds the linear argument term to the LinearExpr and returns itself.
func (l *LinearExpr) Add(la LinearArgument) *LinearExpr {
	l.AddTerm(la, 1)
	return l
}

// AddConstant adds the constant to the LinearExpr and returns itself.
func (l *LinearExpr) AddConstant(c float64) *LinearExpr {
	l.offset += c
	return l
}

// AddTerm adds the linear argument term with the given coefficient to the
// LinearExpr and returns itself.
func (l *LinearExpr) AddTerm(la LinearArgument, coeff float64) *LinearExpr {
	la.addToLinearExpr(l, coeff)
	return l
}

// AddSum adds the sum of the linear arguments to the LinearExpr and returns
// itself.
func (l *LinearExpr) AddSum(las ...LinearArgument) *LinearExpr {
	for _, la := range las {
		l.Add(la)
	}
	return l
}

// AddWeightedSum adds the linear arguments with the corresponding
// coefficients to the LinearExpr and returns itself.
func (l *LinearExpr) AddWeightedSum(las []LinearArgument, coeffs []float64) *LinearExpr {
	if len(coeffs) != len(las) {
		log.Fatalf("las and coeffs must be the same length: %v != %v", len(las), len(coeffs))
	}
	for i, la := range las {
		l.AddTerm(la, coeffs[i])
	}
	return l
}

func (l *LinearExpr) addToLinearExpr(e *LinearExpr, c float64) {
	for _, vc := range l.varCoeffs {
		e.varCoeffs = append(e.varCoeffs, varCoeff{ind: vc.ind, coeff: vc.coeff * c})
	}
	e.offset += l.offset * c
}

func (l *LinearExpr) evaluateSolutionValue(s *Solution) float64 {
	result := l.offset
	for _, vc := range l.varCoeffs {
		result += s.Values[vc.ind] * vc.coeff
	}
	return result
}

// Var is a reference to a variable in the model.
type Var struct {
	ind VarIndex
	mb  *Builder
}

// Name returns the name of the variable.
func (v Var) Name() string {
	return v.mb.model.Variables[v.ind].Name
}

// Bounds returns the bounds of the variable.
func (v Var) Bounds() Interval {
	return v.mb.model.Variables[v.ind].Bounds
}

// IsInteger reports whether the variable carries an integrality constraint.
func (v Var) IsInteger() bool {
	return v.mb.model.Variables[v.ind].Integer
}

// Index returns the index of the variable.
func (v Var) Index() VarIndex {
	return v.ind
}

// WithName sets the name of the variable.
func (v Var) WithName(s string) Var {
	v.mb.model.Variables[v.ind].Name = s
	return v
}

func (v Var) addToLinearExpr(e *LinearExpr, c float64) {
	e.varCoeffs = append(e.varCoeffs, varCoeff{ind: v.ind, coeff: c})
}

func (v Var) evaluateSolutionValue(s *Solution) float64 {
	return s.Values[v.ind]
}

// Constraint is a reference to a constraint in the model.
type Constraint struct {
	ind ConstrIndex
	mb  *Builder
}

// WithName sets the name of the constraint.
func (c Constraint) WithName(s string) Constraint {
	c.mb.model.Constraints[c.ind].Name = s
	return c
}

// Name returns the name of the constraint.
func (c Constraint) Name() string {
	return c.mb.model.Constraints[c.ind].Name
}

// Index returns the index of the constraint.
func (c Constraint) Index() ConstrIndex {
	return c.ind
}

// checkSameModelAndSetErrorf returns true if `mb` and `mb2` point to the same
// Builder. If false, an error with the error message `format` is set on `mb`
// if `mb.err` is nil.
func (mb *Builder) checkSameModelAndSetErrorf(mb2 *Builder, format string, a ...any) bool {
	if mb == mb2 {
		return true
	}
	var args = make([]any, len(a)+1)
	copy(args, a)
	args[len(a)] = ErrMixedModels
	err := fmt.Errorf(format+": %w", args...)
	log.Errorf("%v", err)
	if mb.err == nil {
		mb.err = err
	}
	return false
}

// Builder accumulates variables, constraints, and the objective of a linear
// mixed-integer model.
type Builder struct {
	model     *Model
	constants map[float64]VarIndex
	// The first and only the first error is reported in Build.
	err error
}

// NewModelBuilder creates and returns a new model Builder.
func NewModelBuilder() *Builder {
	return &Builder{model: &Model{}, constants: make(map[float64]VarIndex)}
}

func (mb *Builder) newVar(bounds Interval, integer bool) Var {
	v := Var{mb: mb, ind: VarIndex(len(mb.model.Variables))}
	mb.model.Variables = append(mb.model.Variables, VariableData{Bounds: bounds, Integer: integer})
	return v
}

// NewContinuousVar creates a new continuous variable with domain `[lb,ub]`.
func (mb *Builder) NewContinuousVar(lb, ub float64) Var {
	return mb.newVar(NewInterval(lb, ub), false)
}

// NewIntegerVar creates a new integer variable with domain `[lb,ub]`.
func (mb *Builder) NewIntegerVar(lb, ub float64) Var {
	return mb.newVar(NewInterval(lb, ub), true)
}

// NewBinaryVar creates a new 0-1 integer variable.
func (mb *Builder) NewBinaryVar() Var {
	return mb.newVar(NewInterval(0, 1), true)
}

// NewConstant creates a constant variable. If this is called multiple times
// with the same value, the same variable will always be returned.
func (mb *Builder) NewConstant(v float64) Var {
	if i, ok := mb.constants[v]; ok {
		return Var{mb: mb, ind: i}
	}
	constVar := mb.newVar(Exactly(v), false)
	mb.constants[v] = constVar.ind
	return constVar
}

// Sum returns a LinearExpr summing the given variables.
func (mb *Builder) Sum(vars ...Var) *LinearExpr {
	e := NewLinearExpr()
	for _, v := range vars {
		if !mb.checkSameModelAndSetErrorf(v.mb, "invalid parameter Var %v added to a sum", v.Index()) {
			continue
		}
		e.Add(v)
	}
	return e
}

// ScalProd returns a LinearExpr holding the inner product of `vars` and
// `coeffs`. Both slices must be the same length.
func (mb *Builder) ScalProd(vars []Var, coeffs []float64) *LinearExpr {
	if len(vars) != len(coeffs) {
		log.Fatalf("vars and coeffs must be the same length: %v != %v", len(vars), len(coeffs))
	}
	e := NewLinearExpr()
	for i, v := range vars {
		if !mb.checkSameModelAndSetErrorf(v.mb, "invalid parameter Var %v added to a scalar product", v.Index()) {
			continue
		}
		e.AddTerm(v, coeffs[i])
	}
	return e
}

// addLinearConstraint adds a linear constraint that enforces the value of
// `le` to be in `bounds`. The constant offset of `le` is subtracted from the
// bounds so only variable terms are stored on the constraint.
func (mb *Builder) addLinearConstraint(le *LinearExpr, bounds Interval) Constraint {
	ct := LinearConstraintData{Bounds: bounds.Offset(-le.offset)}
	for _, vc := range le.varCoeffs {
		ct.VarIndices = append(ct.VarIndices, vc.ind)
		ct.Coefficients = append(ct.Coefficients, vc.coeff)
	}

	i := ConstrIndex(len(mb.model.Constraints))
	mb.model.Constraints = append(mb.model.Constraints, ct)

	return Constraint{mb: mb, ind: i}
}

// AddLinearConstraint adds the linear constraint `lb <= expr <= ub`.
func (mb *Builder) AddLinearConstraint(expr LinearArgument, lb, ub float64) Constraint {
	linExpr := NewLinearExpr().Add(expr)
	return mb.addLinearConstraint(linExpr, NewInterval(lb, ub))
}

// AddEquality adds the linear constraint `lhs == rhs`.
func (mb *Builder) AddEquality(lhs, rhs LinearArgument) Constraint {
	diff := NewLinearExpr().Add(lhs).AddTerm(rhs, -1)
	return mb.addLinearConstraint(diff, Exactly(0))
}

// AddLessOrEqual adds the linear constraint `lhs <= rhs`.
func (mb *Builder) AddLessOrEqual(lhs, rhs LinearArgument) Constraint {
	diff := NewLinearExpr().Add(lhs).AddTerm(rhs, -1)
	return mb.addLinearConstraint(diff, AtMost(0))
}

// AddGreaterOrEqual adds the linear constraint `lhs >= rhs`.
func (mb *Builder) AddGreaterOrEqual(lhs, rhs LinearArgument) Constraint {
	diff := NewLinearExpr().Add(lhs).AddTerm(rhs, -1)
	return mb.addLinearConstraint(diff, AtLeast(0))
}

func (mb *Builder) setObjective(obj LinearArgument, maximize bool) {
	o := NewLinearExpr().Add(obj)

	opb := ObjectiveData{Maximize: maximize, Offset: o.offset}
	for _, vc := range o.varCoeffs {
		opb.VarIndices = append(opb.VarIndices, vc.ind)
		opb.Coefficients = append(opb.Coefficients, vc.coeff)
	}
	mb.model.Objective = opb
}

// Minimize adds a linear minimization objective, replacing any objective
// set before.
func (mb *Builder) Minimize(obj LinearArgument) {
	mb.setObjective(obj, false)
}

// Maximize adds a linear maximization objective, replacing any objective
// set before.
func (mb *Builder) Maximize(obj LinearArgument) {
	mb.setObjective(obj, true)
}

// Build returns the built model. The model returned is a pointer to the
// model in the Builder: further Builder calls keep mutating it, and callers
// that need a frozen copy should make one.
//
// Build returns an error when invalid parameters have been used during
// model building (e.g. passing variables from other builders).
func (mb *Builder) Build() (*Model, error) {
	if mb.err != nil {
		return nil, mb.err
	}
	return mb.model, nil
}
