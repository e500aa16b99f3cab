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

import "math"

// Interval stores the closed interval `[Lo,Hi]`. If `Lo` is greater than
// `Hi`, the interval is considered empty. An infinite `Lo` or `Hi`
// represents a side with no bound.
type Interval struct {
	Lo float64
	Hi float64
}

// NewInterval creates the interval `[lo,hi]`.
func NewInterval(lo, hi float64) Interval {
	return Interval{Lo: lo, Hi: hi}
}

// Exactly creates the singleton interval `[v,v]`.
func Exactly(v float64) Interval {
	return Interval{Lo: v, Hi: v}
}

// AtLeast creates the interval `[lo,+inf)`.
func AtLeast(lo float64) Interval {
	return Interval{Lo: lo, Hi: math.Inf(1)}
}

// AtMost creates the interval `(-inf,hi]`.
func AtMost(hi float64) Interval {
	return Interval{Lo: math.Inf(-1), Hi: hi}
}

// All creates the unbounded interval `(-inf,+inf)`.
func All() Interval {
	return Interval{Lo: math.Inf(-1), Hi: math.Inf(1)}
}

// IsEmpty reports whether the interval contains no values.
func (i Interval) IsEmpty() bool {
	return i.Lo > i.Hi
}

// Contains reports whether `v` lies in the interval.
func (i Interval) Contains(v float64) bool {
	return i.Lo <= v && v <= i.Hi
}

// Offset adds `delta` to both ends of the interval. An infinite end is not
// shifted since it represents an unbounded side.
func (i Interval) Offset(delta float64) Interval {
	res := i
	if !math.IsInf(res.Lo, 0) {
		res.Lo += delta
	}
	if !math.IsInf(res.Hi, 0) {
		res.Hi += delta
	}
	return res
}

// Intersect returns the intersection of the two intervals. The result may
// be empty.
func (i Interval) Intersect(o Interval) Interval {
	return Interval{Lo: math.Max(i.Lo, o.Lo), Hi: math.Min(i.Hi, o.Hi)}
}
