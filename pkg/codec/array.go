package codec

import (
	"fmt"
	"math"
)

// Array is a dense n-dimensional numeric array stored in row-major order.
// A nil Shape describes a one-dimensional array of len(Data) elements.
type Array struct {
	Shape []int
	Data  []float64
}

// Vector builds a one-dimensional Array.
func Vector(values ...float64) Array {
	return Array{Shape: []int{len(values)}, Data: values}
}

// Dims returns the effective shape of the array.
func (a Array) Dims() []int {
	if len(a.Shape) == 0 {
		return []int{len(a.Data)}
	}
	return a.Shape
}

// Validate checks that Shape and Data agree.
func (a Array) Validate() error {
	n := 1
	for _, d := range a.Dims() {
		if d < 0 {
			return fmt.Errorf("negative dimension %d", d)
		}
		n *= d
	}
	if n != len(a.Data) {
		return fmt.Errorf("shape %v needs %d elements, have %d", a.Dims(), n, len(a.Data))
	}
	return nil
}

// nested converts the array into nested []any lists. nan replaces NaN
// elements when non-nil.
func (a Array) nested(nan any) []any {
	dims := a.Dims()
	var build func(level, offset int) []any
	build = func(level, offset int) []any {
		out := make([]any, dims[level])
		stride := 1
		for _, d := range dims[level+1:] {
			stride *= d
		}
		for i := range out {
			if level == len(dims)-1 {
				v := a.Data[offset+i]
				if nan != nil && math.IsNaN(v) {
					out[i] = nan
				} else {
					out[i] = v
				}
				continue
			}
			out[i] = build(level+1, offset+i*stride)
		}
		return out
	}
	return build(0, 0)
}

// arrayFromNested rebuilds an Array from nested lists of numbers. String
// elements equal to nanSentinel are read as NaN. Ragged or non-numeric
// input returns ok == false.
func arrayFromNested(v []any, nanSentinel bool) (Array, bool) {
	var shape []int
	var data []float64
	leafLevel := -1
	var walk func(level int, l []any) bool
	walk = func(level int, l []any) bool {
		if level == len(shape) {
			shape = append(shape, len(l))
		} else if shape[level] != len(l) {
			return false
		}
		for _, e := range l {
			if sub, ok := e.([]any); ok {
				if leafLevel >= 0 && level+1 > leafLevel {
					return false
				}
				if !walk(level+1, sub) {
					return false
				}
				continue
			}
			if leafLevel == -1 {
				leafLevel = level
			} else if leafLevel != level {
				return false
			}
			f, ok := toFloat(e)
			if !ok {
				s, isStr := e.(string)
				if !isStr || !nanSentinel || s != NaNSentinel {
					return false
				}
				f = math.NaN()
			}
			data = append(data, f)
		}
		return true
	}
	if !walk(0, v) {
		return Array{}, false
	}
	if leafLevel >= 0 && leafLevel != len(shape)-1 {
		return Array{}, false
	}
	a := Array{Shape: shape, Data: data}
	if a.Validate() != nil {
		return Array{}, false
	}
	return a, true
}
