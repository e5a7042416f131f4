package codec

import (
	"math"
	"reflect"
)

// Kind tags the variants of a document value.
type Kind int

const (
	KindNull Kind = iota
	KindScalar
	KindQuantity
	KindArray
	KindList
	KindMap
)

var kindNames = [...]string{"null", "scalar", "quantity", "array", "list", "map"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// KindOf classifies v.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case Quantity, *Quantity:
		return KindQuantity
	case Array:
		return KindArray
	case map[string]any:
		return KindMap
	case []any:
		return KindList
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map:
		return KindMap
	case reflect.Slice, reflect.Array:
		return KindList
	}
	return KindScalar
}

// Equal reports whether two decoded values are semantically equal: NaN
// equals NaN, numbers compare by value regardless of int/float kind, and an
// Array equals its nested-list form.
func Equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return false
		}
		return fa == fb || (math.IsNaN(fa) && math.IsNaN(fb))
	}
	if arr, ok := a.(Array); ok {
		return equalArray(arr, b)
	}
	if arr, ok := b.(Array); ok {
		return equalArray(arr, a)
	}
	switch ta := a.(type) {
	case Quantity:
		tb, ok := b.(Quantity)
		return ok && ta.Unit == tb.Unit && Equal(ta.Value, tb.Value) &&
			(ta.Uncertainty == nil) == (tb.Uncertainty == nil) &&
			(ta.Uncertainty == nil || Equal(ta.Uncertainty, tb.Uncertainty))
	case map[string]any:
		tb, ok := b.(map[string]any)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for k, va := range ta {
			vb, ok := tb[k]
			if !ok || !Equal(va, vb) {
				return false
			}
		}
		return true
	case []any:
		tb, ok := b.([]any)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for i := range ta {
			if !Equal(ta[i], tb[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func equalArray(a Array, other any) bool {
	switch o := other.(type) {
	case Array:
		if !reflect.DeepEqual(a.Dims(), o.Dims()) || len(a.Data) != len(o.Data) {
			return false
		}
		for i := range a.Data {
			if !Equal(a.Data[i], o.Data[i]) {
				return false
			}
		}
		return true
	case []any:
		b, ok := arrayFromNested(o, false)
		return ok && equalArray(a, b)
	}
	return false
}
