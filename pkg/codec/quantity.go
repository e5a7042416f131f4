package codec

import (
	"errors"
	"fmt"
	"math"
)

// Reserved keys of the quantity document shape.
const (
	KeyValue       = "value"
	KeyUnit        = "unit"
	KeyUncertainty = "uncertainty"

	// NaNSentinel stands in for NaN quantity magnitudes, which the JSON
	// document stores cannot represent.
	NaNSentinel = "NaN"
)

// Quantity is a magnitude tagged with a unit symbol and an optional
// uncertainty expressed in the same unit.
//
// Value and Uncertainty hold either a float64 or an Array.
type Quantity struct {
	Value       any
	Unit        string
	Uncertainty any
}

// Q builds a scalar quantity.
func Q(value float64, unit string) Quantity {
	return Quantity{Value: value, Unit: unit}
}

// QArray builds an array-valued quantity.
func QArray(value Array, unit string) Quantity {
	return Quantity{Value: value, Unit: unit}
}

// WithUncertainty returns a copy of q carrying the given uncertainty.
func (q Quantity) WithUncertainty(u any) Quantity {
	q.Uncertainty = u
	return q
}

// HasUncertainty reports whether q carries an uncertainty.
func (q Quantity) HasUncertainty() bool { return q.Uncertainty != nil }

func (q Quantity) String() string {
	if q.HasUncertainty() {
		return fmt.Sprintf("%v±%v %s", q.Value, q.Uncertainty, q.Unit)
	}
	return fmt.Sprintf("%v %s", q.Value, q.Unit)
}

// Outcome tells how a quantity-shaped document fragment was decoded.
type Outcome int

const (
	// Decoded means the fragment became a Quantity.
	Decoded Outcome = iota
	// Raw means the fragment looked like a quantity but could not be
	// reconstructed and is returned undecoded.
	Raw
)

func (o Outcome) String() string {
	if o == Decoded {
		return "decoded"
	}
	return "raw"
}

// IsQuantityDoc reports whether doc has the {"value", "unit"} shape.
func IsQuantityDoc(doc map[string]any) bool {
	_, hasValue := doc[KeyValue]
	_, hasUnit := doc[KeyUnit]
	return hasValue && hasUnit
}

// DecodeQuantity reconstructs a Quantity from its document form. When the
// fragment is malformed the outcome is Raw and err explains why; the
// caller keeps the fragment as is.
func DecodeQuantity(doc map[string]any) (Quantity, Outcome, error) {
	unit, ok := doc[KeyUnit].(string)
	if !ok {
		return Quantity{}, Raw, fmt.Errorf("unit is %T, not a string", doc[KeyUnit])
	}
	if _, err := ParseUnit(unit); err != nil {
		return Quantity{}, Raw, err
	}
	value, err := decodeMagnitude(doc[KeyValue])
	if err != nil {
		return Quantity{}, Raw, fmt.Errorf("value: %w", err)
	}
	q := Quantity{Value: value, Unit: unit}
	if raw, ok := doc[KeyUncertainty]; ok {
		u, err := decodeMagnitude(raw)
		if err != nil {
			return Quantity{}, Raw, fmt.Errorf("uncertainty: %w", err)
		}
		q.Uncertainty = u
	}
	for k := range doc {
		switch k {
		case KeyValue, KeyUnit, KeyUncertainty, ForceDictKey:
		default:
			return Quantity{}, Raw, fmt.Errorf("unexpected key %q", k)
		}
	}
	return q, Decoded, nil
}

func decodeMagnitude(v any) (any, error) {
	switch m := v.(type) {
	case string:
		if m == NaNSentinel {
			return math.NaN(), nil
		}
		return nil, fmt.Errorf("non-numeric magnitude %q", m)
	case []any:
		a, ok := arrayFromNested(m, true)
		if !ok {
			return nil, errors.New("ragged or non-numeric magnitude list")
		}
		return a, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return nil, fmt.Errorf("magnitude is %T", v)
	}
	return f, nil
}

func encodeQuantity(q Quantity) (map[string]any, error) {
	if _, err := ParseUnit(q.Unit); err != nil {
		return nil, err
	}
	value, err := encodeMagnitude(q.Value)
	if err != nil {
		return nil, fmt.Errorf("quantity value: %w", err)
	}
	doc := map[string]any{KeyValue: value, KeyUnit: q.Unit}
	if q.Uncertainty != nil {
		u, err := encodeMagnitude(q.Uncertainty)
		if err != nil {
			return nil, fmt.Errorf("quantity uncertainty: %w", err)
		}
		doc[KeyUncertainty] = u
	}
	return doc, nil
}

func encodeMagnitude(v any) (any, error) {
	switch m := v.(type) {
	case Array:
		if err := m.Validate(); err != nil {
			return nil, err
		}
		return m.nested(NaNSentinel), nil
	case []float64:
		return Vector(m...).nested(NaNSentinel), nil
	}
	f, ok := toFloat(v)
	if !ok {
		return nil, fmt.Errorf("unsupported magnitude %T", v)
	}
	if math.IsNaN(f) {
		return NaNSentinel, nil
	}
	return f, nil
}
