// Package codec converts in-memory values to and from the plain document
// form the storage backends accept: maps with string keys, lists, strings,
// booleans and numbers.
//
// Physical quantities become {"value", "unit"[, "uncertainty"]} maps, numeric
// arrays become nested lists and maps whose keys all look numeric carry a
// "_force_dict" marker so that document stores which turn such maps into
// lists can be told apart on the way back.
package codec

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// ForceDictKey marks maps whose keys are all numeric.
const ForceDictKey = "_force_dict"

// Codec encodes and decodes document values.
// The zero value is ready to use.
type Codec struct {
	// Logger receives debug records for fallback decodes. Optional.
	Logger *slog.Logger
	// OnFallback is invoked with every quantity-shaped fragment that could
	// not be decoded. Optional.
	OnFallback func(fragment map[string]any, err error)
}

// Default is the codec used when a backend is not given one.
var Default = &Codec{}

// Encode converts v into its storage-safe document form.
func (c *Codec) Encode(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case Quantity:
		return encodeQuantity(t)
	case *Quantity:
		if t == nil {
			return nil, nil
		}
		return encodeQuantity(*t)
	case Array:
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("array: %w", err)
		}
		return t.nested(nil), nil
	case string, bool:
		return t, nil
	case time.Time:
		return t.Format(time.RFC3339Nano), nil
	case json.Number:
		return normalizeNumber(t), nil
	case map[string]any:
		return c.encodeStringMap(t)
	case []any:
		return c.encodeList(len(t), func(i int) any { return t[i] })
	}

	if n, ok := asNumber(v); ok {
		return n, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		return c.encodeReflectMap(rv)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}, nil
		}
		return c.encodeList(rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return c.Encode(rv.Elem().Interface())
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	}
	return nil, fmt.Errorf("cannot encode value of type %T", v)
}

func (c *Codec) encodeStringMap(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m)+1)
	numeric := true
	for k, v := range m {
		if k == ForceDictKey {
			continue
		}
		enc, err := c.Encode(v)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = enc
		if !isNumericKey(k) {
			numeric = false
		}
	}
	if numeric {
		out[ForceDictKey] = true
	}
	return out, nil
}

func (c *Codec) encodeReflectMap(rv reflect.Value) (map[string]any, error) {
	m := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		key, err := mapKey(iter.Key())
		if err != nil {
			return nil, err
		}
		m[key] = iter.Value().Interface()
	}
	return c.encodeStringMap(m)
}

func (c *Codec) encodeList(n int, at func(int) any) ([]any, error) {
	out := make([]any, n)
	for i := 0; i < n; i++ {
		enc, err := c.Encode(at(i))
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out[i] = enc
	}
	return out, nil
}

// Decode converts a stored document back into application values.
// It never fails: quantity-shaped fragments that cannot be reconstructed
// are returned undecoded (see DecodeQuantity).
func (c *Codec) Decode(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return c.decodeMap(t)
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = val
		}
		return c.decodeMap(m)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = c.Decode(e)
		}
		return out
	case json.Number:
		return normalizeNumber(t)
	}
	if n, ok := asNumber(v); ok {
		return n
	}
	return v
}

func (c *Codec) decodeMap(m map[string]any) any {
	if IsQuantityDoc(m) {
		q, outcome, err := DecodeQuantity(normalizeMap(m))
		if outcome == Decoded {
			return q
		}
		c.fallback(m, err)
		return m
	}
	out := make(map[string]any, len(m))
	for k, val := range m {
		if k == ForceDictKey {
			continue
		}
		out[k] = c.Decode(val)
	}
	return out
}

func (c *Codec) fallback(fragment map[string]any, err error) {
	if c.Logger != nil {
		c.Logger.Debug("quantity fragment left undecoded", "error", err)
	}
	if c.OnFallback != nil {
		c.OnFallback(fragment, err)
	}
}

// normalizeMap converts json.Number leaves so DecodeQuantity sees plain numbers.
func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeLeaf(v)
	}
	return out
}

func normalizeLeaf(v any) any {
	switch t := v.(type) {
	case json.Number:
		return normalizeNumber(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeLeaf(e)
		}
		return out
	}
	return v
}

func isNumericKey(k string) bool {
	k = strings.TrimPrefix(k, "-")
	if k == "" {
		return false
	}
	for _, r := range k {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func mapKey(k reflect.Value) (string, error) {
	switch k.Kind() {
	case reflect.String:
		return k.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(k.Uint(), 10), nil
	case reflect.Interface:
		return mapKey(k.Elem())
	}
	return "", fmt.Errorf("unsupported map key type %s", k.Type())
}

// asNumber normalises Go numeric kinds: integers become int, floats float64.
func asNumber(v any) (any, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return nil, false
}

func normalizeNumber(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return int(i)
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func toFloat(v any) (float64, bool) {
	if jn, ok := v.(json.Number); ok {
		f, err := jn.Float64()
		return f, err == nil
	}
	n, ok := asNumber(v)
	if !ok {
		return 0, false
	}
	switch t := n.(type) {
	case int:
		return float64(t), true
	case float64:
		return t, true
	}
	return math.NaN(), false
}
