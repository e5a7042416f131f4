package tree

import (
	"strconv"

	"github.com/aretw0/expipe/pkg/codec"
)

// dig walks rel inside a raw document.
func dig(doc any, rel []string) (any, bool) {
	cur := doc
	for _, k := range rel {
		switch t := cur.(type) {
		case map[string]any:
			v, ok := t[k]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(k)
			if err != nil || i < 0 || i >= len(t) {
				return nil, false
			}
			cur = t[i]
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

// setIn stores v at rel inside doc and returns the new root. Intermediate
// maps are created and scalars on the way are replaced.
func setIn(doc any, rel []string, v any) any {
	if len(rel) == 0 {
		return v
	}
	k, rest := rel[0], rel[1:]
	if list, ok := doc.([]any); ok {
		if i, err := strconv.Atoi(k); err == nil && i >= 0 && i < len(list) {
			list[i] = setIn(list[i], rest, v)
			return list
		}
	}
	m, ok := doc.(map[string]any)
	if !ok {
		m = map[string]any{}
	}
	delete(m, codec.ForceDictKey)
	m[k] = setIn(m[k], rest, v)
	return m
}

// deleteIn removes rel from doc. It reports whether anything changed.
func deleteIn(doc any, rel []string) (any, bool) {
	if len(rel) == 0 {
		return nil, true
	}
	k, rest := rel[0], rel[1:]
	switch t := doc.(type) {
	case map[string]any:
		child, ok := t[k]
		if !ok {
			return doc, false
		}
		if len(rest) == 0 {
			delete(t, k)
			return t, true
		}
		v, changed := deleteIn(child, rest)
		t[k] = v
		return t, changed
	case []any:
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || i >= len(t) {
			return doc, false
		}
		if len(rest) == 0 {
			return append(t[:i:i], t[i+1:]...), true
		}
		v, changed := deleteIn(t[i], rest)
		t[i] = v
		return t, changed
	}
	return doc, false
}

// seal marks an empty top-level map so it survives as a document.
func seal(doc any) any {
	if m, ok := doc.(map[string]any); ok && len(m) == 0 {
		m[codec.ForceDictKey] = true
	}
	return doc
}

// keysOf turns a raw value into its shallow form: maps and lists become
// key sets, scalars are returned as they are.
func keysOf(raw any) any {
	switch t := raw.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k := range t {
			if k != codec.ForceDictKey {
				out[k] = true
			}
		}
		return out
	case []any:
		out := make(map[string]any, len(t))
		for i := range t {
			out[strconv.Itoa(i)] = true
		}
		return out
	}
	return raw
}

// clone deep-copies a raw document.
func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = clone(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = clone(e)
		}
		return out
	}
	return v
}
