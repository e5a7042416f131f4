package fs

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// parse decodes a YAML document. An empty file is an empty map.
func parse(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}
	var payload any
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}
	return normalize(payload), nil
}

// serialize encodes a raw document as YAML.
func serialize(doc any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// normalize converts the map[interface{}]interface{} values yaml.v3
// produces for non-string keys, and widens integer kinds.
func normalize(val any) any {
	switch v := val.(type) {
	case map[string]any:
		for k, e := range v {
			v[k] = normalize(e)
		}
		return v
	case map[any]any:
		m := make(map[string]any, len(v))
		for k, e := range v {
			m[fmt.Sprint(k)] = normalize(e)
		}
		return m
	case []any:
		for i, e := range v {
			v[i] = normalize(e)
		}
		return v
	case int64:
		return int(v)
	case uint64:
		return float64(v)
	default:
		return v
	}
}
