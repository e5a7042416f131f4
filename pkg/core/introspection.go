package core

import (
	"fmt"

	"github.com/aretw0/introspection"
)

// StoreState exposes internal state for observability.
type StoreState struct {
	BackendType string `json:"backend_type"`
	Layout      string `json:"layout"`
	Username    string `json:"username"`
}

// State implements introspection.Introspectable.
func (st *Store) State() any {
	backendType := "unknown"
	if st.s.Backend != nil {
		backendType = fmt.Sprintf("%T", st.s.Backend)
		if comp, ok := st.s.Backend.(introspection.Component); ok {
			backendType = comp.ComponentType()
		}
	}
	return StoreState{
		BackendType: backendType,
		Layout:      fmt.Sprintf("%T", st.s.Layout),
		Username:    st.s.Username,
	}
}

// ComponentType implements introspection.Component.
func (st *Store) ComponentType() string {
	return "store"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
