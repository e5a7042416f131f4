// Package expipe is the composition root of the expipe object store.
//
// It stores experimental metadata as a hierarchy of projects, actions,
// entities, modules, templates and messages, and lets the same model live
// on different backends: YAML files on disk (optionally versioned with
// git), a hosted JSON document tree, Redis or memory.
//
// Features:
//
//   - **Backend agnostic**: domain objects only see core.Backend.
//   - **Lossless values**: quantities with units, numeric arrays and maps
//     with numeric keys survive every backend (see pkg/codec).
//   - **Typed modules**: NewTypedRepository maps module contents onto structs.
//   - **Change watching**: filesystem and Redis stores stream change events.
//   - **Observability**: Prometheus metrics and introspection state.
//
// Usage:
//
//	h, err := expipe.Open(ctx, "./data", expipe.WithUsername("ana"))
//	if err != nil {
//		return err
//	}
//	defer h.Close()
//
//	p, err := h.Store.RequireProject(ctx, "neuro")
//	a, err := p.RequireAction(ctx, "session-1")
//	_, err = a.CreateModule(ctx, "amp", core.WithContents(map[string]any{
//		"gain": codec.Q(200, "V/V"),
//	}))
package expipe
