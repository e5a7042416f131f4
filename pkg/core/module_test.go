package core_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/expipe/pkg/codec"
	"github.com/aretw0/expipe/pkg/core"
)

func TestModules_Contents(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, st *core.Store) {
		p, err := st.CreateProject(ctx, "neuro")
		require.NoError(t, err)

		m, err := p.CreateModule(ctx, "electrode", core.WithContents(map[string]any{
			"channels": 32,
			"pitch":    codec.Q(25, "um"),
		}))
		require.NoError(t, err)
		assert.Equal(t, "electrode", m.Name())

		_, err = p.CreateModule(ctx, "electrode")
		assert.ErrorIs(t, err, core.ErrExists)

		same, err := p.RequireModule(ctx, "electrode", core.WithContents(map[string]any{"channels": 64}))
		require.NoError(t, err)
		v, err := same.Value(ctx, "channels")
		require.NoError(t, err)
		assert.Equal(t, 32, v, "require leaves an existing module untouched")

		_, err = p.RequireModule(ctx, "electrode", core.WithContents(map[string]any{"channels": 64}), core.Overwrite())
		require.NoError(t, err)
		v, err = m.Value(ctx, "channels")
		require.NoError(t, err)
		assert.Equal(t, 64, v)

		require.NoError(t, m.SetValue(ctx, "pitch", codec.Q(20, "um")))
		require.NoError(t, m.Update(ctx, map[string]any{"shank": "A", "channels": nil}))
		doc, err := m.ToMap(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"pitch": codec.Q(20, "um"), "shank": "A"}, doc)

		keys, err := m.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"pitch", "shank"}, keys)

		_, err = m.Value(ctx, "channels")
		assert.ErrorIs(t, err, core.ErrNotFound)

		data, err := m.ToJSON(ctx)
		require.NoError(t, err)
		var raw map[string]any
		require.NoError(t, json.Unmarshal(data, &raw))
		assert.Equal(t, map[string]any{"value": 20.0, "unit": "um"}, raw["pitch"])
	})
}

func TestModules_ContentKinds(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, st *core.Store) {
		p, err := st.CreateProject(ctx, "neuro")
		require.NoError(t, err)

		empty, err := p.CreateModule(ctx, "notes")
		require.NoError(t, err)
		doc, err := empty.ToMap(ctx)
		require.NoError(t, err)
		assert.Empty(t, doc)

		list, err := p.CreateModule(ctx, "steps", core.WithContents([]any{"wash", "stain"}))
		require.NoError(t, err)
		v, err := list.Contents(ctx)
		require.NoError(t, err)
		assert.Equal(t, []any{"wash", "stain"}, v)

		_, err = p.CreateModule(ctx, "gain", core.WithContents(2.5))
		var typeErr *core.TypeError
		assert.ErrorAs(t, err, &typeErr)

		_, err = p.CreateModule(ctx, "bad/name")
		assert.ErrorIs(t, err, core.ErrInvalid)

		names, err := p.Modules().Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"notes", "steps"}, names)
	})
}

func TestModules_Templates(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, st *core.Store) {
		p, err := st.CreateProject(ctx, "neuro")
		require.NoError(t, err)
		a, err := p.CreateAction(ctx, "session-1")
		require.NoError(t, err)

		_, err = p.CreateTemplate(ctx, "amplifier", map[string]any{
			"identifier": "amp",
			"gain":       1,
		})
		require.NoError(t, err)
		_, err = p.CreateTemplate(ctx, "amplifier", nil)
		assert.ErrorIs(t, err, core.ErrExists)
		_, err = p.RequireTemplate(ctx, "blank", map[string]any{"gain": 0})
		require.NoError(t, err)

		m, err := a.CreateModule(ctx, "", core.FromTemplate("amplifier"))
		require.NoError(t, err)
		assert.Equal(t, "amp", m.Name())
		gain, err := m.Value(ctx, "gain")
		require.NoError(t, err)
		assert.Equal(t, 1, gain)

		again, err := a.RequireModule(ctx, "", core.FromTemplate("amplifier"))
		require.NoError(t, err)
		assert.Equal(t, m.Path(), again.Path())
		again, err = a.RequireModule(ctx, "", core.FromTemplate("amplifier"))
		require.NoError(t, err)
		assert.Equal(t, m.Path(), again.Path())
		n, err := a.Modules().Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "require from a template does not duplicate the module")
		contents, err := again.ToMap(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"identifier": "amp", "gain": 1}, contents)

		named, err := a.CreateModule(ctx, "amp-2", core.FromTemplate("amplifier"))
		require.NoError(t, err)
		assert.Equal(t, "amp-2", named.Name())

		_, err = a.CreateModule(ctx, "", core.FromTemplate("blank"))
		assert.ErrorIs(t, err, core.ErrInvalid, "a template needs an identifier")

		_, err = a.CreateModule(ctx, "x", core.FromTemplate("amplifier"), core.WithContents(map[string]any{}))
		assert.ErrorIs(t, err, core.ErrInvalid)

		_, err = a.CreateModule(ctx, "", core.FromTemplate("missing"))
		assert.ErrorIs(t, err, core.ErrNotFound)

		require.NoError(t, p.DeleteTemplate(ctx, "amplifier"))
		_, err = a.GetModule(ctx, "amp")
		require.NoError(t, err, "modules outlive their template")

		names, err := p.Templates().Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"blank"}, names)
	})
}

func TestModules_Nested(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, st *core.Store) {
		p, err := st.CreateProject(ctx, "neuro")
		require.NoError(t, err)
		e, err := p.CreateEntity(ctx, "mouse-7")
		require.NoError(t, err)

		rig, err := e.CreateModule(ctx, "rig", core.WithContents(map[string]any{"room": "B12"}))
		require.NoError(t, err)
		cam, err := rig.CreateModule(ctx, "camera", core.WithContents(map[string]any{"fps": 60}))
		require.NoError(t, err)
		_, err = cam.CreateModule(ctx, "lens", core.WithContents(map[string]any{"focal": codec.Q(35, "mm")}))
		require.NoError(t, err)

		children, err := rig.Modules().Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"camera"}, children, "scalar keys are not modules")

		lens, err := cam.GetModule(ctx, "lens")
		require.NoError(t, err)
		focal, err := lens.Value(ctx, "focal")
		require.NoError(t, err)
		assert.Equal(t, codec.Q(35, "mm"), focal)

		require.NoError(t, rig.DeleteModule(ctx, "camera"))
		_, err = rig.GetModule(ctx, "camera")
		assert.ErrorIs(t, err, core.ErrNotFound)
		room, err := rig.Value(ctx, "room")
		require.NoError(t, err)
		assert.Equal(t, "B12", room)
	})
}

func TestRecord_CascadeDelete(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, st *core.Store) {
		p, err := st.CreateProject(ctx, "neuro")
		require.NoError(t, err)
		a, err := p.CreateAction(ctx, "session-1")
		require.NoError(t, err)
		_, err = a.CreateModule(ctx, "amp", core.WithContents(map[string]any{"gain": 2}))
		require.NoError(t, err)
		_, err = a.CreateMessage(ctx, "note")
		require.NoError(t, err)

		require.NoError(t, p.Actions().Delete(ctx, "session-1"))
		_, err = p.GetAction(ctx, "session-1")
		assert.ErrorIs(t, err, core.ErrNotFound)

		layout := st.Session().Layout
		owner := core.Owner{Kind: core.Actions, ID: "session-1"}
		for _, path := range []string{
			layout.Object("neuro", core.Actions, "session-1"),
			layout.Collection("neuro", owner, core.Modules),
			layout.Collection("neuro", owner, core.Messages),
		} {
			raw, err := st.Backend().Get(ctx, path, false)
			require.NoError(t, err)
			assert.Nil(t, raw, "%s should be gone", path)
		}

		recreated, err := p.CreateAction(ctx, "session-1")
		require.NoError(t, err)
		n, err := recreated.Modules().Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, n, "a recreated action does not inherit modules")
		n, err = recreated.Messages().Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
