package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/expipe/pkg/adapters/fs"
	"github.com/aretw0/expipe/pkg/adapters/tree"
	"github.com/aretw0/expipe/pkg/codec"
	"github.com/aretw0/expipe/pkg/core"
)

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

type storeCase struct {
	name string
	open func(t *testing.T) *core.Store
}

func session(b core.Backend, layout core.Layout) core.Session {
	return core.Session{
		Backend:  b,
		Layout:   layout,
		Username: "ana",
		Now:      func() time.Time { return fixedNow },
	}
}

func stores() []storeCase {
	return []storeCase{
		{"Memory", func(t *testing.T) *core.Store {
			return core.NewStore(session(tree.NewMemoryBackend(), nil))
		}},
		{"Memory Tree Layout", func(t *testing.T) *core.Store {
			return core.NewStore(session(tree.NewMemoryBackend(), core.TreeLayout{}))
		}},
		{"Filesystem", func(t *testing.T) *core.Store {
			b, err := fs.Open(context.Background(), fs.Config{Path: t.TempDir()})
			require.NoError(t, err)
			return core.NewStore(session(b, nil))
		}},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, st *core.Store)) {
	for _, tc := range stores() {
		t.Run(tc.name, func(t *testing.T) {
			fn(t, tc.open(t))
		})
	}
}

func TestStore_Projects(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, st *core.Store) {
		p, err := st.CreateProject(ctx, "neuro")
		require.NoError(t, err)
		assert.Equal(t, "neuro", p.ID())

		_, err = st.CreateProject(ctx, "neuro")
		assert.ErrorIs(t, err, core.ErrExists)

		again, err := st.RequireProject(ctx, "neuro")
		require.NoError(t, err)
		assert.Equal(t, p.ID(), again.ID())

		_, err = st.RequireProject(ctx, "optics")
		require.NoError(t, err)

		keys, err := st.Projects().Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"neuro", "optics"}, keys)

		attrs, err := p.Attributes(ctx)
		require.NoError(t, err)
		assert.Equal(t, core.SchemaVersion, attrs["schema_version"])
		assert.Equal(t, "2024-03-01T09:30:00", attrs["registered"])

		_, err = st.GetProject(ctx, "missing")
		assert.ErrorIs(t, err, core.ErrNotFound)

		_, err = st.CreateProject(ctx, "bad/id")
		assert.ErrorIs(t, err, core.ErrInvalid)
		_, err = st.CreateProject(ctx, core.ReservedProjectID)
		assert.ErrorIs(t, err, core.ErrInvalid)

		ok, err := st.Projects().Contains(ctx, "bad/id")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestStore_DeleteProject(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, st *core.Store) {
		p, err := st.CreateProject(ctx, "neuro")
		require.NoError(t, err)
		a, err := p.CreateAction(ctx, "session-1")
		require.NoError(t, err)
		_, err = a.CreateModule(ctx, "amp", core.WithContents(map[string]any{"gain": 2}))
		require.NoError(t, err)
		_, err = a.CreateMessage(ctx, "started")
		require.NoError(t, err)

		err = st.DeleteProject(ctx, "neuro", false)
		assert.ErrorIs(t, err, core.ErrNotEmpty)
		_, err = st.GetProject(ctx, "neuro")
		require.NoError(t, err, "a refused delete leaves the project in place")

		require.NoError(t, st.DeleteProject(ctx, "neuro", true))
		n, err := st.Projects().Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		v, err := st.Backend().Get(ctx, "", true)
		require.NoError(t, err)
		assert.Empty(t, v, "nothing of the project survives")

		_, err = st.CreateProject(ctx, "empty")
		require.NoError(t, err)
		require.NoError(t, st.DeleteProject(ctx, "empty", false))
	})
}

func TestProject_Records(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, st *core.Store) {
		p, err := st.CreateProject(ctx, "neuro")
		require.NoError(t, err)

		a, err := p.CreateAction(ctx, "session-1")
		require.NoError(t, err)
		_, err = p.CreateAction(ctx, "session-1")
		assert.ErrorIs(t, err, core.ErrExists)

		attrs, err := a.Attributes(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{core.AttrRegistered: "2024-03-01T09:30:00"}, attrs)

		require.NoError(t, a.SetType(ctx, "recording"))
		again, err := p.RequireAction(ctx, "session-1")
		require.NoError(t, err)
		typ, err := again.Type(ctx)
		require.NoError(t, err)
		assert.Equal(t, "recording", typ, "require returns the existing action untouched")

		ent, err := p.RequireEntity(ctx, "mouse-7")
		require.NoError(t, err)
		registered, err := ent.Attribute(ctx, core.AttrRegistered)
		require.NoError(t, err)
		assert.Equal(t, "2024-03-01T09:30:00", registered)
		require.NoError(t, a.SetEntities(ctx, "mouse-7", "mouse-7"))
		ents, err := a.Entities(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"mouse-7"}, ents)

		actions, err := p.Actions().Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"session-1"}, actions)
		entities, err := p.Entities().Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"mouse-7"}, entities)

		require.NoError(t, p.DeleteEntity(ctx, "mouse-7"))
		_, err = p.GetEntity(ctx, "mouse-7")
		assert.ErrorIs(t, err, core.ErrNotFound)
		assert.ErrorIs(t, p.DeleteEntity(ctx, "mouse-7"), core.ErrNotFound)
	})
}

func TestRecord_Attributes(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, st *core.Store) {
		p, err := st.CreateProject(ctx, "neuro")
		require.NoError(t, err)
		a, err := p.CreateAction(ctx, "session-1")
		require.NoError(t, err)

		var typeErr *core.TypeError
		err = a.SetAttribute(ctx, core.AttrType, 42)
		require.ErrorAs(t, err, &typeErr)
		assert.ErrorIs(t, err, core.ErrInvalid)
		assert.Equal(t, core.AttrType, typeErr.Field)

		assert.ErrorIs(t, a.SetAttribute(ctx, core.AttrTags, []any{"a", 1}), core.ErrInvalid)
		assert.ErrorIs(t, a.SetAttribute(ctx, core.AttrDatetime, "yesterday"), core.ErrInvalid)

		require.NoError(t, a.SetTags(ctx, "ephys", "pilot", "ephys"))
		require.NoError(t, a.AddTags(ctx, "pilot", "awake"))
		tags, err := a.Tags(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"ephys", "pilot", "awake"}, tags)

		require.NoError(t, a.SetLocation(ctx, "rig 2"))
		require.NoError(t, a.SetDatetime(ctx, fixedNow))
		require.NoError(t, a.SetUsers(ctx, "ana", "bo"))
		require.NoError(t, a.SetAttribute(ctx, "temperature", codec.Q(21.5, "degC")))

		dt, err := a.Datetime(ctx)
		require.NoError(t, err)
		assert.True(t, fixedNow.Equal(dt))

		attrs, err := a.Attributes(ctx)
		require.NoError(t, err)
		assert.Equal(t, "rig 2", attrs[core.AttrLocation])
		assert.Equal(t, []any{"ana", "bo"}, attrs[core.AttrUsers])
		assert.Equal(t, codec.Q(21.5, "degC"), attrs["temperature"])

		require.NoError(t, a.SetAttribute(ctx, core.AttrLocation, nil))
		loc, err := a.Location(ctx)
		require.NoError(t, err)
		assert.Empty(t, loc)
	})
}

func TestRecord_Messages(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, st *core.Store) {
		p, err := st.CreateProject(ctx, "neuro")
		require.NoError(t, err)
		e, err := p.CreateEntity(ctx, "mouse-7")
		require.NoError(t, err)

		m, err := e.CreateMessage(ctx, "weighed 21 g")
		require.NoError(t, err)
		user, err := m.User(ctx)
		require.NoError(t, err)
		assert.Equal(t, "ana", user)
		dt, err := m.Datetime(ctx)
		require.NoError(t, err)
		assert.True(t, fixedNow.Equal(dt))

		later := fixedNow.Add(time.Hour)
		m2, err := e.CreateMessage(ctx, "fed", core.WithUser("bo"), core.WithDatetime(later))
		require.NoError(t, err)
		assert.NotEqual(t, m.ID(), m2.ID())

		_, err = e.CreateMessage(ctx, "anon", core.WithUser(""))
		assert.ErrorIs(t, err, core.ErrInvalid)
		_, err = e.CreateMessage(ctx, "")
		assert.ErrorIs(t, err, core.ErrInvalid)
		assert.ErrorIs(t, m.SetText(ctx, ""), core.ErrInvalid)

		n, err := e.Messages().Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		require.NoError(t, m2.SetText(ctx, "fed 2 g"))
		text, err := m2.Text(ctx)
		require.NoError(t, err)
		assert.Equal(t, "fed 2 g", text)

		require.NoError(t, e.DeleteMessage(ctx, m.ID()))
		keys, err := e.Messages().Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{m2.ID()}, keys)
	})
}

func TestStore_State(t *testing.T) {
	st := core.NewStore(session(tree.NewMemoryBackend(), nil))
	assert.Equal(t, "store", st.ComponentType())
	assert.Equal(t, core.StoreState{
		BackendType: "memory",
		Layout:      "core.FileLayout",
		Username:    "ana",
	}, st.State())
}

func TestStore_Watch(t *testing.T) {
	st := core.NewStore(session(tree.NewMemoryBackend(), nil))
	_, err := st.Watch(context.Background(), "**")
	assert.ErrorIs(t, err, core.ErrUnsupported)
}
