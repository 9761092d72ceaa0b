package synapse

import (
	"testing"

	"github.com/nest/nest-simulator-sub010/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Run("RegisterAssignsDenseIDs", func(t *testing.T) {
		r := NewRegistry()
		id0, err := r.Register(Model{Name: "static", Primary: true, HasDelay: true, Factory: StaticFactory})
		require.NoError(t, err)
		id1, err := r.Register(Model{Name: "gap_junction", Factory: StaticFactory})
		require.NoError(t, err)
		assert.Equal(t, model.SynapseTypeID(0), id0)
		assert.Equal(t, model.SynapseTypeID(1), id1)
		assert.Equal(t, 2, r.Len())
		assert.Equal(t, []string{"static", "gap_junction"}, r.Names())
	})

	t.Run("ByNameAndGet", func(t *testing.T) {
		r := NewRegistry()
		id, err := r.Register(Model{Name: "stdp", Primary: true, HasDelay: true, Factory: StaticFactory})
		require.NoError(t, err)

		got, err := r.ByName("stdp")
		require.NoError(t, err)
		assert.Equal(t, id, got)

		m, err := r.Get(id)
		require.NoError(t, err)
		assert.Equal(t, "stdp", m.Name)

		_, err = r.ByName("nope")
		var unknown *ErrUnknownModel
		assert.ErrorAs(t, err, &unknown)

		_, err = r.Get(42)
		assert.ErrorAs(t, err, &unknown)
	})

	t.Run("DuplicateName", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Register(Model{Name: "static", Factory: StaticFactory})
		require.NoError(t, err)
		_, err = r.Register(Model{Name: "static", Factory: StaticFactory})
		assert.ErrorIs(t, err, ErrDuplicateModel)
	})

	t.Run("FrozenRejectsRegistration", func(t *testing.T) {
		r := NewRegistry()
		r.Freeze()
		assert.True(t, r.Frozen())
		_, err := r.Register(Model{Name: "late", Factory: StaticFactory})
		assert.ErrorIs(t, err, ErrRegistryFrozen)
	})

	t.Run("NilFactory", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Register(Model{Name: "broken"})
		assert.ErrorIs(t, err, ErrNilFactory)
	})
}
