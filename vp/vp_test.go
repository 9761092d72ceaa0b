package vp

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/nest/nest-simulator-sub010/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout(t *testing.T) {
	t.Run("RoundRobin", func(t *testing.T) {
		l, err := NewLayout(2, 3)
		require.NoError(t, err)
		assert.Equal(t, 6, l.TotalVPs())

		// Node ids map round-robin over VPs; vp = id % 6.
		for id := model.NodeID(1); id <= 12; id++ {
			vpIdx := l.VPOf(id)
			assert.Equal(t, int(id)%6, vpIdx)
			assert.Equal(t, vpIdx%2, l.RankOf(id))
			assert.Equal(t, vpIdx/2, l.ThreadOf(id))
			assert.Equal(t, vpIdx, l.VP(l.RankOf(id), l.ThreadOf(id)))
		}
	})

	t.Run("IsLocal", func(t *testing.T) {
		l, err := NewLayout(2, 1)
		require.NoError(t, err)
		assert.True(t, l.IsLocal(2, 0))
		assert.True(t, l.IsLocal(1, 1))
		assert.False(t, l.IsLocal(1, 0))
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := NewLayout(0, 1)
		assert.Error(t, err)
		_, err = NewLayout(1, 0)
		assert.Error(t, err)
	})
}

func TestRun(t *testing.T) {
	t.Run("AllThreadsExecute", func(t *testing.T) {
		var count atomic.Int64
		err := Run(8, func(tid int) error {
			count.Add(1)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, int64(8), count.Load())
	})

	t.Run("ErrorsAggregatedAfterCompletion", func(t *testing.T) {
		errBoom := errors.New("boom")
		var completed atomic.Int64
		err := Run(4, func(tid int) error {
			defer completed.Add(1)
			if tid == 1 || tid == 3 {
				return errBoom
			}
			return nil
		})
		require.Error(t, err)
		// Every thread finished its local work before the join.
		assert.Equal(t, int64(4), completed.Load())
		assert.ErrorIs(t, err, errBoom)
	})

	t.Run("PanicCaptured", func(t *testing.T) {
		err := Run(2, func(tid int) error {
			if tid == 0 {
				panic("bad builder")
			}
			return nil
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "thread 0 panicked")
	})

	t.Run("SingleThreadInline", func(t *testing.T) {
		hit := false
		require.NoError(t, Run(1, func(tid int) error {
			hit = tid == 0
			return nil
		}))
		assert.True(t, hit)
	})
}
