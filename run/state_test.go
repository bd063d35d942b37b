package run

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/flow"
	"pipelined.dev/flow/mock"
)

func TestTransition(t *testing.T) {
	testTransition := func(s state, e event, expected state, ok bool) func(*testing.T) {
		return func(t *testing.T) {
			next, err := s.transition(e)
			if ok {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidState)
			}
			assert.Equal(t, expected, next)
		}
	}

	t.Run("ready start", testTransition(ready{}, start, running{}, true))
	t.Run("ready close", testTransition(ready{}, closing, closed{}, true))
	t.Run("ready stop", testTransition(ready{}, stop, ready{}, false))
	t.Run("ready wait", testTransition(ready{}, wait, ready{}, false))
	t.Run("running stop", testTransition(running{}, stop, running{}, true))
	t.Run("running wait", testTransition(running{}, wait, running{}, true))
	t.Run("running finish", testTransition(running{}, finish, done{}, true))
	t.Run("running start", testTransition(running{}, start, running{}, false))
	t.Run("running close", testTransition(running{}, closing, running{}, false))
	t.Run("done close", testTransition(done{}, closing, done{}, true))
	t.Run("done start", testTransition(done{}, start, done{}, false))
	t.Run("closed close", testTransition(closed{}, closing, closed{}, true))
	t.Run("closed start", testTransition(closed{}, start, closed{}, false))
	t.Run("closed wait", testTransition(closed{}, wait, closed{}, false))
}

func TestClose(t *testing.T) {
	newRun := func(t *testing.T) *Run {
		t.Helper()
		g := flow.NewGraph()
		require.NoError(t, g.Connect(mock.NewSource("source", []uint32{1, 2, 3}), 0, mock.NewSink[uint32]("sink"), 0))
		cfg := DefaultConfig()
		cfg.BufferStorage = "mirror"
		r, err := New(g, WithConfig(cfg))
		require.NoError(t, err)
		return r
	}

	t.Run("not started", func(t *testing.T) {
		r := newRun(t)
		require.NotEmpty(t, r.buffers)
		require.NoError(t, r.Close())
		assert.Empty(t, r.buffers)
		assert.Equal(t, closed{}, r.state)
		<-r.Done()
		assert.ErrorIs(t, r.Start(context.Background()), ErrInvalidState)
		assert.ErrorIs(t, r.Wait(), ErrInvalidState)
		assert.NoError(t, r.Close())
	})

	t.Run("done", func(t *testing.T) {
		r := newRun(t)
		require.NoError(t, r.Start(context.Background()))
		require.NoError(t, r.Wait())
		assert.Empty(t, r.buffers)
		require.NoError(t, r.Close())
		assert.Equal(t, done{}, r.state)
	})
}
