package mock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/flow"
	"pipelined.dev/flow/mock"
	"pipelined.dev/flow/pmt"
)

func TestHooks(t *testing.T) {
	source := mock.NewSource("source", []float32{1, 2})
	source.Hooks.StopErr = mock.ErrMock

	assert.NoError(t, source.Start())
	assert.ErrorIs(t, source.Stop(), mock.ErrMock)
	assert.Equal(t, 1, source.Hooks.Started())
	assert.Equal(t, 1, source.Hooks.Stopped())
}

func TestProperties(t *testing.T) {
	testProperties := func(b flow.Block, rate flow.Rate, fixed bool) func(*testing.T) {
		return func(t *testing.T) {
			props := b.BaseBlock().Properties()
			require.NoError(t, props.Validate())
			assert.Equal(t, rate, props.Rate)
			assert.Equal(t, fixed, props.FixedRate)
		}
	}

	t.Run("copy", testProperties(mock.NewCopy[int32]("copy"), flow.NewRate(1, 1), true))
	t.Run("keep one in n", testProperties(mock.NewKeepOneInN[int32]("keep", 3), flow.NewRate(1, 3), true))
	t.Run("delay", testProperties(mock.NewDelay[int32]("delay", 5), flow.NewRate(1, 1), false))
	t.Run("moving sum", testProperties(mock.NewMovingSum[float64]("sum", 4), flow.NewRate(1, 1), true))

	assert.Equal(t, 5, mock.NewDelay[int32]("delay", 5).Properties().Delay(0))
	assert.Equal(t, 4, mock.NewMovingSum[float64]("sum", 4).Properties().History)
	assert.Equal(t, 8, mock.NewSink[float64]("sink").Input().ItemSize(0))
}

func TestDelayForecast(t *testing.T) {
	d := mock.NewDelay[int32]("delay", 5)
	required := make([]int, 1)
	d.Forecast(3, required)
	assert.Equal(t, 0, required[0])
	d.Forecast(8, required)
	assert.Equal(t, 3, required[0])
}

func TestPublisher(t *testing.T) {
	p := mock.NewPublisher("publisher", "out", pmt.Int(1))
	assert.Equal(t, []string{"out"}, p.MessageOutputs())
	// messages are dropped until the block is bound to a run
	res, err := p.Work(nil)
	require.NoError(t, err)
	assert.True(t, res.Done)

	c := mock.NewCollector("collector", "in")
	h, ok := c.MessageHandler("in")
	require.True(t, ok)
	require.NoError(t, h(pmt.Int(2)))
	assert.Equal(t, []pmt.Value{pmt.Int(2)}, c.Messages())
}
