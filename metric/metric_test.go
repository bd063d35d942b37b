package metric_test

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"pipelined.dev/flow/metric"
)

func TestMeter(t *testing.T) {
	var tests = []struct {
		block            string
		routines         int
		calls            int
		items            int
		expectedCalls    float64
		expectedProduced float64
	}{
		{
			block:            "copy",
			routines:         2,
			calls:            10,
			items:            100,
			expectedCalls:    20,
			expectedProduced: 2000,
		},
		{
			block:            "sink",
			routines:         4,
			calls:            5,
			items:            10,
			expectedCalls:    20,
			expectedProduced: 200,
		},
	}
	m := metric.New("flow")
	testFn := func(meter *metric.Meter, wg *sync.WaitGroup, calls, items int) {
		for i := 0; i < calls; i++ {
			meter.Work(items, items, time.Millisecond)
			meter.Fullness(0, 0.5)
		}
		wg.Done()
	}

	for _, c := range tests {
		wg := &sync.WaitGroup{}
		wg.Add(c.routines)
		meter := m.Meter(c.block, "id-"+c.block)
		for i := 0; i < c.routines; i++ {
			go testFn(meter, wg, c.calls, c.items)
		}
		// check if no data race.
		wg.Wait()
		meter.State(3)
		values := m.Get(c.block)
		assert.Equal(t, c.expectedCalls, values[metric.CallCounter])
		assert.Equal(t, c.expectedProduced, values[metric.ProducedCounter])
		assert.Equal(t, c.expectedProduced, values[metric.ConsumedCounter])
		assert.Equal(t, c.expectedCalls, values[metric.DurationHistogram])
		assert.Equal(t, float64(3), values[metric.StateGauge])
	}
	// seven series per block
	count, err := testutil.GatherAndCount(m.Registry())
	assert.NoError(t, err)
	assert.Equal(t, 14, count)
}

func TestNilMeter(t *testing.T) {
	var m *metric.Metrics
	meter := m.Meter("block", "id")
	assert.Nil(t, meter)
	meter.Work(1, 1, time.Second)
	meter.Message()
	meter.Fullness(0, 1)
	meter.State(1)
	assert.Empty(t, m.Get("block"))
	assert.Nil(t, m.Registry())
}
