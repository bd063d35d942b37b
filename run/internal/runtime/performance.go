package runtime

import (
	"sync"
	"time"
)

// smoothing is the weight of the newest sample in rolling averages.
const smoothing = 0.2

type (
	// Performance holds rolling averages of block work calls.
	Performance struct {
		Calls          uint64
		Produced       float64
		InputFullness  float64
		OutputFullness float64
		WorkTime       time.Duration
	}

	performance struct {
		mu sync.Mutex
		Performance
	}
)

func (p *performance) add(produced int, in, out float64, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Calls == 0 {
		p.Produced, p.InputFullness, p.OutputFullness, p.WorkTime = float64(produced), in, out, d
	} else {
		p.Produced = average(p.Produced, float64(produced))
		p.InputFullness = average(p.InputFullness, in)
		p.OutputFullness = average(p.OutputFullness, out)
		p.WorkTime = time.Duration(average(float64(p.WorkTime), float64(d)))
	}
	p.Calls++
}

func (p *performance) get() Performance {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Performance
}

func average(avg, sample float64) float64 {
	return avg + smoothing*(sample-avg)
}

// Performance returns rolling averages of work calls.
func (e *Executor) Performance() Performance {
	return e.perf.get()
}

// inputFullness returns the mean fullness of input buffers.
func (e *Executor) inputFullness() float64 {
	if len(e.detail.Inputs) == 0 {
		return 0
	}
	var sum float64
	for _, r := range e.detail.Inputs {
		sum += r.Buffer().Fullness()
	}
	return sum / float64(len(e.detail.Inputs))
}

// measure records the work call in metrics and rolling averages.
func (e *Executor) measure(produced, consumed int, d time.Duration, inputFullness float64) {
	var out float64
	for j, b := range e.detail.Outputs {
		f := b.Fullness()
		e.meter.Fullness(j, f)
		out += f
	}
	if len(e.detail.Outputs) > 0 {
		out /= float64(len(e.detail.Outputs))
	}
	e.meter.Work(consumed, produced, d)
	e.perf.add(produced, inputFullness, out, d)
}
