// Package mock provides blocks for testing flow graphs.
package mock

import (
	"errors"
	"sync"
	"sync/atomic"

	"pipelined.dev/flow"
	"pipelined.dev/flow/pmt"
	"pipelined.dev/flow/tag"
)

// ErrMock is returned by failing blocks if no other error provided.
var ErrMock = errors.New("mock error")

type (
	// Number is the item type of arithmetic blocks.
	Number interface {
		~int32 | ~int64 | ~uint32 | ~float32 | ~float64
	}

	// Hooks counts calls of start and stop hooks and returns configured
	// errors.
	Hooks struct {
		StartErr error
		StopErr  error
		started  atomic.Int32
		stopped  atomic.Int32
	}

	// Source produces items of the vector and finishes.
	Source[T any] struct {
		flow.Base
		Hooks Hooks
		// Data is produced once.
		Data []T
		// Tags are attached to the output when items they point to are
		// produced.
		Tags []tag.Tag
		pos  int
	}

	// Sink collects items and tags of its input.
	Sink[T any] struct {
		flow.Base
		Hooks Hooks
		mu    sync.Mutex
		data  []T
		tags  []tag.Tag
		calls int
	}

	// Copy passes items through unchanged.
	Copy[T any] struct {
		flow.Base
		Hooks Hooks
	}

	// Head passes the first N items and finishes.
	Head[T any] struct {
		flow.Base
		N    int
		left int
	}

	// KeepOneInN passes every Nth item. Consumption is derived from its
	// fixed rate.
	KeepOneInN[T any] struct {
		flow.Base
		N int
	}

	// Delay prepends N zero items to the stream.
	Delay[T any] struct {
		flow.Base
		pending int
	}

	// MovingSum sums the last History items.
	MovingSum[T Number] struct {
		flow.Base
	}

	// Adder sums items of all its inputs.
	Adder[T Number] struct {
		flow.Base
	}

	// Failer passes items through and fails on the Nth call.
	Failer[T any] struct {
		flow.Base
		// FailOn is the number of call that fails.
		FailOn int
		// Err is returned by failed call. ErrMock is used if nil.
		Err error
		// Panic makes failed call panic instead of returning error.
		Panic bool
		calls int
	}

	// Publisher sends messages to its output port and finishes.
	Publisher struct {
		flow.Base
		Port     string
		Messages []pmt.Value
	}

	// Collector records messages received on its input port.
	Collector struct {
		flow.Base
		Port     string
		mu       sync.Mutex
		messages []pmt.Value
	}
)

// Started returns number of start hook calls.
func (h *Hooks) Started() int { return int(h.started.Load()) }

// Stopped returns number of stop hook calls.
func (h *Hooks) Stopped() int { return int(h.stopped.Load()) }

func (h *Hooks) start() error {
	h.started.Add(1)
	return h.StartErr
}

func (h *Hooks) stop() error {
	h.stopped.Add(1)
	return h.StopErr
}

// NewSource returns source of the vector.
func NewSource[T any](name string, data []T, tags ...tag.Tag) *Source[T] {
	return &Source[T]{
		Base: flow.NewBase(name, flow.None(), flow.Streams(1, flow.SizeOf[T]())),
		Data: data,
		Tags: tags,
	}
}

// Start implements flow.Block.
func (s *Source[T]) Start() error { return s.Hooks.start() }

// Stop implements flow.Block.
func (s *Source[T]) Stop() error { return s.Hooks.stop() }

// Work implements flow.Block.
func (s *Source[T]) Work(w *flow.Work) (flow.Result, error) {
	n := copy(flow.Items[T](w.Out[0])[:w.Requested], s.Data[s.pos:])
	written := w.ItemsWritten(0)
	for _, t := range s.Tags {
		if t.Offset >= written && t.Offset < written+uint64(n) {
			if err := w.AddTag(0, t); err != nil {
				return flow.Result{}, err
			}
		}
	}
	s.pos += n
	res := flow.Produce(n)
	if s.pos == len(s.Data) {
		return res.Finish(), nil
	}
	return res, nil
}

// NewSink returns sink.
func NewSink[T any](name string) *Sink[T] {
	return &Sink[T]{
		Base: flow.NewBase(name, flow.Streams(1, flow.SizeOf[T]()), flow.None()),
	}
}

// Start implements flow.Block.
func (s *Sink[T]) Start() error { return s.Hooks.start() }

// Stop implements flow.Block.
func (s *Sink[T]) Stop() error { return s.Hooks.stop() }

// Work implements flow.Block.
func (s *Sink[T]) Work(w *flow.Work) (flow.Result, error) {
	n := w.Consumable(0, 1)
	read := w.ItemsRead(0)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.data = append(s.data, flow.Items[T](w.In[0])[:n]...)
	s.tags = append(s.tags, w.Tags(0, read, read+uint64(n))...)
	return flow.Produce(0, n), nil
}

// Data returns collected items.
func (s *Sink[T]) Data() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]T(nil), s.data...)
}

// Tags returns collected tags.
func (s *Sink[T]) Tags() []tag.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tag.Tag(nil), s.tags...)
}

// Calls returns number of work calls.
func (s *Sink[T]) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// NewCopy returns copy block.
func NewCopy[T any](name string) *Copy[T] {
	size := flow.SizeOf[T]()
	c := &Copy[T]{
		Base: flow.NewBase(name, flow.Streams(1, size), flow.Streams(1, size)),
	}
	c.SetFixedRate(1, 1)
	return c
}

// Start implements flow.Block.
func (c *Copy[T]) Start() error { return c.Hooks.start() }

// Stop implements flow.Block.
func (c *Copy[T]) Stop() error { return c.Hooks.stop() }

// Work implements flow.Block.
func (c *Copy[T]) Work(w *flow.Work) (flow.Result, error) {
	n := passThrough[T](w)
	return flow.Produce(n, n), nil
}

func passThrough[T any](w *flow.Work) int {
	n := min(w.Requested, w.Consumable(0, 1))
	return copy(flow.Items[T](w.Out[0])[:n], flow.Items[T](w.In[0]))
}

// NewHead returns block that passes n items.
func NewHead[T any](name string, n int) *Head[T] {
	size := flow.SizeOf[T]()
	h := &Head[T]{
		Base: flow.NewBase(name, flow.Streams(1, size), flow.Streams(1, size)),
		N:    n,
		left: n,
	}
	h.SetFixedRate(1, 1)
	return h
}

// Work implements flow.Block.
func (h *Head[T]) Work(w *flow.Work) (flow.Result, error) {
	n := min(w.Requested, w.Consumable(0, 1), h.left)
	copy(flow.Items[T](w.Out[0])[:n], flow.Items[T](w.In[0]))
	h.left -= n
	res := flow.Produce(n, n)
	if h.left == 0 {
		return res.Finish(), nil
	}
	return res, nil
}

// NewKeepOneInN returns decimating block.
func NewKeepOneInN[T any](name string, n int) *KeepOneInN[T] {
	size := flow.SizeOf[T]()
	k := &KeepOneInN[T]{
		Base: flow.NewBase(name, flow.Streams(1, size), flow.Streams(1, size)),
		N:    n,
	}
	k.SetFixedRate(1, n)
	return k
}

// Work implements flow.Block.
func (k *KeepOneInN[T]) Work(w *flow.Work) (flow.Result, error) {
	n := min(w.Requested, w.Consumable(0, 1)/k.N)
	in, out := flow.Items[T](w.In[0]), flow.Items[T](w.Out[0])
	for i := 0; i < n; i++ {
		out[i] = in[i*k.N]
	}
	return flow.Result{Produced: n}, nil
}

// NewDelay returns block that delays stream by n items.
func NewDelay[T any](name string, n int) *Delay[T] {
	size := flow.SizeOf[T]()
	d := &Delay[T]{
		Base:    flow.NewBase(name, flow.Streams(1, size), flow.Streams(1, size)),
		pending: n,
	}
	d.SetSampleDelay(0, n)
	return d
}

// Forecast implements flow.Block. Delayed items need no input.
func (d *Delay[T]) Forecast(noutput int, required []int) {
	required[0] = max(noutput-d.pending, 0)
}

// Work implements flow.Block.
func (d *Delay[T]) Work(w *flow.Work) (flow.Result, error) {
	out := flow.Items[T](w.Out[0])
	if d.pending > 0 {
		n := min(w.Requested, d.pending)
		var zero T
		for i := range out[:n] {
			out[i] = zero
		}
		d.pending -= n
		return flow.Produce(n, 0), nil
	}
	n := passThrough[T](w)
	return flow.Produce(n, n), nil
}

// NewMovingSum returns block that sums the window of history items.
func NewMovingSum[T Number](name string, history int) *MovingSum[T] {
	size := flow.SizeOf[T]()
	m := &MovingSum[T]{
		Base: flow.NewBase(name, flow.Streams(1, size), flow.Streams(1, size)),
	}
	m.SetHistory(history)
	m.SetFixedRate(1, 1)
	return m
}

// Work implements flow.Block.
func (m *MovingSum[T]) Work(w *flow.Work) (flow.Result, error) {
	h := m.Properties().History
	n := min(w.Requested, w.Consumable(0, h))
	in, out := flow.Items[T](w.In[0]), flow.Items[T](w.Out[0])
	for i := 0; i < n; i++ {
		var sum T
		for _, v := range in[i : i+h] {
			sum += v
		}
		out[i] = sum
	}
	return flow.Produce(n, n), nil
}

// NewAdder returns block that sums inputs.
func NewAdder[T Number](name string) *Adder[T] {
	size := flow.SizeOf[T]()
	a := &Adder[T]{
		Base: flow.NewBase(name, flow.NewSignature(1, flow.Unbounded, size), flow.Streams(1, size)),
	}
	a.SetFixedRate(1, 1)
	return a
}

// Work implements flow.Block.
func (a *Adder[T]) Work(w *flow.Work) (flow.Result, error) {
	n := w.Requested
	for i := range w.In {
		n = min(n, w.Consumable(i, 1))
	}
	out := flow.Items[T](w.Out[0])[:n]
	for i := range out {
		out[i] = 0
	}
	consumed := make([]int, len(w.In))
	for i := range w.In {
		for j, v := range flow.Items[T](w.In[i])[:n] {
			out[j] += v
		}
		consumed[i] = n
	}
	return flow.Produce(n, consumed...), nil
}

// NewFailer returns block that fails on the nth call.
func NewFailer[T any](name string, n int) *Failer[T] {
	size := flow.SizeOf[T]()
	f := &Failer[T]{
		Base:   flow.NewBase(name, flow.Streams(1, size), flow.Streams(1, size)),
		FailOn: n,
	}
	f.SetFixedRate(1, 1)
	return f
}

// Work implements flow.Block.
func (f *Failer[T]) Work(w *flow.Work) (flow.Result, error) {
	f.calls++
	if f.calls == f.FailOn {
		err := f.Err
		if err == nil {
			err = ErrMock
		}
		if f.Panic {
			panic(err)
		}
		return flow.Result{}, err
	}
	n := passThrough[T](w)
	return flow.Produce(n, n), nil
}

// NewPublisher returns block that publishes messages to the port.
func NewPublisher(name, port string, messages ...pmt.Value) *Publisher {
	p := &Publisher{
		Base:     flow.NewBase(name, flow.None(), flow.None()),
		Port:     port,
		Messages: messages,
	}
	p.RegisterMessageOutput(port)
	return p
}

// Work implements flow.Block.
func (p *Publisher) Work(*flow.Work) (flow.Result, error) {
	for _, m := range p.Messages {
		if err := p.Publish(p.Port, m); err != nil {
			return flow.Result{}, err
		}
	}
	return flow.WorkDone, nil
}

// NewCollector returns block that collects messages of the port.
func NewCollector(name, port string) *Collector {
	c := &Collector{
		Base: flow.NewBase(name, flow.None(), flow.None()),
		Port: port,
	}
	c.RegisterMessageInput(port, func(v pmt.Value) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.messages = append(c.messages, v)
		return nil
	})
	return c
}

// Work implements flow.Block. Collector only handles messages.
func (c *Collector) Work(*flow.Work) (flow.Result, error) {
	return flow.WorkDone, nil
}

// Messages returns received messages.
func (c *Collector) Messages() []pmt.Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]pmt.Value(nil), c.messages...)
}
