package runtime

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"pipelined.dev/flow"
	"pipelined.dev/flow/log"
	"pipelined.dev/flow/metric"
)

const (
	// DefaultMaxOutputItems limits items requested per work call if
	// neither block nor config set it.
	DefaultMaxOutputItems = 8192
	// DefaultBackoff is the idle wait of the block that made no progress.
	DefaultBackoff = 250 * time.Millisecond
)

type (
	// Config of the executor.
	Config struct {
		MaxOutputItems int
		Backoff        time.Duration
		Logger         log.Logger
		Meter          *metric.Meter
	}

	// Executor runs a single block. It repeatedly decides how many items
	// the block can produce given the space of its outputs and the items
	// available on its inputs, calls Work and commits the result.
	Executor struct {
		block flow.Block
		base  *flow.Base
		name  string
		id    string
		props flow.Properties

		detail    *Detail
		work      *flow.Work
		maxOutput int
		backoff   time.Duration
		logger    log.Logger
		meter     *metric.Meter

		upstream   []*Executor
		downstream []*Executor
		router     *Router
		queue      queue
		wake       chan struct{}

		state   atomic.Int32
		started bool
		// messageOnly blocks have no streams and only handle messages.
		messageOnly bool
		// unaligned is the number of items left to reach the aligned
		// output offset.
		unaligned int

		required   []int
		available  []int
		inputDone  []bool
		readBefore []uint64
		produced   []int
		consumed   []int
		perf       *performance
	}
)

// NewExecutor returns executor of the block bound to detail.
func NewExecutor(b flow.Block, d *Detail, cfg Config) *Executor {
	base := b.BaseBlock()
	props := base.Properties()
	nin, nout := len(d.Inputs), len(d.Outputs)
	d.block = base.String()

	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Silent()
	}

	e := &Executor{
		block:       b,
		base:        base,
		name:        base.String(),
		id:          base.ID(),
		props:       props,
		detail:      d,
		work:        flow.NewWork(d),
		maxOutput:   MaxOutputItems(props, cfg.MaxOutputItems),
		backoff:     backoff,
		logger:      logger.WithField("block", base.String()).WithField("id", base.ID()),
		meter:       cfg.Meter,
		wake:        make(chan struct{}, 1),
		messageOnly: nin == 0 && nout == 0 && len(base.MessageInputs()) > 0,
		required:    make([]int, nin),
		available:   make([]int, nin),
		inputDone:   make([]bool, nin),
		readBefore:  make([]uint64, nin),
		produced:    make([]int, nout),
		consumed:    make([]int, nin),
		perf:        &performance{},
	}
	e.work.In = make([][]byte, nin)
	e.work.Available = make([]int, nin)
	e.work.Out = make([][]byte, nout)
	return e
}

// Link registers the consumer of executor outputs.
func (e *Executor) Link(consumer *Executor) {
	for _, known := range e.downstream {
		if known == consumer {
			return
		}
	}
	e.downstream = append(e.downstream, consumer)
	consumer.upstream = append(consumer.upstream, e)
}

// Block returns the executed block.
func (e *Executor) Block() flow.Block { return e.block }

// Name returns name of the block.
func (e *Executor) Name() string { return e.name }

// ID returns id of the block.
func (e *Executor) ID() string { return e.id }

// Detail returns buffers of the block.
func (e *Executor) Detail() *Detail { return e.detail }

// State returns state of the block.
func (e *Executor) State() State {
	return State(e.state.Load())
}

// Snapshot returns the state of the block streams.
func (e *Executor) Snapshot() Snapshot {
	s := e.detail.snapshot()
	s.State = e.State()
	return s
}

func (e *Executor) setState(s State) {
	e.state.Store(int32(s))
	e.meter.State(int(s))
}

// notify wakes up the executor. Notifications are coalesced.
func (e *Executor) notify() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Executor) notifyNeighbours() {
	for _, u := range e.upstream {
		u.notify()
	}
	for _, d := range e.downstream {
		d.notify()
	}
}

// Run executes the block until it's finished, fails or context is done.
// Start hook must be called before. Stop hook is called when Run returns.
func (e *Executor) Run(ctx context.Context) (err error) {
	e.setState(Running)
	defer func() {
		if stopErr := e.stop(); stopErr != nil && err == nil {
			err = stopErr
		}
		e.exit(ctx, err)
	}()
	for {
		if ctx.Err() != nil {
			return nil
		}
		handled, err := e.dispatch()
		if err != nil {
			return err
		}
		progress, err := e.step()
		if err != nil {
			return err
		}
		if e.State() == Finished {
			return nil
		}
		if !handled && !progress {
			e.wait(ctx)
		}
	}
}

// exit releases streams of the block so neighbours can finish.
func (e *Executor) exit(ctx context.Context, err error) {
	for _, r := range e.detail.Inputs {
		r.SetDone()
	}
	for _, b := range e.detail.Outputs {
		b.SetDone()
	}
	e.queue.close()
	switch {
	case err != nil:
		e.setState(Failed)
	case e.State() != Finished && ctx.Err() != nil:
		e.setState(Stopped)
	}
	e.notifyNeighbours()
	if e.router != nil {
		e.router.finished(e)
	}
	e.logger.WithField("state", e.State()).Debug("block exited")
}

// abort marks block that never ran.
func (e *Executor) abort(s State) {
	e.exit(context.Background(), nil)
	e.setState(s)
}

// wait blocks until executor is notified, backoff timer fires or context
// is done.
func (e *Executor) wait(ctx context.Context) {
	t := time.NewTimer(e.backoff)
	defer t.Stop()
	select {
	case <-e.wake:
	case <-t.C:
	case <-ctx.Done():
	}
}

// dispatch calls handlers of all queued messages.
func (e *Executor) dispatch() (bool, error) {
	messages := e.queue.drain()
	for _, m := range messages {
		h, ok := e.base.MessageHandler(m.port)
		if !ok {
			continue
		}
		if err := call(func() error { return h(m.value) }); err != nil {
			return true, e.blockError(PhaseMessage, fmt.Errorf("port %q: %w", m.port, err))
		}
		e.meter.Message()
	}
	return len(messages) > 0, nil
}

// step makes a single scheduling round and reports if any progress was
// made.
func (e *Executor) step() (bool, error) {
	if e.State() == Draining {
		return e.drain(), nil
	}
	if e.messageOnly {
		// senders are checked first, their messages are already queued
		if (e.router == nil || e.router.sendersDone(e)) && e.queue.empty() {
			e.finish()
			return true, nil
		}
		return false, nil
	}
	if len(e.detail.Outputs) > 0 && e.outputsAbandoned() {
		e.logger.Debug("all readers are done")
		e.done()
		return true, nil
	}
	// done flags are loaded before availability, so availability of
	// finished streams is final
	for i, r := range e.detail.Inputs {
		e.inputDone[i] = r.Buffer().Done()
	}
	n, ok := e.outputItems()
	if !ok {
		return false, nil
	}
	if len(e.detail.Inputs) > 0 {
		if n, ok = e.inputItems(n); !ok {
			if e.endOfStream() {
				e.logger.Debug("end of stream")
				e.done()
				return true, nil
			}
			return false, nil
		}
	}
	return e.call(n)
}

// outputsAbandoned reports whether nobody reads block outputs.
func (e *Executor) outputsAbandoned() bool {
	for _, b := range e.detail.Outputs {
		if !b.ReadersDone() {
			return false
		}
	}
	return true
}

func (e *Executor) lowest() int {
	return LowestOutputItems(e.props)
}

// MaxOutputItems returns the greatest number of items the block is asked
// for. Limit is used if block doesn't set its own.
func MaxOutputItems(props flow.Properties, limit int) int {
	if props.MaxOutputItems > 0 {
		return props.MaxOutputItems
	}
	if limit <= 0 {
		limit = DefaultMaxOutputItems
	}
	return max(roundDown(limit, props.OutputMultiple), LowestOutputItems(props))
}

// LowestOutputItems returns the least number of items the block can be
// asked for.
func LowestOutputItems(props flow.Properties) int {
	m := props.OutputMultiple
	return max(roundUp(props.MinOutputItems, m), m)
}

// outputItems returns number of items that fit into outputs, rounded to
// the output multiple and adjusted to alignment.
func (e *Executor) outputItems() (int, bool) {
	n := e.maxOutput
	for _, b := range e.detail.Outputs {
		n = min(n, b.Space())
	}
	n = roundDown(n, e.props.OutputMultiple)
	if n < e.lowest() {
		return 0, false
	}
	if a := e.props.Alignment; e.props.OutputMultiple == 1 && a > 1 && len(e.detail.Outputs) > 0 {
		switch {
		case e.unaligned > 0:
			n = min(n, e.unaligned)
		case n >= a:
			n = roundDown(n, a)
		}
	}
	return n, true
}

// inputItems reduces n until the forecast is satisfied by available
// input.
func (e *Executor) inputItems(n int) (int, bool) {
	for i, r := range e.detail.Inputs {
		e.available[i] = r.Available() + r.History() - 1
	}
	m := e.props.OutputMultiple
	lowest := e.lowest()
	if e.props.FixedRate {
		least := e.detail.Inputs[0].Available()
		for _, r := range e.detail.Inputs[1:] {
			least = min(least, r.Available())
		}
		n = roundDown(min(n, e.props.Rate.InputToOutput(least)), m)
	}
	for n >= lowest {
		e.block.Forecast(n, e.required)
		if e.sufficient() {
			return n, true
		}
		if n == lowest {
			break
		}
		n = max(roundDown(n/2, m), lowest)
	}
	return 0, false
}

func (e *Executor) sufficient() bool {
	for i, req := range e.required {
		if req > e.available[i] {
			return false
		}
	}
	return true
}

// endOfStream reports whether the least request can't be satisfied
// because one of upstream blocks is done.
func (e *Executor) endOfStream() bool {
	e.block.Forecast(e.lowest(), e.required)
	for i, req := range e.required {
		if e.inputDone[i] && req > e.available[i] {
			return true
		}
	}
	return false
}

// call invokes work for n output items and commits the result.
func (e *Executor) call(n int) (bool, error) {
	w := e.work
	w.Requested = n
	for i, r := range e.detail.Inputs {
		region, available := r.Region(r.Available())
		w.In[i] = region
		w.Available[i] = available + r.History() - 1
		e.readBefore[i] = r.ItemsRead()
	}
	for j, b := range e.detail.Outputs {
		w.Out[j], _ = b.WriteRegion(n)
	}
	inputFullness := e.inputFullness()

	startedAt := time.Now()
	var res flow.Result
	err := call(func() (err error) {
		res, err = e.block.Work(w)
		return err
	})
	elapsed := time.Since(startedAt)
	if err != nil {
		return false, e.blockError(PhaseWork, err)
	}
	if e.detail.violation != nil {
		return false, e.detail.violation
	}
	if err := e.account(res, n); err != nil {
		return false, err
	}

	e.propagateTags()
	var produced, consumed int
	for j, b := range e.detail.Outputs {
		b.CommitWrite(e.produced[j])
		produced = max(produced, e.produced[j])
	}
	for i, r := range e.detail.Inputs {
		r.Commit(e.consumed[i])
		r.Buffer().PruneTags()
		consumed = max(consumed, e.consumed[i])
	}
	if len(e.detail.Outputs) == 0 {
		produced = res.Produced
	}
	if a := e.props.Alignment; a > 1 && len(e.detail.Outputs) > 0 {
		e.unaligned = int((uint64(a) - e.detail.Outputs[0].ItemsWritten()%uint64(a)) % uint64(a))
	}

	e.measure(produced, consumed, elapsed, inputFullness)
	if produced > 0 {
		for _, d := range e.downstream {
			d.notify()
		}
	}
	if consumed > 0 {
		for _, u := range e.upstream {
			u.notify()
		}
	}
	if res.Done {
		e.done()
		return true, nil
	}
	return produced > 0 || consumed > 0, nil
}

// account validates result of work call and fills produced and consumed
// items per port.
func (e *Executor) account(res flow.Result, n int) error {
	nin, nout := len(e.detail.Inputs), len(e.detail.Outputs)
	if res.PerOutput != nil && len(res.PerOutput) != nout {
		return e.detail.violate("produced on %d outputs, block has %d", len(res.PerOutput), nout)
	}
	if res.PerOutput == nil && (res.Produced < 0 || res.Produced > n) {
		return e.detail.violate("produced %d items, requested %d", res.Produced, n)
	}
	for j := range e.produced {
		p := res.ProducedOn(j)
		if p < 0 || p > n {
			return e.detail.violate("produced %d items on output %d, requested %d", p, j, n)
		}
		e.produced[j] = p
	}

	switch {
	case res.Consumed == nil && nin > 0 && !e.props.FixedRate:
		return e.detail.violate("consumption not reported")
	case res.Consumed == nil:
		produced := res.Produced
		if nout > 0 {
			produced = e.produced[0]
		}
		for i := range e.consumed {
			e.consumed[i] = e.props.Rate.OutputToInput(produced)
		}
	case len(res.Consumed) != nin:
		return e.detail.violate("consumed on %d inputs, block has %d", len(res.Consumed), nin)
	default:
		copy(e.consumed, res.Consumed)
	}
	for i, c := range e.consumed {
		if limit := e.work.Available[i] - e.detail.Inputs[i].History() + 1; c < 0 || c > limit {
			return e.detail.violate("consumed %d items on input %d, available %d", c, i, limit)
		}
	}
	return nil
}

// done is called when block won't produce anymore.
func (e *Executor) done() {
	for _, r := range e.detail.Inputs {
		r.SetDone()
	}
	for _, b := range e.detail.Outputs {
		b.SetDone()
	}
	e.setState(Draining)
	e.notifyNeighbours()
	e.drain()
}

// drain finishes the block if its outputs are consumed.
func (e *Executor) drain() bool {
	for _, b := range e.detail.Outputs {
		if !b.Drained() {
			return false
		}
	}
	e.finish()
	return true
}

func (e *Executor) finish() {
	e.setState(Finished)
	e.logger.Debug("block finished")
}

func roundDown(n, m int) int {
	return n / m * m
}

func roundUp(n, m int) int {
	return (n + m - 1) / m * m
}
