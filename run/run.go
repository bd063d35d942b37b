// Package run executes flow graphs.
//
// Graph is finalized when the run is created: buffers are allocated for
// every connected output and every block gets its executor. Each partition
// of the graph is executed independently, so failure of one partition
// doesn't stop the others.
package run

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"

	"pipelined.dev/flow"
	"pipelined.dev/flow/buffer"
	"pipelined.dev/flow/log"
	"pipelined.dev/flow/metric"
	"pipelined.dev/flow/run/internal/runtime"
)

type (
	// Run executes the graph asynchronously.
	Run struct {
		id       string
		cfg      Config
		logger   log.Logger
		metrics  *metric.Metrics
		registry Registry

		router     *runtime.Router
		partitions []*runtime.Partition
		executors  map[flow.Block]*runtime.Executor
		buffers    []*buffer.Buffer

		mu       sync.Mutex
		state    state
		cancelFn context.CancelFunc
		failed   map[int]error
		group    errgroup.Group
		done     chan struct{}
		err      error
	}

	// Option provides a way to set functional parameters to run.
	Option func(*Run) error

	// BlockError is returned when block callback fails.
	BlockError = runtime.BlockError
	// ContractError is returned when block breaks the work contract.
	ContractError = runtime.ContractError
	// State of the block execution.
	State = runtime.State
	// Performance holds rolling averages of block work calls.
	Performance = runtime.Performance
)

// Block states.
const (
	Ready    = runtime.Ready
	Running  = runtime.Running
	Draining = runtime.Draining
	Finished = runtime.Finished
	Stopped  = runtime.Stopped
	Failed   = runtime.Failed
)

var (
	// ErrInvalidState is returned if run method cannot be executed at
	// this moment.
	ErrInvalidState = errors.New("invalid state")
	// ErrUnknownBlock is returned when block doesn't belong to the run.
	ErrUnknownBlock = errors.New("unknown block")
	// ErrPanic is wrapped by errors of block callbacks that panicked.
	ErrPanic = runtime.ErrPanic
)

// WithLogger sets logger to the run. If this option is not provided,
// silent logger is used.
func WithLogger(logger log.Logger) Option {
	return func(r *Run) error {
		r.logger = logger
		return nil
	}
}

// WithConfig sets config of the run.
func WithConfig(cfg Config) Option {
	return func(r *Run) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		r.cfg = cfg
		return nil
	}
}

// WithMetrics sets metrics of the run. If this option is not provided,
// metrics are created with configured namespace.
func WithMetrics(m *metric.Metrics) Option {
	return func(r *Run) error {
		r.metrics = m
		return nil
	}
}

// New validates the graph and allocates its buffers. Returned run is
// ready to start.
func New(g *flow.Graph, options ...Option) (*Run, error) {
	r := &Run{
		id:        xid.New().String(),
		cfg:       DefaultConfig(),
		logger:    log.Silent(),
		router:    runtime.NewRouter(),
		executors: make(map[flow.Block]*runtime.Executor),
		state:     ready{},
		failed:    make(map[int]error),
		done:      make(chan struct{}),
	}
	for _, option := range options {
		if err := option(r); err != nil {
			return nil, err
		}
	}
	if r.metrics == nil {
		r.metrics = metric.New(r.cfg.MetricsNamespace)
	}
	r.logger = r.logger.WithField("run", r.id)

	if err := g.Validate(); err != nil {
		return nil, err
	}
	groups, err := g.Partition()
	if err != nil {
		return nil, err
	}
	r.registry = newRegistry(g.Blocks())
	if err := r.allocate(g, groups); err != nil {
		r.release()
		return nil, err
	}
	return r, nil
}

// ID returns id of the run.
func (r *Run) ID() string { return r.id }

// Start executes all partitions. Stop or Wait must be called afterwards.
func (r *Run) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.apply(start); err != nil {
		return err
	}
	ctx, r.cancelFn = context.WithCancel(ctx)
	r.logger.WithField("partitions", len(r.partitions)).Debug("run started")
	for _, p := range r.partitions {
		p := p
		r.group.Go(func() error {
			err := p.Run(ctx)
			if err != nil {
				r.mu.Lock()
				r.failed[p.Index] = err
				r.mu.Unlock()
			}
			return err
		})
	}
	go r.wait()
	return nil
}

// wait collects errors of all failed partitions once every partition is
// done. Group only reports the first one.
func (r *Run) wait() {
	err := r.group.Wait()
	r.cancelFn()
	r.router.Remove()
	r.release()

	r.mu.Lock()
	if err != nil {
		var errs errorList
		for i := range r.partitions {
			if perr, ok := r.failed[i]; ok {
				errs = append(errs, perr)
			}
		}
		err = errs.ret()
	}
	r.err = err
	r.apply(finish)
	r.mu.Unlock()
	r.logger.Debug("run done")
	close(r.done)
}

// Stop requests all blocks to stop. Use Wait to wait until they're done.
func (r *Run) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.apply(stop); err != nil {
		return err
	}
	r.cancelFn()
	return nil
}

// Wait blocks until all partitions are done and returns errors of failed
// partitions.
func (r *Run) Wait() error {
	r.mu.Lock()
	_, err := r.apply(wait)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	<-r.done
	return r.err
}

// Close releases buffers of the run that was never started. It must not
// be called while the run is executing. Closing a done run has no effect.
func (r *Run) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, err := r.apply(closing)
	if err != nil {
		return err
	}
	if _, ok := prev.(ready); ok {
		r.router.Remove()
		r.release()
		close(r.done)
		r.logger.Debug("run closed")
	}
	return nil
}

// Done returns a channel that's closed when run is done.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// State returns state of the block.
func (r *Run) State(b flow.Block) (State, error) {
	e, ok := r.executors[b]
	if !ok {
		return Ready, fmt.Errorf("%v: %w", b, ErrUnknownBlock)
	}
	return e.State(), nil
}

// Performance returns rolling averages of block work calls.
func (r *Run) Performance(b flow.Block) (Performance, error) {
	e, ok := r.executors[b]
	if !ok {
		return Performance{}, fmt.Errorf("%v: %w", b, ErrUnknownBlock)
	}
	return e.Performance(), nil
}

// Failed returns errors of failed partitions by partition index.
func (r *Run) Failed() map[int]error {
	r.mu.Lock()
	defer r.mu.Unlock()
	failed := make(map[int]error, len(r.failed))
	for i, err := range r.failed {
		failed[i] = err
	}
	return failed
}

// Partitions returns names of blocks of every partition in execution
// order.
func (r *Run) Partitions() [][]string {
	names := make([][]string, 0, len(r.partitions))
	for _, p := range r.partitions {
		blocks := make([]string, 0, len(p.Executors))
		for _, e := range p.Executors {
			blocks = append(blocks, e.Name())
		}
		names = append(names, blocks)
	}
	return names
}

// Registry returns blocks of the run.
func (r *Run) Registry() Registry {
	return r.registry
}

// Metrics returns metrics of the run.
func (r *Run) Metrics() *metric.Metrics {
	return r.metrics
}

// Gatherer returns prometheus gatherer of run metrics.
func (r *Run) Gatherer() prometheus.Gatherer {
	return r.metrics.Registry()
}

// release closes allocated buffers.
func (r *Run) release() {
	for _, b := range r.buffers {
		if err := b.Close(); err != nil {
			r.logger.WithError(err).Warn("buffer release failed")
		}
	}
	r.buffers = nil
}
