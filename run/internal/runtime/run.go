package runtime

import (
	"context"
	"sync"

	"github.com/davecgh/go-spew/spew"

	"pipelined.dev/flow/log"
)

// Partition executes connected blocks. Blocks of different partitions
// don't share buffers, so failure of one partition doesn't affect others.
type Partition struct {
	Index int
	// Executors are ordered topologically.
	Executors []*Executor
	logger    log.Logger
}

// NewPartition returns partition of executors.
func NewPartition(index int, executors []*Executor, logger log.Logger) *Partition {
	if logger == nil {
		logger = log.Silent()
	}
	return &Partition{
		Index:     index,
		Executors: executors,
		logger:    logger.WithField("partition", index),
	}
}

// Run starts all blocks of the partition and waits until they're done.
// The first failure of any block cancels the partition.
func (p *Partition) Run(ctx context.Context) error {
	ctx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()

	if err := p.start(); err != nil {
		p.logger.WithError(err).Error("partition start failed")
		return err
	}
	p.logger.Debug("partition started")

	errChans := make([]<-chan error, 0, len(p.Executors))
	for _, e := range p.Executors {
		errChans = append(errChans, Run(ctx, e))
	}
	var errs errorList
	for err := range merge(errChans...) {
		cancelFn()
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		p.fail(errs)
	}
	p.logger.Debug("partition done")
	return errs.ret()
}

// start calls start hooks in topological order. If any of hooks failed,
// started blocks are stopped in reverse order and no block is executed.
func (p *Partition) start() error {
	for i, e := range p.Executors {
		err := e.start()
		if err == nil {
			continue
		}
		errs := errorList{err}
		for j := i - 1; j >= 0; j-- {
			if err := p.Executors[j].stop(); err != nil {
				errs = append(errs, err)
			}
		}
		for _, e := range p.Executors {
			e.abort(Failed)
		}
		return errs.ret()
	}
	return nil
}

// fail marks unfinished blocks failed and logs details of failed ones.
func (p *Partition) fail(errs errorList) {
	for _, err := range errs {
		p.logger.WithError(err).Error("block failed")
	}
	debug := log.DebugEnabled(p.logger)
	for _, e := range p.Executors {
		if e.State() == Finished {
			continue
		}
		e.setState(Failed)
		if debug {
			p.logger.WithField("block", e.name).WithField("id", e.id).Debug(spew.Sdump(e.Snapshot()))
		}
	}
}

// Run executes block in a separate goroutine. Returned channel is closed
// when execution is done.
func Run(ctx context.Context, e *Executor) <-chan error {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		if err := e.Run(ctx); err != nil {
			e.logger.WithError(err).Debug("block failed")
			errc <- err
		}
	}()
	return errc
}

// merge error channels into a single one that is closed when all of them
// are closed.
func merge(errChans ...<-chan error) <-chan error {
	out := make(chan error, len(errChans))
	var wg sync.WaitGroup
	wg.Add(len(errChans))
	for _, c := range errChans {
		go func(c <-chan error) {
			defer wg.Done()
			for err := range c {
				out <- err
			}
		}(c)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
