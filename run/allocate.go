package run

import (
	"fmt"

	"pipelined.dev/flow"
	"pipelined.dev/flow/buffer"
	"pipelined.dev/flow/run/internal/runtime"
)

// allocate creates buffers of every connected output, executors of every
// block and partitions.
func (r *Run) allocate(g *flow.Graph, groups [][]flow.Block) error {
	storage, err := r.cfg.storage()
	if err != nil {
		return err
	}
	inputs := make(map[flow.Block][]*buffer.Reader)
	outputs := make(map[flow.Block][]*buffer.Buffer)
	for _, b := range g.Blocks() {
		inputs[b] = make([]*buffer.Reader, len(g.Inputs(b)))
	}
	for _, b := range g.Blocks() {
		edges := g.Outputs(b)
		nout := 0
		for _, e := range edges {
			nout = max(nout, e.Src.Port+1)
		}
		outputs[b] = make([]*buffer.Buffer, nout)
		for port := 0; port < nout; port++ {
			var consumers []flow.Endpoint
			for _, e := range edges {
				if e.Src.Port == port {
					consumers = append(consumers, e.Dst)
				}
			}
			capacity, minimum := r.capacity(b, consumers, inputs)
			buf, err := buffer.New(
				b.BaseBlock().Output().ItemSize(port),
				capacity,
				buffer.WithStorage(storage),
				buffer.WithMinimum(minimum),
			)
			if err != nil {
				return fmt.Errorf("block %v port %d: %w", b.BaseBlock(), port, err)
			}
			r.buffers = append(r.buffers, buf)
			outputs[b][port] = buf
			for _, c := range consumers {
				history := c.Block.BaseBlock().Properties().History
				inputs[c.Block][c.Port] = buf.AddReader(history)
			}
			r.logger.WithField("block", b.BaseBlock().String()).
				WithField("port", port).
				WithField("capacity", buf.Capacity()).
				WithField("storage", buf.Storage()).
				Debug("buffer allocated")
		}
	}

	cfg := runtime.Config{
		MaxOutputItems: r.cfg.MaxOutputItems,
		Backoff:        r.cfg.Backoff,
		Logger:         r.logger,
	}
	for _, b := range g.Blocks() {
		base := b.BaseBlock()
		cfg.Meter = r.metrics.Meter(base.String(), base.ID())
		e := runtime.NewExecutor(b, runtime.NewDetail(inputs[b], outputs[b]), cfg)
		r.executors[b] = e
		r.router.Add(e)
	}
	for _, edge := range g.Edges() {
		r.executors[edge.Src.Block].Link(r.executors[edge.Dst.Block])
	}
	for _, edge := range g.MessageEdges() {
		if err := r.router.Route(edge); err != nil {
			return err
		}
	}
	for i, group := range groups {
		executors := make([]*runtime.Executor, 0, len(group))
		for _, b := range group {
			executors = append(executors, r.executors[b])
		}
		r.partitions = append(r.partitions, runtime.NewPartition(i, executors, r.logger))
	}
	return nil
}

// capacity returns capacity of the output buffer and the least capacity
// it can be reduced to. Buffer holds two calls of the producer and two
// calls of every consumer with its history.
func (r *Run) capacity(producer flow.Block, consumers []flow.Endpoint, inputs map[flow.Block][]*buffer.Reader) (int, int) {
	props := producer.BaseBlock().Properties()
	capacity := max(r.cfg.BufferItems, 2*runtime.MaxOutputItems(props, r.cfg.MaxOutputItems))
	minimum := 2 * runtime.LowestOutputItems(props)
	for _, c := range consumers {
		cprops := c.Block.BaseBlock().Properties()
		required := make([]int, len(inputs[c.Block]))
		c.Block.Forecast(runtime.MaxOutputItems(cprops, r.cfg.MaxOutputItems), required)
		capacity = max(capacity, 2*required[c.Port]+cprops.History)
		c.Block.Forecast(runtime.LowestOutputItems(cprops), required)
		minimum = max(minimum, required[c.Port]+cprops.History)
	}
	return capacity, min(minimum, capacity)
}
