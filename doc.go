/*
Package flow allows to build and execute streaming signal processing
graphs.

Concept

This package offers a scheduler for graphs of independently implemented
processing blocks. Every block consumes items from its input streams and
produces items to its output streams. Streams are ring buffers between an
output port of one block and input ports of its consumers:

    Source - block without inputs;
    Processor - block with both inputs and outputs;
    Sink - block without outputs.

It implies the following constraints:

    Every input is fed by exactly one output;
    An output can feed any number of inputs;
    Stream connections never form loops.

Blocks

Blocks embed Base and implement Work. Base holds port signatures and
scheduling properties: history, output multiple, alignment, rate, tag
propagation policy and output items bounds. Work is called with readable
regions of inputs and writable regions of outputs and returns Result that
tells how many items were consumed and produced:

    type Copy struct {
        flow.Base
    }

    func (c *Copy) Work(w *flow.Work) (flow.Result, error) {
        n := min(w.Requested, w.Available[0])
        copy(w.Out[0], w.In[0][:n*itemSize])
        return flow.Produce(n, n), nil
    }

Start and Stop hooks are called before the first and after the last Work
call. Blocks can also exchange messages through message ports. Messages
are values of pmt package and not coupled with items rate.

Graph

Blocks are connected into Graph:

    g := flow.NewGraph()
    err := g.Connect(source, 0, copy, 0)
    err = g.Connect(copy, 0, sink, 0)

Graph validates the usage of ports and splits blocks into partitions,
groups of blocks connected by streams. Every partition is executed
independently, error in one partition doesn't stop others.

Execution

Graph is executed by the run package:

    r, err := run.New(g)
    err = r.Start(ctx)
    err = r.Wait()

Every block is executed in its own goroutine until either of the following
things happen: the block is done and its outputs are drained; the run is
stopped; an error in any of blocks of the partition occurred.
*/
package flow
