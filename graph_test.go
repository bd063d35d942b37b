package flow_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/flow"
	"pipelined.dev/flow/pmt"
)

type testBlock struct {
	flow.Base
}

func (*testBlock) Work(*flow.Work) (flow.Result, error) {
	return flow.WorkDone, nil
}

func newBlock(name string, inputs, outputs int) *testBlock {
	return &testBlock{
		Base: flow.NewBase(name, flow.Streams(inputs, 4), flow.Streams(outputs, 4)),
	}
}

func names(blocks []flow.Block) []string {
	result := make([]string, 0, len(blocks))
	for _, b := range blocks {
		result = append(result, b.BaseBlock().Name())
	}
	return result
}

func partitionNames(t *testing.T, g *flow.Graph) [][]string {
	t.Helper()
	partitions, err := g.Partition()
	require.NoError(t, err)
	result := make([][]string, 0, len(partitions))
	for _, p := range partitions {
		result = append(result, names(p))
	}
	return result
}

func TestConnect(t *testing.T) {
	src := newBlock("src", 0, 2)
	dst := newBlock("dst", 1, 0)
	wide := &testBlock{Base: flow.NewBase("wide", flow.Streams(1, 8), flow.None())}

	testConnect := func(src flow.Block, srcPort int, dst flow.Block, dstPort int, expected error) func(*testing.T) {
		return func(t *testing.T) {
			g := flow.NewGraph()
			require.NoError(t, g.Connect(newBlock("other", 0, 1), 0, dst, 0))
			err := g.Connect(src, srcPort, dst, dstPort)
			var topologyErr *flow.TopologyError
			require.ErrorAs(t, err, &topologyErr)
			assert.ErrorIs(t, err, expected)
		}
	}

	t.Run("ok", func(t *testing.T) {
		g := flow.NewGraph()
		require.NoError(t, g.Connect(src, 0, dst, 0))
		assert.Equal(t, []flow.Edge{{
			Src: flow.Endpoint{Block: src, Port: 0},
			Dst: flow.Endpoint{Block: dst, Port: 0},
		}}, g.Edges())
		assert.Equal(t, []string{"src", "dst"}, names(g.Blocks()))
	})
	t.Run("source port out of range", testConnect(src, 2, newBlock("d", 1, 0), 0, flow.ErrPortRange))
	t.Run("destination port out of range", testConnect(src, 0, newBlock("d", 1, 0), 1, flow.ErrPortRange))
	t.Run("destination connected", testConnect(src, 1, dst, 0, flow.ErrPortConnected))
	t.Run("item size", func(t *testing.T) {
		g := flow.NewGraph()
		err := g.Connect(src, 0, wide, 0)
		assert.ErrorIs(t, err, flow.ErrItemSize)
		assert.Empty(t, g.Edges())
	})
	t.Run("disconnect", func(t *testing.T) {
		g := flow.NewGraph()
		require.NoError(t, g.Connect(src, 0, dst, 0))
		assert.ErrorIs(t, g.Disconnect(src, 1, dst, 0), flow.ErrNotConnected)
		require.NoError(t, g.Disconnect(src, 0, dst, 0))
		assert.Empty(t, g.Edges())
		assert.Empty(t, g.Blocks())
		// port is free again
		assert.NoError(t, g.Connect(src, 1, dst, 0))
	})
	t.Run("fan out", func(t *testing.T) {
		g := flow.NewGraph()
		d1, d2 := newBlock("d1", 1, 0), newBlock("d2", 1, 0)
		require.NoError(t, g.Connect(src, 0, d1, 0))
		require.NoError(t, g.Connect(src, 0, d2, 0))
		assert.Len(t, g.Outputs(src), 2)
		assert.Len(t, g.Inputs(d2), 1)
	})
}

func TestValidate(t *testing.T) {
	type connection struct {
		src     flow.Block
		srcPort int
		dst     flow.Block
		dstPort int
	}

	testValidate := func(expected error, connections ...connection) func(*testing.T) {
		return func(t *testing.T) {
			g := flow.NewGraph()
			for _, c := range connections {
				require.NoError(t, g.Connect(c.src, c.srcPort, c.dst, c.dstPort))
			}
			err := g.Validate()
			if expected == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, expected)
		}
	}

	src, sink := newBlock("src", 0, 1), newBlock("sink", 1, 0)
	adder := &testBlock{Base: flow.NewBase("adder", flow.NewSignature(1, flow.Unbounded, 4), flow.Streams(1, 4))}
	mux := &testBlock{Base: flow.NewBase("mux", flow.NewSignature(2, 3, 4), flow.Streams(1, 4))}
	a, b := newBlock("a", 1, 1), newBlock("b", 1, 1)

	t.Run("ok", testValidate(nil,
		connection{src, 0, a, 0},
		connection{a, 0, sink, 0},
	))
	t.Run("unbounded", testValidate(nil,
		connection{src, 0, adder, 0},
		connection{src, 0, adder, 1},
		connection{src, 0, adder, 2},
		connection{adder, 0, sink, 0},
	))
	t.Run("non contiguous", testValidate(flow.ErrNonContiguous,
		connection{src, 0, mux, 0},
		connection{src, 0, mux, 2},
		connection{mux, 0, sink, 0},
	))
	t.Run("too few inputs", testValidate(flow.ErrPortCount,
		connection{src, 0, mux, 0},
		connection{mux, 0, sink, 0},
	))
	t.Run("unconnected output", testValidate(flow.ErrPortCount,
		connection{src, 0, a, 0},
	))
	t.Run("loop", testValidate(flow.ErrLoop,
		connection{src, 0, adder, 0},
		connection{adder, 0, a, 0},
		connection{a, 0, adder, 1},
	))
	t.Run("loop without sources", testValidate(flow.ErrLoop,
		connection{a, 0, b, 0},
		connection{b, 0, a, 0},
	))
	t.Run("self loop", func(t *testing.T) {
		g := flow.NewGraph()
		require.NoError(t, g.Connect(a, 0, a, 0))
		_, err := g.Partition()
		assert.ErrorIs(t, err, flow.ErrLoop)
		assert.EqualError(t, err, "block a: flow graph has loops")
	})
	t.Run("empty", func(t *testing.T) {
		assert.ErrorIs(t, flow.NewGraph().Validate(), flow.ErrEmptyGraph)
	})
	t.Run("invalid properties", func(t *testing.T) {
		block := newBlock("invalid", 1, 1)
		block.SetOutputMultiple(8)
		block.SetMaxOutputItems(4)
		testValidate(flow.ErrInvalidProperties,
			connection{src, 0, block, 0},
			connection{block, 0, sink, 0},
		)(t)
	})
	t.Run("one to one", func(t *testing.T) {
		block := &testBlock{Base: flow.NewBase("split", flow.Streams(1, 4), flow.Streams(2, 4))}
		block.SetTagPolicy(flow.TagsOneToOne)
		testValidate(flow.ErrInvalidProperties,
			connection{src, 0, block, 0},
			connection{block, 0, sink, 0},
			connection{block, 1, newBlock("sink2", 1, 0), 0},
		)(t)
	})
	t.Run("multiple errors", func(t *testing.T) {
		g := flow.NewGraph()
		m := &testBlock{Base: flow.NewBase("mux", flow.NewSignature(2, 3, 4), flow.Streams(1, 4))}
		require.NoError(t, g.Connect(src, 0, m, 0))
		require.NoError(t, g.Connect(a, 0, b, 0))
		require.NoError(t, g.Connect(b, 0, a, 0))
		err := g.Validate()
		assert.ErrorIs(t, err, flow.ErrPortCount)
		assert.ErrorIs(t, err, flow.ErrLoop)
		var topologyErr *flow.TopologyError
		require.True(t, errors.As(err, &topologyErr))
		assert.Equal(t, "mux", topologyErr.Block)
	})
}

func TestPartition(t *testing.T) {
	t.Run("chain", func(t *testing.T) {
		g := flow.NewGraph()
		src, a, b, sink := newBlock("src", 0, 1), newBlock("a", 1, 1), newBlock("b", 1, 1), newBlock("sink", 1, 0)
		// connected in reverse order
		require.NoError(t, g.Connect(b, 0, sink, 0))
		require.NoError(t, g.Connect(a, 0, b, 0))
		require.NoError(t, g.Connect(src, 0, a, 0))
		assert.Equal(t, [][]string{{"src", "a", "b", "sink"}}, partitionNames(t, g))
	})
	t.Run("siblings keep insertion order", func(t *testing.T) {
		g := flow.NewGraph()
		src := newBlock("src", 0, 1)
		s1, s2, s3 := newBlock("s1", 1, 0), newBlock("s2", 1, 0), newBlock("s3", 1, 0)
		require.NoError(t, g.Connect(src, 0, s1, 0))
		require.NoError(t, g.Connect(src, 0, s2, 0))
		require.NoError(t, g.Connect(src, 0, s3, 0))
		assert.Equal(t, [][]string{{"src", "s1", "s2", "s3"}}, partitionNames(t, g))
	})
	t.Run("sources first", func(t *testing.T) {
		g := flow.NewGraph()
		s1, s2 := newBlock("s1", 0, 1), newBlock("s2", 0, 1)
		adder := &testBlock{Base: flow.NewBase("adder", flow.NewSignature(1, flow.Unbounded, 4), flow.Streams(1, 4))}
		sink := newBlock("sink", 1, 0)
		require.NoError(t, g.Connect(s1, 0, adder, 0))
		require.NoError(t, g.Connect(adder, 0, sink, 0))
		require.NoError(t, g.Connect(s2, 0, adder, 1))
		assert.Equal(t, [][]string{{"s1", "s2", "adder", "sink"}}, partitionNames(t, g))
	})
	t.Run("diamond", func(t *testing.T) {
		g := flow.NewGraph()
		src, a, b := newBlock("src", 0, 1), newBlock("a", 1, 1), newBlock("b", 1, 1)
		adder := &testBlock{Base: flow.NewBase("adder", flow.NewSignature(1, flow.Unbounded, 4), flow.Streams(1, 4))}
		require.NoError(t, g.Connect(src, 0, a, 0))
		require.NoError(t, g.Connect(src, 0, b, 0))
		require.NoError(t, g.Connect(b, 0, adder, 1))
		require.NoError(t, g.Connect(a, 0, adder, 0))
		assert.Equal(t, [][]string{{"src", "a", "b", "adder"}}, partitionNames(t, g))
	})
	t.Run("independent", func(t *testing.T) {
		g := flow.NewGraph()
		require.NoError(t, g.Connect(newBlock("src1", 0, 1), 0, newBlock("sink1", 1, 0), 0))
		require.NoError(t, g.Connect(newBlock("src2", 0, 1), 0, newBlock("sink2", 1, 0), 0))
		g.Add(newBlock("alone", 0, 0))
		assert.Equal(t, [][]string{{"src1", "sink1"}, {"src2", "sink2"}, {"alone"}}, partitionNames(t, g))
	})
	t.Run("deterministic", func(t *testing.T) {
		g := flow.NewGraph()
		src := newBlock("src", 0, 1)
		for _, name := range []string{"x", "y", "z", "w"} {
			proc := newBlock(name, 1, 1)
			require.NoError(t, g.Connect(src, 0, proc, 0))
			require.NoError(t, g.Connect(proc, 0, newBlock(name+"_sink", 1, 0), 0))
		}
		expected := partitionNames(t, g)
		for i := 0; i < 10; i++ {
			assert.Equal(t, expected, partitionNames(t, g))
		}
		assert.Equal(t, [][]string{{"src", "x", "x_sink", "y", "y_sink", "z", "z_sink", "w", "w_sink"}}, expected)
	})
	t.Run("message edges don't join partitions", func(t *testing.T) {
		g := flow.NewGraph()
		pub, sub := newBlock("pub", 0, 0), newBlock("sub", 0, 0)
		pub.RegisterMessageOutput("out")
		sub.RegisterMessageInput("in", func(pmt.Value) error { return nil })
		require.NoError(t, g.ConnectMessage(pub, "out", sub, "in"))
		assert.Equal(t, [][]string{{"pub"}, {"sub"}}, partitionNames(t, g))
	})
}

func TestConnectMessage(t *testing.T) {
	pub, sub := newBlock("pub", 0, 0), newBlock("sub", 0, 0)
	pub.RegisterMessageOutput("out")
	sub.RegisterMessageInput("in", func(pmt.Value) error { return nil })
	sub.RegisterMessageOutput("out")
	pub.RegisterMessageInput("in", func(pmt.Value) error { return nil })

	g := flow.NewGraph()
	assert.ErrorIs(t, g.ConnectMessage(pub, "missing", sub, "in"), flow.ErrMessagePort)
	assert.ErrorIs(t, g.ConnectMessage(pub, "out", sub, "missing"), flow.ErrMessagePort)
	require.NoError(t, g.ConnectMessage(pub, "out", sub, "in"))
	assert.ErrorIs(t, g.ConnectMessage(pub, "out", sub, "in"), flow.ErrPortConnected)
	// message loops are allowed
	require.NoError(t, g.ConnectMessage(sub, "out", pub, "in"))
	assert.NoError(t, g.Validate())
	assert.Len(t, g.MessageEdges(), 2)

	require.NoError(t, g.DisconnectMessage(pub, "out", sub, "in"))
	assert.ErrorIs(t, g.DisconnectMessage(pub, "out", sub, "in"), flow.ErrNotConnected)
	assert.Len(t, g.MessageEdges(), 1)
}
