package flow

import (
	"fmt"
	"sort"
)

type (
	// Endpoint is a stream port of the block.
	Endpoint struct {
		Block Block
		Port  int
	}

	// Edge connects output port of one block with input port of another.
	Edge struct {
		Src Endpoint
		Dst Endpoint
	}

	// MessageEndpoint is a message port of the block.
	MessageEndpoint struct {
		Block Block
		Port  string
	}

	// MessageEdge connects message output port with message input port.
	MessageEdge struct {
		Src MessageEndpoint
		Dst MessageEndpoint
	}

	// Graph is the set of connections between blocks. One output port may
	// feed any number of inputs, but every input is fed by exactly one
	// output. Graph is not safe for concurrent use.
	Graph struct {
		order    []Block
		known    map[Block]struct{}
		added    map[Block]struct{}
		edges    []Edge
		messages []MessageEdge
	}
)

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", nameOf(e.Block), e.Port)
}

func (e Edge) String() string {
	return fmt.Sprintf("%v->%v", e.Src, e.Dst)
}

func (e MessageEndpoint) String() string {
	return fmt.Sprintf("%s:%s", nameOf(e.Block), e.Port)
}

func (e MessageEdge) String() string {
	return fmt.Sprintf("%v->%v", e.Src, e.Dst)
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		known: make(map[Block]struct{}),
		added: make(map[Block]struct{}),
	}
}

// Add adds blocks that are not connected with streams, for example blocks
// that only exchange messages.
func (g *Graph) Add(blocks ...Block) {
	for _, b := range blocks {
		g.remember(b)
		g.added[b] = struct{}{}
	}
}

// Connect connects output port of src block with input port of dst block.
func (g *Graph) Connect(src Block, srcPort int, dst Block, dstPort int) error {
	return g.ConnectEndpoints(Endpoint{Block: src, Port: srcPort}, Endpoint{Block: dst, Port: dstPort})
}

// ConnectEndpoints connects two endpoints with a stream edge.
func (g *Graph) ConnectEndpoints(src, dst Endpoint) error {
	if src.Block == nil || dst.Block == nil {
		return fmt.Errorf("connect %v: nil block", Edge{Src: src, Dst: dst})
	}
	output := src.Block.BaseBlock().Output()
	if !output.Contains(src.Port) {
		return topologyError(src.Block, src.Port, fmt.Errorf("output %v: %w", output, ErrPortRange))
	}
	input := dst.Block.BaseBlock().Input()
	if !input.Contains(dst.Port) {
		return topologyError(dst.Block, dst.Port, fmt.Errorf("input %v: %w", input, ErrPortRange))
	}
	for _, e := range g.edges {
		if e.Dst == dst {
			return topologyError(dst.Block, dst.Port, fmt.Errorf("fed by %v: %w", e.Src, ErrPortConnected))
		}
	}
	if srcSize, dstSize := output.ItemSize(src.Port), input.ItemSize(dst.Port); srcSize != dstSize {
		return topologyError(dst.Block, dst.Port, fmt.Errorf("%v has %d bytes, %v has %d bytes: %w",
			src, srcSize, dst, dstSize, ErrItemSize))
	}
	g.remember(src.Block)
	g.remember(dst.Block)
	g.edges = append(g.edges, Edge{Src: src, Dst: dst})
	return nil
}

// Disconnect removes the stream edge.
func (g *Graph) Disconnect(src Block, srcPort int, dst Block, dstPort int) error {
	edge := Edge{
		Src: Endpoint{Block: src, Port: srcPort},
		Dst: Endpoint{Block: dst, Port: dstPort},
	}
	for i, e := range g.edges {
		if e == edge {
			g.edges = append(g.edges[:i], g.edges[i+1:]...)
			return nil
		}
	}
	return topologyError(dst, dstPort, fmt.Errorf("%v: %w", edge, ErrNotConnected))
}

// ConnectMessage connects message output port of src block with message
// input port of dst block. Message edges may form cycles.
func (g *Graph) ConnectMessage(src Block, srcPort string, dst Block, dstPort string) error {
	if src == nil || dst == nil {
		return fmt.Errorf("connect message %s->%s: nil block", srcPort, dstPort)
	}
	if !src.BaseBlock().HasMessageOutput(srcPort) {
		return topologyError(src, -1, fmt.Errorf("message output %q: %w", srcPort, ErrMessagePort))
	}
	if _, ok := dst.BaseBlock().MessageHandler(dstPort); !ok {
		return topologyError(dst, -1, fmt.Errorf("message input %q: %w", dstPort, ErrMessagePort))
	}
	edge := MessageEdge{
		Src: MessageEndpoint{Block: src, Port: srcPort},
		Dst: MessageEndpoint{Block: dst, Port: dstPort},
	}
	for _, e := range g.messages {
		if e == edge {
			return topologyError(dst, -1, fmt.Errorf("%v: %w", edge, ErrPortConnected))
		}
	}
	g.remember(src)
	g.remember(dst)
	g.messages = append(g.messages, edge)
	return nil
}

// DisconnectMessage removes the message edge.
func (g *Graph) DisconnectMessage(src Block, srcPort string, dst Block, dstPort string) error {
	edge := MessageEdge{
		Src: MessageEndpoint{Block: src, Port: srcPort},
		Dst: MessageEndpoint{Block: dst, Port: dstPort},
	}
	for i, e := range g.messages {
		if e == edge {
			g.messages = append(g.messages[:i], g.messages[i+1:]...)
			return nil
		}
	}
	return topologyError(dst, -1, fmt.Errorf("%v: %w", edge, ErrNotConnected))
}

// Edges returns stream edges in the order they were connected.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// MessageEdges returns message edges in the order they were connected.
func (g *Graph) MessageEdges() []MessageEdge {
	return append([]MessageEdge(nil), g.messages...)
}

// Blocks returns blocks in use ordered by their first appearance.
func (g *Graph) Blocks() []Block {
	used := make(map[Block]struct{}, len(g.order))
	for b := range g.added {
		used[b] = struct{}{}
	}
	for _, e := range g.edges {
		used[e.Src.Block] = struct{}{}
		used[e.Dst.Block] = struct{}{}
	}
	for _, e := range g.messages {
		used[e.Src.Block] = struct{}{}
		used[e.Dst.Block] = struct{}{}
	}
	blocks := make([]Block, 0, len(used))
	for _, b := range g.order {
		if _, ok := used[b]; ok {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

// Inputs returns stream edges that feed the block ordered by input port.
func (g *Graph) Inputs(b Block) []Edge {
	var edges []Edge
	for _, e := range g.edges {
		if e.Dst.Block == b {
			edges = append(edges, e)
		}
	}
	sort.SliceStable(edges, func(i, j int) bool {
		return edges[i].Dst.Port < edges[j].Dst.Port
	})
	return edges
}

// Outputs returns stream edges fed by the block in the order they were
// connected.
func (g *Graph) Outputs(b Block) []Edge {
	var edges []Edge
	for _, e := range g.edges {
		if e.Src.Block == b {
			edges = append(edges, e)
		}
	}
	return edges
}

// Validate checks that every block in use has valid signatures and
// properties, its connected ports are contiguous and their number is within
// signature bounds, and stream edges don't form loops.
func (g *Graph) Validate() error {
	blocks := g.Blocks()
	if len(blocks) == 0 {
		return ErrEmptyGraph
	}
	var errs errorList
	for _, b := range blocks {
		if err := g.validateBlock(b); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := g.Partition(); err != nil {
		errs = append(errs, err)
	}
	return errs.ret()
}

func (g *Graph) validateBlock(b Block) error {
	base := b.BaseBlock()
	if err := base.Input().Validate(); err != nil {
		return topologyError(b, -1, fmt.Errorf("input: %w", err))
	}
	if err := base.Output().Validate(); err != nil {
		return topologyError(b, -1, fmt.Errorf("output: %w", err))
	}
	props := base.Properties()
	if err := props.Validate(); err != nil {
		return topologyError(b, -1, err)
	}

	inputs := make([]int, 0)
	for _, e := range g.edges {
		if e.Dst.Block == b {
			inputs = append(inputs, e.Dst.Port)
		}
	}
	if err := checkPorts(b, "input", inputs, base.Input()); err != nil {
		return err
	}
	outputs := make([]int, 0)
	seen := make(map[int]struct{})
	for _, e := range g.edges {
		if _, ok := seen[e.Src.Port]; e.Src.Block == b && !ok {
			seen[e.Src.Port] = struct{}{}
			outputs = append(outputs, e.Src.Port)
		}
	}
	if err := checkPorts(b, "output", outputs, base.Output()); err != nil {
		return err
	}
	if props.TagPolicy == TagsOneToOne && len(inputs) != len(outputs) {
		return topologyError(b, -1, fmt.Errorf("%v tag policy with %d inputs and %d outputs: %w",
			props.TagPolicy, len(inputs), len(outputs), ErrInvalidProperties))
	}
	return nil
}

// checkPorts verifies that ports occupy [0, n) and n is within signature
// bounds.
func checkPorts(b Block, side string, ports []int, s Signature) error {
	sort.Ints(ports)
	for i, p := range ports {
		if p != i {
			return topologyError(b, i, fmt.Errorf("%s: %w", side, ErrNonContiguous))
		}
	}
	if n := len(ports); n < s.Min || (!s.Unlimited() && n > s.Max) {
		return topologyError(b, -1, fmt.Errorf("%d %ss connected, signature %v: %w", n, side, s, ErrPortCount))
	}
	return nil
}

func (g *Graph) remember(b Block) {
	if _, ok := g.known[b]; ok {
		return
	}
	g.known[b] = struct{}{}
	g.order = append(g.order, b)
}
