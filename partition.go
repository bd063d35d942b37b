package flow

// Partition splits blocks in use into groups connected by stream edges,
// regardless of edge direction. Every group is sorted topologically:
// producers always precede their consumers. Blocks without a mutual
// dependency keep the order of their first appearance in the graph, so
// the same graph is always sorted the same way. Groups are ordered by
// their first block. Loop of stream edges is an error.
func (g *Graph) Partition() ([][]Block, error) {
	blocks := g.Blocks()
	if len(blocks) == 0 {
		return nil, ErrEmptyGraph
	}
	index := make(map[Block]int, len(blocks))
	for i, b := range blocks {
		index[b] = i
	}

	parent := make([]int, len(blocks))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for _, e := range g.edges {
		a, b := find(index[e.Src.Block]), find(index[e.Dst.Block])
		// attach to the earlier block to keep roots stable
		if a < b {
			parent[b] = a
		} else {
			parent[a] = b
		}
	}

	var (
		groups  [][]Block
		byRoot  = make(map[int]int)
		results = make([][]Block, 0)
	)
	for i, b := range blocks {
		root := find(i)
		n, ok := byRoot[root]
		if !ok {
			n = len(groups)
			byRoot[root] = n
			groups = append(groups, nil)
		}
		groups[n] = append(groups[n], b)
	}
	for _, group := range groups {
		sorted, err := g.sort(group)
		if err != nil {
			return nil, err
		}
		results = append(results, sorted)
	}
	return results, nil
}

type color int

const (
	white color = iota
	grey
	black
)

// sort returns reverse postorder of depth-first traversal. Roots and
// successors are visited in reverse order of appearance, so siblings end up
// in their original order.
func (g *Graph) sort(group []Block) ([]Block, error) {
	colors := make(map[Block]color, len(group))
	successors := make(map[Block][]Block, len(group))
	incoming := make(map[Block]int, len(group))
	for _, b := range group {
		colors[b] = white
	}
	for _, e := range g.edges {
		if _, ok := colors[e.Src.Block]; !ok {
			continue
		}
		successors[e.Src.Block] = append(successors[e.Src.Block], e.Dst.Block)
		incoming[e.Dst.Block]++
	}

	postorder := make([]Block, 0, len(group))
	var visit func(Block) error
	visit = func(b Block) error {
		switch colors[b] {
		case grey:
			return topologyError(b, -1, ErrLoop)
		case black:
			return nil
		}
		colors[b] = grey
		next := successors[b]
		for i := len(next) - 1; i >= 0; i-- {
			if err := visit(next[i]); err != nil {
				return err
			}
		}
		colors[b] = black
		postorder = append(postorder, b)
		return nil
	}

	for i := len(group) - 1; i >= 0; i-- {
		if incoming[group[i]] == 0 {
			if err := visit(group[i]); err != nil {
				return nil, err
			}
		}
	}
	// blocks not reachable from sources are on loops
	for i := len(group) - 1; i >= 0; i-- {
		if err := visit(group[i]); err != nil {
			return nil, err
		}
	}

	sorted := make([]Block, len(postorder))
	for i, b := range postorder {
		sorted[len(postorder)-1-i] = b
	}
	return sorted, nil
}
