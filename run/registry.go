package run

import "pipelined.dev/flow"

// Registry holds blocks of the run by their ids and names.
type Registry struct {
	byID   map[string]flow.Block
	byName map[string]flow.Block
	order  []flow.Block
}

func newRegistry(blocks []flow.Block) Registry {
	r := Registry{
		byID:   make(map[string]flow.Block, len(blocks)),
		byName: make(map[string]flow.Block, len(blocks)),
		order:  blocks,
	}
	for _, b := range blocks {
		base := b.BaseBlock()
		r.byID[base.ID()] = b
		// first block wins if names are not unique
		if _, ok := r.byName[base.Name()]; !ok && base.Name() != "" {
			r.byName[base.Name()] = b
		}
	}
	return r
}

// ByID returns block with provided id.
func (r Registry) ByID(id string) (flow.Block, bool) {
	b, ok := r.byID[id]
	return b, ok
}

// ByName returns the first block with provided name.
func (r Registry) ByName(name string) (flow.Block, bool) {
	b, ok := r.byName[name]
	return b, ok
}

// Blocks returns all blocks in order they were added to the graph.
func (r Registry) Blocks() []flow.Block {
	blocks := make([]flow.Block, len(r.order))
	copy(blocks, r.order)
	return blocks
}

// Len returns number of blocks.
func (r Registry) Len() int {
	return len(r.order)
}
