package runtime

import (
	"pipelined.dev/flow"
)

// propagateTags moves tags of consumed input items to outputs according
// to the tag policy of the block. Must be called before outputs are
// committed.
func (e *Executor) propagateTags() {
	if !e.props.TagPolicy.Propagates() || len(e.detail.Outputs) == 0 {
		return
	}
	for i, r := range e.detail.Inputs {
		if e.consumed[i] == 0 {
			continue
		}
		start := e.readBefore[i]
		tags := r.Buffer().Tags().Query(start, start+uint64(e.consumed[i]))
		if len(tags) == 0 {
			continue
		}
		delay := uint64(e.props.Delay(i))
		for j, b := range e.detail.Outputs {
			if e.props.TagPolicy == flow.TagsOneToOne && i != j {
				continue
			}
			for _, t := range tags {
				b.Tags().Add(t.WithOffset(scale(t.Offset, e.props.Rate) + delay))
			}
		}
	}
}

// scale converts input offset to output offset rounding to nearest.
func scale(offset uint64, r flow.Rate) uint64 {
	if r.Unit() {
		return offset
	}
	i, d := uint64(r.Interp), uint64(r.Decim)
	return (2*offset*i + d) / (2 * d)
}
