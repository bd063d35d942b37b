package runtime

import (
	"fmt"

	"pipelined.dev/flow/buffer"
	"pipelined.dev/flow/pmt"
	"pipelined.dev/flow/tag"
)

// Detail holds buffers bound to the block ports. Inputs are ordered by
// input port, outputs by output port.
type Detail struct {
	Inputs  []*buffer.Reader
	Outputs []*buffer.Buffer

	block     string
	violation error
}

// NewDetail returns detail with provided inputs and outputs.
func NewDetail(inputs []*buffer.Reader, outputs []*buffer.Buffer) *Detail {
	return &Detail{
		Inputs:  inputs,
		Outputs: outputs,
	}
}

// ItemsRead implements flow.Stream.
func (d *Detail) ItemsRead(port int) uint64 {
	return d.Inputs[port].ItemsRead()
}

// ItemsWritten implements flow.Stream.
func (d *Detail) ItemsWritten(port int) uint64 {
	return d.Outputs[port].ItemsWritten()
}

// Tags implements flow.Stream.
func (d *Detail) Tags(port int, start, end uint64) []tag.Tag {
	return d.Inputs[port].Buffer().Tags().Query(start, end)
}

// TagsByKey implements flow.Stream.
func (d *Detail) TagsByKey(port int, start, end uint64, key pmt.Value) []tag.Tag {
	return d.Inputs[port].Buffer().Tags().QueryKey(start, end, key)
}

// AddTag implements flow.Stream. Tags can't be attached to items that are
// already written.
func (d *Detail) AddTag(port int, t tag.Tag) error {
	if port < 0 || port >= len(d.Outputs) {
		return d.violate("tag %v added to output %d of %d", t, port, len(d.Outputs))
	}
	if written := d.Outputs[port].ItemsWritten(); t.Offset < written {
		return d.violate("tag %v added before %d items written to output %d", t, written, port)
	}
	d.Outputs[port].Tags().Add(t)
	return nil
}

// violate records the first contract violation.
func (d *Detail) violate(format string, args ...any) error {
	err := &ContractError{
		Block:  d.block,
		Reason: fmt.Sprintf(format, args...),
	}
	if d.violation == nil {
		d.violation = err
	}
	return err
}

// Snapshot is a state of the block streams.
type Snapshot struct {
	Block        string
	State        State
	ItemsRead    []uint64
	Available    []int
	ItemsWritten []uint64
	Space        []int
	Capacity     []int
}

func (d *Detail) snapshot() Snapshot {
	s := Snapshot{Block: d.block}
	for _, r := range d.Inputs {
		s.ItemsRead = append(s.ItemsRead, r.ItemsRead())
		s.Available = append(s.Available, r.Available())
	}
	for _, b := range d.Outputs {
		s.ItemsWritten = append(s.ItemsWritten, b.ItemsWritten())
		s.Space = append(s.Space, b.Space())
		s.Capacity = append(s.Capacity, b.Capacity())
	}
	return s
}
