package flow

import (
	"unsafe"

	"pipelined.dev/flow/pmt"
	"pipelined.dev/flow/tag"
)

type (
	// Work is a single invocation of the block. Regions are valid only
	// until Work returns.
	Work struct {
		// Requested is the greatest number of items the block may produce
		// on every output.
		Requested int
		// In holds readable regions of inputs. Every region starts with
		// History-1 items preceding the first unconsumed item.
		In [][]byte
		// Available is the number of items in every input region,
		// including the history.
		Available []int
		// Out holds writable regions of outputs, Requested items each.
		Out [][]byte

		stream Stream
	}

	// Stream gives the block access to positions and tags of its streams.
	// It is implemented by the runner.
	Stream interface {
		ItemsRead(port int) uint64
		ItemsWritten(port int) uint64
		Tags(port int, start, end uint64) []tag.Tag
		TagsByKey(port int, start, end uint64, key pmt.Value) []tag.Tag
		AddTag(port int, t tag.Tag) error
	}

	// Result reports the outcome of a Work call.
	Result struct {
		// Produced is the number of items produced on every output. It's
		// ignored if PerOutput is set.
		Produced int
		// PerOutput is the number of items produced on each output.
		PerOutput []int
		// Consumed is the number of items consumed on each input. Fixed
		// rate blocks may leave it nil, then consumption is derived from
		// the rate.
		Consumed []int
		// Done is set when the block won't produce anymore. Items produced
		// by the same call are still committed.
		Done bool
	}
)

// WorkDone is returned by blocks that are finished.
var WorkDone = Result{Done: true}

// NewWork returns work bound to the stream.
func NewWork(s Stream) *Work {
	return &Work{stream: s}
}

// Consumable returns number of new items available on the input port for
// block with provided history.
func (w *Work) Consumable(port, history int) int {
	return max(w.Available[port]-history+1, 0)
}

// ItemsRead returns number of items consumed on the input port before this
// call.
func (w *Work) ItemsRead(port int) uint64 {
	return w.stream.ItemsRead(port)
}

// ItemsWritten returns number of items produced on the output port before
// this call.
func (w *Work) ItemsWritten(port int) uint64 {
	return w.stream.ItemsWritten(port)
}

// Tags returns tags of the input port within [start, end) absolute range.
func (w *Work) Tags(port int, start, end uint64) []tag.Tag {
	return w.stream.Tags(port, start, end)
}

// TagsByKey returns tags of the input port with provided key within
// [start, end) absolute range.
func (w *Work) TagsByKey(port int, start, end uint64, key pmt.Value) []tag.Tag {
	return w.stream.TagsByKey(port, start, end, key)
}

// AddTag attaches tag to the output port. Tag offset must not be less than
// number of items written to the port.
func (w *Work) AddTag(port int, t tag.Tag) error {
	return w.stream.AddTag(port, t)
}

// Produce returns result of the call that produced n items on every output
// and consumed provided number of items on inputs.
func Produce(n int, consumed ...int) Result {
	return Result{
		Produced: n,
		Consumed: consumed,
	}
}

// ProduceEach returns result of the call that produced different number of
// items on outputs.
func ProduceEach(perOutput []int, consumed ...int) Result {
	return Result{
		PerOutput: perOutput,
		Consumed:  consumed,
	}
}

// Finish returns a copy of the result that marks the block done.
func (r Result) Finish() Result {
	r.Done = true
	return r
}

// ProducedOn returns number of items produced on the output port.
func (r Result) ProducedOn(port int) int {
	if r.PerOutput != nil {
		if port < len(r.PerOutput) {
			return r.PerOutput[port]
		}
		return 0
	}
	return r.Produced
}

// Items returns typed view of the byte region. Region must be aligned for
// type T, which is true for regions provided by the runner.
func Items[T any](b []byte) []T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 || len(b) < size {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), len(b)/size)
}

// SizeOf returns size of the item type in bytes.
func SizeOf[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}
