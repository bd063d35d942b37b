package flow

import (
	"fmt"

	"github.com/rs/xid"
)

type (
	// Block is the unit of stream processing. Implementations embed Base,
	// which provides port signatures, properties and default
	// implementations of everything but Work.
	Block interface {
		// BaseBlock returns the embedded Base.
		BaseBlock() *Base
		// Forecast fills number of input items required on every input
		// port to produce noutput items.
		Forecast(noutput int, required []int)
		// Work processes a single portion of items.
		Work(w *Work) (Result, error)
		// Start is called before the first Work call.
		Start() error
		// Stop is called after the last Work call.
		Stop() error
	}

	// Base holds the state shared by all blocks. It must be created with
	// NewBase.
	Base struct {
		id     string
		name   string
		input  Signature
		output Signature
		props  Properties
		msg    *messagePorts
	}

	// Properties are scheduling constraints declared by the block.
	Properties struct {
		// History is the number of input items every output item depends
		// on. History-1 items preceding the first unconsumed item are kept
		// for the block.
		History int
		// OutputMultiple is the required divisor of produced items count.
		OutputMultiple int
		// Alignment is the preferred divisor of the absolute output
		// offset.
		Alignment int
		// Rate is the ratio of produced to consumed items.
		Rate Rate
		// FixedRate is set if rate does not depend on the input.
		FixedRate bool
		// TagPolicy defines how tags are copied from inputs to outputs.
		TagPolicy TagPolicy
		// MinOutputItems is the least number of items a single Work call
		// is requested to produce, zero means no limit.
		MinOutputItems int
		// MaxOutputItems is the greatest number of items a single Work
		// call is requested to produce, zero means the runner default.
		MaxOutputItems int
		// SampleDelay is the delay of every input port in items.
		SampleDelay []int
	}

	// Rate is an exact ratio of produced and consumed items.
	Rate struct {
		Interp int
		Decim  int
	}

	// TagPolicy defines what tags are propagated by the runner.
	TagPolicy int
)

const (
	// TagsAllToAll copies tags from every input to every output.
	TagsAllToAll TagPolicy = iota
	// TagsNone doesn't copy tags.
	TagsNone
	// TagsOneToOne copies tags from input i to output i.
	TagsOneToOne
	// TagsCustom doesn't copy tags, the block propagates them itself.
	TagsCustom
	// TagsTaggedStream copies tags from every input to every output of a
	// block which rate is defined by packet length tags.
	TagsTaggedStream
)

var tagPolicyNames = []string{"all-to-all", "none", "one-to-one", "custom", "tagged-stream"}

func (p TagPolicy) String() string {
	if p < 0 || int(p) >= len(tagPolicyNames) {
		return fmt.Sprintf("TagPolicy(%d)", int(p))
	}
	return tagPolicyNames[p]
}

// Propagates reports whether the runner copies tags under this policy.
func (p TagPolicy) Propagates() bool {
	return p == TagsAllToAll || p == TagsOneToOne || p == TagsTaggedStream
}

// NewRate returns rate reduced to lowest terms.
func NewRate(interp, decim int) Rate {
	if interp <= 0 || decim <= 0 {
		return Rate{Interp: interp, Decim: decim}
	}
	d := gcd(interp, decim)
	return Rate{Interp: interp / d, Decim: decim / d}
}

// Unit reports whether rate is 1:1.
func (r Rate) Unit() bool {
	return r.Interp == r.Decim
}

// Float returns rate as float.
func (r Rate) Float() float64 {
	return float64(r.Interp) / float64(r.Decim)
}

// InputToOutput returns number of items produced from n input items.
func (r Rate) InputToOutput(n int) int {
	return n * r.Interp / r.Decim
}

// OutputToInput returns number of input items needed to produce n items.
func (r Rate) OutputToInput(n int) int {
	return (n*r.Decim + r.Interp - 1) / r.Interp
}

func (r Rate) String() string {
	return fmt.Sprintf("%d/%d", r.Interp, r.Decim)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// DefaultProperties returns properties of a plain 1:1 block.
func DefaultProperties() Properties {
	return Properties{
		History:        1,
		OutputMultiple: 1,
		Alignment:      1,
		Rate:           Rate{Interp: 1, Decim: 1},
		TagPolicy:      TagsAllToAll,
	}
}

// Validate checks that properties are consistent.
func (p Properties) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidProperties)
	}
	switch {
	case p.History < 1:
		return invalid("history %d", p.History)
	case p.OutputMultiple < 1:
		return invalid("output multiple %d", p.OutputMultiple)
	case p.Alignment < 1:
		return invalid("alignment %d", p.Alignment)
	case p.Rate.Interp <= 0 || p.Rate.Decim <= 0:
		return invalid("rate %v", p.Rate)
	case p.MinOutputItems < 0 || p.MaxOutputItems < 0:
		return invalid("output items [%d, %d]", p.MinOutputItems, p.MaxOutputItems)
	case p.MaxOutputItems > 0 && p.MaxOutputItems < p.OutputMultiple:
		return invalid("max output items %d less than output multiple %d", p.MaxOutputItems, p.OutputMultiple)
	case p.MaxOutputItems > 0 && p.MinOutputItems > p.MaxOutputItems:
		return invalid("min output items %d greater than max %d", p.MinOutputItems, p.MaxOutputItems)
	case p.OutputMultiple > 1 && p.Alignment > 1 && p.OutputMultiple%p.Alignment != 0:
		return invalid("output multiple %d is not a multiple of alignment %d", p.OutputMultiple, p.Alignment)
	}
	for i, d := range p.SampleDelay {
		if d < 0 {
			return invalid("sample delay %d of port %d", d, i)
		}
	}
	return nil
}

// Delay returns sample delay of the input port.
func (p Properties) Delay(port int) int {
	if port < len(p.SampleDelay) {
		return p.SampleDelay[port]
	}
	return 0
}

// NewBase returns base of the block with provided name and signatures.
func NewBase(name string, input, output Signature) Base {
	return Base{
		id:     xid.New().String(),
		name:   name,
		input:  input,
		output: output,
		props:  DefaultProperties(),
		msg:    &messagePorts{},
	}
}

// BaseBlock implements Block.
func (b *Base) BaseBlock() *Base { return b }

// ID returns unique id of the block.
func (b *Base) ID() string { return b.id }

// Name returns name of the block.
func (b *Base) Name() string { return b.name }

// Input returns input signature.
func (b *Base) Input() Signature { return b.input }

// Output returns output signature.
func (b *Base) Output() Signature { return b.output }

// Properties returns a copy of block properties.
func (b *Base) Properties() Properties {
	p := b.props
	p.SampleDelay = append([]int(nil), b.props.SampleDelay...)
	return p
}

// SetHistory sets history of the block.
func (b *Base) SetHistory(h int) { b.props.History = h }

// SetOutputMultiple sets output multiple of the block.
func (b *Base) SetOutputMultiple(m int) { b.props.OutputMultiple = m }

// SetAlignment sets alignment of the block.
func (b *Base) SetAlignment(a int) { b.props.Alignment = a }

// SetRelativeRate sets the approximate rate of the block.
func (b *Base) SetRelativeRate(interp, decim int) {
	b.props.Rate = NewRate(interp, decim)
}

// SetFixedRate sets the exact rate of the block. Interpolating blocks
// produce whole multiples of interpolation.
func (b *Base) SetFixedRate(interp, decim int) {
	b.props.Rate = NewRate(interp, decim)
	b.props.FixedRate = true
	if b.props.Rate.Interp > 1 {
		b.props.OutputMultiple = b.props.Rate.Interp
	}
}

// SetTagPolicy sets tag propagation policy.
func (b *Base) SetTagPolicy(p TagPolicy) { b.props.TagPolicy = p }

// SetMinOutputItems sets the least number of output items per call.
func (b *Base) SetMinOutputItems(n int) { b.props.MinOutputItems = n }

// SetMaxOutputItems sets the greatest number of output items per call.
func (b *Base) SetMaxOutputItems(n int) { b.props.MaxOutputItems = n }

// SetSampleDelay sets delay of the input port.
func (b *Base) SetSampleDelay(port, delay int) {
	for len(b.props.SampleDelay) <= port {
		b.props.SampleDelay = append(b.props.SampleDelay, 0)
	}
	b.props.SampleDelay[port] = delay
}

// FixedRateInputToOutput returns number of items produced from n input
// items.
func (b *Base) FixedRateInputToOutput(n int) int {
	return b.props.Rate.InputToOutput(n)
}

// FixedRateOutputToInput returns number of input items required to produce
// n items.
func (b *Base) FixedRateOutputToInput(n int) int {
	return b.props.Rate.OutputToInput(n)
}

// Forecast implements Block. Every input requires the rate-scaled number of
// items and the history.
func (b *Base) Forecast(noutput int, required []int) {
	need := b.props.Rate.OutputToInput(noutput) + b.props.History - 1
	for i := range required {
		required[i] = need
	}
}

// Start implements Block.
func (b *Base) Start() error { return nil }

// Stop implements Block.
func (b *Base) Stop() error { return nil }

func (b *Base) String() string {
	if b.name == "" {
		return b.id
	}
	return b.name
}

// nameOf returns printable name of the block.
func nameOf(b Block) string {
	if b == nil {
		return "<nil>"
	}
	return b.BaseBlock().String()
}
