package flow

import "fmt"

// Unbounded is the maximum stream count of a signature that accepts any
// number of streams.
const Unbounded = -1

// Signature describes the streams a block accepts on one side: the number
// of connected streams must lie in [Min, Max] and every stream carries items
// of fixed size. If there are more streams than sizes, the last size is
// used for the rest of streams.
type Signature struct {
	Min       int
	Max       int
	ItemSizes []int
}

// NewSignature returns new signature.
func NewSignature(min, max int, itemSizes ...int) Signature {
	return Signature{
		Min:       min,
		Max:       max,
		ItemSizes: itemSizes,
	}
}

// Streams returns signature for exactly n streams of the same item size.
func Streams(n, itemSize int) Signature {
	return NewSignature(n, n, itemSize)
}

// None is the signature of the side without streams.
func None() Signature {
	return Signature{}
}

// Unlimited reports whether the signature has no upper bound.
func (s Signature) Unlimited() bool {
	return s.Max == Unbounded
}

// Contains reports whether the port index is allowed by the signature.
func (s Signature) Contains(port int) bool {
	return port >= 0 && (s.Unlimited() || port < s.Max)
}

// ItemSize returns the item size in bytes of the stream with provided index.
func (s Signature) ItemSize(port int) int {
	switch {
	case len(s.ItemSizes) == 0:
		return 0
	case port < len(s.ItemSizes):
		return s.ItemSizes[port]
	default:
		return s.ItemSizes[len(s.ItemSizes)-1]
	}
}

// Validate checks bounds and item sizes of the signature.
func (s Signature) Validate() error {
	if s.Min < 0 || (!s.Unlimited() && s.Max < s.Min) {
		return fmt.Errorf("signature streams [%d, %d]: %w", s.Min, s.Max, ErrInvalidSignature)
	}
	if s.Max != 0 && len(s.ItemSizes) == 0 {
		return fmt.Errorf("signature without item sizes: %w", ErrInvalidSignature)
	}
	for i, size := range s.ItemSizes {
		if size <= 0 {
			return fmt.Errorf("signature stream %d item size %d: %w", i, size, ErrInvalidSignature)
		}
	}
	return nil
}

func (s Signature) String() string {
	if s.Unlimited() {
		return fmt.Sprintf("[%d, inf] %v", s.Min, s.ItemSizes)
	}
	return fmt.Sprintf("[%d, %d] %v", s.Min, s.Max, s.ItemSizes)
}
