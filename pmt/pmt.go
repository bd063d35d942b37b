// Package pmt implements the immutable polymorphic value type that is used
// for stream tags and block messages.
//
// A Value is one of: Nil, Bool, Symbol, Int, Uint64, Real, Complex, *Pair,
// Tuple, Vector, Dict or a Uniform numeric vector. Values are never mutated
// after construction, constructors copy the slices they are given, so a value
// can be shared freely between goroutines.
package pmt

import "sort"

// Kind identifies the variant of the value.
type Kind int

// Value kinds in their canonical ordering.
const (
	KindNull Kind = iota
	KindBool
	KindSymbol
	KindInt
	KindUint64
	KindReal
	KindComplex
	KindPair
	KindTuple
	KindVector
	KindDict
	KindUniform
)

var kindNames = [...]string{
	KindNull:    "null",
	KindBool:    "bool",
	KindSymbol:  "symbol",
	KindInt:     "int",
	KindUint64:  "uint64",
	KindReal:    "real",
	KindComplex: "complex",
	KindPair:    "pair",
	KindTuple:   "tuple",
	KindVector:  "vector",
	KindDict:    "dict",
	KindUniform: "uniform",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

type (
	// Value is an immutable polymorphic value.
	Value interface {
		Kind() Kind
		String() string
	}

	null struct{}

	// Bool is a boolean value.
	Bool bool

	// Symbol is an interned name. Two symbols with the same name are
	// identical.
	Symbol string

	// Int is an exact signed integer.
	Int int64

	// Uint64 is an exact unsigned integer.
	Uint64 uint64

	// Real is a floating point number.
	Real float64

	// Complex is a complex number.
	Complex complex128

	// Pair is a cons cell. Proper lists are chains of pairs terminated with
	// Nil.
	Pair struct {
		car, cdr Value
	}

	// Tuple is a fixed sequence of values.
	Tuple struct {
		items []Value
	}

	// Vector is a sequence of values.
	Vector struct {
		items []Value
	}

	// Dict maps keys to values. Keys are kept ordered with Compare.
	Dict struct {
		entries []entry
	}

	entry struct {
		key, value Value
	}

	// Number lists element types of uniform vectors.
	Number interface {
		uint8 | int8 | uint16 | int16 | uint32 | int32 | uint64 | int64 |
			float32 | float64 | complex64 | complex128
	}

	// Uniform is a typed numeric vector.
	Uniform[T Number] struct {
		items []T
	}

	// Blob is an opaque byte sequence. It is the uint8 uniform vector.
	Blob = Uniform[uint8]
)

// Nil is the empty list.
var Nil Value = null{}

// Boolean constants.
var (
	True  Value = Bool(true)
	False Value = Bool(false)
)

func (null) Kind() Kind       { return KindNull }
func (Bool) Kind() Kind       { return KindBool }
func (Symbol) Kind() Kind     { return KindSymbol }
func (Int) Kind() Kind        { return KindInt }
func (Uint64) Kind() Kind     { return KindUint64 }
func (Real) Kind() Kind       { return KindReal }
func (Complex) Kind() Kind    { return KindComplex }
func (*Pair) Kind() Kind      { return KindPair }
func (Tuple) Kind() Kind      { return KindTuple }
func (Vector) Kind() Kind     { return KindVector }
func (Dict) Kind() Kind       { return KindDict }
func (Uniform[T]) Kind() Kind { return KindUniform }

// IsNull reports whether v is the empty list.
func IsNull(v Value) bool {
	_, ok := v.(null)
	return ok
}

// Intern returns the symbol for the name.
func Intern(name string) Symbol {
	return Symbol(name)
}

// Cons returns a new pair.
func Cons(car, cdr Value) *Pair {
	return &Pair{car: orNil(car), cdr: orNil(cdr)}
}

// Car returns the first element of the pair.
func (p *Pair) Car() Value { return p.car }

// Cdr returns the second element of the pair.
func (p *Pair) Cdr() Value { return p.cdr }

// List builds a proper list of values.
func List(values ...Value) Value {
	l := Nil
	for i := len(values) - 1; i >= 0; i-- {
		l = Cons(values[i], l)
	}
	return l
}

// ListItems returns the elements of a proper list. ok is false if v is not a
// proper list.
func ListItems(v Value) (items []Value, ok bool) {
	for {
		switch x := v.(type) {
		case null:
			return items, true
		case *Pair:
			items = append(items, x.car)
			v = x.cdr
		default:
			return nil, false
		}
	}
}

// NewTuple returns a tuple of provided values.
func NewTuple(values ...Value) Tuple {
	return Tuple{items: copyValues(values)}
}

// Len returns number of items in tuple.
func (t Tuple) Len() int { return len(t.items) }

// Ref returns i-th item of tuple.
func (t Tuple) Ref(i int) Value { return t.items[i] }

// NewVector returns a vector of provided values.
func NewVector(values ...Value) Vector {
	return Vector{items: copyValues(values)}
}

// Len returns number of items in vector.
func (v Vector) Len() int { return len(v.items) }

// Ref returns i-th item of vector.
func (v Vector) Ref(i int) Value { return v.items[i] }

// NewUniform returns a uniform vector with a copy of values.
func NewUniform[T Number](values []T) Uniform[T] {
	items := make([]T, len(values))
	copy(items, values)
	return Uniform[T]{items: items}
}

// NewBlob returns a blob with a copy of b.
func NewBlob(b []byte) Blob {
	return NewUniform(b)
}

// Len returns number of elements.
func (u Uniform[T]) Len() int { return len(u.items) }

// Ref returns i-th element.
func (u Uniform[T]) Ref(i int) T { return u.items[i] }

// Elements returns a copy of all elements.
func (u Uniform[T]) Elements() []T {
	items := make([]T, len(u.items))
	copy(items, u.items)
	return items
}

// NewDict returns an empty dictionary.
func NewDict() Dict {
	return Dict{}
}

// Add returns a new dictionary with key mapped to value.
func (d Dict) Add(key, value Value) Dict {
	i, found := d.search(key)
	entries := make([]entry, 0, len(d.entries)+1)
	entries = append(entries, d.entries[:i]...)
	entries = append(entries, entry{key: orNil(key), value: orNil(value)})
	if found {
		i++
	}
	entries = append(entries, d.entries[i:]...)
	return Dict{entries: entries}
}

// Delete returns a new dictionary without the key.
func (d Dict) Delete(key Value) Dict {
	i, found := d.search(key)
	if !found {
		return d
	}
	entries := make([]entry, 0, len(d.entries)-1)
	entries = append(entries, d.entries[:i]...)
	entries = append(entries, d.entries[i+1:]...)
	return Dict{entries: entries}
}

// Ref returns the value for key or def if key is absent.
func (d Dict) Ref(key, def Value) Value {
	if i, found := d.search(key); found {
		return d.entries[i].value
	}
	return def
}

// HasKey reports whether key is present.
func (d Dict) HasKey(key Value) bool {
	_, found := d.search(key)
	return found
}

// Len returns number of entries.
func (d Dict) Len() int { return len(d.entries) }

// Keys returns keys in Compare order.
func (d Dict) Keys() []Value {
	keys := make([]Value, len(d.entries))
	for i := range d.entries {
		keys[i] = d.entries[i].key
	}
	return keys
}

// Values returns values ordered by their keys.
func (d Dict) Values() []Value {
	values := make([]Value, len(d.entries))
	for i := range d.entries {
		values[i] = d.entries[i].value
	}
	return values
}

func (d Dict) search(key Value) (int, bool) {
	key = orNil(key)
	i := sort.Search(len(d.entries), func(i int) bool {
		return Compare(d.entries[i].key, key) >= 0
	})
	return i, i < len(d.entries) && Compare(d.entries[i].key, key) == 0
}

// ToFloat64 converts numeric values to float64.
func ToFloat64(v Value) (float64, bool) {
	switch x := v.(type) {
	case Int:
		return float64(x), true
	case Uint64:
		return float64(x), true
	case Real:
		return float64(x), true
	case Complex:
		if imag(x) == 0 {
			return real(x), true
		}
	}
	return 0, false
}

// ToInt64 converts exact integer values to int64.
func ToInt64(v Value) (int64, bool) {
	switch x := v.(type) {
	case Int:
		return int64(x), true
	case Uint64:
		return int64(x), true
	}
	return 0, false
}

func copyValues(values []Value) []Value {
	items := make([]Value, len(values))
	for i := range values {
		items[i] = orNil(values[i])
	}
	return items
}

func orNil(v Value) Value {
	if v == nil {
		return Nil
	}
	return v
}
