package pmt

import (
	"bytes"
	"cmp"
	"strings"
)

// uniform is implemented by every Uniform instantiation.
type uniform interface {
	Value
	elementType() elementType
	length() int
	same(uniform) bool
	compareTo(uniform) int
	encode(*bytes.Buffer)
}

func (u Uniform[T]) elementType() elementType {
	var zero T
	return elementTypeOf(zero)
}

func (u Uniform[T]) length() int { return len(u.items) }

// same reports whether both vectors share the underlying storage.
func (u Uniform[T]) same(o uniform) bool {
	v, ok := o.(Uniform[T])
	if !ok || len(u.items) != len(v.items) {
		return false
	}
	return len(u.items) == 0 || &u.items[0] == &v.items[0]
}

// compareTo compares vectors with the same element type lexicographically.
func (u Uniform[T]) compareTo(o uniform) int {
	v := o.(Uniform[T])
	for i := 0; i < len(u.items) && i < len(v.items); i++ {
		if c := compareElements(u.items[i], v.items[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(u.items), len(v.items))
}

func compareElements[T Number](a, b T) int {
	switch x := any(a).(type) {
	case uint8:
		return cmp.Compare(x, any(b).(uint8))
	case int8:
		return cmp.Compare(x, any(b).(int8))
	case uint16:
		return cmp.Compare(x, any(b).(uint16))
	case int16:
		return cmp.Compare(x, any(b).(int16))
	case uint32:
		return cmp.Compare(x, any(b).(uint32))
	case int32:
		return cmp.Compare(x, any(b).(int32))
	case uint64:
		return cmp.Compare(x, any(b).(uint64))
	case int64:
		return cmp.Compare(x, any(b).(int64))
	case float32:
		return cmp.Compare(x, any(b).(float32))
	case float64:
		return cmp.Compare(x, any(b).(float64))
	case complex64:
		return compareComplex(complex128(x), complex128(any(b).(complex64)))
	case complex128:
		return compareComplex(x, any(b).(complex128))
	}
	return 0
}

func compareComplex(a, b complex128) int {
	if c := cmp.Compare(real(a), real(b)); c != 0 {
		return c
	}
	return cmp.Compare(imag(a), imag(b))
}

// Eq reports whether a and b are the same object. Immediate values (null,
// booleans, symbols and numbers) are the same object when they have the
// same kind and value.
func Eq(a, b Value) bool {
	a, b = orNil(a), orNil(b)
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case Tuple:
		return sameValues(x.items, b.(Tuple).items)
	case Vector:
		return sameValues(x.items, b.(Vector).items)
	case Dict:
		y := b.(Dict)
		return len(x.entries) == len(y.entries) &&
			(len(x.entries) == 0 || &x.entries[0] == &y.entries[0])
	case uniform:
		return x.same(b.(uniform))
	}
	return a == b
}

// Eqv is Eq extended to compare uniform vectors by their contents.
func Eqv(a, b Value) bool {
	if Eq(a, b) {
		return true
	}
	x, ok := a.(uniform)
	if !ok {
		return false
	}
	y, ok := b.(uniform)
	if !ok || x.elementType() != y.elementType() {
		return false
	}
	return x.compareTo(y) == 0
}

// Equal reports whether a and b are structurally equal.
func Equal(a, b Value) bool {
	a, b = orNil(a), orNil(b)
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case *Pair:
		y := b.(*Pair)
		return Equal(x.car, y.car) && Equal(x.cdr, y.cdr)
	case Tuple:
		return equalValues(x.items, b.(Tuple).items)
	case Vector:
		return equalValues(x.items, b.(Vector).items)
	case Dict:
		y := b.(Dict)
		if len(x.entries) != len(y.entries) {
			return false
		}
		for i := range x.entries {
			if !Equal(x.entries[i].key, y.entries[i].key) ||
				!Equal(x.entries[i].value, y.entries[i].value) {
				return false
			}
		}
		return true
	}
	return Eqv(a, b)
}

// Compare defines a total order over values so they can be used as sorted
// keys. Values of different kinds are ordered by kind. It returns -1, 0 or
// +1.
func Compare(a, b Value) int {
	a, b = orNil(a), orNil(b)
	if c := cmp.Compare(a.Kind(), b.Kind()); c != 0 {
		return c
	}
	switch x := a.(type) {
	case null:
		return 0
	case Bool:
		return compareBool(bool(x), bool(b.(Bool)))
	case Symbol:
		return strings.Compare(string(x), string(b.(Symbol)))
	case Int:
		return cmp.Compare(x, b.(Int))
	case Uint64:
		return cmp.Compare(x, b.(Uint64))
	case Real:
		return cmp.Compare(x, b.(Real))
	case Complex:
		return compareComplex(complex128(x), complex128(b.(Complex)))
	case *Pair:
		y := b.(*Pair)
		if c := Compare(x.car, y.car); c != 0 {
			return c
		}
		return Compare(x.cdr, y.cdr)
	case Tuple:
		return compareValues(x.items, b.(Tuple).items)
	case Vector:
		return compareValues(x.items, b.(Vector).items)
	case Dict:
		y := b.(Dict)
		for i := 0; i < len(x.entries) && i < len(y.entries); i++ {
			if c := Compare(x.entries[i].key, y.entries[i].key); c != 0 {
				return c
			}
			if c := Compare(x.entries[i].value, y.entries[i].value); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(x.entries), len(y.entries))
	case uniform:
		y := b.(uniform)
		if c := cmp.Compare(x.elementType(), y.elementType()); c != 0 {
			return c
		}
		return x.compareTo(y)
	}
	return 0
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

func sameValues(a, b []Value) bool {
	return len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
}

func equalValues(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func compareValues(a, b []Value) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}
