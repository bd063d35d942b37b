package pmt

import (
	"fmt"
	"strconv"
	"strings"
)

type elementType uint8

const (
	elementU8 elementType = iota
	elementS8
	elementU16
	elementS16
	elementU32
	elementS32
	elementU64
	elementS64
	elementF32
	elementF64
	elementC32
	elementC64
)

// elementSizes are byte sizes of uniform elements.
var elementSizes = [...]int{1, 1, 2, 2, 4, 4, 8, 8, 4, 8, 8, 16}

func elementTypeOf(v any) elementType {
	switch v.(type) {
	case uint8:
		return elementU8
	case int8:
		return elementS8
	case uint16:
		return elementU16
	case int16:
		return elementS16
	case uint32:
		return elementU32
	case int32:
		return elementS32
	case uint64:
		return elementU64
	case int64:
		return elementS64
	case float32:
		return elementF32
	case float64:
		return elementF64
	case complex64:
		return elementC32
	}
	return elementC64
}

func (null) String() string { return "()" }

func (b Bool) String() string {
	if b {
		return "#t"
	}
	return "#f"
}

func (s Symbol) String() string { return string(s) }

func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }

func (u Uint64) String() string { return strconv.FormatUint(uint64(u), 10) }

func (r Real) String() string { return strconv.FormatFloat(float64(r), 'g', -1, 64) }

func (c Complex) String() string {
	return "{" + Real(real(c)).String() + " " + Real(imag(c)).String() + "}"
}

// String writes proper lists as (a b c) and improper ones with a dot.
func (p *Pair) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	var v Value = p
	for first := true; ; first = false {
		x, ok := v.(*Pair)
		if !ok {
			break
		}
		if !first {
			sb.WriteByte(' ')
		}
		sb.WriteString(x.car.String())
		v = x.cdr
	}
	if !IsNull(v) {
		sb.WriteString(" . ")
		sb.WriteString(v.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

func (t Tuple) String() string { return joinValues("{", t.items, "}") }

func (v Vector) String() string { return joinValues("#(", v.items, ")") }

func (d Dict) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, e := range d.entries {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString("(" + e.key.String() + " . " + e.value.String() + ")")
	}
	sb.WriteByte(')')
	return sb.String()
}

func (u Uniform[T]) String() string {
	var sb strings.Builder
	sb.WriteString("#[")
	for i := range u.items {
		if i > 0 {
			sb.WriteByte(' ')
		}
		switch x := any(u.items[i]).(type) {
		case complex64:
			sb.WriteString(Complex(complex128(x)).String())
		case complex128:
			sb.WriteString(Complex(x).String())
		default:
			fmt.Fprint(&sb, x)
		}
	}
	sb.WriteByte(']')
	return sb.String()
}

func joinValues(open string, items []Value, close string) string {
	var sb strings.Builder
	sb.WriteString(open)
	for i := range items {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(items[i].String())
	}
	sb.WriteString(close)
	return sb.String()
}
