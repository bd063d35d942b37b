package pmt

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Serialization tags. Multi-byte fields are big-endian.
const (
	tagTrue    byte = 0x00
	tagFalse   byte = 0x01
	tagSymbol  byte = 0x02
	tagInt32   byte = 0x03
	tagDouble  byte = 0x04
	tagComplex byte = 0x05
	tagNull    byte = 0x06
	tagPair    byte = 0x07
	tagVector  byte = 0x08
	tagDict    byte = 0x09
	tagUniform byte = 0x0a
	tagUint64  byte = 0x0b
	tagTuple   byte = 0x0c
	tagInt64   byte = 0x0d
)

const (
	maxDepth = 1024
	// readChunk limits allocation ahead of the data actually read.
	readChunk = 64 << 10
)

// MaxSymbolLength is the longest symbol that can be serialized.
const MaxSymbolLength = math.MaxUint16

var (
	// ErrInvalidEncoding is returned when serialized data cannot be decoded.
	ErrInvalidEncoding = errors.New("invalid pmt encoding")
	// ErrSymbolTooLong is returned when a symbol exceeds MaxSymbolLength.
	ErrSymbolTooLong = errors.New("symbol too long")
)

// Serialize returns the binary representation of v.
func Serialize(v Value) ([]byte, error) {
	var b bytes.Buffer
	if err := encode(&b, orNil(v)); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Write writes the binary representation of v to w.
func Write(w io.Writer, v Value) error {
	b, err := Serialize(v)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Deserialize decodes a single value that occupies all of b.
func Deserialize(b []byte) (Value, error) {
	r := bytes.NewReader(b)
	v, err := decode(r, 0)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidEncoding, r.Len())
	}
	return v, nil
}

// Read decodes the next value from r. If r is not an io.ByteReader, it is
// wrapped with bufio and may be read past the end of the value.
func Read(r io.Reader) (Value, error) {
	rr, ok := r.(reader)
	if !ok {
		rr = bufio.NewReader(r)
	}
	return decode(rr, 0)
}

type reader interface {
	io.Reader
	io.ByteReader
}

func encode(b *bytes.Buffer, v Value) error {
	switch x := v.(type) {
	case null:
		b.WriteByte(tagNull)
	case Bool:
		if x {
			b.WriteByte(tagTrue)
		} else {
			b.WriteByte(tagFalse)
		}
	case Symbol:
		if len(x) > MaxSymbolLength {
			return fmt.Errorf("%w: %d bytes", ErrSymbolTooLong, len(x))
		}
		b.WriteByte(tagSymbol)
		b.Write(binary.BigEndian.AppendUint16(nil, uint16(len(x))))
		b.WriteString(string(x))
	case Int:
		b.WriteByte(tagInt64)
		b.Write(binary.BigEndian.AppendUint64(nil, uint64(x)))
	case Uint64:
		b.WriteByte(tagUint64)
		b.Write(binary.BigEndian.AppendUint64(nil, uint64(x)))
	case Real:
		b.WriteByte(tagDouble)
		b.Write(binary.BigEndian.AppendUint64(nil, math.Float64bits(float64(x))))
	case Complex:
		b.WriteByte(tagComplex)
		b.Write(binary.BigEndian.AppendUint64(nil, math.Float64bits(real(x))))
		b.Write(binary.BigEndian.AppendUint64(nil, math.Float64bits(imag(x))))
	case *Pair:
		b.WriteByte(tagPair)
		if err := encode(b, x.car); err != nil {
			return err
		}
		return encode(b, x.cdr)
	case Tuple:
		b.WriteByte(tagTuple)
		return encodeValues(b, x.items)
	case Vector:
		b.WriteByte(tagVector)
		return encodeValues(b, x.items)
	case Dict:
		b.WriteByte(tagDict)
		b.Write(binary.BigEndian.AppendUint32(nil, uint32(len(x.entries))))
		for _, e := range x.entries {
			if err := encode(b, e.key); err != nil {
				return err
			}
			if err := encode(b, e.value); err != nil {
				return err
			}
		}
	case uniform:
		b.WriteByte(tagUniform)
		x.encode(b)
	default:
		panic(fmt.Sprintf("pmt: cannot serialize %T", v))
	}
	return nil
}

func encodeValues(b *bytes.Buffer, items []Value) error {
	b.Write(binary.BigEndian.AppendUint32(nil, uint32(len(items))))
	for i := range items {
		if err := encode(b, items[i]); err != nil {
			return err
		}
	}
	return nil
}

// encode writes element type, length, zero padding count and elements.
func (u Uniform[T]) encode(b *bytes.Buffer) {
	b.WriteByte(byte(u.elementType()))
	b.Write(binary.BigEndian.AppendUint32(nil, uint32(len(u.items))))
	b.WriteByte(0)
	var buf []byte
	for i := range u.items {
		switch x := any(u.items[i]).(type) {
		case uint8:
			buf = append(buf, x)
		case int8:
			buf = append(buf, byte(x))
		case uint16:
			buf = binary.BigEndian.AppendUint16(buf, x)
		case int16:
			buf = binary.BigEndian.AppendUint16(buf, uint16(x))
		case uint32:
			buf = binary.BigEndian.AppendUint32(buf, x)
		case int32:
			buf = binary.BigEndian.AppendUint32(buf, uint32(x))
		case uint64:
			buf = binary.BigEndian.AppendUint64(buf, x)
		case int64:
			buf = binary.BigEndian.AppendUint64(buf, uint64(x))
		case float32:
			buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(x))
		case float64:
			buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(x))
		case complex64:
			buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(real(x)))
			buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(imag(x)))
		case complex128:
			buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(real(x)))
			buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(imag(x)))
		}
	}
	b.Write(buf)
}

func decode(r reader, depth int) (Value, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: nesting exceeds %d", ErrInvalidEncoding, maxDepth)
	}
	tag, err := r.ReadByte()
	if err != nil {
		return nil, unexpected(err)
	}
	switch tag {
	case tagTrue:
		return True, nil
	case tagFalse:
		return False, nil
	case tagNull:
		return Nil, nil
	case tagSymbol:
		n, err := readUint(r, 2)
		if err != nil {
			return nil, err
		}
		b, err := readBytes(r, int(n))
		if err != nil {
			return nil, err
		}
		return Intern(string(b)), nil
	case tagInt32:
		n, err := readUint(r, 4)
		if err != nil {
			return nil, err
		}
		return Int(int32(n)), nil
	case tagInt64:
		n, err := readUint(r, 8)
		if err != nil {
			return nil, err
		}
		return Int(int64(n)), nil
	case tagUint64:
		n, err := readUint(r, 8)
		if err != nil {
			return nil, err
		}
		return Uint64(n), nil
	case tagDouble:
		n, err := readUint(r, 8)
		if err != nil {
			return nil, err
		}
		return Real(math.Float64frombits(n)), nil
	case tagComplex:
		re, err := readUint(r, 8)
		if err != nil {
			return nil, err
		}
		im, err := readUint(r, 8)
		if err != nil {
			return nil, err
		}
		return Complex(complex(math.Float64frombits(re), math.Float64frombits(im))), nil
	case tagPair:
		car, err := decode(r, depth+1)
		if err != nil {
			return nil, err
		}
		cdr, err := decode(r, depth+1)
		if err != nil {
			return nil, err
		}
		return Cons(car, cdr), nil
	case tagTuple:
		items, err := decodeValues(r, depth)
		if err != nil {
			return nil, err
		}
		return Tuple{items: items}, nil
	case tagVector:
		items, err := decodeValues(r, depth)
		if err != nil {
			return nil, err
		}
		return Vector{items: items}, nil
	case tagDict:
		n, err := readUint(r, 4)
		if err != nil {
			return nil, err
		}
		d := NewDict()
		for i := uint64(0); i < n; i++ {
			k, err := decode(r, depth+1)
			if err != nil {
				return nil, err
			}
			v, err := decode(r, depth+1)
			if err != nil {
				return nil, err
			}
			d = d.Add(k, v)
		}
		return d, nil
	case tagUniform:
		return decodeUniform(r)
	}
	return nil, fmt.Errorf("%w: unknown tag %#x", ErrInvalidEncoding, tag)
}

func decodeValues(r reader, depth int) ([]Value, error) {
	n, err := readUint(r, 4)
	if err != nil {
		return nil, err
	}
	items := make([]Value, 0, min(n, 1024))
	for i := uint64(0); i < n; i++ {
		v, err := decode(r, depth+1)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, nil
}

func decodeUniform(r reader) (Value, error) {
	et, err := r.ReadByte()
	if err != nil {
		return nil, unexpected(err)
	}
	if int(et) >= len(elementSizes) {
		return nil, fmt.Errorf("%w: unknown element type %d", ErrInvalidEncoding, et)
	}
	n, err := readUint(r, 4)
	if err != nil {
		return nil, err
	}
	npad, err := r.ReadByte()
	if err != nil {
		return nil, unexpected(err)
	}
	if _, err := readBytes(r, int(npad)); err != nil {
		return nil, err
	}
	b, err := readBytes(r, int(n)*elementSizes[et])
	if err != nil {
		return nil, err
	}
	switch elementType(et) {
	case elementU8:
		return NewBlob(b), nil
	case elementS8:
		return decodeElements(b, 1, func(p []byte) int8 { return int8(p[0]) }), nil
	case elementU16:
		return decodeElements(b, 2, binary.BigEndian.Uint16), nil
	case elementS16:
		return decodeElements(b, 2, func(p []byte) int16 { return int16(binary.BigEndian.Uint16(p)) }), nil
	case elementU32:
		return decodeElements(b, 4, binary.BigEndian.Uint32), nil
	case elementS32:
		return decodeElements(b, 4, func(p []byte) int32 { return int32(binary.BigEndian.Uint32(p)) }), nil
	case elementU64:
		return decodeElements(b, 8, binary.BigEndian.Uint64), nil
	case elementS64:
		return decodeElements(b, 8, func(p []byte) int64 { return int64(binary.BigEndian.Uint64(p)) }), nil
	case elementF32:
		return decodeElements(b, 4, func(p []byte) float32 { return math.Float32frombits(binary.BigEndian.Uint32(p)) }), nil
	case elementF64:
		return decodeElements(b, 8, func(p []byte) float64 { return math.Float64frombits(binary.BigEndian.Uint64(p)) }), nil
	case elementC32:
		return decodeElements(b, 8, func(p []byte) complex64 {
			return complex(math.Float32frombits(binary.BigEndian.Uint32(p)), math.Float32frombits(binary.BigEndian.Uint32(p[4:])))
		}), nil
	}
	return decodeElements(b, 16, func(p []byte) complex128 {
		return complex(math.Float64frombits(binary.BigEndian.Uint64(p)), math.Float64frombits(binary.BigEndian.Uint64(p[8:])))
	}), nil
}

func decodeElements[T Number](b []byte, size int, fn func([]byte) T) Uniform[T] {
	items := make([]T, len(b)/size)
	for i := range items {
		items[i] = fn(b[i*size:])
	}
	return Uniform[T]{items: items}
}

func readUint(r reader, size int) (uint64, error) {
	b, err := readBytes(r, size)
	if err != nil {
		return 0, err
	}
	switch size {
	case 2:
		return uint64(binary.BigEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.BigEndian.Uint32(b)), nil
	}
	return binary.BigEndian.Uint64(b), nil
}

// readBytes reads n bytes. Large lengths come from the input, so the
// result grows with the data read rather than being allocated up front.
func readBytes(r reader, n int) ([]byte, error) {
	if n <= readChunk {
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, unexpected(err)
		}
		return b, nil
	}
	var b bytes.Buffer
	b.Grow(readChunk)
	if _, err := io.CopyN(&b, r, int64(n)); err != nil {
		return nil, unexpected(err)
	}
	return b.Bytes(), nil
}

func unexpected(err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
}
