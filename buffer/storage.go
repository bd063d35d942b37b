package buffer

import (
	"errors"
	"fmt"
)

// Storage selects the memory layout of the buffer.
type Storage int

const (
	// Auto uses double-mapped memory where the platform supports it and
	// falls back to Mirror.
	Auto Storage = iota
	// Mirror keeps two copies of the ring in ordinary memory. Every
	// committed write is copied into the second half.
	Mirror
	// DoubleMapped maps the same physical pages twice, back to back.
	DoubleMapped
)

var storageNames = map[Storage]string{
	Auto:         "auto",
	Mirror:       "mirror",
	DoubleMapped: "doublemap",
}

func (s Storage) String() string {
	if n, ok := storageNames[s]; ok {
		return n
	}
	return "unknown"
}

// ParseStorage returns storage by its name.
func ParseStorage(name string) (Storage, error) {
	for s, n := range storageNames {
		if n == name {
			return s, nil
		}
	}
	return Auto, fmt.Errorf("unknown buffer storage %q", name)
}

// errUnsupported is returned by storage that the platform can't provide.
var errUnsupported = errors.New("storage is not supported on this platform")

// memory is a ring of size bytes exposed as a contiguous region of 2*size
// bytes, so any span of up to size bytes starting in the first half can be
// addressed without wrapping.
type memory interface {
	bytes() []byte
	// sync publishes bytes written at [off, off+n) to their alias.
	sync(off, n int)
	close() error
}

// maxMirrorBytes bounds allocations of mirrored storage.
var maxMirrorBytes = 1 << 30

type mirror struct {
	buf  []byte
	size int
}

func newMirror(size int) (m memory, err error) {
	if size <= 0 || size > maxMirrorBytes/2 {
		return nil, fmt.Errorf("mirror of %d bytes: %w", size, ErrResourceExhausted)
	}
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("mirror of %d bytes: %v: %w", size, r, ErrResourceExhausted)
		}
	}()
	return &mirror{
		buf:  make([]byte, 2*size),
		size: size,
	}, nil
}

func (m *mirror) bytes() []byte { return m.buf }

func (m *mirror) sync(off, n int) {
	end := off + n
	if end <= m.size {
		copy(m.buf[m.size+off:m.size+end], m.buf[off:end])
		return
	}
	copy(m.buf[m.size+off:], m.buf[off:m.size])
	copy(m.buf[:end-m.size], m.buf[m.size:end])
}

func (m *mirror) close() error { return nil }

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	return a / gcd(a, b) * b
}

// roundUp rounds n up to a multiple of m.
func roundUp(n, m int) int {
	return (n + m - 1) / m * m
}
