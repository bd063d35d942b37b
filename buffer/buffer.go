// Package buffer implements the ring buffer that connects an output port of
// one block with the input ports of its consumers.
//
// A Buffer has exactly one writer and any number of Readers. Positions are
// absolute item counts: the writer owns the write cursor, every reader owns
// its read cursor. Cursors are published atomically, so the data region
// itself needs no lock: the writer only touches free items and readers only
// touch committed ones.
//
// Regions returned by the buffer are always contiguous, the ring is exposed
// through a region twice its size, either double-mapped or mirrored.
package buffer

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"pipelined.dev/flow/tag"
)

// ErrResourceExhausted is returned when buffer memory can't be allocated.
var ErrResourceExhausted = errors.New("buffer resources exhausted")

type (
	// Buffer is a single-writer multi-reader ring of fixed size items.
	Buffer struct {
		itemSize int
		capacity int
		storage  Storage
		mem      memory
		data     []byte
		tags     *tag.Store

		written atomic.Uint64
		done    atomic.Bool

		mu      sync.Mutex
		readers []*Reader

		// writable is reported by the last WriteRegion call.
		writable int
	}

	// Reader is a read cursor of the buffer.
	Reader struct {
		buf     *Buffer
		history uint64
		read    atomic.Uint64
		done    atomic.Bool

		// readable is reported by the last Region call.
		readable int
	}

	// Option configures the buffer allocation.
	Option func(*options)

	options struct {
		storage Storage
		minimum int
	}
)

// WithStorage selects storage type. Auto is used by default.
func WithStorage(s Storage) Option {
	return func(o *options) {
		o.storage = s
	}
}

// WithMinimum sets the capacity the buffer may be reduced to if allocation
// of requested capacity fails. By default no reduction is allowed.
func WithMinimum(items int) Option {
	return func(o *options) {
		o.minimum = items
	}
}

// New allocates a buffer that holds at least capacity items of itemSize
// bytes. If allocation fails it is retried once with half of the capacity,
// but not less than the minimum.
func New(itemSize, capacity int, opts ...Option) (*Buffer, error) {
	if itemSize <= 0 || capacity <= 0 {
		return nil, fmt.Errorf("invalid buffer size: item %d capacity %d", itemSize, capacity)
	}
	o := options{storage: Auto, minimum: capacity}
	for _, opt := range opts {
		opt(&o)
	}
	b, err := allocate(o.storage, itemSize, capacity)
	if err == nil {
		return b, nil
	}
	if reduced := max(capacity/2, o.minimum); reduced < capacity {
		if b, retryErr := allocate(o.storage, itemSize, reduced); retryErr == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%d items of %d bytes: %v: %w", capacity, itemSize, err, ErrResourceExhausted)
}

func allocate(s Storage, itemSize, capacity int) (*Buffer, error) {
	var (
		mem memory
		err error
	)
	switch s {
	case Mirror:
		mem, err = newMirror(capacity * itemSize)
	case DoubleMapped:
		capacity = roundUp(capacity, granularity(itemSize))
		mem, err = newDoubleMapped(capacity * itemSize)
	default:
		s = Mirror
		if doubleMappedSupported {
			capacity = roundUp(capacity, granularity(itemSize))
			if mem, err = newDoubleMapped(capacity * itemSize); err == nil {
				s = DoubleMapped
				break
			}
		}
		mem, err = newMirror(capacity * itemSize)
	}
	if err != nil {
		return nil, err
	}
	return &Buffer{
		itemSize: itemSize,
		capacity: capacity,
		storage:  s,
		mem:      mem,
		data:     mem.bytes(),
		tags:     tag.NewStore(),
	}, nil
}

// ItemSize returns size of a single item in bytes.
func (b *Buffer) ItemSize() int { return b.itemSize }

// Capacity returns capacity in items.
func (b *Buffer) Capacity() int { return b.capacity }

// Storage returns the actual storage type.
func (b *Buffer) Storage() Storage { return b.storage }

// Tags returns the store of tags written into this buffer.
func (b *Buffer) Tags() *tag.Store { return b.tags }

// ItemsWritten returns the write cursor.
func (b *Buffer) ItemsWritten() uint64 { return b.written.Load() }

// AddReader attaches a new reader. The reader starts at the current write
// cursor and keeps history-1 items before its read cursor available. The
// history of a fresh stream reads as zeroes.
func (b *Buffer) AddReader(history int) *Reader {
	if history < 1 {
		history = 1
	}
	if history > b.capacity {
		panic(fmt.Sprintf("buffer: history %d exceeds capacity %d", history, b.capacity))
	}
	r := &Reader{
		buf:     b,
		history: uint64(history - 1),
	}
	r.read.Store(b.written.Load())
	b.mu.Lock()
	b.readers = append(b.readers, r)
	b.mu.Unlock()
	return r
}

// Readers returns attached readers.
func (b *Buffer) Readers() []*Reader {
	b.mu.Lock()
	defer b.mu.Unlock()
	readers := make([]*Reader, len(b.readers))
	copy(readers, b.readers)
	return readers
}

// lowWater returns the oldest position still needed by active readers and
// whether any reader is active.
func (b *Buffer) lowWater() (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var (
		low    int64
		active bool
	)
	for _, r := range b.readers {
		if r.done.Load() {
			continue
		}
		if p := r.start(); !active || p < low {
			low, active = p, true
		}
	}
	return low, active
}

// Space returns number of items the writer can write without overwriting
// data still needed by readers. Finished readers are ignored.
func (b *Buffer) Space() int {
	low, active := b.lowWater()
	if !active {
		return b.capacity
	}
	return b.capacity - int(int64(b.written.Load())-low)
}

// Fullness returns the share of capacity occupied by unread data.
func (b *Buffer) Fullness() float64 {
	return float64(b.capacity-b.Space()) / float64(b.capacity)
}

// WriteRegion returns a contiguous writable region for up to max items and
// number of items it holds. Zero items are returned if the writer caught up
// with the slowest reader.
func (b *Buffer) WriteRegion(max int) ([]byte, int) {
	n := min(max, b.Space())
	if n < 0 {
		n = 0
	}
	b.writable = n
	off := b.offset(int64(b.written.Load()))
	return b.data[off : off+n*b.itemSize], n
}

// CommitWrite advances the write cursor by n items. It panics if n exceeds
// the number of items reported by the last WriteRegion call.
func (b *Buffer) CommitWrite(n int) {
	if n < 0 || n > b.writable {
		panic(fmt.Sprintf("buffer: commit of %d items exceeds writable %d", n, b.writable))
	}
	if n == 0 {
		return
	}
	b.mem.sync(b.offset(int64(b.written.Load())), n*b.itemSize)
	b.writable -= n
	b.written.Add(uint64(n))
}

// SetDone marks that the writer will not write anymore.
func (b *Buffer) SetDone() { b.done.Store(true) }

// Done reports whether the writer is done.
func (b *Buffer) Done() bool { return b.done.Load() }

// ReadersDone reports whether all readers are done.
func (b *Buffer) ReadersDone() bool {
	_, active := b.lowWater()
	return !active
}

// Drained reports whether every reader has either consumed all written
// items or is done.
func (b *Buffer) Drained() bool {
	written := b.written.Load()
	for _, r := range b.Readers() {
		if !r.done.Load() && r.read.Load() < written {
			return false
		}
	}
	return true
}

// PruneTags removes tags that every active reader has already consumed.
func (b *Buffer) PruneTags() int {
	low := b.written.Load()
	for _, r := range b.Readers() {
		if r.done.Load() {
			continue
		}
		if read := r.read.Load(); read < low {
			low = read
		}
	}
	return b.tags.Prune(low)
}

// Close releases buffer memory. The buffer must not be used afterwards.
func (b *Buffer) Close() error {
	b.data = nil
	return b.mem.close()
}

// offset returns byte offset of the absolute position in the first half of
// the ring.
func (b *Buffer) offset(pos int64) int {
	idx := pos % int64(b.capacity)
	if idx < 0 {
		idx += int64(b.capacity)
	}
	return int(idx) * b.itemSize
}

// Buffer returns buffer of the reader.
func (r *Reader) Buffer() *Buffer { return r.buf }

// History returns the history the reader was created with.
func (r *Reader) History() int { return int(r.history) + 1 }

// ItemsRead returns number of consumed items.
func (r *Reader) ItemsRead() uint64 { return r.read.Load() }

// start returns position of the first item of the history window.
func (r *Reader) start() int64 {
	return int64(r.read.Load()) - int64(r.history)
}

// Available returns number of committed items not consumed yet.
func (r *Reader) Available() int {
	return int(r.buf.written.Load() - r.read.Load())
}

// Region returns a contiguous readable region for up to max new items. The
// region starts with history-1 items preceding the read cursor, so it holds
// n+history-1 items. n is the number of new items in the region.
func (r *Reader) Region(max int) ([]byte, int) {
	n := min(max, r.Available())
	if n < 0 {
		n = 0
	}
	r.readable = n
	b := r.buf
	off := b.offset(r.start())
	return b.data[off : off+(n+int(r.history))*b.itemSize], n
}

// Commit advances the read cursor by n items. It panics if n exceeds the
// number of items reported by the last Region call.
func (r *Reader) Commit(n int) {
	if n < 0 || n > r.readable {
		panic(fmt.Sprintf("buffer: consume of %d items exceeds readable %d", n, r.readable))
	}
	r.readable -= n
	r.read.Add(uint64(n))
}

// SetDone marks that the reader will not read anymore.
func (r *Reader) SetDone() { r.done.Store(true) }

// Done reports whether the reader is done.
func (r *Reader) Done() bool { return r.done.Load() }
