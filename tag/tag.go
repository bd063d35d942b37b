// Package tag provides stream tags and the ordered store that keeps them
// alongside a buffer.
package tag

import (
	"fmt"
	"sync"

	"github.com/google/btree"

	"pipelined.dev/flow/pmt"
)

// Tag annotates the item at absolute Offset of a stream.
type Tag struct {
	Offset uint64
	Key    pmt.Value
	Value  pmt.Value
	// Source identifies the block that created the tag. Nil if unknown.
	Source pmt.Value
}

// New returns a tag without source.
func New(offset uint64, key, value pmt.Value) Tag {
	return Tag{Offset: offset, Key: key, Value: value, Source: pmt.Nil}
}

// WithOffset returns a copy of the tag moved to offset.
func (t Tag) WithOffset(offset uint64) Tag {
	t.Offset = offset
	return t
}

// Equal reports whether tags have the same offset and structurally equal
// key, value and source.
func (t Tag) Equal(o Tag) bool {
	return t.Offset == o.Offset &&
		pmt.Equal(t.Key, o.Key) &&
		pmt.Equal(t.Value, o.Value) &&
		pmt.Equal(t.Source, o.Source)
}

func (t Tag) String() string {
	return fmt.Sprintf("%d %v=%v", t.Offset, t.Key, t.Value)
}

const degree = 16

type item struct {
	Tag
	seq uint64
}

// less orders by offset, tags at the same offset keep insertion order.
func less(a, b item) bool {
	if a.Offset != b.Offset {
		return a.Offset < b.Offset
	}
	return a.seq < b.seq
}

// Store is an ordered collection of tags. It is safe to query the store while
// tags are added and pruned.
type Store struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[item]
	seq  uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		tree: btree.NewG(degree, less),
	}
}

// Add inserts the tag.
func (s *Store) Add(t Tag) {
	if t.Key == nil {
		t.Key = pmt.Nil
	}
	if t.Value == nil {
		t.Value = pmt.Nil
	}
	if t.Source == nil {
		t.Source = pmt.Nil
	}
	s.mu.Lock()
	s.seq++
	s.tree.ReplaceOrInsert(item{Tag: t, seq: s.seq})
	s.mu.Unlock()
}

// Query returns tags with start <= offset < end in ascending offset order.
func (s *Store) Query(start, end uint64) []Tag {
	return s.query(start, end, nil)
}

// QueryKey returns tags in range [start, end) that have the key.
func (s *Store) QueryKey(start, end uint64, key pmt.Value) []Tag {
	return s.query(start, end, func(t Tag) bool {
		return pmt.Equal(t.Key, key)
	})
}

func (s *Store) query(start, end uint64, filter func(Tag) bool) []Tag {
	if start >= end {
		return nil
	}
	var tags []Tag
	s.mu.RLock()
	s.tree.AscendRange(item{Tag: Tag{Offset: start}}, item{Tag: Tag{Offset: end}}, func(i item) bool {
		if filter == nil || filter(i.Tag) {
			tags = append(tags, i.Tag)
		}
		return true
	})
	s.mu.RUnlock()
	return tags
}

// Prune removes tags with offset below the low water mark and returns how
// many were removed.
func (s *Store) Prune(lowWater uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for {
		first, ok := s.tree.Min()
		if !ok || first.Offset >= lowWater {
			return n
		}
		s.tree.DeleteMin()
		n++
	}
}

// Len returns number of stored tags.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len()
}
