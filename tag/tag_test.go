package tag_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/flow/pmt"
	"pipelined.dev/flow/tag"
)

var (
	keyFreq = pmt.Intern("freq")
	keyLen  = pmt.Intern("packet_len")
)

func offsets(tags []tag.Tag) []uint64 {
	result := make([]uint64, 0, len(tags))
	for _, t := range tags {
		result = append(result, t.Offset)
	}
	return result
}

func TestStore(t *testing.T) {
	newStore := func() *tag.Store {
		s := tag.NewStore()
		// out of order insertion
		for _, o := range []uint64{50, 10, 30, 10, 70, 0} {
			key := keyFreq
			if o == 30 {
				key = keyLen
			}
			s.Add(tag.New(o, key, pmt.Int(int64(o))))
		}
		return s
	}

	testQuery := func(t *testing.T) {
		s := newStore()
		assert.Equal(t, []uint64{10, 10, 30, 50}, offsets(s.Query(10, 70)))
		assert.Equal(t, []uint64{0, 10, 10, 30, 50, 70}, offsets(s.Query(0, 71)))
		assert.Empty(t, s.Query(11, 30))
		assert.Empty(t, s.Query(30, 30))
		assert.Empty(t, s.Query(40, 20))
	}
	testQueryIdempotent := func(t *testing.T) {
		s := newStore()
		first := s.Query(0, 100)
		second := s.Query(0, 100)
		assert.Equal(t, len(first), len(second))
		for i := range first {
			assert.True(t, first[i].Equal(second[i]))
		}
	}
	testQueryKey := func(t *testing.T) {
		s := newStore()
		assert.Equal(t, []uint64{30}, offsets(s.QueryKey(0, 100, keyLen)))
		assert.Equal(t, []uint64{0, 10, 10}, offsets(s.QueryKey(0, 30, keyFreq)))
	}
	testInsertionOrder := func(t *testing.T) {
		s := tag.NewStore()
		s.Add(tag.New(5, keyFreq, pmt.Int(1)))
		s.Add(tag.New(5, keyFreq, pmt.Int(2)))
		s.Add(tag.New(5, keyFreq, pmt.Int(3)))
		tags := s.Query(5, 6)
		assert.Len(t, tags, 3)
		for i, tg := range tags {
			assert.True(t, pmt.Equal(pmt.Int(int64(i+1)), tg.Value))
		}
	}
	testPrune := func(t *testing.T) {
		s := newStore()
		assert.Equal(t, 3, s.Prune(30))
		assert.Equal(t, 3, s.Len())
		assert.Equal(t, []uint64{30, 50, 70}, offsets(s.Query(0, 100)))
		assert.Equal(t, 0, s.Prune(30))
		assert.Equal(t, 3, s.Prune(1000))
		assert.Equal(t, 0, s.Len())
	}
	testNilFields := func(t *testing.T) {
		s := tag.NewStore()
		s.Add(tag.Tag{Offset: 1})
		tags := s.Query(0, 2)
		assert.Len(t, tags, 1)
		assert.True(t, pmt.IsNull(tags[0].Key))
		assert.True(t, pmt.IsNull(tags[0].Source))
	}
	testConcurrent := func(t *testing.T) {
		s := tag.NewStore()
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := uint64(0); i < 1000; i++ {
				s.Add(tag.New(i, keyFreq, pmt.Nil))
				if i%100 == 0 {
					s.Prune(i / 2)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				tags := s.Query(0, 1000)
				for j := 1; j < len(tags); j++ {
					if tags[j-1].Offset > tags[j].Offset {
						t.Errorf("unordered tags at %d", j)
						return
					}
				}
			}
		}()
		wg.Wait()
	}

	t.Run("query", testQuery)
	t.Run("query idempotent", testQueryIdempotent)
	t.Run("query key", testQueryKey)
	t.Run("insertion order", testInsertionOrder)
	t.Run("prune", testPrune)
	t.Run("nil fields", testNilFields)
	t.Run("concurrent", testConcurrent)
}
