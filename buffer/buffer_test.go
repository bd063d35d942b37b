package buffer_test

import (
	"encoding/binary"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/flow/buffer"
	"pipelined.dev/flow/pmt"
	"pipelined.dev/flow/tag"
)

const itemSize = 4

func put(region []byte, values ...uint32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(region[i*itemSize:], v)
	}
}

func get(region []byte) []uint32 {
	values := make([]uint32, len(region)/itemSize)
	for i := range values {
		values[i] = binary.LittleEndian.Uint32(region[i*itemSize:])
	}
	return values
}

func write(t *testing.T, b *buffer.Buffer, values ...uint32) {
	t.Helper()
	region, n := b.WriteRegion(len(values))
	require.Equal(t, len(values), n, "writable")
	put(region, values...)
	b.CommitWrite(n)
}

func seq(from, to uint32) []uint32 {
	values := make([]uint32, 0, to-from)
	for v := from; v < to; v++ {
		values = append(values, v)
	}
	return values
}

func TestBuffer(t *testing.T) {
	storages := []buffer.Storage{buffer.Mirror, buffer.Auto}

	testWrap := func(s buffer.Storage) func(*testing.T) {
		return func(t *testing.T) {
			b, err := buffer.New(itemSize, 8, buffer.WithStorage(s))
			require.NoError(t, err)
			defer b.Close()
			r := b.AddReader(1)
			capacity := uint32(b.Capacity())

			// move cursors close to the physical end
			offset := capacity - 3
			write(t, b, seq(0, offset)...)
			_, n := r.Region(int(offset))
			r.Commit(n)

			write(t, b, seq(100, 106)...)
			region, n := r.Region(10)
			assert.Equal(t, 6, n)
			assert.Equal(t, seq(100, 106), get(region))
			r.Commit(4)
			region, n = r.Region(10)
			assert.Equal(t, 2, n)
			assert.Equal(t, seq(104, 106), get(region))
			assert.Equal(t, uint64(offset+4), r.ItemsRead())
			assert.Equal(t, uint64(offset+6), b.ItemsWritten())
		}
	}
	testHistory := func(t *testing.T) {
		b, err := buffer.New(itemSize, 16, buffer.WithStorage(buffer.Mirror))
		require.NoError(t, err)
		r := b.AddReader(3)
		assert.Equal(t, 3, r.History())

		region, n := r.Region(4)
		assert.Equal(t, 0, n)
		assert.Equal(t, []uint32{0, 0}, get(region))

		write(t, b, 1, 2, 3, 4)
		region, n = r.Region(4)
		assert.Equal(t, 4, n)
		assert.Equal(t, []uint32{0, 0, 1, 2, 3, 4}, get(region))
		r.Commit(3)
		region, n = r.Region(4)
		assert.Equal(t, 1, n)
		assert.Equal(t, []uint32{2, 3, 4}, get(region))
		// history items are kept from the writer
		assert.Equal(t, 16-3, b.Space())
	}
	testBackpressure := func(t *testing.T) {
		b, err := buffer.New(itemSize, 8, buffer.WithStorage(buffer.Mirror))
		require.NoError(t, err)
		fast := b.AddReader(1)
		slow := b.AddReader(2)
		assert.Equal(t, 7, b.Space())

		write(t, b, seq(0, 7)...)
		_, n := b.WriteRegion(1)
		assert.Equal(t, 0, n)

		_, n = fast.Region(7)
		fast.Commit(n)
		assert.Equal(t, 0, b.Space(), "slow reader holds the space")
		_, n = slow.Region(2)
		slow.Commit(n)
		assert.Equal(t, 2, b.Space())
		assert.InDelta(t, 0.75, b.Fullness(), 1e-9)

		slow.SetDone()
		assert.Equal(t, 8, b.Space())
		assert.False(t, b.ReadersDone())
		assert.True(t, b.Drained())
		fast.SetDone()
		assert.True(t, b.ReadersDone())
	}
	testContractViolation := func(t *testing.T) {
		b, err := buffer.New(itemSize, 8, buffer.WithStorage(buffer.Mirror))
		require.NoError(t, err)
		r := b.AddReader(1)
		_, n := b.WriteRegion(4)
		assert.Equal(t, 4, n)
		assert.Panics(t, func() { b.CommitWrite(5) })
		b.CommitWrite(4)
		_, n = r.Region(2)
		assert.Equal(t, 2, n)
		assert.Panics(t, func() { r.Commit(3) })
		assert.Panics(t, func() { r.Commit(-1) })
	}
	testDone := func(t *testing.T) {
		b, err := buffer.New(itemSize, 8, buffer.WithStorage(buffer.Mirror))
		require.NoError(t, err)
		r := b.AddReader(1)
		assert.False(t, b.Done())
		write(t, b, 1, 2)
		b.SetDone()
		assert.True(t, b.Done())
		assert.False(t, b.Drained())
		_, n := r.Region(8)
		r.Commit(n)
		assert.True(t, b.Drained())
	}
	testPruneTags := func(t *testing.T) {
		b, err := buffer.New(itemSize, 8, buffer.WithStorage(buffer.Mirror))
		require.NoError(t, err)
		r := b.AddReader(1)
		write(t, b, 1, 2, 3, 4)
		for o := uint64(0); o < 4; o++ {
			b.Tags().Add(tag.New(o, pmt.Intern("k"), pmt.Nil))
		}
		assert.Equal(t, 0, b.PruneTags())
		_, n := r.Region(2)
		r.Commit(n)
		assert.Equal(t, 2, b.PruneTags())
		assert.Equal(t, 2, b.Tags().Len())
		r.SetDone()
		assert.Equal(t, 2, b.PruneTags())
	}
	testConcurrent := func(s buffer.Storage) func(*testing.T) {
		return func(t *testing.T) {
			const total = 100000
			b, err := buffer.New(itemSize, 64, buffer.WithStorage(s))
			require.NoError(t, err)
			defer b.Close()
			readers := []*buffer.Reader{b.AddReader(1), b.AddReader(4)}
			capacity := b.Capacity()

			var wg sync.WaitGroup
			wg.Add(1 + len(readers))
			go func() {
				defer wg.Done()
				rnd := rand.New(rand.NewSource(1))
				var written uint32
				for written < total {
					region, n := b.WriteRegion(1 + rnd.Intn(20))
					n = min(n, int(total-written))
					for i := 0; i < n; i++ {
						put(region[i*itemSize:], written+uint32(i))
					}
					b.CommitWrite(n)
					written += uint32(n)
				}
				b.SetDone()
			}()
			for i, r := range readers {
				go func(seed int64, r *buffer.Reader) {
					defer wg.Done()
					rnd := rand.New(rand.NewSource(seed))
					history := r.History() - 1
					var expected uint32
					for expected < total {
						region, n := r.Region(1 + rnd.Intn(30))
						if avail := int(b.ItemsWritten() - r.ItemsRead()); avail+history > capacity {
							t.Errorf("cursor invariant broken: %d available", avail)
							return
						}
						values := get(region)[history:]
						for j := 0; j < n; j++ {
							if values[j] != expected {
								t.Errorf("reader %d: expected %d got %d", seed, expected, values[j])
								return
							}
							expected++
						}
						r.Commit(n)
					}
				}(int64(i), r)
			}
			wg.Wait()
			assert.Equal(t, uint64(total), b.ItemsWritten())
			for _, r := range readers {
				assert.Equal(t, uint64(total), r.ItemsRead())
			}
		}
	}

	for _, s := range storages {
		t.Run("wrap "+s.String(), testWrap(s))
		t.Run("concurrent "+s.String(), testConcurrent(s))
	}
	t.Run("history", testHistory)
	t.Run("backpressure", testBackpressure)
	t.Run("contract violation", testContractViolation)
	t.Run("done", testDone)
	t.Run("prune tags", testPruneTags)
}

func TestAllocation(t *testing.T) {
	restore := buffer.SetMaxMirrorBytes(1 << 20)
	defer restore()

	_, err := buffer.New(1, 1<<20, buffer.WithStorage(buffer.Mirror))
	assert.ErrorIs(t, err, buffer.ErrResourceExhausted)

	b, err := buffer.New(1, 1<<20, buffer.WithStorage(buffer.Mirror), buffer.WithMinimum(1<<10))
	require.NoError(t, err)
	assert.Equal(t, 1<<19, b.Capacity())

	_, err = buffer.New(0, 10)
	assert.Error(t, err)
}

func TestParseStorage(t *testing.T) {
	for _, s := range []buffer.Storage{buffer.Auto, buffer.Mirror, buffer.DoubleMapped} {
		parsed, err := buffer.ParseStorage(s.String())
		assert.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := buffer.ParseStorage("shm")
	assert.Error(t, err)
}
