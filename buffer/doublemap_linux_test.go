//go:build linux

package buffer_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/flow/buffer"
)

func TestDoubleMapped(t *testing.T) {
	b, err := buffer.New(itemSize, 1000, buffer.WithStorage(buffer.DoubleMapped))
	if err != nil {
		t.Skipf("double mapping is not available: %v", err)
	}
	defer func() {
		assert.NoError(t, b.Close())
	}()
	assert.Equal(t, buffer.DoubleMapped, b.Storage())
	assert.Zero(t, b.Capacity()*itemSize%os.Getpagesize(), "capacity must fill whole pages")
	assert.GreaterOrEqual(t, b.Capacity(), 1000)

	r := b.AddReader(2)
	region, n := b.WriteRegion(b.Capacity() - 1)
	require.Equal(t, b.Capacity()-1, n)
	b.CommitWrite(n)
	_, n = r.Region(n)
	r.Commit(n)

	// write across the physical end of the ring
	write(t, b, 7, 8, 9, 10)
	region, n = r.Region(4)
	require.Equal(t, 4, n)
	assert.Equal(t, []uint32{0, 7, 8, 9, 10}, get(region))
}
