//go:build linux

package buffer

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const doubleMappedSupported = true

// doubleMapped keeps a memfd mapped twice into a reserved region.
type doubleMapped struct {
	reserved []byte
	data     []byte
}

// granularity returns the smallest number of items that fills whole pages.
func granularity(itemSize int) int {
	return lcm(unix.Getpagesize(), itemSize) / itemSize
}

func newDoubleMapped(size int) (memory, error) {
	if size <= 0 || size%unix.Getpagesize() != 0 {
		return nil, fmt.Errorf("double map of %d bytes: size must be a multiple of page size", size)
	}
	fd, err := unix.MemfdCreate("flow-buffer", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("memfd: %w", err)
	}
	// mappings keep the memory alive after fd is closed
	defer unix.Close(fd)
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		return nil, fmt.Errorf("ftruncate: %w", err)
	}

	reserved, err := unix.Mmap(-1, 0, 2*size, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("reserve: %w", err)
	}
	base := unsafe.Pointer(&reserved[0])
	for _, addr := range []unsafe.Pointer{base, unsafe.Add(base, size)} {
		_, err := unix.MmapPtr(fd, 0, addr, uintptr(size),
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_FIXED)
		if err != nil {
			_ = unix.Munmap(reserved)
			return nil, fmt.Errorf("map: %w", err)
		}
	}
	return &doubleMapped{
		reserved: reserved,
		data:     unsafe.Slice((*byte)(base), 2*size),
	}, nil
}

func (m *doubleMapped) bytes() []byte { return m.data }

// sync is a no-op, both halves alias the same pages.
func (m *doubleMapped) sync(int, int) {}

func (m *doubleMapped) close() error {
	m.data = nil
	return unix.Munmap(m.reserved)
}
