//go:build !linux

package buffer

const doubleMappedSupported = false

func granularity(int) int { return 1 }

func newDoubleMapped(int) (memory, error) {
	return nil, errUnsupported
}
