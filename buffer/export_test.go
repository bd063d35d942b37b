package buffer

// SetMaxMirrorBytes overrides the mirror allocation bound and returns a
// function to restore it.
func SetMaxMirrorBytes(n int) func() {
	prev := maxMirrorBytes
	maxMirrorBytes = n
	return func() { maxMirrorBytes = prev }
}
