package runtime

import "fmt"

// State of the block execution.
type State int32

const (
	// Ready block is not started yet.
	Ready State = iota
	// Running block is executed.
	Running
	// Draining block is done and waits for readers to consume its output.
	Draining
	// Finished block is done and its output is consumed.
	Finished
	// Stopped block was interrupted by stop request.
	Stopped
	// Failed block or its partition failed.
	Failed
)

var stateNames = []string{"ready", "running", "draining", "finished", "stopped", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int32(s))
	}
	return stateNames[s]
}

// Terminal reports whether state is final.
func (s State) Terminal() bool {
	return s == Finished || s == Stopped || s == Failed
}
