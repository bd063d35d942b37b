package runtime

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPanic is wrapped by errors of block callbacks that panicked.
var ErrPanic = errors.New("block panicked")

// Phase is the part of block lifecycle where error occurred.
type Phase string

const (
	// PhaseStart is the start hook.
	PhaseStart Phase = "start"
	// PhaseWork is the work call.
	PhaseWork Phase = "work"
	// PhaseStop is the stop hook.
	PhaseStop Phase = "stop"
	// PhaseMessage is the message handler.
	PhaseMessage Phase = "message"
)

type (
	// BlockError is returned when block callback fails.
	BlockError struct {
		Block string
		ID    string
		Phase Phase
		Err   error
	}

	// ContractError is returned when block breaks the work contract, for
	// example reports more items than it was given.
	ContractError struct {
		Block  string
		Reason string
	}

	// errorList wraps errors that might occur when multiple blocks are
	// failing.
	errorList []error
)

func (e *BlockError) Error() string {
	return fmt.Sprintf("block %s %s: %v", e.Block, e.Phase, e.Err)
}

// Unwrap returns the underlying error.
func (e *BlockError) Unwrap() error {
	return e.Err
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("block %s broke work contract: %s", e.Block, e.Reason)
}

func (e errorList) Error() string {
	s := []string{}
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, ",")
}

// Unwrap allows to match any of listed errors.
func (e errorList) Unwrap() []error {
	return e
}

// ret returns untyped nil if error is list is empty.
func (e errorList) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}

// call invokes the block callback. Panic is returned as error.
func call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn()
}
