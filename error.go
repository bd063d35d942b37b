package flow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPortConnected is returned if destination port already has a
	// connection.
	ErrPortConnected = errors.New("port is already connected")
	// ErrPortRange is returned if port index is not allowed by the
	// signature.
	ErrPortRange = errors.New("port index out of range")
	// ErrItemSize is returned if connected ports have different item sizes.
	ErrItemSize = errors.New("item size mismatch")
	// ErrNotConnected is returned if there is no such connection.
	ErrNotConnected = errors.New("not connected")
	// ErrNonContiguous is returned if connected ports have gaps.
	ErrNonContiguous = errors.New("connected ports are not contiguous")
	// ErrPortCount is returned if number of connected ports is out of
	// signature bounds.
	ErrPortCount = errors.New("number of connected ports out of bounds")
	// ErrLoop is returned if stream connections form a cycle.
	ErrLoop = errors.New("flow graph has loops")
	// ErrInvalidSignature is returned if signature bounds or item sizes are
	// invalid.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrInvalidProperties is returned if block properties are
	// inconsistent.
	ErrInvalidProperties = errors.New("invalid block properties")
	// ErrMessagePort is returned if message port is not registered.
	ErrMessagePort = errors.New("unknown message port")
	// ErrEmptyGraph is returned if graph has no blocks.
	ErrEmptyGraph = errors.New("flow graph has no blocks")
)

// TopologyError is returned when graph can't be built or validated. It
// identifies the block and the port that caused the error. Port is -1 if
// error is not related to a single port.
type TopologyError struct {
	Block string
	Port  int
	Err   error
}

func (e *TopologyError) Error() string {
	if e.Port < 0 {
		return fmt.Sprintf("block %s: %v", e.Block, e.Err)
	}
	return fmt.Sprintf("block %s port %d: %v", e.Block, e.Port, e.Err)
}

// Unwrap returns the underlying error.
func (e *TopologyError) Unwrap() error {
	return e.Err
}

func topologyError(b Block, port int, err error) error {
	return &TopologyError{
		Block: nameOf(b),
		Port:  port,
		Err:   err,
	}
}

// errorList wraps errors that occur when multiple blocks are invalid.
type errorList []error

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
