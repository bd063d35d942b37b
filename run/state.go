package run

import "fmt"

// state of the run lifecycle. Every state handles the events it accepts
// and rejects the rest.
type state interface {
	transition(event) (state, error)
	fmt.Stringer
}

type (
	ready   struct{}
	running struct{}
	done    struct{}
	closed  struct{}
)

// event triggers the state change.
type event int

const (
	start event = iota
	stop
	wait
	finish
	closing
)

func (e event) String() string {
	switch e {
	case start:
		return "start"
	case stop:
		return "stop"
	case wait:
		return "wait"
	case finish:
		return "finish"
	case closing:
		return "close"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

func invalid(s state, e event) error {
	return fmt.Errorf("%v in %v state: %w", e, s, ErrInvalidState)
}

func (s ready) transition(e event) (state, error) {
	switch e {
	case start:
		return running{}, nil
	case closing:
		return closed{}, nil
	}
	return s, invalid(s, e)
}

func (s running) transition(e event) (state, error) {
	switch e {
	case stop, wait:
		return s, nil
	case finish:
		return done{}, nil
	}
	return s, invalid(s, e)
}

// Done run already released its resources, so closing it is a no-op.
func (s done) transition(e event) (state, error) {
	switch e {
	case stop, wait, closing:
		return s, nil
	}
	return s, invalid(s, e)
}

func (s closed) transition(e event) (state, error) {
	if e == closing {
		return s, nil
	}
	return s, invalid(s, e)
}

func (ready) String() string   { return "ready" }
func (running) String() string { return "running" }
func (done) String() string    { return "done" }
func (closed) String() string  { return "closed" }

// apply changes the state of the run. Caller must hold the mutex.
func (r *Run) apply(e event) (state, error) {
	prev := r.state
	next, err := prev.transition(e)
	if err != nil {
		return prev, err
	}
	r.state = next
	return prev, nil
}
