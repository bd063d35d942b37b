package runtime

// start calls the start hook of the block.
func (e *Executor) start() error {
	if err := call(e.block.Start); err != nil {
		return e.blockError(PhaseStart, err)
	}
	e.started = true
	return nil
}

// stop calls the stop hook of the block if it was started. Hook is called
// only once.
func (e *Executor) stop() error {
	if !e.started {
		return nil
	}
	e.started = false
	if err := call(e.block.Stop); err != nil {
		return e.blockError(PhaseStop, err)
	}
	return nil
}

func (e *Executor) blockError(phase Phase, err error) error {
	return &BlockError{
		Block: e.name,
		ID:    e.id,
		Phase: phase,
		Err:   err,
	}
}
