package flow

import (
	"fmt"
	"sync"

	"pipelined.dev/flow/pmt"
)

type (
	// MessageHandler handles messages received by the message input port.
	// It is called by the worker of the receiving block between Work
	// calls.
	MessageHandler func(msg pmt.Value) error

	// Publisher delivers messages published by blocks. It is bound by the
	// runner for the duration of the run.
	Publisher interface {
		Publish(src *Base, port string, msg pmt.Value) error
	}

	messagePorts struct {
		mu        sync.RWMutex
		inputs    []string
		handlers  map[string]MessageHandler
		outputs   []string
		publisher Publisher
	}
)

// RegisterMessageInput registers message input port with handler. It must
// be called before the block is connected.
func (b *Base) RegisterMessageInput(port string, h MessageHandler) {
	m := b.messages()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handlers == nil {
		m.handlers = make(map[string]MessageHandler)
	}
	if _, ok := m.handlers[port]; !ok {
		m.inputs = append(m.inputs, port)
	}
	m.handlers[port] = h
}

// RegisterMessageOutput registers message output port. It must be called
// before the block is connected.
func (b *Base) RegisterMessageOutput(port string) {
	m := b.messages()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.outputs {
		if p == port {
			return
		}
	}
	m.outputs = append(m.outputs, port)
}

// MessageInputs returns registered message input ports.
func (b *Base) MessageInputs() []string {
	m := b.messages()
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.inputs...)
}

// MessageOutputs returns registered message output ports.
func (b *Base) MessageOutputs() []string {
	m := b.messages()
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.outputs...)
}

// MessageHandler returns handler of the message input port.
func (b *Base) MessageHandler(port string) (MessageHandler, bool) {
	m := b.messages()
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handlers[port]
	return h, ok
}

// HasMessageOutput reports whether the message output port is registered.
func (b *Base) HasMessageOutput(port string) bool {
	for _, p := range b.MessageOutputs() {
		if p == port {
			return true
		}
	}
	return false
}

// SetPublisher binds the publisher of messages. Nil publisher drops all
// published messages.
func (b *Base) SetPublisher(p Publisher) {
	m := b.messages()
	m.mu.Lock()
	m.publisher = p
	m.mu.Unlock()
}

// Publish sends message to every block subscribed to the output port.
// Messages are dropped if the block is not running.
func (b *Base) Publish(port string, msg pmt.Value) error {
	if !b.HasMessageOutput(port) {
		return fmt.Errorf("block %v publish to %q: %w", b, port, ErrMessagePort)
	}
	m := b.messages()
	m.mu.RLock()
	p := m.publisher
	m.mu.RUnlock()
	if p == nil {
		return nil
	}
	return p.Publish(b, port, msg)
}

func (b *Base) messages() *messagePorts {
	if b.msg == nil {
		panic(fmt.Sprintf("block %v: base is not created with NewBase", b))
	}
	return b.msg
}
