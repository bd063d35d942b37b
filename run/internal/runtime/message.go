package runtime

import (
	"fmt"
	"sync"

	"pipelined.dev/flow"
	"pipelined.dev/flow/pmt"
)

type (
	// Router delivers messages between blocks. Every receiver has a single
	// queue, so messages from one sender are delivered in order they
	// were published.
	Router struct {
		mu        sync.Mutex
		executors map[*flow.Base]*Executor
		routes    map[routeKey][]route
		// senders counts unfinished senders of every receiver.
		senders map[*Executor]int
		// receivers are distinct receivers of every sender.
		receivers map[*Executor][]*Executor
	}

	routeKey struct {
		src  *flow.Base
		port string
	}

	route struct {
		dst  *Executor
		port string
	}

	message struct {
		port  string
		value pmt.Value
	}

	// queue is the message queue of a single receiver.
	queue struct {
		mu     sync.Mutex
		items  []message
		closed bool
	}
)

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{
		executors: make(map[*flow.Base]*Executor),
		routes:    make(map[routeKey][]route),
		senders:   make(map[*Executor]int),
		receivers: make(map[*Executor][]*Executor),
	}
}

// Add registers executor and binds the router as publisher of its block.
func (r *Router) Add(e *Executor) {
	r.mu.Lock()
	r.executors[e.base] = e
	r.mu.Unlock()
	e.router = r
	e.base.SetPublisher(r)
}

// Remove unbinds publishers of all registered blocks.
func (r *Router) Remove() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for b := range r.executors {
		b.SetPublisher(nil)
	}
}

// Route adds message edge. Both blocks must be registered.
func (r *Router) Route(edge flow.MessageEdge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.executors[edge.Src.Block.BaseBlock()]
	if !ok {
		return fmt.Errorf("route %v: sender is not registered", edge)
	}
	dst, ok := r.executors[edge.Dst.Block.BaseBlock()]
	if !ok {
		return fmt.Errorf("route %v: receiver is not registered", edge)
	}
	key := routeKey{src: src.base, port: edge.Src.Port}
	r.routes[key] = append(r.routes[key], route{dst: dst, port: edge.Dst.Port})
	for _, known := range r.receivers[src] {
		if known == dst {
			return nil
		}
	}
	r.receivers[src] = append(r.receivers[src], dst)
	r.senders[dst]++
	return nil
}

// Publish implements flow.Publisher.
func (r *Router) Publish(src *flow.Base, port string, msg pmt.Value) error {
	r.mu.Lock()
	routes := r.routes[routeKey{src: src, port: port}]
	r.mu.Unlock()
	for _, rt := range routes {
		if rt.dst.queue.push(message{port: rt.port, value: msg}) {
			rt.dst.notify()
		}
	}
	return nil
}

// finished is called when the sender exits.
func (r *Router) finished(src *Executor) {
	r.mu.Lock()
	receivers := r.receivers[src]
	delete(r.receivers, src)
	for _, dst := range receivers {
		r.senders[dst]--
	}
	r.mu.Unlock()
	for _, dst := range receivers {
		dst.notify()
	}
}

// sendersDone reports whether all senders of the receiver have exited.
func (r *Router) sendersDone(dst *Executor) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.senders[dst] == 0
}

// push appends message to the queue. Messages are dropped once the queue
// is closed.
func (q *queue) push(m message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, m)
	return true
}

// drain returns all queued messages.
func (q *queue) drain() []message {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *queue) empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.mu.Unlock()
}
