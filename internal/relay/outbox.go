package relay

import (
	"sync"

	"github.com/BioHazard786/roomrelay/internal/protocol"
)

// Outbox is the per-connection outbound queue. Pushing never blocks: the
// ring buffer doubles once it is 70% full, up to a hard limit on queued
// messages. The write pump waits on Ready and drains in batches.
type Outbox struct {
	mu       sync.Mutex
	buf      []*protocol.Message
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	limit    int
	closed   bool

	ready chan struct{}
}

// NewOutbox creates an outbox with the given starting capacity that rejects
// pushes once limit messages are queued. A limit <= 0 means unbounded.
func NewOutbox(initialCapacity, limit int) *Outbox {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	return &Outbox{
		buf:      make([]*protocol.Message, initialCapacity),
		capacity: initialCapacity,
		limit:    limit,
		ready:    make(chan struct{}, 1),
	}
}

// Push queues msg for delivery.
func (o *Outbox) Push(msg *protocol.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrOutboxClosed
	}
	if o.limit > 0 && o.count >= o.limit {
		return ErrOutboxFull
	}

	threshold := (o.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if o.count+1 >= threshold {
		o.grow()
	}

	o.buf[o.tail] = msg
	o.tail = (o.tail + 1) % o.capacity
	o.count++

	o.signal()
	return nil
}

// Ready is signalled whenever messages are pushed or the outbox is closed.
func (o *Outbox) Ready() <-chan struct{} {
	return o.ready
}

// Drain removes up to max queued messages (all of them if max <= 0). open
// is false once the outbox is closed and fully drained.
func (o *Outbox) Drain(max int) (msgs []*protocol.Message, open bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := o.count
	if max > 0 && max < n {
		n = max
	}

	if n > 0 {
		msgs = make([]*protocol.Message, n)
		for i := 0; i < n; i++ {
			msgs[i] = o.buf[o.head]
			o.buf[o.head] = nil
			o.head = (o.head + 1) % o.capacity
			o.count--
		}
	}

	// Leftovers or a pending close still need a wakeup.
	if o.count > 0 || o.closed {
		o.signal()
	}
	return msgs, !(o.closed && o.count == 0 && n == 0)
}

// Close stops accepting messages. Already queued messages can still be
// drained.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	o.closed = true
	o.signal()
}

// Len returns the number of queued messages.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.count
}

// Cap returns the current ring capacity.
func (o *Outbox) Cap() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.capacity
}

func (o *Outbox) signal() {
	select {
	case o.ready <- struct{}{}:
	default:
	}
}

// grow doubles the ring. Must be called with the lock held.
func (o *Outbox) grow() {
	newCapacity := o.capacity * 2
	newBuf := make([]*protocol.Message, newCapacity)

	if o.count > 0 {
		if o.head < o.tail {
			copy(newBuf, o.buf[o.head:o.tail])
		} else {
			n := copy(newBuf, o.buf[o.head:])
			copy(newBuf[n:], o.buf[:o.tail])
		}
	}

	o.buf = newBuf
	o.head = 0
	o.tail = o.count
	o.capacity = newCapacity
}
