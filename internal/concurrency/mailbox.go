// File: internal/concurrency/mailbox.go
// Package concurrency provides the message-passing primitive used between
// execution contexts: an unbounded FIFO queue paired with a notification,
// so producers never block and never drop, while a single consumer waits
// for work.
package concurrency

import (
	"sync"

	"github.com/eapache/queue"
)

// Mailbox is an unbounded multi-producer FIFO with a blocking consumer side.
// Put is non-blocking and preserves submission order; Get blocks until an
// item arrives or the mailbox is closed and drained.
type Mailbox[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  *queue.Queue
	closed bool
}

// NewMailbox constructs an empty open mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	m := &Mailbox[T]{items: queue.New()}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Put appends item and wakes the consumer. Returns false if the mailbox is
// already closed; the item is discarded in that case.
func (m *Mailbox[T]) Put(item T) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.items.Add(item)
	m.cond.Signal()
	return true
}

// Get blocks until an item is available and removes it. After Close, Get
// keeps draining buffered items and then reports ok=false.
func (m *Mailbox[T]) Get() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.items.Length() == 0 && !m.closed {
		m.cond.Wait()
	}
	if m.items.Length() == 0 {
		var zero T
		return zero, false
	}
	item := m.items.Remove().(T)
	return item, true
}

// Len reports the number of queued items.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items.Length()
}

// Close rejects further Put calls and wakes the consumer. Items already
// queued remain retrievable via Get. Safe to call more than once.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.cond.Broadcast()
}
