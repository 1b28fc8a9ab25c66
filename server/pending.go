// File: server/pending.go
// Bounded queue of upgraded-but-not-yet-accepted connections.
package server

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/netgrove/threadws/engine"
)

// pendingQueue holds fully upgraded connections awaiting the owner's accept
// call. The capacity check and the insert happen under one lock, so the
// bound holds under concurrent handshake completions; a full queue refuses
// the insert instead of blocking.
type pendingQueue struct {
	mu     sync.Mutex
	items  *queue.Queue
	max    int
	notify chan struct{}
}

func newPendingQueue(max int) *pendingQueue {
	return &pendingQueue{
		items:  queue.New(),
		max:    max,
		notify: make(chan struct{}, 1),
	}
}

// add appends p unless the queue is at capacity. Returns false on refusal;
// the caller owns the refused connection and must close it.
func (q *pendingQueue) add(p *engine.Peer) bool {
	q.mu.Lock()
	if q.items.Length() >= q.max {
		q.mu.Unlock()
		return false
	}
	q.items.Add(p)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// pop removes the oldest pending connection, transferring ownership to the
// caller.
func (q *pendingQueue) pop() (*engine.Peer, bool) {
	q.mu.Lock()
	if q.items.Length() == 0 {
		q.mu.Unlock()
		return nil, false
	}
	p := q.items.Remove().(*engine.Peer)
	remaining := q.items.Length()
	q.mu.Unlock()

	if remaining > 0 {
		// keep other waiters awake; notify coalesces across adds
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	return p, true
}

func (q *pendingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// drain empties the queue and returns everything that was pending.
func (q *pendingQueue) drain() []*engine.Peer {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*engine.Peer
	for q.items.Length() > 0 {
		out = append(out, q.items.Remove().(*engine.Peer))
	}
	return out
}
