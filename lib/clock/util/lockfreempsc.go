// Package util provides a lock-free Multi-Producer Single-Consumer (MPSC) queue implementation.
//
// Features and Guarantees:
//
//   - Lock-Free Push: producers only use atomic operations, a Push never waits for a consumer
//   - Unbounded Size: the queue can grow to any size as needed, limited only by available memory
//   - Fan-Out: items are forwarded by one internal goroutine into the channel returned by Recv(),
//     any number of goroutines may receive from that channel (each item is received once)
//   - Graceful Close: after Close() no new items are accepted, items already queued are still
//     delivered and the Recv() channel is closed once they are drained
//   - No Strict FIFO Guarantee: under concurrent Push() operations, the exact ordering of items
//     is determined by which producer completes its operation first, not by which producer
//     started first. A single producer sees FIFO order.
package util

import (
	"runtime"
	"sync/atomic"
)

// node represents a single element in the queue
type node[T any] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// LockFreeMPSC is a lock-free multi-producer queue with a single internal consumer
// that forwards the items into an unbuffered channel.
type LockFreeMPSC[T any] struct {
	head   atomic.Pointer[node[T]] // only touched by the forwarding goroutine
	tail   atomic.Pointer[node[T]]
	out    chan *T
	notify chan struct{} // capacity 1, wakes the forwarding goroutine
	closed atomic.Bool
	length atomic.Int64
}

// NewLockFreeMPSC creates a new queue and starts its forwarding goroutine.
// The goroutine exits after Close() once every queued item was received.
func NewLockFreeMPSC[T any]() *LockFreeMPSC[T] {
	// sentinel node (dummy node at the beginning)
	sentinel := &node[T]{}

	q := &LockFreeMPSC[T]{
		out:    make(chan *T),
		notify: make(chan struct{}, 1),
	}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	go q.forward()

	return q
}

// Push adds an item to the queue.
// Returns true if the item was added, or false if the item is nil or the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *LockFreeMPSC[T]) Push(value *T) bool {
	if value == nil || q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}
	var backoff uint8

	for {
		tailNode := q.tail.Load()
		next := tailNode.next.Load()

		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// may fail if another producer already helped, tail moves forward either way
				q.tail.CompareAndSwap(tailNode, newNode)
				q.length.Add(1)
				q.wake()
				return true
			}
		} else {
			// help a producer that appended but did not move the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		/*
		 Exponential backoff under contention:
		  - first retries spin through the scheduler a growing number of times
		  - after that every retry yields once
		*/
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// wake signals the forwarding goroutine without blocking.
// A pending signal already covers every item pushed before it is consumed.
func (q *LockFreeMPSC[T]) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// forward moves items from the linked list into the out channel and frees the list nodes
func (q *LockFreeMPSC[T]) forward() {
	defer close(q.out)

	for {
		// drain everything that is linked right now
		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}

			value := next.value
			q.head.Store(next)
			q.out <- value
			q.length.Add(-1)

			// help go gc - next is the new sentinel
			next.value = nil
		}

		/*
			Note: closed is checked after a full drain and the list is checked once more, so items
			linked before Close() are always delivered. A Push() that races with Close() may be
			accepted and still be lost; producers that need delivery must stop before closing.
		*/
		if q.closed.Load() {
			if q.head.Load().next.Load() == nil {
				return
			}
			continue
		}

		<-q.notify
	}
}

// Recv returns a receive-only channel for consuming from the queue.
// The channel is closed after Close() was called and all remaining items were received.
func (q *LockFreeMPSC[T]) Recv() <-chan *T {
	return q.out
}

// Close closes the queue, preventing further writes.
// Any items already in the queue will still be delivered.
// Calling Close more than once is safe.
func (q *LockFreeMPSC[T]) Close() {
	if q.closed.CompareAndSwap(false, true) {
		q.wake()
	}
}

// IsClosed returns true if the queue is closed.
func (q *LockFreeMPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns the approximate number of queued items not yet received.
// The item currently handed to a receiver may or may not be included.
func (q *LockFreeMPSC[T]) Len() int {
	if n := q.length.Load(); n > 0 {
		return int(n)
	}
	return 0
}
