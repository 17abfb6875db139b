// Copyright 2014-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included
// in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
// in that file, in accordance with the Business Source License, use of this
// software will be governed by the Apache License, Version 2.0, included in
// the file licenses/APL2.txt.

package merge

import (
	"sync/atomic"
	"time"
)

// Queue is the bounded channel between feeds and the merger. Producers
// block while it is full. Close releases every blocked producer and
// consumer; messages still buffered are dropped.
type Queue struct {
	size    int
	ch      chan Message
	isClose int32
	donech  chan struct{}
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		size:   size,
		ch:     make(chan Message, size),
		donech: make(chan struct{}),
	}
}

// Enqueue blocks until msg is accepted, the queue is closed or abortch is
// closed. Returns false if msg was not accepted. A nil abortch waits for
// space or close only.
func (q *Queue) Enqueue(msg Message, abortch <-chan struct{}) bool {
	select {
	case <-q.donech:
		return false
	default:
	}

	select {
	case q.ch <- msg:
		return true
	case <-q.donech:
		return false
	case <-abortch:
		return false
	}
}

// Dequeue waits up to timeout for the next message.
func (q *Queue) Dequeue(timeout time.Duration) (Message, bool) {
	select {
	case msg := <-q.ch:
		return msg, true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-q.ch:
		return msg, true
	case <-q.donech:
		return Message{}, false
	case <-timer.C:
		return Message{}, false
	}
}

// TryDequeue returns the next buffered message without waiting.
func (q *Queue) TryDequeue() (Message, bool) {
	select {
	case msg := <-q.ch:
		return msg, true
	default:
		return Message{}, false
	}
}

func (q *Queue) Len() int {
	return len(q.ch)
}

func (q *Queue) Cap() int {
	return q.size
}

func (q *Queue) Close() {
	if atomic.SwapInt32(&q.isClose, 1) == 0 {
		close(q.donech)
	}
}

func (q *Queue) IsClosed() bool {
	return atomic.LoadInt32(&q.isClose) == 1
}
