/*
 * tickkernel - Bounded ring-buffer process queue.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package queue implements a bounded FIFO ring buffer of PCB references.
// Callers are responsible for holding the system lock; the queue itself
// performs no synchronization.
package queue

import (
	"errors"

	"github.com/dlrichey/tickkernel/kernel/pcb"
)

// ErrFull is returned by Push when the queue is at capacity.
var ErrFull = errors.New("queue full")

// Queue is a fixed-capacity ring buffer of non-owning PCB pointers.
type Queue struct {
	buf   []*pcb.PCB
	front int
	size  int
}

// New returns a queue with room for capacity entries.
func New(capacity int) *Queue {
	return &Queue{buf: make([]*pcb.PCB, capacity)}
}

// Len reports the number of entries currently queued.
func (q *Queue) Len() int {
	return q.size
}

// Cap reports the queue's maximum capacity.
func (q *Queue) Cap() int {
	return len(q.buf)
}

// Push enqueues p at the tail, returning ErrFull if the queue is at
// capacity.
func (q *Queue) Push(p *pcb.PCB) error {
	if q.size == len(q.buf) {
		return ErrFull
	}
	back := (q.front + q.size) % len(q.buf)
	q.buf[back] = p
	q.size++
	return nil
}

// Pop removes and returns the head of the queue, or nil if empty.
func (q *Queue) Pop() *pcb.PCB {
	if q.size == 0 {
		return nil
	}
	p := q.buf[q.front]
	q.buf[q.front] = nil
	q.front = (q.front + 1) % len(q.buf)
	q.size--
	return p
}

// Peek returns the head of the queue without removing it, or nil if
// empty.
func (q *Queue) Peek() *pcb.PCB {
	if q.size == 0 {
		return nil
	}
	return q.buf[q.front]
}

// RemoveMin removes and returns the first entry for which less reports
// true relative to every other entry currently queued, preserving the
// relative order of the rest. Ties are broken by earlier queue position.
// Used by the deadline-ordered policy to scan for the smallest virtual
// deadline without disturbing FIFO order among the remainder.
func (q *Queue) RemoveMin(less func(a, b *pcb.PCB) bool) *pcb.PCB {
	if q.size == 0 {
		return nil
	}

	bestIdx := 0
	best := q.at(0)
	for i := 1; i < q.size; i++ {
		cand := q.at(i)
		if less(cand, best) {
			best = cand
			bestIdx = i
		}
	}
	q.removeAt(bestIdx)
	return best
}

// Each calls fn for every queued entry in FIFO order.
func (q *Queue) Each(fn func(p *pcb.PCB)) {
	for i := 0; i < q.size; i++ {
		fn(q.at(i))
	}
}

func (q *Queue) at(i int) *pcb.PCB {
	return q.buf[(q.front+i)%len(q.buf)]
}

// removeAt removes the logical i'th entry (0 = head), shifting later
// entries left by one to preserve order.
func (q *Queue) removeAt(i int) {
	for j := i; j < q.size-1; j++ {
		q.buf[(q.front+j)%len(q.buf)] = q.buf[(q.front+j+1)%len(q.buf)]
	}
	last := (q.front + q.size - 1) % len(q.buf)
	q.buf[last] = nil
	q.size--
}
