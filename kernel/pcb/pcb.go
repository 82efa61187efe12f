/*
 * tickkernel - Process control block.
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

// Package pcb defines the process control block, the simulator's sole
// in-memory representation of a process.
package pcb

import (
	"math"
	"sync/atomic"

	"github.com/dlrichey/tickkernel/kernel/pagetable"
)

// State is the lifecycle state of a process.
type State int

const (
	Waiting State = iota
	Running
	Terminated
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// MinPriority and MaxPriority bound the priority range; lower is more
// important. PreemptivePriority keeps one bucket per value in this range.
const (
	MinPriority = -20
	MaxPriority = 19
	NumBuckets  = MaxPriority - MinPriority + 1
)

// NoDeadline marks virtual_deadline as not yet computed. DeadlineEDF
// computes it lazily on first dispatch.
const NoDeadline = math.MinInt64

// Context is the saved CPU context: program counter, instruction
// register, and 16 general registers.
type Context struct {
	PC   uint32
	IR   uint32
	Regs [16]uint32
}

// MemMap is a process's view of its address space: the virtual start of
// its code and data segments, and its page table.
type MemMap struct {
	CodeAddr  uint32
	DataAddr  uint32
	PageTable *pagetable.PageTable
}

var nextPID uint64

// NextPID returns a fresh, monotonically increasing process id.
func NextPID() uint64 {
	return atomic.AddUint64(&nextPID, 1)
}

// PCB is the single authoritative record of a process. Every other
// component (queues, hardware-thread bindings, priority buckets) refers
// to a PCB by pointer; ownership is exclusive to exactly one of: a ready
// queue, a priority bucket, or a hardware thread.
type PCB struct {
	PID      uint64
	Name     string
	State    State
	Priority int

	TTL        int
	InitialTTL int

	QuantumCounter  int
	VirtualDeadline int64

	Context Context
	Mem     MemMap
}

// New constructs a PCB in the Waiting state with a fresh PID, zeroed
// context, and no computed deadline.
func New(name string, priority, ttl int) *PCB {
	return &PCB{
		PID:             NextPID(),
		Name:            name,
		State:           Waiting,
		Priority:        priority,
		TTL:             ttl,
		InitialTTL:      ttl,
		VirtualDeadline: NoDeadline,
	}
}

// Bucket maps a priority to its index in a 40-entry priority-bucket
// array, clamping out-of-range values to the nearest valid bucket.
func Bucket(priority int) int {
	if priority < MinPriority {
		priority = MinPriority
	}
	if priority > MaxPriority {
		priority = MaxPriority
	}
	return priority - MinPriority
}
