/*
 * tickkernel - Shared system state and synchronization primitives.
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

// Package system holds the single mutex-guarded state every flow
// (clock, timers, scheduler, generator) closes over: the shared
// machine, physical memory, ready queue, and the two condition
// variables that drive tick and scheduler-activation handoff.
package system

import (
	"sync"

	"github.com/dlrichey/tickkernel/kernel/machine"
	"github.com/dlrichey/tickkernel/kernel/memory"
	"github.com/dlrichey/tickkernel/kernel/queue"
)

// QueueLenFunc reports the scheduler's own internal queue depth
// (priority buckets or deadline-ordered ready queue), so State can
// compute total population without importing the scheduler package.
type QueueLenFunc func() int

// State is the single system-wide lock and the shared resources it
// protects. Every flow acquires Mu before touching any field here;
// the system mutex is always acquired before any component's own
// mutex.
type State struct {
	Mu        sync.Mutex
	TickCond  *sync.Cond // tick_available: clock notifies
	SchedCond *sync.Cond // scheduler_activate: timer notifies

	Tick         uint64
	ShuttingDown bool
	Paused       bool

	Machine    *machine.Machine
	Mem        *memory.Memory
	ReadyQueue *queue.Queue

	MaxProcesses int

	TotalCompleted int

	// SchedulerLen is wired by the orchestrator after construction to
	// avoid an import cycle between this package and kernel/scheduler.
	SchedulerLen QueueLenFunc
}

// New constructs a State with its condition variables bound to Mu.
func New(m *machine.Machine, mem *memory.Memory, readyQueue *queue.Queue, maxProcesses int) *State {
	s := &State{
		Machine:      m,
		Mem:          mem,
		ReadyQueue:   readyQueue,
		MaxProcesses: maxProcesses,
	}
	s.TickCond = sync.NewCond(&s.Mu)
	s.SchedCond = sync.NewCond(&s.Mu)
	return s
}

// InSystemLocked returns the total process population: ready queue
// plus scheduler-internal queue plus running. Caller must hold Mu.
func (s *State) InSystemLocked() int {
	n := s.ReadyQueue.Len() + s.Machine.CountBound()
	if s.SchedulerLen != nil {
		n += s.SchedulerLen()
	}
	return n
}

// CanAdmitLocked reports whether the population cap has room for one
// more process. Caller must hold Mu.
func (s *State) CanAdmitLocked() bool {
	return s.InSystemLocked() < s.MaxProcesses
}

// ShutdownLocked sets the shutdown flag and wakes every waiter on both
// condition variables. Caller must hold Mu.
func (s *State) ShutdownLocked() {
	s.ShuttingDown = true
	s.TickCond.Broadcast()
	s.SchedCond.Broadcast()
}
