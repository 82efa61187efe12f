/*
 * tickkernel - Scheduler: three policies, two synchronization modes.
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

// Package scheduler implements the three interchangeable scheduling
// policies (round-robin, deadline-ordered, preemptive static-priority)
// over the two synchronization modes (clock-driven, timer-driven), and
// owns the per-wake reap/absorb/dispatch procedure.
package scheduler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dlrichey/tickkernel/kernel/machine"
	"github.com/dlrichey/tickkernel/kernel/pcb"
	"github.com/dlrichey/tickkernel/kernel/queue"
	"github.com/dlrichey/tickkernel/kernel/system"
)

// Policy selects how ready PCBs are ordered and dispatched.
type Policy int

const (
	RoundRobin Policy = iota
	DeadlineEDF
	PreemptivePriority
)

// SyncMode selects which condition variable activates the scheduler.
type SyncMode int

const (
	Clock SyncMode = iota
	Timer
)

// Scheduler owns the policy-specific ready structures (a single queue
// for RoundRobin/DeadlineEDF, 40 priority buckets for
// PreemptivePriority) and the per-wake procedure that reaps exhausted
// or terminated PCBs, absorbs new arrivals from the shared ready
// queue, and dispatches onto free hardware threads.
type Scheduler struct {
	wg    sync.WaitGroup
	state *system.State

	quantum  int
	policy   Policy
	syncMode SyncMode

	readyQueue *queue.Queue
	buckets    [pcb.NumBuckets]*queue.Queue

	// activated is set by Activate (invoked from a Timer callback
	// while state.Mu is already held) when SyncMode is Timer.
	activated bool
}

// New returns a Scheduler with the given quantum, policy and sync
// mode. readyQueueCapacity (raised to at least 2) is the capacity of
// every one of the 40 priority buckets; the single internal queue used
// by RoundRobin and DeadlineEDF holds 40 times that. The capacity is not
// split across the buckets: each bucket gets all of it.
func New(state *system.State, quantum int, policy Policy, syncMode SyncMode, readyQueueCapacity int) *Scheduler {
	if readyQueueCapacity < 2 {
		readyQueueCapacity = 2
	}
	s := &Scheduler{
		state:      state,
		quantum:    quantum,
		policy:     policy,
		syncMode:   syncMode,
		readyQueue: queue.New(readyQueueCapacity * pcb.NumBuckets),
	}
	for i := range s.buckets {
		s.buckets[i] = queue.New(readyQueueCapacity)
	}
	return s
}

// Len reports the scheduler's total internal queue depth, across
// whichever structure the active policy uses. Wired into
// system.State.SchedulerLen by the orchestrator so population checks
// can see PCBs the scheduler holds internally.
func (s *Scheduler) Len() int {
	n := s.readyQueue.Len()
	for _, b := range s.buckets {
		n += b.Len()
	}
	return n
}

// Each calls fn for every PCB currently held in the scheduler's
// internal structures (the single queue or, for PreemptivePriority,
// every priority bucket), in no particular cross-bucket order.
func (s *Scheduler) Each(fn func(p *pcb.PCB)) {
	s.readyQueue.Each(fn)
	for _, b := range s.buckets {
		b.Each(fn)
	}
}

// Activate is invoked by the scheduler's dedicated Timer callback in
// Timer sync mode, with state.Mu already held by the timer's flow; it
// must not attempt to lock state.Mu itself.
func (s *Scheduler) Activate() {
	s.activated = true
	s.state.SchedCond.Signal()
}

// Start runs the scheduler's wait loop until shutdown. In Clock mode
// it wakes on every tick; in Timer mode it wakes only when Activate is
// called. Intended to be invoked as `go scheduler.Start()`.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	defer s.wg.Done()

	st := s.state
	st.Mu.Lock()
	defer st.Mu.Unlock()

	lastTick := st.Tick
	for {
		switch s.syncMode {
		case Clock:
			for !st.ShuttingDown && st.Tick == lastTick {
				st.TickCond.Wait()
			}
		case Timer:
			for !st.ShuttingDown && !s.activated {
				st.SchedCond.Wait()
			}
		}
		if st.ShuttingDown {
			return
		}
		lastTick = st.Tick
		s.activated = false

		s.wake()
	}
}

// Stop waits for the scheduler's flow to observe shutdown and drain.
func (s *Scheduler) Stop() {
	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(time.Second):
		slog.Warn("timed out waiting for scheduler to finish")
	}
}

// wake runs the per-wake reap/absorb/dispatch procedure. Caller must
// hold state.Mu.
func (s *Scheduler) wake() {
	s.reap()
	s.absorb()
	s.dispatch()
}

// reap increments every bound PCB's quantum_counter, then unbinds and
// destroys terminated/expired PCBs or unbinds and re-enqueues PCBs
// whose quantum is exhausted.
func (s *Scheduler) reap() {
	st := s.state

	var bound []*pcb.PCB
	st.Machine.Each(func(th *machine.HWThread) { bound = append(bound, th.PCB) })

	for _, p := range bound {
		p.QuantumCounter++

		switch {
		case p.State == pcb.Terminated || p.TTL == 0:
			s.release(p)

		case p.QuantumCounter >= s.quantum:
			st.Machine.Unbind(p.PID) // saves context into p
			p.QuantumCounter = 0
			p.State = pcb.Waiting
			if s.policy == DeadlineEDF {
				p.VirtualDeadline = int64(st.Tick) + int64(s.quantum*p.Priority)/100
			}
			s.enqueue(p)
		}
	}
}

// release unbinds (if still bound), frees the PCB's page table frames,
// and accounts the completion. The page table's kernel-arena slot is
// never reclaimed; the bump allocator does not support release.
func (s *Scheduler) release(p *pcb.PCB) {
	st := s.state
	// the error is ignored: reap only passes PCBs it collected from bound
	// threads, so Unbind finds them.
	_ = st.Machine.Unbind(p.PID)
	if p.Mem.PageTable != nil {
		for vpn := 0; vpn < p.Mem.PageTable.NumPages(); vpn++ {
			entry, ok := p.Mem.PageTable.Entry(vpn)
			if ok && entry.Present {
				st.Mem.FreeFrame(entry.Frame)
			}
		}
	}
	st.TotalCompleted++
}

// absorb drains the shared arrivals queue into the policy-specific
// structure, preempting the lowest-priority running PCB to make room
// for a strictly higher-priority PreemptivePriority arrival when every
// thread is occupied.
func (s *Scheduler) absorb() {
	st := s.state
	for {
		p := st.ReadyQueue.Pop()
		if p == nil {
			return
		}

		if s.policy == PreemptivePriority && !st.Machine.CanAdmit() {
			if victim := s.highestNumberedRunning(); victim != nil && p.Priority < victim.Priority {
				st.Machine.Unbind(victim.PID)
				victim.State = pcb.Waiting
				victim.QuantumCounter = 0
				s.enqueue(victim)
			}
		}
		s.enqueue(p)
	}
}

// highestNumberedRunning returns the running PCB with the numerically
// highest (least important) priority, breaking ties by first
// occurrence in topology order (CPU index, core index, thread index).
func (s *Scheduler) highestNumberedRunning() *pcb.PCB {
	var victim *pcb.PCB
	s.state.Machine.Each(func(th *machine.HWThread) {
		if victim == nil || th.PCB.Priority > victim.Priority {
			victim = th.PCB
		}
	})
	return victim
}

// enqueue inserts p into the policy's ready structure: the shared
// priority bucket for PreemptivePriority, the single internal queue
// otherwise.
func (s *Scheduler) enqueue(p *pcb.PCB) {
	if s.policy == PreemptivePriority {
		b := s.buckets[pcb.Bucket(p.Priority)]
		if err := b.Push(p); err != nil {
			slog.Warn("scheduler: priority bucket full, dropping re-enqueue", "pid", p.PID, "priority", p.Priority)
		}
		return
	}
	if err := s.readyQueue.Push(p); err != nil {
		slog.Warn("scheduler: internal queue full, dropping re-enqueue", "pid", p.PID)
	}
}

// dispatch binds PCBs from the policy structure onto free hardware
// threads until the machine is full or no PCB remains selectable.
func (s *Scheduler) dispatch() {
	st := s.state
	for st.Machine.CanAdmit() {
		p := s.selectNext()
		if p == nil {
			return
		}

		p.State = pcb.Running
		p.QuantumCounter = 0
		if _, err := st.Machine.Bind(p); err != nil {
			// all threads became busy between CanAdmit and Bind; put
			// the PCB back and stop dispatching this wake.
			s.enqueue(p)
			return
		}
	}
}

// selectNext removes and returns the next PCB to dispatch under the
// active policy, or nil if none is selectable.
func (s *Scheduler) selectNext() *pcb.PCB {
	switch s.policy {
	case RoundRobin:
		return s.readyQueue.Pop()

	case DeadlineEDF:
		s.computePendingDeadlines()
		return s.readyQueue.RemoveMin(func(a, b *pcb.PCB) bool {
			return a.VirtualDeadline < b.VirtualDeadline
		})

	case PreemptivePriority:
		for _, b := range s.buckets {
			if b.Len() > 0 {
				return b.Pop()
			}
		}
		return nil
	}
	return nil
}

// computePendingDeadlines fills in virtual_deadline for any PCB in the
// internal queue still carrying the uncomputed sentinel, i.e. every
// PCB about to be dispatched for the first time.
func (s *Scheduler) computePendingDeadlines() {
	st := s.state
	s.readyQueue.Each(func(p *pcb.PCB) {
		if p.VirtualDeadline == pcb.NoDeadline {
			p.VirtualDeadline = int64(st.Tick) + int64(s.quantum*p.Priority)/100
		}
	})
}
