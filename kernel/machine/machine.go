/*
 * tickkernel - Machine / CPU / Core / hardware thread topology.
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

// Package machine models the Machine -> CPU -> Core -> hardware thread
// topology, and the bind/unbind logic that attaches a PCB's saved
// context to a thread's register file without transferring ownership.
package machine

import (
	"errors"

	"github.com/dlrichey/tickkernel/kernel/pagetable"
	"github.com/dlrichey/tickkernel/kernel/pcb"
)

const tlbSize = 16

// TLBEntry is one round-robin TLB slot, an optimization hook that is
// not required for correctness.
type TLBEntry struct {
	VPN   int
	Frame int
	Valid bool
}

// HWThread owns a register file, a page-table-base register, a TLB,
// and a borrowed, nullable reference to a PCB. The PCB is never owned
// here; bind installs the handle, unbind clears it.
type HWThread struct {
	Regs      [16]uint32
	PC        uint32
	IR        uint32
	PageTable *pagetable.PageTable

	tlb     [tlbSize]TLBEntry
	tlbNext int

	PCB *pcb.PCB
}

// Bound reports whether the thread currently has a PCB bound.
func (t *HWThread) Bound() bool {
	return t.PCB != nil
}

// flushTLB invalidates every TLB entry; performed on every bind.
func (t *HWThread) flushTLB() {
	for i := range t.tlb {
		t.tlb[i] = TLBEntry{}
	}
	t.tlbNext = 0
}

// Core owns a fixed-capacity array of hardware threads. Bound threads
// are always a prefix of the array: index i is bound only if every
// index less than i is also bound.
type Core struct {
	Threads []*HWThread
}

// NewCore returns a Core with threadsPerCore empty hardware threads.
func NewCore(threadsPerCore int) *Core {
	threads := make([]*HWThread, threadsPerCore)
	for i := range threads {
		threads[i] = &HWThread{}
	}
	return &Core{Threads: threads}
}

// Count reports how many of the core's threads are currently bound.
func (c *Core) Count() int {
	n := 0
	for _, t := range c.Threads {
		if t.Bound() {
			n++
		}
	}
	return n
}

// CanAdmit reports whether the core has a free thread slot.
func (c *Core) CanAdmit() bool {
	return c.Count() < len(c.Threads)
}

// CPU owns a fixed set of Cores.
type CPU struct {
	Cores []*Core
}

// Machine owns a fixed set of CPUs. It is the root of the hardware
// topology and is constructed once at startup from the configured
// topology (cpus, cores per cpu, threads per core).
type Machine struct {
	CPUs []*CPU
}

// New builds a Machine with the given topology.
func New(cpus, coresPerCPU, threadsPerCore int) *Machine {
	m := &Machine{CPUs: make([]*CPU, cpus)}
	for i := range m.CPUs {
		cores := make([]*Core, coresPerCPU)
		for j := range cores {
			cores[j] = NewCore(threadsPerCore)
		}
		m.CPUs[i] = &CPU{Cores: cores}
	}
	return m
}

// ErrBindFailure is returned by Bind when every thread is occupied.
var ErrBindFailure = errors.New("bind failure: all threads busy")

// CanAdmit reports whether any core in the machine has a free slot.
func (m *Machine) CanAdmit() bool {
	for _, cpu := range m.CPUs {
		for _, core := range cpu.Cores {
			if core.CanAdmit() {
				return true
			}
		}
	}
	return false
}

// Bind finds the first free thread slot in topology order (CPU index,
// core index, thread index), installs p's saved context into its
// register file, points its page-table-base register at p's page
// table, and flushes its TLB. If p's saved PC is 0, this is treated as
// a first dispatch and PC is left at the entry virtual address already
// recorded in the saved context (the loader and generator both
// initialize Context.PC to the code entry point, so no special-casing
// is required beyond loading the saved context as-is).
func (m *Machine) Bind(p *pcb.PCB) (*HWThread, error) {
	for _, cpu := range m.CPUs {
		for _, core := range cpu.Cores {
			for _, t := range core.Threads {
				if t.Bound() {
					continue
				}
				t.PCB = p
				t.Regs = p.Context.Regs
				t.PC = p.Context.PC
				t.IR = p.Context.IR
				t.PageTable = p.Mem.PageTable
				t.flushTLB()
				return t, nil
			}
		}
	}
	return nil, ErrBindFailure
}

// Unbind locates the thread holding pid, saves its registers, PC and
// IR back into the PCB's context, clears the thread, and compacts the
// core so bound threads remain a prefix, preserving relative order of
// the threads that shift down.
func (m *Machine) Unbind(pid uint64) error {
	for _, cpu := range m.CPUs {
		for _, core := range cpu.Cores {
			for i, t := range core.Threads {
				if !t.Bound() || t.PCB.PID != pid {
					continue
				}
				t.PCB.Context.Regs = t.Regs
				t.PCB.Context.PC = t.PC
				t.PCB.Context.IR = t.IR
				t.PCB = nil
				t.PageTable = nil
				compact(core, i)
				return nil
			}
		}
	}
	return errors.New("unbind: pid not found on any thread")
}

// compact shifts every thread after the now-empty slot at index down
// by one, so the run of bound threads remains a contiguous prefix.
func compact(core *Core, emptied int) {
	for i := emptied; i < len(core.Threads)-1; i++ {
		next := core.Threads[i+1]
		if !next.Bound() {
			break
		}
		core.Threads[i].PCB = next.PCB
		core.Threads[i].Regs = next.Regs
		core.Threads[i].PC = next.PC
		core.Threads[i].IR = next.IR
		core.Threads[i].PageTable = next.PageTable
		next.PCB = nil
		next.PageTable = nil
	}
}

// CountBound reports the total number of bound hardware threads across
// the whole machine.
func (m *Machine) CountBound() int {
	n := 0
	for _, cpu := range m.CPUs {
		for _, core := range cpu.Cores {
			n += core.Count()
		}
	}
	return n
}

// Each calls fn for every bound hardware thread in topology order.
func (m *Machine) Each(fn func(t *HWThread)) {
	for _, cpu := range m.CPUs {
		for _, core := range cpu.Cores {
			for _, t := range core.Threads {
				if t.Bound() {
					fn(t)
				}
			}
		}
	}
}
