/*
 * tickkernel - Four-opcode instruction engine.
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

// Package instruction implements the four-opcode decode/execute cycle
// that advances one hardware thread by one instruction, fetching and
// accessing memory exclusively through the MMU.
package instruction

import (
	"errors"
	"fmt"

	"github.com/dlrichey/tickkernel/kernel/machine"
	"github.com/dlrichey/tickkernel/kernel/memory"
	"github.com/dlrichey/tickkernel/kernel/pagetable"
	"github.com/dlrichey/tickkernel/kernel/pcb"
)

// Opcode identifies one of the four recognized instructions.
type Opcode uint32

const (
	OpLD   Opcode = 0x0
	OpST   Opcode = 0x1
	OpADD  Opcode = 0x2
	OpEXIT Opcode = 0xF
)

// ErrInvalidOpcode is raised when a fetched word's top nibble names no
// recognized opcode.
var ErrInvalidOpcode = errors.New("invalid opcode")

// Step executes exactly one instruction cycle on th: fetch through the
// MMU at the current PC, decode, execute. A no-op if th has no bound
// PCB, that PCB is already Terminated, or th has no page table
// installed.
func Step(mem *memory.Memory, th *machine.HWThread) error {
	if th.PCB == nil || th.PCB.State == pcb.Terminated || th.PageTable == nil {
		return nil
	}

	word, err := pagetable.Read(mem, th.PageTable, th.PC)
	if err != nil {
		th.PCB.State = pcb.Terminated
		return err
	}
	th.IR = word

	op := Opcode(word >> 28 & 0xF)
	switch op {
	case OpLD:
		reg := (word >> 24) & 0xF
		addr := word & 0xFFFFFF
		v, err := pagetable.Read(mem, th.PageTable, addr)
		if err != nil {
			th.PCB.State = pcb.Terminated
			return err
		}
		th.Regs[reg] = v
		th.PC += 4

	case OpST:
		reg := (word >> 24) & 0xF
		addr := word & 0xFFFFFF
		if err := pagetable.Write(mem, th.PageTable, addr, th.Regs[reg]); err != nil {
			th.PCB.State = pcb.Terminated
			return err
		}
		th.PC += 4

	case OpADD:
		d := (word >> 24) & 0xF
		s1 := (word >> 20) & 0xF
		s2 := (word >> 16) & 0xF
		th.Regs[d] = uint32(int32(th.Regs[s1]) + int32(th.Regs[s2]))
		th.PC += 4

	case OpEXIT:
		th.PCB.State = pcb.Terminated
		th.PCB.TTL = 0

	default:
		th.PCB.State = pcb.Terminated
		return fmt.Errorf("opcode 0x%x at pc 0x%x: %w", op, th.PC, ErrInvalidOpcode)
	}

	return nil
}
