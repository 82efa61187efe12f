package instruction

import (
	"errors"
	"testing"

	"github.com/dlrichey/tickkernel/kernel/machine"
	"github.com/dlrichey/tickkernel/kernel/memory"
	"github.com/dlrichey/tickkernel/kernel/pagetable"
	"github.com/dlrichey/tickkernel/kernel/pcb"
)

// newBoundThread builds a one-page process mapping virtual page 0 to a
// fresh frame, with p bound to a standalone thread (not through
// machine.Machine, so tests can step it directly).
func newBoundThread(t *testing.T, mem *memory.Memory, p *pcb.PCB) *machine.HWThread {
	t.Helper()
	pt, err := pagetable.New(mem, 1)
	if err != nil {
		t.Fatalf("new page table: %v", err)
	}
	frame, err := mem.AllocateFrame()
	if err != nil {
		t.Fatalf("allocate frame: %v", err)
	}
	if err := pt.Map(0, frame); err != nil {
		t.Fatalf("map: %v", err)
	}
	p.Mem.PageTable = pt

	m := machine.New(1, 1, 1)
	th, err := m.Bind(p)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	return th
}

func word(op Opcode, r uint32, addr uint32) uint32 {
	return uint32(op)<<28 | (r&0xF)<<24 | (addr & 0xFFFFFF)
}

func addWord(d, s1, s2 uint32) uint32 {
	return uint32(OpADD)<<28 | (d&0xF)<<24 | (s1&0xF)<<20 | (s2&0xF)<<16
}

func TestLDAddSTExitProgram(t *testing.T) {
	mem := memory.New()
	p := pcb.New("prog", 0, 10)

	th := newBoundThread(t, mem, p)

	// text: LD R0,[0x20]; LD R1,[0x24]; ADD R0,R0,R1; ST [0x20],R0; EXIT
	pagetable.Write(mem, th.PageTable, 0x00, word(OpLD, 0, 0x20))
	pagetable.Write(mem, th.PageTable, 0x04, word(OpLD, 1, 0x24))
	pagetable.Write(mem, th.PageTable, 0x08, addWord(0, 0, 1))
	pagetable.Write(mem, th.PageTable, 0x0C, word(OpST, 0, 0x20))
	pagetable.Write(mem, th.PageTable, 0x10, word(OpEXIT, 0, 0))
	pagetable.Write(mem, th.PageTable, 0x20, 5)
	pagetable.Write(mem, th.PageTable, 0x24, 7)

	th.PC = 0

	for i := 0; i < 5; i++ {
		if err := Step(mem, th); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	v, err := pagetable.Read(mem, th.PageTable, 0x20)
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	if v != 12 {
		t.Errorf("result at 0x20: got: %d expected: 12", v)
	}
	if p.State != pcb.Terminated {
		t.Errorf("state after EXIT: got: %v expected: %v", p.State, pcb.Terminated)
	}
	if p.TTL != 0 {
		t.Errorf("ttl after EXIT: got: %d expected: 0", p.TTL)
	}
}

func TestStepIsNoOpWhenTerminated(t *testing.T) {
	mem := memory.New()
	p := pcb.New("prog", 0, 10)
	p.State = pcb.Terminated
	th := newBoundThread(t, mem, p)
	th.PC = 0xFFFFFFFF // would fault if fetched

	if err := Step(mem, th); err != nil {
		t.Errorf("expected no-op, got: %v", err)
	}
}

func TestStepIsNoOpWithoutPageTable(t *testing.T) {
	mem := memory.New()
	p := pcb.New("prog", 0, 10)
	th := &machine.HWThread{PCB: p}

	if err := Step(mem, th); err != nil {
		t.Errorf("expected no-op, got: %v", err)
	}
}

func TestInvalidOpcodeTerminatesProcess(t *testing.T) {
	mem := memory.New()
	p := pcb.New("prog", 0, 10)
	th := newBoundThread(t, mem, p)
	pagetable.Write(mem, th.PageTable, 0x00, 0x90000000) // nibble 9: unrecognized
	th.PC = 0

	if err := Step(mem, th); !errors.Is(err, ErrInvalidOpcode) {
		t.Errorf("got: %v expected: %v", err, ErrInvalidOpcode)
	}
	if p.State != pcb.Terminated {
		t.Errorf("state: got: %v expected: %v", p.State, pcb.Terminated)
	}
}

func TestPageFaultOnFetchTerminatesProcess(t *testing.T) {
	mem := memory.New()
	p := pcb.New("prog", 0, 10)
	th := newBoundThread(t, mem, p)
	th.PC = 0x1000 // beyond the one mapped page

	if err := Step(mem, th); !errors.Is(err, pagetable.ErrPageFault) {
		t.Errorf("got: %v expected: %v", err, pagetable.ErrPageFault)
	}
	if p.State != pcb.Terminated {
		t.Errorf("state: got: %v expected: %v", p.State, pcb.Terminated)
	}
}
