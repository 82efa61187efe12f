package machine

import (
	"testing"

	"github.com/dlrichey/tickkernel/kernel/pcb"
)

func TestBindFillsFirstFreeSlotInTopologyOrder(t *testing.T) {
	m := New(1, 1, 2)
	a := pcb.New("a", 0, 10)
	b := pcb.New("b", 0, 10)

	ta, err := m.Bind(a)
	if err != nil {
		t.Fatalf("bind a: %v", err)
	}
	tb, err := m.Bind(b)
	if err != nil {
		t.Fatalf("bind b: %v", err)
	}

	if ta == tb {
		t.Errorf("expected distinct threads")
	}
	if m.CPUs[0].Cores[0].Threads[0] != ta {
		t.Errorf("a should occupy slot 0")
	}
	if m.CPUs[0].Cores[0].Threads[1] != tb {
		t.Errorf("b should occupy slot 1")
	}
}

func TestBindFailsWhenFull(t *testing.T) {
	m := New(1, 1, 1)
	a := pcb.New("a", 0, 10)
	if _, err := m.Bind(a); err != nil {
		t.Fatalf("bind a: %v", err)
	}
	b := pcb.New("b", 0, 10)
	if _, err := m.Bind(b); err != ErrBindFailure {
		t.Errorf("got: %v expected: %v", err, ErrBindFailure)
	}
}

func TestCanAdmit(t *testing.T) {
	m := New(1, 1, 1)
	if !m.CanAdmit() {
		t.Errorf("expected CanAdmit true on empty machine")
	}
	m.Bind(pcb.New("a", 0, 10))
	if m.CanAdmit() {
		t.Errorf("expected CanAdmit false when full")
	}
}

func TestUnbindSavesContextAndCompacts(t *testing.T) {
	m := New(1, 1, 3)
	a := pcb.New("a", 0, 10)
	b := pcb.New("b", 0, 10)
	c := pcb.New("c", 0, 10)
	m.Bind(a)
	tb, _ := m.Bind(b)
	m.Bind(c)

	tb.Regs[0] = 42
	tb.PC = 100

	if err := m.Unbind(a.PID); err != nil {
		t.Fatalf("unbind a: %v", err)
	}

	core := m.CPUs[0].Cores[0]
	if core.Count() != 2 {
		t.Errorf("count after unbind: got: %d expected: 2", core.Count())
	}
	if core.Threads[0].PCB != b {
		t.Errorf("slot 0 should now hold b after compaction")
	}
	if core.Threads[0].Regs[0] != 42 || core.Threads[0].PC != 100 {
		t.Errorf("compacted thread did not carry b's register state")
	}
	if core.Threads[1].PCB != c {
		t.Errorf("slot 1 should hold c after compaction")
	}
	if core.Threads[2].Bound() {
		t.Errorf("slot 2 should be empty after compaction")
	}
	if a.Context.PC != 0 {
		t.Errorf("a's saved PC: got: %d expected: 0", a.Context.PC)
	}
}

func TestBindFlushesTLB(t *testing.T) {
	m := New(1, 1, 1)
	a := pcb.New("a", 0, 10)
	th, _ := m.Bind(a)
	th.tlb[0] = TLBEntry{VPN: 1, Frame: 2, Valid: true}

	m.Unbind(a.PID)
	b := pcb.New("b", 0, 10)
	th2, _ := m.Bind(b)

	if th2.tlb[0].Valid {
		t.Errorf("expected TLB flushed on bind")
	}
}

func TestEachVisitsOnlyBoundThreadsInOrder(t *testing.T) {
	m := New(1, 2, 1)
	a := pcb.New("a", 0, 10)
	m.Bind(a)

	var seen []*pcb.PCB
	m.Each(func(th *HWThread) { seen = append(seen, th.PCB) })

	if len(seen) != 1 || seen[0] != a {
		t.Errorf("each: got: %v expected: [%v]", seen, a)
	}
}
