package clock

import (
	"testing"
	"time"

	"github.com/dlrichey/tickkernel/kernel/machine"
	"github.com/dlrichey/tickkernel/kernel/memory"
	"github.com/dlrichey/tickkernel/kernel/pagetable"
	"github.com/dlrichey/tickkernel/kernel/pcb"
	"github.com/dlrichey/tickkernel/kernel/queue"
	"github.com/dlrichey/tickkernel/kernel/system"
)

func newTestState(t *testing.T) (*system.State, *pcb.PCB) {
	t.Helper()
	m := machine.New(1, 1, 1)
	mem := memory.New()
	rq := queue.New(4)
	s := system.New(m, mem, rq, 4)

	p := pcb.New("prog", 0, 10)
	pt, err := pagetable.New(mem, 1)
	if err != nil {
		t.Fatalf("page table: %v", err)
	}
	frame, err := mem.AllocateFrame()
	if err != nil {
		t.Fatalf("allocate frame: %v", err)
	}
	pt.Map(0, frame)
	p.Mem.PageTable = pt

	m.Bind(p)
	return s, p
}

func TestTickDecrementsTTLAndAdvancesPC(t *testing.T) {
	s, p := newTestState(t)
	c := New(s, 1000)

	c.tick()

	if s.Tick != 1 {
		t.Errorf("tick counter: got: %d expected: 1", s.Tick)
	}
	if p.TTL != 9 {
		t.Errorf("ttl after tick: got: %d expected: 9", p.TTL)
	}
	// the zeroed frame decodes as LD R0,[0], which advances PC by 4
	if pc := s.Machine.CPUs[0].Cores[0].Threads[0].PC; pc != 4 {
		t.Errorf("pc after tick: got: %d expected: 4", pc)
	}
}

func TestTickNeverDecrementsTTLBelowZero(t *testing.T) {
	s, p := newTestState(t)
	p.TTL = 0
	c := New(s, 1000)

	c.tick()

	if p.TTL != 0 {
		t.Errorf("ttl: got: %d expected: 0", p.TTL)
	}
}

func TestTickSkipsTerminatedThread(t *testing.T) {
	s, p := newTestState(t)
	p.State = pcb.Terminated
	p.TTL = 5
	c := New(s, 1000)

	c.tick()

	if p.TTL != 5 {
		t.Errorf("ttl of terminated pcb: got: %d expected: 5 (unchanged)", p.TTL)
	}
}

func TestTickIsNoOpWhenPaused(t *testing.T) {
	s, _ := newTestState(t)
	s.Paused = true
	c := New(s, 1000)

	c.tick()

	if s.Tick != 0 {
		t.Errorf("tick counter while paused: got: %d expected: 0", s.Tick)
	}
}

func TestStopWakesBlockedWaiter(t *testing.T) {
	s, _ := newTestState(t)
	c := New(s, 1000)

	woke := make(chan struct{})
	go func() {
		s.Mu.Lock()
		for !s.ShuttingDown {
			s.TickCond.Wait()
		}
		s.Mu.Unlock()
		close(woke)
	}()

	time.Sleep(10 * time.Millisecond)
	c.Stop()

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("waiter never woke after Stop")
	}
}
