package generator

import (
	"testing"
	"time"

	"github.com/dlrichey/tickkernel/kernel/machine"
	"github.com/dlrichey/tickkernel/kernel/memory"
	"github.com/dlrichey/tickkernel/kernel/queue"
	"github.com/dlrichey/tickkernel/kernel/system"
)

func newTestState(maxProcesses int) *system.State {
	return system.New(machine.New(1, 1, 1), memory.New(), queue.New(8), maxProcesses)
}

func advanceTick(s *system.State) {
	s.Mu.Lock()
	s.Tick++
	s.TickCond.Broadcast()
	s.Mu.Unlock()
}

func TestGeneratorEnqueuesWithinCap(t *testing.T) {
	s := newTestState(4)
	g := New(s, 5, 5, 0, 0)

	go g.Start()
	time.Sleep(20 * time.Millisecond)
	advanceTick(s)
	time.Sleep(20 * time.Millisecond)

	s.Mu.Lock()
	n := s.ReadyQueue.Len()
	s.Mu.Unlock()

	if n == 0 {
		t.Errorf("expected at least one arrival enqueued")
	}

	s.Mu.Lock()
	s.ShutdownLocked()
	s.Mu.Unlock()
	g.Stop()
}

func TestGeneratorHoldsPendingAtCapacity(t *testing.T) {
	s := newTestState(0) // no room ever
	g := New(s, 5, 5, 0, 0)

	go g.Start()
	time.Sleep(20 * time.Millisecond)
	advanceTick(s)
	time.Sleep(20 * time.Millisecond)

	s.Mu.Lock()
	n := s.ReadyQueue.Len()
	s.Mu.Unlock()

	if n != 0 {
		t.Errorf("expected no admission at zero capacity, got: %d", n)
	}

	s.Mu.Lock()
	s.ShutdownLocked()
	s.Mu.Unlock()
	g.Stop()
}

func TestGeneratorStopsOnShutdown(t *testing.T) {
	s := newTestState(4)
	g := New(s, 5, 5, 100, 100)

	go g.Start()
	time.Sleep(10 * time.Millisecond)

	s.Mu.Lock()
	s.ShutdownLocked()
	s.Mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("generator did not stop after shutdown")
	}
}
