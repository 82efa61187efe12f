package system

import (
	"testing"

	"github.com/dlrichey/tickkernel/kernel/machine"
	"github.com/dlrichey/tickkernel/kernel/memory"
	"github.com/dlrichey/tickkernel/kernel/pcb"
	"github.com/dlrichey/tickkernel/kernel/queue"
)

func newState(maxProcesses int) *State {
	m := machine.New(1, 1, 2)
	mem := memory.New()
	rq := queue.New(8)
	return New(m, mem, rq, maxProcesses)
}

func TestInSystemLockedCountsQueueAndRunning(t *testing.T) {
	s := newState(10)
	s.ReadyQueue.Push(pcb.New("a", 0, 10))
	s.Machine.Bind(pcb.New("b", 0, 10))

	if got := s.InSystemLocked(); got != 2 {
		t.Errorf("in system: got: %d expected: 2", got)
	}
}

func TestInSystemLockedIncludesSchedulerLen(t *testing.T) {
	s := newState(10)
	s.SchedulerLen = func() int { return 3 }

	if got := s.InSystemLocked(); got != 3 {
		t.Errorf("in system: got: %d expected: 3", got)
	}
}

func TestCanAdmitLockedRespectsCap(t *testing.T) {
	s := newState(1)
	if !s.CanAdmitLocked() {
		t.Errorf("expected room for first process")
	}
	s.ReadyQueue.Push(pcb.New("a", 0, 10))
	if s.CanAdmitLocked() {
		t.Errorf("expected cap reached")
	}
}

func TestShutdownLockedSetsFlagAndBroadcasts(t *testing.T) {
	s := newState(10)

	woke := make(chan struct{})
	go func() {
		s.Mu.Lock()
		for !s.ShuttingDown {
			s.TickCond.Wait()
		}
		s.Mu.Unlock()
		close(woke)
	}()

	s.Mu.Lock()
	s.ShutdownLocked()
	s.Mu.Unlock()

	<-woke
}
