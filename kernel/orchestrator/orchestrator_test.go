package orchestrator

import (
	"testing"
	"time"

	"github.com/dlrichey/tickkernel/kernel/scheduler"
)

func testConfig() Config {
	return Config{
		ClockHz:              1000,
		Quantum:              2,
		Policy:               scheduler.RoundRobin,
		SyncMode:             scheduler.Clock,
		GeneratorIntervalMin: 1000,
		GeneratorIntervalMax: 1000,
		GeneratorTTLMin:      10,
		GeneratorTTLMax:      10,
		QueueSize:            8,
		CPUs:                 1,
		CoresPerCPU:          1,
		ThreadsPerCore:       2,
		MaxProcesses:         8,
	}
}

func TestNewWiresSchedulerLenIntoState(t *testing.T) {
	sys, err := New(testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sys.State.SchedulerLen == nil {
		t.Fatal("expected SchedulerLen wired")
	}
	if sys.State.SchedulerLen() != 0 {
		t.Errorf("expected an empty scheduler at construction")
	}
}

func TestStartRunsAndStopDrainsCleanly(t *testing.T) {
	sys, err := New(testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sys.Start()
	time.Sleep(30 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		sys.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not stop cleanly")
	}
}

func TestNewSkipsUnreadableProgramPathButStillConstructs(t *testing.T) {
	cfg := testConfig()
	cfg.ProgramPaths = []string{"/nonexistent/path/does-not-exist.elf"}

	sys, err := New(cfg)
	if err != nil {
		t.Fatalf("expected a bad program path to be skipped, not fatal: %v", err)
	}
	if sys.State.InSystemLocked() != 0 {
		t.Errorf("expected the bad path to contribute no process: got %d", sys.State.InSystemLocked())
	}
}

func TestPauseStopsTickProgress(t *testing.T) {
	sys, err := New(testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sys.Start()
	time.Sleep(10 * time.Millisecond)

	sys.Pause()
	sys.State.Mu.Lock()
	before := sys.State.Tick
	sys.State.Mu.Unlock()

	time.Sleep(30 * time.Millisecond)

	sys.State.Mu.Lock()
	after := sys.State.Tick
	sys.State.Mu.Unlock()

	if after != before {
		t.Errorf("expected no tick progress while paused: before=%d after=%d", before, after)
	}

	sys.Resume()
	done := make(chan struct{})
	go func() {
		sys.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not stop cleanly")
	}
}
