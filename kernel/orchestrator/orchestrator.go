/*
 * tickkernel - Orchestrator: wires the shared state and every flow together.
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

// Package orchestrator owns the shared system state and every
// cooperating flow (clock, diagnostic timers, scheduler, generator),
// and drives their combined startup and shutdown.
package orchestrator

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dlrichey/tickkernel/kernel/clock"
	"github.com/dlrichey/tickkernel/kernel/generator"
	"github.com/dlrichey/tickkernel/kernel/loader"
	"github.com/dlrichey/tickkernel/kernel/machine"
	"github.com/dlrichey/tickkernel/kernel/memory"
	"github.com/dlrichey/tickkernel/kernel/pcb"
	"github.com/dlrichey/tickkernel/kernel/queue"
	"github.com/dlrichey/tickkernel/kernel/scheduler"
	"github.com/dlrichey/tickkernel/kernel/system"
	"github.com/dlrichey/tickkernel/kernel/timer"
)

// Config is the fully-resolved set of knobs the configuration file
// populates; see config/configparser for the directive grammar.
type Config struct {
	ClockHz  int
	Quantum  int
	Policy   scheduler.Policy
	SyncMode scheduler.SyncMode

	// TimerIntervals lists one diagnostic timer per entry, in addition
	// to the scheduler's own timer when SyncMode is Timer.
	TimerIntervals []uint64

	GeneratorIntervalMin, GeneratorIntervalMax int
	GeneratorTTLMin, GeneratorTTLMax           int

	QueueSize int

	CPUs, CoresPerCPU, ThreadsPerCore int

	MaxProcesses int

	// ProgramPaths lists program files loaded at startup, each becoming
	// one initial arrival pushed onto the shared ready queue.
	ProgramPaths []string
}

// System is the constructed, running simulator: shared state plus
// every flow closing over it.
type System struct {
	State *system.State

	clock     *clock.Clock
	scheduler *scheduler.Scheduler
	generator *generator.Generator
	timers    []*timer.Timer
}

// New builds a System from cfg: the machine topology, physical memory,
// shared ready queue, scheduler, clock, diagnostic timers and
// generator, all wired to one system.State. Program files named in
// cfg.ProgramPaths are loaded and pushed onto the shared ready queue
// before the flows start; a malformed or missing program file is a
// ProgramParse-kind error local to that one file, logged and skipped,
// never fatal to System construction.
func New(cfg Config) (*System, error) {
	m := machine.New(cfg.CPUs, cfg.CoresPerCPU, cfg.ThreadsPerCore)
	mem := memory.New()
	readyQueue := queue.New(cfg.QueueSize)

	state := system.New(m, mem, readyQueue, cfg.MaxProcesses)

	sched := scheduler.New(state, cfg.Quantum, cfg.Policy, cfg.SyncMode, cfg.QueueSize)
	state.SchedulerLen = sched.Len

	clk := clock.New(state, cfg.ClockHz)

	var timers []*timer.Timer
	if cfg.SyncMode == scheduler.Timer {
		schedTimerInterval := uint64(1)
		schedTimer := timer.New(state, schedTimerInterval, "scheduler")
		schedTimer.Callback = sched.Activate
		timers = append(timers, schedTimer)
	}
	for i, interval := range cfg.TimerIntervals {
		timers = append(timers, timer.New(state, interval, fmt.Sprintf("diagnostic-%d", i)))
	}

	gen := generator.New(state, cfg.GeneratorTTLMin, cfg.GeneratorTTLMax, cfg.GeneratorIntervalMin, cfg.GeneratorIntervalMax)

	sys := &System{
		State:     state,
		clock:     clk,
		scheduler: sched,
		generator: gen,
		timers:    timers,
	}

	for _, path := range cfg.ProgramPaths {
		if err := sys.loadProgram(path); err != nil {
			slog.Warn("program rejected at startup", "path", path, "err", err.Error())
			continue
		}
	}

	return sys, nil
}

// loadProgram loads one program file and pushes the resulting PCB onto
// the shared ready queue, rejecting it with a logged warning (not a
// fatal error) if the population cap has no room.
func (sys *System) loadProgram(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	p, err := loader.Load(sys.State.Mem, path, f)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	sys.State.Mu.Lock()
	defer sys.State.Mu.Unlock()
	if !sys.State.CanAdmitLocked() {
		slog.Warn("program rejected at startup: system at capacity", "path", path, "pid", p.PID)
		return nil
	}
	if err := sys.State.ReadyQueue.Push(p); err != nil {
		slog.Warn("program rejected at startup: ready queue full", "path", path, "pid", p.PID)
	}
	return nil
}

// Start launches every flow as its own goroutine: the scheduler before
// the clock, so the scheduler's first wait is already registered
// before any tick can broadcast.
func (sys *System) Start() {
	go sys.scheduler.Start()
	for _, tm := range sys.timers {
		go tm.Start()
	}
	go sys.generator.Start()
	go sys.clock.Start()
}

// Stop announces shutdown (via the clock, which owns the shutdown flag
// and broadcasts both condition variables) and joins every flow, then
// logs the shutdown report described in SPEC_FULL §4.
func (sys *System) Stop() {
	sys.clock.Stop()
	sys.scheduler.Stop()
	for _, tm := range sys.timers {
		tm.Stop()
	}
	sys.generator.Stop()

	sys.reportShutdown()
}

// reportShutdown walks running threads, then every PCB in the
// scheduler's own queues (the single queue, or the priority buckets for
// PreemptivePriority), then the shared ready queue, and
// logs population and memory statistics. Diagnostic only; it gates no
// invariant.
func (sys *System) reportShutdown() {
	st := sys.State
	st.Mu.Lock()
	defer st.Mu.Unlock()

	st.Machine.Each(func(th *machine.HWThread) {
		p := th.PCB
		slog.Info("thread bound at shutdown", "pid", p.PID, "name", p.Name, "ttl", p.TTL, "state", p.State.String(), "quantum_counter", p.QuantumCounter)
	})

	if sys.scheduler != nil {
		sys.scheduler.Each(func(p *pcb.PCB) {
			slog.Info("scheduler-queued at shutdown", "pid", p.PID, "name", p.Name, "priority", p.Priority, "ttl", p.TTL)
		})
	}

	st.ReadyQueue.Each(func(p *pcb.PCB) {
		slog.Info("ready-queued at shutdown", "pid", p.PID, "name", p.Name, "priority", p.Priority, "ttl", p.TTL)
	})

	stats := st.Mem.Stats()
	slog.Info("shutdown summary",
		"total_completed", st.TotalCompleted,
		"total_in_system", st.InSystemLocked(),
		"kernel_arena_frames", stats.KernelArenaFrames,
		"kernel_arena_used", stats.KernelArenaUsed,
		"user_frames_used", stats.UserFramesUsed,
		"user_frames_free", stats.UserFramesFree,
	)
}

// SchedulerEach calls fn for every PCB currently held in the
// scheduler's own ready structures (the single queue for RoundRobin and
// DeadlineEDF, every priority bucket for PreemptivePriority) — the
// processes waiting to run, as distinct from State.ReadyQueue's
// not-yet-absorbed arrivals. Used by the console's `show queue`.
func (sys *System) SchedulerEach(fn func(p *pcb.PCB)) {
	sys.scheduler.Each(fn)
}

// Pause stops the clock from advancing ticks without tearing down any
// flow; Resume reverses it. Used by the console's `pause`/`resume`.
func (sys *System) Pause() {
	sys.State.Mu.Lock()
	defer sys.State.Mu.Unlock()
	sys.State.Paused = true
}

func (sys *System) Resume() {
	sys.State.Mu.Lock()
	defer sys.State.Mu.Unlock()
	sys.State.Paused = false
}
