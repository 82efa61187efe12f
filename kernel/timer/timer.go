/*
 * tickkernel - Derived tick source.
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

// Package timer implements a derived tick source: a flow that wakes on
// the clock's tick_available condition, fires at a configured tick
// interval, and invokes an optional callback synchronously while still
// holding the system lock.
package timer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dlrichey/tickkernel/kernel/system"
)

// Timer wakes every `interval` ticks and invokes Callback (if any)
// while the system lock is held, matching the lock state the clock
// leaves waiters in when it broadcasts tick_available.
type Timer struct {
	wg       sync.WaitGroup
	state    *system.State
	interval uint64
	last     uint64

	// Callback runs synchronously with the system lock already held;
	// it must not attempt to lock state.Mu itself.
	Callback func()

	// Name identifies this timer in diagnostics; the scheduler's own
	// timer is named distinctly from ad-hoc diagnostic timers.
	Name string
}

// New returns a Timer that fires every interval ticks.
func New(state *system.State, interval uint64, name string) *Timer {
	if interval == 0 {
		interval = 1
	}
	return &Timer{state: state, interval: interval, Name: name}
}

// Start runs the timer's wait loop until the shared state's shutdown
// flag is observed. Intended to be invoked as `go timer.Start()`.
func (tm *Timer) Start() {
	tm.wg.Add(1)
	defer tm.wg.Done()

	s := tm.state
	s.Mu.Lock()
	defer s.Mu.Unlock()

	for {
		for !s.ShuttingDown && s.Tick-tm.last < tm.interval {
			s.TickCond.Wait()
		}
		if s.ShuttingDown {
			return
		}
		tm.last = s.Tick
		if tm.Callback != nil {
			tm.Callback()
		}
	}
}

// Stop waits for the timer's flow to observe shutdown and drain.
// Shutdown itself is announced by the clock, not by this method; Stop
// here only joins the flow with a bounded timeout.
func (tm *Timer) Stop() {
	drained := make(chan struct{})
	go func() {
		tm.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(time.Second):
		slog.Warn("timed out waiting for timer to finish", "timer", tm.Name)
	}
}
