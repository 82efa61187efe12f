/*
 * tickkernel - Global tick generator.
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

// Package clock drives the simulator's single time source: a
// monotonically increasing tick counter that, once per tick and under
// the system lock, decrements every bound PCB's TTL, steps one
// instruction per bound hardware thread, and wakes every subscriber.
package clock

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dlrichey/tickkernel/kernel/instruction"
	"github.com/dlrichey/tickkernel/kernel/machine"
	"github.com/dlrichey/tickkernel/kernel/pcb"
	"github.com/dlrichey/tickkernel/kernel/system"
)

// Clock is the sole owner of tick production and is the flow
// responsible for announcing shutdown: it broadcasts on both
// condition variables so every other flow's wait loop observes the
// shutdown flag.
type Clock struct {
	wg     sync.WaitGroup
	done   chan struct{}
	ticker *time.Ticker
	state  *system.State
}

// New returns a Clock producing ticks at frequency Hz.
func New(state *system.State, hz int) *Clock {
	if hz <= 0 {
		hz = 1
	}
	return &Clock{
		done:   make(chan struct{}),
		ticker: time.NewTicker(time.Second / time.Duration(hz)),
		state:  state,
	}
}

// Start runs the tick loop until Stop is called. Intended to be
// invoked as `go clock.Start()`.
func (c *Clock) Start() {
	c.wg.Add(1)
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		case <-c.ticker.C:
			c.tick()
		}
	}
}

// tick performs the clock's indivisible critical section: advance the
// tick counter, decrement TTL on every bound thread, step one
// instruction per bound thread, then broadcast the new tick to every
// subscriber.
func (c *Clock) tick() {
	s := c.state
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if s.ShuttingDown {
		return
	}
	if s.Paused {
		return
	}

	s.Tick++

	s.Machine.Each(func(th *machine.HWThread) {
		if th.PCB.State != pcb.Terminated && th.PCB.TTL > 0 {
			th.PCB.TTL--
		}
	})

	s.Machine.Each(func(th *machine.HWThread) {
		if err := instruction.Step(s.Mem, th); err != nil {
			slog.Warn("instruction step failed", "pid", th.PCB.PID, "error", err)
		}
	})

	s.TickCond.Broadcast()
}

// Stop announces shutdown to every flow and waits (with a timeout) for
// the tick loop to drain.
func (c *Clock) Stop() {
	c.state.Mu.Lock()
	c.state.ShutdownLocked()
	c.state.Mu.Unlock()

	c.ticker.Stop()
	close(c.done)

	drained := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(time.Second):
		slog.Warn("timed out waiting for clock to finish")
	}
}
