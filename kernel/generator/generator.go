/*
 * tickkernel - Synthetic process generator.
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

// Package generator produces synthetic, code-free PCBs at random
// inter-arrival intervals for scheduling experiments. It never
// discards an arrival: when the system is at capacity, the newest PCB
// is held pending and retried on every subsequent tick.
package generator

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/dlrichey/tickkernel/kernel/pcb"
	"github.com/dlrichey/tickkernel/kernel/system"
)

// Generator is parameterized by TTL and inter-arrival ranges, both in
// ticks, and by a random priority drawn from the full priority range
// on every spawn.
type Generator struct {
	wg    sync.WaitGroup
	state *system.State

	ttlMin, ttlMax           int
	intervalMin, intervalMax int

	nextArrival uint64
	lastChecked uint64
	pending     *pcb.PCB

	rng *rand.Rand
}

// New returns a Generator producing TTLs in [ttlMin, ttlMax] and
// inter-arrivals in [intervalMin, intervalMax] ticks.
func New(state *system.State, ttlMin, ttlMax, intervalMin, intervalMax int) *Generator {
	return &Generator{
		state:       state,
		ttlMin:      ttlMin,
		ttlMax:      ttlMax,
		intervalMin: intervalMin,
		intervalMax: intervalMax,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start runs the generator's arrival loop until shutdown. Intended to
// be invoked as `go generator.Start()`.
func (g *Generator) Start() {
	g.wg.Add(1)
	defer g.wg.Done()

	s := g.state
	s.Mu.Lock()
	defer s.Mu.Unlock()

	g.nextArrival = s.Tick + uint64(g.randInterval())
	g.lastChecked = s.Tick

	for {
		if g.pending != nil {
			for !s.ShuttingDown && s.Tick == g.lastChecked {
				s.TickCond.Wait()
			}
		} else {
			for !s.ShuttingDown && s.Tick < g.nextArrival {
				s.TickCond.Wait()
			}
		}
		if s.ShuttingDown {
			return
		}
		g.lastChecked = s.Tick

		p := g.pending
		if p == nil {
			p = g.spawn()
		}

		if s.CanAdmitLocked() {
			if err := s.ReadyQueue.Push(p); err != nil {
				slog.Warn("generator: ready queue rejected arrival", "error", err)
				g.pending = p
				continue
			}
			g.pending = nil
			g.nextArrival = s.Tick + uint64(g.randInterval())
		} else {
			g.pending = p
		}
	}
}

// Stop waits for the generator's flow to observe shutdown and drain.
func (g *Generator) Stop() {
	drained := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(time.Second):
		slog.Warn("timed out waiting for generator to finish")
	}
}

// spawn builds a synthetic PCB with no code segment, a random priority
// across the full range, and a random TTL within the configured range.
func (g *Generator) spawn() *pcb.PCB {
	priority := pcb.MinPriority + g.rng.Intn(pcb.NumBuckets)
	ttl := g.ttlMin
	if g.ttlMax > g.ttlMin {
		ttl += g.rng.Intn(g.ttlMax - g.ttlMin + 1)
	}
	p := pcb.New("", priority, ttl)
	p.Name = fmt.Sprintf("gen-%d", p.PID)
	return p
}

func (g *Generator) randInterval() int {
	if g.intervalMax <= g.intervalMin {
		return g.intervalMin
	}
	return g.intervalMin + g.rng.Intn(g.intervalMax-g.intervalMin+1)
}
