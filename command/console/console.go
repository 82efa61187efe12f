/*
 * tickkernel - Console command dispatch.
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

// Package console implements the simulator's interactive command set:
// show stats, show queue, show threads, pause, resume, quit. Commands
// may be abbreviated to their minimum unambiguous prefix, matching the
// teacher's console command matching.
package console

import (
	"fmt"
	"strings"

	"github.com/dlrichey/tickkernel/kernel/orchestrator"
	"github.com/dlrichey/tickkernel/kernel/pcb"
	"github.com/dlrichey/tickkernel/util/hexdump"
)

type cmd struct {
	name    string
	min     int
	process func(*cmdLine, *orchestrator.System) (bool, error)
}

type cmdLine struct {
	line string
	pos  int
}

var cmdList = []cmd{
	{name: "show", min: 2, process: show},
	{name: "pause", min: 2, process: pause},
	{name: "resume", min: 2, process: resume},
	{name: "quit", min: 1, process: quit},
}

var showList = []cmd{
	{name: "stats", min: 2, process: showStats},
	{name: "queue", min: 1, process: showQueue},
	{name: "threads", min: 1, process: showThreads},
}

// ProcessCommand executes one console command line against sys. The
// returned bool is true when the command was `quit`.
func ProcessCommand(commandLine string, sys *orchestrator.System) (bool, error) {
	line := cmdLine{line: commandLine}
	word := line.getWord()

	match := matchList(cmdList, word)
	if len(match) == 0 {
		return false, fmt.Errorf("command not found: %s", word)
	}
	if len(match) > 1 {
		return false, fmt.Errorf("ambiguous command: %s", word)
	}
	return match[0].process(&line, sys)
}

// CompleteCmd returns candidate completions for commandLine, used by
// the line editor's tab-completion.
func CompleteCmd(commandLine string) []string {
	line := cmdLine{line: commandLine}
	word := line.getWord()

	if !line.isEOL() {
		match := matchList(cmdList, word)
		if len(match) != 1 || match[0].name != "show" {
			return nil
		}
		sub := line.getWord()
		names := make([]string, 0, len(showList))
		for _, c := range showList {
			if strings.HasPrefix(c.name, sub) {
				names = append(names, c.name)
			}
		}
		return names
	}

	match := matchList(cmdList, word)
	names := make([]string, len(match))
	for i, c := range match {
		names[i] = c.name
	}
	return names
}

func matchList(list []cmd, word string) []cmd {
	if word == "" {
		return nil
	}
	var out []cmd
	for _, c := range list {
		if matchCommand(c, word) {
			out = append(out, c)
		}
	}
	return out
}

func matchCommand(c cmd, word string) bool {
	if len(word) > len(c.name) || len(word) < c.min {
		return false
	}
	return c.name[:len(word)] == word
}

func (l *cmdLine) isEOL() bool {
	return l.pos >= len(l.line)
}

func (l *cmdLine) skipSpace() {
	for !l.isEOL() && l.line[l.pos] == ' ' {
		l.pos++
	}
}

// getWord consumes and returns the next space-delimited word.
func (l *cmdLine) getWord() string {
	l.skipSpace()
	start := l.pos
	for !l.isEOL() && l.line[l.pos] != ' ' {
		l.pos++
	}
	return strings.ToLower(l.line[start:l.pos])
}

func show(line *cmdLine, sys *orchestrator.System) (bool, error) {
	word := line.getWord()
	match := matchList(showList, word)
	if len(match) == 0 {
		return false, fmt.Errorf("unknown show target: %s", word)
	}
	if len(match) > 1 {
		return false, fmt.Errorf("ambiguous show target: %s", word)
	}
	return match[0].process(line, sys)
}

func showStats(_ *cmdLine, sys *orchestrator.System) (bool, error) {
	sys.State.Mu.Lock()
	defer sys.State.Mu.Unlock()

	fmt.Printf("tick=%d total_completed=%d in_system=%d\n",
		sys.State.Tick, sys.State.TotalCompleted, sys.State.InSystemLocked())
	return false, nil
}

func showQueue(_ *cmdLine, sys *orchestrator.System) (bool, error) {
	sys.State.Mu.Lock()
	defer sys.State.Mu.Unlock()

	printPCB := func(p *pcb.PCB) {
		var b strings.Builder
		b.WriteString(fmt.Sprintf("pid=%d name=%s priority=%d ttl=%d ", p.PID, p.Name, p.Priority, p.TTL))
		fmt.Println(b.String())
	}
	sys.SchedulerEach(printPCB)
	sys.State.ReadyQueue.Each(printPCB)
	return false, nil
}

func showThreads(_ *cmdLine, sys *orchestrator.System) (bool, error) {
	sys.State.Mu.Lock()
	defer sys.State.Mu.Unlock()

	for cpuIdx, cpu := range sys.State.Machine.CPUs {
		for coreIdx, core := range cpu.Cores {
			for threadIdx, t := range core.Threads {
				if !t.Bound() {
					fmt.Printf("cpu=%d core=%d thread=%d idle\n", cpuIdx, coreIdx, threadIdx)
					continue
				}
				var b strings.Builder
				hexdump.FormatAddr(&b, t.PC)
				fmt.Printf("cpu=%d core=%d thread=%d pid=%d pc=%s\n",
					cpuIdx, coreIdx, threadIdx, t.PCB.PID, b.String())
			}
		}
	}
	return false, nil
}

func pause(_ *cmdLine, sys *orchestrator.System) (bool, error) {
	sys.Pause()
	return false, nil
}

func resume(_ *cmdLine, sys *orchestrator.System) (bool, error) {
	sys.Resume()
	return false, nil
}

func quit(_ *cmdLine, _ *orchestrator.System) (bool, error) {
	return true, nil
}
