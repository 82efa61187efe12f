/*
 * tickkernel - Configuration file parser
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

// Package configparser reads the simulator's directive-line
// configuration file format and produces a populated
// orchestrator.Config. One directive per line; '#' starts a comment;
// blank lines are ignored; keywords are case-insensitive. Unknown or
// malformed directives are logged per line and skipped rather than
// aborting the whole file, so one bad line never prevents the rest of
// a configuration from loading.
package configparser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/dlrichey/tickkernel/kernel/orchestrator"
	"github.com/dlrichey/tickkernel/kernel/scheduler"
)

// ErrMalformedDirective is wrapped by every line-level parse error; it
// is this package's ProgramParse-kind error.
var ErrMalformedDirective = errors.New("malformed configuration directive")

// defaults mirror spec.md's stated defaults for an otherwise-empty
// configuration file.
func defaults() orchestrator.Config {
	return orchestrator.Config{
		ClockHz:              1,
		Quantum:              4,
		Policy:               scheduler.RoundRobin,
		SyncMode:             scheduler.Clock,
		GeneratorIntervalMin: 5,
		GeneratorIntervalMax: 5,
		GeneratorTTLMin:      10,
		GeneratorTTLMax:      10,
		QueueSize:            64,
		CPUs:                 1,
		CoresPerCPU:          1,
		ThreadsPerCore:       1,
		MaxProcesses:         64,
	}
}

// LoadConfigFile opens name and parses it into an orchestrator.Config,
// starting from spec.md's stated defaults. Malformed or unrecognized
// directive lines are logged and skipped, not treated as fatal; a
// fatal error is returned only if the file itself cannot be opened or
// read.
func LoadConfigFile(name string) (orchestrator.Config, error) {
	file, err := os.Open(name)
	if err != nil {
		return orchestrator.Config{}, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads directive lines from r into an orchestrator.Config,
// starting from spec.md's stated defaults.
func Parse(r io.Reader) (orchestrator.Config, error) {
	cfg := defaults()

	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}

		if err := applyDirective(&cfg, line); err != nil {
			slog.Warn("skipping configuration line", "line", lineNumber, "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return orchestrator.Config{}, err
	}
	return cfg, nil
}

// applyDirective parses one non-comment, non-blank line and mutates
// cfg, or returns a wrapped ErrMalformedDirective.
func applyDirective(cfg *orchestrator.Config, line string) error {
	fields := strings.Fields(line)
	keyword := strings.ToLower(fields[0])
	args := fields[1:]

	switch keyword {
	case "clock":
		v, err := parseInt(args, 1)
		if err != nil {
			return err
		}
		cfg.ClockHz = v

	case "quantum":
		v, err := parseInt(args, 1)
		if err != nil {
			return err
		}
		cfg.Quantum = v

	case "policy":
		p, err := parsePolicy(args)
		if err != nil {
			return err
		}
		cfg.Policy = p

	case "sync":
		m, err := parseSyncMode(args)
		if err != nil {
			return err
		}
		cfg.SyncMode = m

	case "timer":
		v, err := parseInt(args, 1)
		if err != nil {
			return err
		}
		cfg.TimerIntervals = append(cfg.TimerIntervals, uint64(v))

	case "generator":
		return applyGeneratorDirective(cfg, args)

	case "queue-size":
		v, err := parseInt(args, 1)
		if err != nil {
			return err
		}
		cfg.QueueSize = v

	case "topology":
		cpus, cores, threads, err := parseTopology(args)
		if err != nil {
			return err
		}
		cfg.CPUs, cfg.CoresPerCPU, cfg.ThreadsPerCore = cpus, cores, threads

	case "max-processes":
		v, err := parseInt(args, 1)
		if err != nil {
			return err
		}
		cfg.MaxProcesses = v

	case "programs":
		dir, err := collectProgramDirectory(args)
		if err != nil {
			return err
		}
		cfg.ProgramPaths = append(cfg.ProgramPaths, dir...)

	default:
		return fmt.Errorf("%w: unknown directive %q", ErrMalformedDirective, keyword)
	}
	return nil
}

func applyGeneratorDirective(cfg *orchestrator.Config, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("%w: generator directive wants 3 fields, got %d", ErrMalformedDirective, len(args))
	}
	lo, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDirective, err)
	}
	hi, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDirective, err)
	}
	switch strings.ToLower(args[0]) {
	case "interval":
		cfg.GeneratorIntervalMin, cfg.GeneratorIntervalMax = lo, hi
	case "ttl":
		cfg.GeneratorTTLMin, cfg.GeneratorTTLMax = lo, hi
	default:
		return fmt.Errorf("%w: unknown generator sub-directive %q", ErrMalformedDirective, args[0])
	}
	return nil
}

func parseInt(args []string, want int) (int, error) {
	if len(args) != want {
		return 0, fmt.Errorf("%w: expected %d field(s), got %d", ErrMalformedDirective, want, len(args))
	}
	v, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedDirective, err)
	}
	return v, nil
}

func parsePolicy(args []string) (scheduler.Policy, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: policy directive wants 1 field", ErrMalformedDirective)
	}
	switch strings.ToLower(args[0]) {
	case "roundrobin":
		return scheduler.RoundRobin, nil
	case "deadline":
		return scheduler.DeadlineEDF, nil
	case "priority":
		return scheduler.PreemptivePriority, nil
	default:
		return 0, fmt.Errorf("%w: unknown policy %q", ErrMalformedDirective, args[0])
	}
}

func parseSyncMode(args []string) (scheduler.SyncMode, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: sync directive wants 1 field", ErrMalformedDirective)
	}
	switch strings.ToLower(args[0]) {
	case "clock":
		return scheduler.Clock, nil
	case "timer":
		return scheduler.Timer, nil
	default:
		return 0, fmt.Errorf("%w: unknown sync mode %q", ErrMalformedDirective, args[0])
	}
}

func parseTopology(args []string) (cpus, cores, threads int, err error) {
	if len(args) != 3 {
		return 0, 0, 0, fmt.Errorf("%w: topology directive wants 3 fields", ErrMalformedDirective)
	}
	vals := make([]int, 3)
	for i, a := range args {
		v, convErr := strconv.Atoi(a)
		if convErr != nil {
			return 0, 0, 0, fmt.Errorf("%w: %v", ErrMalformedDirective, convErr)
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], nil
}

// collectProgramDirectory lists the *.elf files directly inside the
// named directory, each becoming one program path.
func collectProgramDirectory(args []string) ([]string, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: programs directive wants 1 field", ErrMalformedDirective)
	}
	entries, err := os.ReadDir(args[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDirective, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".elf") {
			continue
		}
		paths = append(paths, args[0]+string(os.PathSeparator)+e.Name())
	}
	return paths, nil
}
