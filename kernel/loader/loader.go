/*
 * tickkernel - Program file loader.
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

// Package loader parses program files and produces a fully populated
// PCB: a page table built in the kernel arena, user frames holding the
// program's code and data, and a saved context ready for first
// dispatch.
package loader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dlrichey/tickkernel/kernel/memory"
	"github.com/dlrichey/tickkernel/kernel/pagetable"
	"github.com/dlrichey/tickkernel/kernel/pcb"
)

var (
	ErrMissingText   = errors.New("program missing .text section")
	ErrMalformedWord = errors.New("malformed hex word")
)

type section struct {
	addr  uint32
	words []uint32
}

// parse reads a program file from r and returns its text and data
// sections. A ProgramParse-kind error wraps the first malformed line
// encountered.
func parse(r io.Reader) (name string, priority, ttl int, text, data section, hasData, hasPriority, hasTTL bool, err error) {
	scanner := bufio.NewScanner(r)

	var cur *section
	text.addr, data.addr = 0, 0

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, ".text") {
			addr, perr := parseDirectiveAddr(line, ".text")
			if perr != nil {
				return "", 0, 0, section{}, section{}, false, false, false, perr
			}
			text.addr = addr
			cur = &text
			continue
		}
		if strings.HasPrefix(line, ".data") {
			addr, perr := parseDirectiveAddr(line, ".data")
			if perr != nil {
				return "", 0, 0, section{}, section{}, false, false, false, perr
			}
			data.addr = addr
			cur = &data
			hasData = true
			continue
		}
		if strings.HasPrefix(line, ".name") {
			name = strings.TrimSpace(strings.TrimPrefix(line, ".name"))
			continue
		}
		if strings.HasPrefix(line, ".priority") {
			v, perr := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, ".priority")))
			if perr != nil {
				return "", 0, 0, section{}, section{}, false, false, false, fmt.Errorf("%s: %w", line, ErrMalformedWord)
			}
			priority = v
			hasPriority = true
			continue
		}
		if strings.HasPrefix(line, ".ttl") {
			v, perr := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, ".ttl")))
			if perr != nil {
				return "", 0, 0, section{}, section{}, false, false, false, fmt.Errorf("%s: %w", line, ErrMalformedWord)
			}
			ttl = v
			hasTTL = true
			continue
		}

		if cur == nil {
			return "", 0, 0, section{}, section{}, false, false, false, fmt.Errorf("word before any section: %w", ErrMalformedWord)
		}
		v, perr := strconv.ParseUint(line, 16, 32)
		if perr != nil {
			return "", 0, 0, section{}, section{}, false, false, false, fmt.Errorf("%q: %w", line, ErrMalformedWord)
		}
		cur.words = append(cur.words, uint32(v))
	}
	if err := scanner.Err(); err != nil {
		return "", 0, 0, section{}, section{}, false, false, false, err
	}
	if len(text.words) == 0 {
		return "", 0, 0, section{}, section{}, false, false, false, ErrMissingText
	}
	return name, priority, ttl, text, data, hasData, hasPriority, hasTTL, nil
}

func parseDirectiveAddr(line, directive string) (uint32, error) {
	rest := strings.TrimSpace(strings.TrimPrefix(line, directive))
	v, err := strconv.ParseUint(rest, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", line, ErrMalformedWord)
	}
	return uint32(v), nil
}

// Load parses the program file read from r (whose base name, absent an
// explicit .name directive, becomes the PCB's diagnostic name), builds
// its page table and frames in mem, and returns a fully populated PCB
// in the Waiting state. On any frame-allocation failure partway
// through, frames already allocated for this PCB are released before
// the error is returned.
func Load(mem *memory.Memory, path string, r io.Reader) (*pcb.PCB, error) {
	name, priority, ttl, text, data, hasData, hasPriority, hasTTL, err := parse(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if name == "" {
		name = filepath.Base(path)
	}

	_, high := spanOf(text, data, hasData)
	startPage := int(text.addr) >> pagetable.PageBits
	if hasData && int(data.addr)>>pagetable.PageBits < startPage {
		startPage = int(data.addr) >> pagetable.PageBits
	}
	endPage := int(high) >> pagetable.PageBits

	pt, err := pagetable.New(mem, endPage+1)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var allocated []int
	releaseAll := func() {
		for _, f := range allocated {
			mem.FreeFrame(f)
		}
	}

	// pages from startPage to endPage cover the union of code and
	// data addresses, including any zero-filled gap between them;
	// pages below startPage are left absent and never referenced.
	for page := startPage; page <= endPage; page++ {
		frame, err := mem.AllocateFrame()
		if err != nil {
			releaseAll()
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		mem.ZeroFrame(frame)
		if err := pt.Map(page, frame); err != nil {
			releaseAll()
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		allocated = append(allocated, frame)
	}

	if err := copySection(mem, pt, text); err != nil {
		releaseAll()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if hasData {
		if err := copySection(mem, pt, data); err != nil {
			releaseAll()
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	if !hasPriority {
		priority = pcb.MinPriority + rand.Intn(pcb.NumBuckets)
	}
	if !hasTTL {
		ttl = clamp(3*len(text.words), 10, 100)
	}

	p := pcb.New(name, priority, ttl)
	p.Mem.CodeAddr = text.addr
	p.Mem.PageTable = pt
	if hasData {
		p.Mem.DataAddr = data.addr
	}
	p.Context.PC = text.addr

	return p, nil
}

// spanOf computes the virtual address range [low, high] covering both
// sections, so a single page table can address either with its
// original virtual layout preserved.
func spanOf(text, data section, hasData bool) (low, high uint32) {
	low = text.addr
	high = text.addr + uint32(len(text.words))*4
	if hasData {
		if data.addr < low {
			low = data.addr
		}
		dataEnd := data.addr + uint32(len(data.words))*4
		if dataEnd > high {
			high = dataEnd
		}
	}
	if high == low {
		high = low + 1
	}
	return low, high - 1
}

// copySection writes sec's words into mem through pt, at the virtual
// addresses the program was compiled for.
func copySection(mem *memory.Memory, pt *pagetable.PageTable, sec section) error {
	for i, w := range sec.words {
		virt := sec.addr + uint32(i)*4
		if err := pagetable.Write(mem, pt, virt, w); err != nil {
			return err
		}
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
