/*
 * tickkernel - Per-process page tables and the MMU.
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

// Package pagetable implements per-process virtual-to-physical page
// tables and the MMU translation used on every fetch and data access.
package pagetable

import (
	"errors"
	"fmt"

	"github.com/dlrichey/tickkernel/kernel/memory"
)

// PageBits is the width of the intra-page byte offset; pages are 4 KiB.
const PageBits = 12

// ErrPageFault is raised when the MMU translates a virtual address
// whose page table entry is not present. It is fatal for the
// offending process, never for the host.
var ErrPageFault = errors.New("page fault")

// Entry is one page table entry: a 12-bit frame number plus its
// protection and usage bits.
type Entry struct {
	Frame    int
	Present  bool
	RW       bool
	User     bool
	Accessed bool
	Dirty    bool
}

// PageTable is a per-process virtual page number -> Entry map, backed
// by a bump-allocated slot in the kernel arena.
type PageTable struct {
	ArenaFrame int
	entries    []Entry
}

// New allocates a page table of numPages entries from the kernel
// arena's bump allocator.
func New(mem *memory.Memory, numPages int) (*PageTable, error) {
	frame, err := mem.AllocateArena()
	if err != nil {
		return nil, err
	}
	return &PageTable{
		ArenaFrame: frame,
		entries:    make([]Entry, numPages),
	}, nil
}

// NumPages reports the page table's entry count.
func (pt *PageTable) NumPages() int {
	return len(pt.entries)
}

// Map installs a present, read-write, user-mode entry for virtual page
// vpn pointing at frame.
func (pt *PageTable) Map(vpn, frame int) error {
	if vpn < 0 || vpn >= len(pt.entries) {
		return fmt.Errorf("vpn %d out of range: %w", vpn, ErrPageFault)
	}
	pt.entries[vpn] = Entry{Frame: frame, Present: true, RW: true, User: true}
	return nil
}

// Entry returns the entry for virtual page vpn.
func (pt *PageTable) Entry(vpn int) (Entry, bool) {
	if vpn < 0 || vpn >= len(pt.entries) {
		return Entry{}, false
	}
	return pt.entries[vpn], true
}

// translate splits a virtual address into its page number and
// intra-page offset, then resolves the page number against pt.
func (pt *PageTable) translate(virt uint32) (frame int, offset uint32, err error) {
	vpn := int(virt >> PageBits)
	offset = virt & ((1 << PageBits) - 1)

	entry, ok := pt.Entry(vpn)
	if !ok || !entry.Present {
		return 0, 0, fmt.Errorf("virtual address 0x%x: %w", virt, ErrPageFault)
	}
	return entry.Frame, offset, nil
}

// markAccessed sets the accessed bit, and additionally the dirty bit
// when write is true, on the entry covering virt. Assumes virt already
// translated successfully.
func (pt *PageTable) markAccessed(virt uint32, write bool) {
	vpn := int(virt >> PageBits)
	if vpn < 0 || vpn >= len(pt.entries) {
		return
	}
	pt.entries[vpn].Accessed = true
	if write {
		pt.entries[vpn].Dirty = true
	}
}

// Read translates virt through pt and reads the word at that physical
// address, setting the entry's accessed bit.
func Read(mem *memory.Memory, pt *PageTable, virt uint32) (uint32, error) {
	frame, offset, err := pt.translate(virt)
	if err != nil {
		return 0, err
	}
	physAddr := uint32(frame<<PageBits) | offset
	v, err := mem.ReadWord(physAddr)
	if err != nil {
		return 0, err
	}
	pt.markAccessed(virt, false)
	return v, nil
}

// Write translates virt through pt and writes v at that physical
// address, setting the entry's accessed and dirty bits.
func Write(mem *memory.Memory, pt *PageTable, virt uint32, v uint32) error {
	frame, offset, err := pt.translate(virt)
	if err != nil {
		return err
	}
	physAddr := uint32(frame<<PageBits) | offset
	if err := mem.WriteWord(physAddr, v); err != nil {
		return err
	}
	pt.markAccessed(virt, true)
	return nil
}
