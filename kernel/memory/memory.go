/*
 * tickkernel - Physical memory, frame allocator and kernel arena.
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

// Package memory implements the flat physical word store, the frame
// bitmap allocator, and the kernel-arena bump allocator used to back
// page tables. Callers hold the system lock; this package does not
// synchronize itself.
package memory

import (
	"errors"
	"fmt"
)

const (
	// WordCount is the size of the word-addressed physical store: a
	// 24-bit byte address bus divided into 4-byte words.
	WordCount = 4 * 1024 * 1024

	// FrameWords is the number of words in one 4 KiB frame.
	FrameWords = 1024

	// FrameCount is the number of frames the byte bus can address.
	FrameCount = WordCount / FrameWords

	// KernelArenaFrames is the count of frames reserved at frame 0,
	// marked allocated at init and used as a bump arena for page
	// tables.
	KernelArenaFrames = 256
)

var (
	ErrNoFreeFrames          = errors.New("no free frames")
	ErrKernelArenaExhausted  = errors.New("kernel arena exhausted")
	ErrInvalidAddress        = errors.New("invalid physical address")
	errFrameInKernelArena    = errors.New("frame is in the kernel arena")
	errFrameAlreadyFree      = errors.New("frame already free")
)

// Memory is the simulator's flat physical word array plus its frame
// and kernel-arena allocators.
type Memory struct {
	words    [WordCount]uint32
	allocated [FrameCount]bool
	arenaNext int
}

// New returns a Memory with the kernel arena pre-marked allocated.
func New() *Memory {
	m := &Memory{arenaNext: 0}
	for i := 0; i < KernelArenaFrames; i++ {
		m.allocated[i] = true
	}
	return m
}

// AllocateFrame returns the index of a free frame outside the kernel
// arena, marking it allocated, or ErrNoFreeFrames.
func (m *Memory) AllocateFrame() (int, error) {
	for i := KernelArenaFrames; i < FrameCount; i++ {
		if !m.allocated[i] {
			m.allocated[i] = true
			return i, nil
		}
	}
	return 0, ErrNoFreeFrames
}

// FreeFrame releases a user-range frame back to the bitmap. Kernel
// arena frames can never be released this way.
func (m *Memory) FreeFrame(frame int) error {
	if frame < 0 || frame >= FrameCount {
		return fmt.Errorf("frame %d: %w", frame, ErrInvalidAddress)
	}
	if frame < KernelArenaFrames {
		return fmt.Errorf("frame %d: %w", frame, errFrameInKernelArena)
	}
	if !m.allocated[frame] {
		return fmt.Errorf("frame %d: %w", frame, errFrameAlreadyFree)
	}
	m.allocated[frame] = false
	m.zeroFrame(frame)
	return nil
}

// IsAllocated reports whether frame is currently marked allocated.
func (m *Memory) IsAllocated(frame int) bool {
	if frame < 0 || frame >= FrameCount {
		return false
	}
	return m.allocated[frame]
}

// AllocateArena bump-allocates the next free kernel-arena frame for use
// by a page table, or ErrKernelArenaExhausted once the arena is spent.
// The arena never reclaims frames; page tables live for the lifetime of
// their owning process.
func (m *Memory) AllocateArena() (int, error) {
	if m.arenaNext >= KernelArenaFrames {
		return 0, ErrKernelArenaExhausted
	}
	frame := m.arenaNext
	m.arenaNext++
	return frame, nil
}

// ReadWord reads the word at physical byte address addr.
func (m *Memory) ReadWord(addr uint32) (uint32, error) {
	idx, err := m.wordIndex(addr)
	if err != nil {
		return 0, err
	}
	return m.words[idx], nil
}

// WriteWord writes v at physical byte address addr.
func (m *Memory) WriteWord(addr uint32, v uint32) error {
	idx, err := m.wordIndex(addr)
	if err != nil {
		return err
	}
	m.words[idx] = v
	return nil
}

func (m *Memory) wordIndex(addr uint32) (uint32, error) {
	idx := addr / 4
	if idx >= WordCount {
		return 0, fmt.Errorf("address 0x%x: %w", addr, ErrInvalidAddress)
	}
	return idx, nil
}

// zeroFrame clears every word of frame; used when a frame is
// recycled back to the free pool.
func (m *Memory) zeroFrame(frame int) {
	start := frame * FrameWords
	for i := start; i < start+FrameWords; i++ {
		m.words[i] = 0
	}
}

// ZeroFrame clears every word of frame, used by the loader to
// zero-fill a freshly allocated user frame before copying program data
// into it.
func (m *Memory) ZeroFrame(frame int) {
	m.zeroFrame(frame)
}

// Stats reports frame usage for shutdown diagnostics.
type Stats struct {
	KernelArenaFrames int
	KernelArenaUsed   int
	UserFramesUsed    int
	UserFramesFree    int
}

// Stats computes current frame usage.
func (m *Memory) Stats() Stats {
	s := Stats{
		KernelArenaFrames: KernelArenaFrames,
		KernelArenaUsed:   m.arenaNext,
	}
	for i := KernelArenaFrames; i < FrameCount; i++ {
		if m.allocated[i] {
			s.UserFramesUsed++
		} else {
			s.UserFramesFree++
		}
	}
	return s
}
