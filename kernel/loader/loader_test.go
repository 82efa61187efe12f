package loader

import (
	"strings"
	"testing"

	"github.com/dlrichey/tickkernel/kernel/memory"
	"github.com/dlrichey/tickkernel/kernel/pagetable"
	"github.com/dlrichey/tickkernel/kernel/pcb"
)

const sampleProgram = `
.priority 3
.ttl 50
.text 0
4
8
20010200
10000010
f0000000
.data 10
5
7
0
`

func TestLoadProducesRunnablePCB(t *testing.T) {
	mem := memory.New()
	p, err := Load(mem, "sample.prog", strings.NewReader(sampleProgram))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if p.State != pcb.Waiting {
		t.Errorf("state: got: %v expected: %v", p.State, pcb.Waiting)
	}
	if p.Priority != 3 {
		t.Errorf("priority: got: %d expected: 3", p.Priority)
	}
	if p.TTL != 50 {
		t.Errorf("ttl: got: %d expected: 50", p.TTL)
	}
	if p.Context.PC != 0 {
		t.Errorf("entry pc: got: %d expected: 0", p.Context.PC)
	}

	v, err := pagetable.Read(mem, p.Mem.PageTable, 0x10)
	if err != nil {
		t.Fatalf("read data word: %v", err)
	}
	if v != 5 {
		t.Errorf("data[0]: got: %d expected: 5", v)
	}
}

func TestLoadMissingTextFails(t *testing.T) {
	mem := memory.New()
	_, err := Load(mem, "bad.prog", strings.NewReader(".data 0\n1\n"))
	if err == nil {
		t.Errorf("expected error for missing .text section")
	}
}

func TestLoadMalformedWordFails(t *testing.T) {
	mem := memory.New()
	_, err := Load(mem, "bad.prog", strings.NewReader(".text 0\nnotahexword\n"))
	if err == nil {
		t.Errorf("expected error for malformed word")
	}
}

func TestLoadDefaultsPriorityAndTTLWhenAbsent(t *testing.T) {
	mem := memory.New()
	p, err := Load(mem, "sample.prog", strings.NewReader(".text 0\n1\n2\n3\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Priority < pcb.MinPriority || p.Priority > pcb.MaxPriority {
		t.Errorf("priority out of range: %d", p.Priority)
	}
	want := clamp(3*3, 10, 100)
	if p.TTL != want {
		t.Errorf("ttl: got: %d expected: %d", p.TTL, want)
	}
}

func TestLoadReleasesFramesOnExhaustion(t *testing.T) {
	mem := memory.New()
	var held []int
	for {
		f, err := mem.AllocateFrame()
		if err != nil {
			break
		}
		held = append(held, f)
	}
	// free exactly one frame, so a program spanning pages 0 through 3
	// can allocate its first page but must fail on its second.
	mem.FreeFrame(held[len(held)-1])
	before := mem.Stats().UserFramesFree

	_, err := Load(mem, "big.prog", strings.NewReader(".text 0\n1\n.data 3000\n1\n"))
	if err == nil {
		t.Fatalf("expected allocation failure")
	}

	after := mem.Stats().UserFramesFree
	if after != before {
		t.Errorf("frames not released on failure: before: %d after: %d", before, after)
	}
}

func TestLoadRoundTripIsByteIdentical(t *testing.T) {
	mem := memory.New()
	p1, err := Load(mem, "sample.prog", strings.NewReader(sampleProgram))
	if err != nil {
		t.Fatalf("load 1: %v", err)
	}
	p2, err := Load(mem, "sample.prog", strings.NewReader(sampleProgram))
	if err != nil {
		t.Fatalf("load 2: %v", err)
	}

	for _, virt := range []uint32{0x0, 0x4, 0x8, 0xC, 0x10, 0x14, 0x18} {
		v1, err1 := pagetable.Read(mem, p1.Mem.PageTable, virt)
		v2, err2 := pagetable.Read(mem, p2.Mem.PageTable, virt)
		if err1 != nil || err2 != nil {
			t.Fatalf("read at 0x%x: %v / %v", virt, err1, err2)
		}
		if v1 != v2 {
			t.Errorf("round trip mismatch at 0x%x: %d != %d", virt, v1, v2)
		}
	}
}
