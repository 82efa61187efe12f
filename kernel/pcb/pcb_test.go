package pcb

import "testing"

func TestNewAssignsState(t *testing.T) {
	p := New("test", 3, 100)

	if p.State != Waiting {
		t.Errorf("state: got: %v expected: %v", p.State, Waiting)
	}
	if p.VirtualDeadline != NoDeadline {
		t.Errorf("virtual deadline: got: %d expected: %d", p.VirtualDeadline, NoDeadline)
	}
	if p.Priority != 3 {
		t.Errorf("priority: got: %d expected: 3", p.Priority)
	}
	if p.TTL != 100 || p.InitialTTL != 100 {
		t.Errorf("ttl/initial_ttl: got: %d/%d expected: 100/100", p.TTL, p.InitialTTL)
	}
}

func TestNextPIDMonotonic(t *testing.T) {
	a := NextPID()
	b := NextPID()

	if b <= a {
		t.Errorf("pid not monotonic: got: %d then %d", a, b)
	}
}

func TestStateString(t *testing.T) {
	cases := []struct {
		state State
		want  string
	}{
		{Waiting, "waiting"},
		{Running, "running"},
		{Terminated, "terminated"},
		{State(99), "unknown"},
	}

	for _, c := range cases {
		if got := c.state.String(); got != c.want {
			t.Errorf("String(): got: %v expected: %v", got, c.want)
		}
	}
}

func TestBucketClamping(t *testing.T) {
	cases := []struct {
		priority int
		want     int
	}{
		{MinPriority, 0},
		{MaxPriority, NumBuckets - 1},
		{0, -MinPriority},
		{-100, 0},
		{100, NumBuckets - 1},
	}

	for _, c := range cases {
		if got := Bucket(c.priority); got != c.want {
			t.Errorf("Bucket(%d): got: %d expected: %d", c.priority, got, c.want)
		}
	}
}
