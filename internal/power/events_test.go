package power

import (
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	events []PowerEvent
}

func (r *recorder) handle(ev PowerEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) got() []PowerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PowerEvent(nil), r.events...)
}

func inline(fn func()) bool { fn(); return true }

func TestEventGateDropsRepeats(t *testing.T) {
	var r recorder
	g := newEventGate(inline, r.handle)

	seq := []PowerEvent{EventSuspend, EventSuspend, EventResume, EventResume, EventSuspend}
	for _, ev := range seq {
		g.deliver(ev)
	}

	want := []PowerEvent{EventSuspend, EventResume, EventSuspend}
	got := r.got()
	if len(got) != len(want) {
		t.Fatalf("Delivered %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestEventGateSuspendWaitsForHandler(t *testing.T) {
	var r recorder
	g := newEventGate(func(fn func()) bool {
		go func() {
			time.Sleep(20 * time.Millisecond)
			fn()
		}()
		return true
	}, r.handle)

	if !g.deliver(EventSuspend) {
		t.Fatal("Suspend not delivered")
	}
	if got := r.got(); len(got) != 1 {
		t.Errorf("deliver returned before the suspend handler ran: %v", got)
	}
}

func TestEventGateSuspendGrace(t *testing.T) {
	g := newEventGate(func(fn func()) bool { return true }, func(PowerEvent) {})
	g.grace = 20 * time.Millisecond

	start := time.Now()
	g.deliver(EventSuspend)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("deliver blocked for %v past its grace period", elapsed)
	}
}

func TestEventGateDispatcherStopped(t *testing.T) {
	var r recorder
	g := newEventGate(func(func()) bool { return false }, r.handle)
	if g.deliver(EventResume) {
		t.Error("deliver reported success with a stopped dispatcher")
	}
	if len(r.got()) != 0 {
		t.Error("Handler ran with a stopped dispatcher")
	}
}

func TestPowerEventString(t *testing.T) {
	if EventSuspend.String() != "SUSPEND" || EventResume.String() != "RESUME" {
		t.Errorf("Unexpected names %s, %s", EventSuspend, EventResume)
	}
	if PowerEvent(9).String() != "PowerEvent(9)" {
		t.Errorf("Unexpected fallback %s", PowerEvent(9))
	}
}
