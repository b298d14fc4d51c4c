package power

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// PowerEvent is a system power transition.
type PowerEvent int

const (
	EventSuspend PowerEvent = iota + 1
	EventResume
)

func (e PowerEvent) String() string {
	switch e {
	case EventSuspend:
		return "SUSPEND"
	case EventResume:
		return "RESUME"
	}
	return fmt.Sprintf("PowerEvent(%d)", int(e))
}

// Dispatcher runs fn on the consumer's goroutine, typically looper.Post.
// It reports false when fn will never run.
type Dispatcher func(fn func()) bool

// suspendGrace bounds how long a suspend notification waits for its
// handler before letting the system go to sleep.
const suspendGrace = 2 * time.Second

// eventGate hands transitions to the dispatcher in order and drops
// repeats. Windows reports one resume as both PBT_APMRESUMEAUTO and
// PBT_APMRESUMESUSPEND, and logind can repeat PrepareForSleep.
type eventGate struct {
	dispatch Dispatcher
	handle   func(PowerEvent)
	grace    time.Duration

	mu   sync.Mutex
	last PowerEvent
}

func newEventGate(dispatch Dispatcher, handle func(PowerEvent)) *eventGate {
	return &eventGate{dispatch: dispatch, handle: handle, grace: suspendGrace}
}

// deliver reports whether ev was handed on. A suspend waits until its
// handler has run, or for the grace period.
func (g *eventGate) deliver(ev PowerEvent) bool {
	g.mu.Lock()
	if ev == g.last {
		g.mu.Unlock()
		log.Debugf("Power event %s repeated, ignoring", ev)
		return false
	}
	g.last = ev
	g.mu.Unlock()

	log.Infof("Power event: %s", ev)
	if g.handle == nil {
		return true
	}

	done := make(chan struct{})
	if !g.dispatch(func() {
		defer close(done)
		g.handle(ev)
	}) {
		log.Warnf("Power event %s dropped: consumer stopped", ev)
		return false
	}
	if ev == EventSuspend {
		select {
		case <-done:
		case <-time.After(g.grace):
			log.Warnf("Suspend handler still running after %v, not waiting", g.grace)
		}
	}
	return true
}
