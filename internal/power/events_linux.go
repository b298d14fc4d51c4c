//go:build linux

package power

import (
	"sync"

	"github.com/godbus/dbus/v5"
	log "github.com/sirupsen/logrus"
)

// PowerEventListener turns logind's PrepareForSleep signal into
// PowerEvents, delivered through the dispatcher given to
// NewPowerEventListener.
type PowerEventListener struct {
	gate *eventGate

	conn *dbus.Conn
	wg   sync.WaitGroup
	once sync.Once
}

// NewPowerEventListener delivers each transition by calling handle through
// dispatch. Suspend waits for handle so the wake lock is released before
// logind proceeds.
func NewPowerEventListener(dispatch Dispatcher, handle func(PowerEvent)) *PowerEventListener {
	return &PowerEventListener{gate: newEventGate(dispatch, handle)}
}

func (p *PowerEventListener) Start() {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		log.Warnf("Power events unavailable: %v", err)
		return
	}
	err = conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.login1.Manager"),
		dbus.WithMatchMember("PrepareForSleep"),
	)
	if err != nil {
		log.Warnf("Couldn't subscribe to PrepareForSleep: %v", err)
		conn.Close()
		return
	}
	p.conn = conn

	signals := make(chan *dbus.Signal, 4)
	conn.Signal(signals)

	p.wg.Add(1)
	go p.listen(signals)
}

func (p *PowerEventListener) listen(signals <-chan *dbus.Signal) {
	defer p.wg.Done()
	for sig := range signals {
		if sig.Name != "org.freedesktop.login1.Manager.PrepareForSleep" || len(sig.Body) == 0 {
			continue
		}
		sleeping, ok := sig.Body[0].(bool)
		if !ok {
			continue
		}
		ev := EventResume
		if sleeping {
			ev = EventSuspend
		}
		p.gate.deliver(ev)
	}
	log.Debug("Power event listener: signal channel closed")
}

func (p *PowerEventListener) Stop() {
	p.once.Do(func() {
		if p.conn != nil {
			// Closing the connection closes the signal channel.
			p.conn.Close()
		}
		p.wg.Wait()
	})
}
