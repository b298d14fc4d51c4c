//go:build !windows && !linux

package power

import log "github.com/sirupsen/logrus"

type unsupportedInhibitor struct{}

func newPlatformInhibitor() inhibitor {
	return unsupportedInhibitor{}
}

func (unsupportedInhibitor) inhibit(Level, string) (func() error, error) {
	return nil, ErrUnsupported
}

func WakeDisplay() {
	log.Debug("WakeDisplay: not implemented on this platform")
}

// PowerEventListener never reports anything on this platform.
type PowerEventListener struct{}

func NewPowerEventListener(Dispatcher, func(PowerEvent)) *PowerEventListener {
	return &PowerEventListener{}
}

func (p *PowerEventListener) Start() {
	log.Debug("Power events not implemented on this platform")
}

func (p *PowerEventListener) Stop() {}
