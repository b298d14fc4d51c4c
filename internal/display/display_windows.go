//go:build windows

package display

import (
	"sync"

	"wake-agent/internal/power"
	"wake-agent/internal/winapi"

	log "github.com/sirupsen/logrus"
)

// consoleWindow keeps the display required on its own execution-state
// thread so clearing the flag resets exactly what AddFlags set.
type consoleWindow struct {
	mu     sync.Mutex
	thread *power.ExecutionStateThread
}

func NewWindow() Window {
	return &consoleWindow{}
}

// Detect always reports LegacyWindowFlags: Windows has no lifecycle-scoped
// way for a background process to show over the lock screen.
func Detect() Capability {
	return LegacyWindowFlags
}

func (w *consoleWindow) SetShowWhenLocked(bool) error {
	return ErrUnsupported
}

func (w *consoleWindow) SetTurnScreenOn(on bool) error {
	if on {
		power.WakeDisplay()
	}
	return nil
}

func (w *consoleWindow) AddFlags(f Flags) error {
	if f&KeepScreenOn != 0 {
		w.mu.Lock()
		if w.thread == nil {
			w.thread = power.NewExecutionStateThread()
		}
		thread := w.thread
		w.mu.Unlock()
		if err := thread.Set(winapi.ES_DISPLAY_REQUIRED); err != nil {
			return err
		}
	}
	if f&ShowWhenLocked != 0 {
		log.Debug("SHOW_WHEN_LOCKED has no effect for a Windows service")
	}
	if f&TurnScreenOn != 0 {
		power.TurnOnMonitor()
	}
	return nil
}

func (w *consoleWindow) ClearFlags(f Flags) error {
	if f&KeepScreenOn == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.thread != nil {
		w.thread.Close()
		w.thread = nil
	}
	return nil
}
