package power

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrUnsupported is returned when the platform has no wake lock mechanism.
var ErrUnsupported = errors.New("wake locks are not supported on this platform")

// Level selects what a wake lock does while held and on release.
type Level uint32

const (
	// ScreenBright keeps the display on at full brightness.
	ScreenBright Level = 1 << iota
	// AcquireCausesWakeup turns the display on when the lock is acquired.
	AcquireCausesWakeup
	// OnAfterRelease leaves the display as-is on release instead of
	// turning it off.
	OnAfterRelease
)

func (l Level) String() string {
	var parts []string
	if l&ScreenBright != 0 {
		parts = append(parts, "SCREEN_BRIGHT")
	}
	if l&AcquireCausesWakeup != 0 {
		parts = append(parts, "ACQUIRE_CAUSES_WAKEUP")
	}
	if l&OnAfterRelease != 0 {
		parts = append(parts, "ON_AFTER_RELEASE")
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// Lock is one wake lock. Release is idempotent.
type Lock interface {
	Acquire(timeout time.Duration) error
	Release() error
	Held() bool
}

// inhibitor is the platform primitive behind a WakeLock.
type inhibitor interface {
	inhibit(levels Level, tag string) (release func() error, err error)
}

type Manager struct {
	inh inhibitor
}

// NewManager returns a manager backed by the platform's inhibitor.
func NewManager() *Manager {
	return &Manager{inh: newPlatformInhibitor()}
}

func (m *Manager) NewWakeLock(levels Level, tag string) (Lock, error) {
	if tag == "" {
		return nil, fmt.Errorf("wake lock tag must not be empty")
	}
	if levels&ScreenBright == 0 {
		return nil, fmt.Errorf("wake lock %q: no screen level set (%s)", tag, levels)
	}
	return &WakeLock{inh: m.inh, levels: levels, tag: tag}, nil
}

// WakeLock enforces its own hard timeout: once acquired with a positive
// timeout it releases itself when the timeout elapses, whether or not the
// owner ever calls Release.
type WakeLock struct {
	inh    inhibitor
	levels Level
	tag    string

	mu      sync.Mutex
	release func() error
	expiry  *time.Timer
}

func (w *WakeLock) Acquire(timeout time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.release != nil {
		return fmt.Errorf("wake lock %q is already held", w.tag)
	}
	release, err := w.inh.inhibit(w.levels, w.tag)
	if err != nil {
		return fmt.Errorf("couldn't acquire wake lock %q: %w", w.tag, err)
	}
	w.release = release
	if timeout > 0 {
		w.expiry = time.AfterFunc(timeout, w.expire)
	}
	log.WithFields(log.Fields{"tag": w.tag, "levels": w.levels, "timeout": timeout}).Debug("Wake lock acquired")
	return nil
}

func (w *WakeLock) expire() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.release == nil {
		return
	}
	log.WithField("tag", w.tag).Warn("Wake lock hit its hard timeout, releasing")
	if err := w.releaseLocked(); err != nil {
		log.WithField("tag", w.tag).Errorf("Failed to release expired wake lock: %v", err)
	}
}

func (w *WakeLock) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.release == nil {
		return nil
	}
	return w.releaseLocked()
}

func (w *WakeLock) releaseLocked() error {
	if w.expiry != nil {
		w.expiry.Stop()
		w.expiry = nil
	}
	release := w.release
	w.release = nil
	if err := release(); err != nil {
		return fmt.Errorf("couldn't release wake lock %q: %w", w.tag, err)
	}
	log.WithField("tag", w.tag).Debug("Wake lock released")
	return nil
}

func (w *WakeLock) Held() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.release != nil
}
