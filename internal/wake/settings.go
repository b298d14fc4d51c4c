package wake

import (
	"fmt"
	"time"
)

const (
	DefaultTag         = "SmartHome:WakeLock"
	DefaultLockTimeout = 10 * time.Second
	DefaultRevertDelay = 8 * time.Second
	DefaultMainScreen  = "main"
)

// Settings are read at the start of every trigger, so a reload takes
// effect on the next wake request.
type Settings struct {
	Tag string
	// LockTimeout is the wake lock's own hard timeout.
	LockTimeout time.Duration
	// RevertDelay is when the controller reverts; it must be shorter than
	// LockTimeout so the controller, not the safety net, ends the session.
	RevertDelay time.Duration
	MainScreen  string
}

func DefaultSettings() Settings {
	return Settings{
		Tag:         DefaultTag,
		LockTimeout: DefaultLockTimeout,
		RevertDelay: DefaultRevertDelay,
		MainScreen:  DefaultMainScreen,
	}
}

func (s Settings) Validate() error {
	if s.Tag == "" {
		return fmt.Errorf("wake lock tag must not be empty")
	}
	if s.LockTimeout <= 0 || s.RevertDelay <= 0 {
		return fmt.Errorf("lock timeout (%v) and revert delay (%v) must be positive", s.LockTimeout, s.RevertDelay)
	}
	if s.RevertDelay >= s.LockTimeout {
		return fmt.Errorf("revert delay (%v) must be shorter than lock timeout (%v)", s.RevertDelay, s.LockTimeout)
	}
	if s.MainScreen == "" {
		return fmt.Errorf("main screen component must not be empty")
	}
	return nil
}
