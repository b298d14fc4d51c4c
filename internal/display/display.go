// Package display applies lock-screen bypass and keep-screen-on state to the
// agent's window, choosing between the platform's declarative mechanism and
// raw window flags.
package display

import (
	"errors"
	"fmt"
	"strings"
)

// Capability is the mechanism the platform offers for showing over the
// lock screen.
type Capability int

const (
	// LegacyWindowFlags sets raw flags that must be cleared explicitly.
	LegacyWindowFlags Capability = iota
	// DeclarativeLockBypass sets state scoped to the window's lifecycle;
	// it never needs explicit clearing.
	DeclarativeLockBypass
)

func (c Capability) String() string {
	switch c {
	case DeclarativeLockBypass:
		return "declarative"
	case LegacyWindowFlags:
		return "legacy"
	}
	return fmt.Sprintf("Capability(%d)", int(c))
}

// ParseCapability accepts "declarative" or "legacy". "auto" and "" return
// ok=false so the caller falls back to Detect.
func ParseCapability(s string) (c Capability, ok bool, err error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return 0, false, nil
	case "declarative":
		return DeclarativeLockBypass, true, nil
	case "legacy":
		return LegacyWindowFlags, true, nil
	}
	return 0, false, fmt.Errorf("unknown capability %q (want auto, declarative or legacy)", s)
}

// Flags are window attributes for the legacy mechanism.
type Flags uint32

const (
	KeepScreenOn Flags = 1 << iota
	ShowWhenLocked
	TurnScreenOn
)

// WakeFlags is the set applied by the legacy bypass.
const WakeFlags = KeepScreenOn | ShowWhenLocked | TurnScreenOn

func (f Flags) String() string {
	var parts []string
	if f&KeepScreenOn != 0 {
		parts = append(parts, "KEEP_SCREEN_ON")
	}
	if f&ShowWhenLocked != 0 {
		parts = append(parts, "SHOW_WHEN_LOCKED")
	}
	if f&TurnScreenOn != 0 {
		parts = append(parts, "TURN_SCREEN_ON")
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// ErrUnsupported is returned by windows on platforms without a mechanism.
var ErrUnsupported = errors.New("display control is not supported on this platform")

type Window interface {
	SetShowWhenLocked(on bool) error
	SetTurnScreenOn(on bool) error
	AddFlags(f Flags) error
	ClearFlags(f Flags) error
}

// Bypass applies and reverts lock-screen bypass for one capability.
type Bypass interface {
	Capability() Capability
	Apply(w Window) error
	Revert(w Window) error
	// NeedsRevert reports whether Revert does anything.
	NeedsRevert() bool
}

// BypassFor returns the bypass variant for c.
func BypassFor(c Capability) Bypass {
	if c == DeclarativeLockBypass {
		return declarativeBypass{}
	}
	return legacyBypass{}
}

type declarativeBypass struct{}

func (declarativeBypass) Capability() Capability { return DeclarativeLockBypass }

func (declarativeBypass) Apply(w Window) error {
	if err := w.SetShowWhenLocked(true); err != nil {
		return fmt.Errorf("show when locked: %w", err)
	}
	if err := w.SetTurnScreenOn(true); err != nil {
		return fmt.Errorf("turn screen on: %w", err)
	}
	return nil
}

func (declarativeBypass) Revert(Window) error { return nil }

func (declarativeBypass) NeedsRevert() bool { return false }

type legacyBypass struct{}

func (legacyBypass) Capability() Capability { return LegacyWindowFlags }

func (legacyBypass) Apply(w Window) error {
	if err := w.AddFlags(WakeFlags); err != nil {
		return fmt.Errorf("add window flags %s: %w", WakeFlags, err)
	}
	return nil
}

func (legacyBypass) Revert(w Window) error {
	if err := w.ClearFlags(WakeFlags); err != nil {
		return fmt.Errorf("clear window flags %s: %w", WakeFlags, err)
	}
	return nil
}

func (legacyBypass) NeedsRevert() bool { return true }
