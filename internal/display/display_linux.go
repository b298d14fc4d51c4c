//go:build linux

package display

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"wake-agent/internal/power"

	"github.com/godbus/dbus/v5"
	log "github.com/sirupsen/logrus"
)

const commandTimeout = 5 * time.Second

// sessionWindow stands in for the agent's window on a Linux desktop: the
// graphical session it runs in.
type sessionWindow struct {
	sessionID string
}

func NewWindow() Window {
	return &sessionWindow{sessionID: os.Getenv("XDG_SESSION_ID")}
}

// Detect reports DeclarativeLockBypass when the session is managed by
// logind, since its lock state then follows the session lifecycle.
func Detect() Capability {
	id := os.Getenv("XDG_SESSION_ID")
	if id == "" {
		return LegacyWindowFlags
	}
	if _, err := sessionPath(id); err != nil {
		log.Debugf("logind session %s unavailable: %v", id, err)
		return LegacyWindowFlags
	}
	return DeclarativeLockBypass
}

func sessionPath(id string) (dbus.ObjectPath, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return "", fmt.Errorf("failed to connect to system bus: %w", err)
	}
	defer conn.Close()

	var path dbus.ObjectPath
	err = conn.Object("org.freedesktop.login1", "/org/freedesktop/login1").
		Call("org.freedesktop.login1.Manager.GetSession", 0, id).
		Store(&path)
	if err != nil {
		return "", fmt.Errorf("GetSession(%s): %w", id, err)
	}
	return path, nil
}

func (w *sessionWindow) SetShowWhenLocked(on bool) error {
	if !on {
		return nil
	}
	if w.sessionID == "" {
		return fmt.Errorf("no XDG_SESSION_ID in environment")
	}
	path, err := sessionPath(w.sessionID)
	if err != nil {
		return err
	}
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}
	defer conn.Close()

	call := conn.Object("org.freedesktop.login1", path).Call("org.freedesktop.login1.Session.Unlock", 0)
	if call.Err != nil {
		return fmt.Errorf("Session.Unlock: %w", call.Err)
	}
	return nil
}

func (w *sessionWindow) SetTurnScreenOn(on bool) error {
	if !on {
		return nil
	}
	return power.SimulateUserActivity()
}

func (w *sessionWindow) AddFlags(f Flags) error {
	if f&KeepScreenOn != 0 {
		if err := run("xset", "s", "off", "-dpms"); err != nil {
			return err
		}
	}
	if f&ShowWhenLocked != 0 {
		if w.sessionID == "" {
			return fmt.Errorf("no XDG_SESSION_ID in environment")
		}
		if err := run("loginctl", "unlock-session", w.sessionID); err != nil {
			return err
		}
	}
	if f&TurnScreenOn != 0 {
		if err := run("xset", "dpms", "force", "on"); err != nil {
			return err
		}
	}
	return nil
}

// ClearFlags restores screensaver and DPMS. Unlocking and turning the
// screen on are one-shot actions with nothing to undo.
func (w *sessionWindow) ClearFlags(f Flags) error {
	if f&KeepScreenOn != 0 {
		return run("xset", "s", "on", "+dpms")
	}
	return nil
}

func run(name string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if out, err := exec.CommandContext(ctx, name, args...).CombinedOutput(); err != nil {
		return fmt.Errorf("%s %v: %w (%s)", name, args, err, out)
	}
	return nil
}
