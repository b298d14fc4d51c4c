//go:build linux

package power

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/godbus/dbus/v5"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const (
	logindDest = "org.freedesktop.login1"
	logindPath = dbus.ObjectPath("/org/freedesktop/login1")

	screenSaverDest = "org.freedesktop.ScreenSaver"
	screenSaverPath = dbus.ObjectPath("/org/freedesktop/ScreenSaver")

	xsetTimeout = 5 * time.Second
)

// logindInhibitor holds a systemd-logind inhibitor lock. The lock lives as
// long as the returned file descriptor stays open.
type logindInhibitor struct{}

func newPlatformInhibitor() inhibitor {
	return logindInhibitor{}
}

func (logindInhibitor) inhibit(levels Level, tag string) (func() error, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	defer conn.Close()

	obj := conn.Object(logindDest, logindPath)
	call := obj.Call("org.freedesktop.login1.Manager.Inhibit", 0,
		"idle:sleep",
		tag,
		"Wake requested by UI",
		"block")
	if call.Err != nil {
		return nil, fmt.Errorf("failed to acquire inhibitor lock: %w", call.Err)
	}

	var fd dbus.UnixFD
	if err := call.Store(&fd); err != nil {
		return nil, fmt.Errorf("failed to extract inhibitor fd: %w", err)
	}

	if levels&AcquireCausesWakeup != 0 {
		WakeDisplay()
	}

	return func() error {
		if err := unix.Close(int(fd)); err != nil {
			return fmt.Errorf("failed to close inhibitor fd: %w", err)
		}
		if levels&OnAfterRelease == 0 {
			if err := xset("dpms", "force", "off"); err != nil {
				log.Debugf("Couldn't turn display off after release: %v", err)
			}
		}
		return nil
	}, nil
}

// WakeDisplay turns the display on. It asks the session's screensaver to
// register user activity and falls back to DPMS when no screensaver
// service is on the session bus.
func WakeDisplay() {
	err := SimulateUserActivity()
	if err == nil {
		return
	}
	log.Debugf("ScreenSaver.SimulateUserActivity unavailable: %v", err)
	if err := xset("dpms", "force", "on"); err != nil {
		log.Warnf("Couldn't force display on: %v", err)
	}
}

// SimulateUserActivity pokes org.freedesktop.ScreenSaver on the session bus.
func SimulateUserActivity() error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer conn.Close()

	call := conn.Object(screenSaverDest, screenSaverPath).
		Call("org.freedesktop.ScreenSaver.SimulateUserActivity", 0)
	return call.Err
}

func xset(args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), xsetTimeout)
	defer cancel()
	if out, err := exec.CommandContext(ctx, "xset", args...).CombinedOutput(); err != nil {
		return fmt.Errorf("xset %v: %w (%s)", args, err, out)
	}
	return nil
}
