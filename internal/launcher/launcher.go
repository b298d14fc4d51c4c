// Package launcher brings the application's main screen to the foreground.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	log "github.com/sirupsen/logrus"
)

// ErrNoMainScreen is returned when no command is configured for the
// component being launched.
var ErrNoMainScreen = errors.New("no main screen command configured")

// IntentFlags control how a launch treats running instances.
type IntentFlags uint32

const (
	// FlagNewTask starts the screen as a fresh process of its own.
	FlagNewTask IntentFlags = 1 << iota
	// FlagClearTop closes running instances before launching.
	FlagClearTop
)

func (f IntentFlags) String() string {
	var parts []string
	if f&FlagNewTask != 0 {
		parts = append(parts, "NEW_TASK")
	}
	if f&FlagClearTop != 0 {
		parts = append(parts, "CLEAR_TOP")
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// ExtraWakeupTrigger marks launches caused by a wake request so the UI can
// skip onboarding or show an alert screen.
const ExtraWakeupTrigger = "wakeup_trigger"

// Intent is a foreground-launch request.
type Intent struct {
	Component string
	Flags     IntentFlags
	Extras    map[string]any
}

// Screen describes how to start one component.
type Screen struct {
	Command     []string
	ProcessName string
}

type runningProcess interface {
	PID() int32
	Name() (string, error)
	Terminate() error
}

type processTable interface {
	Processes() ([]runningProcess, error)
}

type Launcher struct {
	screens map[string]Screen
	procs   processTable
	start   func(cmd *exec.Cmd) error
	settle  time.Duration
	selfPID int32
}

// New creates a launcher for the given components.
func New(screens map[string]Screen) *Launcher {
	return &Launcher{
		screens: screens,
		procs:   gopsutilTable{},
		start:   startDetached,
		settle:  200 * time.Millisecond,
		selfPID: int32(os.Getpid()),
	}
}

// SetScreens replaces the launch table, e.g. after a config reload.
// Not safe to call concurrently with StartActivity.
func (l *Launcher) SetScreens(screens map[string]Screen) {
	l.screens = screens
}

// StartActivity launches intent.Component. It returns once the process has
// started; it does not wait for it to exit.
func (l *Launcher) StartActivity(ctx context.Context, intent Intent) error {
	screen, ok := l.screens[intent.Component]
	if !ok || len(screen.Command) == 0 {
		return fmt.Errorf("launch %q: %w", intent.Component, ErrNoMainScreen)
	}

	logger := log.WithFields(log.Fields{"component": intent.Component, "flags": intent.Flags})

	if intent.Flags&FlagClearTop != 0 && screen.ProcessName != "" {
		killed, err := l.terminateRunning(screen.ProcessName)
		if err != nil {
			return fmt.Errorf("launch %q: clear running instances: %w", intent.Component, err)
		}
		if killed > 0 {
			logger.Infof("Closed %d running instance(s)", killed)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.settle):
			}
		}
	} else if intent.Flags&FlagNewTask == 0 && screen.ProcessName != "" {
		running, err := l.findRunning(screen.ProcessName)
		if err == nil && len(running) > 0 {
			logger.Info("Main screen already running, not starting another instance")
			return nil
		}
	}

	args, env := encodeExtras(intent.Extras)
	cmd := exec.Command(screen.Command[0], append(screen.Command[1:], args...)...)
	cmd.Env = append(os.Environ(), env...)

	logger.Infof("Starting: %s", strings.Join(cmd.Args, " "))
	if err := l.start(cmd); err != nil {
		return fmt.Errorf("launch %q: %w", intent.Component, err)
	}
	return nil
}

func (l *Launcher) findRunning(name string) ([]runningProcess, error) {
	procs, err := l.procs.Processes()
	if err != nil {
		return nil, err
	}
	want := normalizeName(name)
	var matches []runningProcess
	for _, p := range procs {
		if p.PID() == l.selfPID {
			continue
		}
		n, err := p.Name()
		if err != nil {
			continue
		}
		if normalizeName(n) == want {
			matches = append(matches, p)
		}
	}
	return matches, nil
}

func (l *Launcher) terminateRunning(name string) (int, error) {
	matches, err := l.findRunning(name)
	if err != nil {
		return 0, err
	}
	killed := 0
	for _, p := range matches {
		if err := p.Terminate(); err != nil {
			log.Warnf("Couldn't terminate PID %d: %v", p.PID(), err)
			continue
		}
		killed++
	}
	return killed, nil
}

func normalizeName(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".exe")
}

// encodeExtras renders extras as --key=value args and WAKE_EXTRA_KEY=value
// environment variables, sorted by key.
func encodeExtras(extras map[string]any) (args, env []string) {
	keys := make([]string, 0, len(extras))
	for k := range extras {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := fmt.Sprint(extras[k])
		args = append(args, fmt.Sprintf("--%s=%s", k, v))
		env = append(env, fmt.Sprintf("WAKE_EXTRA_%s=%s", strings.ToUpper(k), v))
	}
	return args, env
}

// startDetached starts cmd and reaps it in the background.
func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Debugf("Main screen exited: %v", err)
		}
	}()
	return nil
}

type gopsutilTable struct{}

func (gopsutilTable) Processes() ([]runningProcess, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}
	out := make([]runningProcess, len(procs))
	for i, p := range procs {
		out[i] = gopsutilProcess{p}
	}
	return out, nil
}

type gopsutilProcess struct {
	*process.Process
}

func (p gopsutilProcess) PID() int32 {
	return p.Pid
}
