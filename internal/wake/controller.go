// Package wake turns the display on, bypasses the lock screen and brings
// the main screen forward on request, then reverts after a fixed delay.
//
// All session state is owned by a single looper goroutine. Public methods
// post to the looper and wait, so callers see a synchronous API while the
// deferred revert runs later on the same goroutine.
package wake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wake-agent/internal/channel"
	"wake-agent/internal/display"
	"wake-agent/internal/launcher"
	"wake-agent/internal/looper"
	"wake-agent/internal/power"

	log "github.com/sirupsen/logrus"
)

// MethodWakeUpApp is the channel method that triggers a wake.
const MethodWakeUpApp = "wakeUpApp"

// WakeLevels are the levels every wake lock is acquired with.
const WakeLevels = power.ScreenBright | power.AcquireCausesWakeup | power.OnAfterRelease

type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateHeld
	StateReleasing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAcquiring:
		return "ACQUIRING"
	case StateHeld:
		return "HELD"
	case StateReleasing:
		return "RELEASING"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type PowerManager interface {
	NewWakeLock(levels power.Level, tag string) (power.Lock, error)
}

type Launcher interface {
	StartActivity(ctx context.Context, intent launcher.Intent) error
}

type Options struct {
	Power      PowerManager
	Window     display.Window
	Capability display.Capability
	Launcher   Launcher
	Looper     *looper.Looper
	// Settings is consulted on every trigger. Nil means DefaultSettings.
	Settings func() Settings
}

// session is one wake: the lock it exclusively owns and the token of its
// scheduled revert.
type session struct {
	seq          uint64
	tag          string
	lock         power.Lock
	deadline     *looper.Token
	flagsApplied bool
	startedAt    time.Time
	revertAt     time.Time
}

// SessionInfo is a read-only view of the current session.
type SessionInfo struct {
	Seq        uint64    `json:"seq"`
	Tag        string    `json:"tag"`
	StartedAt  time.Time `json:"started_at"`
	RevertAt   time.Time `json:"revert_at,omitempty"`
	Capability string    `json:"capability"`
}

type Controller struct {
	power    PowerManager
	window   display.Window
	bypass   display.Bypass
	launcher Launcher
	loop     *looper.Looper
	settings func() Settings

	// Owned by the looper goroutine.
	current *session
	seq     uint64
	closed  bool

	mu        sync.RWMutex
	state     State
	info      *SessionInfo
	observers []func(State)
}

func NewController(opts Options) (*Controller, error) {
	if opts.Power == nil || opts.Window == nil || opts.Launcher == nil || opts.Looper == nil {
		return nil, fmt.Errorf("wake controller needs power, window, launcher and looper")
	}
	settings := opts.Settings
	if settings == nil {
		settings = DefaultSettings
	}
	c := &Controller{
		power:    opts.Power,
		window:   opts.Window,
		bypass:   display.BypassFor(opts.Capability),
		launcher: opts.Launcher,
		loop:     opts.Looper,
		settings: settings,
	}
	log.WithField("capability", c.bypass.Capability()).Info("Wake controller ready")
	return c, nil
}

// OnStateChange registers fn to be called on the looper goroutine after
// every state transition. fn must not block.
func (c *Controller) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Session returns the current session, if any.
func (c *Controller) Session() (SessionInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.info == nil {
		return SessionInfo{}, false
	}
	return *c.info, true
}

func (c *Controller) Capability() display.Capability {
	return c.bypass.Capability()
}

// TriggerWakeUp acquires a wake lock, applies lock-screen bypass, launches
// the main screen and schedules the revert. It returns once the launch has
// been issued. Any failure is a *WakeUpError.
//
// ctx only guards the wait for the looper: a wake that has started runs to
// completion and its outcome is returned even if ctx ends meanwhile.
func (c *Controller) TriggerWakeUp(ctx context.Context) error {
	var err error
	if runErr := c.loop.Run(ctx, func() { err = c.trigger(ctx) }); runErr != nil {
		return &WakeUpError{Op: "schedule", Err: runErr}
	}
	return err
}

func (c *Controller) trigger(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &WakeUpError{Op: "schedule", Err: err}
	}
	if c.closed {
		return &WakeUpError{Op: "trigger", Err: ErrClosed}
	}
	ctx = context.WithoutCancel(ctx)
	s := c.settings()

	if prev := c.current; prev != nil {
		log.WithField("seq", prev.seq).Info("Wake requested while a session is active, replacing it")
		prev.deadline.Cancel()
		if err := prev.lock.Release(); err != nil {
			log.WithField("seq", prev.seq).Errorf("Failed to release replaced wake lock: %v", err)
		}
		c.current = nil
	}

	c.setState(StateAcquiring, nil)
	lock, err := c.power.NewWakeLock(WakeLevels, s.Tag)
	if err == nil {
		err = lock.Acquire(s.LockTimeout)
	}
	if err != nil {
		c.setState(StateIdle, nil)
		return &WakeUpError{Op: "acquire wake lock", Err: err}
	}

	c.seq++
	sess := &session{
		seq:          c.seq,
		tag:          s.Tag,
		lock:         lock,
		flagsApplied: c.bypass.NeedsRevert(),
		startedAt:    time.Now(),
	}
	c.current = sess
	c.setState(StateHeld, sess)

	logger := log.WithFields(log.Fields{"seq": sess.seq, "tag": s.Tag})

	// From here on a failure leaves the session in place. The lock expires
	// on its own; the session reference is dropped at the same moment.
	if err := c.bypass.Apply(c.window); err != nil {
		c.expireAt(sess, s.LockTimeout)
		return &WakeUpError{Op: "apply lock-screen bypass", Err: err}
	}

	intent := launcher.Intent{
		Component: s.MainScreen,
		Flags:     launcher.FlagNewTask | launcher.FlagClearTop,
		Extras:    map[string]any{launcher.ExtraWakeupTrigger: true},
	}
	if err := c.launcher.StartActivity(ctx, intent); err != nil {
		c.expireAt(sess, s.LockTimeout)
		return &WakeUpError{Op: "launch main screen", Err: err}
	}

	sess.deadline = c.loop.PostDelayed(s.RevertDelay, func() {
		c.revert(sess, "deadline")
	})
	sess.revertAt = sess.startedAt.Add(s.RevertDelay)
	c.setState(StateHeld, sess)

	logger.Infof("Wake session started, reverting in %v", s.RevertDelay)
	return nil
}

func (c *Controller) expireAt(sess *session, d time.Duration) {
	sess.deadline = c.loop.PostDelayed(d, func() {
		c.revert(sess, "lock timeout")
	})
}

// revert ends sess unless it has already been replaced or torn down.
func (c *Controller) revert(sess *session, reason string) error {
	if c.current != sess {
		return nil
	}
	logger := log.WithFields(log.Fields{"seq": sess.seq, "reason": reason})

	c.setState(StateReleasing, sess)
	sess.deadline.Cancel()

	var errs []error
	if err := sess.lock.Release(); err != nil {
		errs = append(errs, err)
	}
	c.current = nil
	if sess.flagsApplied {
		if err := c.bypass.Revert(c.window); err != nil {
			errs = append(errs, err)
		}
	}
	c.setState(StateIdle, nil)

	err := errors.Join(errs...)
	if err != nil {
		logger.Errorf("Wake session revert incomplete: %v", err)
	} else {
		logger.Info("Wake session reverted")
	}
	return err
}

// Release ends the current session now, doing everything the deferred
// revert would.
func (c *Controller) Release(ctx context.Context) error {
	var err error
	if runErr := c.loop.Run(ctx, func() {
		if c.current != nil {
			err = c.revert(c.current, "release")
		}
	}); runErr != nil {
		return runErr
	}
	return err
}

// Teardown releases any outstanding lock immediately, cancels the pending
// revert and clears the session. Window flags are cleared best effort. The
// controller can be triggered again afterwards.
func (c *Controller) Teardown(ctx context.Context) error {
	var err error
	if runErr := c.loop.Run(ctx, func() { err = c.teardown() }); runErr != nil {
		return runErr
	}
	return err
}

// Close tears down like Teardown and then rejects every later trigger with
// ErrClosed, so no lock can be acquired while the agent shuts down.
func (c *Controller) Close(ctx context.Context) error {
	var err error
	if runErr := c.loop.Run(ctx, func() {
		c.closed = true
		err = c.teardown()
	}); runErr != nil {
		return runErr
	}
	return err
}

// OnPowerEvent ends the current session when the system suspends. It must
// run on the looper, which is where PowerEventListener delivers when given
// the looper's Post.
func (c *Controller) OnPowerEvent(ev power.PowerEvent) {
	if ev != power.EventSuspend || c.current == nil {
		return
	}
	if err := c.revert(c.current, "suspend"); err != nil {
		log.Errorf("Couldn't release wake session before sleep: %v", err)
	}
}

func (c *Controller) teardown() error {
	sess := c.current
	if sess == nil {
		return nil
	}
	sess.deadline.Cancel()
	err := sess.lock.Release()
	c.current = nil
	c.setState(StateIdle, nil)

	if sess.flagsApplied {
		if ferr := c.bypass.Revert(c.window); ferr != nil {
			log.WithField("seq", sess.seq).Warnf("Couldn't clear window flags on teardown: %v", ferr)
		}
	}
	if err != nil {
		return fmt.Errorf("teardown: %w", err)
	}
	log.WithField("seq", sess.seq).Info("Wake session torn down")
	return nil
}

func (c *Controller) setState(st State, sess *session) {
	var info *SessionInfo
	if sess != nil {
		info = &SessionInfo{
			Seq:        sess.seq,
			Tag:        sess.tag,
			StartedAt:  sess.startedAt,
			RevertAt:   sess.revertAt,
			Capability: c.bypass.Capability().String(),
		}
	}

	c.mu.Lock()
	changed := c.state != st
	c.state = st
	c.info = info
	observers := c.observers
	c.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range observers {
		fn(st)
	}
}

// HandleMethodCall answers calls on the wake channel.
func (c *Controller) HandleMethodCall(ctx context.Context, call channel.MethodCall) channel.Result {
	switch call.Method {
	case MethodWakeUpApp:
		if err := c.TriggerWakeUp(ctx); err != nil {
			msg := err.Error()
			var we *WakeUpError
			if errors.As(err, &we) {
				msg = we.Message()
			}
			log.Errorf("wakeUpApp failed: %v", err)
			return channel.Error(ErrorCode, msg, nil)
		}
		return channel.Success(true)
	default:
		return channel.NotImplemented()
	}
}
