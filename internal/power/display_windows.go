//go:build windows

package power

import (
	"fmt"
	"runtime"
	"time"

	"wake-agent/internal/winapi"

	log "github.com/sirupsen/logrus"
)

// WakeDisplay turns the monitors on and registers user activity so the
// session does not drop straight back into the screensaver.
func WakeDisplay() {
	log.Debug("WakeDisplay: Initiating display wake sequence")
	TurnOnMonitor()
	time.Sleep(100 * time.Millisecond)
	sendBenignKeypress()
}

// TurnOnMonitor sends the SC_MONITORPOWER message to turn on all monitors
func TurnOnMonitor() {
	winapi.SendMessageW.Call(
		winapi.HWND_BROADCAST,
		winapi.WM_SYSCOMMAND,
		winapi.SC_MONITORPOWER,
		uintptr(winapi.MONITOR_ON),
	)
}

func turnOffMonitor() {
	winapi.SendMessageW.Call(
		winapi.HWND_BROADCAST,
		winapi.WM_SYSCOMMAND,
		winapi.SC_MONITORPOWER,
		winapi.MONITOR_OFF,
	)
}

// sendBenignKeypress sends F15 keypress to register user activity.
// F15 exists on Windows but is rarely bound, so it has no visible effect.
func sendBenignKeypress() {
	winapi.KeybdEvent.Call(uintptr(winapi.VK_F15), 0, 0, 0)
	time.Sleep(10 * time.Millisecond)
	winapi.KeybdEvent.Call(uintptr(winapi.VK_F15), 0, uintptr(winapi.KEYEVENTF_KEYUP), 0)
}

// ExecutionStateThread owns one OS thread and sets its execution state.
// SetThreadExecutionState is thread-local, so the state must be set and
// cleared from the same locked thread.
type ExecutionStateThread struct {
	requests chan esRequest
	done     chan struct{}
}

type esRequest struct {
	flags uintptr
	reply chan error
}

func NewExecutionStateThread() *ExecutionStateThread {
	t := &ExecutionStateThread{
		requests: make(chan esRequest),
		done:     make(chan struct{}),
	}
	ready := make(chan struct{})
	go t.run(ready)
	<-ready
	return t
}

func (t *ExecutionStateThread) run(ready chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	close(ready)

	for {
		select {
		case <-t.done:
			winapi.SetThreadExecutionState.Call(uintptr(winapi.ES_CONTINUOUS))
			return
		case req := <-t.requests:
			ret, _, callErr := winapi.SetThreadExecutionState.Call(req.flags)
			if ret == 0 {
				req.reply <- fmt.Errorf("SetThreadExecutionState(0x%X) failed: %v", req.flags, callErr)
				continue
			}
			req.reply <- nil
		}
	}
}

// Set replaces the thread's execution state with ES_CONTINUOUS|flags.
func (t *ExecutionStateThread) Set(flags uintptr) error {
	reply := make(chan error, 1)
	select {
	case t.requests <- esRequest{flags: winapi.ES_CONTINUOUS | flags, reply: reply}:
	case <-t.done:
		return fmt.Errorf("execution state thread stopped")
	}
	return <-reply
}

// Close resets the execution state and ends the thread.
func (t *ExecutionStateThread) Close() {
	select {
	case <-t.done:
	default:
		close(t.done)
	}
}

type windowsInhibitor struct{}

func newPlatformInhibitor() inhibitor {
	return windowsInhibitor{}
}

func (windowsInhibitor) inhibit(levels Level, tag string) (func() error, error) {
	thread := NewExecutionStateThread()
	if err := thread.Set(winapi.ES_SYSTEM_REQUIRED | winapi.ES_DISPLAY_REQUIRED); err != nil {
		thread.Close()
		return nil, err
	}
	if levels&AcquireCausesWakeup != 0 {
		WakeDisplay()
	}

	return func() error {
		thread.Close()
		if levels&OnAfterRelease == 0 {
			turnOffMonitor()
		}
		log.WithField("tag", tag).Debug("Execution state reset")
		return nil
	}, nil
}
