//go:build windows

package power

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"

	"wake-agent/internal/winapi"

	log "github.com/sirupsen/logrus"
)

const powerWindowClass = "WakeAgentPowerMonitor"

// PowerEventListener turns WM_POWERBROADCAST into PowerEvents, delivered
// through the dispatcher given to NewPowerEventListener.
type PowerEventListener struct {
	gate *eventGate

	hwnd    atomic.Uintptr
	stopped atomic.Bool
	wg      sync.WaitGroup
}

// NewPowerEventListener delivers each transition by calling handle through
// dispatch. A suspend blocks the broadcast until handle returns, so the
// agent can release its wake lock before the system sleeps.
func NewPowerEventListener(dispatch Dispatcher, handle func(PowerEvent)) *PowerEventListener {
	return &PowerEventListener{gate: newEventGate(dispatch, handle)}
}

func (p *PowerEventListener) Start() {
	ready := make(chan error, 1)
	p.wg.Add(1)
	go p.pump(ready)
	if err := <-ready; err != nil {
		log.Warnf("Power events unavailable: %v", err)
	}
}

func (p *PowerEventListener) Stop() {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	if hwnd := p.hwnd.Load(); hwnd != 0 {
		winapi.PostMessageW.Call(hwnd, winapi.WM_QUIT, 0, 0)
	}
	p.wg.Wait()
}

func eventForBroadcast(wParam uintptr) (PowerEvent, bool) {
	switch wParam {
	case winapi.PBT_APMSUSPEND:
		return EventSuspend, true
	case winapi.PBT_APMRESUMEAUTO, winapi.PBT_APMRESUMESUSPEND:
		return EventResume, true
	}
	return 0, false
}

func (p *PowerEventListener) wndProc(hwnd, msg, wParam, lParam uintptr) uintptr {
	if msg == winapi.WM_POWERBROADCAST {
		if ev, ok := eventForBroadcast(wParam); ok {
			p.gate.deliver(ev)
			return 1
		}
		log.Debugf("Power broadcast 0x%X ignored", wParam)
	}
	ret, _, _ := winapi.DefWindowProcW.Call(hwnd, msg, wParam, lParam)
	return ret
}

// createWindow registers the hidden message-only window that receives
// power broadcasts.
func (p *PowerEventListener) createWindow() (uintptr, error) {
	className, err := syscall.UTF16PtrFromString(powerWindowClass)
	if err != nil {
		return 0, err
	}

	var wc winapi.WNDCLASSEXW
	wc.Size = uint32(unsafe.Sizeof(wc))
	wc.WndProc = syscall.NewCallback(p.wndProc)
	wc.ClassName = className
	winapi.RegisterClassExW.Call(uintptr(unsafe.Pointer(&wc)))

	hwnd, _, callErr := winapi.CreateWindowExW.Call(
		0, uintptr(unsafe.Pointer(className)), 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0,
	)
	if hwnd == 0 {
		return 0, fmt.Errorf("CreateWindowExW: %v", callErr)
	}
	return hwnd, nil
}

func (p *PowerEventListener) pump(ready chan<- error) {
	defer p.wg.Done()

	// The window and its messages belong to the thread that created it.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	hwnd, err := p.createWindow()
	if err != nil {
		ready <- err
		return
	}
	p.hwnd.Store(hwnd)
	defer func() {
		p.hwnd.Store(0)
		winapi.DestroyWindow.Call(hwnd)
	}()
	ready <- nil

	var msg winapi.MSG
	for !p.stopped.Load() {
		ret, _, _ := winapi.GetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
		if ret == 0 || ret == ^uintptr(0) { // WM_QUIT or error
			log.Debug("Power event pump exiting")
			return
		}
		winapi.DispatchMessageW.Call(uintptr(unsafe.Pointer(&msg)))
	}
}
