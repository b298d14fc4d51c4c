//go:build windows

// Package winapi provides centralized Windows API declarations.
// This avoids duplicate DLL loading across packages.
package winapi

import (
	"golang.org/x/sys/windows"
)

// DLLs - loaded lazily on first use
var (
	Kernel32 = windows.NewLazySystemDLL("kernel32.dll")
	User32   = windows.NewLazySystemDLL("user32.dll")
)

// Kernel32 procs
var (
	SetConsoleCtrlHandler   = Kernel32.NewProc("SetConsoleCtrlHandler")
	SetThreadExecutionState = Kernel32.NewProc("SetThreadExecutionState")
)

// User32 procs
var (
	KeybdEvent       = User32.NewProc("keybd_event")
	SendMessageW     = User32.NewProc("SendMessageW")
	CreateWindowExW  = User32.NewProc("CreateWindowExW")
	DefWindowProcW   = User32.NewProc("DefWindowProcW")
	RegisterClassExW = User32.NewProc("RegisterClassExW")
	GetMessageW      = User32.NewProc("GetMessageW")
	DispatchMessageW = User32.NewProc("DispatchMessageW")
	PostMessageW     = User32.NewProc("PostMessageW")
	DestroyWindow    = User32.NewProc("DestroyWindow")
)

// Constants
const (
	// Console control events
	CTRL_C_EVENT        = 0
	CTRL_BREAK_EVENT    = 1
	CTRL_CLOSE_EVENT    = 2
	CTRL_LOGOFF_EVENT   = 5
	CTRL_SHUTDOWN_EVENT = 6

	// Window messages
	WM_POWERBROADCAST = 0x218
	WM_QUIT           = 0x12
	WM_SYSCOMMAND     = 0x0112

	// Power broadcast events
	PBT_APMSUSPEND       = 4
	PBT_APMRESUMEAUTO    = 0x12
	PBT_APMRESUMESUSPEND = 7

	// Monitor power
	HWND_BROADCAST  = 0xFFFF
	SC_MONITORPOWER = 0xF170
	MONITOR_ON      = 0xFFFFFFFFFFFFFFFF // -1 as unsigned
	MONITOR_OFF     = 2

	// SetThreadExecutionState flags
	ES_CONTINUOUS       = 0x80000000
	ES_SYSTEM_REQUIRED  = 0x00000001
	ES_DISPLAY_REQUIRED = 0x00000002

	// Virtual key codes
	VK_F15          = 0x7E
	KEYEVENTF_KEYUP = 0x0002
)

// WNDCLASSEXW for the hidden power-event window
type WNDCLASSEXW struct {
	Size       uint32
	Style      uint32
	WndProc    uintptr
	ClsExtra   int32
	WndExtra   int32
	Instance   uintptr
	Icon       uintptr
	Cursor     uintptr
	Background uintptr
	MenuName   *uint16
	ClassName  *uint16
	IconSm     uintptr
}

type POINT struct {
	X, Y int32
}

// MSG as filled in by GetMessageW
type MSG struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      POINT
}
