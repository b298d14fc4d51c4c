//go:build !windows && !linux

package display

type unsupportedWindow struct{}

func NewWindow() Window {
	return unsupportedWindow{}
}

func Detect() Capability {
	return LegacyWindowFlags
}

func (unsupportedWindow) SetShowWhenLocked(bool) error { return ErrUnsupported }
func (unsupportedWindow) SetTurnScreenOn(bool) error   { return ErrUnsupported }
func (unsupportedWindow) AddFlags(Flags) error         { return ErrUnsupported }
func (unsupportedWindow) ClearFlags(Flags) error       { return ErrUnsupported }
