package power

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeInhibitor struct {
	mu       sync.Mutex
	active   int
	acquired int
	released int
	lastTag  string
	err      error
}

func (f *fakeInhibitor) inhibit(levels Level, tag string) (func() error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.active++
	f.acquired++
	f.lastTag = tag
	return func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.active--
		f.released++
		return nil
	}, nil
}

func (f *fakeInhibitor) counts() (active, acquired, released int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, f.acquired, f.released
}

const testLevels = ScreenBright | AcquireCausesWakeup | OnAfterRelease

func TestWakeLockAcquireRelease(t *testing.T) {
	inh := &fakeInhibitor{}
	m := &Manager{inh: inh}

	lock, err := m.NewWakeLock(testLevels, "Test:WakeLock")
	if err != nil {
		t.Fatalf("NewWakeLock failed: %v", err)
	}
	if err := lock.Acquire(time.Minute); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !lock.Held() {
		t.Error("Expected lock to be held")
	}
	if err := lock.Acquire(time.Minute); err == nil {
		t.Error("Expected second Acquire on a held lock to fail")
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("Second Release should be a no-op, got %v", err)
	}
	if lock.Held() {
		t.Error("Expected lock to be released")
	}

	active, acquired, released := inh.counts()
	if active != 0 || acquired != 1 || released != 1 {
		t.Errorf("Unexpected inhibitor counts: active=%d acquired=%d released=%d", active, acquired, released)
	}
	if inh.lastTag != "Test:WakeLock" {
		t.Errorf("Unexpected tag %q", inh.lastTag)
	}
}

func TestWakeLockHardTimeout(t *testing.T) {
	inh := &fakeInhibitor{}
	m := &Manager{inh: inh}

	lock, _ := m.NewWakeLock(testLevels, "Test:WakeLock")
	if err := lock.Acquire(20 * time.Millisecond); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for lock.Held() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if lock.Held() {
		t.Fatal("Lock was not released by its hard timeout")
	}
	if active, _, _ := inh.counts(); active != 0 {
		t.Errorf("Expected inhibitor to be released, active=%d", active)
	}
}

func TestWakeLockAcquireError(t *testing.T) {
	cause := errors.New("permission denied")
	m := &Manager{inh: &fakeInhibitor{err: cause}}

	lock, _ := m.NewWakeLock(testLevels, "Test:WakeLock")
	err := lock.Acquire(time.Second)
	if !errors.Is(err, cause) {
		t.Errorf("Expected wrapped cause, got %v", err)
	}
	if lock.Held() {
		t.Error("Lock must not be held after a failed acquire")
	}
}

func TestNewWakeLockValidation(t *testing.T) {
	m := &Manager{inh: &fakeInhibitor{}}
	if _, err := m.NewWakeLock(testLevels, ""); err == nil {
		t.Error("Expected error for empty tag")
	}
	if _, err := m.NewWakeLock(AcquireCausesWakeup, "x"); err == nil {
		t.Error("Expected error without a screen level")
	}
}

func TestLevelString(t *testing.T) {
	if got := testLevels.String(); got != "SCREEN_BRIGHT|ACQUIRE_CAUSES_WAKEUP|ON_AFTER_RELEASE" {
		t.Errorf("Unexpected level string %q", got)
	}
	if got := Level(0).String(); got != "NONE" {
		t.Errorf("Unexpected level string %q", got)
	}
}
