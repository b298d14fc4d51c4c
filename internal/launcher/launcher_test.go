package launcher

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
)

type fakeProcess struct {
	pid        int32
	name       string
	terminated bool
}

func (p *fakeProcess) PID() int32            { return p.pid }
func (p *fakeProcess) Name() (string, error) { return p.name, nil }
func (p *fakeProcess) Terminate() error      { p.terminated = true; return nil }

type fakeTable struct {
	procs []*fakeProcess
}

func (t *fakeTable) Processes() ([]runningProcess, error) {
	out := make([]runningProcess, len(t.procs))
	for i, p := range t.procs {
		out[i] = p
	}
	return out, nil
}

func newTestLauncher(table *fakeTable) (*Launcher, *[]*exec.Cmd) {
	var started []*exec.Cmd
	l := New(map[string]Screen{
		"main": {Command: []string{"/opt/home-ai/home_ai", "--fullscreen"}, ProcessName: "home_ai"},
	})
	l.procs = table
	l.settle = 0
	l.selfPID = 1
	l.start = func(cmd *exec.Cmd) error {
		started = append(started, cmd)
		return nil
	}
	return l, &started
}

func TestStartActivityClearTopNewTask(t *testing.T) {
	table := &fakeTable{procs: []*fakeProcess{
		{pid: 1, name: "home_ai"}, // ourselves
		{pid: 42, name: "HOME_AI.exe"},
		{pid: 43, name: "bash"},
	}}
	l, started := newTestLauncher(table)

	err := l.StartActivity(context.Background(), Intent{
		Component: "main",
		Flags:     FlagNewTask | FlagClearTop,
		Extras:    map[string]any{ExtraWakeupTrigger: true},
	})
	if err != nil {
		t.Fatalf("StartActivity failed: %v", err)
	}

	if table.procs[0].terminated {
		t.Error("Launcher terminated its own process")
	}
	if !table.procs[1].terminated {
		t.Error("Expected running instance to be terminated")
	}
	if table.procs[2].terminated {
		t.Error("Unrelated process terminated")
	}

	if len(*started) != 1 {
		t.Fatalf("Expected one start, got %d", len(*started))
	}
	cmd := (*started)[0]
	wantArgs := "/opt/home-ai/home_ai --fullscreen --wakeup_trigger=true"
	if got := strings.Join(cmd.Args, " "); got != wantArgs {
		t.Errorf("Args = %q, want %q", got, wantArgs)
	}
	found := false
	for _, e := range cmd.Env {
		if e == "WAKE_EXTRA_WAKEUP_TRIGGER=true" {
			found = true
		}
	}
	if !found {
		t.Error("Expected WAKE_EXTRA_WAKEUP_TRIGGER=true in environment")
	}
}

func TestStartActivityReusesRunningInstance(t *testing.T) {
	table := &fakeTable{procs: []*fakeProcess{{pid: 42, name: "home_ai"}}}
	l, started := newTestLauncher(table)

	if err := l.StartActivity(context.Background(), Intent{Component: "main"}); err != nil {
		t.Fatalf("StartActivity failed: %v", err)
	}
	if len(*started) != 0 {
		t.Errorf("Expected no new process, got %d", len(*started))
	}
}

func TestStartActivityUnknownComponent(t *testing.T) {
	l, _ := newTestLauncher(&fakeTable{})
	err := l.StartActivity(context.Background(), Intent{Component: "settings", Flags: FlagNewTask})
	if !errors.Is(err, ErrNoMainScreen) {
		t.Errorf("Expected ErrNoMainScreen, got %v", err)
	}
}

func TestStartActivityStartError(t *testing.T) {
	l, _ := newTestLauncher(&fakeTable{})
	cause := errors.New("exec format error")
	l.start = func(*exec.Cmd) error { return cause }

	err := l.StartActivity(context.Background(), Intent{Component: "main", Flags: FlagNewTask})
	if !errors.Is(err, cause) {
		t.Errorf("Expected wrapped start error, got %v", err)
	}
}

func TestEncodeExtrasSorted(t *testing.T) {
	args, env := encodeExtras(map[string]any{"b": 2, "a": "x"})
	if strings.Join(args, " ") != "--a=x --b=2" {
		t.Errorf("Unexpected args %v", args)
	}
	if strings.Join(env, " ") != "WAKE_EXTRA_A=x WAKE_EXTRA_B=2" {
		t.Errorf("Unexpected env %v", env)
	}
}

func TestIntentFlagsString(t *testing.T) {
	if got := (FlagNewTask | FlagClearTop).String(); got != "NEW_TASK|CLEAR_TOP" {
		t.Errorf("Unexpected flags string %q", got)
	}
}
