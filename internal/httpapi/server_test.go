package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wake-agent/internal/channel"
	"wake-agent/internal/display"
	"wake-agent/internal/wake"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeState struct {
	state wake.State
	info  *wake.SessionInfo
}

func (f fakeState) State() wake.State { return f.state }

func (f fakeState) Session() (wake.SessionInfo, bool) {
	if f.info == nil {
		return wake.SessionInfo{}, false
	}
	return *f.info, true
}

func (f fakeState) Capability() display.Capability { return display.LegacyWindowFlags }

func newTestHandler(result channel.Result) *Handler {
	ch := channel.New(channel.WakeApp)
	ch.SetMethodCallHandler(func(_ context.Context, call channel.MethodCall) channel.Result {
		if call.Method != wake.MethodWakeUpApp {
			return channel.NotImplemented()
		}
		return result
	})
	return NewHandler(channel.NewRegistry(ch), fakeState{state: wake.StateIdle})
}

func post(t *testing.T, h *Handler, path, body string) (*httptest.ResponseRecorder, channel.Result) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)

	var res channel.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("Response is not a result envelope: %v (%s)", err, w.Body.String())
	}
	return w, res
}

func TestInvokeStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		result     channel.Result
		body       string
		wantStatus int
	}{
		{"success", channel.Success(true), `{"id":"1","method":"wakeUpApp"}`, http.StatusOK},
		{"wake error", channel.Error(wake.ErrorCode, "denied", nil), `{"id":"2","method":"wakeUpApp"}`, http.StatusInternalServerError},
		{"unknown method", channel.Success(true), `{"id":"3","method":"reboot"}`, http.StatusNotImplemented},
		{"bad body", channel.Success(true), `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(tt.result)
			w, res := post(t, h, "/channels/"+channel.WakeApp, tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus == http.StatusInternalServerError && (res.Error == nil || res.Error.Code != wake.ErrorCode) {
				t.Errorf("Expected %s envelope, got %+v", wake.ErrorCode, res)
			}
		})
	}
}

func TestInvokeEchoesID(t *testing.T) {
	h := newTestHandler(channel.Success(true))
	_, res := post(t, h, "/channels/"+channel.WakeApp, `{"id":"abc","method":"wakeUpApp"}`)
	if res.ID != "abc" || !res.Success || res.Value != true {
		t.Errorf("Unexpected result %+v", res)
	}
}

func TestInvokeUnknownChannel(t *testing.T) {
	h := newTestHandler(channel.Success(true))
	w, res := post(t, h, "/channels/com.example/other", `{"method":"wakeUpApp"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", w.Code)
	}
	if res.Error == nil || res.Error.Code != "UNKNOWN_CHANNEL" {
		t.Errorf("Unexpected result %+v", res)
	}
}

func TestGetState(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h := NewHandler(channel.NewRegistry(), fakeState{
		state: wake.StateHeld,
		info:  &wake.SessionInfo{Seq: 4, Tag: wake.DefaultTag, StartedAt: start, Capability: "legacy"},
	})

	req := httptest.NewRequest(http.MethodGet, "/wake/state", nil)
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	var resp stateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Bad JSON: %v", err)
	}
	if resp.State != "HELD" || resp.Capability != "legacy" {
		t.Errorf("Unexpected state %+v", resp)
	}
	if resp.Session == nil || resp.Session.Seq != 4 || !resp.Session.StartedAt.Equal(start) {
		t.Errorf("Unexpected session %+v", resp.Session)
	}
}

func TestNewServerUsesReleaseMode(t *testing.T) {
	defer gin.SetMode(gin.TestMode)

	gin.SetMode(gin.DebugMode)
	srv := NewServer("127.0.0.1:0", newTestHandler(channel.Success(true)))
	if gin.Mode() != gin.ReleaseMode {
		t.Errorf("gin mode = %s, want %s", gin.Mode(), gin.ReleaseMode)
	}
	if srv.srv.Handler == nil {
		t.Error("Server has no handler")
	}
}
