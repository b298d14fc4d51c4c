package mqtt

import (
	"testing"

	"wake-agent/internal/channel"
)

func TestTopics(t *testing.T) {
	tp := newTopics("living-room")

	tests := []struct {
		got, want string
	}{
		{tp.availability, "homeassistant/sensor/living-room/availability"},
		{tp.sensor("wake_state"), "homeassistant/sensor/living-room/wake_state/state"},
		{tp.button("wake_app"), "homeassistant/button/living-room/wake_app/action"},
		{tp.call(channel.WakeApp), "wake-agent/living-room/channel/com.smarthome.voice/wake_app/call"},
		{tp.result(channel.WakeApp), "wake-agent/living-room/channel/com.smarthome.voice/wake_app/result"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("Got %q, want %q", tt.got, tt.want)
		}
	}
}
