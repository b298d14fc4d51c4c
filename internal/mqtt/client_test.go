package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"wake-agent/internal/channel"
	"wake-agent/internal/wake"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type publication struct {
	topic    string
	retained bool
	payload  []byte
}

// stubBroker records publishes. Other client methods are not used here.
type stubBroker struct {
	mqtt.Client
	mu   sync.Mutex
	sent []publication
}

func (b *stubBroker) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	default:
		data = []byte(fmt.Sprint(p))
	}
	b.mu.Lock()
	b.sent = append(b.sent, publication{topic: topic, retained: retained, payload: data})
	b.mu.Unlock()
	return &mqtt.DummyToken{}
}

func (b *stubBroker) published() []publication {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]publication(nil), b.sent...)
}

// replyWith answers every call synchronously with res.
func replyWith(res channel.Result, calls *[]channel.MethodCall) CallHandler {
	return func(ch *channel.Channel, call channel.MethodCall, reply func(channel.Result)) {
		*calls = append(*calls, call)
		r := res
		r.ID = call.ID
		reply(r)
	}
}

func TestHandleCallPublishesOneResult(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		handled   bool
		wantID    string
		wantCode  string
		wantValue any
	}{
		{name: "valid call", payload: `{"id":"c1","method":"wakeUpApp"}`, handled: true, wantID: "c1", wantValue: true},
		{name: "malformed json", payload: `{"id":`, wantCode: "INVALID_CALL"},
		{name: "missing method", payload: `{"id":"c2"}`, wantCode: "INVALID_CALL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broker := &stubBroker{}
			ch := channel.New(channel.WakeApp)
			var calls []channel.MethodCall
			c := &Client{
				Client:   broker,
				registry: channel.NewRegistry(ch),
				onCall:   replyWith(channel.Success(true), &calls),
				topics:   newTopics("panel"),
			}

			c.handleCall(ch, []byte(tt.payload))

			if tt.handled != (len(calls) == 1) {
				t.Errorf("Handler calls = %d, handled = %v", len(calls), tt.handled)
			}
			sent := broker.published()
			if len(sent) != 1 {
				t.Fatalf("Expected exactly one publish, got %d", len(sent))
			}
			if sent[0].topic != c.topics.result(channel.WakeApp) || sent[0].retained {
				t.Errorf("Published to %s (retained=%v)", sent[0].topic, sent[0].retained)
			}

			var res channel.Result
			if err := json.Unmarshal(sent[0].payload, &res); err != nil {
				t.Fatalf("Result is not JSON: %v", err)
			}
			if res.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", res.ID, tt.wantID)
			}
			if tt.wantCode != "" {
				if res.Error == nil || res.Error.Code != tt.wantCode {
					t.Errorf("Expected %s, got %+v", tt.wantCode, res)
				}
			} else if !res.Success || res.Value != tt.wantValue {
				t.Errorf("Unexpected result %+v", res)
			}
		})
	}
}

func TestDispatchWithoutHandler(t *testing.T) {
	broker := &stubBroker{}
	ch := channel.New(channel.WakeApp)
	c := &Client{Client: broker, registry: channel.NewRegistry(ch), topics: newTopics("panel")}

	c.dispatch(ch, channel.MethodCall{ID: "ha-button", Method: wake.MethodWakeUpApp})

	sent := broker.published()
	if len(sent) != 1 {
		t.Fatalf("Expected one result, got %d", len(sent))
	}
	var res channel.Result
	if err := json.Unmarshal(sent[0].payload, &res); err != nil {
		t.Fatalf("Result is not JSON: %v", err)
	}
	if !res.NotImplemented || res.ID != "ha-button" {
		t.Errorf("Unexpected result %+v", res)
	}
}

func TestPublishSensor(t *testing.T) {
	broker := &stubBroker{}
	c := &Client{Client: broker, topics: newTopics("panel")}

	c.PublishSensor("wake_state", wake.StateHeld.String(), true)

	sent := broker.published()
	if len(sent) != 1 {
		t.Fatalf("Expected one publish, got %d", len(sent))
	}
	if sent[0].topic != c.topics.sensor("wake_state") || !sent[0].retained || string(sent[0].payload) != "HELD" {
		t.Errorf("Unexpected publish %+v", sent[0])
	}
}
