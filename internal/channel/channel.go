// Package channel implements a named method-call channel between the UI
// runtime and the agent. Every call yields exactly one Result: a success
// value, an error envelope, or "not implemented".
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// WakeApp is the name of the channel the UI uses to wake the application.
const WakeApp = "com.smarthome.voice/wake_app"

type MethodCall struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args,omitempty"`
}

type ErrorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Result is the reply to a MethodCall. Exactly one of Value (with Success
// set), Error or NotImplemented is meaningful. Value is always encoded so
// false, 0 and "" survive the wire.
type Result struct {
	ID             string         `json:"id,omitempty"`
	Success        bool           `json:"success"`
	Value          any            `json:"result"`
	Error          *ErrorEnvelope `json:"error,omitempty"`
	NotImplemented bool           `json:"not_implemented,omitempty"`
}

func Success(v any) Result {
	return Result{Success: true, Value: v}
}

func Error(code, message string, details any) Result {
	return Result{Error: &ErrorEnvelope{Code: code, Message: message, Details: details}}
}

func NotImplemented() Result {
	return Result{NotImplemented: true}
}

// MethodCallHandler answers calls arriving on a channel.
type MethodCallHandler func(ctx context.Context, call MethodCall) Result

type Channel struct {
	name    string
	mu      sync.RWMutex
	handler MethodCallHandler
}

func New(name string) *Channel {
	return &Channel{name: name}
}

func (c *Channel) Name() string {
	return c.name
}

// SetMethodCallHandler replaces the handler. A nil handler makes every
// call answer "not implemented".
func (c *Channel) SetMethodCallHandler(h MethodCallHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Invoke dispatches call to the handler. Panics are converted into an
// error result and never escape the channel.
func (c *Channel) Invoke(ctx context.Context, call MethodCall) (res Result) {
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()

	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{"channel": c.name, "method": call.Method}).
				Errorf("Method handler panicked: %v", r)
			res = Error("CHANNEL_ERROR", fmt.Sprint(r), nil)
		}
		res.ID = call.ID
	}()

	if h == nil {
		return NotImplemented()
	}
	return h(ctx, call)
}

// DecodeCall parses a JSON method call.
func DecodeCall(data []byte) (MethodCall, error) {
	var call MethodCall
	if err := json.Unmarshal(data, &call); err != nil {
		return MethodCall{}, fmt.Errorf("couldn't parse method call: %w", err)
	}
	if call.Method == "" {
		return MethodCall{}, fmt.Errorf("method call without method name")
	}
	return call, nil
}

// Registry maps channel names to channels for transports that serve
// several of them.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

func NewRegistry(channels ...*Channel) *Registry {
	r := &Registry{channels: make(map[string]*Channel)}
	for _, ch := range channels {
		r.Add(ch)
	}
	return r
}

func (r *Registry) Add(ch *Channel) {
	r.mu.Lock()
	r.channels[ch.Name()] = ch
	r.mu.Unlock()
}

func (r *Registry) Lookup(name string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	return ch, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	return names
}
