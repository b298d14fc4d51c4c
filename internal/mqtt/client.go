package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wake-agent/internal/channel"
	"wake-agent/internal/config"
	"wake-agent/internal/wake"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// CallHandler receives a decoded call for ch. reply must be called exactly
// once with the result.
type CallHandler func(ch *channel.Channel, call channel.MethodCall, reply func(channel.Result))

type Client struct {
	mqtt.Client
	registry *channel.Registry
	onCall   CallHandler
	topics   topics
}

// IsConnected returns true if the MQTT client is connected
func (c *Client) IsConnected() bool {
	return c.Client != nil && c.Client.IsConnected()
}

// HADiscoveryPayload for Home Assistant MQTT Discovery
type HADiscoveryPayload struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic,omitempty"`
	CommandTopic      string   `json:"command_topic,omitempty"`
	AvailabilityTopic string   `json:"availability_topic,omitempty"`
	Device            HADevice `json:"device"`
	Icon              string   `json:"icon,omitempty"`
}

type HADevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
}

// NewClient creates the agent's client. Calls arriving on any channel in
// registry are handed to onCall.
func NewClient(registry *channel.Registry, onCall CallHandler) *Client {
	c := &Client{registry: registry, onCall: onCall, topics: newTopics(config.DeviceName)}

	opts := baseOptions(config.MQTTClientID).
		SetCleanSession(false). // Preserve subscriptions across reconnect
		SetWill(c.topics.availability, "offline", 1, true).
		SetOnConnectHandler(func(client mqtt.Client) {
			log.Info("MQTT connected")
			c.onConnect()
		})

	c.Client = mqtt.NewClient(opts)
	return c
}

// NewCaller creates a short-lived client that only places calls.
func NewCaller() *Client {
	c := &Client{topics: newTopics(config.DeviceName)}
	opts := baseOptions(config.MQTTClientID + "-trigger-" + uuid.NewString()[:8]).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false)
	c.Client = mqtt.NewClient(opts)
	return c
}

func baseOptions(clientID string) *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(config.MQTTBroker).
		SetUsername(config.MQTTUser).
		SetPassword(config.MQTTPass).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(60 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetWriteTimeout(10 * time.Second).
		SetConnectionLostHandler(func(client mqtt.Client, err error) {
			log.Warnf("MQTT connection lost: %v (will auto-reconnect)", err)
		}).
		SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
			log.Info("MQTT reconnecting...")
		})
}

func (c *Client) Connect() error {
	if token := c.Client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (c *Client) onConnect() {
	c.Publish(c.topics.availability, 1, true, "online")
	c.registerDiscovery()
	c.subscribeChannels()
}

func (c *Client) registerDiscovery() {
	device := HADevice{
		Identifiers:  []string{config.DeviceID},
		Name:         config.DeviceName,
		Model:        "Wake Agent Go",
		Manufacturer: "Custom",
	}

	c.publishDiscovery("sensor", "wake_state", HADiscoveryPayload{
		Name:              "Wake State",
		UniqueID:          config.DeviceID + "_wake_state",
		StateTopic:        c.topics.sensor("wake_state"),
		AvailabilityTopic: c.topics.availability,
		Device:            device,
		Icon:              "mdi:monitor-eye",
	})

	c.publishDiscovery("button", "wake_app", HADiscoveryPayload{
		Name:              "Wake App",
		UniqueID:          config.DeviceID + "_wake_app",
		CommandTopic:      c.topics.button("wake_app"),
		AvailabilityTopic: c.topics.availability,
		Device:            device,
		Icon:              "mdi:cellphone-screenshot",
	})
}

func (c *Client) subscribeChannels() {
	for _, name := range c.registry.Names() {
		ch, _ := c.registry.Lookup(name)
		topic := c.topics.call(name)
		token := c.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			c.handleCall(ch, msg.Payload())
		})
		if token.Wait() && token.Error() != nil {
			log.Errorf("Failed to subscribe to %s: %v", topic, token.Error())
		}
	}

	// The HA button is a shortcut for wakeUpApp on the wake channel.
	if ch, ok := c.registry.Lookup(channel.WakeApp); ok {
		topic := c.topics.button("wake_app")
		token := c.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			log.Infof("Button pressed: wake_app (%s)", strings.TrimSpace(string(msg.Payload())))
			c.dispatch(ch, channel.MethodCall{ID: "ha-button", Method: wake.MethodWakeUpApp})
		})
		if token.Wait() && token.Error() != nil {
			log.Errorf("Failed to subscribe to %s: %v", topic, token.Error())
		}
	}
}

func (c *Client) handleCall(ch *channel.Channel, payload []byte) {
	call, err := channel.DecodeCall(payload)
	if err != nil {
		log.Warnf("Rejected call on %s: %v", ch.Name(), err)
		res := channel.Error("INVALID_CALL", err.Error(), nil)
		c.publishResult(ch.Name(), res)
		return
	}
	log.WithFields(log.Fields{"channel": ch.Name(), "method": call.Method, "id": call.ID}).Info("Call received")
	c.dispatch(ch, call)
}

// dispatch hands call to onCall. Every call gets exactly one result.
func (c *Client) dispatch(ch *channel.Channel, call channel.MethodCall) {
	if c.onCall == nil {
		res := channel.NotImplemented()
		res.ID = call.ID
		c.publishResult(ch.Name(), res)
		return
	}
	c.onCall(ch, call, func(res channel.Result) {
		c.publishResult(ch.Name(), res)
	})
}

func (c *Client) publishResult(channelName string, res channel.Result) {
	data, err := json.Marshal(res)
	if err != nil {
		log.Errorf("Couldn't encode result: %v", err)
		return
	}
	// Fire and forget: results are not retained.
	c.Publish(c.topics.result(channelName), 1, false, data)
}

func (c *Client) publishDiscovery(component, name string, payload HADiscoveryPayload) {
	topic := fmt.Sprintf("%s/%s/%s/%s/config", config.DiscoveryPrefix, component, config.DeviceName, name)
	data, _ := json.Marshal(payload)
	c.Publish(topic, 1, true, data)
}

// PublishSensor publishes without waiting, so it is safe to call from the
// wake controller's looper.
func (c *Client) PublishSensor(name, value string, retained bool) {
	c.Publish(c.topics.sensor(name), 1, retained, value)
}

// PublishSensorRetained publishes a retained value and waits for delivery.
func (c *Client) PublishSensorRetained(name, value string) {
	token := c.Publish(c.topics.sensor(name), 1, true, value)
	if token.WaitTimeout(5 * time.Second) {
		if token.Error() != nil {
			log.Errorf("Failed to publish %s: %v", name, token.Error())
		}
	} else {
		log.Warnf("Publish %s timed out", name)
	}
}

// Call invokes method on the named channel of the agent for this device
// and waits for its result.
func (c *Client) Call(ctx context.Context, channelName, method string) (channel.Result, error) {
	call := channel.MethodCall{ID: uuid.NewString(), Method: method}
	results := make(chan channel.Result, 1)

	resultTopic := c.topics.result(channelName)
	token := c.Subscribe(resultTopic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		var res channel.Result
		if err := json.Unmarshal(msg.Payload(), &res); err != nil || res.ID != call.ID {
			return
		}
		select {
		case results <- res:
		default:
		}
	})
	if token.Wait() && token.Error() != nil {
		return channel.Result{}, fmt.Errorf("subscribe %s: %w", resultTopic, token.Error())
	}
	defer c.Unsubscribe(resultTopic)

	data, err := json.Marshal(call)
	if err != nil {
		return channel.Result{}, err
	}
	if token := c.Publish(c.topics.call(channelName), 1, false, data); token.Wait() && token.Error() != nil {
		return channel.Result{}, fmt.Errorf("publish call: %w", token.Error())
	}

	select {
	case res := <-results:
		return res, nil
	case <-ctx.Done():
		return channel.Result{}, fmt.Errorf("waiting for %s result: %w", method, ctx.Err())
	}
}
