package mqtt

import (
	"fmt"

	"wake-agent/internal/config"
)

// topics are computed once the device name is known.
type topics struct {
	device       string
	availability string
}

func newTopics(device string) topics {
	return topics{
		device:       device,
		availability: fmt.Sprintf("%s/sensor/%s/availability", config.DiscoveryPrefix, device),
	}
}

func (t topics) sensor(name string) string {
	return fmt.Sprintf("%s/sensor/%s/%s/state", config.DiscoveryPrefix, t.device, name)
}

func (t topics) button(name string) string {
	return fmt.Sprintf("%s/button/%s/%s/action", config.DiscoveryPrefix, t.device, name)
}

// Channel names contain a slash, which simply adds a topic level.
func (t topics) call(channelName string) string {
	return fmt.Sprintf("%s/%s/channel/%s/call", config.TopicPrefix, t.device, channelName)
}

func (t topics) result(channelName string) string {
	return fmt.Sprintf("%s/%s/channel/%s/result", config.TopicPrefix, t.device, channelName)
}
