// Package events carries notifications from the assistant core to observers
// such as the UI bridge and the hub mirror.
package events

import (
	evbus "github.com/asaskevich/EventBus"
)

// Topics and the handler signature each one is published with.
const (
	Message    = "conversation:message"   // func(conversation.Message)
	Reset      = "conversation:reset"     // func()
	Device     = "device:state"           // func(device.State, []device.Change)
	Listening  = "recognition:listening"  // func(bool)
	Transcript = "recognition:transcript" // func(string)
	Error      = "recognition:error"      // func(string)
	Speaking   = "speech:speaking"        // func(bool)
)

// Bus is an explicitly constructed synchronous event bus. Handlers run on the
// publisher's goroutine.
type Bus struct {
	bus evbus.Bus
}

func New() *Bus {
	return &Bus{bus: evbus.New()}
}

func (b *Bus) Publish(topic string, args ...interface{}) {
	b.bus.Publish(topic, args...)
}

func (b *Bus) Subscribe(topic string, fn interface{}) error {
	return b.bus.Subscribe(topic, fn)
}

func (b *Bus) Unsubscribe(topic string, fn interface{}) error {
	return b.bus.Unsubscribe(topic, fn)
}

func (b *Bus) HasHandlers(topic string) bool {
	return b.bus.HasCallback(topic)
}
