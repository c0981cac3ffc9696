// Package topic holds the two static registries the pipeline consults to
// turn (protocol, message type) into MQTT subscribe/publish topics:
// Registry (info topics, subscribed to) and CommandRegistry (command base
// topics, published to). Both are built once in the composition root and
// injected everywhere they're needed — no package-level singletons.
package topic

import (
	"fmt"
	"strings"
	"sync"

	"github.com/slassabe/iot2mqtt/internal/dev"
	"github.com/slassabe/iot2mqtt/internal/message"
)

// Well-known topic bases, following the reference implementation's literal
// constants.
const (
	Z2MInfoBase        = "zigbee2mqtt"
	Z2MCmdBase         = "zigbee2mqtt"
	TasmotaInfoBase    = "tele"
	TasmotaCmdBase     = "cmnd"
	TasmotaDiscoBase   = "tasmota/discovery"
)

type infoKey struct {
	protocol dev.Protocol
	msgType  message.MessageType
}

type infoEntry struct {
	infoTopicBase      string
	topicToSubscribe   string
	deviceNameOffset   int
}

// Registry maps (protocol, message type) to the MQTT subscribe pattern and
// the offset at which the device name starts within a matching topic.
type Registry struct {
	mu      sync.RWMutex
	entries map[infoKey]infoEntry
}

// NewRegistry returns an empty registry; call Register (or
// NewDefaultRegistry) to populate it.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[infoKey]infoEntry)}
}

// Register records a topic configuration. Registering the same
// (protocol, message type) pair twice is a configuration error.
func (r *Registry) Register(protocol dev.Protocol, msgType message.MessageType, infoTopicBase, infoTopicExtension string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := infoKey{protocol, msgType}
	if _, exists := r.entries[key]; exists {
		return fmt.Errorf("topic: (%s, %s) is already registered", protocol, msgType)
	}
	r.entries[key] = infoEntry{
		infoTopicBase:    infoTopicBase,
		topicToSubscribe: infoTopicBase + infoTopicExtension,
		deviceNameOffset: len(infoTopicBase) + 1,
	}
	return nil
}

func (r *Registry) lookup(protocol dev.Protocol, msgType message.MessageType) (infoEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[infoKey{protocol, msgType}]
	return e, ok
}

// TopicToSubscribe returns the subscribe pattern for (protocol, msgType).
func (r *Registry) TopicToSubscribe(protocol dev.Protocol, msgType message.MessageType) (string, bool) {
	e, ok := r.lookup(protocol, msgType)
	if !ok {
		return "", false
	}
	return e.topicToSubscribe, true
}

// AllTopicsToSubscribe returns every registered subscribe pattern, in no
// particular order.
func (r *Registry) AllTopicsToSubscribe() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.topicToSubscribe)
	}
	return out
}

// Subscription is one (protocol, message type) pair paired with the MQTT
// topic pattern it subscribes under — what the Scrutinizer needs to wire
// one mqttx.Client.Subscribe call per registered entry.
type Subscription struct {
	Protocol dev.Protocol
	MsgType  message.MessageType
	Topic    string
}

// AllSubscriptions returns every registered entry with its protocol and
// message type attached, in no particular order.
func (r *Registry) AllSubscriptions() []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Subscription, 0, len(r.entries))
	for k, e := range r.entries {
		out = append(out, Subscription{Protocol: k.protocol, MsgType: k.msgType, Topic: e.topicToSubscribe})
	}
	return out
}

// DeviceName extracts the device name from an incoming topic using the
// registered offset for (protocol, msgType).
func (r *Registry) DeviceName(protocol dev.Protocol, msgType message.MessageType, topic string) (string, bool) {
	e, ok := r.lookup(protocol, msgType)
	if !ok {
		return "", false
	}
	return splitAt(topic, e.deviceNameOffset, 0), true
}

// SubTopic extracts the TASMOTA sub-topic segment (position 1) from an
// incoming topic, e.g. "STATE", "SENSOR", "LWT".
func (r *Registry) SubTopic(protocol dev.Protocol, msgType message.MessageType, topic string) (string, bool) {
	e, ok := r.lookup(protocol, msgType)
	if !ok {
		return "", false
	}
	return splitAt(topic, e.deviceNameOffset, 1), true
}

func splitAt(topic string, offset, position int) string {
	if offset > len(topic) {
		return ""
	}
	parts := strings.Split(topic[offset:], "/")
	if position >= len(parts) {
		return ""
	}
	return parts[position]
}

// CommandRegistry maps a protocol to the base topic commands are published
// under.
type CommandRegistry struct {
	mu      sync.RWMutex
	entries map[dev.Protocol]string
}

// NewCommandRegistry returns an empty command registry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{entries: make(map[dev.Protocol]string)}
}

// Register records the command base topic for protocol. Registering the
// same protocol twice is a configuration error.
func (c *CommandRegistry) Register(protocol dev.Protocol, commandTopicBase string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[protocol]; exists {
		return fmt.Errorf("topic: protocol %s is already registered", protocol)
	}
	c.entries[protocol] = commandTopicBase
	return nil
}

// CommandBaseTopic returns the command base topic for protocol.
func (c *CommandRegistry) CommandBaseTopic(protocol dev.Protocol) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	base, ok := c.entries[protocol]
	return base, ok
}

// NewDefaultRegistry builds the info-topic Registry populated with the six
// literal entries spec.md §4.1 names.
func NewDefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	type reg struct {
		protocol  dev.Protocol
		msgType   message.MessageType
		base, ext string
	}
	for _, e := range []reg{
		{dev.ProtocolZ2M, message.TypeAvail, Z2MInfoBase, "/+/availability"},
		{dev.ProtocolTasmota, message.TypeAvail, TasmotaInfoBase, "/+/LWT"},
		{dev.ProtocolZ2M, message.TypeState, Z2MInfoBase, "/+"},
		{dev.ProtocolTasmota, message.TypeState, TasmotaInfoBase, "/+/+"},
		{dev.ProtocolZ2M, message.TypeDisco, Z2MInfoBase, "/bridge/devices"},
		{dev.ProtocolTasmota, message.TypeDisco, TasmotaDiscoBase, "/+/config"},
	} {
		if err := r.Register(e.protocol, e.msgType, e.base, e.ext); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewDefaultCommandRegistry builds the CommandRegistry populated with the
// two literal entries spec.md §4.1 names.
func NewDefaultCommandRegistry() (*CommandRegistry, error) {
	c := NewCommandRegistry()
	if err := c.Register(dev.ProtocolZ2M, Z2MCmdBase); err != nil {
		return nil, err
	}
	if err := c.Register(dev.ProtocolTasmota, TasmotaCmdBase); err != nil {
		return nil, err
	}
	return c, nil
}
