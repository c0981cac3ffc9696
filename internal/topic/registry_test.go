package topic

import (
	"testing"

	"github.com/slassabe/iot2mqtt/internal/dev"
	"github.com/slassabe/iot2mqtt/internal/message"
)

func TestDefaultRegistrySubscribePatterns(t *testing.T) {
	r, err := NewDefaultRegistry()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cases := []struct {
		protocol dev.Protocol
		msgType  message.MessageType
		want     string
	}{
		{dev.ProtocolZ2M, message.TypeAvail, "zigbee2mqtt/+/availability"},
		{dev.ProtocolZ2M, message.TypeState, "zigbee2mqtt/+"},
		{dev.ProtocolZ2M, message.TypeDisco, "zigbee2mqtt/bridge/devices"},
		{dev.ProtocolTasmota, message.TypeAvail, "tele/+/LWT"},
		{dev.ProtocolTasmota, message.TypeState, "tele/+/+"},
		{dev.ProtocolTasmota, message.TypeDisco, "tasmota/discovery/+/config"},
	}
	for _, c := range cases {
		got, ok := r.TopicToSubscribe(c.protocol, c.msgType)
		if !ok {
			t.Errorf("%s/%s: expected a registered subscribe pattern", c.protocol, c.msgType)
			continue
		}
		if got != c.want {
			t.Errorf("%s/%s: expected %q, got %q", c.protocol, c.msgType, c.want, got)
		}
	}
}

func TestRegisterSameKeyTwiceIsConfigurationError(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(dev.ProtocolZ2M, message.TypeState, "zigbee2mqtt", "/+"); err != nil {
		t.Fatalf("unexpected error on first register: %v", err)
	}
	if err := r.Register(dev.ProtocolZ2M, message.TypeState, "zigbee2mqtt", "/+"); err == nil {
		t.Fatal("expected an error registering the same (protocol, message type) twice")
	}
}

func TestDeviceNameExtractionZ2M(t *testing.T) {
	r, _ := NewDefaultRegistry()
	name, ok := r.DeviceName(dev.ProtocolZ2M, message.TypeState, "zigbee2mqtt/kitchen-plug")
	if !ok || name != "kitchen-plug" {
		t.Fatalf("expected device name kitchen-plug, got %q (ok=%v)", name, ok)
	}
}

func TestDeviceNameAndSubTopicExtractionTasmota(t *testing.T) {
	r, _ := NewDefaultRegistry()
	name, ok := r.DeviceName(dev.ProtocolTasmota, message.TypeState, "tele/garage-door/STATE")
	if !ok || name != "garage-door" {
		t.Fatalf("expected device name garage-door, got %q (ok=%v)", name, ok)
	}
	sub, ok := r.SubTopic(dev.ProtocolTasmota, message.TypeState, "tele/garage-door/STATE")
	if !ok || sub != "STATE" {
		t.Fatalf("expected sub-topic STATE, got %q (ok=%v)", sub, ok)
	}
}

func TestDefaultCommandRegistry(t *testing.T) {
	c, err := NewDefaultCommandRegistry()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base, ok := c.CommandBaseTopic(dev.ProtocolZ2M); !ok || base != "zigbee2mqtt" {
		t.Fatalf("expected zigbee2mqtt, got %q (ok=%v)", base, ok)
	}
	if base, ok := c.CommandBaseTopic(dev.ProtocolTasmota); !ok || base != "cmnd" {
		t.Fatalf("expected cmnd, got %q (ok=%v)", base, ok)
	}
}

func TestCommandRegistryDuplicateProtocolIsConfigurationError(t *testing.T) {
	c := NewCommandRegistry()
	if err := c.Register(dev.ProtocolZ2M, "zigbee2mqtt"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Register(dev.ProtocolZ2M, "zigbee2mqtt"); err == nil {
		t.Fatal("expected an error registering the same protocol twice")
	}
}
