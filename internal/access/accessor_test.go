package access

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/slassabe/iot2mqtt/internal/dev"
	"github.com/slassabe/iot2mqtt/internal/directory"
	"github.com/slassabe/iot2mqtt/internal/encode"
	"github.com/slassabe/iot2mqtt/internal/mqttx"
	"github.com/slassabe/iot2mqtt/internal/timer"
	"github.com/slassabe/iot2mqtt/internal/topic"
)

func newTestAccessor(t *testing.T) (*Accessor, *mqttx.FakeClient) {
	t.Helper()
	cmdRegistry, err := topic.NewDefaultCommandRegistry()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client := mqttx.NewFakeClient()
	a := New(client, cmdRegistry, encode.NewDefaultRegistry(nil), timer.NewManager(nil), directory.New(), nil)
	return a, client
}

func TestGetStateZ2MPublishesEmptyFieldMapping(t *testing.T) {
	a, client := newTestAccessor(t)
	if err := a.GetState("plug1", dev.ProtocolZ2M, dev.ModelSnMini); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	published := client.Published()
	if len(published) != 1 || published[0].Topic != "zigbee2mqtt/plug1/get" {
		t.Fatalf("unexpected publishes: %+v", published)
	}
	var payload map[string]string
	if err := json.Unmarshal(published[0].Payload, &payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, ok := payload["state"]; !ok || v != "" {
		t.Fatalf("expected {state: \"\"}, got %+v", payload)
	}
}

func TestGetStateTasmotaPublishesOneTopicPerField(t *testing.T) {
	a, client := newTestAccessor(t)
	if err := a.GetState("plug1", dev.ProtocolTasmota, dev.ModelShellyPlugS); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	published := client.Published()
	if len(published) != 1 || published[0].Topic != "cmnd/plug1/Power" {
		t.Fatalf("unexpected publishes: %+v", published)
	}
}

func TestGetStateUnknownModelIsNoOp(t *testing.T) {
	a, client := newTestAccessor(t)
	if err := a.GetState("mystery", dev.ProtocolZ2M, dev.ModelMiflora); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.Published()) != 0 {
		t.Fatalf("expected no publishes, got %+v", client.Published())
	}
}

func TestSwitchPowerChangeImmediateOnPublishesSetState(t *testing.T) {
	a, client := newTestAccessor(t)
	a.SwitchPowerChange("plug1", dev.ProtocolZ2M, dev.ModelSnMini, true, 0, 0, 0)

	published := client.Published()
	if len(published) != 1 || published[0].Topic != "zigbee2mqtt/plug1/set" {
		t.Fatalf("unexpected publishes: %+v", published)
	}
	if string(published[0].Payload) != `{"state":"ON"}` {
		t.Fatalf("unexpected payload: %s", published[0].Payload)
	}
}

func TestSwitchPowerChangePulsedOnSchedulesOff(t *testing.T) {
	a, client := newTestAccessor(t)
	a.SwitchPowerChange("plug1", dev.ProtocolZ2M, dev.ModelSnMini, true, 0, 30*time.Millisecond, 0)

	if len(client.Published()) != 1 {
		t.Fatalf("expected exactly one immediate publish, got %+v", client.Published())
	}
	time.Sleep(100 * time.Millisecond)

	published := client.Published()
	if len(published) != 2 {
		t.Fatalf("expected a follow-up OFF publish, got %+v", published)
	}
	if string(published[1].Payload) != `{"state":"OFF"}` {
		t.Fatalf("expected second publish to turn the device off, got %s", published[1].Payload)
	}
}

func TestSwitchPowerChangeCountdownDefersPublish(t *testing.T) {
	a, client := newTestAccessor(t)
	a.SwitchPowerChange("plug1", dev.ProtocolZ2M, dev.ModelSnMini, true, 30*time.Millisecond, 0, 0)

	if len(client.Published()) != 0 {
		t.Fatalf("expected no immediate publish for a countdown change, got %+v", client.Published())
	}
	time.Sleep(100 * time.Millisecond)
	if len(client.Published()) != 1 {
		t.Fatalf("expected the deferred publish to have fired, got %+v", client.Published())
	}
}

func TestSwitchPowerChangeByNameUnknownDeviceWarnsWithoutPublishing(t *testing.T) {
	a, client := newTestAccessor(t)
	a.SwitchPowerChangeByName("ghost", true, 0, 0, 0)
	if len(client.Published()) != 0 {
		t.Fatalf("expected no publishes for an unknown device, got %+v", client.Published())
	}
}

func TestSwitchPowerChangeCommaSeparatedDevicesHandledIndependently(t *testing.T) {
	a, client := newTestAccessor(t)
	a.SwitchPowerChange("plug1, plug2", dev.ProtocolZ2M, dev.ModelSnMini, true, 0, 0, 0)

	published := client.Published()
	if len(published) != 2 {
		t.Fatalf("expected two publishes, got %+v", published)
	}
}
