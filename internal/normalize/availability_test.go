package normalize

import (
	"errors"
	"testing"

	"github.com/slassabe/iot2mqtt/internal/dev"
	"github.com/slassabe/iot2mqtt/internal/message"
	"github.com/slassabe/iot2mqtt/internal/state"
)

func TestAvailabilityNormalizerTasmotaOnline(t *testing.T) {
	n := NewAvailabilityNormalizer(nil)
	m := message.New(dev.ProtocolTasmota, "plug-1", message.TypeAvail, message.Item{Data: "Online"})

	out, err := n.Handle(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	avail, ok := out.Refined.(state.Availability)
	if !ok || !avail.IsOnline {
		t.Fatalf("expected Online, got %+v", out.Refined)
	}
}

func TestAvailabilityNormalizerTasmotaRejectsNonStringPayload(t *testing.T) {
	n := NewAvailabilityNormalizer(nil)
	m := message.New(dev.ProtocolTasmota, "plug-1", message.TypeAvail, message.Item{Data: map[string]interface{}{"state": "Online"}})

	_, err := n.Handle(m)
	var decErr *state.DecodingError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected a *state.DecodingError, got %v", err)
	}
}

func TestAvailabilityNormalizerZ2MBareString(t *testing.T) {
	n := NewAvailabilityNormalizer(nil)
	m := message.New(dev.ProtocolZ2M, "sensor-1", message.TypeAvail, message.Item{Data: "offline"})

	out, err := n.Handle(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	avail, ok := out.Refined.(state.Availability)
	if !ok || avail.IsOnline {
		t.Fatalf("expected Offline, got %+v", out.Refined)
	}
}

func TestAvailabilityNormalizerZ2MMapping(t *testing.T) {
	n := NewAvailabilityNormalizer(nil)
	m := message.New(dev.ProtocolZ2M, "sensor-1", message.TypeAvail, message.Item{Data: map[string]interface{}{"state": "online"}})

	out, err := n.Handle(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	avail, ok := out.Refined.(state.Availability)
	if !ok || !avail.IsOnline {
		t.Fatalf("expected Online, got %+v", out.Refined)
	}
}

func TestAvailabilityNormalizerRejectsWrongMessageType(t *testing.T) {
	n := NewAvailabilityNormalizer(nil)
	m := message.New(dev.ProtocolZ2M, "sensor-1", message.TypeState, message.Item{Data: "online"})

	_, err := n.Handle(m)
	var decErr *state.DecodingError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected a *state.DecodingError, got %v", err)
	}
}

func TestAvailabilityNormalizerUnknownTokenIsDecodingError(t *testing.T) {
	n := NewAvailabilityNormalizer(nil)
	m := message.New(dev.ProtocolZ2M, "sensor-1", message.TypeAvail, message.Item{Data: "unplugged"})

	_, err := n.Handle(m)
	var decErr *state.DecodingError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected a *state.DecodingError, got %v", err)
	}
}
