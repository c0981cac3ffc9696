package normalize

import (
	"errors"
	"testing"

	"github.com/slassabe/iot2mqtt/internal/dev"
	"github.com/slassabe/iot2mqtt/internal/message"
	"github.com/slassabe/iot2mqtt/internal/state"
)

func withModel(m message.Message, model dev.Model) message.Message {
	m.Model = &model
	return m
}

func TestStateNormalizerZ2MSwitch(t *testing.T) {
	n := NewStateNormalizer(nil)
	m := withModel(
		message.New(dev.ProtocolZ2M, "plug-1", message.TypeState, message.Item{Data: map[string]interface{}{"state": "ON"}}),
		dev.ModelSnMini,
	)

	out, err := n.Handle(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sw, ok := out.Refined.(state.Switch)
	if !ok || sw.Power != state.PowerOn {
		t.Fatalf("expected Switch{Power: ON}, got %+v", out.Refined)
	}
}

func TestStateNormalizerUnsupportedModelDropsSilently(t *testing.T) {
	n := NewStateNormalizer(nil)
	m := withModel(
		message.New(dev.ProtocolZ2M, "mystery-1", message.TypeState, message.Item{Data: map[string]interface{}{"state": "ON"}}),
		dev.ModelMiflora,
	)

	_, err := n.Handle(m)
	if !errors.Is(err, message.ErrDrop) {
		t.Fatalf("expected ErrDrop, got %v", err)
	}
}

func TestStateNormalizerTasmotaStateTagBinds(t *testing.T) {
	n := NewStateNormalizer(nil)
	m := withModel(
		message.New(dev.ProtocolTasmota, "plug-1", message.TypeState, message.Item{Tag: "STATE", Data: map[string]interface{}{"POWER": "ON"}}),
		dev.ModelSnSmartPlug,
	)

	out, err := n.Handle(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := out.Refined.(state.Switch); !ok {
		t.Fatalf("expected Switch, got %+v", out.Refined)
	}
}

func TestStateNormalizerTasmotaSensorTagForwardsUnrefined(t *testing.T) {
	n := NewStateNormalizer(nil)
	m := withModel(
		message.New(dev.ProtocolTasmota, "plug-1", message.TypeState, message.Item{
			Tag: "SENSOR",
			Data: map[string]interface{}{
				"ANALOG": map[string]interface{}{"Range": 512.0},
				"ENERGY": map[string]interface{}{"Power": 12.5},
			},
		}),
		dev.ModelSnSmartPlug,
	)

	out, err := n.Handle(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Refined != nil {
		t.Fatalf("expected SENSOR tag to forward unrefined, got %+v", out.Refined)
	}
}

func TestStateNormalizerTasmotaUnsupportedTagDrops(t *testing.T) {
	n := NewStateNormalizer(nil)
	m := withModel(
		message.New(dev.ProtocolTasmota, "plug-1", message.TypeState, message.Item{Tag: "RESULT", Data: map[string]interface{}{}}),
		dev.ModelSnSmartPlug,
	)

	_, err := n.Handle(m)
	if !errors.Is(err, message.ErrDrop) {
		t.Fatalf("expected ErrDrop, got %v", err)
	}
}

func TestStateNormalizerMissingModelIsDecodingError(t *testing.T) {
	n := NewStateNormalizer(nil)
	m := message.New(dev.ProtocolZ2M, "plug-1", message.TypeState, message.Item{Data: map[string]interface{}{"state": "ON"}})

	_, err := n.Handle(m)
	var decErr *state.DecodingError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected a *state.DecodingError, got %v", err)
	}
}

func TestStateNormalizerRejectsWrongMessageType(t *testing.T) {
	n := NewStateNormalizer(nil)
	m := withModel(
		message.New(dev.ProtocolZ2M, "plug-1", message.TypeAvail, message.Item{Data: "online"}),
		dev.ModelSnMini,
	)

	_, err := n.Handle(m)
	var decErr *state.DecodingError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected a *state.DecodingError, got %v", err)
	}
}

func TestStateNormalizerSrtsA01BindsSystemMode(t *testing.T) {
	n := NewStateNormalizer(nil)
	m := withModel(
		message.New(dev.ProtocolZ2M, "trv-1", message.TypeState, message.Item{Data: map[string]interface{}{
			"local_temperature":          21.5,
			"occupied_heating_setpoint":  20.0,
			"system_mode":                "heat",
		}}),
		dev.ModelSrtsA01,
	)

	out, err := n.Handle(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	trv, ok := out.Refined.(state.SrtsA01)
	if !ok {
		t.Fatalf("expected SrtsA01, got %+v", out.Refined)
	}
	if trv.SystemMode != "heat" {
		t.Fatalf("expected system_mode heat, got %q", trv.SystemMode)
	}
}

func TestStateNormalizerSrtsA01OutOfRangeIsDecodingError(t *testing.T) {
	n := NewStateNormalizer(nil)
	m := withModel(
		message.New(dev.ProtocolZ2M, "trv-1", message.TypeState, message.Item{Data: map[string]interface{}{
			"occupied_heating_setpoint": 40.0,
		}}),
		dev.ModelSrtsA01,
	)

	_, err := n.Handle(m)
	var decErr *state.DecodingError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected a *state.DecodingError, got %v", err)
	}
}
