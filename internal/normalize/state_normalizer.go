package normalize

import (
	"go.uber.org/zap"

	"github.com/slassabe/iot2mqtt/internal/dev"
	"github.com/slassabe/iot2mqtt/internal/message"
	"github.com/slassabe/iot2mqtt/internal/state"
)

// modelToKind is the static model → DeviceState-variant table spec.md §4.7
// names. Models with no entry here produce no refined state: StateNormalizer
// logs and drops, as the spec's boundary case for "unknown device" requires.
var modelToKind = map[dev.Model]state.Kind{
	dev.ModelSnAirSensor: state.KindAirSensor,
	dev.ModelSnMini:      state.KindSwitch,
	dev.ModelSnMiniL2:    state.KindSwitch,
	dev.ModelSnSmartPlug: state.KindSwitch,
	dev.ModelShellyPlugS: state.KindSwitch,
	dev.ModelShellyUni:   state.KindSwitch2Channels,
	dev.ModelSnMotion:    state.KindMotion,
	dev.ModelSnButton:    state.KindButton,
	dev.ModelSrtsA01:     state.KindSrtsA01,
	dev.ModelNeoAlarm:    state.KindAlarm,
}

// StateNormalizer selects a DeviceState variant by the device's model and
// binds the raw payload into it.
type StateNormalizer struct {
	log *zap.Logger
}

// NewStateNormalizer builds a normalizer.
func NewStateNormalizer(log *zap.Logger) *StateNormalizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &StateNormalizer{log: log}
}

// Handle is the message.Handler Stage-3 installs for IsTypeState.
func (n *StateNormalizer) Handle(m message.Message) (message.Message, error) {
	if m.MessageType != message.TypeState {
		return message.Message{}, &state.DecodingError{Device: m.DeviceName, Reason: "not a state message"}
	}
	switch m.Protocol {
	case dev.ProtocolZ2M:
		return n.z2mState(m)
	case dev.ProtocolTasmota:
		return n.tasmotaState(m)
	default:
		return message.Message{}, &state.DecodingError{Device: m.DeviceName, Reason: "protocol " + string(m.Protocol) + " not covered by state normalizer"}
	}
}

func (n *StateNormalizer) z2mState(m message.Message) (message.Message, error) {
	payload, ok := m.RawItem.Data.(map[string]interface{})
	if !ok {
		return message.Message{}, &state.DecodingError{Device: m.DeviceName, Reason: "Z2M state payload is not a mapping"}
	}
	refined, err := n.bind(m, payload)
	if err != nil {
		return message.Message{}, err
	}
	if refined == nil {
		n.log.Debug("no state variant for model, dropping", zap.String("device", m.DeviceName))
		return message.Message{}, message.ErrDrop
	}
	m.Refined = refined
	return m, nil
}

func (n *StateNormalizer) tasmotaState(m message.Message) (message.Message, error) {
	switch m.RawItem.Tag {
	case "STATE":
		payload, ok := m.RawItem.Data.(map[string]interface{})
		if !ok {
			return message.Message{}, &state.DecodingError{Device: m.DeviceName, Reason: "TASMOTA STATE payload is not a mapping"}
		}
		refined, err := n.bind(m, payload)
		if err != nil {
			return message.Message{}, err
		}
		if refined == nil {
			n.log.Debug("no state variant for model, dropping", zap.String("device", m.DeviceName))
			return message.Message{}, message.ErrDrop
		}
		m.Refined = refined
		return m, nil
	case "SENSOR":
		// ANALOG and ENERGY sub-mappings are logged for visibility; the
		// message forwards unrefined since there is no canonical variant
		// for raw TASMOTA sensor telemetry.
		if payload, ok := m.RawItem.Data.(map[string]interface{}); ok {
			if analog, ok := payload["ANALOG"]; ok {
				n.log.Debug("TASMOTA ANALOG reading", zap.String("device", m.DeviceName), zap.Any("analog", analog))
			}
			if energy, ok := payload["ENERGY"]; ok {
				n.log.Debug("TASMOTA ENERGY reading", zap.String("device", m.DeviceName), zap.Any("energy", energy))
			}
		}
		return m, nil
	default:
		n.log.Debug("unsupported TASMOTA sub-topic, dropping", zap.String("device", m.DeviceName), zap.String("tag", m.RawItem.Tag))
		return message.Message{}, message.ErrDrop
	}
}

// bind dispatches on the device's already-resolved model to the matching
// Bind* function, returning (nil, nil) when the model has no variant.
func (n *StateNormalizer) bind(m message.Message, payload map[string]interface{}) (state.DeviceState, error) {
	if m.Model == nil {
		return nil, &state.DecodingError{Device: m.DeviceName, Reason: "model not resolved before state normalization"}
	}
	kind, ok := modelToKind[*m.Model]
	if !ok {
		return nil, nil
	}
	switch kind {
	case state.KindSwitch:
		return bindResult(state.BindSwitch(m.DeviceName, payload))
	case state.KindSwitch2Channels:
		return bindResult(state.BindSwitch2Channels(m.DeviceName, payload))
	case state.KindAirSensor:
		return bindResult(state.BindAirSensor(m.DeviceName, payload))
	case state.KindMotion:
		return bindResult(state.BindMotion(m.DeviceName, payload))
	case state.KindButton:
		return bindResult(state.BindButton(m.DeviceName, payload))
	case state.KindAlarm:
		return bindResult(state.BindAlarm(m.DeviceName, payload))
	case state.KindSrtsA01:
		return bindResult(state.BindSrtsA01(m.DeviceName, payload))
	case state.KindADC:
		return bindResult(state.BindADC(m.DeviceName, payload))
	default:
		return nil, nil
	}
}

// bindResult adapts a Bind* function's (ConcreteVariant, error) return into
// the (state.DeviceState, error) shape bind needs; its type parameter lets
// this one helper serve all eight variants.
func bindResult[T state.DeviceState](v T, err error) (state.DeviceState, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}
