package normalize

import (
	"go.uber.org/zap"

	"github.com/slassabe/iot2mqtt/internal/dev"
	"github.com/slassabe/iot2mqtt/internal/message"
	"github.com/slassabe/iot2mqtt/internal/state"
)

// AvailabilityNormalizer decodes raw availability payloads into the
// canonical state.Online/state.Offline singletons.
type AvailabilityNormalizer struct {
	log *zap.Logger
}

// NewAvailabilityNormalizer builds a normalizer.
func NewAvailabilityNormalizer(log *zap.Logger) *AvailabilityNormalizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &AvailabilityNormalizer{log: log}
}

// Handle is the message.Handler Stage-3 installs for IsTypeAvailability.
func (a *AvailabilityNormalizer) Handle(m message.Message) (message.Message, error) {
	if m.MessageType != message.TypeAvail {
		return message.Message{}, &state.DecodingError{Device: m.DeviceName, Reason: "not an availability message"}
	}

	var avail state.Availability
	var err error
	switch m.Protocol {
	case dev.ProtocolTasmota:
		raw, ok := m.RawItem.Data.(string)
		if !ok {
			return message.Message{}, &state.DecodingError{Device: m.DeviceName, Reason: "TASMOTA availability payload is not a string"}
		}
		avail, err = state.BindAvailability(m.DeviceName, "Online", "Offline", raw)
	case dev.ProtocolZ2M:
		avail, err = state.BindAvailability(m.DeviceName, "online", "offline", m.RawItem.Data)
	default:
		return message.Message{}, &state.DecodingError{Device: m.DeviceName, Reason: "protocol " + string(m.Protocol) + " not covered by availability normalizer"}
	}
	if err != nil {
		return message.Message{}, err
	}
	m.Refined = avail
	return m, nil
}
