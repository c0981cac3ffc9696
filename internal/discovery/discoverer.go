// Package discovery turns a DISCO Message's raw payload into Device
// directory entries and a Registry of the device names it introduced.
package discovery

import (
	"errors"

	"go.uber.org/zap"

	"github.com/slassabe/iot2mqtt/internal/dev"
	"github.com/slassabe/iot2mqtt/internal/directory"
	"github.com/slassabe/iot2mqtt/internal/message"
	"github.com/slassabe/iot2mqtt/internal/state"
)

var (
	errUnexpectedEntryShape = errors.New("discovery: entry is not a mapping")
	errNotASequence         = errors.New("discovery: expected a JSON array")
)

// z2mDeviceTypes are the entry.type values that denote an actual device,
// as opposed to the Zigbee coordinator or a bridge.
var z2mDeviceTypes = map[string]bool{"EndDevice": true, "Router": true}

// Discoverer runs as Stage-1's DISCO handler: it sets msg.Model to
// dev.ModelNone, updates the injected Directory, and stores a
// state.Registry of the discovered device names onto msg.Refined.
type Discoverer struct {
	directory *directory.Directory
	models    *dev.ModelRegistry
	log       *zap.Logger
}

// New builds a Discoverer bound to directory and models. A nil logger
// falls back to a no-op logger.
func New(dir *directory.Directory, models *dev.ModelRegistry, log *zap.Logger) *Discoverer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Discoverer{directory: dir, models: models, log: log}
}

// Handle is the message.Handler Stage-1 installs for IsTypeDiscovery.
func (d *Discoverer) Handle(m message.Message) (message.Message, error) {
	if m.MessageType != message.TypeDisco {
		return message.Message{}, &state.DecodingError{Device: m.DeviceName, Reason: "not a discovery message"}
	}
	none := dev.ModelNone
	m.Model = &none

	switch m.Protocol {
	case dev.ProtocolZ2M:
		return d.discoverZ2M(m)
	case dev.ProtocolTasmota:
		return d.discoverTasmota(m)
	default:
		d.log.Info("discovery: unknown protocol, forwarding unrefined", zap.String("protocol", string(m.Protocol)))
		return m, nil
	}
}

func (d *Discoverer) discoverZ2M(m message.Message) (message.Message, error) {
	entries, err := asMapSlice(m.RawItem.Data)
	if err != nil {
		return message.Message{}, &state.DecodingError{Device: m.DeviceName, Reason: "bad Z2M discovery shape: " + err.Error()}
	}

	var devices []dev.Device
	var names []string
	for _, entry := range entries {
		typ, _ := entry["type"].(string)
		if !z2mDeviceTypes[typ] {
			continue
		}
		name, _ := entry["friendly_name"].(string)
		address, _ := entry["ieee_address"].(string)
		var modelLabel string
		if defMap, ok := entry["definition"].(map[string]interface{}); ok {
			modelLabel, _ = defMap["model"].(string)
		}
		devices = append(devices, dev.Device{
			Name:     name,
			Protocol: dev.ProtocolZ2M,
			Address:  address,
			Model:    d.models.FromString(modelLabel),
		})
		names = append(names, name)
	}

	d.writeBehind(devices)
	m.Refined = state.Registry{DeviceNames: names}
	return m, nil
}

func (d *Discoverer) discoverTasmota(m message.Message) (message.Message, error) {
	data, ok := m.RawItem.Data.(map[string]interface{})
	if !ok {
		return message.Message{}, &state.DecodingError{Device: m.DeviceName, Reason: "expected a mapping for TASMOTA discovery"}
	}
	name, hasName := data["t"].(string)
	address, hasAddress := data["hn"].(string)
	modelLabel, hasModel := data["md"].(string)
	if !hasName || !hasAddress || !hasModel {
		return message.Message{}, &state.DecodingError{Device: m.DeviceName, Reason: "TASMOTA discovery missing t/hn/md"}
	}

	device := dev.Device{
		Name:     name,
		Protocol: dev.ProtocolTasmota,
		Address:  address,
		Model:    d.models.FromString(modelLabel),
	}
	d.writeBehind([]dev.Device{device})
	m.Refined = state.Registry{DeviceNames: []string{name}}
	return m, nil
}

func (d *Discoverer) writeBehind(devices []dev.Device) {
	if len(devices) == 0 {
		return
	}
	for _, err := range d.directory.UpdateDevices(devices) {
		d.log.Warn("discovery: mirror write-behind failed", zap.Error(err))
	}
}

// asMapSlice accepts either a JSON-decoded []interface{} of mappings (the
// shape encoding/json always produces for a top-level array) or an
// already-typed []map[string]interface{}, so callers that construct Items
// directly in tests don't need to round-trip through JSON.
func asMapSlice(data interface{}) ([]map[string]interface{}, error) {
	switch v := data.(type) {
	case []map[string]interface{}:
		return v, nil
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(v))
		for _, e := range v {
			em, ok := e.(map[string]interface{})
			if !ok {
				return nil, errUnexpectedEntryShape
			}
			out = append(out, em)
		}
		return out, nil
	default:
		return nil, errNotASequence
	}
}
