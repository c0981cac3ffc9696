// Package dev defines the device identity types shared across the pipeline:
// the communication Protocol, the interned device Model, and the Device
// record itself.
package dev

import (
	"sync"

	"go.uber.org/zap"
)

// Protocol is the closed set of wire conventions the pipeline understands.
// HOMIE, RING, SHELLY and Z2T are recognised identifiers reserved for future
// routing but are not wired into the TopicRegistry.
type Protocol string

const (
	ProtocolDefault Protocol = "default"
	ProtocolHomie   Protocol = "Homie"
	ProtocolRing    Protocol = "Ring"
	ProtocolShelly  Protocol = "Shelly"
	ProtocolTasmota Protocol = "Tasmota"
	ProtocolZ2M     Protocol = "Zigbee2MQTT"
	ProtocolZ2T     Protocol = "Zigbee2Tasmota"
)

// Model is an interned device-type identifier. Two lookups of the same wire
// tag return the same Model value (a Go string is already comparable by
// value, so interning here buys us a single validated vocabulary and a
// warning log on first sight of an unrecognised tag, not pointer identity).
type Model string

// Seed vocabulary of recognised device models, plus the two sentinels.
const (
	ModelMiflora     Model = "Miflora"
	ModelNeoAlarm    Model = "NAS-AB02B2"
	ModelRingCamera  Model = "RingCamera"
	ModelShellyPlugS Model = "Shelly Plug S"
	ModelShellyUni   Model = "Shelly Uni"
	ModelSrtsA01     Model = "SRTS-A01"
	ModelTuyaSoil    Model = "TS0601_soil"
	ModelSnAirSensor Model = "SNZB-02"
	ModelSnButton    Model = "SNZB-01"
	ModelSnMotion    Model = "SNZB-03"
	ModelSnMini      Model = "ZBMINI-L"
	ModelSnMiniL2    Model = "ZBMINIL2"
	ModelSnSmartPlug Model = "S26R2ZB"
	ModelSnZbBridge  Model = "Sonoff ZbBridge"

	// ModelNone marks the absence of a model, used on discovery messages.
	ModelNone Model = "None"
	// ModelUnknown marks a wire tag that the registry has never seen.
	ModelUnknown Model = "Unknown"
)

var seedModels = []Model{
	ModelMiflora, ModelNeoAlarm, ModelRingCamera, ModelShellyPlugS,
	ModelShellyUni, ModelSrtsA01, ModelTuyaSoil, ModelSnAirSensor,
	ModelSnButton, ModelSnMotion, ModelSnMini, ModelSnMiniL2,
	ModelSnSmartPlug, ModelSnZbBridge, ModelNone, ModelUnknown,
}

// ModelRegistry interns wire-format model tags into the closed Model
// vocabulary, warning (once per process, via the injected logger) the first
// time it sees an unrecognised tag. The zero value is usable: it self-seeds
// from seedModels on first use.
type ModelRegistry struct {
	mu     sync.Mutex
	known  map[string]Model
	log    *zap.Logger
	seeded bool
}

// NewModelRegistry returns a registry seeded with the built-in vocabulary.
// A nil logger is replaced with a no-op logger.
func NewModelRegistry(log *zap.Logger) *ModelRegistry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &ModelRegistry{known: make(map[string]Model), log: log}
	r.seed()
	return r
}

func (r *ModelRegistry) seed() {
	if r.seeded {
		return
	}
	if r.known == nil {
		r.known = make(map[string]Model)
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	for _, m := range seedModels {
		r.known[string(m)] = m
	}
	r.seeded = true
}

// FromString interns a wire-format model tag. A nil/empty label yields
// ModelNone (discovery messages carry no model). An unrecognised label
// yields ModelUnknown and is logged once.
func (r *ModelRegistry) FromString(label string) Model {
	if label == "" {
		return ModelNone
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seed()
	if m, ok := r.known[label]; ok {
		return m
	}
	r.log.Warn("unknown device model", zap.String("label", label))
	r.known[label] = ModelUnknown
	return ModelUnknown
}
