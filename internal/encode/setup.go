package encode

import (
	"go.uber.org/zap"

	"github.com/slassabe/iot2mqtt/internal/dev"
)

// NewDefaultRegistry builds the registry of canonical per-model encoders
// this deployment ships with: one entry per model family named in the
// device-model vocabulary.
func NewDefaultRegistry(log *zap.Logger) *Registry {
	r := NewRegistry(log)

	r.Register(&Encoder{
		SettableFields: []string{"state"},
		GettableFields: []string{"state"},
		FieldAliases:   map[string]string{"power": "state"},
	}, dev.ModelSnMini, dev.ModelSnMiniL2, dev.ModelSnSmartPlug)

	r.Register(&Encoder{
		SettableFields: []string{"Power"},
		GettableFields: []string{"Power"},
		FieldAliases:   map[string]string{"power": "Power"},
	}, dev.ModelShellyPlugS)

	r.Register(&Encoder{
		SettableFields: []string{"Power1", "Power2"},
		GettableFields: []string{"Power1", "Power2"},
		FieldAliases:   map[string]string{"power1": "Power1", "power2": "Power2"},
	}, dev.ModelShellyUni)

	r.Register(&Encoder{
		SettableFields: []string{"alarm", "duration", "melody", "volume"},
		GettableFields: nil,
	}, dev.ModelNeoAlarm)

	r.Register(&Encoder{
		SettableFields: []string{
			"child_lock",
			"external_temperature_input",
			"occupied_heating_setpoint",
			"preset",
			"schedule",
			"schedule_settings",
			"sensor",
			"system_mode",
			"valve_detection",
			"window_detection",
		},
		// A gettable "get" request for any one field returns the device's
		// full state dump, so a single representative field suffices.
		GettableFields: []string{"child_lock"},
	}, dev.ModelSrtsA01)

	return r
}
