// Package access implements DeviceAccessor: the publish-side operations
// that turn a canonical state change or a get-state request into MQTT
// command-topic publishes, plus the debounced switch-power-change state
// machine built on top of it.
package access

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/slassabe/iot2mqtt/internal/dev"
	"github.com/slassabe/iot2mqtt/internal/directory"
	"github.com/slassabe/iot2mqtt/internal/encode"
	"github.com/slassabe/iot2mqtt/internal/mqttx"
	"github.com/slassabe/iot2mqtt/internal/state"
	"github.com/slassabe/iot2mqtt/internal/timer"
)

// Default on/off debounce windows for SwitchPowerChange, matching the
// reference implementation's defaults.
const (
	DefaultOnTime  = 5 * time.Second
	DefaultOffTime = 0 * time.Second
)

// Accessor publishes state-change and get-state commands over MQTT.
type Accessor struct {
	client    mqttx.Client
	commands  topicBaseLookup
	encoders  *encode.Registry
	timers    *timer.Manager
	directory *directory.Directory
	log       *zap.Logger
}

// topicBaseLookup is the minimal surface Accessor needs from
// topic.CommandRegistry, kept local so Accessor depends on this one method
// rather than on the concrete registry type.
type topicBaseLookup interface {
	CommandBaseTopic(protocol dev.Protocol) (string, bool)
}

// New builds an Accessor. directory may be nil if callers never use the
// directory-resolving helpers (SwitchPowerChangeByName).
func New(client mqttx.Client, commands topicBaseLookup, encoders *encode.Registry, timers *timer.Manager, dir *directory.Directory, log *zap.Logger) *Accessor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Accessor{client: client, commands: commands, encoders: encoders, timers: timers, directory: dir, log: log}
}

// GetState publishes a get-state request for deviceName using model's
// gettable fields. A model with no encoder, or an encoder with no
// gettable fields, is a silent no-op (debug logged).
func (a *Accessor) GetState(deviceName string, protocol dev.Protocol, model dev.Model) error {
	base, ok := a.commands.CommandBaseTopic(protocol)
	if !ok {
		return fmt.Errorf("access: unknown protocol %s", protocol)
	}
	enc, ok := a.encoders.Get(model)
	if !ok || len(enc.GettableFields) == 0 {
		a.log.Debug("cannot get state for model", zap.String("device", deviceName), zap.String("model", string(model)))
		return nil
	}

	switch protocol {
	case dev.ProtocolZ2M:
		payload := make(map[string]string, len(enc.GettableFields))
		for _, f := range enc.GettableFields {
			payload[f] = ""
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("access: marshal get-state payload: %w", err)
		}
		topic := fmt.Sprintf("%s/%s/get", base, deviceName)
		a.log.Debug("publishing state retrieval", zap.String("topic", topic), zap.ByteString("payload", body))
		return a.client.Publish(topic, 1, false, body)
	case dev.ProtocolTasmota:
		for _, f := range enc.GettableFields {
			topic := fmt.Sprintf("%s/%s/%s", base, deviceName, f)
			a.log.Debug("publishing state retrieval", zap.String("topic", topic))
			if err := a.client.Publish(topic, 1, false, nil); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("access: unknown protocol %s", protocol)
	}
}

// SetState publishes stateMapping (already encoder-transformed) to
// deviceName's set command topic.
func (a *Accessor) SetState(deviceName string, protocol dev.Protocol, stateMapping map[string]interface{}) error {
	base, ok := a.commands.CommandBaseTopic(protocol)
	if !ok {
		return fmt.Errorf("access: unknown protocol %s", protocol)
	}
	switch protocol {
	case dev.ProtocolZ2M:
		body, err := json.Marshal(stateMapping)
		if err != nil {
			return fmt.Errorf("access: marshal set-state payload: %w", err)
		}
		topic := fmt.Sprintf("%s/%s/set", base, deviceName)
		a.log.Debug("publishing state change", zap.String("topic", topic), zap.ByteString("payload", body))
		return a.client.Publish(topic, 1, false, body)
	case dev.ProtocolTasmota:
		for k, v := range stateMapping {
			topic := fmt.Sprintf("%s/%s/%s", base, deviceName, k)
			payload := fmt.Sprint(v)
			a.log.Debug("publishing state change", zap.String("topic", topic), zap.String("payload", payload))
			if err := a.client.Publish(topic, 1, false, []byte(payload)); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("access: unknown protocol %s", protocol)
	}
}

// SwitchPowerChange implements the countdown/on-time/off-time debounce
// state machine spec.md §4.9 describes. deviceNamesCSV is split on commas
// and each device handled independently.
func (a *Accessor) SwitchPowerChange(deviceNamesCSV string, protocol dev.Protocol, model dev.Model, powerOn bool, countdown, onTime, offTime time.Duration) {
	for _, name := range strings.Split(deviceNamesCSV, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		a.switchOneDevice(name, protocol, model, powerOn, countdown, onTime, offTime)
	}
}

func (a *Accessor) switchOneDevice(deviceName string, protocol dev.Protocol, model dev.Model, powerOn bool, countdown, onTime, offTime time.Duration) {
	if countdown != 0 {
		a.timers.CreateTimer(deviceName, countdown, func() {
			a.switchOneDevice(deviceName, protocol, model, powerOn, 0, onTime, offTime)
		})
		return
	}

	desired := state.SwitchOff
	if powerOn {
		desired = state.SwitchOn
	}
	payload := a.encoders.Encode(model, desired)
	if err := a.SetState(deviceName, protocol, payload); err != nil {
		a.log.Warn("failed to publish switch power change", zap.String("device", deviceName), zap.Error(err))
		return
	}

	if powerOn && onTime > 0 {
		a.timers.CreateTimer(deviceName, onTime, func() {
			a.switchOneDevice(deviceName, protocol, model, false, 0, onTime, offTime)
		})
	} else if !powerOn && offTime > 0 {
		a.timers.CreateTimer(deviceName, offTime, func() {
			a.switchOneDevice(deviceName, protocol, model, true, 0, onTime, offTime)
		})
	}
}

// SwitchPowerChangeByName resolves protocol and model from the directory
// before delegating to SwitchPowerChange. An unknown device is a warning,
// not an error — it does not throw.
func (a *Accessor) SwitchPowerChangeByName(deviceNamesCSV string, powerOn bool, countdown, onTime, offTime time.Duration) {
	for _, name := range strings.Split(deviceNamesCSV, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		d, ok := a.directory.GetDevice(name)
		if !ok {
			a.log.Warn("cannot switch power, unknown device", zap.String("device", name))
			continue
		}
		a.switchOneDevice(name, d.Protocol, d.Model, powerOn, countdown, onTime, offTime)
	}
}
