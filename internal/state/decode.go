package state

import (
	"fmt"
	"time"
)

// DecodingError reports a malformed payload, an unknown token, an
// out-of-range numeric value, or an unexpected shape encountered while
// binding a raw payload to a DeviceState/Availability variant. It is a
// plain error: handlers return it, dispatchers log it and drop the
// offending message, the pipeline keeps running.
type DecodingError struct {
	Device string
	Reason string
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("decoding error for device %q: %s", e.Device, e.Reason)
}

func decErr(device, format string, args ...interface{}) *DecodingError {
	return &DecodingError{Device: device, Reason: fmt.Sprintf(format, args...)}
}

// raw is the generic shape a JSON-decoded mapping takes once unmarshaled
// into interface{}: every Bind* function reads from one of these.
type raw = map[string]interface{}

func lookup(m raw, keys ...string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func asString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func asBool(v interface{}) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func stringField(m raw, device string, keys ...string) (string, error) {
	v, ok := lookup(m, keys...)
	if !ok {
		return "", nil
	}
	s, ok := asString(v)
	if !ok {
		return "", decErr(device, "field %v: expected string, got %T", keys, v)
	}
	return s, nil
}

func floatPtrField(m raw, device string, keys ...string) (*float64, error) {
	v, ok := lookup(m, keys...)
	if !ok {
		return nil, nil
	}
	f, ok := asFloat(v)
	if !ok {
		return nil, decErr(device, "field %v: expected number, got %T", keys, v)
	}
	return &f, nil
}

func intPtrField(m raw, device string, keys ...string) (*int, error) {
	v, ok := lookup(m, keys...)
	if !ok {
		return nil, nil
	}
	f, ok := asFloat(v)
	if !ok {
		return nil, decErr(device, "field %v: expected number, got %T", keys, v)
	}
	i := int(f)
	return &i, nil
}

func boolPtrField(m raw, device string, keys ...string) (*bool, error) {
	v, ok := lookup(m, keys...)
	if !ok {
		return nil, nil
	}
	b, ok := asBool(v)
	if !ok {
		return nil, decErr(device, "field %v: expected bool, got %T", keys, v)
	}
	return &b, nil
}

func choiceField(m raw, device string, allowed []string, keys ...string) (string, error) {
	s, err := stringField(m, device, keys...)
	if err != nil || s == "" {
		return s, err
	}
	for _, a := range allowed {
		if s == a {
			return s, nil
		}
	}
	return "", decErr(device, "field %v: unexpected value %q", keys, s)
}

func lastSeen(m raw, device string) (*time.Time, error) {
	v, ok := lookup(m, "last_seen", "Time")
	if !ok {
		return nil, nil
	}
	switch t := v.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return nil, decErr(device, "last_seen: %v", err)
		}
		return &parsed, nil
	case float64:
		parsed := time.Unix(int64(t), 0).UTC()
		return &parsed, nil
	default:
		return nil, decErr(device, "last_seen: unexpected type %T", v)
	}
}

// BindSwitch alias-aware-binds a Switch from a decoded JSON mapping.
func BindSwitch(device string, m raw) (Switch, error) {
	var s Switch
	var err error
	if s.LastSeen, err = lastSeen(m, device); err != nil {
		return s, err
	}
	if s.PowerOnBehavior, err = stringField(m, device, "power_on_behavior"); err != nil {
		return s, err
	}
	if s.Power, err = choiceField(m, device, []string{PowerOn, PowerOff}, "power", "state", "POWER"); err != nil {
		return s, err
	}
	return s, nil
}

// BindSwitch2Channels alias-aware-binds a Switch2Channels from a decoded
// JSON mapping.
func BindSwitch2Channels(device string, m raw) (Switch2Channels, error) {
	var s Switch2Channels
	var err error
	if s.LastSeen, err = lastSeen(m, device); err != nil {
		return s, err
	}
	if s.Power1, err = choiceField(m, device, []string{PowerOn, PowerOff}, "power1", "POWER1"); err != nil {
		return s, err
	}
	if s.Power2, err = choiceField(m, device, []string{PowerOn, PowerOff}, "power2", "POWER2"); err != nil {
		return s, err
	}
	return s, nil
}

// BindAirSensor alias-aware-binds an AirSensor from a decoded JSON mapping.
func BindAirSensor(device string, m raw) (AirSensor, error) {
	var s AirSensor
	var err error
	if s.LastSeen, err = lastSeen(m, device); err != nil {
		return s, err
	}
	if s.Humidity, err = floatPtrField(m, device, "humidity"); err != nil {
		return s, err
	}
	if s.Temperature, err = floatPtrField(m, device, "temperature"); err != nil {
		return s, err
	}
	return s, nil
}

// BindMotion alias-aware-binds a Motion from a decoded JSON mapping.
func BindMotion(device string, m raw) (Motion, error) {
	var s Motion
	var err error
	if s.LastSeen, err = lastSeen(m, device); err != nil {
		return s, err
	}
	if s.Occupancy, err = boolPtrField(m, device, "occupancy"); err != nil {
		return s, err
	}
	if s.Tamper, err = boolPtrField(m, device, "tamper"); err != nil {
		return s, err
	}
	return s, nil
}

// BindButton alias-aware-binds a Button from a decoded JSON mapping.
func BindButton(device string, m raw) (Button, error) {
	var s Button
	var err error
	if s.LastSeen, err = lastSeen(m, device); err != nil {
		return s, err
	}
	if s.Action, err = choiceField(m, device, []string{"single", "double", "long"}, "action"); err != nil {
		return s, err
	}
	return s, nil
}

// BindAlarm alias-aware-binds an Alarm from a decoded JSON mapping.
func BindAlarm(device string, m raw) (Alarm, error) {
	var s Alarm
	var err error
	if s.LastSeen, err = lastSeen(m, device); err != nil {
		return s, err
	}
	if s.Alarm, err = boolPtrField(m, device, "alarm"); err != nil {
		return s, err
	}
	if s.BatteryLow, err = boolPtrField(m, device, "battery_low"); err != nil {
		return s, err
	}
	if s.Duration, err = intPtrField(m, device, "duration"); err != nil {
		return s, err
	}
	if s.Melody, err = intPtrField(m, device, "melody"); err != nil {
		return s, err
	}
	if s.Volume, err = choiceField(m, device, []string{"low", "medium", "high"}, "volume"); err != nil {
		return s, err
	}
	return s, nil
}

// srts-A01 numeric bounds, exclusive on both ends, enforced at ingest.
const (
	awayPresetMin    = -10.0
	awayPresetMax    = 35.0
	extTempInputMin  = 0.0
	extTempInputMax  = 55.0
	occHeatingMin    = 5.0
	occHeatingMax    = 30.0
)

func checkRange(device, field string, v *float64, min, max float64) error {
	if v == nil {
		return nil
	}
	if *v <= min || *v >= max {
		return decErr(device, "%s: %v out of range (%v, %v)", field, *v, min, max)
	}
	return nil
}

// BindSrtsA01 alias-aware-binds an SrtsA01 from a decoded JSON mapping and
// enforces the three bounded numeric fields.
func BindSrtsA01(device string, m raw) (SrtsA01, error) {
	var s SrtsA01
	var err error
	if s.LastSeen, err = lastSeen(m, device); err != nil {
		return s, err
	}
	if s.AwayPresetTemperature, err = floatPtrField(m, device, "away_preset_temperature"); err != nil {
		return s, err
	}
	if err = checkRange(device, "away_preset_temperature", s.AwayPresetTemperature, awayPresetMin, awayPresetMax); err != nil {
		return s, err
	}
	if s.Battery, err = intPtrField(m, device, "battery"); err != nil {
		return s, err
	}
	if s.Calibrated, err = boolPtrField(m, device, "calibrated"); err != nil {
		return s, err
	}
	if s.ChildLock, err = boolPtrField(m, device, "child_lock"); err != nil {
		return s, err
	}
	if s.DeviceTemperature, err = floatPtrField(m, device, "device_temperature"); err != nil {
		return s, err
	}
	if s.ExternalTemperatureInput, err = floatPtrField(m, device, "external_temperature_input"); err != nil {
		return s, err
	}
	if err = checkRange(device, "external_temperature_input", s.ExternalTemperatureInput, extTempInputMin, extTempInputMax); err != nil {
		return s, err
	}
	if s.InternalHeatingSetpoint, err = floatPtrField(m, device, "internal_heating_setpoint"); err != nil {
		return s, err
	}
	if s.Linkquality, err = intPtrField(m, device, "linkquality"); err != nil {
		return s, err
	}
	if s.LocalTemperature, err = floatPtrField(m, device, "local_temperature"); err != nil {
		return s, err
	}
	if s.OccupiedHeatingSetpoint, err = floatPtrField(m, device, "occupied_heating_setpoint"); err != nil {
		return s, err
	}
	if err = checkRange(device, "occupied_heating_setpoint", s.OccupiedHeatingSetpoint, occHeatingMin, occHeatingMax); err != nil {
		return s, err
	}
	if s.PowerOutageCount, err = intPtrField(m, device, "power_outage_count"); err != nil {
		return s, err
	}
	if s.Preset, err = choiceField(m, device, []string{"manual", "away", "auto"}, "preset"); err != nil {
		return s, err
	}
	if s.Schedule, err = boolPtrField(m, device, "schedule"); err != nil {
		return s, err
	}
	if s.ScheduleSettings, err = stringField(m, device, "schedule_settings"); err != nil {
		return s, err
	}
	if s.Sensor, err = choiceField(m, device, []string{"internal", "external"}, "sensor"); err != nil {
		return s, err
	}
	if s.Setup, err = boolPtrField(m, device, "setup"); err != nil {
		return s, err
	}
	if s.SystemMode, err = choiceField(m, device, []string{"off", "heat"}, "system_mode"); err != nil {
		return s, err
	}
	if s.ValveAlarm, err = boolPtrField(m, device, "valve_alarm"); err != nil {
		return s, err
	}
	if s.ValveDetection, err = boolPtrField(m, device, "valve_detection"); err != nil {
		return s, err
	}
	if s.Voltage, err = intPtrField(m, device, "voltage"); err != nil {
		return s, err
	}
	if s.WindowDetection, err = boolPtrField(m, device, "window_detection"); err != nil {
		return s, err
	}
	if s.WindowOpen, err = boolPtrField(m, device, "window_open"); err != nil {
		return s, err
	}
	return s, nil
}

// BindADC alias-aware-binds an ADC from a decoded JSON mapping.
func BindADC(device string, m raw) (ADC, error) {
	var s ADC
	var err error
	if s.LastSeen, err = lastSeen(m, device); err != nil {
		return s, err
	}
	if s.Range, err = floatPtrField(m, device, "range", "Range"); err != nil {
		return s, err
	}
	return s, nil
}

// BindAvailability decodes an availability payload against the protocol's
// onlineToken and offlineToken. data is
// either a bare string or a decoded JSON mapping (for Z2M's object form).
func BindAvailability(device string, onlineToken, offlineToken string, data interface{}) (Availability, error) {
	var token string
	switch v := data.(type) {
	case string:
		token = v
	case raw:
		s, ok := lookup(v, "state")
		if !ok {
			return Availability{}, decErr(device, "availability mapping missing %q", "state")
		}
		str, ok := asString(s)
		if !ok {
			return Availability{}, decErr(device, "availability state: expected string, got %T", s)
		}
		token = str
	default:
		return Availability{}, decErr(device, "availability payload: unexpected type %T", data)
	}
	switch token {
	case onlineToken:
		return Online, nil
	case offlineToken:
		return Offline, nil
	default:
		return Availability{}, decErr(device, "availability: unexpected token %q", token)
	}
}
