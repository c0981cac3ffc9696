// Package state defines the canonical, variant-typed device state family
// that the normalizer stage produces and the encoder stage consumes, plus
// the Availability and Registry payload types.
//
// DeviceState is a sealed tagged union realized as a Go interface with one
// struct per variant, not an inheritance tree: Message.Refined holds exactly
// one of DeviceState, Availability, Registry, or nil.
package state

import "time"

// Kind tags a DeviceState variant for dispatch without a type switch at
// every call site.
type Kind string

const (
	KindSwitch          Kind = "switch"
	KindSwitch2Channels Kind = "switch2channels"
	KindAirSensor       Kind = "air_sensor"
	KindMotion          Kind = "motion"
	KindButton          Kind = "button"
	KindAlarm           Kind = "alarm"
	KindSrtsA01         Kind = "srts_a01"
	KindADC             Kind = "adc"
)

// DeviceState is implemented by every device-state variant.
type DeviceState interface {
	Kind() Kind
	LastSeenAt() *time.Time
}

const (
	PowerOn  = "ON"
	PowerOff = "OFF"
)

// Switch is the state of a single-channel relay/plug device.
type Switch struct {
	LastSeen        *time.Time `json:"last_seen,omitempty"`
	PowerOnBehavior string     `json:"power_on_behavior,omitempty"`
	Power           string     `json:"power,omitempty"`
}

func (s Switch) Kind() Kind             { return KindSwitch }
func (s Switch) LastSeenAt() *time.Time { return s.LastSeen }

// SwitchOn and SwitchOff are the canonical states DeviceAccessor encodes
// when asked to switch power without a wire payload of its own.
var (
	SwitchOn  = Switch{Power: PowerOn}
	SwitchOff = Switch{Power: PowerOff}
)

// Switch2Channels is the state of a two-relay device (e.g. Shelly Uni).
type Switch2Channels struct {
	LastSeen *time.Time `json:"last_seen,omitempty"`
	Power1   string     `json:"power1,omitempty"`
	Power2   string     `json:"power2,omitempty"`
}

func (s Switch2Channels) Kind() Kind             { return KindSwitch2Channels }
func (s Switch2Channels) LastSeenAt() *time.Time { return s.LastSeen }

// AirSensor is the state of a temperature/humidity sensor.
type AirSensor struct {
	LastSeen    *time.Time `json:"last_seen,omitempty"`
	Humidity    *float64   `json:"humidity,omitempty"`
	Temperature *float64   `json:"temperature,omitempty"`
}

func (s AirSensor) Kind() Kind             { return KindAirSensor }
func (s AirSensor) LastSeenAt() *time.Time { return s.LastSeen }

// Motion is the state of a PIR/occupancy sensor.
type Motion struct {
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	Occupancy *bool      `json:"occupancy,omitempty"`
	Tamper    *bool      `json:"tamper,omitempty"`
}

func (s Motion) Kind() Kind             { return KindMotion }
func (s Motion) LastSeenAt() *time.Time { return s.LastSeen }

// Button is the state of a wireless push-button.
type Button struct {
	LastSeen *time.Time `json:"last_seen,omitempty"`
	Action   string     `json:"action,omitempty"`
}

func (s Button) Kind() Kind             { return KindButton }
func (s Button) LastSeenAt() *time.Time { return s.LastSeen }

// Alarm is the state of a Zigbee siren.
type Alarm struct {
	LastSeen   *time.Time `json:"last_seen,omitempty"`
	Alarm      *bool      `json:"alarm,omitempty"`
	BatteryLow *bool      `json:"battery_low,omitempty"`
	Duration   *int       `json:"duration,omitempty"`
	Melody     *int       `json:"melody,omitempty"`
	Volume     string     `json:"volume,omitempty"`
}

func (s Alarm) Kind() Kind             { return KindAlarm }
func (s Alarm) LastSeenAt() *time.Time { return s.LastSeen }

// SrtsA01 is the state of the SRTS-A01 Zigbee thermostatic valve. The field
// list follows the original Python implementation's full model, not just
// the subset spec.md's numeric-bounds table calls out by name.
type SrtsA01 struct {
	LastSeen                 *time.Time `json:"last_seen,omitempty"`
	AwayPresetTemperature    *float64   `json:"away_preset_temperature,omitempty"`
	Battery                  *int       `json:"battery,omitempty"`
	Calibrated               *bool      `json:"calibrated,omitempty"`
	ChildLock                *bool      `json:"child_lock,omitempty"`
	DeviceTemperature        *float64   `json:"device_temperature,omitempty"`
	ExternalTemperatureInput *float64   `json:"external_temperature_input,omitempty"`
	InternalHeatingSetpoint  *float64   `json:"internal_heating_setpoint,omitempty"`
	Linkquality              *int       `json:"linkquality,omitempty"`
	LocalTemperature         *float64   `json:"local_temperature,omitempty"`
	OccupiedHeatingSetpoint  *float64   `json:"occupied_heating_setpoint,omitempty"`
	PowerOutageCount         *int       `json:"power_outage_count,omitempty"`
	Preset                   string     `json:"preset,omitempty"`
	Schedule                 *bool      `json:"schedule,omitempty"`
	ScheduleSettings         string     `json:"schedule_settings,omitempty"`
	Sensor                   string     `json:"sensor,omitempty"`
	Setup                    *bool      `json:"setup,omitempty"`
	SystemMode               string     `json:"system_mode,omitempty"`
	ValveAlarm               *bool      `json:"valve_alarm,omitempty"`
	ValveDetection           *bool      `json:"valve_detection,omitempty"`
	Voltage                  *int       `json:"voltage,omitempty"`
	WindowDetection          *bool      `json:"window_detection,omitempty"`
	WindowOpen               *bool      `json:"window_open,omitempty"`
}

func (s SrtsA01) Kind() Kind             { return KindSrtsA01 }
func (s SrtsA01) LastSeenAt() *time.Time { return s.LastSeen }

// ADC is the state of a generic analog-to-digital converter input. Voltage
// is computed from Range, never carried on the wire.
type ADC struct {
	LastSeen *time.Time `json:"last_seen,omitempty"`
	Range    *float64   `json:"range,omitempty"`
}

func (s ADC) Kind() Kind             { return KindADC }
func (s ADC) LastSeenAt() *time.Time { return s.LastSeen }

// Voltage returns the computed voltage, or zero if Range was never set.
func (s ADC) Voltage() float64 {
	if s.Range == nil {
		return 0
	}
	return *s.Range / 100
}

// Availability is a device's online/offline signal, immutable once built.
type Availability struct {
	IsOnline bool `json:"is_online"`
}

// Online and Offline are the two canonical Availability singletons; any two
// references to Online compare equal by value.
var (
	Online  = Availability{IsOnline: true}
	Offline = Availability{IsOnline: false}
)

// Registry is the refined payload of a discovery message: the set of device
// names the discovery announcement introduced or re-announced.
type Registry struct {
	DeviceNames []string `json:"device_names"`
}
