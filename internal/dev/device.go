package dev

// Device is the directory record for a single discovered device. Name and
// Protocol are set once at discovery and never mutated afterward; Address
// and Model may be refreshed by a later, idempotent re-discovery.
type Device struct {
	Name     string   `json:"name"`
	Protocol Protocol `json:"protocol"`
	Address  string   `json:"address,omitempty"`
	Model    Model    `json:"model,omitempty"`
}

// ButtonAction enumerates the gestures a Button device state can report.
type ButtonAction string

const (
	ButtonSingle ButtonAction = "single"
	ButtonDouble ButtonAction = "double"
	ButtonLong   ButtonAction = "long"
)
