// Package message defines the pipeline envelope (Item, Message) and the
// stage runtime (Dispatcher, Producer) that the scrutinizer, discovery
// router, model resolver, and normalizer stages are all built from.
package message

import (
	"errors"

	"github.com/google/uuid"

	"github.com/slassabe/iot2mqtt/internal/dev"
)

// ErrDrop signals a handler chose not to forward a message for an
// expected, non-exceptional reason (e.g. an unsupported model) — logged
// at debug level, never a warning or error.
var ErrDrop = errors.New("message: dropped, no forward")

// MessageType is the closed set of pipeline message kinds.
type MessageType string

const (
	TypeDisco MessageType = "discovery"
	TypeAvail MessageType = "availability"
	TypeState MessageType = "state"
)

func (t MessageType) String() string { return string(t) }

// Item is the raw payload a Scrutinizer hands off to Stage-1, before any
// protocol- or model-specific interpretation. Data holds whichever shape
// the JSON decode produced: map[string]interface{}, []interface{} (for a
// JSON array), or the original string when JSON decoding failed or was
// skipped.
type Item struct {
	Data interface{} `json:"data"`
	Tag  string      `json:"tag,omitempty"`
}

// Message is the pipeline envelope. Model starts nil and is filled in by
// Stage-2; Refined starts nil and is filled in by Stage-1 (DISCO) or
// Stage-3 (AVAIL/STATE).
type Message struct {
	ID          uuid.UUID    `json:"id"`
	Protocol    dev.Protocol `json:"protocol"`
	Model       *dev.Model   `json:"model,omitempty"`
	DeviceName  string       `json:"device_name"`
	MessageType MessageType  `json:"message_type"`
	RawItem     Item         `json:"raw_item"`
	Refined     interface{}  `json:"refined,omitempty"`
}

// New builds a Message with a fresh ID and a nil Model, as Scrutinizer
// produces it.
func New(protocol dev.Protocol, deviceName string, mt MessageType, raw Item) Message {
	return Message{
		ID:          uuid.New(),
		Protocol:    protocol,
		DeviceName:  deviceName,
		MessageType: mt,
		RawItem:     raw,
	}
}

// IsTypeDiscovery, IsTypeAvailability and IsTypeState are the stock
// predicates every dispatcher stage composes its conditional handlers from.
func IsTypeDiscovery(m Message) bool    { return m.MessageType == TypeDisco }
func IsTypeAvailability(m Message) bool { return m.MessageType == TypeAvail }
func IsTypeState(m Message) bool        { return m.MessageType == TypeState }

// Handler transforms a Message, optionally producing one to forward.
// A nil error forwards the returned Message. ErrDrop means "filtered,
// drop silently" (no warning logged — an expected, non-exceptional
// outcome such as an unsupported model). Any other error is logged with
// the message's id/device/type context and the message is dropped —
// the rendering of a DecodingException.
type Handler func(Message) (Message, error)

// Condition selects which Handler in a Dispatcher's ordered list applies.
type Condition func(Message) bool

// Rule pairs a Condition with the Handler that runs when it matches.
type Rule struct {
	When    Condition
	Handler Handler
}

