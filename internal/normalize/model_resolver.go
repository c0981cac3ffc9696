// Package normalize implements Stage-2 (ModelResolver) and Stage-3
// (AvailabilityNormalizer, StateNormalizer) of the pipeline.
package normalize

import (
	"go.uber.org/zap"

	"github.com/slassabe/iot2mqtt/internal/dev"
	"github.com/slassabe/iot2mqtt/internal/directory"
	"github.com/slassabe/iot2mqtt/internal/message"
	"github.com/slassabe/iot2mqtt/internal/state"
)

// ModelResolver runs at Stage-2 for every non-DISCO message: it looks up
// the device in the Directory and sets msg.Model, never filtering.
type ModelResolver struct {
	directory *directory.Directory
	log       *zap.Logger
}

// NewModelResolver builds a resolver bound to directory.
func NewModelResolver(dir *directory.Directory, log *zap.Logger) *ModelResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &ModelResolver{directory: dir, log: log}
}

// Handle is the message.Handler Stage-2 installs as its default handler
// (it runs for every non-DISCO message the stage sees; Stage-2's one
// conditional rule routes DISCO messages to the get-state trigger instead).
func (r *ModelResolver) Handle(m message.Message) (message.Message, error) {
	if m.MessageType == message.TypeDisco {
		return message.Message{}, &state.DecodingError{Device: m.DeviceName, Reason: "discovery message not allowed at model-resolve stage"}
	}
	model := dev.ModelUnknown
	if d, ok := r.directory.GetDevice(m.DeviceName); ok {
		model = d.Model
	}
	m.Model = &model
	if model == dev.ModelUnknown {
		r.log.Debug("unknown model for device",
			zap.String("device", m.DeviceName),
			zap.String("type", string(m.MessageType)),
		)
	}
	return m, nil
}
