// Package encode transforms a canonical state.DeviceState into the
// model-specific wire payload a protocol command topic expects, and checks
// outgoing state mappings against each model's settable-field whitelist.
package encode

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/slassabe/iot2mqtt/internal/dev"
	"github.com/slassabe/iot2mqtt/internal/state"
)

// Converter transforms a single field's value before it is placed in the
// encoded payload.
type Converter func(interface{}) interface{}

// Encoder holds one model family's wire-format contract: which fields may
// be set, which may be retrieved, and how canonical field names map onto
// wire field names.
type Encoder struct {
	SettableFields []string
	GettableFields []string
	FieldAliases   map[string]string
	FieldConverters map[string]Converter
}

// Transform dumps the non-zero fields of st, applies each field's converter
// (if any), then renames the key through FieldAliases (if any).
func (e *Encoder) Transform(st state.DeviceState) map[string]interface{} {
	encoded := make(map[string]interface{})
	for key, value := range dump(st) {
		if conv, ok := e.FieldConverters[key]; ok {
			value = conv(value)
		}
		if alias, ok := e.FieldAliases[key]; ok {
			key = alias
		}
		encoded[key] = value
	}
	return encoded
}

// Dump exposes the unaliased field dump used internally by Transform, for
// callers that need the canonical field names rather than a model's wire
// names — the telemetry sink tags points by canonical field, not by
// protocol-specific wire spelling.
func Dump(st state.DeviceState) map[string]interface{} {
	return dump(st)
}

// ErrNonCompliant reports that a state mapping contains a field the model's
// encoder does not list as settable.
type ErrNonCompliant struct {
	Model dev.Model
	Field string
}

func (e *ErrNonCompliant) Error() string {
	return fmt.Sprintf("encode: field %q is not settable for model %s", e.Field, e.Model)
}

// CheckCompliance rejects any payload key absent from SettableFields.
// SettableFields acts as a whitelist: the wire-field name (post-alias) must
// appear in it.
func (e *Encoder) CheckCompliance(model dev.Model, payload map[string]interface{}) error {
	allowed := make(map[string]bool, len(e.SettableFields))
	for _, f := range e.SettableFields {
		allowed[f] = true
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !allowed[k] {
			return &ErrNonCompliant{Model: model, Field: k}
		}
	}
	return nil
}

// Registry maps a dev.Model to the Encoder describing its wire contract.
type Registry struct {
	mu  sync.RWMutex
	reg map[dev.Model]*Encoder
	log *zap.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{reg: make(map[dev.Model]*Encoder), log: log}
}

// Register installs enc for every model in models.
func (r *Registry) Register(enc *Encoder, models ...dev.Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range models {
		r.reg[m] = enc
	}
}

// Get returns the encoder for model, or (nil, false) if none is registered.
func (r *Registry) Get(model dev.Model) (*Encoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	enc, ok := r.reg[model]
	return enc, ok
}

// Encode transforms state for model using the registered encoder. If no
// encoder is registered, the state is dumped unmodified and a debug line is
// logged — mirroring the "no encoder found" fallback rather than dropping
// the state.
func (r *Registry) Encode(model dev.Model, st state.DeviceState) map[string]interface{} {
	enc, ok := r.Get(model)
	if !ok {
		r.log.Debug("no encoder found for model, passing state through unmodified",
			zap.String("model", string(model)))
		return dump(st)
	}
	return enc.Transform(st)
}

// dump renders the non-zero exported fields of st into a map keyed by their
// json tag, mirroring Pydantic's model_dump(exclude_none=True): pointer
// fields are skipped when nil and dereferenced otherwise, empty strings are
// skipped, and time.Time values render as RFC3339.
func dump(st state.DeviceState) map[string]interface{} {
	out := make(map[string]interface{})
	v := reflect.ValueOf(st)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return out
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return out
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		name := strings.Split(tag, ",")[0]
		fv := v.Field(i)
		switch fv.Kind() {
		case reflect.Ptr:
			if fv.IsNil() {
				continue
			}
			elem := fv.Elem()
			if t, ok := elem.Interface().(time.Time); ok {
				out[name] = t.Format(time.RFC3339)
				continue
			}
			out[name] = elem.Interface()
		case reflect.String:
			if fv.String() == "" {
				continue
			}
			out[name] = fv.String()
		default:
			out[name] = fv.Interface()
		}
	}
	return out
}
