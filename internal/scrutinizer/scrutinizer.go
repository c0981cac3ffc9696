// Package scrutinizer subscribes to every registered MQTT info topic and
// turns each inbound message into a message.Message on the pipeline's
// entry queue — the bridge's only consumer of raw wire bytes.
package scrutinizer

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/slassabe/iot2mqtt/internal/dev"
	"github.com/slassabe/iot2mqtt/internal/message"
	"github.com/slassabe/iot2mqtt/internal/mqttx"
	"github.com/slassabe/iot2mqtt/internal/topic"
)

// Scrutinizer owns the MQTT subscriptions and feeds every decoded message
// to a Producer bound to the pipeline's entry channel.
type Scrutinizer struct {
	client   mqttx.Client
	topics   *topic.Registry
	producer *message.Producer
	log      *zap.Logger
}

// New builds a Scrutinizer. Call Start to subscribe and begin forwarding.
func New(client mqttx.Client, topics *topic.Registry, producer *message.Producer, log *zap.Logger) *Scrutinizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scrutinizer{client: client, topics: topics, producer: producer, log: log}
}

// Start subscribes to every topic topic.Registry knows about. Reconnects
// are handled by wiring Start as an mqttx.Client.OnConnect callback, so
// subscriptions are re-established automatically after a drop.
func (s *Scrutinizer) Start() error {
	for _, sub := range s.topics.AllSubscriptions() {
		sub := sub
		err := s.client.Subscribe(sub.Topic, 0, func(topicName string, payload []byte) {
			s.handle(sub.Protocol, sub.MsgType, topicName, payload)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// handle mirrors the reference Scrutinizer's _process_message: an empty
// payload is logged and dropped; a TASMOTA STATE topic that fails to parse
// as JSON is dismissed outright (it's almost always a sub-topic the bridge
// doesn't model); any other JSON-decode failure is wrapped as a bare
// string Item instead of dropped.
func (s *Scrutinizer) handle(protocol dev.Protocol, msgType message.MessageType, topicName string, payload []byte) {
	if len(payload) == 0 {
		s.log.Info("received empty message, dropping", zap.String("topic", topicName))
		return
	}

	deviceName, ok := s.topics.DeviceName(protocol, msgType, topicName)
	if !ok {
		s.log.Warn("could not resolve device name from topic", zap.String("topic", topicName))
		return
	}

	item, decoded := s.toItem(protocol, msgType, topicName, payload)
	if !decoded {
		return
	}

	msg := message.New(protocol, deviceName, msgType, item)
	if err := s.producer.Put(msg); err != nil {
		s.log.Warn("pipeline entry queue full, dropping message",
			zap.String("device", deviceName),
			zap.String("topic", topicName),
			zap.Error(err),
		)
	}
}

// toItem returns (item, true) on success, or (zero, false) when the
// message should be dismissed entirely (decoded=false).
func (s *Scrutinizer) toItem(protocol dev.Protocol, msgType message.MessageType, topicName string, payload []byte) (message.Item, bool) {
	var data interface{}
	if err := json.Unmarshal(payload, &data); err != nil {
		if protocol == dev.ProtocolTasmota && msgType == message.TypeState {
			s.log.Debug("dismissed non-JSON TASMOTA state topic", zap.String("topic", topicName))
			return message.Item{}, false
		}
		return message.Item{Data: string(payload)}, true
	}

	var tag string
	if protocol == dev.ProtocolTasmota {
		tag, _ = s.topics.SubTopic(protocol, msgType, topicName)
	}
	return message.Item{Data: data, Tag: tag}, true
}
