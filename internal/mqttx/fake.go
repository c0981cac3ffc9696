package mqttx

import "sync"

// publishedMessage records one call to FakeClient.Publish.
type publishedMessage struct {
	Topic   string
	QoS     byte
	Retain  bool
	Payload []byte
}

// FakeClient is an in-memory Client double for tests: Publish records
// calls instead of talking to a broker, and Subscribe lets tests drive
// handlers directly via Deliver.
type FakeClient struct {
	mu          sync.Mutex
	published   []publishedMessage
	subscribers map[string]MessageHandler
	connectFns  []ConnectHandler
}

// NewFakeClient returns a ready-to-use FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{subscribers: make(map[string]MessageHandler)}
}

func (f *FakeClient) Connect() error {
	f.mu.Lock()
	handlers := append([]ConnectHandler(nil), f.connectFns...)
	f.mu.Unlock()
	for _, h := range handlers {
		h()
	}
	return nil
}

func (f *FakeClient) Disconnect() {}

func (f *FakeClient) Publish(topic string, qos byte, retain bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMessage{Topic: topic, QoS: qos, Retain: retain, Payload: payload})
	return nil
}

func (f *FakeClient) Subscribe(topic string, _ byte, handler MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribers[topic] = handler
	return nil
}

func (f *FakeClient) OnConnect(handler ConnectHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectFns = append(f.connectFns, handler)
}

// Deliver simulates an incoming message arriving on topic, invoking the
// matching subscriber registered via Subscribe (tests bypass MQTT
// wildcard matching and register/deliver on literal topics).
func (f *FakeClient) Deliver(topic string, payload []byte) {
	f.mu.Lock()
	handler, ok := f.subscribers[topic]
	f.mu.Unlock()
	if ok {
		handler(topic, payload)
	}
}

// Published returns a snapshot of every Publish call recorded so far.
func (f *FakeClient) Published() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedMessage(nil), f.published...)
}
