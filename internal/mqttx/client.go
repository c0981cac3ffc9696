// Package mqttx wraps github.com/eclipse/paho.mqtt.golang behind a small
// interface so the pipeline's producers/consumers never depend on the
// concrete paho client directly, and can be driven by a fake in tests.
package mqttx

import (
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MessageHandler mirrors paho's per-topic callback signature without
// leaking the paho package into callers.
type MessageHandler func(topic string, payload []byte)

// ConnectHandler fires once the underlying client completes a connection,
// including reconnects.
type ConnectHandler func()

// Client is the subset of paho's mqtt.Client this application drives.
type Client interface {
	Connect() error
	Disconnect()
	Publish(topic string, qos byte, retain bool, payload []byte) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
	OnConnect(handler ConnectHandler)
}

// SecurityContext carries the TLS and credential material for a broker
// connection. A zero value means an unauthenticated, unencrypted
// connection.
type SecurityContext struct {
	Username   string
	Password   string
	CACertPath string
	ClientCert tls.Certificate
	TLSEnabled bool
	SkipVerify bool
}

func (s SecurityContext) tlsConfig() *tls.Config {
	if !s.TLSEnabled {
		return nil
	}
	cfg := &tls.Config{InsecureSkipVerify: s.SkipVerify} //nolint:gosec // operator-controlled, defaults false
	if len(s.ClientCert.Certificate) > 0 {
		cfg.Certificates = []tls.Certificate{s.ClientCert}
	}
	return cfg
}

// MQTTContext bundles everything needed to dial a broker.
type MQTTContext struct {
	Broker         string
	ClientID       string
	Security       SecurityContext
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	CleanSession   bool
	AutoReconnect  bool
}

// PahoClient adapts the eclipse/paho.mqtt.golang client to the Client
// interface.
type PahoClient struct {
	inner           mqtt.Client
	log             *zap.Logger
	onConnectMu     sync.Mutex
	onConnectFuncs  []ConnectHandler
}

// NewPahoClient builds and configures (but does not connect) a paho client
// from ctx. Handlers registered later via OnConnect still fire, since the
// option-level callback installed here fans out to c.onConnectFuncs.
func NewPahoClient(ctx MQTTContext, log *zap.Logger) *PahoClient {
	if log == nil {
		log = zap.NewNop()
	}
	c := &PahoClient{log: log}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(ctx.Broker)
	opts.SetClientID(ctx.ClientID)
	opts.SetCleanSession(ctx.CleanSession)
	opts.SetAutoReconnect(ctx.AutoReconnect)

	if ctx.KeepAlive > 0 {
		opts.SetKeepAlive(ctx.KeepAlive)
	} else {
		opts.SetKeepAlive(60 * time.Second)
	}
	if ctx.ConnectTimeout > 0 {
		opts.SetConnectTimeout(ctx.ConnectTimeout)
	} else {
		opts.SetConnectTimeout(30 * time.Second)
	}
	if ctx.Security.Username != "" {
		opts.SetUsername(ctx.Security.Username)
		opts.SetPassword(ctx.Security.Password)
	}
	if tlsCfg := ctx.Security.tlsConfig(); tlsCfg != nil {
		opts.SetTLSConfig(tlsCfg)
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", zap.Error(err))
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		c.onConnectMu.Lock()
		handlers := append([]ConnectHandler(nil), c.onConnectFuncs...)
		c.onConnectMu.Unlock()
		for _, h := range handlers {
			h()
		}
	})

	c.inner = mqtt.NewClient(opts)
	return c
}

// Connect blocks until the connection attempt resolves.
func (c *PahoClient) Connect() error {
	token := c.inner.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqttx: connect: %w", err)
	}
	return nil
}

// Disconnect waits up to 250ms to flush in-flight work before closing.
func (c *PahoClient) Disconnect() {
	c.inner.Disconnect(250)
}

// Publish blocks until the broker acknowledges the publish.
func (c *PahoClient) Publish(topic string, qos byte, retain bool, payload []byte) error {
	token := c.inner.Publish(topic, qos, retain, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqttx: publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers handler for topic, wrapping paho's richer callback
// signature down to MessageHandler.
func (c *PahoClient) Subscribe(topic string, qos byte, handler MessageHandler) error {
	token := c.inner.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqttx: subscribe %s: %w", topic, err)
	}
	return nil
}

// OnConnect registers handler to run on every successful (re)connection,
// including reconnects after a dropped link.
func (c *PahoClient) OnConnect(handler ConnectHandler) {
	c.onConnectMu.Lock()
	defer c.onConnectMu.Unlock()
	c.onConnectFuncs = append(c.onConnectFuncs, handler)
}
