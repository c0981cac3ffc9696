// Package pipeline wires the three message.Dispatcher stages — discovery
// routing, model resolution, and state/availability normalization — into
// the bounded-channel pipeline the scrutinizer feeds and the consumer
// fan-out (telemetry, admin API, metrics, staleness tracker) drains.
package pipeline

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/slassabe/iot2mqtt/internal/access"
	"github.com/slassabe/iot2mqtt/internal/dev"
	"github.com/slassabe/iot2mqtt/internal/directory"
	"github.com/slassabe/iot2mqtt/internal/discovery"
	"github.com/slassabe/iot2mqtt/internal/message"
	"github.com/slassabe/iot2mqtt/internal/metrics"
	"github.com/slassabe/iot2mqtt/internal/normalize"
	"github.com/slassabe/iot2mqtt/internal/state"
)

// Config sizes the bounded channels between stages and the discovery-settle
// delay before Stage-2 starts issuing get-state requests for devices a
// DISCO message just introduced.
type Config struct {
	QueueCapacity   int
	DiscoverySettle time.Duration
}

// Consumer receives every message that survives Stage-3, one call per
// message per registered consumer.
type Consumer func(message.Message)

// Pipeline owns the three Dispatcher stages, the bounded channels
// connecting them, and the fan-out to registered Consumers.
type Pipeline struct {
	entryCh  chan message.Message
	stage2Ch chan message.Message
	stage3Ch chan message.Message
	outputCh chan message.Message

	stage1 *message.Dispatcher
	stage2 *message.Dispatcher
	stage3 *message.Dispatcher

	consumersMu sync.RWMutex
	consumers   []Consumer

	metrics  *metrics.Registry
	log      *zap.Logger
	settleAt time.Time

	stopDepthCh chan struct{}
}

// New wires the three stages and starts their dispatcher goroutines. The
// entry queue accepts messages immediately, but register every Consumer
// with AddConsumer before calling Start so none of the startup burst is
// missed.
func New(cfg Config, dir *directory.Directory, models *dev.ModelRegistry, accessor *access.Accessor, mreg *metrics.Registry, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 1024
	}

	p := &Pipeline{
		entryCh:     make(chan message.Message, cfg.QueueCapacity),
		stage2Ch:    make(chan message.Message, cfg.QueueCapacity),
		stage3Ch:    make(chan message.Message, cfg.QueueCapacity),
		outputCh:    make(chan message.Message, cfg.QueueCapacity),
		metrics:     mreg,
		log:         log,
		settleAt:    time.Now().Add(cfg.DiscoverySettle),
		stopDepthCh: make(chan struct{}),
	}

	discoverer := discovery.New(dir, models, log)
	p.stage1 = message.NewDispatcher("discovery-router", p.entryCh, p.stage2Ch,
		[]message.Rule{
			{When: message.IsTypeDiscovery, Handler: discoverer.Handle},
		},
		message.WithDefaultHandler(passthrough),
		message.WithLogger(log.Named("stage1")),
	)

	resolver := normalize.NewModelResolver(dir, log)
	p.stage2 = message.NewDispatcher("model-resolver", p.stage2Ch, p.stage3Ch,
		[]message.Rule{
			{When: message.IsTypeDiscovery, Handler: p.triggerGetStateOnDiscovery(accessor, dir)},
		},
		message.WithDefaultHandler(resolver.Handle),
		message.WithLogger(log.Named("stage2")),
	)

	availNorm := normalize.NewAvailabilityNormalizer(log)
	stateNorm := normalize.NewStateNormalizer(log)
	p.stage3 = message.NewDispatcher("normalizer", p.stage3Ch, p.outputCh,
		[]message.Rule{
			{When: message.IsTypeAvailability, Handler: availNorm.Handle},
			{When: message.IsTypeState, Handler: stateNorm.Handle},
		},
		message.WithDefaultHandler(passthrough),
		message.WithLogger(log.Named("stage3")),
	)

	return p
}

func passthrough(m message.Message) (message.Message, error) { return m, nil }

// triggerGetStateOnDiscovery runs at Stage-2 for DISCO messages: once the
// discovery-settle delay has elapsed, it issues a get-state request for
// every device the DISCO message introduced, then forwards the message
// unchanged so Stage-3's pass-through default handler carries its
// state.Registry refinement on to the fan-out, matching the reference
// normalizer's pass_through default for discovery messages.
func (p *Pipeline) triggerGetStateOnDiscovery(accessor *access.Accessor, dir *directory.Directory) message.Handler {
	return func(m message.Message) (message.Message, error) {
		registry, ok := m.Refined.(state.Registry)
		if !ok {
			return message.Message{}, message.ErrDrop
		}
		if time.Now().Before(p.settleAt) {
			p.log.Debug("discovery settle window still open, not triggering get-state")
			return m, nil
		}
		for _, name := range registry.DeviceNames {
			device, found := dir.GetDevice(name)
			if !found {
				continue
			}
			if err := accessor.GetState(device.Name, device.Protocol, device.Model); err != nil {
				p.log.Warn("discovery get-state failed", zap.String("device", device.Name), zap.Error(err))
				continue
			}
			if p.metrics != nil {
				p.metrics.ObserveGetStateTrigger("discovery")
			}
		}
		return m, nil
	}
}

// Entry returns a Producer bound to the pipeline's entry queue — the only
// sanctioned way to feed messages in.
func (p *Pipeline) Entry() *message.Producer {
	return message.NewProducer(p.entryCh)
}

// AddConsumer registers fn to run against every message that survives
// Stage-3. Call before Start.
func (p *Pipeline) AddConsumer(fn Consumer) {
	p.consumersMu.Lock()
	defer p.consumersMu.Unlock()
	p.consumers = append(p.consumers, fn)
}

// Start begins draining Stage-3's output to every registered Consumer and,
// if a metrics.Registry was supplied, begins periodically reporting queue
// depth.
func (p *Pipeline) Start() {
	go p.fanOut()
	if p.metrics != nil {
		go p.reportQueueDepth()
	}
}

func (p *Pipeline) fanOut() {
	for m := range p.outputCh {
		p.consumersMu.RLock()
		consumers := p.consumers
		p.consumersMu.RUnlock()

		for _, c := range consumers {
			c(m)
		}
		if p.metrics != nil {
			p.metrics.ObserveProcessed(p.stage3.Name(), string(m.Protocol))
		}
	}
}

func (p *Pipeline) reportQueueDepth() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopDepthCh:
			return
		case <-ticker.C:
			p.metrics.SetQueueDepth("entry", len(p.entryCh))
			p.metrics.SetQueueDepth("model-resolution", len(p.stage2Ch))
			p.metrics.SetQueueDepth("normalization", len(p.stage3Ch))
			p.metrics.SetQueueDepth("output", len(p.outputCh))
		}
	}
}

// Stop gracefully drains and halts every stage in pipeline order, then
// closes the output channel so the fan-out goroutine exits.
func (p *Pipeline) Stop() {
	p.stage1.StopGracefully()
	p.stage2.StopGracefully()
	p.stage3.StopGracefully()
	close(p.stopDepthCh)
	close(p.outputCh)
}
