package message

import (
	"errors"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"
)

var instanceCount int64

// Dispatcher is a single-goroutine pipeline stage: it reads one Message at
// a time from Input, evaluates Rules in order, runs the first matching
// Handler (or DefaultHandler if none match), and forwards a non-nil result
// onto Output if one is configured. It mirrors the teacher's node.Node
// goroutine-per-consumer shape, generalized to an ordered (predicate,
// handler) list instead of a single Executor.
type Dispatcher struct {
	name           string
	input          <-chan Message
	output         chan<- Message
	rules          []Rule
	defaultHandler Handler
	log            *zap.Logger

	forceCh    chan struct{}
	gracefulCh chan struct{}
	doneCh     chan struct{}
}

// Option configures a Dispatcher at construction time.
type Option func(*Dispatcher)

// WithDefaultHandler installs a handler invoked when no Rule matches.
func WithDefaultHandler(h Handler) Option {
	return func(d *Dispatcher) { d.defaultHandler = h }
}

// WithLogger attaches a logger; a nil logger falls back to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// NewDispatcher builds and starts a Dispatcher goroutine. output may be nil
// for a terminal stage. name may be empty, in which case a stable
// "Dispatcher#N" name is generated from an atomic counter, matching the
// reference's per-process numbering.
func NewDispatcher(name string, input <-chan Message, output chan<- Message, rules []Rule, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		name:       name,
		input:      input,
		output:     output,
		rules:      rules,
		forceCh:    make(chan struct{}),
		gracefulCh: make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.name == "" {
		n := atomic.AddInt64(&instanceCount, 1) - 1
		d.name = "Dispatcher#" + strconv.FormatInt(n, 10)
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	if d.defaultHandler == nil {
		d.defaultHandler = d.noHandler
	}
	go d.run()
	return d
}

func (d *Dispatcher) noHandler(m Message) (Message, error) {
	d.log.Debug("no handler set for message",
		zap.String("dispatcher", d.name),
		zap.String("id", m.ID.String()),
		zap.String("device", m.DeviceName),
		zap.String("type", string(m.MessageType)),
	)
	return Message{}, ErrDrop
}

func (d *Dispatcher) processAndForward(h Handler, m Message) {
	result, err := safeHandle(h, m, d.log, d.name)
	if err != nil {
		if !errors.Is(err, ErrDrop) {
			d.log.Warn("handler rejected message, dropping",
				zap.String("dispatcher", d.name),
				zap.String("id", m.ID.String()),
				zap.String("device", m.DeviceName),
				zap.String("type", string(m.MessageType)),
				zap.Error(err),
			)
		}
		return
	}
	if d.output == nil {
		return
	}
	select {
	case d.output <- result:
	case <-d.forceCh:
	}
}

// safeHandle recovers from a panicking handler, converting it into a
// logged-and-dropped message rather than crashing the dispatcher goroutine.
// This is belt-and-braces: handlers are expected to return an error path
// (DecodingError and friends), never to panic.
func safeHandle(h Handler, m Message, log *zap.Logger, dispatcherName string) (result Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("handler panicked, dropping message",
				zap.String("dispatcher", dispatcherName),
				zap.String("id", m.ID.String()),
				zap.String("device", m.DeviceName),
				zap.Any("panic", r),
			)
			err = ErrDrop
		}
	}()
	return h(m)
}

func (d *Dispatcher) run() {
	defer close(d.doneCh)
	d.log.Debug("dispatcher started", zap.String("dispatcher", d.name))
	for {
		select {
		case <-d.forceCh:
			d.log.Debug("dispatcher force stopped", zap.String("dispatcher", d.name))
			return
		case <-d.gracefulCh:
			d.drain()
			d.log.Debug("dispatcher stopped", zap.String("dispatcher", d.name))
			return
		case m, open := <-d.input:
			if !open {
				return
			}
			d.dispatch(m)
		}
	}
}

// drain processes every message already buffered on the input channel
// without waiting for more, the rendering of "enqueue STOP, finish what's
// already queued, then exit".
func (d *Dispatcher) drain() {
	for {
		select {
		case m, open := <-d.input:
			if !open {
				return
			}
			d.dispatch(m)
		default:
			return
		}
	}
}

func (d *Dispatcher) dispatch(m Message) {
	found := false
	for _, rule := range d.rules {
		if !rule.When(m) {
			continue
		}
		if found {
			d.log.Warn("ignored: message matched more than one rule",
				zap.String("dispatcher", d.name),
				zap.String("id", m.ID.String()),
				zap.String("device", m.DeviceName),
				zap.String("type", string(m.MessageType)),
			)
			break
		}
		found = true
		d.processAndForward(rule.Handler, m)
	}
	if !found {
		d.processAndForward(d.defaultHandler, m)
	}
}

// StopGracefully signals the dispatcher to process everything already
// queued on Input, then exit, and blocks until it has.
func (d *Dispatcher) StopGracefully() {
	close(d.gracefulCh)
	<-d.doneCh
}

// ForceStop signals the dispatcher to exit at its next select, leaving any
// queued input unprocessed, and blocks until it has.
func (d *Dispatcher) ForceStop() {
	close(d.forceCh)
	<-d.doneCh
}

// Name returns the dispatcher's stable, log-correlation name.
func (d *Dispatcher) Name() string { return d.name }
