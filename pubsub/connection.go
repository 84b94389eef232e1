// Package pubsub multiplexes logical topics over one shared server-push connection. Channels push envelopes
// `{t: topic, e: event, s: sequence, p: payload}` to the server, retried on transport failures, and receive the
// envelopes the server streams for their topic.
package pubsub

import (
	"context"
	"net/http"
	"sync"
	"time"

	log "github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/syntax-framework/stx/cmn"
	"github.com/syntax-framework/stx/config"
)

var errorConnectionClosed = cmn.ErrOf(
	cmn.ErrValidation,
	"pubsub.connection.closed",
	"The connection is shut down.", "Client: %s",
)

var errorTransportCodec = cmn.ErrOf(
	cmn.ErrConfig,
	"pubsub.transport.codec",
	"The transport does not support the codec.", "Transport: %s", "Codec: %s",
)

var errorTransportName = cmn.ErrOf(
	cmn.ErrConfig,
	"pubsub.transport.name",
	"Unknown transport.", "Name: %s",
)

// Dispatcher runs inbound deliveries on the control thread, *loop.Loop is the default implementation
type Dispatcher interface {
	Post(task func())
}

// Option configures a Connection
type Option func(c *Connection)

// WithTransport replaces the transport created from the configuration
func WithTransport(transport Transport) Option {
	return func(c *Connection) {
		c.transport = transport
	}
}

// WithDispatcher delivers inbound envelopes and state changes through the dispatcher
func WithDispatcher(dispatcher Dispatcher) Option {
	return func(c *Connection) {
		c.dispatcher = dispatcher
	}
}

// WithRegisterer registers the connection metrics, a private registry is used otherwise
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Connection) {
		c.registerer = reg
	}
}

// WithHTTPClient the client used by the SSE transport
func WithHTTPClient(client *http.Client) Option {
	return func(c *Connection) {
		c.httpClient = client
	}
}

// WithErrorHandler receives the non-fatal errors: malformed inbound payloads, failing listeners, failed leaves
func WithErrorHandler(handler func(err error)) Option {
	return func(c *Connection) {
		c.onError = handler
	}
}

// Connection the shared server-push connection and the registry of its channels
type Connection struct {
	ID string // client id, sent on every request

	cfg        *config.Config
	codec      Codec
	transport  Transport
	dispatcher Dispatcher
	httpClient *http.Client
	registerer prometheus.Registerer
	onError    func(err error)
	metrics    *metrics

	connectOnce sync.Once
	connectErr  error
	pending     sync.WaitGroup // best-effort control envelopes in flight

	mu        sync.Mutex
	channels  []*Channel
	listeners map[int]func(connected bool)
	listenerN int
	connected bool
	closed    bool
}

// Open creates a connection. The transport is only connected when the first channel is requested.
func Open(cfg *config.Config, opts ...Option) (*Connection, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	codec, err := CodecByName(cfg.Push.Codec)
	if err != nil {
		return nil, err
	}

	c := &Connection{
		ID:        uuid.NewString(),
		cfg:       cfg,
		codec:     codec,
		listeners: map[int]func(connected bool){},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registerer == nil {
		c.registerer = prometheus.NewRegistry()
	}
	c.metrics = newMetrics(c.registerer)

	if c.transport == nil {
		switch cfg.Transport {
		case "", config.TransportSSE:
			if codec.Binary() {
				return nil, errorTransportCodec(config.TransportSSE, codec.Name())
			}
			c.transport = &SSETransport{URL: cfg.LiveURL(), ClientID: c.ID, Codec: codec, Client: c.httpClient}
		case config.TransportWebsocket:
			c.transport = &WebsocketTransport{URL: WebsocketURL(cfg.LiveURL()), ClientID: c.ID, Codec: codec}
		default:
			return nil, errorTransportName(cfg.Transport)
		}
	}
	return c, nil
}

// Codec the envelope codec of this connection
func (c *Connection) Codec() Codec {
	return c.codec
}

// Channel creates a channel for the topic, connecting the transport on first use. The topic is normalized, an
// invalid topic is a validation error.
func (c *Connection) Channel(topic string, params map[string]interface{}) (*Channel, error) {
	normalized, err := NormalizeTopic(topic)
	if err != nil {
		return nil, err
	}

	c.connectOnce.Do(func() {
		c.connectErr = c.transport.Connect(c.receive, c.setState)
	})
	if c.connectErr != nil {
		return nil, c.connectErr
	}

	ch := &Channel{
		conn:      c,
		topic:     normalized,
		params:    params,
		listeners: map[string][]*listenerEntry{},
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errorConnectionClosed(c.ID)
	}
	c.channels = append(c.channels, ch)
	c.mu.Unlock()
	c.metrics.channels.Inc()

	c.control(ch, JoinEvent, params)
	return ch, nil
}

// Channels the open channels, in creation order
func (c *Connection) Channels() []*Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Channel{}, c.channels...)
}

func (c *Connection) unregister(ch *Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, other := range c.channels {
		if other == ch {
			c.channels = append(c.channels[:i], c.channels[i+1:]...)
			c.metrics.channels.Dec()
			return
		}
	}
}

// control sends a join or leave envelope, a single attempt in background. Failures are reported, never returned.
func (c *Connection) control(ch *Channel, event string, payload interface{}) {
	data, err := c.codec.Encode(&Envelope{Topic: ch.topic, Event: event, Sequence: ControlSequence, Payload: payload})
	if err != nil {
		c.report(err)
		return
	}
	timeout := c.cfg.PushTimeout()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := c.transport.Send(ctx, data); err != nil {
			log.Warningf("Control envelope not delivered. topic: %s, event: %s, cause: %v", ch.topic, event, err)
			c.report(err)
		}
	}()
}

// receive routes an inbound frame to the channels of its topic
func (c *Connection) receive(data []byte) {
	c.metrics.inbound.Inc()
	envelope, err := c.codec.Decode(data)
	if err != nil {
		c.metrics.decodeFailures.Inc()
		c.report(err)
		return
	}
	log.V(2).Infof("Inbound envelope. topic: %s, event: %s, sequence: %d", envelope.Topic, envelope.Event, envelope.Sequence)

	c.mu.Lock()
	var targets []*Channel
	for _, ch := range c.channels {
		if ch.topic == envelope.Topic {
			targets = append(targets, ch)
		}
	}
	c.mu.Unlock()

	for _, ch := range targets {
		ch := ch
		c.dispatch(func() {
			ch.emit(envelope)
		})
	}
}

func (c *Connection) setState(connected bool) {
	c.mu.Lock()
	if c.connected == connected {
		c.mu.Unlock()
		return
	}
	c.connected = connected
	listeners := make([]func(bool), 0, len(c.listeners))
	for i := 0; i < c.listenerN; i++ {
		if listener, exists := c.listeners[i]; exists {
			listeners = append(listeners, listener)
		}
	}
	c.mu.Unlock()

	if connected {
		c.metrics.connected.Set(1)
	} else {
		c.metrics.connected.Set(0)
	}
	for _, listener := range listeners {
		listener := listener
		c.dispatch(func() {
			listener(connected)
		})
	}
}

// Connected whether the server-push transport is currently connected
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// OnState listens the connection state changes, used to fire onConnect and onDisconnect of the instances
func (c *Connection) OnState(listener func(connected bool)) (remove func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.listenerN
	c.listenerN++
	c.listeners[id] = listener
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Connection) dispatch(task func()) {
	if c.dispatcher != nil {
		c.dispatcher.Post(task)
		return
	}
	task()
}

func (c *Connection) report(err error) {
	if c.onError != nil {
		c.onError(err)
		return
	}
	log.Errorf("Whoops, something bad happened! client: %s, cause: %v", c.ID, err)
}

// Shutdown closes every channel and then the transport. The connection cannot be used afterwards.
func (c *Connection) Shutdown() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	channels := append([]*Channel{}, c.channels...)
	c.mu.Unlock()

	for _, ch := range channels {
		ch.Close()
	}
	c.pending.Wait()
	err := c.transport.Close()
	c.setState(false)
	return err
}

var (
	defaultMu         sync.Mutex
	defaultConnection *Connection
)

// Default the process-wide connection, created on first use. Later calls ignore the arguments.
func Default(cfg *config.Config, opts ...Option) (*Connection, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultConnection != nil {
		return defaultConnection, nil
	}
	c, err := Open(cfg, opts...)
	if err != nil {
		return nil, err
	}
	defaultConnection = c
	return c, nil
}

// Shutdown shuts the process-wide connection down, the next Default call creates a new one
func Shutdown() error {
	defaultMu.Lock()
	c := defaultConnection
	defaultConnection = nil
	defaultMu.Unlock()
	if c == nil {
		return nil
	}
	return c.Shutdown()
}
