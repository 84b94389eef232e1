package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/golang/glog"
	"github.com/syntax-framework/stx/cmn"
)

var errorPushFailed = cmn.ErrOf(
	cmn.ErrTransport,
	"pubsub.push.failed",
	"Push failed after all attempts.", "Topic: %s", "Event: %s", "Sequence: %d", "Attempts: %d", "Caused by: %v",
)

var errorPushTimeout = cmn.ErrOf(
	cmn.ErrTimeout,
	"pubsub.push.timeout",
	"TIMEOUT", "Topic: %s", "Event: %s", "Sequence: %d", "Timeout: %s",
)

var errorChannelClosed = cmn.ErrOf(
	cmn.ErrValidation,
	"pubsub.channel.closed",
	"The channel is closed.", "Topic: %s",
)

var errorListenerPanic = cmn.ErrOf(
	cmn.ErrCallback,
	"pubsub.listener",
	"Channel listener failed.", "Topic: %s", "Event: %s", "Caused by: %v",
)

// Wildcard listens every event of the topic
const Wildcard = "*"

// Listener receives the inbound envelopes of a channel
type Listener func(envelope *Envelope)

type listenerEntry struct {
	listener Listener
}

// PushOption overrides the push configuration for one call
type PushOption func(o *pushOptions)

type pushOptions struct {
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
}

// WithTimeout rejects with TIMEOUT when the delivery has not settled in time. The request is not canceled.
func WithTimeout(timeout time.Duration) PushOption {
	return func(o *pushOptions) {
		o.timeout = timeout
	}
}

// WithMaxRetries additional attempts after a transport failure
func WithMaxRetries(maxRetries int) PushOption {
	return func(o *pushOptions) {
		o.maxRetries = maxRetries
	}
}

// WithBackoff wait between attempts
func WithBackoff(backoff time.Duration) PushOption {
	return func(o *pushOptions) {
		o.backoff = backoff
	}
}

// Channel one logical topic over the shared connection
type Channel struct {
	conn     *Connection
	topic    string
	params   map[string]interface{}
	sequence atomic.Int64
	closed   atomic.Bool

	mu        sync.Mutex
	listeners map[string][]*listenerEntry
	onClose   []func()
}

// Topic the normalized topic
func (ch *Channel) Topic() string {
	return ch.topic
}

// Params the params informed on creation, sent on join
func (ch *Channel) Params() map[string]interface{} {
	return ch.params
}

// Closed reports whether Close was called
func (ch *Channel) Closed() bool {
	return ch.closed.Load()
}

// On listens an event of the topic, `*` listens all of them. Listeners run in registration order, event listeners
// before wildcard ones.
func (ch *Channel) On(event string, listener Listener) (remove func()) {
	entry := &listenerEntry{listener: listener}
	ch.mu.Lock()
	ch.listeners[event] = append(ch.listeners[event], entry)
	ch.mu.Unlock()

	return func() {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		entries := ch.listeners[event]
		for i, e := range entries {
			if e == entry {
				ch.listeners[event] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

// OnClose called once, when the channel is closed
func (ch *Channel) OnClose(listener func()) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.onClose = append(ch.onClose, listener)
}

func (ch *Channel) emit(envelope *Envelope) {
	if ch.closed.Load() {
		return
	}
	ch.mu.Lock()
	var entries []*listenerEntry
	entries = append(entries, ch.listeners[envelope.Event]...)
	if envelope.Event != Wildcard {
		entries = append(entries, ch.listeners[Wildcard]...)
	}
	ch.mu.Unlock()

	for _, entry := range entries {
		ch.call(entry.listener, envelope)
	}
}

func (ch *Channel) call(listener Listener, envelope *Envelope) {
	defer func() {
		if r := recover(); r != nil {
			ch.conn.report(errorListenerPanic(ch.topic, envelope.Event, cmn.Recovered(r)))
		}
	}()
	listener(envelope)
}

// Push sends an event to the server. The envelope gets the next sequence of the channel, once per call, retries
// resend the same envelope. Returns a transport error when every attempt failed, or a timeout error when the
// timeout elapses first.
func (ch *Channel) Push(ctx context.Context, event string, payload interface{}, opts ...PushOption) error {
	if ch.closed.Load() {
		return errorChannelClosed(ch.topic)
	}

	cfg := ch.conn.cfg
	o := &pushOptions{
		timeout:    cfg.PushTimeout(),
		maxRetries: cfg.Push.MaxRetries,
		backoff:    cfg.PushBackoff(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.maxRetries < 0 {
		o.maxRetries = 0
	}

	envelope := &Envelope{
		Topic:    ch.topic,
		Event:    event,
		Sequence: ch.sequence.Add(1) - 1,
		Payload:  payload,
	}
	data, err := ch.conn.codec.Encode(envelope)
	if err != nil {
		return err
	}

	result := make(chan error, 1)
	go func() {
		result <- ch.deliver(ctx, envelope, data, o)
	}()

	var timeout <-chan time.Time
	if o.timeout > 0 {
		timer := time.NewTimer(o.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	m := ch.conn.metrics
	select {
	case err = <-result:
		if err != nil {
			m.results.WithLabelValues("failed").Inc()
		} else {
			m.results.WithLabelValues("ok").Inc()
		}
		return err
	case <-timeout:
		// the delivery keeps going, its late result is discarded
		m.results.WithLabelValues("timeout").Inc()
		return errorPushTimeout(ch.topic, event, envelope.Sequence, o.timeout)
	case <-ctx.Done():
		m.results.WithLabelValues("canceled").Inc()
		return ctx.Err()
	}
}

// deliver an explicit bounded loop, maxRetries + 1 attempts at most
func (ch *Channel) deliver(ctx context.Context, envelope *Envelope, data []byte, o *pushOptions) error {
	var err error
	attempts := 0
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 && !sleep(ctx, o.backoff) {
			break
		}
		attempts++
		ch.conn.metrics.attempts.Inc()
		if err = ch.conn.transport.Send(ctx, data); err == nil {
			return nil
		}
		log.V(2).Infof("Push attempt failed. topic: %s, event: %s, sequence: %d, attempt: %d, cause: %v",
			envelope.Topic, envelope.Event, envelope.Sequence, attempts, err)
	}
	if err == nil {
		err = ctx.Err()
	}
	return errorPushFailed(envelope.Topic, envelope.Event, envelope.Sequence, attempts, err)
}

// Close unregisters the channel, sends a best-effort leave envelope and notifies the close listeners
func (ch *Channel) Close() {
	if !ch.closed.CompareAndSwap(false, true) {
		return
	}
	ch.conn.unregister(ch)
	ch.conn.control(ch, LeaveEvent, nil)

	ch.mu.Lock()
	listeners := ch.onClose
	ch.onClose = nil
	ch.listeners = map[string][]*listenerEntry{}
	ch.mu.Unlock()

	for _, listener := range listeners {
		listener()
	}
}
