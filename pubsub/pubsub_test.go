package pubsub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syntax-framework/stx/cmn"
	"github.com/syntax-framework/stx/config"
	"github.com/syntax-framework/stx/loop"
)

// testTransport records the sent envelopes, pushes and control envelopes apart
type testTransport struct {
	mu       sync.Mutex
	pushes   []*Envelope
	controls []*Envelope
	fail     func(attempt int) bool
	block    chan struct{}
	receive  func(data []byte)
	state    func(connected bool)
	closed   bool
}

func (t *testTransport) Connect(receive func(data []byte), state func(connected bool)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receive = receive
	t.state = state
	return nil
}

func (t *testTransport) Send(ctx context.Context, data []byte) error {
	envelope, err := JSONCodec{}.Decode(data)
	if err != nil {
		return err
	}
	t.mu.Lock()
	if envelope.Sequence == ControlSequence {
		t.controls = append(t.controls, envelope)
		t.mu.Unlock()
		return nil
	}
	t.pushes = append(t.pushes, envelope)
	fail := t.fail != nil && t.fail(len(t.pushes))
	block := t.block
	t.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail {
		return errors.New("connection refused")
	}
	return nil
}

func (t *testTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *testTransport) sequences() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []int64
	for _, envelope := range t.pushes {
		out = append(out, envelope.Sequence)
	}
	return out
}

func (t *testTransport) controlEvents() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, envelope := range t.controls {
		out = append(out, envelope.Event)
	}
	return out
}

func testOpen(t *testing.T, transport Transport, opts ...Option) *Connection {
	conn, err := Open(config.Default(), append([]Option{WithTransport(transport)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Shutdown() })
	return conn
}

func TestNormalizeTopic(t *testing.T) {
	valid := []struct{ input, expected string }{
		{"a::b", "a:b"},
		{"room:1", "room:1"},
		{"a:::b", "a:b"},
		{" chat / lobby ", "chatlobby"},
		{"user-1_x", "user-1_x"},
		{"a:", "a"},
		{":a", "a"},
		{"!:a", "a"},
		{"::a:b::", "a:b"},
	}
	for _, tt := range valid {
		topic, err := NormalizeTopic(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.expected, topic)
	}

	for _, input := range []string{"", "!!!", ":", "::", "!:!", "a:b:c", "a::b::c"} {
		_, err := NormalizeTopic(input)
		require.Error(t, err, input)
		assert.True(t, errors.Is(err, cmn.ErrValidation), input)
	}
}

func TestJSONCodec(t *testing.T) {
	codec := JSONCodec{}
	data, err := codec.Encode(&Envelope{Topic: "room:1", Event: "msg", Sequence: 0, Payload: map[string]int{"a": 1}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"t":"room:1","e":"msg","s":0,"p":{"a":1}}`, string(data))

	envelope, err := codec.Decode([]byte(`{"t":"room::1","e":"msg","s":3}`))
	require.NoError(t, err)
	assert.Equal(t, "room:1", envelope.Topic)
	assert.Equal(t, int64(3), envelope.Sequence)

	for _, malformed := range []string{"nope", `{"t":"","e":"x"}`, `{"t":"a:b:c"}`} {
		_, err = codec.Decode([]byte(malformed))
		assert.True(t, errors.Is(err, cmn.ErrValidation), malformed)
	}
}

func TestMsgpackCodec(t *testing.T) {
	codec := MsgpackCodec{}
	data, err := codec.Encode(&Envelope{Topic: "room:1", Event: "msg", Sequence: 7, Payload: "hi"})
	require.NoError(t, err)

	envelope, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, &Envelope{Topic: "room:1", Event: "msg", Sequence: 7, Payload: "hi"}, envelope)

	_, err = codec.Decode([]byte{0xc1})
	assert.True(t, errors.Is(err, cmn.ErrValidation))
}

func TestOpen_Errors(t *testing.T) {
	cfg := config.Default()
	cfg.Push.Codec = config.CodecMsgpack
	_, err := Open(cfg)
	assert.True(t, errors.Is(err, cmn.ErrConfig), "sse carries text frames only")

	cfg = config.Default()
	cfg.Transport = "pigeon"
	_, err = Open(cfg)
	assert.True(t, errors.Is(err, cmn.ErrConfig))

	cfg = config.Default()
	cfg.Push.Codec = "xml"
	_, err = Open(cfg)
	assert.True(t, errors.Is(err, cmn.ErrConfig))
}

func TestChannel_InvalidTopic(t *testing.T) {
	conn := testOpen(t, &testTransport{})
	_, err := conn.Channel("a:b:c", nil)
	assert.True(t, errors.Is(err, cmn.ErrValidation))
	assert.Empty(t, conn.Channels())
}

func TestPush_SequenceIsAssignedOncePerPush(t *testing.T) {
	// the first attempt of every push fails
	transport := &testTransport{fail: func(attempt int) bool { return attempt%2 == 1 }}
	conn := testOpen(t, transport)
	ch, err := conn.Channel("room:1", nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, ch.Push(context.Background(), "msg", i))
	}
	assert.Equal(t, []int64{0, 0, 1, 1, 2, 2, 3, 3, 4, 4}, transport.sequences())
}

func TestPush_RetryBound(t *testing.T) {
	transport := &testTransport{fail: func(int) bool { return true }}
	conn := testOpen(t, transport)
	ch, err := conn.Channel("room", nil)
	require.NoError(t, err)

	err = ch.Push(context.Background(), "msg", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, cmn.ErrTransport))
	assert.Contains(t, err.Error(), "[pubsub.push.failed]")
	assert.Len(t, transport.sequences(), 4, "maxRetries + 1 attempts")

	err = ch.Push(context.Background(), "msg", nil, WithMaxRetries(0))
	assert.True(t, errors.Is(err, cmn.ErrTransport))
	assert.Equal(t, []int64{0, 0, 0, 0, 1}, transport.sequences())
}

func TestPush_Backoff(t *testing.T) {
	transport := &testTransport{fail: func(attempt int) bool { return attempt == 1 }}
	conn := testOpen(t, transport)
	ch, err := conn.Channel("room", nil)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, ch.Push(context.Background(), "msg", nil, WithBackoff(30*time.Millisecond)))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Len(t, transport.sequences(), 2)
}

func TestPush_Timeout(t *testing.T) {
	transport := &testTransport{block: make(chan struct{})}
	conn := testOpen(t, transport)
	ch, err := conn.Channel("room", nil)
	require.NoError(t, err)

	err = ch.Push(context.Background(), "msg", nil, WithTimeout(20*time.Millisecond))
	require.Error(t, err)
	assert.True(t, errors.Is(err, cmn.ErrTimeout))
	assert.Contains(t, err.Error(), "TIMEOUT")

	// the request was not canceled, it completes later without retries
	close(transport.block)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, transport.sequences(), 1)
}

func TestPush_Canceled(t *testing.T) {
	transport := &testTransport{block: make(chan struct{})}
	conn := testOpen(t, transport)
	ch, err := conn.Channel("room", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = ch.Push(ctx, "msg", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInbound_Routing(t *testing.T) {
	transport := &testTransport{}
	l := loop.New()
	var reported []error
	conn := testOpen(t, transport, WithDispatcher(l), WithErrorHandler(func(err error) {
		reported = append(reported, err)
	}))

	room1, err := conn.Channel("room:1", nil)
	require.NoError(t, err)
	room2, err := conn.Channel("room:2", nil)
	require.NoError(t, err)

	var log []string
	room1.On("msg", func(envelope *Envelope) {
		log = append(log, "room1 msg "+envelope.Payload.(string))
	})
	room1.On("msg", func(envelope *Envelope) {
		panic("listener bug")
	})
	room1.On(Wildcard, func(envelope *Envelope) {
		log = append(log, "room1 * "+envelope.Event)
	})
	room2.On(Wildcard, func(envelope *Envelope) {
		log = append(log, "room2 * "+envelope.Event)
	})

	transport.receive([]byte(`{"t":"room:1","e":"msg","s":0,"p":"hi"}`))
	transport.receive([]byte(`not json`))
	assert.Empty(t, log, "delivered through the dispatcher")

	l.Drain()
	assert.Equal(t, []string{"room1 msg hi", "room1 * msg"}, log)
	require.Len(t, reported, 2)
	assert.True(t, errors.Is(reported[0], cmn.ErrValidation), "malformed payload")
	assert.True(t, errors.Is(reported[1], cmn.ErrCallback), "listener panic")
}

func TestChannel_Close(t *testing.T) {
	transport := &testTransport{}
	conn := testOpen(t, transport)
	ch, err := conn.Channel("room", map[string]interface{}{"user": "x"})
	require.NoError(t, err)

	closed := 0
	ch.OnClose(func() { closed++ })
	received := 0
	ch.On(Wildcard, func(*Envelope) { received++ })

	ch.Close()
	ch.Close()
	assert.Equal(t, 1, closed)
	assert.True(t, ch.Closed())
	assert.Empty(t, conn.Channels())

	transport.receive([]byte(`{"t":"room","e":"msg","s":0}`))
	assert.Equal(t, 0, received)

	err = ch.Push(context.Background(), "msg", nil)
	assert.True(t, errors.Is(err, cmn.ErrValidation))

	// join and leave are sent in background
	assert.Eventually(t, func() bool {
		return len(transport.controlEvents()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{JoinEvent, LeaveEvent}, transport.controlEvents())
}

func TestConnection_State(t *testing.T) {
	transport := &testTransport{}
	conn := testOpen(t, transport)
	_, err := conn.Channel("room", nil)
	require.NoError(t, err)

	var states []bool
	remove := conn.OnState(func(connected bool) { states = append(states, connected) })

	transport.state(true)
	transport.state(true)
	assert.True(t, conn.Connected())
	remove()
	transport.state(false)

	assert.Equal(t, []bool{true}, states)
	assert.False(t, conn.Connected())
}

func TestDefault_Shutdown(t *testing.T) {
	transport := &testTransport{}
	first, err := Default(config.Default(), WithTransport(transport))
	require.NoError(t, err)
	same, err := Default(nil)
	require.NoError(t, err)
	assert.Same(t, first, same)

	_, err = first.Channel("room", nil)
	require.NoError(t, err)

	require.NoError(t, Shutdown())
	assert.True(t, transport.closed)
	assert.Empty(t, first.Channels())
	_, err = first.Channel("room", nil)
	assert.Error(t, err)

	second, err := Default(config.Default(), WithTransport(&testTransport{}))
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	require.NoError(t, Shutdown())
}
