package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syntax-framework/stx/config"
)

// testSSEServer streams two frames once ready is closed, records every POST
type testSSEServer struct {
	mu       sync.Mutex
	posts    []*Envelope
	clientID string
	failures int // POSTs answered with 500
	ready    chan struct{}
}

func (s *testSSEServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		envelope := &Envelope{}
		if err := json.Unmarshal(body, envelope); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.posts = append(s.posts, envelope)
		fail := s.failures > 0 && envelope.Sequence != ControlSequence
		if fail {
			s.failures--
		}
		s.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)

	case http.MethodGet:
		flusher := w.(http.Flusher)
		s.mu.Lock()
		s.clientID = r.Header.Get(ClientIDHeader)
		s.mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		select {
		case <-s.ready:
		case <-r.Context().Done():
			return
		}
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "id: 1\n")
		fmt.Fprint(w, "data: {\"t\":\"room:1\",\n")
		fmt.Fprint(w, "data: \"e\":\"msg\",\"s\":0,\"p\":\"hi\"}\n\n")
		fmt.Fprint(w, "data: nope\n\n")
		flusher.Flush()
		<-r.Context().Done()
	}
}

func (s *testSSEServer) events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, envelope := range s.posts {
		out = append(out, envelope.Event)
	}
	return out
}

func TestSSETransport(t *testing.T) {
	server := &testSSEServer{ready: make(chan struct{}), failures: 1}
	srv := httptest.NewServer(server)
	defer srv.Close()

	cfg := config.Default()
	cfg.LiveServer = srv.URL

	errs := make(chan error, 10)
	conn, err := Open(cfg, WithErrorHandler(func(err error) { errs <- err }))
	require.NoError(t, err)

	ch, err := conn.Channel("room::1", map[string]interface{}{"user": "x"})
	require.NoError(t, err)
	assert.Equal(t, "room:1", ch.Topic())

	received := make(chan *Envelope, 1)
	ch.On("msg", func(envelope *Envelope) { received <- envelope })
	close(server.ready)

	select {
	case envelope := <-received:
		assert.Equal(t, "hi", envelope.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("inbound envelope not delivered")
	}
	select {
	case err := <-errs:
		assert.Contains(t, err.Error(), "[pubsub.envelope.decode]")
	case <-time.After(2 * time.Second):
		t.Fatal("malformed inbound not reported")
	}
	assert.Eventually(t, conn.Connected, time.Second, 5*time.Millisecond)

	// first attempt answered with 500, retried
	require.NoError(t, ch.Push(context.Background(), "save", map[string]interface{}{"a": 1}))
	require.NoError(t, conn.Shutdown())
	assert.False(t, conn.Connected())

	assert.ElementsMatch(t, []string{JoinEvent, "save", "save", LeaveEvent}, server.events())
	server.mu.Lock()
	assert.Equal(t, conn.ID, server.clientID)
	server.mu.Unlock()
}

func TestWebsocketTransport(t *testing.T) {
	upgrader := websocket.Upgrader{}
	inbound := make(chan *Envelope, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			envelope, err := MsgpackCodec{}.Decode(data)
			if err != nil {
				continue
			}
			inbound <- envelope
			if envelope.Event == "hello" {
				reply, _ := MsgpackCodec{}.Encode(&Envelope{Topic: envelope.Topic, Event: "welcome", Payload: "hi"})
				_ = ws.WriteMessage(websocket.BinaryMessage, reply)
			}
		}
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.LiveServer = srv.URL
	cfg.Transport = config.TransportWebsocket
	cfg.Push.Codec = config.CodecMsgpack

	// the join may be sent before the socket is open
	conn, err := Open(cfg, WithErrorHandler(func(error) {}))
	require.NoError(t, err)
	defer conn.Shutdown()

	ch, err := conn.Channel("lobby", nil)
	require.NoError(t, err)
	welcome := make(chan interface{}, 1)
	ch.On("welcome", func(envelope *Envelope) { welcome <- envelope.Payload })

	assert.Eventually(t, conn.Connected, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, ch.Push(context.Background(), "hello", "there"))

	for envelope := range inbound {
		if envelope.Event == "hello" {
			assert.Equal(t, "lobby", envelope.Topic)
			assert.Equal(t, int64(0), envelope.Sequence)
			assert.Equal(t, "there", envelope.Payload)
			break
		}
	}
	select {
	case payload := <-welcome:
		assert.Equal(t, "hi", payload)
	case <-time.After(2 * time.Second):
		t.Fatal("inbound envelope not delivered")
	}
}

func TestWebsocketURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8080/live", WebsocketURL("http://localhost:8080/live"))
	assert.Equal(t, "wss://example.com/live", WebsocketURL("https://example.com/live"))
	assert.Equal(t, "ws://x", WebsocketURL("ws://x"))
}
