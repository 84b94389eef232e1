package pubsub

import (
	"context"
	"net/http"
	"sync"
	"time"

	log "github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// WebsocketTransport a single socket carries both directions. Reconnects while not closed.
type WebsocketTransport struct {
	URL            string
	ClientID       string
	Codec          Codec
	Dialer         *websocket.Dialer
	ReconnectDelay time.Duration

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

func (t *WebsocketTransport) dialer() *websocket.Dialer {
	if t.Dialer != nil {
		return t.Dialer
	}
	return &websocket.Dialer{HandshakeTimeout: 45 * time.Second}
}

func (t *WebsocketTransport) Connect(receive func(data []byte), state func(connected bool)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errorTransportClosed(t.URL)
	}
	if t.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.wg.Add(1)
	go t.connectLoop(ctx, receive, state)
	return nil
}

// connectLoop manages the connection with reconnection logic
func (t *WebsocketTransport) connectLoop(ctx context.Context, receive func(data []byte), state func(connected bool)) {
	defer t.wg.Done()

	delay := t.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}

	for {
		if ctx.Err() != nil {
			return
		}

		headers := http.Header{}
		headers.Set(ClientIDHeader, t.ClientID)
		conn, _, err := t.dialer().DialContext(ctx, t.URL, headers)
		if err != nil {
			log.Warningf("Websocket dial failed, reconnecting. url: %s, delay: %s, cause: %v", t.URL, delay, err)
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			_ = conn.Close()
			return
		}
		t.conn = conn
		t.mu.Unlock()

		state(true)
		err = t.readLoop(conn, receive)
		state(false)

		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		log.Warningf("Websocket connection lost, reconnecting. url: %s, delay: %s, cause: %v", t.URL, delay, err)
		if !sleep(ctx, delay) {
			return
		}
	}
}

// readLoop reads messages until disconnect
func (t *WebsocketTransport) readLoop(conn *websocket.Conn, receive func(data []byte)) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		receive(message)
	}
}

func (t *WebsocketTransport) Send(ctx context.Context, data []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return errorTransportNotConnected(t.URL)
	}

	messageType := websocket.TextMessage
	if t.Codec.Binary() {
		messageType = websocket.BinaryMessage
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	// zero deadline when the context has none
	deadline, _ := ctx.Deadline()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return errorTransportSend(t.URL, err)
	}
	if err := conn.WriteMessage(messageType, data); err != nil {
		return errorTransportSend(t.URL, err)
	}
	return nil
}

func (t *WebsocketTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	cancel := t.cancel
	conn := t.conn
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		t.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.writeMu.Unlock()
		// unblocks ReadMessage
		_ = conn.Close()
	}
	t.wg.Wait()
	return nil
}
