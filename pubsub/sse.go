package pubsub

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	log "github.com/golang/glog"
)

// SSETransport receives with Server-Sent Events (GET stream) and sends with POST, both against the same URL.
//
// https://html.spec.whatwg.org/multipage/server-sent-events.html
type SSETransport struct {
	URL            string
	ClientID       string
	Codec          Codec
	Client         *http.Client
	ReconnectDelay time.Duration

	mu          sync.Mutex
	cancel      context.CancelFunc
	closed      bool
	wg          sync.WaitGroup
	lastEventID string
}

func (t *SSETransport) client() *http.Client {
	if t.Client != nil {
		return t.Client
	}
	return http.DefaultClient
}

func (t *SSETransport) Connect(receive func(data []byte), state func(connected bool)) error {
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
	go t.run(ctx, receive, state)
	return nil
}

func (t *SSETransport) run(ctx context.Context, receive func(data []byte), state func(connected bool)) {
	defer t.wg.Done()
	for {
		err := t.stream(ctx, receive, state)
		if ctx.Err() != nil {
			return
		}
		delay := t.reconnectDelay()
		log.Warningf("Server-push stream interrupted, reconnecting. url: %s, delay: %s, cause: %v", t.URL, delay, err)
		if !sleep(ctx, delay) {
			return
		}
	}
}

func (t *SSETransport) reconnectDelay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ReconnectDelay > 0 {
		return t.ReconnectDelay
	}
	return DefaultReconnectDelay
}

// stream reads one server-push response until it ends
func (t *SSETransport) stream(ctx context.Context, receive func(data []byte), state func(connected bool)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set(ClientIDHeader, t.ClientID)
	t.mu.Lock()
	if t.lastEventID != "" {
		req.Header.Set("Last-Event-ID", t.lastEventID)
	}
	t.mu.Unlock()

	resp, err := t.client().Do(req)
	if err != nil {
		return errorTransportSend(t.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errorTransportStatus(t.URL, resp.StatusCode)
	}

	state(true)
	defer state(false)

	reader := bufio.NewReader(resp.Body)
	data := &bytes.Buffer{}
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				return errorTransportNotConnected(t.URL)
			}
			return err
		}
		line = bytes.TrimRight(line, "\r\n")

		if len(line) == 0 {
			// dispatch the event
			if data.Len() > 0 {
				frame := make([]byte, data.Len())
				copy(frame, data.Bytes())
				data.Reset()
				receive(frame)
			}
			continue
		}
		if line[0] == ':' {
			// comment, keep-alive
			continue
		}

		field, value := line, []byte(nil)
		if i := bytes.IndexByte(line, ':'); i >= 0 {
			field, value = line[:i], bytes.TrimPrefix(line[i+1:], []byte(" "))
		}
		switch string(field) {
		case "data":
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.Write(value)
		case "id":
			t.mu.Lock()
			t.lastEventID = string(value)
			t.mu.Unlock()
		case "retry":
			if ms, err := strconv.Atoi(string(value)); err == nil && ms > 0 {
				t.mu.Lock()
				t.ReconnectDelay = time.Duration(ms) * time.Millisecond
				t.mu.Unlock()
			}
		}
	}
}

func (t *SSETransport) Send(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(data))
	if err != nil {
		return errorTransportSend(t.URL, err)
	}
	req.Header.Set("Content-Type", t.Codec.ContentType())
	req.Header.Set(ClientIDHeader, t.ClientID)

	resp, err := t.client().Do(req)
	if err != nil {
		return errorTransportSend(t.URL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorTransportStatus(t.URL, resp.StatusCode)
	}
	return nil
}

func (t *SSETransport) Close() error {
	t.mu.Lock()
	t.closed = true
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
	return nil
}
