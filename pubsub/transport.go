package pubsub

import (
	"context"
	"strings"
	"time"

	"github.com/syntax-framework/stx/cmn"
)

var errorTransportSend = cmn.ErrOf(
	cmn.ErrTransport,
	"pubsub.transport.send",
	"The message could not be delivered.", "URL: %s", "Caused by: %v",
)

var errorTransportStatus = cmn.ErrOf(
	cmn.ErrTransport,
	"pubsub.transport.status",
	"Unexpected response status.", "URL: %s", "Status: %d",
)

var errorTransportNotConnected = cmn.ErrOf(
	cmn.ErrTransport,
	"pubsub.transport.disconnected",
	"The transport is not connected.", "URL: %s",
)

var errorTransportClosed = cmn.ErrOf(
	cmn.ErrTransport,
	"pubsub.transport.closed",
	"The transport is closed.", "URL: %s",
)

// DefaultReconnectDelay wait before reopening a broken server-push stream
const DefaultReconnectDelay = time.Second

// ClientIDHeader identifies the connection on the server, on the stream and on every push
const ClientIDHeader = "X-Stx-Client"

// Transport the shared server-push connection
type Transport interface {
	// Connect starts receiving in background until Close. Inbound frames are passed to receive, the connection state
	// changes to state. Both are called from the transport goroutine.
	Connect(receive func(data []byte), state func(connected bool)) error
	// Send delivers one outbound frame, a single attempt
	Send(ctx context.Context, data []byte) error
	Close() error
}

// sleep waits for the delay, returns false when the context is done first
func sleep(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// WebsocketURL converts http(s):// into ws(s)://
func WebsocketURL(url string) string {
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	if strings.HasPrefix(url, "http://") {
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}
