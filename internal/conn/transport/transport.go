// Package transport provides the two channel primitives the connection
// manager orchestrates: a WebSocket push channel and an HTTP polling
// fallback.
package transport

import (
	"context"
	"strings"
)

// Callbacks receive push-channel events. OnMessage fires per payload;
// OnError reports a non-fatal channel error; OnClose fires once when the
// channel dies, with the error that killed it (nil for a local close).
type Callbacks struct {
	OnMessage func(payload []byte)
	OnError   func(err error)
	OnClose   func(err error)
}

// PushConn is an open push channel.
type PushConn interface {
	Close() error
}

// PushTransport opens persistent, server-initiated data channels.
type PushTransport interface {
	Open(ctx context.Context, url string, cb Callbacks) (PushConn, error)
}

// PullTransport fetches the current payload on demand.
type PullTransport interface {
	Fetch(ctx context.Context, endpoint string) ([]byte, error)
}

// PollEndpoint derives the HTTP polling endpoint from a push URL by
// swapping the scheme. Non-websocket URLs pass through unchanged.
func PollEndpoint(url string) string {
	switch {
	case strings.HasPrefix(url, "wss://"):
		return "https://" + strings.TrimPrefix(url, "wss://")
	case strings.HasPrefix(url, "ws://"):
		return "http://" + strings.TrimPrefix(url, "ws://")
	default:
		return url
	}
}
