// Package transport provides line-oriented connections to a chat server.
//
// A Conn sends and receives one newline-terminated line at a time. Two
// implementations share the same framing: raw TCP, and a WebSocket stream
// whose text frames carry the same bytes.
package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// DefaultConnectTimeout bounds how long Dial waits for the server.
const DefaultConnectTimeout = 10 * time.Second

// Transport kinds accepted by NewDialer.
const (
	KindTCP       = "tcp"
	KindWebSocket = "websocket"
)

// Endpoint identifies a chat server.
type Endpoint struct {
	Host string
	Port int
}

// Address returns the endpoint in host:port form.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	return e.Address()
}

// Conn is one live line-oriented connection.
// It is not safe for concurrent use: the chat protocol never has more than
// one line in flight.
type Conn interface {
	// ReadLine blocks until a complete line is received and returns it
	// without the trailing newline.
	ReadLine(ctx context.Context) (string, error)

	// WriteLine sends text followed by a single newline.
	WriteLine(ctx context.Context, text string) error

	// WriteMessage sends text followed by the blank-line end-of-message marker.
	WriteMessage(ctx context.Context, text string) error

	// Close closes the connection. It is safe to call more than once.
	Close() error

	// RemoteAddr returns the server's address for logging.
	RemoteAddr() string
}

// Dialer opens connections to an endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint Endpoint) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, endpoint Endpoint) (Conn, error)

// Dial calls f(ctx, endpoint).
func (f DialerFunc) Dial(ctx context.Context, endpoint Endpoint) (Conn, error) {
	return f(ctx, endpoint)
}

// NewDialer returns the dialer for the given transport kind.
// wsPath is only used by the WebSocket transport.
func NewDialer(kind string, timeout time.Duration, wsPath string) (Dialer, error) {
	switch kind {
	case "", KindTCP:
		return &TCPDialer{Timeout: timeout}, nil
	case KindWebSocket:
		return &WebSocketDialer{Timeout: timeout, Path: wsPath}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}
