package transport

import (
	"context"
	"errors"
	"io"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lawnchairsociety/minechat/internal/protocol"
)

// DefaultWebSocketPath is the endpoint path of the chat WebSocket gateway.
const DefaultWebSocketPath = "/ws"

// closeGracePeriod bounds how long Close waits to deliver the close frame.
const closeGracePeriod = time.Second

// WebSocketDialer opens connections through a WebSocket gateway.
// Frames carry the raw protocol bytes, so line framing is the same as TCP.
type WebSocketDialer struct {
	// Timeout bounds the handshake. Zero means DefaultConnectTimeout.
	Timeout time.Duration
	// Path is the gateway path. Empty means DefaultWebSocketPath.
	Path string
}

// Dial connects to ws://host:port/path.
func (d *WebSocketDialer) Dial(ctx context.Context, endpoint Endpoint) (Conn, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	path := d.Path
	if path == "" {
		path = DefaultWebSocketPath
	}

	u := url.URL{Scheme: "ws", Host: endpoint.Address(), Path: path}
	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}

	ws, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, protocol.NewError(protocol.KindCanceled, "dial", ctxErr)
		}
		return nil, protocol.NewError(protocol.KindConnect, "dial", err)
	}

	stream := &wsStream{ws: ws}
	return newLineConn(ws.NetConn(), stream, stream, stream.Close), nil
}

// wsStream presents a WebSocket connection as a byte stream.
// Each Write becomes one text frame; Read concatenates incoming frames.
type wsStream struct {
	ws *websocket.Conn
	r  io.Reader
}

func (s *wsStream) Read(p []byte) (int, error) {
	for {
		if s.r == nil {
			_, r, err := s.ws.NextReader()
			if err != nil {
				var closeErr *websocket.CloseError
				if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
					return 0, io.EOF
				}
				return 0, err
			}
			s.r = r
		}

		n, err := s.r.Read(p)
		if errors.Is(err, io.EOF) {
			s.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *wsStream) Write(p []byte) (int, error) {
	if err := s.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close frame and closes the underlying connection.
func (s *wsStream) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
	return s.ws.Close()
}
