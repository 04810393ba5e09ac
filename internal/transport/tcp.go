package transport

import (
	"context"
	"net"
	"time"

	"github.com/lawnchairsociety/minechat/internal/protocol"
)

// TCPDialer opens raw TCP connections.
type TCPDialer struct {
	// Timeout bounds connection establishment. Zero means DefaultConnectTimeout.
	Timeout time.Duration
}

// Dial connects to the endpoint over TCP.
func (d *TCPDialer) Dial(ctx context.Context, endpoint Endpoint) (Conn, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint.Address())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, protocol.NewError(protocol.KindCanceled, "dial", ctxErr)
		}
		return nil, protocol.NewError(protocol.KindConnect, "dial", err)
	}

	return newLineConn(conn, conn, conn, conn.Close), nil
}
