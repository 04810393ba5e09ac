// Package session implements the writer side of the underground chat:
// authorize with a token, register a new account when the token is missing
// or rejected, and submit a single message.
package session

import (
	"context"
	"log/slog"

	"github.com/lawnchairsociety/minechat/internal/logger"
	"github.com/lawnchairsociety/minechat/internal/protocol"
	"github.com/lawnchairsociety/minechat/internal/transport"
)

// Request is the input of one submission.
type Request struct {
	Endpoint transport.Endpoint
	// Token is the account hash to authorize with. Empty means register.
	Token string
	// Username is the preferred nickname used if registration happens.
	Username string
	// Message is sent as a single line; embedded newlines are removed.
	Message string
}

// Result describes how a submission ended.
type Result struct {
	State State
	// Ack is the server's acknowledgement line.
	Ack string
	// Nickname is the display name the server reported.
	Nickname string
	// Registered is true when a new account was minted during the session.
	// Account then holds the token the caller should persist, even if a
	// later step failed.
	Registered bool
	Account    protocol.Account
}

// Client submits messages to a chat server. It holds no per-session state,
// so one Client may run any number of sessions, sequentially or in parallel.
type Client struct {
	dialer transport.Dialer
	log    *slog.Logger
}

// NewClient creates a Client. A nil log uses the process-wide logger.
func NewClient(dialer transport.Dialer, log *slog.Logger) *Client {
	if log == nil {
		log = logger.Logger()
	}
	return &Client{dialer: dialer, log: log}
}

// Submit runs one session: connect, authorize or register, then send the
// message. Every error is a *protocol.Error; use protocol.KindOf to
// classify it. The connection is always closed before Submit returns.
func (c *Client) Submit(ctx context.Context, req Request) (Result, error) {
	h := &handshake{
		dialer:   c.dialer,
		endpoint: req.Endpoint,
		log:      c.log.With("endpoint", req.Endpoint.String()),
	}
	return h.run(ctx, req)
}
