package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lawnchairsociety/minechat/internal/protocol"
	"github.com/lawnchairsociety/minechat/internal/transport"
)

// handshake drives one writer session from dial to submission.
// It owns at most one live connection at any time.
type handshake struct {
	dialer   transport.Dialer
	endpoint transport.Endpoint
	log      *slog.Logger

	conn  transport.Conn
	state State
}

// run executes the handshake. The connection is closed on every return path.
func (h *handshake) run(ctx context.Context, req Request) (Result, error) {
	defer h.close()

	var result Result

	h.transition(StateStart)
	if err := protocol.ValidateToken(req.Token); err != nil {
		return h.fail(result, err)
	}

	if err := h.open(ctx); err != nil {
		return h.fail(result, err)
	}
	h.transition(StateConnected)

	if req.Token != "" {
		identity, ok, err := h.authorize(ctx, req.Token)
		if err != nil {
			return h.fail(result, err)
		}
		if ok {
			result.Nickname = identity.Nickname
			h.transition(StateAuthorized)
		} else {
			h.log.Info("token rejected, registering a new account")
		}
	} else if err := h.writeLine(ctx, "", "send empty token"); err != nil {
		return h.fail(result, err)
	}

	if h.state != StateAuthorized {
		h.transition(StateRegistering)
		account, err := h.register(ctx, req.Username)
		if err != nil {
			return h.fail(result, err)
		}
		result.Registered = true
		result.Account = account
		result.Nickname = account.Nickname

		h.transition(StateReconnecting)
		if err := h.open(ctx); err != nil {
			return h.fail(result, err)
		}
		identity, ok, err := h.authorize(ctx, account.Token)
		if err != nil {
			if protocol.KindOf(err) == protocol.KindDecode {
				err = protocol.Reclassify(err, protocol.KindReauthorize, "reauthorize")
			}
			return h.fail(result, err)
		}
		if !ok {
			return h.fail(result, protocol.NewError(protocol.KindReauthorize, "reauthorize",
				errors.New("server rejected the token it just issued")))
		}
		if identity.Nickname != "" {
			result.Nickname = identity.Nickname
		}
		h.transition(StateAuthorized)
	}

	ack, err := h.submit(ctx, req.Message)
	if err != nil {
		return h.fail(result, err)
	}
	result.Ack = ack
	h.transition(StateSubmitted)
	result.State = h.state
	return result, nil
}

// open dials a fresh connection and consumes the greeting.
func (h *handshake) open(ctx context.Context) error {
	h.close()

	conn, err := h.dialer.Dial(ctx, h.endpoint)
	if err != nil {
		return err
	}
	h.conn = conn
	h.log.Info("connection opened", "remote_addr", conn.RemoteAddr())

	_, err = h.readLine(ctx, "read greeting")
	return err
}

// authorize presents a token. ok is false when the server answers with an
// empty reply, i.e. the token is unknown. On success the confirmation line
// that follows the reply is consumed.
func (h *handshake) authorize(ctx context.Context, token string) (protocol.Identity, bool, error) {
	if err := h.writeLine(ctx, token, "send token"); err != nil {
		return protocol.Identity{}, false, err
	}

	line, err := h.readLine(ctx, "read authorization reply")
	if err != nil {
		return protocol.Identity{}, false, err
	}
	reply, err := protocol.ParseReply(line)
	if err != nil {
		return protocol.Identity{}, false, protocol.WithOp(err, "read authorization reply")
	}
	if reply.IsEmpty() {
		return protocol.Identity{}, false, nil
	}

	identity, err := reply.Identity()
	if err != nil {
		return protocol.Identity{}, false, protocol.WithOp(err, "read authorization reply")
	}
	h.log.Info("authorized", "nickname", identity.Nickname)

	if _, err := h.readLine(ctx, "read confirmation"); err != nil {
		return protocol.Identity{}, false, err
	}
	return identity, true, nil
}

// register asks the server for a new account and closes the connection
// it was minted on.
func (h *handshake) register(ctx context.Context, username string) (protocol.Account, error) {
	if _, err := h.readLine(ctx, "read registration prompt"); err != nil {
		return protocol.Account{}, err
	}
	if err := h.writeLine(ctx, protocol.Sanitize(username), "send username"); err != nil {
		return protocol.Account{}, err
	}

	line, err := h.readLine(ctx, "read registration reply")
	if err != nil {
		return protocol.Account{}, err
	}
	reply, err := protocol.ParseReply(line)
	if err != nil {
		return protocol.Account{}, protocol.Reclassify(err, protocol.KindRegistration, "read registration reply")
	}
	account, err := reply.Account()
	if err != nil {
		return protocol.Account{}, err
	}

	if _, err := h.readLine(ctx, "read confirmation"); err != nil {
		return protocol.Account{}, err
	}
	h.log.Info("registered", "nickname", account.Nickname)

	h.close()
	return account, nil
}

// submit sends the message and waits for the acknowledgement.
func (h *handshake) submit(ctx context.Context, message string) (string, error) {
	text := protocol.Sanitize(message)
	if err := h.conn.WriteMessage(ctx, text); err != nil {
		return "", protocol.WithOp(err, "send message")
	}
	h.log.Debug("message sent", "message", text)

	return h.readLine(ctx, "read acknowledgement")
}

func (h *handshake) readLine(ctx context.Context, op string) (string, error) {
	line, err := h.conn.ReadLine(ctx)
	if err != nil {
		return "", protocol.WithOp(err, op)
	}
	h.log.Debug("line received", "op", op, "line", line)
	return line, nil
}

func (h *handshake) writeLine(ctx context.Context, text, op string) error {
	if err := h.conn.WriteLine(ctx, text); err != nil {
		return protocol.WithOp(err, op)
	}
	h.log.Debug("line sent", "op", op, "line", text)
	return nil
}

// close closes the live connection, if any.
func (h *handshake) close() {
	if h.conn == nil {
		return
	}
	addr := h.conn.RemoteAddr()
	if err := h.conn.Close(); err != nil {
		h.log.Debug("close failed", "remote_addr", addr, "error", err)
	}
	h.conn = nil
	h.log.Info("connection closed", "remote_addr", addr)
}

func (h *handshake) transition(next State) {
	h.log.Debug("state changed", "from", h.state, "to", next)
	h.state = next
}

func (h *handshake) fail(result Result, err error) (Result, error) {
	h.log.Debug("session failed", "state", h.state, "kind", protocol.KindOf(err), "error", err)
	h.transition(StateFailed)
	result.State = StateFailed
	return result, err
}
