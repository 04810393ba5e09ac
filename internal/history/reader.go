package history

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lawnchairsociety/minechat/internal/logger"
	"github.com/lawnchairsociety/minechat/internal/protocol"
	"github.com/lawnchairsociety/minechat/internal/transport"
)

// Reconnect backoff bounds.
const (
	DefaultMinBackoff = time.Second
	DefaultMaxBackoff = 30 * time.Second
)

// Reader follows the chat on the reader port.
type Reader struct {
	dialer   transport.Dialer
	endpoint transport.Endpoint
	sinks    []Sink
	log      *slog.Logger

	// now and sleep are replaced in tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// NewReader creates a Reader. A nil log uses the process-wide logger.
func NewReader(dialer transport.Dialer, endpoint transport.Endpoint, log *slog.Logger, sinks ...Sink) *Reader {
	if log == nil {
		log = logger.Logger()
	}
	return &Reader{
		dialer:     dialer,
		endpoint:   endpoint,
		sinks:      sinks,
		log:        log.With("endpoint", endpoint.String()),
		now:        time.Now,
		sleep:      sleepContext,
		MinBackoff: DefaultMinBackoff,
		MaxBackoff: DefaultMaxBackoff,
	}
}

// Run reads until ctx is canceled, reconnecting whenever the server goes
// away. It returns nil on cancellation; any other return is a setup error.
func (r *Reader) Run(ctx context.Context) error {
	backoff := r.MinBackoff

	for {
		heard, err := r.follow(ctx)
		if ctx.Err() != nil || protocol.KindOf(err) == protocol.KindCanceled {
			r.log.Info("reader stopped")
			return nil
		}

		if heard {
			backoff = r.MinBackoff
		}
		r.log.Warn("connection lost, reconnecting", "error", err, "kind", protocol.KindOf(err), "backoff", backoff)

		if err := r.sleep(ctx, backoff); err != nil {
			r.log.Info("reader stopped")
			return nil
		}
		backoff = min(backoff*2, r.MaxBackoff)
	}
}

// follow holds one connection until it fails. heard reports whether any
// line arrived, which resets the backoff.
func (r *Reader) follow(ctx context.Context) (heard bool, err error) {
	conn, err := r.dialer.Dial(ctx, r.endpoint)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	r.log.Info("connection opened", "remote_addr", conn.RemoteAddr())

	for {
		line, err := conn.ReadLine(ctx)
		if protocol.KindOf(err) == protocol.KindDecode {
			r.log.Warn("skipping undecodable line", "error", err)
			continue
		}
		if err != nil {
			return heard, err
		}
		heard = true
		r.dispatch(Entry{ReceivedAt: r.now(), Text: line})
	}
}

func (r *Reader) dispatch(e Entry) {
	for _, sink := range r.sinks {
		if err := sink.Write(e); err != nil {
			r.log.Error("history sink failed", "error", err)
		}
	}
}

// Close closes every sink.
func (r *Reader) Close() error {
	var errs []error
	for _, sink := range r.sinks {
		errs = append(errs, sink.Close())
	}
	return errors.Join(errs...)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
