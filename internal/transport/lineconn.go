package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/lawnchairsociety/minechat/internal/protocol"
)

// MaxLineLength caps a received line, terminator excluded.
const MaxLineLength = 64 * 1024

// aLongTimeAgo is a deadline in the past, used to unblock pending I/O.
var aLongTimeAgo = time.Unix(1, 0)

var errLineTooLong = fmt.Errorf("line exceeds %d bytes", MaxLineLength)

// lineConn implements Conn over any byte stream whose deadlines are
// controlled by raw.
type lineConn struct {
	raw    net.Conn
	reader *bufio.Reader
	writer io.Writer
	closer func() error

	closeOnce sync.Once
	closeErr  error
}

func newLineConn(raw net.Conn, r io.Reader, w io.Writer, closer func() error) *lineConn {
	return &lineConn{
		raw:    raw,
		reader: bufio.NewReader(r),
		writer: w,
		closer: closer,
	}
}

// ReadLine reads a line from the connection (blocking).
func (c *lineConn) ReadLine(ctx context.Context) (string, error) {
	const op = "read line"

	if err := ctx.Err(); err != nil {
		return "", protocol.NewError(protocol.KindCanceled, op, err)
	}

	c.raw.SetReadDeadline(deadlineOf(ctx))
	stop := context.AfterFunc(ctx, func() {
		c.raw.SetReadDeadline(aLongTimeAgo)
	})
	line, err := c.readFrame()
	stop()

	if err != nil {
		if errors.Is(err, errLineTooLong) {
			return "", protocol.NewError(protocol.KindDecode, op, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", protocol.NewError(protocol.KindCanceled, op, ctxErr)
		}
		if errors.Is(err, io.EOF) && line != "" {
			err = io.ErrUnexpectedEOF
		}
		return "", protocol.NewError(protocol.KindConnectionLost, op, err)
	}

	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	if !utf8.ValidString(line) {
		return "", protocol.NewError(protocol.KindDecode, op, errors.New("line is not valid UTF-8"))
	}
	return line, nil
}

// readFrame reads through the next newline. It gives up with
// errLineTooLong once the line outgrows MaxLineLength.
func (c *lineConn) readFrame() (string, error) {
	var frame []byte
	for {
		chunk, err := c.reader.ReadSlice('\n')
		frame = append(frame, chunk...)
		if len(bytes.TrimRight(frame, "\r\n")) > MaxLineLength {
			return "", errLineTooLong
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return string(frame), err
		}
	}
}

// WriteLine writes text followed by a newline.
func (c *lineConn) WriteLine(ctx context.Context, text string) error {
	return c.write(ctx, "write line", text+"\n")
}

// WriteMessage writes text followed by the end-of-message marker.
func (c *lineConn) WriteMessage(ctx context.Context, text string) error {
	return c.write(ctx, "write message", text+"\n\n")
}

// write sends the whole frame in a single call so a line is never split
// across two writes.
func (c *lineConn) write(ctx context.Context, op, frame string) error {
	if err := ctx.Err(); err != nil {
		return protocol.NewError(protocol.KindCanceled, op, err)
	}

	c.raw.SetWriteDeadline(deadlineOf(ctx))
	stop := context.AfterFunc(ctx, func() {
		c.raw.SetWriteDeadline(aLongTimeAgo)
	})
	_, err := io.WriteString(c.writer, frame)
	stop()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return protocol.NewError(protocol.KindCanceled, op, ctxErr)
		}
		return protocol.NewError(protocol.KindConnectionLost, op, err)
	}
	return nil
}

// Close closes the underlying connection.
func (c *lineConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.closer()
	})
	return c.closeErr
}

// RemoteAddr returns the remote address as a string.
func (c *lineConn) RemoteAddr() string {
	return c.raw.RemoteAddr().String()
}

// deadlineOf returns the context deadline, or the zero time for none.
func deadlineOf(ctx context.Context) time.Time {
	deadline, _ := ctx.Deadline()
	return deadline
}
