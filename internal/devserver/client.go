package devserver

import (
	"bufio"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeTimeout bounds how long a slow client can stall a write.
const writeTimeout = 10 * time.Second

// Client abstracts the connection layer for both TCP and WebSocket
// connections, so the protocol handlers serve either transparently.
type Client interface {
	// ReadLine blocks until a complete line is received (without newline).
	ReadLine() (string, error)

	// WriteLine sends a line followed by a newline.
	WriteLine(line string) error

	Close() error

	// RemoteAddr returns the client's address for logging.
	RemoteAddr() string
}

// TCPClient serves a raw TCP connection.
type TCPClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

// NewTCPClient creates a new TCPClient from a TCP connection.
func NewTCPClient(conn net.Conn) *TCPClient {
	return &TCPClient{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *TCPClient) ReadLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r"), nil
}

func (c *TCPClient) WriteLine(line string) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := io.WriteString(c.conn, line+"\n")
	return err
}

func (c *TCPClient) Close() error {
	return c.conn.Close()
}

func (c *TCPClient) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// WebSocketClient serves the line protocol over WebSocket text frames.
// Frame boundaries carry no meaning: a frame may hold part of a line or
// several lines, including the blank line that ends a message.
type WebSocketClient struct {
	conn   *websocket.Conn
	reader *bufio.Reader

	writeMu sync.Mutex
}

// NewWebSocketClient creates a new WebSocketClient from a WebSocket connection.
func NewWebSocketClient(conn *websocket.Conn) *WebSocketClient {
	c := &WebSocketClient{conn: conn}
	c.reader = bufio.NewReader(&frameReader{conn: conn})
	return c
}

func (c *WebSocketClient) ReadLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r"), nil
}

func (c *WebSocketClient) WriteLine(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(line+"\n"))
}

// Close sends a close frame, then closes the connection.
func (c *WebSocketClient) Close() error {
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

func (c *WebSocketClient) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// frameReader concatenates the payloads of consecutive data frames.
type frameReader struct {
	conn    *websocket.Conn
	current io.Reader
}

func (r *frameReader) Read(p []byte) (int, error) {
	for {
		if r.current == nil {
			_, next, err := r.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			r.current = next
		}

		n, err := r.current.Read(p)
		if err == io.EOF {
			r.current = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}
