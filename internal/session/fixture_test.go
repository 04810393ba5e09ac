package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/lawnchairsociety/minechat/internal/transport"
)

const (
	greetingLine = "Hello %username%! Enter your personal hash or leave it empty to create new account."
	promptLine   = "Enter preferred nickname below:"
	welcomeLine  = "Welcome to chat! Post your message below. End it with an empty line."
	ackLine      = "Message send. Write more, end message with an empty line."
)

// chatServer is a scripted in-process chat server.
type chatServer struct {
	listener net.Listener
	wg       sync.WaitGroup

	mu       sync.Mutex
	tokens   map[string]string // token -> nickname
	conns    [][]string        // lines received, per connection
	messages []string

	// nextToken is handed out on registration.
	nextToken string
	// registerReply replaces the generated registration reply when set.
	registerReply string
	// authReply replaces the account record sent for a known token.
	authReply string
	// forgetTokens makes the server reject tokens it minted itself.
	forgetTokens bool
	// dropBeforeAck closes the connection after reading a message.
	dropBeforeAck bool
	// silent accepts connections but never sends a greeting.
	silent bool
	// stall makes the server go quiet at a step: stallRegistration holds
	// back the registration reply, stallReconnect the second greeting.
	// stalled is closed once that point is reached.
	stall   string
	stalled chan struct{}
}

const (
	stallRegistration = "registration"
	stallReconnect    = "reconnect"
)

// newChatServer starts the server after applying opts, so scripted
// behavior is fixed before the first connection is accepted.
func newChatServer(t *testing.T, opts ...func(*chatServer)) *chatServer {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start mock server: %v", err)
	}

	s := &chatServer{
		listener:  listener,
		tokens:    make(map[string]string),
		nextToken: "xyz-789",
		stalled:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.acceptLoop()

	t.Cleanup(func() {
		listener.Close()
		s.wg.Wait()
	})
	return s
}

func (s *chatServer) endpoint() transport.Endpoint {
	addr := s.listener.Addr().(*net.TCPAddr)
	return transport.Endpoint{Host: addr.IP.String(), Port: addr.Port}
}

func (s *chatServer) addAccount(token, nickname string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = nickname
}

// received returns the lines the server read on each connection.
func (s *chatServer) received() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.conns))
	for i, lines := range s.conns {
		out[i] = append([]string(nil), lines...)
	}
	return out
}

func (s *chatServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.conns = append(s.conns, nil)
		index := len(s.conns) - 1
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handle(conn, index)
		}()
	}
}

func (s *chatServer) handle(conn net.Conn, index int) {
	if s.silent {
		io.Copy(io.Discard, conn)
		return
	}
	if s.stall == stallReconnect && index == 1 {
		s.hang(conn)
		return
	}

	reader := bufio.NewReader(conn)
	readLine := func() (string, bool) {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", false
		}
		line = line[:len(line)-1]
		s.mu.Lock()
		s.conns[index] = append(s.conns[index], line)
		s.mu.Unlock()
		return line, true
	}
	writeLine := func(line string) {
		io.WriteString(conn, line+"\n")
	}

	writeLine(greetingLine)

	token, ok := readLine()
	if !ok {
		return
	}

	if token != "" {
		s.mu.Lock()
		nickname, known := s.tokens[token]
		s.mu.Unlock()

		if known {
			reply, _ := json.Marshal(map[string]string{"nickname": nickname, "account_hash": token})
			if s.authReply != "" {
				reply = []byte(s.authReply)
			}
			writeLine(string(reply))
			writeLine(welcomeLine)
			s.serveMessages(conn, readLine)
			return
		}
		writeLine("null")
	}

	writeLine(promptLine)
	username, ok := readLine()
	if !ok {
		return
	}
	if s.stall == stallRegistration {
		s.hang(conn)
		return
	}

	reply := s.registerReply
	if reply == "" {
		s.mu.Lock()
		minted := s.nextToken
		if !s.forgetTokens {
			s.tokens[minted] = username
		}
		s.mu.Unlock()

		data, _ := json.Marshal(map[string]string{"nickname": username, "account_hash": minted})
		reply = string(data)
	}
	writeLine(reply)
	writeLine(welcomeLine)
	s.serveMessages(conn, readLine)
}

// hang signals stalled and then waits for the client to go away.
func (s *chatServer) hang(conn net.Conn) {
	close(s.stalled)
	io.Copy(io.Discard, conn)
}

// serveMessages reads blank-line terminated messages until the client leaves.
func (s *chatServer) serveMessages(conn net.Conn, readLine func() (string, bool)) {
	var body []string
	for {
		line, ok := readLine()
		if !ok {
			return
		}
		if line != "" {
			body = append(body, line)
			continue
		}

		s.mu.Lock()
		s.messages = append(s.messages, fmt.Sprint(body))
		s.mu.Unlock()
		body = nil

		if s.dropBeforeAck {
			return
		}
		io.WriteString(conn, ackLine+"\n")
	}
}

// countingDialer wraps a Dialer and tracks how many connections are open.
type countingDialer struct {
	inner transport.Dialer

	mu      sync.Mutex
	dials   int
	open    int
	maxOpen int
}

func newCountingDialer() *countingDialer {
	return &countingDialer{inner: &transport.TCPDialer{}}
}

func (d *countingDialer) Dial(ctx context.Context, endpoint transport.Endpoint) (transport.Conn, error) {
	conn, err := d.inner.Dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.dials++
	d.open++
	if d.open > d.maxOpen {
		d.maxOpen = d.open
	}
	d.mu.Unlock()

	return &countedConn{Conn: conn, dialer: d}, nil
}

func (d *countingDialer) stats() (dials, open, maxOpen int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials, d.open, d.maxOpen
}

type countedConn struct {
	transport.Conn
	dialer *countingDialer
	once   sync.Once
}

func (c *countedConn) Close() error {
	c.once.Do(func() {
		c.dialer.mu.Lock()
		c.dialer.open--
		c.dialer.mu.Unlock()
	})
	return c.Conn.Close()
}
