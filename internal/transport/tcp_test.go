package transport

import (
	"bufio"
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/lawnchairsociety/minechat/internal/protocol"
)

// startLineServer runs handler for the first accepted connection and
// returns the endpoint to dial.
func startLineServer(t *testing.T, handler func(net.Conn)) Endpoint {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start mock server: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}()

	t.Cleanup(func() {
		listener.Close()
		<-done
	})

	return endpointOf(t, listener.Addr())
}

func endpointOf(t *testing.T, addr net.Addr) Endpoint {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		t.Fatalf("SplitHostPort(%q): %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("bad port %q: %v", portStr, err)
	}
	return Endpoint{Host: host, Port: port}
}

func dialTCP(t *testing.T, endpoint Endpoint) Conn {
	t.Helper()
	conn, err := (&TCPDialer{Timeout: 2 * time.Second}).Dial(context.Background(), endpoint)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestEndpointAddress(t *testing.T) {
	tests := []struct {
		endpoint Endpoint
		expected string
	}{
		{Endpoint{Host: "minechat.dvmn.org", Port: 5050}, "minechat.dvmn.org:5050"},
		{Endpoint{Host: "::1", Port: 5000}, "[::1]:5000"},
	}

	for _, tt := range tests {
		if got := tt.endpoint.Address(); got != tt.expected {
			t.Errorf("Address() = %q, want %q", got, tt.expected)
		}
	}
}

func TestTCPReadLine(t *testing.T) {
	endpoint := startLineServer(t, func(c net.Conn) {
		io.WriteString(c, "Hello %username%!\n")
		io.WriteString(c, "windows line\r\n")
		io.WriteString(c, "\n")
		io.WriteString(c, "split ")
		time.Sleep(20 * time.Millisecond)
		io.WriteString(c, "across writes\n")
		time.Sleep(50 * time.Millisecond)
	})

	conn := dialTCP(t, endpoint)
	ctx := context.Background()

	expected := []string{"Hello %username%!", "windows line", "", "split across writes"}
	for _, want := range expected {
		line, err := conn.ReadLine(ctx)
		if err != nil {
			t.Fatalf("ReadLine failed: %v", err)
		}
		if line != want {
			t.Errorf("ReadLine() = %q, want %q", line, want)
		}
	}
}

func TestTCPWriteFraming(t *testing.T) {
	received := make(chan []string, 1)
	endpoint := startLineServer(t, func(c net.Conn) {
		reader := bufio.NewReader(c)
		var lines []string
		for i := 0; i < 4; i++ {
			line, err := reader.ReadString('\n')
			if err != nil {
				break
			}
			lines = append(lines, line)
		}
		received <- lines
	})

	conn := dialTCP(t, endpoint)
	ctx := context.Background()

	if err := conn.WriteLine(ctx, "abc-123"); err != nil {
		t.Fatalf("WriteLine failed: %v", err)
	}
	if err := conn.WriteLine(ctx, ""); err != nil {
		t.Fatalf("WriteLine failed: %v", err)
	}
	if err := conn.WriteMessage(ctx, "Hello"); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	select {
	case lines := <-received:
		expected := []string{"abc-123\n", "\n", "Hello\n", "\n"}
		if len(lines) != len(expected) {
			t.Fatalf("server received %q, want %q", lines, expected)
		}
		for i := range expected {
			if lines[i] != expected[i] {
				t.Errorf("line %d = %q, want %q", i, lines[i], expected[i])
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for server to receive lines")
	}
}

func TestTCPReadLineConnectionLost(t *testing.T) {
	tests := []struct {
		name string
		send string
	}{
		{"closed before any data", ""},
		{"closed mid line", "partial line without newline"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint := startLineServer(t, func(c net.Conn) {
				io.WriteString(c, tt.send)
			})

			conn := dialTCP(t, endpoint)
			_, err := conn.ReadLine(context.Background())
			if protocol.KindOf(err) != protocol.KindConnectionLost {
				t.Errorf("KindOf(%v) = %v, want %v", err, protocol.KindOf(err), protocol.KindConnectionLost)
			}
		})
	}
}

func TestTCPReadLineInvalidUTF8(t *testing.T) {
	endpoint := startLineServer(t, func(c net.Conn) {
		c.Write([]byte{0xff, 0xfe, 'x', '\n'})
		time.Sleep(50 * time.Millisecond)
	})

	conn := dialTCP(t, endpoint)
	_, err := conn.ReadLine(context.Background())
	if protocol.KindOf(err) != protocol.KindDecode {
		t.Errorf("KindOf(%v) = %v, want %v", err, protocol.KindOf(err), protocol.KindDecode)
	}
}

func TestTCPReadLineLength(t *testing.T) {
	tests := []struct {
		name     string
		length   int
		wantKind protocol.ErrorKind
	}{
		{"at limit", MaxLineLength, protocol.KindUnknown},
		{"over limit", MaxLineLength + 1, protocol.KindDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			release := make(chan struct{})
			endpoint := startLineServer(t, func(c net.Conn) {
				io.WriteString(c, strings.Repeat("a", tt.length))
				if tt.wantKind == protocol.KindUnknown {
					io.WriteString(c, "\r\n")
				}
				<-release
			})
			defer close(release)

			conn := dialTCP(t, endpoint)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			line, err := conn.ReadLine(ctx)
			if protocol.KindOf(err) != tt.wantKind {
				t.Fatalf("KindOf(%v) = %v, want %v", err, protocol.KindOf(err), tt.wantKind)
			}
			if err == nil && len(line) != tt.length {
				t.Errorf("len(line) = %d, want %d", len(line), tt.length)
			}
		})
	}
}

func TestTCPReadLineCanceled(t *testing.T) {
	release := make(chan struct{})
	endpoint := startLineServer(t, func(c net.Conn) {
		<-release
	})
	defer close(release)

	conn := dialTCP(t, endpoint)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := conn.ReadLine(ctx)
	if protocol.KindOf(err) != protocol.KindCanceled {
		t.Errorf("KindOf(%v) = %v, want %v", err, protocol.KindOf(err), protocol.KindCanceled)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("ReadLine took %v to observe cancellation", elapsed)
	}
}

func TestTCPReadLineDeadline(t *testing.T) {
	release := make(chan struct{})
	endpoint := startLineServer(t, func(c net.Conn) {
		<-release
	})
	defer close(release)

	conn := dialTCP(t, endpoint)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := conn.ReadLine(ctx)
	if protocol.KindOf(err) != protocol.KindCanceled {
		t.Errorf("KindOf(%v) = %v, want %v", err, protocol.KindOf(err), protocol.KindCanceled)
	}
}

func TestTCPDialRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve port: %v", err)
	}
	endpoint := endpointOf(t, listener.Addr())
	listener.Close()

	_, err = (&TCPDialer{Timeout: time.Second}).Dial(context.Background(), endpoint)
	if protocol.KindOf(err) != protocol.KindConnect {
		t.Errorf("KindOf(%v) = %v, want %v", err, protocol.KindOf(err), protocol.KindConnect)
	}
}

func TestTCPDialCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&TCPDialer{}).Dial(ctx, Endpoint{Host: "127.0.0.1", Port: 1})
	if protocol.KindOf(err) != protocol.KindCanceled {
		t.Errorf("KindOf(%v) = %v, want %v", err, protocol.KindOf(err), protocol.KindCanceled)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	endpoint := startLineServer(t, func(c net.Conn) {})
	conn := dialTCP(t, endpoint)

	if err := conn.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close returned %v, want the first result", err)
	}

	if err := conn.WriteLine(context.Background(), "after close"); protocol.KindOf(err) != protocol.KindConnectionLost {
		t.Errorf("write after close: kind = %v, want %v", protocol.KindOf(err), protocol.KindConnectionLost)
	}
}

func TestNewDialer(t *testing.T) {
	tests := []struct {
		kind    string
		wantErr bool
	}{
		{"", false},
		{KindTCP, false},
		{KindWebSocket, false},
		{"carrier-pigeon", true},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			d, err := NewDialer(tt.kind, time.Second, "")
			if tt.wantErr {
				if err == nil {
					t.Error("expected error for unknown transport")
				}
				return
			}
			if err != nil || d == nil {
				t.Errorf("NewDialer(%q) = %v, %v", tt.kind, d, err)
			}
		})
	}
}
