package devserver

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/lawnchairsociety/minechat/internal/config"
	"github.com/lawnchairsociety/minechat/internal/database"
	"github.com/lawnchairsociety/minechat/internal/history"
	"github.com/lawnchairsociety/minechat/internal/session"
	"github.com/lawnchairsociety/minechat/internal/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testServer struct {
	srv    *Server
	db     *database.Database
	writer transport.Endpoint
	reader transport.Endpoint
	ws     transport.Endpoint
}

func endpointOf(addr net.Addr) transport.Endpoint {
	tcp := addr.(*net.TCPAddr)
	return transport.Endpoint{Host: tcp.IP.String(), Port: tcp.Port}
}

func startServer(t *testing.T, mutate ...func(*config.ServerConfig)) *testServer {
	t.Helper()

	cfg := config.DefaultServerConfig()
	cfg.Database = database.DefaultConfig(filepath.Join(t.TempDir(), "chat.db"))
	for _, fn := range mutate {
		fn(cfg)
	}

	db, err := database.OpenWithConfig(cfg.Database)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	srv := New(cfg, db, nil)

	writerListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	readerListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		srv.ServeWriter(writerListener)
	}()
	go func() {
		defer wg.Done()
		srv.ServeReader(readerListener)
	}()

	httpServer := httptest.NewServer(srv.Handler())
	wsAddr := httpServer.Listener.Addr()

	t.Cleanup(func() {
		srv.Shutdown()
		wg.Wait()
		httpServer.Close()
		db.Close()
	})

	return &testServer{
		srv:    srv,
		db:     db,
		writer: endpointOf(writerListener.Addr()),
		reader: endpointOf(readerListener.Addr()),
		ws:     endpointOf(wsAddr),
	}
}

func submit(t *testing.T, dialer transport.Dialer, req session.Request) session.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := session.NewClient(dialer, nil).Submit(ctx, req)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	return result
}

func TestWriterRegistersThenAuthorizes(t *testing.T) {
	ts := startServer(t)
	dialer := &transport.TCPDialer{Timeout: time.Second}

	first := submit(t, dialer, session.Request{Endpoint: ts.writer, Username: "Alice", Message: "Hello"})
	if !first.Registered {
		t.Fatal("first submission did not register")
	}
	if first.Nickname != "Alice" {
		t.Errorf("Nickname = %q, want Alice", first.Nickname)
	}
	parsed, err := uuid.Parse(first.Account.Token)
	if err != nil {
		t.Fatalf("token %q is not a UUID: %v", first.Account.Token, err)
	}
	if parsed.Version() != 1 {
		t.Errorf("token version = %d, want 1", parsed.Version())
	}
	if first.Ack != AckLine {
		t.Errorf("Ack = %q, want %q", first.Ack, AckLine)
	}

	second := submit(t, dialer, session.Request{Endpoint: ts.writer, Token: first.Account.Token, Message: "Again"})
	if second.Registered {
		t.Error("second submission registered again")
	}
	if second.Nickname != "Alice" {
		t.Errorf("Nickname = %q, want Alice", second.Nickname)
	}

	messages, err := ts.db.RecentMessages(10)
	if err != nil {
		t.Fatalf("RecentMessages() error = %v", err)
	}
	var bodies []string
	for _, m := range messages {
		bodies = append(bodies, m.Body)
	}
	if got := strings.Join(bodies, "|"); got != "Alice: Hello|Alice: Again" {
		t.Errorf("stored messages = %q", got)
	}
}

func TestWriterUnknownTokenRegisters(t *testing.T) {
	ts := startServer(t)

	result := submit(t, &transport.TCPDialer{}, session.Request{
		Endpoint: ts.writer,
		Token:    "not-a-real-token",
		Username: "Bob",
		Message:  "hi",
	})
	if !result.Registered {
		t.Error("unknown token did not lead to registration")
	}
	if result.Account.Token == "not-a-real-token" {
		t.Error("server echoed the rejected token")
	}
}

func TestWriterOverWebSocket(t *testing.T) {
	ts := startServer(t)
	dialer := &transport.WebSocketDialer{Timeout: time.Second, Path: transport.DefaultWebSocketPath}

	first := submit(t, dialer, session.Request{Endpoint: ts.ws, Username: "Carol", Message: "over ws"})
	if !first.Registered || first.Nickname != "Carol" {
		t.Fatalf("result = %+v, want Carol registered", first)
	}

	second := submit(t, dialer, session.Request{Endpoint: ts.ws, Token: first.Account.Token, Message: "again"})
	if second.Registered {
		t.Error("second WebSocket submission registered again")
	}
}

func TestWriterNicknameClash(t *testing.T) {
	ts := startServer(t)
	dialer := &transport.TCPDialer{}

	first := submit(t, dialer, session.Request{Endpoint: ts.writer, Username: "Dave", Message: "one"})
	second := submit(t, dialer, session.Request{Endpoint: ts.writer, Username: "Dave", Message: "two"})

	if first.Nickname != "Dave" {
		t.Errorf("first nickname = %q, want Dave", first.Nickname)
	}
	if !strings.HasPrefix(second.Nickname, "Dave-") {
		t.Errorf("second nickname = %q, want Dave-<suffix>", second.Nickname)
	}
}

func TestWriterEmptyUsername(t *testing.T) {
	ts := startServer(t)

	result := submit(t, &transport.TCPDialer{}, session.Request{Endpoint: ts.writer, Message: "hi"})
	if result.Nickname != defaultNickname {
		t.Errorf("Nickname = %q, want %q", result.Nickname, defaultNickname)
	}
}

// collectSink records history entries for the reader test.
type collectSink struct {
	lines chan string
}

func (s *collectSink) Write(e history.Entry) error {
	s.lines <- e.Text
	return nil
}

func (s *collectSink) Close() error { return nil }

func TestReaderReceivesBroadcast(t *testing.T) {
	ts := startServer(t)

	sink := &collectSink{lines: make(chan string, 8)}
	reader := history.NewReader(&transport.TCPDialer{}, ts.reader, nil, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reader.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.Now().Add(5 * time.Second)
	for ts.srv.Hub().Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("reader never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	submit(t, &transport.TCPDialer{}, session.Request{Endpoint: ts.writer, Username: "Eve", Message: "Hello readers"})

	select {
	case line := <-sink.lines:
		if line != "Eve: Hello readers" {
			t.Errorf("reader got %q, want %q", line, "Eve: Hello readers")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reader did not receive the message")
	}
}

func TestReaderBacklog(t *testing.T) {
	ts := startServer(t)

	for i := 0; i < backlogLines+5; i++ {
		if err := ts.srv.Hub().Publish("line " + strconv.Itoa(i)); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	conn, err := net.Dial("tcp", ts.reader.Address())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	r := bufio.NewReader(conn)
	for i := 5; i < backlogLines+5; i++ {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("ReadString() error = %v", err)
		}
		if want := "line " + strconv.Itoa(i) + "\n"; line != want {
			t.Fatalf("backlog line = %q, want %q", line, want)
		}
	}
}

func TestConnectionLimit(t *testing.T) {
	ts := startServer(t, func(cfg *config.ServerConfig) {
		cfg.Connections.MaxPerIP = 1
	})

	first, err := net.Dial("tcp", ts.writer.Address())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer first.Close()
	first.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := bufio.NewReader(first).ReadString('\n'); err != nil {
		t.Fatalf("first connection got no greeting: %v", err)
	}

	second, err := net.Dial("tcp", ts.writer.Address())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer second.Close()
	second.SetReadDeadline(time.Now().Add(5 * time.Second))
	if line, err := bufio.NewReader(second).ReadString('\n'); err == nil {
		t.Errorf("second connection got %q, want it closed", line)
	}
}

func TestShutdownClosesClients(t *testing.T) {
	ts := startServer(t)

	conn, err := net.Dial("tcp", ts.writer.Address())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	r := bufio.NewReader(conn)
	if _, err := r.ReadString('\n'); err != nil {
		t.Fatalf("no greeting: %v", err)
	}

	ts.srv.Shutdown()

	if _, err := r.ReadString('\n'); err == nil {
		t.Error("connection still open after Shutdown")
	}
	// A second call must not block or panic.
	ts.srv.Shutdown()
}

func TestWebSocketOriginRejected(t *testing.T) {
	ts := startServer(t)

	req, err := http.NewRequest(http.MethodGet, "http://"+ts.ws.Address()+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	req.Header.Set("Origin", "http://evil.example")

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
}

func TestConnLimiter(t *testing.T) {
	limiter := NewConnLimiter(config.ConnectionsConfig{MaxPerIP: 2, MaxTotal: 3})

	acquire := func(ip string) func() {
		t.Helper()
		release, ok := limiter.Acquire(ip)
		if !ok {
			t.Fatalf("Acquire(%s) rejected", ip)
		}
		return release
	}

	first := acquire("192.168.1.1")
	acquire("192.168.1.1")
	if _, ok := limiter.Acquire("192.168.1.1"); ok {
		t.Error("third connection from same IP should be rejected")
	}
	acquire("192.168.1.2")
	if _, ok := limiter.Acquire("192.168.1.3"); ok {
		t.Error("fourth connection should be rejected due to total limit")
	}

	first()
	acquire("192.168.1.3")

	total, ips := limiter.Stats()
	if total != 3 || ips != 3 {
		t.Errorf("Stats() = %d, %d, want 3, 3", total, ips)
	}

	// A second release of the same slot is a no-op.
	first()
	if total, _ := limiter.Stats(); total != 3 {
		t.Errorf("total after double release = %d, want 3", total)
	}
}

func TestConnLimiter_Unlimited(t *testing.T) {
	limiter := NewConnLimiter(config.ConnectionsConfig{})
	var releases []func()
	for i := 0; i < 100; i++ {
		release, ok := limiter.Acquire("192.168.1.1")
		if !ok {
			t.Fatalf("connection %d rejected with no limits", i)
		}
		releases = append(releases, release)
	}
	for _, release := range releases {
		release()
	}
	if total, ips := limiter.Stats(); total != 0 || ips != 0 {
		t.Errorf("Stats() after release = %d, %d, want 0, 0", total, ips)
	}
}

func TestRealIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "10.0.0.1:1234", "10.0.0.1"},
		{"forwarded for", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.2"}, "10.0.0.1:1234", "203.0.113.5"},
		{"real ip", map[string]string{"X-Real-IP": " 198.51.100.7 "}, "10.0.0.1:1234", "198.51.100.7"},
		{"no port", nil, "10.0.0.1", "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := realIP(r); got != tt.want {
				t.Errorf("realIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
