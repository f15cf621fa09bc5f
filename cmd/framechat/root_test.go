package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Zereker/framechat"
)

// syncBuffer is a bytes.Buffer safe for the concurrent writes of the
// message sink and the test's reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRootCommand_Usage(t *testing.T) {
	for _, args := range [][]string{{}, {"localhost"}, {"localhost", "1", "extra"}} {
		var stderr bytes.Buffer
		cmd := newRootCommand(strings.NewReader(""), io.Discard, &stderr)
		cmd.SetArgs(args)

		if err := cmd.Execute(); !errors.Is(err, errUsage) {
			t.Errorf("args %q: expected errUsage, got %v", args, err)
		}
	}
}

func TestRootCommand_ConnectFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_, port, _ := net.SplitHostPort(l.Addr().String())
	l.Close()

	cmd := newRootCommand(strings.NewReader(""), io.Discard, io.Discard)
	cmd.SetArgs([]string{"127.0.0.1", port, "--dial-timeout", "2s"})

	err = cmd.Execute()
	if err == nil || errors.Is(err, errUsage) {
		t.Errorf("expected a connect error, got %v", err)
	}
}

func TestRootCommand_Chat(t *testing.T) {
	server, err := framechat.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer server.Close()

	received := make(chan []byte, 1)
	peer := framechat.HandlerFunc(func(ctx context.Context, conn net.Conn) {
		defer conn.Close()

		frame := make([]byte, 9)
		if _, err := io.ReadFull(conn, frame); err != nil {
			return
		}
		received <- frame
		_, _ = conn.Write([]byte("0003hey"))
		_, _ = io.Copy(io.Discard, conn)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Serve(ctx, peer)

	_, port, _ := net.SplitHostPort(server.Addr().String())
	stdinR, stdinW := io.Pipe()
	stdout := &syncBuffer{}

	cmd := newRootCommand(stdinR, stdout, io.Discard)
	cmd.SetArgs([]string{"127.0.0.1", port, "--log-level", "error"})

	done := make(chan error, 1)
	go func() {
		done <- cmd.ExecuteContext(ctx)
	}()

	if _, err = io.WriteString(stdinW, "hello\n"); err != nil {
		t.Fatalf("write stdin: %v", err)
	}

	select {
	case frame := <-received:
		if string(frame) != "0005hello" {
			t.Errorf("peer got %q, want %q", frame, "0005hello")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for the peer to receive")
	}

	deadline := time.Now().Add(5 * time.Second)
	for stdout.String() != "hey\n" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if stdout.String() != "hey\n" {
		t.Errorf("stdout = %q, want %q", stdout.String(), "hey\n")
	}

	// end of input closes the client
	stdinW.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("command returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for the command to exit")
	}
}

func TestRootCommand_SendsQueuedInputBeforeExit(t *testing.T) {
	server, err := framechat.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer server.Close()

	received := make(chan []byte, 1)
	peer := framechat.HandlerFunc(func(ctx context.Context, conn net.Conn) {
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		received <- data
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Serve(ctx, peer)

	path := filepath.Join(t.TempDir(), "note.txt")
	if err := os.WriteFile(path, []byte("from file"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	_, port, _ := net.SplitHostPort(server.Addr().String())
	stdin := strings.NewReader("one\n/sendfile " + path + "\n" + strings.Repeat("x", 600) + "\n")

	cmd := newRootCommand(stdin, io.Discard, io.Discard)
	cmd.SetArgs([]string{"127.0.0.1", port, "--log-level", "error"})
	if err := cmd.ExecuteContext(ctx); err != nil {
		t.Fatalf("command returned %v", err)
	}

	want := "0003one" + "0009from file" + "0512" + strings.Repeat("x", 512)
	select {
	case data := <-received:
		if string(data) != want {
			t.Errorf("peer got %q, want %q", data, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for the peer")
	}
}

func TestRootCommand_CancelWithIdleInput(t *testing.T) {
	server, err := framechat.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer server.Close()

	connected := make(chan struct{}, 1)
	peer := framechat.HandlerFunc(func(ctx context.Context, conn net.Conn) {
		defer conn.Close()
		connected <- struct{}{}
		_, _ = io.Copy(io.Discard, conn)
	})

	serveCtx, stopServe := context.WithCancel(context.Background())
	defer stopServe()
	go server.Serve(serveCtx, peer)

	// nothing is ever written to stdin
	stdinR, stdinW := io.Pipe()
	defer stdinW.Close()

	_, port, _ := net.SplitHostPort(server.Addr().String())
	cmd := newRootCommand(stdinR, io.Discard, io.Discard)
	cmd.SetArgs([]string{"127.0.0.1", port, "--log-level", "error"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- cmd.ExecuteContext(ctx)
	}()

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for the client to connect")
	}

	// what SIGINT or SIGTERM does through signal.NotifyContext
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("command returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("command still running after its context was canceled")
	}
}

func TestRootCommand_PeerClosesWithIdleInput(t *testing.T) {
	server, err := framechat.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer server.Close()

	peer := framechat.HandlerFunc(func(ctx context.Context, conn net.Conn) {
		conn.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Serve(ctx, peer)

	stdinR, stdinW := io.Pipe()
	defer stdinW.Close()

	_, port, _ := net.SplitHostPort(server.Addr().String())
	cmd := newRootCommand(stdinR, io.Discard, io.Discard)
	cmd.SetArgs([]string{"127.0.0.1", port, "--log-level", "error"})

	done := make(chan error, 1)
	go func() {
		done <- cmd.ExecuteContext(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("command returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("command still running after the peer hung up")
	}
}

// fakeEditor is a lineReader with a fixed answer to Interactive.
type fakeEditor struct {
	interactive bool
}

func (fakeEditor) ReadLine() (string, error) { return "", io.EOF }
func (e fakeEditor) Interactive() bool { return e.interactive }
func (fakeEditor) Close() {}

func TestClient_Greet(t *testing.T) {
	addr := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 12345}

	var stderr bytes.Buffer
	c := &client{stderr: &stderr}

	c.greet(fakeEditor{interactive: false}, addr)
	if stderr.Len() != 0 {
		t.Errorf("piped input greeted with %q", stderr.String())
	}

	c.greet(fakeEditor{interactive: true}, addr)
	if !strings.Contains(stderr.String(), "connected to 127.0.0.1:12345") {
		t.Errorf("greeting = %q", stderr.String())
	}
}

func TestLoadConfig_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framechat.toml")
	content := "max_body = 200\nbuffer_size = 10\nmax_queue = 3\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("FRAMECHAT_MAX_QUEUE", "7")

	cmd := &cobra.Command{}
	v := viper.New()
	setupFlags(cmd, v)
	if err := cmd.Flags().Parse([]string{"--config", path, "--max-body", "100"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := loadConfig(v)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	if cfg.MaxBodyLength != 100 {
		t.Errorf("MaxBodyLength = %d, want the flag value 100", cfg.MaxBodyLength)
	}
	if cfg.MaxQueueLength != 7 {
		t.Errorf("MaxQueueLength = %d, want the env value 7", cfg.MaxQueueLength)
	}
	if cfg.BufferSize != 10 {
		t.Errorf("BufferSize = %d, want the file value 10", cfg.BufferSize)
	}
	if cfg.DialTimeout != 10*time.Second {
		t.Errorf("DialTimeout = %v, want the default", cfg.DialTimeout)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	cmd := &cobra.Command{}
	v := viper.New()
	setupFlags(cmd, v)
	if err := cmd.Flags().Parse([]string{"--max-body", "10000"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	if _, err := loadConfig(v); err == nil {
		t.Error("expected an error for a body limit beyond the header")
	}
}
