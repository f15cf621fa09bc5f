package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Zereker/framechat"
	"github.com/Zereker/framechat/internal/console"
)

// flushTimeout bounds how long queued messages may take to go out once
// input ends.
const flushTimeout = 5 * time.Second

var errUsage = errors.New("expected <host> <port>")

// lineReader is the input side of the console. Close must unblock a
// pending ReadLine where the input allows it.
type lineReader interface {
	ReadLine() (string, error)
	Interactive() bool
	Close()
}

// client wires stdin, stdout and the connection together.
type client struct {
	v      *viper.Viper
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	c := &client{
		v:      viper.New(),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}

	cmd := &cobra.Command{
		Use:   "framechat <host> <port>",
		Short: "Chat with a framechat peer",
		Long: `framechat connects to a peer and exchanges length-prefixed messages.

Every input line is sent as one message; received messages are printed.
A line of the form "/sendfile <path>" sends the contents of that file
instead of the line itself.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return errUsage
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			loadDotEnv()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd.Context(), args[0], args[1])
		},
	}
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	setupFlags(cmd, c.v)
	return cmd
}

func (c *client) run(ctx context.Context, host, port string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(c.v)
	if err != nil {
		return err
	}

	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(c.stderr, &slog.HandlerOptions{Level: level}))

	set := metrics.NewSet()
	if cfg.MetricsAddr != "" {
		stop := serveMetrics(cfg.MetricsAddr, set, logger)
		defer stop()
	}

	raw, err := framechat.Dial(ctx, host, port,
		framechat.DialTimeoutOption(cfg.DialTimeout),
		framechat.DialLoggerOption(logger),
	)
	if err != nil {
		return err
	}

	sink := console.NewSink(c.stdout)
	opts := append(cfg.Options(),
		framechat.LoggerOption(logger),
		framechat.MetricsSetOption(set),
		framechat.OnMessageOption(sink.OnMessage),
		framechat.OnSendErrorOption(func(_ framechat.Message, err error) {
			fmt.Fprintf(c.stderr, "send failed: %v\n", err)
		}),
	)

	conn, err := framechat.NewConn(raw, opts...)
	if err != nil {
		_ = raw.Close()
		return err
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- conn.Run(ctx)
	}()

	editor := c.editor(cfg.HistoryFile)
	c.greet(editor, conn.Addr())

	// input is read in its own goroutine: a read from stdin cannot be
	// interrupted, so shutdown must not wait for it
	produced := make(chan struct{})
	go func() {
		defer close(produced)
		c.produce(editor, conn, cfg.MaxBodyLength, logger)
	}()

	select {
	case <-produced:
		flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
		if err := conn.Flush(flushCtx); err != nil && !errors.Is(err, framechat.ErrConnectionClosed) {
			logger.Warn("unsent messages dropped", "error", err)
		}
		cancel()
	case <-ctx.Done():
		logger.Debug("interrupted", "error", ctx.Err())
	case <-conn.Done():
	}
	editor.Close()

	_ = conn.Close()
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		logger.Info("connection lost", "error", err)
	}
	return nil
}

// editor returns a readline editor for the process's own stdin and a
// plain line scanner for any other reader.
func (c *client) editor(historyFile string) lineReader {
	if f, ok := c.stdin.(*os.File); ok && f == os.Stdin {
		return console.NewLineEditor(historyFile)
	}
	return console.NewScannerEditor(c.stdin)
}

// greet tells a terminal user where they are connected and how to leave.
func (c *client) greet(editor lineReader, addr net.Addr) {
	if editor.Interactive() {
		fmt.Fprintf(c.stderr, "connected to %s, Ctrl-D to quit\n", addr)
	}
}

// produce turns input lines into messages until input ends or the
// connection closes.
func (c *client) produce(editor lineReader, conn *framechat.Conn, maxBody int, logger framechat.Logger) {
	for {
		line, err := editor.ReadLine()
		if err != nil {
			if err != io.EOF {
				logger.Error("read input", "error", err)
			}
			return
		}

		err = conn.Enqueue(framechat.NewTextMessage(line, maxBody))
		switch {
		case err == nil:
		case errors.Is(err, framechat.ErrConnectionClosed):
			return
		default:
			fmt.Fprintf(c.stderr, "not sent: %v\n", err)
		}
	}
}

// serveMetrics exposes set in the Prometheus text format until stop is called.
func serveMetrics(addr string, set *metrics.Set, logger framechat.Logger) (stop func()) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		set.WritePrometheus(w)
		metrics.WriteProcessMetrics(w)
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "addr", addr, "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
