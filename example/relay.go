package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/Zereker/framechat"
)

// relay is a chat room: every frame received from one peer is queued to
// all connected peers.
type relay struct {
	nextID atomic.Int64
	peers  *xsync.MapOf[int64, *framechat.Conn]
}

func newRelay() *relay {
	return &relay{peers: xsync.NewMapOf[int64, *framechat.Conn]()}
}

func (r *relay) ServePeer(ctx context.Context, raw net.Conn) {
	id := r.nextID.Add(1)
	logger := slog.Default().With("peer", id)

	conn, err := framechat.NewConn(raw,
		framechat.LoggerOption(logger),
		framechat.DisableFileSendOption(),
		framechat.OnMessageOption(func(m framechat.Message) error {
			r.broadcast(m)
			return nil
		}),
	)
	if err != nil {
		logger.Error("create connection", "error", err)
		_ = raw.Close()
		return
	}

	r.peers.Store(id, conn)
	defer r.peers.Delete(id)

	if err = conn.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Info("peer left", "error", err)
	}
}

func (r *relay) broadcast(m framechat.Message) {
	r.peers.Range(func(id int64, conn *framechat.Conn) bool {
		// a slow peer must not stall the sender's read pipeline
		if err := conn.TryEnqueue(m); err != nil {
			slog.Warn("relay drop", "peer", id, "error", err)
		}
		return true
	})
}

func main() {
	addr := "127.0.0.1:12345"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	server, err := framechat.Listen(addr)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("relay start", "addr", server.Addr().String())
	if err := server.Serve(ctx, newRelay()); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "error", err)
	}
}
