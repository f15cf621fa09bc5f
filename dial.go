package framechat

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrNoEndpoints is returned when a host resolves to no addresses.
var ErrNoEndpoints = errors.New("no endpoints to connect to")

// Resolver turns a host name into addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// dialOptions holds the configuration for Dial.
type dialOptions struct {
	resolver Resolver
	logger   Logger
	timeout  time.Duration
}

// DialOption is a function that configures Dial.
type DialOption func(*dialOptions)

// ResolverOption returns a DialOption that replaces net.DefaultResolver.
func ResolverOption(r Resolver) DialOption {
	return func(o *dialOptions) {
		o.resolver = r
	}
}

// DialTimeoutOption returns a DialOption bounding resolution plus all
// connection attempts.
func DialTimeoutOption(d time.Duration) DialOption {
	return func(o *dialOptions) {
		o.timeout = d
	}
}

// DialLoggerOption returns a DialOption that sets the logger.
func DialLoggerOption(logger Logger) DialOption {
	return func(o *dialOptions) {
		o.logger = logger
	}
}

// Dial resolves host and tries each address with port in order, returning
// the first connection that succeeds. port may be a number or a service name.
func Dial(ctx context.Context, host, port string, opt ...DialOption) (net.Conn, error) {
	opts := dialOptions{
		resolver: net.DefaultResolver,
		logger:   defaultLogger(),
	}
	for _, o := range opt {
		o(&opts)
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	hosts, err := opts.resolver.LookupHost(ctx, host)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", host)
	}

	endpoints := make([]string, 0, len(hosts))
	for _, h := range hosts {
		endpoints = append(endpoints, net.JoinHostPort(h, port))
	}

	return dialEndpoints(ctx, endpoints, opts.logger)
}

// dialEndpoints connects to the first reachable endpoint.
func dialEndpoints(ctx context.Context, endpoints []string, logger Logger) (net.Conn, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	var (
		d       net.Dialer
		lastErr error
	)
	for _, endpoint := range endpoints {
		conn, err := d.DialContext(ctx, "tcp", endpoint)
		if err == nil {
			if tcp, ok := conn.(*net.TCPConn); ok {
				_ = tcp.SetNoDelay(true)
			}
			logger.Debug("connected", "endpoint", endpoint)
			return conn, nil
		}

		logger.Debug("connect attempt failed", "endpoint", endpoint, "error", err)
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	return nil, errors.Wrapf(lastErr, "connect to %s", strings.Join(endpoints, ", "))
}
