package framechat

import (
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// options holds the configuration for a connection.
type options struct {
	codec   Codec
	logger  Logger
	metrics *metrics.Set

	onMessage func(message Message) error
	// onSendError is called when one outbound message cannot be framed.
	// The connection stays open and the queue advances.
	onSendError func(Message, error)

	bufferSize     int           // size of the mailbox channel
	maxBodyLength  int           // maximum size of a single body, both directions
	noFileSend     bool          // send directive bodies literally
	maxQueueLength int           // accepted-but-unsent messages, 0 for unbounded
	readTimeout    time.Duration // per-frame read deadline, 0 disables
	writeTimeout   time.Duration // per-frame write deadline, 0 disables
}

// Option is a function that configures connection options.
type Option func(*options)

// CustomCodecOption returns an Option that replaces the frame codec.
// By default a FrameCodec limited to the max body length is used.
func CustomCodecOption(codec Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

// BufferSizeOption returns an Option that sets the size of the mailbox
// through which producers hand messages to the connection.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// MaxBodyLengthOption returns an Option that sets the largest body accepted
// from the peer or sent to it. It cannot exceed MaxHeaderValue.
func MaxBodyLengthOption(size int) Option {
	return func(o *options) {
		o.maxBodyLength = size
	}
}

// MaxQueueLengthOption returns an Option that bounds the number of messages
// accepted but not yet written. Enqueue fails with ErrQueueFull past it.
func MaxQueueLengthOption(n int) Option {
	return func(o *options) {
		o.maxQueueLength = n
	}
}

// ReadTimeoutOption returns an Option that sets how long a single frame read
// may wait on the peer before the connection is closed.
func ReadTimeoutOption(d time.Duration) Option {
	return func(o *options) {
		o.readTimeout = d
	}
}

// WriteTimeoutOption returns an Option that sets how long a single frame
// write may take before the connection is closed.
func WriteTimeoutOption(d time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = d
	}
}

// OnMessageOption returns an Option that sets the inbound sink.
// This callback is required and is invoked for each received body, one at a
// time, before the next frame is read.
func OnMessageOption(cb func(Message) error) Option {
	return func(o *options) {
		o.onMessage = cb
	}
}

// OnSendErrorOption returns an Option that sets the callback invoked when an
// outbound message is dropped without closing the connection, for example
// when a file-send directive names a missing file.
func OnSendErrorOption(cb func(Message, error)) Option {
	return func(o *options) {
		o.onSendError = cb
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// MetricsSetOption returns an Option that registers the connection's
// counters in set instead of a private one.
func MetricsSetOption(set *metrics.Set) Option {
	return func(o *options) {
		o.metrics = set
	}
}

// DisableFileSendOption returns an Option that turns off the file-send
// directive, so bodies starting with SendFileDirective are sent as text.
// Connections that forward peer-supplied bodies should use it.
func DisableFileSendOption() Option {
	return func(o *options) {
		o.noFileSend = true
	}
}
