package framechat

import (
	"io"
	"testing"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// mockCodec is a minimal codec for option tests
type mockCodec struct{}

func (c *mockCodec) Decode(r io.Reader) (Message, error) {
	return nil, io.EOF
}

func (c *mockCodec) Encode(msg Message) ([]byte, error) {
	return msg.Body(), nil
}

func TestCustomCodecOption(t *testing.T) {
	codec := &mockCodec{}
	opt := CustomCodecOption(codec)

	var opts options
	opt(&opts)

	if opts.codec != codec {
		t.Error("codec not set correctly")
	}
}

func TestBufferSizeOption(t *testing.T) {
	opt := BufferSizeOption(100)

	var opts options
	opt(&opts)

	if opts.bufferSize != 100 {
		t.Errorf("bufferSize = %d, want 100", opts.bufferSize)
	}
}

func TestMaxBodyLengthOption(t *testing.T) {
	opt := MaxBodyLengthOption(4096)

	var opts options
	opt(&opts)

	if opts.maxBodyLength != 4096 {
		t.Errorf("maxBodyLength = %d, want 4096", opts.maxBodyLength)
	}
}

func TestTimeoutOptions(t *testing.T) {
	var opts options
	ReadTimeoutOption(time.Minute)(&opts)
	WriteTimeoutOption(time.Second)(&opts)

	if opts.readTimeout != time.Minute {
		t.Errorf("readTimeout = %v, want %v", opts.readTimeout, time.Minute)
	}
	if opts.writeTimeout != time.Second {
		t.Errorf("writeTimeout = %v, want %v", opts.writeTimeout, time.Second)
	}
}

func TestOnMessageOption(t *testing.T) {
	called := false
	onMessage := func(msg Message) error {
		called = true
		return nil
	}
	opt := OnMessageOption(onMessage)

	var opts options
	opt(&opts)

	if opts.onMessage == nil {
		t.Fatal("onMessage is nil")
	}

	// Call to verify it's the right function
	opts.onMessage(nil)
	if !called {
		t.Error("onMessage callback not called")
	}
}

func TestOnSendErrorOption(t *testing.T) {
	var got error
	opt := OnSendErrorOption(func(msg Message, err error) {
		got = err
	})

	var opts options
	opt(&opts)

	if opts.onSendError == nil {
		t.Fatal("onSendError is nil")
	}

	opts.onSendError(nil, ErrMissingPath)
	if got != ErrMissingPath {
		t.Errorf("onSendError got %v, want ErrMissingPath", got)
	}
}

func TestLoggerOption(t *testing.T) {
	logger := &mockLogger{}
	opt := LoggerOption(logger)

	var opts options
	opt(&opts)

	if opts.logger != logger {
		t.Error("logger not set correctly")
	}
}

func TestOptions_MultipleOptions(t *testing.T) {
	codec := &mockCodec{}
	logger := &mockLogger{}
	set := metrics.NewSet()
	onMessage := func(msg Message) error { return nil }

	var opts options
	options := []Option{
		CustomCodecOption(codec),
		OnMessageOption(onMessage),
		BufferSizeOption(50),
		MaxBodyLengthOption(8192),
		MaxQueueLengthOption(16),
		LoggerOption(logger),
		MetricsSetOption(set),
		DisableFileSendOption(),
	}

	for _, opt := range options {
		opt(&opts)
	}

	if opts.codec != codec {
		t.Error("codec not set")
	}
	if opts.onMessage == nil {
		t.Error("onMessage not set")
	}
	if opts.bufferSize != 50 {
		t.Errorf("bufferSize = %d, want 50", opts.bufferSize)
	}
	if opts.maxBodyLength != 8192 {
		t.Errorf("maxBodyLength = %d, want 8192", opts.maxBodyLength)
	}
	if opts.maxQueueLength != 16 {
		t.Errorf("maxQueueLength = %d, want 16", opts.maxQueueLength)
	}
	if opts.logger != logger {
		t.Error("logger not set")
	}
	if opts.metrics != set {
		t.Error("metrics set not set")
	}
	if !opts.noFileSend {
		t.Error("file send not disabled")
	}
}
