// Package console connects a framechat client to the terminal: inbound
// bodies are printed, outbound lines are read with line editing.
package console

import (
	"io"
	"sync"

	"github.com/Zereker/framechat"
)

// Sink prints each inbound body followed by a newline.
type Sink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewSink returns a Sink writing to w.
func NewSink(w io.Writer) *Sink {
	return &Sink{w: w}
}

// OnMessage writes msg's body. It has the signature expected by
// framechat.OnMessageOption.
func (s *Sink) OnMessage(msg framechat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.w.Write(msg.Body()); err != nil {
		return err
	}
	_, err := io.WriteString(s.w, "\n")
	return err
}
