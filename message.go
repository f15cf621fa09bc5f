package framechat

import "io"

// Message is the interface for messages transmitted over the connection.
// Implementations should provide the message length and body.
type Message interface {
	// Length returns the length of the message body.
	Length() int
	// Body returns the raw message data.
	Body() []byte
}

// Codec is the interface for message encoding and decoding.
//
// The Decode method reads from an io.Reader, which allows the codec to handle
// TCP stream reassembly by reading exactly the number of bytes needed for
// a complete message. FrameCodec is the implementation used by default.
type Codec interface {
	// Decode reads and decodes a complete message from the reader.
	// The implementation must read exactly the bytes of one frame.
	Decode(r io.Reader) (Message, error)
	// Encode encodes a Message into raw bytes for transmission.
	Encode(Message) ([]byte, error)
}

// bodyMessage is the Message produced by NewMessage and by FrameCodec.
type bodyMessage struct {
	body []byte
}

func (m bodyMessage) Length() int {
	return len(m.body)
}

func (m bodyMessage) Body() []byte {
	return m.body
}

// NewMessage returns a Message holding a copy of body.
func NewMessage(body []byte) Message {
	b := make([]byte, len(body))
	copy(b, body)
	return bodyMessage{body: b}
}

// NewTextMessage builds a message from one line of user input, truncated
// to at most maxBody bytes.
func NewTextMessage(line string, maxBody int) Message {
	if maxBody >= 0 && len(line) > maxBody {
		line = line[:maxBody]
	}
	return bodyMessage{body: []byte(line)}
}
