package framechat

import (
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// Wire format constants.
const (
	// HeaderLength is the size of the ASCII-decimal length prefix of every frame.
	HeaderLength = 4
	// MaxHeaderValue is the largest body length four decimal digits can carry.
	MaxHeaderValue = 9999
	// DefaultMaxBodyLength is the default body size limit.
	DefaultMaxBodyLength = 512
)

// Errors returned by the frame codec.
var (
	// ErrMalformedHeader is returned when a header is not 4 padded decimal digits.
	ErrMalformedHeader = errors.New("malformed frame header")
	// ErrBodyTooLarge is returned when a body exceeds the configured limit.
	ErrBodyTooLarge = errors.New("frame body too large")
	// ErrHeaderOverflow is returned when a length does not fit in the header.
	ErrHeaderOverflow = errors.New("body length does not fit in frame header")
	// ErrNegativeLength is returned when encoding a negative body length.
	ErrNegativeLength = errors.New("negative body length")
)

// EncodeHeader returns the 4-byte header for a body of bodyLength bytes,
// right-justified and zero-padded ("0005").
func EncodeHeader(bodyLength int) ([]byte, error) {
	if bodyLength < 0 {
		return nil, ErrNegativeLength
	}
	if bodyLength > MaxHeaderValue {
		return nil, errors.Wrapf(ErrHeaderOverflow, "length %d", bodyLength)
	}

	header := []byte("0000")
	digits := strconv.Itoa(bodyLength)
	copy(header[HeaderLength-len(digits):], digits)
	return header, nil
}

// DecodeHeader parses a 4-byte header and returns the body length it encodes.
// Leading padding may be spaces or zeros. Values above maxBody are rejected.
func DecodeHeader(header []byte, maxBody int) (int, error) {
	if len(header) != HeaderLength {
		return 0, errors.Wrapf(ErrMalformedHeader, "header is %d bytes", len(header))
	}

	i := 0
	for i < HeaderLength && header[i] == ' ' {
		i++
	}
	if i == HeaderLength {
		return 0, errors.Wrap(ErrMalformedHeader, "blank header")
	}

	n := 0
	for _, b := range header[i:] {
		if b < '0' || b > '9' {
			return 0, errors.Wrapf(ErrMalformedHeader, "%q", header)
		}
		n = n*10 + int(b-'0')
	}

	if n > maxBody {
		return 0, errors.Wrapf(ErrBodyTooLarge, "header announces %d bytes, limit %d", n, maxBody)
	}
	return n, nil
}

// BuildFrame returns header ++ body.
func BuildFrame(body []byte) ([]byte, error) {
	header, err := EncodeHeader(len(body))
	if err != nil {
		return nil, err
	}

	frame := make([]byte, 0, HeaderLength+len(body))
	frame = append(frame, header...)
	return append(frame, body...), nil
}

// FrameCodec implements Codec for the length-prefixed wire format.
type FrameCodec struct {
	// MaxBodyLength bounds both decoded and encoded bodies.
	MaxBodyLength int
}

// NewFrameCodec returns a FrameCodec limited to maxBody bytes per body.
// A non-positive limit selects DefaultMaxBodyLength.
func NewFrameCodec(maxBody int) *FrameCodec {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyLength
	}
	return &FrameCodec{MaxBodyLength: maxBody}
}

// Decode reads one header and then exactly the body it announces.
func (c *FrameCodec) Decode(r io.Reader) (Message, error) {
	var header [HeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	n, err := DecodeHeader(header[:], c.MaxBodyLength)
	if err != nil {
		return nil, err
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return bodyMessage{body: body}, nil
}

// Encode frames msg, refusing bodies above the codec's limit.
func (c *FrameCodec) Encode(msg Message) ([]byte, error) {
	if msg.Length() > c.MaxBodyLength {
		return nil, errors.Wrapf(ErrBodyTooLarge, "body is %d bytes, limit %d", msg.Length(), c.MaxBodyLength)
	}
	return BuildFrame(msg.Body())
}
