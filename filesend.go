package framechat

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// SendFileDirective marks an outbound body whose remainder names a file to
// transmit in place of the body text.
const SendFileDirective = "/sendfile "

// Errors returned by the file-send extension.
var (
	// ErrMissingPath is returned when a directive names no file.
	ErrMissingPath = errors.New("sendfile: missing path")
	// ErrNotRegularFile is returned when the named path is not a regular file.
	ErrNotRegularFile = errors.New("sendfile: not a regular file")
)

// ParseSendFile reports whether body is a file-send directive and, if so,
// which path it names. The path ends at the first NUL or newline.
func ParseSendFile(body []byte) (path string, ok bool, err error) {
	if !bytes.HasPrefix(body, []byte(SendFileDirective)) {
		return "", false, nil
	}

	rest := body[len(SendFileDirective):]
	if i := bytes.IndexAny(rest, "\x00\n"); i >= 0 {
		rest = rest[:i]
	}

	path = strings.TrimSpace(string(rest))
	if path == "" {
		return "", true, ErrMissingPath
	}
	return path, true, nil
}

// ReadFileBody returns the raw contents of path, which must be a regular
// file of at most maxBody bytes.
func ReadFileBody(path string, maxBody int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "sendfile")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "sendfile: stat %s", path)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.Wrap(ErrNotRegularFile, path)
	}
	if info.Size() > int64(maxBody) {
		return nil, errors.Wrapf(ErrBodyTooLarge, "sendfile: %s is %d bytes, limit %d", path, info.Size(), maxBody)
	}

	body := make([]byte, info.Size())
	if _, err := io.ReadFull(f, body); err != nil {
		return nil, errors.Wrapf(err, "sendfile: read %s", path)
	}
	return body, nil
}

// outboundFrame builds the bytes put on the wire for msg. Unless fileSend
// is false, a file-send directive is replaced by the named file's contents.
func outboundFrame(codec Codec, msg Message, maxBody int, fileSend bool) ([]byte, error) {
	if !fileSend {
		return codec.Encode(msg)
	}

	path, ok, err := ParseSendFile(msg.Body())
	if err != nil {
		return nil, err
	}
	if !ok {
		return codec.Encode(msg)
	}

	body, err := ReadFileBody(path, maxBody)
	if err != nil {
		return nil, err
	}
	return codec.Encode(bodyMessage{body: body})
}
