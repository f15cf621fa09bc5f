package console

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/ergochat/readline"
	"golang.org/x/term"
)

const historySize = 500

// LineEditor reads user input one line at a time. On a terminal it offers
// readline editing and history; otherwise it scans the input plainly.
type LineEditor struct {
	rl      *readline.Instance
	scanner *bufio.Scanner
	closed  atomic.Bool
}

// NewLineEditor returns an editor for stdin. historyFile may be empty.
func NewLineEditor(historyFile string) *LineEditor {
	interactive := term.IsTerminal(int(os.Stdin.Fd())) && os.Getenv("INSIDE_EMACS") == ""
	if !interactive {
		return NewScannerEditor(os.Stdin)
	}

	rl, err := readline.NewFromConfig(&readline.Config{
		HistoryFile:            historyFile,
		HistoryLimit:           historySize,
		DisableAutoSaveHistory: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: readline init failed (%v), using basic input\n", err)
		return NewScannerEditor(os.Stdin)
	}
	return &LineEditor{rl: rl}
}

// NewScannerEditor returns a non-interactive editor reading lines from r.
func NewScannerEditor(r io.Reader) *LineEditor {
	return &LineEditor{scanner: bufio.NewScanner(r)}
}

// ReadLine returns the next line without its terminator, or io.EOF at end
// of input or on interrupt.
func (le *LineEditor) ReadLine() (string, error) {
	if le.rl == nil {
		if !le.scanner.Scan() {
			if err := le.scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		return le.scanner.Text(), nil
	}

	line, err := le.rl.Readline()
	if err != nil {
		if err == readline.ErrInterrupt || le.closed.Load() {
			return "", io.EOF
		}
		return "", err
	}
	if strings.TrimSpace(line) != "" {
		le.rl.SaveToHistory(line)
	}
	return line, nil
}

// Interactive reports whether readline is in use.
func (le *LineEditor) Interactive() bool {
	return le.rl != nil
}

// Close releases the terminal and makes a pending readline ReadLine
// return. It may be called from another goroutine and more than once.
// A scanner blocked on its reader stays blocked.
func (le *LineEditor) Close() {
	if le.closed.CompareAndSwap(false, true) && le.rl != nil {
		le.rl.Close()
	}
}
