package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/muurk/serial2ip/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// MaxInputLen is the longest line the console accepts.
const MaxInputLen = 127

// ErrInterrupted is returned by Run when Ctrl-C is read in raw mode.
var ErrInterrupted = errors.New("console interrupted")

// Console reads keystrokes, echoes them and hands complete lines to a
// Machine. The first byte received only prints the welcome banner.
type Console struct {
	in      io.Reader
	out     io.Writer
	machine *Machine
	log     *zap.Logger

	welcomed bool
	lastCR   bool
	buf      []byte
}

// NewConsole creates a console over in and out.
func NewConsole(in io.Reader, out io.Writer, m *Machine) *Console {
	return &Console{
		in:      in,
		out:     out,
		machine: m,
		log:     logging.Component("cli"),
		buf:     make([]byte, 0, MaxInputLen),
	}
}

// Run processes input until EOF, Ctrl-C or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	chunks := make(chan []byte)
	errs := make(chan error, 1)
	go func() {
		b := make([]byte, 256)
		for {
			n, err := c.in.Read(b)
			if n > 0 {
				chunk := append([]byte(nil), b[:n]...)
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				errs <- err
				return
			}
		}
	}()

	c.log.Info("Console started")
	defer c.machine.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("console read: %w", err)
		case chunk := <-chunks:
			for _, b := range chunk {
				if b == 0x03 {
					return ErrInterrupted
				}
				c.feed(ctx, b)
			}
		}
	}
}

func (c *Console) feed(ctx context.Context, b byte) {
	if !c.welcomed {
		c.welcomed = true
		fmt.Fprint(c.out, "Welcome to the command line interface\n")
		fmt.Fprint(c.out, "Press 'ENTER' to show main menu\n")
		c.lastCR = b == '\r'
		return
	}

	// CR LF is one Enter.
	if b == '\n' && c.lastCR {
		c.lastCR = false
		return
	}
	c.lastCR = b == '\r'

	switch {
	case b == '\r' || b == '\n':
		fmt.Fprint(c.out, "\n")
		line := string(c.buf)
		c.buf = c.buf[:0]
		c.machine.Input(ctx, line)
	case b == '\b' || b == 0x7f:
		if len(c.buf) > 0 {
			c.buf = c.buf[:len(c.buf)-1]
			fmt.Fprint(c.out, "\b \b")
		}
	case b >= 32 && b <= 126 && len(c.buf) < MaxInputLen:
		c.buf = append(c.buf, b)
		c.out.Write([]byte{b})
	}
}

// MakeRaw switches f to raw mode when it is a terminal. The returned
// function restores the previous mode; raw reports whether anything changed.
func MakeRaw(f *os.File) (restore func(), raw bool, err error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return func() {}, false, nil
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return func() {}, false, fmt.Errorf("failed to enter raw mode: %w", err)
	}
	return func() { term.Restore(fd, old) }, true, nil
}

type crlfWriter struct {
	w io.Writer
}

// CRLF returns a writer that expands LF to CR LF, for terminals in raw mode.
func CRLF(w io.Writer) io.Writer {
	return crlfWriter{w: w}
}

func (c crlfWriter) Write(p []byte) (int, error) {
	if _, err := c.w.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}
