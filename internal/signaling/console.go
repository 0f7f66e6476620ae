package signaling

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/pterm/pterm"
)

const maxTokenLine = 1 << 20

// Console exchanges tokens with a human: tokens are printed one per line on
// out and read one per line from in. Prompts go to stderr so out stays
// copy/paste clean.
type Console struct {
	out    io.Writer
	notice io.Writer

	in        io.Reader
	startOnce sync.Once
	lines     chan string
	readErr   chan error
}

// NewConsole returns a Console over the given streams.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{
		out:     out,
		notice:  os.Stderr,
		in:      in,
		lines:   make(chan string),
		readErr: make(chan error, 1),
	}
}

// Send prints token on its own line.
func (c *Console) Send(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	pterm.DefaultBox.
		WithTitle("Signal token").
		WithWriter(c.notice).
		Println("Copy the next line and paste it into the other peer.")

	_, err := fmt.Fprintln(c.out, token)
	return err
}

// Receive blocks until a non-empty line is entered. The line is returned
// with surrounding whitespace trimmed. A cancelled Receive leaves the reader
// goroutine parked on the stream; the next Receive picks up where it was.
func (c *Console) Receive(ctx context.Context) (string, error) {
	c.startOnce.Do(func() { go c.readLines() })

	pterm.Fprintln(c.notice, pterm.Info.Sprint("Paste the token from the other peer and press Enter:"))

	for {
		select {
		case line := <-c.lines:
			if line = strings.TrimSpace(line); line != "" {
				return line, nil
			}
		case err := <-c.readErr:
			c.readErr <- err
			return "", err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (c *Console) readLines() {
	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxTokenLine)

	for scanner.Scan() {
		c.lines <- scanner.Text()
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	c.readErr <- fmt.Errorf("read token: %w", err)
}
