package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Stdin is a line-oriented transport for local testing. Each input line
// is "id|nickname|message" or "id|message"; replies are written as
// "[nickname] text".
type Stdin struct {
	in     io.Reader
	logger *slog.Logger

	mu  sync.Mutex // guards out
	out io.Writer

	start sync.Once
	lines chan string
	err   error
}

func NewStdin(in io.Reader, out io.Writer, logger *slog.Logger) *Stdin {
	return &Stdin{
		in:     in,
		out:    out,
		logger: logger,
		lines:  make(chan string),
	}
}

func (s *Stdin) Start(_ context.Context) error {
	s.start.Do(func() {
		s.logger.Info("stdin transport started, enter messages as id|nickname|message")
		go s.read()
	})
	return nil
}

func (s *Stdin) read() {
	sc := bufio.NewScanner(s.in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		s.lines <- sc.Text()
	}
	s.err = sc.Err()
	close(s.lines)
}

func (s *Stdin) Receive(ctx context.Context) (Message, error) {
	for {
		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case line, ok := <-s.lines:
			if !ok {
				if s.err != nil {
					return Message{}, fmt.Errorf("read stdin: %w", s.err)
				}
				return Message{}, io.EOF
			}
			if m, ok := s.parse(line); ok {
				return m, nil
			}
		}
	}
}

func (s *Stdin) parse(line string) (Message, bool) {
	line = strings.TrimRight(line, " \t\r")
	if line == "" {
		return Message{}, false
	}
	parts := strings.SplitN(line, "|", 3)
	switch len(parts) {
	case 3:
		return Message{From: Contact{ID: parts[0], Nickname: parts[1]}, Text: parts[2]}, true
	case 2:
		return Message{From: Contact{ID: parts[0], Nickname: parts[0]}, Text: parts[1]}, true
	}
	s.logger.Warn("invalid input, expected id|nickname|message", "line", line)
	return Message{}, false
}

func (s *Stdin) Send(_ context.Context, to Contact, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.out, "[%s] %s\n", to.Nickname, text)
	return err
}
