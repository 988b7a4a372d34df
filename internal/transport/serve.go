package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	defaultPartInterval = 500 * time.Millisecond
	defaultRetryDelay   = 5 * time.Second
)

// Server pumps messages from a Transport through a Handler, one goroutine
// per message.
type Server struct {
	transport    Transport
	handler      Handler
	logger       *slog.Logger
	partInterval time.Duration
	retryDelay   time.Duration
}

func NewServer(t Transport, h Handler, logger *slog.Logger) *Server {
	return &Server{
		transport:    t,
		handler:      h,
		logger:       logger,
		partInterval: defaultPartInterval,
		retryDelay:   defaultRetryDelay,
	}
}

// Serve starts the transport and receives until it is exhausted or ctx is
// cancelled. It returns after every in-flight reply has been sent.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.transport.Start(ctx); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}

	var g errgroup.Group
	s.receive(ctx, &g)
	return g.Wait()
}

func (s *Server) receive(ctx context.Context, g *errgroup.Group) {
	for {
		m, err := s.transport.Receive(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			s.logger.Info("transport exhausted")
			return
		case ctx.Err() != nil:
			s.logger.Info("stopped receiving")
			return
		default:
			s.logger.Warn("receive failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retryDelay):
			}
			continue
		}

		m.Text = strings.TrimSpace(m.Text)
		if m.Text == "" {
			continue
		}

		// Replies already in progress finish after shutdown begins.
		hctx := context.WithoutCancel(ctx)
		g.Go(func() error {
			s.reply(hctx, m)
			return nil
		})
	}
}

func (s *Server) reply(ctx context.Context, m Message) {
	text, ok := s.handler(ctx, m)
	if !ok || text == "" {
		return
	}

	parts := Split(text, MaxPartBytes)
	pace := rate.NewLimiter(rate.Every(s.partInterval), 1)
	for i, part := range parts {
		if err := pace.Wait(ctx); err != nil {
			return
		}
		if err := s.transport.Send(ctx, m.From, part); err != nil {
			s.logger.Error("send reply", "identity", m.From.ID, "part", i+1, "parts", len(parts), "error", err)
		}
	}
}
